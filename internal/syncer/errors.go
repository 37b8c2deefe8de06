package syncer

import "fmt"

// TransportError means the whole batch submission failed before the
// authority classified anything. The queue is left untouched and a
// single retry is scheduled.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("batch submission failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Reasons the authority reports when an operation's parent relation no
// longer exists remotely. Matching entries trigger demotion.
var relationDeletedReasons = map[string]bool{
	"Relation deleted":                     true,
	"Relation already deleted from server": true,
}

func isRelationDeleted(reason string) bool {
	return relationDeletedReasons[reason]
}
