// Command listsyncd runs the offline-first sync core as a daemon: it
// keeps the local cache warm, drains the pending queue against the
// remote authority, and applies collaborator broadcasts as they arrive.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/listkeeper/listkeeper/internal/dao"
	"github.com/listkeeper/listkeeper/internal/db"
	"github.com/listkeeper/listkeeper/internal/logging"
	"github.com/listkeeper/listkeeper/internal/queue"
	"github.com/listkeeper/listkeeper/internal/service"
	"github.com/listkeeper/listkeeper/internal/session"
	"github.com/listkeeper/listkeeper/internal/store"
	"github.com/listkeeper/listkeeper/internal/syncer"
	"github.com/listkeeper/listkeeper/internal/transport"
)

// Version is set at build time.
var Version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "listsyncd",
		Short:   "Offline-first sync daemon for shared task lists",
		Version: Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}

	flags := cmd.Flags()
	flags.String("server-url", "ws://localhost:8080/sync", "sync channel URL")
	flags.String("token", "", "bearer token for the sync channel")
	flags.String("data-dir", defaultDataDir(), "directory for the local cache")
	flags.String("db-name", "listkeeper", "local cache database name")
	flags.String("log-level", "info", "log level (trace|debug|info|warn|error)")
	flags.Bool("console", false, "human-readable log output")
	flags.Duration("retry-delay", syncer.DefaultRetryDelay, "pause before retrying a failed batch")

	viper.SetEnvPrefix("LISTKEEPER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	cobra.CheckErr(viper.BindPFlags(flags))

	return cmd
}

func run(ctx context.Context) error {
	log := logging.New(os.Stdout, viper.GetString("log-level"), viper.GetBool("console"))

	token := viper.GetString("token")
	if token == "" {
		return fmt.Errorf("a bearer token is required (--token or LISTKEEPER_TOKEN)")
	}
	sess, err := session.FromToken(token)
	if err != nil {
		return err
	}
	if sess.Expired() {
		return fmt.Errorf("bearer token is expired, sign in again")
	}

	database, err := db.Open(viper.GetString("data-dir"), viper.GetString("db-name"))
	if err != nil {
		return err
	}
	defer database.Close()
	if err := database.Migrate(); err != nil {
		return err
	}

	relations := dao.NewRelationDAO(database, log)
	tasks := dao.NewTaskDAO(database, log)
	pending := queue.New(dao.NewPendingDAO(database, log), log)
	pending.Load()
	st := store.New()

	client := transport.NewClient(viper.GetString("server-url"), token, log)
	defer client.Close()

	relSvc := service.NewRelationService(relations, tasks, pending, st, sess, client, log)
	taskSvc := service.NewTaskService(tasks, relations, pending, st, sess, client, log)
	service.NewBroadcasts(relations, tasks, st, log).Bind(client)

	coordinator := syncer.New(pending, relations, tasks, client,
		viper.GetDuration("retry-delay"), log)
	defer coordinator.CancelRetry()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	if err := client.Connect(dialCtx); err != nil {
		log.Warn().Err(err).Msg("starting offline, channel unavailable")
	}
	cancel()

	relSvc.Refresh(ctx)

	// Join every Server relation's room so collaborator broadcasts keep
	// the cache warm while the daemon runs.
	for _, rel := range st.Relations() {
		if rel.IsLocal() {
			continue
		}
		if err := taskSvc.Open(ctx, rel.ID); err != nil {
			log.Warn().Err(err).Str("relation_id", rel.ID.String()).Msg("failed to open relation")
		}
	}

	go coordinator.Run(ctx)
	if err := coordinator.Sync(ctx); err != nil {
		log.Warn().Err(err).Msg("initial sync failed")
	}

	log.Info().Str("version", Version).Int("pending", pending.Len()).Msg("listsyncd running")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case <-client.LogoutSignals():
		log.Warn().Msg("credential rejected, shutting down")
	}
	return nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".listkeeper"
	}
	return home + "/.listkeeper"
}
