package cli

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hibiscusapp/hibiscus/internal/config"
	"github.com/hibiscusapp/hibiscus/internal/logger"
	"github.com/hibiscusapp/hibiscus/pkg/calendar"
	"github.com/hibiscusapp/hibiscus/pkg/editor"
	"github.com/hibiscusapp/hibiscus/pkg/fsio"
	"github.com/hibiscusapp/hibiscus/pkg/workspace"
)

var openCmd = &cobra.Command{
	Use:   "open <root>",
	Short: "Open a workspace and keep it in sync until interrupted",
	Long: `Open the workspace rooted at <root>: build the file tree, load or
create the workspace descriptor, restore the previous session, and watch
the directory for external changes until the process is interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runOpen,
}

func init() {
	rootCmd.AddCommand(openCmd)
}

func runOpen(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	appLogger, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
		Pretty:  cfg.Logging.Pretty,
	})
	if err != nil {
		return err
	}
	defer appLogger.Close()

	root, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve workspace root: %w", err)
	}

	store := editor.NewStore()
	emitter := editor.NewEmitter()
	sched := editor.NewScheduler(store, fsio.WriteTextFile, emitter,
		time.Duration(cfg.Editor.AutosaveDelayMs)*time.Millisecond)
	session := editor.NewSession(store, sched, fsio.ReadTextFile, emitter)

	sync := workspace.NewSynchronizer(session,
		time.Duration(cfg.Watcher.StabilityThresholdMs)*time.Millisecond)

	desc, err := sync.Load(root)
	if err != nil {
		return fmt.Errorf("failed to open workspace: %w", err)
	}
	log.Info().
		Str("root", root).
		Str("workspace", desc.Workspace.Name).
		Int("nodes", len(desc.Tree)).
		Msg("Workspace opened")

	planner, err := calendar.NewStore(root)
	if err != nil {
		return fmt.Errorf("failed to load planner data: %w", err)
	}
	reminders := calendar.NewReminders(planner, func(task calendar.Task) {
		log.Warn().Str("task", task.Title).Str("due", task.Due).Msg("Study task is due")
	})
	if err := reminders.Start(); err != nil {
		return fmt.Errorf("failed to start reminders: %w", err)
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals

	log.Info().Msg("Shutting down")

	reminders.Stop()
	if err := session.Close(); err != nil {
		log.Error().Err(err).Msg("Some buffers failed to flush")
	}
	return sync.Close()
}
