package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/graderist/corrsync/internal/config"
	"github.com/graderist/corrsync/internal/session"
	"github.com/graderist/corrsync/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Draft       string
	PointsFile  string
	Replace     bool
	ReplaceItem bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the synchronization loop",
		Long: `Start a correction session and keep the summary synchronized.

The session identity is taken from the CORRECTOR_* environment variables,
falling back to the identity persisted by the previous session. The draft
file is polled at the check cadence; its content becomes the summary text.

Example:
  corrsync run --draft ./summary.txt
  corrsync run --draft ./summary.txt --points-file ./points.txt --verbose`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Draft, "draft", "", "path to the summary draft file (required)")
	cmd.Flags().StringVar(&opts.PointsFile, "points-file", "", "path to a file holding the given points")
	cmd.Flags().BoolVar(&opts.Replace, "replace", false, "discard unsent edits when a different context starts")
	cmd.Flags().BoolVar(&opts.ReplaceItem, "replace-item", false, "discard unsent edits when a different item starts")
	_ = cmd.MarkFlagRequired("draft")

	return cmd
}

func runSession(opts *RunOptions, cmd *cobra.Command) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}

	logLevel := cfg.SlogLevel()
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	}))

	log.Info("opening local store", "path", cfg.StoragePath)
	st, err := store.Open(cfg.StoragePath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open local store", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			log.Error("error closing local store", "error", closeErr)
		}
	}()

	sess := session.New(st, session.Config{
		Identity:           config.IdentityFromEnv(),
		ConfirmReplace:     opts.Replace,
		ConfirmItemReplace: opts.ReplaceItem,
		CheckInterval:      cfg.CheckInterval(),
		SendInterval:       cfg.SendInterval(),
		Timeout:            cfg.Timeout(),
	}, log)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			log.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := sess.Bootstrap(ctx); err != nil {
		return bootstrapExitError(err)
	}

	// Poll the draft files into the live bindings at the check cadence.
	go pollDraft(ctx, sess, opts.Draft, opts.PointsFile, cfg.CheckInterval(), log)

	log.Info("session started",
		"item", sess.Identity().ItemKey,
		"task", sess.Task.Data().Title)
	fmt.Fprintln(cmd.OutOrStdout(), "Session started. Edits to the draft file are synchronized.")
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	if err := sess.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "session error", err)
	}

	log.Info("session stopped gracefully")
	return nil
}

// bootstrapExitError maps bootstrap failures to exit codes.
func bootstrapExitError(err error) error {
	switch {
	case errors.Is(err, session.ErrConfirmationRequired):
		return WrapExitError(ExitCommandError, "unsent local edits exist, rerun with --replace or --replace-item to discard them", err)
	case errors.Is(err, session.ErrItemLoadFailed):
		return WrapExitError(ExitCommandError, "failed to load the correction item", err)
	default:
		return WrapExitError(ExitCommandError, "failed to start the session", err)
	}
}

// pollDraft reads the draft and points files on every tick and feeds the
// live bindings of the engine. Read errors are logged and skipped, a
// half-written file is picked up on the next tick.
func pollDraft(ctx context.Context, sess *session.Session, draft, pointsFile string, interval time.Duration, log *slog.Logger) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			raw, err := os.ReadFile(draft)
			if err != nil {
				log.Warn("draft file not readable", "path", draft, "error", err)
			} else {
				sess.Engine.SetContent(string(raw))
			}
			if pointsFile == "" {
				continue
			}
			rawPoints, err := os.ReadFile(pointsFile)
			if err != nil {
				log.Warn("points file not readable", "path", pointsFile, "error", err)
				continue
			}
			points, err := strconv.ParseFloat(strings.TrimSpace(string(rawPoints)), 64)
			if err != nil {
				log.Warn("points file not a number", "path", pointsFile, "error", err)
				continue
			}
			sess.Engine.SetPoints(points)
		}
	}
}
