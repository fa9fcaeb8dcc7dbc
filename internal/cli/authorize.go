package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/graderist/corrsync/internal/config"
	"github.com/graderist/corrsync/internal/engine"
	"github.com/graderist/corrsync/internal/session"
	"github.com/graderist/corrsync/internal/store"
)

// NewAuthorizeCommand creates the authorize command.
func NewAuthorizeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authorize",
		Short: "Finalize the correction",
		Long: `Finalize the correction of the current item.

The summary is committed with the authorization flag raised and
transferred to the backend. Authorization is one-way: once the backend
has acknowledged it, no further edits are accepted.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthorize(rootOpts, cmd)
		},
	}
	return cmd
}

func runAuthorize(opts *RootOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}

	logLevel := cfg.SlogLevel()
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	}))

	st, err := store.Open(cfg.StoragePath)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open local store", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	sess := session.New(st, session.Config{
		Identity: config.IdentityFromEnv(),
		Timeout:  cfg.Timeout(),
	}, log)
	if err := sess.Bootstrap(ctx); err != nil {
		_ = formatter.Error(ErrCodeBootstrap, err.Error(), nil)
		return bootstrapExitError(err)
	}

	err = sess.Engine.Authorize(ctx)
	switch {
	case errors.Is(err, engine.ErrAuthorized):
		return formatter.Success("Correction is already authorized.")
	case errors.Is(err, engine.ErrDeadlineReached):
		_ = formatter.Error(ErrCodeAuthorize, "the correction period has ended", nil)
		return WrapExitError(ExitFailure, "authorization refused", err)
	case err != nil:
		_ = formatter.Error(ErrCodeAuthorize, err.Error(), nil)
		return WrapExitError(ExitFailure, "authorization failed", err)
	}

	if !sess.Engine.IsSent() {
		_ = formatter.Error(ErrCodeSendPending,
			"authorization is committed locally but the transfer is still outstanding, rerun to retry", nil)
		return NewExitError(ExitFailure, "authorization transfer pending")
	}

	return formatter.Success(fmt.Sprintf("Correction of item %s authorized.", sess.Identity().ItemKey))
}
