package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/graderist/corrsync/internal/config"
	"github.com/graderist/corrsync/internal/session"
	"github.com/graderist/corrsync/internal/store"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the locally persisted session state",
		Long: `Show the persisted session identity and summary state.

The status is read from the local store only; the backend is never
contacted and tokens are never printed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}
	return cmd
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
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

	st, err := store.Open(cfg.StoragePath)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open local store", err)
	}
	defer st.Close()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	status, err := session.ReadLocalStatus(context.Background(), st, log)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read session state", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(status)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "Backend:      %s\n", valueOrNone(status.BackendURL))
	fmt.Fprintf(w, "User:         %s\n", valueOrNone(status.UserKey))
	fmt.Fprintf(w, "Environment:  %s\n", valueOrNone(status.EnvironmentKey))
	fmt.Fprintf(w, "Item:         %s\n", valueOrNone(status.ItemKey))
	fmt.Fprintf(w, "Task:         %s\n", valueOrNone(status.TaskTitle))
	fmt.Fprintf(w, "Data token:   %s\n", tokenPresence(status.HasDataToken))
	fmt.Fprintf(w, "File token:   %s\n", tokenPresence(status.HasFileToken))
	fmt.Fprintf(w, "State:        %s\n", status.State)
	fmt.Fprintf(w, "Unsent edits: %t\n", status.HasUnsentSaving)
	fmt.Fprintf(w, "Points:       %g (%s)\n", status.StoredPoints, valueOrNone(status.StoredGradeKey))
	fmt.Fprintf(w, "Clock offset: %dms\n", status.ClockOffsetMs)
	if status.RemainingSeconds != nil {
		fmt.Fprintf(w, "Remaining:    %s\n", (time.Duration(*status.RemainingSeconds) * time.Second).String())
	}
	return nil
}

func valueOrNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func tokenPresence(present bool) string {
	if present {
		return "present"
	}
	return "(none)"
}
