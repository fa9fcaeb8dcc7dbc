package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/graderist/corrsync/internal/config"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		Long: `Validate the configuration file against the schema.

Without --config the built-in defaults are validated, which always
succeeds and prints the effective values.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitFailure, "configuration invalid", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(cfg)
	}

	w := formatter.Writer
	fmt.Fprintln(w, "Configuration valid")
	fmt.Fprintf(w, "  storage_path:      %s\n", cfg.StoragePath)
	fmt.Fprintf(w, "  check_interval_ms: %d\n", cfg.CheckIntervalMs)
	fmt.Fprintf(w, "  send_interval_ms:  %d\n", cfg.SendIntervalMs)
	fmt.Fprintf(w, "  timeout_seconds:   %d\n", cfg.TimeoutSeconds)
	fmt.Fprintf(w, "  log_level:         %s\n", cfg.LogLevel)
	return nil
}
