package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/thermocert/thermocert/internal/config"
)

type rootFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	var flags rootFlags
	cmd := &cobra.Command{
		Use:   "thermocert",
		Short: "Thermal qualification results from data-logger exports",
		Long: "thermocert normalizes data-logger exports from cold chambers and autoclaves,\n" +
			"computes stability, uniformity and lethality, and decides compliance.",
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setLogLevel(flags.logLevel)
		},
	}
	pf := cmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "path to config file (defaults apply when empty)")
	pf.StringVar(&flags.logLevel, "log-level", "info", "debug|info|warn|error")

	cmd.AddCommand(newProcessCmd(&flags))
	cmd.AddCommand(newEditCmd(&flags))
	cmd.AddCommand(newServeCmd(&flags))
	cmd.Version = version
	return cmd
}

// loadConfig reads path, or returns the defaults when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func setLogLevel(s string) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return fmt.Errorf("--log-level: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}
