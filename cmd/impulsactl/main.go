// Command impulsactl inspects the lifecycle graphs and permission policy of
// the impulsa console and runs guarded writes against the configured backend.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd(os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type app struct {
	logLevel string
	trace    string
	logOut   io.Writer
}

func (a *app) logger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(a.logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(a.logOut, &slog.HandlerOptions{Level: level}))
}

func rootCmd(logOut io.Writer) *cobra.Command {
	a := &app{logOut: logOut}
	cmd := &cobra.Command{
		Use:           "impulsactl",
		Short:         "Inspect lifecycles and policy, and run guarded writes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&a.trace, "trace", "", "Span exporter for guarded writes (none, json, otel); overrides IMPULSA_TRACE")

	cmd.AddCommand(
		graphCmd(),
		nextCmd(),
		explainCmd(),
		canCmd(),
		policyCmd(),
		schemaCmd(),
		insertCmd(a),
		createCmd(a),
		transitionCmd(a),
		deleteCmd(a),
	)
	return cmd
}
