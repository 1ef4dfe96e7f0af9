package commands

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kapu/persona-script-go/internal/util"
)

var (
	logLevel string
	logFile  string
)

var rootCmd = &cobra.Command{
	Use:   "scriptctl",
	Short: "Persona script pipeline CLI",
	Long: `scriptctl runs the persona script pipeline without the web UI.

Commands:
  run    - capture sources, profile personas and generate a script from a YAML plan
  parse  - turn a raw "Speaker: text" script into dialogue lines
  watch  - follow a server session's live state`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to this file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(watchCmd)
}

func newLogger() (*zap.Logger, error) {
	return util.NewLogger(logLevel, logFile)
}
