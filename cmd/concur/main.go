// Command concur drives the iRoot mining engine and the CHESS-style
// systematic scheduler over a captured or live instrumentation event
// stream (spec §6 "Command surface").
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/irootlab/concur/internal/clog"
)

var (
	configPath string
	logLevel   string
	quiet      bool
)

var rootCmd = &cobra.Command{
	Use:   "concur",
	Short: "Dynamic concurrency-bug detection: iRoot mining and systematic scheduling",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		clog.Init(logLevel, quiet)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a TOML config file (missing file falls back to defaults)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress everything below warn")

	rootCmd.AddCommand(mineCmd)
	rootCmd.AddCommand(predictCmd)
	rootCmd.AddCommand(chessCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	defer func() {
		// Recovers a model.Fatal panic (internal assertion failure) into
		// a clean non-zero exit instead of an unwound stack trace, per
		// spec §7/§9's "panics only for true invariant violations".
		if r := recover(); r != nil {
			fmt.Fprintln(os.Stderr, "concur: fatal:", r)
			os.Exit(1)
		}
	}()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
