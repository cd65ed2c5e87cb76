package main

import (
	"github.com/spf13/cobra"

	"github.com/irootlab/concur/internal/config"
)

var predictTracePath string

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Run only the predictor over a captured event-stream trace",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return runMining(cfg, predictTracePath, false, true)
	},
}

func init() {
	predictCmd.Flags().StringVar(&predictTracePath, "trace", "", "path to a fileformat-encoded event trace")
	predictCmd.MarkFlagRequired("trace")
}
