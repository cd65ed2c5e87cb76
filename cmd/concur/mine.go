package main

import (
	"github.com/spf13/cobra"

	"github.com/irootlab/concur/internal/config"
)

var mineTracePath string

var mineCmd = &cobra.Command{
	Use:   "mine",
	Short: "Run the observer and predictor over a captured event-stream trace",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return runMining(cfg, mineTracePath, false, false)
	},
}

func init() {
	mineCmd.Flags().StringVar(&mineTracePath, "trace", "", "path to a fileformat-encoded event trace")
	mineCmd.MarkFlagRequired("trace")
}
