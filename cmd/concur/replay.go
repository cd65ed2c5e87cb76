package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/irootlab/concur/internal/clog"
	"github.com/irootlab/concur/internal/store"
)

var replayExecPath string

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Print the action sequence of a persisted Execution",
	RunE: func(cmd *cobra.Command, args []string) error {
		var exec store.Execution
		if !store.Load(replayExecPath, &exec) {
			return fmt.Errorf("replay: no execution at %s", replayExecPath)
		}
		clog.Important("execution loaded", map[string]any{"id": exec.ID, "actions": len(exec.Actions)})
		for i, a := range exec.Actions {
			fields := map[string]any{
				"thread": uint32(a.Thread),
				"op":     int(a.Op),
				"tc":     a.TC,
				"oc":     a.OC,
			}
			if a.HasObj {
				fields["object"] = uint32(a.Object)
			}
			clog.Result(false, fmt.Sprintf("step %d", i), fields)
		}
		return nil
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayExecPath, "execution", "", "path to a persisted Execution file")
	replayCmd.MarkFlagRequired("execution")
}
