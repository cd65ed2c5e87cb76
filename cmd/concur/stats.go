package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/irootlab/concur/internal/clog"
	"github.com/irootlab/concur/internal/config"
	"github.com/irootlab/concur/internal/iroot"
	"github.com/irootlab/concur/internal/model"
	"github.com/irootlab/concur/internal/store"
)

var statsSample int

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Report the idiom totals recorded in a persisted memo",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		memo := iroot.NewMemo()
		var loaded store.Memo
		if !store.Load(cfg.Paths.MemoIn, &loaded) {
			clog.Important("no memo found", map[string]any{"path": cfg.Paths.MemoIn})
			return nil
		}
		for _, rec := range loaded.Records {
			memo.Insert(rec.Root, rec.Entry)
		}

		totals := memo.TotalsByIdiom()
		for kind := iroot.Idiom1; kind <= iroot.Idiom5; kind++ {
			clog.Result(false, kind.String(), map[string]any{"count": totals[kind]})
		}
		clog.Result(false, "total", map[string]any{"count": memo.Len()})

		if statsSample > 0 {
			insts := model.NewInstTable()
			var sinfo store.StaticInfo
			if store.Load(cfg.Paths.StaticInfoIn, &sinfo) {
				insts.Load(sinfo.Insts)
			}
			for _, root := range memo.CandidateSample(statsSample) {
				clog.Result(false, "candidate", map[string]any{
					"idiom":  root.Kind.String(),
					"key":    root.Key(),
					"events": describeEvents(insts, root.Events),
				})
			}
		}
		return nil
	},
}

// describeEvents resolves each event's instruction id to its
// (image, offset) location via insts, falling back to the bare
// instruction id when static info was not loaded or the id predates it.
func describeEvents(insts *model.InstTable, events []iroot.Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		if inst, ok := insts.Lookup(e.Inst); ok {
			out = append(out, fmt.Sprintf("img%d+0x%x", inst.Image, inst.Offset))
			continue
		}
		out = append(out, fmt.Sprintf("inst%d", e.Inst))
	}
	return out
}

func init() {
	statsCmd.Flags().IntVar(&statsSample, "sample", 0, "print up to N candidate iRoots flagged for offline testing priority")
}
