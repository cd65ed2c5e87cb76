package main

import (
	"context"
	"fmt"
	"time"

	"github.com/irootlab/concur/internal/clog"
	"github.com/irootlab/concur/internal/config"
	"github.com/irootlab/concur/internal/engine"
	"github.com/irootlab/concur/internal/ingest"
	"github.com/irootlab/concur/internal/ingest/fileformat"
	"github.com/irootlab/concur/internal/iroot"
	"github.com/irootlab/concur/internal/model"
	"github.com/irootlab/concur/internal/store"
	"github.com/irootlab/concur/internal/sysinfo"
)

// runMining builds an Engine from cfg (with the observer/predictor
// component gates overridden per the caller's onlyObserver/onlyPredictor
// request), pumps the trace file at tracePath through it, and persists
// the resulting memo, static info and program tables.
func runMining(cfg config.Config, tracePath string, onlyObserver, onlyPredictor bool) error {
	memo := iroot.NewMemo()
	var loaded store.Memo
	if store.Load(cfg.Paths.MemoIn, &loaded) {
		for _, rec := range loaded.Records {
			memo.Insert(rec.Root, rec.Entry)
		}
		clog.Info("loaded prior memo", map[string]any{"path": cfg.Paths.MemoIn, "entries": memo.Len()})
	}
	var priorIRootDB store.IRootDB
	iRootDBLoaded := store.Load(cfg.Paths.IRootIn, &priorIRootDB)

	ecfg := engine.DefaultConfig()
	ecfg.EnableObserver = cfg.Components.Observer
	ecfg.EnablePredictor = cfg.Components.Predictor
	ecfg.EnableSinst = cfg.Components.Sinst
	if onlyObserver {
		ecfg.EnableObserver, ecfg.EnablePredictor = true, false
	}
	if onlyPredictor {
		ecfg.EnableObserver, ecfg.EnablePredictor = false, true
	}
	ecfg.Observer.VulnerabilityWindow = cfg.Observer.VulnerabilityWindow
	ecfg.Observer.Type1 = cfg.Observer.Type1
	ecfg.Observer.Type2 = cfg.Observer.Type2
	ecfg.Observer.Type3 = cfg.Observer.Type3
	ecfg.Observer.Type4 = cfg.Observer.Type4
	ecfg.Observer.Type5 = cfg.Observer.Type5
	ecfg.Predictor.VulnerabilityWindow = cfg.Predictor.VulnerabilityWindow
	ecfg.Predictor.RacyOnly = cfg.Predictor.RacyOnly
	ecfg.Predictor.SyncOnly = cfg.Predictor.SyncOnly
	ecfg.Predictor.PredictDeadlock = cfg.Predictor.PredictDeadlock
	ecfg.Predictor.Type1 = cfg.Observer.Type1
	ecfg.Predictor.Type2 = cfg.Predictor.ComplexIdioms && cfg.Observer.Type2
	ecfg.Predictor.Type3 = cfg.Predictor.ComplexIdioms && cfg.Observer.Type3
	ecfg.Predictor.Type4 = cfg.Predictor.ComplexIdioms && cfg.Observer.Type4
	ecfg.Predictor.Type5 = cfg.Predictor.ComplexIdioms && cfg.Observer.Type5

	eng := engine.New(ecfg, memo)

	var prior store.Program
	if store.Load(cfg.Paths.ProgramIn, &prior) {
		eng.Program.Threads.Load(prior.Threads)
		eng.Program.Objects.Load(prior.Objects)
		clog.Info("loaded prior program identity", map[string]any{
			"path": cfg.Paths.ProgramIn, "threads": len(prior.Threads), "objects": len(prior.Objects),
		})
	}

	dec, err := fileformat.Open(tracePath)
	if err != nil {
		return fmt.Errorf("mine: open trace %s: %w", tracePath, err)
	}
	defer dec.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	guard := sysinfo.NewMemGuard(cancel)
	go guard.Watch(ctx, 5*time.Second)

	if err := ingest.PumpContext(ctx, dec, eng); err != nil {
		if guard.Canceled() {
			clog.Important("mining pass aborted by memory guard", map[string]any{"trace": tracePath})
		} else {
			return fmt.Errorf("mine: pump trace: %w", err)
		}
	}

	errs, results := clog.Counts()
	clog.Important("mining pass complete", map[string]any{
		"iroots": memo.Len(), "errors": errs, "results": results,
	})

	if err := store.Save(cfg.Paths.MemoOut, store.Memo{Records: memo.All()}); err != nil {
		return err
	}

	si := store.StaticInfo{Insts: eng.Program.Insts.All()}
	for _, img := range eng.Program.Images {
		si.Images = append(si.Images, img)
	}
	if err := store.Save(cfg.Paths.SinfoOut, si); err != nil {
		return err
	}

	prog := store.Program{Threads: eng.Program.Threads.All(), Objects: eng.Program.Objects.All()}
	if err := store.Save(cfg.Paths.ProgramOut, prog); err != nil {
		return err
	}

	records := memo.All()
	roots := make([]iroot.IRoot, 0, len(records))
	for _, rec := range records {
		roots = append(roots, rec.Root)
	}
	if err := store.Save(cfg.Paths.IRootOut, store.IRootDB{Roots: roots, LoadedFromFile: iRootDBLoaded}); err != nil {
		return err
	}

	return store.Save(cfg.Paths.RaceOut, store.RaceDB{Insts: racyInsts(records, cfg.Paths.RaceIn)})
}

// racyInsts returns every instruction that took part in an Idiom-1
// pair across records, unioned with whatever RaceDB a prior mining
// pass left at raceIn, so a systematic run downstream never loses an
// instruction a previous pass already flagged racy.
func racyInsts(records []iroot.MemoRecord, raceIn string) []model.InstID {
	seen := make(map[model.InstID]bool)
	for _, rec := range records {
		if rec.Root.Kind != iroot.Idiom1 {
			continue
		}
		for _, e := range rec.Root.Events {
			seen[e.Inst] = true
		}
	}

	var prior store.RaceDB
	if store.Load(raceIn, &prior) {
		for _, inst := range prior.Insts {
			seen[inst] = true
		}
	}

	insts := make([]model.InstID, 0, len(seen))
	for inst := range seen {
		insts = append(insts, inst)
	}
	return insts
}
