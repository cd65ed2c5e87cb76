package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/irootlab/concur/internal/clog"
	"github.com/irootlab/concur/internal/config"
	"github.com/irootlab/concur/internal/ingest"
	"github.com/irootlab/concur/internal/ingest/fileformat"
	"github.com/irootlab/concur/internal/model"
	"github.com/irootlab/concur/internal/sched"
	"github.com/irootlab/concur/internal/store"
	"github.com/irootlab/concur/internal/sysinfo"
)

var (
	chessTracePath string
	chessMaxRuns   int
	chessExecDir   string
)

var chessCmd = &cobra.Command{
	Use:   "chess",
	Short: "Systematically explore thread interleavings of a synchronization trace",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return runChess(cfg)
	},
}

func init() {
	chessCmd.Flags().StringVar(&chessTracePath, "trace", "", "path to a fileformat-encoded event trace giving each thread's synchronization schedule points")
	chessCmd.Flags().IntVar(&chessMaxRuns, "max-runs", 1000, "safety cap on the number of DFS runs per invocation")
	chessCmd.Flags().StringVar(&chessExecDir, "exec-dir", "executions", "directory to write one Execution file per run")
	chessCmd.MarkFlagRequired("trace")
}

// threadScript is one thread's ordered sequence of scheduled actions,
// derived from its synchronization events in a captured trace.
type threadScript struct {
	thread  model.ThreadUID
	actions []model.Action
}

// buildScripts replays tracePath into one ordered action script per
// thread plus the barrier capacities declared along the way (spec
// §4.E.6's barrier_init), which the driver needs before the first
// matching barrier_wait can be modeled. When racy is non-nil, a plain
// memory read/write is only kept as a scheduled action if its
// instruction is in racy; sync primitives are always kept. This is
// race-directed scheduling (spec §6 race_in/out): restricting the DFS
// to branch only at instructions a prior mining pass actually flagged
// as taking part in a racy pair, instead of at every memory access.
func buildScripts(tracePath string, racy map[model.InstID]bool) ([]threadScript, map[model.ObjectUID]int, error) {
	dec, err := fileformat.Open(tracePath)
	if err != nil {
		return nil, nil, fmt.Errorf("chess: open trace: %w", err)
	}
	defer dec.Close()

	threads := model.NewThreadTable()
	insts := model.NewInstTable()
	byThread := make(map[model.ThreadUID][]model.Action)
	order := make([]model.ThreadUID, 0)
	tcByThread := make(map[model.ThreadUID]uint64)
	barrierCounts := make(map[model.ObjectUID]int)

	for {
		ev, ok, err := dec.Next()
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			break
		}

		switch ev.Kind {
		case ingest.ThreadStart:
			parent, _ := threads.Resolve(ev.ParentThreadID)
			uid := threads.Start(parent, ev.ThreadID)
			if _, seen := byThread[uid]; !seen {
				order = append(order, uid)
			}
			continue
		case ingest.BeforeBarrierInit:
			barrierCounts[model.ObjectUID(ev.Addr)] = int(ev.Size)
			continue
		}

		uid, ok := threads.Resolve(ev.ThreadID)
		if !ok {
			continue
		}

		var op model.Operation
		var object model.ObjectUID
		hasObj := ev.Addr != 0
		switch ev.Kind {
		case ingest.AfterMutexLock:
			op = model.OpMutexLock
		case ingest.AfterMutexTryLock:
			op = model.OpMutexTryLock
		case ingest.BeforeMutexUnlock:
			op = model.OpMutexUnlock
		case ingest.BeforeCondWait:
			op = model.OpCondWait
		case ingest.BeforeCondTimedwait:
			op = model.OpCondTimedwait
		case ingest.BeforeCondSignal:
			op = model.OpCondSignal
		case ingest.BeforeCondBroadcast:
			op = model.OpCondBroadcast
		case ingest.BeforeBarrierWait:
			op = model.OpBarrierWait
		case ingest.AfterPthreadJoin:
			op = model.OpThreadJoin
			if target, ok := threads.Resolve(uint64(ev.Addr)); ok {
				object, hasObj = model.ObjectUID(target), true
			} else {
				hasObj = false
			}
		case ingest.BeforeMemRead:
			op = model.OpMemRead
		case ingest.BeforeMemWrite:
			op = model.OpMemWrite
		case ingest.ThreadExit:
			op = model.OpThreadEnd
		default:
			continue
		}
		if hasObj && op != model.OpThreadJoin {
			object = model.ObjectUID(ev.Addr)
		}

		instID := insts.Intern(0, ev.Inst, model.OpCall)
		if racy != nil && (op == model.OpMemRead || op == model.OpMemWrite) && !racy[instID] {
			continue
		}
		tcByThread[uid]++
		a := model.Action{Thread: uid, Op: op, Inst: instID, TC: tcByThread[uid], HasObj: hasObj, Object: object}
		byThread[uid] = append(byThread[uid], a)
	}

	scripts := make([]threadScript, 0, len(order))
	for _, uid := range order {
		scripts = append(scripts, threadScript{thread: uid, actions: byThread[uid]})
	}
	return scripts, barrierCounts, nil
}

func runChess(cfg config.Config) error {
	sysinfo.Apply(cfg.Sysinfo.CPU, cfg.Sysinfo.RealtimePriority)

	var racy map[model.InstID]bool
	var raceDB store.RaceDB
	if store.Load(cfg.Paths.RaceIn, &raceDB) {
		racy = make(map[model.InstID]bool, len(raceDB.Insts))
		for _, inst := range raceDB.Insts {
			racy[inst] = true
		}
		clog.Info("loaded race-directed scheduling set", map[string]any{"path": cfg.Paths.RaceIn, "insts": len(racy)})
	}

	scripts, barrierCounts, err := buildScripts(chessTracePath, racy)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(chessExecDir, 0o755); err != nil {
		return fmt.Errorf("chess: create exec dir: %w", err)
	}

	stack := sched.NewStack()
	var searchLoaded store.Search
	if store.Load(cfg.Paths.SearchIn, &searchLoaded) {
		for i := range searchLoaded.Nodes {
			stack.Nodes = append(stack.Nodes, &searchLoaded.Nodes[i])
		}
		stack.Done = searchLoaded.Done
	}

	execByID := make(map[string]*model.Execution)
	por := sched.NewPOR(func(id string) (*model.Execution, bool) {
		e, ok := execByID[id]
		return e, ok
	})
	var porLoaded store.PORInfo
	if store.Load(cfg.Paths.PORInfoPath, &porLoaded) {
		por.Load(porLoaded.Visited)
	}

	scfg := sched.Config{
		PB: cfg.Scheduler.PB, PBLimit: cfg.Scheduler.PBLimit,
		Fair: cfg.Scheduler.Fair, POR: cfg.Scheduler.POR, AbortDiverge: cfg.Scheduler.AbortDiverge,
	}
	// One Scheduler drives every run: fair control and the search stack
	// must accumulate knowledge across the whole DFS, only the
	// per-run bookkeeping that NewRun resets is run-local.
	s := sched.New(scfg, stack, por, "")
	for _, sc := range scripts {
		s.RegisterThread(sc.thread)
	}

	// The guard only gates whether another DFS run is started: aborting
	// one mid-flight would strand the per-thread driver goroutines
	// blocked in Scheduler.Reach, which has no cancellation path of its
	// own.
	guardCtx, guardCancel := context.WithCancel(context.Background())
	defer guardCancel()
	guard := sysinfo.NewMemGuard(guardCancel)
	go guard.Watch(guardCtx, 5*time.Second)

	runs := 0
	aborted := false
	for !stack.Done && runs < chessMaxRuns && !guard.Canceled() {
		execID := uuid.NewString()
		s.NewRun(execID)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		var runErr error
		go func() {
			runErr = s.Run(ctx)
			close(done)
		}()

		prims := newPrimTable(barrierCounts)
		var wg sync.WaitGroup
		for _, sc := range scripts {
			wg.Add(1)
			go func(sc threadScript) {
				defer wg.Done()
				for _, a := range sc.actions {
					prims.drive(s, sc.thread, a)
				}
			}(sc)
		}
		wg.Wait()
		cancel()
		<-done

		stack.PopFinished()
		exec := s.Execution()
		diverged := s.Diverged()

		// A diverged run is not added to the search DB at all (spec
		// S6 "not persisted", P7): neither its Execution file nor its
		// POR/search-stack bookkeeping (already skipped by explore's
		// replay branch), since the persisted tree no longer describes
		// the program that produced it.
		if diverged {
			clog.Important("chess: run diverged from persisted search stack", map[string]any{"exec_id": execID, "run_err": runErr})
		} else {
			execByID[execID] = exec
			if err := store.Save(execPath(chessExecDir, execID), exec); err != nil {
				clog.Error("chess: saving execution failed", err, map[string]any{"exec_id": execID})
			}
		}

		runs++
		clog.Result(true, "run complete", map[string]any{"exec_id": execID, "steps": len(exec.Actions), "diverged": diverged})

		if diverged && cfg.Scheduler.AbortDiverge {
			aborted = true
			break
		}
	}

	clog.Important("chess search finished", map[string]any{"runs": runs, "exhausted": stack.Done, "memory_aborted": guard.Canceled(), "diverge_aborted": aborted})

	nodes := make([]sched.SearchNode, 0, len(stack.Nodes))
	for _, n := range stack.Nodes {
		nodes = append(nodes, *n)
	}
	if err := store.Save(cfg.Paths.SearchOut, store.Search{Done: stack.Done, NumRuns: runs, Nodes: nodes}); err != nil {
		return err
	}
	if err := store.Save(cfg.Paths.PORInfoPath, store.PORInfo{NumExecs: len(execByID), Visited: por.All()}); err != nil {
		return err
	}
	if aborted {
		// Exit codes: 0 on exhaustion, non-zero only on internal
		// assertion failure or divergence-abort (spec §6 "Exit codes").
		return fmt.Errorf("chess: aborted after divergence (abort_diverge set)")
	}
	return nil
}

func execPath(dir, execID string) string {
	return dir + "/" + execID + ".msgpack"
}
