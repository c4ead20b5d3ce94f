package clinit

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/redopt/clinit/pkg/irmodel"
	"github.com/redopt/clinit/pkg/workqueue"
)

// RunOptions configures a single RunProgram invocation.
type RunOptions struct {
	// NumWorkers is the size of the per-method worker pool. Defaults to 1
	// if zero or negative.
	NumWorkers int

	// RestrictMethods, when non-empty, limits analysis to methods named
	// in this set (matched by Method.Name()). Empty means analyze every
	// method with a body.
	RestrictMethods map[string]struct{}

	// Log receives progress and warning messages. A discarding logger is
	// used if nil.
	Log *logrus.Entry
}

// Result is everything RunProgram accumulated: the init index (component
// F) and the merge store backing every MergedUses it produced.
type Result struct {
	Index *InitIndex
	Store *MergeStore
}

type methodTask struct {
	class  irmodel.Class
	method irmodel.Method
}

// RunProgram is the program driver (component H): it discovers every
// method with a body across prog's units, schedules one analysis task per
// method onto a work-stealing pool (component G), and returns the
// combined init index once every task has completed.
//
// Modeled on golintmu's phased run() in pkg/analyzer/golintmu.go, but
// restructured for concurrent per-method scheduling instead of a single
// sequential pass: phase 0 validates the configured safe-escape
// references against the loaded program (also concurrently across
// units), phase 1 discovers tasks (same unit-level concurrency), phase 2
// runs them on the worker pool, phase 3 is implicit in each task
// finalizing its own construction sites as it converges.
func RunProgram(ctx context.Context, prog irmodel.Program, hierarchy irmodel.Hierarchy, root irmodel.Type, safe SafeEscapeSet, opts RunOptions) (*Result, error) {
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	numWorkers := opts.NumWorkers
	if numWorkers < 1 {
		numWorkers = 1
	}

	if err := ValidateSafeEscapes(ctx, prog, safe, log); err != nil {
		return nil, err
	}

	tasks, err := discoverTasks(ctx, prog, opts.RestrictMethods)
	if err != nil {
		return nil, err
	}
	log.WithField("tasks", len(tasks)).Debug("clinit: scheduling method analyses")

	index := NewInitIndex()
	store := NewMergeStore()
	var storeMu sync.Mutex

	process := func(task methodTask, ws *workqueue.WorkerState[methodTask, struct{}]) struct{} {
		cfg, ok := task.method.CFG()
		if !ok {
			return struct{}{}
		}
		// Each method interns its promotions in its own store; the run-wide
		// store only collects them once that method's analysis is done.
		local := NewMergeStore()
		defer func() {
			storeMu.Lock()
			for k, m := range local.byKey {
				store.byKey[k] = m
			}
			storeMu.Unlock()
		}()
		ba := NewBlockAnalyzer(hierarchy, root, safe, local, index, task.class.Type(), task.method.Name(), log.WithFields(logrus.Fields{
			"class":  task.class.Type().Name(),
			"method": task.method.Name(),
			"worker": ws.WorkerID(),
		}))
		AnalyzeMethod(ba, cfg)
		return struct{}{}
	}
	reduce := func(acc, next struct{}) struct{} { return acc }

	pool := workqueue.New[methodTask, struct{}](numWorkers, process, reduce)
	for _, t := range tasks {
		if err := pool.AddItem(t); err != nil {
			return nil, err
		}
	}
	pool.RunAll(struct{}{})

	return &Result{Index: index, Store: store}, nil
}

// discoverTasks scans every unit of prog concurrently (units are
// independent by contract, irmodel.Unit) and returns one methodTask per
// method that has a CFG, honoring an optional name restriction.
func discoverTasks(ctx context.Context, prog irmodel.Program, restrict map[string]struct{}) ([]methodTask, error) {
	units := prog.Units()
	if len(units) == 0 {
		return scanClasses(prog.Classes(), restrict), nil
	}

	var mu sync.Mutex
	var tasks []methodTask

	g, gctx := errgroup.WithContext(ctx)
	for _, u := range units {
		u := u
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			local := scanClasses(u.Classes(), restrict)
			mu.Lock()
			tasks = append(tasks, local...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tasks, nil
}

func scanClasses(classes []irmodel.Class, restrict map[string]struct{}) []methodTask {
	var tasks []methodTask
	for _, c := range classes {
		for _, m := range c.Methods() {
			if len(restrict) > 0 {
				if _, ok := restrict[m.Name()]; !ok {
					continue
				}
			}
			if _, ok := m.CFG(); !ok {
				continue
			}
			tasks = append(tasks, methodTask{class: c, method: m})
		}
	}
	return tasks
}
