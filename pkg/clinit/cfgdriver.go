package clinit

import (
	"github.com/redopt/clinit/pkg/irmodel"
)

// maxFixpointIterations bounds the worklist loop the same way golintmu's
// interprocedural requirement propagation bounds its own fixpoint: a
// pathological or malformed CFG should produce a logged warning and a
// best-effort (possibly under-converged) answer, not a hang.
const maxFixpointIterations = 1000

// AnalyzeMethod runs the block analyzer to a fixpoint over cfg using an
// explicit worklist, rather than the recursive walk golintmu's ssawalk.go
// uses over Go's SSA form (see DESIGN.md, component E): a worklist keeps
// stack depth bounded by the analyzer's own call depth, not by CFG depth,
// which matters once method CFGs come from arbitrarily deep bytecode
// rather than from a Go compiler frontend that already caps block nesting.
//
// Returns the RegisterFile representing the union of every exit block's
// final state, and fills each cached ObjectUses's Usage field with the
// corresponding converged usage record.
func AnalyzeMethod(ba *BlockAnalyzer, cfg irmodel.CFG) *RegisterFile {
	entry := cfg.Entry()
	order, preds, _ := discoverBlocks(entry)

	outStates := make(map[irmodel.Block]*RegisterFile, len(order))
	pending := make(map[irmodel.Block]bool, len(order))
	worklist := make([]irmodel.Block, 0, len(order))

	push := func(b irmodel.Block) {
		if !pending[b] {
			pending[b] = true
			worklist = append(worklist, b)
		}
	}
	push(entry)

	iterations := 0
	for len(worklist) > 0 {
		iterations++
		if iterations > maxFixpointIterations {
			if ba.Log != nil {
				ba.Log.WithField("method", ba.Method).Warn("clinit: fixpoint iteration cap reached, returning best-effort result")
			}
			fixpointCapHits.Inc()
			break
		}

		b := worklist[0]
		worklist = worklist[1:]
		pending[b] = false

		in := computeBlockIn(b, entry, preds, outStates, ba.Store)
		out := ba.Run(in.Fork(), b)

		prevOut, seen := outStates[b]
		outStates[b] = out
		if seen && ConsistentWithRegisterFile(out, prevOut) && ConsistentWithRegisterFile(prevOut, out) {
			continue
		}
		for _, succ := range b.Successors() {
			push(succ)
		}
	}

	fixpointIterations.Observe(float64(iterations))
	methodsAnalyzed.Inc()

	final := unionExitStates(order, outStates, ba.Store)
	finalizeUsage(ba, final)
	return final
}

func computeBlockIn(b, entry irmodel.Block, preds map[irmodel.Block][]irmodel.Block, outStates map[irmodel.Block]*RegisterFile, store *MergeStore) *RegisterFile {
	if b == entry {
		return NewRegisterFile()
	}
	var acc *RegisterFile
	for _, p := range preds[b] {
		po, ok := outStates[p]
		if !ok {
			po = NewRegisterFile()
		}
		if acc == nil {
			acc = po
		} else {
			acc = CombinePathsRegisterFiles(acc, po, store)
		}
	}
	if acc == nil {
		return NewRegisterFile()
	}
	return acc
}

// discoverBlocks walks the CFG from entry via BFS, returning a stable
// visitation order, the predecessor set of every block, and a count of
// total successor edges (AnalyzeMethod, its only caller, discards it).
func discoverBlocks(entry irmodel.Block) ([]irmodel.Block, map[irmodel.Block][]irmodel.Block, int) {
	order := []irmodel.Block{entry}
	seen := map[irmodel.Block]bool{entry: true}
	preds := make(map[irmodel.Block][]irmodel.Block)
	edges := 0

	queue := []irmodel.Block{entry}
	for len(queue) > 0 {
		b := queue[0]
		queue = queue[1:]
		for _, succ := range b.Successors() {
			edges++
			preds[succ] = append(preds[succ], b)
			if !seen[succ] {
				seen[succ] = true
				order = append(order, succ)
				queue = append(queue, succ)
			}
		}
	}
	return order, preds, edges
}

// unionExitStates combines the out-state of every block with no
// successors into one final RegisterFile (the final_result). A CFG with
// no exit block (every block loops forever) falls back to the union of
// every block's out-state, since there is no more principled answer to
// give.
func unionExitStates(order []irmodel.Block, outStates map[irmodel.Block]*RegisterFile, store *MergeStore) *RegisterFile {
	var acc *RegisterFile
	haveExit := false
	for _, b := range order {
		if len(b.Successors()) != 0 {
			continue
		}
		out, ok := outStates[b]
		if !ok {
			continue
		}
		haveExit = true
		if acc == nil {
			acc = out
		} else {
			acc = CombinePathsRegisterFiles(acc, out, store)
		}
	}
	if haveExit {
		return acc
	}
	for _, b := range order {
		out, ok := outStates[b]
		if !ok {
			continue
		}
		if acc == nil {
			acc = out
		} else {
			acc = CombinePathsRegisterFiles(acc, out, store)
		}
	}
	if acc == nil {
		return NewRegisterFile()
	}
	return acc
}

// finalizeUsage copies the converged usage record for every construction
// site this method analyzed into that construction's cached ObjectUses, so
// callers reading the init index after analysis see the full picture
// rather than just construction identity.
func finalizeUsage(ba *BlockAnalyzer, final *RegisterFile) {
	for inst, obj := range ba.objCache {
		rec := final.records[obj]
		if rec == nil {
			rec = NewUsageRecord()
		}
		obj.Usage = rec
		if ba.Index != nil {
			ba.Index.UpdateObject(ba.Class, ba.Method, inst, obj)
		}
	}
}
