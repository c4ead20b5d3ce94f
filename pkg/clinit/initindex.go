package clinit

import (
	"sync"

	"github.com/redopt/clinit/pkg/irmodel"
)

// InitIndex is the four-level class → method → construction-instruction →
// records index. Each method's analysis writes only its own (class,
// method) slot, so no locking is needed at that granularity; the
// top-level maps are guarded because RunProgram fans out across many
// worker goroutines, each populating a different slot concurrently.
type InitIndex struct {
	mu      sync.Mutex
	byClass map[irmodel.Type]map[string]map[irmodel.Instruction][]*ObjectUses
	counts  map[irmodel.Type]map[string]int
}

func NewInitIndex() *InitIndex {
	return &InitIndex{
		byClass: make(map[irmodel.Type]map[string]map[irmodel.Instruction][]*ObjectUses),
		counts:  make(map[irmodel.Type]map[string]int),
	}
}

// AddInit records a fresh ObjectUses for a construction instruction
// encountered in class/method. The block analyzer calls this exactly once
// per construction instruction (it caches and reuses the same *ObjectUses
// across fixpoint iterations, so a loop back-edge never re-adds one);
// entries are still kept as a list rather than a single value so a future
// loader that doesn't offer stable instruction identity across a whole
// method can still use this index without widening its contract.
func (idx *InitIndex) AddInit(class irmodel.Type, method string, inst irmodel.Instruction, obj *ObjectUses) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	byMethod, ok := idx.byClass[class]
	if !ok {
		byMethod = make(map[string]map[irmodel.Instruction][]*ObjectUses)
		idx.byClass[class] = byMethod
	}
	byInst, ok := byMethod[method]
	if !ok {
		byInst = make(map[irmodel.Instruction][]*ObjectUses)
		byMethod[method] = byInst
	}
	byInst[inst] = append(byInst[inst], obj)

	counts, ok := idx.counts[class]
	if !ok {
		counts = make(map[string]int)
		idx.counts[class] = counts
	}
	counts[method]++
}

// UpdateObject replaces the final recorded state for a specific
// construction instruction's ObjectUses once the method's analysis has
// reached its fixpoint. Called at the end of component E, once for each
// construction instruction the method's analysis recorded.
func (idx *InitIndex) UpdateObject(class irmodel.Type, method string, inst irmodel.Instruction, obj *ObjectUses) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	byMethod, ok := idx.byClass[class]
	if !ok {
		return
	}
	byInst, ok := byMethod[method]
	if !ok {
		return
	}
	byInst[inst] = []*ObjectUses{obj}
}

// ForType returns every ObjectUses recorded for class/method, across all
// construction instructions.
func (idx *InitIndex) ForType(class irmodel.Type, method string) []*ObjectUses {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	byMethod, ok := idx.byClass[class]
	if !ok {
		return nil
	}
	byInst, ok := byMethod[method]
	if !ok {
		return nil
	}
	var out []*ObjectUses
	for _, objs := range byInst {
		out = append(out, objs...)
	}
	return out
}

// TypeToInits returns the full index: type → method → construction
// instruction → records.
func (idx *InitIndex) TypeToInits() map[irmodel.Type]map[string]map[irmodel.Instruction][]*ObjectUses {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	out := make(map[irmodel.Type]map[string]map[irmodel.Instruction][]*ObjectUses, len(idx.byClass))
	for class, byMethod := range idx.byClass {
		outMethod := make(map[string]map[irmodel.Instruction][]*ObjectUses, len(byMethod))
		for method, byInst := range byMethod {
			outInst := make(map[irmodel.Instruction][]*ObjectUses, len(byInst))
			for inst, objs := range byInst {
				cp := make([]*ObjectUses, len(objs))
				copy(cp, objs)
				outInst[inst] = cp
			}
			outMethod[method] = outInst
		}
		out[class] = outMethod
	}
	return out
}

// Count returns the number of construction instructions recorded for
// class/method.
func (idx *InitIndex) Count(class irmodel.Type, method string) int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	counts, ok := idx.counts[class]
	if !ok {
		return 0
	}
	return counts[method]
}
