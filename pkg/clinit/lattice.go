package clinit

import (
	"reflect"
	"sort"

	"github.com/redopt/clinit/pkg/irmodel"
)

// instructionID extracts a stable pointer-derived ordinal from an
// irmodel.Instruction for use as a sort key when interning MergedUses.
// Instructions have stable pointer identity, so the concrete value
// backing the interface is always a pointer type.
func instructionID(i irmodel.Instruction) uintptr {
	return reflect.ValueOf(i).Pointer()
}

// FlowStatus records whether some fact (a field write, a field read, a
// method call) holds on every path reaching the observation point
// (AllPaths) or only on some of them (Conditional).
type FlowStatus int

const (
	AllPaths FlowStatus = iota
	Conditional
)

// join is the combine_paths discipline for flow status: Conditional
// absorbs AllPaths whenever the two paths disagree or either is already
// Conditional.
func (f FlowStatus) join(other FlowStatus) FlowStatus {
	if f == Conditional || other == Conditional {
		return Conditional
	}
	return AllPaths
}

// sequenceFlow is the merge discipline: when no prior fact exists
// (callers pass hadPrior=false) the new fact's status is taken as is;
// otherwise two AllPaths in sequence stay AllPaths and a Conditional on
// either side stays Conditional.
func sequenceFlow(hadPrior bool, prior, next FlowStatus) FlowStatus {
	if !hadPrior {
		return next
	}
	if prior == Conditional || next == Conditional {
		return Conditional
	}
	return AllPaths
}

// Tracked is the abstract value carried in a register: either an
// ObjectUses, a MergedUses, or the implicit bottom (a nil Tracked).
// NullableTracked never exists as its own variant: it is represented as
// the Nullable flag on a MergedUses.
//
// The fixpoint convergence test (could `other` have arisen from the same
// execution without the answer having widened) lives in the free function
// ConsistentWith below rather than as a method, since it must also handle
// the nil-vs-nil and nil-vs-concrete bottom cases that no method on a
// concrete *ObjectUses/*MergedUses receiver could see.
type Tracked interface {
	tracked()
}

// ObjectUses is produced by exactly one construction instruction. Usage is
// left nil throughout the fixpoint itself (the authoritative per-path usage
// lives in the owning RegisterFile's records map, keyed by this value's
// identity) and is only filled in by the CFG driver once the method's
// analysis has converged, as the final union across every exit state.
type ObjectUses struct {
	Inst        irmodel.Instruction
	Type        irmodel.Type
	CreatedFlow FlowStatus
	Usage       *UsageRecord
}

func (*ObjectUses) tracked() {}

// MergedUses is produced by one of a non-empty set of construction
// instructions; len(Insts) is always >= 2, since a singleton never
// escapes promotion (it collapses back to ObjectUses).
type MergedUses struct {
	Insts       map[irmodel.Instruction]struct{}
	Types       map[irmodel.Type]struct{}
	Nullable    bool
	CreatedFlow FlowStatus
}

func (*MergedUses) tracked() {}

func newMergedUses(insts map[irmodel.Instruction]struct{}, types map[irmodel.Type]struct{}, nullable bool, flow FlowStatus) *MergedUses {
	return &MergedUses{Insts: insts, Types: types, Nullable: nullable, CreatedFlow: flow}
}

// instSet / typeSet are small helpers to build the promotion sets below.
func instSet(is ...irmodel.Instruction) map[irmodel.Instruction]struct{} {
	s := make(map[irmodel.Instruction]struct{}, len(is))
	for _, i := range is {
		s[i] = struct{}{}
	}
	return s
}

func typeSet(ts ...irmodel.Type) map[irmodel.Type]struct{} {
	s := make(map[irmodel.Type]struct{}, len(ts))
	for _, t := range ts {
		s[t] = struct{}{}
	}
	return s
}

// MergeStore interns promoted MergedUses values by their construction-site
// set so that two independent promotions of the same site set converge to
// the same shared record. This is what terminates the CFG fixpoint (see
// SPEC_FULL.md §9).
type MergeStore struct {
	byKey map[string]*MergedUses
}

func NewMergeStore() *MergeStore {
	return &MergeStore{byKey: make(map[string]*MergedUses)}
}

// intern returns the canonical MergedUses for the given instruction set,
// creating and storing one if this exact site set hasn't been seen before.
// Otherwise it extends the existing record in place with any instructions,
// types or flow/nullable bits not yet present, so all holders of the old
// pointer observe the extension.
func (s *MergeStore) intern(insts map[irmodel.Instruction]struct{}, types map[irmodel.Type]struct{}, nullable bool, flow FlowStatus) *MergedUses {
	key := mergeKey(insts)
	if existing, ok := s.byKey[key]; ok {
		for i := range insts {
			existing.Insts[i] = struct{}{}
		}
		for t := range types {
			existing.Types[t] = struct{}{}
		}
		existing.Nullable = existing.Nullable || nullable
		existing.CreatedFlow = existing.CreatedFlow.join(flow)
		return existing
	}
	mu := newMergedUses(insts, types, nullable, flow)
	s.byKey[key] = mu
	return mu
}

// All returns every MergedUses ever promoted through this store.
func (s *MergeStore) All() []*MergedUses {
	out := make([]*MergedUses, 0, len(s.byKey))
	for _, mu := range s.byKey {
		out = append(out, mu)
	}
	return out
}

// mergeKey produces a stable string key for an instruction set by sorting
// on pointer-derived ordinal. Instruction identity is pointer identity, so
// each instruction's address (instructionID) is sorted ascending and the
// sorted addresses are packed, eight little-endian bytes each, into the
// key.
func mergeKey(insts map[irmodel.Instruction]struct{}) string {
	ids := make([]uintptr, 0, len(insts))
	for i := range insts {
		ids = append(ids, instructionID(i))
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	key := make([]byte, 0, len(ids)*8)
	for _, id := range ids {
		key = append(key, byte(id), byte(id>>8), byte(id>>16), byte(id>>24), byte(id>>32), byte(id>>40), byte(id>>48), byte(id>>56))
	}
	return string(key)
}

// CombinePathsValues implements the combine_paths operator for a pair of
// Tracked values observed on two divergent paths into the same register,
// interning any newly-promoted MergedUses through store. Either argument
// may be nil (bottom).
func CombinePathsValues(a, b Tracked, store *MergeStore) Tracked {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		return combineWithBottom(b, store)
	case b == nil:
		return combineWithBottom(a, store)
	}

	switch av := a.(type) {
	case *ObjectUses:
		switch bv := b.(type) {
		case *ObjectUses:
			if av.Inst == bv.Inst {
				return &ObjectUses{Inst: av.Inst, Type: av.Type, CreatedFlow: av.CreatedFlow.join(bv.CreatedFlow)}
			}
			return store.intern(instSet(av.Inst, bv.Inst), typeSet(av.Type, bv.Type), false, av.CreatedFlow.join(bv.CreatedFlow))
		case *MergedUses:
			return combineObjectIntoMerged(av, bv, store)
		}
	case *MergedUses:
		switch bv := b.(type) {
		case *ObjectUses:
			return combineObjectIntoMerged(bv, av, store)
		case *MergedUses:
			return combineMergedMerged(av, bv, store)
		}
	}
	return nil
}

func combineWithBottom(v Tracked, store *MergeStore) Tracked {
	switch vv := v.(type) {
	case *ObjectUses:
		return &ObjectUses{Inst: vv.Inst, Type: vv.Type, CreatedFlow: Conditional}
	case *MergedUses:
		return store.intern(vv.Insts, vv.Types, true, Conditional)
	}
	return nil
}

func combineObjectIntoMerged(o *ObjectUses, m *MergedUses, store *MergeStore) Tracked {
	if _, ok := m.Insts[o.Inst]; ok {
		// Already a member: extend flow/type only.
		insts := make(map[irmodel.Instruction]struct{}, len(m.Insts))
		for i := range m.Insts {
			insts[i] = struct{}{}
		}
		types := typeSet(o.Type)
		for t := range m.Types {
			types[t] = struct{}{}
		}
		return store.intern(insts, types, m.Nullable, m.CreatedFlow.join(o.CreatedFlow))
	}
	merged := make(map[irmodel.Instruction]struct{}, len(m.Insts)+1)
	for i := range m.Insts {
		merged[i] = struct{}{}
	}
	merged[o.Inst] = struct{}{}
	types := make(map[irmodel.Type]struct{}, len(m.Types)+1)
	for t := range m.Types {
		types[t] = struct{}{}
	}
	types[o.Type] = struct{}{}
	return store.intern(merged, types, m.Nullable, m.CreatedFlow.join(o.CreatedFlow))
}

func combineMergedMerged(a, b *MergedUses, store *MergeStore) Tracked {
	merged := make(map[irmodel.Instruction]struct{}, len(a.Insts)+len(b.Insts))
	for i := range a.Insts {
		merged[i] = struct{}{}
	}
	for i := range b.Insts {
		merged[i] = struct{}{}
	}
	types := make(map[irmodel.Type]struct{}, len(a.Types)+len(b.Types))
	for t := range a.Types {
		types[t] = struct{}{}
	}
	for t := range b.Types {
		types[t] = struct{}{}
	}
	return store.intern(merged, types, a.Nullable || b.Nullable, a.CreatedFlow.join(b.CreatedFlow))
}

// sequenceFlow above is the only piece of the merge (sequential
// composition) discipline that survives as its own function: the CFG
// driver never calls a register-file-level merge operator, because
// AnalyzeMethod runs the block analyzer directly against a fork of in(B)
// rather than against an empty register file. Each instruction composes
// its effect onto that fork using sequenceFlow/Record* as it steps, so by
// the time out(B) is produced it already IS in(B) sequentially composed
// with the block's own facts, register by register and instruction by
// instruction, rather than folded in one bulk operation afterward. A
// top-level merge(in(B), out(B)) over that result would be a no-op: see
// DESIGN.md, component E.
//
// ConsistentWith implements the fixpoint convergence test: could `other`
// have arisen from the same execution without widening the answer.
func ConsistentWith(self, other Tracked) bool {
	switch sv := self.(type) {
	case nil:
		// Bottom is the empty set of facts: it is subsumed by anything,
		// including another bottom.
		return true
	case *ObjectUses:
		switch ov := other.(type) {
		case *ObjectUses:
			return sv.Inst == ov.Inst
		case *MergedUses:
			_, ok := ov.Insts[sv.Inst]
			return ok
		}
		return false
	case *MergedUses:
		switch ov := other.(type) {
		case *MergedUses:
			if len(sv.Insts) != len(ov.Insts) {
				return false
			}
			for i := range sv.Insts {
				if _, ok := ov.Insts[i]; !ok {
					return false
				}
			}
			return true
		case *ObjectUses:
			return false
		}
	}
	return false
}
