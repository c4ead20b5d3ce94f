package clinit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redopt/clinit/pkg/irmodel/irfake"
)

func TestCombinePathsValues_SameInstructionStaysObjectUses(t *testing.T) {
	store := NewMergeStore()
	ty := irfake.NewType("Foo")
	inst := irfake.Construct(0, ty)

	a := &ObjectUses{Inst: inst, Type: ty, CreatedFlow: AllPaths}
	b := &ObjectUses{Inst: inst, Type: ty, CreatedFlow: Conditional}

	got := CombinePathsValues(a, b, store)
	obj, ok := got.(*ObjectUses)
	require.True(t, ok)
	assert.Same(t, inst, obj.Inst)
	assert.Equal(t, Conditional, obj.CreatedFlow)
}

func TestCombinePathsValues_DifferentInstructionsPromoteToMerged(t *testing.T) {
	store := NewMergeStore()
	ty := irfake.NewType("Foo")
	i1 := irfake.Construct(0, ty)
	i2 := irfake.Construct(0, ty)

	a := &ObjectUses{Inst: i1, Type: ty, CreatedFlow: AllPaths}
	b := &ObjectUses{Inst: i2, Type: ty, CreatedFlow: AllPaths}

	got := CombinePathsValues(a, b, store)
	merged, ok := got.(*MergedUses)
	require.True(t, ok)
	assert.Len(t, merged.Insts, 2)
	assert.Contains(t, merged.Insts, i1)
	assert.Contains(t, merged.Insts, i2)
}

func TestCombinePathsValues_BottomMarksConditional(t *testing.T) {
	store := NewMergeStore()
	ty := irfake.NewType("Foo")
	inst := irfake.Construct(0, ty)
	a := &ObjectUses{Inst: inst, Type: ty, CreatedFlow: AllPaths}

	got := CombinePathsValues(a, nil, store)
	obj, ok := got.(*ObjectUses)
	require.True(t, ok)
	assert.Equal(t, Conditional, obj.CreatedFlow)
}

func TestMergeStore_InternSharesPointerForSameSiteSet(t *testing.T) {
	store := NewMergeStore()
	ty := irfake.NewType("Foo")
	i1 := irfake.Construct(0, ty)
	i2 := irfake.Construct(0, ty)

	a := &ObjectUses{Inst: i1, Type: ty, CreatedFlow: AllPaths}
	b := &ObjectUses{Inst: i2, Type: ty, CreatedFlow: AllPaths}
	first := CombinePathsValues(a, b, store).(*MergedUses)

	// Promoting the same pair again, even freshly-built ObjectUses values,
	// must converge on the identical *MergedUses pointer: that's what lets
	// RegisterFile-level fixpoint comparisons terminate.
	a2 := &ObjectUses{Inst: i1, Type: ty, CreatedFlow: AllPaths}
	b2 := &ObjectUses{Inst: i2, Type: ty, CreatedFlow: AllPaths}
	second := CombinePathsValues(a2, b2, store).(*MergedUses)

	assert.Same(t, first, second)
}

func TestConsistentWith_ObjectUsesSubsumedByMergedUses(t *testing.T) {
	ty := irfake.NewType("Foo")
	i1 := irfake.Construct(0, ty)
	i2 := irfake.Construct(0, ty)

	single := &ObjectUses{Inst: i1, Type: ty}
	merged := &MergedUses{Insts: instSet(i1, i2), Types: typeSet(ty)}

	assert.True(t, ConsistentWith(single, merged))
	assert.False(t, ConsistentWith(merged, single))
}

func TestConsistentWith_NilIsBottom(t *testing.T) {
	ty := irfake.NewType("Foo")
	obj := &ObjectUses{Inst: irfake.Construct(0, ty), Type: ty}

	assert.True(t, ConsistentWith(nil, nil))
	assert.True(t, ConsistentWith(nil, obj))
	assert.False(t, ConsistentWith(obj, nil))
}
