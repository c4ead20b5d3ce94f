package clinit

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redopt/clinit/pkg/irmodel/irfake"
)

// A construction reachable through only one arm of an if/else should end up
// Conditional once the two arms rejoin.
func TestAnalyzeMethod_ConstructionInOneBranchOnly(t *testing.T) {
	root := irfake.NewType("Tracked")
	prog := irfake.NewProgram(irfake.NewClass(root, nil))
	index := NewInitIndex()
	ba := NewBlockAnalyzer(irfake.NewHierarchy(prog), root, nil, NewMergeStore(), index, root, "m", logrus.NewEntry(logrus.New()))

	entry := irfake.NewBlock(irfake.NullBranch(9, 1))
	thenBlock := irfake.NewBlock(irfake.Construct(0, root))
	elseBlock := irfake.NewBlock()
	join := irfake.NewBlock(irfake.Return(nil))

	entry.SetSuccessors(thenBlock, elseBlock)
	thenBlock.SetSuccessors(join)
	elseBlock.SetSuccessors(join)

	cfg := irfake.NewCFG(entry)
	final := AnalyzeMethod(ba, cfg)

	objs := index.ForType(root, "m")
	require.Len(t, objs, 1)

	joined, ok := final.Get(0).(*ObjectUses)
	require.True(t, ok)
	assert.Same(t, objs[0].Inst, joined.Inst)
	assert.Equal(t, Conditional, joined.CreatedFlow)
}

// A construction inside a loop body must converge: the fixpoint driver
// should terminate well under the iteration cap, and the loop-carried
// register should still resolve to the same ObjectUses after the back-edge.
func TestAnalyzeMethod_LoopConverges(t *testing.T) {
	root := irfake.NewType("Tracked")
	prog := irfake.NewProgram(irfake.NewClass(root, nil))
	index := NewInitIndex()
	ba := NewBlockAnalyzer(irfake.NewHierarchy(prog), root, nil, NewMergeStore(), index, root, "loop", logrus.NewEntry(logrus.New()))

	preheader := irfake.NewBlock()
	header := irfake.NewBlock(irfake.NullBranch(9, 1))
	body := irfake.NewBlock(irfake.Construct(0, root))
	exit := irfake.NewBlock(irfake.Return(nil))

	preheader.SetSuccessors(header)
	header.SetSuccessors(body, exit)
	body.SetSuccessors(header) // back-edge

	cfg := irfake.NewCFG(preheader)
	final := AnalyzeMethod(ba, cfg)
	require.NotNil(t, final)

	objs := index.ForType(root, "loop")
	require.Len(t, objs, 1)
	require.NotNil(t, objs[0].Usage)
	assert.Equal(t, 1, index.Count(root, "loop"))
}

// A straight-line method with a single unconditional construction and use
// stays AllPaths throughout.
func TestAnalyzeMethod_StraightLineStaysAllPaths(t *testing.T) {
	root := irfake.NewType("Tracked")
	prog := irfake.NewProgram(irfake.NewClass(root, nil))
	index := NewInitIndex()
	ba := NewBlockAnalyzer(irfake.NewHierarchy(prog), root, nil, NewMergeStore(), index, root, "straight", logrus.NewEntry(logrus.New()))
	field := irfake.NewField(root, "x")

	entry := irfake.NewBlock(
		irfake.Construct(0, root),
		irfake.FieldRead(1, 0, field),
		irfake.Return(nil),
	)
	cfg := irfake.NewCFG(entry)
	final := AnalyzeMethod(ba, cfg)

	objs := index.ForType(root, "straight")
	require.Len(t, objs, 1)
	obj := objs[0]
	assert.Equal(t, AllPaths, obj.CreatedFlow)
	require.NotNil(t, obj.Usage)
	assert.Equal(t, AllPaths, obj.Usage.Reads[field])
	_ = final
}
