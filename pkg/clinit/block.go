package clinit

import (
	"github.com/sirupsen/logrus"

	"github.com/redopt/clinit/pkg/irmodel"
)

// BlockAnalyzer is the transfer function for one basic block: it mutates
// a RegisterFile in place, instruction by instruction, turning the
// block's entry state into its exit state.
type BlockAnalyzer struct {
	Hierarchy   irmodel.Hierarchy
	Root        irmodel.Type
	SafeEscapes SafeEscapeSet
	Store       *MergeStore
	Index       *InitIndex
	Class       irmodel.Type
	Method      string
	Log         *logrus.Entry

	// objCache holds one *ObjectUses per construction instruction, reused
	// across every fixpoint iteration of this method's analysis. Without
	// this, each iteration would mint a fresh pointer for the same
	// construction site, and the records maps inside RegisterFile (keyed
	// by Tracked identity) would never line up between iterations, so the
	// convergence check in ConsistentWithRegisterFile could never succeed.
	objCache map[irmodel.Instruction]*ObjectUses
}

// NewBlockAnalyzer constructs a BlockAnalyzer with its per-method
// construction-site cache initialized.
func NewBlockAnalyzer(hierarchy irmodel.Hierarchy, root irmodel.Type, safe SafeEscapeSet, store *MergeStore, index *InitIndex, class irmodel.Type, method string, log *logrus.Entry) *BlockAnalyzer {
	return &BlockAnalyzer{
		Hierarchy:   hierarchy,
		Root:        root,
		SafeEscapes: safe,
		Store:       store,
		Index:       index,
		Class:       class,
		Method:      method,
		Log:         log,
		objCache:    make(map[irmodel.Instruction]*ObjectUses),
	}
}

// Run applies every instruction in block to rf and returns rf (the same
// RegisterFile, mutated), which becomes the block's out(B).
func (ba *BlockAnalyzer) Run(rf *RegisterFile, block irmodel.Block) *RegisterFile {
	for _, inst := range block.Instructions() {
		ba.step(rf, inst)
	}
	return rf
}

func (ba *BlockAnalyzer) step(rf *RegisterFile, inst irmodel.Instruction) {
	switch inst.Category() {
	case irmodel.CategoryConstruct:
		ba.stepConstruct(rf, inst)
	case irmodel.CategoryMove:
		ba.stepMove(rf, inst)
	case irmodel.CategoryFieldWrite:
		ba.stepFieldWrite(rf, inst)
	case irmodel.CategoryFieldRead:
		ba.stepFieldRead(rf, inst)
	case irmodel.CategoryInvokeVirtual:
		ba.stepInvokeVirtual(rf, inst)
	case irmodel.CategoryInvokeStatic:
		ba.stepInvokeStatic(rf, inst)
	case irmodel.CategoryReturn:
		ba.stepReturn(rf, inst)
	case irmodel.CategoryArrayStore:
		ba.stepArrayStore(rf, inst)
	default:
		// Branches and anything else opaque to this analysis neither
		// construct nor observe a tracked value directly; the only
		// bookkeeping needed is clearing a defined register, and most
		// such instructions don't even define one.
		if reg, ok := inst.DestRegister(); ok {
			rf.Clear(reg)
		}
	}
}

func (ba *BlockAnalyzer) stepConstruct(rf *RegisterFile, inst irmodel.Instruction) {
	t := inst.ConstructedType()
	reg, hasDest := inst.DestRegister()
	if t == nil || !ba.Hierarchy.IsDescendant(t, ba.Root) {
		if hasDest {
			rf.Clear(reg)
		}
		return
	}
	obj, ok := ba.objCache[inst]
	if !ok {
		obj = &ObjectUses{Inst: inst, Type: t, CreatedFlow: AllPaths}
		ba.objCache[inst] = obj
		if ba.Index != nil {
			ba.Index.AddInit(ba.Class, ba.Method, inst, obj)
		}
	}
	if hasDest {
		rf.Set(reg, obj)
	}
	rf.Record(obj)
}

func (ba *BlockAnalyzer) stepMove(rf *RegisterFile, inst irmodel.Instruction) {
	reg, hasDest := inst.DestRegister()
	if !hasDest {
		return
	}
	srcs := inst.SrcRegisters()
	if len(srcs) == 0 {
		rf.Clear(reg)
		return
	}
	rf.Set(reg, rf.Get(srcs[0]))
}

// stepFieldWrite handles a store into a field. Two distinct cases apply,
// tried in order: the stored value itself being tracked takes priority
// over the receiver being tracked, since a tracked object stored into an
// arbitrary field is the more significant event (an escape) regardless
// of what else holds it.
func (ba *BlockAnalyzer) stepFieldWrite(rf *RegisterFile, inst irmodel.Instruction) {
	srcs := inst.SrcRegisters()
	if len(srcs) < 2 {
		return
	}
	receiverReg, valueReg := srcs[0], srcs[1]
	field := inst.Field()

	if stored := rf.Get(valueReg); stored != nil {
		valReg := valueReg
		rf.Record(stored).RecordWrite(field, inst, &valReg, AllPaths)
		rf.Record(stored).RecordEscape(ViaFieldStore, inst, field, nil)
		return
	}

	if receiver := rf.Get(receiverReg); receiver != nil {
		valReg := valueReg
		rf.Record(receiver).RecordWrite(field, inst, &valReg, AllPaths)
	}
}

func (ba *BlockAnalyzer) stepFieldRead(rf *RegisterFile, inst irmodel.Instruction) {
	srcs := inst.SrcRegisters()
	if len(srcs) >= 1 {
		if receiver := rf.Get(srcs[0]); receiver != nil {
			rf.Record(receiver).RecordRead(inst.Field(), AllPaths)
		}
	}
	// A field load is never itself treated as a construction, even when
	// the loaded value's static type is within the tracked hierarchy.
	if reg, ok := inst.DestRegister(); ok {
		rf.Clear(reg)
	}
}

func (ba *BlockAnalyzer) stepInvokeVirtual(rf *RegisterFile, inst irmodel.Instruction) {
	srcs := inst.SrcRegisters()
	method := inst.MethodRef()
	if len(srcs) >= 1 {
		receiverReg := srcs[0]
		if receiver := rf.Get(receiverReg); receiver != nil {
			rf.Record(receiver).RecordCall(method, inst, receiverReg, AllPaths)
		}
		for _, argReg := range srcs[1:] {
			ba.recordCallEscape(rf, argReg, inst, method, ViaVirtualCall)
		}
	}
	if reg, ok := inst.DestRegister(); ok {
		rf.Clear(reg)
	}
}

func (ba *BlockAnalyzer) stepInvokeStatic(rf *RegisterFile, inst irmodel.Instruction) {
	method := inst.MethodRef()
	for _, argReg := range inst.SrcRegisters() {
		ba.recordCallEscape(rf, argReg, inst, method, ViaStaticCall)
	}
	if reg, ok := inst.DestRegister(); ok {
		rf.Clear(reg)
	}
}

func (ba *BlockAnalyzer) recordCallEscape(rf *RegisterFile, reg int, inst irmodel.Instruction, method irmodel.MethodRef, channel EscapeChannel) {
	arg := rf.Get(reg)
	if arg == nil {
		return
	}
	if ba.SafeEscapes.Contains(method) {
		rf.Record(arg).RecordSafeEscape(channel, inst, nil, method)
		return
	}
	rf.Record(arg).RecordEscape(channel, inst, nil, method)
}

func (ba *BlockAnalyzer) stepReturn(rf *RegisterFile, inst irmodel.Instruction) {
	srcs := inst.SrcRegisters()
	if len(srcs) == 0 {
		return
	}
	if v := rf.Get(srcs[0]); v != nil {
		rf.Record(v).RecordEscape(ViaReturn, inst, nil, nil)
	}
}

func (ba *BlockAnalyzer) stepArrayStore(rf *RegisterFile, inst irmodel.Instruction) {
	srcs := inst.SrcRegisters()
	if len(srcs) < 3 {
		return
	}
	valueReg := srcs[2]
	if v := rf.Get(valueReg); v != nil {
		rf.Record(v).RecordEscape(ViaArrayStore, inst, nil, nil)
	}
}
