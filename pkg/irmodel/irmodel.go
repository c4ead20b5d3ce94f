// Package irmodel defines the opaque intermediate-representation surface
// that the ClassInitCounter analysis and its callers consume. It is
// deliberately minimal: loading real program bytecode, resolving archives,
// and building this model from on-disk input are the job of a separate,
// external loader. Everything here is read-only during analysis.
package irmodel

// Category classifies an instruction for the purposes of the block
// analyzer (component D). Instructions outside this enum's intent are
// mapped to CategoryOther and treated as opaque.
type Category int

const (
	CategoryOther Category = iota
	CategoryConstruct
	CategoryMove
	CategoryFieldRead
	CategoryFieldWrite
	CategoryInvokeVirtual
	CategoryInvokeStatic
	CategoryReturn
	CategoryArrayStore
	CategoryBranch
)

func (c Category) String() string {
	switch c {
	case CategoryConstruct:
		return "construct"
	case CategoryMove:
		return "move"
	case CategoryFieldRead:
		return "field-read"
	case CategoryFieldWrite:
		return "field-write"
	case CategoryInvokeVirtual:
		return "invoke-virtual"
	case CategoryInvokeStatic:
		return "invoke-static"
	case CategoryReturn:
		return "return"
	case CategoryArrayStore:
		return "array-store"
	case CategoryBranch:
		return "branch"
	default:
		return "other"
	}
}

// Type is an opaque, pointer-identity-stable handle to a type in the
// program. Two Types are the same type iff they are the same pointer.
type Type interface {
	Name() string
}

// Field is an opaque, pointer-identity-stable handle to a field
// declaration.
type Field interface {
	Name() string
	DeclaringType() Type
}

// MethodRef is an opaque, pointer-identity-stable handle to a method
// reference (the callee named by an invoke instruction, which may or may
// not resolve to a Method defined in this program).
type MethodRef interface {
	Name() string
	DeclaringType() Type
}

// Instruction is a single bytecode instruction. Identity is by pointer:
// the same *construction* instruction seen again through a loop back-edge
// is the same Instruction, which is what lets the init index (component F)
// key entries by instruction identity across fixpoint iterations.
type Instruction interface {
	Category() Category

	// ConstructedType returns the type constructed by a CategoryConstruct
	// instruction. Meaningless for other categories.
	ConstructedType() Type

	// Field returns the field referenced by a CategoryFieldRead or
	// CategoryFieldWrite instruction. Meaningless for other categories.
	Field() Field

	// MethodRef returns the method referenced by a CategoryInvokeVirtual
	// or CategoryInvokeStatic instruction. Meaningless for other
	// categories.
	MethodRef() MethodRef

	// DestRegister returns the register this instruction defines, and
	// whether it defines one at all (e.g. a return defines none).
	DestRegister() (reg int, ok bool)

	// SrcRegisters returns the registers this instruction reads from, in
	// a category-dependent, fixed order:
	//
	//   CategoryMove:          [srcReg]
	//   CategoryFieldWrite:    [receiverReg, valueReg]
	//   CategoryFieldRead:     [receiverReg]
	//   CategoryInvokeVirtual: [receiverReg, arg0, arg1, ...]
	//   CategoryInvokeStatic:  [arg0, arg1, ...]
	//   CategoryReturn:        [valueReg] or [] for a void return
	//   CategoryArrayStore:    [arrayReg, indexReg, valueReg]
	//   CategoryConstruct:     []
	SrcRegisters() []int

	// NullChecked reports whether this is a conditional null comparison
	// on the given register, and if so, which successor block index (0
	// or 1 in a two-way branch) corresponds to "proven null".
	NullChecked() (reg int, nullSucc int, ok bool)
}

// Block is a basic block: a straight-line run of instructions with a
// single entry and a set of successor blocks.
type Block interface {
	Instructions() []Instruction
	Successors() []Block
}

// CFG is a method's control-flow graph.
type CFG interface {
	Entry() Block
}

// Method is a single method of a Class.
type Method interface {
	Name() string
	CFG() (CFG, bool) // ok=false when the method has no code (abstract/native)
}

// Class is a single class/type declaration with its methods.
type Class interface {
	Type() Type
	Super() (Type, bool)
	Methods() []Method
}

// Program is the full set of classes under analysis. It may be split
// across independent Units (e.g. one per input archive/dex file) that can
// be scanned concurrently; Units is never empty when Classes is non-empty.
type Program interface {
	Classes() []Class
	Units() []Unit
}

// Unit is an independently-scannable grouping of classes within a
// Program, used only to parallelize work that must touch every class
// (such as resolving configured safe-escape references) across program
// shards.
type Unit interface {
	Classes() []Class
}

// Hierarchy answers type-hierarchy queries against a Program.
type Hierarchy interface {
	// IsDescendant reports whether t is parent or a (possibly indirect)
	// subtype of parent.
	IsDescendant(t Type, parent Type) bool
}
