// Package irfake is an in-memory, hand-assembled implementation of
// pkg/irmodel, used by tests in place of a real bytecode loader. There is
// no on-disk format here: tests build a CFG directly out of these structs.
package irfake

import "github.com/redopt/clinit/pkg/irmodel"

// Type is a named, pointer-identity-stable type handle.
type Type struct {
	NameVal string
}

func (t *Type) Name() string { return t.NameVal }

// NewType returns a fresh Type. Two calls with the same name are still
// distinct types, matching the pointer-identity contract in irmodel.
func NewType(name string) *Type { return &Type{NameVal: name} }

// Field is a field declaration.
type Field struct {
	NameVal string
	Decl    *Type
}

func (f *Field) Name() string               { return f.NameVal }
func (f *Field) DeclaringType() irmodel.Type { return f.Decl }

func NewField(decl *Type, name string) *Field { return &Field{NameVal: name, Decl: decl} }

// MethodRef is a callee reference as seen from an invoke instruction.
type MethodRef struct {
	NameVal string
	Decl    *Type
}

func (m *MethodRef) Name() string               { return m.NameVal }
func (m *MethodRef) DeclaringType() irmodel.Type { return m.Decl }

func NewMethodRef(decl *Type, name string) *MethodRef { return &MethodRef{NameVal: name, Decl: decl} }

// Instruction is a single fake bytecode instruction. Build one with the
// category-specific constructors below rather than the struct literal
// directly, since field meaning depends on Cat.
type Instruction struct {
	Cat           irmodel.Category
	ConstructType *Type
	FieldVal      *Field
	MethodVal     *MethodRef
	Dest          *int
	Srcs          []int
	NullCheck     bool
	NullReg       int
	NullSucc      int
}

func (i *Instruction) Category() irmodel.Category { return i.Cat }

func (i *Instruction) ConstructedType() irmodel.Type {
	if i.ConstructType == nil {
		return nil
	}
	return i.ConstructType
}

func (i *Instruction) Field() irmodel.Field {
	if i.FieldVal == nil {
		return nil
	}
	return i.FieldVal
}

func (i *Instruction) MethodRef() irmodel.MethodRef {
	if i.MethodVal == nil {
		return nil
	}
	return i.MethodVal
}

func (i *Instruction) DestRegister() (int, bool) {
	if i.Dest == nil {
		return 0, false
	}
	return *i.Dest, true
}

func (i *Instruction) SrcRegisters() []int { return i.Srcs }

func (i *Instruction) NullChecked() (int, int, bool) {
	if !i.NullCheck {
		return 0, 0, false
	}
	return i.NullReg, i.NullSucc, true
}

func intp(v int) *int { return &v }

// Construct builds a CategoryConstruct instruction that defines dest.
func Construct(dest int, t *Type) *Instruction {
	return &Instruction{Cat: irmodel.CategoryConstruct, ConstructType: t, Dest: intp(dest)}
}

// Move builds a CategoryMove instruction copying src into dest.
func Move(dest, src int) *Instruction {
	return &Instruction{Cat: irmodel.CategoryMove, Dest: intp(dest), Srcs: []int{src}}
}

// FieldWrite builds a CategoryFieldWrite instruction storing the value in
// valueReg into f on the object in receiverReg.
func FieldWrite(receiverReg, valueReg int, f *Field) *Instruction {
	return &Instruction{Cat: irmodel.CategoryFieldWrite, FieldVal: f, Srcs: []int{receiverReg, valueReg}}
}

// FieldRead builds a CategoryFieldRead instruction loading f off the
// object in receiverReg into dest.
func FieldRead(dest, receiverReg int, f *Field) *Instruction {
	return &Instruction{Cat: irmodel.CategoryFieldRead, FieldVal: f, Dest: intp(dest), Srcs: []int{receiverReg}}
}

// InvokeVirtual builds a CategoryInvokeVirtual instruction. dest may be
// nil for a call whose result is discarded.
func InvokeVirtual(dest *int, receiverReg int, args []int, m *MethodRef) *Instruction {
	srcs := append([]int{receiverReg}, args...)
	return &Instruction{Cat: irmodel.CategoryInvokeVirtual, MethodVal: m, Dest: dest, Srcs: srcs}
}

// InvokeStatic builds a CategoryInvokeStatic instruction.
func InvokeStatic(dest *int, args []int, m *MethodRef) *Instruction {
	return &Instruction{Cat: irmodel.CategoryInvokeStatic, MethodVal: m, Dest: dest, Srcs: args}
}

// Return builds a CategoryReturn instruction. Pass nil for a void return.
func Return(srcReg *int) *Instruction {
	if srcReg == nil {
		return &Instruction{Cat: irmodel.CategoryReturn}
	}
	return &Instruction{Cat: irmodel.CategoryReturn, Srcs: []int{*srcReg}}
}

// ArrayStore builds a CategoryArrayStore instruction storing valueReg into
// arrayReg at indexReg.
func ArrayStore(arrayReg, indexReg, valueReg int) *Instruction {
	return &Instruction{Cat: irmodel.CategoryArrayStore, Srcs: []int{arrayReg, indexReg, valueReg}}
}

// NullBranch builds a CategoryBranch instruction testing testReg against
// null, with nullSucc naming which successor index is taken when null.
func NullBranch(testReg, nullSucc int) *Instruction {
	return &Instruction{Cat: irmodel.CategoryBranch, NullCheck: true, NullReg: testReg, NullSucc: nullSucc}
}

// Block is a basic block built by hand: a fixed instruction list and a
// fixed successor list, wired up after construction since blocks often
// refer to each other cyclically (loop back-edges).
type Block struct {
	Insts []irmodel.Instruction
	Succs []*Block
}

func NewBlock(insts ...irmodel.Instruction) *Block { return &Block{Insts: insts} }

func (b *Block) Instructions() []irmodel.Instruction { return b.Insts }

func (b *Block) Successors() []irmodel.Block {
	out := make([]irmodel.Block, len(b.Succs))
	for i, s := range b.Succs {
		out[i] = s
	}
	return out
}

// SetSuccessors wires b's successors after all blocks in a CFG exist,
// which is what lets two blocks point at each other.
func (b *Block) SetSuccessors(succs ...*Block) { b.Succs = succs }

// CFG wraps a single entry Block.
type CFG struct {
	EntryBlock *Block
}

func NewCFG(entry *Block) *CFG { return &CFG{EntryBlock: entry} }

func (c *CFG) Entry() irmodel.Block { return c.EntryBlock }

// Method is a named method with an optional CFG (nil means abstract or
// native, matching irmodel.Method.CFG's ok=false case).
type Method struct {
	NameVal string
	CFGVal  *CFG
}

func NewMethod(name string, cfg *CFG) *Method { return &Method{NameVal: name, CFGVal: cfg} }

func (m *Method) Name() string { return m.NameVal }

func (m *Method) CFG() (irmodel.CFG, bool) {
	if m.CFGVal == nil {
		return nil, false
	}
	return m.CFGVal, true
}

// Class is a class declaration with an optional superclass and methods.
type Class struct {
	TypeVal    *Type
	SuperVal   *Type
	MethodsVal []*Method
}

func NewClass(t *Type, super *Type, methods ...*Method) *Class {
	return &Class{TypeVal: t, SuperVal: super, MethodsVal: methods}
}

func (c *Class) Type() irmodel.Type { return c.TypeVal }

func (c *Class) Super() (irmodel.Type, bool) {
	if c.SuperVal == nil {
		return nil, false
	}
	return c.SuperVal, true
}

func (c *Class) Methods() []irmodel.Method {
	out := make([]irmodel.Method, len(c.MethodsVal))
	for i, m := range c.MethodsVal {
		out[i] = m
	}
	return out
}

// Unit groups a subset of a Program's classes for independent scanning.
type Unit struct {
	ClassesVal []*Class
}

func NewUnit(classes ...*Class) *Unit { return &Unit{ClassesVal: classes} }

func (u *Unit) Classes() []irmodel.Class {
	out := make([]irmodel.Class, len(u.ClassesVal))
	for i, c := range u.ClassesVal {
		out[i] = c
	}
	return out
}

// Program is the full fake program: every class, and the units it's split
// across. A Program built with a single implicit unit via NewProgram puts
// every class in one Unit.
type Program struct {
	AllClasses []*Class
	UnitsVal   []*Unit
}

// NewProgram builds a single-unit Program containing every class given.
func NewProgram(classes ...*Class) *Program {
	return &Program{AllClasses: classes, UnitsVal: []*Unit{NewUnit(classes...)}}
}

// NewShardedProgram builds a Program whose classes are already split
// across the given units, for tests exercising concurrent per-unit
// discovery.
func NewShardedProgram(units ...*Unit) *Program {
	p := &Program{UnitsVal: units}
	for _, u := range units {
		p.AllClasses = append(p.AllClasses, u.ClassesVal...)
	}
	return p
}

func (p *Program) Classes() []irmodel.Class {
	out := make([]irmodel.Class, len(p.AllClasses))
	for i, c := range p.AllClasses {
		out[i] = c
	}
	return out
}

func (p *Program) Units() []irmodel.Unit {
	out := make([]irmodel.Unit, len(p.UnitsVal))
	for i, u := range p.UnitsVal {
		out[i] = u
	}
	return out
}

// Hierarchy answers IsDescendant by walking Program.AllClasses's Super
// chain. It does not handle interfaces or multiple inheritance, since the
// fake IR has no notion of either.
type Hierarchy struct {
	Prog *Program
}

func NewHierarchy(p *Program) *Hierarchy { return &Hierarchy{Prog: p} }

func (h *Hierarchy) IsDescendant(t irmodel.Type, parent irmodel.Type) bool {
	cur := t
	for cur != nil {
		if cur == parent {
			return true
		}
		cls := h.findClass(cur)
		if cls == nil {
			return false
		}
		super, ok := cls.Super()
		if !ok {
			return false
		}
		cur = super
	}
	return false
}

func (h *Hierarchy) findClass(t irmodel.Type) *Class {
	for _, c := range h.Prog.AllClasses {
		if c.TypeVal == t {
			return c
		}
	}
	return nil
}
