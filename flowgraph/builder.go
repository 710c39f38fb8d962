package flowgraph

import (
	"fmt"
	"math/big"
)

// NewFunc returns a new function with the given parameters
// and an empty entry block.
func NewFunc(name string, parms ...*ParmDef) *FuncDef {
	f := &FuncDef{Name: name, Parms: parms}
	f.NewBlock("entry")
	return f
}

// NewBlock adds a new, empty block to the end of the arena.
func (f *FuncDef) NewBlock(name string) *BasicBlock {
	b := &BasicBlock{ID: BlockID(len(f.Blocks)), Name: name, Func: f}
	f.Blocks = append(f.Blocks, b)
	return b
}

// Parm returns the value of the i'th parameter.
// The value is materialized at the start of the entry block
// the first time it is requested.
func (f *FuncDef) Parm(i int) *Parm {
	def := f.Parms[i]
	entry := f.Blocks[0]
	for _, r := range entry.Instrs {
		if p, ok := r.(*Parm); ok && p.Def == def {
			return p
		}
	}
	p := &Parm{Def: def}
	f.number(p)
	var n int
	for n < len(entry.Instrs) {
		if _, ok := entry.Instrs[n].(*Parm); !ok {
			break
		}
		n++
	}
	entry.Instrs = insertAt(entry.Instrs, n, p)
	return p
}

// ParmNamed returns the value of the named parameter, or nil.
func (f *FuncDef) ParmNamed(name string) *Parm {
	for i, p := range f.Parms {
		if p.Name == name {
			return f.Parm(i)
		}
	}
	return nil
}

func (f *FuncDef) number(v Value) {
	v.setNum(f.nextNum)
	f.nextNum++
}

// Renumber assigns value numbers in block order.
func (f *FuncDef) Renumber() {
	f.nextNum = 0
	for _, b := range f.Blocks {
		for _, r := range b.Instrs {
			if v, ok := r.(Value); ok {
				f.number(v)
			}
		}
	}
}

// SplitBlock moves the instructions of b from index at onward
// into a new block and terminates b with a jump to the new block.
// Phis in the successors of the moved terminator
// are updated to flow from the new block.
func (f *FuncDef) SplitBlock(b *BasicBlock, at int, name string) *BasicBlock {
	if at < 0 || at > len(b.Instrs) {
		panic(fmt.Sprintf("%s: split of block %d at %d of %d", f.Name, b.ID, at, len(b.Instrs)))
	}
	tail := f.NewBlock(name)
	tail.Instrs = append([]Instruction{}, b.Instrs[at:]...)
	b.Instrs = append(b.Instrs[:at:at], &Jump{Dst: tail.ID})
	for _, o := range tail.Out() {
		for _, r := range f.Blocks[o].Instrs {
			if p, ok := r.(*Phi); ok {
				p.subBlocks(map[BlockID]BlockID{b.ID: tail.ID})
			}
		}
	}
	return tail
}

// Remove deletes r from the function.
// It panics if r is not in the function.
func (f *FuncDef) Remove(r Instruction) {
	b, i := f.Find(r)
	if b == nil {
		panic(fmt.Sprintf("%s: removing instruction not in function: %s", f.Name, r))
	}
	b.Instrs = append(b.Instrs[:i], b.Instrs[i+1:]...)
}

// SetTerminal replaces the terminal instruction of b.
func (b *BasicBlock) SetTerminal(t Terminal) {
	if b.Terminal() == nil {
		b.Instrs = append(b.Instrs, t)
		return
	}
	b.Instrs[len(b.Instrs)-1] = t
}

func insertAt(rs []Instruction, i int, r Instruction) []Instruction {
	rs = append(rs, nil)
	copy(rs[i+1:], rs[i:])
	rs[i] = r
	return rs
}

// A Builder inserts new instructions into a block.
type Builder struct {
	Func  *FuncDef
	Block *BasicBlock
	// at is the index at which the next instruction is inserted.
	// If at < 0, instructions are appended.
	at int
}

// AtEnd returns a Builder appending to the end of b.
func AtEnd(b *BasicBlock) *Builder {
	return &Builder{Func: b.Func, Block: b, at: -1}
}

// Before returns a Builder inserting before r.
// It panics if r is not in f.
func Before(f *FuncDef, r Instruction) *Builder {
	b, i := f.Find(r)
	if b == nil {
		panic(fmt.Sprintf("%s: no instruction %s", f.Name, r))
	}
	return &Builder{Func: f, Block: b, at: i}
}

// BeforeTerminal returns a Builder inserting before the terminal of b.
func BeforeTerminal(b *BasicBlock) *Builder {
	if b.Terminal() == nil {
		return AtEnd(b)
	}
	return &Builder{Func: b.Func, Block: b, at: len(b.Instrs) - 1}
}

func (bld *Builder) add(r Instruction) {
	if v, ok := r.(Value); ok {
		bld.Func.number(v)
	}
	if bld.at < 0 {
		bld.Block.Instrs = append(bld.Block.Instrs, r)
		return
	}
	bld.Block.Instrs = insertAt(bld.Block.Instrs, bld.at, r)
	bld.at++
}

// IntConst returns a new integer constant of type t.
func (bld *Builder) IntConst(t Type, x uint64) *Int {
	it, ok := t.(*IntType)
	if !ok {
		panic(fmt.Sprintf("integer constant of non-integer type %s", t))
	}
	v := &Int{T: *it, Val: new(big.Int).SetUint64(x)}
	bld.add(v)
	return v
}

// Add adds a constant or other value-only instruction
// built elsewhere, such as an Aggregate.
func (bld *Builder) Add(v Value) Value {
	bld.add(v)
	return v
}

func (bld *Builder) Alloc(size, align int) *Alloc {
	v := &Alloc{Size: size, Align: align}
	bld.add(v)
	return v
}

// Cast returns src reinterpreted as an address of elem.
// If src already has that type, src is returned
// and no instruction is added.
func (bld *Builder) Cast(src Value, elem Type) Value {
	t := &AddrType{Elem: elem, Space: Space(src.Type())}
	if EqType(src.Type(), t) {
		return src
	}
	v := &Cast{Src: src, T: t}
	bld.add(v)
	return v
}

func (bld *Builder) Index(base, index Value) *Index {
	if _, ok := base.Type().(*AddrType); !ok {
		panic(fmt.Sprintf("index of non-address %s", base.Type()))
	}
	v := &Index{Base: base, Index: index}
	bld.add(v)
	return v
}

func (bld *Builder) Load(addr Value, align int, volatile bool) *Load {
	v := &Load{Addr: addr, T: Elem(addr.Type()), Align: align, Volatile: volatile}
	bld.add(v)
	return v
}

func (bld *Builder) Store(dst, src Value, align int, volatile bool) *Store {
	r := &Store{Dst: dst, Src: src, Align: align, Volatile: volatile}
	bld.add(r)
	return r
}

func (bld *Builder) Op(op OpKind, x, y Value) *Op {
	t := x.Type()
	switch op {
	case Eq, Neq, Less:
		t = Bool()
	}
	v := &Op{Op: op, Args: []Value{x, y}, T: t}
	bld.add(v)
	return v
}

// Phi returns a new phi of type t.
// Phis are always placed before any non-phi instruction.
func (bld *Builder) Phi(t Type) *Phi {
	v := &Phi{T: t}
	bld.Func.number(v)
	var n int
	for n < len(bld.Block.Instrs) {
		if _, ok := bld.Block.Instrs[n].(*Phi); !ok {
			break
		}
		n++
	}
	bld.Block.Instrs = insertAt(bld.Block.Instrs, n, v)
	if bld.at >= n {
		bld.at++
	}
	return v
}

func (bld *Builder) MemCpy(dst, src, n Value, dstAlign, srcAlign int) *MemCpy {
	r := &MemCpy{Dst: dst, Src: src, Len: n, DstAlign: dstAlign, SrcAlign: srcAlign}
	bld.add(r)
	return r
}

func (bld *Builder) MemMove(dst, src, n Value, dstAlign, srcAlign int) *MemMove {
	r := &MemMove{Dst: dst, Src: src, Len: n, DstAlign: dstAlign, SrcAlign: srcAlign}
	bld.add(r)
	return r
}

func (bld *Builder) MemSet(dst, n, val Value, align int) *MemSet {
	r := &MemSet{Dst: dst, Len: n, Val: val, Align: align}
	bld.add(r)
	return r
}

// If terminates the block with a conditional branch,
// replacing any existing terminal.
func (bld *Builder) If(cond Value, yes, no *BasicBlock) *If {
	r := &If{Cond: cond, Yes: yes.ID, No: no.ID}
	bld.Block.SetTerminal(r)
	return r
}

// Jump terminates the block with a jump,
// replacing any existing terminal.
func (bld *Builder) Jump(dst *BasicBlock) *Jump {
	r := &Jump{Dst: dst.ID}
	bld.Block.SetTerminal(r)
	return r
}

// Return terminates the block with a return,
// replacing any existing terminal.
func (bld *Builder) Return() *Return {
	r := &Return{}
	bld.Block.SetTerminal(r)
	return r
}
