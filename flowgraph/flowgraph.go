package flowgraph

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

type Mod struct {
	Path   string
	Layout Layout
	Funcs  []*FuncDef
}

type FuncDef struct {
	Comment string
	Name    string
	Parms   []*ParmDef
	// Blocks is the arena of basic blocks.
	// A block's ID is its index in Blocks,
	// and Blocks[0] is the entry block.
	Blocks []*BasicBlock
	// nextNum is the next value number to assign.
	nextNum int
}

type ParmDef struct {
	Name string
	Type Type
	// NoAlias is whether the parameter is known
	// not to alias any other pointer visible to the function.
	NoAlias bool
}

// BlockID identifies a BasicBlock within its FuncDef.
type BlockID int

type BasicBlock struct {
	ID     BlockID
	Name   string
	Func   *FuncDef
	Instrs []Instruction
}

// Terminal returns the block's final instruction,
// or nil if the block is not terminated.
func (b *BasicBlock) Terminal() Terminal {
	if len(b.Instrs) == 0 {
		return nil
	}
	t, _ := b.Instrs[len(b.Instrs)-1].(Terminal)
	return t
}

// Out returns the successor blocks.
func (b *BasicBlock) Out() []BlockID {
	if t := b.Terminal(); t != nil {
		return t.Out()
	}
	return nil
}

// Index returns the position of r in the block,
// or -1 if it is not in the block.
func (b *BasicBlock) Index(r Instruction) int {
	for i, x := range b.Instrs {
		if x == r {
			return i
		}
	}
	return -1
}

// Block returns the block with the given ID.
func (f *FuncDef) Block(id BlockID) *BasicBlock {
	if id < 0 || int(id) >= len(f.Blocks) {
		panic(fmt.Sprintf("%s: no block %d", f.Name, id))
	}
	return f.Blocks[id]
}

// In returns the predecessors of a block,
// in block order, without duplicates.
func (f *FuncDef) In(id BlockID) []BlockID {
	var in []BlockID
	for _, b := range f.Blocks {
		for _, o := range b.Out() {
			if o == id {
				in = append(in, b.ID)
				break
			}
		}
	}
	return in
}

// Find returns the block containing r and r's index in it.
func (f *FuncDef) Find(r Instruction) (*BasicBlock, int) {
	for _, b := range f.Blocks {
		if i := b.Index(r); i >= 0 {
			return b, i
		}
	}
	return nil, -1
}

type Instruction interface {
	String() string
	Uses() []Value
	Comment() string
	SetComment(string, ...interface{})
	buildString(*strings.Builder) *strings.Builder
	subValues(map[Value]Value)
}

type instruction struct {
	comment string
}

func (r *instruction) Comment() string                        { return r.comment }
func (r *instruction) SetComment(f string, vs ...interface{}) { r.comment = fmt.Sprintf(f, vs...) }

// Scope is an aliasing scope.
// Loads tagged with a scope are known not to alias
// stores tagged as NoAlias with the same scope.
type Scope struct {
	ID     uuid.UUID
	Name   string
	Domain *ScopeDomain
}

type ScopeDomain struct {
	ID   uuid.UUID
	Name string
}

// NewScope returns a fresh scope in a fresh domain.
func NewScope(domain, name string) *Scope {
	return &Scope{
		ID:     uuid.New(),
		Name:   name,
		Domain: &ScopeDomain{ID: uuid.New(), Name: domain},
	}
}

// LoopMD is metadata attached to a loop's back-edge branch.
type LoopMD struct {
	// UnrollFull requests the loop be fully unrolled.
	UnrollFull bool
}

type Store struct {
	instruction
	Dst      Value
	Src      Value
	Align    int
	Volatile bool
	// Atomic marks an unordered atomic store.
	Atomic bool
	// NoAlias, if non-nil, is a scope
	// whose loads this store does not alias.
	NoAlias *Scope
}

func (s *Store) Uses() []Value { return []Value{s.Dst, s.Src} }

// MemCpy copies Len bytes from Src to Dst.
// The regions must not overlap.
type MemCpy struct {
	instruction
	Dst      Value
	Src      Value
	Len      Value
	DstAlign int
	SrcAlign int
	Volatile bool
	// ElemSize, if non-zero, makes this an element-wise
	// unordered-atomic copy of ElemSize-byte elements.
	ElemSize int
}

func (m *MemCpy) Uses() []Value { return []Value{m.Dst, m.Src, m.Len} }

// MemMove copies Len bytes from Src to Dst.
// The regions may overlap.
type MemMove struct {
	instruction
	Dst      Value
	Src      Value
	Len      Value
	DstAlign int
	SrcAlign int
	Volatile bool
}

func (m *MemMove) Uses() []Value { return []Value{m.Dst, m.Src, m.Len} }

// MemSet sets Len bytes at Dst to the byte Val.
type MemSet struct {
	instruction
	Dst      Value
	Len      Value
	Val      Value
	Align    int
	Volatile bool
}

func (m *MemSet) Uses() []Value { return []Value{m.Dst, m.Len, m.Val} }

type Terminal interface {
	Instruction
	Out() []BlockID
	subBlocks(map[BlockID]BlockID)
}

type If struct {
	instruction
	// Cond must be a 1-bit integer.
	Cond Value
	Yes  BlockID
	No   BlockID
	// Loop is non-nil on loop back-edges carrying metadata.
	Loop *LoopMD
}

func (r *If) Uses() []Value  { return []Value{r.Cond} }
func (r *If) Out() []BlockID { return []BlockID{r.Yes, r.No} }

type Jump struct {
	instruction
	Dst BlockID
}

func (*Jump) Uses() []Value    { return nil }
func (r *Jump) Out() []BlockID { return []BlockID{r.Dst} }

type Return struct {
	instruction
}

func (*Return) Uses() []Value  { return nil }
func (*Return) Out() []BlockID { return nil }

type Value interface {
	Instruction
	Num() int
	setNum(int)
	Type() Type
}

type value struct {
	instruction
	num int
}

func (v *value) Num() int     { return v.num }
func (v *value) setNum(x int) { v.num = x }

type Parm struct {
	value
	Def *ParmDef
}

func (*Parm) Uses() []Value { return nil }
func (p *Parm) Type() Type  { return p.Def.Type }

// Alloc allocates Size bytes of Align-aligned stack memory.
type Alloc struct {
	value
	Size  int
	Align int
}

func (*Alloc) Uses() []Value { return nil }
func (*Alloc) Type() Type    { return &AddrType{Elem: Int8()} }

type Load struct {
	value
	Addr     Value
	T        Type
	Align    int
	Volatile bool
	// Atomic marks an unordered atomic load.
	Atomic bool
	// Scope, if non-nil, is the aliasing scope of the load.
	Scope *Scope
}

func (l *Load) Uses() []Value { return []Value{l.Addr} }
func (l *Load) Type() Type    { return l.T }

// Cast reinterprets an address as an address of a different type.
type Cast struct {
	value
	Src Value
	T   *AddrType
}

func (c *Cast) Uses() []Value { return []Value{c.Src} }
func (c *Cast) Type() Type    { return c.T }

// Index computes the address of the Index'th element
// of type Elem(Base.Type()) from Base.
// Index is treated as unsigned.
type Index struct {
	value
	Base  Value
	Index Value
}

func (x *Index) Uses() []Value { return []Value{x.Base, x.Index} }
func (x *Index) Type() Type    { return x.Base.Type() }

// Phi merges values flowing in from predecessor blocks.
type Phi struct {
	value
	Edges []PhiEdge
	T     Type
}

type PhiEdge struct {
	Block BlockID
	Value Value
}

func (p *Phi) Uses() []Value {
	vs := make([]Value, len(p.Edges))
	for i, e := range p.Edges {
		vs[i] = e.Value
	}
	return vs
}

func (p *Phi) Type() Type { return p.T }

// AddIncoming adds an edge from block b carrying v.
func (p *Phi) AddIncoming(v Value, b BlockID) {
	p.Edges = append(p.Edges, PhiEdge{Block: b, Value: v})
}

// Incoming returns the value flowing in from b, or nil.
func (p *Phi) Incoming(b BlockID) Value {
	for _, e := range p.Edges {
		if e.Block == b {
			return e.Value
		}
	}
	return nil
}

type Int struct {
	value
	T   IntType
	Val *big.Int
}

func (*Int) Uses() []Value    { return nil }
func (i *Int) Type() Type     { return &i.T }
func (i *Int) Uint64() uint64 { return i.Val.Uint64() }

// Float is a float constant given by its bit pattern.
type Float struct {
	value
	T    FloatType
	Bits uint64
}

func (*Float) Uses() []Value { return nil }
func (f *Float) Type() Type  { return &f.T }

// AddrConst is an address constant given by its integer value.
type AddrConst struct {
	value
	T    AddrType
	Addr uint64
}

func (*AddrConst) Uses() []Value { return nil }
func (a *AddrConst) Type() Type  { return &a.T }

// Aggregate is a constant vector, array, or struct.
type Aggregate struct {
	value
	T     Type
	Elems []Value
}

func (a *Aggregate) Uses() []Value { return a.Elems }
func (a *Aggregate) Type() Type    { return a.T }

type OpKind int

const (
	Plus OpKind = iota + 1
	Minus
	Times
	// Divide is unsigned division.
	Divide
	// Modulus is unsigned remainder.
	Modulus
	Eq
	Neq
	// Less is unsigned less-than; it also compares addresses.
	Less
)

type Op struct {
	value
	Op   OpKind
	Args []Value
	T    Type
}

func (o *Op) Uses() []Value { return o.Args }
func (o *Op) Type() Type    { return o.T }

// IsConst returns whether v is a constant.
func IsConst(v Value) bool {
	switch v := v.(type) {
	case *Int, *Float, *AddrConst:
		return true
	case *Aggregate:
		for _, e := range v.Elems {
			if !IsConst(e) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// ConstLen returns the value of an integer constant.
func ConstLen(v Value) (uint64, bool) {
	i, ok := v.(*Int)
	if !ok || !i.Val.IsUint64() {
		return 0, false
	}
	return i.Val.Uint64(), true
}
