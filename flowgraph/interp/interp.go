// Package interp evaluates flowgraph functions over a flat,
// byte-addressed memory.
//
// Addresses are offsets into Interp.Mem.
// Every value is held as the little-endian bytes
// that a store of the value would write.
package interp

import (
	"fmt"
	"io"
	"math/big"

	"github.com/eaburns/memlower/flowgraph"
)

type Interp struct {
	Mem    []byte
	Layout flowgraph.Layout
	// Trace, if non-nil, receives a line for each executed instruction.
	Trace io.Writer
	// MaxSteps bounds the number of executed instructions.
	// If zero, there is no bound.
	MaxSteps int

	// Visits counts the executions of each block of the last Eval.
	Visits map[flowgraph.BlockID]int
	// Loads and Stores count executed loads and stores.
	Loads  int
	Stores int
	// LoadBytes and StoreBytes count the bytes they accessed.
	LoadBytes  int
	StoreBytes int

	steps int
}

// New returns an interpreter over mem with the default layout.
func New(mem []byte) *Interp {
	return &Interp{Mem: mem, Layout: flowgraph.DefaultLayout}
}

type frame struct {
	fun  *flowgraph.FuncDef
	args []uint64
	vals map[flowgraph.Value][]byte
}

// Eval runs f to completion.
// Each argument is the integer or address value of the corresponding parameter.
// Eval panics on out-of-bounds memory access, on malformed IR,
// and when MaxSteps is exceeded.
func (interp *Interp) Eval(f *flowgraph.FuncDef, args ...uint64) {
	if len(args) != len(f.Parms) {
		panic(fmt.Sprintf("%s: got %d arguments, expected %d", f.Name, len(args), len(f.Parms)))
	}
	if len(f.Blocks) == 0 {
		panic(fmt.Sprintf("%s: function body is undefined", f.Name))
	}
	interp.Visits = make(map[flowgraph.BlockID]int)
	interp.Loads, interp.Stores = 0, 0
	interp.LoadBytes, interp.StoreBytes = 0, 0
	interp.steps = 0
	fr := &frame{fun: f, args: args, vals: make(map[flowgraph.Value][]byte)}
	prev, cur := flowgraph.BlockID(-1), flowgraph.BlockID(0)
	for {
		next, done := interp.run(fr, prev, cur)
		if done {
			return
		}
		prev, cur = cur, next
	}
}

// run executes block cur, entered from prev,
// and returns the next block or done.
func (interp *Interp) run(fr *frame, prev, cur flowgraph.BlockID) (flowgraph.BlockID, bool) {
	b := fr.fun.Block(cur)
	interp.Visits[cur]++
	if interp.Trace != nil {
		fmt.Fprintf(interp.Trace, "block %d %s\n", b.ID, b.Name)
	}

	// Phis read their inputs simultaneously.
	phis := make(map[flowgraph.Value][]byte)
	for _, r := range b.Instrs {
		p, ok := r.(*flowgraph.Phi)
		if !ok {
			break
		}
		in := p.Incoming(prev)
		if in == nil {
			panic(fmt.Sprintf("%s: phi x%d has no edge from %d", fr.fun.Name, p.Num(), prev))
		}
		phis[p] = interp.val(fr, in)
	}
	for p, v := range phis {
		fr.vals[p] = v
	}

	for _, r := range b.Instrs {
		interp.steps++
		if interp.MaxSteps > 0 && interp.steps > interp.MaxSteps {
			panic(fmt.Sprintf("%s: exceeded %d steps", fr.fun.Name, interp.MaxSteps))
		}
		if interp.Trace != nil {
			fmt.Fprintf(interp.Trace, "\t%s\n", r)
		}
		switch r := r.(type) {
		case *flowgraph.Phi:
			// Already set on entry.
		case *flowgraph.If:
			if interp.val(fr, r.Cond)[0]&1 != 0 {
				return r.Yes, false
			}
			return r.No, false
		case *flowgraph.Jump:
			return r.Dst, false
		case *flowgraph.Return:
			return 0, true
		case *flowgraph.Store:
			dst := toUint(interp.val(fr, r.Dst))
			src := interp.val(fr, r.Src)
			interp.write(dst, src)
			interp.Stores++
			interp.StoreBytes += len(src)
		case *flowgraph.MemCpy:
			dst, src, n := interp.ptrs(fr, r.Dst, r.Src, r.Len)
			interp.check(src, n)
			interp.check(dst, n)
			if n > 0 && src < dst+n && dst < src+n {
				panic(fmt.Sprintf("%s: memcpy of overlapping [%d, %d) and [%d, %d)", fr.fun.Name, dst, dst+n, src, src+n))
			}
			copy(interp.Mem[dst:dst+n], interp.Mem[src:src+n])
		case *flowgraph.MemMove:
			dst, src, n := interp.ptrs(fr, r.Dst, r.Src, r.Len)
			interp.check(src, n)
			interp.check(dst, n)
			copy(interp.Mem[dst:dst+n], interp.Mem[src:src+n])
		case *flowgraph.MemSet:
			dst := toUint(interp.val(fr, r.Dst))
			n := toUint(interp.val(fr, r.Len))
			c := interp.val(fr, r.Val)[0]
			interp.check(dst, n)
			for i := dst; i < dst+n; i++ {
				interp.Mem[i] = c
			}
		case flowgraph.Value:
			fr.vals[r] = interp.eval(fr, r)
		default:
			panic(fmt.Sprintf("unknown instruction type: %T", r))
		}
	}
	panic(fmt.Sprintf("%s: block %d is not terminated", fr.fun.Name, b.ID))
}

func (interp *Interp) ptrs(fr *frame, dst, src, n flowgraph.Value) (uint64, uint64, uint64) {
	return toUint(interp.val(fr, dst)), toUint(interp.val(fr, src)), toUint(interp.val(fr, n))
}

func (interp *Interp) eval(fr *frame, r flowgraph.Value) []byte {
	l := interp.Layout
	switch r := r.(type) {
	case *flowgraph.Parm:
		for i, p := range fr.fun.Parms {
			if p == r.Def {
				return fromUint(fr.args[i], l.StoreSize(r.Type()))
			}
		}
		panic(fmt.Sprintf("no parameter %s", r.Def.Name))
	case *flowgraph.Alloc:
		return fromUint(interp.alloc(r.Size, r.Align), l.PtrSize)
	case *flowgraph.Load:
		addr := toUint(interp.val(fr, r.Addr))
		n := uint64(l.StoreSize(r.T))
		interp.check(addr, n)
		interp.Loads++
		interp.LoadBytes += int(n)
		return append([]byte{}, interp.Mem[addr:addr+n]...)
	case *flowgraph.Cast:
		return interp.val(fr, r.Src)
	case *flowgraph.Index:
		base := toUint(interp.val(fr, r.Base))
		i := toUint(interp.val(fr, r.Index))
		size := uint64(l.AllocSize(flowgraph.Elem(r.Base.Type())))
		return fromUint(base+i*size, l.PtrSize)
	case *flowgraph.Op:
		return interp.op(fr, r)
	default:
		if flowgraph.IsConst(r) {
			return Const(l, r)
		}
		panic(fmt.Sprintf("unknown value type: %T", r))
	}
}

func (interp *Interp) op(fr *frame, r *flowgraph.Op) []byte {
	size := interp.Layout.StoreSize(r.Args[0].Type())
	if size > 8 {
		panic(fmt.Sprintf("%s: operands wider than 64 bits", r))
	}
	x := toUint(interp.val(fr, r.Args[0]))
	y := toUint(interp.val(fr, r.Args[1]))
	var z uint64
	switch r.Op {
	case flowgraph.Plus:
		z = x + y
	case flowgraph.Minus:
		z = x - y
	case flowgraph.Times:
		z = x * y
	case flowgraph.Divide:
		if y == 0 {
			panic(fmt.Sprintf("%s: divide by zero", r))
		}
		z = x / y
	case flowgraph.Modulus:
		if y == 0 {
			panic(fmt.Sprintf("%s: divide by zero", r))
		}
		z = x % y
	case flowgraph.Eq:
		z = b2u(x == y)
	case flowgraph.Neq:
		z = b2u(x != y)
	case flowgraph.Less:
		z = b2u(x < y)
	default:
		panic(fmt.Sprintf("unknown op: %s", r.Op))
	}
	if it, ok := r.T.(*flowgraph.IntType); ok && it.Size < 64 {
		z &= 1<<uint(it.Size) - 1
	}
	return fromUint(z, interp.Layout.StoreSize(r.T))
}

func (interp *Interp) val(fr *frame, v flowgraph.Value) []byte {
	x, ok := fr.vals[v]
	if !ok {
		if flowgraph.IsConst(v) {
			return Const(interp.Layout, v)
		}
		panic(fmt.Sprintf("%s: x%d used before it is defined", fr.fun.Name, v.Num()))
	}
	return x
}

func (interp *Interp) alloc(size, align int) uint64 {
	if align < 1 {
		align = 1
	}
	at := (len(interp.Mem) + align - 1) / align * align
	interp.Mem = append(interp.Mem, make([]byte, at+size-len(interp.Mem))...)
	return uint64(at)
}

func (interp *Interp) check(addr, n uint64) {
	if addr+n < addr || addr+n > uint64(len(interp.Mem)) {
		panic(fmt.Sprintf("out of bounds access: [%d, %d) of %d bytes", addr, addr+n, len(interp.Mem)))
	}
}

func (interp *Interp) write(addr uint64, bs []byte) {
	interp.check(addr, uint64(len(bs)))
	copy(interp.Mem[addr:], bs)
}

// Const returns the bytes of a constant value.
func Const(l flowgraph.Layout, v flowgraph.Value) []byte {
	switch v := v.(type) {
	case *flowgraph.Int:
		return bigBytes(v.Val, l.StoreSize(v.Type()))
	case *flowgraph.Float:
		return fromUint(v.Bits, l.StoreSize(v.Type()))
	case *flowgraph.AddrConst:
		return fromUint(v.Addr, l.PtrSize)
	case *flowgraph.Aggregate:
		bs := make([]byte, l.StoreSize(v.T))
		for i, off := range elemOffsets(l, v.T) {
			copy(bs[off:], Const(l, v.Elems[i]))
		}
		return bs
	default:
		panic(fmt.Sprintf("not a constant: %s", v))
	}
}

func elemOffsets(l flowgraph.Layout, t flowgraph.Type) []int {
	switch t := t.(type) {
	case *flowgraph.VectorType:
		return strided(t.Len, l.StoreSize(t.Elem))
	case *flowgraph.ArrayType:
		return strided(t.Len, l.AllocSize(t.Elem))
	case *flowgraph.StructType:
		return l.FieldOffsets(t)
	default:
		panic(fmt.Sprintf("aggregate of type %s", t))
	}
}

func strided(n, stride int) []int {
	offs := make([]int, n)
	for i := range offs {
		offs[i] = i * stride
	}
	return offs
}

func bigBytes(x *big.Int, n int) []byte {
	be := x.Bytes()
	bs := make([]byte, n)
	for i := 0; i < n && i < len(be); i++ {
		bs[i] = be[len(be)-1-i]
	}
	return bs
}

func toUint(bs []byte) uint64 {
	var x uint64
	for i := len(bs) - 1; i >= 0; i-- {
		if i < 8 {
			x = x<<8 | uint64(bs[i])
		}
	}
	return x
}

func fromUint(x uint64, n int) []byte {
	bs := make([]byte, n)
	for i := 0; i < n && i < 8; i++ {
		bs[i] = byte(x >> (8 * uint(i)))
	}
	return bs
}

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
