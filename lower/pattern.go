package lower

import (
	"fmt"
	"math/big"

	"github.com/eaburns/memlower/flowgraph"
)

// pattern adds to bld a constant of type t
// each byte of whose memory representation is b.
func (l *Lowerer) pattern(bld *flowgraph.Builder, t flowgraph.Type, b byte) Value {
	switch t.Kind() {
	case flowgraph.IntKind:
		it := t.(*flowgraph.IntType)
		x := splat(b, l.layout.StoreSize(t))
		mask := new(big.Int).Lsh(big.NewInt(1), uint(it.Size))
		x.Mod(x, mask)
		return bld.Add(&flowgraph.Int{T: *it, Val: x})
	case flowgraph.FloatKind:
		ft := t.(*flowgraph.FloatType)
		return bld.Add(&flowgraph.Float{T: *ft, Bits: splat(b, ft.Size/8).Uint64()})
	case flowgraph.AddrKind:
		at := t.(*flowgraph.AddrType)
		return bld.Add(&flowgraph.AddrConst{T: *at, Addr: splat(b, l.layout.PtrSize).Uint64()})
	case flowgraph.VectorKind:
		vt := t.(*flowgraph.VectorType)
		return bld.Add(&flowgraph.Aggregate{T: t, Elems: l.patterns(bld, vt.Elem, vt.Len, b)})
	case flowgraph.ArrayKind:
		at := t.(*flowgraph.ArrayType)
		return bld.Add(&flowgraph.Aggregate{T: t, Elems: l.patterns(bld, at.Elem, at.Len, b)})
	case flowgraph.StructKind:
		var elems []Value
		for _, f := range t.(*flowgraph.StructType).Fields {
			elems = append(elems, l.pattern(bld, f, b))
		}
		return bld.Add(&flowgraph.Aggregate{T: t, Elems: elems})
	default:
		panic(fmt.Sprintf("impossible Kind: %s", t.Kind()))
	}
}

func (l *Lowerer) patterns(bld *flowgraph.Builder, t flowgraph.Type, n int, b byte) []Value {
	// Equal elements share one constant.
	e := l.pattern(bld, t, b)
	elems := make([]Value, n)
	for i := range elems {
		elems[i] = e
	}
	return elems
}

func splat(b byte, n int) *big.Int {
	x := new(big.Int)
	for i := 0; i < n; i++ {
		x.Lsh(x, 8)
		x.Or(x, big.NewInt(int64(b)))
	}
	return x
}
