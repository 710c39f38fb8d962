package lower

import (
	"fmt"

	"github.com/eaburns/memlower/flowgraph"
)

// operandType returns the type to copy with.
// It is def unless type inference is enabled and every address
// points to the same suitable type.
// Addresses are looked through at most one Cast.
// It panics if consecutive values of the result would not be contiguous,
// or if the result does not satisfy the atomic element size, when non-zero.
func (l *Lowerer) operandType(def flowgraph.Type, atomic int, addrs ...Value) flowgraph.Type {
	t := def
	if l.cfg.InferTypes {
		if u := commonPointee(addrs); u != nil && l.inferable(u) && l.atomicOK(u, atomic) {
			t = u
		}
	}
	if size := l.layout.StoreSize(t); size == 0 || size != l.layout.AllocSize(t) {
		panic(fmt.Sprintf("operand type %s has store size %d and allocation size %d",
			t, size, l.layout.AllocSize(t)))
	}
	if !l.atomicOK(t, atomic) {
		panic(fmt.Sprintf("operand type %s is unsuitable for atomic element size %d", t, atomic))
	}
	return t
}

func commonPointee(addrs []Value) flowgraph.Type {
	var t flowgraph.Type
	for _, a := range addrs {
		u := underlyingPointee(a)
		if t == nil {
			t = u
		} else if !flowgraph.EqType(t, u) {
			return nil
		}
	}
	return t
}

func underlyingPointee(v Value) flowgraph.Type {
	if c, ok := v.(*flowgraph.Cast); ok {
		v = c.Src
	}
	return flowgraph.Elem(v.Type())
}

// inferable returns whether copying values of t copies every byte:
// t has a non-zero size and no padding.
func (l *Lowerer) inferable(t flowgraph.Type) bool {
	size := l.layout.StoreSize(t)
	return size > 0 && size == l.layout.AllocSize(t) && !l.layout.HasPadding(t)
}

func (l *Lowerer) atomicOK(t flowgraph.Type, atomic int) bool {
	if atomic == 0 {
		return true
	}
	return t.Kind() != flowgraph.VectorKind && l.layout.StoreSize(t)%atomic == 0
}
