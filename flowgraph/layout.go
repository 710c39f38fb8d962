package flowgraph

import "fmt"

// Layout describes how types are laid out in memory.
// Integers and floats are little-endian.
type Layout struct {
	// PtrSize is the size of an address in bytes.
	PtrSize int
}

// DefaultLayout is a 64-bit little-endian layout.
var DefaultLayout = Layout{PtrSize: 8}

// StoreSize returns the number of bytes written by a store of t.
func (l Layout) StoreSize(t Type) int {
	switch t.Kind() {
	case IntKind:
		return (t.(*IntType).Size + 7) / 8
	case FloatKind:
		return t.(*FloatType).Size / 8
	case AddrKind:
		return l.PtrSize
	case VectorKind:
		v := t.(*VectorType)
		return v.Len * l.StoreSize(v.Elem)
	case ArrayKind, StructKind:
		return l.AllocSize(t)
	default:
		panic(fmt.Sprintf("impossible Kind: %s", t.Kind()))
	}
}

// AllocSize returns the distance in bytes between
// consecutive elements of type t in memory,
// including any tail padding.
func (l Layout) AllocSize(t Type) int {
	switch t.Kind() {
	case IntKind, FloatKind, AddrKind, VectorKind:
		return alignTo(l.StoreSize(t), l.Align(t))
	case ArrayKind:
		a := t.(*ArrayType)
		return a.Len * l.AllocSize(a.Elem)
	case StructKind:
		var off int
		for _, f := range t.(*StructType).Fields {
			off = alignTo(off, l.Align(f)) + l.AllocSize(f)
		}
		return alignTo(off, l.Align(t))
	default:
		panic(fmt.Sprintf("impossible Kind: %s", t.Kind()))
	}
}

// Align returns the ABI alignment of t in bytes.
func (l Layout) Align(t Type) int {
	switch t.Kind() {
	case IntKind, FloatKind:
		a := nextPow2(l.StoreSize(t))
		if a > 8 {
			a = 8
		}
		return a
	case AddrKind:
		return l.PtrSize
	case VectorKind:
		return nextPow2(l.StoreSize(t))
	case ArrayKind:
		return l.Align(t.(*ArrayType).Elem)
	case StructKind:
		a := 1
		for _, f := range t.(*StructType).Fields {
			if fa := l.Align(f); fa > a {
				a = fa
			}
		}
		return a
	default:
		panic(fmt.Sprintf("impossible Kind: %s", t.Kind()))
	}
}

// FieldOffsets returns the byte offset of each field of a struct.
func (l Layout) FieldOffsets(t *StructType) []int {
	offs := make([]int, len(t.Fields))
	var off int
	for i, f := range t.Fields {
		off = alignTo(off, l.Align(f))
		offs[i] = off
		off += l.AllocSize(f)
	}
	return offs
}

// HasPadding returns whether a value of type t
// leaves some bytes of its allocation unwritten:
// struct padding, vector or array padding, or
// integers whose width is not a whole number of bytes.
func (l Layout) HasPadding(t Type) bool {
	switch t.Kind() {
	case IntKind:
		return t.(*IntType).Size%8 != 0 || l.StoreSize(t) != l.AllocSize(t)
	case FloatKind, AddrKind:
		return l.StoreSize(t) != l.AllocSize(t)
	case VectorKind:
		v := t.(*VectorType)
		return l.HasPadding(v.Elem) || l.StoreSize(t) != l.AllocSize(t)
	case ArrayKind:
		return l.HasPadding(t.(*ArrayType).Elem)
	case StructKind:
		s := t.(*StructType)
		var n int
		for _, f := range s.Fields {
			if l.HasPadding(f) {
				return true
			}
			n += l.AllocSize(f)
		}
		return n != l.AllocSize(t)
	default:
		panic(fmt.Sprintf("impossible Kind: %s", t.Kind()))
	}
}

// CommonAlign returns the greatest alignment
// satisfied by an address aligned to align
// and advanced by offset bytes.
func CommonAlign(align int, offset uint64) int {
	if align <= 0 {
		align = 1
	}
	if offset == 0 {
		return align
	}
	a := uint64(align)
	low := offset & -offset
	if low < a {
		return int(low)
	}
	return align
}

func alignTo(n, a int) int {
	if a <= 1 {
		return n
	}
	return (n + a - 1) / a * a
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
