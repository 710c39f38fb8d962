package lower

import (
	"fmt"

	"github.com/eaburns/memlower/flowgraph"
)

// ExpandMemCpy replaces a memcpy intrinsic with a copy loop.
// Atomic memcpys are expanded by ExpandAtomicMemCpy.
func (l *Lowerer) ExpandMemCpy(f *flowgraph.FuncDef, m *flowgraph.MemCpy) Region {
	if m.ElemSize > 0 {
		return l.ExpandAtomicMemCpy(f, m)
	}
	d := Descriptor{
		Src:         m.Src,
		Dst:         m.Dst,
		Len:         m.Len,
		SrcAlign:    m.SrcAlign,
		DstAlign:    m.DstAlign,
		SrcVolatile: m.Volatile,
		DstVolatile: m.Volatile,
		CanOverlap:  !l.alias.Disjoint(m.Src, m.Dst, m.Len),
	}
	return l.expandCopy(f, m, d)
}

// ExpandAtomicMemCpy replaces an element-wise atomic memcpy intrinsic
// with a loop of unordered atomic loads and stores.
func (l *Lowerer) ExpandAtomicMemCpy(f *flowgraph.FuncDef, m *flowgraph.MemCpy) Region {
	if m.ElemSize <= 0 {
		panic(fmt.Sprintf("memcpy.atomic: element size %d", m.ElemSize))
	}
	d := Descriptor{
		Src:            m.Src,
		Dst:            m.Dst,
		Len:            m.Len,
		SrcAlign:       m.SrcAlign,
		DstAlign:       m.DstAlign,
		AtomicElemSize: m.ElemSize,
	}
	return l.expandCopy(f, m, d)
}

func (l *Lowerer) expandCopy(f *flowgraph.FuncDef, m *flowgraph.MemCpy, d Descriptor) Region {
	var reg Region
	if _, ok := flowgraph.ConstLen(m.Len); ok {
		reg = l.CopyKnownLength(f, m, d)
	} else {
		reg = l.CopyUnknownLength(f, m, d)
	}
	f.Remove(m)
	return reg
}

// ExpandMemMove replaces a memmove intrinsic with an overlap-safe copy loop.
func (l *Lowerer) ExpandMemMove(f *flowgraph.FuncDef, m *flowgraph.MemMove) Region {
	d := Descriptor{
		Src:         m.Src,
		Dst:         m.Dst,
		Len:         m.Len,
		SrcAlign:    m.SrcAlign,
		DstAlign:    m.DstAlign,
		SrcVolatile: m.Volatile,
		DstVolatile: m.Volatile,
		CanOverlap:  true,
	}
	reg := l.Move(f, m, d)
	f.Remove(m)
	return reg
}

// ExpandMemSet replaces a memset intrinsic with a store loop.
func (l *Lowerer) ExpandMemSet(f *flowgraph.FuncDef, m *flowgraph.MemSet) Region {
	fd := FillDescriptor{
		Dst:      m.Dst,
		Len:      m.Len,
		Value:    m.Val,
		Align:    m.Align,
		Volatile: m.Volatile,
	}
	reg := l.Fill(f, m, fd)
	f.Remove(m)
	return reg
}

// LowerFunc expands every intrinsic in f
// and returns the number expanded.
func (l *Lowerer) LowerFunc(f *flowgraph.FuncDef) int {
	rs := flowgraph.Intrinsics(f)
	for _, r := range rs {
		var kind string
		var length Value
		var reg Region
		switch r := r.(type) {
		case *flowgraph.MemCpy:
			kind, length = "memcpy", r.Len
			if r.ElemSize > 0 {
				kind = "memcpy.atomic"
			}
			reg = l.ExpandMemCpy(f, r)
		case *flowgraph.MemMove:
			kind, length = "memmove", r.Len
			reg = l.ExpandMemMove(f, r)
		case *flowgraph.MemSet:
			kind, length = "memset", r.Len
			reg = l.ExpandMemSet(f, r)
		default:
			panic(fmt.Sprintf("impossible intrinsic: %T", r))
		}
		fields := []interface{}{
			"func", f.Name,
			"kind", kind,
			"operand", reg.Operand.String(),
			"blocks", len(reg.Blocks),
		}
		if n, ok := flowgraph.ConstLen(length); ok {
			fields = append(fields, "len", n, "iterations", reg.Iterations, "residual", reg.ResidualBytes)
		}
		l.log.Debugw("expanded intrinsic", fields...)
	}
	return len(rs)
}

// Lower expands every intrinsic in the module
// and returns the number expanded.
func (l *Lowerer) Lower(mod *flowgraph.Mod) int {
	var n int
	for _, f := range mod.Funcs {
		n += l.LowerFunc(f)
	}
	return n
}
