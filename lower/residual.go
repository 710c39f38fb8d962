package lower

import (
	"fmt"

	"github.com/eaburns/memlower/flowgraph"
	"github.com/eaburns/memlower/target"
)

// copyResidual copies the remaining bytes of a copy, starting at offset,
// with straight-line accesses of the target's residual types.
// It returns the number of bytes copied.
func (l *Lowerer) copyResidual(bld *flowgraph.Builder, d Descriptor, acc access, q target.Query, offset, remaining uint64) uint64 {
	if remaining == 0 {
		return 0
	}
	idx := d.Len.Type()
	srcBytes := bld.Cast(d.Src, flowgraph.Int8())
	dstBytes := bld.Cast(d.Dst, flowgraph.Int8())
	var copied uint64
	for _, t := range l.model.ResidualOperandTypes(q, remaining) {
		if !l.atomicOK(t, d.AtomicElemSize) {
			panic(fmt.Sprintf("residual type %s is unsuitable for atomic element size %d", t, d.AtomicElemSize))
		}
		off := offset + copied
		i := bld.IntConst(idx, off)
		src := bld.Cast(bld.Index(srcBytes, i), t)
		dst := bld.Cast(bld.Index(dstBytes, i), t)
		acc.copyOne(bld, src, dst, flowgraph.CommonAlign(d.SrcAlign, off), flowgraph.CommonAlign(d.DstAlign, off))
		copied += uint64(l.layout.StoreSize(t))
	}
	return copied
}

// fillResidual stores the fill pattern to the remaining bytes of a fill,
// starting at offset, with the target's residual types.
// It returns the number of bytes stored.
func (l *Lowerer) fillResidual(bld *flowgraph.Builder, fd FillDescriptor, b byte, q target.Query, offset, remaining uint64) uint64 {
	if remaining == 0 {
		return 0
	}
	dstBytes := bld.Cast(fd.Dst, flowgraph.Int8())
	var stored uint64
	for _, t := range l.model.ResidualOperandTypes(q, remaining) {
		off := offset + stored
		dst := bld.Cast(bld.Index(dstBytes, bld.IntConst(fd.Len.Type(), off)), t)
		bld.Store(dst, l.pattern(bld, t, b), flowgraph.CommonAlign(fd.Align, off), fd.Volatile)
		stored += uint64(l.layout.StoreSize(t))
	}
	return stored
}
