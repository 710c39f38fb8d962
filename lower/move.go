package lower

import "github.com/eaburns/memlower/flowgraph"

// Move inserts before at the code for a copy
// whose source and destination may overlap.
// If the source is below the destination the copy runs backwards,
// otherwise it runs forwards.
//
// Bytes are copied one at a time, unless type inference
// finds a common pointee type whose size divides a constant length.
func (l *Lowerer) Move(f *flowgraph.FuncDef, at flowgraph.Instruction, d Descriptor) Region {
	const op = "memmove"
	checkDescriptor(op, d)
	if d.AtomicElemSize != 0 {
		panic(op + ": atomic move is unsupported")
	}
	b, i := anchor(op, f, at)
	lenType := d.Len.Type()

	elem := flowgraph.Type(flowgraph.Int8())
	var elemCount uint64
	if t := l.operandType(elem, 0, d.Src, d.Dst); !flowgraph.IsByte(t) {
		size := uint64(l.layout.StoreSize(t))
		if n, ok := flowgraph.ConstLen(d.Len); ok && n%size == 0 {
			elem = t
			elemCount = n / size
		}
	}
	size := uint64(l.layout.StoreSize(elem))
	srcAlign := flowgraph.CommonAlign(d.SrcAlign, size)
	dstAlign := flowgraph.CommonAlign(d.DstAlign, size)
	acc := newAccess(d, nil)

	post := f.SplitBlock(b, i, "memmove_done")
	backwards := f.NewBlock("copy_backwards")
	backLoop := f.NewBlock("copy_backwards_loop")
	forwards := f.NewBlock("copy_forward")
	fwdLoop := f.NewBlock("copy_forward_loop")
	reg := Region{
		Entry:   b.ID,
		Exit:    post.ID,
		Blocks:  []flowgraph.BlockID{post.ID, backwards.ID, backLoop.ID, forwards.ID, fwdLoop.ID},
		Operand: elem,
	}

	pb := flowgraph.BeforeTerminal(b)
	var count Value = d.Len
	if !flowgraph.IsByte(elem) {
		count = pb.IntConst(lenType, elemCount)
	}
	src := pb.Cast(d.Src, elem)
	dst := pb.Cast(d.Dst, elem)
	zero := pb.IntConst(lenType, 0)
	one := pb.IntConst(lenType, 1)
	empty := pb.Op(flowgraph.Eq, count, zero)
	cmp := pb.Op(flowgraph.Less, d.Src, d.Dst)
	cmp.SetComment("compare_src_dst")
	flowgraph.AtEnd(b).If(cmp, backwards, forwards)

	flowgraph.AtEnd(backwards).If(empty, post, backLoop)
	bld := flowgraph.AtEnd(backLoop)
	i0 := bld.Phi(lenType)
	i0.AddIncoming(count, backwards.ID)
	prev := bld.Op(flowgraph.Minus, i0, one)
	prev.SetComment("index_ptr")
	acc.copyOne(bld, bld.Index(src, prev), bld.Index(dst, prev), srcAlign, dstAlign)
	i0.AddIncoming(prev, backLoop.ID)
	l.annotateLoop(bld.If(bld.Op(flowgraph.Eq, prev, zero), post, backLoop))

	flowgraph.AtEnd(forwards).If(empty, post, fwdLoop)
	bld = flowgraph.AtEnd(fwdLoop)
	i1 := bld.Phi(lenType)
	i1.AddIncoming(zero, forwards.ID)
	acc.copyOne(bld, bld.Index(src, i1), bld.Index(dst, i1), srcAlign, dstAlign)
	next := bld.Op(flowgraph.Plus, i1, one)
	i1.AddIncoming(next, fwdLoop.ID)
	l.annotateLoop(bld.If(bld.Op(flowgraph.Eq, next, count), post, fwdLoop))
	return reg
}
