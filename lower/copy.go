package lower

import (
	"fmt"

	"github.com/eaburns/memlower/flowgraph"
)

// CopyKnownLength inserts before at the code for a copy
// whose length is a constant.
// A loop copies whole operands, and straight-line code
// after the loop copies the remaining bytes.
// A zero-length copy generates no code.
func (l *Lowerer) CopyKnownLength(f *flowgraph.FuncDef, at flowgraph.Instruction, d Descriptor) Region {
	const op = "memcpy"
	checkDescriptor(op, d)
	n, ok := flowgraph.ConstLen(d.Len)
	if !ok {
		panic(fmt.Sprintf("%s: length x%d is not constant", op, d.Len.Num()))
	}
	b, i := anchor(op, f, at)
	q := l.query(d)
	opType := l.operandType(l.model.LoopOperandType(q), d.AtomicElemSize, d.Src, d.Dst)
	reg := Region{Entry: b.ID, Exit: b.ID, Operand: opType}
	if n == 0 {
		return reg
	}
	opSize := uint64(l.layout.StoreSize(opType))
	acc := newAccess(d, l.scope(d))

	count := n / opSize
	if count > 0 {
		post := f.SplitBlock(b, i, "memcpy-split")
		loop := f.NewBlock("load-store-loop")
		reg.Exit = post.ID
		reg.Blocks = []flowgraph.BlockID{post.ID, loop.ID}

		pb := flowgraph.BeforeTerminal(b)
		src := pb.Cast(d.Src, opType)
		dst := pb.Cast(d.Dst, opType)
		countVal := pb.IntConst(d.Len.Type(), count)
		l.copyLoop(b, loop, post, src, dst, countVal, acc,
			flowgraph.CommonAlign(d.SrcAlign, opSize),
			flowgraph.CommonAlign(d.DstAlign, opSize))
		flowgraph.AtEnd(b).Jump(loop)
	}
	reg.Iterations = count
	reg.MainBytes = count * opSize
	reg.ResidualBytes = l.copyResidual(flowgraph.Before(f, at), d, acc, q, reg.MainBytes, n-reg.MainBytes)
	checkBytes(op, reg.MainBytes, reg.ResidualBytes, n)
	return reg
}

// CopyUnknownLength inserts before at the code for a copy
// whose length is computed at run time.
// A loop copies whole operands, and, if the operand is wider
// than a byte or an atomic element, a second loop copies the remaining
// bytes one byte or atomic element at a time.
func (l *Lowerer) CopyUnknownLength(f *flowgraph.FuncDef, at flowgraph.Instruction, d Descriptor) Region {
	const op = "memcpy"
	checkDescriptor(op, d)
	b, i := anchor(op, f, at)
	q := l.query(d)
	opType := l.operandType(l.model.LoopOperandType(q), d.AtomicElemSize, d.Src, d.Dst)
	opSize := uint64(l.layout.StoreSize(opType))
	acc := newAccess(d, l.scope(d))
	lenType := d.Len.Type()

	post := f.SplitBlock(b, i, "post-loop-memcpy-expansion")
	loop := f.NewBlock("loop-memcpy-expansion")
	reg := Region{
		Entry:   b.ID,
		Exit:    post.ID,
		Blocks:  []flowgraph.BlockID{post.ID, loop.ID},
		Operand: opType,
	}

	pb := flowgraph.BeforeTerminal(b)
	src := pb.Cast(d.Src, opType)
	dst := pb.Cast(d.Dst, opType)
	zero := pb.IntConst(lenType, 0)
	count := d.Len
	if opSize != 1 {
		count = pb.Op(flowgraph.Divide, d.Len, pb.IntConst(lenType, opSize))
	}
	nonEmpty := pb.Op(flowgraph.Neq, count, zero)

	exit := post
	if opSize > 1 && uint64(d.AtomicElemSize) != opSize {
		header := f.NewBlock("loop-memcpy-residual-header")
		resLoop := f.NewBlock("loop-memcpy-residual")
		reg.Blocks = append(reg.Blocks, header.ID, resLoop.ID)
		exit = header

		resType := flowgraph.Type(flowgraph.Int8())
		if d.AtomicElemSize > 0 {
			resType = &flowgraph.IntType{Size: 8 * d.AtomicElemSize}
		}
		resSize := uint64(l.layout.StoreSize(resType))
		residual := pb.Op(flowgraph.Modulus, d.Len, pb.IntConst(lenType, opSize))
		copied := pb.Op(flowgraph.Times, count, pb.IntConst(lenType, opSize))
		copied.SetComment("bytes_copied")
		srcBytes := pb.Cast(d.Src, flowgraph.Int8())
		dstBytes := pb.Cast(d.Dst, flowgraph.Int8())
		step := pb.IntConst(lenType, resSize)

		hb := flowgraph.AtEnd(header)
		hb.If(hb.Op(flowgraph.Neq, residual, zero), resLoop, post)

		rb := flowgraph.AtEnd(resLoop)
		j := rb.Phi(lenType)
		j.SetComment("residual-loop-index")
		j.AddIncoming(zero, header.ID)
		off := rb.Op(flowgraph.Plus, copied, j)
		acc.copyOne(rb,
			rb.Cast(rb.Index(srcBytes, off), resType),
			rb.Cast(rb.Index(dstBytes, off), resType),
			flowgraph.CommonAlign(d.SrcAlign, resSize),
			flowgraph.CommonAlign(d.DstAlign, resSize))
		next := rb.Op(flowgraph.Plus, j, step)
		j.AddIncoming(next, resLoop.ID)
		l.annotateLoop(rb.If(rb.Op(flowgraph.Less, next, residual), resLoop, post))
	}

	l.copyLoop(b, loop, exit, src, dst, count, acc,
		flowgraph.CommonAlign(d.SrcAlign, opSize),
		flowgraph.CommonAlign(d.DstAlign, opSize))
	flowgraph.AtEnd(b).If(nonEmpty, loop, exit)
	return reg
}

// copyLoop fills the empty block loop with a loop copying count elements
// from src to dst. The loop is entered from pre and exits to exit.
// Its constants are added to pre.
func (l *Lowerer) copyLoop(pre, loop, exit *flowgraph.BasicBlock, src, dst, count Value, acc access, srcAlign, dstAlign int) {
	idxType := count.Type()
	pb := flowgraph.BeforeTerminal(pre)
	zero := pb.IntConst(idxType, 0)
	one := pb.IntConst(idxType, 1)

	bld := flowgraph.AtEnd(loop)
	i := bld.Phi(idxType)
	i.SetComment("loop-index")
	i.AddIncoming(zero, pre.ID)
	acc.copyOne(bld, bld.Index(src, i), bld.Index(dst, i), srcAlign, dstAlign)
	next := bld.Op(flowgraph.Plus, i, one)
	i.AddIncoming(next, loop.ID)
	l.annotateLoop(bld.If(bld.Op(flowgraph.Less, next, count), loop, exit))
}
