package lower

import (
	"fmt"

	"github.com/eaburns/memlower/flowgraph"
	"github.com/eaburns/memlower/target"
)

// Fill inserts before at the code for a fill.
//
// A fill of a constant byte stores operands of the target's loop type,
// or of the destination's pointee type if inferred,
// each byte of which is the fill byte.
// A fill of a byte computed at run time stores a byte at a time.
// Bytes not covered by whole operands are stored after the loop.
func (l *Lowerer) Fill(f *flowgraph.FuncDef, at flowgraph.Instruction, fd FillDescriptor) Region {
	const op = "memset"
	checkAddr(op, "destination", fd.Dst)
	checkLen(op, fd.Len)
	if fd.Value == nil || !flowgraph.IsByte(fd.Value.Type()) {
		panic(fmt.Sprintf("%s: fill value must be a byte", op))
	}
	b, i := anchor(op, f, at)
	q := target.Query{
		DstSpace: flowgraph.Space(fd.Dst.Type()),
		SrcSpace: flowgraph.Space(fd.Dst.Type()),
		DstAlign: fd.Align,
		SrcAlign: fd.Align,
	}
	n, known := flowgraph.ConstLen(fd.Len)
	q.Len, q.KnownLen = n, known

	opType := fd.Value.Type()
	c, isConst := flowgraph.ConstLen(fd.Value)
	if isConst {
		opType = l.operandType(l.model.LoopOperandType(q), 0, fd.Dst)
	}
	reg := Region{Entry: b.ID, Exit: b.ID, Operand: opType}
	if known && n == 0 {
		return reg
	}
	opSize := uint64(l.layout.StoreSize(opType))
	align := flowgraph.CommonAlign(fd.Align, opSize)
	lenType := fd.Len.Type()

	if known {
		count := n / opSize
		if count > 0 {
			post := f.SplitBlock(b, i, "split")
			loop := f.NewBlock("loadstoreloop")
			reg.Exit = post.ID
			reg.Blocks = []flowgraph.BlockID{post.ID, loop.ID}

			pb := flowgraph.BeforeTerminal(b)
			dst := pb.Cast(fd.Dst, opType)
			val := l.fillValue(pb, fd, opType, byte(c))
			l.fillLoop(b, loop, post, dst, val, pb.IntConst(lenType, count), align, fd.Volatile)
			flowgraph.AtEnd(b).Jump(loop)
		}
		reg.Iterations = count
		reg.MainBytes = count * opSize
		reg.ResidualBytes = l.fillResidual(flowgraph.Before(f, at), fd, byte(c), q, reg.MainBytes, n-reg.MainBytes)
		checkBytes(op, reg.MainBytes, reg.ResidualBytes, n)
		return reg
	}

	post := f.SplitBlock(b, i, "split")
	loop := f.NewBlock("loadstoreloop")
	reg.Exit = post.ID
	reg.Blocks = []flowgraph.BlockID{post.ID, loop.ID}

	pb := flowgraph.BeforeTerminal(b)
	dst := pb.Cast(fd.Dst, opType)
	val := l.fillValue(pb, fd, opType, byte(c))
	zero := pb.IntConst(lenType, 0)
	count := fd.Len
	if opSize != 1 {
		count = pb.Op(flowgraph.Divide, fd.Len, pb.IntConst(lenType, opSize))
	}
	nonEmpty := pb.Op(flowgraph.Neq, count, zero)

	exit := post
	if opSize > 1 {
		header := f.NewBlock("loadstoreloop-residual-header")
		resLoop := f.NewBlock("loadstoreloop-residual")
		reg.Blocks = append(reg.Blocks, header.ID, resLoop.ID)
		exit = header

		residual := pb.Op(flowgraph.Modulus, fd.Len, pb.IntConst(lenType, opSize))
		stored := pb.Op(flowgraph.Times, count, pb.IntConst(lenType, opSize))
		stored.SetComment("bytes_set")
		dstBytes := pb.Cast(fd.Dst, flowgraph.Int8())
		one := pb.IntConst(lenType, 1)

		hb := flowgraph.AtEnd(header)
		hb.If(hb.Op(flowgraph.Neq, residual, zero), resLoop, post)

		rb := flowgraph.AtEnd(resLoop)
		j := rb.Phi(lenType)
		j.AddIncoming(zero, header.ID)
		rb.Store(rb.Index(dstBytes, rb.Op(flowgraph.Plus, stored, j)), fd.Value, 1, fd.Volatile)
		next := rb.Op(flowgraph.Plus, j, one)
		j.AddIncoming(next, resLoop.ID)
		l.annotateLoop(rb.If(rb.Op(flowgraph.Less, next, residual), resLoop, post))
	}

	l.fillLoop(b, loop, exit, dst, val, count, align, fd.Volatile)
	flowgraph.AtEnd(b).If(nonEmpty, loop, exit)
	return reg
}

// fillValue returns the value stored by each loop iteration.
func (l *Lowerer) fillValue(bld *flowgraph.Builder, fd FillDescriptor, t flowgraph.Type, c byte) Value {
	if flowgraph.EqType(t, fd.Value.Type()) {
		return fd.Value
	}
	return l.pattern(bld, t, c)
}

// fillLoop fills the empty block loop with a loop
// storing val to count consecutive elements at dst.
// The loop is entered from pre and exits to exit.
func (l *Lowerer) fillLoop(pre, loop, exit *flowgraph.BasicBlock, dst, val, count Value, align int, volatile bool) {
	idxType := count.Type()
	pb := flowgraph.BeforeTerminal(pre)
	zero := pb.IntConst(idxType, 0)
	one := pb.IntConst(idxType, 1)

	bld := flowgraph.AtEnd(loop)
	i := bld.Phi(idxType)
	i.SetComment("loop-index")
	i.AddIncoming(zero, pre.ID)
	bld.Store(bld.Index(dst, i), val, align, volatile)
	next := bld.Op(flowgraph.Plus, i, one)
	i.AddIncoming(next, loop.ID)
	l.annotateLoop(bld.If(bld.Op(flowgraph.Less, next, count), loop, exit))
}
