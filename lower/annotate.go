package lower

import "github.com/eaburns/memlower/flowgraph"

const (
	scopeDomain = "MemCopyDomain"
	scopeName   = "MemCopyAliasScope"
)

// scope returns a fresh alias scope for the accesses of a copy
// whose source and destination cannot overlap, or nil.
func (l *Lowerer) scope(d Descriptor) *flowgraph.Scope {
	if d.CanOverlap && d.AtomicElemSize == 0 {
		return nil
	}
	return flowgraph.NewScope(scopeDomain, scopeName)
}

// annotateLoop marks a loop's back-edge branch.
func (l *Lowerer) annotateLoop(br *flowgraph.If) {
	if l.cfg.FullUnroll {
		br.Loop = &flowgraph.LoopMD{UnrollFull: true}
	}
}

// access describes the loads and stores of one copy.
type access struct {
	srcAlign    int
	dstAlign    int
	srcVolatile bool
	dstVolatile bool
	atomic      bool
	scope       *flowgraph.Scope
}

func newAccess(d Descriptor, scope *flowgraph.Scope) access {
	return access{
		srcAlign:    d.SrcAlign,
		dstAlign:    d.DstAlign,
		srcVolatile: d.SrcVolatile,
		dstVolatile: d.DstVolatile,
		atomic:      d.AtomicElemSize > 0,
		scope:       scope,
	}
}

// copyOne loads from src and stores to dst,
// assuming each is aligned to the given alignments.
func (acc access) copyOne(bld *flowgraph.Builder, src, dst Value, srcAlign, dstAlign int) {
	ld := bld.Load(src, srcAlign, acc.srcVolatile)
	ld.SetComment("element")
	ld.Atomic = acc.atomic
	ld.Scope = acc.scope
	st := bld.Store(dst, ld, dstAlign, acc.dstVolatile)
	st.Atomic = acc.atomic
	st.NoAlias = acc.scope
}
