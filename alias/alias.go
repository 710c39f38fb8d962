// Package alias classifies whether two memory regions may overlap.
package alias

import "github.com/eaburns/memlower/flowgraph"

type Result int

const (
	MustAlias Result = iota
	MayAlias
	NoAlias
)

func (r Result) String() string {
	switch r {
	case MustAlias:
		return "must"
	case MayAlias:
		return "may"
	case NoAlias:
		return "no"
	default:
		return "impossible"
	}
}

// An Analyzer reports whether two regions of memory are disjoint.
type Analyzer interface {
	// Disjoint returns whether the length bytes starting at src
	// never overlap the length bytes starting at dst.
	// A false result means they may overlap.
	Disjoint(src, dst, length flowgraph.Value) bool
}

// Conservative assumes any two regions may overlap.
type Conservative struct{}

func (Conservative) Disjoint(_, _, _ flowgraph.Value) bool { return false }

// Basic decomposes addresses into a base and a constant offset.
// Regions are disjoint if they are at non-overlapping
// offsets of the same base, or if their bases are distinct
// allocations, or if one base is a noalias parameter.
type Basic struct {
	Layout flowgraph.Layout
}

func (a Basic) Disjoint(src, dst, length flowgraph.Value) bool {
	return a.Alias(src, dst, length) == NoAlias
}

// Alias classifies the regions of length bytes at x and y.
func (a Basic) Alias(x, y, length flowgraph.Value) Result {
	if x == y {
		return MustAlias
	}
	bx, ox, kx := a.decompose(x)
	by, oy, ky := a.decompose(y)
	if bx == by {
		if !kx || !ky {
			return MayAlias
		}
		if ox == oy {
			return MustAlias
		}
		n, ok := flowgraph.ConstLen(length)
		if ok && distance(ox, oy) >= n {
			return NoAlias
		}
		return MayAlias
	}
	if bx == nil || by == nil {
		// Absolute addresses may point anywhere.
		return MayAlias
	}
	if noalias(bx) || noalias(by) {
		return NoAlias
	}
	_, ax := bx.(*flowgraph.Alloc)
	_, ay := by.(*flowgraph.Alloc)
	_, px := bx.(*flowgraph.Parm)
	_, py := by.(*flowgraph.Parm)
	if ax && (ay || py) || ay && px {
		return NoAlias
	}
	return MayAlias
}

// decompose returns the base of an address and its byte offset from the base.
// The offset is known only if every index along the way is constant.
// Absolute addresses have a nil base.
func (a Basic) decompose(v flowgraph.Value) (flowgraph.Value, int64, bool) {
	var off int64
	known := true
	for {
		switch x := v.(type) {
		case *flowgraph.Cast:
			v = x.Src
		case *flowgraph.Index:
			if i, ok := flowgraph.ConstLen(x.Index); ok {
				off += int64(i) * int64(a.Layout.AllocSize(flowgraph.Elem(x.Base.Type())))
			} else {
				known = false
			}
			v = x.Base
		case *flowgraph.AddrConst:
			return nil, off + int64(x.Addr), known
		default:
			return v, off, known
		}
	}
}

func noalias(v flowgraph.Value) bool {
	p, ok := v.(*flowgraph.Parm)
	return ok && p.Def.NoAlias
}

func distance(x, y int64) uint64 {
	if x > y {
		return uint64(x - y)
	}
	return uint64(y - x)
}
