package flowgraph

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Check returns an error describing every structural problem in f:
// unterminated blocks, misplaced terminals or phis,
// branches to missing blocks, phi edges that disagree
// with the block's predecessors, and uses of values
// that are not defined in f.
func Check(f *FuncDef) error {
	var err error
	defs := make(map[Value]bool)
	for _, b := range f.Blocks {
		for _, r := range b.Instrs {
			if v, ok := r.(Value); ok {
				defs[v] = true
			}
		}
	}
	for i, b := range f.Blocks {
		if b.ID != BlockID(i) || b.Func != f {
			err = multierr.Append(err, errors.Errorf("%s: block %d: bad ID %d or owner", f.Name, i, b.ID))
		}
		if b.Terminal() == nil {
			err = multierr.Append(err, errors.Errorf("%s: block %d: not terminated", f.Name, b.ID))
		}
		in := f.In(b.ID)
		phis := true
		for j, r := range b.Instrs {
			if _, ok := r.(Terminal); ok && j != len(b.Instrs)-1 {
				err = multierr.Append(err, errors.Errorf("%s: block %d: terminal %s before end", f.Name, b.ID, r))
			}
			for _, u := range r.Uses() {
				if u == nil || !defs[u] {
					err = multierr.Append(err, errors.Errorf("%s: block %d: %s uses undefined value", f.Name, b.ID, r))
				}
			}
			p, ok := r.(*Phi)
			switch {
			case !ok:
				phis = false
			case !phis:
				err = multierr.Append(err, errors.Errorf("%s: block %d: phi x%d after non-phi", f.Name, b.ID, p.Num()))
			default:
				err = multierr.Append(err, checkPhi(f, b, p, in))
			}
			if x, ok := r.(*If); ok && !EqType(x.Cond.Type(), Bool()) {
				err = multierr.Append(err, errors.Errorf("%s: block %d: condition of type %s", f.Name, b.ID, x.Cond.Type()))
			}
		}
		for _, o := range b.Out() {
			if o < 0 || int(o) >= len(f.Blocks) {
				err = multierr.Append(err, errors.Errorf("%s: block %d: branch to missing block %d", f.Name, b.ID, o))
			}
		}
	}
	return err
}

func checkPhi(f *FuncDef, b *BasicBlock, p *Phi, in []BlockID) error {
	if len(p.Edges) != len(in) {
		return errors.Errorf("%s: block %d: phi x%d has %d edges, block has %d predecessors",
			f.Name, b.ID, p.Num(), len(p.Edges), len(in))
	}
	for _, pred := range in {
		if p.Incoming(pred) == nil {
			return errors.Errorf("%s: block %d: phi x%d has no edge from %d", f.Name, b.ID, p.Num(), pred)
		}
	}
	return nil
}

// Intrinsics returns the bulk memory intrinsics in f, in block order.
func Intrinsics(f *FuncDef) []Instruction {
	var rs []Instruction
	for _, b := range f.Blocks {
		for _, r := range b.Instrs {
			switch r.(type) {
			case *MemCpy, *MemMove, *MemSet:
				rs = append(rs, r)
			}
		}
	}
	return rs
}
