package flowgraph

// Optimize simplifies the control flow of f
// without changing its behavior.
func Optimize(f *FuncDef) {
	rmUnreach(f)
	mergeBlocks(f)
	rmUnreach(f)
	rmDead(f)
}

// rmUnreach removes blocks not reachable from the entry block
// and compacts the block arena.
func rmUnreach(f *FuncDef) {
	if len(f.Blocks) == 0 {
		return
	}
	seen := make(map[BlockID]bool)
	seen[0] = true
	todo := []BlockID{0}
	for len(todo) > 0 {
		b := todo[len(todo)-1]
		todo = todo[:len(todo)-1]
		for _, o := range f.Blocks[b].Out() {
			if !seen[o] {
				seen[o] = true
				todo = append(todo, o)
			}
		}
	}
	ids := make(map[BlockID]BlockID)
	var i int
	for _, b := range f.Blocks {
		if !seen[b.ID] {
			continue
		}
		ids[b.ID] = BlockID(i)
		f.Blocks[i] = b
		i++
	}
	f.Blocks = f.Blocks[:i]
	for _, b := range f.Blocks {
		b.ID = ids[b.ID]
		for _, r := range b.Instrs {
			p, ok := r.(*Phi)
			if !ok {
				continue
			}
			var n int
			for _, e := range p.Edges {
				if _, ok := ids[e.Block]; ok {
					p.Edges[n] = e
					n++
				}
			}
			p.Edges = p.Edges[:n]
			p.subBlocks(ids)
		}
		if t := b.Terminal(); t != nil {
			t.subBlocks(ids)
		}
	}
}

// mergeBlocks appends each block that is the only successor
// of its only predecessor onto that predecessor.
func mergeBlocks(f *FuncDef) {
	for changed := true; changed; {
		changed = false
		for _, b := range f.Blocks {
			if b.ID == 0 || len(b.Instrs) == 0 {
				continue
			}
			in := f.In(b.ID)
			if len(in) != 1 || in[0] == b.ID {
				continue
			}
			pred := f.Blocks[in[0]]
			if j, ok := pred.Terminal().(*Jump); !ok || j.Dst != b.ID {
				continue
			}
			subs := make(map[Value]Value)
			var rest []Instruction
			for _, r := range b.Instrs {
				if p, ok := r.(*Phi); ok {
					subs[p] = p.Incoming(pred.ID)
					continue
				}
				rest = append(rest, r)
			}
			SubValues(f, subs)
			pred.Instrs = append(pred.Instrs[:len(pred.Instrs)-1], rest...)
			b.Instrs = nil
			for _, o := range pred.Out() {
				for _, r := range f.Blocks[o].Instrs {
					if p, ok := r.(*Phi); ok {
						p.subBlocks(map[BlockID]BlockID{b.ID: pred.ID})
					}
				}
			}
			changed = true
		}
	}
}

// rmDead removes values that have no side effects and no uses.
func rmDead(f *FuncDef) {
	for changed := true; changed; {
		changed = false
		used := make(map[Value]bool)
		for _, b := range f.Blocks {
			for _, r := range b.Instrs {
				for _, u := range r.Uses() {
					if u != r {
						used[u] = true
					}
				}
			}
		}
		for _, b := range f.Blocks {
			var i int
			for _, r := range b.Instrs {
				if v, ok := r.(Value); ok && !used[v] && isPure(v) {
					changed = true
					continue
				}
				b.Instrs[i] = r
				i++
			}
			b.Instrs = b.Instrs[:i]
		}
	}
}

func isPure(v Value) bool {
	switch v := v.(type) {
	case *Parm, *Alloc:
		return false
	case *Load:
		return !v.Volatile && !v.Atomic
	default:
		return true
	}
}
