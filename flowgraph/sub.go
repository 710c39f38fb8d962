package flowgraph

func sub(v Value, m map[Value]Value) Value {
	if s, ok := m[v]; ok {
		return s
	}
	return v
}

func (r *Store) subValues(m map[Value]Value) {
	r.Dst = sub(r.Dst, m)
	r.Src = sub(r.Src, m)
}

func (r *MemCpy) subValues(m map[Value]Value) {
	r.Dst = sub(r.Dst, m)
	r.Src = sub(r.Src, m)
	r.Len = sub(r.Len, m)
}

func (r *MemMove) subValues(m map[Value]Value) {
	r.Dst = sub(r.Dst, m)
	r.Src = sub(r.Src, m)
	r.Len = sub(r.Len, m)
}

func (r *MemSet) subValues(m map[Value]Value) {
	r.Dst = sub(r.Dst, m)
	r.Len = sub(r.Len, m)
	r.Val = sub(r.Val, m)
}

func (r *If) subValues(m map[Value]Value)    { r.Cond = sub(r.Cond, m) }
func (*Jump) subValues(map[Value]Value)      {}
func (*Return) subValues(map[Value]Value)    {}
func (*Parm) subValues(map[Value]Value)      {}
func (*Alloc) subValues(map[Value]Value)     {}
func (*Int) subValues(map[Value]Value)       {}
func (*Float) subValues(map[Value]Value)     {}
func (*AddrConst) subValues(map[Value]Value) {}
func (v *Load) subValues(m map[Value]Value)  { v.Addr = sub(v.Addr, m) }
func (v *Cast) subValues(m map[Value]Value)  { v.Src = sub(v.Src, m) }

func (v *Index) subValues(m map[Value]Value) {
	v.Base = sub(v.Base, m)
	v.Index = sub(v.Index, m)
}

func (v *Phi) subValues(m map[Value]Value) {
	for i := range v.Edges {
		v.Edges[i].Value = sub(v.Edges[i].Value, m)
	}
}

func (v *Aggregate) subValues(m map[Value]Value) {
	for i := range v.Elems {
		v.Elems[i] = sub(v.Elems[i], m)
	}
}

func (v *Op) subValues(m map[Value]Value) {
	for i := range v.Args {
		v.Args[i] = sub(v.Args[i], m)
	}
}

func subBlock(b BlockID, m map[BlockID]BlockID) BlockID {
	if s, ok := m[b]; ok {
		return s
	}
	return b
}

func (r *If) subBlocks(m map[BlockID]BlockID) {
	r.Yes = subBlock(r.Yes, m)
	r.No = subBlock(r.No, m)
}

func (r *Jump) subBlocks(m map[BlockID]BlockID) { r.Dst = subBlock(r.Dst, m) }
func (*Return) subBlocks(map[BlockID]BlockID)   {}

func (v *Phi) subBlocks(m map[BlockID]BlockID) {
	for i := range v.Edges {
		v.Edges[i].Block = subBlock(v.Edges[i].Block, m)
	}
}

// SubValues replaces every use of a key of m with its value.
func SubValues(f *FuncDef, m map[Value]Value) {
	for _, b := range f.Blocks {
		for _, r := range b.Instrs {
			r.subValues(m)
		}
	}
}
