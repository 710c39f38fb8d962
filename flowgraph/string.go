package flowgraph

import (
	"fmt"
	"strings"
)

func (m *Mod) String() string        { return m.buildString(new(strings.Builder)).String() }
func (t *IntType) String() string    { return t.buildString(new(strings.Builder)).String() }
func (t *FloatType) String() string  { return t.buildString(new(strings.Builder)).String() }
func (t *AddrType) String() string   { return t.buildString(new(strings.Builder)).String() }
func (t *VectorType) String() string { return t.buildString(new(strings.Builder)).String() }
func (t *ArrayType) String() string  { return t.buildString(new(strings.Builder)).String() }
func (t *StructType) String() string { return t.buildString(new(strings.Builder)).String() }
func (f *FuncDef) String() string    { return f.buildString(new(strings.Builder)).String() }
func (b *BasicBlock) String() string { return b.buildString(new(strings.Builder)).String() }
func (r *Store) String() string      { return r.buildString(new(strings.Builder)).String() }
func (r *MemCpy) String() string     { return r.buildString(new(strings.Builder)).String() }
func (r *MemMove) String() string    { return r.buildString(new(strings.Builder)).String() }
func (r *MemSet) String() string     { return r.buildString(new(strings.Builder)).String() }
func (r *If) String() string         { return r.buildString(new(strings.Builder)).String() }
func (r *Jump) String() string       { return r.buildString(new(strings.Builder)).String() }
func (r *Return) String() string     { return r.buildString(new(strings.Builder)).String() }
func (v *Parm) String() string       { return v.buildString(new(strings.Builder)).String() }
func (v *Alloc) String() string      { return v.buildString(new(strings.Builder)).String() }
func (v *Load) String() string       { return v.buildString(new(strings.Builder)).String() }
func (v *Cast) String() string       { return v.buildString(new(strings.Builder)).String() }
func (v *Index) String() string      { return v.buildString(new(strings.Builder)).String() }
func (v *Phi) String() string        { return v.buildString(new(strings.Builder)).String() }
func (v *Int) String() string        { return v.buildString(new(strings.Builder)).String() }
func (v *Float) String() string      { return v.buildString(new(strings.Builder)).String() }
func (v *AddrConst) String() string  { return v.buildString(new(strings.Builder)).String() }
func (v *Aggregate) String() string  { return v.buildString(new(strings.Builder)).String() }
func (v *Op) String() string         { return v.buildString(new(strings.Builder)).String() }

func (m *Mod) buildString(s *strings.Builder) *strings.Builder {
	for _, f := range m.Funcs {
		if s.Len() > 0 {
			s.WriteString("\n\n")
		}
		f.buildString(s)
	}
	return s
}

func (t *IntType) buildString(s *strings.Builder) *strings.Builder {
	fmt.Fprintf(s, "i%d", t.Size)
	return s
}

func (t *FloatType) buildString(s *strings.Builder) *strings.Builder {
	fmt.Fprintf(s, "f%d", t.Size)
	return s
}

func (t *AddrType) buildString(s *strings.Builder) *strings.Builder {
	s.WriteRune('*')
	t.Elem.buildString(s)
	if t.Space != 0 {
		fmt.Fprintf(s, " addrspace(%d)", t.Space)
	}
	return s
}

func (t *VectorType) buildString(s *strings.Builder) *strings.Builder {
	fmt.Fprintf(s, "<%d x ", t.Len)
	t.Elem.buildString(s)
	s.WriteRune('>')
	return s
}

func (t *ArrayType) buildString(s *strings.Builder) *strings.Builder {
	fmt.Fprintf(s, "[%d x ", t.Len)
	t.Elem.buildString(s)
	s.WriteRune(']')
	return s
}

func (t *StructType) buildString(s *strings.Builder) *strings.Builder {
	s.WriteRune('{')
	for i, f := range t.Fields {
		if i > 0 {
			s.WriteString(", ")
		}
		f.buildString(s)
	}
	s.WriteRune('}')
	return s
}

func (f *FuncDef) buildString(s *strings.Builder) *strings.Builder {
	fmt.Fprintf(s, "func %s(", f.Name)
	for i, p := range f.Parms {
		if i > 0 {
			s.WriteString(", ")
		}
		s.WriteString(p.Name)
		s.WriteRune(' ')
		if p.NoAlias {
			s.WriteString("noalias ")
		}
		p.Type.buildString(s)
	}
	s.WriteRune(')')
	if len(f.Blocks) == 0 {
		return s
	}
	s.WriteString(" {")
	for _, b := range f.Blocks {
		s.WriteRune('\n')
		b.buildString(s)
	}
	s.WriteString("\n}")
	return s
}

func (b *BasicBlock) buildString(s *strings.Builder) *strings.Builder {
	fmt.Fprintf(s, "%d %s:\tin=[", b.ID, b.Name)
	if b.Func != nil {
		for i, in := range b.Func.In(b.ID) {
			if i > 0 {
				s.WriteString(", ")
			}
			fmt.Fprintf(s, "%d", in)
		}
	}
	s.WriteString("], out=[")
	for i, out := range b.Out() {
		if i > 0 {
			s.WriteString(", ")
		}
		fmt.Fprintf(s, "%d", out)
	}
	s.WriteRune(']')
	for _, instr := range b.Instrs {
		if instr.Comment() != "" {
			s.WriteString("\n    // ")
			s.WriteString(instr.Comment())
		}
		s.WriteString("\n    ")
		instr.buildString(s)
	}
	return s
}

func writeAccess(s *strings.Builder, align int, volatile, atomic bool) {
	fmt.Fprintf(s, " align %d", align)
	if volatile {
		s.WriteString(" volatile")
	}
	if atomic {
		s.WriteString(" unordered")
	}
}

func (r *Store) buildString(s *strings.Builder) *strings.Builder {
	fmt.Fprintf(s, "store(*x%d, x%d)", r.Dst.Num(), r.Src.Num())
	writeAccess(s, r.Align, r.Volatile, r.Atomic)
	if r.NoAlias != nil {
		fmt.Fprintf(s, " !noalias(%s)", r.NoAlias.Name)
	}
	return s
}

func (r *MemCpy) buildString(s *strings.Builder) *strings.Builder {
	name := "memcpy"
	if r.ElemSize > 0 {
		name = "memcpy.atomic"
	}
	col := newCol(s, "%s(x%d, x%d, x%d)", name, r.Dst.Num(), r.Src.Num(), r.Len.Num())
	if r.ElemSize > 0 {
		col.addCol("// dst align %d, src align %d, elem %d", r.DstAlign, r.SrcAlign, r.ElemSize)
	} else {
		col.addCol("// dst align %d, src align %d", r.DstAlign, r.SrcAlign)
	}
	return s
}

func (r *MemMove) buildString(s *strings.Builder) *strings.Builder {
	col := newCol(s, "memmove(x%d, x%d, x%d)", r.Dst.Num(), r.Src.Num(), r.Len.Num())
	col.addCol("// dst align %d, src align %d", r.DstAlign, r.SrcAlign)
	return s
}

func (r *MemSet) buildString(s *strings.Builder) *strings.Builder {
	col := newCol(s, "memset(x%d, x%d, x%d)", r.Dst.Num(), r.Len.Num(), r.Val.Num())
	col.addCol("// align %d", r.Align)
	return s
}

func (r *If) buildString(s *strings.Builder) *strings.Builder {
	fmt.Fprintf(s, "if x%d then %d else %d", r.Cond.Num(), r.Yes, r.No)
	if r.Loop != nil && r.Loop.UnrollFull {
		s.WriteString(" !unroll.full")
	}
	return s
}

func (r *Jump) buildString(s *strings.Builder) *strings.Builder {
	fmt.Fprintf(s, "jump %d", r.Dst)
	return s
}

func (r *Return) buildString(s *strings.Builder) *strings.Builder {
	s.WriteString("return")
	return s
}

func (v *Parm) buildString(s *strings.Builder) *strings.Builder {
	col := newCol(s, "x%d := %s", v.Num(), v.Def.Name)
	col.addCol("// %s", v.Type())
	return s
}

func (v *Alloc) buildString(s *strings.Builder) *strings.Builder {
	col := newCol(s, "x%d := alloc(%d)", v.Num(), v.Size)
	col.addCol("// align %d", v.Align)
	return s
}

func (v *Load) buildString(s *strings.Builder) *strings.Builder {
	fmt.Fprintf(s, "x%d := *x%d", v.Num(), v.Addr.Num())
	writeAccess(s, v.Align, v.Volatile, v.Atomic)
	if v.Scope != nil {
		fmt.Fprintf(s, " !scope(%s)", v.Scope.Name)
	}
	fmt.Fprintf(s, " // %s", v.Type())
	return s
}

func (v *Cast) buildString(s *strings.Builder) *strings.Builder {
	col := newCol(s, "x%d := (%s)(x%d)", v.Num(), v.T, v.Src.Num())
	col.addCol("// %s", v.Src.Type())
	return s
}

func (v *Index) buildString(s *strings.Builder) *strings.Builder {
	col := newCol(s, "x%d := &x%d[x%d]", v.Num(), v.Base.Num(), v.Index.Num())
	col.addCol("// %s", v.Type())
	return s
}

func (v *Phi) buildString(s *strings.Builder) *strings.Builder {
	fmt.Fprintf(s, "x%d := phi(", v.Num())
	for i, e := range v.Edges {
		if i > 0 {
			s.WriteString(", ")
		}
		fmt.Fprintf(s, "%d: x%d", e.Block, e.Value.Num())
	}
	s.WriteRune(')')
	fmt.Fprintf(s, " // %s", v.Type())
	return s
}

func (v *Int) buildString(s *strings.Builder) *strings.Builder {
	col := newCol(s, "x%d := %s", v.Num(), v.Val.String())
	col.addCol("// %s", v.Type())
	return s
}

func (v *Float) buildString(s *strings.Builder) *strings.Builder {
	col := newCol(s, "x%d := float(%#x)", v.Num(), v.Bits)
	col.addCol("// %s", v.Type())
	return s
}

func (v *AddrConst) buildString(s *strings.Builder) *strings.Builder {
	col := newCol(s, "x%d := addr(%#x)", v.Num(), v.Addr)
	col.addCol("// %s", v.Type())
	return s
}

func (v *Aggregate) buildString(s *strings.Builder) *strings.Builder {
	var elems strings.Builder
	for i, e := range v.Elems {
		if i > 0 {
			elems.WriteString(", ")
		}
		fmt.Fprintf(&elems, "x%d", e.Num())
	}
	col := newCol(s, "x%d := {%s}", v.Num(), elems.String())
	col.addCol("// %s", v.Type())
	return s
}

func (o OpKind) String() string {
	switch o {
	case Plus:
		return "+"
	case Minus:
		return "-"
	case Times:
		return "*"
	case Divide:
		return "/u"
	case Modulus:
		return "%u"
	case Eq:
		return "=="
	case Neq:
		return "!="
	case Less:
		return "<u"
	default:
		panic(fmt.Sprintf("impossible Op: %d", o))
	}
}

func (v *Op) buildString(s *strings.Builder) *strings.Builder {
	col := newCol(s, "x%d := x%d %s x%d", v.Num(), v.Args[0].Num(), v.Op, v.Args[1].Num())
	col.addCol("// %s := %s %s %s", v.Type(), v.Args[0].Type(), v.Op, v.Args[1].Type())
	return s
}

const colWidth = 40

type col struct {
	s     *strings.Builder
	width int
}

func newCol(s *strings.Builder, f string, vs ...interface{}) col {
	start := s.Len()
	fmt.Fprintf(s, f, vs...)
	return col{s: s, width: s.Len() - start}
}

func (c col) addCol(f string, vs ...interface{}) col {
	if pad := colWidth - c.width; pad > 0 {
		c.s.WriteString(strings.Repeat(" ", pad))
	}
	s := fmt.Sprintf(f, vs...)
	if len(s) > colWidth {
		s = s[:colWidth-1] + "…"
	}
	return newCol(c.s, s)
}
