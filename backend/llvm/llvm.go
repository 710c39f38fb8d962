// Package llvm writes flowgraph modules as LLVM textual IR.
package llvm

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/eaburns/memlower/flowgraph"
)

type Option func(*gen)

// Triple sets the module's target triple.
func Triple(triple string) Option {
	return func(g *gen) { g.triple = triple }
}

// Generate writes mod to w.
// It returns any error from writing to w,
// and panics if mod is malformed.
func Generate(w io.Writer, mod *flowgraph.Mod, opts ...Option) error {
	g := &gen{
		w:       w,
		layout:  mod.Layout,
		scopes:  make(map[*flowgraph.Scope]int),
		domains: make(map[*flowgraph.ScopeDomain]int),
		unroll:  -1,
		decls:   make(map[string]string),
	}
	if g.layout.PtrSize == 0 {
		g.layout = flowgraph.DefaultLayout
	}
	for _, o := range opts {
		o(g)
	}
	return g.generate(mod)
}

type gen struct {
	w      io.Writer
	triple string
	layout flowgraph.Layout

	// md holds the metadata node definitions, indexed by node number.
	md []string
	// scopes maps each scope to the number of its scope list node.
	scopes  map[*flowgraph.Scope]int
	domains map[*flowgraph.ScopeDomain]int
	// unroll is the number of the llvm.loop.unroll.full node, or -1.
	unroll int

	// decls maps intrinsic names to their declarations.
	decls map[string]string
}

type ioError struct{ error }

func (g *gen) generate(mod *flowgraph.Mod) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if ioErr, ok := r.(ioError); ok {
				err = ioErr.error
			} else {
				panic(r)
			}
		}
	}()
	if mod.Path != "" {
		g.write("; ModuleID = ", quote(mod.Path), "\n")
	}
	if g.triple != "" {
		g.write("target triple = ", quote(g.triple), "\n")
	}
	for _, f := range mod.Funcs {
		g.write("\n")
		g.writeFuncDef(f)
	}
	if len(g.decls) > 0 {
		g.write("\n")
		var names []string
		for name := range g.decls {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			g.write(g.decls[name], "\n")
		}
	}
	if len(g.md) > 0 {
		g.write("\n")
		for i, md := range g.md {
			g.write(mdRef(i), " = ", md, "\n")
		}
	}
	return nil
}

func (g *gen) writeFuncDef(f *flowgraph.FuncDef) {
	if len(f.Blocks) == 0 {
		g.write("declare void ", f, "(", f.Parms, ")\n")
		return
	}
	g.write("define void ", f, "(", f.Parms, ") {\n")
	for i, b := range f.Blocks {
		if i > 0 {
			g.write("\n")
		}
		g.write(label{b}, ":\n")
		for _, r := range b.Instrs {
			g.writeInstr(f, r)
		}
	}
	g.write("}\n")
}

type label struct{ *flowgraph.BasicBlock }

type typeVal struct{ Value flowgraph.Value }

type mdRef int

func (g *gen) write(vs ...interface{}) {
	for _, v := range vs {
		switch v := v.(type) {
		case int:
			g.writeString(strconv.Itoa(v))
		case string:
			g.writeString(v)
		case flowgraph.Type:
			g.writeType(v)
		case flowgraph.Value:
			g.writeValue(v)
		case typeVal:
			g.write(v.Value.Type(), " ", v.Value)
		case label:
			g.write("b", int(v.ID))
			if v.Name != "" {
				g.write(".", v.Name)
			}
		case mdRef:
			g.write("!", int(v))
		case *flowgraph.FuncDef:
			g.write("@", quote(v.Name))
		case []*flowgraph.ParmDef:
			for i, p := range v {
				if i > 0 {
					g.write(", ")
				}
				g.write(p.Type)
				if p.NoAlias {
					g.write(" noalias")
				}
				g.write(" %", quote(p.Name))
			}
		default:
			panic(fmt.Sprintf("unknown print type: %T", v))
		}
	}
}

func (g *gen) writeInstr(f *flowgraph.FuncDef, r flowgraph.Instruction) {
	switch r := r.(type) {
	case *flowgraph.Parm:
		// Parameters are referenced by name.
	case *flowgraph.Int, *flowgraph.Float, *flowgraph.AddrConst, *flowgraph.Aggregate:
		// Constants are written inline.
	case *flowgraph.Alloc:
		g.line(r, " = alloca i8, i64 ", r.Size, ", align ", r.Align)
	case *flowgraph.Load:
		switch {
		case r.Atomic:
			g.line(r, " = load atomic", volatile(r.Volatile), " ", r.T, ", ", typeVal{r.Addr},
				" unordered, align ", r.Align, g.scopeMD("!alias.scope", r.Scope))
		default:
			g.line(r, " = load", volatile(r.Volatile), " ", r.T, ", ", typeVal{r.Addr},
				", align ", r.Align, g.scopeMD("!alias.scope", r.Scope))
		}
	case *flowgraph.Store:
		switch {
		case r.Atomic:
			g.line("store atomic", volatile(r.Volatile), " ", typeVal{r.Src}, ", ", typeVal{r.Dst},
				" unordered, align ", r.Align, g.scopeMD("!noalias", r.NoAlias))
		default:
			g.line("store", volatile(r.Volatile), " ", typeVal{r.Src}, ", ", typeVal{r.Dst},
				", align ", r.Align, g.scopeMD("!noalias", r.NoAlias))
		}
	case *flowgraph.Cast:
		// Addresses are untyped; a cast only names the address anew.
		g.line(r, " = getelementptr i8, ", typeVal{r.Src}, ", i64 0")
	case *flowgraph.Index:
		g.line(r, " = getelementptr ", flowgraph.Elem(r.Base.Type()), ", ", typeVal{r.Base}, ", ", typeVal{r.Index})
	case *flowgraph.Phi:
		g.writePhi(f, r)
	case *flowgraph.Op:
		g.writeOp(r)
	case *flowgraph.MemCpy:
		if r.ElemSize > 0 {
			name := g.declare("llvm.memcpy.element.unordered.atomic", r.Dst, r.Src, r.Len, "i32")
			g.line("call void @", name, "(", g.pointer(r.Dst, r.DstAlign), ", ", g.pointer(r.Src, r.SrcAlign),
				", ", typeVal{r.Len}, ", i32 ", r.ElemSize, ")")
			break
		}
		name := g.declare("llvm.memcpy", r.Dst, r.Src, r.Len, "i1")
		g.line("call void @", name, "(", g.pointer(r.Dst, r.DstAlign), ", ", g.pointer(r.Src, r.SrcAlign),
			", ", typeVal{r.Len}, ", i1 ", boolean(r.Volatile), ")")
	case *flowgraph.MemMove:
		name := g.declare("llvm.memmove", r.Dst, r.Src, r.Len, "i1")
		g.line("call void @", name, "(", g.pointer(r.Dst, r.DstAlign), ", ", g.pointer(r.Src, r.SrcAlign),
			", ", typeVal{r.Len}, ", i1 ", boolean(r.Volatile), ")")
	case *flowgraph.MemSet:
		name := g.declare("llvm.memset", r.Dst, nil, r.Len, "i1")
		g.line("call void @", name, "(", g.pointer(r.Dst, r.Align), ", ", typeVal{r.Val},
			", ", typeVal{r.Len}, ", i1 ", boolean(r.Volatile), ")")
	case *flowgraph.If:
		yes, no := f.Block(r.Yes), f.Block(r.No)
		var loop string
		if r.Loop != nil && r.Loop.UnrollFull {
			loop = g.loopMD()
		}
		g.line("br ", typeVal{r.Cond}, ", label %", label{yes}, ", label %", label{no}, loop)
	case *flowgraph.Jump:
		g.line("br label %", label{f.Block(r.Dst)})
	case *flowgraph.Return:
		g.line("ret void")
	default:
		panic(fmt.Sprintf("unknown instruction type: %T", r))
	}
}

func (g *gen) writePhi(f *flowgraph.FuncDef, p *flowgraph.Phi) {
	g.write("\t", p, " = phi ", p.T, " ")
	for i, e := range p.Edges {
		if i > 0 {
			g.write(", ")
		}
		g.write("[", e.Value, ", %", label{f.Block(e.Block)}, "]")
	}
	g.write("\n")
}

func (g *gen) writeOp(r *flowgraph.Op) {
	x, y := r.Args[0], r.Args[1]
	switch r.Op {
	case flowgraph.Plus:
		g.line(r, " = add ", typeVal{x}, ", ", y)
	case flowgraph.Minus:
		g.line(r, " = sub ", typeVal{x}, ", ", y)
	case flowgraph.Times:
		g.line(r, " = mul ", typeVal{x}, ", ", y)
	case flowgraph.Divide:
		g.line(r, " = udiv ", typeVal{x}, ", ", y)
	case flowgraph.Modulus:
		g.line(r, " = urem ", typeVal{x}, ", ", y)
	case flowgraph.Eq:
		g.line(r, " = icmp eq ", typeVal{x}, ", ", y)
	case flowgraph.Neq:
		g.line(r, " = icmp ne ", typeVal{x}, ", ", y)
	case flowgraph.Less:
		g.line(r, " = icmp ult ", typeVal{x}, ", ", y)
	default:
		panic(fmt.Sprintf("unknown op: %s", r.Op))
	}
}

// scopeMD returns the metadata attachment
// of a scope list holding s, or "" if s is nil.
func (g *gen) scopeMD(kind string, s *flowgraph.Scope) string {
	if s == nil {
		return ""
	}
	list, ok := g.scopes[s]
	if !ok {
		dom, ok := g.domains[s.Domain]
		if !ok {
			dom = len(g.md)
			g.domains[s.Domain] = dom
			g.md = append(g.md, fmt.Sprintf("distinct !{!%d, !%s}", dom, quote(s.Domain.Name)))
		}
		scope := len(g.md)
		g.md = append(g.md, fmt.Sprintf("distinct !{!%d, !%d, !%s}", scope, dom, quote(s.Name)))
		list = len(g.md)
		g.md = append(g.md, fmt.Sprintf("!{!%d}", scope))
		g.scopes[s] = list
	}
	return fmt.Sprintf(", %s !%d", kind, list)
}

// loopMD returns the metadata attachment of a new loop ID
// requesting full unrolling.
func (g *gen) loopMD() string {
	if g.unroll < 0 {
		g.unroll = len(g.md)
		g.md = append(g.md, `!{!"llvm.loop.unroll.full"}`)
	}
	id := len(g.md)
	g.md = append(g.md, fmt.Sprintf("distinct !{!%d, !%d}", id, g.unroll))
	return fmt.Sprintf(", !llvm.loop !%d", id)
}

// declare records the declaration of an overloaded memory intrinsic
// and returns its mangled name.
// src is nil for intrinsics with a single address operand.
func (g *gen) declare(base string, dst, src, n flowgraph.Value, last string) string {
	name := base + "." + mangle(dst.Type())
	parms := []string{g.typeString(dst.Type())}
	if src != nil {
		name += "." + mangle(src.Type())
		parms = append(parms, g.typeString(src.Type()))
	} else {
		parms = append(parms, "i8")
	}
	name += "." + g.typeString(n.Type())
	parms = append(parms, g.typeString(n.Type()), last)
	g.decls[name] = "declare void @" + name + "(" + strings.Join(parms, ", ") + ")"
	return name
}

func mangle(t flowgraph.Type) string {
	return "p" + strconv.Itoa(flowgraph.Space(t))
}

func (g *gen) typeString(t flowgraph.Type) string {
	var s strings.Builder
	w := g.w
	g.w = &s
	g.writeType(t)
	g.w = w
	return s.String()
}

func (g *gen) line(vs ...interface{}) {
	g.writeString("\t")
	g.write(vs...)
	g.writeString("\n")
}

func (g *gen) writeType(t flowgraph.Type) {
	switch t := t.(type) {
	case *flowgraph.IntType:
		g.write("i", t.Size)
	case *flowgraph.FloatType:
		switch t.Size {
		case 16:
			g.writeString("half")
		case 32:
			g.writeString("float")
		default:
			g.writeString("double")
		}
	case *flowgraph.AddrType:
		g.writeString("ptr")
		if t.Space != 0 {
			g.write(" addrspace(", t.Space, ")")
		}
	case *flowgraph.VectorType:
		g.write("<", t.Len, " x ", t.Elem, ">")
	case *flowgraph.ArrayType:
		g.write("[", t.Len, " x ", t.Elem, "]")
	case *flowgraph.StructType:
		g.writeString("{")
		for i, f := range t.Fields {
			if i > 0 {
				g.writeString(", ")
			}
			g.writeType(f)
		}
		g.writeString("}")
	default:
		panic(fmt.Sprintf("unknown Type type: %T", t))
	}
}

func (g *gen) writeValue(v flowgraph.Value) {
	switch v := v.(type) {
	case *flowgraph.Parm:
		g.write("%", quote(v.Def.Name))
	case *flowgraph.Int:
		g.write(v.Val.String())
	case *flowgraph.Float:
		g.write(floatText(v))
	case *flowgraph.AddrConst:
		g.write("inttoptr (i", 8*g.layout.PtrSize, " ", strconv.FormatUint(v.Addr, 10), " to ", v.Type(), ")")
	case *flowgraph.Aggregate:
		lb, rb := "{", "}"
		switch v.T.Kind() {
		case flowgraph.VectorKind:
			lb, rb = "<", ">"
		case flowgraph.ArrayKind:
			lb, rb = "[", "]"
		}
		g.write(lb)
		for i, e := range v.Elems {
			if i > 0 {
				g.write(", ")
			}
			g.write(typeVal{e})
		}
		g.write(rb)
	default:
		g.write("%x", v.Num())
	}
}

// floatText returns the hexadecimal form of a float constant.
// LLVM writes float and double constants as the bits of a double.
func floatText(v *flowgraph.Float) string {
	switch v.T.Size {
	case 16:
		return fmt.Sprintf("0xH%04X", v.Bits)
	case 32:
		return fmt.Sprintf("0x%016X", math.Float64bits(float64(math.Float32frombits(uint32(v.Bits)))))
	default:
		return fmt.Sprintf("0x%016X", v.Bits)
	}
}

func (g *gen) pointer(v flowgraph.Value, align int) string {
	var s strings.Builder
	w := g.w
	g.w = &s
	g.write(v.Type(), " align ", align, " ", v)
	g.w = w
	return s.String()
}

func volatile(b bool) string {
	if b {
		return " volatile"
	}
	return ""
}

func boolean(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func (g *gen) writeString(s string) {
	if _, err := io.WriteString(g.w, s); err != nil {
		panic(ioError{err})
	}
}

func quote(s string) string {
	var out strings.Builder
	out.WriteRune('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		if ' ' <= c && c <= '~' && c != '"' && c != '\\' {
			out.WriteRune(rune(c))
		} else {
			fmt.Fprintf(&out, "\\%02X", c)
		}
	}
	out.WriteRune('"')
	return out.String()
}
