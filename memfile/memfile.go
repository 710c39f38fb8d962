// Package memfile reads YAML module descriptions into flowgraph modules.
//
// A description lists functions, each with typed parameters
// and a straight-line body of allocations, address arithmetic,
// and bulk memory intrinsics:
//
//	funcs:
//	  - name: copy
//	    params:
//	      - {name: dst, type: "*i32", noalias: true}
//	      - {name: src, type: "*i32", noalias: true}
//	      - {name: n, type: i64}
//	    body:
//	      - {op: memcpy, dst: dst, src: src, len: 12, dst-align: 4, src-align: 4}
//	      - {op: memset, dst: dst, len: n, value: 0xAB}
//
// Operands name a parameter or an earlier named result,
// or are integer literals. Literal lengths and indices are i64,
// and literal fill values are i8.
package memfile

import (
	"bytes"
	"io"
	"os"
	"strconv"

	"github.com/eaburns/memlower/flowgraph"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// File is a module description.
type File struct {
	// PointerSize is the size of an address in bytes.
	// If zero, flowgraph.DefaultLayout is used.
	PointerSize int    `yaml:"pointer-size,omitempty"`
	Funcs       []Func `yaml:"funcs"`
}

type Func struct {
	Name   string  `yaml:"name"`
	Params []Param `yaml:"params,omitempty"`
	Body   []Instr `yaml:"body"`
}

type Param struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	NoAlias bool   `yaml:"noalias,omitempty"`
}

// Instr is one body instruction.
// Op is one of alloc, cast, index, memcpy, memmove, or memset.
type Instr struct {
	Op string `yaml:"op"`
	// Name names the result of alloc, cast, and index.
	Name string `yaml:"name,omitempty"`

	Dst   string `yaml:"dst,omitempty"`
	Src   string `yaml:"src,omitempty"`
	Len   string `yaml:"len,omitempty"`
	Value string `yaml:"value,omitempty"`

	// Type is the address type that cast converts to.
	Type string `yaml:"type,omitempty"`

	// Base and Index are the operands of index.
	Base  string `yaml:"base,omitempty"`
	Index string `yaml:"index,omitempty"`

	// Size is the byte size of alloc.
	Size int `yaml:"size,omitempty"`

	// Alignments default to 1.
	Align    int `yaml:"align,omitempty"`
	DstAlign int `yaml:"dst-align,omitempty"`
	SrcAlign int `yaml:"src-align,omitempty"`

	Volatile bool `yaml:"volatile,omitempty"`
	// ElementSize, if non-zero, makes a memcpy
	// an element-wise unordered-atomic copy.
	ElementSize int `yaml:"element-size,omitempty"`
}

// Load reads the module description in the file at path.
func Load(path string) (*flowgraph.Mod, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read module file")
	}
	return Read(path, bytes.NewReader(data))
}

// Read reads a module description from r.
// The path names the module and prefixes errors.
func Read(path string, r io.Reader) (*flowgraph.Mod, error) {
	var file File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, errors.Wrapf(err, "%s: failed to parse YAML", path)
	}
	mod, err := file.Build(path)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return mod, nil
}

// Build returns the module described by file.
func (file *File) Build(path string) (*flowgraph.Mod, error) {
	mod := &flowgraph.Mod{Path: path, Layout: flowgraph.DefaultLayout}
	if file.PointerSize < 0 {
		return nil, errors.Errorf("bad pointer-size %d", file.PointerSize)
	}
	if file.PointerSize > 0 {
		mod.Layout = flowgraph.Layout{PtrSize: file.PointerSize}
	}
	seen := make(map[string]bool)
	for _, fd := range file.Funcs {
		if fd.Name == "" {
			return nil, errors.New("func has no name")
		}
		if seen[fd.Name] {
			return nil, errors.Errorf("func %s redefined", fd.Name)
		}
		seen[fd.Name] = true
		f, err := fd.build()
		if err != nil {
			return nil, errors.Wrapf(err, "func %s", fd.Name)
		}
		mod.Funcs = append(mod.Funcs, f)
	}
	return mod, nil
}

func (fd *Func) build() (*flowgraph.FuncDef, error) {
	var parms []*flowgraph.ParmDef
	for _, p := range fd.Params {
		if p.Name == "" {
			return nil, errors.New("param has no name")
		}
		t, err := ParseType(p.Type)
		if err != nil {
			return nil, errors.Wrapf(err, "param %s", p.Name)
		}
		if p.NoAlias && t.Kind() != flowgraph.AddrKind {
			return nil, errors.Errorf("param %s: noalias on non-address type %s", p.Name, t)
		}
		parms = append(parms, &flowgraph.ParmDef{Name: p.Name, Type: t, NoAlias: p.NoAlias})
	}
	f := flowgraph.NewFunc(fd.Name, parms...)
	env := &env{
		bld:  flowgraph.AtEnd(f.Blocks[0]),
		vals: make(map[string]flowgraph.Value),
	}
	for _, p := range parms {
		if err := env.define(p.Name, f.ParmNamed(p.Name)); err != nil {
			return nil, err
		}
	}
	for i := range fd.Body {
		if err := env.instr(&fd.Body[i]); err != nil {
			return nil, errors.Wrapf(err, "body[%d] (%s)", i, fd.Body[i].Op)
		}
	}
	env.bld.Return()
	if err := flowgraph.Check(f); err != nil {
		return nil, err
	}
	return f, nil
}

type env struct {
	bld  *flowgraph.Builder
	vals map[string]flowgraph.Value
}

func (e *env) define(name string, v flowgraph.Value) error {
	if name == "" {
		return errors.New("result has no name")
	}
	if _, ok := e.vals[name]; ok {
		return errors.Errorf("%s redefined", name)
	}
	e.vals[name] = v
	return nil
}

func (e *env) instr(in *Instr) error {
	for _, a := range []int{in.Align, in.DstAlign, in.SrcAlign} {
		if a < 0 || a&(a-1) != 0 {
			return errors.Errorf("alignment %d is not a power of two", a)
		}
	}
	switch in.Op {
	case "alloc":
		if in.Size <= 0 {
			return errors.Errorf("bad size %d", in.Size)
		}
		return e.define(in.Name, e.bld.Alloc(in.Size, align(in.Align)))
	case "cast":
		src, err := e.addr("src", in.Src)
		if err != nil {
			return err
		}
		t, err := ParseType(in.Type)
		if err != nil {
			return err
		}
		at, ok := t.(*flowgraph.AddrType)
		if !ok {
			return errors.Errorf("cast to non-address type %s", t)
		}
		if at.Space != flowgraph.Space(src.Type()) {
			return errors.Errorf("cast from %s to %s changes address space", src.Type(), t)
		}
		return e.define(in.Name, e.bld.Cast(src, at.Elem))
	case "index":
		base, err := e.addr("base", in.Base)
		if err != nil {
			return err
		}
		idx, err := e.integer("index", in.Index)
		if err != nil {
			return err
		}
		return e.define(in.Name, e.bld.Index(base, idx))
	case "memcpy", "memmove":
		dst, src, n, err := e.copyOperands(in)
		if err != nil {
			return err
		}
		if in.Op == "memmove" {
			if in.ElementSize != 0 {
				return errors.New("element-size is only allowed on memcpy")
			}
			m := e.bld.MemMove(dst, src, n, align(in.DstAlign), align(in.SrcAlign))
			m.Volatile = in.Volatile
			return nil
		}
		if err := checkAtomic(in, n); err != nil {
			return err
		}
		m := e.bld.MemCpy(dst, src, n, align(in.DstAlign), align(in.SrcAlign))
		m.Volatile = in.Volatile
		m.ElemSize = in.ElementSize
		return nil
	case "memset":
		dst, err := e.addr("dst", in.Dst)
		if err != nil {
			return err
		}
		n, err := e.integer("len", in.Len)
		if err != nil {
			return err
		}
		val, err := e.operand("value", in.Value, flowgraph.Int8())
		if err != nil {
			return err
		}
		if !flowgraph.IsByte(val.Type()) {
			return errors.Errorf("value has type %s, want i8", val.Type())
		}
		m := e.bld.MemSet(dst, n, val, align(in.Align))
		m.Volatile = in.Volatile
		return nil
	case "":
		return errors.New("missing op")
	default:
		return errors.Errorf("unknown op %q", in.Op)
	}
}

func (e *env) copyOperands(in *Instr) (dst, src, n flowgraph.Value, err error) {
	if dst, err = e.addr("dst", in.Dst); err != nil {
		return nil, nil, nil, err
	}
	if src, err = e.addr("src", in.Src); err != nil {
		return nil, nil, nil, err
	}
	if n, err = e.integer("len", in.Len); err != nil {
		return nil, nil, nil, err
	}
	return dst, src, n, nil
}

func checkAtomic(in *Instr, n flowgraph.Value) error {
	size := in.ElementSize
	switch {
	case size == 0:
		return nil
	case size < 0 || size&(size-1) != 0:
		return errors.Errorf("element-size %d is not a power of two", size)
	case in.Volatile:
		return errors.New("atomic memcpy cannot be volatile")
	case align(in.DstAlign) < size || align(in.SrcAlign) < size:
		return errors.Errorf("alignment below element-size %d", size)
	}
	if x, ok := flowgraph.ConstLen(n); ok && x%uint64(size) != 0 {
		return errors.Errorf("len %d is not a multiple of element-size %d", x, size)
	}
	return nil
}

func (e *env) addr(what, s string) (flowgraph.Value, error) {
	v, err := e.operand(what, s, nil)
	if err != nil {
		return nil, err
	}
	if v.Type().Kind() != flowgraph.AddrKind {
		return nil, errors.Errorf("%s %s has non-address type %s", what, s, v.Type())
	}
	return v, nil
}

func (e *env) integer(what, s string) (flowgraph.Value, error) {
	v, err := e.operand(what, s, flowgraph.Int64())
	if err != nil {
		return nil, err
	}
	if v.Type().Kind() != flowgraph.IntKind {
		return nil, errors.Errorf("%s %s has non-integer type %s", what, s, v.Type())
	}
	return v, nil
}

// operand returns the named value s, or,
// if lit is non-nil, an integer literal of type lit.
func (e *env) operand(what, s string, lit flowgraph.Type) (flowgraph.Value, error) {
	if s == "" {
		return nil, errors.Errorf("missing %s", what)
	}
	if v, ok := e.vals[s]; ok {
		return v, nil
	}
	if lit != nil {
		if x, err := strconv.ParseUint(s, 0, 64); err == nil {
			if bits := lit.(*flowgraph.IntType).Size; bits < 64 && x>>uint(bits) != 0 {
				return nil, errors.Errorf("%s %s overflows %s", what, s, lit)
			}
			return e.bld.IntConst(lit, x), nil
		}
	}
	return nil, errors.Errorf("%s %s is undefined", what, s)
}

func align(a int) int {
	if a <= 0 {
		return 1
	}
	return a
}
