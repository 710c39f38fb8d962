package memfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/eaburns/memlower/flowgraph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{in: "i8", want: "i8"},
		{in: "i24", want: "i24"},
		{in: "f32", want: "f32"},
		{in: "*i8", want: "*i8"},
		{in: "*i8 addrspace(1)", want: "*i8 addrspace(1)"},
		{in: "**i64", want: "**i64"},
		{in: "<4 x i32>", want: "<4 x i32>"},
		{in: "[3 x i16]", want: "[3 x i16]"},
		{in: "{i8, i32}", want: "{i8, i32}"},
		{in: "{}", want: "{}"},
		{in: "*{i8, [2 x f64]}", want: "*{i8, [2 x f64]}"},
		{in: " < 4 x i32 > ", want: "<4 x i32>"},
		{in: "{ i8 ,i16 }", want: "{i8, i16}"},
	}
	for _, test := range tests {
		test := test
		t.Run(test.in, func(t *testing.T) {
			typ, err := ParseType(test.in)
			require.NoError(t, err)
			assert.Equal(t, test.want, typ.String())
		})
	}
}

func TestParseTypeErrors(t *testing.T) {
	tests := []struct {
		in, err string
	}{
		{in: "", err: "expected a type, got end of type"},
		{in: "q", err: "expected a type"},
		{in: "i", err: "expected a number"},
		{in: "i0", err: "zero-width integer"},
		{in: "f8", err: "bad float size 8"},
		{in: "*", err: "got end of type"},
		{in: "[3 i8]", err: `expected "x"`},
		{in: "{i8 i32}", err: `expected ","`},
		{in: "<2 x {i8}>", err: "vector of non-scalar {i8}"},
		{in: "i8 x", err: `unexpected "x"`},
		{in: "*i8 addrspace(", err: "expected a number"},
	}
	for _, test := range tests {
		test := test
		t.Run(test.in, func(t *testing.T) {
			_, err := ParseType(test.in)
			require.Error(t, err)
			assert.Contains(t, err.Error(), test.err)
		})
	}
}

const copyFile = `
funcs:
  - name: copy
    params:
      - {name: dst, type: "*i32", noalias: true}
      - {name: src, type: "*i32 addrspace(1)"}
      - {name: n, type: i64}
    body:
      - {op: memcpy, dst: dst, src: src, len: 12, dst-align: 4, src-align: 4}
      - {op: memcpy, dst: dst, src: src, len: n, dst-align: 8, src-align: 4, element-size: 4}
      - {op: alloc, name: tmp, size: 16, align: 8}
      - {op: cast, name: words, src: tmp, type: "*i64"}
      - {op: index, name: second, base: words, index: 1}
      - {op: memmove, dst: second, src: tmp, len: n, volatile: true}
      - {op: memset, dst: dst, len: n, value: 0xAB, align: 4}
`

func TestRead(t *testing.T) {
	mod, err := Read("copy.yaml", strings.NewReader(copyFile))
	require.NoError(t, err)
	assert.Equal(t, "copy.yaml", mod.Path)
	assert.Equal(t, flowgraph.DefaultLayout, mod.Layout)
	require.Len(t, mod.Funcs, 1)

	f := mod.Funcs[0]
	assert.Equal(t, "copy", f.Name)
	require.Len(t, f.Parms, 3)
	assert.True(t, f.Parms[0].NoAlias)
	assert.Equal(t, "*i32 addrspace(1)", f.Parms[1].Type.String())
	require.NoError(t, flowgraph.Check(f))

	rs := flowgraph.Intrinsics(f)
	require.Len(t, rs, 4)

	cpy := rs[0].(*flowgraph.MemCpy)
	n, ok := flowgraph.ConstLen(cpy.Len)
	require.True(t, ok)
	assert.Equal(t, uint64(12), n)
	assert.Equal(t, f.Parm(0), cpy.Dst)
	assert.Equal(t, 4, cpy.DstAlign)
	assert.Equal(t, 0, cpy.ElemSize)

	atomic := rs[1].(*flowgraph.MemCpy)
	assert.Equal(t, 4, atomic.ElemSize)
	assert.Equal(t, 8, atomic.DstAlign)
	assert.Equal(t, f.Parm(2), atomic.Len)

	move := rs[2].(*flowgraph.MemMove)
	assert.True(t, move.Volatile)
	assert.Equal(t, 1, move.DstAlign)
	idx, ok := move.Dst.(*flowgraph.Index)
	require.True(t, ok)
	assert.Equal(t, "*i64", idx.Type().String())
	_, ok = move.Src.(*flowgraph.Alloc)
	assert.True(t, ok)

	set := rs[3].(*flowgraph.MemSet)
	v, ok := flowgraph.ConstLen(set.Val)
	require.True(t, ok)
	assert.Equal(t, uint64(0xAB), v)
	assert.Equal(t, "i8", set.Val.Type().String())
	assert.Equal(t, 4, set.Align)
}

func TestReadPointerSize(t *testing.T) {
	mod, err := Read("small.yaml", strings.NewReader("pointer-size: 4\nfuncs: []\n"))
	require.NoError(t, err)
	assert.Equal(t, flowgraph.Layout{PtrSize: 4}, mod.Layout)
	assert.Empty(t, mod.Funcs)
}

func TestReadErrors(t *testing.T) {
	const parms = `
    params:
      - {name: p, type: "*i8"}
      - {name: q, type: "*i8"}
      - {name: n, type: i64}
`
	tests := []struct {
		name string
		file string
		err  string
	}{
		{
			name: "unknown field",
			file: "funcs:\n  - name: f\n    bodyy: []\n",
			err:  "field bodyy not found",
		},
		{
			name: "unnamed func",
			file: "funcs:\n  - body: []\n",
			err:  "func has no name",
		},
		{
			name: "redefined func",
			file: "funcs:\n  - name: f\n  - name: f\n",
			err:  "func f redefined",
		},
		{
			name: "bad param type",
			file: "funcs:\n  - name: f\n    params: [{name: x, type: i0}]\n",
			err:  "func f: param x: type \"i0\"",
		},
		{
			name: "noalias integer",
			file: "funcs:\n  - name: f\n    params: [{name: x, type: i64, noalias: true}]\n",
			err:  "noalias on non-address type i64",
		},
		{
			name: "unknown op",
			file: "funcs:\n  - name: f" + parms + "    body: [{op: memcpyy}]\n",
			err:  "func f: body[0] (memcpyy): unknown op \"memcpyy\"",
		},
		{
			name: "undefined operand",
			file: "funcs:\n  - name: f" + parms + "    body: [{op: memcpy, dst: p, src: r, len: 1}]\n",
			err:  "src r is undefined",
		},
		{
			name: "missing operand",
			file: "funcs:\n  - name: f" + parms + "    body: [{op: memmove, dst: p, src: q}]\n",
			err:  "missing len",
		},
		{
			name: "non-address operand",
			file: "funcs:\n  - name: f" + parms + "    body: [{op: memset, dst: n, len: 1, value: 0}]\n",
			err:  "dst n has non-address type i64",
		},
		{
			name: "fill value overflow",
			file: "funcs:\n  - name: f" + parms + "    body: [{op: memset, dst: p, len: 1, value: 256}]\n",
			err:  "value 256 overflows i8",
		},
		{
			name: "non-byte fill value",
			file: "funcs:\n  - name: f" + parms + "    body: [{op: memset, dst: p, len: 1, value: n}]\n",
			err:  "value has type i64, want i8",
		},
		{
			name: "bad alignment",
			file: "funcs:\n  - name: f" + parms + "    body: [{op: memcpy, dst: p, src: q, len: 1, dst-align: 3}]\n",
			err:  "alignment 3 is not a power of two",
		},
		{
			name: "atomic underaligned",
			file: "funcs:\n  - name: f" + parms + "    body: [{op: memcpy, dst: p, src: q, len: 8, element-size: 4}]\n",
			err:  "alignment below element-size 4",
		},
		{
			name: "atomic length",
			file: "funcs:\n  - name: f" + parms +
				"    body: [{op: memcpy, dst: p, src: q, len: 6, dst-align: 4, src-align: 4, element-size: 4}]\n",
			err: "len 6 is not a multiple of element-size 4",
		},
		{
			name: "atomic volatile",
			file: "funcs:\n  - name: f" + parms +
				"    body: [{op: memcpy, dst: p, src: q, len: 8, dst-align: 4, src-align: 4, element-size: 4, volatile: true}]\n",
			err: "atomic memcpy cannot be volatile",
		},
		{
			name: "atomic memmove",
			file: "funcs:\n  - name: f" + parms + "    body: [{op: memmove, dst: p, src: q, len: 8, element-size: 1}]\n",
			err:  "element-size is only allowed on memcpy",
		},
		{
			name: "cast across address spaces",
			file: "funcs:\n  - name: f" + parms + "    body: [{op: cast, name: c, src: p, type: \"*i32 addrspace(1)\"}]\n",
			err:  "changes address space",
		},
		{
			name: "redefined param",
			file: "funcs:\n  - name: f\n    params: [{name: x, type: i64}, {name: x, type: \"*i8\"}]\n",
			err:  "x redefined",
		},
		{
			name: "redefined value",
			file: "funcs:\n  - name: f" + parms + "    body: [{op: alloc, name: p, size: 4}]\n",
			err:  "p redefined",
		},
		{
			name: "bad alloc size",
			file: "funcs:\n  - name: f" + parms + "    body: [{op: alloc, name: a}]\n",
			err:  "bad size 0",
		},
	}
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			_, err := Read("bad.yaml", strings.NewReader(test.file))
			require.Error(t, err)
			assert.Contains(t, err.Error(), test.err)
			assert.True(t, strings.HasPrefix(err.Error(), "bad.yaml: "), "error %q lacks path", err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "copy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(copyFile), 0o644))
	mod, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, mod.Path)
	assert.Len(t, mod.Funcs, 1)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read module file")
}
