package llvm

import (
	"math"
	"strings"
	"testing"

	"github.com/eaburns/memlower/flowgraph"
	"github.com/eaburns/memlower/lower"
	"github.com/eaburns/memlower/target"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bytePtr(space int) *flowgraph.AddrType {
	return &flowgraph.AddrType{Elem: flowgraph.Int8(), Space: space}
}

func generate(t *testing.T, mod *flowgraph.Mod, opts ...Option) string {
	t.Helper()
	var s strings.Builder
	require.NoError(t, Generate(&s, mod, opts...))
	return s.String()
}

func TestGenerateLoweredCopy(t *testing.T) {
	f := flowgraph.NewFunc("copy",
		&flowgraph.ParmDef{Name: "dst", Type: bytePtr(0), NoAlias: true},
		&flowgraph.ParmDef{Name: "src", Type: bytePtr(0), NoAlias: true})
	bld := flowgraph.AtEnd(f.Blocks[0])
	bld.MemCpy(f.Parm(0), f.Parm(1), bld.IntConst(flowgraph.Int64(), 12), 4, 4)
	bld.Return()
	mod := &flowgraph.Mod{Path: "copy.yaml", Layout: flowgraph.DefaultLayout, Funcs: []*flowgraph.FuncDef{f}}

	l := lower.New(lower.Config{FullUnroll: true}, target.Wide{MaxBytes: 4})
	require.Equal(t, 1, l.Lower(mod))
	require.NoError(t, flowgraph.Check(f))

	s := generate(t, mod, Triple("x86_64-unknown-linux-gnu"))
	for _, want := range []string{
		"; ModuleID = \"copy.yaml\"\n",
		"target triple = \"x86_64-unknown-linux-gnu\"\n",
		"define void @\"copy\"(ptr noalias %\"dst\", ptr noalias %\"src\") {\n",
		"b0.entry:\n",
		"getelementptr i8, ptr %\"src\", i64 0\n",
		"br label %b2.load-store-loop\n",
		"b1.memcpy-split:\n",
		"= load i32, ptr %x",
		", align 4, !alias.scope !2\n",
		", align 4, !noalias !2\n",
		", !llvm.loop !4\n",
		"\tret void\n",
		"!0 = distinct !{!0, !\"MemCopyDomain\"}\n",
		"!1 = distinct !{!1, !0, !\"MemCopyAliasScope\"}\n",
		"!2 = !{!1}\n",
		"!3 = !{!\"llvm.loop.unroll.full\"}\n",
		"!4 = distinct !{!4, !3}\n",
	} {
		assert.Contains(t, s, want)
	}
	assert.NotContains(t, s, "declare")
	assert.NotContains(t, s, "call")
}

func TestGenerateIntrinsics(t *testing.T) {
	f := flowgraph.NewFunc("f",
		&flowgraph.ParmDef{Name: "dst", Type: bytePtr(0)},
		&flowgraph.ParmDef{Name: "src", Type: bytePtr(1)},
		&flowgraph.ParmDef{Name: "n", Type: flowgraph.Int64()})
	bld := flowgraph.AtEnd(f.Blocks[0])
	dst, src, n := f.Parm(0), f.Parm(1), f.Parm(2)
	bld.MemCpy(dst, src, n, 1, 2)
	bld.MemMove(dst, src, n, 1, 1).Volatile = true
	bld.MemSet(dst, n, bld.IntConst(flowgraph.Int8(), 7), 8)
	bld.MemCpy(dst, src, n, 4, 4).ElemSize = 4
	bld.Return()
	mod := &flowgraph.Mod{Funcs: []*flowgraph.FuncDef{f}}

	s := generate(t, mod)
	for _, want := range []string{
		"define void @\"f\"(ptr %\"dst\", ptr addrspace(1) %\"src\", i64 %\"n\") {\n",
		"\tcall void @llvm.memcpy.p0.p1.i64(ptr align 1 %\"dst\", ptr addrspace(1) align 2 %\"src\", i64 %\"n\", i1 false)\n",
		"\tcall void @llvm.memmove.p0.p1.i64(ptr align 1 %\"dst\", ptr addrspace(1) align 1 %\"src\", i64 %\"n\", i1 true)\n",
		"\tcall void @llvm.memset.p0.i64(ptr align 8 %\"dst\", i8 7, i64 %\"n\", i1 false)\n",
		"\tcall void @llvm.memcpy.element.unordered.atomic.p0.p1.i64(ptr align 4 %\"dst\", ptr addrspace(1) align 4 %\"src\", i64 %\"n\", i32 4)\n",
		"declare void @llvm.memcpy.element.unordered.atomic.p0.p1.i64(ptr, ptr addrspace(1), i64, i32)\n",
		"declare void @llvm.memcpy.p0.p1.i64(ptr, ptr addrspace(1), i64, i1)\n",
		"declare void @llvm.memmove.p0.p1.i64(ptr, ptr addrspace(1), i64, i1)\n",
		"declare void @llvm.memset.p0.i64(ptr, i8, i64, i1)\n",
	} {
		assert.Contains(t, s, want)
	}
	assert.NotContains(t, s, "ModuleID")
	assert.NotContains(t, s, "!")
}

func TestGenerateAccesses(t *testing.T) {
	i32 := &flowgraph.IntType{Size: 32}
	f := flowgraph.NewFunc("f", &flowgraph.ParmDef{Name: "p", Type: &flowgraph.AddrType{Elem: i32}})
	bld := flowgraph.AtEnd(f.Blocks[0])
	p := f.Parm(0)
	q := bld.Index(p, bld.IntConst(flowgraph.Int64(), 3))
	ld := bld.Load(q, 4, true)
	st := bld.Store(p, ld, 4, false)
	st.Atomic = true
	bld.Store(bld.Alloc(16, 8), bld.IntConst(flowgraph.Int8(), 1), 8, false)
	bld.Return()

	s := generate(t, &flowgraph.Mod{Funcs: []*flowgraph.FuncDef{f}})
	for _, want := range []string{
		" = getelementptr i32, ptr %\"p\", i64 3\n",
		" = load volatile i32, ptr %x",
		"\tstore atomic i32 %x",
		", ptr %\"p\" unordered, align 4\n",
		" = alloca i8, i64 16, align 8\n",
		"\tstore i8 1, ptr %x",
	} {
		assert.Contains(t, s, want)
	}
}

type errWriter struct{}

func (errWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestGenerateWriteError(t *testing.T) {
	f := flowgraph.NewFunc("f")
	flowgraph.AtEnd(f.Blocks[0]).Return()
	err := Generate(errWriter{}, &flowgraph.Mod{Funcs: []*flowgraph.FuncDef{f}})
	require.Error(t, err)
	assert.Equal(t, "disk full", err.Error())
}

func TestFloatText(t *testing.T) {
	one32 := &flowgraph.Float{T: flowgraph.FloatType{Size: 32}, Bits: uint64(math.Float32bits(1))}
	assert.Equal(t, "0x3FF0000000000000", floatText(one32))
	one64 := &flowgraph.Float{T: flowgraph.FloatType{Size: 64}, Bits: math.Float64bits(1)}
	assert.Equal(t, "0x3FF0000000000000", floatText(one64))
	half := &flowgraph.Float{T: flowgraph.FloatType{Size: 16}, Bits: 0x3C00}
	assert.Equal(t, "0xH3C00", floatText(half))
}

func TestQuote(t *testing.T) {
	assert.Equal(t, `"abc"`, quote("abc"))
	assert.Equal(t, `"a\22b\5C\0A"`, quote("a\"b\\\n"))
}
