package interp

import (
	"math/big"
	"testing"

	"github.com/eaburns/memlower/flowgraph"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bytePtr() *flowgraph.AddrType {
	return &flowgraph.AddrType{Elem: flowgraph.Int8()}
}

// countFunc returns a function that stores i to p[i] for i in [0, n)
// where p is an array of 64-bit integers.
func countFunc() *flowgraph.FuncDef {
	i64 := flowgraph.Int64()
	f := flowgraph.NewFunc("count",
		&flowgraph.ParmDef{Name: "p", Type: &flowgraph.AddrType{Elem: i64}},
		&flowgraph.ParmDef{Name: "n", Type: i64})
	entry := f.Blocks[0]
	loop := f.NewBlock("loop")
	body := f.NewBlock("body")
	done := f.NewBlock("done")

	bld := flowgraph.AtEnd(entry)
	p, n := f.Parm(0), f.Parm(1)
	zero := bld.IntConst(i64, 0)
	one := bld.IntConst(i64, 1)
	bld.Jump(loop)

	bld = flowgraph.AtEnd(loop)
	i := bld.Phi(i64)
	i.AddIncoming(zero, entry.ID)
	bld.If(bld.Op(flowgraph.Less, i, n), body, done)

	bld = flowgraph.AtEnd(body)
	bld.Store(bld.Index(p, i), i, 8, false)
	i.AddIncoming(bld.Op(flowgraph.Plus, i, one), body.ID)
	bld.Jump(loop)

	flowgraph.AtEnd(done).Return()
	return f
}

func TestEvalLoop(t *testing.T) {
	f := countFunc()
	require.NoError(t, flowgraph.Check(f))

	in := New(make([]byte, 40))
	in.Eval(f, 8, 4)
	want := make([]byte, 40)
	for k := 0; k < 4; k++ {
		want[8+8*k] = byte(k)
	}
	if diff := cmp.Diff(want, in.Mem); diff != "" {
		t.Errorf("memory mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 5, in.Visits[1], "loop header visits")
	assert.Equal(t, 4, in.Visits[2], "body visits")
	assert.Equal(t, 1, in.Visits[3], "exit visits")
	assert.Equal(t, 4, in.Stores)
	assert.Equal(t, 32, in.StoreBytes)
}

func TestEvalZeroTrip(t *testing.T) {
	in := New(make([]byte, 8))
	in.Eval(countFunc(), 0, 0)
	assert.Equal(t, 0, in.Visits[2])
	assert.Equal(t, 0, in.Stores)
}

func TestEvalMaxSteps(t *testing.T) {
	in := New(make([]byte, 8*1000))
	in.MaxSteps = 20
	assert.PanicsWithValue(t, "count: exceeded 20 steps", func() { in.Eval(countFunc(), 0, 1000) })
}

func TestEvalOutOfBounds(t *testing.T) {
	in := New(make([]byte, 16))
	assert.Panics(t, func() { in.Eval(countFunc(), 0, 3) })
}

func TestEvalAlloc(t *testing.T) {
	f := flowgraph.NewFunc("f")
	bld := flowgraph.AtEnd(f.Blocks[0])
	a := bld.Alloc(4, 4)
	bld.Store(a, bld.IntConst(flowgraph.Int8(), 9), 1, false)
	bld.Return()

	in := New(make([]byte, 3))
	in.Eval(f)
	assert.Equal(t, []byte{0, 0, 0, 0, 9, 0, 0, 0}, in.Mem)
}

func intrinsicFunc(build func(*flowgraph.Builder, flowgraph.Value, flowgraph.Value, flowgraph.Value)) *flowgraph.FuncDef {
	f := flowgraph.NewFunc("f",
		&flowgraph.ParmDef{Name: "dst", Type: bytePtr()},
		&flowgraph.ParmDef{Name: "src", Type: bytePtr()},
		&flowgraph.ParmDef{Name: "n", Type: flowgraph.Int64()})
	bld := flowgraph.AtEnd(f.Blocks[0])
	build(bld, f.Parm(0), f.Parm(1), f.Parm(2))
	bld.Return()
	return f
}

func TestEvalIntrinsics(t *testing.T) {
	tests := []struct {
		name          string
		build         func(*flowgraph.Builder, flowgraph.Value, flowgraph.Value, flowgraph.Value)
		dst, src, len uint64
		want          []byte
	}{
		{
			name: "memcpy",
			build: func(b *flowgraph.Builder, dst, src, n flowgraph.Value) {
				b.MemCpy(dst, src, n, 1, 1)
			},
			dst: 4, src: 0, len: 3,
			want: []byte{1, 2, 3, 4, 1, 2, 3, 8},
		},
		{
			name: "memmove forward overlap",
			build: func(b *flowgraph.Builder, dst, src, n flowgraph.Value) {
				b.MemMove(dst, src, n, 1, 1)
			},
			dst: 2, src: 0, len: 4,
			want: []byte{1, 2, 1, 2, 3, 4, 7, 8},
		},
		{
			name: "memmove backward overlap",
			build: func(b *flowgraph.Builder, dst, src, n flowgraph.Value) {
				b.MemMove(dst, src, n, 1, 1)
			},
			dst: 0, src: 2, len: 4,
			want: []byte{3, 4, 5, 6, 5, 6, 7, 8},
		},
		{
			name: "memset",
			build: func(b *flowgraph.Builder, dst, _, n flowgraph.Value) {
				b.MemSet(dst, n, b.IntConst(flowgraph.Int8(), 0xAB), 1)
			},
			dst: 1, len: 3,
			want: []byte{1, 0xAB, 0xAB, 0xAB, 5, 6, 7, 8},
		},
	}
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			in := New([]byte{1, 2, 3, 4, 5, 6, 7, 8})
			in.Eval(intrinsicFunc(test.build), test.dst, test.src, test.len)
			if diff := cmp.Diff(test.want, in.Mem); diff != "" {
				t.Errorf("memory mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEvalMemCpyOverlap(t *testing.T) {
	f := intrinsicFunc(func(b *flowgraph.Builder, dst, src, n flowgraph.Value) {
		b.MemCpy(dst, src, n, 1, 1)
	})
	in := New([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	assert.PanicsWithValue(t, "f: memcpy of overlapping [3, 6) and [1, 4)", func() { in.Eval(f, 3, 1, 3) })
	assert.PanicsWithValue(t, "f: memcpy of overlapping [2, 4) and [2, 4)", func() { in.Eval(f, 2, 2, 2) })

	// Adjacent ranges and empty copies are fine.
	in = New([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	in.Eval(f, 4, 0, 4)
	in.Eval(f, 3, 3, 0)
	assert.Equal(t, []byte{1, 2, 3, 4, 1, 2, 3, 4}, in.Mem)
}

func TestConst(t *testing.T) {
	l := flowgraph.DefaultLayout
	i16 := &flowgraph.IntType{Size: 16}
	x := &flowgraph.Int{T: *i16, Val: big.NewInt(0x1234)}
	assert.Equal(t, []byte{0x34, 0x12}, Const(l, x))

	agg := &flowgraph.Aggregate{
		T:     &flowgraph.StructType{Fields: []flowgraph.Type{flowgraph.Int8(), i16}},
		Elems: []flowgraph.Value{&flowgraph.Int{T: *flowgraph.Int8(), Val: big.NewInt(0xFF)}, x},
	}
	assert.Equal(t, []byte{0xFF, 0, 0x34, 0x12}, Const(l, agg))
}
