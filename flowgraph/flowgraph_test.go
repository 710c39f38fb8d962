package flowgraph_test

import (
	"testing"

	"github.com/eaburns/memlower/flowgraph"
	"github.com/eaburns/memlower/flowgraph/interp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func bytePtr() *flowgraph.AddrType {
	return &flowgraph.AddrType{Elem: flowgraph.Int8()}
}

func TestLayout(t *testing.T) {
	tests := []struct {
		typ                 flowgraph.Type
		store, alloc, align int
		padding             bool
	}{
		{typ: flowgraph.Int8(), store: 1, alloc: 1, align: 1},
		{typ: flowgraph.Bool(), store: 1, alloc: 1, align: 1, padding: true},
		{typ: &flowgraph.IntType{Size: 24}, store: 3, alloc: 4, align: 4, padding: true},
		{typ: flowgraph.Int64(), store: 8, alloc: 8, align: 8},
		{typ: &flowgraph.IntType{Size: 128}, store: 16, alloc: 16, align: 8},
		{typ: &flowgraph.FloatType{Size: 64}, store: 8, alloc: 8, align: 8},
		{typ: bytePtr(), store: 8, alloc: 8, align: 8},
		{typ: &flowgraph.VectorType{Elem: &flowgraph.IntType{Size: 32}, Len: 4}, store: 16, alloc: 16, align: 16},
		{typ: &flowgraph.ArrayType{Elem: &flowgraph.IntType{Size: 16}, Len: 3}, store: 6, alloc: 6, align: 2},
		{
			typ: &flowgraph.StructType{Fields: []flowgraph.Type{
				flowgraph.Int8(),
				&flowgraph.IntType{Size: 32},
			}},
			store: 8, alloc: 8, align: 4, padding: true,
		},
		{
			typ: &flowgraph.StructType{Fields: []flowgraph.Type{
				&flowgraph.IntType{Size: 32},
				&flowgraph.IntType{Size: 32},
			}},
			store: 8, alloc: 8, align: 4,
		},
	}
	l := flowgraph.DefaultLayout
	for _, test := range tests {
		test := test
		t.Run(test.typ.String(), func(t *testing.T) {
			assert.Equal(t, test.store, l.StoreSize(test.typ), "StoreSize")
			assert.Equal(t, test.alloc, l.AllocSize(test.typ), "AllocSize")
			assert.Equal(t, test.align, l.Align(test.typ), "Align")
			assert.Equal(t, test.padding, l.HasPadding(test.typ), "HasPadding")
		})
	}
}

func TestCommonAlign(t *testing.T) {
	tests := []struct {
		align  int
		offset uint64
		want   int
	}{
		{align: 8, offset: 0, want: 8},
		{align: 8, offset: 4, want: 4},
		{align: 8, offset: 12, want: 4},
		{align: 4, offset: 16, want: 4},
		{align: 16, offset: 6, want: 2},
		{align: 1, offset: 3, want: 1},
		{align: 0, offset: 5, want: 1},
	}
	for _, test := range tests {
		if got := flowgraph.CommonAlign(test.align, test.offset); got != test.want {
			t.Errorf("CommonAlign(%d, %d)=%d, want %d", test.align, test.offset, got, test.want)
		}
	}
}

func TestEqType(t *testing.T) {
	assert.True(t, flowgraph.EqType(bytePtr(), bytePtr()))
	assert.False(t, flowgraph.EqType(bytePtr(), &flowgraph.AddrType{Elem: flowgraph.Int8(), Space: 1}))
	assert.False(t, flowgraph.EqType(flowgraph.Int8(), &flowgraph.FloatType{Size: 8}))
	assert.True(t, flowgraph.EqType(
		&flowgraph.StructType{Fields: []flowgraph.Type{flowgraph.Int8(), flowgraph.Int64()}},
		&flowgraph.StructType{Fields: []flowgraph.Type{flowgraph.Int8(), flowgraph.Int64()}}))
}

// storeFunc returns a function storing 7 through its parameter
// from a block reached through a jump.
func storeFunc() *flowgraph.FuncDef {
	f := flowgraph.NewFunc("store", &flowgraph.ParmDef{Name: "p", Type: bytePtr()})
	entry := f.Blocks[0]
	body := f.NewBlock("body")
	dead := f.NewBlock("dead")

	bld := flowgraph.AtEnd(entry)
	p := f.Parm(0)
	c := bld.IntConst(flowgraph.Int8(), 7)
	bld.Jump(body)

	bld = flowgraph.AtEnd(body)
	phi := bld.Phi(flowgraph.Int8())
	phi.AddIncoming(c, entry.ID)
	phi.AddIncoming(c, dead.ID)
	bld.Store(p, phi, 1, false)
	bld.Return()

	flowgraph.AtEnd(dead).Jump(body)
	return f
}

func TestParmNamed(t *testing.T) {
	f := flowgraph.NewFunc("f",
		&flowgraph.ParmDef{Name: "a", Type: bytePtr()},
		&flowgraph.ParmDef{Name: "b", Type: flowgraph.Int64()})
	b := f.ParmNamed("b")
	require.NotNil(t, b)
	assert.Same(t, f.Parms[1], b.Def)
	assert.Same(t, f.Parm(1), b)
	assert.Nil(t, f.ParmNamed("c"))
}

func TestRenumber(t *testing.T) {
	f := storeFunc()
	c := flowgraph.BeforeTerminal(f.Blocks[0]).IntConst(flowgraph.Int8(), 9)
	assert.Equal(t, 3, c.Num())

	f.Renumber()
	var nums []int
	for _, b := range f.Blocks {
		for _, r := range b.Instrs {
			if v, ok := r.(flowgraph.Value); ok {
				nums = append(nums, v.Num())
			}
		}
	}
	assert.Equal(t, []int{0, 1, 2, 3}, nums)
	assert.Equal(t, 2, c.Num())
	assert.Contains(t, f.String(), "x3 := phi(0: x1, 2: x1) // i8")

	next := flowgraph.BeforeTerminal(f.Blocks[0]).IntConst(flowgraph.Int8(), 1)
	assert.Equal(t, 4, next.Num())
}

func TestCheck(t *testing.T) {
	require.NoError(t, flowgraph.Check(storeFunc()))

	unterminated := flowgraph.NewFunc("unterminated")
	err := flowgraph.Check(unterminated)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not terminated")

	f := flowgraph.NewFunc("badphi")
	next := f.NewBlock("next")
	flowgraph.AtEnd(f.Blocks[0]).Jump(next)
	bld := flowgraph.AtEnd(next)
	bld.Phi(flowgraph.Int8())
	bld.Jump(f.Blocks[0])
	err = flowgraph.Check(f)
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 1)
	assert.Contains(t, err.Error(), "has 0 edges")
}

func TestSplitBlock(t *testing.T) {
	f := storeFunc()
	body := f.Blocks[1]
	tail := f.SplitBlock(body, body.Index(body.Terminal()), "tail")
	require.NoError(t, flowgraph.Check(f))
	assert.Equal(t, []flowgraph.BlockID{tail.ID}, body.Out())
	assert.Equal(t, []flowgraph.BlockID{body.ID}, f.In(tail.ID))
	assert.IsType(t, &flowgraph.Return{}, tail.Terminal())
}

func TestSplitBlockUpdatesPhis(t *testing.T) {
	f := flowgraph.NewFunc("f")
	entry := f.Blocks[0]
	join := f.NewBlock("join")
	bld := flowgraph.AtEnd(entry)
	c := bld.IntConst(flowgraph.Int8(), 1)
	bld.Jump(join)
	bld = flowgraph.AtEnd(join)
	phi := bld.Phi(flowgraph.Int8())
	phi.AddIncoming(c, entry.ID)
	bld.Return()

	tail := f.SplitBlock(entry, 1, "tail")
	require.NoError(t, flowgraph.Check(f))
	assert.Equal(t, flowgraph.Value(c), phi.Incoming(tail.ID))
	assert.Nil(t, phi.Incoming(entry.ID))
}

func TestOptimize(t *testing.T) {
	f := storeFunc()
	flowgraph.Optimize(f)
	require.NoError(t, flowgraph.Check(f))
	require.Len(t, f.Blocks, 1)
	for _, r := range f.Blocks[0].Instrs {
		_, ok := r.(*flowgraph.Phi)
		assert.False(t, ok, "phi remains: %s", r)
	}

	mem := []byte{0, 0}
	in := interp.New(mem)
	in.Eval(f, 1)
	assert.Equal(t, []byte{0, 7}, in.Mem)
}

func TestOptimizeKeepsVolatileLoads(t *testing.T) {
	f := flowgraph.NewFunc("f", &flowgraph.ParmDef{Name: "p", Type: bytePtr()})
	bld := flowgraph.AtEnd(f.Blocks[0])
	p := f.Parm(0)
	bld.Load(p, 1, true)
	bld.Load(p, 1, false)
	bld.Return()
	flowgraph.Optimize(f)
	var loads int
	for _, r := range f.Blocks[0].Instrs {
		if l, ok := r.(*flowgraph.Load); ok {
			assert.True(t, l.Volatile)
			loads++
		}
	}
	assert.Equal(t, 1, loads)
}

func TestString(t *testing.T) {
	f := storeFunc()
	s := f.String()
	for _, want := range []string{
		"func store(p *i8) {",
		"0 entry:\tin=[], out=[1]",
		"1 body:\tin=[0, 2], out=[]",
		"x2 := phi(0: x1, 2: x1) // i8",
		"store(*x0, x2) align 1",
		"return",
	} {
		assert.Contains(t, s, want)
	}
}
