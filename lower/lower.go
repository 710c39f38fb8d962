// Package lower expands bulk memory intrinsics
// into explicit load/store loops.
//
// Each expansion builds a region of new blocks in a function:
// a single edge enters it from the block holding the intrinsic,
// and a single edge leaves it into the block that continues
// with the instructions that followed the intrinsic.
package lower

import (
	"fmt"

	"github.com/eaburns/memlower/alias"
	"github.com/eaburns/memlower/flowgraph"
	"github.com/eaburns/memlower/target"
	"go.uber.org/zap"
)

// Config selects optional behavior of a Lowerer.
type Config struct {
	// InferTypes, if set, copies using the common pointee type
	// of the source and destination addresses when it is suitable,
	// instead of the target's default operand type.
	InferTypes bool

	// FullUnroll, if set, marks every generated loop
	// with a request to be fully unrolled.
	FullUnroll bool
}

// A Lowerer expands intrinsics.
// It is not modified after New returns,
// so it may be shared between goroutines
// that lower different functions.
type Lowerer struct {
	cfg    Config
	model  target.Model
	alias  alias.Analyzer
	layout flowgraph.Layout
	log    *zap.SugaredLogger
}

type Option func(*Lowerer)

// WithAlias sets the analyzer that decides whether
// the source and destination of a copy can overlap.
// The default is an alias.Basic using the Lowerer's layout.
func WithAlias(a alias.Analyzer) Option {
	return func(l *Lowerer) { l.alias = a }
}

// WithLayout sets the memory layout. The default is flowgraph.DefaultLayout.
func WithLayout(layout flowgraph.Layout) Option {
	return func(l *Lowerer) { l.layout = layout }
}

// WithLogger sets the logger of expansion events.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(l *Lowerer) { l.log = log }
}

func New(cfg Config, model target.Model, opts ...Option) *Lowerer {
	l := &Lowerer{
		cfg:    cfg,
		model:  model,
		layout: flowgraph.DefaultLayout,
		log:    zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.alias == nil {
		l.alias = alias.Basic{Layout: l.layout}
	}
	return l
}

// Descriptor describes a copy.
type Descriptor struct {
	Src Value
	Dst Value
	// Len is the number of bytes to copy.
	// If it is a *flowgraph.Int, the length is known.
	Len Value

	SrcAlign    int
	DstAlign    int
	SrcVolatile bool
	DstVolatile bool

	// CanOverlap is whether the source and destination may overlap.
	// Copies that cannot overlap have their accesses
	// tagged with a fresh alias scope.
	CanOverlap bool

	// AtomicElemSize, if non-zero, requests an element-wise
	// unordered-atomic copy of AtomicElemSize-byte elements.
	AtomicElemSize int
}

// FillDescriptor describes a fill.
type FillDescriptor struct {
	Dst Value
	Len Value
	// Value is the byte value to store.
	Value    Value
	Align    int
	Volatile bool
}

// Value is shorthand for flowgraph.Value.
type Value = flowgraph.Value

// Region describes the code generated by one expansion.
type Region struct {
	// Entry is the block holding the code before the region.
	// It branches into the region.
	Entry flowgraph.BlockID
	// Exit is the block in which control continues after the region.
	// If no blocks were created, Exit is Entry.
	Exit flowgraph.BlockID
	// Blocks are the newly created blocks, including Exit
	// if it was created.
	Blocks []flowgraph.BlockID

	// Operand is the type accessed by each main loop iteration.
	Operand flowgraph.Type

	// For known lengths, MainBytes is the number of bytes
	// accessed by the loop, and ResidualBytes is the number of bytes
	// accessed by straight-line code after the loop.
	// Their sum is the length.
	MainBytes     uint64
	ResidualBytes uint64
	// Iterations is the trip count of the loop for known lengths.
	Iterations uint64
}

func (l *Lowerer) query(d Descriptor) target.Query {
	q := target.Query{
		SrcSpace:       flowgraph.Space(d.Src.Type()),
		DstSpace:       flowgraph.Space(d.Dst.Type()),
		SrcAlign:       d.SrcAlign,
		DstAlign:       d.DstAlign,
		AtomicElemSize: d.AtomicElemSize,
	}
	if n, ok := flowgraph.ConstLen(d.Len); ok {
		q.Len, q.KnownLen = n, true
	}
	return q
}

func checkDescriptor(op string, d Descriptor) {
	checkAddr(op, "source", d.Src)
	checkAddr(op, "destination", d.Dst)
	checkLen(op, d.Len)
	if d.AtomicElemSize < 0 {
		panic(fmt.Sprintf("%s: negative atomic element size %d", op, d.AtomicElemSize))
	}
	if d.AtomicElemSize == 0 {
		return
	}
	if d.SrcVolatile || d.DstVolatile {
		panic(fmt.Sprintf("%s: atomic copy cannot be volatile", op))
	}
	if d.SrcAlign < d.AtomicElemSize || d.DstAlign < d.AtomicElemSize {
		panic(fmt.Sprintf("%s: alignment %d/%d below atomic element size %d",
			op, d.SrcAlign, d.DstAlign, d.AtomicElemSize))
	}
	if n, ok := flowgraph.ConstLen(d.Len); ok && n%uint64(d.AtomicElemSize) != 0 {
		panic(fmt.Sprintf("%s: length %d is not a multiple of atomic element size %d",
			op, n, d.AtomicElemSize))
	}
}

func checkAddr(op, what string, v Value) {
	if v == nil {
		panic(fmt.Sprintf("%s: missing %s", op, what))
	}
	if _, ok := v.Type().(*flowgraph.AddrType); !ok {
		panic(fmt.Sprintf("%s: %s has non-address type %s", op, what, v.Type()))
	}
}

func checkLen(op string, v Value) {
	if v == nil {
		panic(fmt.Sprintf("%s: missing length", op))
	}
	if _, ok := v.Type().(*flowgraph.IntType); !ok {
		panic(fmt.Sprintf("%s: length has non-integer type %s", op, v.Type()))
	}
}

// anchor returns the block containing at and at's index.
func anchor(op string, f *flowgraph.FuncDef, at flowgraph.Instruction) (*flowgraph.BasicBlock, int) {
	b, i := f.Find(at)
	if b == nil {
		panic(fmt.Sprintf("%s: %s is not in %s", op, at, f.Name))
	}
	return b, i
}

func checkBytes(op string, main, residual, n uint64) {
	if main+residual != n {
		panic(fmt.Sprintf("%s: accessed %d+%d bytes, expected %d", op, main, residual, n))
	}
}
