package flowgraph

import (
	"fmt"
	"strings"
)

// Kind enumerates the Type implementations.
// Code that needs to treat each kind of type differently
// should switch on Kind rather than on the dynamic type.
type Kind int

const (
	IntKind Kind = iota + 1
	FloatKind
	AddrKind
	VectorKind
	ArrayKind
	StructKind
)

func (k Kind) String() string {
	switch k {
	case IntKind:
		return "int"
	case FloatKind:
		return "float"
	case AddrKind:
		return "addr"
	case VectorKind:
		return "vector"
	case ArrayKind:
		return "array"
	case StructKind:
		return "struct"
	default:
		panic(fmt.Sprintf("impossible Kind: %d", int(k)))
	}
}

type Type interface {
	String() string
	Kind() Kind
	buildString(*strings.Builder) *strings.Builder
	eq(Type) bool
}

// IntType is an integer of Size bits.
// Integers have no sign; operations that care choose one.
type IntType struct {
	Size int
}

func (*IntType) Kind() Kind { return IntKind }

func (t *IntType) eq(other Type) bool {
	o, ok := other.(*IntType)
	return ok && *o == *t
}

// FloatType is an IEEE float of Size bits: 16, 32, or 64.
type FloatType struct {
	Size int
}

func (*FloatType) Kind() Kind { return FloatKind }

func (t *FloatType) eq(other Type) bool {
	o, ok := other.(*FloatType)
	return ok && *o == *t
}

// AddrType is a pointer to Elem in address space Space.
type AddrType struct {
	Elem  Type
	Space int
}

func (*AddrType) Kind() Kind { return AddrKind }

func (t *AddrType) eq(other Type) bool {
	o, ok := other.(*AddrType)
	return ok && t.Space == o.Space && t.Elem.eq(o.Elem)
}

// VectorType is a fixed-length vector of scalar Elem.
type VectorType struct {
	Elem Type
	Len  int
}

func (*VectorType) Kind() Kind { return VectorKind }

func (t *VectorType) eq(other Type) bool {
	o, ok := other.(*VectorType)
	return ok && t.Len == o.Len && t.Elem.eq(o.Elem)
}

type ArrayType struct {
	Elem Type
	Len  int
}

func (*ArrayType) Kind() Kind { return ArrayKind }

func (t *ArrayType) eq(other Type) bool {
	o, ok := other.(*ArrayType)
	return ok && t.Len == o.Len && t.Elem.eq(o.Elem)
}

type StructType struct {
	Fields []Type
}

func (*StructType) Kind() Kind { return StructKind }

func (t *StructType) eq(other Type) bool {
	o, ok := other.(*StructType)
	if !ok || len(t.Fields) != len(o.Fields) {
		return false
	}
	for i := range t.Fields {
		if !t.Fields[i].eq(o.Fields[i]) {
			return false
		}
	}
	return true
}

// EqType returns whether two types are structurally identical.
func EqType(a, b Type) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.eq(b)
}

// Int8 returns the single-byte integer type.
func Int8() *IntType { return &IntType{Size: 8} }

// Int64 returns the 64-bit integer type.
func Int64() *IntType { return &IntType{Size: 64} }

// Bool returns the 1-bit type produced by comparisons.
func Bool() *IntType { return &IntType{Size: 1} }

// IsByte returns whether t is the single-byte integer type.
func IsByte(t Type) bool {
	i, ok := t.(*IntType)
	return ok && i.Size == 8
}

// Elem returns the element type of an address type.
// It panics if t is not an address type.
func Elem(t Type) Type {
	a, ok := t.(*AddrType)
	if !ok {
		panic(fmt.Sprintf("elem of non-address type %s", t))
	}
	return a.Elem
}

// Space returns the address space of an address type.
// It panics if t is not an address type.
func Space(t Type) int {
	a, ok := t.(*AddrType)
	if !ok {
		panic(fmt.Sprintf("address space of non-address type %s", t))
	}
	return a.Space
}
