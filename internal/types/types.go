// Package types is the Type Model (TM) of spec.md §4.1: a language-neutral
// description of every value type the compiler manipulates, consumed by
// the CFG builder and the IL emitter for every load/store/coercion
// decision. Modeled after a TypeKind/TypeInfo pair, generalized from a
// handful of native kinds to BASIC's size-and-signedness lattice
// (spec.md §3.1).
package types

import "fmt"

// BaseType is the closed set of base types from spec.md §3.1.
type BaseType int

const (
	VOID BaseType = iota
	UNKNOWN
	BYTE
	UBYTE
	SHORT
	USHORT
	INTEGER
	UINTEGER
	LONG
	ULONG
	SINGLE
	DOUBLE
	STRING
	UNICODE
	USER_DEFINED
	POINTER
	ARRAY_DESC
	STRING_DESC
	LOOP_INDEX
)

func (b BaseType) String() string {
	switch b {
	case VOID:
		return "VOID"
	case UNKNOWN:
		return "UNKNOWN"
	case BYTE:
		return "BYTE"
	case UBYTE:
		return "UBYTE"
	case SHORT:
		return "SHORT"
	case USHORT:
		return "USHORT"
	case INTEGER:
		return "INTEGER"
	case UINTEGER:
		return "UINTEGER"
	case LONG:
		return "LONG"
	case ULONG:
		return "ULONG"
	case SINGLE:
		return "SINGLE"
	case DOUBLE:
		return "DOUBLE"
	case STRING:
		return "STRING"
	case UNICODE:
		return "UNICODE"
	case USER_DEFINED:
		return "USER_DEFINED"
	case POINTER:
		return "POINTER"
	case ARRAY_DESC:
		return "ARRAY_DESC"
	case STRING_DESC:
		return "STRING_DESC"
	case LOOP_INDEX:
		return "LOOP_INDEX"
	}
	return fmt.Sprintf("BaseType(%d)", int(b))
}

// Attribute is a single bit in the TypeDescriptor attribute set.
type Attribute uint32

const (
	IsArray Attribute = 1 << iota
	IsPointer
	IsConst
	IsByRef
	IsUnsigned
	DynamicArray
	StaticArray
	IsHidden
)

func (a Attribute) Has(bit Attribute) bool { return a&bit != 0 }

// Extent describes one array dimension; Hi < Lo marks it dynamic (unknown
// at declaration time, per spec.md §3.1).
type Extent struct {
	Lo, Hi int64
}

func (e Extent) Dynamic() bool { return e.Hi < e.Lo }

// TypeDescriptor is the product of a BaseType, an Attribute set, and
// extended fields for USER_DEFINED and array types (spec.md §3.1).
type TypeDescriptor struct {
	Base  BaseType
	Attrs Attribute

	// USER_DEFINED
	UDTID   int
	UDTName string

	// arrays
	Extents []Extent
	Elem    *TypeDescriptor
}

// Equal implements spec.md §3.1's equality rule: nominal for UDTs (same
// id), structural otherwise; array dimensions never affect equality.
func (t *TypeDescriptor) Equal(o *TypeDescriptor) bool {
	if t == nil || o == nil {
		return t == o
	}
	if t.Base != o.Base {
		return false
	}
	if t.Base == USER_DEFINED {
		return t.UDTID == o.UDTID
	}
	if t.Attrs.Has(IsArray) != o.Attrs.Has(IsArray) {
		return false
	}
	if t.Attrs.Has(IsArray) {
		if (t.Elem == nil) != (o.Elem == nil) {
			return false
		}
		if t.Elem != nil && !t.Elem.Equal(o.Elem) {
			return false
		}
	}
	return true
}

func (t *TypeDescriptor) IsSigned() bool {
	switch t.Base {
	case BYTE, SHORT, INTEGER, LONG, LOOP_INDEX:
		return true
	}
	return false
}

func (t *TypeDescriptor) IsUnsigned() bool {
	switch t.Base {
	case UBYTE, USHORT, UINTEGER, ULONG:
		return true
	}
	return t.Attrs.Has(IsUnsigned)
}

func (t *TypeDescriptor) IsFloat() bool {
	return t.Base == SINGLE || t.Base == DOUBLE
}

func (t *TypeDescriptor) IsInteger() bool {
	switch t.Base {
	case BYTE, UBYTE, SHORT, USHORT, INTEGER, UINTEGER, LONG, ULONG, LOOP_INDEX:
		return true
	}
	return false
}

func (t *TypeDescriptor) IsString() bool {
	return t.Base == STRING || t.Base == UNICODE
}

func (t *TypeDescriptor) IsPointerLike() bool {
	switch t.Base {
	case STRING, UNICODE, POINTER, ARRAY_DESC, STRING_DESC:
		return true
	}
	return t.Attrs.Has(IsPointer)
}

// integerRank orders integer BaseTypes narrowest-to-widest for promotion
// and narrowest-fit literal inference (spec.md §4.1 promote/infer_literal).
func integerRank(b BaseType) int {
	switch b {
	case BYTE, UBYTE:
		return 1
	case SHORT, USHORT:
		return 2
	case INTEGER, UINTEGER:
		return 3
	case LONG, ULONG, LOOP_INDEX:
		return 4
	}
	return 0
}

// Simple type constructors for the common scalar descriptors; arrays and
// UDTs are built directly by callers (the semantic analyzer, in the real
// pipeline; tests, in this one).
func Simple(b BaseType) *TypeDescriptor { return &TypeDescriptor{Base: b} }

func UDT(id int, name string) *TypeDescriptor {
	return &TypeDescriptor{Base: USER_DEFINED, UDTID: id, UDTName: name}
}

func Array(elem *TypeDescriptor, extents []Extent, dynamic bool) *TypeDescriptor {
	attrs := IsArray
	if dynamic {
		attrs |= DynamicArray
	} else {
		attrs |= StaticArray
	}
	return &TypeDescriptor{Base: ARRAY_DESC, Attrs: attrs, Elem: elem, Extents: extents}
}
