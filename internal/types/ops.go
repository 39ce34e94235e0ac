package types

import (
	"math"
	"strconv"
)

// OfSuffix maps a BASIC type suffix (%, &, !, #, $, @, ^) to a
// TypeDescriptor (spec.md §4.1 of_suffix).
func OfSuffix(ch byte) (*TypeDescriptor, bool) {
	switch ch {
	case '%':
		return Simple(INTEGER), true
	case '&':
		return Simple(LONG), true
	case '!':
		return Simple(SINGLE), true
	case '#':
		return Simple(DOUBLE), true
	case '$':
		return Simple(STRING), true
	case '@':
		return Simple(UNICODE), true
	case '^':
		return Simple(ULONG), true
	}
	return nil, false
}

// OfKeyword maps an AS-clause keyword to a TypeDescriptor, setting
// IsUnsigned for the unsigned spellings while keeping the matching
// value-class tag (spec.md §4.1 of_keyword).
func OfKeyword(kw string) (*TypeDescriptor, bool) {
	switch kw {
	case "BYTE":
		return Simple(BYTE), true
	case "UBYTE":
		return &TypeDescriptor{Base: UBYTE, Attrs: IsUnsigned}, true
	case "SHORT":
		return Simple(SHORT), true
	case "USHORT":
		return &TypeDescriptor{Base: USHORT, Attrs: IsUnsigned}, true
	case "INTEGER":
		return Simple(INTEGER), true
	case "UINTEGER":
		return &TypeDescriptor{Base: UINTEGER, Attrs: IsUnsigned}, true
	case "LONG":
		return Simple(LONG), true
	case "ULONG":
		return &TypeDescriptor{Base: ULONG, Attrs: IsUnsigned}, true
	case "SINGLE":
		return Simple(SINGLE), true
	case "DOUBLE":
		return Simple(DOUBLE), true
	case "STRING":
		return Simple(STRING), true
	case "UNICODE":
		return Simple(UNICODE), true
	}
	return nil, false
}

// LiteralKind distinguishes the two literal families InferLiteral handles.
type LiteralKind int

const (
	IntLiteral LiteralKind = iota
	FloatLiteral
)

// InferLiteral implements spec.md §4.1 infer_literal: integer literals take
// the narrowest signed type that contains the value (BYTE, SHORT, INTEGER,
// LONG in that order); floating literals default to SINGLE unless the
// magnitude escapes finite single precision, in which case DOUBLE.
func InferLiteral(kind LiteralKind, text string) (*TypeDescriptor, error) {
	if kind == FloatLiteral {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, err
		}
		if isFiniteSingle(f) {
			return Simple(SINGLE), nil
		}
		return Simple(DOUBLE), nil
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return nil, err
	}
	switch {
	case n >= math.MinInt8 && n <= math.MaxInt8:
		return Simple(BYTE), nil
	case n >= math.MinInt16 && n <= math.MaxInt16:
		return Simple(SHORT), nil
	case n >= math.MinInt32 && n <= math.MaxInt32:
		return Simple(INTEGER), nil
	default:
		return Simple(LONG), nil
	}
}

func isFiniteSingle(f float64) bool {
	f32 := float32(f)
	return !math.IsInf(float64(f32), 0) && !math.IsNaN(float64(f32))
}

// Promote implements spec.md §4.1 promote for binary operators: string
// touches promote to STRING (or UNICODE if either operand is UNICODE);
// otherwise float beats integer, higher integer rank beats lower, and
// equal rank with mixed signedness promotes to the signed variant.
func Promote(a, b *TypeDescriptor) *TypeDescriptor {
	if a.IsString() || b.IsString() {
		if a.Base == UNICODE || b.Base == UNICODE {
			return Simple(UNICODE)
		}
		return Simple(STRING)
	}
	if a.IsFloat() || b.IsFloat() {
		if a.Base == DOUBLE || b.Base == DOUBLE {
			return Simple(DOUBLE)
		}
		return Simple(SINGLE)
	}
	ra, rb := integerRank(a.Base), integerRank(b.Base)
	if ra > rb {
		return Simple(a.Base)
	}
	if rb > ra {
		return Simple(b.Base)
	}
	// Equal rank: mixed signedness promotes to the signed variant.
	if a.IsSigned() {
		return Simple(a.Base)
	}
	if b.IsSigned() {
		return Simple(b.Base)
	}
	return Simple(a.Base)
}

// CoerceKind is the closed result set of spec.md §4.1 coerce.
type CoerceKind int

const (
	Identical CoerceKind = iota
	ImplicitSafe
	ImplicitLossy
	ExplicitRequired
	Incompatible
)

// CoerceResult reports how `from` converts to `to`, naming a recommended
// narrowing-conversion runtime function for ImplicitLossy and the required
// explicit conversion function for ExplicitRequired.
type CoerceResult struct {
	Kind     CoerceKind
	FuncName string
}

// Coerce implements spec.md §4.1 coerce.
func Coerce(from, to *TypeDescriptor) CoerceResult {
	if from.Equal(to) {
		return CoerceResult{Kind: Identical}
	}
	if from.Base == ARRAY_DESC || to.Base == ARRAY_DESC {
		if from.Attrs.Has(IsArray) != to.Attrs.Has(IsArray) {
			return CoerceResult{Kind: Incompatible}
		}
	}
	if from.Base == USER_DEFINED || to.Base == USER_DEFINED {
		if from.Base != to.Base || from.UDTID != to.UDTID {
			return CoerceResult{Kind: Incompatible}
		}
		return CoerceResult{Kind: Identical}
	}
	if from.IsString() != to.IsString() {
		return CoerceResult{Kind: ExplicitRequired, FuncName: explicitConvFunc(from, to)}
	}
	if from.IsString() && to.IsString() {
		if from.Base == to.Base {
			return CoerceResult{Kind: Identical}
		}
		// ASCII <-> UTF-32 alias is always safe; the runtime promotes lazily.
		return CoerceResult{Kind: ImplicitSafe}
	}
	if from.IsFloat() && to.IsInteger() {
		return CoerceResult{Kind: ExplicitRequired, FuncName: explicitConvFunc(from, to)}
	}
	if from.IsInteger() && to.IsFloat() {
		// SINGLE's 24-bit mantissa cannot hold every 64-bit LONG value.
		if (from.Base == LONG || from.Base == ULONG) && to.Base == SINGLE {
			return CoerceResult{Kind: ImplicitLossy, FuncName: "CSNG"}
		}
		return CoerceResult{Kind: ImplicitSafe}
	}
	if from.IsFloat() && to.IsFloat() {
		if from.Base == SINGLE && to.Base == DOUBLE {
			return CoerceResult{Kind: ImplicitSafe}
		}
		if from.Base == DOUBLE && to.Base == SINGLE {
			return CoerceResult{Kind: ImplicitLossy, FuncName: "CSNG"}
		}
		return CoerceResult{Kind: Identical}
	}
	if from.IsInteger() && to.IsInteger() {
		rf, rt := integerRank(from.Base), integerRank(to.Base)
		if rf < rt {
			return CoerceResult{Kind: ImplicitSafe}
		}
		if rf == rt {
			// same width, signedness differs only in attribute: identical bits.
			return CoerceResult{Kind: ImplicitSafe}
		}
		return CoerceResult{Kind: ImplicitLossy, FuncName: narrowingFuncName(to)}
	}
	return CoerceResult{Kind: Incompatible}
}

func explicitConvFunc(from, to *TypeDescriptor) string {
	switch {
	case from.IsFloat() && to.IsInteger():
		return "CINT"
	case from.IsString() && !to.IsString():
		return "VAL"
	case !from.IsString() && to.IsString():
		return "STR$"
	}
	return ""
}

func narrowingFuncName(to *TypeDescriptor) string {
	switch to.Base {
	case BYTE, UBYTE:
		return "CBYTE"
	case SHORT, USHORT:
		return "CSHORT"
	case INTEGER, UINTEGER:
		return "CINT"
	case LONG, ULONG:
		return "CLNG"
	case SINGLE:
		return "CSNG"
	}
	return "CLNG"
}

// ValueClass is one of the four temporary representation tags used by the
// IL emitter (spec.md §3.1, glossary "Value class").
type ValueClass int

const (
	W32 ValueClass = iota
	L64
	F32
	F64
)

func (v ValueClass) String() string {
	switch v {
	case W32:
		return "w"
	case L64:
		return "l"
	case F32:
		return "s"
	case F64:
		return "d"
	}
	return "?"
}

// Class returns the IL value class for temporaries of type t (spec.md
// §3.1: mapping to IL types is derived, never stored).
func Class(t *TypeDescriptor) ValueClass {
	switch t.Base {
	case BYTE, UBYTE, SHORT, USHORT, INTEGER, UINTEGER:
		return W32
	case SINGLE:
		return F32
	case DOUBLE:
		return F64
	default:
		// LONG/ULONG/LOOP_INDEX and every pointer-shaped type.
		return L64
	}
}

// MemOp is the load/store memory-extension suffix from spec.md §3.1 and
// §6.2 (sb/ub/sh/uh plus the natural widths).
type MemOp string

const (
	MemSB MemOp = "sb"
	MemUB MemOp = "ub"
	MemSH MemOp = "sh"
	MemUH MemOp = "uh"
	MemW  MemOp = "w"
	MemL  MemOp = "l"
	MemS  MemOp = "s"
	MemD  MemOp = "d"
)

// Op returns the memory op used at load/store sites for t.
func Op(t *TypeDescriptor) MemOp {
	switch t.Base {
	case BYTE:
		return MemSB
	case UBYTE:
		return MemUB
	case SHORT:
		return MemSH
	case USHORT:
		return MemUH
	case SINGLE:
		return MemS
	case DOUBLE:
		return MemD
	}
	if Class(t) == L64 {
		return MemL
	}
	return MemW
}

// SizeBytes returns a scalar type's storage size.
func SizeBytes(t *TypeDescriptor) int {
	switch t.Base {
	case BYTE, UBYTE:
		return 1
	case SHORT, USHORT:
		return 2
	case INTEGER, UINTEGER, SINGLE:
		return 4
	default:
		return 8
	}
}

// ElementSizeBytes returns the per-element storage size for array element
// type t, per spec.md §4.3.3 DIM: BYTE=1, SHORT=2, 32-bit/SINGLE=4,
// 64-bit/DOUBLE=8.
func ElementSizeBytes(t *TypeDescriptor) int {
	return SizeBytes(t)
}
