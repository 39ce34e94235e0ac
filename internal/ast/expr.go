// Package ast defines the fixed AST and symbol-table contract that the
// lexer/parser/semantic analyzer (out of scope per spec.md §1) hand to the
// CFG builder and IL emitter. The shape follows a single tagged Node
// struct generalized to BASIC's statement/expression grammar (spec.md §9
// design note: "model statements and expressions as tagged discriminated
// variants; switch on the tag at lowering sites").
package ast

import "github.com/fasterbasic/fbc/internal/types"

// ExprKind tags the closed set of expression shapes spec.md §4.2/§4.3
// lower.
type ExprKind int

const (
	EIntLit ExprKind = iota
	EFloatLit
	EStringLit
	EVar
	EArrayIndex
	EMember
	EBinary
	EUnary
	ECall
	EIif
	EAddrOf
)

// Expr is a single tagged expression node. Only the fields relevant to
// Kind are populated; this favors one generic Node shape over per-kind
// Go types with deep interface dispatch (spec.md §9).
type Expr struct {
	Kind ExprKind
	Line int

	IntVal   int64
	FloatVal float64
	StrVal   string

	Name string // variable/field/function name, or the operator spelling for EBinary/EUnary

	X, Y, Z *Expr // operands; X=array base/cond, Y=index/true-branch, Z=false-branch
	Args    []*Expr

	// Type is filled in by semantic analysis before the CFG builder ever
	// sees the tree, literals included; the core reads it as given and
	// never infers it (internal/types.InferLiteral exists, but nothing in
	// internal/cfg or internal/emit calls it).
	Type *types.TypeDescriptor

	// ByRef marks a call argument that must be passed by reference
	// (UDT parameters and any parameter flagged IS_BYREF, spec.md §4.3.2).
	ByRef bool
}

// Clone deep-copies an expression tree. The CFG builder uses this when it
// must duplicate a shared sub-tree (the SELECT CASE selector, spec.md
// §4.2) to preserve SSA safety instead of introducing a shared mutable
// reference (spec.md §9 design note).
func (e *Expr) Clone() *Expr {
	if e == nil {
		return nil
	}
	c := *e
	c.X = e.X.Clone()
	c.Y = e.Y.Clone()
	c.Z = e.Z.Clone()
	if e.Args != nil {
		c.Args = make([]*Expr, len(e.Args))
		for i, a := range e.Args {
			c.Args[i] = a.Clone()
		}
	}
	return &c
}

// Int builds an integer literal expression.
func Int(line int, v int64) *Expr { return &Expr{Kind: EIntLit, Line: line, IntVal: v} }

// Float builds a floating literal expression.
func Float(line int, v float64) *Expr { return &Expr{Kind: EFloatLit, Line: line, FloatVal: v} }

// Str builds a string literal expression.
func Str(line int, v string) *Expr { return &Expr{Kind: EStringLit, Line: line, StrVal: v} }

// Var builds a variable-read expression.
func Var(line int, name string) *Expr { return &Expr{Kind: EVar, Line: line, Name: name} }

// Bin builds a binary-operator expression.
func Bin(line int, op string, x, y *Expr) *Expr {
	return &Expr{Kind: EBinary, Line: line, Name: op, X: x, Y: y}
}

// Un builds a unary-operator expression.
func Un(line int, op string, x *Expr) *Expr {
	return &Expr{Kind: EUnary, Line: line, Name: op, X: x}
}

// Call builds a function-call expression.
func Call(line int, name string, args ...*Expr) *Expr {
	return &Expr{Kind: ECall, Line: line, Name: name, Args: args}
}

// Iif builds an IIF(cond, a, b) expression.
func Iif(line int, cond, a, b *Expr) *Expr {
	return &Expr{Kind: EIif, Line: line, X: cond, Y: a, Z: b}
}

// Index builds an array/string indexing expression base(index).
func Index(line int, base, index *Expr) *Expr {
	return &Expr{Kind: EArrayIndex, Line: line, X: base, Y: index}
}

// Member builds a UDT field-access expression base.field.
func Member(line int, base *Expr, field string) *Expr {
	return &Expr{Kind: EMember, Line: line, X: base, Name: field}
}
