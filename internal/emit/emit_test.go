package emit

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fasterbasic/fbc/internal/ast"
	"github.com/fasterbasic/fbc/internal/cfg"
	"github.com/fasterbasic/fbc/internal/types"
)

func buildAndEmit(t *testing.T, prog []*ast.Stmt, syms *ast.SymbolTable) string {
	t.Helper()
	if syms == nil {
		syms = ast.NewSymbolTable()
	}
	g, errs := cfg.Build(prog, syms, "", nil)
	require.Empty(t, errs)
	em := NewEmitter(syms, nil, "test-compilation")
	text, emErrs := em.EmitProgram(g, nil)
	require.Empty(t, emErrs)
	return text
}

func TestSignedPowerOfTwoDivisionRoundsTowardZero(t *testing.T) {
	intType := types.Simple(types.INTEGER)
	prog := []*ast.Stmt{
		{
			Kind: ast.SLet, Line: 10,
			LHS: ast.Var(10, "Q"),
			RHS: &ast.Expr{
				Kind: ast.EBinary, Line: 10, Name: "/",
				X:    &ast.Expr{Kind: ast.EVar, Name: "X", Type: intType},
				Y:    &ast.Expr{Kind: ast.EIntLit, IntVal: 2, Type: intType},
				Type: intType,
			},
		},
	}
	text := buildAndEmit(t, prog, nil)
	assert.Contains(t, text, "sar", "power-of-two signed division must lower to a shift")
	assert.NotContains(t, text, "=w div", "must not fall back to a plain div for signed power-of-two denominators")
}

func TestIifEmitsShortCircuitBranchStructure(t *testing.T) {
	prog := []*ast.Stmt{
		{
			Kind: ast.SLet, Line: 10,
			LHS: ast.Var(10, "Y"),
			RHS: ast.Iif(10, ast.Bin(10, ">", ast.Var(10, "X"), ast.Int(10, 0)), ast.Int(10, 1), ast.Int(10, 2)),
		},
	}
	text := buildAndEmit(t, prog, nil)
	assert.Contains(t, text, "@iif.1.true")
	assert.Contains(t, text, "@iif.1.false")
	assert.Contains(t, text, "@iif.1.join")
	assert.Contains(t, text, "jnz")
}

func TestOnGosubSharedReturnPointAndCallEdges(t *testing.T) {
	prog := []*ast.Stmt{
		{Kind: ast.SOnGosub, Line: 10, Cond: ast.Var(10, "I"), Targets: []int{100, 200}},
		{Kind: ast.SPrint, Line: 20, PrintArgs: []ast.PrintArg{{Expr: ast.Str(20, "back")}}},
		{Kind: ast.SEnd, Line: 30},
		{Kind: ast.SReturn, Line: 100},
		{Kind: ast.SReturn, Line: 200},
	}
	text := buildAndEmit(t, prog, nil)
	assert.Contains(t, text, "basic_gosub_push")
	assert.Contains(t, text, "basic_gosub_pop")
}

func TestPrintSeparatorsControlSpacing(t *testing.T) {
	prog := []*ast.Stmt{
		{Kind: ast.SPrint, Line: 10, PrintArgs: []ast.PrintArg{
			{Expr: ast.Str(10, "a"), Sep: ast.SepComma},
			{Expr: ast.Str(10, "b"), Sep: ast.SepNone},
		}},
	}
	text := buildAndEmit(t, prog, nil)
	assert.Contains(t, text, "basic_print_tab")
	assert.Contains(t, text, "basic_print_newline")
}

func TestStringPoolDeduplicatesLiterals(t *testing.T) {
	prog := []*ast.Stmt{
		{Kind: ast.SPrint, Line: 10, PrintArgs: []ast.PrintArg{{Expr: ast.Str(10, "hi")}}},
		{Kind: ast.SPrint, Line: 20, PrintArgs: []ast.PrintArg{{Expr: ast.Str(20, "hi")}}},
	}
	text := buildAndEmit(t, prog, nil)
	assert.Equal(t, 1, strings.Count(text, "data $str.0"))
}

func TestModuleHeaderCarriesCompilationID(t *testing.T) {
	prog := []*ast.Stmt{{Kind: ast.SEnd, Line: 10}}
	text := buildAndEmit(t, prog, nil)
	assert.Contains(t, text, "test-compilation")
}

func TestNotOperatorIsBitwiseComplement(t *testing.T) {
	intType := types.Simple(types.INTEGER)
	prog := []*ast.Stmt{
		{
			Kind: ast.SLet, Line: 10,
			LHS: ast.Var(10, "Y"),
			RHS: &ast.Expr{Kind: ast.EUnary, Line: 10, Name: "NOT",
				X: &ast.Expr{Kind: ast.EVar, Name: "X", Type: intType}, Type: intType},
		},
	}
	text := buildAndEmit(t, prog, nil)
	assert.Contains(t, text, "xor", "NOT must lower to a bitwise complement")
	assert.NotContains(t, text, "ceqw", "NOT must not lower to a logical-not comparison")
}

func TestUnsignedComparisonUsesUnsignedOpcodeFamily(t *testing.T) {
	ulongType := types.Simple(types.ULONG)
	prog := []*ast.Stmt{
		{
			Kind: ast.SLet, Line: 10,
			LHS: ast.Var(10, "Y"),
			RHS: &ast.Expr{
				Kind: ast.EBinary, Line: 10, Name: "<",
				X:    &ast.Expr{Kind: ast.EVar, Name: "X", Type: ulongType},
				Y:    &ast.Expr{Kind: ast.EVar, Name: "Z", Type: ulongType},
				Type: ulongType,
			},
		},
	}
	text := buildAndEmit(t, prog, nil)
	assert.Contains(t, text, "cultl", "unsigned < must pick the unsigned comparison family")
}

func TestFloatComparisonUsesFloatOpcodeFamily(t *testing.T) {
	dblType := types.Simple(types.DOUBLE)
	prog := []*ast.Stmt{
		{
			Kind: ast.SLet, Line: 10,
			LHS: ast.Var(10, "Y"),
			RHS: &ast.Expr{
				Kind: ast.EBinary, Line: 10, Name: "<",
				X:    &ast.Expr{Kind: ast.EVar, Name: "X", Type: dblType},
				Y:    &ast.Expr{Kind: ast.EVar, Name: "Z", Type: dblType},
				Type: dblType,
			},
		},
	}
	text := buildAndEmit(t, prog, nil)
	assert.Contains(t, text, "cltd", "double < must pick the float comparison family, not csltd")
	assert.NotContains(t, text, "csltd")
}

func TestStringAssignmentFromVariableRetains(t *testing.T) {
	strType := types.Simple(types.STRING)
	prog := []*ast.Stmt{
		{Kind: ast.SLet, Line: 10, LHS: ast.Var(10, "A"), RHS: ast.Str(10, "hi")},
		{Kind: ast.SLet, Line: 20, LHS: ast.Var(20, "B"), RHS: ast.Var(20, "A")},
	}
	syms := ast.NewSymbolTable()
	syms.Variables["A"] = &ast.VariableSymbol{Name: "A", Type: strType, GlobalSlot: -1}
	syms.Variables["B"] = &ast.VariableSymbol{Name: "B", Type: strType, GlobalSlot: -1}
	text := buildAndEmit(t, prog, syms)
	assert.Contains(t, text, "string_retain")
}

func TestStringIndexReadIsEncodingAwareAndSoftFails(t *testing.T) {
	strType := types.Simple(types.STRING)
	prog := []*ast.Stmt{
		{
			Kind: ast.SLet, Line: 10,
			LHS: ast.Var(10, "C"),
			RHS: ast.Index(10, &ast.Expr{Kind: ast.EVar, Name: "S", Type: strType}, ast.Int(10, 0)),
		},
	}
	text := buildAndEmit(t, prog, nil)
	assert.Contains(t, text, "phi", "indexed string read must join via phi across encoding/out-of-range arms")
	assert.Contains(t, text, "loadub", "ASCII arm must load a single byte")
	assert.Contains(t, text, "loadw", "UTF-32 arm must load a 4-byte code point")
}

func TestStringIndexWriteBoundsChecksAndMayPromote(t *testing.T) {
	strType := types.Simple(types.STRING)
	intType := types.Simple(types.INTEGER)
	lhs := ast.Index(10, &ast.Expr{Kind: ast.EVar, Name: "S", Type: strType}, ast.Int(10, 0))
	lhs.Type = intType
	prog := []*ast.Stmt{
		{Kind: ast.SLet, Line: 10, LHS: lhs, RHS: ast.Int(10, 200)},
	}
	text := buildAndEmit(t, prog, nil)
	assert.Contains(t, text, "string_bounds_check")
	assert.Contains(t, text, "string_promote_utf32")
}

func TestLenIsInlinedNotACall(t *testing.T) {
	strType := types.Simple(types.STRING)
	prog := []*ast.Stmt{
		{
			Kind: ast.SLet, Line: 10,
			LHS: ast.Var(10, "N"),
			RHS: ast.Call(10, "LEN", &ast.Expr{Kind: ast.EVar, Name: "S", Type: strType}),
		},
	}
	text := buildAndEmit(t, prog, nil)
	assert.NotContains(t, text, "call $string_len", "LEN must be an inline load, not a runtime call")
	assert.Contains(t, text, "loadl")
}

func TestGlobalVariableReadGoesThroughGlobalsVector(t *testing.T) {
	syms := ast.NewSymbolTable()
	syms.Variables["COUNTER"] = &ast.VariableSymbol{
		Name: "COUNTER", Type: types.Simple(types.LONG), GlobalSlot: 3,
	}
	prog := []*ast.Stmt{
		{Kind: ast.SLet, Line: 10, LHS: ast.Var(10, "Y"), RHS: ast.Var(10, "COUNTER")},
	}
	text := buildAndEmit(t, prog, syms)
	assert.Contains(t, text, "%basic_globals")
	assert.Contains(t, text, "add %basic_globals, 24")
}
