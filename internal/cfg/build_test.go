package cfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fasterbasic/fbc/internal/ast"
)

// assertPredSuccSymmetric checks P1: every edge appears in both its
// source's Succs and its target's Preds exactly as many times as it was
// added.
func assertPredSuccSymmetric(t *testing.T, g *ControlFlowGraph) {
	t.Helper()
	fromCount := make(map[[2]int]int)
	for _, e := range g.Edges {
		fromCount[[2]int{e.From, e.To}]++
	}
	succCount := make(map[[2]int]int)
	for _, blk := range g.Blocks {
		for _, s := range blk.Succs {
			succCount[[2]int{blk.ID, s}]++
		}
	}
	predCount := make(map[[2]int]int)
	for _, blk := range g.Blocks {
		for _, p := range blk.Preds {
			predCount[[2]int{p, blk.ID}]++
		}
	}
	assert.Equal(t, fromCount, succCount, "edge list and Succs must agree")
	assert.Equal(t, fromCount, predCount, "edge list and Preds must agree")
}

// assertSingleTerminator checks P3: every block with any outgoing edge at
// all is either terminated (has no fallthrough ambiguity) or has exactly
// one successor recorded via Fallthrough.
func assertSingleTerminator(t *testing.T, g *ControlFlowGraph) {
	t.Helper()
	for _, blk := range g.Blocks {
		if blk.IsTerminator {
			continue
		}
		if len(blk.Succs) > 1 {
			t.Errorf("block %d (%s) is not a terminator but has %d successors", blk.ID, blk.Label, len(blk.Succs))
		}
	}
}

func TestStraightLineProgram(t *testing.T) {
	prog := []*ast.Stmt{
		{Kind: ast.SLet, Line: 10, LHS: ast.Var(10, "X"), RHS: ast.Int(10, 1)},
		{Kind: ast.SLet, Line: 20, LHS: ast.Var(20, "Y"), RHS: ast.Int(20, 2)},
	}
	g, errs := Build(prog, ast.NewSymbolTable(), "", nil)
	require.Empty(t, errs)
	assertPredSuccSymmetric(t, g)
	assertSingleTerminator(t, g)
	assert.Equal(t, g.Entry, 0)
	require.Len(t, g.Blocks[g.Entry].Stmts, 2)
}

func TestIfWithElseMergesToSingleBlock(t *testing.T) {
	prog := []*ast.Stmt{
		{
			Kind: ast.SIf,
			Line: 10,
			Cond: ast.Bin(10, ">", ast.Var(10, "X"), ast.Int(10, 0)),
			Then: []*ast.Stmt{{Kind: ast.SLet, Line: 20, LHS: ast.Var(20, "Y"), RHS: ast.Int(20, 1)}},
			Else: []*ast.Stmt{{Kind: ast.SLet, Line: 30, LHS: ast.Var(30, "Y"), RHS: ast.Int(30, 2)}},
		},
		{Kind: ast.SLet, Line: 40, LHS: ast.Var(40, "Z"), RHS: ast.Int(40, 3)},
	}
	g, errs := Build(prog, ast.NewSymbolTable(), "", nil)
	require.Empty(t, errs)
	assertPredSuccSymmetric(t, g)
	assertSingleTerminator(t, g)

	header := g.Block(g.Entry)
	assert.True(t, header.IsTerminator)
	assert.Len(t, header.Succs, 2)

	// Then and Else must both converge back onto the same Merge block.
	var mergeID int
	found := false
	for _, blk := range g.Blocks {
		if blk.Label == "Merge" {
			mergeID = blk.ID
			found = true
		}
	}
	require.True(t, found, "expected a Merge block")
	assert.Len(t, g.Block(mergeID).Preds, 2)
}

func TestElseIfDesugarsToNestedIf(t *testing.T) {
	prog := []*ast.Stmt{
		{
			Kind: ast.SIf,
			Line: 10,
			Cond: ast.Bin(10, "=", ast.Var(10, "X"), ast.Int(10, 1)),
			Then: []*ast.Stmt{{Kind: ast.SLet, Line: 11, LHS: ast.Var(11, "Y"), RHS: ast.Int(11, 1)}},
			ElseIfs: []ast.ElseIf{
				{Cond: ast.Bin(20, "=", ast.Var(20, "X"), ast.Int(20, 2)), Body: []*ast.Stmt{
					{Kind: ast.SLet, Line: 21, LHS: ast.Var(21, "Y"), RHS: ast.Int(21, 2)},
				}, Line: 20},
			},
			Else: []*ast.Stmt{{Kind: ast.SLet, Line: 30, LHS: ast.Var(30, "Y"), RHS: ast.Int(30, 3)}},
		},
	}
	g, errs := Build(prog, ast.NewSymbolTable(), "", nil)
	require.Empty(t, errs)
	assertPredSuccSymmetric(t, g)

	// The outer IF's Else block is created first; the nested IF that the
	// ELSEIF desugars to creates a second, inner Else block for line 30.
	var elseBlk *BasicBlock
	for _, blk := range g.Blocks {
		if blk.Label == "Else" && elseBlk == nil {
			elseBlk = blk
		}
	}
	require.NotNil(t, elseBlk)
	require.Len(t, elseBlk.Stmts, 1)
	assert.Equal(t, ast.SIf, elseBlk.Stmts[0].Kind, "ELSEIF must desugar to a nested IF inside the Else arm")
}

func TestForLoopBackEdgeAndExit(t *testing.T) {
	prog := []*ast.Stmt{
		{
			Kind:     ast.SForNext,
			Line:     10,
			ForVar:   "I",
			ForStart: ast.Int(10, 1),
			ForEnd:   ast.Int(10, 10),
			ForStep:  ast.Int(10, 1),
			Body: []*ast.Stmt{
				{Kind: ast.SPrint, Line: 15, PrintArgs: []ast.PrintArg{{Expr: ast.Var(15, "I")}}},
			},
		},
	}
	g, errs := Build(prog, ast.NewSymbolTable(), "", nil)
	require.Empty(t, errs)
	assertPredSuccSymmetric(t, g)

	var header, inc *BasicBlock
	for _, blk := range g.Blocks {
		switch blk.Label {
		case "Header":
			header = blk
		case "Increment":
			inc = blk
		}
	}
	require.NotNil(t, header)
	require.NotNil(t, inc)
	assert.True(t, header.IsLoopHeader)
	assert.Contains(t, inc.Succs, header.ID, "Increment must back-edge to Header")
}

func TestExitForBindsToForNotInnerWhile(t *testing.T) {
	prog := []*ast.Stmt{
		{
			Kind: ast.SForNext, Line: 10, ForVar: "I",
			ForStart: ast.Int(10, 1), ForEnd: ast.Int(10, 5), ForStep: ast.Int(10, 1),
			Body: []*ast.Stmt{
				{
					Kind: ast.SWhileWend, Line: 20, LoopKind: ast.LoopWhile,
					Cond: ast.Int(20, 1),
					Body: []*ast.Stmt{
						{Kind: ast.SExit, Line: 25, ExitKind: ast.ExitFor},
					},
				},
			},
		},
	}
	g, errs := Build(prog, ast.NewSymbolTable(), "", nil)
	require.Empty(t, errs)

	var forExit *BasicBlock
	for _, blk := range g.Blocks {
		if blk.Label == "Exit" && blk.IsLoopExit {
			forExit = blk
			break
		}
	}
	require.NotNil(t, forExit)

	var exitStmtBlk *BasicBlock
	for _, blk := range g.Blocks {
		for _, s := range blk.Stmts {
			if s.Kind == ast.SExit {
				exitStmtBlk = blk
			}
		}
	}
	require.NotNil(t, exitStmtBlk)
	assert.Contains(t, exitStmtBlk.Succs, forExit.ID)
}

func TestGosubReturnsToReturnPoint(t *testing.T) {
	prog := []*ast.Stmt{
		{Kind: ast.SGosub, Line: 10, TargetLine: 100},
		{Kind: ast.SPrint, Line: 20, PrintArgs: []ast.PrintArg{{Expr: ast.Str(20, "back")}}},
		{Kind: ast.SEnd, Line: 30},
		{Kind: ast.SPrint, Line: 100, PrintArgs: []ast.PrintArg{{Expr: ast.Str(100, "in sub")}}},
		{Kind: ast.SReturn, Line: 110},
	}
	g, errs := Build(prog, ast.NewSymbolTable(), "", nil)
	require.Empty(t, errs)
	assertPredSuccSymmetric(t, g)

	var gosubBlk, subBlk, returnBlk *BasicBlock
	for _, blk := range g.Blocks {
		for i, s := range blk.Stmts {
			if s.Kind == ast.SGosub {
				gosubBlk = blk
			}
			if s.Line == 100 {
				subBlk = blk
			}
			_ = i
		}
	}
	require.NotNil(t, gosubBlk)
	require.NotNil(t, subBlk)
	assert.True(t, subBlk.IsSubroutine)

	for _, e := range g.Edges {
		if e.Kind == Return {
			returnBlk = g.Block(e.To)
		}
	}
	require.NotNil(t, returnBlk)
	assert.Contains(t, returnBlk.Stmts[0].PrintArgs[0].Expr.StrVal, "back")
}

func TestUnresolvedGotoIsHardError(t *testing.T) {
	prog := []*ast.Stmt{
		{Kind: ast.SGoto, Line: 10, TargetLine: 999},
	}
	_, errs := Build(prog, ast.NewSymbolTable(), "", nil)
	require.NotEmpty(t, errs)
}

func TestDuplicateLineNumberIsHardError(t *testing.T) {
	prog := []*ast.Stmt{
		{Kind: ast.SGoto, Line: 10, TargetLine: 50},
		{Kind: ast.SLet, Line: 50, LHS: ast.Var(50, "X"), RHS: ast.Int(50, 1)},
		{Kind: ast.SGoto, Line: 60, TargetLine: 50},
		{Kind: ast.SLet, Line: 50, LHS: ast.Var(50, "Y"), RHS: ast.Int(50, 2)},
	}
	_, errs := Build(prog, ast.NewSymbolTable(), "", nil)
	require.NotEmpty(t, errs)
}

func TestOnGotoMultiwayBranchesWithDefault(t *testing.T) {
	prog := []*ast.Stmt{
		{Kind: ast.SOnGoto, Line: 10, Targets: []int{100, 200}},
		{Kind: ast.SEnd, Line: 20},
		{Kind: ast.SEnd, Line: 100},
		{Kind: ast.SEnd, Line: 200},
	}
	g, errs := Build(prog, ast.NewSymbolTable(), "", nil)
	require.Empty(t, errs)

	onGotoBlk := g.Block(g.Entry)
	require.Len(t, onGotoBlk.Succs, 3, "two resolved targets plus the default fallthrough")
}

func TestSelectCaseChainsChecksAndRejoinsAtExit(t *testing.T) {
	prog := []*ast.Stmt{
		{
			Kind: ast.SSelectCase, Line: 10,
			Selector: ast.Var(10, "X"),
			Cases: []ast.CaseClause{
				{Values: []*ast.Expr{ast.Int(11, 1)}, Body: []*ast.Stmt{
					{Kind: ast.SPrint, Line: 12, PrintArgs: []ast.PrintArg{{Expr: ast.Str(12, "one")}}},
				}, Line: 11},
				{IsElse: true, Body: []*ast.Stmt{
					{Kind: ast.SPrint, Line: 21, PrintArgs: []ast.PrintArg{{Expr: ast.Str(21, "other")}}},
				}, Line: 20},
			},
		},
	}
	g, errs := Build(prog, ast.NewSymbolTable(), "", nil)
	require.Empty(t, errs)
	assertPredSuccSymmetric(t, g)

	var exitBlk *BasicBlock
	for _, blk := range g.Blocks {
		if blk.Label == "Exit" {
			exitBlk = blk
		}
	}
	require.NotNil(t, exitBlk)
	assert.GreaterOrEqual(t, len(exitBlk.Preds), 2)
}

func TestTryThrowEdgesToNearestCatch(t *testing.T) {
	prog := []*ast.Stmt{
		{
			Kind: ast.STry, Line: 10,
			TryBody: []*ast.Stmt{
				{Kind: ast.SThrow, Line: 11, ThrowExpr: ast.Str(11, "boom")},
			},
			CatchVar:  "e",
			CatchBody: []*ast.Stmt{{Kind: ast.SPrint, Line: 20, PrintArgs: []ast.PrintArg{{Expr: ast.Var(20, "e")}}}},
		},
	}
	g, errs := Build(prog, ast.NewSymbolTable(), "", nil)
	require.Empty(t, errs)

	var throwBlk, catchBlk *BasicBlock
	for _, blk := range g.Blocks {
		if blk.Label == "CatchBlock" {
			catchBlk = blk
		}
		for _, s := range blk.Stmts {
			if s.Kind == ast.SThrow {
				throwBlk = blk
			}
		}
	}
	require.NotNil(t, throwBlk)
	require.NotNil(t, catchBlk)
	assert.Contains(t, throwBlk.Succs, catchBlk.ID)
}
