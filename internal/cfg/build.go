package cfg

import (
	"fmt"

	"github.com/fasterbasic/fbc/internal/ast"
	"github.com/fasterbasic/fbc/internal/diag"
)

// deferredEdge is a jump whose target line hadn't been seen yet when the
// single linear pass reached the statement that creates it (spec.md §4.2
// Phase 1 note: "forward references are recorded and patched in Phase 2").
type deferredEdge struct {
	from  int
	line  int
	kind  EdgeKind
	label string
}

// Builder drives the single-pass recursive construction described in
// spec.md §4.2. One Builder builds exactly one CFG (the top-level program
// or a single Function body); callers get a fresh Builder per function.
type Builder struct {
	g    *ControlFlowGraph
	syms *ast.SymbolTable
	sink diag.Sink

	jumpTargets map[int]bool
	lineStarted map[int]bool
	deferred    []deferredEdge
	errs        []error

	cur   *BasicBlock
	frame *frame // lexically-scoped loop/select/try chain

	// subReturn is GOSUB/ON GOSUB's flat, non-lexical return binding
	// (DESIGN.md: classic BASIC RETURN isn't scoped by block nesting, so
	// it rides on the Builder directly rather than on the frame chain —
	// see the GOSUB/RETURN note there).
	subReturn *int
}

// Build constructs the CFG for one statement list (a Function body, or a
// program's top-level Main list). funcName is "" for the top-level CFG.
func Build(stmts []*ast.Stmt, syms *ast.SymbolTable, funcName string, sink diag.Sink) (*ControlFlowGraph, []error) {
	g := &ControlFlowGraph{
		LineIndex:  make(map[int]int),
		LabelIndex: make(map[string]int),
		FuncName:   funcName,
	}
	b := &Builder{
		g:           g,
		syms:        syms,
		sink:        sink,
		jumpTargets: prescan(stmts),
		lineStarted: make(map[int]bool),
	}

	entry := g.newBlock("Entry")
	g.Entry = entry.ID
	b.cur = entry

	// Exit exists before construction so END, a bare RETURN, and an
	// unmatched EXIT/CONTINUE can target g.Exit during the single pass.
	exit := g.newBlock("Exit")
	g.Exit = exit.ID

	b.processStmtList(stmts)

	if !b.cur.Terminated() {
		g.addEdge(Edge{From: b.cur.ID, To: exit.ID, Kind: Fallthrough})
	}

	b.resolveDeferred()
	b.identifyBackEdges()
	b.markSubroutines()

	return g, b.errs
}

func (b *Builder) errorf(pos diag.Pos, format string, args ...interface{}) {
	err := diag.NewCFGError(pos, format, args...)
	b.errs = append(b.errs, err)
	if b.sink != nil {
		b.sink.Tracef(diag.CatCFG, "%s", err.Error())
	}
}

func (b *Builder) trace(format string, args ...interface{}) {
	if b.sink != nil {
		b.sink.Tracef(diag.CatCFG, format, args...)
	}
}

// freshUnreachable opens a new block to hold statements following one that
// just terminated the previous block — spec.md §4.2 Phase 1: "allocate an
// Unreachable block to hold any following statements" rather than refusing
// to continue the linear scan.
func (b *Builder) freshUnreachable() *BasicBlock {
	return b.g.newBlock("Unreachable")
}

// maybeStartTargetBlock implements the line-number landing-zone logic: any
// line number that prescan flagged as a jump target must begin its own
// block (I3); every other line is just recorded in LineIndex the first time
// it's seen, so deferred GOTO/GOSUB resolution (Phase 2) always has
// somewhere to land even for non-jump-target lines reached structurally.
func (b *Builder) maybeStartTargetBlock(line int) {
	if line == 0 {
		return
	}
	if !b.jumpTargets[line] {
		if _, ok := b.g.LineIndex[line]; !ok {
			b.g.LineIndex[line] = b.cur.ID
		}
		return
	}
	if b.lineStarted[line] {
		b.errorf(diag.Pos{Line: line}, "duplicate line number %d for different statements", line)
		return
	}
	b.lineStarted[line] = true
	if len(b.cur.Stmts) == 0 {
		b.g.LineIndex[line] = b.cur.ID
		b.cur.Label = fmt.Sprintf("Target_%d", line)
		return
	}
	prev := b.cur
	nb := b.g.newBlock(fmt.Sprintf("Target_%d", line))
	if !prev.Terminated() {
		b.g.addEdge(Edge{From: prev.ID, To: nb.ID, Kind: Fallthrough})
	}
	b.g.LineIndex[line] = nb.ID
	b.cur = nb
}

// resolveOrDefer resolves a line reference to a block id immediately if
// already known, otherwise records a deferred edge for Phase 2.
func (b *Builder) resolveOrDefer(from, line int, kind EdgeKind, label string) {
	if id, ok := b.g.LineIndex[line]; ok {
		b.g.addEdge(Edge{From: from, To: id, Kind: kind, Label: label})
		return
	}
	b.deferred = append(b.deferred, deferredEdge{from: from, line: line, kind: kind, label: label})
}

// processStmtList is the single-pass recursive construction loop shared by
// the top-level program and every nested statement list (loop bodies, IF
// arms, SELECT CASE clause bodies, TRY blocks).
func (b *Builder) processStmtList(stmts []*ast.Stmt) {
	for _, s := range stmts {
		if s == nil {
			continue
		}
		if b.cur.Terminated() {
			b.cur = b.freshUnreachable()
		}
		b.maybeStartTargetBlock(s.Line)
		b.buildStmt(s)
	}
}

func (b *Builder) buildStmt(s *ast.Stmt) {
	switch s.Kind {
	case ast.SIf:
		b.buildIf(s)
	case ast.SForNext, ast.SForIn:
		b.buildFor(s)
	case ast.SWhileWend, ast.SRepeatUntil, ast.SDoLoop:
		b.buildLoop(s)
	case ast.SSelectCase:
		b.buildSelect(s)
	case ast.STry:
		b.buildTry(s)
	case ast.SGoto:
		b.buildGoto(s)
	case ast.SGosub:
		b.buildGosub(s)
	case ast.SReturn:
		b.buildReturn(s)
	case ast.SOnGoto:
		b.buildOnGoto(s)
	case ast.SOnGosub:
		b.buildOnGosub(s)
	case ast.SOnEvent:
		// Phase 0 already folded its target, if any, into jumpTargets via
		// prescan's default case (none — ON EVENT has no line target in
		// this grammar). SPEC_FULL.md §5.3: emit accepts the statement
		// syntactically but issues a build-time Warning; the CFG simply
		// treats it as an ordinary non-branching statement.
		b.appendSimple(s)
	case ast.SExit, ast.SContinue:
		b.buildExitContinue(s)
	case ast.SEnd, ast.SThrow:
		b.buildEndThrow(s)
	case ast.SBlock:
		b.processStmtList(s.Stmts)
	default:
		b.appendSimple(s)
	}
}

// appendSimple handles every statement kind with no control-flow effect of
// its own: SLet, SDim, SRedim, SGlobal, SPrint, SInput, SData, SRead,
// SRestore, SExprStmt, SOnEvent.
func (b *Builder) appendSimple(s *ast.Stmt) {
	b.cur.Append(s, s.Line)
}
