package cfg

import (
	"fmt"

	"github.com/fasterbasic/fbc/internal/ast"
	"github.com/fasterbasic/fbc/internal/diag"
)

// desugarElseIf turns the first ELSEIF arm of s into a nested SIf inside
// what becomes the effective Else body, recursively folding the rest —
// spec.md §4.2: "ELSEIF is modeled as a nested IF inside the Else arm."
func desugarElseIf(s *ast.Stmt) []*ast.Stmt {
	if len(s.ElseIfs) == 0 {
		return s.Else
	}
	first := s.ElseIfs[0]
	nested := &ast.Stmt{
		Kind:    ast.SIf,
		Line:    first.Line,
		Cond:    first.Cond,
		Then:    first.Body,
		ElseIfs: s.ElseIfs[1:],
		Else:    s.Else,
	}
	return []*ast.Stmt{nested}
}

func (b *Builder) buildIf(s *ast.Stmt) {
	header := b.cur
	header.Append(s, s.Line)

	thenBlk := b.g.newBlock("Then")
	mergeBlk := b.g.newBlock("Merge")

	b.g.addEdge(Edge{From: header.ID, To: thenBlk.ID, Kind: Conditional, Label: "true"})

	elseBody := desugarElseIf(s)
	var elseBlk *BasicBlock
	if elseBody != nil {
		elseBlk = b.g.newBlock("Else")
		b.g.addEdge(Edge{From: header.ID, To: elseBlk.ID, Kind: Conditional, Label: "false"})
	} else {
		b.g.addEdge(Edge{From: header.ID, To: mergeBlk.ID, Kind: Conditional, Label: "false"})
	}
	header.IsTerminator = true

	b.cur = thenBlk
	b.processStmtList(s.Then)
	if !b.cur.Terminated() {
		b.g.addEdge(Edge{From: b.cur.ID, To: mergeBlk.ID, Kind: Unconditional})
	}

	if elseBlk != nil {
		b.cur = elseBlk
		b.processStmtList(elseBody)
		if !b.cur.Terminated() {
			b.g.addEdge(Edge{From: b.cur.ID, To: mergeBlk.ID, Kind: Unconditional})
		}
	}

	b.cur = mergeBlk
}

// buildFor handles SForNext and SForIn alike with the five-block
// Init/Header/Body/Increment/Exit layout of spec.md §4.2; both use the
// statement's ForStep as given. A FOR whose ForVar is empty (an unresolved
// NEXT binding) is reported as a CFGError instead of being bound to a guess.
func (b *Builder) buildFor(s *ast.Stmt) {
	if s.ForVar == "" {
		b.errorf(diag.Pos{Line: s.Line}, "unresolved NEXT binding; semantic analysis must disambiguate loop target")
	}
	pred := b.cur
	init := b.g.newBlock("Init")
	header := b.g.newBlock("Header")
	body := b.g.newBlock("Body")
	inc := b.g.newBlock("Increment")
	exit := b.g.newBlock("Exit")
	exit.IsLoopExit = true
	header.IsLoopHeader = true

	if !pred.Terminated() {
		b.g.addEdge(Edge{From: pred.ID, To: init.ID, Kind: Fallthrough})
	}
	init.Append(s, s.Line)
	b.g.addEdge(Edge{From: init.ID, To: header.ID, Kind: Unconditional})

	header.Append(s, s.Line)
	b.g.addEdge(Edge{From: header.ID, To: body.ID, Kind: Conditional, Label: "true"})
	b.g.addEdge(Edge{From: header.ID, To: exit.ID, Kind: Conditional, Label: "false"})
	header.IsTerminator = true

	saved := b.frame
	b.frame = b.frame.pushLoop(tagFor, header.ID, exit.ID, inc.ID, s.ForVar)

	b.cur = body
	b.processStmtList(s.Body)
	if !b.cur.Terminated() {
		b.g.addEdge(Edge{From: b.cur.ID, To: inc.ID, Kind: Unconditional})
	}

	inc.Append(s, s.Line)
	b.g.addEdge(Edge{From: inc.ID, To: header.ID, Kind: Unconditional})

	b.frame = saved
	b.cur = exit
}

// buildLoop handles WHILE/WEND, REPEAT/UNTIL, and every DO…LOOP variant —
// all five pre/post-test shapes reduce to a Header-then-Body (pre-test) or
// Body-then-Cond (post-test) pair with a single Exit, per spec.md §4.2.
func (b *Builder) buildLoop(s *ast.Stmt) {
	pred := b.cur
	preTest, negated := loopShape(s)

	tag := tagDo
	if s.Kind == ast.SWhileWend {
		tag = tagWhile
	}

	if preTest {
		header := b.g.newBlock("Header")
		body := b.g.newBlock("Body")
		exit := b.g.newBlock("Exit")
		header.IsLoopHeader = true
		exit.IsLoopExit = true

		if !pred.Terminated() {
			b.g.addEdge(Edge{From: pred.ID, To: header.ID, Kind: Fallthrough})
		}
		header.Append(s, s.Line)
		trueLbl, falseLbl := "true", "false"
		trueDst, falseDst := body.ID, exit.ID
		if negated {
			trueDst, falseDst = exit.ID, body.ID
		}
		b.g.addEdge(Edge{From: header.ID, To: trueDst, Kind: Conditional, Label: trueLbl})
		b.g.addEdge(Edge{From: header.ID, To: falseDst, Kind: Conditional, Label: falseLbl})
		header.IsTerminator = true

		saved := b.frame
		b.frame = b.frame.pushLoop(tag, header.ID, exit.ID, header.ID, "")
		b.cur = body
		b.processStmtList(s.Body)
		if !b.cur.Terminated() {
			b.g.addEdge(Edge{From: b.cur.ID, To: header.ID, Kind: Unconditional})
		}
		b.frame = saved
		b.cur = exit
		return
	}

	// Post-test: Body first, then the condition decides whether to loop
	// back to the body's entry or fall out to Exit.
	body := b.g.newBlock("Body")
	cond := b.g.newBlock("Cond")
	exit := b.g.newBlock("Exit")
	body.IsLoopHeader = true
	exit.IsLoopExit = true

	if !pred.Terminated() {
		b.g.addEdge(Edge{From: pred.ID, To: body.ID, Kind: Fallthrough})
	}

	saved := b.frame
	b.frame = b.frame.pushLoop(tag, body.ID, exit.ID, cond.ID, "")
	b.cur = body
	b.processStmtList(s.Body)
	if !b.cur.Terminated() {
		b.g.addEdge(Edge{From: b.cur.ID, To: cond.ID, Kind: Unconditional})
	}
	b.frame = saved

	cond.Append(s, s.Line)
	if s.LoopKind == ast.LoopDoPlain {
		// No condition: Cond always loops back; only EXIT reaches Exit.
		b.g.addEdge(Edge{From: cond.ID, To: body.ID, Kind: Unconditional})
	} else {
		loopDst, exitDst := body.ID, exit.ID
		if negated {
			loopDst, exitDst = exit.ID, body.ID
		}
		b.g.addEdge(Edge{From: cond.ID, To: loopDst, Kind: Conditional, Label: "true"})
		b.g.addEdge(Edge{From: cond.ID, To: exitDst, Kind: Conditional, Label: "false"})
	}
	cond.IsTerminator = true

	b.cur = exit
}

// loopShape reports whether s tests its condition before the body runs,
// and whether the surface condition must be negated to mean "keep
// looping" (UNTIL variants loop while the condition is false).
func loopShape(s *ast.Stmt) (preTest, negated bool) {
	switch s.LoopKind {
	case ast.LoopWhile, ast.LoopDoWhilePre:
		return true, false
	case ast.LoopDoUntilPre:
		return true, true
	case ast.LoopDoWhilePost:
		return false, false
	case ast.LoopDoUntilPost, ast.LoopRepeatUntil:
		return false, true
	case ast.LoopDoPlain:
		return false, false // buildLoop gives its Cond block a single unconditional back edge; only EXIT leaves the loop
	}
	return true, false
}

func (b *Builder) buildSelect(s *ast.Stmt) {
	pred := b.cur
	exit := b.g.newBlock("Exit")

	saved := b.frame
	b.frame = b.frame.pushSelect(exit.ID)

	var elseClause *ast.CaseClause
	clauses := make([]ast.CaseClause, 0, len(s.Cases))
	for i := range s.Cases {
		if s.Cases[i].IsElse {
			c := s.Cases[i]
			elseClause = &c
			continue
		}
		clauses = append(clauses, s.Cases[i])
	}

	first := b.g.newBlock(fmt.Sprintf("When_Check_%d", 1))
	if !pred.Terminated() {
		b.g.addEdge(Edge{From: pred.ID, To: first.ID, Kind: Fallthrough})
	}
	check := first

	for i, clause := range clauses {
		cond := synthesizeCaseCond(s.Selector, clause)
		check.Append(&ast.Stmt{Kind: ast.SIf, Cond: cond, Line: clause.Line}, clause.Line)

		bodyBlk := b.g.newBlock("Case_Body")
		b.g.addEdge(Edge{From: check.ID, To: bodyBlk.ID, Kind: Conditional, Label: "true"})

		var next *BasicBlock
		isLast := i == len(clauses)-1
		if isLast {
			if elseClause != nil {
				next = b.g.newBlock("Case_Else")
			} else {
				next = exit
			}
		} else {
			next = b.g.newBlock(fmt.Sprintf("When_Check_%d", i+2))
		}
		b.g.addEdge(Edge{From: check.ID, To: next.ID, Kind: Conditional, Label: "false"})
		check.IsTerminator = true

		b.cur = bodyBlk
		b.processStmtList(clause.Body)
		if !b.cur.Terminated() {
			b.g.addEdge(Edge{From: b.cur.ID, To: exit.ID, Kind: Unconditional})
		}

		check = next
	}

	if elseClause != nil {
		b.cur = check
		b.processStmtList(elseClause.Body)
		if !b.cur.Terminated() {
			b.g.addEdge(Edge{From: b.cur.ID, To: exit.ID, Kind: Unconditional})
		}
	}

	b.frame = saved
	b.cur = exit
}

// synthesizeCaseCond builds the boolean expression one CASE clause tests,
// cloning the selector per comparison (spec.md §4.2). Each clone is
// lowered on its own, so the selector expression is evaluated once for
// every comparison that runs.
func synthesizeCaseCond(selector *ast.Expr, c ast.CaseClause) *ast.Expr {
	switch {
	case c.RangeLo != nil && c.RangeHi != nil:
		lo := ast.Bin(c.Line, ">=", selector.Clone(), c.RangeLo)
		hi := ast.Bin(c.Line, "<=", selector.Clone(), c.RangeHi)
		return ast.Bin(c.Line, "AND", lo, hi)
	case c.CmpVal != nil:
		op := c.CmpOp
		if op == "" {
			op = "="
		}
		return ast.Bin(c.Line, op, selector.Clone(), c.CmpVal)
	default:
		var cond *ast.Expr
		for _, v := range c.Values {
			eq := ast.Bin(c.Line, "=", selector.Clone(), v)
			if cond == nil {
				cond = eq
			} else {
				cond = ast.Bin(c.Line, "OR", cond, eq)
			}
		}
		return cond
	}
}

func (b *Builder) buildTry(s *ast.Stmt) {
	pred := b.cur
	tryBlk := b.g.newBlock("TryBlock")
	catchBlk := b.g.newBlock("CatchBlock")
	var finallyBlk *BasicBlock
	if s.FinallyBody != nil {
		finallyBlk = b.g.newBlock("FinallyBlock")
	}
	exit := b.g.newBlock("Exit")

	afterTryOrCatch := exit.ID
	if finallyBlk != nil {
		afterTryOrCatch = finallyBlk.ID
	}

	if !pred.Terminated() {
		b.g.addEdge(Edge{From: pred.ID, To: tryBlk.ID, Kind: Fallthrough})
	}

	finallyID := -1
	if finallyBlk != nil {
		finallyID = finallyBlk.ID
	}
	saved := b.frame
	b.frame = b.frame.pushTry(catchBlk.ID, finallyID)

	b.cur = tryBlk
	b.processStmtList(s.TryBody)
	if !b.cur.Terminated() {
		b.g.addEdge(Edge{From: b.cur.ID, To: afterTryOrCatch, Kind: Unconditional})
	}
	b.frame = saved

	b.cur = catchBlk
	b.processStmtList(s.CatchBody)
	if !b.cur.Terminated() {
		b.g.addEdge(Edge{From: b.cur.ID, To: afterTryOrCatch, Kind: Unconditional})
	}

	if finallyBlk != nil {
		b.cur = finallyBlk
		b.processStmtList(s.FinallyBody)
		if !b.cur.Terminated() {
			b.g.addEdge(Edge{From: b.cur.ID, To: exit.ID, Kind: Unconditional})
		}
	}

	b.cur = exit
}

func (b *Builder) buildGoto(s *ast.Stmt) {
	b.cur.Append(s, s.Line)
	b.resolveOrDefer(b.cur.ID, s.TargetLine, Unconditional, "goto")
	b.cur.IsTerminator = true
}

// buildGosub wires the Call/Return-Point pair of spec.md §4.2 and §4.3.3,
// and binds RETURN's flat target (DESIGN.md: the CFG's RETURN edge models
// the most recently taken GOSUB's return point; the runtime's actual
// return stack is what makes recursive/looped GOSUBs correct at
// execution time — see internal/runtime).
func (b *Builder) buildGosub(s *ast.Stmt) {
	b.cur.Append(s, s.Line)
	returnPoint := b.g.newBlock("Return_Point")
	b.resolveOrDefer(b.cur.ID, s.TargetLine, Call, "call")
	b.g.addEdge(Edge{From: b.cur.ID, To: returnPoint.ID, Kind: Unconditional})

	id := returnPoint.ID
	b.subReturn = &id
	b.cur = returnPoint
}

func (b *Builder) buildReturn(s *ast.Stmt) {
	b.cur.Append(s, s.Line)
	if b.subReturn != nil {
		b.g.addEdge(Edge{From: b.cur.ID, To: *b.subReturn, Kind: Return})
	} else {
		b.g.addEdge(Edge{From: b.cur.ID, To: b.g.Exit, Kind: Return})
	}
	b.cur.IsTerminator = true
}

func (b *Builder) buildOnGoto(s *ast.Stmt) {
	b.cur.Append(s, s.Line)
	from := b.cur.ID
	for k, line := range s.Targets {
		b.resolveOrDefer(from, line, Conditional, fmt.Sprintf("case_%d", k+1))
	}
	next := b.g.newBlock("OnGoto_Default")
	b.g.addEdge(Edge{From: from, To: next.ID, Kind: Conditional, Label: "default"})
	b.cur.IsTerminator = true
	b.cur = next
}

func (b *Builder) buildOnGosub(s *ast.Stmt) {
	b.cur.Append(s, s.Line)
	from := b.cur.ID
	for k, line := range s.Targets {
		b.resolveOrDefer(from, line, Call, fmt.Sprintf("case_%d", k+1))
	}
	returnPoint := b.g.newBlock("Return_Point")
	b.g.addEdge(Edge{From: from, To: returnPoint.ID, Kind: Conditional, Label: "default"})
	b.cur.IsTerminator = true

	id := returnPoint.ID
	b.subReturn = &id
	b.cur = returnPoint
}

func (b *Builder) buildExitContinue(s *ast.Stmt) {
	b.cur.Append(s, s.Line)
	switch s.Kind {
	case ast.SExit:
		var fr *frame
		switch s.ExitKind {
		case ast.ExitFor:
			fr = b.frame.findLoopOfKind(tagFor)
		case ast.ExitWhile:
			fr = b.frame.findLoopOfKind(tagWhile)
		case ast.ExitDo:
			fr = b.frame.findLoopOfKind(tagDo)
		case ast.ExitSelect:
			fr = b.frame.findSelect()
		}
		if fr == nil {
			b.errorf(diag.Pos{Line: s.Line}, "EXIT has no matching enclosing loop or SELECT CASE")
			b.g.addEdge(Edge{From: b.cur.ID, To: b.g.Exit, Kind: Unconditional})
		} else if s.ExitKind == ast.ExitSelect {
			b.g.addEdge(Edge{From: b.cur.ID, To: fr.selectExitID, Kind: Unconditional})
		} else {
			b.g.addEdge(Edge{From: b.cur.ID, To: fr.exitID, Kind: Unconditional})
		}
	case ast.SContinue:
		fr := b.frame.findLoop()
		if fr == nil {
			b.errorf(diag.Pos{Line: s.Line}, "CONTINUE has no matching enclosing loop")
			b.g.addEdge(Edge{From: b.cur.ID, To: b.g.Exit, Kind: Unconditional})
		} else {
			b.g.addEdge(Edge{From: b.cur.ID, To: fr.continueID, Kind: Unconditional})
		}
	}
	b.cur.IsTerminator = true
}

func (b *Builder) buildEndThrow(s *ast.Stmt) {
	b.cur.Append(s, s.Line)
	switch s.Kind {
	case ast.SEnd:
		b.g.addEdge(Edge{From: b.cur.ID, To: b.g.Exit, Kind: Unconditional})
	case ast.SThrow:
		if tf := b.frame.findTry(); tf != nil {
			b.g.addEdge(Edge{From: b.cur.ID, To: tf.catchID, Kind: Unconditional})
		} else {
			b.g.addEdge(Edge{From: b.cur.ID, To: b.g.Exit, Kind: Unconditional})
		}
	}
	b.cur.IsTerminator = true
}
