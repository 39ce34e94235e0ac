package cfg

import "github.com/fasterbasic/fbc/internal/ast"

// prescan implements spec.md §4.2 Phase 0: recursively collect every
// integer line target mentioned in any GOTO, GOSUB, ON GOTO, ON GOSUB, or
// single-line IF…THEN lineno (the latter is just an SGoto nested in an
// SIf's Then arm in this AST, so no special case is needed for it).
func prescan(stmts []*ast.Stmt) map[int]bool {
	targets := make(map[int]bool)
	var walk func([]*ast.Stmt)
	walk = func(list []*ast.Stmt) {
		for _, s := range list {
			if s == nil {
				continue
			}
			switch s.Kind {
			case ast.SGoto, ast.SGosub:
				targets[s.TargetLine] = true
			case ast.SOnGoto, ast.SOnGosub:
				for _, t := range s.Targets {
					targets[t] = true
				}
			case ast.SIf:
				walk(s.Then)
				for _, ei := range s.ElseIfs {
					walk(ei.Body)
				}
				walk(s.Else)
			case ast.SForNext, ast.SForIn, ast.SWhileWend, ast.SRepeatUntil, ast.SDoLoop:
				walk(s.Body)
			case ast.SSelectCase:
				for _, c := range s.Cases {
					walk(c.Body)
				}
			case ast.STry:
				walk(s.TryBody)
				walk(s.CatchBody)
				walk(s.FinallyBody)
			case ast.SBlock:
				walk(s.Stmts)
			}
		}
	}
	walk(stmts)
	return targets
}
