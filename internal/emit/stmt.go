package emit

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fasterbasic/fbc/internal/ast"
	"github.com/fasterbasic/fbc/internal/cfg"
	"github.com/fasterbasic/fbc/internal/diag"
	"github.com/fasterbasic/fbc/internal/runtime"
	"github.com/fasterbasic/fbc/internal/types"
)

// emitFunctionBody walks g in reverse postorder from Entry, emitting each
// block's label, its statements' payload, then a trailer derived from the
// block's outgoing edges (spec.md §4.3.3: "control blocks are already
// shaped by the CFG; the emitter only emits the condition at the header
// block and the conditional branch").
func (e *Emitter) emitFunctionBody(buf *strings.Builder, g *cfg.ControlFlowGraph) error {
	for _, id := range reversePostorder(g) {
		blk := g.Block(id)
		fmt.Fprintf(buf, "%s\n", blockLabel(id))
		for i, s := range blk.Stmts {
			e.liveStringTemps = nil
			e.lowerStmtPayload(buf, blk, s, blk.Lines[i])
			e.releaseStatementTemps(buf)
		}
		e.emitTrailer(buf, g, blk)
	}
	return nil
}

func edgesFrom(g *cfg.ControlFlowGraph, from int) []cfg.Edge {
	var out []cfg.Edge
	for _, edge := range g.Edges {
		if edge.From == from {
			out = append(out, edge)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// emitTrailer emits the branch/jump that closes out a block, driven
// entirely by its outgoing edge shape rather than by re-inspecting the
// statement kind — a GOTO, the bottom of a straight-line block, and a
// structured loop header that happens to always take the same arm all
// produce the same single-successor trailer.
func (e *Emitter) emitTrailer(buf *strings.Builder, g *cfg.ControlFlowGraph, blk *cfg.BasicBlock) {
	edges := edgesFrom(g, blk.ID)
	switch {
	case len(edges) == 0:
		fmt.Fprintf(buf, "  ret\n")

	case len(edges) == 1 && edges[0].Kind == cfg.Return:
		ret := e.newTemp()
		fmt.Fprintf(buf, "  %s =l call $basic_gosub_pop()\n", ret)
		fmt.Fprintf(buf, "  jmp %s  # dynamic: return address popped from the GOSUB stack\n", ret)

	case len(edges) == 1:
		fmt.Fprintf(buf, "  jmp %s\n", blockLabel(edges[0].To))

	case len(edges) == 2 && oneIsCall(edges):
		call, uncond := splitCallUncond(edges)
		fmt.Fprintf(buf, "  call $basic_gosub_push(l %s)\n", blockLabel(uncond.To))
		fmt.Fprintf(buf, "  jmp %s\n", blockLabel(call.To))

	case len(edges) == 2 && edges[0].Kind == cfg.Conditional && edges[1].Kind == cfg.Conditional && lastOnStmt(blk) == nil:
		cond := e.lowerCondition(buf, blk)
		trueTo, falseTo := pickTrueFalse(edges)
		fmt.Fprintf(buf, "  jnz %s, %s, %s\n", cond, blockLabel(trueTo), blockLabel(falseTo))

	default:
		e.emitMultiway(buf, blk, edges)
	}
}

func oneIsCall(edges []cfg.Edge) bool {
	hasCall, hasUncond := false, false
	for _, ed := range edges {
		if ed.Kind == cfg.Call {
			hasCall = true
		}
		if ed.Kind == cfg.Unconditional {
			hasUncond = true
		}
	}
	return hasCall && hasUncond
}

func splitCallUncond(edges []cfg.Edge) (call, uncond cfg.Edge) {
	for _, ed := range edges {
		if ed.Kind == cfg.Call {
			call = ed
		} else {
			uncond = ed
		}
	}
	return
}

func pickTrueFalse(edges []cfg.Edge) (trueTo, falseTo int) {
	for _, ed := range edges {
		if ed.Label == "true" {
			trueTo = ed.To
		} else {
			falseTo = ed.To
		}
	}
	return
}

// emitMultiway lowers ON GOTO / ON GOSUB's "case_k" labeled edges as a
// sequential compare-and-branch chain against the 1-based selector,
// falling through to the "default" edge when no case matches. For ON
// GOSUB each matching case first pushes the default (Return_Point) block
// onto the GOSUB stack, the same push a plain GOSUB's trailer makes.
func (e *Emitter) emitMultiway(buf *strings.Builder, blk *cfg.BasicBlock, edges []cfg.Edge) {
	s := lastOnStmt(blk)
	if s == nil {
		e.errorf(diag.Pos{}, "multiway block %d has no ON GOTO/ON GOSUB statement", blk.ID)
		return
	}
	selector := e.lowerExpr(buf, s.Cond)

	var defaultTo int
	ordered := make([]cfg.Edge, 0, len(edges))
	for _, ed := range edges {
		if ed.Label == "default" {
			defaultTo = ed.To
			continue
		}
		ordered = append(ordered, ed)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Label < ordered[j].Label })

	for k, ed := range ordered {
		// Labels sort as strings (case_10 before case_2), so the selector
		// value comes from the label itself, not from the position k.
		var n int
		fmt.Sscanf(ed.Label, "case_%d", &n)
		hit := e.newTemp()
		fmt.Fprintf(buf, "  %s =w ceqw %s, %d\n", hit, selector, n)
		nextLbl := fmt.Sprintf("@on.%d.next.%d", blk.ID, k)
		target := blockLabel(ed.To)
		if s.Kind == ast.SOnGosub {
			target = fmt.Sprintf("@on.%d.call.%d", blk.ID, k)
		}
		fmt.Fprintf(buf, "  jnz %s, %s, %s\n", hit, target, nextLbl)
		if s.Kind == ast.SOnGosub {
			fmt.Fprintf(buf, "%s\n", target)
			fmt.Fprintf(buf, "  call $basic_gosub_push(l %s)\n", blockLabel(defaultTo))
			fmt.Fprintf(buf, "  jmp %s\n", blockLabel(ed.To))
		}
		fmt.Fprintf(buf, "%s\n", nextLbl)
	}
	fmt.Fprintf(buf, "  jmp %s\n", blockLabel(defaultTo))
}

func lastOnStmt(blk *cfg.BasicBlock) *ast.Stmt {
	for i := len(blk.Stmts) - 1; i >= 0; i-- {
		if blk.Stmts[i].Kind == ast.SOnGoto || blk.Stmts[i].Kind == ast.SOnGosub {
			return blk.Stmts[i]
		}
	}
	return nil
}

// lowerCondition finds the condition-bearing statement at the end of a
// two-successor block (IF/WHILE/DO-pre header, post-test DO/REPEAT's Cond
// block) and lowers it. A FOR header's comparison is delegated to a
// single runtime helper so every FOR loop shares one piece of step-sign
// logic instead of re-deriving it at every loop site.
func (e *Emitter) lowerCondition(buf *strings.Builder, blk *cfg.BasicBlock) string {
	if len(blk.Stmts) == 0 {
		return "0"
	}
	s := blk.Stmts[len(blk.Stmts)-1]
	switch s.Kind {
	case ast.SForNext, ast.SForIn:
		idx := e.lowerVarRead(buf, s.ForVar)
		limit := e.lowerExpr(buf, s.ForEnd)
		step := e.lowerExpr(buf, s.ForStep)
		t := e.newTemp()
		fmt.Fprintf(buf, "  %s =w call $basic_for_continue(l %s, l %s, l %s)\n", t, idx, limit, step)
		return t
	default:
		return e.lowerExpr(buf, s.Cond)
	}
}

// lowerStmtPayload emits the non-branching computation a statement
// contributes to its block; the branch/jump itself is always handled by
// emitTrailer from the block's edges, never here.
func (e *Emitter) lowerStmtPayload(buf *strings.Builder, blk *cfg.BasicBlock, s *ast.Stmt, line int) {
	switch s.Kind {
	case ast.SLet:
		e.lowerAssign(buf, s)
	case ast.SDim:
		e.lowerDim(buf, s)
	case ast.SRedim:
		e.lowerRedim(buf, s)
	case ast.SGlobal:
		e.lowerGlobalInit(buf, s)
	case ast.SPrint:
		e.lowerPrint(buf, s)
	case ast.SInput:
		e.lowerInput(buf, s)
	case ast.SData:
		// Nothing is emitted for DATA, here or anywhere else: this build
		// constructs no module-wide DATA table from DATA literals, and
		// READ/RESTORE lower to basic_data_read/basic_data_restore calls
		// regardless.
	case ast.SRead:
		e.lowerRead(buf, s)
	case ast.SRestore:
		e.lowerRestore(buf, s)
	case ast.SExprStmt:
		e.lowerExpr(buf, s.RHS)
	case ast.SIf:
		// Condition is emitted by emitTrailer; IF contributes no payload
		// of its own beyond the branch.
	case ast.SWhileWend, ast.SDoLoop, ast.SRepeatUntil:
		// Same: the block holding this statement is a condition header
		// or a post-test Cond block, handled entirely by emitTrailer.
	case ast.SForNext, ast.SForIn:
		e.lowerForRole(buf, blk, s)
	case ast.SGoto, ast.SGosub, ast.SOnGoto, ast.SOnGosub, ast.SReturn, ast.SExit, ast.SContinue, ast.SEnd, ast.SThrow:
		// Pure control-transfer statements: all of their effect is the
		// trailer edge(s) emitTrailer already derives from the CFG.
	case ast.SOnEvent:
		// SPEC_FULL.md §5.3: accepted syntactically, never lowered; a
		// non-fatal Warning records that no handler code was emitted.
		if e.sink != nil {
			e.sink.Warn(diag.Warning{Category: diag.CatEmit, Pos: diag.Pos{Line: line}, Message: "ON EVENT has no runtime hookup in this build"})
		}
	}
}

func (e *Emitter) lowerAssign(buf *strings.Builder, s *ast.Stmt) {
	v := e.lowerExpr(buf, s.RHS)
	switch s.LHS.Kind {
	case ast.EVar:
		e.storeVar(buf, s.LHS.Name, v, s.Type)
	case ast.EArrayIndex:
		e.storeArrayElem(buf, s.LHS, v)
	case ast.EMember:
		e.storeMember(buf, s.LHS, v)
	}
}

// storeVar commits v into name's binding, retaining it per spec.md §4.4/§9's
// assignment acquire point. A global's slot is zero-initialized by
// basic_global_init, so its previous value is always safe to load and
// release here; a plain local has no such guarantee (its first assignment
// would otherwise read %v.name before any definition exists), so locals
// only retain the incoming value and never release an "old" one.
func (e *Emitter) storeVar(buf *strings.Builder, name, v string, declared *types.TypeDescriptor) {
	sym, ok := e.syms.Variables[name]
	t := declared
	if t == nil && ok {
		t = sym.Type
	}
	isString := t != nil && t.IsString()

	if ok && sym.GlobalSlot >= 0 {
		addr := e.newTemp()
		fmt.Fprintf(buf, "  %s =l add %%basic_globals, %d\n", addr, sym.GlobalSlot*8)
		if isString {
			old := e.newTemp()
			fmt.Fprintf(buf, "  %s =l loadl %s\n", old, addr)
			e.retainString(buf, v)
			e.consumeStringTemp(v)
			fmt.Fprintf(buf, "  storel %s, %s\n", v, addr)
			e.releaseString(buf, old)
			return
		}
		op := types.Op(sym.Type)
		fmt.Fprintf(buf, "  store%s %s, %s\n", op, v, addr)
		return
	}
	cls := "w"
	if declared != nil {
		cls = types.Class(declared).String()
	} else if ok {
		cls = types.Class(sym.Type).String()
	}
	if isString {
		e.retainString(buf, v)
		e.consumeStringTemp(v)
	}
	fmt.Fprintf(buf, "  %%v.%s =%s copy %s\n", name, cls, v)
}

func (e *Emitter) storeArrayElem(buf *strings.Builder, lhs *ast.Expr, v string) {
	if lhs.X.Type != nil && lhs.X.Type.IsString() && !lhs.X.Type.Attrs.Has(types.IsArray) {
		e.storeStringIndexed(buf, lhs, v)
		return
	}
	base := e.lowerExpr(buf, lhs.X)
	idx := e.lowerExpr(buf, lhs.Y)
	size := 8
	op := types.MemL
	if lhs.Type != nil {
		size = types.ElementSizeBytes(lhs.Type)
		op = types.Op(lhs.Type)
	}
	off := e.newTemp()
	fmt.Fprintf(buf, "  %s =l mul %s, %d\n", off, idx, size)
	addr := e.newTemp()
	fmt.Fprintf(buf, "  %s =l add %s, %s\n", addr, base, off)
	// array_new's backing storage is runtime-zero-initialized, so an
	// element's previous value is always safe to load and release here,
	// the same guarantee basic_global_init gives a global's slot.
	if lhs.Type != nil && lhs.Type.IsString() {
		old := e.newTemp()
		fmt.Fprintf(buf, "  %s =l loadl %s\n", old, addr)
		e.retainString(buf, v)
		e.consumeStringTemp(v)
		fmt.Fprintf(buf, "  storel %s, %s\n", v, addr)
		e.releaseString(buf, old)
		return
	}
	fmt.Fprintf(buf, "  store%s %s, %s\n", op, v, addr)
}

// storeStringIndexed implements S6's indexed character write (spec.md
// §4.3.2, P8): bounds-checked via the runtime (unlike the soft-fail read
// path, an out-of-range write traps, mirroring array semantics), and an
// ASCII-encoded string is promoted to UTF-32 in place before a wide store
// whenever the incoming code point no longer fits a byte — promotion is
// monotonic (P8), so the reverse direction never happens. The data pointer
// is reloaded after a possible promotion since the descriptor's backing
// buffer may have been reallocated.
func (e *Emitter) storeStringIndexed(buf *strings.Builder, lhs *ast.Expr, v string) {
	base := e.lowerExpr(buf, lhs.X)
	idx := e.lowerExpr(buf, lhs.Y)

	fmt.Fprintf(buf, "  call $string_bounds_check(l %s, l %s)\n", base, idx)

	strIdxSeq++
	n := strIdxSeq
	promoteLbl := fmt.Sprintf("@sidxw.%d.promote", n)
	skipLbl := fmt.Sprintf("@sidxw.%d.skip", n)
	asciiLbl := fmt.Sprintf("@sidxw.%d.ascii", n)
	wideLbl := fmt.Sprintf("@sidxw.%d.wide", n)
	doneLbl := fmt.Sprintf("@sidxw.%d.done", n)

	encAddr := e.newTemp()
	fmt.Fprintf(buf, "  %s =l add %s, %d\n", encAddr, base, runtime.StringEncOffset)
	enc := e.newTemp()
	fmt.Fprintf(buf, "  %s =w loadub %s\n", enc, encAddr)
	isAscii := e.newTemp()
	fmt.Fprintf(buf, "  %s =w ceqw %s, %d\n", isAscii, enc, runtime.EncodingASCII)
	isWideCP := e.newTemp()
	fmt.Fprintf(buf, "  %s =w csgew %s, 128\n", isWideCP, v)
	needsPromote := e.newTemp()
	fmt.Fprintf(buf, "  %s =w and %s, %s\n", needsPromote, isAscii, isWideCP)
	fmt.Fprintf(buf, "  jnz %s, %s, %s\n", needsPromote, promoteLbl, skipLbl)

	fmt.Fprintf(buf, "%s\n", promoteLbl)
	fmt.Fprintf(buf, "  call $string_promote_utf32(l %s)\n", base)
	fmt.Fprintf(buf, "  jmp %s\n", skipLbl)

	fmt.Fprintf(buf, "%s\n", skipLbl)
	enc2Addr := e.newTemp()
	fmt.Fprintf(buf, "  %s =l add %s, %d\n", enc2Addr, base, runtime.StringEncOffset)
	enc2 := e.newTemp()
	fmt.Fprintf(buf, "  %s =w loadub %s\n", enc2, enc2Addr)
	isAscii2 := e.newTemp()
	fmt.Fprintf(buf, "  %s =w ceqw %s, %d\n", isAscii2, enc2, runtime.EncodingASCII)
	fmt.Fprintf(buf, "  jnz %s, %s, %s\n", isAscii2, asciiLbl, wideLbl)

	fmt.Fprintf(buf, "%s\n", asciiLbl)
	dataA := e.newTemp()
	fmt.Fprintf(buf, "  %s =l loadl %s\n", dataA, base)
	addrA := e.newTemp()
	fmt.Fprintf(buf, "  %s =l add %s, %s\n", addrA, dataA, idx)
	fmt.Fprintf(buf, "  storeb %s, %s\n", v, addrA)
	fmt.Fprintf(buf, "  jmp %s\n", doneLbl)

	fmt.Fprintf(buf, "%s\n", wideLbl)
	dataW := e.newTemp()
	fmt.Fprintf(buf, "  %s =l loadl %s\n", dataW, base)
	wOff := e.newTemp()
	fmt.Fprintf(buf, "  %s =l mul %s, 4\n", wOff, idx)
	addrW := e.newTemp()
	fmt.Fprintf(buf, "  %s =l add %s, %s\n", addrW, dataW, wOff)
	fmt.Fprintf(buf, "  storew %s, %s\n", v, addrW)
	fmt.Fprintf(buf, "  jmp %s\n", doneLbl)

	fmt.Fprintf(buf, "%s\n", doneLbl)
}

func (e *Emitter) storeMember(buf *strings.Builder, lhs *ast.Expr, v string) {
	base := e.lowerExpr(buf, lhs.X)
	offset, op := 0, types.MemL
	var fieldType *types.TypeDescriptor
	if lhs.X.Type != nil && lhs.X.Type.UDTID != 0 {
		if udt, ok := e.syms.UDTs[lhs.X.Type.UDTName]; ok {
			if f, ok := udt.LookupField(lhs.Name); ok {
				offset = f.Offset
				op = types.Op(f.Type)
				fieldType = f.Type
			}
		}
	}
	addr := base
	if offset != 0 {
		addr = e.newTemp()
		fmt.Fprintf(buf, "  %s =l add %s, %d\n", addr, base, offset)
	}
	if fieldType != nil && fieldType.IsString() {
		old := e.newTemp()
		fmt.Fprintf(buf, "  %s =l loadl %s\n", old, addr)
		e.retainString(buf, v)
		e.consumeStringTemp(v)
		fmt.Fprintf(buf, "  storel %s, %s\n", v, addr)
		e.releaseString(buf, old)
		return
	}
	fmt.Fprintf(buf, "  store%s %s, %s\n", op, v, addr)
}

// lowerDim allocates an array descriptor for a freshly declared array
// (spec.md §3.4's ArrayDescriptor layout) via the runtime allocator; a
// scalar DIM needs no instruction at all under this emitter's
// one-SSA-name-per-variable model.
func (e *Emitter) lowerDim(buf *strings.Builder, s *ast.Stmt) {
	if s.Extents == nil {
		return
	}
	rank := len(s.Extents)
	elemSize := 8
	if arr, ok := e.syms.Arrays[s.Name]; ok {
		elemSize = arr.ElemSize
	}
	args := make([]string, 0, rank+1)
	for _, ex := range s.Extents {
		args = append(args, "l "+e.lowerExpr(buf, ex))
	}
	fmt.Fprintf(buf, "  %%v.%s =l call $array_new(l %d, l %d, %s)\n", s.Name, rank, elemSize, strings.Join(args, ", "))
}

// lowerRedim hands REDIM [PRESERVE] entirely to the runtime (SPEC_FULL.md
// §5.2's Open-Question resolution: "emit the call and let the runtime
// report it" rather than modeling capacity growth in the compiler).
func (e *Emitter) lowerRedim(buf *strings.Builder, s *ast.Stmt) {
	args := make([]string, 0, len(s.Extents))
	for _, ex := range s.Extents {
		args = append(args, "l "+e.lowerExpr(buf, ex))
	}
	preserve := 0
	if s.Preserve {
		preserve = 1
	}
	fmt.Fprintf(buf, "  %%v.%s =l call $array_redim_preserve(l %%v.%s, w %d, %s)\n",
		s.Name, s.Name, preserve, strings.Join(args, ", "))
}

func (e *Emitter) lowerGlobalInit(buf *strings.Builder, s *ast.Stmt) {
	fmt.Fprintf(buf, "  call $basic_global_init(l %%basic_globals)\n")
}

// lowerPrint honors PRINT's separator semantics (spec.md §4.3.3): ";"
// means no added spacing, "," advances to the next tab stop, and a
// trailing absent separator appends a newline.
func (e *Emitter) lowerPrint(buf *strings.Builder, s *ast.Stmt) {
	for i, arg := range s.PrintArgs {
		v := e.lowerExpr(buf, arg.Expr)
		cls := "w"
		if arg.Expr.Type != nil {
			cls = types.Class(arg.Expr.Type).String()
		}
		fmt.Fprintf(buf, "  call $basic_print(%s %s)\n", cls, v)
		switch arg.Sep {
		case ast.SepComma:
			fmt.Fprintf(buf, "  call $basic_print_tab()\n")
		case ast.SepSemicolon:
			// no spacing
		case ast.SepNone:
			if i == len(s.PrintArgs)-1 {
				fmt.Fprintf(buf, "  call $basic_print_newline()\n")
			}
		}
	}
	if len(s.PrintArgs) == 0 {
		fmt.Fprintf(buf, "  call $basic_print_newline()\n")
	}
}

func (e *Emitter) lowerInput(buf *strings.Builder, s *ast.Stmt) {
	if s.Prompt != "" {
		sym := e.internString(s.Prompt)
		fmt.Fprintf(buf, "  call $basic_print(l %s)\n", sym)
	}
	v := e.newTemp()
	cls := "w"
	if s.Target.Type != nil {
		cls = types.Class(s.Target.Type).String()
	}
	fmt.Fprintf(buf, "  %s =%s call $basic_input_%s()\n", v, cls, strings.ToLower(cls))
	switch s.Target.Kind {
	case ast.EVar:
		e.storeVar(buf, s.Target.Name, v, s.Target.Type)
	case ast.EArrayIndex:
		e.storeArrayElem(buf, s.Target, v)
	case ast.EMember:
		e.storeMember(buf, s.Target, v)
	}
}

func (e *Emitter) lowerRead(buf *strings.Builder, s *ast.Stmt) {
	for _, target := range s.ReadTargets {
		v := e.newTemp()
		fmt.Fprintf(buf, "  %s =l call $basic_data_read()\n", v)
		switch target.Kind {
		case ast.EVar:
			e.storeVar(buf, target.Name, v, target.Type)
		case ast.EArrayIndex:
			e.storeArrayElem(buf, target, v)
		case ast.EMember:
			e.storeMember(buf, target, v)
		}
	}
}

func (e *Emitter) lowerRestore(buf *strings.Builder, s *ast.Stmt) {
	if s.HasRestoreLine {
		fmt.Fprintf(buf, "  call $basic_data_restore(w %d)\n", s.RestoreLine)
	} else {
		fmt.Fprintf(buf, "  call $basic_data_restore(w 0)\n")
	}
}

// lowerForRole emits the piece of a FOR statement that belongs to the
// specific block role it was appended to (Init/Header/Increment); the
// comparison itself is handled by lowerCondition from emitTrailer, so
// Header contributes nothing here.
func (e *Emitter) lowerForRole(buf *strings.Builder, blk *cfg.BasicBlock, s *ast.Stmt) {
	switch blk.Label {
	case "Init":
		v := e.lowerExpr(buf, s.ForStart)
		e.storeVar(buf, s.ForVar, v, nil)
	case "Increment":
		cur := e.lowerVarRead(buf, s.ForVar)
		step := e.lowerExpr(buf, s.ForStep)
		t := e.newTemp()
		fmt.Fprintf(buf, "  %s =l add %s, %s\n", t, cur, step)
		e.storeVar(buf, s.ForVar, t, nil)
	}
}
