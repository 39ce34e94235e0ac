// Package emit is the type-directed IL emitter (spec.md §4.3): it walks a
// built *cfg.ControlFlowGraph block by block in reverse-postorder from
// Entry and produces QBE-style textual IL. Modeled after a
// generateIRText-style dump routine: a strings.Builder accumulates a
// header comment block, a data section, then one function body per CFG,
// the same section layout an IR dump uses — generalized from a
// stack-machine Opcode stream to QBE's value-producing instruction form
// (spec.md §1: "QBE-style SSA IL is the lowering target").
package emit

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fasterbasic/fbc/internal/ast"
	"github.com/fasterbasic/fbc/internal/cfg"
	"github.com/fasterbasic/fbc/internal/diag"
	"github.com/fasterbasic/fbc/internal/types"
)

// Emitter holds the state that must persist across an entire module:
// the temp-name counter and the deduplicated string-constant pool. Both
// are global to the module, not per-function, matching a single
// module-wide constant table.
type Emitter struct {
	syms *ast.SymbolTable
	sink diag.Sink
	errs []error

	tempSeq int

	strPool  map[string]string
	strOrder []string

	compilationID string

	// liveStringTemps tracks string descriptors created while lowering the
	// statement currently in progress (string literals, CHR$) that have not
	// yet been retained into a named binding or handed to a call. Cleared
	// at the start of each statement; anything still here when the
	// statement finishes is a throwaway value and gets released (spec.md
	// §4.4/§9: "the emitter inserts these calls at assignment, parameter
	// passing, and end-of-statement release points").
	liveStringTemps []string
}

func NewEmitter(syms *ast.SymbolTable, sink diag.Sink, compilationID string) *Emitter {
	return &Emitter{
		syms:          syms,
		sink:          sink,
		strPool:       make(map[string]string),
		compilationID: compilationID,
	}
}

func (e *Emitter) errorf(pos diag.Pos, format string, args ...interface{}) {
	err := diag.NewEmitError(pos, format, args...)
	e.errs = append(e.errs, err)
	if e.sink != nil {
		e.sink.Tracef(diag.CatEmit, "%s", err.Error())
	}
}

func (e *Emitter) newTemp() string {
	e.tempSeq++
	return fmt.Sprintf("%%t.%d", e.tempSeq)
}

// trackStringTemp registers a freshly constructed string descriptor (owned
// at refcount 1 by the call that produced it) as a candidate for
// end-of-statement release.
func (e *Emitter) trackStringTemp(v string) {
	e.liveStringTemps = append(e.liveStringTemps, v)
}

// consumeStringTemp removes v from the release candidates once it has been
// retained into a binding or handed off as a call argument — ownership has
// moved elsewhere, so the end-of-statement sweep must not release it too.
func (e *Emitter) consumeStringTemp(v string) {
	for i, t := range e.liveStringTemps {
		if t == v {
			e.liveStringTemps = append(e.liveStringTemps[:i], e.liveStringTemps[i+1:]...)
			return
		}
	}
}

// retainString gives a binding or call argument its own reference to v.
// A fresh temp still in liveStringTemps already carries the single
// reference its constructor made, so that reference is transferred as is
// (the caller's consumeStringTemp then drops it from the release sweep)
// and no string_retain is emitted for it.
func (e *Emitter) retainString(buf *strings.Builder, v string) {
	for _, t := range e.liveStringTemps {
		if t == v {
			return
		}
	}
	fmt.Fprintf(buf, "  call $string_retain(l %s)\n", v)
}

func (e *Emitter) releaseString(buf *strings.Builder, v string) {
	fmt.Fprintf(buf, "  call $string_release(l %s)\n", v)
}

// releaseStatementTemps closes out a statement's refcount bookkeeping:
// every string descriptor still in liveStringTemps was computed but never
// retained into a binding or passed to a call, so it is released here
// (P9: no temporary-only reference outlives its statement).
func (e *Emitter) releaseStatementTemps(buf *strings.Builder) {
	for _, v := range e.liveStringTemps {
		e.releaseString(buf, v)
	}
	e.liveStringTemps = nil
}

// internString deduplicates a string literal into the module's constant
// pool and returns its data symbol name (spec.md §4.3.1: string literals
// become UTF-8 data). Only the data is shared: lowerStringLit constructs a
// new StringDescriptor from it at every reference.
func (e *Emitter) internString(lit string) string {
	if sym, ok := e.strPool[lit]; ok {
		return sym
	}
	sym := fmt.Sprintf("$str.%d", len(e.strOrder))
	e.strPool[lit] = sym
	e.strOrder = append(e.strOrder, sym)
	return sym
}

// NamedFunc pairs a built CFG with the Function declaration it lowers,
// for functions/subs/DEF FN (spec.md §5).
type NamedFunc struct {
	Decl *ast.Function
	G    *cfg.ControlFlowGraph
}

// EmitProgram renders the full module: header comment, data section
// (string pool — filled only after body emission, so it is written last
// despite appearing first in the text, the same way a module dump defers
// its globals/types sections until the full program has been walked),
// then one function per CFG.
func (e *Emitter) EmitProgram(mainG *cfg.ControlFlowGraph, funcs []NamedFunc) (string, []error) {
	var body strings.Builder

	body.WriteString("export function w $main() {\n")
	if err := e.emitFunctionBody(&body, mainG); err != nil {
		e.errorf(diag.Pos{}, "%s", err)
	}
	body.WriteString("}\n\n")

	for _, nf := range funcs {
		sig := qbeSignature(nf.Decl)
		body.WriteString(fmt.Sprintf("function %s $%s(%s) {\n", sig.ret, nf.Decl.Name, sig.params))
		if err := e.emitFunctionBody(&body, nf.G); err != nil {
			e.errorf(diag.Pos{}, "%s", err)
		}
		body.WriteString("}\n\n")
	}

	var out strings.Builder
	out.WriteString("# FasterBASIC IL module\n")
	if e.compilationID != "" {
		out.WriteString(fmt.Sprintf("# compilation %s\n", e.compilationID))
	}
	out.WriteString(fmt.Sprintf("# functions: %d, strings: %d\n\n", len(funcs)+1, len(e.strOrder)))

	if len(e.strOrder) > 0 {
		out.WriteString("# === string pool ===\n")
		for _, sym := range e.strOrder {
			var lit string
			for k, v := range e.strPool {
				if v == sym {
					lit = k
					break
				}
			}
			out.WriteString(fmt.Sprintf("data %s = { b %q, z 1 }\n", sym, lit))
		}
		out.WriteString("\n")
	}

	out.WriteString(body.String())
	return out.String(), e.errs
}

type qbeSig struct {
	ret    string
	params string
}

func qbeSignature(fn *ast.Function) qbeSig {
	ret := "w"
	if fn.RetType != nil {
		ret = types.Class(fn.RetType).String()
	}
	parts := make([]string, 0, len(fn.Params))
	for _, p := range fn.Params {
		cls := types.Class(p.Type)
		if p.ByRef {
			parts = append(parts, fmt.Sprintf("l %%p.%s", p.Name))
		} else {
			parts = append(parts, fmt.Sprintf("%s %%p.%s", cls.String(), p.Name))
		}
	}
	return qbeSig{ret: ret, params: strings.Join(parts, ", ")}
}

// blockLabel names a block for jump targets; stable across a single
// emission so forward and backward branches resolve to the same string.
func blockLabel(id int) string { return fmt.Sprintf("@blk.%d", id) }

// reversePostorder walks the CFG from Entry and returns block ids in an
// order that puts every block after at least one of its predecessors
// whenever the graph is acyclic along that path — the ordering spec.md
// §4.3 assumes the emitter uses ("reverse postorder from entry") so that
// straight-line fallthrough code reads top-to-bottom.
func reversePostorder(g *cfg.ControlFlowGraph) []int {
	visited := make([]bool, len(g.Blocks))
	var post []int
	var visit func(id int)
	visit = func(id int) {
		if visited[id] {
			return
		}
		visited[id] = true
		succs := sortedSuccs(g.Block(id))
		for _, s := range succs {
			visit(s)
		}
		post = append(post, id)
	}
	visit(g.Entry)
	// Any block unreachable from Entry (Phase 5 is optional, and even
	// cfg.EliminateUnreachable leaves such blocks in g.Blocks, disconnected)
	// is still emitted, appended in id order, so the emitter never silently
	// drops a block spec.md says to keep.
	for id := range g.Blocks {
		if !visited[id] {
			post = append(post, id)
		}
	}
	out := make([]int, len(post))
	for i, id := range post {
		out[len(post)-1-i] = id
	}
	return out
}

func sortedSuccs(b *cfg.BasicBlock) []int {
	s := append([]int(nil), b.Succs...)
	sort.Ints(s)
	return s
}
