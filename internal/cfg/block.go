// Package cfg is the Control-Flow Graph builder (spec.md §4.2): single-pass
// recursive construction of a per-function CFG from the AST, producing
// blocks, typed edges, loop/select/try/subroutine metadata, and a
// line-number-to-block index. Modeled on arena-style IRFunc/Inst
// construction, generalized from a flat instruction stream into an
// explicit block-and-edge graph per spec.md §9's design note ("treat
// blocks as arena-allocated with stable integer ids; edges own no memory,
// only carry ids").
package cfg

import "github.com/fasterbasic/fbc/internal/ast"

// EdgeKind is the closed set of edge type tags from spec.md §3.3.
type EdgeKind int

const (
	Fallthrough EdgeKind = iota
	Conditional
	Unconditional
	Jump
	Call
	Return
)

func (k EdgeKind) String() string {
	switch k {
	case Fallthrough:
		return "Fallthrough"
	case Conditional:
		return "Conditional"
	case Unconditional:
		return "Unconditional"
	case Jump:
		return "Jump"
	case Call:
		return "Call"
	case Return:
		return "Return"
	}
	return "Unknown"
}

// Edge carries a type tag and a label used solely at emission time
// (spec.md §3.3); it owns no memory, only block ids.
type Edge struct {
	From, To int
	Kind     EdgeKind
	Label    string
}

// BasicBlock is a maximal straight-line run of statements with a single
// entry and (at most, before termination) fallthrough exit. Predecessor
// and successor lists are ids only — traversal never follows a raw
// pointer (spec.md §9).
type BasicBlock struct {
	ID    int
	Label string

	// Stmts holds the AST statement references belonging to this block,
	// one per entry of Lines (spec.md §3.3).
	Stmts []*ast.Stmt
	Lines []int

	Preds []int
	Succs []int

	IsLoopHeader bool
	IsLoopExit   bool
	IsSubroutine bool
	IsTerminator bool
}

// Append adds a statement to the block at the given source line.
func (b *BasicBlock) Append(stmt *ast.Stmt, line int) {
	b.Stmts = append(b.Stmts, stmt)
	b.Lines = append(b.Lines, line)
}

// ControlFlowGraph is the product of the builder: entry/exit block ids, the
// ordered block and edge lists, and the line/label indices spec.md §3.3
// names.
type ControlFlowGraph struct {
	Entry, Exit int
	Blocks      []*BasicBlock
	Edges       []Edge

	LineIndex  map[int]int    // BASIC line number -> block id
	LabelIndex map[string]int // BASIC label -> block id

	FuncName string // "" for the top-level/main CFG
}

func (g *ControlFlowGraph) Block(id int) *BasicBlock {
	return g.Blocks[id]
}

// AddEdge records an edge and updates both endpoints' pred/succ lists —
// the only place an edge is ever created, so I1/I2's bookkeeping can never
// drift out of sync (spec.md P1).
func (g *ControlFlowGraph) addEdge(e Edge) {
	g.Edges = append(g.Edges, e)
	from, to := g.Blocks[e.From], g.Blocks[e.To]
	from.Succs = append(from.Succs, e.To)
	to.Preds = append(to.Preds, e.From)
}

// newBlock allocates the next block id; blocks are arena-style — appended
// once, never reallocated, and referenced only by id thereafter.
func (g *ControlFlowGraph) newBlock(label string) *BasicBlock {
	b := &BasicBlock{ID: len(g.Blocks), Label: label}
	g.Blocks = append(g.Blocks, b)
	return b
}

// Terminated reports whether b's last statement transfers control
// unconditionally, matching spec.md §3.3's definition of "terminated".
func (b *BasicBlock) Terminated() bool {
	return b.IsTerminator
}
