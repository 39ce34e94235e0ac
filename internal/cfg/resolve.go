package cfg

import "github.com/fasterbasic/fbc/internal/diag"

// resolveDeferred is Phase 2: patch every forward-referenced GOTO/GOSUB/ON
// GOTO/ON GOSUB edge now that every line number has a block (spec.md §4.2:
// "a jump target that is never resolved is a hard CFGError, not a
// warning").
func (b *Builder) resolveDeferred() {
	for _, d := range b.deferred {
		id, ok := b.g.LineIndex[d.line]
		if !ok {
			b.errorf(diag.Pos{Line: d.line}, "unresolved jump target: no statement begins at line %d", d.line)
			continue
		}
		b.g.addEdge(Edge{From: d.from, To: id, Kind: d.kind, Label: d.label})
	}
}

// identifyBackEdges is Phase 3. Structured loops already flagged their own
// header blocks in the dedicated builders; this pass additionally catches
// GOTO-built loops (a backward jump to an earlier block id) via the cheap
// id-order heuristic, then runs one DFS from Entry to flag any remaining
// cycle a pure id-order check misses (e.g. a forward GOTO into a block
// that itself later jumps back past its own origin).
func (b *Builder) identifyBackEdges() {
	for _, e := range b.g.Edges {
		if e.Kind == Unconditional && e.To <= e.From {
			b.g.Blocks[e.To].IsLoopHeader = true
		}
	}

	succs := make(map[int][]int, len(b.g.Blocks))
	for _, e := range b.g.Edges {
		succs[e.From] = append(succs[e.From], e.To)
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make([]int, len(b.g.Blocks))
	var visit func(id int)
	visit = func(id int) {
		color[id] = gray
		for _, to := range succs[id] {
			switch color[to] {
			case white:
				visit(to)
			case gray:
				b.g.Blocks[to].IsLoopHeader = true
			}
		}
		color[id] = black
	}
	visit(b.g.Entry)
}

// markSubroutines is Phase 4: any block that is ever the target of a Call
// edge is a subroutine entry point, regardless of how many call sites
// reach it (spec.md §4.2).
func (b *Builder) markSubroutines() {
	for _, e := range b.g.Edges {
		if e.Kind == Call {
			b.g.Blocks[e.To].IsSubroutine = true
		}
	}
}

// EliminateUnreachable is the optional Phase 5 pass (spec.md §4.2:
// "merging is optional — a conformant builder may leave Unreachable
// blocks in place"). A mark-and-sweep reachability sweep at block
// granularity instead of function granularity: blocks reachable from
// Entry keep their links. An unreachable block stays in g.Blocks (block
// ids are slice indices) but is disconnected: every edge touching it is
// pruned, its Preds/Succs are cleared, and its LineIndex/LabelIndex
// entries are removed, since nothing can legally jump to code proven dead.
// No blocks are merged.
func EliminateUnreachable(g *ControlFlowGraph) {
	reachable := make(map[int]bool, len(g.Blocks))
	worklist := []int{g.Entry}
	reachable[g.Entry] = true
	succs := make(map[int][]int, len(g.Blocks))
	for _, e := range g.Edges {
		succs[e.From] = append(succs[e.From], e.To)
	}
	for len(worklist) > 0 {
		id := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		for _, to := range succs[id] {
			if !reachable[to] {
				reachable[to] = true
				worklist = append(worklist, to)
			}
		}
	}

	keptEdges := g.Edges[:0:0]
	for _, e := range g.Edges {
		if reachable[e.From] && reachable[e.To] {
			keptEdges = append(keptEdges, e)
		}
	}
	g.Edges = keptEdges

	for _, blk := range g.Blocks {
		if !reachable[blk.ID] {
			blk.Preds, blk.Succs = nil, nil
			continue
		}
		blk.Preds = filterReachable(blk.Preds, reachable)
		blk.Succs = filterReachable(blk.Succs, reachable)
	}

	for line, id := range g.LineIndex {
		if !reachable[id] {
			delete(g.LineIndex, line)
		}
	}
	for label, id := range g.LabelIndex {
		if !reachable[id] {
			delete(g.LabelIndex, label)
		}
	}
}

func filterReachable(ids []int, reachable map[int]bool) []int {
	out := ids[:0:0]
	for _, id := range ids {
		if reachable[id] {
			out = append(out, id)
		}
	}
	return out
}
