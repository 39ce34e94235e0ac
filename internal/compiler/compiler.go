// Package compiler wires internal/ast, internal/cfg, internal/types, and
// internal/emit together into the single per-invocation pipeline spec.md
// §5 describes ("each invocation processes one translation unit"),
// stamping every trace log line and the emitted module comment with a
// per-compilation identifier so concurrent invocations (and their log
// lines) never get confused with one another — grounded on the
// teacher's single global compilerDebug/targetBackend driver state in
// std/compiler/main.go, generalized into an explicit, non-global struct
// so a caller (cmd/fbc, or a test) can run more than one compilation in
// the same process.
package compiler

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fasterbasic/fbc/internal/ast"
	"github.com/fasterbasic/fbc/internal/cfg"
	"github.com/fasterbasic/fbc/internal/diag"
	"github.com/fasterbasic/fbc/internal/emit"
)

// Options mirrors the CLI surface of spec.md §6.1 that is handed to the
// pipeline (output path and run mode live in cmd/fbc). Compile reads
// DebugCategories and MergeUnreachable; EnableMaddFusion is carried but
// no pipeline stage reads it.
type Options struct {
	DebugCategories []diag.Category
	EnableMaddFusion bool
	MergeUnreachable bool // Phase 5 optional merging pass
}

// Result is everything a caller needs after a successful compilation:
// the rendered IL text, the per-compilation id it was stamped with, and
// any warnings collected along the way (spec.md §7).
type Result struct {
	CompilationID string
	IL            string
	Warnings      []diag.Warning
}

// Compile runs the full pipeline over one ast.Program: build a CFG per
// function plus the top-level program, then emit one IL module. When any
// debug category is enabled, trace lines go to a zap development logger
// (stderr), each tagged with the compilation id; otherwise nothing is
// logged.
func Compile(prog *ast.Program, opts Options) (*Result, []error) {
	id := uuid.New().String()
	base := zap.NewNop()
	if len(opts.DebugCategories) > 0 {
		if l, err := zap.NewDevelopment(); err == nil {
			base = l
		}
	}
	logger := diag.NewLogger(base.With(zap.String("compilation", id)), opts.DebugCategories...)

	mainG, errs := cfg.Build(prog.Main, prog.Syms, "", logger)
	if len(errs) > 0 {
		return nil, errs
	}
	if opts.MergeUnreachable {
		cfg.EliminateUnreachable(mainG)
	}

	funcs := make([]emit.NamedFunc, 0, len(prog.Funcs))
	for _, fn := range prog.Funcs {
		g, ferrs := cfg.Build(fn.Body, prog.Syms, fn.Name, logger)
		if len(ferrs) > 0 {
			errs = append(errs, ferrs...)
			continue
		}
		if opts.MergeUnreachable {
			cfg.EliminateUnreachable(g)
		}
		funcs = append(funcs, emit.NamedFunc{Decl: fn, G: g})
	}
	if len(errs) > 0 {
		return nil, errs
	}

	emitter := emit.NewEmitter(prog.Syms, logger, id)
	il, emitErrs := emitter.EmitProgram(mainG, funcs)
	if len(emitErrs) > 0 {
		return nil, emitErrs
	}

	return &Result{CompilationID: id, IL: il, Warnings: logger.Warnings()}, nil
}
