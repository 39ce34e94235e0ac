// Package diag is the single diagnostic channel every other package routes
// through: tracing goes through one category-filtered sink instead of
// ad-hoc fmt calls scattered across the CFG builder and emitter.
package diag

import (
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Category tags which subsystem emitted a log line or collected a warning.
// -d <flags> on the CLI toggles these independently of the backend's own
// debug categories (spec.md §6.1).
type Category string

const (
	CatTypes   Category = "types"
	CatCFG     Category = "cfg"
	CatEmit    Category = "emit"
	CatRuntime Category = "runtime"
)

// Pos is a source location, carried as a struct field on every categorized
// error rather than baked into a formatted string, so the driver can render
// it however spec.md §7 wants ("category, source location, message").
type Pos struct {
	Line int
	Col  int
}

func (p Pos) String() string {
	if p.Line == 0 {
		return "?"
	}
	if p.Col == 0 {
		return fmt.Sprintf("line %d", p.Line)
	}
	return fmt.Sprintf("line %d, col %d", p.Line, p.Col)
}

// Sink is the category-filtered tracing/diagnostic channel. A *Logger
// implements it; tests may substitute a recording fake.
type Sink interface {
	Tracef(cat Category, format string, args ...interface{})
	Warn(w Warning)
	Warnings() []Warning
}

// Logger wraps a zap.SugaredLogger with a per-category enable set and an
// accumulating list of non-fatal Warnings (§7). It is function-local in
// spirit even though it is shared across one compilation: nothing in it
// survives past the CompilationContext that owns it (§5).
type Logger struct {
	sugar    *zap.SugaredLogger
	enabled  map[Category]bool
	warnings []Warning
}

// NewLogger builds a Logger around the given zap base (a no-op logger when
// base is nil), enabling only the categories named. An empty set disables all tracing but still
// collects warnings, matching the CLI's independent debug toggle.
func NewLogger(base *zap.Logger, categories ...Category) *Logger {
	if base == nil {
		base = zap.NewNop()
	}
	enabled := make(map[Category]bool, len(categories))
	for _, c := range categories {
		enabled[c] = true
	}
	return &Logger{sugar: base.Sugar(), enabled: enabled}
}

func (l *Logger) Tracef(cat Category, format string, args ...interface{}) {
	if l == nil || !l.enabled[cat] {
		return
	}
	l.sugar.Debugf(string(cat)+": "+format, args...)
}

// Warn records a non-fatal diagnostic. Warnings never affect exit code
// (§7) — they are attached to the diagnostic stream for the driver to
// print once compilation finishes.
func (l *Logger) Warn(w Warning) {
	if l == nil {
		return
	}
	l.warnings = append(l.warnings, w)
	l.sugar.Warnw(w.Message, "category", w.Category, "line", w.Pos.Line)
}

func (l *Logger) Warnings() []Warning {
	if l == nil {
		return nil
	}
	return l.warnings
}

// Warning is an ImplicitLossy coercion, unreachable code, or an implicitly
// declared variable — the three Warning-class diagnostics of §7 — or the
// emitter's notice that an ON EVENT statement was not lowered.
type Warning struct {
	Category Category
	Pos      Pos
	Message  string
}

func (w Warning) String() string {
	return fmt.Sprintf("warning: %s at %s: %s", w.Category, w.Pos, w.Message)
}

// --- Categorized errors (§7) ---
//
// Each wraps github.com/pkg/errors so a stack trace rides along from the
// point the error was first constructed, not just from where it's finally
// printed by the driver.

// TypeError is an invalid coercion, an operator applied to incompatible
// operands, or an assignment across mismatched UDT ids.
type TypeError struct {
	Pos     Pos
	Message string
	cause   error
}

func NewTypeError(pos Pos, format string, args ...interface{}) *TypeError {
	return &TypeError{Pos: pos, Message: fmt.Sprintf(format, args...), cause: errors.New(fmt.Sprintf(format, args...))}
}

func (e *TypeError) Error() string { return fmt.Sprintf("type error at %s: %s", e.Pos, e.Message) }
func (e *TypeError) Unwrap() error { return e.cause }

// CFGError is an unresolved jump target, an EXIT/CONTINUE outside a
// matching context, a NEXT without a matching FOR, or a duplicate line
// number bound to different statements.
type CFGError struct {
	Pos     Pos
	Message string
	cause   error
}

func NewCFGError(pos Pos, format string, args ...interface{}) *CFGError {
	return &CFGError{Pos: pos, Message: fmt.Sprintf(format, args...), cause: errors.New(fmt.Sprintf(format, args...))}
}

func (e *CFGError) Error() string { return fmt.Sprintf("CFG error at %s: %s", e.Pos, e.Message) }
func (e *CFGError) Unwrap() error { return e.cause }

// EmitError is an internal inconsistency: a block with no terminator at
// emission time, or a temporary-name collision.
type EmitError struct {
	Pos     Pos
	Message string
	cause   error
}

func NewEmitError(pos Pos, format string, args ...interface{}) *EmitError {
	return &EmitError{Pos: pos, Message: fmt.Sprintf(format, args...), cause: errors.New(fmt.Sprintf(format, args...))}
}

func (e *EmitError) Error() string { return fmt.Sprintf("emit error at %s: %s", e.Pos, e.Message) }
func (e *EmitError) Unwrap() error { return e.cause }

// RuntimeError mirrors what the runtime's own error reporter prints
// ("Runtime error at line N: msg"); the compiler constructs these only to
// describe what the emitted error-reporter call will say, never to raise
// them itself at compile time.
type RuntimeError struct {
	Pos     Pos
	Message string
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("Runtime error at line %d: %s", e.Pos.Line, e.Message)
}

// Wrap attaches an additional message to an existing categorized error
// without discarding its stack trace, for sites that want to add context
// (e.g. "while building function Foo") as an error propagates up to the
// driver.
func Wrap(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// Combine folds every error a single compilation accumulated (across the
// CFG builder, every function body, and the emitter) into one multi-error
// the driver can print as a flat list, rather than only ever surfacing the
// first failure.
func Combine(errs ...error) error {
	return multierr.Combine(errs...)
}
