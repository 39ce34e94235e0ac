// Command fbc is the FasterBASIC ahead-of-time compiler driver: it reads
// a translation unit, runs it through internal/compiler, and writes the
// resulting QBE-style IL to the requested output path. The lexer,
// parser, and semantic analyzer that produce the ast.Program this driver
// needs are out of scope for this build (spec.md §1); FrontEnd is the
// seam a future build wires a real one into.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/fasterbasic/fbc/internal/ast"
	"github.com/fasterbasic/fbc/internal/compiler"
	"github.com/fasterbasic/fbc/internal/diag"
)

// FrontEnd produces the AST and symbol table internal/cfg and
// internal/emit require. No implementation ships in this build; a real
// one will parse a .bas source file and run semantic analysis over it.
type FrontEnd interface {
	Parse(path string) (*ast.Program, error)
}

var frontEnd FrontEnd

var (
	outputPath       string
	includeDirs      []string
	codegenLevel     int
	genDebugInfo     bool
	debugCategories  []string
	enableMaddFusion bool
)

func main() {
	root := &cobra.Command{
		Use:   "fbc [flags] <source.bas>",
		Short: "FasterBASIC ahead-of-time compiler",
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.ExactArgs(1)(cmd, args); err != nil {
				return usageError{err}
			}
			return nil
		},
		RunE: runCompile,
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError{err} })

	flags := root.Flags()
	flags.StringVarP(&outputPath, "output", "o", "a.il", "output IL file path")
	flags.StringArrayVarP(&includeDirs, "include", "i", nil, "additional include search directory")
	flags.IntVarP(&codegenLevel, "codegen", "c", 0, "codegen optimization level")
	flags.StringArrayVarP(&debugCategories, "debug", "d", nil, "enable a diagnostic category (types, cfg, emit, runtime)")
	flags.BoolVarP(&genDebugInfo, "debug-info", "G", false, "request source-line debug annotations (accepted; this build emits none)")
	flags.StringVarP(&codegenTarget, "target", "t", "", "codegen target triple (reserved; the QBE backend itself is out of scope)")
	flags.BoolVar(&enableMaddFusion, "enable-madd-fusion", true, "fuse multiply-add sequences where the target benefits")
	disableMadd := false
	flags.BoolVar(&disableMadd, "disable-madd-fusion", false, "disable multiply-add fusion even on targets that benefit")

	root.PreRunE = func(cmd *cobra.Command, args []string) error {
		if disableMadd {
			enableMaddFusion = false
		}
		return nil
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

var codegenTarget string

func runCompile(cmd *cobra.Command, args []string) error {
	if frontEnd == nil {
		return usageError{errors.New("no front end registered: fbc's lexer/parser/semantic analyzer are out of scope for this build")}
	}

	prog, err := frontEnd.Parse(args[0])
	if err != nil {
		return errors.Wrap(err, "parse")
	}

	cats := make([]diag.Category, 0, len(debugCategories))
	for _, c := range debugCategories {
		cats = append(cats, diag.Category(strings.ToLower(c)))
	}

	result, errs := compiler.Compile(prog, compiler.Options{
		DebugCategories:  cats,
		EnableMaddFusion: enableMaddFusion,
		MergeUnreachable: codegenLevel > 0,
	})
	if len(errs) > 0 {
		return errors.Wrapf(diag.Combine(errs...), "compilation failed with %d error(s)", len(errs))
	}

	for _, w := range result.Warnings {
		fmt.Fprintln(os.Stderr, w.String())
	}

	if err := os.WriteFile(outputPath, []byte(result.IL), 0o644); err != nil {
		return errors.Wrap(err, "write output")
	}
	return nil
}

// usageError marks a driver error that should exit 2 rather than 1
// (spec.md §6.1's usage-error exit code), as opposed to a compile/type/
// CFG failure which exits 1.
type usageError struct{ error }

// exitCodeFor maps a driver error to the exit-code convention spec.md
// §6.1 fixes: 0 success, 1 compile/type/CFG error, 2 usage error.
func exitCodeFor(err error) int {
	if _, ok := err.(usageError); ok {
		return 2
	}
	return 1
}
