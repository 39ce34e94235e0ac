package ast

import "github.com/fasterbasic/fbc/internal/types"

// VariableSymbol is a scalar variable as exposed by the semantic analyzer
// (spec.md §3.2): name, scope, type, globals slot (if any), and whether a
// FOR loop has promoted its counter to LOOP_INDEX internally.
type VariableSymbol struct {
	Name         string
	Scope        string // function-qualified scope name, or "" for globals
	Type         *types.TypeDescriptor
	GlobalSlot   int // -1 if not a global
	LoopPromoted bool
}

// ArraySymbol is an array variable.
type ArraySymbol struct {
	Name        string
	ElemType    *types.TypeDescriptor
	Extents     []types.Extent
	ElemSize    int
	Descriptor  string // runtime descriptor storage location role, e.g. "local", "global"
	GlobalSlot  int
}

// FuncSymbol is a FUNCTION/SUB declaration's signature.
type FuncSymbol struct {
	Name    string
	Params  []Param
	RetType *types.TypeDescriptor
}

// UDTField is one ordered, offset-assigned field of a user-defined type.
type UDTField struct {
	Name   string
	Type   *types.TypeDescriptor
	Offset int
}

// UDTSymbol is a TYPE...END TYPE declaration.
type UDTSymbol struct {
	ID     int
	Name   string
	Fields []UDTField
}

// SymbolTable is everything the semantic analyzer (out of scope per
// spec.md §1) hands to the CFG builder and emitter: spec.md §3.2's fixed
// contract. Globals slots are allocated once during semantic analysis and
// are read-only afterward (spec.md §5).
type SymbolTable struct {
	Variables map[string]*VariableSymbol
	Arrays    map[string]*ArraySymbol
	Funcs     map[string]*FuncSymbol
	UDTs      map[string]*UDTSymbol
	Data      []DataValue // ordered DATA literals, program-wide

	GlobalSlotCount int
}

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		Variables: make(map[string]*VariableSymbol),
		Arrays:    make(map[string]*ArraySymbol),
		Funcs:     make(map[string]*FuncSymbol),
		UDTs:      make(map[string]*UDTSymbol),
	}
}

// LookupField returns the field of a UDT by name, or false if absent.
func (u *UDTSymbol) LookupField(name string) (UDTField, bool) {
	for _, f := range u.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return UDTField{}, false
}

// Program is a single translation unit (spec.md §5: "each invocation
// processes one translation unit"): its top-level statements (which may
// include line-numbered GOTO/GOSUB targets) plus every FUNCTION/SUB/DEF FN
// declared in it, and the symbol table the semantic analyzer produced.
type Program struct {
	Main  []*Stmt
	Funcs []*Function
	Syms  *SymbolTable
}
