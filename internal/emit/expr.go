package emit

import (
	"fmt"
	"strings"

	"github.com/fasterbasic/fbc/internal/ast"
	"github.com/fasterbasic/fbc/internal/runtime"
	"github.com/fasterbasic/fbc/internal/types"
)

// lowerExpr lowers an expression tree into the growing function body,
// returning the IL value reference that holds its result. Literals that
// need no instruction (integers, QBE float constants) are returned as
// immediate text; everything else is assigned to a fresh temp.
func (e *Emitter) lowerExpr(buf *strings.Builder, x *ast.Expr) string {
	if x == nil {
		return "0"
	}
	switch x.Kind {
	case ast.EIntLit:
		return fmt.Sprintf("%d", x.IntVal)
	case ast.EFloatLit:
		cls := "s"
		if x.Type != nil && x.Type.Base == types.DOUBLE {
			cls = "d"
		}
		return fmt.Sprintf("%s_%v", cls, x.FloatVal)
	case ast.EStringLit:
		return e.lowerStringLit(buf, x.StrVal)
	case ast.EVar:
		return e.lowerVarRead(buf, x.Name)
	case ast.EArrayIndex:
		return e.lowerArrayRead(buf, x)
	case ast.EMember:
		return e.lowerMemberRead(buf, x)
	case ast.EBinary:
		return e.lowerBinary(buf, x)
	case ast.EUnary:
		return e.lowerUnary(buf, x)
	case ast.ECall:
		return e.lowerCall(buf, x)
	case ast.EIif:
		return e.lowerIif(buf, x)
	case ast.EAddrOf:
		return e.lowerAddrOf(buf, x)
	}
	return "0"
}

func (e *Emitter) lowerStringLit(buf *strings.Builder, lit string) string {
	sym := e.internString(lit)
	t := e.newTemp()
	fmt.Fprintf(buf, "  %s =l call $string_new_utf8(l %s, l %d)\n", t, sym, len(lit))
	e.trackStringTemp(t)
	return t
}

// lowerVarRead resolves a scalar read against the symbol table: a global
// is loaded from base+slot*8 in the globals vector (spec.md §3.2/§4.3.3);
// everything else is an ordinary local SSA-style reference. LOOP_INDEX
// variables (promoted FOR counters) read the same way as any INTEGER.
func (e *Emitter) lowerVarRead(buf *strings.Builder, name string) string {
	if sym, ok := e.syms.Variables[name]; ok && sym.GlobalSlot >= 0 {
		addr := e.newTemp()
		fmt.Fprintf(buf, "  %s =l add %%basic_globals, %d\n", addr, sym.GlobalSlot*8)
		t := e.newTemp()
		op := types.Op(sym.Type)
		fmt.Fprintf(buf, "  %s =%s load%s %s\n", t, types.Class(sym.Type), op, addr)
		return t
	}
	return "%v." + name
}

func (e *Emitter) lowerArrayRead(buf *strings.Builder, x *ast.Expr) string {
	if x.X.Type != nil && x.X.Type.IsString() && !x.X.Type.Attrs.Has(types.IsArray) {
		return e.lowerStringIndexRead(buf, x)
	}
	base := e.lowerExpr(buf, x.X)
	idx := e.lowerExpr(buf, x.Y)
	elem := x.Type
	size := 8
	if elem != nil {
		size = types.ElementSizeBytes(elem)
	}
	off := e.newTemp()
	fmt.Fprintf(buf, "  %s =l mul %s, %d\n", off, idx, size)
	addr := e.newTemp()
	fmt.Fprintf(buf, "  %s =l add %s, %s\n", addr, base, off)
	t := e.newTemp()
	cls := "w"
	op := types.MemW
	if elem != nil {
		cls = types.Class(elem).String()
		op = types.Op(elem)
	}
	fmt.Fprintf(buf, "  %s =%s load%s %s\n", t, cls, op, addr)
	return t
}

var strIdxSeq int

// lowerStringIndexRead implements S6's soft-fail indexed character read
// (spec.md §4.3.2): out-of-range yields 0 rather than trapping, and the
// load width is chosen per-access from the descriptor's encoding tag
// rather than the string's static type, since promotion can flip a
// string from ASCII to UTF-32 at runtime.
func (e *Emitter) lowerStringIndexRead(buf *strings.Builder, x *ast.Expr) string {
	strIdxSeq++
	n := strIdxSeq
	inRangeLbl := fmt.Sprintf("@sidx.%d.inrange", n)
	outLbl := fmt.Sprintf("@sidx.%d.out", n)
	asciiLbl := fmt.Sprintf("@sidx.%d.ascii", n)
	wideLbl := fmt.Sprintf("@sidx.%d.wide", n)
	joinLbl := fmt.Sprintf("@sidx.%d.join", n)

	base := e.lowerExpr(buf, x.X)
	idx := e.lowerExpr(buf, x.Y)

	lenAddr := e.newTemp()
	fmt.Fprintf(buf, "  %s =l add %s, %d\n", lenAddr, base, runtime.StringLengthOffset)
	length := e.newTemp()
	fmt.Fprintf(buf, "  %s =l loadl %s\n", length, lenAddr)
	geZero := e.newTemp()
	fmt.Fprintf(buf, "  %s =w csgel %s, 0\n", geZero, idx)
	ltLen := e.newTemp()
	fmt.Fprintf(buf, "  %s =w csltl %s, %s\n", ltLen, idx, length)
	inRange := e.newTemp()
	fmt.Fprintf(buf, "  %s =w and %s, %s\n", inRange, geZero, ltLen)
	fmt.Fprintf(buf, "  jnz %s, %s, %s\n", inRange, inRangeLbl, outLbl)

	fmt.Fprintf(buf, "%s\n", inRangeLbl)
	encAddr := e.newTemp()
	fmt.Fprintf(buf, "  %s =l add %s, %d\n", encAddr, base, runtime.StringEncOffset)
	enc := e.newTemp()
	fmt.Fprintf(buf, "  %s =w loadub %s\n", enc, encAddr)
	isAscii := e.newTemp()
	fmt.Fprintf(buf, "  %s =w ceqw %s, %d\n", isAscii, enc, runtime.EncodingASCII)
	fmt.Fprintf(buf, "  jnz %s, %s, %s\n", isAscii, asciiLbl, wideLbl)

	fmt.Fprintf(buf, "%s\n", asciiLbl)
	dataA := e.newTemp()
	fmt.Fprintf(buf, "  %s =l loadl %s\n", dataA, base)
	addrA := e.newTemp()
	fmt.Fprintf(buf, "  %s =l add %s, %s\n", addrA, dataA, idx)
	charA := e.newTemp()
	fmt.Fprintf(buf, "  %s =w loadub %s\n", charA, addrA)
	fmt.Fprintf(buf, "  jmp %s\n", joinLbl)

	fmt.Fprintf(buf, "%s\n", wideLbl)
	dataW := e.newTemp()
	fmt.Fprintf(buf, "  %s =l loadl %s\n", dataW, base)
	wOff := e.newTemp()
	fmt.Fprintf(buf, "  %s =l mul %s, 4\n", wOff, idx)
	addrW := e.newTemp()
	fmt.Fprintf(buf, "  %s =l add %s, %s\n", addrW, dataW, wOff)
	charW := e.newTemp()
	fmt.Fprintf(buf, "  %s =w loadw %s\n", charW, addrW)
	fmt.Fprintf(buf, "  jmp %s\n", joinLbl)

	fmt.Fprintf(buf, "%s\n", outLbl)
	fmt.Fprintf(buf, "  jmp %s\n", joinLbl)

	fmt.Fprintf(buf, "%s\n", joinLbl)
	result := e.newTemp()
	fmt.Fprintf(buf, "  %s =w phi %s %s, %s %s, %s 0\n", result, asciiLbl, charA, wideLbl, charW, outLbl)
	return result
}

func (e *Emitter) lowerMemberRead(buf *strings.Builder, x *ast.Expr) string {
	base := e.lowerExpr(buf, x.X)
	offset := 0
	var fieldType *types.TypeDescriptor
	if x.X.Type != nil && x.X.Type.UDTID != 0 {
		if udt, ok := e.syms.UDTs[x.X.Type.UDTName]; ok {
			if f, ok := udt.LookupField(x.Name); ok {
				offset = f.Offset
				fieldType = f.Type
			}
		}
	}
	addr := base
	if offset != 0 {
		addr = e.newTemp()
		fmt.Fprintf(buf, "  %s =l add %s, %d\n", addr, base, offset)
	}
	t := e.newTemp()
	cls, op := "w", types.MemW
	if fieldType != nil {
		cls, op = types.Class(fieldType).String(), types.Op(fieldType)
	}
	fmt.Fprintf(buf, "  %s =%s load%s %s\n", t, cls, op, addr)
	return t
}

// binOpName selects the QBE opcode mnemonic (without its class suffix) for
// operator name over operands of promoted type t (spec.md §4.3.2):
// equality is family-independent, but ordered comparisons and div/rem pick
// between the signed, unsigned, and float opcode families, since QBE has
// no single "less than" that works across all three.
func binOpName(name string, t *types.TypeDescriptor) string {
	isFloat := t != nil && t.IsFloat()
	isUnsigned := t != nil && t.IsUnsigned()
	switch name {
	case "+":
		return "add"
	case "-":
		return "sub"
	case "*":
		return "mul"
	case "/":
		if !isFloat && isUnsigned {
			return "udiv"
		}
		return "div"
	case "MOD":
		if isUnsigned {
			return "urem"
		}
		return "rem"
	case "AND":
		return "and"
	case "OR":
		return "or"
	case "XOR":
		return "xor"
	case "=":
		return "ceq"
	case "<>":
		return "cne"
	case "<":
		switch {
		case isFloat:
			return "clt"
		case isUnsigned:
			return "cult"
		default:
			return "cslt"
		}
	case "<=":
		switch {
		case isFloat:
			return "cle"
		case isUnsigned:
			return "cule"
		default:
			return "csle"
		}
	case ">":
		switch {
		case isFloat:
			return "cgt"
		case isUnsigned:
			return "cugt"
		default:
			return "csgt"
		}
	case ">=":
		switch {
		case isFloat:
			return "cge"
		case isUnsigned:
			return "cuge"
		default:
			return "csge"
		}
	}
	return "add"
}

// lowerBinary lowers both operands as they are and takes the QBE class and
// opcode family from the expression's own Type; it does not call
// internal/types.Promote and inserts no conversion for either operand.
// For signed division by a power-of-two constant it applies the
// rounding-toward-zero correction (P7) instead of emitting a plain
// arithmetic-shift divide.
func (e *Emitter) lowerBinary(buf *strings.Builder, x *ast.Expr) string {
	xv := e.lowerExpr(buf, x.X)
	yv := e.lowerExpr(buf, x.Y)

	cls := "w"
	if x.Type != nil {
		cls = types.Class(x.Type).String()
	}

	if x.Name == "/" && x.Type != nil && x.Type.IsInteger() && x.Type.IsSigned() {
		if p, ok := powerOfTwoConst(x.Y); ok {
			return e.lowerSignedPow2Div(buf, xv, p, cls)
		}
	}

	opName := binOpName(x.Name, x.Type)
	isCmp := strings.HasPrefix(opName, "c")
	instCls := cls
	if isCmp {
		// QBE compare mnemonics are suffixed with the operand class, e.g.
		// cultw for a w-class unsigned less-than; the result is always w.
		opName = opName + cls
		instCls = "w"
	}
	t := e.newTemp()
	fmt.Fprintf(buf, "  %s =%s %s %s, %s\n", t, instCls, opName, xv, yv)
	return t
}

func powerOfTwoConst(y *ast.Expr) (uint, bool) {
	if y == nil || y.Kind != ast.EIntLit || y.IntVal <= 0 {
		return 0, false
	}
	v := y.IntVal
	if v&(v-1) != 0 {
		return 0, false
	}
	shift := uint(0)
	for v > 1 {
		v >>= 1
		shift++
	}
	return shift, true
}

// lowerSignedPow2Div implements P7's required rounding toward zero:
// (x + ((x >> (w-1)) >> (w-shift))) >> shift, the standard bias-then-shift
// idiom for signed division by a power of two, so e.g. -7/2 yields -3 and
// not -4 (plain arithmetic shift rounds toward negative infinity).
func (e *Emitter) lowerSignedPow2Div(buf *strings.Builder, xv string, shift uint, cls string) string {
	width := uint(31)
	if cls == "l" {
		width = 63
	}
	signShift := e.newTemp()
	fmt.Fprintf(buf, "  %s =%s sar %s, %d\n", signShift, cls, xv, width)
	bias := e.newTemp()
	fmt.Fprintf(buf, "  %s =%s shr %s, %d\n", bias, cls, signShift, width-shift+1)
	biased := e.newTemp()
	fmt.Fprintf(buf, "  %s =%s add %s, %s\n", biased, cls, xv, bias)
	t := e.newTemp()
	fmt.Fprintf(buf, "  %s =%s sar %s, %d\n", t, cls, biased, shift)
	return t
}

func (e *Emitter) lowerUnary(buf *strings.Builder, x *ast.Expr) string {
	v := e.lowerExpr(buf, x.X)
	cls := "w"
	if x.Type != nil {
		cls = types.Class(x.Type).String()
	}
	t := e.newTemp()
	switch x.Name {
	case "-":
		fmt.Fprintf(buf, "  %s =%s neg %s\n", t, cls, v)
	case "NOT":
		// Bitwise complement, not logical not (spec.md §4.3.2): coerce to a
		// 32-bit integer and xor against -1, so NOT 5 yields -6.
		fmt.Fprintf(buf, "  %s =w xor %s, -1\n", t, v)
	default: // unary +
		return v
	}
	return t
}

// lowerCall handles ABS/SGN as branchless builtins (spec.md §4.3.1) and
// everything else as an ordinary runtime/user call, marshalling ByRef
// arguments as addresses.
func (e *Emitter) lowerCall(buf *strings.Builder, x *ast.Expr) string {
	switch strings.ToUpper(x.Name) {
	case "ABS":
		return e.lowerAbs(buf, x.Args[0])
	case "SGN":
		return e.lowerSgn(buf, x.Args[0])
	case "LEN":
		// Intrinsic, not a runtime call (spec.md §4.3.2): the length field
		// lives at a fixed descriptor offset, so LEN is just a load.
		v := e.lowerExpr(buf, x.Args[0])
		addr := e.newTemp()
		fmt.Fprintf(buf, "  %s =l add %s, %d\n", addr, v, runtime.StringLengthOffset)
		t := e.newTemp()
		fmt.Fprintf(buf, "  %s =l loadl %s\n", t, addr)
		return t
	case "ASC":
		v := e.lowerExpr(buf, x.Args[0])
		t := e.newTemp()
		fmt.Fprintf(buf, "  %s =w call $string_asc(l %s)\n", t, v)
		return t
	case "CHR$":
		v := e.lowerExpr(buf, x.Args[0])
		t := e.newTemp()
		fmt.Fprintf(buf, "  %s =l call $string_chr(w %s)\n", t, v)
		e.trackStringTemp(t)
		return t
	}

	argsText := make([]string, 0, len(x.Args))
	for _, a := range x.Args {
		if a.ByRef {
			argsText = append(argsText, "l "+e.lowerAddrOf(buf, a))
			continue
		}
		v := e.lowerExpr(buf, a)
		cls := "w"
		if a.Type != nil {
			cls = types.Class(a.Type).String()
		}
		if a.Type != nil && a.Type.IsString() {
			// Parameter passing hands the callee a reference it owns
			// (spec.md §9: "acquire/release ... at assignment, parameter
			// passing, and end-of-statement"); the caller's own binding
			// keeps its reference, so retain rather than transfer.
			e.retainString(buf, v)
			e.consumeStringTemp(v)
		}
		argsText = append(argsText, cls+" "+v)
	}
	t := e.newTemp()
	fmt.Fprintf(buf, "  %s =w call $%s(%s)\n", t, x.Name, strings.Join(argsText, ", "))
	return t
}

// lowerAbs emits branchless double-precision ABS: clear the sign bit via
// a bitwise AND against the float's bit pattern, the standard
// no-branch-misprediction idiom this family of backends favors.
func (e *Emitter) lowerAbs(buf *strings.Builder, arg *ast.Expr) string {
	v := e.lowerExpr(buf, arg)
	bits := e.newTemp()
	fmt.Fprintf(buf, "  %s =l cast %s\n", bits, v)
	masked := e.newTemp()
	fmt.Fprintf(buf, "  %s =l and %s, 9223372036854775807\n", masked, bits)
	t := e.newTemp()
	fmt.Fprintf(buf, "  %s =d cast %s\n", t, masked)
	return t
}

// lowerSgn emits branchless SGN via two comparisons summed, avoiding a
// three-way conditional: sgn(x) = (x>0) - (x<0).
func (e *Emitter) lowerSgn(buf *strings.Builder, arg *ast.Expr) string {
	v := e.lowerExpr(buf, arg)
	gt := e.newTemp()
	fmt.Fprintf(buf, "  %s =w cgtd %s, d_0\n", gt, v)
	lt := e.newTemp()
	fmt.Fprintf(buf, "  %s =w cltd %s, d_0\n", lt, v)
	t := e.newTemp()
	fmt.Fprintf(buf, "  %s =w sub %s, %s\n", t, gt, lt)
	return t
}

var iifSeq int

// lowerIif emits IIF's mandatory short-circuit structure (P10): only the
// taken branch's expression is ever evaluated, via a real conditional
// branch rather than a select instruction. Each arm computes its own
// temporary and a `phi` at the join combines them — reassigning one shared
// result temp from both arms would be a multiple SSA definition, which
// spec.md §5 forbids ("SSA discipline is preserved by never reassigning a
// temporary name once emitted").
func (e *Emitter) lowerIif(buf *strings.Builder, x *ast.Expr) string {
	iifSeq++
	n := iifSeq
	trueLbl := fmt.Sprintf("@iif.%d.true", n)
	falseLbl := fmt.Sprintf("@iif.%d.false", n)
	joinLbl := fmt.Sprintf("@iif.%d.join", n)

	cond := e.lowerExpr(buf, x.X)
	fmt.Fprintf(buf, "  jnz %s, %s, %s\n", cond, trueLbl, falseLbl)

	cls := "w"
	if x.Type != nil {
		cls = types.Class(x.Type).String()
	}

	fmt.Fprintf(buf, "%s\n", trueLbl)
	a := e.lowerExpr(buf, x.Y)
	fmt.Fprintf(buf, "  jmp %s\n", joinLbl)

	fmt.Fprintf(buf, "%s\n", falseLbl)
	b := e.lowerExpr(buf, x.Z)
	fmt.Fprintf(buf, "  jmp %s\n", joinLbl)

	fmt.Fprintf(buf, "%s\n", joinLbl)
	result := e.newTemp()
	fmt.Fprintf(buf, "  %s =%s phi %s %s, %s %s\n", result, cls, trueLbl, a, falseLbl, b)
	return result
}

func (e *Emitter) lowerAddrOf(buf *strings.Builder, x *ast.Expr) string {
	inner := x.X
	if inner == nil {
		inner = x
	}
	if inner.Kind == ast.EVar {
		if sym, ok := e.syms.Variables[inner.Name]; ok && sym.GlobalSlot >= 0 {
			addr := e.newTemp()
			fmt.Fprintf(buf, "  %s =l add %%basic_globals, %d\n", addr, sym.GlobalSlot*8)
			return addr
		}
		return "%v." + inner.Name
	}
	return e.lowerExpr(buf, inner)
}
