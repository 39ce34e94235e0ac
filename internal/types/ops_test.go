package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOfSuffixMapsAllSigils(t *testing.T) {
	cases := map[byte]BaseType{
		'%': INTEGER, '&': LONG, '!': SINGLE, '#': DOUBLE,
		'$': STRING, '@': UNICODE, '^': ULONG,
	}
	for sigil, want := range cases {
		td, ok := OfSuffix(sigil)
		require.True(t, ok, "sigil %q", sigil)
		assert.Equal(t, want, td.Base)
	}
	_, ok := OfSuffix('?')
	assert.False(t, ok)
}

func TestInferLiteralNarrowestSigned(t *testing.T) {
	cases := []struct {
		text string
		want BaseType
	}{
		{"0", BYTE},
		{"127", BYTE},
		{"128", SHORT},
		{"32767", SHORT},
		{"32768", INTEGER},
		{"2147483647", INTEGER},
		{"2147483648", LONG},
		{"-129", SHORT},
	}
	for _, c := range cases {
		td, err := InferLiteral(IntLiteral, c.text)
		require.NoError(t, err)
		assert.Equalf(t, c.want, td.Base, "literal %s", c.text)
	}
}

func TestInferLiteralFloatDefaultsToSingleUnlessOverflow(t *testing.T) {
	td, err := InferLiteral(FloatLiteral, "3.14")
	require.NoError(t, err)
	assert.Equal(t, SINGLE, td.Base)

	td, err = InferLiteral(FloatLiteral, "1e300")
	require.NoError(t, err)
	assert.Equal(t, DOUBLE, td.Base)
}

func TestPromoteStringDominates(t *testing.T) {
	got := Promote(Simple(STRING), Simple(INTEGER))
	assert.Equal(t, STRING, got.Base)

	got = Promote(Simple(STRING), Simple(UNICODE))
	assert.Equal(t, UNICODE, got.Base)
}

func TestPromoteFloatBeatsInteger(t *testing.T) {
	got := Promote(Simple(INTEGER), Simple(SINGLE))
	assert.Equal(t, SINGLE, got.Base)

	got = Promote(Simple(SINGLE), Simple(DOUBLE))
	assert.Equal(t, DOUBLE, got.Base)
}

func TestPromoteEqualRankMixedSignednessGoesSigned(t *testing.T) {
	got := Promote(Simple(UINTEGER), Simple(INTEGER))
	assert.Equal(t, INTEGER, got.Base)
	assert.False(t, got.IsUnsigned())
}

func TestPromoteHigherIntegerRankWins(t *testing.T) {
	got := Promote(Simple(BYTE), Simple(LONG))
	assert.Equal(t, LONG, got.Base)
}

func TestCoerceIdentical(t *testing.T) {
	res := Coerce(Simple(INTEGER), Simple(INTEGER))
	assert.Equal(t, Identical, res.Kind)
}

func TestCoerceNumericWideningIsSafe(t *testing.T) {
	res := Coerce(Simple(BYTE), Simple(LONG))
	assert.Equal(t, ImplicitSafe, res.Kind)

	res = Coerce(Simple(INTEGER), Simple(DOUBLE))
	assert.Equal(t, ImplicitSafe, res.Kind)
}

func TestCoerceNarrowingIsLossyWithConversionHint(t *testing.T) {
	res := Coerce(Simple(LONG), Simple(SINGLE))
	assert.Equal(t, ImplicitLossy, res.Kind)
	assert.Equal(t, "CSNG", res.FuncName)

	res = Coerce(Simple(DOUBLE), Simple(SINGLE))
	assert.Equal(t, ImplicitLossy, res.Kind)

	res = Coerce(Simple(LONG), Simple(INTEGER))
	assert.Equal(t, ImplicitLossy, res.Kind)
	assert.Equal(t, "CINT", res.FuncName)
}

func TestCoerceFloatToIntegerIsExplicit(t *testing.T) {
	res := Coerce(Simple(DOUBLE), Simple(INTEGER))
	assert.Equal(t, ExplicitRequired, res.Kind)
	assert.Equal(t, "CINT", res.FuncName)
}

func TestCoerceStringNumericMismatchIsExplicit(t *testing.T) {
	res := Coerce(Simple(STRING), Simple(INTEGER))
	assert.Equal(t, ExplicitRequired, res.Kind)

	res = Coerce(Simple(INTEGER), Simple(STRING))
	assert.Equal(t, ExplicitRequired, res.Kind)
}

func TestCoerceUDTMismatchIsIncompatible(t *testing.T) {
	res := Coerce(UDT(1, "Point"), UDT(2, "Rect"))
	assert.Equal(t, Incompatible, res.Kind)

	res = Coerce(UDT(1, "Point"), UDT(1, "Point"))
	assert.Equal(t, Identical, res.Kind)
}

func TestCoerceArrayScalarMismatchIsIncompatible(t *testing.T) {
	arr := Array(Simple(INTEGER), []Extent{{0, 9}}, false)
	res := Coerce(arr, Simple(INTEGER))
	assert.Equal(t, Incompatible, res.Kind)
}

func TestValueClassMapping(t *testing.T) {
	assert.Equal(t, W32, Class(Simple(BYTE)))
	assert.Equal(t, W32, Class(Simple(INTEGER)))
	assert.Equal(t, L64, Class(Simple(LONG)))
	assert.Equal(t, L64, Class(Simple(STRING)))
	assert.Equal(t, F32, Class(Simple(SINGLE)))
	assert.Equal(t, F64, Class(Simple(DOUBLE)))
}

func TestMemOpSignAndZeroExtension(t *testing.T) {
	assert.Equal(t, MemSB, Op(Simple(BYTE)))
	assert.Equal(t, MemUB, Op(Simple(UBYTE)))
	assert.Equal(t, MemSH, Op(Simple(SHORT)))
	assert.Equal(t, MemUH, Op(Simple(USHORT)))
	assert.Equal(t, MemW, Op(Simple(INTEGER)))
	assert.Equal(t, MemL, Op(Simple(LONG)))
	assert.Equal(t, MemS, Op(Simple(SINGLE)))
	assert.Equal(t, MemD, Op(Simple(DOUBLE)))
}

func TestArrayDimensionsDoNotAffectEquality(t *testing.T) {
	a := Array(Simple(INTEGER), []Extent{{0, 9}}, false)
	b := Array(Simple(INTEGER), []Extent{{0, 99}}, true)
	assert.True(t, a.Equal(b))
}

func TestSizeBytes(t *testing.T) {
	assert.Equal(t, 1, SizeBytes(Simple(BYTE)))
	assert.Equal(t, 2, SizeBytes(Simple(SHORT)))
	assert.Equal(t, 4, SizeBytes(Simple(INTEGER)))
	assert.Equal(t, 4, SizeBytes(Simple(SINGLE)))
	assert.Equal(t, 8, SizeBytes(Simple(LONG)))
	assert.Equal(t, 8, SizeBytes(Simple(DOUBLE)))
}
