package csvtab

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoerce(t *testing.T) {
	tbl := []struct {
		field Field
		aff   Affinity
		exp   Value
	}{
		{Field{}, AffinityInteger, NullValue()},
		{Field{}, AffinityText, NullValue()},
		{Field{Quoted: true}, AffinityText, TextValue("")},
		{Field{Quoted: true}, AffinityInteger, TextValue("")},
		{Field{Text: "42"}, AffinityInteger, IntValue(42)},
		{Field{Text: "-7"}, AffinityInteger, IntValue(-7)},
		{Field{Text: "+7"}, AffinityInteger, IntValue(7)},
		{Field{Text: "4.5"}, AffinityInteger, RealValue(4.5)},
		{Field{Text: "99999999999999999999"}, AffinityInteger, RealValue(1e20)},
		{Field{Text: "n/a"}, AffinityInteger, TextValue("n/a")},
		{Field{Text: "42"}, AffinityReal, RealValue(42)},
		{Field{Text: "1e-3"}, AffinityReal, RealValue(0.001)},
		{Field{Text: ".5"}, AffinityReal, RealValue(0.5)},
		{Field{Text: "5."}, AffinityReal, RealValue(5)},
		{Field{Text: "NaN"}, AffinityReal, TextValue("NaN")},
		{Field{Text: "1e"}, AffinityReal, TextValue("1e")},
		{Field{Text: " 1"}, AffinityInteger, TextValue(" 1")},
		{Field{Text: "42"}, AffinityText, TextValue("42")},
	}

	for _, tt := range tbl {
		t.Run(tt.field.Text+"/"+tt.aff.String(), func(t *testing.T) {
			res := Coerce(tt.field, tt.aff)
			assert.Equal(t, tt.exp, res)
		})
	}
}

func TestValue_Driver(t *testing.T) {
	assert.Nil(t, NullValue().Driver())
	assert.Equal(t, int64(1), IntValue(1).Driver())
	assert.Equal(t, 1.5, RealValue(1.5).Driver())
	assert.Equal(t, "x", TextValue("x").Driver())
	assert.Equal(t, []byte{1}, BlobValue([]byte{1}).Driver())

	assert.Equal(t, IntValue(1), FromDriver(true))
	assert.Equal(t, IntValue(0), FromDriver(false))
	assert.Equal(t, KindNull, FromDriver(nil).Kind())
	assert.Equal(t, KindBlob, FromDriver([]byte("ab")).Kind())
	assert.Equal(t, "BLOB", KindBlob.String())
}

func TestEqualValues(t *testing.T) {
	tbl := []struct {
		name         string
		a, b         Value
		equal, known bool
	}{
		{"null", NullValue(), IntValue(1), false, false},
		{"ints equal", IntValue(1), IntValue(1), true, true},
		{"ints differ", IntValue(1), IntValue(2), false, true},
		{"int and real", IntValue(2), RealValue(2), true, true},
		{"text equal", TextValue("a"), TextValue("a"), true, true},
		{"text differ", TextValue("a"), TextValue("b"), false, true},
		{"text differs by case", TextValue("a"), TextValue("A"), false, false},
		{"text differs by trailing space", TextValue("a "), TextValue("a"), false, false},
		{"text and int", TextValue("1"), IntValue(1), false, false},
		{"blob", BlobValue([]byte("a")), BlobValue([]byte("a")), false, false},
	}
	for _, tt := range tbl {
		t.Run(tt.name, func(t *testing.T) {
			eq, known := equalValues(tt.a, tt.b)
			assert.Equal(t, tt.equal, eq)
			assert.Equal(t, tt.known, known)
		})
	}
}
