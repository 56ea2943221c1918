package interp

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atlas-lang/atlas/vm"
)

func TestToAtlasScalarsAndString(t *testing.T) {
	cases := []struct {
		in   interface{}
		want vm.Value
	}{
		{nil, vm.Null},
		{true, vm.Bool(true)},
		{"hi", vm.String("hi")},
		{float64(3.5), vm.Number(3.5)},
		{42, vm.Number(42)},
	}
	for _, c := range cases {
		got, err := ToAtlas(c.in)
		require.NoError(t, err)
		require.Equal(t, c.want, got)
	}
}

func TestToAtlasNilPointerBecomesNull(t *testing.T) {
	var p *string
	v, err := ToAtlas(p)
	require.NoError(t, err)
	require.Equal(t, vm.Null, v)
}

func TestToAtlasArrayConvertsRecursively(t *testing.T) {
	v, err := ToAtlas([]interface{}{1.0, "a", []interface{}{2.0}})
	require.NoError(t, err)
	require.Equal(t, vm.KindArray, v.Kind)
	require.Equal(t, 3, v.Array.Len())
}

func TestToAtlasUnsupportedTypeReturnsConversionError(t *testing.T) {
	_, err := ToAtlas(struct{ X int }{X: 1})
	require.Error(t, err)
	var convErr *ConversionError
	require.ErrorAs(t, err, &convErr)
}

func TestFromAtlasRoundTripsScalars(t *testing.T) {
	b, err := FromAtlasBool(vm.Bool(true))
	require.NoError(t, err)
	require.True(t, b)

	n, err := FromAtlasNumber(vm.Number(7))
	require.NoError(t, err)
	require.Equal(t, 7.0, n)

	s, err := FromAtlasString(vm.String("x"))
	require.NoError(t, err)
	require.Equal(t, "x", s)
}

func TestFromAtlasWrongKindReturnsConversionError(t *testing.T) {
	_, err := FromAtlasBool(vm.Number(1))
	require.Error(t, err)
}

func TestFromAtlasOptionDistinguishesNullFromValue(t *testing.T) {
	v, ok, err := FromAtlasOption(vm.Null)
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, v)

	v, ok, err = FromAtlasOption(vm.Number(9))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 9.0, v)
}

func TestFromAtlasArrayRoundTripsNestedArrays(t *testing.T) {
	in, err := ToAtlas([]interface{}{1.0, []interface{}{2.0, 3.0}})
	require.NoError(t, err)

	out, err := FromAtlasArray(in)
	require.NoError(t, err)
	require.Equal(t, []interface{}{1.0, []interface{}{2.0, 3.0}}, out)
}
