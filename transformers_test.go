package attic

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConvertScalarValueNarrowsInts(t *testing.T) {
	v, err := convertScalarValue(int64(42), reflect.TypeOf(int8(0)))
	require.NoError(t, err)
	require.Equal(t, int8(42), v)
}

func TestConvertScalarValueHandlesNil(t *testing.T) {
	v, err := convertScalarValue(nil, reflect.TypeOf(""))
	require.NoError(t, err)
	require.Equal(t, "", v)
}

func TestConvertScalarValueBytesToString(t *testing.T) {
	v, err := convertScalarValue([]byte("hi"), reflect.TypeOf(""))
	require.NoError(t, err)
	require.Equal(t, "hi", v)
}

func TestIsInlineableScalarKind(t *testing.T) {
	require.True(t, isInlineableScalarKind(reflect.Int32))
	require.True(t, isInlineableScalarKind(reflect.String))
	require.False(t, isInlineableScalarKind(reflect.Slice))
	require.False(t, isInlineableScalarKind(reflect.Struct))
}

func TestFlattenArrayShapeMultiDimensional(t *testing.T) {
	var cube [2][3][4]int32
	rank, lengths, elem := flattenArrayShape(reflect.TypeOf(cube))
	require.EqualValues(t, 3, rank)
	require.Equal(t, []int32{2, 3, 4}, lengths)
	require.Equal(t, reflect.TypeOf(int32(0)), elem)
}

func TestFlattenArrayValueOrdersRowMajor(t *testing.T) {
	arr := [2][2]int32{{1, 2}, {3, 4}}
	flat := flattenArrayValue(reflect.ValueOf(arr))
	var got []int32
	for _, v := range flat {
		got = append(got, int32(v.Int()))
	}
	require.Equal(t, []int32{1, 2, 3, 4}, got)
}

func TestNestedArrayTypeBuildsCorrectShape(t *testing.T) {
	got := nestedArrayType(reflect.TypeOf(int32(0)), []int32{2, 3})
	require.Equal(t, reflect.TypeOf([2][3]int32{}), got)
}

func TestSortedMapKeysIsCanonical(t *testing.T) {
	m := map[string]int32{"b": 2, "a": 1, "c": 3}
	keys := sortedMapKeys(reflect.ValueOf(m))
	var got []string
	for _, k := range keys {
		got = append(got, k.String())
	}
	require.Equal(t, []string{"a", "b", "c"}, got)
}
