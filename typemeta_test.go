package attic

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetadataIDForCachesByType(t *testing.T) {
	r := newRegistry()
	registerBuiltins(r)
	e := newTypeMetaEncoder(r)

	id1, err := e.metadataIDFor(reflect.TypeOf(int32(0)), nil)
	require.NoError(t, err)
	id2, err := e.metadataIDFor(reflect.TypeOf(int32(0)), nil)
	require.NoError(t, err)
	require.Equal(t, id1, id2)
}

func TestMetadataIDForBackfillsTransformer(t *testing.T) {
	r := newRegistry()
	registerBuiltins(r)
	e := newTypeMetaEncoder(r)

	id, err := e.metadataIDFor(reflect.TypeOf(int32(0)), nil)
	require.NoError(t, err)
	rec, ok := e.metaTable.TryValueOf(id)
	require.True(t, ok)
	require.Equal(t, int32(0), rec.TransformerID)

	_, err = e.metadataIDFor(reflect.TypeOf(int32(0)), &scalarTransformer{typ: reflect.TypeOf(int32(0))})
	require.NoError(t, err)
	rec, ok = e.metaTable.TryValueOf(id)
	require.True(t, ok)
	require.NotEqual(t, int32(0), rec.TransformerID)
}

func TestTypeForRoundTripsSlice(t *testing.T) {
	r := newRegistry()
	registerBuiltins(r)
	e := newTypeMetaEncoder(r)

	id, err := e.metadataIDFor(reflect.TypeOf([]string(nil)), sliceTransformerInstance)
	require.NoError(t, err)

	resolved, ok := e.typeFor(id)
	require.True(t, ok)
	require.Equal(t, ShapeList, resolved.Shape)
	require.Equal(t, reflect.TypeOf(""), resolved.Elem)
}

func TestTypeForRoundTripsMap(t *testing.T) {
	r := newRegistry()
	registerBuiltins(r)
	e := newTypeMetaEncoder(r)

	id, err := e.metadataIDFor(reflect.TypeOf(map[string]int32(nil)), mapTransformerInstance)
	require.NoError(t, err)

	resolved, ok := e.typeFor(id)
	require.True(t, ok)
	require.Equal(t, ShapeMap, resolved.Shape)
	require.Equal(t, reflect.TypeOf(""), resolved.Key)
	require.Equal(t, reflect.TypeOf(int32(0)), resolved.Elem)
}

func TestArrayElementTypeDrillsThroughNestedDimensions(t *testing.T) {
	r := newRegistry()
	registerBuiltins(r)
	e := newTypeMetaEncoder(r)

	var cube [2][3][4]int32
	id, err := e.metadataIDFor(reflect.TypeOf(cube), arrayTransformerInstance)
	require.NoError(t, err)

	elem, ok := e.arrayElementType(id)
	require.True(t, ok)
	require.Equal(t, reflect.TypeOf(int32(0)), elem)
}

func TestTypeForUnknownBaseGUIDIsAbsentNotError(t *testing.T) {
	r1 := newRegistry()
	registerBuiltins(r1)
	type onlyInR1 struct{ V int32 }
	desc, err := r1.TypeInfo(reflect.TypeOf(onlyInR1{}))
	require.NoError(t, err)

	r2 := newRegistry()
	registerBuiltins(r2)
	e2 := newTypeMetaEncoder(r2)
	typeID := e2.typeTable.IndexOf(desc.GUID) // present in the wire table, absent from r2's registry
	metaID := e2.metaTable.IndexOf(typeMetaRecord{TypeID: typeID})

	resolved, ok := e2.typeFor(metaID)
	require.False(t, ok)
	require.Equal(t, ResolvedType{}, resolved)
	require.Contains(t, e2.UnknownGUIDs(), desc.GUID)
}

func TestAnyBaseGUIDMarksDynamicSlot(t *testing.T) {
	r := newRegistry()
	registerBuiltins(r)
	e := newTypeMetaEncoder(r)

	id, err := e.metadataIDFor(anyType, nil)
	require.NoError(t, err)
	resolved, ok := e.typeFor(id)
	require.True(t, ok)
	require.Equal(t, ShapePlain, resolved.Shape)
	require.Equal(t, anyType, resolved.Type)
}
