package attic

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/google/uuid"
)

// registerBuiltins wires the scalar kinds into the registry's explicit
// transformer map — these are the hand-written leaves the registry
// special-cases rather than reflecting a layout for. Slices, arrays and
// maps are dispatched structurally by Mapper.TransformerForType and never
// go through this map.
func registerBuiltins(r *Registry) {
	for _, v := range []any{
		false, int(0), int8(0), int16(0), int32(0), int64(0),
		uint(0), uint8(0), uint16(0), uint32(0), uint64(0),
		float32(0), float64(0), "",
	} {
		t := reflect.TypeOf(v)
		r.RegisterTransformer(t, &scalarTransformer{typ: t})
	}
	// Structural transformers are singletons, not bound to any one concrete
	// type, so they are registered directly by transformer GUID rather than
	// through RegisterTransformer's per-type explicit map.
	r.RegisterTransformerGUID(byteSliceTransformerInstance)
	r.RegisterTransformerGUID(sliceTransformerInstance)
	r.RegisterTransformerGUID(arrayTransformerInstance)
	r.RegisterTransformerGUID(mapTransformerInstance)
	r.RegisterTransformerGUID(userRecordTransformerInstance)
}

func scalarTransformerGUID(t reflect.Type) TypeGUID {
	return TypeGUID(uuid.NewSHA1(typeGUIDNamespace, []byte("$scalar:"+t.String())))
}

// scalarTransformer serves every primitive value kind. It does all its work
// in FillBox/ToObject since scalars never participate in reference cycles.
type scalarTransformer struct {
	typ reflect.Type
}

func (s *scalarTransformer) GUID() TypeGUID { return scalarTransformerGUID(s.typ) }

func (s *scalarTransformer) CreateBox(object any, m *Mapper) (*Box, error) {
	metaID, err := m.TypeMetadataIDFor(s.typ, s)
	if err != nil {
		return nil, err
	}
	return &Box{TypeMetadataID: metaID}, nil
}

func (s *scalarTransformer) FillBox(box *Box, object any, m *Mapper) error {
	box.Scalar = &ScalarPayload{Value: object}
	return nil
}

func (s *scalarTransformer) ToObject(box *Box, m *Mapper) (any, error) {
	if box.Scalar == nil {
		return nil, ErrMalformedEnvelope
	}
	return convertScalarValue(box.Scalar.Value, s.typ)
}

func (s *scalarTransformer) FillFromBox(object any, box *Box, m *Mapper) error { return nil }

// convertScalarValue coerces a value decoded generically by msgpack, whose
// Go type need not be the original one, back to target's exact kind.
func convertScalarValue(raw any, target reflect.Type) (any, error) {
	if raw == nil {
		return reflect.Zero(target).Interface(), nil
	}
	if reflect.TypeOf(raw) == target {
		return raw, nil
	}
	switch target.Kind() {
	case reflect.Bool:
		b, ok := raw.(bool)
		if !ok {
			return nil, ErrMalformedEnvelope
		}
		return b, nil
	case reflect.String:
		switch v := raw.(type) {
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		default:
			return nil, ErrMalformedEnvelope
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := asInt64(raw)
		if err != nil {
			return nil, err
		}
		return reflect.ValueOf(i).Convert(target).Interface(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := asUint64(raw)
		if err != nil {
			return nil, err
		}
		return reflect.ValueOf(u).Convert(target).Interface(), nil
	case reflect.Float32, reflect.Float64:
		f, err := asFloat64(raw)
		if err != nil {
			return nil, err
		}
		return reflect.ValueOf(f).Convert(target).Interface(), nil
	default:
		return nil, ErrMalformedEnvelope
	}
}

func asInt64(raw any) (int64, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case float64:
		return int64(v), nil
	default:
		return 0, ErrMalformedEnvelope
	}
}

func asUint64(raw any) (uint64, error) {
	switch v := raw.(type) {
	case uint64:
		return v, nil
	case int64:
		return uint64(v), nil
	case int:
		return uint64(v), nil
	case float64:
		return uint64(v), nil
	default:
		return 0, ErrMalformedEnvelope
	}
}

func asFloat64(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	default:
		return 0, ErrMalformedEnvelope
	}
}

// isInlineableScalarKind reports whether a kind can sit directly in a
// RepeatedPayload.Values bulk slice rather than needing per-element boxing.
func isInlineableScalarKind(k reflect.Kind) bool {
	switch k {
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.String:
		return true
	default:
		return false
	}
}

var (
	byteSliceTransformerInstance = &byteSliceTransformer{}
	sliceTransformerInstance     = &sliceTransformer{}
	arrayTransformerInstance     = &arrayTransformer{}
	mapTransformerInstance       = &mapTransformer{}

	byteSliceTransformerGUID = TypeGUID(uuid.NewSHA1(typeGUIDNamespace, []byte("$bytes")))
	sliceTransformerGUID     = TypeGUID(uuid.NewSHA1(typeGUIDNamespace, []byte("$slice")))
	arrayTransformerGUID     = TypeGUID(uuid.NewSHA1(typeGUIDNamespace, []byte("$array-transformer")))
	mapTransformerGUID       = TypeGUID(uuid.NewSHA1(typeGUIDNamespace, []byte("$map-transformer")))
)

// byteSliceTransformer special-cases []byte (and named byte-slice types):
// msgpack already encodes raw bytes as a single compact bin value, so there
// is no benefit to the generic slice's per-element boxing.
type byteSliceTransformer struct{}

func (t *byteSliceTransformer) GUID() TypeGUID { return byteSliceTransformerGUID }

func (t *byteSliceTransformer) CreateBox(object any, m *Mapper) (*Box, error) {
	metaID, err := m.TypeMetadataIDFor(reflect.TypeOf(object), t)
	if err != nil {
		return nil, err
	}
	return &Box{TypeMetadataID: metaID}, nil
}

func (t *byteSliceTransformer) FillBox(box *Box, object any, m *Mapper) error {
	v := indirect(object)
	cp := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
	reflect.Copy(cp, v)
	box.Scalar = &ScalarPayload{Value: cp.Bytes()}
	return nil
}

func (t *byteSliceTransformer) ToObject(box *Box, m *Mapper) (any, error) {
	if box.Scalar == nil {
		return nil, ErrMalformedEnvelope
	}
	b, _ := box.Scalar.Value.([]byte)
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp, nil
}

func (t *byteSliceTransformer) FillFromBox(object any, box *Box, m *Mapper) error { return nil }

// sliceTransformer handles every non-byte Go slice. Every element is
// individually boxed via m.BoxIDFor so that repeated equal scalars share a
// single box — unlike arrays (below), a list has no declared length cheap
// enough to make bulk inlining worth losing that sharing.
type sliceTransformer struct{}

func (t *sliceTransformer) GUID() TypeGUID { return sliceTransformerGUID }

func (t *sliceTransformer) CreateBox(object any, m *Mapper) (*Box, error) {
	metaID, err := m.TypeMetadataIDFor(reflect.TypeOf(object), t)
	if err != nil {
		return nil, err
	}
	return &Box{TypeMetadataID: metaID}, nil
}

func (t *sliceTransformer) FillBox(box *Box, object any, m *Mapper) error {
	v := indirect(object)
	ids := make([]int32, v.Len())
	for i := range ids {
		id, err := m.BoxIDFor(v.Index(i).Interface())
		if err != nil {
			return err
		}
		ids[i] = id
	}
	box.Repeated = &RepeatedPayload{ElementBoxIDs: ids}
	return nil
}

func (t *sliceTransformer) ToObject(box *Box, m *Mapper) (any, error) {
	resolved, ok := m.ResolveType(box.TypeMetadataID)
	if !ok || box.Repeated == nil {
		return nil, ErrMalformedEnvelope
	}
	elemType := resolved.Elem
	if elemType == nil {
		elemType = reflect.TypeOf((*any)(nil)).Elem()
	}
	n := len(box.Repeated.ElementBoxIDs)
	return reflect.MakeSlice(reflect.SliceOf(elemType), n, n).Interface(), nil
}

func (t *sliceTransformer) FillFromBox(object any, box *Box, m *Mapper) error {
	v := reflect.ValueOf(object)
	for i, id := range box.Repeated.ElementBoxIDs {
		obj, err := m.ObjectFor(id)
		if err != nil {
			return err
		}
		if obj == nil {
			continue
		}
		assignInto(v.Index(i), obj)
	}
	return nil
}

// arrayTransformer handles Go arrays, including nested arrays-of-arrays
// (flattened to one ArrayMetadata of the matching rank). When the innermost
// element kind is an inlineable scalar the whole flattened payload is
// stored as one typed slice in RepeatedPayload.Values, which keeps a large
// numeric array compact instead of boxing each element.
type arrayTransformer struct{}

func (t *arrayTransformer) GUID() TypeGUID { return arrayTransformerGUID }

func (t *arrayTransformer) CreateBox(object any, m *Mapper) (*Box, error) {
	metaID, err := m.TypeMetadataIDFor(reflect.TypeOf(object), t)
	if err != nil {
		return nil, err
	}
	return &Box{TypeMetadataID: metaID}, nil
}

func (t *arrayTransformer) FillBox(box *Box, object any, m *Mapper) error {
	v := indirect(object)
	_, lengths, elemType := flattenArrayShape(v.Type())
	flat := flattenArrayValue(v)

	meta := ArrayMetadata{Rank: int32(len(lengths)), Lengths: lengths}
	box.Repeated = &RepeatedPayload{ArrayMetadataID: m.ArrayMetadataIDFor(meta)}

	if isInlineableScalarKind(elemType.Kind()) {
		values := reflect.MakeSlice(reflect.SliceOf(elemType), len(flat), len(flat))
		for i, ev := range flat {
			values.Index(i).Set(ev)
		}
		box.Repeated.Values = values.Interface()
		return nil
	}

	ids := make([]int32, len(flat))
	for i, ev := range flat {
		id, err := m.BoxIDFor(ev.Interface())
		if err != nil {
			return err
		}
		ids[i] = id
	}
	box.Repeated.ElementBoxIDs = ids
	return nil
}

// ToObject returns a *pointer* to a freshly allocated array rather than the
// array by value: arrays are value types in Go, so FillFromBox (phase B)
// needs somewhere addressable to mutate in place. assignInto dereferences
// this pointer wherever the array is ultimately assigned into a value-typed
// slot (a struct field, a slice element, a map value).
func (t *arrayTransformer) ToObject(box *Box, m *Mapper) (any, error) {
	if box.Repeated == nil {
		return nil, ErrMalformedEnvelope
	}
	elemType, ok := m.ArrayElementType(box.TypeMetadataID)
	if !ok {
		return nil, ErrMalformedEnvelope
	}
	meta, ok := m.ArrayMetadataFor(box.Repeated.ArrayMetadataID)
	if !ok {
		return nil, ErrMalformedEnvelope
	}
	arrType := nestedArrayType(elemType, meta.Lengths)
	return reflect.New(arrType).Interface(), nil
}

func (t *arrayTransformer) FillFromBox(object any, box *Box, m *Mapper) error {
	arr := reflect.ValueOf(object).Elem()

	if box.Repeated.Values != nil {
		values := reflect.ValueOf(box.Repeated.Values)
		idx := 0
		return fillNestedArray(arr, values, &idx)
	}
	idx := 0
	return fillNestedArrayBoxed(arr, box.Repeated.ElementBoxIDs, &idx, m)
}

func flattenArrayShape(t reflect.Type) (int32, []int32, reflect.Type) {
	var lengths []int32
	cur := t
	for cur.Kind() == reflect.Array {
		lengths = append(lengths, int32(cur.Len()))
		cur = cur.Elem()
	}
	return int32(len(lengths)), lengths, cur
}

func flattenArrayValue(v reflect.Value) []reflect.Value {
	if v.Kind() != reflect.Array {
		return []reflect.Value{v}
	}
	var out []reflect.Value
	for i := 0; i < v.Len(); i++ {
		out = append(out, flattenArrayValue(v.Index(i))...)
	}
	return out
}

func nestedArrayType(elem reflect.Type, lengths []int32) reflect.Type {
	t := elem
	for i := len(lengths) - 1; i >= 0; i-- {
		t = reflect.ArrayOf(int(lengths[i]), t)
	}
	return t
}

// fillNestedArray fills a (possibly multi-dimensional) array from the flat
// inline Values payload, converting each element back to its declared kind
// (msgpack decodes the payload as a generic slice, so an element's decoded
// Go type need not match the array's element type).
func fillNestedArray(arr reflect.Value, flat reflect.Value, idx *int) error {
	if arr.Kind() != reflect.Array {
		raw := flat.Index(*idx).Interface()
		*idx++
		val, err := convertScalarValue(raw, arr.Type())
		if err != nil {
			return err
		}
		arr.Set(reflect.ValueOf(val))
		return nil
	}
	for i := 0; i < arr.Len(); i++ {
		if err := fillNestedArray(arr.Index(i), flat, idx); err != nil {
			return err
		}
	}
	return nil
}

func fillNestedArrayBoxed(arr reflect.Value, ids []int32, idx *int, m *Mapper) error {
	if arr.Kind() != reflect.Array {
		id := ids[*idx]
		*idx++
		obj, err := m.ObjectFor(id)
		if err != nil {
			return err
		}
		if obj != nil {
			assignInto(arr, obj)
		}
		return nil
	}
	for i := 0; i < arr.Len(); i++ {
		if err := fillNestedArrayBoxed(arr.Index(i), ids, idx, m); err != nil {
			return err
		}
	}
	return nil
}

// mapTransformer handles Go maps, packing key/value pairs into
// ElementBoxIDs as interleaved [k0, v0, k1, v1, ...]. Keys are visited in a
// canonical sort order (Go map iteration order is randomized) so that two
// serializations of the same map produce byte-identical envelopes.
type mapTransformer struct{}

func (t *mapTransformer) GUID() TypeGUID { return mapTransformerGUID }

func (t *mapTransformer) CreateBox(object any, m *Mapper) (*Box, error) {
	metaID, err := m.TypeMetadataIDFor(reflect.TypeOf(object), t)
	if err != nil {
		return nil, err
	}
	return &Box{TypeMetadataID: metaID}, nil
}

func (t *mapTransformer) FillBox(box *Box, object any, m *Mapper) error {
	v := indirect(object)
	keys := sortedMapKeys(v)
	ids := make([]int32, 0, len(keys)*2)
	for _, k := range keys {
		kID, err := m.BoxIDFor(k.Interface())
		if err != nil {
			return err
		}
		vID, err := m.BoxIDFor(v.MapIndex(k).Interface())
		if err != nil {
			return err
		}
		ids = append(ids, kID, vID)
	}
	box.Repeated = &RepeatedPayload{ElementBoxIDs: ids}
	return nil
}

func (t *mapTransformer) ToObject(box *Box, m *Mapper) (any, error) {
	resolved, ok := m.ResolveType(box.TypeMetadataID)
	if !ok || box.Repeated == nil {
		return nil, ErrMalformedEnvelope
	}
	keyType, valType := resolved.Key, resolved.Elem
	if keyType == nil || valType == nil {
		return nil, ErrMalformedEnvelope
	}
	return reflect.MakeMapWithSize(reflect.MapOf(keyType, valType), len(box.Repeated.ElementBoxIDs)/2).Interface(), nil
}

func (t *mapTransformer) FillFromBox(object any, box *Box, m *Mapper) error {
	v := reflect.ValueOf(object)
	keyType, valType := v.Type().Key(), v.Type().Elem()
	ids := box.Repeated.ElementBoxIDs
	for i := 0; i+1 < len(ids); i += 2 {
		k, err := m.ObjectFor(ids[i])
		if err != nil {
			return err
		}
		val, err := m.ObjectFor(ids[i+1])
		if err != nil {
			return err
		}
		if k == nil {
			continue
		}
		kv := reflect.New(keyType).Elem()
		assignInto(kv, k)
		vv := reflect.New(valType).Elem()
		assignInto(vv, val)
		v.SetMapIndex(kv, vv)
	}
	return nil
}

func sortedMapKeys(v reflect.Value) []reflect.Value {
	keys := v.MapKeys()
	sort.Slice(keys, func(i, j int) bool {
		return fmt.Sprintf("%v", keys[i].Interface()) < fmt.Sprintf("%v", keys[j].Interface())
	})
	return keys
}

var userRecordTransformerGUID = TypeGUID(uuid.NewSHA1(typeGUIDNamespace, []byte("$record")))

// userRecordTransformer serves every storable struct type through one
// shared instance, deliberately NOT bound to a concrete reflect.Type the
// way scalarTransformer is: a struct type's own GUID (in the type table)
// and the transformer GUID it is boxed under (in the transformer table) are
// different identifier spaces, and only the type GUID is allowed to be
// unknown without aborting deserialization. Binding one instance per struct
// type would have collapsed those spaces, making every never-before-seen
// struct type fatal instead of merely producing an absent object. The
// concrete type is instead resolved dynamically: from the object in hand
// for CreateBox/FillBox, from the box's already-resolved type metadata for
// ToObject/FillFromBox.
type userRecordTransformer struct{}

var userRecordTransformerInstance = &userRecordTransformer{}

func (u *userRecordTransformer) GUID() TypeGUID { return userRecordTransformerGUID }

func (u *userRecordTransformer) CreateBox(object any, m *Mapper) (*Box, error) {
	t := effectiveType(reflect.TypeOf(object))
	metaID, err := m.TypeMetadataIDFor(t, u)
	if err != nil {
		return nil, err
	}
	return &Box{TypeMetadataID: metaID}, nil
}

func (u *userRecordTransformer) FillBox(box *Box, object any, m *Mapper) error {
	t := effectiveType(reflect.TypeOf(object))
	desc, err := m.registry.TypeInfo(t)
	if err != nil {
		return err
	}

	layoutID := m.Layouts().layoutIDFor(desc.GUID)
	for d := desc; ; {
		m.Layouts().populate(d.GUID, d.ParentGUID, d.HasParent, d.OwnMemberNames)
		if !d.HasParent {
			break
		}
		parentType, ok := m.registry.TryTypeFor(d.ParentGUID)
		if !ok {
			break
		}
		if d, err = m.registry.TypeInfo(parentType); err != nil {
			return err
		}
	}

	ids := make([]int32, len(desc.Members))
	for i, mem := range desc.Members {
		id, err := m.BoxIDFor(mem.Get(object))
		if err != nil {
			return err
		}
		ids[i] = id
	}
	box.Member = &MemberPayload{StorableTypeMetadataID: layoutID, ValueBoxIDs: ids}
	return nil
}

// ToObject resolves the concrete type from the box's own type metadata
// rather than from any field on the transformer; an unresolvable type GUID
// (registry never saw this struct type) yields an absent shell (nil, nil)
// rather than an error.
func (u *userRecordTransformer) ToObject(box *Box, m *Mapper) (any, error) {
	resolved, ok := m.ResolveType(box.TypeMetadataID)
	if !ok || resolved.Type == nil {
		return nil, nil
	}
	desc, err := m.registry.TypeInfo(resolved.Type)
	if err != nil {
		return nil, err
	}
	obj, err := desc.Constructor()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConstructorFailure, err)
	}
	return obj, nil
}

func (u *userRecordTransformer) FillFromBox(object any, box *Box, m *Mapper) error {
	if box.Member == nil {
		return ErrMalformedEnvelope
	}
	t := effectiveType(reflect.TypeOf(object))
	desc, err := m.registry.TypeInfo(t)
	if err != nil {
		return err
	}
	names, _, ok := m.Layouts().layout(box.Member.StorableTypeMetadataID)
	if !ok {
		return ErrMalformedEnvelope
	}
	for i, name := range names {
		if i >= len(box.Member.ValueBoxIDs) {
			break
		}
		mem, ok := desc.MembersByName[name]
		if !ok {
			continue // member renamed away / no longer declared; tolerated
		}
		val, err := m.ObjectFor(box.Member.ValueBoxIDs[i])
		if err != nil {
			return err
		}
		mem.Set(object, val)
	}
	return nil
}
