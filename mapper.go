package attic

import (
	"fmt"
	"reflect"

	"github.com/spaolacci/murmur3"
)

// Mapper is the per-call workspace that wires the string, type-metadata,
// layout, and box-table encoders together into one mapping engine. One
// Mapper serves exactly one Serialize or Deserialize call and is never
// shared across goroutines.
type Mapper struct {
	registry  *Registry
	typeMeta  *typeMetaEncoder
	layouts   *layoutEncoder
	strings   *Index[string]
	arrayMeta *Index[ArrayMetadata]
	cancel    *Cancellation

	// serialize-only state
	boxes    []*Box
	identity map[uint64][]identityEntry
	queue    []queueItem

	// deserialize-only state
	bundleBoxes []*Box
	shells      []any
	built       []bool
}

type identityEntry struct {
	value any
	id    int32
}

type queueItem struct {
	object any
	box    *Box
}

func newMapper(reg *Registry) *Mapper {
	return &Mapper{
		registry:  reg,
		typeMeta:  newTypeMetaEncoder(reg),
		strings:   NewIndex(func(s string) string { return s }),
		arrayMeta: NewIndex(arrayMetaKey),
	}
}

// newSerializeMapper builds an empty Mapper ready to drive a serialize walk.
func newSerializeMapper(reg *Registry) *Mapper {
	m := newMapper(reg)
	m.layouts = newLayoutEncoder(m.strings)
	m.identity = make(map[uint64][]identityEntry)
	return m
}

// --- Box Table --------------------------------------------------------

// BoxIDFor returns 0 for nil/absent, the existing id on a second encounter
// under the object-interning equality, or a freshly assigned id with the
// object's transformer consulted to produce a partial Box and the pair
// enqueued for later draining.
func (m *Mapper) BoxIDFor(object any) (int32, error) {
	if object == nil {
		return 0, nil
	}
	v := reflect.ValueOf(object)
	if isNilableKind(v.Kind()) && v.IsNil() {
		return 0, nil
	}

	hash, shareable := identityHash(v)
	if shareable {
		if id, ok := m.lookupShared(hash, object); ok {
			return id, nil
		}
	}

	tr, err := m.TransformerForType(v.Type())
	if err != nil {
		return 0, err
	}
	box, err := tr.CreateBox(object, m)
	if err != nil {
		return 0, err
	}
	id := int32(len(m.boxes) + 1)
	box.ID = id
	m.boxes = append(m.boxes, box)
	if shareable {
		m.identity[hash] = append(m.identity[hash], identityEntry{value: object, id: id})
	}
	m.queue = append(m.queue, queueItem{object: object, box: box})
	return id, nil
}

func (m *Mapper) lookupShared(hash uint64, object any) (int32, bool) {
	for _, e := range m.identity[hash] {
		if identityEqual(e.value, object) {
			return e.id, true
		}
	}
	return 0, false
}

// BoxFor looks up a box by id, total over ids already assigned by BoxIDFor.
func (m *Mapper) BoxFor(id int32) (*Box, error) {
	if id < 1 || int(id) > len(m.boxes) {
		return nil, ErrIndexOutOfRange
	}
	return m.boxes[id-1], nil
}

// ObjectFor maps id 0 to nil; otherwise it lazily materializes and caches
// the shell for id via its transformer's ToObject, or returns the cached
// shell on a repeat call. Safe to call recursively from within a
// transformer because it never recurses into a box still being built by the
// same driver phase — that guarantee comes from the two-phase deserialize
// ordering, not from this method.
func (m *Mapper) ObjectFor(id int32) (any, error) {
	if id == 0 {
		return nil, nil
	}
	if id < 1 || int(id) > len(m.bundleBoxes) {
		return nil, ErrIndexOutOfRange
	}
	if m.built[id-1] {
		return m.shells[id-1], nil
	}
	box := m.bundleBoxes[id-1]
	tr, ok := m.typeMeta.transformerFor(box.TypeMetadataID)
	if !ok {
		m.built[id-1] = true
		return nil, nil
	}
	obj, err := tr.ToObject(box, m)
	if err != nil {
		return nil, err
	}
	m.shells[id-1] = obj
	m.built[id-1] = true
	return obj, nil
}

// --- Dispatch / encoder access used by transformers -----------------------

// TransformerForType picks the transformer for a runtime type: built-in
// slice/array/map handling structurally, everything else via the registry
// (which covers both scalars, registered via RegisterTransformer, and
// storable structs, built on demand).
func (m *Mapper) TransformerForType(t reflect.Type) (Transformer, error) {
	et := effectiveType(t)
	switch et.Kind() {
	case reflect.Slice:
		if et.Elem().Kind() == reflect.Uint8 {
			return byteSliceTransformerInstance, nil
		}
		return sliceTransformerInstance, nil
	case reflect.Array:
		return arrayTransformerInstance, nil
	case reflect.Map:
		return mapTransformerInstance, nil
	default:
		desc, err := m.registry.TypeInfo(et)
		if err != nil {
			return nil, err
		}
		if desc.Transformer == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnserializableType, et)
		}
		return desc.Transformer, nil
	}
}

// TypeMetadataIDFor interns the type metadata for t, exposed for
// transformers to call from within CreateBox.
func (m *Mapper) TypeMetadataIDFor(t reflect.Type, tr Transformer) (int32, error) {
	return m.typeMeta.metadataIDFor(effectiveType(t), tr)
}

// ResolveType resolves a type metadata id back to its ResolvedType,
// exposed for transformers reconstructing a concrete reflect.Type during
// deserialization.
func (m *Mapper) ResolveType(metaID int32) (ResolvedType, bool) {
	return m.typeMeta.typeFor(metaID)
}

// ArrayElementType resolves the innermost scalar/struct element type
// underneath however many array-pseudo-type wrapper levels metaID carries.
func (m *Mapper) ArrayElementType(metaID int32) (reflect.Type, bool) {
	return m.typeMeta.arrayElementType(metaID)
}

// Strings is the shared string index, used by every component that interns
// names (member names, type GUID strings in layouts).
func (m *Mapper) Strings() *Index[string] { return m.strings }

// Layouts returns the layout encoder. Both drivers set it; a Mapper built by
// newMapper alone has none.
func (m *Mapper) Layouts() *layoutEncoder { return m.layouts }

// ArrayMetadataIDFor interns an array shape, shared by full-tuple equality.
func (m *Mapper) ArrayMetadataIDFor(meta ArrayMetadata) int32 {
	return m.arrayMeta.IndexOf(meta)
}

// ArrayMetadataFor reverses ArrayMetadataIDFor for deserialization.
func (m *Mapper) ArrayMetadataFor(id int32) (ArrayMetadata, bool) {
	return m.arrayMeta.TryValueOf(id)
}

// Cancelled reports whether the caller's Cancellation token fired.
func (m *Mapper) Cancelled() bool {
	return m.cancel.Cancelled()
}

// --- object identity & equality ---------------------------------------

// effectiveType strips exactly one pointer indirection, so *T and T dispatch
// to the same transformer and type metadata.
func effectiveType(t reflect.Type) reflect.Type {
	if t.Kind() == reflect.Ptr {
		return t.Elem()
	}
	return t
}

// indirect strips exactly one pointer level from a value, mirroring
// effectiveType for reflect.Value — containers can be held by pointer
// (e.g. a struct field of type *[N]T) and transformers always want to
// operate on the pointee.
func indirect(object any) reflect.Value {
	v := reflect.ValueOf(object)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	return v
}

func isNilableKind(k reflect.Kind) bool {
	switch k {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface, reflect.UnsafePointer:
		return true
	default:
		return false
	}
}

// identityHash computes the box-table lookup key by combining the object's
// identity hash with its runtime type's hash. shareable is false for kinds
// the box table never interns by equality
// (structs and arrays passed by value, which always get a fresh box) —
// murmur3 gives a fast, well-distributed combine; exact equality is still
// checked by identityEqual to resolve any hash collision.
func identityHash(v reflect.Value) (hash uint64, shareable bool) {
	switch v.Kind() {
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.String:
		data := []byte(fmt.Sprintf("%v", v.Interface()))
		return combineHash(murmur3.Sum64(data), typeHash(v.Type())), true
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		if v.IsNil() {
			return 0, false
		}
		addr := v.Pointer()
		buf := make([]byte, 8)
		for i := 0; i < 8; i++ {
			buf[i] = byte(addr >> (8 * i))
		}
		return combineHash(murmur3.Sum64(buf), typeHash(v.Type())), true
	default:
		return 0, false
	}
}

func typeHash(t reflect.Type) uint64 {
	return murmur3.Sum64([]byte(t.String()))
}

func combineHash(a, b uint64) uint64 {
	return a ^ (b + 0x9e3779b97f4a7c15 + (a << 6) + (a >> 2))
}

// assignInto sets target from obj, the value resolved via ObjectFor.
// Structs and arrays are always reconstructed as pointers (so that phase B
// can mutate a shell in place before any parent reads it back); assignInto
// dereferences that pointer when target itself wants the value form, wraps a
// value in a fresh pointer when target is a pointer to the value's type, and
// otherwise falls back to a plain or converted assignment.
func assignInto(target reflect.Value, obj any) {
	if obj == nil {
		target.Set(reflect.Zero(target.Type()))
		return
	}
	rv := reflect.ValueOf(obj)
	if target.Kind() != reflect.Ptr && rv.Kind() == reflect.Ptr && rv.Type().Elem() == target.Type() {
		rv = rv.Elem()
	}
	if target.Kind() == reflect.Ptr && rv.Kind() != reflect.Ptr && target.Type().Elem() == rv.Type() {
		p := reflect.New(rv.Type())
		p.Elem().Set(rv)
		rv = p
	}
	switch {
	case target.Kind() == reflect.Interface:
		target.Set(rv)
	case rv.Type().AssignableTo(target.Type()):
		target.Set(rv)
	case rv.Type().ConvertibleTo(target.Type()):
		target.Set(rv.Convert(target.Type()))
	default:
		target.Set(rv)
	}
}

// identityEqual resolves a hash collision between two previously-shareable
// values: reference equality for pointer-like kinds, value equality for
// scalars and strings.
func identityEqual(a, b any) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Kind() != vb.Kind() || va.Type() != vb.Type() {
		return false
	}
	switch va.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	default:
		return a == b
	}
}
