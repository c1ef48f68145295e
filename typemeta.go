package attic

import (
	"reflect"

	"github.com/google/uuid"
)

// Pseudo base-type GUIDs for Go's built-in generic containers and
// multi-dimensional arrays: an array's type_id refers to this distinguished
// array pseudo-type. Slices and maps stand in for generic container types
// since Go has no other built-in parametric types; each gets exactly one
// (slice) or two (map) declared generic arguments, mirrored below in
// typeMetaEncoder.metadataIDFor.
var (
	arrayBaseGUID = TypeGUID(uuid.NewSHA1(typeGUIDNamespace, []byte("$array")))
	listBaseGUID  = TypeGUID(uuid.NewSHA1(typeGUIDNamespace, []byte("$list")))
	mapBaseGUID   = TypeGUID(uuid.NewSHA1(typeGUIDNamespace, []byte("$map")))
	// anyBaseGUID stands for a dynamically-typed slot (a Go interface{}
	// element in a heterogeneous list): each element still carries its own
	// concrete type metadata id on its own box, so the list's declared
	// element type metadata only needs to mark "could be anything".
	anyBaseGUID = TypeGUID(uuid.NewSHA1(typeGUIDNamespace, []byte("$any")))
)

var anyType = reflect.TypeOf((*any)(nil)).Elem()

// typeMetaRecord is the interned record a resolved type produces: its base
// type id, the metadata ids of its generic arguments (if any), and the
// transformer id bound to it.
type typeMetaRecord struct {
	TypeID        int32
	ArgIDs        []int32
	TransformerID int32
	// ArrayLen is the static Go array length for this one dimension when
	// TypeID resolves to the array pseudo-type; zero otherwise. A nested
	// array-of-arrays type stores one record per dimension, each carrying
	// its own length, so the full shape rebuilds by walking ArgIDs down to
	// the innermost element type.
	ArrayLen int32
}

func typeMetaKey(r typeMetaRecord) string {
	return fmtInts(r.TypeID) + "|" + fmtInt32s(r.ArgIDs) + "|" + fmtInts(r.TransformerID) + "|" + fmtInts(r.ArrayLen)
}

// TypeShape classifies what a resolved type metadata id describes, driving
// how the deserialization side reconstructs a reflect.Type for it.
type TypeShape int

const (
	ShapePlain TypeShape = iota // scalar or storable struct: Type is concrete
	ShapeList                   // Go slice: Elem is the element type
	ShapeMap                    // Go map: Key/Elem are the key/value types
	ShapeArray                  // Go array: Elem is the element type; shape (rank/lengths) lives in the box's ArrayMetadata
)

// ResolvedType is what typeMetaEncoder.typeFor returns.
type ResolvedType struct {
	Shape    TypeShape
	Type     reflect.Type
	Elem     reflect.Type
	Key      reflect.Type
	ArrayLen int32 // only meaningful when Shape is ShapeArray
}

// typeMetaEncoder turns a reflect.Type (plus, lazily, the transformer
// chosen for it) into a stable metadata id within one envelope, and
// reverses the mapping during deserialization.
type typeMetaEncoder struct {
	registry    *Registry
	typeTable   *Index[TypeGUID]      // position = id-1 in Bundle.TypeGUIDs
	transformer *Index[TypeGUID]      // position = id-1 in Bundle.TransformerGUIDs
	metaTable   *Index[typeMetaRecord] // position = id-1 in Bundle.TypeMetadata
	cache       map[reflect.Type]int32
	unknown     map[TypeGUID]bool // base GUIDs seen in typeFor but absent from the registry
}

func newTypeMetaEncoder(reg *Registry) *typeMetaEncoder {
	return &typeMetaEncoder{
		registry:    reg,
		typeTable:   NewIndex(guidKey),
		transformer: NewIndex(guidKey),
		metaTable:   NewIndex(typeMetaKey),
		cache:       make(map[reflect.Type]int32),
		unknown:     make(map[TypeGUID]bool),
	}
}

// typeMetaEncoderFromBundle rebuilds the encoder's tables verbatim from a
// parsed envelope, for deserialization.
func typeMetaEncoderFromBundle(reg *Registry, typeGUIDs, transformerGUIDs []TypeGUID, records []typeMetaRecord) *typeMetaEncoder {
	return &typeMetaEncoder{
		registry:    reg,
		typeTable:   NewIndexFrom(typeGUIDs, guidKey),
		transformer: NewIndexFrom(transformerGUIDs, guidKey),
		metaTable:   NewIndexFrom(records, typeMetaKey),
		cache:       make(map[reflect.Type]int32),
		unknown:     make(map[TypeGUID]bool),
	}
}

// metadataIDFor interns the metadata record for t, recursing through any
// generic container arguments and binding tr as its transformer.
func (e *typeMetaEncoder) metadataIDFor(t reflect.Type, tr Transformer) (int32, error) {
	if id, ok := e.cache[t]; ok {
		if tr != nil {
			rec := e.metaTable.values[id-1]
			if rec.TransformerID == 0 {
				rec.TransformerID = e.transformer.IndexOf(tr.GUID())
				e.metaTable.values[id-1] = rec
			}
		}
		return id, nil
	}

	var rec typeMetaRecord
	switch {
	case t.Kind() == reflect.Array:
		elemID, err := e.metadataIDFor(t.Elem(), nil)
		if err != nil {
			return 0, err
		}
		rec = typeMetaRecord{TypeID: e.typeTable.IndexOf(arrayBaseGUID), ArgIDs: []int32{elemID}, ArrayLen: int32(t.Len())}
	case t.Kind() == reflect.Slice:
		elemID, err := e.metadataIDFor(t.Elem(), nil)
		if err != nil {
			return 0, err
		}
		rec = typeMetaRecord{TypeID: e.typeTable.IndexOf(listBaseGUID), ArgIDs: []int32{elemID}}
	case t.Kind() == reflect.Map:
		keyID, err := e.metadataIDFor(t.Key(), nil)
		if err != nil {
			return 0, err
		}
		valID, err := e.metadataIDFor(t.Elem(), nil)
		if err != nil {
			return 0, err
		}
		rec = typeMetaRecord{TypeID: e.typeTable.IndexOf(mapBaseGUID), ArgIDs: []int32{keyID, valID}}
	case t.Kind() == reflect.Interface:
		rec = typeMetaRecord{TypeID: e.typeTable.IndexOf(anyBaseGUID)}
	default:
		desc, err := e.registry.TypeInfo(t)
		if err != nil {
			return 0, err
		}
		rec = typeMetaRecord{TypeID: e.typeTable.IndexOf(desc.GUID)}
	}
	if tr != nil {
		rec.TransformerID = e.transformer.IndexOf(tr.GUID())
	}
	id := e.metaTable.IndexOf(rec)
	e.cache[t] = id
	return id, nil
}

// typeFor reverses metadataIDFor. An unresolvable base GUID (unknown to the
// registry) propagates as ok=false all the way up a generic's argument
// chain — it is not an error, it just yields an absent result the caller
// records.
func (e *typeMetaEncoder) typeFor(metaID int32) (ResolvedType, bool) {
	rec, ok := e.metaTable.TryValueOf(metaID)
	if !ok {
		return ResolvedType{}, false
	}
	baseGUID, ok := e.typeTable.TryValueOf(rec.TypeID)
	if !ok {
		return ResolvedType{}, false
	}

	switch baseGUID {
	case arrayBaseGUID:
		elem, ok := e.typeFor(rec.ArgIDs[0])
		if !ok {
			return ResolvedType{}, false
		}
		elemType := elem.concreteType()
		return ResolvedType{Shape: ShapeArray, Elem: elemType, ArrayLen: rec.ArrayLen}, true
	case listBaseGUID:
		elem, ok := e.typeFor(rec.ArgIDs[0])
		if !ok {
			return ResolvedType{}, false
		}
		elemType := elem.concreteType()
		return ResolvedType{Shape: ShapeList, Elem: elemType}, true
	case mapBaseGUID:
		key, ok := e.typeFor(rec.ArgIDs[0])
		if !ok {
			return ResolvedType{}, false
		}
		val, ok := e.typeFor(rec.ArgIDs[1])
		if !ok {
			return ResolvedType{}, false
		}
		return ResolvedType{Shape: ShapeMap, Key: key.concreteType(), Elem: val.concreteType()}, true
	case anyBaseGUID:
		return ResolvedType{Shape: ShapePlain, Type: anyType}, true
	default:
		t, ok := e.registry.TryTypeFor(baseGUID)
		if !ok {
			e.unknown[baseGUID] = true
			return ResolvedType{}, false
		}
		return ResolvedType{Shape: ShapePlain, Type: t}, true
	}
}

// arrayElementType resolves the innermost (non-array) element type of a
// possibly multi-level array type metadata chain. A Go array-of-arrays
// (e.g. [16][16][16]int) recurses through metadataIDFor once per dimension,
// each wrapped in the array pseudo-type; the box representing such a value
// flattens every dimension into one ArrayMetadata plus one payload, so the
// transformer only ever needs the bottom scalar/struct type, not the
// intermediate array-of-array resolutions.
func (e *typeMetaEncoder) arrayElementType(metaID int32) (reflect.Type, bool) {
	rec, ok := e.metaTable.TryValueOf(metaID)
	if !ok {
		return nil, false
	}
	baseGUID, ok := e.typeTable.TryValueOf(rec.TypeID)
	if !ok {
		return nil, false
	}
	if baseGUID == arrayBaseGUID {
		return e.arrayElementType(rec.ArgIDs[0])
	}
	resolved, ok := e.typeFor(metaID)
	if !ok {
		return nil, false
	}
	return resolved.concreteType(), true
}

// UnknownGUIDs returns the base type GUIDs encountered during typeFor that
// the registry could not resolve, for the info record's UnknownTypeGUIDs.
func (e *typeMetaEncoder) UnknownGUIDs() []TypeGUID {
	out := make([]TypeGUID, 0, len(e.unknown))
	for g := range e.unknown {
		out = append(out, g)
	}
	return out
}

// concreteType collapses a ResolvedType back into one reflect.Type, building
// the Go slice/map/array type tree for nested generics (e.g. [][]string,
// map[string][]int, or [][3]int32 — a slice of fixed-length arrays). A
// ShapeArray keeps its static length distinct from ShapeList's unbounded
// slice so a fixed-size array nested inside an outer container round-trips
// as the same array type rather than collapsing to a slice.
func (r ResolvedType) concreteType() reflect.Type {
	switch r.Shape {
	case ShapeList:
		return reflect.SliceOf(r.Elem)
	case ShapeArray:
		return reflect.ArrayOf(int(r.ArrayLen), r.Elem)
	case ShapeMap:
		return reflect.MapOf(r.Key, r.Elem)
	default:
		return r.Type
	}
}

// transformerFor resolves the transformer recorded for a metadata id, if
// any (0 means absent/not yet backfilled).
func (e *typeMetaEncoder) transformerFor(metaID int32) (Transformer, bool) {
	rec, ok := e.metaTable.TryValueOf(metaID)
	if !ok || rec.TransformerID == 0 {
		return nil, false
	}
	guid, ok := e.transformer.TryValueOf(rec.TransformerID)
	if !ok {
		return nil, false
	}
	return e.registry.TransformerFor(guid)
}
