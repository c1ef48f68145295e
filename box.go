package attic

// Box is the wire-level record for one reachable object. Its id is assigned
// by order of first discovery during the breadth-first walk; id 0 is
// reserved for the absent/null reference and is never assigned to a real
// Box. Exactly one of the three payload slots below may be set — anything
// else is a malformed envelope.
type Box struct {
	ID             int32 `msgpack:"id"`
	TypeMetadataID int32 `msgpack:"tm"`

	Scalar   *ScalarPayload   `msgpack:"sc,omitempty"`
	Repeated *RepeatedPayload `msgpack:"rp,omitempty"`
	Member   *MemberPayload   `msgpack:"mb,omitempty"`
}

// Payload reports which of the three union members is set, erroring if zero
// or more than one is.
func (b *Box) Payload() (any, error) {
	n := 0
	var p any
	if b.Scalar != nil {
		n++
		p = b.Scalar
	}
	if b.Repeated != nil {
		n++
		p = b.Repeated
	}
	if b.Member != nil {
		n++
		p = b.Member
	}
	if n != 1 {
		return nil, ErrMalformedEnvelope
	}
	return p, nil
}

// ScalarPayload carries a primitive value. msgpack encodes Value according
// to its concrete Go type (ints, floats, strings, raw bytes), so no manual
// slot selection is needed the way a hand-rolled tagged union would require.
type ScalarPayload struct {
	Value any `msgpack:"v"`
}

// RepeatedPayload carries arrays and container values, either as a list of
// child box ids (for heterogeneous or reference elements, e.g. []any — 0
// meaning a nil element) or, when every element is an
// independently-inlineable scalar, as a single compact typed payload in
// Values (a []bool/[]int32/.../[]string, or a map[K]V for primitive-keyed
// maps). The latter is what keeps large homogeneous numeric arrays compact:
// boxing each of 8192 ints individually would dominate the envelope size, so
// a concretely-typed slice/array/map of scalars skips per-element boxing
// entirely — only genuinely shared/identity-bearing elements need a box id.
// A slice, array or map whose declared element, key or value type is a
// pointer (e.g. []*Node) is not supported: building its type metadata fails
// with ErrUnserializableType.
//
// ArrayMetadataID is set only for arrays, never for lists or maps.
// ComparerBoxID / ComparerTypeMetadataID carry a custom equality comparer
// for a comparer-keyed dictionary variant; Go's builtin map has no such
// concept, so Go-originated envelopes always leave them 0.
type RepeatedPayload struct {
	ElementBoxIDs          []int32 `msgpack:"e,omitempty"`
	Values                 any     `msgpack:"p,omitempty"`
	ComparerBoxID          int32   `msgpack:"cb,omitempty"`
	ComparerTypeMetadataID int32   `msgpack:"ct,omitempty"`
	ArrayMetadataID        int32   `msgpack:"am,omitempty"`
}

// MemberPayload carries a user record's flattened member values as box ids,
// positionally parallel to its storable layout's member name list.
type MemberPayload struct {
	StorableTypeMetadataID int32   `msgpack:"s"`
	ValueBoxIDs            []int32 `msgpack:"v"`
}

// ArrayMetadata describes the shape of a multi-dimensional array. Element
// count must equal the product of Lengths.
type ArrayMetadata struct {
	Rank        int32
	Lengths     []int32
	LowerBounds []int32
}

func arrayMetaKey(m ArrayMetadata) string {
	return fmtInts(m.Rank) + "|" + fmtInt32s(m.Lengths) + "|" + fmtInt32s(m.LowerBounds)
}
