package attic

import (
	"reflect"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// TypeGUID is the 16-byte stable identity for a runtime type. Two distinct
// runtime types must never share a GUID.
type TypeGUID [16]byte

// typeGUIDNamespace anchors the deterministic derivation below; any fixed
// UUID works as long as it never changes between releases, since changing it
// would reassign every GUID in existence.
var typeGUIDNamespace = uuid.MustParse("6f6e7478-6174-7469-6320-6775696473ff")

// deriveTypeGUID computes a stable GUID for a Go type from its fully
// qualified name, so the same type always yields the same GUID across
// processes without a persisted registry. This is what keeps envelopes for
// an unchanged input deterministic and registry rebuilds idempotent.
func deriveTypeGUID(t reflect.Type) TypeGUID {
	name := t.PkgPath() + "." + t.Name()
	if t.Name() == "" {
		// Anonymous/composite types (slices, maps, arrays, pointers) are
		// never registered as storable user types directly, but primitive
		// wrapper registration still wants a stable key.
		name = t.String()
	}
	return TypeGUID(uuid.NewSHA1(typeGUIDNamespace, []byte(name)))
}

func (g TypeGUID) String() string {
	return uuid.UUID(g).String()
}

func guidKey(g TypeGUID) string {
	return string(g[:])
}

// EncodeMsgpack/DecodeMsgpack pin the wire form of a GUID to exactly 16 raw
// bytes (a msgpack bin value). Without this, msgpack would encode the
// [16]byte array element-by-element as a 16-entry array of small ints —
// correct but far larger than necessary, and every entry of the type table
// and of the transformer table is a GUID.
func (g TypeGUID) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeBytes(g[:])
}

func (g *TypeGUID) DecodeMsgpack(dec *msgpack.Decoder) error {
	b, err := dec.DecodeBytes()
	if err != nil {
		return err
	}
	if len(b) != 16 {
		return ErrMalformedEnvelope
	}
	copy(g[:], b)
	return nil
}
