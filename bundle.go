package attic

import (
	"github.com/vmihailenco/msgpack/v5"
)

// Bundle is the envelope's outer record. Every slice is an interning
// table's Values() in id order; position i (0-based) is id i+1. RootBoxID
// is non-zero and indexes into Boxes.
type Bundle struct {
	TransformerGUIDs      []TypeGUID             `msgpack:"tg"`
	TypeGUIDs             []TypeGUID             `msgpack:"ty"`
	RootBoxID             int32                  `msgpack:"rt"`
	Boxes                 []*Box                 `msgpack:"bx"`
	Strings               []string               `msgpack:"st"`
	StorableTypeMetadata  []storableLayoutRecord `msgpack:"lo"`
	TypeMetadata          []typeMetaRecord       `msgpack:"md"`
	ArrayMetadata         []ArrayMetadata        `msgpack:"am"`
}

// EncodeBundle is the envelope's write side: a thin mechanical pass over
// msgpack, no business logic.
func EncodeBundle(b *Bundle) ([]byte, error) {
	return msgpack.Marshal(b)
}

// DecodeBundle is the envelope's read side. It rejects the structural
// faults that are cheap to catch up front — a box with zero or multiple
// payloads, an out-of-range root id — before deserialization starts its walk.
func DecodeBundle(data []byte) (*Bundle, error) {
	var b Bundle
	if err := msgpack.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	if b.RootBoxID == 0 || int(b.RootBoxID) > len(b.Boxes) {
		return nil, ErrMalformedEnvelope
	}
	for _, box := range b.Boxes {
		if box == nil {
			return nil, ErrMalformedEnvelope
		}
		if _, err := box.Payload(); err != nil {
			return nil, err
		}
	}
	return &b, nil
}
