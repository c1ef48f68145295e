package attic

import (
	"fmt"
	"time"
)

// Serialize discovers root, drains the work queue breadth-first, and flushes
// every interning table into a Bundle. root must not be nil. A nil
// Cancellation is treated as one that never fires.
func Serialize(root any, reg *Registry, cancel *Cancellation) (*Bundle, *SerializeInfo, error) {
	if root == nil {
		return nil, nil, fmt.Errorf("attic: root must not be nil: %w", ErrMalformedEnvelope)
	}
	if reg == nil {
		reg = DefaultRegistry()
	}
	reg.UpdateRegisteredTypes()
	start := time.Now()

	m := newSerializeMapper(reg)
	if cancel == nil {
		cancel = NewCancellation()
	}
	m.cancel = cancel

	rootID, err := m.BoxIDFor(root)
	if err != nil {
		return nil, nil, err
	}

	partial := false
	for len(m.queue) > 0 {
		if m.cancel.Cancelled() {
			partial = true
			break
		}
		item := m.queue[0]
		m.queue = m.queue[1:]

		tr, ok := m.typeMeta.transformerFor(item.box.TypeMetadataID)
		if !ok {
			return nil, nil, fmt.Errorf("%w: no transformer recorded for a queued box", ErrUnserializableType)
		}
		if err := tr.FillBox(item.box, item.object, m); err != nil {
			return nil, nil, err
		}
	}

	bundle := &Bundle{
		TransformerGUIDs:     m.typeMeta.transformer.Values(),
		TypeGUIDs:            m.typeMeta.typeTable.Values(),
		RootBoxID:            rootID,
		Boxes:                m.boxes,
		Strings:              m.strings.Values(),
		StorableTypeMetadata: m.layouts.records(),
		TypeMetadata:         m.typeMeta.metaTable.Values(),
		ArrayMetadata:        m.arrayMeta.Values(),
	}

	info := &SerializeInfo{
		Duration:    time.Since(start),
		ObjectCount: len(m.boxes),
		Types:       m.typeMeta.typeTable.Values(),
		Partial:     partial,
	}
	return bundle, info, nil
}

// Marshal is the byte-oriented convenience wrapper: Serialize then encode.
func Marshal(root any, reg *Registry) ([]byte, *SerializeInfo, error) {
	bundle, info, err := Serialize(root, reg, nil)
	if err != nil {
		return nil, nil, err
	}
	data, err := EncodeBundle(bundle)
	if err != nil {
		return nil, nil, err
	}
	return data, info, nil
}
