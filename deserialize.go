package attic

import (
	"fmt"
	"reflect"
	"time"
	"unsafe"
)

// Deserialize decodes the envelope, rebuilds the string, type-metadata and
// layout tables verbatim, runs the two construction phases, then the
// post-deserialization hooks. A nil Cancellation is treated as one that
// never fires. A struct root is returned as a pointer, an array root by value.
func Deserialize(data []byte, reg *Registry, cancel *Cancellation) (any, *DeserializeInfo, error) {
	if reg == nil {
		reg = DefaultRegistry()
	}
	reg.UpdateRegisteredTypes()
	start := time.Now()

	bundle, err := DecodeBundle(data)
	if err != nil {
		return nil, nil, err
	}

	for _, guid := range bundle.TransformerGUIDs {
		if _, ok := reg.TransformerFor(guid); !ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrUnknownTransformer, guid)
		}
	}

	m := newMapper(reg)
	if cancel == nil {
		cancel = NewCancellation()
	}
	m.cancel = cancel
	m.typeMeta = typeMetaEncoderFromBundle(reg, bundle.TypeGUIDs, bundle.TransformerGUIDs, bundle.TypeMetadata)
	m.strings = NewIndexFrom(bundle.Strings, func(s string) string { return s })
	m.layouts = layoutEncoderFromBundle(m.strings, bundle.StorableTypeMetadata)
	m.arrayMeta = NewIndexFrom(bundle.ArrayMetadata, arrayMetaKey)
	m.bundleBoxes = bundle.Boxes
	m.shells = make([]any, len(bundle.Boxes))
	m.built = make([]bool, len(bundle.Boxes))

	n := int32(len(bundle.Boxes))
	partial := false

	// Phase A: shell construction, reverse discovery order.
	for id := n; id >= 1; id-- {
		if m.cancel.Cancelled() {
			partial = true
			break
		}
		if _, err := m.ObjectFor(id); err != nil {
			return nil, nil, err
		}
	}

	// Phase B: population, reverse discovery order.
	if !partial {
		for id := n; id >= 1; id-- {
			if m.cancel.Cancelled() {
				partial = true
				break
			}
			if !m.built[id-1] || m.shells[id-1] == nil {
				continue
			}
			box := m.bundleBoxes[id-1]
			tr, ok := m.typeMeta.transformerFor(box.TypeMetadataID)
			if !ok {
				continue
			}
			if err := tr.FillFromBox(m.shells[id-1], box, m); err != nil {
				return nil, nil, err
			}
		}
	}

	var root any
	if !partial {
		root, err = m.ObjectFor(bundle.RootBoxID)
		if err != nil {
			return nil, nil, err
		}
		if rv := reflect.ValueOf(root); rv.Kind() == reflect.Ptr && rv.Elem().Kind() == reflect.Array {
			root = rv.Elem().Interface()
		}
		if err := runHooks(reg, m.shells, m.built); err != nil {
			return nil, nil, err
		}
	}

	info := &DeserializeInfo{
		Duration:         time.Since(start),
		ObjectCount:      int(n),
		UnknownTypeGUIDs: m.typeMeta.UnknownGUIDs(),
		Partial:          partial,
	}
	return root, info, nil
}

// Unmarshal is the byte-oriented convenience wrapper mirroring Marshal.
func Unmarshal(data []byte, reg *Registry) (any, *DeserializeInfo, error) {
	return Deserialize(data, reg, nil)
}

// hookLevel pairs a descriptor in the inheritance chain with how many
// embedding steps (always field index 0, the parent link) separate it from
// the most-derived object.
type hookLevel struct {
	desc  *TypeDescriptor
	depth int
}

// runHooks runs post-deserialization hooks: every constructed storable
// object, in discovery (box id ascending) order, has its ancestors' hooks
// run root-to-derived.
func runHooks(reg *Registry, shells []any, built []bool) error {
	for i, ok := range built {
		if !ok || shells[i] == nil {
			continue
		}
		obj := shells[i]
		v := reflect.ValueOf(obj)
		if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
			continue
		}
		desc, err := reg.TypeInfo(v.Elem().Type())
		if err != nil || !desc.Storable() {
			continue
		}

		levels := []hookLevel{{desc: desc, depth: 0}}
		cur, depth := desc, 0
		for cur.HasParent {
			parentType, ok := reg.TryTypeFor(cur.ParentGUID)
			if !ok {
				break
			}
			parentDesc, err := reg.TypeInfo(parentType)
			if err != nil {
				return err
			}
			depth++
			levels = append(levels, hookLevel{desc: parentDesc, depth: depth})
			cur = parentDesc
		}
		for l, r := 0, len(levels)-1; l < r; l, r = l+1, r-1 {
			levels[l], levels[r] = levels[r], levels[l]
		}

		base := v.Elem()
		for _, lvl := range levels {
			av := base
			for k := 0; k < lvl.depth; k++ {
				av = av.Field(0)
			}
			// NewAt rather than Addr().Interface(): an ancestor reached
			// through an unexported embedded field is read-only to reflect.
			ptr := reflect.NewAt(av.Type(), unsafe.Pointer(av.UnsafeAddr())).Interface()
			for _, hook := range lvl.desc.Hooks {
				if err := hook(ptr); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
