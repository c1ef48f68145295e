package attic

import (
	"fmt"
	"reflect"
	"sync"
)

// Transformer is the per-type strategy that produces and consumes Boxes for
// objects of one runtime type. A transformer may do all of its work in
// ToObject and leave FillFromBox a no-op when its type cannot participate
// in cycles — scalarTransformer does exactly that.
type Transformer interface {
	// GUID is this transformer's own stable identity, independent of the
	// type(s) it serves.
	GUID() TypeGUID
	// CreateBox returns a Box with the type-metadata id filled and the
	// payload empty or partial. Must not walk object's children.
	CreateBox(object any, m *Mapper) (*Box, error)
	// FillBox populates the payload, calling m.BoxIDFor for each child
	// reference it needs to record.
	FillBox(box *Box, object any, m *Mapper) error
	// ToObject returns the shell: identity and intrinsic values only.
	ToObject(box *Box, m *Mapper) (any, error)
	// FillFromBox populates references by resolving child box ids via
	// m.ObjectFor.
	FillFromBox(object any, box *Box, m *Mapper) error
}

// MemberDescriptor exposes get/set access to one named field of a storable
// user type without further reflection once built.
type MemberDescriptor struct {
	Name string
	Get  func(object any) any
	Set  func(object any, value any)
}

// TypeDescriptor is what the registry resolves a runtime type to.
type TypeDescriptor struct {
	Type        reflect.Type
	GUID        TypeGUID
	Transformer Transformer
	// Constructor builds a zero-value instance; nil for types that are
	// never constructed directly by the core (pseudo base types).
	Constructor func() (any, error)
	// Members is the fully flattened member list (ancestors' members,
	// prefixed to address correctly through the embedding, followed by this
	// type's own), for use by the transformer when collecting or setting
	// values positionally against a layout's flattened name list.
	Members []MemberDescriptor
	// MembersByName indexes Members by name, built once here rather than
	// rebuilt by the transformer on every deserialized instance.
	MembersByName map[string]MemberDescriptor
	// OwnMemberNames holds just this type's locally declared member names
	// (no ancestor names), which is what the member-layout encoder wants
	// for a layout's own member-name list — the layout reconstructs the
	// ancestor portion itself via its parent layout id.
	OwnMemberNames []string
	// ParentGUID is the zero GUID unless Type embeds another storable
	// struct as its first anonymous field.
	ParentGUID TypeGUID
	HasParent  bool
	// Hooks run in inheritance order (parents first) after deserialization
	// populates the object.
	Hooks []func(object any) error
}

// Storable reports whether the descriptor represents a user record (as
// opposed to a primitive, array, list, or map pseudo-entry).
func (d *TypeDescriptor) Storable() bool {
	return d.Type != nil && d.Type.Kind() == reflect.Struct
}

// Registry is the process-wide static registry. It resolves a runtime
// type to its GUID, transformer, constructor, and (for storable user types)
// member layout, lazily populating itself via reflection: there is no
// compile-time codegen step, so every struct type is reflected over the
// first time the mapper encounters it.
type Registry struct {
	mu           sync.Mutex
	byType       map[reflect.Type]*TypeDescriptor
	byGUID       map[TypeGUID]*TypeDescriptor
	explicit     map[reflect.Type]Transformer
	transformers map[TypeGUID]Transformer // transformer GUID -> transformer, a namespace distinct from byGUID's type GUIDs
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

var (
	globalRegistryOnce sync.Once
	globalRegistry     *Registry
)

// DefaultRegistry returns the process-wide registry singleton, initializing
// it under a single guard on first access; subsequent reads never block on
// that guard again.
func DefaultRegistry() *Registry {
	globalRegistryOnce.Do(func() {
		globalRegistry = newRegistry()
		registerBuiltins(globalRegistry)
	})
	return globalRegistry
}

func newRegistry() *Registry {
	return &Registry{
		byType:       make(map[reflect.Type]*TypeDescriptor),
		byGUID:       make(map[TypeGUID]*TypeDescriptor),
		explicit:     make(map[reflect.Type]Transformer),
		transformers: make(map[TypeGUID]Transformer),
	}
}

// UpdateRegisteredTypes gives the registry a chance to lazily populate
// before a walk starts, called once by both drivers. The default registry
// has nothing to pre-flush — registration is fully on-demand — so this is
// a deliberate no-op kept for interface parity with a registry that does
// need an explicit flush point.
func (r *Registry) UpdateRegisteredTypes() {}

// RegisterTransformer explicitly binds a transformer to a concrete type,
// overriding whatever TypeInfo would otherwise build for it. Used for the
// scalar built-ins.
func (r *Registry) RegisterTransformer(t reflect.Type, tr Transformer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.explicit[t] = tr
	r.transformers[tr.GUID()] = tr
	delete(r.byType, t) // force rebuild with the new transformer
}

// RegisterTransformerGUID makes a structural transformer (one not bound to
// any single concrete type — the slice/array/map/user-record singletons)
// resolvable by its own GUID, independent of any particular type's GUID.
// This is what lets deserialization's transformer-table validation succeed
// for a struct type this registry has never seen: the struct's own type
// GUID may be unknown (unknown type GUIDs are tolerated), but the shared
// user-record transformer GUID it was boxed under is still registered here.
func (r *Registry) RegisterTransformerGUID(tr Transformer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transformers[tr.GUID()] = tr
}

// RegisterHooks registers post-deserialization hooks for t, run in addition
// to any PostDeserialize() method t implements. It only affects a type whose
// descriptor TypeInfo has already built and cached; for any other type the
// call has no effect.
func (r *Registry) RegisterHooks(t reflect.Type, hooks ...func(any) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.byType[t]; ok {
		d.Hooks = append(d.Hooks, hooks...)
	}
}

// TypeInfo resolves t to its descriptor, building (and caching) it on first
// encounter.
func (r *Registry) TypeInfo(t reflect.Type) (*TypeDescriptor, error) {
	r.mu.Lock()
	if d, ok := r.byType[t]; ok {
		r.mu.Unlock()
		return d, nil
	}
	r.mu.Unlock()

	d, err := r.build(t)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byType[t]; ok {
		return existing, nil
	}
	r.byType[t] = d
	r.byGUID[d.GUID] = d
	return d, nil
}

// TryTypeFor resolves a previously-registered GUID back to a runtime type.
func (r *Registry) TryTypeFor(guid TypeGUID) (reflect.Type, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.byGUID[guid]
	if !ok {
		return nil, false
	}
	return d.Type, true
}

// TransformerFor resolves a previously-registered transformer GUID. This is
// a namespace distinct from type GUIDs — the transformer table and the type
// table are separate interning indices — so a struct type's own GUID may be
// absent from this registry while the (shared, always-registered)
// user-record transformer GUID it was boxed under still resolves.
func (r *Registry) TransformerFor(guid TypeGUID) (Transformer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tr, ok := r.transformers[guid]
	return tr, ok
}

// IsStorableUserType reports whether t would be boxed as a user record.
func (r *Registry) IsStorableUserType(t reflect.Type) bool {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct
}

func (r *Registry) build(t reflect.Type) (*TypeDescriptor, error) {
	r.mu.Lock()
	tr, explicit := r.explicit[t]
	r.mu.Unlock()
	if explicit {
		return &TypeDescriptor{
			Type:        t,
			GUID:        deriveTypeGUID(t),
			Transformer: tr,
			Constructor: func() (any, error) { return reflect.New(t).Elem().Interface(), nil },
		}, nil
	}

	switch t.Kind() {
	case reflect.Struct:
		return r.buildStruct(t)
	case reflect.Ptr, reflect.Slice, reflect.Array, reflect.Map:
		return nil, fmt.Errorf("%w: %s (container types are handled structurally, not via TypeInfo)", ErrUnserializableType, t)
	case reflect.Interface, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return nil, fmt.Errorf("%w: %s", ErrUnserializableType, t)
	default:
		return nil, fmt.Errorf("%w: %s (register a scalar transformer for it)", ErrUnserializableType, t)
	}
}

// memberPath is a (name, field-index-path) pair relative to the
// most-derived struct type, flattened across the embedding chain so that
// Get/Set work directly on an instance of that type without needing to walk
// the chain again at access time.
type memberPath struct {
	name string
	path []int
}

// collectMemberPaths flattens t's own exported fields together with its
// storable ancestor's (detected the same way buildStruct does: an anonymous
// first field whose type is itself a storable struct), ancestor fields
// first, each path prefixed with the embedding index.
func collectMemberPaths(t reflect.Type, r *Registry) ([]memberPath, error) {
	var paths []memberPath
	start := 0
	if t.NumField() > 0 {
		f0 := t.Field(0)
		if f0.Anonymous && f0.Type.Kind() == reflect.Struct && r.IsStorableUserType(f0.Type) {
			parentPaths, err := collectMemberPaths(f0.Type, r)
			if err != nil {
				return nil, err
			}
			for _, pp := range parentPaths {
				prefixed := append([]int{0}, pp.path...)
				paths = append(paths, memberPath{name: pp.name, path: prefixed})
			}
			start = 1
		}
	}
	for i := start; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" { // unexported
			continue
		}
		path := append([]int{}, f.Index...)
		paths = append(paths, memberPath{name: f.Name, path: path})
	}
	return paths, nil
}

func (r *Registry) buildStruct(t reflect.Type) (*TypeDescriptor, error) {
	d := &TypeDescriptor{
		Type: t,
		GUID: deriveTypeGUID(t),
	}
	d.Transformer = userRecordTransformerInstance
	d.Constructor = func() (any, error) {
		return reflect.New(t).Interface(), nil
	}

	if t.NumField() > 0 {
		f0 := t.Field(0)
		if f0.Anonymous && f0.Type.Kind() == reflect.Struct && r.IsStorableUserType(f0.Type) {
			parent, err := r.TypeInfo(f0.Type)
			if err != nil {
				return nil, err
			}
			d.HasParent = true
			d.ParentGUID = parent.GUID
		}
	}

	start := 0
	if d.HasParent {
		start = 1
	}
	for i := start; i < t.NumField(); i++ {
		if f := t.Field(i); f.PkgPath == "" {
			d.OwnMemberNames = append(d.OwnMemberNames, f.Name)
		}
	}

	paths, err := collectMemberPaths(t, r)
	if err != nil {
		return nil, err
	}
	for _, mp := range paths {
		path := mp.path
		d.Members = append(d.Members, MemberDescriptor{
			Name: mp.name,
			Get: func(object any) any {
				v := reflect.ValueOf(object)
				for v.Kind() == reflect.Ptr {
					v = v.Elem()
				}
				return v.FieldByIndex(path).Interface()
			},
			Set: func(object any, value any) {
				v := reflect.ValueOf(object)
				for v.Kind() == reflect.Ptr {
					v = v.Elem()
				}
				assignInto(v.FieldByIndex(path), value)
			},
		})
	}
	d.MembersByName = make(map[string]MemberDescriptor, len(d.Members))
	for _, mem := range d.Members {
		d.MembersByName[mem.Name] = mem
	}

	if mt, ok := reflect.PtrTo(t).MethodByName("PostDeserialize"); ok &&
		mt.Type.NumIn() == 1 && mt.Type.NumOut() == 1 && mt.Type.Out(0) == errorType {
		hookFn := mt.Func
		d.Hooks = append(d.Hooks, func(object any) error {
			out := hookFn.Call([]reflect.Value{reflect.ValueOf(object)})
			if !out[0].IsNil() {
				return out[0].Interface().(error)
			}
			return nil
		})
	}

	return d, nil
}
