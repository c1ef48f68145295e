package attic

import "github.com/google/uuid"

// storableLayoutRecord is the wire form of a storable type's member layout:
// a GUID (stored by its interned *string* id, not the GUID table — layouts
// are looked up independently of the type-metadata table), a parent layout
// id, and the ordered member-name string ids.
type storableLayoutRecord struct {
	TypeGUIDStringID    int32
	ParentLayoutID      int32
	MemberNameStringIDs []int32
}

func layoutKey(r storableLayoutRecord) string {
	return fmtInts(r.TypeGUIDStringID) + "|" + fmtInts(r.ParentLayoutID) + "|" + fmtInt32s(r.MemberNameStringIDs)
}

// layoutEncoder interns one member layout per user-type GUID within an
// envelope; a layout is allocated (empty) on first encounter of an instance
// of that type and populated by userRecordTransformer.FillBox before the
// envelope is finalized.
type layoutEncoder struct {
	strings *Index[string]
	layouts *Index[storableLayoutRecord]
	byGUID  map[TypeGUID]int32 // guid -> layout id, allocated lazily
}

func newLayoutEncoder(strings *Index[string]) *layoutEncoder {
	return &layoutEncoder{
		strings: strings,
		layouts: NewIndex(layoutKey),
		byGUID:  make(map[TypeGUID]int32),
	}
}

// layoutEncoderFromBundle rebuilds the encoder verbatim for deserialization.
func layoutEncoderFromBundle(strings *Index[string], records []storableLayoutRecord) *layoutEncoder {
	e := &layoutEncoder{
		strings: strings,
		layouts: NewIndexFrom(records, layoutKey),
		byGUID:  make(map[TypeGUID]int32),
	}
	for id, rec := range records {
		if guidStr, ok := strings.TryValueOf(rec.TypeGUIDStringID); ok {
			e.byGUID[parseGUIDString(guidStr)] = int32(id + 1)
		}
	}
	return e
}

// records returns the interned layout records in id order, for flushing
// into a Bundle.
func (e *layoutEncoder) records() []storableLayoutRecord {
	return e.layouts.Values()
}

// layoutIDFor returns the (possibly still-empty) layout id for guid,
// allocating one lazily on first encounter.
func (e *layoutEncoder) layoutIDFor(guid TypeGUID) int32 {
	if id, ok := e.byGUID[guid]; ok {
		return id
	}
	id := e.layouts.IndexOf(storableLayoutRecord{TypeGUIDStringID: e.strings.IndexOf(guid.String())})
	e.byGUID[guid] = id
	return id
}

// populate fills in the member-name list and parent link for guid's layout.
// userRecordTransformer.FillBox calls it for every instance, for the
// instance's type and each storable ancestor; a layout whose member list is
// already set is left as it is.
func (e *layoutEncoder) populate(guid TypeGUID, parentGUID TypeGUID, hasParent bool, memberNames []string) {
	id := e.layoutIDFor(guid)
	rec := e.layouts.values[id-1]
	if len(rec.MemberNameStringIDs) > 0 {
		return // already populated by an earlier instance
	}
	if hasParent {
		rec.ParentLayoutID = e.layoutIDFor(parentGUID)
	}
	ids := make([]int32, len(memberNames))
	for i, name := range memberNames {
		ids[i] = e.strings.IndexOf(name)
	}
	rec.MemberNameStringIDs = ids
	e.layouts.values[id-1] = rec
}

// layout returns the fully flattened (ancestors-then-own) member name list
// for a layout id, for use during deserialization.
func (e *layoutEncoder) layout(id int32) ([]string, TypeGUID, bool) {
	rec, ok := e.layouts.TryValueOf(id)
	if !ok {
		return nil, TypeGUID{}, false
	}
	guidStr, _ := e.strings.TryValueOf(rec.TypeGUIDStringID)
	guid := parseGUIDString(guidStr)

	var names []string
	if rec.ParentLayoutID != 0 {
		parentNames, _, ok := e.layout(rec.ParentLayoutID)
		if ok {
			names = append(names, parentNames...)
		}
	}
	for _, sid := range rec.MemberNameStringIDs {
		name, _ := e.strings.TryValueOf(sid)
		names = append(names, name)
	}
	return names, guid, true
}

func parseGUIDString(s string) TypeGUID {
	u, err := uuid.Parse(s)
	if err != nil {
		return TypeGUID{}
	}
	return TypeGUID(u)
}
