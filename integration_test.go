package attic

import (
	"math/rand"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"
)

// --- linked list / cycle fixtures (S2, S3, property 2/3) -------------------

type listNode struct {
	Next *listNode
	Tag  string
}

// --- post-deserialization hook chain fixture (property 9) -------------------

type hookBase struct {
	Log *[]string
}

func (h *hookBase) PostDeserialize() error {
	*h.Log = append(*h.Log, "A")
	return nil
}

type hookMiddle struct {
	hookBase
}

func (h *hookMiddle) PostDeserialize() error {
	*h.Log = append(*h.Log, "B")
	return nil
}

type hookTop struct {
	hookMiddle
}

func (h *hookTop) PostDeserialize() error {
	*h.Log = append(*h.Log, "C")
	return nil
}

// --- breadth-first discovery fixture (property 6) ---------------------------

type bfsGrand struct{ Tag string }
type bfsChild struct{ D *bfsGrand }
type bfsRoot struct {
	C1 *bfsChild
	C2 *bfsChild
}

// --- general round-trip fixture (property 1) --------------------------------

type roundTripRecord struct {
	Name    string
	Count   int32
	Ratio   float64
	Tags    []string
	Scores  map[string]int32
	Coords  [3]int32
	Ok      bool
}

// --- unknown-type fixture (property 8) --------------------------------------

type unknownLeaf struct{ V int32 }
type withUnknownField struct {
	Known int32
	Leaf  *unknownLeaf
}

func freshRegistry() *Registry {
	r := newRegistry()
	registerBuiltins(r)
	return r
}

func TestRoundTripIdentityForPlainRecord(t *testing.T) {
	reg := freshRegistry()
	in := &roundTripRecord{
		Name:   "widget",
		Count:  42,
		Ratio:  3.25,
		Tags:   []string{"a", "b", "c"},
		Scores: map[string]int32{"x": 1, "y": 2},
		Coords: [3]int32{7, 8, 9},
		Ok:     true,
	}

	data, _, err := Marshal(in, reg)
	require.NoError(t, err)

	got, info, err := Unmarshal(data, reg)
	require.NoError(t, err)
	require.False(t, info.Partial)
	require.Empty(t, info.UnknownTypeGUIDs)
	require.Equal(t, in, got)
}

func TestDeterministicEnvelopesForSameGraph(t *testing.T) {
	reg := freshRegistry()
	in := &roundTripRecord{Name: "same", Count: 1, Tags: []string{"p", "q"}, Scores: map[string]int32{"k": 9}}

	data1, _, err := Marshal(in, reg)
	require.NoError(t, err)
	data2, _, err := Marshal(in, freshRegistry())
	require.NoError(t, err)
	require.Equal(t, data1, data2)
}

func TestLinkedListDiscoveryAndTermination(t *testing.T) {
	reg := freshRegistry()
	n4 := &listNode{Tag: "n4"}
	n3 := &listNode{Next: n4, Tag: "n3"}
	n2 := &listNode{Next: n3, Tag: "n2"}
	n1 := &listNode{Next: n2, Tag: "n1"}

	bundle, info, err := Serialize(n1, reg, nil)
	require.NoError(t, err)
	require.Equal(t, 4, countUserRecordBoxes(bundle))
	require.Equal(t, 8, info.ObjectCount) // 4 listNode boxes + 4 distinct boxed Tag strings

	data, err := EncodeBundle(bundle)
	require.NoError(t, err)
	got, _, err := Deserialize(data, reg, nil)
	require.NoError(t, err)

	cur := got.(*listNode)
	var tags []string
	for cur != nil {
		tags = append(tags, cur.Tag)
		cur = cur.Next
	}
	require.Equal(t, []string{"n1", "n2", "n3", "n4"}, tags)
}

func TestCycleSurvivesRoundTripWithIdentityPreserved(t *testing.T) {
	reg := freshRegistry()
	a := &listNode{Tag: "a"}
	b := &listNode{Tag: "b"}
	c := &listNode{Tag: "c"}
	d := &listNode{Tag: "d"}
	a.Next, b.Next, c.Next, d.Next = b, c, d, a

	data, _, err := Marshal(a, reg)
	require.NoError(t, err)

	got, _, err := Deserialize(data, reg, nil)
	require.NoError(t, err)

	root := got.(*listNode)
	require.Equal(t, "a", root.Tag)
	require.Equal(t, "b", root.Next.Tag)
	require.Equal(t, "c", root.Next.Next.Tag)
	require.Equal(t, "d", root.Next.Next.Next.Tag)
	require.Same(t, root, root.Next.Next.Next.Next) // the 4-cycle closes back onto the same object
}

func TestSelfReferenceRoundTripsWithIdentity(t *testing.T) {
	reg := freshRegistry()
	self := &listNode{Tag: "self"}
	self.Next = self

	data, _, err := Marshal(self, reg)
	require.NoError(t, err)

	got, _, err := Deserialize(data, reg, nil)
	require.NoError(t, err)
	root := got.(*listNode)
	require.Same(t, root, root.Next)
}

func TestHookOrderRunsAncestorsFirst(t *testing.T) {
	reg := freshRegistry()
	log := []string{}
	in := &hookTop{hookMiddle: hookMiddle{hookBase: hookBase{Log: &log}}}

	data, _, err := Marshal(in, reg)
	require.NoError(t, err)

	got, _, err := Deserialize(data, reg, nil)
	require.NoError(t, err)

	out := got.(*hookTop)
	require.Equal(t, []string{"A", "B", "C"}, *out.Log)
}

func TestBFSDiscoveryOrderMatchesQueueOrder(t *testing.T) {
	reg := freshRegistry()
	root := &bfsRoot{
		C1: &bfsChild{D: &bfsGrand{Tag: "d1"}},
		C2: &bfsChild{D: &bfsGrand{Tag: "d2"}},
	}

	bundle, _, err := Serialize(root, reg, nil)
	require.NoError(t, err)
	require.EqualValues(t, 1, bundle.RootBoxID)

	require.Equal(t, []int32{2, 3}, bundle.Boxes[0].Member.ValueBoxIDs)
	require.Equal(t, []int32{4}, bundle.Boxes[1].Member.ValueBoxIDs)
	require.Equal(t, []int32{5}, bundle.Boxes[2].Member.ValueBoxIDs)
}

func TestScalarSharingBoxesEqualIntegersOnce(t *testing.T) {
	reg := freshRegistry()
	in := []int32{1000, 1000}

	bundle, _, err := Serialize(in, reg, nil)
	require.NoError(t, err)

	// one box for the list + one shared box for the repeated 1000
	require.Len(t, bundle.Boxes, 2)
	require.Equal(t, bundle.Boxes[0].Repeated.ElementBoxIDs[0], bundle.Boxes[0].Repeated.ElementBoxIDs[1])
}

func TestSharedScalarListOfStrings(t *testing.T) {
	reg := freshRegistry()
	in := []string{"hello", "hello", "hello", "hello"}

	bundle, _, err := Serialize(in, reg, nil)
	require.NoError(t, err)
	require.Len(t, bundle.Boxes, 2) // the list box + one shared "hello" box
	ids := bundle.Boxes[0].Repeated.ElementBoxIDs
	require.Len(t, ids, 4)
	for _, id := range ids {
		require.Equal(t, ids[0], id)
	}

	data, err := EncodeBundle(bundle)
	require.NoError(t, err)
	got, _, err := Deserialize(data, reg, nil)
	require.NoError(t, err)
	require.Equal(t, in, got)
}

func TestLargeIntArrayStaysCompactAndSingleBoxed(t *testing.T) {
	reg := freshRegistry()
	prng := rand.New(rand.NewSource(1234))
	var values [8192]int32
	for i := range values {
		values[i] = prng.Int31()
	}

	data, info, err := Marshal(values, reg)
	require.NoError(t, err)
	require.Equal(t, 1, info.ObjectCount)
	require.Less(t, len(data), 33*1024)

	got, _, err := Unmarshal(data, reg)
	require.NoError(t, err)
	require.Equal(t, values, got)
}

func TestRank3ArrayFlattensToOneArrayMetadata(t *testing.T) {
	reg := freshRegistry()
	var cube [16][16][16]int32
	n := int32(0)
	for i := range cube {
		for j := range cube[i] {
			for k := range cube[i][j] {
				cube[i][j][k] = n
				n++
			}
		}
	}

	bundle, _, err := Serialize(cube, reg, nil)
	require.NoError(t, err)
	require.Len(t, bundle.Boxes, 1)
	require.Len(t, bundle.ArrayMetadata, 1)
	require.EqualValues(t, 3, bundle.ArrayMetadata[0].Rank)
	require.Equal(t, []int32{16, 16, 16}, bundle.ArrayMetadata[0].Lengths)

	data, err := EncodeBundle(bundle)
	require.NoError(t, err)
	got, _, err := Deserialize(data, reg, nil)
	require.NoError(t, err)
	require.Equal(t, cube, got)
}

func TestUnknownTypeGUIDIsNonFatalAndReported(t *testing.T) {
	r1 := freshRegistry()
	in := &withUnknownField{Known: 5, Leaf: &unknownLeaf{V: 9}}
	data, _, err := Marshal(in, r1)
	require.NoError(t, err)

	r2 := freshRegistry()
	_, err = r2.TypeInfo(reflect.TypeOf(withUnknownField{}))
	require.NoError(t, err)
	// unknownLeaf is deliberately never registered with r2.

	got, info, err := Deserialize(data, r2, nil)
	require.NoError(t, err)
	require.False(t, info.Partial)
	require.NotEmpty(t, info.UnknownTypeGUIDs)

	out := got.(*withUnknownField)
	require.EqualValues(t, 5, out.Known)
	require.Nil(t, out.Leaf)
}

func TestCancellationYieldsPartialResult(t *testing.T) {
	reg := freshRegistry()
	n3 := &listNode{Tag: "n3"}
	n2 := &listNode{Next: n3, Tag: "n2"}
	n1 := &listNode{Next: n2, Tag: "n1"}

	cancel := NewCancellation()
	cancel.Cancel()
	_, info, err := Serialize(n1, reg, cancel)
	require.NoError(t, err)
	require.True(t, info.Partial)
}

func countUserRecordBoxes(b *Bundle) int {
	n := 0
	for _, box := range b.Boxes {
		if box.Member != nil {
			n++
		}
	}
	return n
}
