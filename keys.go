package attic

import "strconv"

// Small canonical-key builders shared by the interning indices that key on
// by-value equality of composite records (type metadata, array metadata,
// storable layouts). Kept separate from index.go so each Index[T] instance
// just supplies a closure built from these.

func fmtInts(n int32) string {
	return strconv.FormatInt(int64(n), 10)
}

func fmtInt32s(xs []int32) string {
	s := make([]byte, 0, len(xs)*3)
	for i, x := range xs {
		if i > 0 {
			s = append(s, ',')
		}
		s = strconv.AppendInt(s, int64(x), 10)
	}
	return string(s)
}
