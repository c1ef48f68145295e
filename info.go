package attic

import "time"

// SerializeInfo is the result record Serialize returns alongside the
// envelope.
type SerializeInfo struct {
	Duration    time.Duration
	ObjectCount int
	Types       []TypeGUID
	Partial     bool // true if cancellation fired before the walk completed
}

// DeserializeInfo is the result record Deserialize returns alongside the
// root object.
type DeserializeInfo struct {
	Duration         time.Duration
	ObjectCount      int
	UnknownTypeGUIDs []TypeGUID
	Partial          bool
}
