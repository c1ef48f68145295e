package attic

import "sync/atomic"

// Cancellation is a cooperative suspension point: checked once per drained
// queue item during serialization and once per box during each
// deserialization phase. There is no mid-transformer cancellation —
// transformers are assumed short.
type Cancellation struct {
	flag atomic.Bool
}

// NewCancellation returns a token that has not fired.
func NewCancellation() *Cancellation {
	return &Cancellation{}
}

// Cancel marks the token fired. Safe to call from another goroutine than the
// one running Serialize/Deserialize.
func (c *Cancellation) Cancel() {
	if c == nil {
		return
	}
	c.flag.Store(true)
}

// Cancelled reports whether Cancel has been called.
func (c *Cancellation) Cancelled() bool {
	return c != nil && c.flag.Load()
}
