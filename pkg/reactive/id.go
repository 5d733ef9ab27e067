package reactive

import "sync/atomic"

// idCounter is shared by links and watchers so that creation order is
// total across both kinds.
var idCounter uint64

// nextID returns the next creation-order id. IDs are never reused.
func nextID() uint64 {
	return atomic.AddUint64(&idCounter, 1)
}
