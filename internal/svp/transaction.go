package svp

import (
	"sync"
)

// Transaction tracks one outstanding request awaiting its ACK, keyed by
// transaction id for O(1) insert, remove, and lookup.
type Transaction struct {
	ID      uint32
	Op      Op
	IfIndex int32

	// VL3Req is populated when Op == OpVL3Req, needed by the ack handler to
	// recover the original query IP and address type.
	VL3Req VL3Req

	// VL2Req is populated when Op == OpVL2Req, needed to recover the
	// original queried MAC.
	VL2Req VL2Req
}

// Registry is a mutex-guarded map of in-flight transactions keyed by
// transaction id. The guard allows the SVP transport to run on its own
// goroutine safely even though only one goroutine is expected to touch it
// at a time in the steady state.
type Registry struct {
	mu   sync.Mutex
	next uint32
	txns map[uint32]*Transaction
}

// NewRegistry creates an empty transaction registry. The id generator starts
// at 1 and never produces 0, so 0 can be treated as "no transaction" by
// callers that zero-initialize.
func NewRegistry() *Registry {
	return &Registry{next: 1, txns: make(map[uint32]*Transaction)}
}

// NextID allocates the next transaction id, skipping 0 and wrapping past
// the 32-bit boundary back to 1.
func (r *Registry) NextID() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.next
	r.next++
	if r.next == 0 {
		r.next = 1
	}
	return id
}

// Insert records a newly sent transaction.
func (r *Registry) Insert(txn *Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txns[txn.ID] = txn
}

// Take removes and returns the transaction matching id, or nil if no such
// transaction is outstanding.
func (r *Registry) Take(id uint32) *Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()

	txn, ok := r.txns[id]
	if !ok {
		return nil
	}
	delete(r.txns, id)
	return txn
}

// Len reports the number of outstanding transactions, used by metrics.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.txns)
}
