package burrow

import "sync/atomic"

// Txn identifies the transaction a cursor operates on behalf of. The
// transactional layer itself lives outside this subsystem; cursors only
// record their owning transaction and whether they are currently coupled to
// a transaction operation instead of a B-tree slot.
type Txn struct {
	id  uint64
	env *Env
}

// Begin starts a new transaction handle.
func (e *Env) Begin() *Txn {
	return &Txn{id: atomic.AddUint64(&e.lastTxnID, 1), env: e}
}

// ID returns the transaction id.
func (t *Txn) ID() uint64 {
	return t.id
}
