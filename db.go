package burrow

// Key is a lookup key. Data holds the raw key bytes; keys are compared as
// unsigned byte strings.
type Key struct {
	Data []byte
}

// Record is a value attached to a key. Data holds the raw record bytes.
// The unexported fields carry the blob store's view of the record: its
// storage flags and record id. They are populated by reads and consumed by
// the record decoder.
type Record struct {
	Data     []byte
	intFlags KeyFlags
	rid      uint64
}

// Db is a database handle: an environment plus the B-tree backend holding
// the data. A Db without a backend reports ErrNotInitialized on any cursor
// operation that needs one.
type Db struct {
	env *Env
	be  backend
}

// Env returns the owning environment.
func (db *Db) Env() *Env {
	return db.env
}

// NewCursor creates a nil cursor bound to this database. txn may be nil
// for auto-committed access. Never fails.
func (db *Db) NewCursor(txn *Txn) *Cursor {
	c := &Cursor{db: db, txn: txn}
	c.btc.parent = c
	return c
}

// copyKey deep-copies src into a fresh Key owned by the environment's
// allocator. The caller releases it with freeKey.
func (db *Db) copyKey(src *Key) (*Key, error) {
	data, err := db.env.alloc.dup(src.Data)
	if err != nil {
		return nil, err
	}
	return &Key{Data: data}, nil
}

// freeKey releases a key previously produced by copyKey. Safe on nil.
func (db *Db) freeKey(k *Key) {
	if k == nil {
		return
	}
	db.env.alloc.free(k.Data)
	k.Data = nil
}
