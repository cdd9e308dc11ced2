package burrow

// find sets the cursor to nil and delegates the lookup to the backend,
// which couples the cursor to the matching slot on success. On failure the
// cursor stays nil and the backend's error is returned verbatim.
func (c *btreeCursor) find(key *Key, record *Record, flags MoveFlags) error {
	be := c.db().be
	if be == nil {
		return NewError(ErrNotInitialized)
	}
	if key == nil {
		return NewError(ErrInvalidParameter)
	}

	c.setToNil()

	return be.findCursor(c, key, record, flags)
}

// insert delegates to the backend's insert; on success the cursor is left
// coupled to the new (or overwritten) slot.
func (c *btreeCursor) insert(key *Key, record *Record, flags InsertFlags) error {
	be := c.db().be
	if be == nil {
		return NewError(ErrNotInitialized)
	}
	if key == nil || record == nil {
		return NewError(ErrInvalidParameter)
	}

	return be.insertCursor(key, record, c, flags)
}

// overwrite replaces the record at the cursor's current position, leaving
// the key and position untouched.
func (c *btreeCursor) overwrite(record *Record) error {
	if c.isUncoupled() {
		if err := c.couple(); err != nil {
			return err
		}
	} else if !c.isCoupled() {
		return NewError(ErrCursorIsNil)
	}

	c.dupeCache.clear()

	page := c.page
	node := page.btreeNode()
	assertf(node.isLeaf(), "overwrite: cursor points to an internal node")
	entry := node.key(c.slot)

	if err := keySetRecord(c.db(), entry, record, c.dupeIndex, Overwrite); err != nil {
		return err
	}

	page.setDirty()
	return nil
}

// erase removes the record (or the current duplicate) the cursor points
// to. A coupled cursor is uncoupled first so the key identity survives the
// structural change; on success the cursor is nil.
func (c *btreeCursor) erase(flags uint32) error {
	be := c.db().be
	if be == nil {
		return NewError(ErrNotInitialized)
	}

	if c.isCoupled() {
		if err := c.uncouple(0); err != nil {
			return err
		}
	} else if !c.isUncoupled() {
		return NewError(ErrCursorIsNil)
	}

	if err := be.eraseCursor(c.uncoupledKey, c, flags); err != nil {
		return err
	}

	c.setToNil()
	return nil
}

// duplicateCount reports the number of records attached to the current
// key; 1 when the key has no duplicate chain.
func (c *btreeCursor) duplicateCount() (int, error) {
	db := c.db()
	if db.be == nil {
		return 0, NewError(ErrNotInitialized)
	}

	if c.isUncoupled() {
		if err := c.couple(); err != nil {
			return 0, err
		}
	} else if !c.isCoupled() {
		return 0, NewError(ErrCursorIsNil)
	}

	entry := c.page.btreeNode().key(c.slot)
	if entry.keyFlags()&KeyHasDuplicates == 0 {
		return 1, nil
	}
	return db.env.blobs.duplicateGetCount(entry.ptr(), nil)
}

// duplicateTable returns the current key's duplicate table. For a key
// without duplicates a single-entry table is synthesized from the key's
// own flags and rid. needsFree reports that the caller owns the table.
func (c *btreeCursor) duplicateTable() (*DupeTable, bool, error) {
	db := c.db()

	if c.isUncoupled() {
		if err := c.couple(); err != nil {
			return nil, false, err
		}
	} else if !c.isCoupled() {
		return nil, false, NewError(ErrCursorIsNil)
	}

	entry := c.page.btreeNode().key(c.slot)
	if entry.keyFlags()&KeyHasDuplicates == 0 {
		t := &DupeTable{entries: []dupeEntry{{
			flags: entry.keyFlags(),
			rid:   entry.ptr(),
		}}}
		return t, true, nil
	}

	return db.env.blobs.duplicateGetTable(entry.ptr())
}

// recordSize reports the stored size of the record (or current duplicate)
// at the cursor's position. The size packing flags answer without the blob
// store wherever they can.
func (c *btreeCursor) recordSize() (uint64, error) {
	db := c.db()
	if db.be == nil {
		return 0, NewError(ErrNotInitialized)
	}

	if c.isUncoupled() {
		if err := c.couple(); err != nil {
			return 0, err
		}
	} else if !c.isCoupled() {
		return 0, NewError(ErrCursorIsNil)
	}

	entry := c.page.btreeNode().key(c.slot)

	var flags KeyFlags
	var rid uint64
	if entry.keyFlags()&KeyHasDuplicates != 0 {
		var e dupeEntry
		if err := db.env.blobs.duplicateGet(entry.ptr(), c.dupeIndex, &e); err != nil {
			return 0, err
		}
		flags = e.entryFlags()
		rid = e.entryRid()
	} else {
		flags = entry.keyFlags()
		rid = entry.ptr()
	}

	switch {
	case flags&KeyBlobSizeTiny != 0:
		// the high byte of the rid is the payload length
		return rid >> 56, nil
	case flags&KeyBlobSizeSmall != 0:
		return wordSize, nil
	case flags&KeyBlobSizeEmpty != 0:
		return 0, nil
	default:
		return db.env.blobs.getDatasize(rid)
	}
}

// UncoupleAllCursors uncouples every cursor coupled to page at a slot at
// or past start. Cursors at earlier slots stay attached; the page manager
// calls this before splits, merges and deletions that invalidate slots
// from start onward. Cursors are uncoupled without touching the list,
// then unlinked, so the walk never chases a mutated link.
func UncoupleAllCursors(page *Page, start int) error {
	page.latch.Lock()
	defer page.latch.Unlock()

	skipped := false
	c := page.cursors
	for c != nil {
		next := c.nextInPage
		btc := &c.btc

		// ignore cursors that are already uncoupled; cursors coupled to
		// a transaction op keep their slot and are treated like coupled
		if btc.isCoupled() || c.coupledToTxnOp {
			if btc.slot < start {
				skipped = true
				c = next
				continue
			}

			if err := btc.uncouple(uncoupleNoRemove); err != nil {
				return err
			}
			if c.prevInPage != nil {
				c.prevInPage.nextInPage = c.nextInPage
			} else {
				page.cursors = c.nextInPage
			}
			if c.nextInPage != nil {
				c.nextInPage.prevInPage = c.prevInPage
			}
			c.nextInPage = nil
			c.prevInPage = nil
		}

		c = next
	}

	if !skipped {
		page.cursors = nil
	}
	return nil
}

// Public cursor API. All operations delegate to the B-tree cursor; the
// transaction-aware layering above this subsystem goes through the same
// entry points.

// Move positions the cursor per flags (CursorFirst, CursorLast,
// CursorNext, CursorPrevious, optionally combined with SkipDuplicates or
// OnlyDuplicates) and reads the key and/or record at the new position
// into the non-nil out-arguments. With no direction flag the current
// position is read.
func (c *Cursor) Move(key *Key, record *Record, flags MoveFlags) error {
	return c.btc.move(key, record, flags)
}

// Find positions the cursor on key. With record non-nil the record is
// read as well. On failure the cursor is nil.
func (c *Cursor) Find(key *Key, record *Record, flags MoveFlags) error {
	return c.btc.find(key, record, flags)
}

// Insert inserts (or with Overwrite replaces, or with Duplicate appends)
// a record for key. On success the cursor is coupled to the new slot.
func (c *Cursor) Insert(key *Key, record *Record, flags InsertFlags) error {
	return c.btc.insert(key, record, flags)
}

// Overwrite replaces the record at the cursor's position.
func (c *Cursor) Overwrite(record *Record) error {
	return c.btc.overwrite(record)
}

// Erase removes the record (or current duplicate) at the cursor's
// position. On success the cursor is nil.
func (c *Cursor) Erase() error {
	return c.btc.erase(0)
}

// Uncouple detaches the cursor from its page, keeping a copy of the
// current key. The next operation re-couples by key lookup.
func (c *Cursor) Uncouple() error {
	return c.btc.uncouple(0)
}

// IsNil reports whether the cursor has no position.
func (c *Cursor) IsNil() bool {
	return c.btc.isNil()
}

// DuplicateCount reports the number of records attached to the current
// key.
func (c *Cursor) DuplicateCount() (int, error) {
	return c.btc.duplicateCount()
}

// DuplicateTable returns the current key's duplicate table; needsFree
// reports that the caller owns it.
func (c *Cursor) DuplicateTable() (*DupeTable, bool, error) {
	return c.btc.duplicateTable()
}

// RecordSize reports the stored size of the record at the cursor's
// position.
func (c *Cursor) RecordSize() (uint64, error) {
	return c.btc.recordSize()
}

// Clone returns an independent cursor observing the same position.
func (c *Cursor) Clone() (*Cursor, error) {
	dest := &Cursor{db: c.db, txn: c.txn}
	if err := c.btc.clone(&dest.btc, dest); err != nil {
		return nil, err
	}
	return dest, nil
}

// Close releases the cursor. Idempotent.
func (c *Cursor) Close() {
	c.btc.close()
}
