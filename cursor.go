package burrow

// cursorState is the B-tree cursor's position state. Exactly one state
// holds at any time; the compound cursor may additionally be coupled to a
// transaction operation, which counts as non-nil.
type cursorState uint8

const (
	// cursorNil: the cursor has no position
	cursorNil cursorState = iota

	// cursorCoupled: the cursor points directly at (page, slot) and is a
	// member of that page's cursor list
	cursorCoupled

	// cursorUncoupled: the cursor holds a heap copy of its last known key
	// and is detached from all pages
	cursorUncoupled
)

// Cursor is the compound cursor handed to clients. It aggregates the
// B-tree cursor and the per-page list links the page manager threads
// through it. The transaction layer, when present, flags the cursor as
// coupled to a transaction operation instead of a B-tree slot.
type Cursor struct {
	db  *Db
	txn *Txn
	btc btreeCursor

	// intrusive per-page cursor list, owned by the coupled page
	nextInPage *Cursor
	prevInPage *Cursor

	// set by the transaction layer; treated as non-nil
	coupledToTxnOp bool
}

// btreeCursor is the B-tree half of a compound cursor: the
// coupled/uncoupled/nil state machine, the duplicate index, and the
// one-entry duplicate cache.
type btreeCursor struct {
	parent *Cursor

	state     cursorState
	page      *Page // coupled only
	slot      int   // coupled only
	dupeIndex int

	uncoupledKey *Key // uncoupled only

	dupeCache dupeEntry
}

func (c *btreeCursor) db() *Db {
	return c.parent.db
}

func (c *btreeCursor) isCoupled() bool {
	return c.state == cursorCoupled
}

func (c *btreeCursor) isUncoupled() bool {
	return c.state == cursorUncoupled
}

// isNil reports whether the cursor has no position at all. A cursor
// coupled to a transaction operation is not nil.
func (c *btreeCursor) isNil() bool {
	if c.isCoupled() || c.isUncoupled() {
		return false
	}
	return !c.parent.coupledToTxnOp
}

// setToNil releases the cursor's position: the uncoupled key copy is freed
// or the cursor is removed from its page's list. The duplicate index and
// cache are reset.
func (c *btreeCursor) setToNil() {
	switch c.state {
	case cursorUncoupled:
		c.db().freeKey(c.uncoupledKey)
		c.uncoupledKey = nil
	case cursorCoupled:
		c.page.removeCursor(c.parent)
	}
	c.state = cursorNil
	c.page = nil
	c.slot = 0
	c.dupeIndex = 0
	c.dupeCache.clear()
}

// coupleTo couples the cursor to (page, slot) and joins the page's cursor
// list.
func (c *btreeCursor) coupleTo(page *Page, slot int) {
	page.addCursor(c.parent)
	c.page = page
	c.slot = slot
	c.state = cursorCoupled
	c.db().env.metrics.CursorCouples.Inc()
}

// coupleToOther makes the cursor point at the same (page, slot, duplicate)
// as other without joining the page's cursor list. The two cursors
// intentionally share other's list membership for the duration of a swap;
// the caller re-establishes membership. Do not use for anything else.
func (c *btreeCursor) coupleToOther(other *btreeCursor) {
	assertf(other.isCoupled(), "coupleToOther: other cursor is not coupled")
	c.setToNil()
	c.page = other.page
	c.slot = other.slot
	c.dupeIndex = other.dupeIndex
	c.state = other.state
}

// uncouple converts a coupled cursor into an uncoupled one holding a heap
// copy of the current key. No-op when the cursor is already uncoupled or
// has no position. With uncoupleNoRemove the cursor is left on the page's
// cursor list; the bulk uncouple drops the whole list in one step instead.
func (c *btreeCursor) uncouple(flags uncoupleFlags) error {
	if !c.isCoupled() {
		return nil
	}

	assertf(c.page != nil, "uncoupling a cursor which has no coupled page")
	node := c.page.btreeNode()
	assertf(node.isLeaf(), "uncoupling a cursor coupled to an internal node")
	entry := node.key(c.slot)

	key, err := copyKeyIntToPub(c.db(), entry)
	if err != nil {
		return err
	}

	if flags&uncoupleNoRemove == 0 {
		c.page.removeCursor(c.parent)
	}

	c.state = cursorUncoupled
	c.page = nil
	c.slot = 0
	c.uncoupledKey = key
	c.db().env.metrics.CursorUncouples.Inc()
	return nil
}

// couple re-couples an uncoupled cursor by looking its saved key up. find
// lands on the first duplicate and resets the duplicate index, so the
// index is saved and restored around it; the restore is deliberate even
// when find fails and the cursor is left nil.
func (c *btreeCursor) couple() error {
	assertf(c.isUncoupled(), "coupling a cursor which is not uncoupled")

	key, err := c.db().copyKey(c.uncoupledKey)
	if err != nil {
		return err
	}

	dupeIndex := c.dupeIndex
	err = c.find(key, nil, 0)
	c.dupeIndex = dupeIndex

	c.db().freeKey(key)
	return err
}

// pointsTo reports whether the cursor's current slot holds exactly the
// given key entry. An uncoupled cursor is coupled first.
func (c *btreeCursor) pointsTo(entry *keyEntry) (bool, error) {
	if c.isUncoupled() {
		if err := c.couple(); err != nil {
			return false, err
		}
	}

	if c.isCoupled() {
		node := c.page.btreeNode()
		if node.key(c.slot) == entry {
			return true, nil
		}
	}
	return false, nil
}

// clone initializes dest, bound to destParent, as a copy of c. A coupled
// source couples dest to the same slot and joins it to the page's cursor
// list; an uncoupled source deep-copies the saved key.
func (c *btreeCursor) clone(dest *btreeCursor, destParent *Cursor) error {
	dest.parent = destParent
	dest.dupeIndex = c.dupeIndex

	switch c.state {
	case cursorCoupled:
		dest.coupleTo(c.page, c.slot)
	case cursorUncoupled:
		key, err := c.db().copyKey(c.uncoupledKey)
		if err != nil {
			return err
		}
		dest.uncoupledKey = key
		dest.state = cursorUncoupled
	}
	return nil
}

// close releases the cursor's resources.
func (c *btreeCursor) close() {
	c.setToNil()
}

// move positions the cursor per flags and optionally reads the key and
// record at the new position. With no direction flag it reads the current
// position, re-coupling an uncoupled cursor first.
func (c *btreeCursor) move(key *Key, record *Record, flags MoveFlags) error {
	db := c.db()
	be := db.be
	if be == nil {
		return NewError(ErrNotInitialized)
	}

	c.dupeCache.clear()

	var err error
	switch {
	case flags&CursorFirst != 0:
		err = c.moveFirst(be, flags)
	case flags&CursorLast != 0:
		err = c.moveLast(be, flags)
	case flags&CursorNext != 0:
		err = c.moveNext(be, flags)
	case flags&CursorPrevious != 0:
		err = c.movePrevious(be, flags)
	default:
		if c.isNil() {
			// no move requested and nothing to read: no-op
			if key == nil && record == nil {
				return nil
			}
			return NewError(ErrCursorIsNil)
		}
		if c.isUncoupled() {
			err = c.couple()
		}
	}
	if err != nil {
		return err
	}

	// Between the key and record reads the blob store may fetch pages
	// and evict others; pin the coupled page so the entry stays valid.
	assertf(c.isCoupled(), "move: cursor is not coupled")
	page := c.page
	page.pin()
	defer page.unpin()

	node := page.btreeNode()
	assertf(node.isLeaf(), "move: cursor points to an internal node")
	entry := node.key(c.slot)

	if key != nil {
		if err := btreeReadKey(db, entry, key); err != nil {
			return err
		}
	}

	if record != nil {
		if entry.keyFlags()&KeyHasDuplicates != 0 && c.dupeIndex > 0 {
			e := &c.dupeCache
			if e.empty() {
				db.env.metrics.DupeCacheMisses.Inc()
				if err := db.env.blobs.duplicateGet(entry.ptr(), c.dupeIndex, e); err != nil {
					return err
				}
			} else {
				db.env.metrics.DupeCacheHits.Inc()
			}
			record.intFlags = e.entryFlags()
			record.rid = e.entryRid()
		} else {
			record.intFlags = entry.keyFlags()
			record.rid = entry.ptr()
		}
		if err := btreeReadRecord(db, record); err != nil {
			return err
		}
	}

	return nil
}

// moveFirst couples the cursor to the smallest key in the tree.
func (c *btreeCursor) moveFirst(be backend, flags MoveFlags) error {
	db := c.db()
	c.setToNil()

	root := be.rootPage()
	if root == invalidPgno {
		return NewError(ErrKeyNotFound)
	}
	page, err := db.env.pager.fetchPage(root)
	if err != nil {
		return err
	}

	// descend along the leftmost child until a leaf
	for {
		node := page.btreeNode()
		if node.count() == 0 {
			return NewError(ErrKeyNotFound)
		}
		if node.isLeaf() {
			break
		}
		page, err = db.env.pager.fetchPage(node.ptrLeft)
		if err != nil {
			return err
		}
	}

	c.coupleTo(page, 0)
	c.dupeIndex = 0
	return nil
}

// moveLast couples the cursor to the largest key in the tree and, unless
// duplicates are skipped, to that key's last duplicate.
func (c *btreeCursor) moveLast(be backend, flags MoveFlags) error {
	db := c.db()
	c.setToNil()

	root := be.rootPage()
	if root == invalidPgno {
		return NewError(ErrKeyNotFound)
	}
	page, err := db.env.pager.fetchPage(root)
	if err != nil {
		return err
	}

	// descend along the rightmost child until a leaf
	n := page.btreeNode()
	for {
		if n.count() == 0 {
			return NewError(ErrKeyNotFound)
		}
		if n.isLeaf() {
			break
		}
		page, err = db.env.pager.fetchPage(n.key(n.count() - 1).child())
		if err != nil {
			return err
		}
		n = page.btreeNode()
	}

	c.coupleTo(page, n.count()-1)
	c.dupeIndex = 0

	entry := n.key(c.slot)
	if entry.keyFlags()&KeyHasDuplicates != 0 && flags&SkipDuplicates == 0 {
		count, err := db.env.blobs.duplicateGetCount(entry.ptr(), &c.dupeCache)
		if err != nil {
			return err
		}
		c.dupeIndex = count - 1
	}
	return nil
}

// moveNext advances to the next duplicate, the next slot, or the right
// sibling's first slot, in that order.
func (c *btreeCursor) moveNext(be backend, flags MoveFlags) error {
	db := c.db()

	if c.isUncoupled() {
		if err := c.couple(); err != nil {
			return err
		}
	} else if !c.isCoupled() {
		return NewError(ErrCursorIsNil)
	}

	page := c.page
	node := page.btreeNode()
	entry := node.key(c.slot)

	// step within the duplicate chain first; a missing next duplicate
	// falls through to cross-key stepping
	if entry.keyFlags()&KeyHasDuplicates != 0 && flags&SkipDuplicates == 0 {
		c.dupeIndex++
		err := db.env.blobs.duplicateGet(entry.ptr(), c.dupeIndex, &c.dupeCache)
		if err != nil {
			c.dupeIndex--
			if !IsKeyNotFound(err) {
				return err
			}
		} else {
			return nil
		}
	}

	if flags&OnlyDuplicates != 0 {
		return NewError(ErrKeyNotFound)
	}

	if c.slot+1 < node.count() {
		c.slot++
		c.dupeIndex = 0
		return nil
	}

	// cross to the right sibling leaf
	if node.right == invalidPgno {
		return NewError(ErrKeyNotFound)
	}

	page.removeCursor(c.parent)
	c.state = cursorNil
	c.page = nil

	page, err := db.env.pager.fetchPage(node.right)
	if err != nil {
		return err
	}
	c.coupleTo(page, 0)
	c.dupeIndex = 0
	return nil
}

// movePrevious steps back to the previous duplicate, the previous slot,
// or the left sibling's last slot. Landing on a new key positions at its
// last duplicate unless duplicates are skipped.
func (c *btreeCursor) movePrevious(be backend, flags MoveFlags) error {
	db := c.db()

	if c.isUncoupled() {
		if err := c.couple(); err != nil {
			return err
		}
	} else if !c.isCoupled() {
		return NewError(ErrCursorIsNil)
	}

	page := c.page
	node := page.btreeNode()
	entry := node.key(c.slot)

	// step within the duplicate chain; at duplicate 0 fall through to
	// the previous key instead of underflowing
	if entry.keyFlags()&KeyHasDuplicates != 0 && flags&SkipDuplicates == 0 &&
		c.dupeIndex > 0 {
		c.dupeIndex--
		err := db.env.blobs.duplicateGet(entry.ptr(), c.dupeIndex, &c.dupeCache)
		if err != nil {
			c.dupeIndex++
			if !IsKeyNotFound(err) {
				return err
			}
		} else {
			return nil
		}
	}

	if flags&OnlyDuplicates != 0 {
		return NewError(ErrKeyNotFound)
	}

	if c.slot != 0 {
		c.slot--
		entry = node.key(c.slot)
	} else {
		// cross to the left sibling leaf
		if node.left == invalidPgno {
			return NewError(ErrKeyNotFound)
		}

		page.removeCursor(c.parent)
		c.state = cursorNil
		c.page = nil

		var err error
		page, err = db.env.pager.fetchPage(node.left)
		if err != nil {
			return err
		}
		node = page.btreeNode()
		c.coupleTo(page, node.count()-1)
		entry = node.key(c.slot)
	}
	c.dupeIndex = 0

	// a freshly reached key positions at the end of its duplicate chain
	if entry.keyFlags()&KeyHasDuplicates != 0 && flags&SkipDuplicates == 0 {
		count, err := db.env.blobs.duplicateGetCount(entry.ptr(), &c.dupeCache)
		if err != nil {
			return err
		}
		c.dupeIndex = count - 1
	}
	return nil
}
