package burrow

// backend is the structural side of the B-tree: point lookup, insert and
// erase, operating on the same pages the cursors couple to. The cursor
// core calls into it and propagates its errors verbatim.
type backend interface {
	rootPage() pgno
	findCursor(c *btreeCursor, key *Key, record *Record, flags MoveFlags) error
	insertCursor(key *Key, record *Record, c *btreeCursor, flags InsertFlags) error
	eraseCursor(key *Key, c *btreeCursor, flags uint32) error
}

// btree is the reference backend. Leaves hold the key entries and form a
// doubly linked sibling chain; branch nodes hold separators with a
// leftmost-child pointer. Structural mutations bulk-uncouple affected
// cursors before shifting slots, per the page-manager contract.
type btree struct {
	db      *Db
	root    pgno
	maxKeys int
}

func newBtree(db *Db, maxKeys int) *btree {
	if maxKeys < 4 {
		maxKeys = 4
	}
	return &btree{db: db, maxKeys: maxKeys}
}

func (bt *btree) rootPage() pgno {
	return bt.root
}

// descend walks from the root to the leaf covering key. Every page on the
// way is pinned; the caller releases with unpinPath. path holds the branch
// pages, root first.
func (bt *btree) descend(key []byte) (path []*Page, leaf *Page, err error) {
	pg := bt.db.env.pager
	page, err := pg.fetchPage(bt.root)
	if err != nil {
		return nil, nil, err
	}
	page.pin()

	for {
		node := page.btreeNode()
		if node.isLeaf() {
			return path, page, nil
		}
		path = append(path, page)
		next, err := pg.fetchPage(node.childFor(key))
		if err != nil {
			unpinPath(path, nil)
			return nil, nil, err
		}
		next.pin()
		page = next
	}
}

func unpinPath(path []*Page, leaf *Page) {
	for _, p := range path {
		p.unpin()
	}
	if leaf != nil {
		leaf.unpin()
	}
}

// findCursor looks key up and couples the cursor to the matching slot,
// duplicate index 0. The cursor must already be nil. With record non-nil
// the record is read as well.
func (bt *btree) findCursor(c *btreeCursor, key *Key, record *Record, flags MoveFlags) error {
	db := bt.db
	if bt.root == invalidPgno {
		return NewError(ErrKeyNotFound)
	}

	path, leaf, err := bt.descend(key.Data)
	if err != nil {
		return err
	}
	defer unpinPath(path, leaf)

	node := leaf.btreeNode()
	slot, found := node.search(key.Data)
	if !found {
		return NewError(ErrKeyNotFound)
	}

	c.coupleTo(leaf, slot)
	c.dupeIndex = 0

	if record != nil {
		entry := node.key(slot)
		record.intFlags = entry.keyFlags()
		record.rid = entry.ptr()
		return btreeReadRecord(db, record)
	}
	return nil
}

// insertCursor inserts key with record. An existing key reports
// ErrDuplicateKey unless Overwrite replaces its record or Duplicate
// appends to its chain. On success the cursor is coupled to the slot.
func (bt *btree) insertCursor(key *Key, record *Record, c *btreeCursor, flags InsertFlags) error {
	db := bt.db
	pg := db.env.pager

	if bt.root == invalidPgno {
		bt.root = pg.allocPage(true).pageID()
	}

	path, leaf, err := bt.descend(key.Data)
	if err != nil {
		return err
	}
	defer unpinPath(path, leaf)

	node := leaf.btreeNode()
	slot, found := node.search(key.Data)

	if found {
		entry := node.key(slot)
		switch {
		case flags&Duplicate != 0:
			idx, err := bt.appendDuplicate(entry, record)
			if err != nil {
				return err
			}
			leaf.setDirty()
			c.setToNil()
			c.coupleTo(leaf, slot)
			c.dupeIndex = idx
			return nil
		case flags&Overwrite != 0:
			if err := keySetRecord(db, entry, record, 0, flags); err != nil {
				return err
			}
			leaf.setDirty()
			c.setToNil()
			c.coupleTo(leaf, slot)
			c.dupeIndex = 0
			return nil
		default:
			return NewError(ErrDuplicateKey)
		}
	}

	// slots at and past the insertion point shift right
	if err := UncoupleAllCursors(leaf, slot); err != nil {
		return err
	}

	recFlags, rid, err := db.env.blobs.storeRecord(record)
	if err != nil {
		return err
	}
	keyCopy := append([]byte(nil), key.Data...)
	node.insertEntry(slot, &keyEntry{flags: recFlags, data: keyCopy, rid: rid})
	leaf.setDirty()

	if node.count() > bt.maxKeys {
		if err := bt.splitLeaf(path, leaf); err != nil {
			return err
		}
	}

	// couple to the key's final location; a split may have moved it
	c.setToNil()
	return bt.findCursor(c, key, nil, 0)
}

// appendDuplicate grows entry's duplicate chain by record, converting a
// plain entry into a chained one first. Returns the new duplicate index.
func (bt *btree) appendDuplicate(entry *keyEntry, record *Record) (int, error) {
	bs := bt.db.env.blobs

	if entry.keyFlags()&KeyHasDuplicates == 0 {
		first := dupeEntry{flags: entry.flags & keyBlobSizeMask, rid: entry.rid}
		tableRid, _, err := bs.duplicateAppend(0, first)
		if err != nil {
			return 0, err
		}
		entry.flags = (entry.flags &^ keyBlobSizeMask) | KeyHasDuplicates
		entry.rid = tableRid
	}

	recFlags, rid, err := bs.storeRecord(record)
	if err != nil {
		return 0, err
	}
	_, idx, err := bs.duplicateAppend(entry.rid, dupeEntry{flags: recFlags, rid: rid})
	return idx, err
}

// splitLeaf moves the upper half of leaf into a fresh right sibling and
// posts the separator to the parent.
func (bt *btree) splitLeaf(path []*Page, leaf *Page) error {
	pg := bt.db.env.pager
	node := leaf.btreeNode()
	mid := node.count() / 2

	// cursors on the moving half must not follow stale slots
	if err := UncoupleAllCursors(leaf, mid); err != nil {
		return err
	}

	right := pg.allocPage(true)
	rn := right.btreeNode()
	rn.entries = append(rn.entries, node.entries[mid:]...)
	for i := mid; i < node.count(); i++ {
		node.entries[i] = nil
	}
	node.entries = node.entries[:mid]

	rn.left = leaf.pageID()
	rn.right = node.right
	if node.right != invalidPgno {
		rp, err := pg.fetchPage(node.right)
		if err != nil {
			return err
		}
		rp.btreeNode().left = right.pageID()
		rp.setDirty()
	}
	node.right = right.pageID()

	leaf.setDirty()
	right.setDirty()

	sep := append([]byte(nil), rn.entries[0].data...)
	return bt.insertParent(path, sep, right.pageID())
}

// insertParent posts a separator for a freshly split child. With an empty
// path the split page was the root and the tree grows a level.
func (bt *btree) insertParent(path []*Page, sep []byte, childID pgno) error {
	pg := bt.db.env.pager

	if len(path) == 0 {
		newRoot := pg.allocPage(false)
		nr := newRoot.btreeNode()
		nr.ptrLeft = bt.root
		nr.entries = []*keyEntry{{data: sep, rid: uint64(childID)}}
		newRoot.setDirty()
		bt.root = newRoot.pageID()
		return nil
	}

	parent := path[len(path)-1]
	pn := parent.btreeNode()
	slot, _ := pn.search(sep)
	pn.insertEntry(slot, &keyEntry{data: sep, rid: uint64(childID)})
	parent.setDirty()

	if pn.count() > bt.maxKeys {
		return bt.splitBranch(path[:len(path)-1], parent)
	}
	return nil
}

// splitBranch promotes the middle separator and moves the upper half into
// a fresh right sibling branch.
func (bt *btree) splitBranch(path []*Page, page *Page) error {
	pg := bt.db.env.pager
	node := page.btreeNode()
	mid := node.count() / 2
	sepEntry := node.entries[mid]

	right := pg.allocPage(false)
	rn := right.btreeNode()
	rn.ptrLeft = sepEntry.child()
	rn.entries = append(rn.entries, node.entries[mid+1:]...)
	for i := mid; i < node.count(); i++ {
		node.entries[i] = nil
	}
	node.entries = node.entries[:mid]

	page.setDirty()
	right.setDirty()

	return bt.insertParent(path, sepEntry.data, right.pageID())
}

// eraseCursor removes key's record — the duplicate at the cursor's
// duplicate index when the key has a chain, the key itself otherwise (or
// once the chain is drained).
func (bt *btree) eraseCursor(key *Key, c *btreeCursor, flags uint32) error {
	db := bt.db
	if bt.root == invalidPgno {
		return NewError(ErrKeyNotFound)
	}

	path, leaf, err := bt.descend(key.Data)
	if err != nil {
		return err
	}
	defer unpinPath(path, leaf)

	node := leaf.btreeNode()
	slot, found := node.search(key.Data)
	if !found {
		return NewError(ErrKeyNotFound)
	}
	entry := node.key(slot)

	if entry.keyFlags()&KeyHasDuplicates != 0 {
		remaining, err := db.env.blobs.duplicateErase(entry.ptr(), c.dupeIndex)
		if err != nil {
			return err
		}
		switch remaining {
		case 0:
			// chain drained; fall through to remove the key itself
		case 1:
			// collapse the single survivor back onto the key entry
			var last dupeEntry
			if err := db.env.blobs.duplicateGet(entry.ptr(), 0, &last); err != nil {
				return err
			}
			if _, err := db.env.blobs.duplicateErase(entry.ptr(), 0); err != nil {
				return err
			}
			entry.flags = (entry.flags &^ (keyBlobSizeMask | KeyHasDuplicates)) | last.entryFlags()
			entry.rid = last.entryRid()
			leaf.setDirty()
			return nil
		default:
			leaf.setDirty()
			return nil
		}
	}

	// slots past the erased one shift left
	if err := UncoupleAllCursors(leaf, slot); err != nil {
		return err
	}
	node.removeEntry(slot)
	leaf.setDirty()

	if node.count() == 0 && leaf.pageID() != bt.root {
		bt.unlinkLeaf(path, leaf)
	}
	return nil
}

// unlinkLeaf detaches an emptied leaf from its sibling chain and removes
// the parent's reference to it.
func (bt *btree) unlinkLeaf(path []*Page, leaf *Page) {
	pg := bt.db.env.pager
	node := leaf.btreeNode()

	if node.left != invalidPgno {
		if lp, err := pg.fetchPage(node.left); err == nil {
			lp.btreeNode().right = node.right
			lp.setDirty()
		}
	}
	if node.right != invalidPgno {
		if rp, err := pg.fetchPage(node.right); err == nil {
			rp.btreeNode().left = node.left
			rp.setDirty()
		}
	}

	if len(path) > 0 {
		bt.removeChildRef(path[:len(path)-1], path[len(path)-1], leaf.pageID())
	}
	pg.freePage(leaf)
}

// removeChildRef removes parent's reference to childID, collapsing branch
// nodes that run out of children.
func (bt *btree) removeChildRef(path []*Page, parent *Page, childID pgno) {
	pg := bt.db.env.pager
	pn := parent.btreeNode()

	if pn.ptrLeft == childID {
		if pn.count() > 0 {
			pn.ptrLeft = pn.entries[0].child()
			pn.removeEntry(0)
		} else {
			// no children left at all: the branch node goes away too
			if parent.pageID() == bt.root {
				bt.root = invalidPgno
			} else if len(path) > 0 {
				bt.removeChildRef(path[:len(path)-1], path[len(path)-1], parent.pageID())
			}
			pg.freePage(parent)
			return
		}
	} else {
		for i, e := range pn.entries {
			if e.child() == childID {
				pn.removeEntry(i)
				break
			}
		}
	}
	parent.setDirty()

	// a branch left with a single child collapses into that child
	if pn.count() == 0 && pn.ptrLeft != invalidPgno {
		if parent.pageID() == bt.root {
			bt.root = pn.ptrLeft
			pg.freePage(parent)
		} else if len(path) > 0 {
			bt.replaceChildRef(path[len(path)-1], parent.pageID(), pn.ptrLeft)
			pg.freePage(parent)
		}
	}
}

// replaceChildRef rewires grandparent's reference from oldID to newID.
func (bt *btree) replaceChildRef(grandparent *Page, oldID, newID pgno) {
	gn := grandparent.btreeNode()
	if gn.ptrLeft == oldID {
		gn.ptrLeft = newID
	} else {
		for _, e := range gn.entries {
			if e.child() == oldID {
				e.rid = uint64(newID)
				break
			}
		}
	}
	grandparent.setDirty()
}

// btreeReadKey copies a key entry's bytes into key, allocator-owned.
func btreeReadKey(db *Db, entry *keyEntry, key *Key) error {
	data, err := db.env.alloc.dup(entry.data)
	if err != nil {
		return err
	}
	key.Data = data
	return nil
}

// copyKeyIntToPub snapshots a key entry into a heap-owned Key, used for
// uncoupled cursors.
func copyKeyIntToPub(db *Db, entry *keyEntry) (*Key, error) {
	data, err := db.env.alloc.dup(entry.data)
	if err != nil {
		return nil, err
	}
	return &Key{Data: data}, nil
}
