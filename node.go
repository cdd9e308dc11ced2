package burrow

import (
	"bytes"
	"sort"
)

// keyEntry is a key slot inside a node. For leaf entries rid addresses the
// record: a packed inline payload (tiny/small/empty, per the KeyFlags) or a
// blob heap offset, or — when KeyHasDuplicates is set — the duplicate
// table. For branch entries rid is the child page number.
type keyEntry struct {
	flags KeyFlags
	data  []byte
	rid   uint64
}

// keyFlags returns the entry's storage flags.
func (e *keyEntry) keyFlags() KeyFlags {
	return e.flags
}

// ptr returns the entry's record id.
func (e *keyEntry) ptr() uint64 {
	return e.rid
}

// child returns the child page number of a branch entry.
func (e *keyEntry) child() pgno {
	return pgno(e.rid)
}

// node is the in-memory form of a B-tree page: an ordered array of key
// entries, sibling links for leaves, and the leftmost-child pointer for
// branch nodes. The on-disk encoding is owned by the page manager and out
// of scope here.
type node struct {
	leaf    bool
	left    pgno // left sibling leaf, 0 if none
	right   pgno // right sibling leaf, 0 if none
	ptrLeft pgno // leftmost child, branch nodes only
	entries []*keyEntry
}

// count returns the number of key entries.
func (n *node) count() int {
	return len(n.entries)
}

// isLeaf reports whether this node is a leaf.
func (n *node) isLeaf() bool {
	return n.leaf
}

// key returns the entry at the given slot.
func (n *node) key(slot int) *keyEntry {
	assertf(slot >= 0 && slot < len(n.entries), "slot %d out of range (count=%d)", slot, len(n.entries))
	return n.entries[slot]
}

// search locates key in the node's ordered entry array. Returns the slot
// holding the key and found=true, or the slot where the key would be
// inserted and found=false.
func (n *node) search(key []byte) (slot int, found bool) {
	slot = sort.Search(len(n.entries), func(i int) bool {
		return bytes.Compare(n.entries[i].data, key) >= 0
	})
	found = slot < len(n.entries) && bytes.Equal(n.entries[slot].data, key)
	return slot, found
}

// childFor returns the child page covering key: ptrLeft when key sorts
// before every separator, otherwise the child of the last separator <= key.
func (n *node) childFor(key []byte) pgno {
	assertf(!n.leaf, "childFor on a leaf node")
	idx := sort.Search(len(n.entries), func(i int) bool {
		return bytes.Compare(n.entries[i].data, key) > 0
	}) - 1
	if idx < 0 {
		return n.ptrLeft
	}
	return n.entries[idx].child()
}

// insertEntry places e at slot, shifting later entries right.
func (n *node) insertEntry(slot int, e *keyEntry) {
	n.entries = append(n.entries, nil)
	copy(n.entries[slot+1:], n.entries[slot:])
	n.entries[slot] = e
}

// removeEntry deletes the entry at slot, shifting later entries left.
func (n *node) removeEntry(slot int) {
	copy(n.entries[slot:], n.entries[slot+1:])
	n.entries[len(n.entries)-1] = nil
	n.entries = n.entries[:len(n.entries)-1]
}
