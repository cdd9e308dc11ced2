package burrow

// dupeEntry is one slot of a duplicate table: the record's storage flags
// plus its rid. The cursor keeps a one-entry cache of the most recently
// fetched dupeEntry; the cache is cleared on every traversal or mutation.
type dupeEntry struct {
	flags KeyFlags
	rid   uint64
}

// entryFlags returns the entry's storage flags.
func (e *dupeEntry) entryFlags() KeyFlags {
	return e.flags
}

// entryRid returns the entry's record id.
func (e *dupeEntry) entryRid() uint64 {
	return e.rid
}

// clear zeroes the entry. An all-zero entry doubles as "cache empty".
func (e *dupeEntry) clear() {
	*e = dupeEntry{}
}

// empty reports whether the entry is zero.
func (e *dupeEntry) empty() bool {
	return e.flags == 0 && e.rid == 0
}

// DupeTable is the ordered list of duplicate entries for a key. The
// authoritative copy lives in the blob store; cursors address it by the key
// entry's rid and their duplicate index.
type DupeTable struct {
	entries []dupeEntry
}

// Count returns the number of duplicate entries.
func (t *DupeTable) Count() int {
	return len(t.entries)
}

// entry returns the duplicate entry at idx.
func (t *DupeTable) entry(idx int) *dupeEntry {
	return &t.entries[idx]
}

// clone deep-copies the table.
func (t *DupeTable) clone() *DupeTable {
	c := &DupeTable{entries: make([]dupeEntry, len(t.entries))}
	copy(c.entries, t.entries)
	return c
}
