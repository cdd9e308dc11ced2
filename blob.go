package burrow

import (
	"encoding/binary"
	"os"
	"sync"

	"github.com/burrowdb/burrow/mmap"
)

// Blob heap layout: a 16-byte file header, then length-prefixed blobs. A
// blob's rid is the file offset of its payload. Writes append through the
// file descriptor; reads go through a read-only mapping that is grown
// lazily. The heap is append-only; space for erased records is never
// reclaimed.
const (
	heapHeaderSize = 16
	blobHeaderSize = 8

	// wordSize is the machine-word record size used by the small-record
	// packing.
	wordSize = 8
)

var heapMagic = [8]byte{'b', 'u', 'r', 'r', 'o', 'w', 'h', '1'}

// blobStore owns record payloads and duplicate tables. Records small
// enough are never written here: empty records set KeyBlobSizeEmpty, tiny
// records pack into the rid with the length in its high byte, word-sized
// records fill the rid exactly.
type blobStore struct {
	env *Env

	mu   sync.Mutex
	f    *os.File
	path string
	temp bool
	m    *mmap.Map
	size int64

	dupesMu   sync.Mutex
	dupes     map[uint64]*DupeTable
	nextTable uint64
}

func openBlobStore(env *Env, path string) (*blobStore, error) {
	bs := &blobStore{
		env:   env,
		dupes: make(map[uint64]*DupeTable),
	}
	var err error
	if path == "" {
		bs.f, err = os.CreateTemp("", "burrow-heap-*")
		bs.temp = true
	} else {
		bs.f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
		bs.path = path
	}
	if err != nil {
		return nil, WrapError(ErrIO, err)
	}

	fi, err := bs.f.Stat()
	if err != nil {
		bs.f.Close()
		return nil, WrapError(ErrIO, err)
	}
	if fi.Size() < heapHeaderSize {
		var hdr [heapHeaderSize]byte
		copy(hdr[:], heapMagic[:])
		if _, err := bs.f.WriteAt(hdr[:], 0); err != nil {
			bs.f.Close()
			return nil, WrapError(ErrIO, err)
		}
		bs.size = heapHeaderSize
	} else {
		bs.size = fi.Size()
	}
	return bs, nil
}

func (bs *blobStore) close() error {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	if bs.m != nil {
		bs.m.Close()
		bs.m = nil
	}
	if bs.f == nil {
		return nil
	}
	err := bs.f.Close()
	if bs.temp {
		os.Remove(bs.f.Name())
	}
	bs.f = nil
	if err != nil {
		return WrapError(ErrIO, err)
	}
	return nil
}

// allocBlob appends data to the heap and returns its rid.
func (bs *blobStore) allocBlob(data []byte) (uint64, error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	if bs.f == nil {
		return 0, NewError(ErrNotInitialized)
	}
	off := bs.size
	var hdr [blobHeaderSize]byte
	binary.LittleEndian.PutUint64(hdr[:], uint64(len(data)))
	if _, err := bs.f.WriteAt(hdr[:], off); err != nil {
		return 0, WrapError(ErrIO, err)
	}
	if _, err := bs.f.WriteAt(data, off+blobHeaderSize); err != nil {
		return 0, WrapError(ErrIO, err)
	}
	bs.size = off + blobHeaderSize + int64(len(data))
	return uint64(off) + blobHeaderSize, nil
}

// ensureMapped makes the read mapping cover the whole heap. Called with
// bs.mu held.
func (bs *blobStore) ensureMapped() error {
	if bs.size <= heapHeaderSize {
		return NewError(ErrBlobNotFound)
	}
	if bs.m == nil {
		m, err := mmap.New(int(bs.f.Fd()), int(bs.size))
		if err != nil {
			return WrapError(ErrIO, err)
		}
		bs.m = m
		return nil
	}
	if bs.m.Size() < bs.size {
		if err := bs.m.Remap(bs.size); err != nil {
			return WrapError(ErrIO, err)
		}
	}
	return nil
}

// readBlob returns a copy of the blob at rid in an allocator-owned buffer.
func (bs *blobStore) readBlob(rid uint64) ([]byte, error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	n, off, err := bs.blobBounds(rid)
	if err != nil {
		return nil, err
	}
	return bs.env.alloc.dup(bs.m.Data()[off : off+n])
}

// getDatasize returns the stored size of the blob at rid.
func (bs *blobStore) getDatasize(rid uint64) (uint64, error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	n, _, err := bs.blobBounds(rid)
	if err != nil {
		return 0, err
	}
	return uint64(n), nil
}

// blobBounds validates rid and returns the payload length and offset.
// Called with bs.mu held.
func (bs *blobStore) blobBounds(rid uint64) (n int64, off int64, err error) {
	if rid < heapHeaderSize+blobHeaderSize || int64(rid) > bs.size {
		return 0, 0, NewError(ErrBlobNotFound)
	}
	if err := bs.ensureMapped(); err != nil {
		return 0, 0, err
	}
	off = int64(rid)
	n = int64(binary.LittleEndian.Uint64(bs.m.Data()[off-blobHeaderSize : off]))
	if off+n > bs.size {
		return 0, 0, NewError(ErrBlobNotFound)
	}
	return n, off, nil
}

// storeRecord stores a record and returns the storage flags plus rid to
// put on the owning key entry or duplicate entry.
func (bs *blobStore) storeRecord(record *Record) (KeyFlags, uint64, error) {
	switch n := len(record.Data); {
	case n == 0:
		return KeyBlobSizeEmpty, 0, nil
	case n < wordSize:
		return KeyBlobSizeTiny, packTinyRecord(record.Data), nil
	case n == wordSize:
		return KeyBlobSizeSmall, packSmallRecord(record.Data), nil
	default:
		rid, err := bs.allocBlob(record.Data)
		return 0, rid, err
	}
}

// packTinyRecord packs up to 7 payload bytes into a rid, length in the
// high byte.
func packTinyRecord(data []byte) uint64 {
	var buf [8]byte
	copy(buf[:7], data)
	buf[7] = byte(len(data))
	return binary.LittleEndian.Uint64(buf[:])
}

// packSmallRecord packs exactly one machine word into a rid.
func packSmallRecord(data []byte) uint64 {
	return binary.LittleEndian.Uint64(data)
}

// unpackInlineRecord recovers an inline payload from a rid.
func unpackInlineRecord(flags KeyFlags, rid uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], rid)
	if flags&KeyBlobSizeTiny != 0 {
		return buf[:buf[7]]
	}
	return buf[:]
}

// keySetRecord updates the record addressed by a key entry (or, when the
// key has duplicates, by the duplicate at dupID). Mirrors the page
// manager's record-update contract: the size-packing flags are recomputed,
// the rest of the entry flags survive.
func keySetRecord(db *Db, entry *keyEntry, record *Record, dupID int, flags InsertFlags) error {
	bs := db.env.blobs
	newFlags, rid, err := bs.storeRecord(record)
	if err != nil {
		return err
	}
	if entry.flags&KeyHasDuplicates != 0 {
		return bs.duplicateSet(entry.rid, dupID, dupeEntry{flags: newFlags, rid: rid})
	}
	entry.flags = (entry.flags &^ keyBlobSizeMask) | newFlags
	entry.rid = rid
	return nil
}

// btreeReadRecord materializes record.Data from the record's internal
// flags and rid, consulting the heap only for out-of-line blobs. When the
// flags came from a duplicated key entry, the rid addresses the duplicate
// table and the record is its first entry.
func btreeReadRecord(db *Db, record *Record) error {
	if record.intFlags&KeyHasDuplicates != 0 {
		var e dupeEntry
		if err := db.env.blobs.duplicateGet(record.rid, 0, &e); err != nil {
			return err
		}
		record.intFlags = e.entryFlags()
		record.rid = e.entryRid()
	}
	switch {
	case record.intFlags&KeyBlobSizeEmpty != 0:
		record.Data = nil
		return nil
	case record.intFlags&(KeyBlobSizeTiny|KeyBlobSizeSmall) != 0:
		data, err := db.env.alloc.dup(unpackInlineRecord(record.intFlags, record.rid))
		if err != nil {
			return err
		}
		record.Data = data
		return nil
	default:
		data, err := db.env.blobs.readBlob(record.rid)
		if err != nil {
			return err
		}
		record.Data = data
		return nil
	}
}

// Duplicate tables. Table rids come from their own counter; the
// KeyHasDuplicates flag on the owning entry decides how a rid is
// interpreted, so the rid spaces may overlap.

// duplicateGet fetches the duplicate entry at idx. An index past the end
// of the chain reports ErrKeyNotFound; traversal treats that as the signal
// to step across keys.
func (bs *blobStore) duplicateGet(tableRid uint64, idx int, out *dupeEntry) error {
	bs.dupesMu.Lock()
	defer bs.dupesMu.Unlock()
	t, ok := bs.dupes[tableRid]
	if !ok {
		return NewError(ErrBlobNotFound)
	}
	if idx < 0 || idx >= t.Count() {
		return NewError(ErrKeyNotFound)
	}
	*out = *t.entry(idx)
	return nil
}

// duplicateGetCount returns the number of entries in the chain. cache, if
// non-nil, receives the last entry.
func (bs *blobStore) duplicateGetCount(tableRid uint64, cache *dupeEntry) (int, error) {
	bs.dupesMu.Lock()
	defer bs.dupesMu.Unlock()
	t, ok := bs.dupes[tableRid]
	if !ok {
		return 0, NewError(ErrBlobNotFound)
	}
	if cache != nil && t.Count() > 0 {
		*cache = *t.entry(t.Count() - 1)
	}
	return t.Count(), nil
}

// duplicateGetTable returns the table. needsFree reports whether the
// caller owns the returned table; store-owned tables are returned as
// copies so callers cannot observe later mutations, hence always true
// here for symmetry with the synthesized single-entry tables.
func (bs *blobStore) duplicateGetTable(tableRid uint64) (*DupeTable, bool, error) {
	bs.dupesMu.Lock()
	defer bs.dupesMu.Unlock()
	t, ok := bs.dupes[tableRid]
	if !ok {
		return nil, false, NewError(ErrBlobNotFound)
	}
	return t.clone(), true, nil
}

// duplicateSet overwrites the entry at idx.
func (bs *blobStore) duplicateSet(tableRid uint64, idx int, e dupeEntry) error {
	bs.dupesMu.Lock()
	defer bs.dupesMu.Unlock()
	t, ok := bs.dupes[tableRid]
	if !ok {
		return NewError(ErrBlobNotFound)
	}
	if idx < 0 || idx >= t.Count() {
		return NewError(ErrKeyNotFound)
	}
	*t.entry(idx) = e
	return nil
}

// duplicateAppend appends an entry to the chain, creating the table when
// tableRid is 0. Returns the table rid and the new entry's index.
func (bs *blobStore) duplicateAppend(tableRid uint64, e dupeEntry) (uint64, int, error) {
	bs.dupesMu.Lock()
	defer bs.dupesMu.Unlock()
	var t *DupeTable
	if tableRid == 0 {
		bs.nextTable++
		tableRid = bs.nextTable
		t = &DupeTable{}
		bs.dupes[tableRid] = t
	} else {
		var ok bool
		t, ok = bs.dupes[tableRid]
		if !ok {
			return 0, 0, NewError(ErrBlobNotFound)
		}
	}
	t.entries = append(t.entries, e)
	return tableRid, t.Count() - 1, nil
}

// duplicateErase removes the entry at idx and returns the remaining
// count. An emptied table is dropped.
func (bs *blobStore) duplicateErase(tableRid uint64, idx int) (int, error) {
	bs.dupesMu.Lock()
	defer bs.dupesMu.Unlock()
	t, ok := bs.dupes[tableRid]
	if !ok {
		return 0, NewError(ErrBlobNotFound)
	}
	if idx < 0 || idx >= t.Count() {
		return 0, NewError(ErrKeyNotFound)
	}
	t.entries = append(t.entries[:idx], t.entries[idx+1:]...)
	if t.Count() == 0 {
		delete(bs.dupes, tableRid)
		return 0, nil
	}
	return t.Count(), nil
}
