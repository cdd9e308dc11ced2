package burrow

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// Record size classes: empty, tiny (packed into the rid), word-sized, and
// out-of-line blob.
func TestRecordSizeClasses(t *testing.T) {
	db := newTestDb(t)

	values := map[string][]byte{
		"empty": nil,
		"tiny":  []byte("abc"),
		"small": []byte("12345678"),
		"blob":  bytes.Repeat([]byte("b"), 100),
	}
	for k, v := range values {
		insert(t, db, k, string(v))
	}

	c := db.NewCursor(nil)
	defer c.Close()

	for k, v := range values {
		require.NoError(t, c.Find(&Key{Data: []byte(k)}, nil, 0))
		size, err := c.RecordSize()
		require.NoError(t, err)
		require.Equal(t, uint64(len(v)), size, "key %q", k)
	}
}

// The size packing flags match the size class.
func TestRecordStorageFlags(t *testing.T) {
	db := newTestDb(t)
	insert(t, db, "empty", "")
	insert(t, db, "tiny", "abcdefg")
	insert(t, db, "small", "abcdefgh")
	insert(t, db, "blob", "abcdefghi")

	c := db.NewCursor(nil)
	defer c.Close()

	check := func(key string, want KeyFlags) {
		require.NoError(t, c.Find(&Key{Data: []byte(key)}, nil, 0))
		entry := c.btc.page.btreeNode().key(c.btc.slot)
		require.Equal(t, want, entry.keyFlags()&keyBlobSizeMask, "key %q", key)
	}
	check("empty", KeyBlobSizeEmpty)
	check("tiny", KeyBlobSizeTiny)
	check("small", KeyBlobSizeSmall)
	check("blob", KeyFlags(0))
}

// Round-trip through every size class.
func TestRecordReadBack(t *testing.T) {
	db := newTestDb(t)

	values := [][]byte{
		{},
		[]byte("x"),
		[]byte("1234567"),
		[]byte("12345678"),
		[]byte("123456789"),
		bytes.Repeat([]byte("z"), 4096),
	}
	for i, v := range values {
		insert(t, db, fmt.Sprintf("key%d", i), string(v))
	}

	c := db.NewCursor(nil)
	defer c.Close()
	for i, v := range values {
		var record Record
		require.NoError(t, c.Find(&Key{Data: []byte(fmt.Sprintf("key%d", i))}, &record, 0))
		require.Equal(t, v, append([]byte{}, record.Data...), "value %d", i)
	}
}

// The heap mapping grows as blobs accumulate.
func TestBlobHeapGrowth(t *testing.T) {
	db := newTestDb(t)

	const n = 64
	for i := 0; i < n; i++ {
		insert(t, db, fmt.Sprintf("key%03d", i), string(bytes.Repeat([]byte{byte('a' + i%26)}, 512)))
	}

	c := db.NewCursor(nil)
	defer c.Close()
	for i := 0; i < n; i++ {
		var record Record
		require.NoError(t, c.Find(&Key{Data: []byte(fmt.Sprintf("key%03d", i))}, &record, 0))
		require.Len(t, record.Data, 512)
		require.Equal(t, byte('a'+i%26), record.Data[0])
	}
}

func TestDuplicateCountWithoutChain(t *testing.T) {
	db := newTestDb(t)
	insert(t, db, "k", "v")

	c := db.NewCursor(nil)
	defer c.Close()
	require.NoError(t, c.Move(nil, nil, CursorFirst))

	count, err := c.DuplicateCount()
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestDuplicateTable(t *testing.T) {
	db := newTestDb(t)
	insert(t, db, "plain", "v")
	insertDup(t, db, "dup", "x")
	insertDup(t, db, "dup", "y")
	insertDup(t, db, "dup", "z")

	c := db.NewCursor(nil)
	defer c.Close()

	// a key without duplicates synthesizes a single-entry table from its
	// own flags and rid
	require.NoError(t, c.Find(&Key{Data: []byte("plain")}, nil, 0))
	table, needsFree, err := c.DuplicateTable()
	require.NoError(t, err)
	require.True(t, needsFree)
	require.Equal(t, 1, table.Count())
	entry := c.btc.page.btreeNode().key(c.btc.slot)
	require.Equal(t, entry.keyFlags(), table.entry(0).entryFlags())
	require.Equal(t, entry.ptr(), table.entry(0).entryRid())

	require.NoError(t, c.Find(&Key{Data: []byte("dup")}, nil, 0))
	table, _, err = c.DuplicateTable()
	require.NoError(t, err)
	require.Equal(t, 3, table.Count())
}

// Duplicate chains mix size classes; RecordSize follows the cursor's
// duplicate index.
func TestRecordSizePerDuplicate(t *testing.T) {
	db := newTestDb(t)
	insertDup(t, db, "k", "")
	insertDup(t, db, "k", "abc")
	insertDup(t, db, "k", string(bytes.Repeat([]byte("x"), 64)))

	c := db.NewCursor(nil)
	defer c.Close()

	wantSizes := []uint64{0, 3, 64}
	require.NoError(t, c.Move(nil, nil, CursorFirst))
	for i, want := range wantSizes {
		size, err := c.RecordSize()
		require.NoError(t, err)
		require.Equal(t, want, size, "duplicate %d", i)
		if i < len(wantSizes)-1 {
			require.NoError(t, c.Move(nil, nil, CursorNext))
		}
	}
}

func TestInlineRecordPacking(t *testing.T) {
	data := []byte("abc")
	rid := packTinyRecord(data)
	require.Equal(t, uint64(3), rid>>56)
	require.Equal(t, data, unpackInlineRecord(KeyBlobSizeTiny, rid))

	word := []byte("12345678")
	rid = packSmallRecord(word)
	require.Equal(t, word, unpackInlineRecord(KeyBlobSizeSmall, rid))
}
