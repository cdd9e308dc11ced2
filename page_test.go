package burrow

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// Eviction uncouples the page's cursors before the page leaves the
// resident set; the next access revives the page.
func TestPagerEvictionUncouplesCursors(t *testing.T) {
	db := newTestDb(t)
	insert(t, db, "1", "a")
	insert(t, db, "2", "b")

	c := db.NewCursor(nil)
	defer c.Close()
	require.NoError(t, c.Find(&Key{Data: []byte("1")}, nil, 0))

	page := c.btc.page
	require.NoError(t, db.env.pager.evictPage(page))

	require.True(t, c.btc.isUncoupled())
	require.Equal(t, "1", string(c.btc.uncoupledKey.Data))
	require.Nil(t, page.btreeNode())

	// the evicted page revives on the next traversal
	requireAt(t, c, CursorNext, "2", "b")
}

func TestPagerEvictPinnedRejected(t *testing.T) {
	db := newTestDb(t)
	insert(t, db, "1", "a")

	c := db.NewCursor(nil)
	defer c.Close()
	require.NoError(t, c.Move(nil, nil, CursorFirst))

	page := c.btc.page
	page.pin()
	defer page.unpin()

	err := db.env.pager.evictPage(page)
	require.Equal(t, ErrInvalidParameter, Code(err))
	require.True(t, c.btc.isCoupled())
}

// A tiny cache forces constant eviction and revival; traversal and
// lookups stay correct throughout.
func TestPagerTinyCache(t *testing.T) {
	db := newTestDb(t, WithCacheSize(2), WithMaxKeysPerPage(4))
	const n = 40
	for i := 0; i < n; i++ {
		insert(t, db, fmt.Sprintf("key%04d", i), fmt.Sprintf("val%04d", i))
	}

	c := db.NewCursor(nil)
	defer c.Close()

	var key Key
	var record Record
	i := 0
	for err := c.Move(&key, &record, CursorFirst); err == nil; err = c.Move(&key, &record, CursorNext) {
		require.Equal(t, fmt.Sprintf("key%04d", i), string(key.Data))
		require.Equal(t, fmt.Sprintf("val%04d", i), string(record.Data))
		i++
	}
	require.Equal(t, n, i)

	for i := 0; i < n; i += 7 {
		require.NoError(t, c.Find(&Key{Data: []byte(fmt.Sprintf("key%04d", i))}, &record, 0))
		require.Equal(t, fmt.Sprintf("val%04d", i), string(record.Data))
	}
}

func TestPageCursorList(t *testing.T) {
	db := newTestDb(t)
	insert(t, db, "1", "a")

	page := func() *Page {
		c := db.NewCursor(nil)
		defer c.Close()
		require.NoError(t, c.Move(nil, nil, CursorFirst))
		return c.btc.page
	}()
	require.Nil(t, page.getCursors())

	cursors := make([]*Cursor, 3)
	for i := range cursors {
		cursors[i] = db.NewCursor(nil)
		require.NoError(t, cursors[i].Move(nil, nil, CursorFirst))
	}

	for _, c := range cursors {
		require.True(t, pageListContains(page, c))
	}

	// removing the middle cursor keeps the list intact
	cursors[1].Close()
	require.True(t, pageListContains(page, cursors[0]))
	require.False(t, pageListContains(page, cursors[1]))
	require.True(t, pageListContains(page, cursors[2]))

	cursors[0].Close()
	cursors[2].Close()
	require.Nil(t, page.getCursors())
}

func TestPageDirtyBit(t *testing.T) {
	db := newTestDb(t)
	insert(t, db, "1", "a")

	c := db.NewCursor(nil)
	defer c.Close()
	require.NoError(t, c.Move(nil, nil, CursorFirst))

	page := c.btc.page
	page.dirty = false
	require.NoError(t, c.Overwrite(&Record{Data: []byte("b")}))
	require.True(t, page.isDirty())
}

func TestPagePinCounts(t *testing.T) {
	db := newTestDb(t)
	insert(t, db, "1", "a")

	c := db.NewCursor(nil)
	defer c.Close()
	require.NoError(t, c.Move(nil, nil, CursorFirst))

	page := c.btc.page
	require.False(t, page.pinned())
	page.pin()
	page.pin()
	require.True(t, page.pinned())
	page.unpin()
	require.True(t, page.pinned())
	page.unpin()
	require.False(t, page.pinned())
}
