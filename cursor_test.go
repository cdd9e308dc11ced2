package burrow

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()
	env, err := NewEnv(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { env.Close() })
	return env
}

func newTestDb(t *testing.T, opts ...EnvOption) *Db {
	t.Helper()
	env := newTestEnv(t, opts...)
	db, err := env.CreateDb()
	require.NoError(t, err)
	return db
}

func insert(t *testing.T, db *Db, key, value string) {
	t.Helper()
	c := db.NewCursor(nil)
	defer c.Close()
	require.NoError(t, c.Insert(&Key{Data: []byte(key)}, &Record{Data: []byte(value)}, 0))
}

func insertDup(t *testing.T, db *Db, key, value string) {
	t.Helper()
	c := db.NewCursor(nil)
	defer c.Close()
	err := c.Insert(&Key{Data: []byte(key)}, &Record{Data: []byte(value)}, 0)
	if IsDuplicateKey(err) {
		err = c.Insert(&Key{Data: []byte(key)}, &Record{Data: []byte(value)}, Duplicate)
	}
	require.NoError(t, err)
}

func moveString(t *testing.T, c *Cursor, flags MoveFlags) (string, string, error) {
	t.Helper()
	var key Key
	var record Record
	err := c.Move(&key, &record, flags)
	if err != nil {
		return "", "", err
	}
	return string(key.Data), string(record.Data), nil
}

func requireAt(t *testing.T, c *Cursor, flags MoveFlags, wantKey, wantValue string) {
	t.Helper()
	k, v, err := moveString(t, c, flags)
	require.NoError(t, err)
	require.Equal(t, wantKey, k)
	require.Equal(t, wantValue, v)
}

// Ordered walk over three keys with no duplicates.
func TestCursorOrderedWalk(t *testing.T) {
	db := newTestDb(t)
	insert(t, db, "1", "a")
	insert(t, db, "2", "b")
	insert(t, db, "3", "c")

	c := db.NewCursor(nil)
	defer c.Close()

	requireAt(t, c, CursorFirst, "1", "a")
	requireAt(t, c, CursorNext, "2", "b")
	requireAt(t, c, CursorNext, "3", "c")

	_, _, err := moveString(t, c, CursorNext)
	require.True(t, IsKeyNotFound(err))

	requireAt(t, c, CursorPrevious, "3", "c")
	requireAt(t, c, CursorPrevious, "2", "b")
}

// Ordered walk across page boundaries: enough keys to force leaf splits.
func TestCursorWalkAcrossPages(t *testing.T) {
	db := newTestDb(t, WithMaxKeysPerPage(4))
	const n = 50
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

	// and back down again
	i = n - 1
	for err := c.Move(&key, &record, CursorLast); err == nil; err = c.Move(&key, &record, CursorPrevious) {
		require.Equal(t, fmt.Sprintf("key%04d", i), string(key.Data))
		i--
	}
	require.Equal(t, -1, i)
}

// Duplicate walk: one key with three values.
func TestCursorDuplicateWalk(t *testing.T) {
	db := newTestDb(t)
	insertDup(t, db, "5", "x")
	insertDup(t, db, "5", "y")
	insertDup(t, db, "5", "z")

	c := db.NewCursor(nil)
	defer c.Close()

	requireAt(t, c, CursorFirst, "5", "x")
	require.Equal(t, 0, c.btc.dupeIndex)
	requireAt(t, c, CursorNext, "5", "y")
	require.Equal(t, 1, c.btc.dupeIndex)
	requireAt(t, c, CursorNext, "5", "z")
	require.Equal(t, 2, c.btc.dupeIndex)

	_, _, err := moveString(t, c, CursorNext)
	require.True(t, IsKeyNotFound(err))

	// SkipDuplicates from the first duplicate: the only key in the tree
	requireAt(t, c, CursorFirst, "5", "x")
	_, _, err = moveString(t, c, CursorNext|SkipDuplicates)
	require.True(t, IsKeyNotFound(err))
}

// Last positions at the last duplicate; Previous underflows to the
// previous key instead of below duplicate 0.
func TestCursorDuplicateLastAndPrevious(t *testing.T) {
	db := newTestDb(t)
	insert(t, db, "1", "a")
	insertDup(t, db, "5", "x")
	insertDup(t, db, "5", "y")
	insertDup(t, db, "5", "z")

	c := db.NewCursor(nil)
	defer c.Close()

	requireAt(t, c, CursorLast, "5", "z")
	require.Equal(t, 2, c.btc.dupeIndex)

	requireAt(t, c, CursorPrevious, "5", "y")
	requireAt(t, c, CursorPrevious, "5", "x")

	// duplicate 0: crossing to the previous key, not underflowing
	requireAt(t, c, CursorPrevious, "1", "a")

	// and forward again lands on the first duplicate
	requireAt(t, c, CursorNext, "5", "x")

	// Last with SkipDuplicates stays at duplicate 0
	requireAt(t, c, CursorLast|SkipDuplicates, "5", "x")
	require.Equal(t, 0, c.btc.dupeIndex)
}

func TestCursorOnlyDuplicates(t *testing.T) {
	db := newTestDb(t)
	insertDup(t, db, "5", "x")
	insertDup(t, db, "5", "y")
	insert(t, db, "7", "q")

	c := db.NewCursor(nil)
	defer c.Close()

	requireAt(t, c, CursorFirst, "5", "x")
	requireAt(t, c, CursorNext|OnlyDuplicates, "5", "y")

	// past the last duplicate: no key crossing
	_, _, err := moveString(t, c, CursorNext|OnlyDuplicates)
	require.True(t, IsKeyNotFound(err))
	requireAt(t, c, 0, "5", "y")
}

func TestCursorFirstOnEmptyTree(t *testing.T) {
	db := newTestDb(t)

	c := db.NewCursor(nil)
	defer c.Close()

	var key Key
	err := c.Move(&key, nil, CursorFirst)
	require.True(t, IsKeyNotFound(err))
	require.True(t, c.IsNil())

	err = c.Move(nil, nil, CursorLast)
	require.True(t, IsKeyNotFound(err))
	require.True(t, c.IsNil())
}

// Next past the last key leaves the cursor coupled to the last position.
func TestCursorNextPastEndStaysPut(t *testing.T) {
	db := newTestDb(t)
	insert(t, db, "1", "a")
	insert(t, db, "2", "b")

	c := db.NewCursor(nil)
	defer c.Close()

	requireAt(t, c, CursorLast, "2", "b")
	_, _, err := moveString(t, c, CursorNext)
	require.True(t, IsKeyNotFound(err))
	require.True(t, c.btc.isCoupled())

	// reading the current position still works
	requireAt(t, c, 0, "2", "b")
}

// Move with no direction flag: nil cursor with no out-arguments is a
// no-op, with out-arguments it reports ErrCursorIsNil.
func TestCursorMoveNoFlags(t *testing.T) {
	db := newTestDb(t)
	insert(t, db, "1", "a")

	c := db.NewCursor(nil)
	defer c.Close()

	require.NoError(t, c.Move(nil, nil, 0))

	var key Key
	err := c.Move(&key, nil, 0)
	require.True(t, IsCursorNil(err))

	var record Record
	err = c.Move(nil, &record, 0)
	require.True(t, IsCursorNil(err))
}

// Uncouple then read: the cursor re-couples by key lookup and preserves
// its position, duplicate index included.
func TestCursorUncoupleRecouple(t *testing.T) {
	db := newTestDb(t)
	insert(t, db, "1", "a")
	insertDup(t, db, "5", "x")
	insertDup(t, db, "5", "y")
	insertDup(t, db, "5", "z")

	c := db.NewCursor(nil)
	defer c.Close()

	requireAt(t, c, CursorFirst, "1", "a")
	requireAt(t, c, CursorNext, "5", "x")
	requireAt(t, c, CursorNext, "5", "y")

	require.NoError(t, c.Uncouple())
	require.True(t, c.btc.isUncoupled())
	require.Equal(t, "5", string(c.btc.uncoupledKey.Data))
	require.Equal(t, 1, c.btc.dupeIndex)

	// read the current position: re-couples to duplicate 1
	requireAt(t, c, 0, "5", "y")
	require.True(t, c.btc.isCoupled())
	require.Equal(t, 1, c.btc.dupeIndex)
}

// Uncouple, evict the page, then step: the cursor re-couples by key
// lookup against the revived page.
func TestCursorRecoupleAcrossEviction(t *testing.T) {
	db := newTestDb(t)
	insert(t, db, "1", "a")
	insert(t, db, "2", "b")
	insert(t, db, "3", "c")

	c := db.NewCursor(nil)
	defer c.Close()

	require.NoError(t, c.Find(&Key{Data: []byte("2")}, nil, 0))
	page := c.btc.page
	require.NotNil(t, page)

	require.NoError(t, c.Uncouple())
	require.Equal(t, "2", string(c.btc.uncoupledKey.Data))

	require.NoError(t, db.env.pager.evictPage(page))

	requireAt(t, c, CursorNext, "3", "c")
}

func TestCursorUncoupleIdempotent(t *testing.T) {
	db := newTestDb(t)
	insert(t, db, "1", "a")

	c := db.NewCursor(nil)
	defer c.Close()

	require.NoError(t, c.Move(nil, nil, CursorFirst))
	require.NoError(t, c.Uncouple())
	key := c.btc.uncoupledKey
	require.NoError(t, c.Uncouple())
	require.Equal(t, key, c.btc.uncoupledKey)

	// uncoupling a nil cursor is a no-op too
	c2 := db.NewCursor(nil)
	defer c2.Close()
	require.NoError(t, c2.Uncouple())
	require.True(t, c2.IsNil())
}

func TestCursorCloseIdempotent(t *testing.T) {
	db := newTestDb(t)
	insert(t, db, "1", "a")

	c := db.NewCursor(nil)
	require.NoError(t, c.Move(nil, nil, CursorFirst))
	c.Close()
	require.True(t, c.IsNil())
	c.Close()
	require.True(t, c.IsNil())

	// set_to_nil; set_to_nil == set_to_nil
	c.btc.setToNil()
	c.btc.setToNil()
	require.True(t, c.IsNil())
}

// A coupled cursor is on its page's cursor list; an uncoupled or nil one
// never is.
func TestCursorListMembership(t *testing.T) {
	db := newTestDb(t)
	insert(t, db, "1", "a")

	c := db.NewCursor(nil)
	defer c.Close()

	require.NoError(t, c.Move(nil, nil, CursorFirst))
	page := c.btc.page
	require.True(t, pageListContains(page, c))

	require.NoError(t, c.Uncouple())
	require.False(t, pageListContains(page, c))

	require.NoError(t, c.Move(nil, nil, CursorFirst))
	require.True(t, pageListContains(c.btc.page, c))

	c.btc.setToNil()
	require.False(t, pageListContains(page, c))
}

func pageListContains(p *Page, c *Cursor) bool {
	for cur := p.getCursors(); cur != nil; cur = cur.nextInPage {
		if cur == c {
			return true
		}
	}
	return false
}

func TestCursorPointsTo(t *testing.T) {
	db := newTestDb(t)
	insert(t, db, "1", "a")
	insert(t, db, "2", "b")

	c := db.NewCursor(nil)
	defer c.Close()

	require.NoError(t, c.Find(&Key{Data: []byte("1")}, nil, 0))
	node := c.btc.page.btreeNode()
	first := node.key(0)
	second := node.key(1)

	ok, err := c.btc.pointsTo(first)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = c.btc.pointsTo(second)
	require.NoError(t, err)
	require.False(t, ok)

	// an uncoupled cursor couples first
	require.NoError(t, c.Uncouple())
	ok, err = c.btc.pointsTo(first)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, c.btc.isCoupled())
}

func TestCursorCoupleToOther(t *testing.T) {
	db := newTestDb(t)
	insert(t, db, "1", "a")
	insert(t, db, "2", "b")

	src := db.NewCursor(nil)
	defer src.Close()
	require.NoError(t, src.Find(&Key{Data: []byte("2")}, nil, 0))

	dest := db.NewCursor(nil)
	defer func() {
		// dest shares src's list membership; detach without touching
		// the list before closing
		dest.btc.state = cursorNil
		dest.Close()
	}()
	dest.btc.coupleToOther(&src.btc)

	require.True(t, dest.btc.isCoupled())
	require.Equal(t, src.btc.page, dest.btc.page)
	require.Equal(t, src.btc.slot, dest.btc.slot)
	// deliberately not on the page's cursor list
	require.False(t, pageListContains(src.btc.page, dest))
}

func TestCursorMoveWithoutBackend(t *testing.T) {
	env := newTestEnv(t)
	db := &Db{env: env}

	c := db.NewCursor(nil)
	defer c.Close()

	err := c.Move(nil, nil, CursorFirst)
	require.Equal(t, ErrNotInitialized, Code(err))
}

// The saved duplicate index survives a failed re-couple (the key was
// erased underneath the uncoupled cursor).
func TestCursorCoupleFailurePreservesDupeIndex(t *testing.T) {
	db := newTestDb(t)
	insertDup(t, db, "5", "x")
	insertDup(t, db, "5", "y")

	c := db.NewCursor(nil)
	defer c.Close()
	requireAt(t, c, CursorFirst, "5", "x")
	requireAt(t, c, CursorNext, "5", "y")
	require.NoError(t, c.Uncouple())

	// erase the key underneath the cursor
	eraser := db.NewCursor(nil)
	defer eraser.Close()
	require.NoError(t, eraser.Find(&Key{Data: []byte("5")}, nil, 0))
	require.NoError(t, eraser.Erase())
	require.NoError(t, eraser.Find(&Key{Data: []byte("5")}, nil, 0))
	require.NoError(t, eraser.Erase())

	var key Key
	err := c.Move(&key, nil, 0)
	require.True(t, IsKeyNotFound(err))
	require.Equal(t, 1, c.btc.dupeIndex)
}
