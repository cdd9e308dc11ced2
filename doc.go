// Package burrow implements the B-tree cursor subsystem of an embeddable
// ordered key-value storage engine.
//
// A cursor is the positional handle by which clients read, insert, update
// and erase records in a B-tree whose pages are managed by a buffer pool.
// Cursors exist in one of three states:
//
//   - coupled: the cursor holds a direct (page, slot) reference into a
//     resident page and is a member of that page's cursor list
//   - uncoupled: the cursor holds a heap copy of the last known key and is
//     detached from all pages
//   - nil: the cursor has no position
//
// Before the page manager modifies a page it bulk-uncouples every affected
// cursor; the first traversal or read on such a cursor transparently
// re-couples it by key lookup. Keys with multiple values store all of their
// values out of line in a duplicate table; the cursor steps through them via
// its duplicate index.
//
// Basic usage:
//
//	env, err := burrow.NewEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer env.Close()
//
//	db, err := env.CreateDb()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	cursor := db.NewCursor(nil)
//	defer cursor.Close()
//
//	err = cursor.Insert(&burrow.Key{Data: []byte("key")},
//	    &burrow.Record{Data: []byte("value")}, 0)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	var key burrow.Key
//	var record burrow.Record
//	for err = cursor.Move(&key, &record, burrow.CursorFirst); err == nil;
//	    err = cursor.Move(&key, &record, burrow.CursorNext) {
//	    fmt.Printf("%s = %s\n", key.Data, record.Data)
//	}
//
// The package also hosts the registry for user-defined predicate and
// aggregate plugins loaded from shared objects; see PluginRegistry.
package burrow
