package burrow

import (
	"sync"
	"sync/atomic"

	"github.com/burrowdb/burrow/internal/pagemap"
)

// pgno is a page number (32-bit). 0 is never a valid page.
type pgno uint32

// Page is the handle for a resident B-tree page. Besides the node payload
// it carries the pin count that keeps the page resident, the dirty bit, and
// the intrusive list of cursors currently coupled to it.
//
// The cursor list is owned by the page: cursors link themselves in when
// they couple and out when they uncouple, under the page latch. Before the
// pager evicts a page or the backend shifts its slots, every affected
// cursor is bulk-uncoupled via UncoupleAllCursors.
type Page struct {
	id    pgno
	node  *node
	dirty bool
	pins  atomic.Int32

	latch   sync.Mutex
	cursors *Cursor // head of the per-page cursor list
}

// pageID returns the page number.
func (p *Page) pageID() pgno {
	return p.id
}

// btreeNode returns the node stored on this page.
func (p *Page) btreeNode() *node {
	return p.node
}

// setDirty marks the page as modified.
func (p *Page) setDirty() {
	p.dirty = true
}

// isDirty reports whether the page has been modified.
func (p *Page) isDirty() bool {
	return p.dirty
}

// pin bumps the reference count that keeps the page resident. Used as a
// scoped acquisition around read phases that may trigger further page
// fetches.
func (p *Page) pin() {
	p.pins.Add(1)
}

// unpin releases a pin.
func (p *Page) unpin() {
	if p.pins.Add(-1) < 0 {
		assertf(false, "page %d unpinned below zero", p.id)
	}
}

// pinned reports whether any pins are outstanding.
func (p *Page) pinned() bool {
	return p.pins.Load() > 0
}

// addCursor links a parent cursor into the page's cursor list.
func (p *Page) addCursor(c *Cursor) {
	p.latch.Lock()
	defer p.latch.Unlock()
	c.prevInPage = nil
	c.nextInPage = p.cursors
	if p.cursors != nil {
		p.cursors.prevInPage = c
	}
	p.cursors = c
}

// removeCursor unlinks a parent cursor from the page's cursor list.
func (p *Page) removeCursor(c *Cursor) {
	p.latch.Lock()
	defer p.latch.Unlock()
	if c.prevInPage != nil {
		c.prevInPage.nextInPage = c.nextInPage
	} else if p.cursors == c {
		p.cursors = c.nextInPage
	}
	if c.nextInPage != nil {
		c.nextInPage.prevInPage = c.prevInPage
	}
	c.nextInPage = nil
	c.prevInPage = nil
}

// getCursors returns the head of the cursor list.
func (p *Page) getCursors() *Cursor {
	p.latch.Lock()
	defer p.latch.Unlock()
	return p.cursors
}

// setCursors replaces the cursor list head.
func (p *Page) setCursors(head *Cursor) {
	p.latch.Lock()
	defer p.latch.Unlock()
	p.cursors = head
}

// pager manages page residency. Resident pages live in a fibonacci-hashed
// page table; evicted pages are parked in the cold store and revived on the
// next fetch. Eviction bulk-uncouples the page's cursors first, so no
// cursor ever observes a stale page handle.
type pager struct {
	env *Env

	mu       sync.Mutex
	table    pagemap.Map[*Page]
	cold     map[pgno]*node
	capacity int
	nextID   pgno
}

func newPager(env *Env, capacity int) *pager {
	if capacity < 1 {
		capacity = 1
	}
	return &pager{
		env:      env,
		cold:     make(map[pgno]*node),
		capacity: capacity,
	}
}

// allocPage creates a fresh resident page holding an empty node.
func (pg *pager) allocPage(leaf bool) *Page {
	pg.mu.Lock()
	defer pg.mu.Unlock()
	pg.makeRoom()
	pg.nextID++
	p := &Page{id: pg.nextID, node: &node{leaf: leaf}}
	pg.table.Set(uint32(p.id), p)
	return p
}

// fetchPage returns the page with the given number, reviving it from the
// cold store if it was evicted.
func (pg *pager) fetchPage(id pgno) (*Page, error) {
	pg.mu.Lock()
	defer pg.mu.Unlock()
	if p, ok := pg.table.Get(uint32(id)); ok {
		pg.env.metrics.PagesFetched.Inc()
		return p, nil
	}
	n, ok := pg.cold[id]
	if !ok {
		return nil, NewError(ErrPageNotFound)
	}
	pg.makeRoom()
	delete(pg.cold, id)
	p := &Page{id: id, node: n}
	pg.table.Set(uint32(id), p)
	pg.env.metrics.PagesFetched.Inc()
	return p, nil
}

// makeRoom evicts unpinned pages until the resident set is under capacity.
// Called with pg.mu held. Pinned pages are skipped; if a page's cursors
// cannot be uncoupled, the failure is logged and no further page is
// evicted. The resident set may then exceed capacity.
func (pg *pager) makeRoom() {
	for pg.table.Len() >= pg.capacity {
		var victim *Page
		pg.table.ForEach(func(_ uint32, p *Page) {
			if victim == nil && !p.pinned() {
				victim = p
			}
		})
		if victim == nil {
			return
		}
		if err := pg.evictLocked(victim); err != nil {
			pg.env.logger.Errorf("burrow: pager: cannot evict page %d: %v", victim.id, err)
			return
		}
	}
}

// evictLocked pushes a page out of the resident set. Called with pg.mu
// held.
func (pg *pager) evictLocked(p *Page) error {
	if err := UncoupleAllCursors(p, 0); err != nil {
		return err
	}
	pg.table.Delete(uint32(p.id))
	pg.cold[p.id] = p.node
	p.node = nil
	pg.env.metrics.PagesEvicted.Inc()
	return nil
}

// evictPage forces a page out of the resident set, uncoupling its cursors.
// The page must not be pinned.
func (pg *pager) evictPage(p *Page) error {
	pg.mu.Lock()
	defer pg.mu.Unlock()
	if p.pinned() {
		return NewError(ErrInvalidParameter)
	}
	if _, ok := pg.table.Get(uint32(p.id)); !ok {
		return nil
	}
	return pg.evictLocked(p)
}

// freePage drops a page entirely (resident or cold). Used by the backend
// when a leaf is unlinked from the tree.
func (pg *pager) freePage(p *Page) {
	pg.mu.Lock()
	defer pg.mu.Unlock()
	pg.table.Delete(uint32(p.id))
	delete(pg.cold, p.id)
}
