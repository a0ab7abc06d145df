// Package bufpool implements the pinned-page buffer manager the index reads
// and writes pages through. Callers pin a page with ReadPage or AllocPage,
// mutate the decoded Data in place, and unpin exactly once with the dirty bit
// set if anything changed. Eviction only ever considers unpinned frames.
package bufpool

import (
	"context"
	"fmt"
	"sync"

	"github.com/RichardKnop/btreeindex/internal/pagefile"
	"github.com/RichardKnop/btreeindex/pkg/bitwise"
	"github.com/RichardKnop/btreeindex/pkg/lrucache"
)

// PageID re-exports the file-level page address type so callers need not
// import pagefile directly just to name a page.
type PageID = pagefile.PageID

// InvalidPageID re-exports the sentinel "no page" id.
const InvalidPageID = pagefile.InvalidPageID

// Page is a cached, decoded page. Data holds whatever the caller's
// Unmarshaler produced for this page (a meta, leaf or internal node); the
// pool itself never inspects it.
type Page struct {
	ID   PageID
	Data any
}

// Unmarshaler decodes a page's on-disk bytes into the value a Page will
// carry as Data.
type Unmarshaler func(id PageID, buf []byte) (any, error)

// Marshaler encodes a page's Data back into buf (exactly the pool's page
// size) for writing to disk.
type Marshaler func(id PageID, data any, buf []byte) error

// ErrNoFreeFrames is returned when every frame is pinned and a new page
// cannot be brought into memory.
var ErrNoFreeFrames = fmt.Errorf("bufpool: no unpinned frame available to evict")

type pinnedPage struct {
	page *Page
	pins int
}

// Pool is a fixed-capacity buffer pool over a single page file.
type Pool struct {
	file      *pagefile.File
	pageSize  int
	maxFrames int
	unmarshal Unmarshaler
	marshal   Marshaler

	mu      sync.Mutex
	pinned  map[PageID]*pinnedPage
	evictCk *lrucache.Cache[PageID]
	dirty   []uint64 // bit i set => slot i's page has unflushed changes
	slotOf  map[PageID]int
	nextSlt int
}

// New creates a buffer pool over file with room for at most maxFrames
// resident pages at once (pinned plus cached-unpinned).
func New(file *pagefile.File, pageSize, maxFrames int, unmarshal Unmarshaler, marshal Marshaler) *Pool {
	return &Pool{
		file:      file,
		pageSize:  pageSize,
		maxFrames: maxFrames,
		unmarshal: unmarshal,
		marshal:   marshal,
		pinned:    make(map[PageID]*pinnedPage),
		evictCk:   lrucache.New[PageID](maxFrames),
		slotOf:    make(map[PageID]int),
	}
}

// ReadPage pins and returns the page at id, loading it from disk if it is
// not already resident.
func (p *Pool) ReadPage(ctx context.Context, id PageID) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if pp, ok := p.pinned[id]; ok {
		pp.pins++
		return pp.page, nil
	}

	if v, ok := p.evictCk.Remove(id); ok {
		page := v.(*Page)
		p.pinned[id] = &pinnedPage{page: page, pins: 1}
		return page, nil
	}

	if err := p.ensureRoomLocked(); err != nil {
		return nil, err
	}

	buf := make([]byte, p.pageSize)
	if err := p.file.ReadPage(id, buf); err != nil {
		return nil, err
	}
	data, err := p.unmarshal(id, buf)
	if err != nil {
		return nil, fmt.Errorf("decode page %d: %w", id, err)
	}

	page := &Page{ID: id, Data: data}
	p.pinned[id] = &pinnedPage{page: page, pins: 1}
	return page, nil
}

// AllocPage allocates a new page in the underlying file, pins it and seeds
// its decoded contents with init.
func (p *Pool) AllocPage(ctx context.Context, init any) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureRoomLocked(); err != nil {
		return nil, err
	}

	id, err := p.file.AllocPage()
	if err != nil {
		return nil, err
	}

	page := &Page{ID: id, Data: init}
	p.pinned[id] = &pinnedPage{page: page, pins: 1}
	p.markDirtyPinned(id)
	return page, nil
}

// UnpinPage releases one pin on id. dirty marks whether Data changed since it
// was pinned; a page already marked dirty stays dirty until flushed.
func (p *Pool) UnpinPage(id PageID, dirty bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	pp, ok := p.pinned[id]
	if !ok {
		return fmt.Errorf("bufpool: unpin of page %d that is not pinned", id)
	}

	if dirty {
		p.markDirtyPinned(id)
	}

	pp.pins--
	if pp.pins > 0 {
		return nil
	}

	delete(p.pinned, id)
	p.evictCk.Put(id, pp.page, p.isDirtyPinned(id))
	return nil
}

// FlushFile writes every dirty resident page back to disk and syncs the
// file.
func (p *Pool) FlushFile(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for id, pp := range p.pinned {
		if err := p.flushIfDirtyLocked(id, pp.page); err != nil {
			return err
		}
	}

	// Drain cached-unpinned entries one at a time, flushing and re-inserting
	// them so recency order is preserved.
	var reinsert []*Page
	for {
		id, v, dirty, ok := p.evictCk.Evict()
		if !ok {
			break
		}
		page := v.(*Page)
		if dirty {
			if err := p.flushPage(id, page); err != nil {
				return err
			}
		}
		reinsert = append(reinsert, page)
	}
	for _, page := range reinsert {
		p.evictCk.Put(page.ID, page, false)
	}

	return p.file.Sync()
}

// TotalPages reports the number of pages allocated in the underlying file.
func (p *Pool) TotalPages() uint32 {
	return p.file.TotalPages()
}

func (p *Pool) ensureRoomLocked() error {
	for len(p.pinned)+p.evictCk.Len() >= p.maxFrames {
		id, v, dirty, ok := p.evictCk.Evict()
		if !ok {
			return ErrNoFreeFrames
		}
		if dirty {
			if err := p.flushPage(id, v.(*Page)); err != nil {
				return err
			}
		}
		p.clearDirtySlot(id)
	}
	return nil
}

func (p *Pool) flushIfDirtyLocked(id PageID, page *Page) error {
	if !p.isDirtyPinned(id) {
		return nil
	}
	return p.flushPage(id, page)
}

func (p *Pool) flushPage(id PageID, page *Page) error {
	buf := make([]byte, p.pageSize)
	if err := p.marshal(id, page.Data, buf); err != nil {
		return fmt.Errorf("encode page %d: %w", id, err)
	}
	if err := p.file.WritePage(id, buf); err != nil {
		return err
	}
	p.clearDirtySlot(id)
	return nil
}

// markDirtyPinned and isDirtyPinned track the dirty bit for pages that are
// currently pinned, using a packed bitmap slot per page id so the bit test
// is a couple of machine words regardless of how many frames are tracked.
func (p *Pool) markDirtyPinned(id PageID) {
	slot := p.slotFor(id)
	p.growDirty(slot)
	p.dirty[slot/64] = bitwise.Set(p.dirty[slot/64], slot%64)
}

func (p *Pool) isDirtyPinned(id PageID) bool {
	slot, ok := p.slotOf[id]
	if !ok || slot/64 >= len(p.dirty) {
		return false
	}
	return bitwise.IsSet(p.dirty[slot/64], slot%64)
}

func (p *Pool) clearDirtySlot(id PageID) {
	slot, ok := p.slotOf[id]
	if !ok || slot/64 >= len(p.dirty) {
		return
	}
	p.dirty[slot/64] = bitwise.Unset(p.dirty[slot/64], slot%64)
}

func (p *Pool) slotFor(id PageID) int {
	if slot, ok := p.slotOf[id]; ok {
		return slot
	}
	slot := p.nextSlt
	p.nextSlt++
	p.slotOf[id] = slot
	return slot
}

func (p *Pool) growDirty(slot int) {
	for slot/64 >= len(p.dirty) {
		p.dirty = append(p.dirty, 0)
	}
}
