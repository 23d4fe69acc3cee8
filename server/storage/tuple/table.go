package tuple

import (
	"io"
	"sync"

	"github.com/spf13/afero"

	"github.com/imoocdb/imoocdb/server/common"
	"github.com/imoocdb/imoocdb/server/dberrors"
	"github.com/imoocdb/imoocdb/server/metrics"
	"github.com/imoocdb/imoocdb/server/storage/buffer"
	"github.com/imoocdb/imoocdb/server/storage/page"
)

// Table is a table file: an ordered sequence of fixed-size slotted pages
// (spec.md §3, "Table"), with a pinned LRU in front of it so repeatedly
// touched pages don't round-trip through the filesystem.
type Table struct {
	mu        sync.Mutex
	fs        afero.Fs
	path      string
	pageSize  int
	pageCount uint32
	cache     *buffer.Cache[uint32, *page.Page]
}

// OpenTable opens (creating if necessary) the table file at path.
func OpenTable(fs afero.Fs, path string, pageSize, cacheCapacity int) (*Table, error) {
	t := &Table{
		fs:       fs,
		path:     path,
		pageSize: pageSize,
		cache:    buffer.New[uint32, *page.Page](cacheCapacity),
	}

	exists, err := afero.Exists(fs, path)
	if err != nil {
		return nil, dberrors.PageError("checking table file %s: %v", path, err)
	}
	if !exists {
		f, err := fs.Create(path)
		if err != nil {
			return nil, dberrors.PageError("creating table file %s: %v", path, err)
		}
		f.Close()
		return t, nil
	}

	info, err := fs.Stat(path)
	if err != nil {
		return nil, dberrors.PageError("statting table file %s: %v", path, err)
	}
	t.pageCount = uint32(info.Size() / int64(pageSize))
	return t, nil
}

// loadPage returns pageID's page, pinned against eviction for the duration
// of the caller's use of it. The caller must call t.cache.Unpin(pageID) once
// it is done with the returned *page.Page (spec.md §4.3: pinning prevents
// eviction of in-use pages).
func (t *Table) loadPage(pageID uint32) (*page.Page, error) {
	if p, ok := t.cache.Get(pageID); ok {
		metrics.RecordBufferCacheHit()
		t.cache.Pin(pageID)
		return p, nil
	}
	metrics.RecordBufferCacheMiss()
	f, err := t.fs.Open(t.path)
	if err != nil {
		return nil, dberrors.PageError("opening table file %s: %v", t.path, err)
	}
	defer f.Close()

	buf := make([]byte, t.pageSize)
	if _, err := f.ReadAt(buf, int64(pageID)*int64(t.pageSize)); err != nil && err != io.EOF {
		return nil, dberrors.PageError("reading page %d of %s: %v", pageID, t.path, err)
	}
	p := page.Deserialize(buf)
	if err := t.cache.Put(pageID, p); err != nil {
		return nil, err
	}
	t.cache.Pin(pageID)
	return p, nil
}

func (t *Table) writePage(pageID uint32, p *page.Page) error {
	f, err := t.fs.OpenFile(t.path, writeFlags(), 0o644)
	if err != nil {
		return dberrors.PageError("opening table file %s for write: %v", t.path, err)
	}
	defer f.Close()

	if _, err := f.WriteAt(p.Serialize(), int64(pageID)*int64(t.pageSize)); err != nil {
		return dberrors.PageError("writing page %d of %s: %v", pageID, t.path, err)
	}
	if syncer, ok := f.(interface{ Sync() error }); ok {
		if err := syncer.Sync(); err != nil {
			return dberrors.PageError("syncing page %d of %s: %v", pageID, t.path, err)
		}
	}
	return t.cache.Put(pageID, p)
}

// allocatePage writes a fresh page and returns it pinned, same contract as
// loadPage: the caller must Unpin(pageID) once done with it.
func (t *Table) allocatePage() (uint32, *page.Page, error) {
	pageID := t.pageCount
	p := page.New(t.pageSize)
	if err := t.writePage(pageID, p); err != nil {
		return 0, nil, err
	}
	t.cache.Pin(pageID)
	t.pageCount++
	return pageID, p, nil
}

// Insert appends row's encoded payload to the table's last page, allocating
// a fresh page when the last one is full.
func (t *Table) Insert(payload []byte) (common.Location, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var pageID uint32
	var p *page.Page
	var err error
	if t.pageCount == 0 {
		pageID, p, err = t.allocatePage()
	} else {
		pageID = t.pageCount - 1
		p, err = t.loadPage(pageID)
	}
	if err != nil {
		return common.Location{}, err
	}

	slotID, err := p.Insert(payload)
	if err != nil {
		t.cache.Unpin(pageID)
		pageID, p, err = t.allocatePage()
		if err != nil {
			return common.Location{}, err
		}
		slotID, err = p.Insert(payload)
		if err != nil {
			t.cache.Unpin(pageID)
			return common.Location{}, err
		}
	}
	werr := t.writePage(pageID, p)
	t.cache.Unpin(pageID)
	if werr != nil {
		return common.Location{}, werr
	}
	return common.Location{PageID: pageID, SlotID: slotID}, nil
}

// Get returns the raw payload at loc, or nil if the slot is a tombstone.
func (t *Table) Get(loc common.Location) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, err := t.loadPage(loc.PageID)
	if err != nil {
		return nil, err
	}
	defer t.cache.Unpin(loc.PageID)
	return p.Select(loc.SlotID), nil
}

// Update overwrites loc with payload, returning the (possibly new) location.
func (t *Table) Update(loc common.Location, payload []byte) (common.Location, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, err := t.loadPage(loc.PageID)
	if err != nil {
		return common.Location{}, err
	}
	defer t.cache.Unpin(loc.PageID)

	newSlot, err := p.Update(loc.SlotID, payload)
	if err != nil {
		return common.Location{}, err
	}
	if err := t.writePage(loc.PageID, p); err != nil {
		return common.Location{}, err
	}
	return common.Location{PageID: loc.PageID, SlotID: newSlot}, nil
}

// Delete tombstones loc.
func (t *Table) Delete(loc common.Location) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, err := t.loadPage(loc.PageID)
	if err != nil {
		return err
	}
	defer t.cache.Unpin(loc.PageID)

	p.Delete(loc.SlotID)
	return t.writePage(loc.PageID, p)
}

// PageCount reports the number of pages currently in the table file.
func (t *Table) PageCount() uint32 { return t.pageCount }

// PageLSN returns the LSN currently stamped on pageID, used by redo replay
// to decide whether a record's effect is already durable.
func (t *Table) PageLSN(pageID uint32) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, err := t.loadPage(pageID)
	if err != nil {
		return 0, err
	}
	defer t.cache.Unpin(pageID)
	return p.LSN(), nil
}

// SetPageLSN stamps pageID with lsn and persists it -- called after every
// redo-logged mutation so later idempotence checks can skip already-applied
// records.
func (t *Table) SetPageLSN(pageID uint32, lsn uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, err := t.loadPage(pageID)
	if err != nil {
		return err
	}
	defer t.cache.Unpin(pageID)

	p.SetLSN(lsn)
	return t.writePage(pageID, p)
}

// ensurePage allocates pages until pageID exists. The pages it allocates
// aren't touched further here, so each is unpinned as soon as it's created.
func (t *Table) ensurePage(pageID uint32) error {
	for t.pageCount <= pageID {
		newID, _, err := t.allocatePage()
		if err != nil {
			return err
		}
		t.cache.Unpin(newID)
	}
	return nil
}

// PutAt writes payload directly at loc, allocating pages up to loc.PageID if
// necessary, and stamps the page with lsn. A zero lsn always writes (used by
// undo replay); a nonzero lsn is skipped if the page already carries an LSN
// at or past it, making redo replay idempotent. Used by crash recovery,
// which replays records against their originally recorded locations rather
// than re-deriving them through Insert/Update.
func (t *Table) PutAt(loc common.Location, payload []byte, lsn uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.ensurePage(loc.PageID); err != nil {
		return err
	}
	p, err := t.loadPage(loc.PageID)
	if err != nil {
		return err
	}
	defer t.cache.Unpin(loc.PageID)

	if lsn != 0 && p.LSN() >= lsn {
		return nil
	}
	if err := p.PutAt(loc.SlotID, payload); err != nil {
		return err
	}
	if lsn != 0 {
		p.SetLSN(lsn)
	}
	return t.writePage(loc.PageID, p)
}

// DeleteAt tombstones loc if its page exists and (for redo replay) isn't
// already past lsn. A zero lsn always applies (used by undo replay).
func (t *Table) DeleteAt(loc common.Location, lsn uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if loc.PageID >= t.pageCount {
		return nil
	}
	p, err := t.loadPage(loc.PageID)
	if err != nil {
		return err
	}
	defer t.cache.Unpin(loc.PageID)

	if lsn != 0 && p.LSN() >= lsn {
		return nil
	}
	p.Delete(loc.SlotID)
	if lsn != 0 {
		p.SetLSN(lsn)
	}
	return t.writePage(loc.PageID, p)
}

// Cursor walks every live (non-tombstoned) location in the table, in
// insertion order: page by page, slot by slot. It keeps its current page
// pinned against eviction until it moves on to the next one.
type Cursor struct {
	t        *Table
	pageID   uint32
	slotIdx  uint16
	curPage  *page.Page
	finished bool
}

// Cursor starts a fresh lazy, finite, non-restartable walk over the table.
func (t *Table) Cursor() *Cursor {
	return &Cursor{t: t}
}

// Next advances the cursor and returns the next live location and its
// payload, or ok=false once the table is exhausted.
func (c *Cursor) Next() (payload []byte, loc common.Location, ok bool, err error) {
	if c.finished {
		return nil, common.Location{}, false, nil
	}
	for {
		if c.curPage == nil {
			if c.pageID >= c.t.pageCount {
				c.finished = true
				return nil, common.Location{}, false, nil
			}
			c.curPage, err = c.t.loadPage(c.pageID)
			if err != nil {
				return nil, common.Location{}, false, err
			}
			c.slotIdx = 0
		}
		if int(c.slotIdx) >= c.curPage.SlotCount() {
			c.t.cache.Unpin(c.pageID)
			c.pageID++
			c.curPage = nil
			continue
		}
		slot := c.slotIdx
		c.slotIdx++
		data := c.curPage.Select(slot)
		if len(data) == 0 {
			continue
		}
		return data, common.Location{PageID: c.pageID, SlotID: slot}, true, nil
	}
}
