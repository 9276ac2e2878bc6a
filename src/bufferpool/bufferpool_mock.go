package bufferpool

import (
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/Blackdeer1524/PageDB/src/pkg/assert"
	"github.com/Blackdeer1524/PageDB/src/pkg/common"
	"github.com/Blackdeer1524/PageDB/src/storage/page"
)

// Mock is an in-memory BufferPool. Flushing copies page images into a
// separate "disk" map so tests can simulate writes lost in a crash.
type Mock struct {
	mu sync.Mutex

	pages     map[common.PageIdentity]*page.Page
	disk      map[common.PageIdentity][]byte
	isDirty   map[common.PageIdentity]struct{}
	pinCounts map[common.PageIdentity]int
}

var _ BufferPool = &Mock{}

func NewMock() *Mock {
	return &Mock{
		pages:     make(map[common.PageIdentity]*page.Page),
		disk:      make(map[common.PageIdentity][]byte),
		isDirty:   make(map[common.PageIdentity]struct{}),
		pinCounts: make(map[common.PageIdentity]int),
	}
}

func (b *Mock) GetPage(pageID common.PageIdentity) (*page.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.load(pageID)
	if !ok {
		p = page.New()
		b.pages[pageID] = p
	}

	b.pinCounts[pageID]++
	return p, nil
}

func (b *Mock) GetPageNoCreate(pageID common.PageIdentity) (*page.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.load(pageID)
	if !ok {
		return nil, ErrNoSuchPage
	}

	b.pinCounts[pageID]++
	return p, nil
}

func (b *Mock) load(pageID common.PageIdentity) (*page.Page, bool) {
	if p, ok := b.pages[pageID]; ok {
		return p, true
	}

	img, ok := b.disk[pageID]
	if !ok {
		return nil, false
	}

	p := page.New()
	p.SetData(img)
	b.pages[pageID] = p
	return p, true
}

func (b *Mock) Unpin(pageID common.PageIdentity) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pinCount, ok := b.pinCounts[pageID]
	assert.Assert(ok, "page %v not found in pin counts", pageID)
	assert.Assert(pinCount > 0, "page %v has already been unpinned", pageID)

	b.pinCounts[pageID] = pinCount - 1
}

func (b *Mock) MarkDirty(pageID common.PageIdentity) {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.pages[pageID]
	assert.Assert(ok, "marking a page that was never fetched: %v", pageID)
	b.isDirty[pageID] = struct{}{}
}

func (b *Mock) FlushPage(pageID common.PageIdentity) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.flush(pageID)
}

func (b *Mock) flush(pageID common.PageIdentity) error {
	p, ok := b.pages[pageID]
	if !ok {
		return fmt.Errorf("no such page: %v", pageID)
	}

	if _, dirty := b.isDirty[pageID]; !dirty {
		return nil
	}

	b.disk[pageID] = p.Image()
	delete(b.isDirty, pageID)
	return nil
}

func (b *Mock) FlushAllPages() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for pageID := range maps.Clone(b.isDirty) {
		if err := b.flush(pageID); err != nil {
			return err
		}
	}

	return nil
}

// Crash drops every page that is not on "disk", along with unflushed
// modifications. Pin counts must be zero.
func (b *Mock) Crash() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for pageID, cnt := range b.pinCounts {
		assert.Assert(cnt == 0, "crash with pinned page %v", pageID)
	}

	b.pages = make(map[common.PageIdentity]*page.Page)
	b.isDirty = make(map[common.PageIdentity]struct{})
}

// Lose throws away a single cached page without writing it.
func (b *Mock) Lose(pageID common.PageIdentity) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.pages, pageID)
	delete(b.isDirty, pageID)
	delete(b.disk, pageID)
}

func (b *Mock) IsDirty(pageID common.PageIdentity) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.isDirty[pageID]
	return ok
}

func (b *Mock) EnsureAllPagesUnpinnedAndUnlocked() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var err error
	for pageID, pinCount := range b.pinCounts {
		if pinCount != 0 {
			err = errors.Join(err, fmt.Errorf("page %v is still pinned (%d)", pageID, pinCount))
			continue
		}

		p, ok := b.pages[pageID]
		if !ok {
			continue
		}

		if !p.TryLock() {
			err = errors.Join(err, fmt.Errorf("page %v is still locked", pageID))
			continue
		}
		p.Unlock()
	}

	return err
}
