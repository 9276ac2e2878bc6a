package bufferpool

import (
	"sync"

	"github.com/go-faster/errors"

	"github.com/Blackdeer1524/PageDB/src/pkg/assert"
	"github.com/Blackdeer1524/PageDB/src/pkg/common"
	"github.com/Blackdeer1524/PageDB/src/storage/disk"
	"github.com/Blackdeer1524/PageDB/src/storage/page"
)

const noFrame = ^uint64(0)

// ErrNoSuchPage is returned by GetPageNoCreate for pages that do not exist
// in the cache nor on disk.
var ErrNoSuchPage = disk.ErrNoSuchPage

var ErrNoFreeFrame = errors.New("all frames are pinned")

// Replacer manages what page is next for eviction from RAM to disk.
type Replacer interface {
	Pin(frameID uint64)
	Unpin(frameID uint64)
	ChooseVictim() (uint64, error)
	GetSize() uint64
}

type DiskManager interface {
	ReadPage(ident common.PageIdentity, dst disk.Page) error
	WritePage(src disk.Page, ident common.PageIdentity) error
}

type BufferPool interface {
	GetPage(common.PageIdentity) (*page.Page, error)
	GetPageNoCreate(common.PageIdentity) (*page.Page, error)
	Unpin(common.PageIdentity)
	MarkDirty(common.PageIdentity)
	FlushPage(common.PageIdentity) error
	FlushAllPages() error
}

type frame struct {
	page      *page.Page
	pinCount  int
	dirty     bool
	pageIdent common.PageIdentity
}

type Manager struct {
	mu sync.Mutex

	poolSize    uint64
	pageToFrame map[common.PageIdentity]uint64
	frames      []frame
	emptyFrames []uint64

	replacer    Replacer
	diskManager DiskManager
}

var _ BufferPool = &Manager{}

func New(poolSize uint64, replacer Replacer, diskManager DiskManager) (*Manager, error) {
	if poolSize == 0 {
		return nil, errors.New("pool size must be greater than zero")
	}

	emptyFrames := make([]uint64, poolSize)
	for i := range poolSize {
		emptyFrames[i] = i
	}

	return &Manager{
		poolSize:    poolSize,
		pageToFrame: make(map[common.PageIdentity]uint64),
		frames:      make([]frame, poolSize),
		emptyFrames: emptyFrames,
		replacer:    replacer,
		diskManager: diskManager,
	}, nil
}

func (m *Manager) GetPage(pIdent common.PageIdentity) (*page.Page, error) {
	return m.getPage(pIdent, true)
}

func (m *Manager) GetPageNoCreate(pIdent common.PageIdentity) (*page.Page, error) {
	return m.getPage(pIdent, false)
}

func (m *Manager) getPage(pIdent common.PageIdentity, create bool) (*page.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if frameID, ok := m.pageToFrame[pIdent]; ok {
		m.pin(frameID)
		return m.frames[frameID].page, nil
	}

	frameID, err := m.reserveFrame()
	if err != nil {
		return nil, err
	}

	p := page.New()
	err = m.diskManager.ReadPage(pIdent, p)
	if errors.Is(err, ErrNoSuchPage) && create {
		p = page.New()
	} else if err != nil {
		m.emptyFrames = append(m.emptyFrames, frameID)
		return nil, err
	}

	m.frames[frameID] = frame{
		page:      p,
		pinCount:  0,
		pageIdent: pIdent,
	}
	m.pageToFrame[pIdent] = frameID
	m.pin(frameID)

	return p, nil
}

// reserveFrame returns an unused frame, evicting an unpinned page when
// the pool is full.
func (m *Manager) reserveFrame() (uint64, error) {
	if len(m.emptyFrames) > 0 {
		id := m.emptyFrames[0]
		m.emptyFrames = m.emptyFrames[1:]
		return id, nil
	}

	victimFrameID, err := m.replacer.ChooseVictim()
	if err != nil {
		return noFrame, errors.Wrap(ErrNoFreeFrame, err.Error())
	}

	victim := &m.frames[victimFrameID]
	assert.Assert(victim.pinCount == 0, "replacer chose a pinned frame %d", victimFrameID)

	if victim.dirty {
		if err := m.diskManager.WritePage(victim.page, victim.pageIdent); err != nil {
			m.replacer.Unpin(victimFrameID)
			return noFrame, errors.Wrapf(err, "evict %v", victim.pageIdent)
		}
	}

	delete(m.pageToFrame, victim.pageIdent)
	*victim = frame{}

	return victimFrameID, nil
}

func (m *Manager) pin(frameID uint64) {
	m.frames[frameID].pinCount++
	m.replacer.Pin(frameID)
}

func (m *Manager) Unpin(pIdent common.PageIdentity) {
	m.mu.Lock()
	defer m.mu.Unlock()

	frameID, ok := m.pageToFrame[pIdent]
	assert.Assert(ok, "unpin of a page that is not cached: %v", pIdent)

	f := &m.frames[frameID]
	assert.Assert(f.pinCount > 0, "invalid pin count for %v", pIdent)

	f.pinCount--
	if f.pinCount == 0 {
		m.replacer.Unpin(frameID)
	}
}

func (m *Manager) MarkDirty(pIdent common.PageIdentity) {
	m.mu.Lock()
	defer m.mu.Unlock()

	frameID, ok := m.pageToFrame[pIdent]
	assert.Assert(ok, "no frame for page: %v", pIdent)
	m.frames[frameID].dirty = true
}

func (m *Manager) FlushPage(pIdent common.PageIdentity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	frameID, ok := m.pageToFrame[pIdent]
	if !ok {
		return errors.Errorf("no frame for such page: %v", pIdent)
	}

	return m.flushFrame(&m.frames[frameID])
}

func (m *Manager) flushFrame(f *frame) error {
	if !f.dirty {
		return nil
	}

	if err := m.diskManager.WritePage(f.page, f.pageIdent); err != nil {
		return errors.Wrapf(err, "failed to write page %v to disk", f.pageIdent)
	}

	f.dirty = false
	return nil
}

func (m *Manager) FlushAllPages() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, frameID := range m.pageToFrame {
		if err := m.flushFrame(&m.frames[frameID]); err != nil {
			return err
		}
	}

	return nil
}
