package recovery

import (
	"cmp"
	"slices"
	"sync"

	"github.com/go-faster/errors"

	"github.com/Blackdeer1524/PageDB/src/bufferpool"
	"github.com/Blackdeer1524/PageDB/src/pkg/common"
	"github.com/Blackdeer1524/PageDB/src/storage/page"
)

// FreeList owns the limbo set of one recovery pass: pages whose
// allocation was undone but which could not be linked onto their free
// list at that point. They are linked once, by Drain.
type FreeList struct {
	mu sync.Mutex
	// page -> metadata page holding its free list
	limbo map[common.PageIdentity]common.PageID
}

func NewFreeList() *FreeList {
	return &FreeList{
		limbo: make(map[common.PageIdentity]common.PageID),
	}
}

func (f *FreeList) Add(fileID common.FileID, metaPgno common.PageID, pgnos ...common.PageID) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, pgno := range pgnos {
		f.limbo[common.Ident(fileID, pgno)] = metaPgno
	}
}

func (f *FreeList) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.limbo)
}

func (f *FreeList) Contains(ident common.PageIdentity) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, ok := f.limbo[ident]
	return ok
}

type limboGroup struct {
	meta  common.PageIdentity
	pages []common.PageID
}

// Drain empties the limbo set and pushes its pages onto the free lists of
// their metadata pages. Pages already reachable from the list are left
// alone. The drained pages are returned in the order they were linked.
func (f *FreeList) Drain(pool bufferpool.BufferPool) ([]common.PageIdentity, error) {
	f.mu.Lock()
	groups := map[common.PageIdentity]*limboGroup{}
	for ident, metaPgno := range f.limbo {
		meta := common.Ident(ident.FileID, metaPgno)
		g, ok := groups[meta]
		if !ok {
			g = &limboGroup{meta: meta}
			groups[meta] = g
		}
		g.pages = append(g.pages, ident.PageID)
	}
	clear(f.limbo)
	f.mu.Unlock()

	ordered := make([]*limboGroup, 0, len(groups))
	for _, g := range groups {
		ordered = append(ordered, g)
	}
	slices.SortFunc(ordered, func(a, b *limboGroup) int {
		return cmp.Or(cmp.Compare(a.meta.FileID, b.meta.FileID), cmp.Compare(a.meta.PageID, b.meta.PageID))
	})

	var drained []common.PageIdentity
	for _, g := range ordered {
		linked, err := drainGroup(pool, g)
		drained = append(drained, linked...)
		if err != nil {
			return drained, err
		}
	}
	return drained, nil
}

func drainGroup(pool bufferpool.BufferPool, g *limboGroup) ([]common.PageIdentity, error) {
	onList, err := Walk(pool, g.meta)
	if err != nil {
		return nil, err
	}

	head, last, stamp, err := readMetaHead(pool, g.meta)
	if err != nil {
		return nil, err
	}

	// Highest first, so the list ends up ascending from the new head.
	slices.Sort(g.pages)
	slices.Reverse(g.pages)

	var linked []common.PageIdentity
	for _, pgno := range g.pages {
		if slices.Contains(onList, pgno) {
			continue
		}

		ident := common.Ident(g.meta.FileID, pgno)
		lease, err := bufferpool.Acquire(pool, ident, true)
		if err != nil {
			return linked, errors.Wrapf(err, "link %v", ident)
		}

		p := lease.Page()
		p.Init(pgno, common.InvalidPageID, head, 0, page.TypeFree)
		p.SetLSN(stamp)
		lease.Put(true)

		head = pgno
		last = max(last, pgno)
		linked = append(linked, ident)
	}

	if len(linked) == 0 {
		return nil, nil
	}

	lease, err := bufferpool.Acquire(pool, g.meta, false)
	if err != nil {
		return linked, errors.Wrapf(err, "meta %v", g.meta)
	}
	defer lease.Release()

	m := lease.Page().Meta()
	m.SetFree(head)
	m.SetLastPgno(last)
	lease.Put(true)

	return linked, nil
}

func readMetaHead(
	pool bufferpool.BufferPool,
	meta common.PageIdentity,
) (head, last common.PageID, lsn common.LSN, err error) {
	lease, err := bufferpool.Acquire(pool, meta, false)
	if err != nil {
		return 0, 0, 0, errors.Wrapf(err, "meta %v", meta)
	}
	defer lease.Release()

	m := lease.Page().Meta()
	if !m.Valid() {
		return 0, 0, 0, errors.Wrapf(ErrFreeList, "%v is not a metadata page", meta)
	}
	return m.Free(), m.LastPgno(), m.LSN(), nil
}

// Walk follows the free list of a metadata page and returns its pages in
// order. Every page on it must be free (or invalid) and appear once.
func Walk(pool bufferpool.BufferPool, meta common.PageIdentity) ([]common.PageID, error) {
	next, _, _, err := readMetaHead(pool, meta)
	if err != nil {
		return nil, err
	}

	var (
		res  []common.PageID
		seen = map[common.PageID]struct{}{}
	)
	for next != common.InvalidPageID {
		if _, ok := seen[next]; ok {
			return res, errors.Wrapf(ErrFreeList, "page %d is linked twice", next)
		}
		seen[next] = struct{}{}

		ident := common.Ident(meta.FileID, next)
		lease, err := bufferpool.Acquire(pool, ident, false)
		if errors.Is(err, bufferpool.ErrNoSuchPage) {
			return res, errors.Wrapf(ErrFreeList, "page %d on the free list does not exist", next)
		} else if err != nil {
			return res, err
		}

		p := lease.Page()
		typ, following := p.Type(), p.Next()
		lease.Release()

		if typ != page.TypeFree && typ != page.TypeInvalid {
			return res, errors.Wrapf(ErrFreeList, "page %d on the free list is %s", next, typ)
		}

		res = append(res, next)
		next = following
	}

	return res, nil
}
