package bufferpool

import (
	"github.com/Blackdeer1524/PageDB/src/pkg/common"
	"github.com/Blackdeer1524/PageDB/src/storage/page"
)

// Lease is a pinned, write-latched page. Release must be called on every
// path; after Put it becomes a no-op, so `defer l.Release()` is safe.
type Lease struct {
	pool     BufferPool
	ident    common.PageIdentity
	page     *page.Page
	released bool
}

// Acquire fetches the page and takes its write latch. With create set a
// page missing from disk comes back zeroed, otherwise ErrNoSuchPage is
// returned.
func Acquire(pool BufferPool, ident common.PageIdentity, create bool) (*Lease, error) {
	var (
		p   *page.Page
		err error
	)
	if create {
		p, err = pool.GetPage(ident)
	} else {
		p, err = pool.GetPageNoCreate(ident)
	}
	if err != nil {
		return nil, err
	}

	p.Lock()
	return &Lease{pool: pool, ident: ident, page: p}, nil
}

func (l *Lease) Page() *page.Page {
	return l.page
}

func (l *Lease) Ident() common.PageIdentity {
	return l.ident
}

// Put hands the page back, marking it dirty when it was modified.
func (l *Lease) Put(dirty bool) {
	if l == nil || l.released {
		return
	}
	l.released = true

	if dirty {
		l.pool.MarkDirty(l.ident)
	}
	l.page.Unlock()
	l.pool.Unpin(l.ident)
}

func (l *Lease) Release() {
	l.Put(false)
}
