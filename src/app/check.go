package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/go-faster/errors"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/multierr"

	"github.com/Blackdeer1524/PageDB/src/bufferpool"
	"github.com/Blackdeer1524/PageDB/src/pkg/common"
	"github.com/Blackdeer1524/PageDB/src/recovery"
	"github.com/Blackdeer1524/PageDB/src/storage/hash"
	"github.com/Blackdeer1524/PageDB/src/storage/page"
)

var ErrCheckFailed = errors.New("consistency check failed")

// FileReport is what CheckEntrypoint found in one database file.
type FileReport struct {
	FileID common.FileID
	Pages  common.PageID
	// Free is the free list of the primary metadata page, in link order.
	Free     []common.PageID
	Problems []error
}

// CheckEntrypoint verifies the layout of every page of the given files
// and walks each file's free list and hash buckets.
type CheckEntrypoint struct {
	Options
	Out io.Writer

	base
	reports []FileReport
}

var _ Entrypoint = &CheckEntrypoint{}

func (e *CheckEntrypoint) Init(ctx context.Context) error {
	if err := e.base.init(e.Options); err != nil {
		return err
	}
	if e.Out == nil {
		e.Out = os.Stdout
	}
	return nil
}

func (e *CheckEntrypoint) Run(ctx context.Context) error {
	pool, err := ants.NewPool(e.cfg.CheckWorkers, ants.WithPanicHandler(func(v any) {
		e.log.Errorw("page check panicked", "panic", v)
	}))
	if err != nil {
		return errors.Wrap(err, "worker pool")
	}
	defer pool.Release()

	files := e.disk.Files()
	slices.Sort(files)

	failed := false
	for _, fileID := range files {
		report, err := e.checkFile(ctx, pool, fileID)
		if err != nil {
			return err
		}
		e.reports = append(e.reports, report)

		if _, err := fmt.Fprintf(
			e.Out,
			"file %d: %d pages, %d free, %d problems\n",
			fileID, report.Pages, len(report.Free), len(report.Problems),
		); err != nil {
			return err
		}
		for _, p := range report.Problems {
			failed = true
			if _, err := fmt.Fprintf(e.Out, "  %v\n", p); err != nil {
				return err
			}
		}
	}

	if failed {
		return ErrCheckFailed
	}
	return nil
}

func (e *CheckEntrypoint) checkFile(
	ctx context.Context,
	pool *ants.Pool,
	fileID common.FileID,
) (FileReport, error) {
	report := FileReport{FileID: fileID}

	n, err := e.disk.NumPages(fileID)
	if err != nil {
		return report, err
	}
	report.Pages = n

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		problems error
	)
	for pgno := range n {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return report, err
		}

		ident := common.Ident(fileID, pgno)
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			if err := e.checkPage(ident); err != nil {
				mu.Lock()
				problems = multierr.Append(problems, err)
				mu.Unlock()
			}
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return report, errors.Wrap(err, "submit page check")
		}
	}
	wg.Wait()

	if n > 0 {
		free, err := recovery.Walk(e.pool, common.Ident(fileID, common.MetaPageID))
		report.Free = free
		if errors.Is(err, recovery.ErrFreeList) {
			problems = multierr.Append(problems, err)
		} else if err != nil {
			return report, err
		}

		misplaced, err := e.checkBuckets(fileID)
		problems = multierr.Append(problems, misplaced)
		if err != nil {
			return report, err
		}
	}

	report.Problems = multierr.Errors(problems)
	slices.SortFunc(report.Problems, func(a, b error) int {
		return strings.Compare(a.Error(), b.Error())
	})
	return report, nil
}

func (e *CheckEntrypoint) checkPage(ident common.PageIdentity) error {
	p := page.New()
	if err := e.disk.ReadPage(ident, p); err != nil {
		return errors.Wrapf(err, "page %v", ident)
	}

	if p.Type() == page.TypeInvalid {
		return nil
	}
	if p.PageID() != ident.PageID {
		return errors.Errorf("page %v: header names page %d", ident, p.PageID())
	}
	if p.Type().String() == "unknown" {
		return errors.Errorf("page %v: unknown type %d", ident, p.Type())
	}
	if ident.PageID == common.MetaPageID {
		if err := p.Meta().Verify(); err != nil {
			return errors.Wrapf(err, "page %v", ident)
		}
	}
	if err := p.Verify(); err != nil {
		return errors.Wrapf(err, "page %v", ident)
	}
	return nil
}

// checkBuckets confirms that every key on a hash bucket chain hashes to
// that bucket. Files of other methods are left alone.
func (e *CheckEntrypoint) checkBuckets(fileID common.FileID) (problems, err error) {
	lease, err := bufferpool.Acquire(e.pool, common.Ident(fileID, common.MetaPageID), false)
	if err != nil {
		return nil, err
	}
	cp := page.New()
	cp.SetData(lease.Page().Image())
	lease.Release()

	m := cp.Meta()
	// checkPage reports a metadata page that fails Verify
	if m.Method() != page.MethodHash || m.Verify() != nil {
		return nil, nil
	}

	for bucket := uint32(0); bucket <= m.MaxBucket(); bucket++ {
		seen := map[common.PageID]struct{}{}
		for pgno := m.BucketToPage(bucket); pgno != common.InvalidPageID; {
			if _, ok := seen[pgno]; ok {
				problems = multierr.Append(problems, errors.Errorf("bucket %d: page %d is linked twice", bucket, pgno))
				break
			}
			seen[pgno] = struct{}{}

			next, misplaced, err := e.checkBucketPage(m, common.Ident(fileID, pgno), bucket)
			if err != nil {
				return problems, err
			}
			problems = multierr.Append(problems, misplaced)
			pgno = next
		}
	}
	return problems, nil
}

func (e *CheckEntrypoint) checkBucketPage(
	m page.Meta,
	ident common.PageIdentity,
	bucket uint32,
) (next common.PageID, problems, err error) {
	lease, err := bufferpool.Acquire(e.pool, ident, false)
	if errors.Is(err, bufferpool.ErrNoSuchPage) {
		return common.InvalidPageID, errors.Errorf("bucket %d: page %v does not exist", bucket, ident), nil
	} else if err != nil {
		return common.InvalidPageID, nil, err
	}
	defer lease.Release()

	p := lease.Page()
	if p.Type() != page.TypeHash {
		return common.InvalidPageID, errors.Errorf("bucket %d: page %v is %s", bucket, ident, p.Type()), nil
	}

	items, err := p.Items()
	if err != nil {
		return common.InvalidPageID, errors.Wrapf(err, "bucket %d: page %v", bucket, ident), nil
	}

	// keys sit at even indexes, each followed by its data
	for i := 0; i < len(items); i += 2 {
		typ, key, err := hash.Parse(items[i])
		if err != nil {
			problems = multierr.Append(problems, errors.Wrapf(err, "page %v item %d", ident, i))
			continue
		}
		if typ != hash.KeyData {
			continue
		}
		if b := hash.BucketOf(key, m); b != bucket {
			problems = multierr.Append(
				problems,
				errors.Errorf("page %v item %d: key of bucket %d is on bucket %d", ident, i, b, bucket),
			)
		}
	}
	return p.Next(), problems, nil
}

func (e *CheckEntrypoint) Reports() []FileReport {
	return e.reports
}

func (e *CheckEntrypoint) Close() error {
	return e.base.close()
}
