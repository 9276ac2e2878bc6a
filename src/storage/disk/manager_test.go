package disk

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Blackdeer1524/PageDB/src/pkg/common"
	"github.com/Blackdeer1524/PageDB/src/storage/page"
)

func TestReadWrite(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := New(fs, map[common.FileID]string{1: "/data/one.db"})

	p := page.New()
	p.Init(3, 0, 0, 1, page.TypeBtreeLeaf)
	require.NoError(t, p.Append([]byte("payload")))
	p.SetLSN(42)

	require.NoError(t, m.WritePage(p, common.Ident(1, 3)))

	got := page.New()
	require.NoError(t, m.ReadPage(common.Ident(1, 3), got))
	assert.Equal(t, p.Image(), got.Image())

	n, err := m.NumPages(1)
	require.NoError(t, err)
	assert.Equal(t, common.PageID(4), n)
}

func TestHoleReadsAsNeverWritten(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := New(fs, map[common.FileID]string{1: "/data/one.db"})

	p := page.New()
	p.Init(5, 0, 0, 0, page.TypeHash)
	p.SetLSN(9)
	require.NoError(t, m.WritePage(p, common.Ident(1, 5)))

	hole := page.New()
	require.NoError(t, m.ReadPage(common.Ident(1, 2), hole))
	assert.True(t, hole.LSN().IsNeverWritten())
	assert.Equal(t, page.TypeInvalid, hole.Type())
}

func TestMissingPage(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := New(fs, map[common.FileID]string{1: "/data/one.db", 2: "/data/two.db"})

	require.NoError(t, m.WritePage(page.New(), common.Ident(1, 0)))

	err := m.ReadPage(common.Ident(1, 1), page.New())
	assert.ErrorIs(t, err, ErrNoSuchPage)

	err = m.ReadPage(common.Ident(2, 0), page.New())
	assert.ErrorIs(t, err, ErrNoSuchPage)

	n, err := m.NumPages(2)
	require.NoError(t, err)
	assert.Equal(t, common.PageID(0), n)

	err = m.ReadPage(common.Ident(3, 0), page.New())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoSuchPage)
}

func BenchmarkDiskManager(b *testing.B) {
	fs := afero.NewOsFs()
	diskManager := New(fs, map[common.FileID]string{1: b.TempDir() + "/bench.db"})
	p := page.New()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		require.NoError(b, diskManager.WritePage(p, common.Ident(1, common.PageID(i%1024))))
	}
}
