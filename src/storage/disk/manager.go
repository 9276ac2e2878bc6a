package disk

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-faster/errors"
	"github.com/spf13/afero"

	"github.com/Blackdeer1524/PageDB/src/pkg/common"
	"github.com/Blackdeer1524/PageDB/src/storage/page"
)

const PageSize = page.PageSize

var ErrNoSuchPage = errors.New("no such page")

type Page interface {
	GetData() []byte
	SetData(d []byte)
}

// Manager maps (file, page number) to an offset of pgno*PageSize in the
// file registered for that id.
type Manager struct {
	fs           afero.Fs
	fileIDToPath map[common.FileID]string

	mu sync.RWMutex
}

func New(fs afero.Fs, fileIDToPath map[common.FileID]string) *Manager {
	if fileIDToPath == nil {
		fileIDToPath = map[common.FileID]string{}
	}

	return &Manager{
		fs:           fs,
		fileIDToPath: fileIDToPath,
	}
}

func (m *Manager) path(fileID common.FileID) (string, error) {
	path, ok := m.fileIDToPath[fileID]
	if !ok {
		return "", errors.Errorf("fileID %d not found in path map", fileID)
	}
	return filepath.Clean(path), nil
}

// ReadPage fills dst with the page contents. A page past the end of the
// file does not exist; holes inside the file read as never-written pages.
func (m *Manager) ReadPage(ident common.PageIdentity, dst Page) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	path, err := m.path(ident.FileID)
	if err != nil {
		return err
	}

	file, err := m.fs.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(ErrNoSuchPage, "page %v: file %s missing", ident, path)
	} else if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer file.Close()

	offset := int64(ident.PageID) * PageSize
	data := make([]byte, PageSize)

	_, err = file.ReadAt(data, offset)
	if errors.Is(err, io.EOF) {
		return errors.Wrapf(ErrNoSuchPage, "page %v", ident)
	} else if err != nil {
		return errors.Wrapf(err, "read page %v", ident)
	}

	dst.SetData(data)
	return nil
}

func (m *Manager) WritePage(src Page, ident common.PageIdentity) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	path, err := m.path(ident.FileID)
	if err != nil {
		return err
	}

	data := src.GetData()
	if len(data) != PageSize {
		return errors.Errorf("page data is %d bytes", len(data))
	}

	file, err := m.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0o600)
	if err != nil {
		return errors.Wrapf(err, "failed to open file %s", path)
	}
	defer file.Close()

	offset := int64(ident.PageID) * PageSize
	if _, err := file.WriteAt(data, offset); err != nil {
		return errors.Wrapf(err, "failed to write at file %s", path)
	}

	return file.Sync()
}

// NumPages is the number of whole pages the file currently holds.
func (m *Manager) NumPages(fileID common.FileID) (common.PageID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	path, err := m.path(fileID)
	if err != nil {
		return 0, err
	}

	info, err := m.fs.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	} else if err != nil {
		return 0, errors.Wrapf(err, "stat %s", path)
	}
	return common.PageID(info.Size() / PageSize), nil
}

func (m *Manager) InsertToFileMap(id common.FileID, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.fileIDToPath[id] = path
}

func (m *Manager) Files() []common.FileID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]common.FileID, 0, len(m.fileIDToPath))
	for id := range m.fileIDToPath {
		ids = append(ids, id)
	}
	return ids
}
