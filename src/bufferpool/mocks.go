package bufferpool

import (
	"github.com/stretchr/testify/mock"

	"github.com/Blackdeer1524/PageDB/src/pkg/common"
	"github.com/Blackdeer1524/PageDB/src/storage/disk"
)

type MockDiskManager struct {
	mock.Mock
}

func (m *MockDiskManager) ReadPage(pageIdent common.PageIdentity, dst disk.Page) error {
	args := m.Called(pageIdent, dst)
	return args.Error(0)
}

func (m *MockDiskManager) WritePage(src disk.Page, pageIdent common.PageIdentity) error {
	args := m.Called(src, pageIdent)
	return args.Error(0)
}

type MockReplacer struct {
	mock.Mock
}

func (m *MockReplacer) Pin(frameID uint64) {
	m.Called(frameID)
}

func (m *MockReplacer) Unpin(frameID uint64) {
	m.Called(frameID)
}

func (m *MockReplacer) ChooseVictim() (uint64, error) {
	args := m.Called()
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockReplacer) GetSize() uint64 {
	args := m.Called()
	return args.Get(0).(uint64)
}
