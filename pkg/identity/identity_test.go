package identity

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/benmeehan/heros-path/internal/mocks"
	"github.com/benmeehan/heros-path/pkg/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestDeviceInfo_Resolve_Configured(t *testing.T) {
	fileOps := new(mocks.MockFileOperations)
	d := NewDeviceInfo("/var/lib/heros-path/device.json", fileOps)

	id, err := d.Resolve("walker-1")

	require.NoError(t, err)
	assert.Equal(t, "walker-1", id)
	fileOps.AssertNotCalled(t, "ReadJsonFile", mock.Anything, mock.Anything)
}

func TestDeviceInfo_Resolve_GeneratesOnce(t *testing.T) {
	// Setup
	path := filepath.Join(t.TempDir(), "state", "device.json")
	fileOps := file.NewFileService()

	// Execute
	first, err := NewDeviceInfo(path, fileOps).Resolve("")
	require.NoError(t, err)
	second, err := NewDeviceInfo(path, fileOps).Resolve("")
	require.NoError(t, err)

	// Assert
	assert.NotEmpty(t, first)
	assert.Equal(t, first, second)
}

func TestDeviceInfo_Resolve_ReadError(t *testing.T) {
	fileOps := new(mocks.MockFileOperations)
	fileOps.On("IsFileExists", "device.json").Return(true, nil)
	fileOps.On("ReadJsonFile", "device.json", mock.Anything).Return(errors.New("corrupt"))
	d := NewDeviceInfo("device.json", fileOps)

	_, err := d.Resolve("")

	assert.EqualError(t, err, "corrupt")
}

func TestDeviceInfo_LoadDeviceInfo_StatError(t *testing.T) {
	fileOps := new(mocks.MockFileOperations)
	fileOps.On("IsFileExists", "device.json").Return(false, errors.New("permission denied"))
	d := NewDeviceInfo("device.json", fileOps)

	err := d.LoadDeviceInfo()

	assert.EqualError(t, err, "permission denied")
	fileOps.AssertNotCalled(t, "ReadJsonFile", mock.Anything, mock.Anything)
}
