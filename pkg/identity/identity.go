package identity

import (
	"path/filepath"
	"time"

	"github.com/benmeehan/heros-path/pkg/file"
	"github.com/google/uuid"
)

// Identity is the persisted identity of the device running the agent.
type Identity struct {
	ID        string    `json:"device_id,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// DeviceInfo keeps the device identity in a JSON file so that trips from
// different runs are attributed to the same device.
type DeviceInfo struct {
	DeviceInfoFile string
	Identity       Identity
	fileOps        file.FileOperations
}

// NewDeviceInfo initializes a new DeviceInfo instance.
func NewDeviceInfo(filePath string, fileOps file.FileOperations) *DeviceInfo {
	return &DeviceInfo{
		DeviceInfoFile: filePath,
		fileOps:        fileOps,
	}
}

// LoadDeviceInfo reads the identity file. A missing file leaves the identity empty.
func (d *DeviceInfo) LoadDeviceInfo() error {
	exists, err := d.fileOps.IsFileExists(d.DeviceInfoFile)
	if err != nil {
		return err
	}
	if !exists {
		d.Identity = Identity{}
		return nil
	}
	return d.fileOps.ReadJsonFile(d.DeviceInfoFile, &d.Identity)
}

// GetDeviceID returns the current device ID.
func (d *DeviceInfo) GetDeviceID() string {
	return d.Identity.ID
}

// SaveDeviceID updates the device ID and writes it back to the file.
func (d *DeviceInfo) SaveDeviceID(deviceID string) error {
	d.Identity.ID = deviceID
	if d.Identity.CreatedAt.IsZero() {
		d.Identity.CreatedAt = time.Now().UTC()
	}
	if err := d.fileOps.EnsureDir(filepath.Dir(d.DeviceInfoFile)); err != nil {
		return err
	}
	return d.fileOps.WriteJsonFile(d.DeviceInfoFile, d.Identity)
}

// Resolve returns configured when set, otherwise the stored device ID,
// generating and storing a new one on first use.
func (d *DeviceInfo) Resolve(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if err := d.LoadDeviceInfo(); err != nil {
		return "", err
	}
	if id := d.GetDeviceID(); id != "" {
		return id, nil
	}
	id := uuid.NewString()
	if err := d.SaveDeviceID(id); err != nil {
		return "", err
	}
	return id, nil
}
