package filestore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// ErrFileNotFound is returned when a named file does not exist
	ErrFileNotFound = errors.New("file not found")
	// ErrInvalidName is returned for names that are empty or not a plain
	// file name
	ErrInvalidName = errors.New("invalid file name")
	// ErrNotBackup is returned when a restore source is not a backup file
	ErrNotBackup = errors.New("not a backup file")
)

const (
	// DefaultDataDir is the data subdirectory created under the root
	DefaultDataDir = "data"

	backupMarker     = ".backup-"
	backupTimeLayout = "20060102T150405.000000000Z"
	persistMarker    = ".persisted"
	tempSuffix       = ".tmp"
)

// FileInfo describes one file of the data directory
type FileInfo struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// QuotaInfo is the storage estimate of the volume holding the data
// directory. Usage is the size of the data directory itself.
type QuotaInfo struct {
	Usage     uint64  `json:"usage"`
	Quota     uint64  `json:"quota"`
	Available uint64  `json:"available"`
	Percent   float64 `json:"percent"`
}

// Manager owns the root and data directory handles. Handles are opened on
// first use and kept until Close.
type Manager struct {
	rootPath string
	dataName string
	log      logrus.FieldLogger
	now      func() time.Time

	mu   sync.RWMutex
	root *os.Root
	data *os.Root
}

// New creates a Manager for rootPath. An empty dataName means
// DefaultDataDir.
func New(rootPath, dataName string, log logrus.FieldLogger) *Manager {
	if dataName == "" {
		dataName = DefaultDataDir
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Manager{
		rootPath: rootPath,
		dataName: dataName,
		log:      log.WithField("component", "filestore"),
		now:      time.Now,
	}
}

// Initialize creates and opens the root and data directories. Later calls
// reuse the open handles.
func (m *Manager) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open()
}

func (m *Manager) open() error {
	if m.data != nil {
		return nil
	}
	if err := os.MkdirAll(m.rootPath, 0o755); err != nil {
		return fmt.Errorf("failed to create root directory: %w", err)
	}
	if m.root == nil {
		root, err := os.OpenRoot(m.rootPath)
		if err != nil {
			return fmt.Errorf("failed to open root directory: %w", err)
		}
		m.root = root
	}
	if err := m.root.Mkdir(m.dataName, 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	data, err := m.root.OpenRoot(m.dataName)
	if err != nil {
		return fmt.Errorf("failed to open data directory: %w", err)
	}
	m.data = data
	m.log.WithField("path", m.DataPath()).Debug("Opened data directory")
	return nil
}

// Close releases the directory handles
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	if m.data != nil {
		errs = append(errs, m.data.Close())
		m.data = nil
	}
	if m.root != nil {
		errs = append(errs, m.root.Close())
		m.root = nil
	}
	return errors.Join(errs...)
}

// RootPath is the directory the manager was created for
func (m *Manager) RootPath() string {
	return m.rootPath
}

// DataPath is the path of the data directory
func (m *Manager) DataPath() string {
	return filepath.Join(m.rootPath, m.dataName)
}

// withData runs fn against the data directory, opening it if needed
func (m *Manager) withData(fn func(data *os.Root) error) error {
	m.mu.RLock()
	if m.data != nil {
		defer m.mu.RUnlock()
		return fn(m.data)
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.open(); err != nil {
		return err
	}
	return fn(m.data)
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`+"\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func notFound(name string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", name, ErrFileNotFound)
	}
	return err
}

// ListFiles returns the names of the regular files in the data directory,
// sorted
func (m *Manager) ListFiles() ([]string, error) {
	var names []string
	err := m.withData(func(data *os.Root) error {
		entries, err := fs.ReadDir(data.FS(), ".")
		if err != nil {
			return fmt.Errorf("failed to list data directory: %w", err)
		}
		for _, e := range entries {
			if e.Type().IsRegular() {
				names = append(names, e.Name())
			}
		}
		return nil
	})
	return names, err
}

// GetFile returns the content of name
func (m *Manager) GetFile(name string) ([]byte, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	var content []byte
	err := m.withData(func(data *os.Root) error {
		b, err := data.ReadFile(name)
		if err != nil {
			return notFound(name, err)
		}
		content = b
		return nil
	})
	return content, err
}

// WriteFile replaces the content of name. The content is written to a
// temporary file first and renamed into place.
func (m *Manager) WriteFile(name string, content []byte) error {
	if err := validName(name); err != nil {
		return err
	}
	return m.withData(func(data *os.Root) error {
		tmp := name + tempSuffix
		if err := data.WriteFile(tmp, content, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
		if err := data.Rename(tmp, name); err != nil {
			_ = data.Remove(tmp)
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
		return nil
	})
}

// DeleteFile removes name
func (m *Manager) DeleteFile(name string) error {
	if err := validName(name); err != nil {
		return err
	}
	return m.withData(func(data *os.Root) error {
		if err := data.Remove(name); err != nil {
			return notFound(name, err)
		}
		return nil
	})
}

// FileExists reports whether name exists
func (m *Manager) FileExists(name string) (bool, error) {
	_, err := m.stat(name)
	if errors.Is(err, ErrFileNotFound) {
		return false, nil
	}
	return err == nil, err
}

// GetFileSize returns the size of name in bytes
func (m *Manager) GetFileSize(name string) (int64, error) {
	info, err := m.stat(name)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (m *Manager) stat(name string) (fs.FileInfo, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	var info fs.FileInfo
	err := m.withData(func(data *os.Root) error {
		fi, err := data.Stat(name)
		if err != nil {
			return notFound(name, err)
		}
		info = fi
		return nil
	})
	return info, err
}

// CreateBackup copies name to <name>.backup-<timestamp>[-suffix] and
// returns the backup name
func (m *Manager) CreateBackup(name, suffix string) (string, error) {
	content, err := m.GetFile(name)
	if err != nil {
		return "", err
	}
	backup := name + backupMarker + m.now().UTC().Format(backupTimeLayout)
	if suffix != "" {
		backup += "-" + suffix
	}
	if err := validName(backup); err != nil {
		return "", err
	}
	if err := m.WriteFile(backup, content); err != nil {
		return "", err
	}
	m.log.WithFields(logrus.Fields{"file": name, "backup": backup}).Info("Created backup")
	return backup, nil
}

// ListBackups returns the backups of name, most recently modified first
func (m *Manager) ListBackups(name string) ([]FileInfo, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	prefix := name + backupMarker
	var backups []FileInfo
	err := m.withData(func(data *os.Root) error {
		entries, err := fs.ReadDir(data.FS(), ".")
		if err != nil {
			return fmt.Errorf("failed to list data directory: %w", err)
		}
		for _, e := range entries {
			if !e.Type().IsRegular() || !strings.HasPrefix(e.Name(), prefix) {
				continue
			}
			info, err := e.Info()
			if err != nil {
				return err
			}
			backups = append(backups, FileInfo{Name: e.Name(), Size: info.Size(), ModTime: info.ModTime()})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	// Names embed the creation time, so they order backups whose
	// modification times are equal
	slices.SortFunc(backups, func(a, b FileInfo) int {
		if c := b.ModTime.Compare(a.ModTime); c != 0 {
			return c
		}
		return strings.Compare(b.Name, a.Name)
	})
	return backups, nil
}

// PruneBackups keeps the keep most recently modified backups of name,
// deletes the rest and returns how many were deleted
func (m *Manager) PruneBackups(name string, keep int) (int, error) {
	backups, err := m.ListBackups(name)
	if err != nil {
		return 0, err
	}
	keep = max(keep, 0)
	if len(backups) <= keep {
		return 0, nil
	}
	removed := 0
	for _, b := range backups[keep:] {
		if err := m.DeleteFile(b.Name); err != nil {
			return removed, err
		}
		removed++
	}
	m.log.WithFields(logrus.Fields{"file": name, "removed": removed, "kept": keep}).Info("Pruned backups")
	return removed, nil
}

// RestoreBackup copies a backup of name back over name
func (m *Manager) RestoreBackup(backup, name string) error {
	if !strings.HasPrefix(backup, name+backupMarker) {
		return fmt.Errorf("%w: %s is not a backup of %s", ErrNotBackup, backup, name)
	}
	content, err := m.GetFile(backup)
	if err != nil {
		return err
	}
	if err := m.WriteFile(name, content); err != nil {
		return err
	}
	m.log.WithFields(logrus.Fields{"file": name, "backup": backup}).Info("Restored backup")
	return nil
}

// GetQuotaInfo estimates usage and quota of the data directory. It returns
// nil when the platform cannot report it.
func (m *Manager) GetQuotaInfo() *QuotaInfo {
	var usage uint64
	err := m.withData(func(data *os.Root) error {
		return fs.WalkDir(data.FS(), ".", func(_ string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.Type().IsRegular() {
				info, err := d.Info()
				if err != nil {
					return err
				}
				usage += uint64(info.Size())
			}
			return nil
		})
	})
	if err != nil {
		m.log.WithError(err).Debug("Failed to measure data directory")
		return nil
	}
	quota, available, ok := volumeSpace(m.DataPath())
	if !ok {
		return nil
	}
	info := &QuotaInfo{Usage: usage, Quota: quota, Available: available}
	if quota > 0 {
		info.Percent = float64(usage) / float64(quota) * 100
	}
	return info
}

// RequestPersistence marks the root directory as persistent and reports
// whether the marker could be written
func (m *Manager) RequestPersistence() bool {
	if err := m.Initialize(); err != nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.root.WriteFile(persistMarker, []byte(m.now().UTC().Format(time.RFC3339)), 0o644); err != nil {
		m.log.WithError(err).Warn("Failed to request persistence")
		return false
	}
	return true
}

// IsPersisted reports whether persistence was granted. It is false when the
// root directory is unavailable.
func (m *Manager) IsPersisted() bool {
	if err := m.Initialize(); err != nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, err := m.root.Stat(persistMarker)
	return err == nil
}

// ClearAll removes the data directory with everything in it and creates it
// again empty
func (m *Manager) ClearAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.open(); err != nil {
		return err
	}
	if err := m.data.Close(); err != nil {
		return fmt.Errorf("failed to close data directory: %w", err)
	}
	m.data = nil
	if err := m.root.RemoveAll(m.dataName); err != nil {
		return fmt.Errorf("failed to remove data directory: %w", err)
	}
	if err := m.open(); err != nil {
		return err
	}
	m.log.Info("Cleared data directory")
	return nil
}
