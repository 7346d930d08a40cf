// Package capability inspects the host process for the features the storage
// core depends on and recommends a storage mode.
package capability

import (
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"slices"
)

// StorageMode selects the backing store of the embedded engine
type StorageMode string

const (
	// StorageModeAuto lets the prober decide
	StorageModeAuto StorageMode = "auto"
	// StorageModePersistent stores the database in the data directory
	StorageModePersistent StorageMode = "persistent"
	// StorageModeVolatile keeps the database in memory only
	StorageModeVolatile StorageMode = "volatile"
)

// ParseStorageMode parses a configured mode, defaulting to auto
func ParseStorageMode(s string) (StorageMode, error) {
	switch StorageMode(s) {
	case "", StorageModeAuto:
		return StorageModeAuto, nil
	case StorageModePersistent, StorageModeVolatile:
		return StorageMode(s), nil
	}
	return "", fmt.Errorf("unknown storage mode %q", s)
}

// Capabilities is the set of host features the engine can use
type Capabilities struct {
	EngineRuntime     bool // Mandatory: the SQL driver is registered
	SharedMemory      bool // More than one CPU is schedulable
	PersistentStorage bool // The data directory is writable
	Workers           bool // Background workers are available
	Isolated          bool // The data directory is private to this user
}

// Report is the outcome of a probe
type Report struct {
	Capabilities Capabilities
	Recommended  bool
	StorageMode  StorageMode
	Warnings     []string
}

// Environment abstracts the host so probes can be simulated in tests
type Environment interface {
	Drivers() []string
	NumCPU() int
	ProbeDir(dir string) error
	DirMode(dir string) (fs.FileMode, error)
}

// Prober inspects an Environment
type Prober struct {
	driverName string
	env        Environment
}

// New creates a Prober for the given SQL driver against the real host
func New(driverName string) *Prober {
	return NewWithEnvironment(driverName, hostEnvironment{})
}

// NewWithEnvironment creates a Prober against a custom environment
func NewWithEnvironment(driverName string, env Environment) *Prober {
	return &Prober{driverName: driverName, env: env}
}

// Probe inspects the environment. dataDir is the directory a persistent
// database would live in; an empty dataDir means persistence is unavailable.
func (p *Prober) Probe(dataDir string) Report {
	report := Report{
		Capabilities: Capabilities{Workers: true},
		Warnings:     make([]string, 0),
	}
	caps := &report.Capabilities

	caps.EngineRuntime = slices.Contains(p.env.Drivers(), p.driverName)
	if !caps.EngineRuntime {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("embedded SQL engine driver %q is not registered; storage is unavailable", p.driverName))
	}

	caps.SharedMemory = p.env.NumCPU() > 1
	if !caps.SharedMemory {
		report.Warnings = append(report.Warnings,
			"only one CPU is schedulable; the engine runs single-threaded and queries may be slower")
	}

	switch {
	case dataDir == "":
		report.Warnings = append(report.Warnings,
			"no data directory configured; using volatile storage, data will not survive restart")
	default:
		if err := p.env.ProbeDir(dataDir); err != nil {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("persistent storage unavailable (%v); using volatile storage, data will not survive restart", err))
		} else {
			caps.PersistentStorage = true
		}
	}

	if caps.PersistentStorage {
		mode, err := p.env.DirMode(dataDir)
		caps.Isolated = err == nil && mode.Perm()&0o022 == 0
		if !caps.Isolated {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("data directory %s is writable by other users", dataDir))
		}
	}

	report.Recommended = caps.EngineRuntime
	report.StorageMode = StorageModeVolatile
	if caps.EngineRuntime && caps.PersistentStorage {
		report.StorageMode = StorageModePersistent
	}
	return report
}

// hostEnvironment reads the real process environment
type hostEnvironment struct{}

func (hostEnvironment) Drivers() []string {
	return sql.Drivers()
}

func (hostEnvironment) NumCPU() int {
	return runtime.GOMAXPROCS(0)
}

func (hostEnvironment) ProbeDir(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

func (hostEnvironment) DirMode(dir string) (fs.FileMode, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return 0, err
	}
	return info.Mode(), nil
}
