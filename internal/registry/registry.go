// Package registry is the Device Registry & FS Layout: it owns the
// authoritative in-memory device index, the directory scheme under the
// app's data root, and monotonic DeviceID allocation. It never talks to
// drivers or the database directly — the Lifecycle Controller composes
// this package with module and store to drive the actual state machine.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/sensorhost/sensorhost/internal/apperr"
	"github.com/sensorhost/sensorhost/internal/module"
)

// DeviceID is an opaque monotonic identifier, created only by the
// Registry. Never reused, even after a device is deleted.
type DeviceID uint32

// InitState is a device's position in the two-phase lifecycle. Per the
// teacher corpus's TODO-driven caution against inventing intermediate
// states, this stays the two values the spec calls for: Device
// (resources allocated, no sensors bound) and Sensors (fully bound,
// streaming eligible).
type InitState uint8

const (
	StateDevice InitState = iota
	StateSensors
)

func (s InitState) String() string {
	if s == StateSensors {
		return "SENSORS"
	}
	return "DEVICE"
}

// Sensor is one named, typed data stream bound to a Device. BindingID is
// a uuid assigned when the binding row is written, identifying this
// specific device/sensor pairing independent of its human-readable name.
type Sensor struct {
	Name      string
	Columns   []module.Column
	TableName string
	BindingID string
}

// Stopper is the subset of the Message Handler's lifecycle the registry
// needs to know about, kept minimal so this package doesn't import
// internal/handler.
type Stopper interface {
	Stop()
}

// Device is the in-memory cell for one registered device. Every field
// access that isn't itself atomic must hold mu — the Lifecycle Controller
// acquires it for the duration of any multi-step operation (spec.md I5).
type Device struct {
	mu sync.Mutex

	ID            DeviceID
	DisplayName   string
	CanonicalName string
	ModuleDir     string
	DataDir       string
	InitState     InitState

	Instance module.Driver
	Sensors  map[string]Sensor
	Handler  Stopper
}

// Lock serializes all operations against this device, per spec.md §5
// "each Device cell: a mutex — all driver calls for a device are
// serialized".
func (d *Device) Lock()   { d.mu.Lock() }
func (d *Device) Unlock() { d.mu.Unlock() }

// Registry is the reader-writer-locked device index plus FS layout
// helpers. Readers (Get, All) dominate; mutation (Put, Delete) is rare
// relative to lookups, matching spec.md §5's stated lock bias.
type Registry struct {
	mu      sync.RWMutex
	devices map[DeviceID]*Device

	lastID uint32 // atomic; seeded from max(stored_id) at startup

	root   string
	logger *zap.Logger
}

// New creates an empty Registry rooted at root (the OS-specific app data
// directory; see DefaultRoot).
func New(root string, logger *zap.Logger) *Registry {
	return &Registry{
		devices: make(map[DeviceID]*Device),
		root:    root,
		logger:  logger,
	}
}

// SeedLastID primes the monotonic counter from the highest ID already
// persisted, so NextID never reissues one. Call once at startup before
// any NextID call.
func (r *Registry) SeedLastID(max DeviceID) {
	atomic.StoreUint32(&r.lastID, uint32(max))
}

// NextID atomically allocates the next DeviceID (spec.md I3: monotonic,
// never reused).
func (r *Registry) NextID() DeviceID {
	return DeviceID(atomic.AddUint32(&r.lastID, 1))
}

// Get returns the device cell for id, if present.
func (r *Registry) Get(id DeviceID) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[id]
	return d, ok
}

// All returns every registered device. Only Sensors-state devices should
// be surfaced to external listings (spec.md §3); callers filter.
func (r *Registry) All() []*Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	return out
}

// Put installs d in the index, replacing any previous cell with the same
// ID.
func (r *Registry) Put(d *Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[d.ID] = d
}

// Delete removes the cell for id, if present.
func (r *Registry) Delete(id DeviceID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.devices, id)
}

// --- Filesystem layout (spec.md §4.C) ---

// DefaultRoot resolves the OS-specific application data directory:
// macOS uses the Application Support convention, Windows uses a
// .sensorhost directory beside the executable, everything else uses a
// dotfile under the user's home directory.
func DefaultRoot() string {
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return ".sensorhost"
		}
		return filepath.Join(home, "Library", "Application Support", "sensorhost")
	case "windows":
		exe, err := os.Executable()
		if err != nil {
			return ".sensorhost"
		}
		return filepath.Join(filepath.Dir(exe), ".sensorhost")
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return ".sensorhost"
		}
		return filepath.Join(home, ".sensorhost")
	}
}

// LibraryExt returns the platform's shared-library extension, which the
// directory/binary-naming scheme relies on (spec.md §6: "drivers may rely
// on that").
func LibraryExt() string {
	switch runtime.GOOS {
	case "darwin":
		return ".dylib"
	case "windows":
		return ".dll"
	default:
		return ".so"
	}
}

var canonicalSeparators = regexp.MustCompile(`[^a-z0-9]+`)

// Canonicalize converts a display name to the snake_case form used in
// directory names and sensor table identifiers.
func Canonicalize(displayName string) string {
	lower := strings.ToLower(displayName)
	snake := canonicalSeparators.ReplaceAllString(lower, "_")
	return strings.Trim(snake, "_")
}

// deviceDirName is the "<id>-<canonical_name>" directory under device/.
func deviceDirName(id DeviceID, canonicalName string) string {
	return fmt.Sprintf("%d-%s", id, canonicalName)
}

// DeviceRoot returns "<root>/device/<id>-<canonical_name>".
func (r *Registry) DeviceRoot(id DeviceID, canonicalName string) string {
	return filepath.Join(r.root, "device", deviceDirName(id, canonicalName))
}

// ModuleDir returns the module/ subdirectory that holds the driver binary.
// The returned path always ends in the OS separator, per spec.md M1 ("path
// strings handed to drivers always end with the OS separator").
func (r *Registry) ModuleDir(id DeviceID, canonicalName string) string {
	return filepath.Join(r.DeviceRoot(id, canonicalName), "module") + string(filepath.Separator)
}

// DataDir returns the data/ subdirectory handed to the driver as its
// private scratch space.
func (r *Registry) DataDir(id DeviceID, canonicalName string) string {
	return filepath.Join(r.DeviceRoot(id, canonicalName), "data") + string(filepath.Separator)
}

// LibraryPath returns the path the driver binary is (or will be) written
// to: "<module_dir>lib<ext>".
func (r *Registry) LibraryPath(id DeviceID, canonicalName string) string {
	return filepath.Join(r.ModuleDir(id, canonicalName), "lib"+LibraryExt())
}

// CreateDeviceDirs atomically materializes module/ and data/ for a new
// device (spec.md I2). Both directories are created before the caller
// writes the binary.
func (r *Registry) CreateDeviceDirs(id DeviceID, canonicalName string) error {
	moduleDir := r.ModuleDir(id, canonicalName)
	dataDir := r.DataDir(id, canonicalName)
	if err := os.MkdirAll(moduleDir, 0o755); err != nil {
		return apperr.Wrap(apperr.IO, "create module directory", err)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return apperr.Wrap(apperr.IO, "create data directory", err)
	}
	return nil
}

// RemoveDeviceDirs deletes the device's directory tree. Tolerant of a
// partially-created tree (e.g. the data/ subfolder never got created
// before the failure that triggered rollback) — os.RemoveAll is already
// idempotent against missing paths, which resolves the open question in
// spec.md §9 about rollback on a partially-written binary.
func (r *Registry) RemoveDeviceDirs(id DeviceID, canonicalName string) error {
	root := r.DeviceRoot(id, canonicalName)
	if err := os.RemoveAll(root); err != nil {
		return apperr.Wrap(apperr.IO, "remove device directory", err)
	}
	return nil
}
