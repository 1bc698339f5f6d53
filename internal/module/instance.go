package module

import (
	"context"
	"sync"

	"github.com/sensorhost/sensorhost/internal/apperr"
)

// Instance wraps a nativeInstance (the cgo+dlopen half on POSIX, the
// syscall.NewLazyDLL half on Windows) and adds the ordering and
// idempotency guarantees from spec.md §4.B that hold on every platform:
// Close always runs stop (if started) then destroy then unload, exactly
// once, regardless of how many times it's called or whether Start ever
// ran.
type Instance struct {
	native nativeInstance

	mu      sync.Mutex
	started bool
	closed  bool
}

// Load opens the shared library at path and performs the mod_version /
// init handshake. dataDir is passed to the driver's init and must exist
// and be writable; the driver treats it as the root for any on-disk state
// it keeps itself.
func Load(path, dataDir string) (*Instance, error) {
	n, err := loadNative(path, dataDir)
	if err != nil {
		return nil, err
	}
	return &Instance{native: n}, nil
}

func (i *Instance) ObtainDeviceConnInfo(ctx context.Context) ([]ConnParamDescriptor, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return nil, apperr.New(apperr.FailedPrecondition, "module instance closed")
	}
	out, err := i.native.obtainDeviceConnInfo()
	if err != nil {
		return nil, &CallError{Func: "obtain_device_conn_info", Err: err}
	}
	return out, nil
}

func (i *Instance) ConnectDevice(ctx context.Context, values []ConfEntry) (ComError, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return ComUnknown, apperr.New(apperr.FailedPrecondition, "module instance closed")
	}
	code, err := i.native.connectDevice(values)
	if err != nil {
		return ComUnknown, &CallError{Func: "connect_device", Err: err}
	}
	return code, nil
}

func (i *Instance) ObtainDeviceConfInfo(ctx context.Context) ([]ConfigInfo, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return nil, apperr.New(apperr.FailedPrecondition, "module instance closed")
	}
	out, err := i.native.obtainDeviceConfInfo()
	if err != nil {
		return nil, &CallError{Func: "obtain_device_conf_info", Err: err}
	}
	return out, nil
}

func (i *Instance) ConfigureDevice(ctx context.Context, entries []ConfEntry) (ComError, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return ComUnknown, apperr.New(apperr.FailedPrecondition, "module instance closed")
	}
	code, err := i.native.configureDevice(entries)
	if err != nil {
		return ComUnknown, &CallError{Func: "configure_device", Err: err}
	}
	return code, nil
}

func (i *Instance) ObtainSensorTypeInfos(ctx context.Context) ([]SensorTypeInfo, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return nil, apperr.New(apperr.FailedPrecondition, "module instance closed")
	}
	out, err := i.native.obtainSensorTypeInfos()
	if err != nil {
		return nil, &CallError{Func: "obtain_sensor_type_infos", Err: err}
	}
	return out, nil
}

// Start begins streaming. sink is invoked from a driver-owned thread for
// every message until Stop returns, and the driver thread waits for sink to
// return; callers must not do blocking work in sink beyond what they can
// afford to have serialize driver delivery behind.
func (i *Instance) Start(sink func(Message)) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return apperr.New(apperr.FailedPrecondition, "module instance closed")
	}
	if i.started {
		return apperr.New(apperr.FailedPrecondition, "module instance already started")
	}
	if err := i.native.start(sink); err != nil {
		return &CallError{Func: "start", Err: err}
	}
	i.started = true
	return nil
}

func (i *Instance) Stop() (ComError, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return ComUnknown, apperr.New(apperr.FailedPrecondition, "module instance closed")
	}
	if !i.started {
		return ComOK, nil
	}
	code, err := i.native.stop()
	i.started = false
	if err != nil {
		return ComUnknown, &CallError{Func: "stop", Err: err}
	}
	return code, nil
}

// Close releases the driver: stop (if still started), then destroy, then
// unload. Safe to call more than once; only the first call does anything.
func (i *Instance) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return nil
	}
	i.closed = true

	if i.started {
		_, _ = i.native.stop()
		i.started = false
	}
	i.native.destroy()
	return i.native.unload()
}
