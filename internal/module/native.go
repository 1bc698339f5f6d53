package module

// nativeInstance is the platform-specific half of a loaded driver: it
// speaks whatever calling convention the OS's dynamic loader gives us
// (cgo + dlopen/dlsym on POSIX, syscall.NewLazyDLL on Windows) and exposes
// the post-init ABI entries, plus unloading the library, as plain Go
// methods (init runs inside loadNative). Instance (instance.go) wraps a
// nativeInstance to add the ownership/ordering rules from spec.md §4.B
// that are the same on every platform: stop-then-destroy-then-unload on
// Close, and "installed sink must outlive stop".
type nativeInstance interface {
	obtainDeviceConnInfo() ([]ConnParamDescriptor, error)
	connectDevice(entries []ConfEntry) (ComError, error)
	obtainDeviceConfInfo() ([]ConfigInfo, error)
	configureDevice(entries []ConfEntry) (ComError, error)
	obtainSensorTypeInfos() ([]SensorTypeInfo, error)
	start(sink func(Message)) error
	stop() (ComError, error)
	destroy()
	unload() error
}

// loadNative opens the shared library at path, validates mod_version(),
// calls init with dataDir, and returns the ready-to-use native half. dataDir
// must end with the platform's path separator per spec.md §4.A.
//
// Implemented per-platform in native_unix.go and native_windows.go.
