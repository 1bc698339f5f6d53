package module

import "context"

// Driver is the capability set every loaded module exposes, modeled as an
// interface with a single concrete implementation (the C-ABI Instance) so
// that a pure-Go fake (moduletest.Fake) can stand in for tests that must
// not load native code. It exposes the entries of the function table in
// spec.md §4.A other than init (run by Load) and destroy (run by Close);
// callers never see C types.
type Driver interface {
	// ObtainDeviceConnInfo returns the connection parameters the driver
	// needs before ConnectDevice can be called.
	ObtainDeviceConnInfo(ctx context.Context) ([]ConnParamDescriptor, error)

	// ConnectDevice applies user-supplied connection values. The returned
	// error is non-nil only for a fatal marshalling/ABI failure; driver-side
	// rejections surface as a ComError alongside a nil error.
	ConnectDevice(ctx context.Context, values []ConfEntry) (ComError, error)

	// ObtainDeviceConfInfo returns the recursive configuration tree.
	ObtainDeviceConfInfo(ctx context.Context) ([]ConfigInfo, error)

	// ConfigureDevice applies configuration values.
	ConfigureDevice(ctx context.Context, entries []ConfEntry) (ComError, error)

	// ObtainSensorTypeInfos returns the sensors (and their columns) the
	// driver will stream once started.
	ObtainSensorTypeInfos(ctx context.Context) ([]SensorTypeInfo, error)

	// Start begins streaming. Messages are delivered to sink from
	// driver-owned threads until Stop returns; sink must not block longer
	// than the caller can tolerate, since the driver thread blocks on it.
	Start(sink func(Message)) error

	// Stop ceases streaming. The driver guarantees no further sink
	// invocations once Stop returns.
	Stop() (ComError, error)

	// Close releases the driver's resources. Calls Stop first if the
	// driver was started, then destroy, then (for a loaded library)
	// unloads it. Close is idempotent.
	Close() error
}
