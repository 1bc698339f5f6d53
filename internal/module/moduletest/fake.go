// Package moduletest provides a pure-Go module.Driver implementation for
// exercising the Device Registry and Lifecycle Controller without loading
// native code, plus a shared contract test any Driver implementation
// (including module.Instance over a real library) should satisfy.
package moduletest

import (
	"context"
	"sync"

	"github.com/sensorhost/sensorhost/internal/apperr"
	"github.com/sensorhost/sensorhost/internal/module"
)

// Fake is a configurable in-memory module.Driver. NewFake returns one that
// reports one "endpoint" connection parameter, one required integer config
// leaf, and one sensor type with a single float column (a zero Fake reports
// empty trees); tests can override any of
// ConnInfo/ConfInfo/SensorTypes before first use to shape the tree under
// test.
type Fake struct {
	ConnInfo    []module.ConnParamDescriptor
	ConfInfo    []module.ConfigInfo
	SensorTypes []module.SensorTypeInfo

	// ConnectResult / ConfigureResult let a test force a particular
	// ComError out of ConnectDevice / ConfigureDevice without a real
	// driver rejecting the call.
	ConnectResult   module.ComError
	ConfigureResult module.ComError

	mu      sync.Mutex
	sink    func(module.Message)
	started bool
	closed  bool

	// Received records the last values submitted to ConnectDevice /
	// ConfigureDevice, for assertions.
	Received []module.ConfEntry
}

// NewFake returns a Fake pre-populated with a minimal but non-empty
// connection/config/sensor tree, so lifecycle tests exercise real
// marshalling shapes without hand-building one every time.
func NewFake() *Fake {
	return &Fake{
		ConnInfo: []module.ConnParamDescriptor{
			{Name: "endpoint", Type: module.TypeString},
		},
		ConfInfo: []module.ConfigInfo{
			{
				Name: "polling",
				Leaf: &module.ConfigLeaf{ID: 1, Kind: module.LeafInt, Required: true},
			},
		},
		SensorTypes: []module.SensorTypeInfo{
			{
				Name: "temperature",
				Columns: []module.Column{
					{Name: "celsius", Type: module.TypeFloat64},
				},
			},
		},
		ConnectResult:   module.ComOK,
		ConfigureResult: module.ComOK,
	}
}

func (f *Fake) ObtainDeviceConnInfo(ctx context.Context) ([]module.ConnParamDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, apperr.New(apperr.FailedPrecondition, "fake driver closed")
	}
	return f.ConnInfo, nil
}

func (f *Fake) ConnectDevice(ctx context.Context, values []module.ConfEntry) (module.ComError, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return module.ComUnknown, apperr.New(apperr.FailedPrecondition, "fake driver closed")
	}
	f.Received = values
	return f.ConnectResult, nil
}

func (f *Fake) ObtainDeviceConfInfo(ctx context.Context) ([]module.ConfigInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, apperr.New(apperr.FailedPrecondition, "fake driver closed")
	}
	return f.ConfInfo, nil
}

func (f *Fake) ConfigureDevice(ctx context.Context, entries []module.ConfEntry) (module.ComError, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return module.ComUnknown, apperr.New(apperr.FailedPrecondition, "fake driver closed")
	}
	f.Received = entries
	return f.ConfigureResult, nil
}

func (f *Fake) ObtainSensorTypeInfos(ctx context.Context) ([]module.SensorTypeInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, apperr.New(apperr.FailedPrecondition, "fake driver closed")
	}
	return f.SensorTypes, nil
}

func (f *Fake) Start(sink func(module.Message)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return apperr.New(apperr.FailedPrecondition, "fake driver closed")
	}
	if f.started {
		return apperr.New(apperr.FailedPrecondition, "fake driver already started")
	}
	f.sink = sink
	f.started = true
	return nil
}

func (f *Fake) Stop() (module.ComError, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.started {
		return module.ComOK, nil
	}
	f.started = false
	f.sink = nil
	return module.ComOK, nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = false
	f.sink = nil
	f.closed = true
	return nil
}

// Emit delivers msg to the sink installed by Start, synchronously, the
// same way a driver callback thread would. It is a no-op if Start hasn't
// been called or Stop/Close already ran.
func (f *Fake) Emit(msg module.Message) {
	f.mu.Lock()
	sink := f.sink
	started := f.started
	f.mu.Unlock()
	if started && sink != nil {
		sink(msg)
	}
}

var _ module.Driver = (*Fake)(nil)
