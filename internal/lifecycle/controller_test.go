package lifecycle

import (
	"bytes"
	"context"
	"os"
	"testing"

	"go.uber.org/zap"

	"github.com/sensorhost/sensorhost/internal/module"
	"github.com/sensorhost/sensorhost/internal/module/moduletest"
	"github.com/sensorhost/sensorhost/internal/registry"
	"github.com/sensorhost/sensorhost/internal/store"
)

func TestValidateDisplayName(t *testing.T) {
	valid := []string{"Temp Sensor v1", "a", "_underscored_"}
	for _, name := range valid {
		if err := validateDisplayName(name); err != nil {
			t.Errorf("validateDisplayName(%q) = %v, want nil", name, err)
		}
	}

	invalid := []string{"", "   ", "---", string(make([]byte, 256))}
	for _, name := range invalid {
		if err := validateDisplayName(name); err == nil {
			t.Errorf("validateDisplayName(%q) = nil, want error", name)
		}
	}
}

// newTestStore opens a real Postgres connection for integration tests.
// Set SENSORHOST_TEST_DSN to run these; otherwise they're skipped, since
// there is no embeddable Postgres to spin up in-process.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dsn := os.Getenv("SENSORHOST_TEST_DSN")
	if dsn == "" {
		t.Skip("SENSORHOST_TEST_DSN not set, skipping Postgres-backed integration test")
	}
	s, err := store.Open(dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return s
}

func fakeLoader(path, dataDir string) (module.Driver, error) {
	return moduletest.NewFake(), nil
}

func TestStartDeviceInit_CreatesDeviceInDeviceState(t *testing.T) {
	st := newTestStore(t)
	reg := registry.New(t.TempDir(), zap.NewNop())
	ctrl := New(reg, st, zap.NewNop(), fakeLoader, nil)

	id, descriptors, err := ctrl.StartDeviceInit(context.Background(), "Temp Sensor", bytes.NewReader([]byte("fake-binary")))
	if err != nil {
		t.Fatalf("StartDeviceInit: %v", err)
	}
	if len(descriptors) == 0 {
		t.Error("expected at least one connection descriptor from the fake driver")
	}

	d, ok := reg.Get(id)
	if !ok {
		t.Fatal("expected device to be registered")
	}
	if d.InitState != registry.StateDevice {
		t.Errorf("InitState = %v, want StateDevice", d.InitState)
	}
}

func TestStartDeviceInit_RejectsBadDisplayName(t *testing.T) {
	st := newTestStore(t)
	reg := registry.New(t.TempDir(), zap.NewNop())
	ctrl := New(reg, st, zap.NewNop(), fakeLoader, nil)

	if _, _, err := ctrl.StartDeviceInit(context.Background(), "---", bytes.NewReader(nil)); err == nil {
		t.Error("expected error for display name with no word characters")
	}
}

func TestConfigureDevice_TransitionsToSensorsAndStarts(t *testing.T) {
	st := newTestStore(t)
	reg := registry.New(t.TempDir(), zap.NewNop())
	ctrl := New(reg, st, zap.NewNop(), fakeLoader, nil)

	id, _, err := ctrl.StartDeviceInit(context.Background(), "Temp Sensor", bytes.NewReader([]byte("fake-binary")))
	if err != nil {
		t.Fatalf("StartDeviceInit: %v", err)
	}

	comErr, err := ctrl.ConfigureDevice(context.Background(), id, nil)
	if err != nil {
		t.Fatalf("ConfigureDevice: %v", err)
	}
	if comErr != module.ComOK {
		t.Errorf("ComError = %v, want ComOK", comErr)
	}

	d, _ := reg.Get(id)
	if d.InitState != registry.StateSensors {
		t.Errorf("InitState = %v, want StateSensors", d.InitState)
	}
	if len(d.Sensors) == 0 {
		t.Error("expected sensors to be bound")
	}
}

func TestInterruptDeviceInit_RemovesDevice(t *testing.T) {
	st := newTestStore(t)
	reg := registry.New(t.TempDir(), zap.NewNop())
	ctrl := New(reg, st, zap.NewNop(), fakeLoader, nil)

	id, _, err := ctrl.StartDeviceInit(context.Background(), "Temp Sensor", bytes.NewReader([]byte("fake-binary")))
	if err != nil {
		t.Fatalf("StartDeviceInit: %v", err)
	}

	if err := ctrl.InterruptDeviceInit(context.Background(), id); err != nil {
		t.Fatalf("InterruptDeviceInit: %v", err)
	}

	if _, ok := reg.Get(id); ok {
		t.Error("expected device to be removed from the registry")
	}
}

func TestInterruptDeviceInit_RejectsAfterSensorsBound(t *testing.T) {
	st := newTestStore(t)
	reg := registry.New(t.TempDir(), zap.NewNop())
	ctrl := New(reg, st, zap.NewNop(), fakeLoader, nil)

	id, _, err := ctrl.StartDeviceInit(context.Background(), "Temp Sensor", bytes.NewReader([]byte("fake-binary")))
	if err != nil {
		t.Fatalf("StartDeviceInit: %v", err)
	}
	if _, err := ctrl.ConfigureDevice(context.Background(), id, nil); err != nil {
		t.Fatalf("ConfigureDevice: %v", err)
	}

	if err := ctrl.InterruptDeviceInit(context.Background(), id); err == nil {
		t.Error("expected FailedPrecondition once sensors are bound")
	}
}
