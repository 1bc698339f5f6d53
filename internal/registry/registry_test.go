package registry

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func TestNextID_Monotonic(t *testing.T) {
	r := New(t.TempDir(), zap.NewNop())
	var last DeviceID
	for i := 0; i < 5; i++ {
		id := r.NextID()
		if id <= last {
			t.Fatalf("NextID() = %d, want > %d", id, last)
		}
		last = id
	}
}

func TestSeedLastID_ContinuesFromMax(t *testing.T) {
	r := New(t.TempDir(), zap.NewNop())
	r.SeedLastID(41)
	if got := r.NextID(); got != 42 {
		t.Errorf("NextID() = %d, want 42", got)
	}
}

func TestCanonicalize(t *testing.T) {
	cases := map[string]string{
		"Temp Sensor v1": "temp_sensor_v1",
		"  Leading/Trailing  ": "leading_trailing",
		"already_snake": "already_snake",
	}
	for in, want := range cases {
		if got := Canonicalize(in); got != want {
			t.Errorf("Canonicalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCreateDeviceDirs_CreatesModuleAndData(t *testing.T) {
	root := t.TempDir()
	r := New(root, zap.NewNop())

	if err := r.CreateDeviceDirs(1, "temp_sensor_v1"); err != nil {
		t.Fatalf("CreateDeviceDirs: %v", err)
	}

	moduleDir := filepath.Clean(r.ModuleDir(1, "temp_sensor_v1"))
	dataDir := filepath.Clean(r.DataDir(1, "temp_sensor_v1"))
	for _, dir := range []string{moduleDir, dataDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("expected directory %s to exist", dir)
		}
	}
}

func TestRemoveDeviceDirs_IdempotentOnPartialTree(t *testing.T) {
	root := t.TempDir()
	r := New(root, zap.NewNop())

	// Simulate a failure after only the device root existed, before
	// module/ or data/ were created.
	if err := os.MkdirAll(r.DeviceRoot(1, "partial"), 0o755); err != nil {
		t.Fatalf("setup MkdirAll: %v", err)
	}

	if err := r.RemoveDeviceDirs(1, "partial"); err != nil {
		t.Fatalf("first RemoveDeviceDirs: %v", err)
	}
	// Second call against an already-removed tree must not error.
	if err := r.RemoveDeviceDirs(1, "partial"); err != nil {
		t.Fatalf("second RemoveDeviceDirs: %v", err)
	}

	if _, err := os.Stat(r.DeviceRoot(1, "partial")); !os.IsNotExist(err) {
		t.Errorf("expected device root to be gone, stat err = %v", err)
	}
}

func TestRegistryPutGetDelete(t *testing.T) {
	r := New(t.TempDir(), zap.NewNop())
	d := &Device{ID: 7, DisplayName: "x", CanonicalName: "x"}
	r.Put(d)

	got, ok := r.Get(7)
	if !ok || got != d {
		t.Fatalf("Get(7) = %v, %v, want %v, true", got, ok, d)
	}

	r.Delete(7)
	if _, ok := r.Get(7); ok {
		t.Error("expected device to be gone after Delete")
	}
}
