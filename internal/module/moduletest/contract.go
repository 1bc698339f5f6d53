package moduletest

import (
	"context"
	"testing"

	"github.com/sensorhost/sensorhost/internal/module"
)

// TestDriverContract runs a suite of behavioral contract tests against any
// module.Driver implementation. Call this from both the cgo-backed driver's
// test file (against a test fixture library) and from this package's own
// test file (against Fake), so the two stay behaviorally identical.
//
//	func TestContract(t *testing.T) {
//	    moduletest.TestDriverContract(t, func() module.Driver { return moduletest.NewFake() })
//	}
func TestDriverContract(t *testing.T, factory func() module.Driver) {
	t.Helper()

	t.Run("ObtainDeviceConnInfo_before_connect", func(t *testing.T) {
		d := factory()
		defer d.Close()
		if _, err := d.ObtainDeviceConnInfo(context.Background()); err != nil {
			t.Fatalf("ObtainDeviceConnInfo() error = %v", err)
		}
	})

	t.Run("ObtainDeviceConfInfo_before_configure", func(t *testing.T) {
		d := factory()
		defer d.Close()
		if _, err := d.ObtainDeviceConfInfo(context.Background()); err != nil {
			t.Fatalf("ObtainDeviceConfInfo() error = %v", err)
		}
	})

	t.Run("ObtainSensorTypeInfos_returns_at_least_one", func(t *testing.T) {
		d := factory()
		defer d.Close()
		infos, err := d.ObtainSensorTypeInfos(context.Background())
		if err != nil {
			t.Fatalf("ObtainSensorTypeInfos() error = %v", err)
		}
		if len(infos) == 0 {
			t.Error("ObtainSensorTypeInfos() returned no sensor types")
		}
	})

	t.Run("Start_then_Stop", func(t *testing.T) {
		d := factory()
		defer d.Close()
		if err := d.Start(func(module.Message) {}); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if _, err := d.Stop(); err != nil {
			t.Fatalf("Stop() error = %v", err)
		}
	})

	t.Run("Stop_without_Start_does_not_error", func(t *testing.T) {
		d := factory()
		defer d.Close()
		if _, err := d.Stop(); err != nil {
			t.Fatalf("Stop() without Start error = %v", err)
		}
	})

	t.Run("Close_is_idempotent", func(t *testing.T) {
		d := factory()
		if err := d.Close(); err != nil {
			t.Fatalf("first Close() error = %v", err)
		}
		if err := d.Close(); err != nil {
			t.Fatalf("second Close() error = %v", err)
		}
	})

	t.Run("calls_after_Close_fail", func(t *testing.T) {
		d := factory()
		d.Close()
		if _, err := d.ObtainDeviceConnInfo(context.Background()); err == nil {
			t.Error("ObtainDeviceConnInfo() after Close() should error")
		}
	})
}
