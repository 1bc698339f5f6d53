package moduletest

import (
	"context"
	"testing"

	"github.com/sensorhost/sensorhost/internal/module"
)

func TestFakeContract(t *testing.T) {
	TestDriverContract(t, func() module.Driver { return NewFake() })
}

func TestFakeEmitReachesSink(t *testing.T) {
	f := NewFake()
	defer f.Close()

	got := make(chan module.Message, 1)
	if err := f.Start(func(m module.Message) { got <- m }); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	want := module.Message{Kind: module.MessageSensor, SensorName: "temperature"}
	f.Emit(want)

	select {
	case m := <-got:
		if m.SensorName != want.SensorName {
			t.Errorf("SensorName = %q, want %q", m.SensorName, want.SensorName)
		}
	default:
		t.Fatal("Emit() did not reach the installed sink")
	}
}

func TestFakeConnectDeviceRecordsValues(t *testing.T) {
	f := NewFake()
	defer f.Close()

	v := &module.ConfValue{Kind: module.LeafString, Str: "10.0.0.1"}
	entries := []module.ConfEntry{{ID: 1, Value: v}}

	code, err := f.ConnectDevice(context.Background(), entries)
	if err != nil {
		t.Fatalf("ConnectDevice() error = %v", err)
	}
	if code != module.ComOK {
		t.Errorf("ConnectDevice() code = %v, want ComOK", code)
	}
	if len(f.Received) != 1 || f.Received[0].Value.Str != "10.0.0.1" {
		t.Errorf("Received = %+v, want one entry with Str=10.0.0.1", f.Received)
	}
}

func TestFakeConnectDeviceHonorsForcedResult(t *testing.T) {
	f := NewFake()
	defer f.Close()
	f.ConnectResult = module.ComConnectionError

	code, err := f.ConnectDevice(context.Background(), nil)
	if err != nil {
		t.Fatalf("ConnectDevice() error = %v", err)
	}
	if code != module.ComConnectionError {
		t.Errorf("ConnectDevice() code = %v, want ComConnectionError", code)
	}
}
