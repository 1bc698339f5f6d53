package handler

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sensorhost/sensorhost/internal/module"
)

type fakeExecer struct {
	mu       sync.Mutex
	queries  []string
	args     [][]any
	execErr  error
}

func (f *fakeExecer) Exec(ctx context.Context, query string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	f.args = append(f.args, args)
	return f.execErr
}

func TestSink_SensorMessageInsertsRow(t *testing.T) {
	fe := &fakeExecer{}
	h := New(1, map[string]string{"temperature": "1__temperature"}, fe, nil, zap.NewNop())

	h.Sink(module.Message{
		Kind:       module.MessageSensor,
		SensorName: "temperature",
		Data: []module.SensorValue{
			{Name: "value", Type: module.TypeFloat32, Float: 21.5},
		},
	})

	if len(fe.queries) != 1 {
		t.Fatalf("got %d exec calls, want 1", len(fe.queries))
	}
	if fe.args[0][0] != 21.5 {
		t.Errorf("args = %v, want [21.5]", fe.args[0])
	}
}

func TestSink_UnboundSensorIsSkipped(t *testing.T) {
	fe := &fakeExecer{}
	h := New(1, map[string]string{}, fe, nil, zap.NewNop())

	h.Sink(module.Message{Kind: module.MessageSensor, SensorName: "unknown"})

	if len(fe.queries) != 0 {
		t.Errorf("got %d exec calls, want 0", len(fe.queries))
	}
}

func TestSink_CommonMessageLogsAtMappedLevel(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	logger := zap.New(core)
	h := New(1, nil, &fakeExecer{}, nil, logger)

	h.Sink(module.Message{Kind: module.MessageCommon, Level: module.LevelWarn, Text: "low battery"})
	h.Sink(module.Message{Kind: module.MessageCommon, Level: module.LevelInfo, Text: "ignored at warn level"})

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d log entries, want 1", len(entries))
	}
	if entries[0].Message != "low battery" {
		t.Errorf("logged message = %q", entries[0].Message)
	}
}

func TestStop_IsNoOp(t *testing.T) {
	h := New(1, nil, &fakeExecer{}, nil, zap.NewNop())
	h.Stop() // must not panic
}

type fakeBroadcaster struct {
	mu   sync.Mutex
	msgs []module.Message
}

func (f *fakeBroadcaster) Broadcast(deviceID uint32, msg module.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
}

func TestSink_ForwardsToBroadcaster(t *testing.T) {
	fb := &fakeBroadcaster{}
	h := New(1, map[string]string{"temperature": "1__temperature"}, &fakeExecer{}, fb, zap.NewNop())

	h.Sink(module.Message{Kind: module.MessageSensor, SensorName: "temperature"})
	h.Sink(module.Message{Kind: module.MessageCommon, Level: module.LevelInfo, Text: "hello"})

	if len(fb.msgs) != 2 {
		t.Fatalf("got %d broadcast messages, want 2", len(fb.msgs))
	}
}
