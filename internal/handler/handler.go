// Package handler is the Message Handler: one instance per streaming
// device, bridging a driver's callback thread into persistence. Every
// Sensor message blocks the calling driver thread until its insert
// commits, which is the backpressure spec.md §4.E requires; Common
// messages are forwarded to the logger at the mapped level and never
// propagated back to the driver, since the driver has no error
// back-channel.
package handler

import (
	"context"

	"go.uber.org/zap"

	"github.com/sensorhost/sensorhost/internal/module"
	"github.com/sensorhost/sensorhost/internal/query"
	"github.com/sensorhost/sensorhost/internal/store"
)

// Execer is the slice of *store.Store the handler needs, narrowed so
// tests can supply a fake instead of a live database.
type Execer interface {
	Exec(ctx context.Context, query string, args ...any) error
}

// Broadcaster fans a device's messages out to live dashboard listeners
// (internal/httpapi's websocket stream endpoint). Optional: a nil
// Broadcaster just means nothing is currently watching.
type Broadcaster interface {
	Broadcast(deviceID uint32, msg module.Message)
}

// Handler persists one device's sensor stream and relays its common-log
// messages. It satisfies registry.Stopper by duck typing so that package
// never needs to import this one.
type Handler struct {
	deviceID    uint32
	tableByName map[string]string // sensor name -> quoted-free table name
	store       Execer
	broadcaster Broadcaster
	logger      *zap.Logger
}

// New builds a Handler for a device whose sensor tables are already bound
// (tableByName maps each sensor's declared name to its storage table).
// broadcaster may be nil.
func New(deviceID uint32, tableByName map[string]string, st Execer, broadcaster Broadcaster, logger *zap.Logger) *Handler {
	return &Handler{
		deviceID:    deviceID,
		tableByName: tableByName,
		store:       st,
		broadcaster: broadcaster,
		logger:      logger.With(zap.Uint32("device_id", deviceID)),
	}
}

// Sink is installed as the driver's message callback via module.Driver's
// Start. It runs on whatever thread the driver's callback arrives on
// (module/native_unix.go's cgo trampoline, or the Windows callback
// thunk) and is expected to block until handling completes.
func (h *Handler) Sink(msg module.Message) {
	switch msg.Kind {
	case module.MessageSensor:
		h.handleSensor(msg)
	case module.MessageCommon:
		h.handleCommon(msg)
	}
	if h.broadcaster != nil {
		h.broadcaster.Broadcast(h.deviceID, msg)
	}
}

func (h *Handler) handleSensor(msg module.Message) {
	table, ok := h.tableByName[msg.SensorName]
	if !ok {
		h.logger.Warn("sensor message for unbound sensor", zap.String("sensor", msg.SensorName))
		return
	}

	columns := make([]string, len(msg.Data))
	values := make([]any, len(msg.Data))
	for i, v := range msg.Data {
		columns[i] = v.Name
		values[i] = sensorValueArg(v)
	}

	// table is device-id-prefixed (e.g. "1__temperature") and so can start
	// with a digit; quote it the same way the read path and DDL do.
	sql, args, err := query.Insert(store.QuoteIdentifier(table)).Columns(columns...).Values(values...).Build()
	if err != nil {
		h.logger.Error("build sensor insert", zap.String("sensor", msg.SensorName), zap.Error(err))
		return
	}

	// Blocks the driver-owned thread until the insert completes: this is
	// the backpressure mechanism, not an oversight.
	if err := h.store.Exec(context.Background(), sql, args...); err != nil {
		h.logger.Error("insert sensor sample", zap.String("sensor", msg.SensorName), zap.Error(err))
	}
}

func sensorValueArg(v module.SensorValue) any {
	switch v.Type {
	case module.TypeInt16, module.TypeInt32, module.TypeInt64:
		return v.Int
	case module.TypeFloat32, module.TypeFloat64:
		return v.Float
	case module.TypeTimestamp:
		return v.Time
	case module.TypeJSON:
		return v.JSON
	default:
		return v.Str
	}
}

func (h *Handler) handleCommon(msg module.Message) {
	switch msg.Level {
	case module.LevelWarn:
		h.logger.Warn(msg.Text)
	case module.LevelError:
		h.logger.Error(msg.Text)
	default:
		h.logger.Info(msg.Text)
	}
}

// Stop is a no-op hook satisfying registry.Stopper; the handler holds no
// resources of its own beyond the shared store and logger, so there is
// nothing to release here. It exists so the Lifecycle Controller has a
// uniform way to detach a device's handler before Close-ing its driver.
func (h *Handler) Stop() {}
