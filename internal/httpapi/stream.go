package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/sensorhost/sensorhost/internal/module"
)

// streamMessage is the wire shape of module.Message pushed to websocket
// stream subscribers: the same sensor samples and common log lines the
// Message Handler already persists, fanned out live instead of only
// written to the sensor tables.
type streamMessage struct {
	Kind       string           `json:"kind"`
	SensorName string           `json:"sensor,omitempty"`
	Data       []sensorValueDTO `json:"data,omitempty"`
	Level      string           `json:"level,omitempty"`
	Text       string           `json:"text,omitempty"`
}

type sensorValueDTO struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

func toStreamMessage(msg module.Message) streamMessage {
	out := streamMessage{}
	switch msg.Kind {
	case module.MessageSensor:
		out.Kind = "sensor"
		out.SensorName = msg.SensorName
		out.Data = make([]sensorValueDTO, len(msg.Data))
		for i, v := range msg.Data {
			out.Data[i] = sensorValueDTO{Name: v.Name, Value: valueOf(v)}
		}
	case module.MessageCommon:
		out.Kind = "common"
		out.Text = msg.Text
		switch msg.Level {
		case module.LevelWarn:
			out.Level = "warn"
		case module.LevelError:
			out.Level = "error"
		default:
			out.Level = "info"
		}
	}
	return out
}

func valueOf(v module.SensorValue) any {
	switch v.Type {
	case module.TypeInt16, module.TypeInt32, module.TypeInt64:
		return v.Int
	case module.TypeFloat32, module.TypeFloat64:
		return v.Float
	case module.TypeTimestamp:
		return v.Time.Format(time.RFC3339Nano)
	case module.TypeJSON:
		return v.JSON
	default:
		return v.Str
	}
}

type streamClient struct {
	conn *websocket.Conn
	send chan streamMessage
}

// Hub fans out device Message events to websocket subscribers, keyed by
// device ID so a dashboard watching device 3 never sees device 7's
// traffic. It implements handler.Broadcaster.
type Hub struct {
	mu      sync.RWMutex
	clients map[uint32]map[*streamClient]struct{}
	logger  *zap.Logger
}

// NewHub creates an empty stream Hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{clients: make(map[uint32]map[*streamClient]struct{}), logger: logger}
}

func (h *Hub) register(deviceID uint32, c *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[deviceID] == nil {
		h.clients[deviceID] = make(map[*streamClient]struct{})
	}
	h.clients[deviceID][c] = struct{}{}
}

func (h *Hub) unregister(deviceID uint32, c *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.clients[deviceID]; ok {
		if _, ok := set[c]; ok {
			delete(set, c)
			close(c.send)
		}
		if len(set) == 0 {
			delete(h.clients, deviceID)
		}
	}
}

// Broadcast delivers msg to every subscriber of deviceID. A full send
// buffer drops the message rather than blocking the Message Handler's
// synchronous insert path.
func (h *Hub) Broadcast(deviceID uint32, msg module.Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	wire := toStreamMessage(msg)
	messagesHandledTotal.WithLabelValues(wire.Kind).Inc()
	for c := range h.clients[deviceID] {
		select {
		case c.send <- wire:
		default:
			h.logger.Warn("stream client buffer full, dropping message", zap.Uint32("device_id", deviceID))
		}
	}
}

// SubscriberCount reports how many clients are watching deviceID, exposed
// via the handler_queue_depth gauge.
func (h *Hub) SubscriberCount(deviceID uint32) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[deviceID])
}

func (c *streamClient) writePump(ctx context.Context) {
	for msg := range c.send {
		writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := wsjson.Write(writeCtx, c.conn, msg)
		cancel()
		if err != nil {
			return
		}
	}
}

func (c *streamClient) readPump(ctx context.Context) {
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}

// handleDeviceStream godoc
//
//	@Summary	Stream live sensor samples and log lines for a device
//	@Tags		stream
//	@Param		id	path	int	true	"device id"
//	@Router		/api/v1/devices/{id}/stream [get]
func (s *Server) handleDeviceStream(w http.ResponseWriter, r *http.Request) {
	idStr := r.PathValue("id")
	id64, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		BadRequest(w, "device id must be an unsigned 32-bit integer", r.URL.Path)
		return
	}
	deviceID := uint32(id64)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		s.logger.Error("websocket accept failed", zap.Error(err))
		return
	}

	client := &streamClient{conn: conn, send: make(chan streamMessage, 256)}
	s.hub.register(deviceID, client)
	handlerQueueDepth.WithLabelValues(strconv.FormatUint(uint64(deviceID), 10)).Set(float64(s.hub.SubscriberCount(deviceID)))

	ctx := r.Context()
	done := make(chan struct{})
	go func() {
		client.writePump(ctx)
		close(done)
	}()

	client.readPump(ctx)

	s.hub.unregister(deviceID, client)
	handlerQueueDepth.WithLabelValues(strconv.FormatUint(uint64(deviceID), 10)).Set(float64(s.hub.SubscriberCount(deviceID)))
	conn.Close(websocket.StatusNormalClosure, "")
	<-done
}
