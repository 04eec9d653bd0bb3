package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/seadaemon/internal/domain/events"
	"github.com/GriffinCanCode/seadaemon/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/seadaemon/internal/shared/types"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
	maxReadSize  = 4096
)

var upgrader = websocket.Upgrader{
	// Connections are authenticated before the upgrade
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is a frame exchanged with clients
type Message struct {
	Type      string          `json:"type"`
	Message   string          `json:"message,omitempty"`
	Event     *events.Event   `json:"event,omitempty"`
	Status    *types.Snapshot `json:"status,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// StatusFunc returns the current status snapshot
type StatusFunc func() types.Snapshot

// Handler manages WebSocket connections
type Handler struct {
	ctx     context.Context
	bus     *events.Bus
	status  StatusFunc
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

// NewHandler creates a new WebSocket handler. Connections are closed when
// ctx is done.
func NewHandler(ctx context.Context, bus *events.Bus, status StatusFunc, metrics *monitoring.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		ctx:     ctx,
		bus:     bus,
		status:  status,
		metrics: metrics,
		logger:  logger,
	}
}

// HandleConnection handles WebSocket upgrade and streams events
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxReadSize)

	sub := h.bus.Subscribe()
	defer sub.Close()

	if h.metrics != nil {
		h.metrics.IncSubscribers()
		defer h.metrics.DecSubscribers()
	}

	app := c.Query("app")
	h.logger.Debug("Event subscriber connected",
		zap.String("client_ip", c.ClientIP()),
		zap.String("app", app))

	requests := make(chan Message, 8)
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			var msg Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			select {
			case requests <- msg:
			default:
			}
		}
	}()

	if err := h.send(conn, Message{Type: "system", Message: "connected"}); err != nil {
		return
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "daemon shutting down"),
				time.Now().Add(writeWait))
			return

		case <-closed:
			return

		case evt, ok := <-sub.C:
			if !ok {
				return
			}
			if app != "" && evt.App != app {
				continue
			}
			if err := h.send(conn, Message{Type: "event", Event: &evt}); err != nil {
				return
			}

		case msg := <-requests:
			if err := h.reply(conn, msg); err != nil {
				return
			}

		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (h *Handler) reply(conn *websocket.Conn, msg Message) error {
	switch msg.Type {
	case "ping":
		return h.send(conn, Message{Type: "pong"})
	case "status":
		snap := h.status()
		return h.send(conn, Message{Type: "status", Status: &snap})
	default:
		return h.send(conn, Message{Type: "error", Message: "unknown message type"})
	}
}

func (h *Handler) send(conn *websocket.Conn, msg Message) error {
	msg.Timestamp = time.Now().Unix()
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	if err := conn.WriteJSON(msg); err != nil {
		h.logger.Debug("WebSocket write failed", zap.Error(err))
		return err
	}
	return nil
}
