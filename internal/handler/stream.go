package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"tracepoint-dashboard-api/internal/service"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 512                 // Maximum message size allowed from peer.
)

// StreamMessage is one frame of the overview stream.
type StreamMessage struct {
	Type     string                  `json:"type"`
	Overview *service.OverviewReport `json:"overview,omitempty"`
	Error    string                  `json:"error,omitempty"`
}

// OverviewStreamHandler pushes an overview snapshot on connect and then every
// refresh interval until the client goes away.
type OverviewStreamHandler struct {
	Dashboard *DashboardHandler
	Interval  time.Duration

	upgrader websocket.Upgrader
}

// NewOverviewStreamHandler creates a stream handler. Origins are checked
// against allowedOrigins; "*" or an empty list allows any origin.
func NewOverviewStreamHandler(dashboard *DashboardHandler, interval time.Duration, allowedOrigins []string) *OverviewStreamHandler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &OverviewStreamHandler{
		Dashboard: dashboard,
		Interval:  interval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// ServeHTTP upgrades the connection and runs the pumps.
func (h *OverviewStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := h.Dashboard.Logger

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("WebSocket upgrade error: %v", err)
		return
	}
	log.Info("Overview stream opened for %s", conn.RemoteAddr())

	// The fetch context dies with the connection.
	ctx, cancel := context.WithCancel(context.Background())
	if viewID := r.Header.Get(ViewIDHeader); viewID != "" {
		ctx = service.WithViewKey(ctx, viewID)
	}

	go h.readPump(conn, cancel)
	h.writePump(ctx, conn)
	cancel()
	log.Info("Overview stream closed for %s", conn.RemoteAddr())
}

// readPump discards client messages and cancels the stream once the peer is
// gone.
func (h *OverviewStreamHandler) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.Dashboard.Logger.Debug("WebSocket read error: %v", err)
			}
			return
		}
	}
}

func (h *OverviewStreamHandler) writePump(ctx context.Context, conn *websocket.Conn) {
	refresh := time.NewTicker(h.Interval)
	ping := time.NewTicker(pingPeriod)
	defer func() {
		refresh.Stop()
		ping.Stop()
		conn.Close()
	}()

	if !h.push(ctx, conn) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-refresh.C:
			if !h.push(ctx, conn) {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// push sends one overview frame. It reports false when the connection is
// unusable.
func (h *OverviewStreamHandler) push(ctx context.Context, conn *websocket.Conn) bool {
	fetchCtx, cancel := context.WithTimeout(ctx, LongRunningTimeout)
	report, err := h.Dashboard.Service.Overview(fetchCtx)
	cancel()

	if ctx.Err() != nil {
		return false
	}
	msg := StreamMessage{Type: "overview", Overview: report}
	if err != nil {
		msg = StreamMessage{Type: "error", Error: err.Error()}
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		h.Dashboard.Logger.Debug("WebSocket write error: %v", err)
		return false
	}
	return true
}
