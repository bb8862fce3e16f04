package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/venue-console/opmap/internal/models"
	"github.com/venue-console/opmap/internal/session"
)

// WebSocket message types for the live map protocol
const (
	// Client -> Server messages
	MsgTypePointer        = "pointer"
	MsgTypeWheel          = "wheel"
	MsgTypeZoom           = "zoom"
	MsgTypeResize         = "resize"
	MsgTypeClearSelection = "selection:clear"
	MsgTypeFilters        = "filters"
	MsgTypeSearch         = "search"
	MsgTypeSearchSelect   = "search:select"
	MsgTypeRefresh        = "refresh"
	MsgTypePing           = "ping"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypeFrame     = "frame"
	MsgTypeState     = "state"
	MsgTypeSelection = "selection"
	MsgTypeResults   = "results"
	MsgTypeAck       = "ack"
	MsgTypeError     = "error"
	MsgTypePong      = "pong"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPingInterval = 30 * time.Second
	wsPongWait     = 2 * wsPingInterval
)

// WebSocket message structure
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// WebSocket error response
type WSErrorResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type wsSearchPayload struct {
	Query string `json:"q"`
	Kind  string `json:"kind,omitempty"`
}

type wsRefreshPayload struct {
	Force bool `json:"force"`
}

// WebSocketHandler pushes frames of one map session to a client and
// applies the input the client sends back.
type WebSocketHandler struct {
	sessionMgr     SessionManager
	upgrader       websocket.Upgrader
	maxMessageSize int64
	logger         *slog.Logger
}

// NewWebSocketHandler creates a new WebSocket handler. maxMessageSize bounds
// inbound messages in bytes.
func NewWebSocketHandler(sessionMgr SessionManager, maxMessageSize int64, logger *slog.Logger) *WebSocketHandler {
	if maxMessageSize <= 0 {
		maxMessageSize = 64 * 1024
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHandler{
		sessionMgr: sessionMgr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Consoles are served from other origins during development
				return true
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
		},
		maxMessageSize: maxMessageSize,
		logger:         logger.With("component", "websocket"),
	}
}

// wsConn serialises writes; gorilla connections allow one concurrent writer.
type wsConn struct {
	ws     *websocket.Conn
	mu     sync.Mutex
	binary bool
	logger *slog.Logger
}

func (c *wsConn) writeJSON(msg WSMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := c.ws.WriteJSON(msg); err != nil {
		c.logger.Debug("failed to send message", "type", msg.Type, "error", err)
	}
}

func (c *wsConn) writeBinary(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := c.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
		c.logger.Debug("failed to send binary frame", "error", err)
	}
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

func (c *wsConn) send(msgType, id string, payload interface{}) {
	msg := WSMessage{Type: msgType, ID: id, Timestamp: time.Now().UnixMilli()}
	if payload != nil {
		msg.Payload = mustJSON(payload)
	}
	c.writeJSON(msg)
}

func (c *wsConn) sendError(id, message, code string) {
	c.send(MsgTypeError, id, WSErrorResponse{Type: MsgTypeError, Message: message, Code: code})
}

// HandleWebSocket upgrades the connection and streams frames of the session.
// With ?format=msgpack frames are sent as binary msgpack messages; all other
// messages stay JSON.
func (wsh *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	sess, err := lookupSession(c, wsh.sessionMgr)
	if err != nil {
		return err
	}

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	logger := wsh.logger.With("session_id", sess.ID())
	conn := &wsConn{ws: ws, binary: c.QueryParam("format") == "msgpack", logger: logger}
	logger.Info("client connected", "binary", conn.binary)

	ws.SetReadLimit(wsh.maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(wsPongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	changes, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	conn.send(MsgTypeConnected, "", sess.Info())
	pushFrame(conn, sess)

	go wsh.writeLoop(ctx, conn, sess, changes)

	for {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("connection error", "error", err)
			}
			break
		}
		_ = ws.SetReadDeadline(time.Now().Add(wsPongWait))
		wsh.dispatch(ctx, conn, sess, msg)
	}

	logger.Info("client disconnected")
	return nil
}

// writeLoop renders and pushes a frame after every change signal and keeps
// the connection alive with pings.
func (wsh *WebSocketHandler) writeLoop(ctx context.Context, conn *wsConn, sess *session.MapSession, changes <-chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				// Session closed
				conn.mu.Lock()
				_ = conn.ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
					time.Now().Add(wsWriteWait))
				conn.mu.Unlock()
				return
			}
			pushFrame(conn, sess)
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return
			}
		}
	}
}

// pushFrame sends the current frame, or the load state when no frame can be
// drawn yet.
func pushFrame(conn *wsConn, sess *session.MapSession) {
	frame, err := sess.Frame()
	if err != nil {
		conn.send(MsgTypeState, "", sess.Info())
		return
	}

	if conn.binary {
		data, err := msgpack.Marshal(frame)
		if err != nil {
			conn.sendError("", "failed to encode frame: "+err.Error(), "ENCODE_ERROR")
			return
		}
		conn.writeBinary(data)
		return
	}
	conn.send(MsgTypeFrame, "", frame)
}

func (wsh *WebSocketHandler) dispatch(ctx context.Context, conn *wsConn, sess *session.MapSession, msg WSMessage) {
	switch msg.Type {
	case MsgTypePing:
		conn.send(MsgTypePong, msg.ID, nil)

	case MsgTypePointer:
		var p pointerRequest
		if !decodePayload(conn, msg, &p) {
			return
		}
		kind, err := session.ParsePointerKind(p.Type)
		if err != nil {
			conn.sendError(msg.ID, err.Error(), "INVALID_POINTER")
			return
		}
		out, err := sess.Pointer(kind, models.Point{X: p.X, Y: p.Y})
		if err != nil {
			conn.sendError(msg.ID, err.Error(), "INVALID_POINTER")
			return
		}
		conn.send(MsgTypeAck, msg.ID, newInputResponse(sess, out))

	case MsgTypeWheel:
		var w wheelRequest
		if !decodePayload(conn, msg, &w) {
			return
		}
		out := sess.Wheel(w.DeltaY)
		conn.send(MsgTypeAck, msg.ID, newInputResponse(sess, out))

	case MsgTypeZoom:
		var z zoomRequest
		if !decodePayload(conn, msg, &z) {
			return
		}
		action, err := session.ParseZoomAction(z.Action)
		if err != nil {
			conn.sendError(msg.ID, err.Error(), "INVALID_ZOOM")
			return
		}
		out, _ := sess.Zoom(action)
		conn.send(MsgTypeAck, msg.ID, newInputResponse(sess, out))

	case MsgTypeResize:
		var r resizeRequest
		if !decodePayload(conn, msg, &r) {
			return
		}
		if r.Width <= 0 || r.Height <= 0 {
			conn.sendError(msg.ID, "width and height must be positive", "INVALID_PAYLOAD")
			return
		}
		sess.SetCanvas(r.Width, r.Height)
		conn.send(MsgTypeAck, msg.ID, nil)

	case MsgTypeClearSelection:
		sess.ClearSelection()
		conn.send(MsgTypeAck, msg.ID, nil)

	case MsgTypeFilters:
		var f models.LayoutFilter
		if !decodePayload(conn, msg, &f) {
			return
		}
		sess.SetFilter(f)
		conn.send(MsgTypeAck, msg.ID, sess.Filter())

	case MsgTypeSearch:
		var s wsSearchPayload
		if !decodePayload(conn, msg, &s) {
			return
		}
		var kind *models.ResultKind
		if s.Kind != "" {
			k, err := models.ParseResultKind(s.Kind)
			if err != nil {
				conn.sendError(msg.ID, err.Error(), "INVALID_KIND")
				return
			}
			kind = &k
		}
		// Searches run off the read loop so pointer input stays live
		go func() {
			out := sess.Search(ctx, s.Query, kind)
			if !out.Stale {
				conn.send(MsgTypeResults, msg.ID, out)
			}
		}()

	case MsgTypeSearchSelect:
		var req searchSelectRequest
		if !decodePayload(conn, msg, &req) {
			return
		}
		sel, err := sess.SelectSearchResult(req.ResultID)
		if err != nil {
			conn.sendError(msg.ID, err.Error(), FromSessionError(err, req.ResultID).Code)
			return
		}
		conn.send(MsgTypeSelection, msg.ID, sel)

	case MsgTypeRefresh:
		var r wsRefreshPayload
		if len(msg.Payload) > 0 && !decodePayload(conn, msg, &r) {
			return
		}
		sess.Refresh(r.Force)
		conn.send(MsgTypeAck, msg.ID, nil)

	default:
		conn.sendError(msg.ID, "Unknown message type: "+msg.Type, "INVALID_TYPE")
	}
}

func decodePayload(conn *wsConn, msg WSMessage, v interface{}) bool {
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		conn.sendError(msg.ID, "Invalid "+msg.Type+" payload: "+err.Error(), "INVALID_PAYLOAD")
		return false
	}
	return true
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
