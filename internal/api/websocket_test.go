package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/venue-console/opmap/internal/render"
)

func dialSession(t *testing.T, ts *testServer, id, query string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(ts.e)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/sessions/" + id + "/ws" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads messages until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var msg WSMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == msgType {
			return msg
		}
	}
}

func sendWS(t *testing.T, conn *websocket.Conn, msgType, id string, payload interface{}) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(WSMessage{Type: msgType, ID: id, Payload: data, Timestamp: time.Now().UnixMilli()}))
}

func TestWebSocket_FramesFollowInput(t *testing.T) {
	ts := newTestServer(t)
	id := ts.openSession(t)
	conn := dialSession(t, ts, id, "")

	readUntil(t, conn, MsgTypeConnected)
	first := readUntil(t, conn, MsgTypeFrame)
	var frame render.Frame
	require.NoError(t, json.Unmarshal(first.Payload, &frame))
	assert.Empty(t, frame.Selection)

	sendWS(t, conn, MsgTypePointer, "1", pointerRequest{Type: "down", X: 40, Y: 40})

	// The ack and the pushed frame race; wait for both
	var gotAck, gotFrame bool
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for !gotAck || !gotFrame {
		var msg WSMessage
		require.NoError(t, conn.ReadJSON(&msg))
		switch msg.Type {
		case MsgTypeAck:
			assert.Equal(t, "1", msg.ID)
			var resp InputResponse
			require.NoError(t, json.Unmarshal(msg.Payload, &resp))
			assert.Equal(t, "B1", resp.HitID)
			gotAck = true
		case MsgTypeFrame:
			require.NoError(t, json.Unmarshal(msg.Payload, &frame))
			if frame.Selection == "B1" {
				gotFrame = true
			}
		}
	}
}

func TestWebSocket_SearchAndErrors(t *testing.T) {
	ts := newTestServer(t)
	id := ts.openSession(t)
	ts.fake.SetResults("v1", nil)
	conn := dialSession(t, ts, id, "")
	readUntil(t, conn, MsgTypeConnected)

	sendWS(t, conn, "teleport", "7", map[string]string{})
	errMsg := readUntil(t, conn, MsgTypeError)
	assert.Equal(t, "7", errMsg.ID)
	assert.Contains(t, string(errMsg.Payload), "INVALID_TYPE")

	sendWS(t, conn, MsgTypeSearch, "8", wsSearchPayload{Query: "v1"})
	results := readUntil(t, conn, MsgTypeResults)
	assert.Equal(t, "8", results.ID)
	assert.Contains(t, string(results.Payload), `"results":[]`)

	sendWS(t, conn, MsgTypePing, "9", nil)
	pong := readUntil(t, conn, MsgTypePong)
	assert.Equal(t, "9", pong.ID)
}

func TestWebSocket_BinaryFrames(t *testing.T) {
	ts := newTestServer(t)
	id := ts.openSession(t)
	conn := dialSession(t, ts, id, "?format=msgpack")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		kind, data, err := conn.ReadMessage()
		require.NoError(t, err)
		if kind != websocket.BinaryMessage {
			continue
		}
		var frame render.Frame
		require.NoError(t, msgpack.Unmarshal(data, &frame))
		assert.NotEmpty(t, frame.Commands)
		return
	}
}

func TestWebSocket_SessionClosed(t *testing.T) {
	ts := newTestServer(t)
	id := ts.openSession(t)
	conn := dialSession(t, ts, id, "")
	readUntil(t, conn, MsgTypeFrame)

	ts.mgr.Delete(id)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
			return
		}
	}
}

func TestWebSocket_UnknownSession(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/sessions/nope/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
