package network

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoHandler responde cada mensagem ao remetente e registra conexões.
type echoHandler struct {
	connected    chan string
	disconnected chan string
}

func newEchoHandler() *echoHandler {
	return &echoHandler{connected: make(chan string, 8), disconnected: make(chan string, 8)}
}

func (e *echoHandler) OnConnect(c *Client)    { e.connected <- c.ID() }
func (e *echoHandler) OnDisconnect(c *Client) { e.disconnected <- c.ID() }
func (e *echoHandler) OnMessage(c *Client, msg Message) {
	c.Send(Message{Type: "ECHO", Payload: msg.Payload})
}

func startServer(t *testing.T, handler EventHandler) (*Server, string) {
	t.Helper()
	srv := NewServer(handler, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Run(ctx)
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		cancel()
		ts.Close()
	})
	return srv, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func waitID(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case id := <-ch:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
		return ""
	}
}

func TestMessageEnvelope(t *testing.T) {
	msg, err := NewMessage("JOIN_ROOM", map[string]string{"roomCode": "0427"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"roomCode":"0427"}`, string(msg.Payload))

	var req struct {
		RoomCode string `json:"roomCode"`
	}
	require.NoError(t, msg.Decode(&req))
	assert.Equal(t, "0427", req.RoomCode)

	empty, err := NewMessage("FIND_SESSIONS", nil)
	require.NoError(t, err)
	assert.Nil(t, empty.Payload)
	assert.NoError(t, empty.Decode(&req))

	bad := Message{Type: "X", Payload: []byte(`{`)}
	assert.ErrorContains(t, bad.Decode(&req), "decode X payload")
}

func TestServerEchoAndDisconnect(t *testing.T) {
	h := newEchoHandler()
	_, url := startServer(t, h)

	conn := dial(t, url)
	id := waitID(t, h.connected)
	assert.NotEmpty(t, id)

	msg, err := NewMessage("PING", map[string]int{"n": 1})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(msg))

	got := read(t, conn)
	assert.Equal(t, "ECHO", got.Type)
	assert.JSONEq(t, `{"n":1}`, string(got.Payload))

	conn.Close()
	assert.Equal(t, id, waitID(t, h.disconnected))
}

func TestHubBroadcastReachesEveryClient(t *testing.T) {
	h := newEchoHandler()
	srv, url := startServer(t, h)

	a := dial(t, url)
	waitID(t, h.connected)
	b := dial(t, url)
	waitID(t, h.connected)

	srv.Hub().Broadcast(Message{Type: "SCORE_CHANGED"})

	assert.Equal(t, "SCORE_CHANGED", read(t, a).Type)
	assert.Equal(t, "SCORE_CHANGED", read(t, b).Type)
}

func TestBroadcastAfterShutdownDoesNotBlock(t *testing.T) {
	hub := NewHub(newEchoHandler(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	done := make(chan struct{})
	go func() {
		for range 100 {
			hub.Broadcast(Message{Type: "LATE"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked after shutdown")
	}
}
