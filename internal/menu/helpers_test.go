package menu

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"fragmatch/internal/network"
	"fragmatch/internal/session"
)

// fakeCommands registra cada comando recebido do menu.
type fakeCommands struct {
	mu       sync.Mutex
	calls    chan string
	hostMax  int
	index    int
	roomCode string
	state    session.State
}

func newFakeCommands() *fakeCommands {
	return &fakeCommands{calls: make(chan string, 32), index: -1}
}

func (f *fakeCommands) record(name string) { f.calls <- name }

func (f *fakeCommands) HostGame(n int) {
	f.mu.Lock()
	f.hostMax = n
	f.mu.Unlock()
	f.record("host")
}

func (f *fakeCommands) FindSessions() { f.record("find") }

func (f *fakeCommands) JoinSession(index int) {
	f.mu.Lock()
	f.index = index
	f.mu.Unlock()
	f.record("join_index")
}

func (f *fakeCommands) JoinByRoomCode(code string) {
	f.mu.Lock()
	f.roomCode = code
	f.mu.Unlock()
	f.record("join_room")
}

func (f *fakeCommands) LeaveSession() { f.record("leave") }

func (f *fakeCommands) EndSession() { f.record("end") }

func (f *fakeCommands) State() session.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeCommands) RoomCode() string { return "4242" }

func (f *fakeCommands) SessionInfo(int) string { return "" }

func (f *fakeCommands) next(t *testing.T) string {
	t.Helper()
	select {
	case c := <-f.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for command")
		return ""
	}
}

func (f *fakeCommands) quiet(t *testing.T) {
	t.Helper()
	select {
	case c := <-f.calls:
		t.Fatalf("unexpected command %q", c)
	case <-time.After(50 * time.Millisecond):
	}
}

// harness sobe o servidor websocket real com o menu por trás.
type harness struct {
	handler *Handler
	cmds    *fakeCommands
	url     string
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := NewHandler(opts...)
	cmds := newFakeCommands()
	h.Bind(cmds)

	srv := network.NewServer(h, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Run(ctx)
	go h.Run(ctx, srv.Hub())

	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		cancel()
		ts.Close()
	})
	return &harness{
		handler: h,
		cmds:    cmds,
		url:     "ws" + strings.TrimPrefix(ts.URL, "http"),
	}
}

type wsClient struct {
	conn *websocket.Conn
	id   string
}

// dial conecta e consome o WELCOME.
func (hs *harness) dial(t *testing.T) *wsClient {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(hs.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	c := &wsClient{conn: conn}
	var welcome WelcomePayload
	require.NoError(t, c.expect(t, EvtWelcome).Decode(&welcome))
	c.id = welcome.ClientID
	return c
}

func (c *wsClient) send(t *testing.T, msgType string, payload any) {
	t.Helper()
	msg, err := network.NewMessage(msgType, payload)
	require.NoError(t, err)
	require.NoError(t, c.conn.WriteJSON(msg))
}

// expect lê até chegar uma mensagem do tipo pedido, descartando as demais.
func (c *wsClient) expect(t *testing.T, msgType string) network.Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		require.NoError(t, c.conn.SetReadDeadline(deadline))
		var msg network.Message
		require.NoError(t, c.conn.ReadJSON(&msg), "waiting for %s", msgType)
		if msg.Type == msgType {
			return msg
		}
	}
}
