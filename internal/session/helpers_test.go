package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"fragmatch/internal/services/directory"
)

type event struct {
	kind    string
	ok      bool
	results []directory.Summary
	code    string
}

// recorder implementa Listener e Traveler sobre canais.
type recorder struct {
	events  chan event
	travels chan Destination
}

func newRecorder() *recorder {
	return &recorder{events: make(chan event, 32), travels: make(chan Destination, 8)}
}

func (p *recorder) OnSessionCreated(ok bool) { p.events <- event{kind: "created", ok: ok} }

func (p *recorder) OnSessionSearchComplete(results []directory.Summary) {
	p.events <- event{kind: "search", results: results}
}

func (p *recorder) OnSessionJoined(ok bool) { p.events <- event{kind: "joined", ok: ok} }

func (p *recorder) OnRoomNotFound(code string) { p.events <- event{kind: "not_found", code: code} }

func (p *recorder) Travel(d Destination) { p.travels <- d }

func (p *recorder) next(t *testing.T) event {
	t.Helper()
	select {
	case e := <-p.events:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return event{}
	}
}

func (p *recorder) travel(t *testing.T) Destination {
	t.Helper()
	select {
	case d := <-p.travels:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for travel")
		return Destination{}
	}
}

func (p *recorder) quiet(t *testing.T) {
	t.Helper()
	select {
	case e := <-p.events:
		t.Fatalf("unexpected event %+v", e)
	case d := <-p.travels:
		t.Fatalf("unexpected travel %+v", d)
	case <-time.After(50 * time.Millisecond):
	}
}

func newTestCoordinator(t *testing.T, backend directory.Backend) (*Coordinator, *recorder) {
	t.Helper()
	p := newRecorder()
	c := New(backend, DefaultConfig(), WithListener(p), WithTraveler(p))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = c.Close(ctx)
	})
	return c, p
}

type mockBackend struct {
	mock.Mock

	mu    sync.Mutex
	calls []string
}

func (m *mockBackend) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, name)
}

func (m *mockBackend) order() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockBackend) Ready() error { return m.Called().Error(0) }

func (m *mockBackend) Create(ctx context.Context, name string, s directory.Settings) (directory.Descriptor, error) {
	m.record("create")
	args := m.Called(ctx, name, s)
	if echo, ok := args.Get(0).(func(string, directory.Settings) directory.Descriptor); ok {
		return echo(name, s), args.Error(1)
	}
	return args.Get(0).(directory.Descriptor), args.Error(1)
}

func (m *mockBackend) Start(ctx context.Context, name string) error {
	m.record("start")
	return m.Called(ctx, name).Error(0)
}

func (m *mockBackend) Find(ctx context.Context, q directory.Query) ([]directory.Summary, error) {
	m.record("find")
	args := m.Called(ctx, q)
	sessions, _ := args.Get(0).([]directory.Summary)
	return sessions, args.Error(1)
}

func (m *mockBackend) Join(ctx context.Context, name string, s directory.Summary) (string, error) {
	m.record("join")
	args := m.Called(ctx, name, s)
	return args.String(0), args.Error(1)
}

func (m *mockBackend) End(ctx context.Context, name string) error {
	m.record("end")
	return m.Called(ctx, name).Error(0)
}

func (m *mockBackend) Destroy(ctx context.Context, name string) error {
	m.record("destroy")
	return m.Called(ctx, name).Error(0)
}

func summaries(codes ...string) []directory.Summary {
	out := make([]directory.Summary, len(codes))
	for i, code := range codes {
		out[i] = directory.Summary{
			ID:              "session-" + code,
			Attributes:      directory.Attributes{directory.AttrRoomCode: code, directory.AttrMapName: DefaultMapName},
			Address:         "10.0.0.1",
			Port:            7777 + i,
			MaxParticipants: 2,
			OpenSlots:       1,
		}
	}
	return out
}

// echoDescriptor devolve um descritor com as settings recebidas.
func echoDescriptor(name string, s directory.Settings) directory.Descriptor {
	return directory.Descriptor{Name: name, ID: "host-1", Settings: s, Address: "10.0.0.1", Port: 7777}
}
