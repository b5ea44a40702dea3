package directory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockBackend struct{ mock.Mock }

func (m *mockBackend) Ready() error { return m.Called().Error(0) }

func (m *mockBackend) Create(ctx context.Context, name string, s Settings) (Descriptor, error) {
	args := m.Called(ctx, name, s)
	return args.Get(0).(Descriptor), args.Error(1)
}

func (m *mockBackend) Start(ctx context.Context, name string) error {
	return m.Called(ctx, name).Error(0)
}

func (m *mockBackend) Find(ctx context.Context, q Query) ([]Summary, error) {
	args := m.Called(ctx, q)
	sessions, _ := args.Get(0).([]Summary)
	return sessions, args.Error(1)
}

func (m *mockBackend) Join(ctx context.Context, name string, s Summary) (string, error) {
	args := m.Called(ctx, name, s)
	return args.String(0), args.Error(1)
}

func (m *mockBackend) End(ctx context.Context, name string) error {
	return m.Called(ctx, name).Error(0)
}

func (m *mockBackend) Destroy(ctx context.Context, name string) error {
	return m.Called(ctx, name).Error(0)
}

type recordingCounter struct {
	mu   sync.Mutex
	keys []string
}

func (r *recordingCounter) IncrCounter(key []string, _ float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, strings.Join(key, "."))
}

func (r *recordingCounter) count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, k := range r.keys {
		if k == key {
			n++
		}
	}
	return n
}

// harness simula o loop do Coordinator: tudo que o Client posta cai num canal.
type harness struct {
	posted  chan func()
	backend *mockBackend
	counter *recordingCounter
	client  *Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		posted:  make(chan func(), 16),
		backend: &mockBackend{},
		counter: &recordingCounter{},
	}
	h.client = NewClient(h.backend, func(f func()) { h.posted <- f }, WithCounter(h.counter))
	t.Cleanup(h.client.Close)
	return h
}

// drain executa a próxima conclusão postada.
func (h *harness) drain(t *testing.T) {
	t.Helper()
	select {
	case f := <-h.posted:
		f()
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a completion")
	}
}

func (h *harness) expectNothing(t *testing.T) {
	t.Helper()
	select {
	case <-h.posted:
		t.Fatal("unexpected completion")
	case <-time.After(50 * time.Millisecond):
	}
}

func validSettings() Settings {
	return Settings{
		MaxParticipants: 2,
		Advertise:       true,
		UsesPresence:    true,
		LAN:             true,
		Attributes:      Attributes{AttrRoomCode: "0420", AttrMapName: "Lvl_Shooter"},
	}
}

func TestClient_UnavailableFailsWithoutBackendCall(t *testing.T) {
	h := newHarness(t)
	h.backend.On("Ready").Return(errors.New("no agent"))

	var got CreateResult
	h.client.CreateSession("game", validSettings(), func(r CreateResult) { got = r })
	h.drain(t)

	assert.ErrorIs(t, got.Err, ErrServiceUnavailable)
	assert.Equal(t, VerbCreate, got.Verb)
	h.backend.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	assert.False(t, h.client.Pending(VerbCreate))
	assert.Equal(t, 1, h.counter.count("directory.create.failed"))
}

func TestClient_InvalidArgumentsFailFast(t *testing.T) {
	h := newHarness(t)

	settings := validSettings()
	settings.MaxParticipants = 0
	var created CreateResult
	h.client.CreateSession("game", settings, func(r CreateResult) { created = r })
	h.drain(t)
	assert.ErrorIs(t, created.Err, ErrInvalidArgument)

	var found FindResult
	h.client.FindSessions(Query{MaxResults: 0}, func(r FindResult) { found = r })
	h.drain(t)
	assert.ErrorIs(t, found.Err, ErrInvalidArgument)

	var joined JoinResult
	h.client.JoinSession("game", Summary{}, func(r JoinResult) { joined = r })
	h.drain(t)
	assert.ErrorIs(t, joined.Err, ErrInvalidArgument)

	var destroyed Result
	h.client.DestroySession("", func(r Result) { destroyed = r })
	h.drain(t)
	assert.ErrorIs(t, destroyed.Err, ErrInvalidArgument)

	h.backend.AssertNotCalled(t, "Ready")
}

func TestClient_CreateSuccess(t *testing.T) {
	h := newHarness(t)
	desc := Descriptor{Name: "game", ID: "game-1", Settings: validSettings(), Address: "10.0.0.5", Port: 7777}
	h.backend.On("Ready").Return(nil)
	h.backend.On("Create", mock.Anything, "game", mock.AnythingOfType("Settings")).Return(desc, nil)

	var got CreateResult
	h.client.CreateSession("game", validSettings(), func(r CreateResult) { got = r })
	h.drain(t)

	require.True(t, got.OK())
	assert.Equal(t, "0420", got.Descriptor.RoomCode())
	assert.Equal(t, "10.0.0.5:7777", got.Descriptor.ConnectString())
	assert.Equal(t, 1, h.counter.count("directory.create.issued"))
	assert.Equal(t, 1, h.counter.count("directory.create.ok"))
	h.backend.AssertExpectations(t)
}

func TestClient_BackendErrorsAreClassified(t *testing.T) {
	h := newHarness(t)
	boom := errors.New("boom")
	h.backend.On("Ready").Return(nil)
	h.backend.On("Start", mock.Anything, "game").Return(boom)
	h.backend.On("End", mock.Anything, "game").Return(ErrNoSession)

	var started, ended Result
	h.client.StartSession("game", func(r Result) { started = r })
	h.drain(t)
	h.client.EndSession("game", func(r Result) { ended = r })
	h.drain(t)

	assert.ErrorIs(t, started.Err, ErrOperationFailed)
	assert.ErrorIs(t, started.Err, boom)
	assert.ErrorIs(t, ended.Err, ErrNoSession)
	assert.ErrorIs(t, ended.Err, ErrOperationFailed)
}

func TestClient_FindTruncatesToMaxResults(t *testing.T) {
	h := newHarness(t)
	sessions := []Summary{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	h.backend.On("Ready").Return(nil)
	h.backend.On("Find", mock.Anything, mock.Anything).Return(sessions, nil)

	var got FindResult
	h.client.FindSessions(Query{MaxResults: 2}, func(r FindResult) { got = r })
	h.drain(t)

	require.True(t, got.OK())
	assert.Len(t, got.Sessions, 2)
}

func TestClient_SupersededCallCompletesOnceAndLateResultIsDropped(t *testing.T) {
	h := newHarness(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	h.backend.On("Ready").Return(nil)
	h.backend.On("Find", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return([]Summary{{ID: "stale"}}, nil).Once()
	h.backend.On("Find", mock.Anything, mock.Anything).
		Return([]Summary{{ID: "fresh"}}, nil).Once()

	var results []FindResult
	record := func(r FindResult) { results = append(results, r) }

	h.client.FindSessions(DefaultQuery(), record)
	<-entered
	h.client.FindSessions(DefaultQuery(), record)

	h.drain(t)
	h.drain(t)
	require.Len(t, results, 2)
	assert.ErrorIs(t, results[0].Err, ErrSuperseded)
	require.True(t, results[1].OK())
	assert.Equal(t, "fresh", results[1].Sessions[0].ID)

	close(release)
	h.expectNothing(t)
	assert.Len(t, results, 2)
	assert.Equal(t, 1, h.counter.count("directory.find.superseded"))
}

func TestClient_JoinReturnsConnectString(t *testing.T) {
	h := newHarness(t)
	target := Summary{ID: "game-1", Address: "10.0.0.5", Port: 7777, MaxParticipants: 2, OpenSlots: 1}
	h.backend.On("Ready").Return(nil)
	h.backend.On("Join", mock.Anything, "game", target).Return("10.0.0.5:7777", nil)

	var got JoinResult
	h.client.JoinSession("game", target, func(r JoinResult) { got = r })
	h.drain(t)

	require.True(t, got.OK())
	assert.Equal(t, "10.0.0.5:7777", got.ConnectString)
}

func TestClient_DifferentVerbsDoNotSupersede(t *testing.T) {
	h := newHarness(t)
	h.backend.On("Ready").Return(nil)
	h.backend.On("End", mock.Anything, "game").Return(nil)
	h.backend.On("Destroy", mock.Anything, "game").Return(nil)

	var verbs []Verb
	h.client.EndSession("game", func(r Result) { verbs = append(verbs, r.Verb); assert.True(t, r.OK()) })
	h.client.DestroySession("game", func(r Result) { verbs = append(verbs, r.Verb); assert.True(t, r.OK()) })
	h.drain(t)
	h.drain(t)

	assert.ElementsMatch(t, []Verb{VerbEnd, VerbDestroy}, verbs)
}
