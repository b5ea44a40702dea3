// Package menu liga os clientes websocket ao Coordinator de sessão e à
// partida corrente. Os comandos chegam pelo Hub, os eventos de sessão e de
// placar saem em broadcast para todos os clientes conectados.
package menu

import (
	"context"
	"sync"

	"github.com/hashicorp/go-hclog"

	"fragmatch/internal/game/match"
	"fragmatch/internal/logging"
	"fragmatch/internal/network"
	"fragmatch/internal/session"
)

const outboxSize = 256

// Commands é a parte do *session.Coordinator usada pelo menu.
type Commands interface {
	HostGame(maxParticipants int)
	FindSessions()
	JoinSession(index int)
	JoinByRoomCode(code string)
	LeaveSession()
	EndSession()
	State() session.State
	RoomCode() string
	SessionInfo(index int) string
}

type Broadcaster interface {
	Broadcast(msg network.Message)
}

// HostFunc prepara o publicador autoritativo da partida hospedada. release
// é chamado quando a partida sai de cena.
type HostFunc func(ctx context.Context, roomCode string) (pub match.Publisher, release func() error, err error)

// FollowFunc liga a réplica local ao placar publicado pelo host.
type FollowFunc func(roomCode string, replica *match.Replica) (stop func() error, err error)

// CommandHandlerFunc é a assinatura de todos os tratadores de comando.
type CommandHandlerFunc func(h *Handler, c *network.Client, msg network.Message)

type Option func(*Handler)

func WithMatchConfig(cfg match.Config) Option { return func(h *Handler) { h.matchCfg = cfg } }

func WithHost(fn HostFunc) Option { return func(h *Handler) { h.host = fn } }

func WithFollow(fn FollowFunc) Option { return func(h *Handler) { h.follow = fn } }

func WithClock(c match.Clock) Option { return func(h *Handler) { h.clock = c } }

func WithMaxParticipants(n int) Option { return func(h *Handler) { h.maxParticipants = n } }

func WithLogger(l hclog.Logger) Option { return func(h *Handler) { h.logger = l } }

type Handler struct {
	cmds            Commands
	matchCfg        match.Config
	host            HostFunc
	follow          FollowFunc
	clock           match.Clock
	maxParticipants int
	logger          hclog.Logger

	router map[string]CommandHandlerFunc
	outbox chan network.Message
	stages chan func(context.Context)
	done   chan struct{}

	mu           sync.Mutex
	participants []string
	current      *stage
}

func NewHandler(opts ...Option) *Handler {
	h := &Handler{
		matchCfg:        match.DefaultConfig(),
		maxParticipants: 2,
		router:          make(map[string]CommandHandlerFunc),
		outbox:          make(chan network.Message, outboxSize),
		stages:          make(chan func(context.Context), 16),
		done:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = logging.OrDiscard(h.logger).Named("menu")
	h.registerHandlers()
	return h
}

// Bind liga o menu ao Coordinator. Deve ser chamado antes de Run.
func (h *Handler) Bind(cmds Commands) { h.cmds = cmds }

// Run entrega os eventos a out e executa as trocas de partida até ctx
// terminar. Ao sair, encerra a partida corrente.
func (h *Handler) Run(ctx context.Context, out Broadcaster) {
	defer close(h.done)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-h.outbox:
				out.Broadcast(msg)
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			h.teardown()
			wg.Wait()
			return
		case fn := <-h.stages:
			fn(ctx)
		}
	}
}

// --- network.EventHandler (goroutine do Hub) ---

func (h *Handler) OnConnect(c *network.Client) {
	h.mu.Lock()
	h.participants = append(h.participants, c.ID())
	st := h.current
	h.mu.Unlock()

	h.logger.Info("client connected", "client", c.ID(), "remote", c.RemoteAddr())
	if st != nil && st.match != nil {
		st.match.AddParticipant(c.ID())
	}

	welcome := WelcomePayload{ClientID: c.ID()}
	if h.cmds != nil {
		welcome.State = h.cmds.State().String()
		welcome.RoomCode = h.cmds.RoomCode()
	}
	h.reply(c, EvtWelcome, welcome)
}

func (h *Handler) OnDisconnect(c *network.Client) {
	h.mu.Lock()
	for i, id := range h.participants {
		if id == c.ID() {
			h.participants = append(h.participants[:i], h.participants[i+1:]...)
			break
		}
	}
	h.mu.Unlock()
	h.logger.Info("client disconnected", "client", c.ID())
}

func (h *Handler) OnMessage(c *network.Client, msg network.Message) {
	handler, ok := h.router[msg.Type]
	if !ok {
		h.logger.Debug("unknown command", "client", c.ID(), "type", msg.Type)
		c.Send(errorMessage("Unknown command: " + msg.Type))
		return
	}
	if h.cmds == nil {
		c.Send(errorMessage("Session service not ready."))
		return
	}
	handler(h, c, msg)
}

// --- saída ---

func (h *Handler) reply(c *network.Client, msgType string, payload any) {
	msg, err := network.NewMessage(msgType, payload)
	if err != nil {
		h.logger.Error("encode reply", "type", msgType, "error", err)
		return
	}
	if !c.Send(msg) {
		h.logger.Warn("reply dropped, client buffer full", "client", c.ID(), "type", msgType)
	}
}

// emit enfileira um broadcast sem bloquear quem chamou (o Coordinator ou a
// partida, com o lock dela mantido).
func (h *Handler) emit(msgType string, payload any) {
	msg, err := network.NewMessage(msgType, payload)
	if err != nil {
		h.logger.Error("encode event", "type", msgType, "error", err)
		return
	}
	select {
	case h.outbox <- msg:
	default:
		h.logger.Warn("outbox full, dropping event", "type", msgType)
	}
}

func (h *Handler) snapshotParticipants() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.participants...)
}
