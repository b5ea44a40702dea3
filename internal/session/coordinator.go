// Package session implementa o coordenador do ciclo de vida da sessão: é o
// dono exclusivo da sessão anunciada (ou da participação numa sessão alheia)
// e sequencia criar→iniciar e buscar→filtrar→entrar sobre o diretório.
//
// O Coordinator é um ator: uma goroutine drena a caixa de entrada, e tanto os
// comandos públicos quanto as conclusões do diretório passam por ela. Nenhum
// comando bloqueia quem chama; os resultados chegam pelo Listener.
//
// Não há timeouts próprios: valem os do cliente do serviço de descoberta.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"

	"fragmatch/internal/game/roomcode"
	"fragmatch/internal/logging"
	"fragmatch/internal/services/directory"
)

const (
	DefaultSessionName = "GameSession"
	DefaultMapName     = "Lvl_Shooter"
)

// ErrClosed é devolvido por Close quando o Coordinator já foi fechado.
var ErrClosed = errors.New("session: coordinator closed")

type Config struct {
	SessionName string
	MapName     string
	Query       directory.Query
}

func DefaultConfig() Config {
	return Config{
		SessionName: DefaultSessionName,
		MapName:     DefaultMapName,
		Query:       directory.DefaultQuery(),
	}
}

type Option func(*Coordinator)

func WithListener(l Listener) Option { return func(c *Coordinator) { c.listener = l } }

func WithTraveler(t Traveler) Option { return func(c *Coordinator) { c.traveler = t } }

func WithRoomCodes(g *roomcode.Generator) Option { return func(c *Coordinator) { c.codes = g } }

func WithLogger(l hclog.Logger) Option { return func(c *Coordinator) { c.logger = l } }

func WithCounter(m directory.Counter) Option { return func(c *Coordinator) { c.counter = m } }

// deferred é um comando de posse que chegou enquanto outro estava em curso.
type deferred struct {
	run    func()
	reject func()
}

type Coordinator struct {
	cfg      Config
	dir      *directory.Client
	listener Listener
	traveler Traveler
	codes    *roomcode.Generator
	logger   hclog.Logger
	counter  directory.Counter

	state    atomic.Int32
	roomCode atomic.Value // string

	// conjunto de resultados da última busca concluída; lido de qualquer goroutine
	resultsMu sync.RWMutex
	results   []directory.Summary
	searched  bool

	// caixa de entrada sem limite: o próprio loop também posta nela
	qmu    sync.Mutex
	queue  []func()
	wake   chan struct{}
	stop   chan struct{}
	done   chan struct{}
	closed bool

	closeOnce atomic.Bool

	// estado do loop
	hosted      *directory.Descriptor
	joined      *directory.Summary
	pending     *deferred
	pendingCode string
	closing     bool
}

// New cria o Coordinator sobre um backend de diretório e inicia o loop.
func New(backend directory.Backend, cfg Config, opts ...Option) *Coordinator {
	if cfg.SessionName == "" {
		cfg.SessionName = DefaultSessionName
	}
	if cfg.MapName == "" {
		cfg.MapName = DefaultMapName
	}
	if cfg.Query.MaxResults == 0 {
		cfg.Query = directory.DefaultQuery()
	}
	c := &Coordinator{
		cfg:      cfg,
		listener: nopListener{},
		traveler: nopTraveler{},
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.codes == nil {
		c.codes = roomcode.NewDefault()
	}
	c.logger = logging.OrDiscard(c.logger).Named("session")
	c.roomCode.Store("")

	dirOpts := []directory.Option{directory.WithLogger(c.logger)}
	if c.counter != nil {
		dirOpts = append(dirOpts, directory.WithCounter(c.counter))
	}
	c.dir = directory.NewClient(backend, c.post, dirOpts...)

	go c.run()
	return c
}

// --- loop ---

func (c *Coordinator) post(f func()) {
	c.qmu.Lock()
	if c.closed {
		c.qmu.Unlock()
		return
	}
	c.queue = append(c.queue, f)
	c.qmu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Coordinator) run() {
	defer close(c.done)
	for {
		select {
		case <-c.stop:
			return
		case <-c.wake:
		}
		for {
			c.qmu.Lock()
			if len(c.queue) == 0 {
				c.qmu.Unlock()
				break
			}
			f := c.queue[0]
			c.queue[0] = nil
			c.queue = c.queue[1:]
			c.qmu.Unlock()
			f()
		}
	}
}

// --- leitura (qualquer goroutine) ---

func (c *Coordinator) State() State { return State(c.state.Load()) }

// RoomCode devolve o código da sessão que este processo hospeda, ou "".
func (c *Coordinator) RoomCode() string { return c.roomCode.Load().(string) }

// Results devolve uma cópia do último conjunto de resultados.
func (c *Coordinator) Results() []directory.Summary {
	c.resultsMu.RLock()
	defer c.resultsMu.RUnlock()
	return append([]directory.Summary(nil), c.results...)
}

// FindByRoomCode procura code no último conjunto de resultados concluído.
// Devolve -1 se não achar ou se nenhuma busca terminou. Não faz I/O.
func (c *Coordinator) FindByRoomCode(code string) int {
	c.resultsMu.RLock()
	defer c.resultsMu.RUnlock()
	if !c.searched {
		return -1
	}
	return directory.IndexOfRoomCode(c.results, code)
}

// RoomCodeAt devolve o código do resultado index, ou "" fora dos limites.
func (c *Coordinator) RoomCodeAt(index int) string {
	c.resultsMu.RLock()
	defer c.resultsMu.RUnlock()
	if index < 0 || index >= len(c.results) {
		return ""
	}
	return c.results[index].RoomCode()
}

// SessionInfo formata a linha de listagem do resultado index.
func (c *Coordinator) SessionInfo(index int) string {
	c.resultsMu.RLock()
	defer c.resultsMu.RUnlock()
	if index < 0 || index >= len(c.results) {
		return ""
	}
	return c.results[index].Info(index)
}

func (c *Coordinator) resultAt(index int) (directory.Summary, bool) {
	c.resultsMu.RLock()
	defer c.resultsMu.RUnlock()
	if !c.searched || index < 0 || index >= len(c.results) {
		return directory.Summary{}, false
	}
	return c.results[index], true
}

func (c *Coordinator) setResults(results []directory.Summary, searched bool) {
	c.resultsMu.Lock()
	defer c.resultsMu.Unlock()
	c.results = results
	c.searched = searched
}

// --- comandos ---

// HostGame anuncia uma nova sessão. Uma sessão já existente é destruída
// antes, e a criação só começa depois da conclusão do destroy.
func (c *Coordinator) HostGame(maxParticipants int) {
	c.post(func() {
		c.gate(func() {
			c.release(func() { c.create(maxParticipants) }, func(error) {
				c.listener.OnSessionCreated(false)
			})
		}, func() { c.listener.OnSessionCreated(false) })
	})
}

// FindSessions inicia uma busca e invalida o conjunto anterior.
func (c *Coordinator) FindSessions() {
	c.post(func() {
		if c.closing {
			c.listener.OnSessionSearchComplete(nil)
			return
		}
		c.pendingCode = ""
		c.search()
	})
}

// JoinSession entra no resultado index da última busca.
func (c *Coordinator) JoinSession(index int) {
	c.post(func() { c.joinIndex(index) })
}

// JoinByRoomCode busca e entra na sessão com o código informado.
func (c *Coordinator) JoinByRoomCode(input string) {
	c.post(func() {
		code, ok := roomcode.Normalize(input)
		if !ok || c.closing {
			c.logger.Warn("rejecting room code", "input", input)
			c.listener.OnRoomNotFound(input)
			return
		}
		c.pendingCode = code
		c.search()
	})
}

// EndSession marca a sessão como encerrada sem destruí-la.
func (c *Coordinator) EndSession() {
	c.post(func() {
		c.gate(c.end, nil)
	})
}

// DestroySession libera a sessão atual, mantendo os resultados de busca.
func (c *Coordinator) DestroySession() {
	c.post(func() {
		c.gate(func() { c.release(c.settleIdle, nil) }, nil)
	})
}

// LeaveSession libera a sessão e volta ao estado inicial.
func (c *Coordinator) LeaveSession() {
	c.post(func() {
		c.gate(func() {
			c.pendingCode = ""
			c.setResults(nil, false)
			c.release(c.settleIdle, nil)
		}, nil)
	})
}

// Close destrói a sessão mantida e encerra o loop. Se uma operação de posse
// estiver em curso, o destroy espera ela assentar. Comandos posteriores são
// rejeitados.
func (c *Coordinator) Close(ctx context.Context) error {
	if !c.closeOnce.CompareAndSwap(false, true) {
		return ErrClosed
	}

	released := make(chan struct{})
	var releaseErr error
	c.post(func() {
		if c.pending != nil {
			c.pending.reject()
			c.pending = nil
		}
		c.closing = true
		shutdown := func() {
			c.release(func() {
				c.settleIdle()
				close(released)
			}, func(err error) {
				releaseErr = err
				close(released)
			})
		}
		if c.State().busy() {
			c.pending = &deferred{run: shutdown, reject: func() {}}
			return
		}
		shutdown()
	})

	var err error
	select {
	case <-released:
		if releaseErr != nil {
			err = fmt.Errorf("destroy session on close: %w", releaseErr)
		}
	case <-ctx.Done():
		err = ctx.Err()
	}

	c.qmu.Lock()
	c.closed = true
	c.qmu.Unlock()
	close(c.stop)
	<-c.done
	c.dir.Close()
	return err
}

// --- internos (só na goroutine do loop) ---

func (c *Coordinator) setState(s State) {
	old := State(c.state.Swap(int32(s)))
	if old != s {
		c.logger.Debug("state change", "from", old, "to", s)
	}
}

// gate executa run agora ou, se uma operação de posse estiver em curso,
// guarda-o para quando ela assentar. Só o último guardado sobrevive; o
// anterior é rejeitado.
func (c *Coordinator) gate(run, reject func()) {
	if reject == nil {
		reject = func() {}
	}
	if c.closing {
		reject()
		return
	}
	if !c.State().busy() {
		run()
		return
	}
	if c.pending != nil {
		c.pending.reject()
	}
	c.pending = &deferred{run: run, reject: reject}
}

// resume roda o comando guardado depois que uma operação assentou.
func (c *Coordinator) resume() {
	if c.pending == nil || c.State().busy() {
		return
	}
	d := c.pending
	c.pending = nil
	d.run()
}

// release destrói a sessão mantida (hospedada ou como membro) e só então
// chama next. Se o destroy falhar, a posse é mantida, o estado anterior
// volta e fail recebe o erro; o próximo comando de posse tenta de novo.
func (c *Coordinator) release(next func(), fail func(error)) {
	if c.hosted == nil && c.joined == nil {
		next()
		return
	}
	prev := c.State()
	c.setState(StateDestroying)
	c.dir.DestroySession(c.cfg.SessionName, func(r directory.Result) {
		if !r.OK() {
			c.logger.Warn("destroy failed, keeping session", "error", r.Err)
			if prev.busy() {
				prev = c.restingState()
			}
			c.setState(prev)
			if fail != nil {
				fail(r.Err)
			}
			c.resume()
			return
		}
		c.hosted = nil
		c.joined = nil
		c.roomCode.Store("")
		c.setState(StateIdle)
		next()
		c.resume()
	})
}

func (c *Coordinator) settleIdle() {
	c.roomCode.Store("")
	c.setState(StateIdle)
}

// restingState devolve o estado de repouso quando não há sessão mantida.
func (c *Coordinator) restingState() State {
	c.resultsMu.RLock()
	defer c.resultsMu.RUnlock()
	if c.searched {
		return StateSearchComplete
	}
	return StateIdle
}

// --- caminho do host ---

func (c *Coordinator) create(maxParticipants int) {
	code := c.codes.Generate()
	settings := directory.Settings{
		MaxParticipants: maxParticipants,
		Advertise:       true,
		UsesPresence:    true,
		LAN:             true,
		AllowInvites:    true,
		Attributes: directory.Attributes{
			directory.AttrRoomCode: code,
			directory.AttrMapName:  c.cfg.MapName,
		},
	}
	c.setState(StateCreating)
	c.logger.Info("creating session", "room_code", code, "max_participants", maxParticipants)
	c.dir.CreateSession(c.cfg.SessionName, settings, func(r directory.CreateResult) {
		c.onCreated(code, r)
		c.resume()
	})
}

func (c *Coordinator) onCreated(code string, r directory.CreateResult) {
	if !r.OK() {
		c.logger.Error("create failed, falling back to local session", "error", r.Err)
		c.listener.OnSessionCreated(false)
		c.fallbackLocal(code)
		return
	}
	desc := r.Descriptor
	c.hosted = &desc
	c.roomCode.Store(code)
	c.listener.OnSessionCreated(true)

	c.setState(StateStarting)
	c.dir.StartSession(c.cfg.SessionName, func(r directory.Result) {
		c.onStarted(r)
		c.resume()
	})
}

func (c *Coordinator) onStarted(r directory.Result) {
	if c.hosted == nil {
		return
	}
	code := c.hosted.RoomCode()
	if !r.OK() {
		c.logger.Error("start failed, falling back to local session", "error", r.Err)
		c.release(func() { c.fallbackLocal(code) }, func(error) { c.fallbackLocal(code) })
		return
	}
	c.setState(StateAdvertised)
	c.logger.Info("session advertised", "room_code", code, "connect", c.hosted.ConnectString())
	c.traveler.Travel(Destination{
		Level:         c.cfg.MapName,
		ConnectString: c.hosted.ConnectString(),
		RoomCode:      code,
		Host:          true,
		Listen:        true,
	})
}

// fallbackLocal leva o jogador a uma sessão local de um participante.
func (c *Coordinator) fallbackLocal(code string) {
	c.roomCode.Store(code)
	c.setState(StateLocal)
	c.traveler.Travel(Destination{
		Level:    c.cfg.MapName,
		RoomCode: code,
		Host:     true,
		Local:    true,
	})
}

// --- caminho da busca ---

func (c *Coordinator) search() {
	c.setResults(nil, false)
	if c.hosted == nil && c.joined == nil && !c.State().busy() {
		c.setState(StateSearching)
	}
	c.dir.FindSessions(c.cfg.Query, func(r directory.FindResult) {
		if errors.Is(r.Err, directory.ErrSuperseded) {
			return
		}
		c.onSearchComplete(r)
		c.resume()
	})
}

func (c *Coordinator) onSearchComplete(r directory.FindResult) {
	results := r.Sessions
	if !r.OK() {
		c.logger.Warn("search failed, reporting empty result", "error", r.Err)
		results = nil
	}
	c.setResults(results, true)
	if c.State() == StateSearching {
		c.setState(StateSearchComplete)
	}
	c.logger.Info("search complete", "results", len(results))
	c.listener.OnSessionSearchComplete(append([]directory.Summary(nil), results...))

	if code := c.pendingCode; code != "" {
		c.pendingCode = ""
		index := directory.IndexOfRoomCode(results, code)
		if index < 0 {
			c.logger.Info("room not found", "room_code", code)
			c.listener.OnRoomNotFound(code)
			return
		}
		c.joinIndex(index)
	}
}

// --- caminho do join ---

func (c *Coordinator) joinIndex(index int) {
	target, ok := c.resultAt(index)
	if !ok || c.closing {
		c.logger.Warn("join rejected before dispatch", "index", index)
		c.listener.OnSessionJoined(false)
		return
	}
	c.gate(func() {
		c.release(func() { c.join(target) }, func(error) { c.listener.OnSessionJoined(false) })
	}, func() { c.listener.OnSessionJoined(false) })
}

func (c *Coordinator) join(target directory.Summary) {
	c.setState(StateJoining)
	c.dir.JoinSession(c.cfg.SessionName, target, func(r directory.JoinResult) {
		c.onJoined(target, r)
		c.resume()
	})
}

func (c *Coordinator) onJoined(target directory.Summary, r directory.JoinResult) {
	if !r.OK() {
		c.logger.Warn("join failed", "id", target.ID, "error", r.Err)
		c.setState(c.restingState())
		c.listener.OnSessionJoined(false)
		return
	}
	c.joined = &target
	c.setState(StateJoined)
	c.logger.Info("joined session", "id", target.ID, "room_code", target.RoomCode())
	c.listener.OnSessionJoined(true)
	c.traveler.Travel(Destination{
		Level:         target.Attributes.MapName(),
		ConnectString: r.ConnectString,
		RoomCode:      target.RoomCode(),
	})
}

// --- fim de sessão ---

func (c *Coordinator) end() {
	if c.hosted == nil && c.joined == nil {
		c.logger.Debug("end requested without a session")
		return
	}
	prev := c.State()
	c.setState(StateEnding)
	c.dir.EndSession(c.cfg.SessionName, func(r directory.Result) {
		if r.OK() {
			c.setState(StateEnded)
		} else {
			c.logger.Warn("end failed", "error", r.Err)
			c.setState(prev)
		}
		c.resume()
	})
}
