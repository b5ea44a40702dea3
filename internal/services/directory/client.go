// Package directory adapta o serviço externo de descoberta de sessões.
//
// O Client expõe as operações de forma assíncrona e garante que toda
// operação iniciada termina exatamente uma vez: pela conclusão real do
// backend ou por uma falha sintética imediata (serviço indisponível,
// argumento inválido, chamada substituída).
package directory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	metrics "github.com/armon/go-metrics"
	"github.com/hashicorp/go-hclog"

	"fragmatch/internal/logging"
)

// Counter é o subconjunto de *metrics.Metrics que o Client usa.
type Counter interface {
	IncrCounter(key []string, val float32)
}

type globalCounter struct{}

func (globalCounter) IncrCounter(key []string, val float32) { metrics.IncrCounter(key, val) }

// slot guarda o único callback pendente de um verbo.
type slot struct {
	token      uint64
	superseded func()
}

type Client struct {
	backend Backend
	post    func(func())
	logger  hclog.Logger
	counter Counter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	slots map[Verb]*slot
	seq   uint64
}

type Option func(*Client)

func WithLogger(l hclog.Logger) Option { return func(c *Client) { c.logger = l } }

func WithCounter(m Counter) Option { return func(c *Client) { c.counter = m } }

// NewClient cria o cliente. post agenda uma conclusão na thread lógica de
// quem chamou (o loop do Coordinator); todas as conclusões passam por ele.
func NewClient(backend Backend, post func(func()), opts ...Option) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		backend: backend,
		post:    post,
		counter: globalCounter{},
		ctx:     ctx,
		cancel:  cancel,
		slots:   make(map[Verb]*slot),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrDiscard(c.logger).Named("directory")
	return c
}

// Close cancela as chamadas em andamento e espera os workers terminarem.
func (c *Client) Close() {
	c.cancel()
	c.wg.Wait()
}

// Pending informa se há uma operação do verbo aguardando conclusão.
func (c *Client) Pending(verb Verb) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.slots[verb]
	return ok
}

func (c *Client) CreateSession(name string, settings Settings, done func(CreateResult)) {
	settings.Attributes = settings.Attributes.clone()
	fail := func(err error) CreateResult { return CreateResult{Result: Result{Verb: VerbCreate, Err: err}} }
	invalid := validateName(name)
	if invalid == nil {
		invalid = settings.Validate()
	}
	issue(c, VerbCreate, done, fail, invalid, func(ctx context.Context) CreateResult {
		desc, err := c.backend.Create(ctx, name, settings)
		return CreateResult{Result: Result{Verb: VerbCreate, Err: classify(err)}, Descriptor: desc}
	})
}

func (c *Client) StartSession(name string, done func(Result)) {
	c.simple(VerbStart, name, done, c.backend.Start)
}

func (c *Client) FindSessions(query Query, done func(FindResult)) {
	fail := func(err error) FindResult { return FindResult{Result: Result{Verb: VerbFind, Err: err}} }
	issue(c, VerbFind, done, fail, query.Validate(), func(ctx context.Context) FindResult {
		sessions, err := c.backend.Find(ctx, query)
		if err != nil {
			return fail(classify(err))
		}
		if len(sessions) > query.MaxResults {
			sessions = sessions[:query.MaxResults]
		}
		return FindResult{Result: Result{Verb: VerbFind}, Sessions: sessions}
	})
}

func (c *Client) JoinSession(name string, session Summary, done func(JoinResult)) {
	fail := func(err error) JoinResult { return JoinResult{Result: Result{Verb: VerbJoin, Err: err}} }
	invalid := validateName(name)
	if invalid == nil && session.ID == "" {
		invalid = fmt.Errorf("%w: search result has no id", ErrInvalidArgument)
	}
	issue(c, VerbJoin, done, fail, invalid, func(ctx context.Context) JoinResult {
		connect, err := c.backend.Join(ctx, name, session)
		if err != nil {
			return fail(classify(err))
		}
		return JoinResult{Result: Result{Verb: VerbJoin}, ConnectString: connect}
	})
}

func (c *Client) EndSession(name string, done func(Result)) {
	c.simple(VerbEnd, name, done, c.backend.End)
}

func (c *Client) DestroySession(name string, done func(Result)) {
	c.simple(VerbDestroy, name, done, c.backend.Destroy)
}

func (c *Client) simple(verb Verb, name string, done func(Result), call func(context.Context, string) error) {
	fail := func(err error) Result { return Result{Verb: verb, Err: err} }
	issue(c, verb, done, fail, validateName(name), func(ctx context.Context) Result {
		return Result{Verb: verb, Err: classify(call(ctx, name))}
	})
}

// issue é o caminho comum de todas as operações: ocupa o slot do verbo,
// falha de forma sintética quando não há como despachar, senão roda o
// backend num worker e entrega a conclusão via post.
func issue[T any](c *Client, verb Verb, done func(T), fail func(error) T, invalid error, call func(context.Context) T) {
	c.count(verb, "issued")
	token := c.bind(verb, func() {
		c.count(verb, "superseded")
		done(fail(ErrSuperseded))
	})

	if invalid != nil {
		c.logger.Warn("rejecting call before dispatch", "verb", verb, "error", invalid)
		c.complete(verb, token, false, func() { done(fail(invalid)) })
		return
	}
	if err := c.backend.Ready(); err != nil {
		err = fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
		c.logger.Error("backend not ready, failing immediately", "verb", verb, "error", err)
		c.complete(verb, token, false, func() { done(fail(err)) })
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		res := call(c.ctx)
		ok := resultErr(res) == nil
		c.complete(verb, token, ok, func() { done(res) })
	}()
}

// bind ocupa o slot do verbo. Se havia uma chamada pendente, ela é concluída
// agora com ErrSuperseded e sua resposta tardia será descartada.
func (c *Client) bind(verb Verb, superseded func()) uint64 {
	c.mu.Lock()
	c.seq++
	token := c.seq
	prev := c.slots[verb]
	c.slots[verb] = &slot{token: token, superseded: superseded}
	c.mu.Unlock()

	if prev != nil {
		c.logger.Debug("superseding pending call", "verb", verb)
		c.post(prev.superseded)
	}
	return token
}

// complete limpa o slot antes de notificar. Só o dono atual do slot entrega.
func (c *Client) complete(verb Verb, token uint64, ok bool, deliver func()) {
	c.mu.Lock()
	s, found := c.slots[verb]
	if !found || s.token != token {
		c.mu.Unlock()
		c.logger.Debug("dropping stale completion", "verb", verb)
		return
	}
	delete(c.slots, verb)
	c.mu.Unlock()

	if ok {
		c.count(verb, "ok")
	} else {
		c.count(verb, "failed")
	}
	c.post(deliver)
}

func (c *Client) count(verb Verb, outcome string) {
	c.counter.IncrCounter([]string{"directory", verb.String(), outcome}, 1)
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty session name", ErrInvalidArgument)
	}
	return nil
}

// classify garante que todo erro do backend caia na taxonomia.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrOperationFailed),
		errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, ErrInvalidArgument):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrOperationFailed, err)
	}
}

func resultErr(v any) error {
	switch r := v.(type) {
	case Result:
		return r.Err
	case CreateResult:
		return r.Err
	case FindResult:
		return r.Err
	case JoinResult:
		return r.Err
	}
	return nil
}
