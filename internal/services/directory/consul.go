package directory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	consul "github.com/hashicorp/consul/api"
	"github.com/hashicorp/go-hclog"

	"fragmatch/internal/logging"
	"fragmatch/internal/services/cluster"
)

const (
	TagPresence = "presence"
	TagLAN      = "lan"

	metaMaxParticipants = "MAX_PARTICIPANTS"
	metaSessionName     = "SESSION_NAME"

	defaultSessionTTL = 15 * time.Second
	casAttempts       = 5
)

// ConsulSource fornece o cliente Consul atual; *cluster.Manager satisfaz.
type ConsulSource interface {
	GetClient() *consul.Client
}

type hostedSession struct {
	id       string
	settings Settings
	stop     context.CancelFunc
}

// ConsulBackend anuncia sessões como serviços Consul com check TTL. Uma
// sessão só aparece nas buscas depois do Start, quando o TTL passa a ser
// renovado; a ocupação fica num contador KV atualizado por CAS.
type ConsulBackend struct {
	source  ConsulSource
	prefix  string
	address string
	port    int
	ttl     time.Duration
	logger  hclog.Logger

	mu     sync.Mutex
	hosted map[string]*hostedSession
	joined map[string]Summary
}

type ConsulOption func(*ConsulBackend)

func WithSessionTTL(d time.Duration) ConsulOption {
	return func(b *ConsulBackend) { b.ttl = d }
}

func WithConsulLogger(l hclog.Logger) ConsulOption {
	return func(b *ConsulBackend) { b.logger = l }
}

// NewConsulBackend cria o backend. address/port são o endpoint de jogo que
// os participantes recebem como connect string.
func NewConsulBackend(source ConsulSource, prefix, address string, port int, opts ...ConsulOption) *ConsulBackend {
	b := &ConsulBackend{
		source:  source,
		prefix:  prefix,
		address: address,
		port:    port,
		ttl:     defaultSessionTTL,
		hosted:  make(map[string]*hostedSession),
		joined:  make(map[string]Summary),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = logging.OrDiscard(b.logger).Named("consul-directory")
	return b
}

func (b *ConsulBackend) serviceName() string { return b.prefix + "-session" }

func (b *ConsulBackend) participantsKey(id string) string {
	return fmt.Sprintf("%s/sessions/%s/participants", b.prefix, id)
}

func checkID(serviceID string) string { return "service:" + serviceID }

func (b *ConsulBackend) Ready() error {
	if b.source == nil || b.source.GetClient() == nil {
		return cluster.ErrNotConnected
	}
	return nil
}

func (b *ConsulBackend) client() (*consul.Client, error) {
	if err := b.Ready(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	return b.source.GetClient(), nil
}

func (b *ConsulBackend) Create(ctx context.Context, name string, settings Settings) (Descriptor, error) {
	client, err := b.client()
	if err != nil {
		return Descriptor{}, err
	}

	b.mu.Lock()
	_, hosting := b.hosted[name]
	_, member := b.joined[name]
	b.mu.Unlock()
	if hosting || member {
		return Descriptor{}, ErrSessionExists
	}

	id := fmt.Sprintf("%s-%s", name, uuid.NewString())
	if err := b.register(client, name, id, settings); err != nil {
		return Descriptor{}, err
	}

	pair := &consul.KVPair{Key: b.participantsKey(id), Value: []byte("1")}
	if _, err := client.KV().Put(pair, (&consul.WriteOptions{}).WithContext(ctx)); err != nil {
		_ = client.Agent().ServiceDeregister(id)
		return Descriptor{}, fmt.Errorf("%w: init participants: %w", ErrOperationFailed, err)
	}

	b.mu.Lock()
	b.hosted[name] = &hostedSession{id: id, settings: settings}
	b.mu.Unlock()

	b.logger.Info("session created", "name", name, "id", id, "room_code", settings.Attributes.RoomCode())
	return Descriptor{
		Name:      name,
		ID:        id,
		Settings:  settings,
		Address:   b.address,
		Port:      b.port,
		CreatedAt: time.Now(),
	}, nil
}

func (b *ConsulBackend) register(client *consul.Client, name, id string, settings Settings) error {
	reg := &consul.AgentServiceRegistration{
		ID:      id,
		Name:    b.serviceName(),
		Tags:    sessionTags(settings),
		Address: b.address,
		Port:    b.port,
		Meta:    sessionMeta(name, settings),
		Check: &consul.AgentServiceCheck{
			CheckID:                        checkID(id),
			TTL:                            b.ttl.String(),
			Status:                         consul.HealthCritical,
			DeregisterCriticalServiceAfter: "1m",
		},
	}
	if err := client.Agent().ServiceRegister(reg); err != nil {
		return fmt.Errorf("%w: register %s: %w", ErrOperationFailed, id, err)
	}
	return nil
}

func (b *ConsulBackend) Start(ctx context.Context, name string) error {
	client, err := b.client()
	if err != nil {
		return err
	}
	b.mu.Lock()
	hs, ok := b.hosted[name]
	b.mu.Unlock()
	if !ok {
		return ErrNoSession
	}

	if err := client.Agent().UpdateTTL(checkID(hs.id), "started", consul.HealthPassing); err != nil {
		return fmt.Errorf("%w: start %s: %w", ErrOperationFailed, hs.id, err)
	}

	hbCtx, cancel := context.WithCancel(context.Background())
	b.mu.Lock()
	if hs.stop != nil {
		hs.stop()
	}
	hs.stop = cancel
	b.mu.Unlock()
	go b.heartbeat(hbCtx, hs.id)

	b.logger.Info("session started", "name", name, "id", hs.id)
	return nil
}

// heartbeat renova o TTL a cada terço do período até ser cancelado.
func (b *ConsulBackend) heartbeat(ctx context.Context, id string) {
	ticker := time.NewTicker(b.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		client := b.source.GetClient()
		if client == nil {
			continue
		}
		if err := client.Agent().UpdateTTL(checkID(id), "alive", consul.HealthPassing); err != nil {
			b.logger.Warn("ttl refresh failed", "id", id, "error", err)
		}
	}
}

func (b *ConsulBackend) Find(ctx context.Context, query Query) ([]Summary, error) {
	client, err := b.client()
	if err != nil {
		return nil, err
	}

	var tags []string
	if query.Presence {
		tags = append(tags, TagPresence)
	}
	if query.LAN {
		tags = append(tags, TagLAN)
	}
	qo := (&consul.QueryOptions{}).WithContext(ctx)
	entries, _, err := client.Health().ServiceMultipleTags(b.serviceName(), tags, true, qo)
	if err != nil {
		return nil, fmt.Errorf("%w: find: %w", ErrOperationFailed, err)
	}

	results := make([]Summary, 0, len(entries))
	for _, entry := range entries {
		occupancy := 0
		pair, _, err := client.KV().Get(b.participantsKey(entry.Service.ID), qo)
		if err != nil {
			b.logger.Warn("occupancy lookup failed", "id", entry.Service.ID, "error", err)
		} else if pair != nil {
			occupancy, _ = strconv.Atoi(string(pair.Value))
		}
		results = append(results, summaryFromEntry(entry, occupancy))
	}

	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	if len(results) > query.MaxResults {
		results = results[:query.MaxResults]
	}
	return results, nil
}

func (b *ConsulBackend) Join(ctx context.Context, name string, session Summary) (string, error) {
	client, err := b.client()
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	_, member := b.joined[name]
	_, hosting := b.hosted[name]
	b.mu.Unlock()
	if member || hosting {
		return "", ErrSessionExists
	}

	err = b.adjustParticipants(ctx, client, session.ID, func(n int) (int, error) {
		if session.MaxParticipants > 0 && n >= session.MaxParticipants {
			return n, ErrSessionFull
		}
		return n + 1, nil
	})
	if err != nil {
		return "", err
	}

	b.mu.Lock()
	b.joined[name] = session
	b.mu.Unlock()
	b.logger.Info("joined session", "name", name, "id", session.ID)
	return session.ConnectString(), nil
}

// adjustParticipants aplica next ao contador com CAS, repetindo em conflito.
func (b *ConsulBackend) adjustParticipants(ctx context.Context, client *consul.Client, id string, next func(int) (int, error)) error {
	key := b.participantsKey(id)
	kv := client.KV()
	for attempt := 0; attempt < casAttempts; attempt++ {
		pair, _, err := kv.Get(key, (&consul.QueryOptions{}).WithContext(ctx))
		if err != nil {
			return fmt.Errorf("%w: read %s: %w", ErrOperationFailed, key, err)
		}
		if pair == nil {
			return ErrNoSession
		}
		current, _ := strconv.Atoi(string(pair.Value))
		n, err := next(current)
		if err != nil {
			return err
		}
		ok, _, err := kv.CAS(&consul.KVPair{
			Key:         key,
			Value:       []byte(strconv.Itoa(n)),
			ModifyIndex: pair.ModifyIndex,
		}, (&consul.WriteOptions{}).WithContext(ctx))
		if err != nil {
			return fmt.Errorf("%w: cas %s: %w", ErrOperationFailed, key, err)
		}
		if ok {
			return nil
		}
	}
	return fmt.Errorf("%w: contention on %s", ErrOperationFailed, key)
}

func (b *ConsulBackend) End(ctx context.Context, name string) error {
	client, err := b.client()
	if err != nil {
		return err
	}
	b.mu.Lock()
	hs, hosting := b.hosted[name]
	_, member := b.joined[name]
	if hosting && hs.stop != nil {
		hs.stop()
		hs.stop = nil
	}
	b.mu.Unlock()

	switch {
	case hosting:
		if err := client.Agent().UpdateTTL(checkID(hs.id), "ended", consul.HealthWarning); err != nil {
			return fmt.Errorf("%w: end %s: %w", ErrOperationFailed, hs.id, err)
		}
		b.logger.Info("session ended", "name", name, "id", hs.id)
		return nil
	case member:
		return nil
	default:
		return ErrNoSession
	}
}

func (b *ConsulBackend) Destroy(ctx context.Context, name string) error {
	client, err := b.client()
	if err != nil {
		return err
	}
	b.mu.Lock()
	hs, hosting := b.hosted[name]
	joinedTo, member := b.joined[name]
	delete(b.hosted, name)
	delete(b.joined, name)
	b.mu.Unlock()

	switch {
	case hosting:
		if hs.stop != nil {
			hs.stop()
		}
		if err := client.Agent().ServiceDeregister(hs.id); err != nil {
			return fmt.Errorf("%w: deregister %s: %w", ErrOperationFailed, hs.id, err)
		}
		prefix := fmt.Sprintf("%s/sessions/%s/", b.prefix, hs.id)
		if _, err := client.KV().DeleteTree(prefix, (&consul.WriteOptions{}).WithContext(ctx)); err != nil {
			b.logger.Warn("failed to clear session keys", "prefix", prefix, "error", err)
		}
		b.logger.Info("session destroyed", "name", name, "id", hs.id)
		return nil
	case member:
		err := b.adjustParticipants(ctx, client, joinedTo.ID, func(n int) (int, error) {
			if n <= 0 {
				return 0, nil
			}
			return n - 1, nil
		})
		if err != nil && !errors.Is(err, ErrNoSession) {
			return err
		}
		b.logger.Info("left session", "name", name, "id", joinedTo.ID)
		return nil
	default:
		return ErrNoSession
	}
}

// Reregister reanuncia as sessões hospedadas depois que o Manager troca de
// agente; o registro anterior morreu junto com o agente antigo.
func (b *ConsulBackend) Reregister(client *consul.Client) {
	b.mu.Lock()
	hosted := make(map[string]*hostedSession, len(b.hosted))
	for name, hs := range b.hosted {
		hosted[name] = hs
	}
	b.mu.Unlock()

	for name, hs := range hosted {
		if err := b.register(client, name, hs.id, hs.settings); err != nil {
			b.logger.Error("re-register failed", "name", name, "id", hs.id, "error", err)
			continue
		}
		b.mu.Lock()
		started := hs.stop != nil
		b.mu.Unlock()
		if started {
			if err := client.Agent().UpdateTTL(checkID(hs.id), "re-registered", consul.HealthPassing); err != nil {
				b.logger.Warn("ttl pass after re-register failed", "id", hs.id, "error", err)
			}
		}
		b.logger.Info("session re-registered", "name", name, "id", hs.id)
	}
}

func sessionTags(s Settings) []string {
	var tags []string
	if s.UsesPresence {
		tags = append(tags, TagPresence)
	}
	if s.LAN {
		tags = append(tags, TagLAN)
	}
	return tags
}

func sessionMeta(name string, s Settings) map[string]string {
	meta := make(map[string]string, len(s.Attributes)+2)
	for k, v := range s.Attributes {
		meta[k] = v
	}
	meta[metaMaxParticipants] = strconv.Itoa(s.MaxParticipants)
	meta[metaSessionName] = name
	return meta
}

func summaryFromEntry(entry *consul.ServiceEntry, occupancy int) Summary {
	svc := entry.Service
	attrs := make(Attributes)
	for k, v := range svc.Meta {
		if k == metaMaxParticipants || k == metaSessionName {
			continue
		}
		attrs[k] = v
	}
	maxParticipants, _ := strconv.Atoi(svc.Meta[metaMaxParticipants])

	addr := svc.Address
	if addr == "" && entry.Node != nil {
		addr = entry.Node.Address
	}
	open := maxParticipants - occupancy
	if open < 0 {
		open = 0
	}
	return Summary{
		ID:              svc.ID,
		Name:            svc.Meta[metaSessionName],
		Attributes:      attrs,
		Address:         addr,
		Port:            svc.Port,
		MaxParticipants: maxParticipants,
		OpenSlots:       open,
	}
}
