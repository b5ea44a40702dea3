package cluster

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	consul "github.com/hashicorp/consul/api"
	"github.com/hashicorp/go-hclog"

	"fragmatch/internal/logging"
)

// ErrNotConnected é devolvido enquanto o Manager não tem um agente saudável.
var ErrNotConnected = errors.New("cluster: not connected to consul")

const defaultMonitorInterval = 10 * time.Second

// Manager mantém um cliente Consul funcional, reconectando quando o agente
// atual perde o líder.
type Manager struct {
	addrs    string
	interval time.Duration
	logger   hclog.Logger

	mu          sync.RWMutex
	client      *consul.Client
	currentAddr string
	onReconnect []func(*consul.Client)

	cancel context.CancelFunc
	done   chan struct{}
}

type ManagerOption func(*Manager)

func WithMonitorInterval(d time.Duration) ManagerOption {
	return func(m *Manager) { m.interval = d }
}

func WithManagerLogger(l hclog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// NewManager conecta ao cluster e inicia o monitor em background.
func NewManager(addrs string, opts ...ManagerOption) (*Manager, error) {
	m := &Manager{
		addrs:    addrs,
		interval: defaultMonitorInterval,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.OrDiscard(m.logger).Named("consul-manager")

	if err := m.reconnect(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	go m.monitor(ctx)
	return m, nil
}

// OnReconnect registra um callback chamado a cada reconexão bem-sucedida.
// Sessões anunciadas somem quando o agente muda, então o dono precisa
// re-registrar o que for dele.
func (m *Manager) OnReconnect(cb func(*consul.Client)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReconnect = append(m.onReconnect, cb)
}

// GetClient devolve o cliente atual, ou nil durante uma reconexão.
func (m *Manager) GetClient() *consul.Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client
}

func (m *Manager) Address() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentAddr
}

// Check serve como CheckFunc do HealthAggregator.
func (m *Manager) Check() error {
	if m.GetClient() == nil {
		return ErrNotConnected
	}
	return nil
}

func (m *Manager) Close() {
	if m.cancel != nil {
		m.cancel()
		<-m.done
	}
}

func (m *Manager) reconnect() error {
	m.mu.Lock()
	m.client = nil
	m.mu.Unlock()

	client, addr, err := NewConsulClient(m.addrs, m.logger)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.client = client
	m.currentAddr = addr
	callbacks := slices.Clone(m.onReconnect)
	m.mu.Unlock()

	for _, cb := range callbacks {
		go cb(client)
	}
	return nil
}

func (m *Manager) monitor(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		client := m.GetClient()
		if client == nil {
			m.logger.Info("client is nil, reconnecting")
			if err := m.reconnect(); err != nil {
				m.logger.Error("reconnect failed", "error", err)
			}
			continue
		}
		if _, err := client.Status().Leader(); err != nil {
			m.logger.Warn("health check failed, trying other nodes", "node", m.Address(), "error", err)
			if err := m.reconnect(); err != nil {
				m.logger.Error("reconnect failed", "error", err)
			}
		}
	}
}
