package cluster

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	consul "github.com/hashicorp/consul/api"
	"github.com/hashicorp/go-hclog"

	"fragmatch/internal/logging"
)

const authorityKeyFormat = "%s/match/%s/authority"

// locker é o subconjunto de *consul.Lock usado pela Authority.
type locker interface {
	Lock(stopCh <-chan struct{}) (<-chan struct{}, error)
	Unlock() error
}

// Authority é a trava Consul que elege o único escritor do placar de uma
// partida. Só quem segura a trava publica snapshots.
type Authority struct {
	newLock func(*consul.LockOptions) (locker, error)
	key     string
	nodeID  string
	logger  hclog.Logger

	held   atomic.Bool
	mu     sync.Mutex
	lock   locker
	onLost func()
}

// AuthorityKey monta a chave KV da trava de uma partida.
func AuthorityKey(prefix, roomCode string) string {
	return fmt.Sprintf(authorityKeyFormat, prefix, roomCode)
}

func NewAuthority(client *consul.Client, prefix, roomCode, nodeID string, logger hclog.Logger) *Authority {
	key := AuthorityKey(prefix, roomCode)
	a := &Authority{
		key:    key,
		nodeID: nodeID,
		logger: logging.OrDiscard(logger).Named("authority").With("key", key),
	}
	if client != nil {
		a.newLock = func(opts *consul.LockOptions) (locker, error) {
			lock, err := client.LockOpts(opts)
			if err != nil {
				return nil, err
			}
			return lock, nil
		}
	}
	return a
}

// OnLost registra o callback disparado quando a trava é perdida sem Release.
func (a *Authority) OnLost(cb func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onLost = cb
}

// Held pode ser usado como guarda do publicador.
func (a *Authority) Held() bool { return a.held.Load() }

// Acquire bloqueia até obter a trava ou até ctx terminar.
func (a *Authority) Acquire(ctx context.Context) error {
	if a.newLock == nil {
		return ErrNotConnected
	}
	lock, err := a.newLock(&consul.LockOptions{
		Key:        a.key,
		Value:      []byte(a.nodeID),
		SessionTTL: "15s",
	})
	if err != nil {
		return fmt.Errorf("authority lock %s: %w", a.key, err)
	}

	stop := make(chan struct{})
	acquired := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			close(stop)
		case <-acquired:
		}
	}()

	lostCh, err := lock.Lock(stop)
	close(acquired)
	if err != nil {
		return fmt.Errorf("authority lock %s: %w", a.key, err)
	}
	if lostCh == nil {
		return errors.Join(ctx.Err(), fmt.Errorf("authority lock %s not acquired", a.key))
	}

	a.mu.Lock()
	a.lock = lock
	a.mu.Unlock()
	a.held.Store(true)
	a.logger.Info("authority acquired", "node", a.nodeID)

	go a.watch(lock, lostCh)
	return nil
}

func (a *Authority) watch(lock locker, lostCh <-chan struct{}) {
	<-lostCh
	a.mu.Lock()
	current := a.lock == lock
	if current {
		a.lock = nil
	}
	cb := a.onLost
	a.mu.Unlock()
	if !current {
		return
	}
	a.held.Store(false)
	a.logger.Warn("authority lost")
	if cb != nil {
		cb()
	}
}

// Release solta a trava. Chamadas repetidas são inofensivas.
func (a *Authority) Release() error {
	a.mu.Lock()
	lock := a.lock
	a.lock = nil
	a.mu.Unlock()
	if lock == nil {
		return nil
	}
	a.held.Store(false)
	if err := lock.Unlock(); err != nil && !errors.Is(err, consul.ErrLockNotHeld) {
		return fmt.Errorf("release %s: %w", a.key, err)
	}
	a.logger.Info("authority released")
	return nil
}
