package directory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var errDirectoryOffline = errors.New("memory directory offline")

type memSession struct {
	id           string
	name         string
	settings     Settings
	address      string
	port         int
	started      bool
	ended        bool
	participants int
	createdAt    time.Time
}

// MemoryDirectory é um diretório em processo, compartilhado por vários
// backends. Serve para jogo offline e para testes ponta a ponta.
type MemoryDirectory struct {
	mu       sync.Mutex
	sessions map[string]*memSession
	order    []string
	offline  bool
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{sessions: make(map[string]*memSession)}
}

// SetOffline simula o serviço de descoberta fora do ar.
func (d *MemoryDirectory) SetOffline(offline bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.offline = offline
}

// Backend cria a visão de um processo sobre o diretório. address/port
// compõem a connect string das sessões que ele hospedar.
func (d *MemoryDirectory) Backend(address string, port int) *MemoryBackend {
	return &MemoryBackend{
		dir:     d,
		address: address,
		port:    port,
		hosted:  make(map[string]string),
		joined:  make(map[string]string),
	}
}

func (d *MemoryDirectory) remove(id string) {
	delete(d.sessions, id)
	for i, v := range d.order {
		if v == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			return
		}
	}
}

// MemoryBackend implementa Backend sobre um MemoryDirectory. Os nomes de
// sessão são locais ao backend, como no serviço real.
type MemoryBackend struct {
	dir     *MemoryDirectory
	address string
	port    int

	// nome -> id, protegidos por dir.mu
	hosted map[string]string
	joined map[string]string
}

func (b *MemoryBackend) Ready() error {
	b.dir.mu.Lock()
	defer b.dir.mu.Unlock()
	if b.dir.offline {
		return errDirectoryOffline
	}
	return nil
}

func (b *MemoryBackend) Create(_ context.Context, name string, settings Settings) (Descriptor, error) {
	d := b.dir
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.offline {
		return Descriptor{}, fmt.Errorf("%w: %v", ErrServiceUnavailable, errDirectoryOffline)
	}
	if _, ok := b.hosted[name]; ok {
		return Descriptor{}, ErrSessionExists
	}
	if _, ok := b.joined[name]; ok {
		return Descriptor{}, ErrSessionExists
	}

	s := &memSession{
		id:           fmt.Sprintf("%s-%s", name, uuid.NewString()),
		name:         name,
		settings:     settings,
		address:      b.address,
		port:         b.port,
		participants: 1,
		createdAt:    time.Now(),
	}
	d.sessions[s.id] = s
	d.order = append(d.order, s.id)
	b.hosted[name] = s.id

	return Descriptor{
		Name:      name,
		ID:        s.id,
		Settings:  settings,
		Address:   b.address,
		Port:      b.port,
		CreatedAt: s.createdAt,
	}, nil
}

func (b *MemoryBackend) Start(_ context.Context, name string) error {
	d := b.dir
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.sessions[b.hosted[name]]
	if s == nil {
		return ErrNoSession
	}
	s.started = true
	s.ended = false
	return nil
}

func (b *MemoryBackend) Find(_ context.Context, query Query) ([]Summary, error) {
	d := b.dir
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.offline {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, errDirectoryOffline)
	}

	var out []Summary
	for _, id := range d.order {
		s := d.sessions[id]
		if !s.started || s.ended || !s.settings.Advertise {
			continue
		}
		if query.Presence && !s.settings.UsesPresence {
			continue
		}
		if query.LAN && !s.settings.LAN {
			continue
		}
		out = append(out, Summary{
			ID:              s.id,
			Name:            s.name,
			Attributes:      s.settings.Attributes.clone(),
			Address:         s.address,
			Port:            s.port,
			MaxParticipants: s.settings.MaxParticipants,
			OpenSlots:       max(s.settings.MaxParticipants-s.participants, 0),
		})
		if len(out) == query.MaxResults {
			break
		}
	}
	return out, nil
}

func (b *MemoryBackend) Join(_ context.Context, name string, session Summary) (string, error) {
	d := b.dir
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := b.joined[name]; ok {
		return "", ErrSessionExists
	}
	if _, ok := b.hosted[name]; ok {
		return "", ErrSessionExists
	}
	s := d.sessions[session.ID]
	if s == nil || !s.started || s.ended {
		return "", ErrNoSession
	}
	if s.participants >= s.settings.MaxParticipants {
		return "", ErrSessionFull
	}
	s.participants++
	b.joined[name] = s.id
	return fmt.Sprintf("%s:%d", s.address, s.port), nil
}

func (b *MemoryBackend) End(_ context.Context, name string) error {
	d := b.dir
	d.mu.Lock()
	defer d.mu.Unlock()
	if id, ok := b.hosted[name]; ok {
		if s := d.sessions[id]; s != nil {
			s.ended = true
		}
		return nil
	}
	if _, ok := b.joined[name]; ok {
		return nil
	}
	return ErrNoSession
}

func (b *MemoryBackend) Destroy(_ context.Context, name string) error {
	d := b.dir
	d.mu.Lock()
	defer d.mu.Unlock()
	if id, ok := b.hosted[name]; ok {
		delete(b.hosted, name)
		d.remove(id)
		return nil
	}
	if id, ok := b.joined[name]; ok {
		delete(b.joined, name)
		if s := d.sessions[id]; s != nil && s.participants > 0 {
			s.participants--
		}
		return nil
	}
	return ErrNoSession
}
