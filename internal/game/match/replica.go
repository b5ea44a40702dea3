package match

import (
	"sync"
	"time"
)

// Snapshot é o estado propagado pelo host. Version cresce a cada publicação.
type Snapshot struct {
	RoomCode   string        `json:"roomCode"`
	Version    uint64        `json:"version"`
	Phase      Phase         `json:"phase"`
	Scores     []Entry       `json:"scores"`
	TeamScores []Entry       `json:"teamScores,omitempty"`
	Remaining  time.Duration `json:"remaining"`
	Winner     string        `json:"winner,omitempty"`
	Draw       bool          `json:"draw,omitempty"`
}

func (s Snapshot) clone() Snapshot {
	s.Scores = append([]Entry(nil), s.Scores...)
	s.TeamScores = append([]Entry(nil), s.TeamScores...)
	return s
}

// Replica é a visão somente leitura de quem não é host. Não há mutadores de
// placar: o único caminho de escrita é Apply com um snapshot mais novo.
type Replica struct {
	mu       sync.RWMutex
	snap     Snapshot
	have     bool
	onChange func(Snapshot)
}

func NewReplica() *Replica { return &Replica{} }

// OnChange registra quem deve ser avisado a cada snapshot aceito.
func (r *Replica) OnChange(cb func(Snapshot)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = cb
}

// Apply aceita s apenas se for mais novo que o atual.
func (r *Replica) Apply(s Snapshot) bool {
	r.mu.Lock()
	if r.have && s.Version <= r.snap.Version {
		r.mu.Unlock()
		return false
	}
	r.snap = s.clone()
	r.have = true
	cb := r.onChange
	r.mu.Unlock()

	if cb != nil {
		cb(s.clone())
	}
	return true
}

func (r *Replica) Snapshot() (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap.clone(), r.have
}

func (r *Replica) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap.Version
}

func (r *Replica) Phase() Phase {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap.Phase
}

func (r *Replica) Scores() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Entry(nil), r.snap.Scores...)
}

func (r *Replica) Score(id string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.snap.Scores {
		if e.ID == id {
			return e.Score, true
		}
	}
	return 0, false
}
