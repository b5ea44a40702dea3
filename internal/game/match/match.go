// Package match mantém o estado de uma partida em andamento: placar por
// participante e por time, cronômetro e a transição única para o fim.
//
// Só a instância autoritativa (o host) muta o placar. Os demais processos
// observam um Replica alimentado pelos snapshots publicados.
package match

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"fragmatch/internal/game/roomcode"
	"fragmatch/internal/logging"
)

type Phase int32

const (
	PhasePending Phase = iota
	PhaseActive
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseActive:
		return "active"
	case PhaseEnded:
		return "ended"
	}
	return "unknown"
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Phase) UnmarshalText(b []byte) error {
	switch string(b) {
	case "pending":
		*p = PhasePending
	case "active":
		*p = PhaseActive
	case "ended":
		*p = PhaseEnded
	default:
		return fmt.Errorf("unknown phase %q", b)
	}
	return nil
}

type EndReason string

const (
	ReasonTargetReached EndReason = "target_reached"
	ReasonTeamTarget    EndReason = "team_target_reached"
	ReasonTimeExpired   EndReason = "time_expired"
	ReasonAborted       EndReason = "aborted"
)

const (
	DefaultTargetScore = 10
	DefaultDuration    = 300 * time.Second
	PVPDuration        = 150 * time.Second
)

// Config da partida. TargetScore <= 0 desliga a vitória por pontos e
// Duration <= 0 desliga o cronômetro.
type Config struct {
	TargetScore int
	Duration    time.Duration
	RoomCode    string
}

func DefaultConfig() Config {
	return Config{TargetScore: DefaultTargetScore, Duration: DefaultDuration}
}

// PVPConfig: só eliminações, decidido pelo tempo.
func PVPConfig() Config {
	return Config{Duration: PVPDuration}
}

// Scoreboard é o renderizador passivo do placar.
type Scoreboard interface {
	OnScoreChanged(participant string, score int)
	OnTeamScoreChanged(team string, score int)
	OnMatchEnded(summary Summary)
}

// Controls congela a entrada de um participante ao fim da partida.
type Controls interface {
	Freeze(participant string)
}

// Publisher propaga o placar para as réplicas.
type Publisher interface {
	Publish(snapshot Snapshot) error
}

// Summary é o resultado final. Winner vazio com Draw=true indica empate.
type Summary struct {
	RoomCode   string    `json:"roomCode"`
	Winner     string    `json:"winner,omitempty"`
	TeamWin    bool      `json:"teamWin,omitempty"`
	Draw       bool      `json:"draw"`
	Reason     EndReason `json:"reason"`
	Scores     []Entry   `json:"scores"`
	TeamScores []Entry   `json:"teamScores,omitempty"`
}

type Option func(*Match)

func WithClock(c Clock) Option { return func(m *Match) { m.clock = c } }
func WithScoreboard(s Scoreboard) Option { return func(m *Match) { m.scoreboard = s } }
func WithControls(c Controls) Option { return func(m *Match) { m.controls = c } }
func WithPublisher(p Publisher) Option { return func(m *Match) { m.publisher = p } }
func WithLogger(l hclog.Logger) Option { return func(m *Match) { m.logger = l } }

// Match é o coordenador de uma partida. Os colaboradores são chamados com o
// lock interno mantido e não devem chamar de volta o Match.
type Match struct {
	cfg        Config
	clock      Clock
	scoreboard Scoreboard
	controls   Controls
	publisher  Publisher
	logger     hclog.Logger

	mu           sync.Mutex
	phase        Phase
	participants []string
	scores       *ScoreTable
	teams        *ScoreTable
	frozen       map[string]bool
	startedAt    time.Time
	timer        Timer
	summary      *Summary
	version      uint64
}

func New(cfg Config, participants []string, opts ...Option) *Match {
	if cfg.RoomCode == "" {
		cfg.RoomCode = roomcode.Generate()
	}
	m := &Match{
		cfg:    cfg,
		clock:  RealClock(),
		scores: NewScoreTable(),
		teams:  NewScoreTable(),
		frozen: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.OrDiscard(m.logger).Named("match").With("room_code", cfg.RoomCode)
	for _, p := range participants {
		m.addParticipant(p)
	}
	return m
}

func (m *Match) Config() Config { return m.cfg }

func (m *Match) RoomCode() string { return m.cfg.RoomCode }

// Start zera o placar de cada participante conhecido, arma o cronômetro e
// publica o snapshot inicial. Chamadas repetidas são ignoradas.
func (m *Match) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhasePending {
		return
	}
	m.phase = PhaseActive
	m.startedAt = m.clock.Now()
	if m.cfg.Duration > 0 {
		m.timer = m.clock.AfterFunc(m.cfg.Duration, m.expire)
	}
	m.logger.Info("match started", "participants", len(m.participants),
		"target", m.cfg.TargetScore, "duration", m.cfg.Duration)

	for _, e := range m.scores.Entries() {
		m.notifyScore(e.ID, e.Score)
	}
	m.publish()
}

// AddParticipant registra quem entrou depois do início com pontuação zero.
func (m *Match) AddParticipant(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == PhaseEnded || !m.addParticipant(id) {
		return
	}
	if m.phase == PhaseActive {
		m.notifyScore(id, 0)
		m.publish()
	}
}

func (m *Match) addParticipant(id string) bool {
	if id == "" || !m.scores.Ensure(id) {
		return false
	}
	m.participants = append(m.participants, id)
	return true
}

// RecordElimination credita uma eliminação ao scorer. Auto-eliminação e
// eventos fora da fase ativa não pontuam.
func (m *Match) RecordElimination(scorer, victim string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseActive {
		m.logger.Debug("elimination ignored", "phase", m.phase, "scorer", scorer)
		return false
	}
	if scorer == "" || scorer == victim {
		return false
	}

	if m.scores.Ensure(scorer) {
		m.participants = append(m.participants, scorer)
	}
	score := m.scores.Add(scorer, 1)
	m.notifyScore(scorer, score)

	if m.cfg.TargetScore > 0 {
		if winner, ok := m.scores.FirstAtOrAbove(m.cfg.TargetScore); ok {
			m.end(&Summary{Winner: winner.ID}, ReasonTargetReached)
			return true
		}
	}
	m.publish()
	return true
}

// RecordTeamScore incrementa o placar de um time; a vitória é checada por time.
func (m *Match) RecordTeamScore(team string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseActive || team == "" {
		return false
	}

	score := m.teams.Add(team, 1)
	if m.scoreboard != nil {
		m.scoreboard.OnTeamScoreChanged(team, score)
	}

	if m.cfg.TargetScore > 0 {
		if winner, ok := m.teams.FirstAtOrAbove(m.cfg.TargetScore); ok {
			m.end(&Summary{Winner: winner.ID, TeamWin: true}, ReasonTeamTarget)
			return true
		}
	}
	m.publish()
	return true
}

// End encerra a partida por decisão externa (ex.: o host saiu).
func (m *Match) End() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == PhaseEnded {
		return
	}
	m.end(nil, ReasonAborted)
}

func (m *Match) expire() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseActive {
		return
	}
	m.end(nil, ReasonTimeExpired)
}

// end é a transição única para PhaseEnded. result nil decide pelo maior
// placar, com empate quando o maior valor é compartilhado.
func (m *Match) end(result *Summary, reason EndReason) {
	if m.phase == PhaseEnded {
		return
	}
	m.phase = PhaseEnded
	if m.timer != nil {
		m.timer.Stop()
	}

	if result == nil {
		result = &Summary{}
		if best, draw := m.scores.Highest(); draw {
			result.Draw = true
		} else {
			result.Winner = best.ID
		}
	}
	result.RoomCode = m.cfg.RoomCode
	result.Reason = reason
	result.Scores = m.scores.Entries()
	result.TeamScores = m.teams.Entries()
	m.summary = result

	m.freezeAll()
	m.logger.Info("match ended", "reason", reason, "winner", result.Winner, "draw", result.Draw)
	if m.scoreboard != nil {
		m.scoreboard.OnMatchEnded(*result)
	}
	m.publish()
}

// freezeAll só congela quem ainda não foi congelado.
func (m *Match) freezeAll() {
	if m.controls == nil {
		return
	}
	for _, id := range m.participants {
		if m.frozen[id] {
			continue
		}
		m.frozen[id] = true
		m.controls.Freeze(id)
	}
}

func (m *Match) notifyScore(id string, score int) {
	if m.scoreboard != nil {
		m.scoreboard.OnScoreChanged(id, score)
	}
}

func (m *Match) publish() {
	if m.publisher == nil {
		return
	}
	m.version++
	if err := m.publisher.Publish(m.snapshotLocked()); err != nil {
		m.logger.Warn("snapshot publish failed", "version", m.version, "error", err)
	}
}

// RemainingTime é max(0, duração - decorrido), e 0 sem cronômetro ou após o fim.
func (m *Match) RemainingTime() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remainingLocked()
}

func (m *Match) remainingLocked() time.Duration {
	switch {
	case m.cfg.Duration <= 0, m.phase == PhaseEnded:
		return 0
	case m.phase == PhasePending:
		return m.cfg.Duration
	}
	return max(0, m.cfg.Duration-m.clock.Now().Sub(m.startedAt))
}

func (m *Match) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

func (m *Match) Scores() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scores.Entries()
}

func (m *Match) TeamScores() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.teams.Entries()
}

func (m *Match) Score(id string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scores.Get(id)
}

// Summary devolve o resultado final, se a partida já terminou.
func (m *Match) Summary() (Summary, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.summary == nil {
		return Summary{}, false
	}
	return *m.summary, true
}

func (m *Match) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Match) snapshotLocked() Snapshot {
	s := Snapshot{
		RoomCode:   m.cfg.RoomCode,
		Version:    m.version,
		Phase:      m.phase,
		Scores:     m.scores.Entries(),
		TeamScores: m.teams.Entries(),
		Remaining:  m.remainingLocked(),
	}
	if m.summary != nil {
		s.Winner = m.summary.Winner
		s.Draw = m.summary.Draw
	}
	return s
}
