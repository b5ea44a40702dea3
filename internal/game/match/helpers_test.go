package match

import (
	"sync"
	"time"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 11, 6, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance move o relógio e dispara, fora do lock, os timers vencidos.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (t *fakeTimer) Stopped() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	return t.stopped
}

type recorder struct {
	mu        sync.Mutex
	scores    map[string]int
	teams     map[string]int
	summaries []Summary
	frozen    []string
	published []Snapshot
}

func newRecorder() *recorder {
	return &recorder{scores: make(map[string]int), teams: make(map[string]int)}
}

func (r *recorder) OnScoreChanged(p string, score int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scores[p] = score
}

func (r *recorder) OnTeamScoreChanged(team string, score int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.teams[team] = score
}

func (r *recorder) OnMatchEnded(s Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaries = append(r.summaries, s)
}

func (r *recorder) Freeze(p string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = append(r.frozen, p)
}

func (r *recorder) Publish(s Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, s)
	return nil
}

func newTestMatch(cfg Config, participants ...string) (*Match, *fakeClock, *recorder) {
	clock := newFakeClock()
	rec := newRecorder()
	m := New(cfg, participants,
		WithClock(clock),
		WithScoreboard(rec),
		WithControls(rec),
		WithPublisher(rec),
	)
	return m, clock, rec
}
