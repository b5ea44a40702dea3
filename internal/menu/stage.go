package menu

import (
	"context"

	"fragmatch/internal/game/match"
	"fragmatch/internal/session"
)

// stage é a partida em cena depois de uma viagem: autoritativa no host,
// réplica somente leitura em quem entrou.
type stage struct {
	dest    session.Destination
	match   *match.Match
	replica *match.Replica
	release func() error
}

// schedule coloca fn na fila de trocas de partida, executada por Run.
func (h *Handler) schedule(fn func()) {
	h.enqueue(func(context.Context) { fn() })
}

// enqueue não bloqueia depois que Run terminou.
func (h *Handler) enqueue(fn func(context.Context)) bool {
	select {
	case h.stages <- fn:
		return true
	case <-h.done:
		h.logger.Debug("menu stopped, dropping stage change")
		return false
	}
}

// enter substitui a partida corrente pela do destino.
func (h *Handler) enter(ctx context.Context, dest session.Destination) {
	h.teardown()

	st := &stage{dest: dest}
	if dest.Host {
		h.enterHost(ctx, st)
		return
	}

	st.replica = match.NewReplica()
	st.replica.OnChange(h.onSnapshot)
	if h.follow != nil {
		stop, err := h.follow(dest.RoomCode, st.replica)
		if err != nil {
			h.logger.Error("could not follow host scoreboard", "room_code", dest.RoomCode, "error", err)
		} else {
			st.release = stop
		}
	}
	h.setStage(st)
	h.logger.Info("following match", "room_code", dest.RoomCode)
}

func (h *Handler) enterHost(ctx context.Context, st *stage) {
	cfg := h.matchCfg
	cfg.RoomCode = st.dest.RoomCode

	opts := []match.Option{
		match.WithScoreboard(h),
		match.WithControls(h),
		match.WithLogger(h.logger),
	}
	if h.clock != nil {
		opts = append(opts, match.WithClock(h.clock))
	}
	// Sessão local não tem réplicas para alimentar.
	if !st.dest.Local && h.host != nil {
		pub, release, err := h.host(ctx, cfg.RoomCode)
		if err != nil {
			h.logger.Error("match authority unavailable, scores stay local", "room_code", cfg.RoomCode, "error", err)
		} else {
			opts = append(opts, match.WithPublisher(pub))
			st.release = release
		}
	}

	st.match = match.New(cfg, h.snapshotParticipants(), opts...)
	h.setStage(st)
	st.match.Start()
}

func (h *Handler) setStage(st *stage) {
	h.mu.Lock()
	h.current = st
	h.mu.Unlock()
}

// teardown aborta a partida corrente (se ainda ativa) e libera seus recursos.
func (h *Handler) teardown() {
	h.mu.Lock()
	st := h.current
	h.current = nil
	h.mu.Unlock()
	if st == nil {
		return
	}

	if st.match != nil {
		st.match.End()
	}
	if st.release != nil {
		if err := st.release(); err != nil {
			h.logger.Warn("release match resources", "room_code", st.dest.RoomCode, "error", err)
		}
	}
}

// authoritative devolve a partida hospedada aqui, ou nil.
func (h *Handler) authoritative() *match.Match {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil {
		return nil
	}
	return h.current.match
}
