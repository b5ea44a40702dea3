package menu

import (
	"context"

	"fragmatch/internal/game/match"
	"fragmatch/internal/services/directory"
	"fragmatch/internal/session"
)

// --- session.Listener e session.Traveler (goroutine do Coordinator) ---

func (h *Handler) OnSessionCreated(ok bool) {
	payload := CreatedPayload{OK: ok}
	if ok && h.cmds != nil {
		payload.RoomCode = h.cmds.RoomCode()
	}
	h.emit(EvtSessionCreated, payload)
}

func (h *Handler) OnSessionSearchComplete(results []directory.Summary) {
	entries := make([]SessionEntry, 0, len(results))
	for i, s := range results {
		entries = append(entries, SessionEntry{Index: i, RoomCode: s.RoomCode(), Info: s.Info(i)})
	}
	h.emit(EvtSearchComplete, SearchCompletePayload{Sessions: entries})
}

func (h *Handler) OnSessionJoined(ok bool) {
	h.emit(EvtSessionJoined, JoinedPayload{OK: ok})
}

func (h *Handler) OnRoomNotFound(code string) {
	h.emit(EvtRoomNotFound, RoomNotFoundPayload{RoomCode: code})
}

func (h *Handler) Travel(dest session.Destination) {
	h.emit(EvtTravel, dest)
	h.enqueue(func(ctx context.Context) { h.enter(ctx, dest) })
}

// --- match.Scoreboard e match.Controls (lock da partida mantido) ---

func (h *Handler) OnScoreChanged(participant string, score int) {
	h.emit(EvtScoreChanged, ScorePayload{Participant: participant, Score: score})
}

func (h *Handler) OnTeamScoreChanged(team string, score int) {
	h.emit(EvtScoreChanged, ScorePayload{Participant: team, Score: score, Team: true})
}

// OnMatchEnded avisa os clientes. Uma partida que terminou por si encerra
// também a sessão anunciada; abortos vêm de uma troca de sessão e não.
func (h *Handler) OnMatchEnded(summary match.Summary) {
	h.emit(EvtMatchEnded, summary)
	if summary.Reason != match.ReasonAborted && h.cmds != nil {
		h.cmds.EndSession()
	}
}

func (h *Handler) Freeze(participant string) {
	h.emit(EvtInputFrozen, FrozenPayload{Participant: participant})
}

// onSnapshot recebe o placar replicado do host.
func (h *Handler) onSnapshot(s match.Snapshot) {
	h.emit(EvtMatchState, s)
}
