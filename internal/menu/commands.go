package menu

import (
	"fragmatch/internal/game/match"
	"fragmatch/internal/network"
)

func (h *Handler) registerHandlers() {
	h.router[CmdHostGame] = handleHostGame
	h.router[CmdFindSessions] = handleFindSessions
	h.router[CmdJoinRoom] = handleJoinRoom
	h.router[CmdJoinIndex] = handleJoinIndex
	h.router[CmdLeaveSession] = handleLeaveSession
	h.router[CmdRecordElimination] = handleRecordElimination
	h.router[CmdRecordTeamScore] = handleRecordTeamScore
	h.router[CmdStatus] = handleStatus
}

func handleHostGame(h *Handler, c *network.Client, msg network.Message) {
	var req HostGameRequest
	if err := msg.Decode(&req); err != nil {
		c.Send(errorMessage("Invalid payload: 'maxParticipants' must be a number."))
		return
	}
	if req.MaxParticipants <= 0 {
		req.MaxParticipants = h.maxParticipants
	}
	h.logger.Info("host requested", "client", c.ID(), "max_participants", req.MaxParticipants)
	h.cmds.HostGame(req.MaxParticipants)
}

func handleFindSessions(h *Handler, c *network.Client, msg network.Message) {
	h.cmds.FindSessions()
}

// O código é validado pelo Coordinator, que responde ROOM_NOT_FOUND.
func handleJoinRoom(h *Handler, c *network.Client, msg network.Message) {
	var req JoinRoomRequest
	if err := msg.Decode(&req); err != nil {
		c.Send(errorMessage("Invalid payload: 'roomCode' must be a string."))
		return
	}
	h.cmds.JoinByRoomCode(req.RoomCode)
}

func handleJoinIndex(h *Handler, c *network.Client, msg network.Message) {
	var req JoinIndexRequest
	if err := msg.Decode(&req); err != nil || req.Index == nil {
		c.Send(errorMessage("Invalid payload: 'index' field is required and must be a number."))
		return
	}
	h.cmds.JoinSession(*req.Index)
}

func handleLeaveSession(h *Handler, c *network.Client, msg network.Message) {
	h.cmds.LeaveSession()
	h.schedule(func() { h.teardown() })
}

func handleRecordElimination(h *Handler, c *network.Client, msg network.Message) {
	var req EliminationRequest
	if err := msg.Decode(&req); err != nil {
		c.Send(errorMessage("Invalid payload for elimination."))
		return
	}
	if req.Scorer == "" {
		req.Scorer = c.ID()
	}
	m := h.authoritative()
	if m == nil {
		c.Send(errorMessage("No match is being hosted here."))
		return
	}
	if !m.RecordElimination(req.Scorer, req.Victim) {
		c.Send(errorMessage("Elimination ignored."))
	}
}

func handleRecordTeamScore(h *Handler, c *network.Client, msg network.Message) {
	var req TeamScoreRequest
	if err := msg.Decode(&req); err != nil || req.Team == "" {
		c.Send(errorMessage("Invalid payload: 'team' is required."))
		return
	}
	m := h.authoritative()
	if m == nil {
		c.Send(errorMessage("No match is being hosted here."))
		return
	}
	if !m.RecordTeamScore(req.Team) {
		c.Send(errorMessage("Team score ignored."))
	}
}

func handleStatus(h *Handler, c *network.Client, msg network.Message) {
	status := StatusPayload{
		State:    h.cmds.State().String(),
		RoomCode: h.cmds.RoomCode(),
	}

	h.mu.Lock()
	st := h.current
	h.mu.Unlock()
	if st != nil {
		status.Host = st.dest.Host
		var phase match.Phase
		switch {
		case st.match != nil:
			phase = st.match.Phase()
			status.Remaining = st.match.RemainingTime().String()
		case st.replica != nil:
			phase = st.replica.Phase()
		}
		status.Phase = &phase
	}
	h.reply(c, EvtStatus, status)
}
