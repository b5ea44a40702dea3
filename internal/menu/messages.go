package menu

import (
	"fragmatch/internal/game/match"
	"fragmatch/internal/network"
	"fragmatch/internal/session"
)

// Comandos cliente -> servidor.
const (
	CmdHostGame          = "HOST_GAME"
	CmdFindSessions      = "FIND_SESSIONS"
	CmdJoinRoom          = "JOIN_ROOM"
	CmdJoinIndex         = "JOIN_INDEX"
	CmdLeaveSession      = "LEAVE_SESSION"
	CmdRecordElimination = "RECORD_ELIMINATION"
	CmdRecordTeamScore   = "RECORD_TEAM_SCORE"
	CmdStatus            = "STATUS"
)

// Eventos servidor -> cliente.
const (
	EvtWelcome        = "WELCOME"
	EvtSessionCreated = "SESSION_CREATED"
	EvtSearchComplete = "SESSION_SEARCH_COMPLETE"
	EvtSessionJoined  = "SESSION_JOINED"
	EvtRoomNotFound   = "ROOM_NOT_FOUND"
	EvtTravel         = "TRAVEL"
	EvtScoreChanged   = "SCORE_CHANGED"
	EvtMatchState     = "MATCH_STATE"
	EvtMatchEnded     = "MATCH_ENDED"
	EvtInputFrozen    = "INPUT_FROZEN"
	EvtStatus         = "STATUS"
	EvtError          = "RESPONSE_ERROR"
)

type HostGameRequest struct {
	MaxParticipants int `json:"maxParticipants"`
}

type JoinRoomRequest struct {
	RoomCode string `json:"roomCode"`
}

type JoinIndexRequest struct {
	Index *int `json:"index"`
}

type EliminationRequest struct {
	Scorer string `json:"scorer"`
	Victim string `json:"victim"`
}

type TeamScoreRequest struct {
	Team string `json:"team"`
}

type WelcomePayload struct {
	ClientID string `json:"clientId"`
	State    string `json:"state"`
	RoomCode string `json:"roomCode,omitempty"`
}

type CreatedPayload struct {
	OK       bool   `json:"ok"`
	RoomCode string `json:"roomCode,omitempty"`
}

// SessionEntry é uma linha da lista de resultados. Index começa em 0.
type SessionEntry struct {
	Index    int    `json:"index"`
	RoomCode string `json:"roomCode"`
	Info     string `json:"info"`
}

type SearchCompletePayload struct {
	Sessions []SessionEntry `json:"sessions"`
}

type JoinedPayload struct {
	OK bool `json:"ok"`
}

type RoomNotFoundPayload struct {
	RoomCode string `json:"roomCode"`
}

type TravelPayload = session.Destination

type ScorePayload struct {
	Participant string `json:"participant"`
	Score       int    `json:"score"`
	Team        bool   `json:"team,omitempty"`
}

type MatchEndedPayload = match.Summary

type FrozenPayload struct {
	Participant string `json:"participant"`
}

type StatusPayload struct {
	State     string       `json:"state"`
	RoomCode  string       `json:"roomCode,omitempty"`
	Host      bool         `json:"host"`
	Phase     *match.Phase `json:"phase,omitempty"`
	Remaining string       `json:"remaining,omitempty"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

// errorMessage não falha: o payload é sempre serializável.
func errorMessage(text string) network.Message {
	msg, _ := network.NewMessage(EvtError, ErrorPayload{Error: text})
	return msg
}
