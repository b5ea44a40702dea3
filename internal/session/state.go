package session

import "fragmatch/internal/services/directory"

// State é a fase do ciclo de vida da sessão deste processo.
type State int32

const (
	StateIdle State = iota
	StateDestroying
	StateCreating
	StateStarting
	StateAdvertised
	StateSearching
	StateSearchComplete
	StateJoining
	StateJoined
	StateEnding
	StateEnded
	StateLocal
)

var stateNames = [...]string{
	"idle", "destroying", "creating", "starting", "advertised", "searching",
	"search_complete", "joining", "joined", "ending", "ended", "local",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// busy indica uma operação de posse da sessão em andamento. Comandos que
// mudam a posse esperam até ela assentar.
func (s State) busy() bool {
	switch s {
	case StateDestroying, StateCreating, StateStarting, StateJoining, StateEnding:
		return true
	}
	return false
}

// Listener recebe os eventos de conclusão. Todos chegam na goroutine do
// Coordinator, na ordem em que aconteceram.
type Listener interface {
	OnSessionCreated(ok bool)
	OnSessionSearchComplete(results []directory.Summary)
	OnSessionJoined(ok bool)
	OnRoomNotFound(code string)
}

// Destination é o que o colaborador de transição precisa para viajar.
// O Coordinator nunca viaja sozinho.
type Destination struct {
	Level         string `json:"level"`
	ConnectString string `json:"connectString,omitempty"`
	RoomCode      string `json:"roomCode"`
	Host          bool   `json:"host"`
	Listen        bool   `json:"listen"`
	Local         bool   `json:"local"`
}

type Traveler interface {
	Travel(dest Destination)
}

type nopListener struct{}

func (nopListener) OnSessionCreated(bool) {}
func (nopListener) OnSessionSearchComplete([]directory.Summary) {}
func (nopListener) OnSessionJoined(bool) {}
func (nopListener) OnRoomNotFound(string) {}

type nopTraveler struct{}

func (nopTraveler) Travel(Destination) {}
