package directory

import (
	"errors"
	"fmt"
	"time"
)

// Atributos obrigatórios de toda sessão anunciada.
const (
	AttrRoomCode = "ROOMCODE"
	AttrMapName  = "MAPNAME"
)

// Taxonomia de erros. Nenhum deles atravessa o Coordinator: lá eles viram
// booleanos de conclusão.
var (
	// ErrServiceUnavailable: o serviço de descoberta não responde no momento da chamada.
	ErrServiceUnavailable = errors.New("directory: service unavailable")
	// ErrOperationFailed: o serviço aceitou a chamada, mas o resultado assíncrono falhou.
	ErrOperationFailed = errors.New("directory: operation failed")
	// ErrInvalidArgument: falha antes de qualquer I/O.
	ErrInvalidArgument = errors.New("directory: invalid argument")
	// ErrSuperseded: uma nova chamada do mesmo verbo substituiu esta.
	ErrSuperseded = errors.New("directory: superseded by a newer call")
)

var (
	ErrSessionExists = fmt.Errorf("%w: session already exists", ErrOperationFailed)
	ErrNoSession     = fmt.Errorf("%w: no such session", ErrOperationFailed)
	ErrSessionFull   = fmt.Errorf("%w: session is full", ErrOperationFailed)
)

// Attributes são os pares chave/valor anunciados junto com a sessão.
type Attributes map[string]string

func (a Attributes) RoomCode() string { return a[AttrRoomCode] }
func (a Attributes) MapName() string  { return a[AttrMapName] }

func (a Attributes) clone() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Settings descreve a sessão que o host quer anunciar.
type Settings struct {
	MaxParticipants int
	Advertise       bool
	UsesPresence    bool
	LAN             bool
	AllowInvites    bool
	Attributes      Attributes
}

func (s Settings) Validate() error {
	if s.MaxParticipants < 1 {
		return fmt.Errorf("%w: max participants must be >= 1, got %d", ErrInvalidArgument, s.MaxParticipants)
	}
	if s.Attributes.RoomCode() == "" {
		return fmt.Errorf("%w: missing %s attribute", ErrInvalidArgument, AttrRoomCode)
	}
	if s.Attributes.MapName() == "" {
		return fmt.Errorf("%w: missing %s attribute", ErrInvalidArgument, AttrMapName)
	}
	return nil
}

// Descriptor é o handle da sessão criada por este processo.
type Descriptor struct {
	Name      string
	ID        string
	Settings  Settings
	Address   string
	Port      int
	CreatedAt time.Time
}

func (d Descriptor) RoomCode() string { return d.Settings.Attributes.RoomCode() }

func (d Descriptor) ConnectString() string {
	return fmt.Sprintf("%s:%d", d.Address, d.Port)
}

// Summary é uma entrada do conjunto de resultados de uma busca.
type Summary struct {
	ID              string
	Name            string
	Attributes      Attributes
	Address         string
	Port            int
	MaxParticipants int
	OpenSlots       int
}

func (s Summary) RoomCode() string { return s.Attributes.RoomCode() }

func (s Summary) Occupancy() int { return s.MaxParticipants - s.OpenSlots }

func (s Summary) ConnectString() string {
	return fmt.Sprintf("%s:%d", s.Address, s.Port)
}

// Info formata a linha mostrada na lista de sessões.
func (s Summary) Info(index int) string {
	return fmt.Sprintf("Session %d - Players: %d/%d", index+1, s.Occupancy(), s.MaxParticipants)
}

// Query é o filtro de busca.
type Query struct {
	MaxResults int
	Presence   bool
	LAN        bool
}

// DefaultQuery limita a 10 resultados e filtra por presença.
func DefaultQuery() Query {
	return Query{MaxResults: 10, Presence: true, LAN: true}
}

func (q Query) Validate() error {
	if q.MaxResults < 1 {
		return fmt.Errorf("%w: max results must be >= 1, got %d", ErrInvalidArgument, q.MaxResults)
	}
	return nil
}

// IndexOfRoomCode procura code em results e devolve o índice ou -1.
func IndexOfRoomCode(results []Summary, code string) int {
	for i, r := range results {
		if r.RoomCode() == code {
			return i
		}
	}
	return -1
}

type Verb int

const (
	VerbCreate Verb = iota
	VerbStart
	VerbFind
	VerbJoin
	VerbEnd
	VerbDestroy
)

var verbNames = [...]string{"create", "start", "find", "join", "end", "destroy"}

func (v Verb) String() string {
	if int(v) < len(verbNames) {
		return verbNames[v]
	}
	return fmt.Sprintf("verb(%d)", int(v))
}

// Result é a conclusão genérica de uma operação.
type Result struct {
	Verb Verb
	Err  error
}

func (r Result) OK() bool { return r.Err == nil }

type CreateResult struct {
	Result
	Descriptor Descriptor
}

type FindResult struct {
	Result
	Sessions []Summary
}

type JoinResult struct {
	Result
	ConnectString string
}
