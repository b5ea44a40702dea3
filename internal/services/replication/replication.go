// Package replication propaga o placar autoritativo do host para as réplicas
// dos participantes via NATS.
package replication

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/nats-io/nats.go"

	"fragmatch/internal/game/match"
	"fragmatch/internal/logging"
)

// ErrNotAuthority é devolvido quando um processo sem a trava tenta publicar.
var ErrNotAuthority = errors.New("replication: not the match authority")

// Subject devolve o assunto NATS dos snapshots de uma partida.
func Subject(roomCode string) string {
	return fmt.Sprintf("fragmatch.match.%s.scores", roomCode)
}

// Connect abre a conexão NATS com reconexão infinita e handlers de log.
func Connect(url, name string, logger hclog.Logger) (*nats.Conn, error) {
	logger = logging.OrDiscard(logger).Named("nats")
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("reconnected", "url", c.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Info("connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	logger.Info("connected", "url", nc.ConnectedUrl())
	return nc, nil
}

// Conn é o subconjunto de *nats.Conn usado para publicar.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher implementa match.Publisher. Só publica enquanto guard devolver
// true, o que mantém um único escritor por partida.
type Publisher struct {
	conn    Conn
	subject string
	guard   func() bool
	logger  hclog.Logger
}

func NewPublisher(conn Conn, roomCode string, guard func() bool, logger hclog.Logger) *Publisher {
	if guard == nil {
		guard = func() bool { return true }
	}
	return &Publisher{
		conn:    conn,
		subject: Subject(roomCode),
		guard:   guard,
		logger:  logging.OrDiscard(logger).Named("replication"),
	}
}

func (p *Publisher) Publish(s match.Snapshot) error {
	if !p.guard() {
		return ErrNotAuthority
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	p.logger.Trace("snapshot published", "subject", p.subject, "version", s.Version)
	return nil
}

// Handler decodifica snapshots e os aplica na réplica.
func Handler(replica *match.Replica, logger hclog.Logger) nats.MsgHandler {
	logger = logging.OrDiscard(logger).Named("replication")
	return func(msg *nats.Msg) {
		var s match.Snapshot
		if err := json.Unmarshal(msg.Data, &s); err != nil {
			logger.Warn("discarding malformed snapshot", "subject", msg.Subject, "error", err)
			return
		}
		if !replica.Apply(s) {
			logger.Debug("stale snapshot ignored", "version", s.Version)
		}
	}
}

// Subscribe liga a réplica ao assunto da partida.
func Subscribe(nc *nats.Conn, roomCode string, replica *match.Replica, logger hclog.Logger) (*nats.Subscription, error) {
	sub, err := nc.Subscribe(Subject(roomCode), Handler(replica, logger))
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", Subject(roomCode), err)
	}
	return sub, nil
}
