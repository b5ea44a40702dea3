package network

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"

	"fragmatch/internal/logging"
)

var upgrader = websocket.Upgrader{
	// Qualquer origem: o gateway roda na rede local do jogo.
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Server promove requisições HTTP a websocket e as entrega ao Hub.
type Server struct {
	hub    *Hub
	logger hclog.Logger
}

func NewServer(handler EventHandler, logger hclog.Logger) *Server {
	logger = logging.OrDiscard(logger).Named("ws")
	return &Server{hub: NewHub(handler, logger), logger: logger}
}

func (s *Server) Hub() *Hub { return s.hub }

// Run executa o Hub até ctx terminar.
func (s *Server) Run(ctx context.Context) { s.hub.Run(ctx) }

// ServeHTTP é o ponto de entrada das conexões websocket (rota /ws).
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := newClient(conn, s.hub, s.logger)
	select {
	case s.hub.register <- client:
	case <-s.hub.done:
		conn.Close()
		return
	}

	go client.writeLoop()
	go client.readLoop()
}
