package network

import (
	"context"

	"github.com/hashicorp/go-hclog"

	"fragmatch/internal/logging"
)

// clientMessage empacota a mensagem com o cliente que a enviou.
type clientMessage struct {
	client *Client
	msg    Message
}

// Hub mantém o conjunto de clientes ativos e roteia eventos para o handler.
type Hub struct {
	// Acessado somente pela goroutine do Hub.
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	incoming   chan clientMessage
	broadcast  chan Message
	done       chan struct{}

	handler EventHandler
	logger  hclog.Logger
}

func NewHub(handler EventHandler, logger hclog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		incoming:   make(chan clientMessage),
		broadcast:  make(chan Message, 64),
		done:       make(chan struct{}),
		handler:    handler,
		logger:     logging.OrDiscard(logger),
	}
}

// Broadcast entrega msg a todos os clientes. Não deve ser chamado pela
// goroutine do Hub (de dentro do EventHandler).
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}

// Run processa os eventos até ctx terminar. Ao sair, fecha todos os clientes.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for client := range h.clients {
			h.drop(client)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.clients[client] = true
			h.logger.Debug("client registered", "client", client.ID(), "clients", len(h.clients))
			h.handler.OnConnect(client)

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				h.handler.OnDisconnect(client)
			}

		case cm := <-h.incoming:
			// Cliente já removido: o canal send está fechado.
			if !h.clients[cm.client] {
				continue
			}
			h.handler.OnMessage(cm.client, cm.msg)

		case msg := <-h.broadcast:
			for client := range h.clients {
				if !client.Send(msg) {
					h.logger.Warn("client too slow, dropping", "client", client.ID())
					h.drop(client)
					h.handler.OnDisconnect(client)
				}
			}
		}
	}
}

// drop remove o cliente e fecha seu canal de saída, o que encerra o writeLoop.
func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.send)
}
