package network

// EventHandler conecta a camada de rede à lógica da aplicação. Todos os
// métodos são chamados pela goroutine do Hub.
type EventHandler interface {
	OnConnect(c *Client)
	OnDisconnect(c *Client)
	OnMessage(c *Client, msg Message)
}
