package network

import (
	"encoding/json"
	"fmt"
)

// Message é o envelope de toda a comunicação: um tipo para roteamento e o
// payload em JSON bruto, decodificado por quem trata aquele tipo.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MaxMessageSize limita o tamanho de uma mensagem recebida.
const MaxMessageSize = 64 * 1024

// NewMessage serializa payload dentro do envelope.
func NewMessage(msgType string, payload any) (Message, error) {
	if payload == nil {
		return Message{Type: msgType}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	return Message{Type: msgType, Payload: raw}, nil
}

// Decode lê o payload em v. Payload vazio deixa v intacto.
func (m Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Type, err)
	}
	return nil
}
