// Package roomcode gera os códigos de sala de 4 dígitos que identificam uma
// sessão anunciada. O código é a única chave usada na busca por sala.
//
// Limitação conhecida: o gerador não garante unicidade. Dois hosts podem
// anunciar o mesmo código; nesse caso a busca devolve o primeiro resultado
// que casar. Tratar colisões fica a cargo de quem chama.
package roomcode

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
)

const (
	Min    = 1000
	Max    = 9999
	Length = 4
)

// Generator sorteia códigos uniformemente em [Min, Max].
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New cria um gerador a partir de uma fonte injetável (útil em testes).
func New(src rand.Source) *Generator {
	return &Generator{rng: rand.New(src)}
}

// NewDefault cria um gerador semeado pelo relógio.
func NewDefault() *Generator {
	return New(rand.NewPCG(uint64(time.Now().UnixNano()), 1))
}

// Generate devolve um código de exatamente 4 dígitos ASCII.
func (g *Generator) Generate() string {
	g.mu.Lock()
	n := Min + g.rng.IntN(Max-Min+1)
	g.mu.Unlock()
	return fmt.Sprintf("%04d", n)
}

var defaultGenerator = NewDefault()

// Generate usa o gerador padrão do pacote.
func Generate() string {
	return defaultGenerator.Generate()
}

// Valid informa se code tem exatamente 4 dígitos ASCII.
func Valid(code string) bool {
	if len(code) != Length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// Normalize remove espaços nas pontas, do jeito que o diálogo de entrada faz
// antes de validar.
func Normalize(input string) (string, bool) {
	code := strings.TrimSpace(input)
	return code, Valid(code)
}
