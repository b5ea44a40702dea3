// Package logging centraliza a criação dos loggers do processo.
package logging

import (
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
)

// New cria o logger raiz. Cada componente deriva o seu com Named, que faz o
// papel dos prefixos "[Componente]" usados nos logs.
func New(name, level string) hclog.Logger {
	return NewWithOutput(name, level, os.Stderr)
}

func NewWithOutput(name, level string, out io.Writer) hclog.Logger {
	lvl := hclog.LevelFromString(level)
	if lvl == hclog.NoLevel {
		lvl = hclog.Info
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:            name,
		Level:           lvl,
		Output:          out,
		IncludeLocation: false,
	})
}

// OrDiscard devolve l ou, se nil, um logger que descarta tudo.
func OrDiscard(l hclog.Logger) hclog.Logger {
	if l == nil {
		return hclog.NewNullLogger()
	}
	return l
}
