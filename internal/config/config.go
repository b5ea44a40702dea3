// Package config carrega a configuração do processo a partir de variáveis de
// ambiente, opcionalmente precedidas por um arquivo .env.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	BackendConsul = "consul"
	BackendMemory = "memory"
)

// Config armazena todas as configurações do host.
type Config struct {
	ServiceName   string `env:"SERVICE_NAME" envDefault:"fragmatch"`
	ServicePort   int    `env:"SERVICE_PORT" envDefault:"8080"`
	AdvertiseHost string `env:"ADVERTISE_HOST"`
	GamePort      int    `env:"GAME_PORT" envDefault:"7777"`

	ConsulAddrs      string `env:"CONSUL_HTTP_ADDR" envDefault:"localhost:8500"`
	KVPrefix         string `env:"KV_PREFIX" envDefault:"fragmatch"`
	DirectoryBackend string `env:"DIRECTORY_BACKEND" envDefault:"consul"`

	NatsURL string `env:"NATS_URL" envDefault:"nats://localhost:4222"`

	MapName         string        `env:"MAP_NAME" envDefault:"Lvl_Shooter"`
	MaxParticipants int           `env:"MAX_PARTICIPANTS" envDefault:"2"`
	TargetScore     int           `env:"TARGET_SCORE" envDefault:"10"`
	MatchDuration   time.Duration `env:"MATCH_DURATION" envDefault:"300s"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load lê o .env em path (se existir) e depois o ambiente.
func Load(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}
	return Parse()
}

// Parse lê apenas o ambiente.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.DirectoryBackend {
	case BackendConsul, BackendMemory:
	default:
		return fmt.Errorf("DIRECTORY_BACKEND inválido: %q", c.DirectoryBackend)
	}
	if c.MaxParticipants < 1 {
		return fmt.Errorf("MAX_PARTICIPANTS deve ser >= 1, recebeu %d", c.MaxParticipants)
	}
	if c.ServicePort <= 0 || c.GamePort <= 0 {
		return fmt.Errorf("portas inválidas: service=%d game=%d", c.ServicePort, c.GamePort)
	}
	return nil
}
