package cluster

import (
	"fmt"
	"os"

	consul "github.com/hashicorp/consul/api"
	"github.com/hashicorp/go-hclog"

	"fragmatch/internal/logging"
)

// HostServiceName é o nome com que o processo host se registra.
const HostServiceName = "fragmatch-host"

// ProcessRegistration descreve o próprio processo no catálogo.
type ProcessRegistration struct {
	Name       string
	Host       string
	Port       int
	HealthPort int
}

// ServiceID deriva um ID único a partir do hostname.
func (r ProcessRegistration) ServiceID() string {
	host := r.Host
	if host == "" {
		host = hostname()
	}
	return fmt.Sprintf("%s-%s-%d", r.Name, host, r.Port)
}

// RegisterProcess registra o processo com um health check HTTP em /health.
// Devolve o ID usado, para o Deregister no desligamento.
func RegisterProcess(client *consul.Client, reg ProcessRegistration, logger hclog.Logger) (string, error) {
	if client == nil {
		return "", ErrNotConnected
	}
	logger = logging.OrDiscard(logger).Named("register")
	if reg.Name == "" {
		reg.Name = HostServiceName
	}
	if reg.HealthPort == 0 {
		reg.HealthPort = reg.Port
	}
	checkHost := reg.Host
	if checkHost == "" {
		checkHost = hostname()
	}

	id := reg.ServiceID()
	registration := &consul.AgentServiceRegistration{
		ID:      id,
		Name:    reg.Name,
		Port:    reg.Port,
		Address: reg.Host,
		Check: &consul.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s:%d/health", checkHost, reg.HealthPort),
			Timeout:                        "5s",
			Interval:                       "10s",
			DeregisterCriticalServiceAfter: "1m",
		},
	}
	if err := client.Agent().ServiceRegister(registration); err != nil {
		return "", fmt.Errorf("registrar %s no Consul: %w", id, err)
	}
	logger.Info("process registered", "service", reg.Name, "id", id)
	return id, nil
}

func DeregisterProcess(client *consul.Client, id string) error {
	if client == nil {
		return ErrNotConnected
	}
	if err := client.Agent().ServiceDeregister(id); err != nil {
		return fmt.Errorf("desregistrar %s: %w", id, err)
	}
	return nil
}

func hostname() string {
	if h := os.Getenv("HOSTNAME"); h != "" {
		return h
	}
	h, _ := os.Hostname()
	return h
}
