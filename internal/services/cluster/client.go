// Package cluster concentra o encanamento do Consul usado pelo host: conexão
// resiliente, agregação de health checks, trava de autoridade por partida e
// registro do próprio processo.
package cluster

import (
	"fmt"
	"strings"

	consul "github.com/hashicorp/consul/api"
	"github.com/hashicorp/go-hclog"

	"fragmatch/internal/logging"
)

// NewConsulClient tenta cada endereço da lista (separada por vírgulas) até
// encontrar um agente que enxergue um líder.
func NewConsulClient(addrs string, logger hclog.Logger) (*consul.Client, string, error) {
	logger = logging.OrDiscard(logger).Named("consul")
	for _, node := range strings.Split(addrs, ",") {
		node = strings.TrimSpace(node)
		if node == "" {
			continue
		}
		cfg := consul.DefaultConfig()
		cfg.Address = node

		client, err := consul.NewClient(cfg)
		if err != nil {
			logger.Warn("failed to build client", "node", node, "error", err)
			continue
		}

		// Teste rápido de saúde
		if _, err := client.Status().Leader(); err != nil {
			logger.Warn("node has no leader", "node", node, "error", err)
			continue
		}

		logger.Info("connected", "node", node)
		return client, node, nil
	}
	return nil, "", fmt.Errorf("nenhum nó Consul disponível em: %s", addrs)
}
