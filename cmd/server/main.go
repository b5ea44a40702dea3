package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	metrics "github.com/armon/go-metrics"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/nats-io/nats.go"

	"fragmatch/internal/config"
	"fragmatch/internal/game/match"
	"fragmatch/internal/httpapi"
	"fragmatch/internal/logging"
	"fragmatch/internal/menu"
	"fragmatch/internal/network"
	"fragmatch/internal/services/cluster"
	"fragmatch/internal/services/directory"
	"fragmatch/internal/services/replication"
	"fragmatch/internal/session"
)

const (
	shutdownTimeout  = 10 * time.Second
	authorityTimeout = 10 * time.Second
)

func main() {
	envFile := flag.String("env", ".env", "arquivo .env opcional")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: falha ao carregar configuração: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.ServiceName, cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger hclog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	nodeID := uuid.NewString()
	host := cfg.AdvertiseHost
	if host == "" {
		host, _ = os.Hostname()
	}
	logger.Info("starting", "node", nodeID, "backend", cfg.DirectoryBackend, "host", host)

	// 1. MÉTRICAS
	sink := metrics.NewInmemSink(10*time.Second, time.Minute)
	metricsCfg := metrics.DefaultConfig(cfg.ServiceName)
	metricsCfg.EnableHostname = false
	if _, err := metrics.NewGlobal(metricsCfg, sink); err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	health := cluster.NewHealthAggregator()
	var closers []func() error

	// 2. DIRETÓRIO DE SESSÕES
	var (
		backend directory.Backend
		manager *cluster.Manager
		err     error
	)
	switch cfg.DirectoryBackend {
	case config.BackendConsul:
		manager, err = cluster.NewManager(cfg.ConsulAddrs, cluster.WithManagerLogger(logger))
		if err != nil {
			return err
		}
		closers = append(closers, func() error { manager.Close(); return nil })
		health.AddCheck("consul", manager.Check)

		consulBackend := directory.NewConsulBackend(manager, cfg.KVPrefix, host, cfg.GamePort,
			directory.WithConsulLogger(logger))
		manager.OnReconnect(consulBackend.Reregister)
		backend = consulBackend
	default:
		backend = directory.NewMemoryDirectory().Backend(host, cfg.GamePort)
	}

	// 3. REPLICAÇÃO DO PLACAR
	var hostFn menu.HostFunc
	var followFn menu.FollowFunc
	nc, err := replication.Connect(cfg.NatsURL, cfg.ServiceName+"-"+nodeID, logger)
	if err != nil {
		logger.Warn("score replication disabled", "error", err)
	} else {
		closers = append(closers, func() error { nc.Close(); return nil })
		health.AddCheck("nats", func() error {
			if !nc.IsConnected() {
				return nats.ErrConnectionClosed
			}
			return nil
		})
		hostFn = hostAuthority(nc, manager, cfg.KVPrefix, nodeID, logger)
		followFn = func(code string, replica *match.Replica) (func() error, error) {
			sub, err := replication.Subscribe(nc, code, replica, logger)
			if err != nil {
				return nil, err
			}
			return sub.Unsubscribe, nil
		}
	}

	// 4. MENU E COORDINATOR
	handler := menu.NewHandler(
		menu.WithMatchConfig(match.Config{TargetScore: cfg.TargetScore, Duration: cfg.MatchDuration}),
		menu.WithMaxParticipants(cfg.MaxParticipants),
		menu.WithHost(hostFn),
		menu.WithFollow(followFn),
		menu.WithLogger(logger),
	)
	coordinator := session.New(backend, session.Config{MapName: cfg.MapName},
		session.WithListener(handler),
		session.WithTraveler(handler),
		session.WithLogger(logger),
	)
	handler.Bind(coordinator)

	server := network.NewServer(handler, logger)
	go server.Run(ctx)
	menuDone := make(chan struct{})
	go func() {
		handler.Run(ctx, server.Hub())
		close(menuDone)
	}()

	// 5. HTTP
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.ServicePort),
		Handler: httpapi.SetupRoutes(server, health.Handler(), sink),
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// 6. REGISTRO DO PROCESSO NO CONSUL
	if manager != nil {
		id, err := cluster.RegisterProcess(manager.GetClient(), cluster.ProcessRegistration{
			Name: cfg.ServiceName,
			Host: cfg.AdvertiseHost,
			Port: cfg.ServicePort,
		}, logger)
		if err != nil {
			logger.Warn("process registration failed", "error", err)
		} else {
			closers = append(closers, func() error {
				return cluster.DeregisterProcess(manager.GetClient(), id)
			})
		}
	}

	var result *multierror.Error
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-serveErr:
		result = multierror.Append(result, err)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		result = multierror.Append(result, fmt.Errorf("http shutdown: %w", err))
	}
	<-menuDone
	if err := coordinator.Close(shutdownCtx); err != nil {
		result = multierror.Append(result, fmt.Errorf("close session: %w", err))
	}
	// Ordem inversa de abertura.
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// hostAuthority elege este processo como único escritor do placar antes de
// publicar. Sem Consul não há disputa e a guarda é sempre verdadeira.
func hostAuthority(nc *nats.Conn, manager *cluster.Manager, prefix, nodeID string, logger hclog.Logger) menu.HostFunc {
	return func(ctx context.Context, code string) (match.Publisher, func() error, error) {
		if manager == nil {
			return replication.NewPublisher(nc, code, nil, logger), func() error { return nil }, nil
		}

		authority := cluster.NewAuthority(manager.GetClient(), prefix, code, nodeID, logger)
		authority.OnLost(func() {
			logger.Warn("match authority lost, replicas stop receiving scores", "room_code", code)
		})

		actx, cancel := context.WithTimeout(ctx, authorityTimeout)
		defer cancel()
		if err := authority.Acquire(actx); err != nil {
			return nil, nil, err
		}
		return replication.NewPublisher(nc, code, authority.Held, logger), authority.Release, nil
	}
}
