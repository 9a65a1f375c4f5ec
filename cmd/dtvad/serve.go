package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/dtva/internal/checkpoint"
	"github.com/dropDatabas3/dtva/internal/cluster"
	"github.com/dropDatabas3/dtva/internal/config"
	"github.com/dropDatabas3/dtva/internal/coordinator"
	httpserver "github.com/dropDatabas3/dtva/internal/http"
	clusterctrl "github.com/dropDatabas3/dtva/internal/http/controllers/cluster"
	healthctrl "github.com/dropDatabas3/dtva/internal/http/controllers/health"
	validityctrl "github.com/dropDatabas3/dtva/internal/http/controllers/validity"
	"github.com/dropDatabas3/dtva/internal/http/router"
	clustersvc "github.com/dropDatabas3/dtva/internal/http/services/cluster"
	healthsvc "github.com/dropDatabas3/dtva/internal/http/services/health"
	"github.com/dropDatabas3/dtva/internal/metrics"
	"github.com/dropDatabas3/dtva/internal/observability/logger"
	"github.com/dropDatabas3/dtva/internal/validity"
)

func newServeCmd() *cobra.Command {
	var cfgPath, envFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Levanta el nodo Raft y el API HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			// .env es opcional
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("load %s: %w", envFile, err)
			}
			if cfgPath == "" {
				cfgPath = os.Getenv("CONFIG_PATH")
			}
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}

			env := "dev"
			if cfg.IsProd() {
				env = "prod"
			}
			logger.Init(logger.Config{Env: env, Level: cfg.App.LogLevel, NodeID: cfg.Cluster.NodeID})
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "Archivo YAML de configuración (env CONFIG_PATH)")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "Archivo .env opcional")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.Named("dtvad")

	if err := metrics.RegisterAll(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	genesis, err := validity.LoadGenesis(cfg.Node.GenesisFile)
	if err != nil {
		return err
	}
	initial := genesis.InitialState()
	participant, ok := initial.Constitution().ParticipantIndex([]byte(cfg.Node.Identifier))
	if !ok {
		return fmt.Errorf("node.identifier %q is not a participant in %s", cfg.Node.Identifier, cfg.Node.GenesisFile)
	}

	fsm, err := cluster.NewFSM(cluster.FSMOptions{
		Genesis:           initial,
		CompressSnapshots: cfg.Cluster.SnapshotCompression,
	})
	if err != nil {
		return err
	}
	node, err := cluster.NewNode(cluster.NodeOptions{
		NodeID:             cfg.Cluster.NodeID,
		RaftAddr:           cfg.Cluster.RaftAddr,
		RaftDir:            cfg.Cluster.RaftDir,
		FSM:                fsm,
		Peers:              cfg.Cluster.Nodes,
		ParticipantIndex:   participant,
		ApplyTimeout:       cfg.Cluster.ApplyTimeout,
		SnapshotThreshold:  cfg.Cluster.SnapshotThreshold,
		BootstrapPreferred: cfg.Cluster.BootstrapPreferred,
		DisableBootstrap:   cfg.Cluster.DisableBootstrap,
		RaftTLSEnable:      cfg.Cluster.RaftTLSEnable,
		RaftTLSCertFile:    cfg.Cluster.RaftTLSCertFile,
		RaftTLSKeyFile:     cfg.Cluster.RaftTLSKeyFile,
		RaftTLSCAFile:      cfg.Cluster.RaftTLSCAFile,
		RaftTLSServerName:  cfg.Cluster.RaftTLSServerName,
	})
	if err != nil {
		return fmt.Errorf("raft node: %w", err)
	}
	defer func() {
		if err := node.Close(); err != nil {
			log.Warn("raft close failed", logger.Err(err))
		}
	}()

	coord, err := coordinator.New(coordinator.Options{
		Submitter:             node,
		States:                fsm,
		SelfIdentifier:        []byte(cfg.Node.Identifier),
		ConsensusGraceSpan:    cfg.Node.ConsensusGraceSpan,
		InteractivityDebounce: cfg.API.InteractivityDebounce,
	})
	if err != nil {
		return err
	}

	redirects := make([]string, 0, len(cfg.Cluster.LeaderRedirects))
	for _, u := range cfg.Cluster.LeaderRedirects {
		redirects = append(redirects, u)
	}
	handler := router.New(router.Deps{
		Validity: validityctrl.NewControllers(coord, fsm),
		Health: healthctrl.NewHealthController(healthsvc.NewHealthService(healthsvc.Deps{
			ClusterChecker:  node,
			Replica:         fsm,
			LeaderRedirects: redirects,
		})),
		Admin:           clusterctrl.NewClusterController(clustersvc.NewClusterService(node)),
		AdminKey:        cfg.API.AdminKey,
		Cluster:         node,
		LeaderRedirects: cfg.Cluster.LeaderRedirects,
	})

	log.Info("node starting",
		logger.Participant(participant),
		logger.String("raft_addr", node.RaftAddr()),
		logger.String("http_addr", cfg.Server.Addr),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Serve(ctx, httpserver.ServerConfig{
			Addr:         cfg.Server.Addr,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}, handler)
	})
	g.Go(func() error {
		return checkpoint.Run(ctx, cfg.Checkpoint.Path, cfg.Checkpoint.Interval, fsm)
	})
	g.Go(func() error {
		if err := node.WaitForLeader(ctx); err != nil {
			return nil
		}
		log.Info("cluster has a leader", logger.Leader(node.LeaderID()), logger.Bool("self", node.IsLeader()))
		return nil
	})

	err = g.Wait()
	log.Info("node stopped")
	return err
}
