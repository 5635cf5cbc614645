package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/batchsched/pkg/api"
	"github.com/cuemby/batchsched/pkg/config"
	"github.com/cuemby/batchsched/pkg/energy"
	"github.com/cuemby/batchsched/pkg/energy/agentpb"
	"github.com/cuemby/batchsched/pkg/events"
	"github.com/cuemby/batchsched/pkg/leader"
	"github.com/cuemby/batchsched/pkg/log"
	"github.com/cuemby/batchsched/pkg/metrics"
	"github.com/cuemby/batchsched/pkg/notify"
	"github.com/cuemby/batchsched/pkg/platform"
	"github.com/cuemby/batchsched/pkg/scheduler"
	"github.com/cuemby/batchsched/pkg/types"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "batchsched",
	Short:   "batchsched is a cluster batch job scheduler meta-scheduler",
	Version: Version,
}

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the YAML configuration file")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(configCmd)
}

var loadedCfg *config.Config

func initLogging() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	loadedCfg = cfg
	log.Init(log.Config{
		Level:      log.Level(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
	})
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("batchsched version %s (%s)\n", Version, Commit)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the scheduler configuration",
}

func init() {
	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			fmt.Println("configuration is valid")
			return nil
		},
	})
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Manage scheduler queues",
}

func init() {
	queueCmd.AddCommand(&cobra.Command{
		Use:   "enable <name>",
		Short: "Activate a queue",
		Args:  cobra.ExactArgs(1),
		RunE:  setQueueStateCmd(types.QueueActive),
	})
	queueCmd.AddCommand(&cobra.Command{
		Use:   "disable <name>",
		Short: "Deactivate a queue",
		Args:  cobra.ExactArgs(1),
		RunE:  setQueueStateCmd(types.QueueNotActive),
	})
}

func setQueueStateCmd(state types.QueueState) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := platform.NewBoltStore(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer store.Close()
		if err := store.SetQueueState(args[0], state); err != nil {
			return err
		}
		fmt.Printf("queue %s set to %s\n", args[0], state)
		return nil
	}
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the meta-scheduler daemon",
	RunE:  runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg := loadedCfg
	if cfg == nil {
		var err error
		cfg, err = loadConfig()
		if err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := log.WithComponent("main")

	store, err := platform.NewBoltStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	var node *leader.Node
	isLeader := func() bool { return true }
	if cfg.Raft.NodeID != "" {
		fsm := leader.NewFSM(store)
		node, err = leader.New(leader.Config{
			NodeID:   cfg.Raft.NodeID,
			BindAddr: cfg.Raft.BindAddr,
			DataDir:  cfg.DataDir,
		}, fsm)
		if err != nil {
			return fmt.Errorf("init raft: %w", err)
		}
		if cfg.Raft.Bootstrap {
			if err := node.Bootstrap(); err != nil {
				return fmt.Errorf("bootstrap raft: %w", err)
			}
		} else {
			if err := node.Join(); err != nil {
				return fmt.Errorf("join raft: %w", err)
			}
		}
		isLeader = node.IsLeader
		metrics.RegisterComponent("raft", true, "started")
	} else {
		metrics.RegisterComponent("raft", true, "standalone")
	}

	gateway := notify.New(cfg.Notify.ExecutionAgentSocket, cfg.Notify.DialTimeout)

	var energyDecider *energy.Decider
	if cfg.Energy.Enabled {
		var agent energy.Agent
		if cfg.Energy.AgentEndpoint != "" {
			conn, err := grpc.NewClient(cfg.Energy.AgentEndpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
			if err != nil {
				return fmt.Errorf("dial energy agent: %w", err)
			}
			defer conn.Close()
			agent = energy.NewGRPCAgent(agentpb.NewAgentClient(conn))
		} else {
			agent = energy.NewExternalAgent(cfg.Energy.AgentProgram, time.Duration(cfg.Scheduler.TimeoutSeconds)*time.Second)
		}
		energyDecider = energy.New(store, agent, energy.Config{
			Enabled:    cfg.Energy.Enabled,
			HostLabel:  cfg.Energy.HostLabel,
			IdleTime:   cfg.Energy.IdleTime,
			SleepTime:  cfg.Energy.SleepTime,
			WakeupTime: cfg.Energy.WakeupTime,
		})
	}

	sched := scheduler.New(scheduler.Config{
		Store:                   store,
		Notifier:                gateway,
		PolicyDir:               func(q *types.Queue) string { return cfg.Scheduler.PolicyProgram },
		PolicyTimeout:           time.Duration(cfg.Scheduler.PolicyTimeoutSeconds) * time.Second,
		SecurityTime:            cfg.Scheduler.JobSecurityTime,
		WaitingResourcesTimeout: cfg.Scheduler.ReservationWaitingResourcesTimeout,
		HierarchyLabels:         cfg.HierarchyLabelList(),
		IterationInterval:       time.Duration(cfg.Scheduler.IterationIntervalSeconds) * time.Second,
		Energy:                  energyDecider,
		Events:                  broker,
		IsLeader:                isLeader,
	})
	sched.Start()
	defer sched.Stop()

	metrics.SetVersion(Version)
	metrics.RegisterComponent("platform", true, "ready")

	collector := metrics.NewCollector(store)
	collector.Start()
	defer collector.Stop()

	stopMetricsCh := make(chan struct{})
	defer close(stopMetricsCh)
	if node != nil {
		go reportRaftMetrics(node, stopMetricsCh)
	}

	apiSrv := api.New(store, node, false)
	apiErrCh := make(chan error, 1)
	go func() {
		if err := apiSrv.ListenAndServe(cfg.API.ListenAddr); err != nil {
			apiErrCh <- err
		}
	}()
	metrics.RegisterComponent("api", true, "ready")
	logger.Info().Str("addr", cfg.API.ListenAddr).Msg("admin API listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-apiErrCh:
		logger.Error().Err(err).Msg("admin API server failed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return apiSrv.Shutdown(ctx)
}

// reportRaftMetrics samples node's leadership/peer-count state into
// metrics.RaftLeader/metrics.RaftPeers on a fixed interval until
// stopCh closes.
func reportRaftMetrics(node *leader.Node, stopCh <-chan struct{}) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	node.ReportMetrics()
	for {
		select {
		case <-ticker.C:
			node.ReportMetrics()
		case <-stopCh:
			return
		}
	}
}
