package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/gochaorg/logd/bgtask"
	"github.com/gochaorg/logd/discovery"
	"github.com/gochaorg/logd/election"
	"github.com/gochaorg/logd/httpapi"
	"github.com/gochaorg/logd/internal/config"
	"github.com/gochaorg/logd/internal/iprange"
	"github.com/gochaorg/logd/internal/logging"
	"github.com/gochaorg/logd/internal/metrics"
	"github.com/gochaorg/logd/logqueue"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	verbose := fs.Bool("v", false, "verbose logging")

	cfg, err := config.Load(fs, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	queue, err := logqueue.Discover(
		cfg.Queue.Find.Root,
		cfg.Queue.Find.Wildcard,
		cfg.Queue.Find.Recursive,
		cfg.Queue.NewFile.Template,
		map[string]string{"work_dir": cfg.WorkDir},
	)
	if err != nil {
		logger.Error("failed to discover log queue", "error", err)
		os.Exit(1)
	}
	if len(queue.Logs()) == 0 {
		if _, err := queue.Switch(); err != nil {
			logger.Error("failed to create initial segment", "error", err)
			os.Exit(1)
		}
	}

	m := metrics.New()
	defer m.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var node *election.Node
	var electionTask *bgtask.Task
	if cfg.Election.Enabled {
		nodeID := cfg.Election.ID.Resolve()
		peers := make([]election.Peer, 0, len(cfg.Election.Peers))
		for _, url := range cfg.Election.Peers {
			peers = append(peers, election.NewHTTPPeer(url, url, nil))
		}
		electionCfg := election.Config{
			PingPeriod:         cfg.Election.PingPeriod.Std(),
			HeartbeatTimeout:   cfg.Election.HeartbeatTimeout.Std(),
			NominateMinDelay:   cfg.Election.NominateMinDelay.Std(),
			NominateMaxDelay:   cfg.Election.NominateMaxDelay.Std(),
			RenominateMinDelay: cfg.Election.RenominateMinDelay.Std(),
			RenominateMaxDelay: cfg.Election.RenominateMaxDelay.Std(),
			VotesMinCount:      cfg.Election.VotesMinCount,
		}
		node = election.NewNode(nodeID, electionCfg, peers, nil)
		logger.Info("election engine enabled", "node_id", nodeID, "peers", len(peers))

		electionTask, err = bgtask.Start(ctx, electionCfg.PingPeriod, "election-tick", func(tickCtx context.Context) {
			node.Tick(tickCtx)
		})
		if err != nil {
			logger.Error("failed to start election tick task", "error", err)
			os.Exit(1)
		}
	}

	var discoverySrv *discovery.Server
	if cfg.Discovery.Enabled {
		discoverySrv, err = discovery.NewServer(cfg.Discovery.BindAddr, cfg.WebServer.BaseURL())
		if err != nil {
			logger.Error("failed to start discovery server", "error", err)
			os.Exit(1)
		}
		go func() {
			if err := discoverySrv.Serve(); err != nil {
				logger.Warn("discovery server stopped", "error", err)
			}
		}()
		logger.Info("discovery server listening", "addr", cfg.Discovery.BindAddr)

		if _, err := bgtask.Start(ctx, cfg.Discovery.Period.Std(), "discovery-announce", func(tickCtx context.Context) {
			announceOnce(tickCtx, cfg, logger, m)
		}); err != nil {
			logger.Error("failed to start discovery announce task", "error", err)
			os.Exit(1)
		}
	}

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.WebServer.Host, cfg.WebServer.Port),
		Handler: httpapi.New(queue, node, m, httpapi.BuildInfo{Version: version, Commit: commit}),
	}

	go func() {
		logger.Info("http server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
		}
	}()

	stackDumpCh := make(chan os.Signal, 1)
	signal.Notify(stackDumpCh, syscall.SIGUSR1)
	go func() {
		for range stackDumpCh {
			buf := make([]byte, 1024*1024)
			n := runtime.Stack(buf, true)
			fmt.Fprintf(os.Stderr, "\n=== GOROUTINE STACK DUMP ===\n%s\n", buf[:n])
			pprof.Lookup("goroutine").WriteTo(os.Stderr, 2)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")
	cancel()

	if electionTask != nil {
		electionTask.StopForce()
		electionTask.Wait()
	}
	if discoverySrv != nil {
		discoverySrv.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown error", "error", err)
	}

	if err := queue.Close(); err != nil {
		logger.Warn("error closing log queue", "error", err)
	}
}

// announceOnce sends one discovery Hello broadcast across the configured
// address/port range and logs the Welcome replies seen.
func announceOnce(ctx context.Context, cfg config.AppConfig, logger *logging.Logger, m *metrics.Metrics) {
	targets, err := iprange.ParseTargets(cfg.Discovery.AddrRange, cfg.Discovery.PortRange)
	if err != nil {
		logger.Warn("discovery: bad target range", "error", err)
		return
	}
	client, err := discovery.NewClient(cfg.WebServer.BaseURL())
	if err != nil {
		logger.Warn("discovery: failed to open client socket", "error", err)
		return
	}
	defer client.Close()

	m.RecordDiscoveryHelloSent()
	found, err := client.Discover(targets, cfg.Discovery.ReceiveTimeout.Std())
	if err != nil {
		logger.Warn("discovery: broadcast failed", "error", err)
		return
	}
	for range found {
		m.RecordDiscoveryWelcomeReceived()
	}
	if len(found) > 0 {
		logger.Debug("discovery: peers seen", "count", len(found))
	}
}
