package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/marmos91/dittofs-namespace/internal/logger"
	"github.com/marmos91/dittofs-namespace/pkg/config"
	"github.com/marmos91/dittofs-namespace/pkg/hashtable"
	"github.com/marmos91/dittofs-namespace/pkg/namespace"
	"github.com/marmos91/dittofs-namespace/pkg/registry"
	"github.com/marmos91/dittofs-namespace/pkg/replay"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/dittons/config.yaml)")
	logLevel := flag.String("log-level", "", "Override log level (DEBUG, INFO, WARN, ERROR)")
	scriptPath := flag.String("script", "", "Replay a YAML operation script against the namespace")
	stopOnFailure := flag.Bool("stop-on-failure", false, "Stop a replay at the first mismatching step")
	rate := flag.Uint("rate", 0, "Pace a replay to this many steps per second (0 = unthrottled)")
	sample := flag.Bool("sample", false, "Populate the namespace with a sample tree")
	showStats := flag.Bool("stats", false, "Print namespace and index statistics before exiting")
	initConfig := flag.Bool("init", false, "Write the default configuration file and exit")
	force := flag.Bool("force", false, "Overwrite an existing file with -init")

	flag.Parse()

	if *initConfig {
		path := *configPath
		if path == "" {
			path = config.GetDefaultConfigPath()
		}
		if err := config.InitConfigToPath(path, *force); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Configuration written to %s\n", path)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	logger.SetLevel(cfg.Logging.Level)
	logger.SetFormat(cfg.Logging.Format)
	if err := logger.SetOutput(cfg.Logging.Output); err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}
	defer func() { _ = logger.Close() }()

	fmt.Println("dittons - NFS namespace manager")
	logger.Info("Log level set to: %s", cfg.Logging.Level)

	if err := run(cfg, *scriptPath, *stopOnFailure, *rate, *sample, *showStats); err != nil {
		logger.Error("%v", err)
		_ = logger.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config, scriptPath string, stopOnFailure bool, rate uint, sample, showStats bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := config.InitializeMetrics(cfg)

	gens, err := config.CreateGenerationSource(ctx, &cfg.Generation)
	if err != nil {
		return err
	}
	defer func() {
		if err := gens.Close(); err != nil {
			logger.Warn("Generation source close failed: %v", err)
		}
	}()
	logger.Info("Generation source: %s", cfg.Generation.Type)

	reg := registry.NewRegistry()
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := reg.CloseAll(closeCtx); err != nil {
			logger.Error("Namespace close failed: %v", err)
		}
	}()

	created, err := config.CreateNamespace(ctx, cfg, gens, m)
	if err != nil {
		return err
	}
	if err := reg.Register(created); err != nil {
		_ = created.Close(ctx)
		return err
	}

	ns, err := reg.Get(cfg.Namespace.Name)
	if err != nil {
		return err
	}

	if sample {
		logger.Info("Creating sample tree:")
		if err := createInitialStructure(ctx, ns); err != nil {
			return err
		}
	}

	var replayErr error
	if scriptPath != "" {
		replayErr = runScript(ctx, ns, scriptPath, replay.Options{StopOnFailure: stopOnFailure, Rate: rate})
	}

	if showStats {
		printStats(ns)
	}

	if replayErr != nil || m.Server == nil {
		return replayErr
	}

	return serve(ctx, cfg, m)
}

func runScript(ctx context.Context, ns *namespace.Namespace, path string, opts replay.Options) error {
	script, err := replay.LoadFile(path)
	if err != nil {
		return err
	}
	// the namespace root comes from the configuration
	script.Root = nil

	report, err := replay.Run(ctx, ns, script, opts)
	if err != nil {
		return fmt.Errorf("replay %s: %w", path, err)
	}
	if !report.OK() {
		return fmt.Errorf("replay %s: %d of %d steps failed", path, len(report.Failures), report.Steps)
	}
	if err := ns.CheckInvariants(); err != nil {
		return fmt.Errorf("replay %s left the namespace inconsistent: %w", path, err)
	}
	logger.Info("Replay %s: %d steps passed", path, report.Steps)
	return nil
}

// serve exposes metrics until a shutdown signal arrives.
func serve(ctx context.Context, cfg *config.Config, m *config.MetricsResult) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return m.Server.Start(gctx)
	})

	logger.Info("Namespace %s is running. Press Ctrl+C to stop.", cfg.Namespace.Name)

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("Shutdown signal received, stopped gracefully")
	return nil
}

func printStats(ns *namespace.Namespace) {
	s := ns.Stats()

	fmt.Printf("namespace %s (%s)\n", ns.Name(), ns.ID())
	fmt.Printf("  nodes: %d\n  edges: %d\n", s.Nodes, s.Edges)
	printTableStats("lookup index", s.LookupTable)
	printTableStats("node index", s.NodeTable)
}

func printTableStats(name string, s hashtable.Stats) {
	fmt.Printf("  %s: %d entries in %d buckets (min %d, max %d, avg %.2f)\n",
		name, s.Entries, len(s.Buckets), s.MinBucket, s.MaxBucket, s.AvgBucket)
	for _, op := range []struct {
		name string
		st   hashtable.OpStats
	}{
		{"set", s.Set}, {"test", s.Test}, {"get", s.Get}, {"del", s.Del},
	} {
		fmt.Printf("    %-4s ok=%d not_found=%d error=%d\n", op.name, op.st.Success, op.st.NotFound, op.st.Error)
	}
}
