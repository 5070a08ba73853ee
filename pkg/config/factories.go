package config

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/marmos91/dittofs-namespace/internal/logger"
	"github.com/marmos91/dittofs-namespace/pkg/generation"
	gensbadger "github.com/marmos91/dittofs-namespace/pkg/generation/badger"
	"github.com/marmos91/dittofs-namespace/pkg/namespace"
)

// CreateGenerationSource creates a generation source based on configuration.
//
// The Type field selects the implementation; the matching type-specific
// map is decoded into that implementation's configuration struct.
//
// Supported types:
//   - "memory": in-process counter (generations restart with the process)
//   - "badger": BadgerDB-backed sequence that survives restarts
func CreateGenerationSource(ctx context.Context, cfg *GenerationConfig) (generation.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case "memory":
		return createMemoryGenerationSource(cfg.Memory)
	case "badger":
		return createBadgerGenerationSource(ctx, cfg.Badger)
	default:
		return nil, fmt.Errorf("unknown generation source type: %q", cfg.Type)
	}
}

func createMemoryGenerationSource(options map[string]any) (generation.Source, error) {
	type MemoryGenerationConfig struct {
		Start uint32 `mapstructure:"start"`
	}

	var srcCfg MemoryGenerationConfig
	if err := mapstructure.Decode(options, &srcCfg); err != nil {
		return nil, fmt.Errorf("failed to decode memory generation config: %w", err)
	}

	return generation.NewCounter(srcCfg.Start), nil
}

func createBadgerGenerationSource(ctx context.Context, options map[string]any) (generation.Source, error) {
	var srcCfg gensbadger.Config
	if err := mapstructure.Decode(options, &srcCfg); err != nil {
		return nil, fmt.Errorf("failed to decode badger generation config: %w", err)
	}

	src, err := gensbadger.New(ctx, srcCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create badger generation source: %w", err)
	}
	return src, nil
}

// CreateNamespace builds the namespace described by cfg and initializes its
// root. A root generation of zero is drawn from gens.
func CreateNamespace(ctx context.Context, cfg *Config, gens generation.Source, m *MetricsResult) (*namespace.Namespace, error) {
	opts := []namespace.Option{namespace.WithGenerations(gens)}
	if m != nil {
		opts = append(opts,
			namespace.WithMetrics(m.Namespace),
			namespace.WithHashTableMetrics(m.HashTable),
		)
	}

	ns, err := namespace.New(cfg.Namespace.NamespaceOptions(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create namespace: %w", err)
	}

	root := cfg.Namespace.Root
	var gen uint32
	if root.Generation == 0 {
		gen, err = ns.InitializeAuto(ctx, root.RootID())
	} else {
		gen, err = ns.Initialize(root.RootID(), root.Generation)
	}
	if err != nil {
		_ = ns.Close(context.Background())
		return nil, fmt.Errorf("failed to initialize namespace root: %w", err)
	}

	logger.Info("Namespace %s ready: root=%s generation=%d id=%s",
		cfg.Namespace.Name, root.RootID(), gen, ns.ID())
	return ns, nil
}
