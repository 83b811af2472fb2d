package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ccmemory/ccmemory/internal/coordinator"
	"github.com/ccmemory/ccmemory/internal/config"
	"github.com/ccmemory/ccmemory/internal/docs"
	"github.com/ccmemory/ccmemory/internal/embed"
	"github.com/ccmemory/ccmemory/internal/extraction"
	"github.com/ccmemory/ccmemory/internal/index"
	"github.com/ccmemory/ccmemory/internal/llm"
	"github.com/ccmemory/ccmemory/internal/memory"
	"github.com/ccmemory/ccmemory/internal/relationship"
	"github.com/ccmemory/ccmemory/internal/scanner"
	"github.com/ccmemory/ccmemory/internal/search"
	"github.com/ccmemory/ccmemory/internal/session"
	"github.com/ccmemory/ccmemory/internal/store"
	"github.com/ccmemory/ccmemory/internal/tools"
)

// app wires every subsystem a CLI subcommand might need, built once per
// process invocation from the loaded Config. Subcommands only use the
// fields they need; the rest stay unexercised but cost nothing beyond
// construction.
type app struct {
	cfg   *config.Config
	root  string
	db    *store.DB
	embed embed.Embedder

	memVectors store.VectorStore
	docVectors store.VectorStore

	memories *memory.Store
	graph    *relationship.Graph
	search   *search.Engine
	chunks   *search.ChunkEngine
	docs     *docs.Ingester
	idx      *index.Indexer
	scan     *scanner.Scanner

	sessions *session.Manager
	acc      *extraction.Accumulator
	pipeline *extraction.Pipeline
	llm      llm.Completer

	registry *coordinator.ClientRegistry
	bus      *coordinator.EventBus
}

// newApp loads config relative to the current directory, opens the
// store at the resolved path, and constructs every subsystem. Callers
// must defer app.Close().
func newApp(ctx context.Context) (*app, error) {
	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	dbPath := cfg.Storage.Path
	if dbPath == "" {
		dbPath = filepath.Join(cfg.Coordinator.RuntimeDir, "ccmemory.db")
	}
	db, err := store.Open(ctx, dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	if host := cfg.Embedding.OllamaHost; host != "" {
		os.Setenv("CCMEMORY_LOCAL_HOST", host)
	}
	embedder, err := embed.NewEmbedder(ctx, embed.ParseProvider(cfg.Embedding.Provider), embed.ProviderStatic, cfg.Embedding.Model)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("construct embedder: %w", err)
	}

	vecCfg := store.DefaultVectorStoreConfig(embedder.Dimensions())
	memVectors, err := store.NewHNSWStore(vecCfg)
	if err != nil {
		db.Close()
		embedder.Close()
		return nil, fmt.Errorf("construct memory vector store: %w", err)
	}
	docVectors, err := store.NewHNSWStore(vecCfg)
	if err != nil {
		db.Close()
		embedder.Close()
		return nil, fmt.Errorf("construct document vector store: %w", err)
	}

	bus := coordinator.NewEventBus(cfg.Coordinator.RuntimeDir)

	graph := relationship.New(db)
	graph.SetEventBus(bus)
	mem := memory.New(db)
	mem.SetEventBus(bus)
	mem.SetEmbedder(embedder, memVectors)
	srch := search.New(db, memVectors, embedder, graph)
	chunks := search.NewChunkEngine(db, docVectors, embedder)
	ingester := docs.New(db, docVectors, embedder)
	sc, err := scanner.New()
	if err != nil {
		db.Close()
		embedder.Close()
		return nil, fmt.Errorf("construct scanner: %w", err)
	}
	indexer := index.New(db, docVectors, embedder, sc)

	sessions := session.New(db)
	acc := extraction.NewAccumulator(db)
	completer := llm.NewOllamaCompleter(cfg.Embedding.OllamaHost, "")
	pipeline := extraction.NewPipeline(db, acc, mem, srch, graph, completer)

	return &app{
		cfg:        cfg,
		root:       root,
		db:         db,
		embed:      embedder,
		memVectors: memVectors,
		docVectors: docVectors,
		memories:   mem,
		graph:      graph,
		search:     srch,
		chunks:     chunks,
		docs:       ingester,
		idx:        indexer,
		scan:       sc,
		sessions:   sessions,
		acc:      acc,
		pipeline: pipeline,
		llm:      completer,
		registry: coordinator.NewClientRegistry(cfg.Coordinator.RuntimeDir),
		bus:      bus,
	}, nil
}

// Close releases the store connection and embedder resources.
func (a *app) Close() {
	if a.embed != nil {
		a.embed.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

// toolDeps builds the internal/tools.Deps for this app's subsystems. It
// applies no allowlist itself; the `tools.enabled` check is toolEnabled.
func (a *app) toolDeps() *tools.Deps {
	return &tools.Deps{
		DB:       a.db,
		Memories: a.memories,
		Search:   a.search,
		Chunks:   a.chunks,
		Graph:    a.graph,
		Docs:     a.docs,
		Indexer:  a.idx,
		Scanner:  a.scan,
	}
}

// toolEnabled reports whether name may be called, per cfg.Tools.Enabled.
// An empty allowlist means every tool in tools.Names is enabled.
func (a *app) toolEnabled(name string) bool {
	if len(a.cfg.Tools.Enabled) == 0 {
		return true
	}
	for _, n := range a.cfg.Tools.Enabled {
		if n == name {
			return true
		}
	}
	return false
}
