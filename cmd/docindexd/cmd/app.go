package cmd

import (
	"fmt"

	"github.com/docindex/docindex/internal/config"
	"github.com/docindex/docindex/pkg/catalog"
	"github.com/docindex/docindex/pkg/embedding"
	"github.com/docindex/docindex/pkg/pipeline"
	"github.com/docindex/docindex/pkg/retriever"
	"github.com/docindex/docindex/pkg/scraper"
	"github.com/docindex/docindex/pkg/store"
)

// app bundles the wired components a command needs: store, embedder,
// pipeline manager, catalog, and retriever, all built off one loaded
// Config. It owns the Store's lifecycle; callers must call Close.
type app struct {
	cfg       config.Config
	store     *store.Store
	embedder  embedding.Embedder
	manager   *pipeline.Manager
	catalog   *catalog.Catalog
	retriever *retriever.Retriever
}

// newApp loads configuration (YAML file plus env overrides, including
// DOCS_MCP_STORE_PATH) and wires every component in the data plane:
// Embedder -> cached Embedder -> Store -> Manager (over sc) ->
// Catalog/Retriever. A nil sc defaults to an HTTPScraper; commands pass a
// LocalFileScraper for --local runs.
func newApp(configPath string, sc scraper.Scraper) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	embedder, err := embedding.New(embedding.Config{
		Provider: embedding.Provider(cfg.Embeddings.Provider),
		Model:    cfg.Embeddings.Model,
		APIKey:   cfg.Embeddings.APIKey,
		BaseURL:  cfg.Embeddings.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build embedding provider: %w", err)
	}
	embedder = embedding.NewCachedEmbedder(embedder, cfg.Embeddings.CacheSize)

	storePath := config.ResolveStorePath(cfg)
	storeCfg := store.DefaultConfig()
	storeCfg.Path = storePath
	storeCfg.StoreDimensions = cfg.Embeddings.Dimensions
	storeCfg.BatchCount = cfg.Embeddings.BatchCount
	storeCfg.BatchChars = cfg.Embeddings.BatchChars
	storeCfg.RRFConstant = cfg.Search.RRFConstant
	storeCfg.MaxResults = cfg.Search.MaxResults

	st, err := store.Open(storeCfg, embedder)
	if err != nil {
		return nil, fmt.Errorf("failed to open store at %s: %w", storePath, err)
	}

	if _, err := config.InstallationID(storePath); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to resolve installation id: %w", err)
	}

	if sc == nil {
		sc = scraper.NewHTTPScraper()
	}
	manager := pipeline.NewManager(st, sc, cfg.Pipeline.Concurrency, cfg.Pipeline.Recover)

	return &app{
		cfg:       cfg,
		store:     st,
		embedder:  embedder,
		manager:   manager,
		catalog:   catalog.New(st),
		retriever: retriever.New(st),
	}, nil
}

func (a *app) Close() error {
	embedErr := a.embedder.Close()
	storeErr := a.store.Close()
	if embedErr != nil {
		return embedErr
	}
	return storeErr
}
