package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/0xcro3dile/ragchat-go/internal/adapters/embedding"
	"github.com/0xcro3dile/ragchat-go/internal/adapters/filewatcher"
	"github.com/0xcro3dile/ragchat-go/internal/adapters/history"
	"github.com/0xcro3dile/ragchat-go/internal/adapters/ledger"
	"github.com/0xcro3dile/ragchat-go/internal/adapters/llm"
	"github.com/0xcro3dile/ragchat-go/internal/adapters/loader"
	"github.com/0xcro3dile/ragchat-go/internal/adapters/vectordb"
	"github.com/0xcro3dile/ragchat-go/internal/domain/ports"
	"github.com/0xcro3dile/ragchat-go/internal/domain/usecases"
	"github.com/0xcro3dile/ragchat-go/internal/infrastructure/config"
	"github.com/0xcro3dile/ragchat-go/internal/infrastructure/metrics"
)

// app owns every component of one CLI invocation. Components are built on
// first use so that commands touching only the history never need a model.
type app struct {
	cfg      *config.AppConfig
	log      *logrus.Logger
	recorder *metrics.Recorder

	index   *vectordb.SQLiteIndex
	ledger  *ledger.FileLedger
	history *history.FileStore
	loader  *loader.MultiLoader
}

func newApp(cfg *config.AppConfig, log *logrus.Logger) *app {
	return &app{
		cfg:      cfg,
		log:      log,
		recorder: metrics.NewRecorder(cfg.Metrics.Namespace),
		ledger:   ledger.NewFileLedger(cfg.Ingest.LedgerPath),
		loader:   loader.NewMultiLoader(),
	}
}

func (a *app) Close() error {
	if a.index != nil {
		return a.index.Close()
	}
	return nil
}

// serveMetrics exposes the recorder on cfg.Metrics.Addr until ctx is done.
func (a *app) serveMetrics(ctx context.Context) {
	if a.cfg.Metrics.Addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.recorder.Handler())
	srv := &http.Server{Addr: a.cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		a.log.WithField("addr", a.cfg.Metrics.Addr).Info("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.WithError(err).Error("metrics server stopped")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
}

func (a *app) historyStore() (*history.FileStore, error) {
	if a.history == nil {
		store, err := history.NewFileStore(a.cfg.History.Dir, a.cfg.History.MaxHistory)
		if err != nil {
			return nil, err
		}
		a.history = store
	}
	return a.history, nil
}

func (a *app) vectorIndex() (*vectordb.SQLiteIndex, error) {
	if a.index == nil {
		emb, err := a.embedder()
		if err != nil {
			return nil, err
		}
		idx, err := vectordb.NewSQLiteIndex(a.cfg.VectorStore.Dir, a.cfg.VectorStore.Collection, emb)
		if err != nil {
			return nil, fmt.Errorf("opening vector index: %w", err)
		}
		a.index = idx
	}
	return a.index, nil
}

func (a *app) embedder() (ports.Embedder, error) {
	m := a.cfg.Embedder
	switch m.Provider {
	case config.ProviderOllama:
		return embedding.NewOllamaEmbedder(m.BaseURL, m.Model, a.log), nil
	default:
		key, err := apiKey("embedder", m)
		if err != nil {
			return nil, err
		}
		return embedding.NewOpenAIEmbedder(embedding.OpenAIConfig{
			BaseURL:   m.BaseURL,
			APIKey:    key,
			Model:     m.Model,
			BatchSize: m.BatchSize,
			Timeout:   m.Timeout(),
		}, a.log), nil
	}
}

func (a *app) chatModel() (ports.ChatCompleter, error) {
	m := a.cfg.Chat
	switch m.Provider {
	case config.ProviderOllama:
		return llm.NewOllamaChat(m.BaseURL, m.Model, a.log), nil
	default:
		key, err := apiKey("chat", m)
		if err != nil {
			return nil, err
		}
		return llm.NewOpenAIChat(llm.OpenAIConfig{
			BaseURL:     m.BaseURL,
			APIKey:      key,
			Model:       m.Model,
			Temperature: m.Temperature,
			Timeout:     m.Timeout(),
		}, a.log), nil
	}
}

func apiKey(section string, m config.ModelConfig) (string, error) {
	key := m.APIKey()
	if key == "" {
		return "", fmt.Errorf("%s: missing API key in env %s", section, m.APIKeyEnv)
	}
	return key, nil
}

func (a *app) ingestUseCase() (*usecases.IngestUseCase, error) {
	idx, err := a.vectorIndex()
	if err != nil {
		return nil, err
	}
	c := a.cfg.Ingest
	return usecases.NewIngestUseCase(idx, a.ledger, usecases.IngestConfig{
		ChunkSize:          c.ChunkSize,
		ChunkOverlap:       c.ChunkOverlap,
		Separators:         c.Separators,
		MaxSplitCharNumber: c.MaxSplitCharNumber,
		Operator:           c.Operator,
	}, usecases.WithIngestRecorder(a.recorder), usecases.WithIngestLogger(a.log)), nil
}

func (a *app) syncUseCase() (*usecases.SyncUseCase, error) {
	ingest, err := a.ingestUseCase()
	if err != nil {
		return nil, err
	}
	return usecases.NewSyncUseCase(a.loader, ingest, a.cfg.Ingest.Concurrency, a.log), nil
}

func (a *app) watcher() (*filewatcher.FSNotifyWatcher, error) {
	exts := a.cfg.Watch.Extensions
	if len(exts) == 0 {
		exts = a.loader.SupportedExtensions()
	}
	return filewatcher.NewFSNotifyWatcher(exts, a.cfg.Watch.Debounce(), a.log)
}

func (a *app) ragService(sessionID string) (*usecases.RagService, error) {
	store, err := a.historyStore()
	if err != nil {
		return nil, err
	}
	idx, err := a.vectorIndex()
	if err != nil {
		return nil, err
	}
	chat, err := a.chatModel()
	if err != nil {
		return nil, err
	}
	chain := usecases.NewRetrievalChain(sessionID, idx, store, chat, usecases.ChainConfig{
		TopK:          a.cfg.Retrieval.TopK,
		HistoryWindow: a.cfg.History.Window,
		SystemPrompt:  a.cfg.Retrieval.SystemPrompt,
	}, a.log)
	return usecases.NewRagService(sessionID, store, chain,
		usecases.WithServiceRecorder(a.recorder),
		usecases.WithServiceLogger(a.log),
	), nil
}
