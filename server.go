package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/zhoukaigo/docling-serve/internal/config"
	"github.com/zhoukaigo/docling-serve/internal/convert"
	"github.com/zhoukaigo/docling-serve/internal/convert/passthrough"
	"github.com/zhoukaigo/docling-serve/internal/httpapi"
	"github.com/zhoukaigo/docling-serve/internal/logger"
	"github.com/zhoukaigo/docling-serve/internal/orchestrator"
	"github.com/zhoukaigo/docling-serve/internal/orchestrator/local"
	"github.com/zhoukaigo/docling-serve/internal/orchestrator/remote"
	"github.com/zhoukaigo/docling-serve/internal/scratch"
	"github.com/zhoukaigo/docling-serve/internal/telemetry"
)

// runServer builds the service's collaborators, wires them into the
// Orchestrator selected by ENG_KIND, and serves the HTTP surface until
// ctx is cancelled.
func runServer(ctx context.Context, cfg config.Settings) error {
	telem, err := telemetry.NewProvider("docling-serve")
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telem.Shutdown(shutdownCtx); err != nil {
			logger.Main.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	store, cleanup, err := buildScratchStore(cfg)
	if err != nil {
		return fmt.Errorf("scratch store: %w", err)
	}
	defer cleanup()

	factory := &passthrough.Factory{MaxFileSize: cfg.MaxFileSize, MaxNumPages: cfg.MaxNumPages}
	cache, err := convert.NewCache(factory, cfg.OptionsCacheSize)
	if err != nil {
		return fmt.Errorf("converter cache: %w", err)
	}

	orch, err := buildOrchestrator(cfg, store, cache, telem)
	if err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}

	if err := orch.WarmUpCaches(ctx); err != nil {
		logger.Main.Warn("warm-up failed", "error", err)
	}

	go orch.ProcessQueue(ctx)

	srv := httpapi.NewServer(orch, cache, cfg)

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}

	httpSrv := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Main.Info("listening", "addr", ln.Addr().String(), "eng_kind", cfg.EngKind)
		serveErr <- httpSrv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Main.Info("shutting down")
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

// buildScratchStore honors SCRATCH_PATH if set; otherwise it creates a
// private temp directory and returns a cleanup that removes it on
// shutdown. A configured SCRATCH_PATH is the operator's to manage, so its
// cleanup is a no-op.
func buildScratchStore(cfg config.Settings) (*scratch.Store, func(), error) {
	if cfg.ScratchPath != "" {
		store, err := scratch.New(cfg.ScratchPath)
		return store, func() {}, err
	}
	dir, err := os.MkdirTemp("", "docling-serve-scratch-")
	if err != nil {
		return nil, nil, fmt.Errorf("create private scratch dir: %w", err)
	}
	store, err := scratch.New(dir)
	if err != nil {
		os.RemoveAll(dir)
		return nil, nil, err
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			logger.Main.Warn("remove private scratch dir failed", "dir", dir, "error", err)
		}
	}
	return store, cleanup, nil
}

// buildOrchestrator selects the Local or Remote backend by ENG_KIND.
func buildOrchestrator(cfg config.Settings, store *scratch.Store, cache *convert.Cache, telem *telemetry.Provider) (orchestrator.Orchestrator, error) {
	base := orchestrator.NewBase(
		orchestrator.NewRegistry(),
		orchestrator.NewSubscribers(),
		store,
		cfg.SingleUseResults,
		cfg.ResultRemovalDelay,
	)

	switch cfg.EngKind {
	case config.EngineLocal:
		queue := orchestrator.NewQueue()
		return local.New(base, queue, cache, store, telem, cfg.LocNumWorkers), nil
	case config.EngineKFP:
		client := remote.NewClient(remote.Config{
			EndpointURL:   cfg.RemoteEndpointURL,
			BearerToken:   readTokenFile(cfg.RemoteTokenPath),
			CACertPath:    cfg.RemoteCACertPath,
			CallbackURL:   cfg.RemoteCallbackURL,
			CallbackToken: cfg.RemoteCallbackToken,
			CallbackCA:    cfg.RemoteCallbackCA,
			BatchSize:     1,
		})
		return remote.New(base, client), nil
	default:
		return nil, fmt.Errorf("unknown ENG_KIND %q", cfg.EngKind)
	}
}

func readTokenFile(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Main.Warn("read remote token file failed", "path", path, "error", err)
		return ""
	}
	return strings.TrimSpace(string(data))
}
