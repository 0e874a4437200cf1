package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"fission/internal/config"
	"fission/internal/engine"
	"fission/internal/events"
	"fission/internal/extraction"
	"fission/internal/llm"
	"fission/internal/localmodel"
	"fission/internal/logging"
	"fission/internal/notes"
	"fission/internal/observability"
	"fission/internal/store"
	"fission/internal/summary"
)

// Container owns every long-lived dependency of one CLI invocation.
type Container struct {
	Config      config.Config
	Store       *store.Store
	Hub         *events.Hub
	Metrics     *observability.MetricsCollector
	Tracer      *observability.TracerProvider
	Provisioner *localmodel.Provisioner
	LlamaServer *localmodel.ServerManager
	Engine      *engine.Handle
	Notes       *notes.Service

	logger   logging.Logger
	onStatus localmodel.StatusFunc
	closers  []func() error
}

// buildContainer wires the application. The engine is not started here; it
// initialises on the first extraction or summary.
func buildContainer(cfg config.Config) (*Container, error) {
	c := &Container{Config: cfg, logger: logging.NewComponentLogger("container")}

	metrics, err := observability.NewMetricsCollector(cfg.MetricsOptions())
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	c.Metrics = metrics
	c.closers = append(c.closers, func() error { return metrics.Shutdown(context.Background()) })

	tracer, err := observability.NewTracerProvider(cfg.TracingOptions(appVersion()))
	if err != nil {
		c.logger.Warn("Tracing disabled: %v", err)
		tracer = observability.NoopTracer()
	}
	c.Tracer = tracer
	c.closers = append(c.closers, func() error { return tracer.Shutdown(context.Background()) })

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	c.Store = st
	c.closers = append(c.closers, st.Close)

	c.Hub = events.NewHub(events.DefaultBuffer)

	prov, err := localmodel.NewProvisioner(localmodel.Options{
		Dir:        cfg.Model.Dir,
		File:       cfg.Model.File,
		Repo:       cfg.Model.Repo,
		Revision:   cfg.Model.Revision,
		SHA256:     cfg.Model.SHA256,
		BundlePath: cfg.Model.BundlePath,
		HFBaseURL:  cfg.Model.HFBaseURL,
		HFToken:    cfg.Model.HFToken,
		Metrics:    metrics,
		Tracer:     tracer,
	})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("init model provisioner: %w", err)
	}
	c.Provisioner = prov

	c.LlamaServer = localmodel.NewServerManager(localmodel.ServerOptions{
		Binary:      cfg.LLM.ServerBinary,
		BaseURL:     cfg.LLM.BaseURL,
		ContextSize: cfg.LLM.ContextSize,
		Threads:     cfg.LLM.Threads,
		LogPath:     filepath.Join(cfg.Model.Dir, "llama-server.log"),
	})

	c.Engine = engine.NewHandle(c.initEngine, engine.WithCloser(c.LlamaServer.Stop))
	c.closers = append(c.closers, c.Engine.Close)

	ex, err := extraction.New(c.Engine, extraction.WithMetrics(metrics), extraction.WithTracer(tracer))
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	sm, err := summary.New(c.Engine, summary.WithMetrics(metrics), summary.WithTracer(tracer))
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	svc, err := notes.NewService(notes.Deps{
		Store:       st,
		Extractor:   ex,
		Summarizer:  sm,
		Provisioner: prov,
		Engine:      c.Engine,
		Hub:         c.Hub,
		CacheSize:   cfg.Summary.CacheSize,
	})
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	c.Notes = svc
	return c, nil
}

// initEngine provisions weights and starts llama-server when configured to,
// then connects the completion client.
func (c *Container) initEngine(ctx context.Context) (llm.Client, error) {
	cfg := c.Config
	llmCfg := llm.Config{
		Provider:     cfg.LLM.Provider,
		Model:        cfg.LLM.Model,
		BaseURL:      cfg.LLM.BaseURL,
		Timeout:      cfg.LLM.Timeout(),
		MockResponse: cfg.LLM.MockResponse,
	}

	if cfg.LLM.Provider == "llama.cpp" {
		if llmCfg.Model == "" {
			llmCfg.Model = cfg.Model.File
		}
		if cfg.LLM.Autostart {
			handle, err := c.Notes.PrepareModel(ctx, c.onStatus, nil)
			if err != nil {
				return nil, fmt.Errorf("prepare model: %w", err)
			}
			startCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
			defer cancel()
			if err := c.LlamaServer.Ensure(startCtx, handle.Path); err != nil {
				return nil, fmt.Errorf("start llama-server: %w", err)
			}
		}
	}

	client, err := llm.NewClient(llmCfg)
	if err != nil {
		return nil, err
	}
	if hc, ok := client.(llm.HealthChecker); ok {
		if err := hc.Health(ctx); err != nil {
			return nil, fmt.Errorf("inference backend unavailable: %w", err)
		}
	}
	return llm.NewInstrumentedClient(client, llm.Observability{
		Metrics: c.Metrics,
		Tracer:  c.Tracer,
		Logger:  logging.NewComponentLogger("llm"),
	}), nil
}

// Close releases resources in reverse order of acquisition.
func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
