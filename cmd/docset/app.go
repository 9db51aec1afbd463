package main

import (
	"fmt"
	"log/slog"

	"github.com/dgallion1/docset/internal/config"
	"github.com/dgallion1/docset/internal/metrics"
	"github.com/dgallion1/docset/internal/parser"
	"github.com/dgallion1/docset/internal/pipeline"
	"github.com/dgallion1/docset/internal/questions"
	"github.com/dgallion1/docset/internal/source"
	"github.com/dgallion1/docset/internal/storage"
)

// app holds the components shared by serve and ingest.
type app struct {
	cfg     config.Config
	log     *slog.Logger
	uploads *source.Uploads
	store   *storage.FS
	llm     *questions.Client
	metrics *metrics.Metrics
	orch    *pipeline.Orchestrator
}

func newApp(cfg config.Config, log *slog.Logger) (*app, error) {
	store, err := storage.NewFS(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open data dir: %w", err)
	}

	uploads := source.NewUploads(cfg.UploadTTL)
	fetcher := source.NewFetcher(uploads, source.FetcherOptions{
		Timeout:      cfg.FetchTimeout,
		UserAgent:    cfg.UserAgent,
		MaxBytes:     cfg.FetchMaxBytes,
		WikipediaAPI: cfg.WikipediaAPI,
	})
	cleaner := source.NewCleaner(cfg.StripSections, parser.Options{PDFFallbackPdftotext: cfg.PDFFallbackPdftotext})

	llm := questions.NewClient(questions.Config{
		APIKey:            cfg.OpenAIAPIKey,
		BaseURL:           cfg.OpenAIBaseURL,
		Model:             cfg.OpenAIModel,
		Temperature:       cfg.Temperature,
		MaxTokens:         cfg.MaxTokens,
		SystemPrompt:      cfg.SystemPrompt,
		RequestsPerSecond: cfg.LLMRequestsPerSecond,
		Burst:             cfg.LLMBurst,
	}, questions.NewLLMStats(cfg.StatsWindow), log.With("component", "questions"))

	m := metrics.New()
	orch := pipeline.NewOrchestrator(cfg, pipeline.Deps{
		Fetcher:   fetcher,
		Cleaner:   cleaner,
		Generator: llm,
		Store:     store,
		Metrics:   m,
	}, log)

	return &app{
		cfg:     cfg,
		log:     log,
		uploads: uploads,
		store:   store,
		llm:     llm,
		metrics: m,
		orch:    orch,
	}, nil
}
