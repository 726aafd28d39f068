package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/entdesk/entdesk/internal/config"
	"github.com/entdesk/entdesk/internal/embedding"
	"github.com/entdesk/entdesk/internal/index"
	pgindex "github.com/entdesk/entdesk/internal/index/postgres"
	"github.com/entdesk/entdesk/internal/notify"
	"github.com/entdesk/entdesk/internal/retrieval"
	"github.com/entdesk/entdesk/internal/scheduler"
	"github.com/entdesk/entdesk/internal/server"
	"github.com/entdesk/entdesk/internal/triage"
)

func main() {
	// Parse command line flags
	kbPath := flag.String("kb", "", "Path to a knowledge base file to ingest on startup (optional)")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := os.MkdirAll(cfg.Storage.DataPath, 0o700); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	// Embedding provider
	provider, err := embedding.NewOllamaClient(embedding.OllamaConfig{
		BaseURL:        cfg.Embedding.OllamaURL,
		Model:          cfg.Embedding.Model,
		Dimension:      cfg.Embedding.Dimension,
		Timeout:        cfg.Embedding.Timeout,
		RequestsPerSec: cfg.Embedding.RequestsPerSec,
	})
	if err != nil {
		log.Fatalf("Failed to initialize embedding provider: %v", err)
	}

	// Vector index
	var idx index.VectorIndex
	switch cfg.Storage.IndexEngine {
	case "postgres":
		idx, err = pgindex.Open(cfg.Storage.PostgresDSN, cfg.Embedding.Dimension)
	default:
		idx, err = index.NewMemoryIndex(cfg.Embedding.Dimension)
	}
	if err != nil {
		log.Fatalf("Failed to initialize vector index: %v", err)
	}
	defer idx.Close()

	// Retrieval service
	svc, err := retrieval.NewService(provider, idx, retrieval.Config{
		ChunkSize:    cfg.Retrieval.ChunkSize,
		ChunkOverlap: cfg.Retrieval.ChunkOverlap,
		MaxAttempts:  cfg.Retrieval.MaxAttempts,
	})
	if err != nil {
		log.Fatalf("Failed to initialize retrieval service: %v", err)
	}

	// Triage vocabulary and engine
	vocab := triage.DefaultVocabulary()
	if cfg.Triage.VocabularyPath != "" {
		vocab, err = triage.LoadVocabulary(cfg.Triage.VocabularyPath)
		if err != nil {
			log.Fatalf("Failed to load vocabulary: %v", err)
		}
		log.Printf("Using vocabulary: %s", cfg.Triage.VocabularyPath)
	}
	engine, err := triage.NewEngine(svc, vocab, triage.Config{
		Threshold: cfg.Triage.Threshold,
		TopK:      cfg.Retrieval.TopK,
	})
	if err != nil {
		log.Fatalf("Failed to initialize triage engine: %v", err)
	}

	// Appointment store and scheduler
	store, err := scheduler.NewStore(filepath.Join(cfg.Storage.DataPath, "appointments.db"))
	if err != nil {
		log.Fatalf("Failed to initialize appointment store: %v", err)
	}
	defer store.Close()

	writer := notify.NewEventWriter(cfg.Storage.DataPath)
	sched := scheduler.New(store, writer, scheduler.Config{DedupeWindow: cfg.Scheduler.DedupeWindow})

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optional startup ingest
	if *kbPath != "" {
		data, err := os.ReadFile(*kbPath)
		if err != nil {
			log.Fatalf("Failed to read knowledge base %s: %v", *kbPath, err)
		}
		count, err := svc.Ingest(ctx, string(data), filepath.Base(*kbPath))
		if err != nil {
			log.Fatalf("Failed to ingest knowledge base: %v", err)
		}
		log.Printf("Ingested %d chunks from %s", count, *kbPath)
	}

	// Start server
	addr, wsHub, err := server.Start(ctx, cfg, engine, sched)
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	log.Printf("ENT desk API running at http://%s", addr)

	// Bridge appointment events from the filesystem into the WebSocket hub
	watcher := notify.NewEventWatcher(cfg.Storage.DataPath, func(evt notify.Event) {
		wsHub.Broadcast(evt)
	})
	if err := watcher.Start(); err != nil {
		log.Fatalf("Failed to start event watcher: %v", err)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")

	watcher.Stop()
	cancel()
	time.Sleep(1 * time.Second) // Give time for connections to close
}
