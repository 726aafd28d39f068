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

	"github.com/fsnotify/fsnotify"

	"github.com/entdesk/entdesk/internal/config"
	"github.com/entdesk/entdesk/internal/embedding"
	pgindex "github.com/entdesk/entdesk/internal/index/postgres"
	"github.com/entdesk/entdesk/internal/retrieval"
)

// debounceDelay coalesces bursts of write events from editors that save in
// multiple steps.
const debounceDelay = 500 * time.Millisecond

func main() {
	kbPath := flag.String("kb", "", "Path to the knowledge base file to ingest (required)")
	sourceRef := flag.String("source", "", "Source ref for the ingested chunks (default: knowledge base file name)")
	watch := flag.Bool("watch", false, "Keep running and re-ingest when the file changes")
	flag.Parse()

	if *kbPath == "" {
		log.Fatal("Usage: entdesk-ingest -kb <file> [-source <ref>] [-watch]")
	}
	if *sourceRef == "" {
		*sourceRef = filepath.Base(*kbPath)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// The in-memory index lives and dies with the server process, so a
	// standalone ingest run needs the shared postgres index.
	if cfg.Storage.IndexEngine != "postgres" {
		log.Fatal("entdesk-ingest requires ENTDESK_INDEX_ENGINE=postgres; the memory index is process-local")
	}

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

	idx, err := pgindex.Open(cfg.Storage.PostgresDSN, cfg.Embedding.Dimension)
	if err != nil {
		log.Fatalf("Failed to open vector index: %v", err)
	}
	defer idx.Close()

	svc, err := retrieval.NewService(provider, idx, retrieval.Config{
		ChunkSize:    cfg.Retrieval.ChunkSize,
		ChunkOverlap: cfg.Retrieval.ChunkOverlap,
		MaxAttempts:  cfg.Retrieval.MaxAttempts,
	})
	if err != nil {
		log.Fatalf("Failed to initialize retrieval service: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ingest := func() {
		data, err := os.ReadFile(*kbPath)
		if err != nil {
			log.Printf("Failed to read %s: %v", *kbPath, err)
			return
		}
		count, err := svc.Ingest(ctx, string(data), *sourceRef)
		if err != nil {
			log.Printf("Ingest failed: %v", err)
			return
		}
		log.Printf("Ingested %d chunks from %s as %q", count, *kbPath, *sourceRef)
	}

	ingest()

	if !*watch {
		return
	}

	// Watch the containing directory: editors replace files on save, which
	// drops the watch when it is attached to the file itself.
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Fatalf("Failed to create watcher: %v", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(*kbPath)
	if err := watcher.Add(dir); err != nil {
		log.Fatalf("Failed to watch %s: %v", dir, err)
	}
	log.Printf("Watching %s for changes", *kbPath)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var debounce *time.Timer
	target := filepath.Clean(*kbPath)
	for {
		select {
		case evt, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != target {
				continue
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, ingest)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("Watcher error: %v", err)

		case <-sigChan:
			log.Println("Shutting down...")
			if debounce != nil {
				debounce.Stop()
			}
			return
		}
	}
}
