// Command maintenance runs one janitor pass outside the server: it retries
// queued submissions, prunes the pending queue, trims the capture archive
// and optionally reindexes archived files into the database.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"plantwatch/internal/config"
	"plantwatch/internal/logger"
	"plantwatch/internal/repository/sqlite"
	"plantwatch/internal/service/clock"
	"plantwatch/internal/service/maintenance"
	"plantwatch/internal/service/status"
	"plantwatch/internal/service/storage"
	"plantwatch/internal/service/submission"
)

func main() {
	reindex := flag.Bool("reindex", false, "Index archived captures missing from the database")
	skipFlush := flag.Bool("no-flush", false, "Do not retry pending submissions")
	verbose := flag.Bool("v", false, "Debug logging")
	flag.Parse()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	l := logger.New(os.Stderr, *verbose)

	db, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	buffer := storage.NewBufferService(cfg, l, sqlite.NewImageRepository(db))

	if *reindex {
		added, err := buffer.Reindex()
		if err != nil {
			log.Fatalf("Failed to reindex captures: %v", err)
		}
		fmt.Fprintf(os.Stderr, "✅ Indexed %d capture(s) from %s\n", added, buffer.Dir())
	}

	var sinks []submission.Sink
	if cfg.StorageEnabled() {
		sinks = append(sinks, submission.NewStorageSink(cfg.Storage))
	}
	queue := submission.NewPendingQueue(cfg.Storage.PendingPath, l)

	var flusher maintenance.Flusher
	if !*skipFlush {
		flusher = submission.NewPipeline(sinks, queue, status.NewStore(), clock.Real{}, l)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	report := maintenance.NewJanitor(cfg, flusher, queue, buffer.Forget, clock.Real{}, l).RunOnce(ctx)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		log.Fatalf("Failed to write report: %v", err)
	}
}
