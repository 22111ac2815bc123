// Package main is the extraction worker entry point, spawned detached by
// the watchdog. The final stdout line is a machine-readable marker carrying
// run statistics.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/thebtf/recall/internal/claudecli"
	"github.com/thebtf/recall/internal/config"
	"github.com/thebtf/recall/internal/extract"
	"github.com/thebtf/recall/internal/logging"
	"github.com/thebtf/recall/internal/memstore"
	"github.com/thebtf/recall/internal/queue"
	"github.com/thebtf/recall/internal/registry"
	"github.com/thebtf/recall/internal/state"
	"github.com/thebtf/recall/internal/ui"
	"github.com/thebtf/recall/internal/worker"
)

func main() {
	os.Exit(run())
}

func run() int {
	var transcriptsDir string
	flag.StringVar(&transcriptsDir, "transcripts-dir", "", "Directory containing transcript files")
	flag.Parse()

	cfg := config.Get()
	logger := logging.Get(cfg.LogsDir())

	if transcriptsDir != "" {
		logger.Info().Str("transcriptsDir", transcriptsDir).Msg("Worker starting")
	}

	client, err := claudecli.New("")
	if err != nil {
		logger.Error().Err(err).Msg("Extraction worker failed")
		fmt.Fprintf(os.Stderr, "EXTRACTION_FAILED: %v\n", err)
		return 1
	}

	processor := extract.NewProcessor(client, memstore.New(filepath.Join(cfg.MemoriesDir(), "memories.json")))
	processor.Queue = queue.New(cfg.QueuePath())

	w := worker.New(
		registry.New(cfg.TranscriptsPath()),
		state.New(cfg.ExtractionStatePath()),
		processor,
		ui.New(os.Stdout),
		logger,
	)

	// Graceful terminate is honored between transcripts.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stats, err := w.Run(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Extraction worker failed")
		fmt.Fprintf(os.Stderr, "EXTRACTION_FAILED: %v\n", err)
		return 1
	}

	// Single-line marker for the watchdog to capture.
	encoded, _ := json.Marshal(stats)
	fmt.Printf("EXTRACTION_COMPLETE: %s\n", encoded)

	if stats.Errors > 0 {
		return 1
	}
	return 0
}
