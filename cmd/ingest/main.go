package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/kontext/clipsearch/internal/chunker"
	"github.com/kontext/clipsearch/internal/ingest"
	"github.com/kontext/clipsearch/internal/store"
	"github.com/kontext/clipsearch/internal/transcript"
	"github.com/kontext/clipsearch/pkg/config"
	"github.com/kontext/clipsearch/pkg/kafka"
	"github.com/kontext/clipsearch/pkg/logger"
	"github.com/kontext/clipsearch/pkg/metrics"
	"github.com/kontext/clipsearch/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	videosFlag := flag.String("videos", "", "comma-separated video ids to ingest")
	videosFile := flag.String("videos-file", "", "file with one video id per line")
	checkpointPath := flag.String("checkpoint", "", "override checkpoint file path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *checkpointPath != "" {
		cfg.Ingest.CheckpointPath = *checkpointPath
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	videoIDs, err := collectVideoIDs(*videosFlag, *videosFile)
	if err != nil {
		slog.Error("failed to read video ids", "error", err)
		os.Exit(1)
	}
	if len(videoIDs) == 0 {
		fmt.Fprintln(os.Stderr, "no video ids given: use -videos or -videos-file")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pgClient, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgClient.Close()

	ch, err := chunker.New(cfg.Ingest.WindowSeconds, cfg.Ingest.OverlapSeconds, cfg.Ingest.StopwordsExtra)
	if err != nil {
		slog.Error("invalid chunking configuration", "error", err)
		os.Exit(1)
	}

	var publisher ingest.Publisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IngestComplete)
		defer producer.Close()
		publisher = producer
		slog.Info("completion events enabled", "topic", cfg.Kafka.Topics.IngestComplete)
	}

	m := metrics.New()
	runner := ingest.NewRunner(
		transcript.NewFileSource(cfg.Ingest.TranscriptDir),
		store.NewPG(pgClient, cfg.Ingest.BatchSize),
		ch,
		cfg.Ingest,
		publisher,
		m,
		slog.Default(),
	)

	slog.Info("starting ingestion", "videos", len(videoIDs), "checkpoint", cfg.Ingest.CheckpointPath)

	result, err := runner.Run(ctx, videoIDs)
	if err != nil {
		slog.Error("ingestion aborted", "error", err)
		os.Exit(1)
	}

	slog.Info("ingestion finished",
		"processed", len(result.Processed),
		"skipped", len(result.Skipped),
		"failed", len(result.Failed),
	)
	for _, failure := range result.Failed {
		slog.Error("video failed", "video_id", failure.VideoID, "reason", failure.Reason)
	}
	if len(result.Failed) > 0 {
		os.Exit(1)
	}
}

func collectVideoIDs(videosFlag, videosFile string) ([]string, error) {
	ids := make([]string, 0)
	seen := make(map[string]struct{})

	add := func(raw string) {
		id := strings.TrimSpace(raw)
		if id == "" {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	for _, id := range strings.Split(videosFlag, ",") {
		add(id)
	}

	if videosFile != "" {
		file, err := os.Open(videosFile)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			add(scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}

	return ids, nil
}
