// Package ingest drives the transcript ingestion pipeline: fetch,
// normalize, chunk, persist, checkpoint. Videos are processed one at a
// time so a crash loses at most the video in flight.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kontext/clipsearch/internal/chunker"
	"github.com/kontext/clipsearch/internal/store"
	"github.com/kontext/clipsearch/internal/transcript"
	"github.com/kontext/clipsearch/pkg/config"
	errs "github.com/kontext/clipsearch/pkg/errors"
	"github.com/kontext/clipsearch/pkg/kafka"
	"github.com/kontext/clipsearch/pkg/metrics"
	"github.com/kontext/clipsearch/pkg/resilience"
)

// Failure records why one video could not be ingested.
type Failure struct {
	VideoID string `json:"videoId"`
	Reason  string `json:"reason"`
}

// Result summarizes one pipeline run.
type Result struct {
	Processed []string  `json:"processed"`
	Skipped   []string  `json:"skipped"`
	Failed    []Failure `json:"failed"`
}

// CompletionEvent is published after each successfully ingested video so
// downstream consumers (the search query cache) can react.
type CompletionEvent struct {
	VideoID    string    `json:"videoId"`
	Segments   int       `json:"segments"`
	Chunks     int       `json:"chunks"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Publisher is the fragment of the Kafka producer the runner needs.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Runner executes the ingestion pipeline for a list of videos.
type Runner struct {
	source    transcript.Source
	store     store.Store
	chunker   *chunker.Chunker
	cfg       config.IngestConfig
	publisher Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewRunner(
	source transcript.Source,
	st store.Store,
	ch *chunker.Chunker,
	cfg config.IngestConfig,
	publisher Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Runner {
	if cfg.CheckpointPath == "" {
		cfg.CheckpointPath = DefaultCheckpointPath
	}
	return &Runner{
		source:    source,
		store:     st,
		chunker:   ch,
		cfg:       cfg,
		publisher: publisher,
		metrics:   m,
		logger:    logger.With("component", "ingest-runner"),
	}
}

// Run ingests each video in order. Videos already recorded in the
// checkpoint are skipped; a failed video is recorded and the run moves
// on. Only a canceled context aborts the whole run.
func (r *Runner) Run(ctx context.Context, videoIDs []string) (*Result, error) {
	checkpoint := ReadCheckpoint(r.cfg.CheckpointPath)
	result := &Result{
		Processed: []string{},
		Skipped:   []string{},
		Failed:    []Failure{},
	}

	for _, videoID := range videoIDs {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if checkpoint.IsCompleted(videoID) {
			r.logger.InfoContext(ctx, "skipping completed video", "video_id", videoID)
			result.Skipped = append(result.Skipped, videoID)
			if r.metrics != nil {
				r.metrics.VideosSkippedTotal.Inc()
			}
			continue
		}

		r.logger.InfoContext(ctx, "ingesting video", "video_id", videoID)

		next, err := r.ingestOne(ctx, checkpoint, videoID)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return result, err
			}
			result.Failed = append(result.Failed, Failure{VideoID: videoID, Reason: err.Error()})
			if r.metrics != nil {
				r.metrics.VideosFailedTotal.WithLabelValues(failureReason(err)).Inc()
			}
			r.logger.ErrorContext(ctx, "video ingestion failed", "video_id", videoID, "error", err)
			continue
		}

		checkpoint = next
		result.Processed = append(result.Processed, videoID)
		if r.metrics != nil {
			r.metrics.VideosIngestedTotal.Inc()
		}
	}

	return result, nil
}

func (r *Runner) ingestOne(ctx context.Context, checkpoint Checkpoint, videoID string) (Checkpoint, error) {
	rows, err := r.source.Fetch(ctx, videoID)
	if err != nil {
		return checkpoint, fmt.Errorf("fetching transcript: %w", err)
	}

	segments := transcript.Normalize(videoID, rows)
	if len(segments) == 0 {
		return checkpoint, fmt.Errorf("%w: transcript empty after normalization", errs.ErrTranscriptUnavailable)
	}

	retryCfg := resilience.RetryConfig{
		MaxRetries: r.cfg.MaxRetries,
		BaseDelay:  r.cfg.RetryBaseDelay,
		MaxDelay:   r.cfg.RetryMaxDelay,
	}

	err = resilience.Retry(ctx, "upsert-segments", retryCfg, r.countingRetries(func() error {
		return r.store.UpsertSegments(ctx, segments)
	}))
	if err != nil {
		return checkpoint, fmt.Errorf("persisting segments: %w: %w", errs.ErrStoreUnavailable, err)
	}

	chunks := r.chunker.Build(videoID, segments)

	err = resilience.Retry(ctx, "upsert-chunks", retryCfg, r.countingRetries(func() error {
		return r.store.UpsertChunks(ctx, chunks)
	}))
	if err != nil {
		return checkpoint, fmt.Errorf("persisting chunks: %w: %w", errs.ErrStoreUnavailable, err)
	}
	if r.metrics != nil {
		r.metrics.ChunksPersistedTotal.Add(float64(len(chunks)))
	}

	var lastSegmentSeq *int
	if len(segments) > 0 {
		seq := segments[len(segments)-1].Seq
		lastSegmentSeq = &seq
	}
	var lastChunkStartTime *float64
	if len(chunks) > 0 {
		start := chunks[len(chunks)-1].StartSec
		lastChunkStartTime = &start
	}

	next := MarkVideoCompleted(checkpoint, videoID, lastSegmentSeq, lastChunkStartTime)
	if err := WriteCheckpoint(next, r.cfg.CheckpointPath); err != nil {
		return checkpoint, fmt.Errorf("recording checkpoint: %w", err)
	}

	r.publishCompletion(ctx, videoID, len(segments), len(chunks))

	r.logger.InfoContext(ctx, "video ingested",
		"video_id", videoID,
		"segments", len(segments),
		"chunks", len(chunks),
	)
	return next, nil
}

// publishCompletion emits the ingest-completion event. Publishing is
// best effort: the video is already persisted and checkpointed, so a
// broker outage must not fail the run.
func (r *Runner) publishCompletion(ctx context.Context, videoID string, segments, chunks int) {
	if r.publisher == nil {
		return
	}
	event := kafka.Event{
		Key: videoID,
		Value: CompletionEvent{
			VideoID:    videoID,
			Segments:   segments,
			Chunks:     chunks,
			FinishedAt: time.Now().UTC(),
		},
	}
	if err := r.publisher.Publish(ctx, event); err != nil {
		r.logger.WarnContext(ctx, "completion event publish failed", "video_id", videoID, "error", err)
	}
}

// countingRetries wraps fn so attempts after the first count as store
// retries.
func (r *Runner) countingRetries(fn func() error) func() error {
	attempt := 0
	return func() error {
		attempt++
		if attempt > 1 && r.metrics != nil {
			r.metrics.StoreRetriesTotal.Inc()
		}
		return fn()
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, errs.ErrTranscriptUnavailable):
		return "transcript_unavailable"
	case errors.Is(err, errs.ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "other"
	}
}
