package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultCheckpointPath is where the runner records ingest progress
// unless configured otherwise.
const DefaultCheckpointPath = ".cache/ingestion-checkpoint.json"

// Checkpoint records which videos finished ingesting so a rerun can
// resume instead of starting over. Optional fields are pointers:
// null in the file means the value was never recorded.
type Checkpoint struct {
	CompletedVideoIDs  []string `json:"completedVideoIds"`
	LastVideoID        *string  `json:"lastVideoId"`
	LastSegmentSeq     *int     `json:"lastSegmentSeq"`
	LastChunkStartTime *float64 `json:"lastChunkStartTime"`
	UpdatedAt          string   `json:"updatedAt"`
}

// NewCheckpoint returns the empty starting state.
func NewCheckpoint() Checkpoint {
	return Checkpoint{
		CompletedVideoIDs: []string{},
		UpdatedAt:         time.Unix(0, 0).UTC().Format(time.RFC3339),
	}
}

// ReadCheckpoint loads the checkpoint at path. A missing or unreadable
// file yields the initial state rather than an error: losing a
// checkpoint costs a re-ingest, never a failed run.
func ReadCheckpoint(path string) Checkpoint {
	raw, err := os.ReadFile(path)
	if err != nil {
		return NewCheckpoint()
	}
	var cp Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return NewCheckpoint()
	}
	return normalizeCheckpoint(cp)
}

// WriteCheckpoint persists the checkpoint atomically: write a temp file
// in the target directory, then rename over the destination.
func WriteCheckpoint(cp Checkpoint, path string) error {
	cp = normalizeCheckpoint(cp)
	cp.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating checkpoint directory: %w", err)
	}

	payload, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding checkpoint: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".checkpoint-*.json")
	if err != nil {
		return fmt.Errorf("creating temp checkpoint: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp checkpoint: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("installing checkpoint: %w", err)
	}
	return nil
}

// MarkVideoCompleted returns a new checkpoint with videoID recorded as
// done. The input checkpoint is not modified.
func MarkVideoCompleted(cp Checkpoint, videoID string, lastSegmentSeq *int, lastChunkStartTime *float64) Checkpoint {
	completed := make([]string, 0, len(cp.CompletedVideoIDs)+1)
	seen := make(map[string]struct{}, len(cp.CompletedVideoIDs)+1)
	for _, id := range cp.CompletedVideoIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		completed = append(completed, id)
	}
	if _, dup := seen[videoID]; !dup {
		completed = append(completed, videoID)
	}

	id := videoID
	return Checkpoint{
		CompletedVideoIDs:  completed,
		LastVideoID:        &id,
		LastSegmentSeq:     lastSegmentSeq,
		LastChunkStartTime: lastChunkStartTime,
		UpdatedAt:          time.Now().UTC().Format(time.RFC3339),
	}
}

// IsCompleted reports whether videoID already finished ingesting.
func (cp Checkpoint) IsCompleted(videoID string) bool {
	for _, id := range cp.CompletedVideoIDs {
		if id == videoID {
			return true
		}
	}
	return false
}

func normalizeCheckpoint(cp Checkpoint) Checkpoint {
	if cp.CompletedVideoIDs == nil {
		cp.CompletedVideoIDs = []string{}
	}
	if cp.UpdatedAt == "" {
		cp.UpdatedAt = time.Unix(0, 0).UTC().Format(time.RFC3339)
	}
	return cp
}
