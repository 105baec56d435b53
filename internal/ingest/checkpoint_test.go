package ingest

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestReadCheckpointMissingFile(t *testing.T) {
	cp := ReadCheckpoint(filepath.Join(t.TempDir(), "nope.json"))
	if len(cp.CompletedVideoIDs) != 0 {
		t.Errorf("expected empty checkpoint, got %+v", cp)
	}
	if cp.LastVideoID != nil || cp.LastSegmentSeq != nil || cp.LastChunkStartTime != nil {
		t.Errorf("expected nil optional fields, got %+v", cp)
	}
}

func TestReadCheckpointCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	cp := ReadCheckpoint(path)
	if len(cp.CompletedVideoIDs) != 0 {
		t.Errorf("corrupt file should yield the initial state, got %+v", cp)
	}
}

func TestCheckpointRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "checkpoint.json")

	seq := 12
	start := 60.0
	cp := MarkVideoCompleted(NewCheckpoint(), "video-1", &seq, &start)

	if err := WriteCheckpoint(cp, path); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	loaded := ReadCheckpoint(path)
	if !reflect.DeepEqual(loaded.CompletedVideoIDs, []string{"video-1"}) {
		t.Errorf("completed ids = %v", loaded.CompletedVideoIDs)
	}
	if loaded.LastVideoID == nil || *loaded.LastVideoID != "video-1" {
		t.Errorf("last video id = %v", loaded.LastVideoID)
	}
	if loaded.LastSegmentSeq == nil || *loaded.LastSegmentSeq != 12 {
		t.Errorf("last segment seq = %v", loaded.LastSegmentSeq)
	}
	if loaded.LastChunkStartTime == nil || *loaded.LastChunkStartTime != 60 {
		t.Errorf("last chunk start = %v", loaded.LastChunkStartTime)
	}
	if _, err := time.Parse(time.RFC3339, loaded.UpdatedAt); err != nil {
		t.Errorf("updatedAt %q is not RFC3339: %v", loaded.UpdatedAt, err)
	}
}

func TestMarkVideoCompletedIsPure(t *testing.T) {
	original := MarkVideoCompleted(NewCheckpoint(), "video-1", nil, nil)
	before := append([]string(nil), original.CompletedVideoIDs...)

	next := MarkVideoCompleted(original, "video-2", nil, nil)

	if !reflect.DeepEqual(original.CompletedVideoIDs, before) {
		t.Errorf("input checkpoint mutated: %v", original.CompletedVideoIDs)
	}
	if !reflect.DeepEqual(next.CompletedVideoIDs, []string{"video-1", "video-2"}) {
		t.Errorf("next completed ids = %v", next.CompletedVideoIDs)
	}
}

func TestMarkVideoCompletedDeduplicates(t *testing.T) {
	cp := MarkVideoCompleted(NewCheckpoint(), "video-1", nil, nil)
	cp = MarkVideoCompleted(cp, "video-1", nil, nil)
	if !reflect.DeepEqual(cp.CompletedVideoIDs, []string{"video-1"}) {
		t.Errorf("completed ids = %v, want single entry", cp.CompletedVideoIDs)
	}
}

func TestIsCompleted(t *testing.T) {
	cp := MarkVideoCompleted(NewCheckpoint(), "video-1", nil, nil)
	if !cp.IsCompleted("video-1") {
		t.Error("video-1 should be completed")
	}
	if cp.IsCompleted("video-2") {
		t.Error("video-2 should not be completed")
	}
}

func TestWriteCheckpointOverwritesAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")

	first := MarkVideoCompleted(NewCheckpoint(), "video-1", nil, nil)
	if err := WriteCheckpoint(first, path); err != nil {
		t.Fatal(err)
	}
	second := MarkVideoCompleted(first, "video-2", nil, nil)
	if err := WriteCheckpoint(second, path); err != nil {
		t.Fatal(err)
	}

	loaded := ReadCheckpoint(path)
	if !reflect.DeepEqual(loaded.CompletedVideoIDs, []string{"video-1", "video-2"}) {
		t.Errorf("completed ids = %v", loaded.CompletedVideoIDs)
	}

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the checkpoint file, found %d entries", len(entries))
	}
}
