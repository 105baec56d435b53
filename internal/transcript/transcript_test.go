package transcript

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	errs "github.com/kontext/clipsearch/pkg/errors"
)

func TestNormalizeOrdersAndRenumbers(t *testing.T) {
	rows := []RawSegment{
		{OffsetSec: 10, DurationSec: 4, Text: "셋째"},
		{OffsetSec: -5, DurationSec: 3, Text: "첫째"},
		{OffsetSec: 4, DurationSec: 4, Text: "둘째"},
	}

	segments := Normalize("video-1", rows)
	if len(segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segments))
	}

	// the negative offset clamps to 0 and sorts first
	if segments[0].Text != "첫째" || segments[0].StartSec != 0 || segments[0].EndSec != 3 {
		t.Errorf("unexpected first segment: %+v", segments[0])
	}
	for i, segment := range segments {
		if segment.Seq != i {
			t.Errorf("segment %d has seq %d", i, segment.Seq)
		}
		if segment.VideoID != "video-1" {
			t.Errorf("segment %d has video id %q", i, segment.VideoID)
		}
	}
	if segments[1].Text != "둘째" || segments[2].Text != "셋째" {
		t.Errorf("segments out of order: %q, %q", segments[1].Text, segments[2].Text)
	}
}

func TestNormalizeDropsInvalidRows(t *testing.T) {
	rows := []RawSegment{
		{OffsetSec: 0, DurationSec: 2, Text: "   "},
		{OffsetSec: 2, DurationSec: 0, Text: "무음"},
		{OffsetSec: 4, DurationSec: -3, Text: "역방향"},
		{OffsetSec: math.NaN(), DurationSec: math.Inf(1), Text: "깨진 값"},
		{OffsetSec: 6, DurationSec: 2, Text: "정상"},
	}

	segments := Normalize("video-1", rows)
	if len(segments) != 1 {
		t.Fatalf("expected 1 segment, got %d: %+v", len(segments), segments)
	}
	if segments[0].Text != "정상" || segments[0].Seq != 0 {
		t.Errorf("unexpected surviving segment: %+v", segments[0])
	}
}

func TestNormalizeTrimsText(t *testing.T) {
	segments := Normalize("v", []RawSegment{{OffsetSec: 1, DurationSec: 1, Text: "  안녕하세요  "}})
	if len(segments) != 1 || segments[0].Text != "안녕하세요" {
		t.Fatalf("expected trimmed text, got %+v", segments)
	}
}

func TestNormalizeEmpty(t *testing.T) {
	if got := Normalize("v", nil); len(got) != 0 {
		t.Errorf("expected no segments, got %v", got)
	}
}

func TestFileSourceFetch(t *testing.T) {
	dir := t.TempDir()
	payload := `[{"offsetSec": 0, "durationSec": 3, "text": "안녕하세요"}]`
	if err := os.WriteFile(filepath.Join(dir, "abc.json"), []byte(payload), 0o644); err != nil {
		t.Fatal(err)
	}

	source := NewFileSource(dir)
	rows, err := source.Fetch(context.Background(), "abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].Text != "안녕하세요" || rows[0].DurationSec != 3 {
		t.Errorf("unexpected rows: %+v", rows)
	}
}

func TestFileSourceMissingFile(t *testing.T) {
	source := NewFileSource(t.TempDir())
	_, err := source.Fetch(context.Background(), "missing")
	if !errors.Is(err, errs.ErrTranscriptUnavailable) {
		t.Errorf("expected ErrTranscriptUnavailable, got %v", err)
	}
}

func TestFileSourceCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	source := NewFileSource(t.TempDir())
	if _, err := source.Fetch(ctx, "abc"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
