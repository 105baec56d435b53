// Package transcript defines the canonical transcript segment model and the
// contract for fetching raw transcript rows from an external provider.
package transcript

import (
	"context"
	"math"
	"sort"
	"strings"
)

// RawSegment is one row as returned by a transcript provider. Offsets and
// durations are seconds; nothing about the row is trusted until Normalize
// has seen it.
type RawSegment struct {
	OffsetSec   float64 `json:"offsetSec"`
	DurationSec float64 `json:"durationSec"`
	Text        string  `json:"text"`
}

// Segment is a canonical transcript segment. Segments for a video are
// totally ordered by (StartSec, Seq) and immutable after creation.
type Segment struct {
	VideoID  string
	Seq      int
	StartSec float64
	EndSec   float64
	Text     string
}

// Source fetches raw transcript rows for a video. Implementations report
// disabled/missing captions by wrapping errs.ErrTranscriptUnavailable.
type Source interface {
	Fetch(ctx context.Context, videoID string) ([]RawSegment, error)
}

// Normalize turns raw provider rows into canonical segments: numbers are
// sanitised (NaN, Inf, and negatives become 0), text is trimmed, rows with
// empty text or non-positive duration are dropped, and survivors are
// renumbered as a contiguous 0-based sequence ordered by ascending offset.
func Normalize(videoID string, rows []RawSegment) []Segment {
	sanitized := make([]RawSegment, len(rows))
	for i, row := range rows {
		sanitized[i] = RawSegment{
			OffsetSec:   sanitizeSeconds(row.OffsetSec),
			DurationSec: sanitizeSeconds(row.DurationSec),
			Text:        strings.TrimSpace(row.Text),
		}
	}
	sort.SliceStable(sanitized, func(i, j int) bool {
		return sanitized[i].OffsetSec < sanitized[j].OffsetSec
	})

	segments := make([]Segment, 0, len(sanitized))
	for _, row := range sanitized {
		if row.Text == "" || row.DurationSec <= 0 {
			continue
		}
		start := row.OffsetSec
		end := row.OffsetSec + row.DurationSec
		if end <= start {
			continue
		}
		segments = append(segments, Segment{
			VideoID:  videoID,
			Seq:      len(segments),
			StartSec: start,
			EndSec:   end,
			Text:     row.Text,
		})
	}
	return segments
}

func sanitizeSeconds(value float64) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return 0
	}
	return value
}
