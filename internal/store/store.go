// Package store persists transcript segments and search chunks and serves
// the query-time lookups. The backing database owns candidate generation
// (full-text/keyword retrieval inside search_chunks_v1); this package is
// the adapter around it, not the query engine.
package store

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/kontext/clipsearch/internal/chunker"
	"github.com/kontext/clipsearch/internal/transcript"
)

// CandidateRow is one chunk-level candidate returned by the store's ranked
// retrieval. KeywordScore, TextScore, and CandidateScore are pre-rerank
// signals; the search service recomputes coverage and blends the final
// score itself.
type CandidateRow struct {
	ChunkID             string
	VideoID             string
	ChunkStartSec       float64
	ChunkEndSec         float64
	AnchorSec           float64
	RecommendedStartSec float64
	FullText            string
	NormText            string
	TokenCount          int
	MatchedTerms        []string
	TermMatchCount      int
	TermHitCount        int
	KeywordScore        float64
	TextScore           float64
	CandidateScore      float64
}

// ChunkContext is the full per-token view of one chunk, for highlighting.
type ChunkContext struct {
	ChunkID       string               `json:"chunkId"`
	VideoID       string               `json:"videoId"`
	ChunkStartSec float64              `json:"chunkStartSec"`
	ChunkEndSec   float64              `json:"chunkEndSec"`
	TokenCount    int                  `json:"tokenCount"`
	Tokens        []chunker.TimedToken `json:"tokens"`
}

// VideoSegment is one persisted transcript segment row.
type VideoSegment struct {
	Seq      int     `json:"seq"`
	StartSec float64 `json:"startSec"`
	EndSec   float64 `json:"endSec"`
	Text     string  `json:"text"`
	NormText string  `json:"normText"`
}

// ChunkRef identifies a chunk and its time bounds without its content.
type ChunkRef struct {
	ChunkID    string  `json:"chunkId"`
	VideoID    string  `json:"videoId"`
	ChunkIndex int     `json:"chunkIndex"`
	StartSec   float64 `json:"startSec"`
	EndSec     float64 `json:"endSec"`
}

// Store is the persistence contract the pipeline and the search service
// depend on. Writes are idempotent upserts keyed by identity; term and
// token rows are fully replaced on each chunk upsert.
type Store interface {
	UpsertSegments(ctx context.Context, segments []transcript.Segment) error
	UpsertChunks(ctx context.Context, chunks []chunker.Chunk) error

	SearchCandidates(ctx context.Context, lookup string, limit int, preroll float64) ([]CandidateRow, error)
	ChunkContext(ctx context.Context, chunkID string) (*ChunkContext, error)
	VideoSegments(ctx context.Context, videoID string) ([]VideoSegment, error)
	NearestChunk(ctx context.Context, videoID string, atSec float64) (*ChunkRef, error)
}

// timedTokenRow is the loose JSON shape of one token inside a chunk-context
// payload. Fields are pointers so missing keys are distinguishable from
// zero values during strict decoding.
type timedTokenRow struct {
	Idx       *int     `json:"idx"`
	Token     *string  `json:"token"`
	TokenNorm *string  `json:"token_norm"`
	StartSec  *float64 `json:"start_sec"`
	EndSec    *float64 `json:"end_sec"`
}

// decodeTimedTokens strictly decodes a JSON token array. Rows failing shape
// validation are dropped rather than propagated so rendering stays robust
// against partial data. Tokens are returned sorted by idx.
func decodeTimedTokens(raw []byte) []chunker.TimedToken {
	if len(raw) == 0 {
		return nil
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil
	}

	tokens := make([]chunker.TimedToken, 0, len(rows))
	for _, rowData := range rows {
		var row timedTokenRow
		if err := json.Unmarshal(rowData, &row); err != nil {
			continue
		}
		if row.Idx == nil || row.Token == nil || row.TokenNorm == nil || row.StartSec == nil || row.EndSec == nil {
			continue
		}
		tokens = append(tokens, chunker.TimedToken{
			Idx:       *row.Idx,
			Token:     *row.Token,
			TokenNorm: *row.TokenNorm,
			StartSec:  *row.StartSec,
			EndSec:    *row.EndSec,
		})
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].Idx < tokens[j].Idx })
	return tokens
}
