package search

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"testing"

	"github.com/kontext/clipsearch/internal/chunker"
	"github.com/kontext/clipsearch/internal/store"
	"github.com/kontext/clipsearch/internal/transcript"
	"github.com/kontext/clipsearch/pkg/config"
	errs "github.com/kontext/clipsearch/pkg/errors"
)

type fakeStore struct {
	candidates []store.CandidateRow
	err        error

	gotLookup  string
	gotLimit   int
	gotPreroll float64
}

func (f *fakeStore) UpsertSegments(ctx context.Context, segments []transcript.Segment) error {
	return nil
}

func (f *fakeStore) UpsertChunks(ctx context.Context, chunks []chunker.Chunk) error {
	return nil
}

func (f *fakeStore) SearchCandidates(ctx context.Context, lookup string, limit int, preroll float64) ([]store.CandidateRow, error) {
	f.gotLookup = lookup
	f.gotLimit = limit
	f.gotPreroll = preroll
	return f.candidates, f.err
}

func (f *fakeStore) ChunkContext(ctx context.Context, chunkID string) (*store.ChunkContext, error) {
	return nil, errs.ErrChunkNotFound
}

func (f *fakeStore) VideoSegments(ctx context.Context, videoID string) ([]store.VideoSegment, error) {
	return nil, nil
}

func (f *fakeStore) NearestChunk(ctx context.Context, videoID string, atSec float64) (*store.ChunkRef, error) {
	return nil, errs.ErrVideoNotFound
}

func testSearchConfig() config.SearchConfig {
	return config.SearchConfig{
		DefaultLimit:   20,
		MaxLimit:       50,
		DefaultPreroll: 4,
		MaxPreroll:     30,
	}
}

func newTestService(fs *fakeStore) *Service {
	return NewService(fs, testSearchConfig(), nil, slog.Default())
}

func candidate(chunkID string, matched []string, hits int) store.CandidateRow {
	return store.CandidateRow{
		ChunkID:             chunkID,
		VideoID:             "video-" + chunkID,
		ChunkStartSec:       10,
		ChunkEndSec:         25,
		AnchorSec:           12,
		RecommendedStartSec: 11,
		FullText:            "오늘은 검색 엔진 구현을 분석했다",
		NormText:            "오늘은 검색 엔진 구현을 분석하다",
		TokenCount:          5,
		MatchedTerms:        matched,
		TermMatchCount:      len(matched),
		TermHitCount:        hits,
		TextScore:           0.5,
	}
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	svc := newTestService(&fakeStore{})
	for _, query := range []string{"", "   ", "!!!"} {
		_, err := svc.Search(context.Background(), Params{Query: query})
		if !errors.Is(err, errs.ErrInvalidInput) {
			t.Errorf("Search(%q) error = %v, want ErrInvalidInput", query, err)
		}
	}
}

func TestSearchNormalizesLookup(t *testing.T) {
	fs := &fakeStore{}
	svc := newTestService(fs)

	_, err := svc.Search(context.Background(), Params{Query: "  검색했다, 엔진! 검색했다 ", Limit: 10, PrerollSec: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fs.gotLookup != "검색했다 엔진" {
		t.Errorf("lookup = %q, want deduped normalized terms", fs.gotLookup)
	}
	if fs.gotLimit != 60 {
		t.Errorf("candidate limit = %d, want floor of 60", fs.gotLimit)
	}
}

func TestSearchCandidateLimitScaling(t *testing.T) {
	tests := []struct {
		limit int
		want  int
	}{
		{1, 60},
		{10, 60},
		{20, 120},
		{50, 300},
		{0, 120}, // default limit 20
	}
	for _, tt := range tests {
		fs := &fakeStore{}
		svc := newTestService(fs)
		if _, err := svc.Search(context.Background(), Params{Query: "검색", Limit: tt.limit, PrerollSec: 4}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if fs.gotLimit != tt.want {
			t.Errorf("limit %d: candidate limit = %d, want %d", tt.limit, fs.gotLimit, tt.want)
		}
	}
}

func TestSearchClampsParams(t *testing.T) {
	fs := &fakeStore{}
	svc := newTestService(fs)

	if _, err := svc.Search(context.Background(), Params{Query: "검색", Limit: 500, PrerollSec: 99}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fs.gotLimit != 300 {
		t.Errorf("candidate limit = %d, want ceiling of 300", fs.gotLimit)
	}
	if fs.gotPreroll != 30 {
		t.Errorf("preroll = %v, want clamp to 30", fs.gotPreroll)
	}
}

func TestSearchScoresAndRanks(t *testing.T) {
	full := candidate("full", []string{"검색", "엔진"}, 3)
	partial := candidate("partial", []string{"검색"}, 1)
	partial.TextScore = 0.9

	fs := &fakeStore{candidates: []store.CandidateRow{partial, full}}
	svc := newTestService(fs)

	resp, err := svc.Search(context.Background(), Params{Query: "검색 엔진", Limit: 10, PrerollSec: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(resp.Results))
	}

	first := resp.Results[0]
	if first.ChunkID != "full" || !first.FullCoverage {
		t.Errorf("full-coverage candidate should rank first, got %+v", first)
	}
	if first.Scores.Keyword != 1 {
		t.Errorf("keyword score = %v, want 1", first.Scores.Keyword)
	}
	wantCoverage := 0.65*1 + 0.35*(3.0/5.0)
	if math.Abs(first.Scores.Coverage-wantCoverage) > 1e-9 {
		t.Errorf("coverage score = %v, want %v", first.Scores.Coverage, wantCoverage)
	}
	wantFinal := 0.55*1 + 0.30*0.5 + 0.15*wantCoverage
	if math.Abs(first.Scores.Final-wantFinal) > 1e-9 {
		t.Errorf("final score = %v, want %v", first.Scores.Final, wantFinal)
	}

	second := resp.Results[1]
	if second.ChunkID != "partial" || second.FullCoverage {
		t.Errorf("partial candidate should rank second, got %+v", second)
	}
	if second.Scores.Keyword != 0.5 {
		t.Errorf("partial keyword score = %v, want 0.5", second.Scores.Keyword)
	}
}

func TestSearchFuzzyRecovery(t *testing.T) {
	// the store matched nothing for "분석하다" but the chunk text carries a
	// one-edit variant the reranker can recover
	row := candidate("c1", []string{"검색"}, 1)
	row.NormText = "검색 엔진을 분석한다"

	fs := &fakeStore{candidates: []store.CandidateRow{row}}
	svc := newTestService(fs)

	resp, err := svc.Search(context.Background(), Params{Query: "검색 분석하다", Limit: 10, PrerollSec: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(resp.Results))
	}

	result := resp.Results[0]
	if !result.FullCoverage {
		t.Errorf("fuzzy recovery should complete coverage: %+v", result)
	}
	if len(result.FuzzyTerms) != 1 || result.FuzzyTerms[0] != "분석하다" {
		t.Errorf("fuzzy terms = %v, want [분석하다]", result.FuzzyTerms)
	}
	if len(result.MatchedTerms) != 2 {
		t.Errorf("matched terms = %v, want both query terms", result.MatchedTerms)
	}
}

func TestSearchDropsUnmatchedCandidates(t *testing.T) {
	row := candidate("c1", nil, 0)
	row.NormText = "관련 없는 내용"

	fs := &fakeStore{candidates: []store.CandidateRow{row}}
	svc := newTestService(fs)

	resp, err := svc.Search(context.Background(), Params{Query: "검색 엔진", Limit: 10, PrerollSec: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Results) != 0 {
		t.Errorf("expected no results, got %+v", resp.Results)
	}
}

func TestSearchStrictDropsPartialCoverage(t *testing.T) {
	full := candidate("full", []string{"검색", "엔진"}, 2)
	partial := candidate("partial", []string{"검색"}, 1)
	partial.NormText = "검색 결과만 있다"

	fs := &fakeStore{candidates: []store.CandidateRow{full, partial}}
	svc := newTestService(fs)

	resp, err := svc.SearchStrict(context.Background(), Params{Query: "검색 엔진", Limit: 10, PrerollSec: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].ChunkID != "full" {
		t.Errorf("strict mode results = %+v, want only the full match", resp.Results)
	}
}

func TestSearchAnchorClamping(t *testing.T) {
	row := candidate("c1", []string{"검색"}, 1)
	row.ChunkStartSec = 100
	row.ChunkEndSec = 115
	row.AnchorSec = 90 // below chunk start
	row.RecommendedStartSec = math.NaN()

	fs := &fakeStore{candidates: []store.CandidateRow{row}}
	svc := newTestService(fs)

	resp, err := svc.Search(context.Background(), Params{Query: "검색", Limit: 10, PrerollSec: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result := resp.Results[0]
	if result.AnchorSec != 100 {
		t.Errorf("anchor = %v, want clamp to chunk start 100", result.AnchorSec)
	}
	// recommended falls back to anchor-preroll, then clamps into the chunk
	if result.RecommendedStartSec != 100 {
		t.Errorf("recommended = %v, want 100", result.RecommendedStartSec)
	}
}

func TestSearchRecommendedFromStore(t *testing.T) {
	row := candidate("c1", []string{"검색"}, 1)

	fs := &fakeStore{candidates: []store.CandidateRow{row}}
	svc := newTestService(fs)

	resp, err := svc.Search(context.Background(), Params{Query: "검색", Limit: 10, PrerollSec: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := resp.Results[0].RecommendedStartSec; got != 11 {
		t.Errorf("recommended = %v, want the store value 11", got)
	}
}

func TestSearchStoreErrorLenient(t *testing.T) {
	fs := &fakeStore{err: errs.ErrStoreUnavailable}
	svc := newTestService(fs)

	resp, err := svc.Search(context.Background(), Params{Query: "검색", Limit: 10, PrerollSec: 4})
	if err != nil {
		t.Fatalf("lenient search should absorb store read failures, got %v", err)
	}
	if len(resp.Results) != 0 || resp.Total != 0 {
		t.Errorf("results = %+v, want empty set", resp.Results)
	}
	if resp.Query != "검색" || len(resp.QueryTerms) != 1 {
		t.Errorf("degraded response should still echo the query, got %+v", resp)
	}
}

func TestSearchStoreErrorStrict(t *testing.T) {
	fs := &fakeStore{err: errs.ErrStoreUnavailable}
	svc := newTestService(fs)

	if _, err := svc.SearchStrict(context.Background(), Params{Query: "검색", Limit: 10, PrerollSec: 4}); !errors.Is(err, errs.ErrStoreUnavailable) {
		t.Errorf("strict search should propagate the store error, got %v", err)
	}
}
