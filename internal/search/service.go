// Package search implements the clip-search read path: candidate
// retrieval, fuzzy term recovery, rescoring, ordering, and the
// diversity pass that keeps one channel from crowding the results.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/kontext/clipsearch/internal/search/ranker"
	"github.com/kontext/clipsearch/internal/store"
	"github.com/kontext/clipsearch/internal/tokenizer"
	"github.com/kontext/clipsearch/pkg/config"
	errs "github.com/kontext/clipsearch/pkg/errors"
	"github.com/kontext/clipsearch/pkg/metrics"
)

// Candidate over-fetch bounds. We ask the store for more rows than the
// caller wants so fuzzy recovery and the diversity pass have slack.
const (
	candidateMultiplier = 6
	candidateFloor      = 60
	candidateCeiling    = 300
)

// Mode selects the failure and coverage policy of one search.
type Mode int

const (
	// ModeLenient keeps partial-coverage matches and degrades a store
	// read failure to an empty result set.
	ModeLenient Mode = iota
	// ModeStrict returns only chunks matching every query term and
	// propagates store read failures to the caller.
	ModeStrict
)

// Params are the caller-supplied knobs for one search.
type Params struct {
	Query      string
	Limit      int
	PrerollSec float64
}

// Scores breaks the final ranking score into its components.
type Scores struct {
	Keyword  float64 `json:"keyword"`
	Text     float64 `json:"text"`
	Coverage float64 `json:"coverage"`
	Final    float64 `json:"final"`
}

// Result is one ranked clip match.
type Result struct {
	ChunkID             string   `json:"chunkId"`
	VideoID             string   `json:"videoId"`
	StartSec            float64  `json:"startSec"`
	EndSec              float64  `json:"endSec"`
	AnchorSec           float64  `json:"anchorSec"`
	RecommendedStartSec float64  `json:"recommendedStartSec"`
	Snippet             string   `json:"snippet"`
	MatchedTerms        []string `json:"matchedTerms"`
	FuzzyTerms          []string `json:"fuzzyTerms,omitempty"`
	FullCoverage        bool     `json:"fullCoverage"`
	Scores              Scores   `json:"scores"`
}

// Response is the payload of one search call.
type Response struct {
	Query      string   `json:"query"`
	QueryTerms []string `json:"queryTerms"`
	Results    []Result `json:"results"`
	Total      int      `json:"total"`
	TookMS     int64    `json:"tookMs"`
}

// Service runs searches against a Store.
type Service struct {
	store   store.Store
	cfg     config.SearchConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewService(st store.Store, cfg config.SearchConfig, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{store: st, cfg: cfg, metrics: m, logger: logger}
}

// Search runs a lenient search: partial-coverage matches stay in the
// result set ranked below full-coverage ones, and a store read failure
// yields an empty result set instead of an error.
func (s *Service) Search(ctx context.Context, params Params) (*Response, error) {
	return s.run(ctx, params, ModeLenient)
}

// SearchStrict drops every candidate failing to match all query terms
// and propagates store read failures. Evaluation tooling uses it.
func (s *Service) SearchStrict(ctx context.Context, params Params) (*Response, error) {
	return s.run(ctx, params, ModeStrict)
}

func (s *Service) run(ctx context.Context, params Params, mode Mode) (*Response, error) {
	started := time.Now()

	query := strings.TrimSpace(params.Query)
	if query == "" {
		s.countQuery("invalid")
		return nil, errs.New(errs.ErrInvalidInput, http.StatusBadRequest, "empty query")
	}
	queryTerms := tokenizer.TokenizeQuery(query)
	if len(queryTerms) == 0 {
		s.countQuery("invalid")
		return nil, errs.Newf(errs.ErrInvalidInput, http.StatusBadRequest, "query %q has no searchable terms", query)
	}

	limit := ClampLimit(params.Limit, s.cfg)
	preroll := ClampPreroll(params.PrerollSec, s.cfg)
	lookup := strings.Join(queryTerms, " ")

	candidateLimit := limit * candidateMultiplier
	if candidateLimit < candidateFloor {
		candidateLimit = candidateFloor
	}
	if candidateLimit > candidateCeiling {
		candidateLimit = candidateCeiling
	}

	rows, err := s.store.SearchCandidates(ctx, lookup, candidateLimit, preroll)
	if err != nil {
		s.countQuery("error")
		if mode == ModeStrict {
			return nil, fmt.Errorf("fetching candidates: %w", err)
		}
		// Lenient reads degrade: the caller gets an empty result set and
		// the failure stays in the logs and metrics.
		s.logger.ErrorContext(ctx, "candidate fetch failed, returning empty results", "error", err)
		return &Response{
			Query:      query,
			QueryTerms: queryTerms,
			Results:    []Result{},
			Total:      0,
			TookMS:     time.Since(started).Milliseconds(),
		}, nil
	}

	scored := make([]Result, 0, len(rows))
	for _, row := range rows {
		result, keep := s.scoreCandidate(row, queryTerms, preroll)
		if !keep {
			continue
		}
		if mode == ModeStrict && !result.FullCoverage {
			continue
		}
		scored = append(scored, result)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return ranker.Less(rankedView(scored[i]), rankedView(scored[j]))
	})
	results := diversify(scored, limit)

	took := time.Since(started)
	s.countQuery("ok")
	if s.metrics != nil {
		s.metrics.SearchLatency.Observe(took.Seconds())
		s.metrics.SearchResultsCount.Observe(float64(len(results)))
	}
	s.logger.DebugContext(ctx, "search completed",
		"query_terms", len(queryTerms),
		"candidates", len(rows),
		"results", len(results),
		"took_ms", took.Milliseconds(),
	)

	return &Response{
		Query:      query,
		QueryTerms: queryTerms,
		Results:    results,
		Total:      len(results),
		TookMS:     took.Milliseconds(),
	}, nil
}

// scoreCandidate reconciles a store candidate with the query: exact term
// agreement first, then fuzzy recovery over the chunk's own tokens for
// the terms the store missed. Candidates matching nothing are dropped.
func (s *Service) scoreCandidate(row store.CandidateRow, queryTerms []string, preroll float64) (Result, bool) {
	exact := make(map[string]struct{}, len(row.MatchedTerms))
	for _, term := range row.MatchedTerms {
		exact[term] = struct{}{}
	}

	var (
		matched    []string
		fuzzyTerms []string
		matchCount int
		hitCount   = row.TermHitCount
		chunkToks  []string
	)
	for _, term := range queryTerms {
		if _, ok := exact[term]; ok {
			matched = append(matched, term)
			matchCount++
			continue
		}
		if chunkToks == nil {
			chunkToks = strings.Fields(row.NormText)
		}
		if _, ok := ranker.BestFuzzyMatch(term, chunkToks); ok {
			matched = append(matched, term)
			fuzzyTerms = append(fuzzyTerms, term)
			matchCount++
			hitCount++
		}
	}
	if matchCount == 0 {
		return Result{}, false
	}

	keyword := ranker.KeywordScore(matchCount, len(queryTerms))
	coverage := ranker.CoverageScore(matchCount, len(queryTerms), hitCount, row.TokenCount)
	final := ranker.CombineRelevance(keyword, row.TextScore, coverage)

	anchor := clampToChunk(row.AnchorSec, row.ChunkStartSec, row.ChunkEndSec)
	recommended := row.RecommendedStartSec
	if math.IsNaN(recommended) || math.IsInf(recommended, 0) {
		recommended = anchor - preroll
	}
	recommended = clampToChunk(recommended, row.ChunkStartSec, row.ChunkEndSec)

	return Result{
		ChunkID:             row.ChunkID,
		VideoID:             row.VideoID,
		StartSec:            row.ChunkStartSec,
		EndSec:              row.ChunkEndSec,
		AnchorSec:           anchor,
		RecommendedStartSec: recommended,
		Snippet:             BuildSnippet(row.FullText, matched),
		MatchedTerms:        matched,
		FuzzyTerms:          fuzzyTerms,
		FullCoverage:        matchCount == len(queryTerms),
		Scores: Scores{
			Keyword:  keyword,
			Text:     ranker.Clamp01(row.TextScore),
			Coverage: coverage,
			Final:    final,
		},
	}, true
}

func (s *Service) countQuery(outcome string) {
	if s.metrics != nil {
		s.metrics.SearchQueriesTotal.WithLabelValues(outcome).Inc()
	}
}

func rankedView(r Result) ranker.Ranked {
	return ranker.Ranked{
		FullCoverage:  r.FullCoverage,
		FinalScore:    r.Scores.Final,
		MatchCount:    len(r.MatchedTerms),
		AnchorSec:     r.AnchorSec,
		ChunkStartSec: r.StartSec,
	}
}

// ClampLimit bounds a caller-supplied limit to the configured range.
// Zero means the configured default.
func ClampLimit(limit int, cfg config.SearchConfig) int {
	if limit == 0 {
		return cfg.DefaultLimit
	}
	if limit < 1 {
		return 1
	}
	if limit > cfg.MaxLimit {
		return cfg.MaxLimit
	}
	return limit
}

// ClampPreroll bounds a caller-supplied preroll to the configured range.
func ClampPreroll(preroll float64, cfg config.SearchConfig) float64 {
	if math.IsNaN(preroll) {
		return cfg.DefaultPreroll
	}
	if preroll < 0 {
		return 0
	}
	if preroll > cfg.MaxPreroll {
		return cfg.MaxPreroll
	}
	return preroll
}

func clampToChunk(v, start, end float64) float64 {
	if v < start {
		return start
	}
	if v > end {
		return end
	}
	return v
}
