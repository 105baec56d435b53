// Package chunker builds overlapping fixed-duration search chunks from
// ordered transcript segments. Each chunk carries its concatenated text,
// per-token timing interpolated across segment durations, and per-term
// aggregate statistics used by the store's candidate ranking.
package chunker

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/kontext/clipsearch/internal/tokenizer"
	"github.com/kontext/clipsearch/internal/transcript"
	errs "github.com/kontext/clipsearch/pkg/errors"
)

const (
	// DefaultWindowSeconds is the chunk window length.
	DefaultWindowSeconds = 15.0
	// DefaultOverlapSeconds is the overlap between adjacent windows.
	DefaultOverlapSeconds = 5.0

	// minSegmentDuration floors the duration used for token timing so
	// zero-length segments cannot collapse every token onto one instant.
	minSegmentDuration = 0.05
)

// TimedToken is one display token of a chunk with interpolated timing.
// TokenNorm may be empty; such tokens render but never become terms.
type TimedToken struct {
	Idx       int     `json:"idx"`
	Token     string  `json:"token"`
	TokenNorm string  `json:"token_norm"`
	StartSec  float64 `json:"start_sec"`
	EndSec    float64 `json:"end_sec"`
}

// Term aggregates the occurrences of one normalized term within a chunk.
type Term struct {
	Term        string
	FirstHitSec float64
	HitCount    int
	Positions   []int
}

// Chunk is one retrievable window of transcript content. Its identity for
// idempotent upsert is (VideoID, SegmentStartSeq, SegmentEndSeq).
type Chunk struct {
	VideoID         string
	ChunkIndex      int
	StartSec        float64
	EndSec          float64
	SegmentStartSeq int
	SegmentEndSeq   int
	FullText        string
	NormText        string
	TokenCount      int
	Tokens          []TimedToken
	Terms           []Term
}

// Chunker slides a fixed window over a video's segments.
type Chunker struct {
	windowSeconds  float64
	overlapSeconds float64
	stopset        map[string]struct{}
	collator       *collate.Collator
}

// New validates the window geometry. A non-positive window or step is a
// configuration error, never a runtime condition. extraStopwords extend
// the default Korean stopword list; stopworded tokens keep their timing
// rows but produce no searchable term.
func New(windowSeconds, overlapSeconds float64, extraStopwords []string) (*Chunker, error) {
	step := windowSeconds - overlapSeconds
	if windowSeconds <= 0 || step <= 0 {
		return nil, fmt.Errorf("%w: window=%v overlap=%v", errs.ErrInvalidChunkConfig, windowSeconds, overlapSeconds)
	}

	stopset := make(map[string]struct{}, len(tokenizer.DefaultKoreanStopwords)+len(extraStopwords))
	for _, word := range tokenizer.DefaultKoreanStopwords {
		if norm := tokenizer.NormalizeToken(word); norm != "" {
			stopset[norm] = struct{}{}
		}
	}
	for _, word := range extraStopwords {
		if norm := tokenizer.NormalizeToken(word); norm != "" {
			stopset[norm] = struct{}{}
		}
	}

	return &Chunker{
		windowSeconds:  windowSeconds,
		overlapSeconds: overlapSeconds,
		stopset:        stopset,
		collator:       collate.New(language.Korean),
	}, nil
}

// Build produces the chunk sequence for one video. Windows that select no
// segments, repeat an already-seen segment range, or normalize to empty
// text are silently skipped; emission order assigns ChunkIndex.
func (c *Chunker) Build(videoID string, segments []transcript.Segment) []Chunk {
	if len(segments) == 0 {
		return nil
	}

	ordered := make([]transcript.Segment, len(segments))
	copy(ordered, segments)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].StartSec != ordered[j].StartSec {
			return ordered[i].StartSec < ordered[j].StartSec
		}
		return ordered[i].Seq < ordered[j].Seq
	})

	step := c.windowSeconds - c.overlapSeconds
	minStart := ordered[0].StartSec
	maxEnd := ordered[len(ordered)-1].EndSec

	chunks := make([]Chunk, 0)
	seen := make(map[[2]int]struct{})

	for windowStart := minStart; windowStart <= maxEnd; windowStart += step {
		windowEnd := windowStart + c.windowSeconds

		inWindow := ordered[:0:0]
		for _, segment := range ordered {
			if segment.EndSec > windowStart && segment.StartSec < windowEnd {
				inWindow = append(inWindow, segment)
			}
		}
		if len(inWindow) == 0 {
			continue
		}

		key := [2]int{inWindow[0].Seq, inWindow[len(inWindow)-1].Seq}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		chunk, ok := c.buildChunk(videoID, inWindow)
		if !ok {
			continue
		}
		chunk.ChunkIndex = len(chunks)
		chunks = append(chunks, chunk)
	}
	return chunks
}

func (c *Chunker) buildChunk(videoID string, inWindow []transcript.Segment) (Chunk, bool) {
	pieces := make([]string, 0, len(inWindow))
	for _, segment := range inWindow {
		if text := strings.TrimSpace(segment.Text); text != "" {
			pieces = append(pieces, text)
		}
	}
	fullText := strings.Join(pieces, " ")
	normText := tokenizer.NormalizeForSearch(fullText)
	if normText == "" {
		return Chunk{}, false
	}

	tokens := buildTimedTokens(inWindow)
	if len(tokens) == 0 {
		return Chunk{}, false
	}

	return Chunk{
		VideoID:         videoID,
		StartSec:        inWindow[0].StartSec,
		EndSec:          inWindow[len(inWindow)-1].EndSec,
		SegmentStartSeq: inWindow[0].Seq,
		SegmentEndSeq:   inWindow[len(inWindow)-1].Seq,
		FullText:        fullText,
		NormText:        normText,
		TokenCount:      len(tokens),
		Tokens:          tokens,
		Terms:           c.aggregateTerms(tokens),
	}, true
}

// buildTimedTokens distributes each segment's duration across its words
// proportionally to word length. The cursor walks forward from the segment
// start; the final word of a segment is snapped to the segment's end so
// fractional drift cannot accumulate across the window. Token indices run
// across the whole chunk.
func buildTimedTokens(segments []transcript.Segment) []TimedToken {
	tokens := make([]TimedToken, 0, 32)
	idx := 0

	for _, segment := range segments {
		words := tokenizer.TokenizeWords(segment.Text)
		if len(words) == 0 {
			continue
		}

		totalWeight := 0
		weights := make([]int, len(words))
		for i, word := range words {
			weight := len([]rune(word))
			if weight < 1 {
				weight = 1
			}
			weights[i] = weight
			totalWeight += weight
		}

		duration := segment.EndSec - segment.StartSec
		if duration < minSegmentDuration {
			duration = minSegmentDuration
		}

		cursor := segment.StartSec
		for i, word := range words {
			span := duration * float64(weights[i]) / float64(totalWeight)
			start := cursor
			end := start + span
			if end > segment.EndSec {
				end = segment.EndSec
			}
			if i == len(words)-1 {
				end = segment.EndSec
			}
			tokens = append(tokens, TimedToken{
				Idx:       idx,
				Token:     word,
				TokenNorm: tokenizer.NormalizeToken(word),
				StartSec:  start,
				EndSec:    end,
			})
			cursor = end
			idx++
		}
	}
	return tokens
}

// aggregateTerms groups chunk tokens by normalized form. Tokens with an
// empty or stopworded normalized form stay in the token list for display
// but contribute no term. Terms are ordered by Korean collation for
// determinism.
func (c *Chunker) aggregateTerms(tokens []TimedToken) []Term {
	byNorm := make(map[string]*Term)
	order := make([]string, 0)

	for _, token := range tokens {
		if token.TokenNorm == "" {
			continue
		}
		if _, stop := c.stopset[token.TokenNorm]; stop {
			continue
		}
		term, ok := byNorm[token.TokenNorm]
		if !ok {
			term = &Term{
				Term:        token.TokenNorm,
				FirstHitSec: token.StartSec,
			}
			byNorm[token.TokenNorm] = term
			order = append(order, token.TokenNorm)
		}
		if token.StartSec < term.FirstHitSec {
			term.FirstHitSec = token.StartSec
		}
		term.HitCount++
		term.Positions = append(term.Positions, token.Idx)
	}

	sort.SliceStable(order, func(i, j int) bool {
		return c.collator.CompareString(order[i], order[j]) < 0
	})

	terms := make([]Term, 0, len(order))
	for _, norm := range order {
		terms = append(terms, *byNorm[norm])
	}
	return terms
}
