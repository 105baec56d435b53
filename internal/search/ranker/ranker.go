// Package ranker scores and orders chunk candidates for clip search.
package ranker

import (
	"math"

	"github.com/agnivade/levenshtein"
)

// Relevance weights. Keyword agreement dominates, the store's own text
// score refines it, and coverage breaks up near-ties between short and
// long chunks.
const (
	WeightKeyword  = 0.55
	WeightText     = 0.30
	WeightCoverage = 0.15

	coverageQueryWeight = 0.65
	coverageHitWeight   = 0.35
)

// Fuzzy matching bounds. A chunk token only competes when it shares a
// short prefix with the query term, and longer edits must be backed by
// higher overall similarity.
const (
	FuzzyMinTokenLen     = 3
	FuzzyMinQueryTermLen = 4
	FuzzyMinCommonPrefix = 2
	FuzzyMaxDistance     = 2
	FuzzyMinSimilarity   = 0.72
	FuzzyStrictThreshold = 0.86
)

// Clamp01 pins v into [0, 1]. NaN collapses to 0.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Ratio is num/den clamped to [0, 1], with 0 for a non-positive denominator.
func Ratio(num, den float64) float64 {
	if den <= 0 {
		return 0
	}
	return Clamp01(num / den)
}

// CoverageScore blends how much of the query the chunk satisfies with
// how densely the chunk's own tokens hit query terms.
func CoverageScore(matchedTerms, queryTerms, termHits, tokenCount int) float64 {
	queryCoverage := Ratio(float64(matchedTerms), float64(queryTerms))
	hitDensity := Ratio(float64(termHits), float64(tokenCount))
	return Clamp01(coverageQueryWeight*queryCoverage + coverageHitWeight*hitDensity)
}

// KeywordScore is the fraction of query terms the chunk matched.
func KeywordScore(matchedTerms, queryTerms int) float64 {
	return Ratio(float64(matchedTerms), float64(queryTerms))
}

// CombineRelevance folds the component scores into the final ranking
// score. Every input is clamped so a misbehaving store score cannot
// push the result out of [0, 1].
func CombineRelevance(keywordScore, textScore, coverageScore float64) float64 {
	return Clamp01(
		WeightKeyword*Clamp01(keywordScore) +
			WeightText*Clamp01(textScore) +
			WeightCoverage*Clamp01(coverageScore),
	)
}

// FuzzyCandidate carries the best fuzzy agreement found between one
// query term and a chunk's tokens.
type FuzzyCandidate struct {
	Token      string
	Distance   int
	Similarity float64
}

// FuzzyMatch reports whether token is an acceptable fuzzy stand-in for
// the query term, along with the edit distance and similarity used.
func FuzzyMatch(queryTerm, token string) (FuzzyCandidate, bool) {
	none := FuzzyCandidate{}
	queryRunes := []rune(queryTerm)
	tokenRunes := []rune(token)
	if len(queryRunes) < FuzzyMinQueryTermLen || len(tokenRunes) < FuzzyMinTokenLen {
		return none, false
	}
	if commonPrefixLen(queryRunes, tokenRunes) < FuzzyMinCommonPrefix {
		return none, false
	}

	distance := levenshtein.ComputeDistance(queryTerm, token)
	if distance == 0 {
		return FuzzyCandidate{Token: token, Distance: 0, Similarity: 1}, true
	}
	if distance > FuzzyMaxDistance {
		return none, false
	}

	longest := len(queryRunes)
	if len(tokenRunes) > longest {
		longest = len(tokenRunes)
	}
	similarity := 1 - float64(distance)/float64(longest)
	switch {
	case distance == 1 && similarity >= FuzzyMinSimilarity:
		return FuzzyCandidate{Token: token, Distance: distance, Similarity: similarity}, true
	case distance == 2 && similarity >= FuzzyStrictThreshold:
		return FuzzyCandidate{Token: token, Distance: distance, Similarity: similarity}, true
	default:
		return none, false
	}
}

// BestFuzzyMatch scans tokens for the best fuzzy stand-in for the query
// term. Higher similarity wins; at equal similarity the smaller edit
// distance wins.
func BestFuzzyMatch(queryTerm string, tokens []string) (FuzzyCandidate, bool) {
	var best FuzzyCandidate
	found := false
	for _, token := range tokens {
		candidate, ok := FuzzyMatch(queryTerm, token)
		if !ok {
			continue
		}
		if !found ||
			candidate.Similarity > best.Similarity ||
			(candidate.Similarity == best.Similarity && candidate.Distance < best.Distance) {
			best = candidate
			found = true
		}
	}
	return best, found
}

// IntervalIoU is the intersection-over-union of two time intervals.
// Degenerate or disjoint intervals yield 0.
func IntervalIoU(aStart, aEnd, bStart, bEnd float64) float64 {
	if aEnd <= aStart || bEnd <= bStart {
		return 0
	}
	interStart := math.Max(aStart, bStart)
	interEnd := math.Min(aEnd, bEnd)
	if interEnd <= interStart {
		return 0
	}
	inter := interEnd - interStart
	union := (aEnd - aStart) + (bEnd - bStart) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Ranked is the ordering view of a scored candidate.
type Ranked struct {
	FullCoverage  bool
	FinalScore    float64
	MatchCount    int
	AnchorSec     float64
	ChunkStartSec float64
}

// Less orders candidates best-first: full query coverage beats partial,
// then higher final score, more matched terms, the earlier anchor, and
// finally the earlier chunk start.
func Less(a, b Ranked) bool {
	if a.FullCoverage != b.FullCoverage {
		return a.FullCoverage
	}
	if a.FinalScore != b.FinalScore {
		return a.FinalScore > b.FinalScore
	}
	if a.MatchCount != b.MatchCount {
		return a.MatchCount > b.MatchCount
	}
	if a.AnchorSec != b.AnchorSec {
		return a.AnchorSec < b.AnchorSec
	}
	return a.ChunkStartSec < b.ChunkStartSec
}

func commonPrefixLen(a, b []rune) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}
