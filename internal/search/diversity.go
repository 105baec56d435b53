package search

import (
	"math"

	"github.com/kontext/clipsearch/internal/search/ranker"
)

// Diversity thresholds. Two results from the same video are considered
// redundant when their intervals overlap heavily or their starts sit
// within a few seconds of each other.
const (
	diversityIoULimit  = 0.35
	diversityMinGapSec = 14.0
	perVideoCap        = 2
)

// diversify trims an ordered result list so one video cannot dominate.
// The first pass admits at most one result per video. If the limit is
// not yet filled, a second pass admits a second result per video
// provided it neither overlaps the admitted one too much nor starts too
// close to it. Order within the output follows the input ranking.
func diversify(ordered []Result, limit int) []Result {
	if limit <= 0 || len(ordered) == 0 {
		return []Result{}
	}

	picked := make([]Result, 0, limit)
	perVideo := make(map[string][]Result)

	for _, result := range ordered {
		if len(picked) >= limit {
			break
		}
		if len(perVideo[result.VideoID]) > 0 {
			continue
		}
		perVideo[result.VideoID] = append(perVideo[result.VideoID], result)
		picked = append(picked, result)
	}

	if len(picked) < limit {
		for _, result := range ordered {
			if len(picked) >= limit {
				break
			}
			taken := perVideo[result.VideoID]
			if len(taken) == 0 || len(taken) >= perVideoCap {
				continue
			}
			if containsChunk(taken, result.ChunkID) || redundantWithAny(result, taken) {
				continue
			}
			perVideo[result.VideoID] = append(taken, result)
			picked = append(picked, result)
		}
	}

	reorderByRank(picked)
	return picked
}

func redundantWithAny(candidate Result, taken []Result) bool {
	for _, existing := range taken {
		iou := ranker.IntervalIoU(candidate.StartSec, candidate.EndSec, existing.StartSec, existing.EndSec)
		if iou >= diversityIoULimit {
			return true
		}
		if math.Abs(candidate.StartSec-existing.StartSec) < diversityMinGapSec {
			return true
		}
	}
	return false
}

func containsChunk(taken []Result, chunkID string) bool {
	for _, existing := range taken {
		if existing.ChunkID == chunkID {
			return true
		}
	}
	return false
}

// reorderByRank restores ranking order after the two admission passes,
// which may have interleaved second-pass picks behind first-pass ones.
func reorderByRank(results []Result) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && ranker.Less(rankedView(results[j]), rankedView(results[j-1])); j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}
