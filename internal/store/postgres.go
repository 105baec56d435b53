package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/lib/pq"

	"github.com/kontext/clipsearch/internal/chunker"
	"github.com/kontext/clipsearch/internal/tokenizer"
	"github.com/kontext/clipsearch/internal/transcript"
	errs "github.com/kontext/clipsearch/pkg/errors"
	"github.com/kontext/clipsearch/pkg/postgres"
)

// DefaultBatchSize bounds the rows per upsert statement.
const DefaultBatchSize = 200

// PG implements Store over PostgreSQL. The schema (videos, segments,
// chunks, chunk_terms, chunk_tokens, and the search_chunks_v1 /
// get_chunk_context_v1 functions) is treated as given.
type PG struct {
	client    *postgres.Client
	batchSize int
}

// NewPG creates a Postgres-backed store. batchSize <= 0 selects
// DefaultBatchSize.
func NewPG(client *postgres.Client, batchSize int) *PG {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &PG{client: client, batchSize: batchSize}
}

// UpsertSegments writes segment rows keyed by (video_id, seq), creating
// video rows first so the foreign keys hold.
func (s *PG) UpsertSegments(ctx context.Context, segments []transcript.Segment) error {
	if len(segments) == 0 {
		return nil
	}
	if err := s.upsertVideos(ctx, videoIDsOfSegments(segments)); err != nil {
		return err
	}

	for start := 0; start < len(segments); start += s.batchSize {
		batch := segments[start:min(start+s.batchSize, len(segments))]

		placeholders := make([]string, 0, len(batch))
		args := make([]any, 0, len(batch)*7)
		for i, segment := range batch {
			normText := tokenizer.NormalizeForSearch(segment.Text)
			tokenCount := len(strings.Fields(normText))
			base := i * 7
			placeholders = append(placeholders, fmt.Sprintf(
				"($%d,$%d,$%d,$%d,$%d,$%d,$%d)",
				base+1, base+2, base+3, base+4, base+5, base+6, base+7,
			))
			args = append(args,
				segment.VideoID, segment.Seq, segment.StartSec, segment.EndSec,
				segment.Text, normText, tokenCount,
			)
		}

		query := fmt.Sprintf(`
			INSERT INTO segments (video_id, seq, start_sec, end_sec, text, norm_text, token_count)
			VALUES %s
			ON CONFLICT (video_id, seq) DO UPDATE SET
				start_sec = EXCLUDED.start_sec,
				end_sec = EXCLUDED.end_sec,
				text = EXCLUDED.text,
				norm_text = EXCLUDED.norm_text,
				token_count = EXCLUDED.token_count`,
			strings.Join(placeholders, ","),
		)
		if _, err := s.client.DB.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upserting segments: %w", err)
		}
	}
	return nil
}

// UpsertChunks writes chunk rows keyed by (video_id, segment_start_seq,
// segment_end_seq) and fully replaces each chunk's term and token rows.
// The delete-then-insert runs inside one transaction per batch so a
// re-ingested chunk never serves a mix of old and new rows.
func (s *PG) UpsertChunks(ctx context.Context, chunks []chunker.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := s.upsertVideos(ctx, videoIDsOfChunks(chunks)); err != nil {
		return err
	}

	for start := 0; start < len(chunks); start += s.batchSize {
		batch := chunks[start:min(start+s.batchSize, len(chunks))]
		idByIdentity, err := s.upsertChunkRows(ctx, batch)
		if err != nil {
			return err
		}

		chunkIDs := make([]string, 0, len(batch))
		type termRow struct {
			chunkID string
			term    chunker.Term
		}
		type tokenRow struct {
			chunkID string
			token   chunker.TimedToken
		}
		termRows := make([]termRow, 0)
		tokenRows := make([]tokenRow, 0)

		for _, chunk := range batch {
			key := chunkIdentityKey(chunk.VideoID, chunk.SegmentStartSeq, chunk.SegmentEndSeq)
			chunkID, ok := idByIdentity[key]
			if !ok {
				return fmt.Errorf("resolving upserted chunk id for %s: %w", key, errs.ErrInternal)
			}
			chunkIDs = append(chunkIDs, chunkID)
			for _, term := range chunk.Terms {
				termRows = append(termRows, termRow{chunkID: chunkID, term: term})
			}
			for _, token := range chunk.Tokens {
				tokenRows = append(tokenRows, tokenRow{chunkID: chunkID, token: token})
			}
		}

		err = s.client.InTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, `DELETE FROM chunk_terms WHERE chunk_id = ANY($1)`, pq.Array(chunkIDs)); err != nil {
				return fmt.Errorf("clearing chunk_terms: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM chunk_tokens WHERE chunk_id = ANY($1)`, pq.Array(chunkIDs)); err != nil {
				return fmt.Errorf("clearing chunk_tokens: %w", err)
			}

			for rowStart := 0; rowStart < len(termRows); rowStart += s.batchSize {
				rows := termRows[rowStart:min(rowStart+s.batchSize, len(termRows))]
				placeholders := make([]string, 0, len(rows))
				args := make([]any, 0, len(rows)*5)
				for i, row := range rows {
					base := i * 5
					placeholders = append(placeholders, fmt.Sprintf(
						"($%d,$%d,$%d,$%d,$%d)", base+1, base+2, base+3, base+4, base+5,
					))
					args = append(args,
						row.chunkID, row.term.Term, row.term.FirstHitSec,
						row.term.HitCount, pq.Array(intsToInt64(row.term.Positions)),
					)
				}
				query := fmt.Sprintf(
					`INSERT INTO chunk_terms (chunk_id, term, first_hit_sec, hit_count, positions) VALUES %s`,
					strings.Join(placeholders, ","),
				)
				if _, err := tx.ExecContext(ctx, query, args...); err != nil {
					return fmt.Errorf("inserting chunk_terms: %w", err)
				}
			}

			for rowStart := 0; rowStart < len(tokenRows); rowStart += s.batchSize {
				rows := tokenRows[rowStart:min(rowStart+s.batchSize, len(tokenRows))]
				placeholders := make([]string, 0, len(rows))
				args := make([]any, 0, len(rows)*6)
				for i, row := range rows {
					base := i * 6
					placeholders = append(placeholders, fmt.Sprintf(
						"($%d,$%d,$%d,$%d,$%d,$%d)", base+1, base+2, base+3, base+4, base+5, base+6,
					))
					args = append(args,
						row.chunkID, row.token.Idx, row.token.Token,
						row.token.TokenNorm, row.token.StartSec, row.token.EndSec,
					)
				}
				query := fmt.Sprintf(
					`INSERT INTO chunk_tokens (chunk_id, idx, token, token_norm, start_sec, end_sec) VALUES %s`,
					strings.Join(placeholders, ","),
				)
				if _, err := tx.ExecContext(ctx, query, args...); err != nil {
					return fmt.Errorf("inserting chunk_tokens: %w", err)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *PG) upsertChunkRows(ctx context.Context, batch []chunker.Chunk) (map[string]string, error) {
	placeholders := make([]string, 0, len(batch))
	args := make([]any, 0, len(batch)*9)
	for i, chunk := range batch {
		base := i * 9
		placeholders = append(placeholders, fmt.Sprintf(
			"($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9,
		))
		args = append(args,
			chunk.VideoID, chunk.ChunkIndex, chunk.SegmentStartSeq, chunk.SegmentEndSeq,
			chunk.StartSec, chunk.EndSec, chunk.FullText, chunk.NormText, chunk.TokenCount,
		)
	}

	query := fmt.Sprintf(`
		INSERT INTO chunks (video_id, chunk_index, segment_start_seq, segment_end_seq,
			chunk_start_sec, chunk_end_sec, full_text, norm_text, token_count)
		VALUES %s
		ON CONFLICT (video_id, segment_start_seq, segment_end_seq) DO UPDATE SET
			chunk_index = EXCLUDED.chunk_index,
			chunk_start_sec = EXCLUDED.chunk_start_sec,
			chunk_end_sec = EXCLUDED.chunk_end_sec,
			full_text = EXCLUDED.full_text,
			norm_text = EXCLUDED.norm_text,
			token_count = EXCLUDED.token_count
		RETURNING id, video_id, segment_start_seq, segment_end_seq`,
		strings.Join(placeholders, ","),
	)

	rows, err := s.client.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("upserting chunks: %w", err)
	}
	defer rows.Close()

	idByIdentity := make(map[string]string, len(batch))
	for rows.Next() {
		var id, videoID string
		var startSeq, endSeq int
		if err := rows.Scan(&id, &videoID, &startSeq, &endSeq); err != nil {
			return nil, fmt.Errorf("scanning upserted chunk row: %w", err)
		}
		idByIdentity[chunkIdentityKey(videoID, startSeq, endSeq)] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating upserted chunk rows: %w", err)
	}
	return idByIdentity, nil
}

func (s *PG) upsertVideos(ctx context.Context, videoIDs []string) error {
	if len(videoIDs) == 0 {
		return nil
	}
	placeholders := make([]string, 0, len(videoIDs))
	args := make([]any, 0, len(videoIDs))
	for i, id := range videoIDs {
		placeholders = append(placeholders, fmt.Sprintf("($%d,$%d)", i*2+1, i*2+2))
		args = append(args, id, id)
	}
	query := fmt.Sprintf(
		`INSERT INTO videos (id, title) VALUES %s ON CONFLICT (id) DO NOTHING`,
		strings.Join(placeholders, ","),
	)
	if _, err := s.client.DB.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upserting videos: %w", err)
	}
	return nil
}

// SearchCandidates asks the store's ranked retrieval function for up to
// limit chunk candidates for the normalized lookup string.
func (s *PG) SearchCandidates(ctx context.Context, lookup string, limit int, preroll float64) ([]CandidateRow, error) {
	rows, err := s.client.DB.QueryContext(ctx, `
		SELECT chunk_id, video_id, chunk_start_sec, chunk_end_sec,
			anchor_sec, recommended_start_sec, full_text, norm_text, token_count,
			matched_terms, term_match_count, term_hit_count,
			keyword_score, text_score, candidate_score
		FROM search_chunks_v1($1, $2, $3)`,
		lookup, limit, preroll,
	)
	if err != nil {
		return nil, fmt.Errorf("querying search candidates: %w", err)
	}
	defer rows.Close()

	candidates := make([]CandidateRow, 0, limit)
	for rows.Next() {
		var (
			row         CandidateRow
			recommended sql.NullFloat64
		)
		if err := rows.Scan(
			&row.ChunkID, &row.VideoID, &row.ChunkStartSec, &row.ChunkEndSec,
			&row.AnchorSec, &recommended, &row.FullText, &row.NormText, &row.TokenCount,
			pq.Array(&row.MatchedTerms), &row.TermMatchCount, &row.TermHitCount,
			&row.KeywordScore, &row.TextScore, &row.CandidateScore,
		); err != nil {
			return nil, fmt.Errorf("scanning candidate row: %w", err)
		}
		if recommended.Valid {
			row.RecommendedStartSec = recommended.Float64
		} else {
			row.RecommendedStartSec = math.NaN()
		}
		candidates = append(candidates, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating candidate rows: %w", err)
	}
	return candidates, nil
}

// ChunkContext loads the full token timeline of one chunk.
func (s *PG) ChunkContext(ctx context.Context, chunkID string) (*ChunkContext, error) {
	var (
		result    ChunkContext
		rawTokens []byte
	)
	err := s.client.DB.QueryRowContext(ctx, `
		SELECT chunk_id, video_id, chunk_start_sec, chunk_end_sec, token_count, tokens
		FROM get_chunk_context_v1($1)`,
		chunkID,
	).Scan(
		&result.ChunkID, &result.VideoID, &result.ChunkStartSec,
		&result.ChunkEndSec, &result.TokenCount, &rawTokens,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: chunk %s", errs.ErrChunkNotFound, chunkID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading chunk context: %w", err)
	}
	result.Tokens = decodeTimedTokens(rawTokens)
	return &result, nil
}

// VideoSegments returns the persisted segments of a video ordered by seq.
func (s *PG) VideoSegments(ctx context.Context, videoID string) ([]VideoSegment, error) {
	rows, err := s.client.DB.QueryContext(ctx, `
		SELECT seq, start_sec, end_sec, text, norm_text
		FROM segments
		WHERE video_id = $1
		ORDER BY seq ASC`,
		videoID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying video segments: %w", err)
	}
	defer rows.Close()

	segments := make([]VideoSegment, 0)
	for rows.Next() {
		var segment VideoSegment
		if err := rows.Scan(&segment.Seq, &segment.StartSec, &segment.EndSec, &segment.Text, &segment.NormText); err != nil {
			return nil, fmt.Errorf("scanning segment row: %w", err)
		}
		segments = append(segments, segment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating segment rows: %w", err)
	}
	return segments, nil
}

// NearestChunk returns the chunk containing atSec when one exists, else
// the chunk whose boundary lies closest to it.
func (s *PG) NearestChunk(ctx context.Context, videoID string, atSec float64) (*ChunkRef, error) {
	var ref ChunkRef
	err := s.client.DB.QueryRowContext(ctx, `
		SELECT id, video_id, chunk_index, chunk_start_sec, chunk_end_sec
		FROM chunks
		WHERE video_id = $1
		ORDER BY
			($2 >= chunk_start_sec AND $2 <= chunk_end_sec) DESC,
			LEAST(ABS(chunk_start_sec - $2), ABS(chunk_end_sec - $2)) ASC,
			chunk_start_sec ASC
		LIMIT 1`,
		videoID, atSec,
	).Scan(&ref.ChunkID, &ref.VideoID, &ref.ChunkIndex, &ref.StartSec, &ref.EndSec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no chunks for video %s", errs.ErrVideoNotFound, videoID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying nearest chunk: %w", err)
	}
	return &ref, nil
}

func chunkIdentityKey(videoID string, startSeq, endSeq int) string {
	return fmt.Sprintf("%s:%d:%d", videoID, startSeq, endSeq)
}

func videoIDsOfSegments(segments []transcript.Segment) []string {
	seen := make(map[string]struct{})
	ids := make([]string, 0, 1)
	for _, segment := range segments {
		if _, dup := seen[segment.VideoID]; dup {
			continue
		}
		seen[segment.VideoID] = struct{}{}
		ids = append(ids, segment.VideoID)
	}
	return ids
}

func videoIDsOfChunks(chunks []chunker.Chunk) []string {
	seen := make(map[string]struct{})
	ids := make([]string, 0, 1)
	for _, chunk := range chunks {
		if _, dup := seen[chunk.VideoID]; dup {
			continue
		}
		seen[chunk.VideoID] = struct{}{}
		ids = append(ids, chunk.VideoID)
	}
	return ids
}

func intsToInt64(values []int) []int64 {
	out := make([]int64, len(values))
	for i, v := range values {
		out[i] = int64(v)
	}
	return out
}
