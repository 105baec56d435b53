package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/kontext/clipsearch/internal/search"
	"github.com/kontext/clipsearch/internal/store"
	"github.com/kontext/clipsearch/pkg/config"
	errs "github.com/kontext/clipsearch/pkg/errors"
	"github.com/kontext/clipsearch/pkg/logger"
)

// Searcher is the fragment of the search service the handler needs.
// The cached and uncached services both satisfy it.
type Searcher interface {
	Search(ctx context.Context, params search.Params) (*search.Response, error)
}

// StrictSearcher is implemented by services that also support the
// full-coverage-only mode. The cache does not, so strict queries always
// bypass it.
type StrictSearcher interface {
	SearchStrict(ctx context.Context, params search.Params) (*search.Response, error)
}

type Handler struct {
	searcher Searcher
	strict   StrictSearcher
	store    store.Store
	cfg      config.SearchConfig
	logger   *slog.Logger
}

func New(searcher Searcher, strict StrictSearcher, st store.Store, cfg config.SearchConfig) *Handler {
	return &Handler{
		searcher: searcher,
		strict:   strict,
		store:    st,
		cfg:      cfg,
		logger:   slog.Default().With("component", "search-handler"),
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/videos/{id}/segments", h.VideoSegments)
	mux.HandleFunc("GET /api/v1/videos/{id}/nearest-chunk", h.NearestChunk)
	mux.HandleFunc("GET /api/v1/chunks/{id}/context", h.ChunkContext)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}

	limit := h.cfg.DefaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	preroll := h.cfg.DefaultPreroll
	if prerollStr := r.URL.Query().Get("preroll"); prerollStr != "" {
		parsed, err := strconv.ParseFloat(prerollStr, 64)
		if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) || parsed < 0 {
			h.writeError(w, http.StatusBadRequest, "preroll must be a non-negative number")
			return
		}
		preroll = parsed
	}

	params := search.Params{Query: query, Limit: limit, PrerollSec: preroll}

	var (
		result *search.Response
		err    error
	)
	if r.URL.Query().Get("mode") == "strict" {
		result, err = h.strict.SearchStrict(ctx, params)
	} else {
		result, err = h.searcher.Search(ctx, params)
	}
	if err != nil {
		if errors.Is(err, errs.ErrInvalidInput) {
			h.writeError(w, http.StatusBadRequest, "query has no searchable terms")
			return
		}
		log.Error("search failed", "error", err)
		h.writeError(w, errs.HTTPStatusCode(err), "search failed")
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) VideoSegments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	videoID := r.PathValue("id")
	if videoID == "" {
		h.writeError(w, http.StatusBadRequest, "video id is required")
		return
	}

	segments, err := h.store.VideoSegments(ctx, videoID)
	if err != nil {
		logger.FromContext(ctx).Error("segment lookup failed", "video_id", videoID, "error", err)
		h.writeError(w, errs.HTTPStatusCode(err), "segment lookup failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"videoId":  videoID,
		"segments": segments,
		"total":    len(segments),
	})
}

func (h *Handler) NearestChunk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	videoID := r.PathValue("id")
	if videoID == "" {
		h.writeError(w, http.StatusBadRequest, "video id is required")
		return
	}

	atSec, err := strconv.ParseFloat(r.URL.Query().Get("t"), 64)
	if err != nil || math.IsNaN(atSec) || math.IsInf(atSec, 0) || atSec < 0 {
		h.writeError(w, http.StatusBadRequest, "query parameter 't' must be a non-negative number")
		return
	}

	ref, err := h.store.NearestChunk(ctx, videoID, atSec)
	if err != nil {
		if errors.Is(err, errs.ErrVideoNotFound) {
			h.writeError(w, http.StatusNotFound, "no chunks for video")
			return
		}
		logger.FromContext(ctx).Error("nearest chunk lookup failed", "video_id", videoID, "error", err)
		h.writeError(w, errs.HTTPStatusCode(err), "nearest chunk lookup failed")
		return
	}

	h.writeJSON(w, http.StatusOK, ref)
}

func (h *Handler) ChunkContext(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chunkID := r.PathValue("id")
	if chunkID == "" {
		h.writeError(w, http.StatusBadRequest, "chunk id is required")
		return
	}

	chunkCtx, err := h.store.ChunkContext(ctx, chunkID)
	if err != nil {
		if errors.Is(err, errs.ErrChunkNotFound) {
			h.writeError(w, http.StatusNotFound, "chunk not found")
			return
		}
		logger.FromContext(ctx).Error("chunk context lookup failed", "chunk_id", chunkID, "error", err)
		h.writeError(w, errs.HTTPStatusCode(err), "chunk context lookup failed")
		return
	}

	h.writeJSON(w, http.StatusOK, chunkCtx)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
