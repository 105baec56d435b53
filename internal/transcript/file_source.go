package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	errs "github.com/kontext/clipsearch/pkg/errors"
)

// FileSource reads transcript rows from <dir>/<videoID>.json. It backs the
// ingest CLI for pre-downloaded transcripts and the tests; production
// providers implement Source over their own transport.
type FileSource struct {
	dir string
}

// NewFileSource creates a FileSource rooted at dir.
func NewFileSource(dir string) *FileSource {
	return &FileSource{dir: dir}
}

// Fetch loads the JSON row array for videoID. A missing file is reported as
// transcript-unavailable; a malformed file is a plain error.
func (s *FileSource) Fetch(ctx context.Context, videoID string) ([]RawSegment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Join(s.dir, videoID+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: no transcript file for video %s", errs.ErrTranscriptUnavailable, videoID)
		}
		return nil, fmt.Errorf("reading transcript file %s: %w", path, err)
	}
	var rows []RawSegment
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parsing transcript file %s: %w", path, err)
	}
	return rows, nil
}
