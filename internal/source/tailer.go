package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"fx-rate-alerts/internal/rates"
)

// Tailer returns the complete lines appended to a file since the last call.
// A trailing partial line is left for the next call.
type Tailer struct {
	path   string
	offset int64
	line   int
	logger zerolog.Logger
}

// NewTailer follows path from its beginning.
func NewTailer(path string, logger zerolog.Logger) *Tailer {
	return &Tailer{
		path:   path,
		logger: logger.With().Str("component", "tailer").Str("path", path).Logger(),
	}
}

// Name identifies the tailer in logs.
func (t *Tailer) Name() string {
	return "file:" + t.path
}

// Fetch reads new observations. Malformed lines are logged and skipped so a
// single bad record does not stall the feed.
func (t *Tailer) Fetch(ctx context.Context) ([]rates.Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(t.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", t.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", t.path, err)
	}
	if info.Size() < t.offset {
		t.logger.Warn().Int64("size", info.Size()).Int64("offset", t.offset).Msg("file truncated; restarting from beginning")
		t.offset = 0
		t.line = 0
	}
	if info.Size() == t.offset {
		return nil, nil
	}

	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek %s: %w", t.path, err)
	}
	data, err := io.ReadAll(io.LimitReader(f, info.Size()-t.offset))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", t.path, err)
	}

	end := bytes.LastIndexByte(data, '\n')
	if end < 0 {
		return nil, nil
	}
	data = data[:end+1]

	var out []rates.Observation
	for _, raw := range bytes.Split(data[:end], []byte("\n")) {
		t.line++
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 {
			continue
		}
		obs, err := decodeLine(raw, t.line)
		if err != nil {
			t.logger.Error().Err(err).Msg("skipping malformed record")
			continue
		}
		out = append(out, obs)
	}

	t.offset += int64(len(data))
	return out, nil
}
