package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"fx-rate-alerts/internal/rates"
	"fx-rate-alerts/internal/version"
)

// HTTPFeedOptions parameterise an HTTP observation feed.
type HTTPFeedOptions struct {
	Name      string
	URL       string
	Timeout   time.Duration
	UserAgent string
}

// HTTPFeed GETs a JSON document holding one observation or an array of them.
type HTTPFeed struct {
	opts   HTTPFeedOptions
	logger zerolog.Logger
	client *http.Client
}

// NewHTTPFeed constructs an HTTP feed fetcher.
func NewHTTPFeed(opts HTTPFeedOptions, logger zerolog.Logger) *HTTPFeed {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if opts.Name == "" {
		opts.Name = opts.URL
	}

	return &HTTPFeed{
		opts:   opts,
		logger: logger.With().Str("component", "http_fetcher").Str("feed", opts.Name).Logger(),
		client: &http.Client{Timeout: timeout},
	}
}

// Name implements RateFetcher.
func (h *HTTPFeed) Name() string {
	return "http:" + h.opts.Name
}

// Fetch retrieves the current document and decodes its observations.
func (h *HTTPFeed) Fetch(ctx context.Context) ([]rates.Observation, error) {
	if strings.TrimSpace(h.opts.URL) == "" {
		return nil, errors.New("feed url not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.opts.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(h.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "fxalerts/"+version.Version)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(resp.StatusCode, payload)
	}

	obs, err := decodeObservations(payload)
	if err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}
	h.logger.Debug().Int("observations", len(obs)).Msg("feed polled")
	return obs, nil
}

func decodeObservations(payload []byte) ([]rates.Observation, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var many []rates.Observation
		if err := json.Unmarshal(trimmed, &many); err != nil {
			return nil, err
		}
		return many, nil
	}
	var one rates.Observation
	if err := json.Unmarshal(trimmed, &one); err != nil {
		return nil, err
	}
	return []rates.Observation{one}, nil
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Message != "" {
			return fmt.Errorf("feed error (%d): %s", status, apiErr.Message)
		}
		if apiErr.Error != "" {
			return fmt.Errorf("feed error (%d): %s", status, apiErr.Error)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("feed error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("feed error (%d)", status)
}

var _ RateFetcher = (*HTTPFeed)(nil)
