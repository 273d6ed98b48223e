package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"fx-rate-alerts/internal/rates"
)

// JSONWriter writes one compact JSON alert per line.
type JSONWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONWriter wraps w.
func NewJSONWriter(w io.Writer) *JSONWriter {
	return &JSONWriter{enc: json.NewEncoder(w)}
}

// Notify implements Notifier.
func (j *JSONWriter) Notify(_ context.Context, alert rates.Alert) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.enc.Encode(alert); err != nil {
		return fmt.Errorf("write alert: %w", err)
	}
	return nil
}

var _ Notifier = (*JSONWriter)(nil)
