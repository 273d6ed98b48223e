package engine

import "fx-rate-alerts/internal/rates"

// history is the shared per-pair buffer. Live entries are buf[head:]; the
// backing array holds twice the cap so that windows stay contiguous and the
// live region is compacted only when the array fills up.
type history struct {
	buf  []rates.Observation
	head int
}

func newHistory(maxWindow int) *history {
	// one extra slot: an observation is appended before the oldest is evicted
	return &history{buf: make([]rates.Observation, 0, 2*(maxWindow+1))}
}

func (h *history) Len() int {
	return len(h.buf) - h.head
}

func (h *history) push(o rates.Observation) {
	if len(h.buf) == cap(h.buf) {
		n := copy(h.buf, h.buf[h.head:])
		clear(h.buf[n:])
		h.buf = h.buf[:n]
		h.head = 0
	}
	h.buf = append(h.buf, o)
}

// window returns n entries starting at offset. The result has no spare
// capacity, so an alerter appending to it cannot clobber the buffer.
func (h *history) window(offset, n int) []rates.Observation {
	start := h.head + offset
	return h.buf[start : start+n : start+n]
}

func (h *history) evictOldest() {
	h.buf[h.head] = rates.Observation{}
	h.head++
}
