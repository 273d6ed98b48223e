// Package source reads observations from JSON-lines streams and files.
package source

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"fx-rate-alerts/internal/rates"
)

const maxLineBytes = 1 << 20

// Decoder reads one observation per line, skipping blank lines.
type Decoder struct {
	scanner *bufio.Scanner
	line    int
}

// NewDecoder wraps r.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &Decoder{scanner: scanner}
}

// Next returns the next observation, or io.EOF once the stream is exhausted.
func (d *Decoder) Next() (rates.Observation, error) {
	for d.scanner.Scan() {
		d.line++
		line := bytes.TrimSpace(d.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		return decodeLine(line, d.line)
	}
	if err := d.scanner.Err(); err != nil {
		return rates.Observation{}, fmt.Errorf("read line %d: %w", d.line+1, err)
	}
	return rates.Observation{}, io.EOF
}

// Line is the number of the last line read.
func (d *Decoder) Line() int {
	return d.line
}

// Each calls fn for every observation until EOF or the first error.
func (d *Decoder) Each(fn func(rates.Observation) error) error {
	for {
		obs, err := d.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(obs); err != nil {
			return err
		}
	}
}

// ReadAll decodes the whole stream.
func ReadAll(r io.Reader) ([]rates.Observation, error) {
	var out []rates.Observation
	err := NewDecoder(r).Each(func(o rates.Observation) error {
		out = append(out, o)
		return nil
	})
	return out, err
}

// Open returns a reader for path, treating "-" as stdin.
func Open(path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	return f, nil
}

func decodeLine(line []byte, n int) (rates.Observation, error) {
	var obs rates.Observation
	if err := json.Unmarshal(line, &obs); err != nil {
		return rates.Observation{}, fmt.Errorf("decode line %d: %w", n, err)
	}
	return obs, nil
}
