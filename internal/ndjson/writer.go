package ndjson

import (
	"encoding/json"
	"io"
	"sync"
)

// Writer writes one JSON object per line to an underlying stream.
// Writes are serialized by an internal lock: each object plus its trailing
// newline is emitted as a single Write call, so concurrent callers never
// interleave partial objects.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter creates a Writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteJSON marshals v and writes it as a single newline-terminated line.
func (w *Writer) WriteJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return w.WriteLine(data)
}

// WriteLine writes a pre-serialized line, appending the newline.
func (w *Writer) WriteLine(line []byte) error {
	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := w.w.Write(buf)
	return err
}
