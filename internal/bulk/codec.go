package bulk

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// Bulk actions. Aliases take index ops; data streams require create.
const (
	ActionIndex  = "index"
	ActionCreate = "create"
)

// Document is the synthetic record body. Field names follow the mapping
// the provisioner installs.
type Document struct {
	Timestamp string `json:"@timestamp"`
	Service   string `json:"service.name"`
	Level     string `json:"log.level"`
	RunID     string `json:"run.id,omitempty"`
	Message   string `json:"message"`
}

// EncodeBulk renders n copies of doc in the bulk wire format: one control
// line plus one data line per document, newline-terminated. The output is
// deterministic for identical inputs.
func EncodeBulk(action string, doc Document, n int) ([]byte, error) {
	if n < 1 {
		return nil, fmt.Errorf("bulk encode: count must be positive, got %d", n)
	}

	docLine, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("bulk encode: %w", err)
	}
	ctl := []byte(`{"` + action + `":{}}` + "\n")

	var buf bytes.Buffer
	buf.Grow(n * (len(ctl) + len(docLine) + 1))
	for i := 0; i < n; i++ {
		buf.Write(ctl)
		buf.Write(docLine)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// Codec is a lossless transform applied to encoded batches before they go
// on the wire.
type Codec interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// GzipCodec compresses batches with gzip, the one content encoding the
// backend's bulk endpoint accepts.
type GzipCodec struct {
	level int
}

// NewGzipCodec returns a codec at the default compression level.
func NewGzipCodec() *GzipCodec {
	return &GzipCodec{level: gzip.DefaultCompression}
}

// Compress gzips data. Pure transform; the input is not modified.
func (c *GzipCodec) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, c.level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress.
func (c *GzipCodec) Decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
