// Package json encodes query results with goccy/go-json and pooled buffers.
package json

import (
	"bytes"
	"io"
	"sync"

	gojson "github.com/goccy/go-json"
	"github.com/samber/lo"

	"github.com/ajitpratap0/sqlpool/pkg/errors"
	"github.com/ajitpratap0/sqlpool/pkg/sqlite"
)

// Format selects how rows are written.
type Format string

const (
	// FormatArray writes a single JSON array of row objects.
	FormatArray Format = "json"
	// FormatLines writes one row object per line.
	FormatLines Format = "jsonl"
)

// ParseFormat validates a format name.
func ParseFormat(name string) (Format, error) {
	switch Format(name) {
	case FormatArray, FormatLines:
		return Format(name), nil
	default:
		return "", errors.New(errors.ErrorTypeValidation, "unknown output format").
			WithDetail("format", name)
	}
}

var bufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 4096))
	},
}

// GetBuffer gets a pooled bytes.Buffer
func GetBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer returns a buffer to the pool
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() > 1024*1024 { // Don't pool very large buffers
		return
	}
	bufferPool.Put(buf)
}

// Marshal is a drop-in replacement for encoding/json.Marshal
func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

// MarshalIndent is a drop-in replacement for encoding/json.MarshalIndent
func MarshalIndent(v interface{}, prefix, indent string) ([]byte, error) {
	return gojson.MarshalIndent(v, prefix, indent)
}

// Records converts rows into column-keyed objects.
func Records(rows *sqlite.Rows) []map[string]any {
	return lo.Map(rows.Values, func(row []any, _ int) map[string]any {
		return lo.Associate(lo.Range(len(rows.Columns)), func(i int) (string, any) {
			return rows.Columns[i], row[i]
		})
	})
}

// WriteRows encodes rows to w in format.
func WriteRows(w io.Writer, rows *sqlite.Rows, format Format, pretty bool) error {
	enc := NewStreamingEncoder(w, format == FormatArray)
	if pretty {
		enc.SetPretty("  ")
	}
	for _, record := range Records(rows) {
		if err := enc.Encode(record); err != nil {
			return err
		}
	}
	return enc.Close()
}

// StreamingEncoder writes values one at a time, either as the elements of
// a JSON array or as line-delimited JSON.
type StreamingEncoder struct {
	writer io.Writer
	buf    *bytes.Buffer
	first  bool
	array  bool
	indent string
}

// NewStreamingEncoder creates a streaming encoder. Nothing is written until
// the first Encode or Close.
func NewStreamingEncoder(w io.Writer, array bool) *StreamingEncoder {
	return &StreamingEncoder{
		writer: w,
		buf:    GetBuffer(),
		first:  true,
		array:  array,
	}
}

// SetPretty indents each value.
func (se *StreamingEncoder) SetPretty(indent string) {
	se.indent = indent
}

// Encode writes a single value.
func (se *StreamingEncoder) Encode(v interface{}) error {
	se.buf.Reset()
	if se.array {
		if se.first {
			se.buf.WriteByte('[')
		} else {
			se.buf.WriteByte(',')
		}
		if se.indent != "" {
			se.buf.WriteByte('\n')
		}
	}
	se.first = false

	enc := gojson.NewEncoder(se.buf)
	enc.SetEscapeHTML(false)
	if se.indent != "" {
		enc.SetIndent("", se.indent)
	}
	if err := enc.Encode(v); err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "failed to encode value")
	}
	// Encode appends a newline; arrays place their own separators.
	if se.array {
		se.buf.Truncate(se.buf.Len() - 1)
	}

	_, err := se.writer.Write(se.buf.Bytes())
	return err
}

// Close finishes the output and releases the encoder's buffer.
func (se *StreamingEncoder) Close() error {
	defer func() {
		if se.buf != nil {
			PutBuffer(se.buf)
			se.buf = nil
		}
	}()
	if !se.array {
		return nil
	}
	tail := "]\n"
	switch {
	case se.first:
		tail = "[]\n"
	case se.indent != "":
		tail = "\n]\n"
	}
	_, err := io.WriteString(se.writer, tail)
	return err
}
