// Package strings provides pooled string building for sqlpool: a reusable
// byte builder, a pooled Sprintf used by error formatting, and builders for
// SQLite URI filenames and PRAGMA statements.
package strings

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"unsafe"
)

// BytesToString converts byte slice to string without allocation
// WARNING: The returned string shares memory with the byte slice.
// Do not modify the byte slice after calling this function.
func BytesToString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(unsafe.SliceData(b), len(b))
}

// Builder provides efficient string building on a reusable byte buffer
type Builder struct {
	buf []byte
}

// NewBuilder creates a new string builder
func NewBuilder(capacity int) *Builder {
	return &Builder{
		buf: make([]byte, 0, capacity),
	}
}

// WriteString appends a string to the builder
func (b *Builder) WriteString(s string) {
	b.buf = append(b.buf, s...)
}

// WriteByte appends a single byte
func (b *Builder) WriteByte(c byte) {
	b.buf = append(b.buf, c)
}

// Write implements io.Writer
func (b *Builder) Write(p []byte) (n int, err error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// String returns a view of the accumulated bytes. The result is only valid
// until the builder is reset; use Clone to keep it.
func (b *Builder) String() string {
	return BytesToString(b.buf)
}

// Len returns the current length
func (b *Builder) Len() int {
	return len(b.buf)
}

// Reset clears the builder for reuse
func (b *Builder) Reset() {
	b.buf = b.buf[:0]
}

// Clone creates a copy of a string (useful when you need to own the memory)
func Clone(s string) string {
	return strings.Clone(s)
}

// BuilderSize represents different builder sizes
type BuilderSize int

const (
	Small  BuilderSize = iota // < 1KB
	Medium                    // 1KB+
)

var (
	smallBuilderPool = &sync.Pool{
		New: func() interface{} {
			return NewBuilder(1024)
		},
	}

	mediumBuilderPool = &sync.Pool{
		New: func() interface{} {
			return NewBuilder(16 * 1024)
		},
	}
)

func poolFor(size BuilderSize) *sync.Pool {
	if size == Medium {
		return mediumBuilderPool
	}
	return smallBuilderPool
}

// GetBuilder retrieves a pooled builder of the specified size
func GetBuilder(size BuilderSize) *Builder {
	builder := poolFor(size).Get().(*Builder)
	builder.Reset()
	return builder
}

// PutBuilder returns a builder to the appropriate pool
func PutBuilder(builder *Builder, size BuilderSize) {
	if builder == nil {
		return
	}
	builder.Reset()
	poolFor(size).Put(builder)
}

// Sprintf provides a pooled alternative to fmt.Sprintf
func Sprintf(format string, args ...interface{}) string {
	if len(args) == 0 {
		return format
	}

	size := Small
	if len(format)+len(args)*16 > 1024 {
		size = Medium
	}

	builder := GetBuilder(size)
	defer PutBuilder(builder, size)

	fmt.Fprintf(builder, format, args...)

	return Clone(builder.String())
}

// URIBuilder assembles SQLite URI filenames of the form
// file:path?key=value&key=value.
type URIBuilder struct {
	builder   *Builder
	hasParams bool
}

// NewURIBuilder creates a URI builder rooted at a database path. Plain
// paths have '?', '#' and '%' percent-encoded so SQLite reads them as part
// of the file name. Paths that already carry the file: scheme are URIs and
// are kept as they are.
func NewURIBuilder(path string) *URIBuilder {
	builder := GetBuilder(Small)
	if strings.HasPrefix(path, "file:") {
		builder.WriteString(path)
		return &URIBuilder{
			builder:   builder,
			hasParams: strings.Contains(path, "?"),
		}
	}

	builder.WriteString("file:")
	for i := 0; i < len(path); i++ {
		switch c := path[i]; c {
		case '?':
			builder.WriteString("%3F")
		case '#':
			builder.WriteString("%23")
		case '%':
			builder.WriteString("%25")
		default:
			builder.WriteByte(c)
		}
	}
	return &URIBuilder{builder: builder}
}

// AddParam adds an escaped query parameter
func (ub *URIBuilder) AddParam(key, value string) *URIBuilder {
	if ub.hasParams {
		ub.builder.WriteByte('&')
	} else {
		ub.builder.WriteByte('?')
		ub.hasParams = true
	}

	ub.builder.WriteString(url.QueryEscape(key))
	ub.builder.WriteByte('=')
	ub.builder.WriteString(url.QueryEscape(value))

	return ub
}

// String returns the built URI
func (ub *URIBuilder) String() string {
	return Clone(ub.builder.String())
}

// Close releases the builder back to the pool
func (ub *URIBuilder) Close() {
	if ub.builder != nil {
		PutBuilder(ub.builder, Small)
		ub.builder = nil
	}
}

// Pragma formats a PRAGMA statement assigning value to name.
func Pragma(name, value string) string {
	builder := GetBuilder(Small)
	defer PutBuilder(builder, Small)

	builder.WriteString("PRAGMA ")
	builder.WriteString(name)
	builder.WriteByte('=')
	builder.WriteString(value)

	return Clone(builder.String())
}

// PragmaInt formats a PRAGMA statement with an integer value.
func PragmaInt(name string, value int) string {
	return Pragma(name, strconv.Itoa(value))
}
