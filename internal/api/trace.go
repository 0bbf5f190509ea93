package api

import (
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	defaultTraceSize  = 50
	debugTraceWindow  = 5
	maxTracedBodySize = 4 << 10
)

// redactedHeaders are never copied into a trace.
var redactedHeaders = map[string]bool{
	"authorization": true,
	"cookie":        true,
	"set-cookie":    true,
}

// TraceEntry records what a webhook client actually sent.
type TraceEntry struct {
	Timestamp   int64             `json:"ts"`
	Method      string            `json:"method"`
	Headers     map[string]string `json:"headers"`
	ContentType string            `json:"contentType"`
	RawBody     string            `json:"rawBody,omitempty"`
	ParsedBody  interface{}       `json:"parsedBody,omitempty"`
	Extracted   map[string]string `json:"extracted,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// newTraceEntry captures the request line and headers.
func newTraceEntry(r *http.Request, now time.Time) TraceEntry {
	headers := make(map[string]string, len(r.Header))
	for k, v := range r.Header {
		if redactedHeaders[strings.ToLower(k)] || len(v) == 0 {
			continue
		}
		headers[strings.ToLower(k)] = v[0]
	}
	return TraceEntry{
		Timestamp:   now.UnixMilli(),
		Method:      r.Method,
		Headers:     headers,
		ContentType: r.Header.Get("Content-Type"),
	}
}

func (e *TraceEntry) setRawBody(body []byte) {
	if len(body) > maxTracedBodySize {
		body = body[:maxTracedBodySize]
	}
	e.RawBody = string(body)
}

// DebugTrace is a fixed-size ring of recent request traces. When full, the
// oldest entry is overwritten.
type DebugTrace struct {
	buf  []TraceEntry
	size int
	head int // write position
	full bool
	mu   sync.RWMutex
}

// NewDebugTrace creates a trace holding at most size entries.
func NewDebugTrace(size int) *DebugTrace {
	if size <= 0 {
		size = defaultTraceSize
	}
	return &DebugTrace{
		buf:  make([]TraceEntry, size),
		size: size,
	}
}

// Push appends an entry, evicting the oldest when full.
func (d *DebugTrace) Push(e TraceEntry) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.buf[d.head] = e
	d.head = (d.head + 1) % d.size
	if d.head == 0 {
		d.full = true
	}
}

// Recent returns up to n of the newest entries, oldest first.
func (d *DebugTrace) Recent(n int) []TraceEntry {
	d.mu.RLock()
	defer d.mu.RUnlock()

	count := d.lenLocked()
	if n > count {
		n = count
	}
	if n < 0 {
		n = 0
	}
	out := make([]TraceEntry, 0, n)
	start := d.head - n
	if start < 0 {
		start += d.size
	}
	for i := 0; i < n; i++ {
		out = append(out, d.buf[(start+i)%d.size])
	}
	return out
}

func (d *DebugTrace) lenLocked() int {
	if d.full {
		return d.size
	}
	return d.head
}
