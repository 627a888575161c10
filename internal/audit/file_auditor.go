package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/guillermoBallester/pgchat/internal/core/port"
)

// record is one NDJSON line.
type record struct {
	Timestamp    string  `json:"ts"`
	Tool         string  `json:"tool"`
	SQL          string  `json:"sql"`
	RowsReturned int     `json:"rows_returned"`
	DurationMS   int64   `json:"duration_ms"`
	Error        *string `json:"error"`
	Rejected     string  `json:"rejected,omitempty"`
}

// FileAuditor appends one JSON object per statement attempt to a file.
// Safe for concurrent use.
type FileAuditor struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
	now  func() time.Time
}

// NewFileAuditor opens (or creates) path for append-only writing.
func NewFileAuditor(path string) (*FileAuditor, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	return &FileAuditor{
		file: f,
		enc:  json.NewEncoder(f),
		now:  time.Now,
	}, nil
}

func (a *FileAuditor) Record(_ context.Context, entry port.AuditEntry) {
	rec := record{
		Timestamp:    a.now().UTC().Format(time.RFC3339),
		Tool:         entry.Tool,
		SQL:          entry.SQL,
		RowsReturned: entry.RowsReturned,
		DurationMS:   entry.DurationMS,
		Rejected:     entry.Rejected,
	}
	if entry.Err != nil {
		msg := entry.Err.Error()
		rec.Error = &msg
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	_ = a.enc.Encode(rec) // audit I/O never fails a query
}

func (a *FileAuditor) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}

// NoopAuditor discards all audit entries.
type NoopAuditor struct{}

func (NoopAuditor) Record(context.Context, port.AuditEntry) {}
func (NoopAuditor) Close() error                            { return nil }
