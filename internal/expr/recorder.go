package expr

import (
	"sync"
	"time"
)

// ErrorRecord is one caught evaluation failure.
type ErrorRecord struct {
	Module  string    `json:"module"`
	Context string    `json:"context"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Recorder keeps the most recent evaluation failures. It is safe for
// concurrent use.
type Recorder struct {
	mu      sync.Mutex
	records []ErrorRecord
	limit   int
	now     func() time.Time
}

// NewRecorder keeps at most limit records; limit <= 0 means 500.
func NewRecorder(limit int) *Recorder {
	if limit <= 0 {
		limit = 500
	}
	return &Recorder{limit: limit, now: time.Now}
}

func (r *Recorder) Record(module, context string, err error) {
	if r == nil || err == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, ErrorRecord{
		Module:  module,
		Context: context,
		Message: err.Error(),
		At:      r.now(),
	})
	if over := len(r.records) - r.limit; over > 0 {
		r.records = append([]ErrorRecord(nil), r.records[over:]...)
	}
}

// Records returns a copy of the stored failures, oldest first.
func (r *Recorder) Records() []ErrorRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ErrorRecord(nil), r.records...)
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.records = nil
	r.mu.Unlock()
}
