package history

import (
	"context"
	"sync"

	"github.com/harrison/crew/internal/models"
)

// Recorder buffers the outcomes of one run so they can be stored once the
// run completes. It is a crew.Sink and safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	outcomes []models.Outcome
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record appends one outcome.
func (r *Recorder) Record(o models.Outcome) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, o)
	r.mu.Unlock()
}

// Outcomes returns a copy of the buffered outcomes.
func (r *Recorder) Outcomes() []models.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Outcome, len(r.outcomes))
	copy(out, r.outcomes)
	return out
}

// Len returns the number of buffered outcomes.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.outcomes)
}

// Reset drops the buffered outcomes.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.outcomes = nil
	r.mu.Unlock()
}

// Flush stores the buffered outcomes under summary and empties the buffer.
// On error the buffer is kept so the caller may retry.
func (r *Recorder) Flush(ctx context.Context, store *Store, summary models.RunSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := store.RecordRun(ctx, summary, r.outcomes); err != nil {
		return err
	}
	r.outcomes = nil
	return nil
}
