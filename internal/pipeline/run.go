package pipeline

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ekuelkpodar/DocumentIntelligencePipeline/constants"
)

// Run is the execution context for one document's traversal: current stage,
// per-stage attempt counters, last error. It lives for one claim and is
// discarded when the document reaches a terminal status.
type Run struct {
	DocumentID uuid.UUID
	Stage      constants.Status
	Attempts   map[constants.Status]int
	LastError  string
	StartedAt  time.Time
}

func NewRun(documentID uuid.UUID) *Run {
	return &Run{
		DocumentID: documentID,
		Stage:      constants.StatusProcessing,
		Attempts:   make(map[constants.Status]int),
		StartedAt:  time.Now(),
	}
}

// CancelRegistry records externally requested cancellations. The orchestrator
// consults it between stages only; in-flight AI calls run to completion and
// their results are discarded.
type CancelRegistry struct {
	mu      sync.Mutex
	pending map[uuid.UUID]string
}

func NewCancelRegistry() *CancelRegistry {
	return &CancelRegistry{pending: make(map[uuid.UUID]string)}
}

// Cancel requests cancellation of a document's active run.
func (r *CancelRegistry) Cancel(id uuid.UUID, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if reason == "" {
		reason = "cancelled by operator"
	}
	r.pending[id] = reason
}

// Take consumes a pending cancellation, if any.
func (r *CancelRegistry) Take(id uuid.UUID) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reason, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}
	return reason, ok
}
