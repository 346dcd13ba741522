package constants

// Status is the canonical lifecycle status for rows in documents.
type Status string

// Stable values (store these exact strings in DB).
const (
	StatusPending     Status = "pending"      // uploaded, not yet claimed
	StatusProcessing  Status = "processing"   // claimed by a worker, format normalization
	StatusClassifying Status = "classifying"  // AI type classification in progress
	StatusExtracting  Status = "extracting"   // AI field extraction in progress
	StatusValidating  Status = "validating"   // rule validation in progress
	StatusEnriching   Status = "enriching"    // normalization/lookups in progress
	StatusCompleted   Status = "completed"    // terminal success
	StatusFailed      Status = "failed"       // terminal failure, reason recorded
	StatusNeedsReview Status = "needs_review" // quasi-terminal, awaiting manual sign-off
)

// Terminal reports whether no automatic transition may leave s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusNeedsReview:
		return true
	}
	return false
}

// stageOrder is the forward stage sequence. Classification is skipped when the
// document type was supplied at ingestion.
var stageOrder = []Status{
	StatusProcessing,
	StatusClassifying,
	StatusExtracting,
	StatusValidating,
	StatusEnriching,
}

// Stages returns the ordered processing stages.
func Stages() []Status {
	out := make([]Status, len(stageOrder))
	copy(out, stageOrder)
	return out
}

// CanTransition reports whether from -> to is a legal status move.
// Any non-terminal status may move to failed or needs_review.
func CanTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	if to == StatusFailed || to == StatusNeedsReview {
		return true
	}
	if from == StatusPending {
		return to == StatusProcessing
	}
	for i, s := range stageOrder {
		if s != from {
			continue
		}
		if i == len(stageOrder)-1 {
			return to == StatusCompleted
		}
		if to == stageOrder[i+1] {
			return true
		}
		// classifying is optional
		if s == StatusProcessing && to == StatusExtracting {
			return true
		}
		return false
	}
	return false
}
