package constants

// ConfidenceLevel is the coarse bucket derived from a numeric confidence score.
type ConfidenceLevel string

const (
	ConfidenceHigh    ConfidenceLevel = "high"
	ConfidenceMedium  ConfidenceLevel = "medium"
	ConfidenceLow     ConfidenceLevel = "low"
	ConfidenceVeryLow ConfidenceLevel = "very_low"
)

// LevelForScore buckets a [0,1] score.
func LevelForScore(score float64) ConfidenceLevel {
	switch {
	case score >= 0.9:
		return ConfidenceHigh
	case score >= 0.7:
		return ConfidenceMedium
	case score >= 0.5:
		return ConfidenceLow
	default:
		return ConfidenceVeryLow
	}
}
