package progression

import (
	"time"

	"adaptive-quiz-service/internal/domain"
)

// DefaultDecayAfter is the inactivity threshold after which a live streak erodes.
const DefaultDecayAfter = 5 * time.Minute

// DecayPolicy erodes streak and confidence after a period of inactivity.
type DecayPolicy struct {
	After time.Duration
}

// NewDecayPolicy returns a policy with the given threshold, or the default when after <= 0.
func NewDecayPolicy(after time.Duration) DecayPolicy {
	if after <= 0 {
		after = DefaultDecayAfter
	}
	return DecayPolicy{After: after}
}

// Due reports whether Apply would change st at now.
func (p DecayPolicy) Due(st domain.UserProgressionState, now time.Time) bool {
	if st.LastAnswerAt == nil || st.Streak <= 0 {
		return false
	}
	ref := *st.LastAnswerAt
	if st.LastDecayAt != nil && st.LastDecayAt.After(ref) {
		ref = *st.LastDecayAt
	}
	return now.Sub(ref) > p.After
}

// Apply returns st decayed at now and whether decay fired. The streak is halved
// (floor), confidence drops by one (floored at MinConfidence) and the version is bumped.
// Stamping LastDecayAt makes a second Apply at the same instant a no-op.
func (p DecayPolicy) Apply(st domain.UserProgressionState, now time.Time) (domain.UserProgressionState, bool) {
	if !p.Due(st, now) {
		return st, false
	}
	st.Streak /= 2
	st.Confidence = clamp(st.Confidence-1, MinConfidence, MaxConfidence)
	st.StateVersion++
	decayedAt := now
	st.LastDecayAt = &decayedAt
	st.UpdatedAt = now
	return st, true
}
