// Package segmentation decides when accumulated transcript text becomes a
// segment ready for summarization.
package segmentation

import (
	"unicode/utf8"

	"github.com/custodia-labs/stitch/internal/core/domain"
)

// State is the rolling portion of a session the policy reads and advances.
type State struct {
	RollingText       string
	RollingTokenCount int
	NextSegmentIndex  int
}

// StateOf extracts the rolling state from a session.
func StateOf(s *domain.Session) State {
	return State{
		RollingText:       s.RollingText,
		RollingTokenCount: s.RollingTokenCount,
		NextSegmentIndex:  s.NextSegmentIndex,
	}
}

// ApplyTo writes the rolling state back onto a session.
func (st State) ApplyTo(s *domain.Session) {
	s.RollingText = st.RollingText
	s.RollingTokenCount = st.RollingTokenCount
	s.NextSegmentIndex = st.NextSegmentIndex
}

// Cut is a segment carved out of the rolling buffer.
type Cut struct {
	Index      int
	Text       string
	TokenCount int
}

// Policy cuts a segment once the rolling buffer reaches Threshold tokens.
type Policy struct {
	Threshold int
}

// NewPolicy creates a policy. A non-positive threshold falls back to the default.
func NewPolicy(threshold int) Policy {
	if threshold <= 0 {
		threshold = domain.DefaultTokenThreshold
	}
	return Policy{Threshold: threshold}
}

// EstimateTokens approximates the token count of s as one token per four
// characters, rounded up.
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + 3) / 4
}

// Apply appends newText to the rolling buffer and cuts a segment when the
// threshold is reached. The returned state replaces the input state.
func (p Policy) Apply(st State, newText string) (State, *Cut) {
	if newText != "" {
		if st.RollingText == "" {
			st.RollingText = newText
		} else {
			st.RollingText = st.RollingText + " " + newText
		}
		st.RollingTokenCount += EstimateTokens(newText)
	}

	if st.RollingTokenCount >= p.Threshold && st.RollingText != "" {
		return cut(st)
	}
	return st, nil
}

// Flush cuts whatever remains in the rolling buffer regardless of size.
// It returns nil when the buffer is empty.
func (p Policy) Flush(st State) (State, *Cut) {
	if st.RollingText == "" {
		return st, nil
	}
	return cut(st)
}

func cut(st State) (State, *Cut) {
	c := &Cut{
		Index:      st.NextSegmentIndex,
		Text:       st.RollingText,
		TokenCount: st.RollingTokenCount,
	}
	return State{NextSegmentIndex: st.NextSegmentIndex + 1}, c
}
