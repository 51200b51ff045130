package segmentation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/stitch/internal/core/domain"
)

func text(runes int) string {
	return strings.Repeat("a", runes)
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{text(80), 20},
		{"שלום", 1},
		{"héllo wörld", 3},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, EstimateTokens(tt.in), tt.in)
	}
}

func TestPolicy_AccumulatesBelowThreshold(t *testing.T) {
	p := Policy{Threshold: 50}

	st, c := p.Apply(State{}, text(80))
	assert.Nil(t, c)
	assert.Equal(t, 20, st.RollingTokenCount)
	assert.Equal(t, 0, st.NextSegmentIndex)
}

func TestPolicy_CutsWhenThresholdReached(t *testing.T) {
	p := Policy{Threshold: 40}

	st, c := p.Apply(State{}, text(80))
	require.Nil(t, c)

	st, c = p.Apply(st, text(100))
	require.NotNil(t, c)

	assert.Equal(t, 0, c.Index)
	assert.Equal(t, 45, c.TokenCount)
	assert.Equal(t, text(80)+" "+text(100), c.Text)

	assert.Equal(t, State{NextSegmentIndex: 1}, st)
}

func TestPolicy_ExactThresholdCuts(t *testing.T) {
	p := Policy{Threshold: 20}

	st, c := p.Apply(State{NextSegmentIndex: 3}, text(80))

	require.NotNil(t, c)
	assert.Equal(t, 3, c.Index)
	assert.Equal(t, 4, st.NextSegmentIndex)
	assert.Empty(t, st.RollingText)
	assert.Zero(t, st.RollingTokenCount)
}

func TestPolicy_EmptyTextNeverCuts(t *testing.T) {
	p := Policy{Threshold: 1}

	st, c := p.Apply(State{}, "")
	assert.Nil(t, c)
	assert.Equal(t, State{}, st)
}

func TestPolicy_EmptyNewTextCanStillCutPendingBuffer(t *testing.T) {
	p := Policy{Threshold: 10}

	// A buffer left at the threshold, e.g. after the threshold was lowered.
	st, c := p.Apply(State{RollingText: "pending", RollingTokenCount: 12}, "")
	require.NotNil(t, c)
	assert.Equal(t, "pending", c.Text)
	assert.Equal(t, 1, st.NextSegmentIndex)
}

func TestPolicy_IndicesAreContiguous(t *testing.T) {
	p := Policy{Threshold: 5}

	st := State{}
	var indices []int
	for i := 0; i < 10; i++ {
		var c *Cut
		st, c = p.Apply(st, text(12))
		if c != nil {
			indices = append(indices, c.Index)
		}
	}

	require.NotEmpty(t, indices)
	for i, idx := range indices {
		assert.Equal(t, i, idx)
	}
	assert.Equal(t, len(indices), st.NextSegmentIndex)
}

func TestPolicy_Flush(t *testing.T) {
	p := Policy{Threshold: 1000}

	st, c := p.Flush(State{NextSegmentIndex: 2})
	assert.Nil(t, c)
	assert.Equal(t, 2, st.NextSegmentIndex)

	st, c = p.Flush(State{RollingText: "tail", RollingTokenCount: 1, NextSegmentIndex: 2})
	require.NotNil(t, c)
	assert.Equal(t, Cut{Index: 2, Text: "tail", TokenCount: 1}, *c)
	assert.Equal(t, State{NextSegmentIndex: 3}, st)
}

func TestNewPolicy_Default(t *testing.T) {
	assert.Equal(t, domain.DefaultTokenThreshold, NewPolicy(0).Threshold)
	assert.Equal(t, 10, NewPolicy(10).Threshold)
}

func TestState_SessionRoundTrip(t *testing.T) {
	sess := domain.Session{RollingText: "x", RollingTokenCount: 1, NextSegmentIndex: 4}

	st := StateOf(&sess)
	st.RollingText = "x y"
	st.RollingTokenCount = 2
	st.ApplyTo(&sess)

	assert.Equal(t, "x y", sess.RollingText)
	assert.Equal(t, 2, sess.RollingTokenCount)
	assert.Equal(t, 4, sess.NextSegmentIndex)
}
