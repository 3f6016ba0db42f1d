package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/citeloop/internal/prediction"
)

func candidate(orig prediction.Label, origConf float64, corr prediction.Label, corrConf float64) Candidate {
	return Candidate{
		OriginalLabel:       orig,
		OriginalConfidence:  origConf,
		CorrectedLabel:      corr,
		CorrectedConfidence: corrConf,
	}
}

func TestGateAcceptsLabelChangeWithGain(t *testing.T) {
	g := NewGate(DefaultGateConfig())

	decision := g.Evaluate(candidate(prediction.Secondary, 0.6, prediction.Primary, 0.9))

	require.True(t, decision.Accepted, decision.Reason)
	assert.Equal(t, "accept", decision.Action)
	assert.Equal(t, ReasonAccepted, decision.Reason)
	assert.Empty(t, decision.VetoSignals)
}

func TestGateRejectReasons(t *testing.T) {
	tests := []struct {
		name   string
		c      Candidate
		reason string
		vetoes int
	}{
		{"label unchanged", candidate(prediction.None, 0.3, prediction.None, 0.95), ReasonLabelUnchanged, 1},
		{"unchanged wins over low delta", candidate(prediction.None, 0.9, prediction.None, 0.91), ReasonLabelUnchanged, 2},
		{"delta too low", candidate(prediction.None, 0.75, prediction.Primary, 0.85), ReasonDeltaTooLow, 1},
		{"below threshold", candidate(prediction.None, 0.4, prediction.Primary, 0.7), ReasonBelowConfidence, 1},
		{"delta checked before floor", candidate(prediction.None, 0.6, prediction.Primary, 0.7), ReasonDeltaTooLow, 2},
		{"confidence drop", candidate(prediction.Primary, 0.9, prediction.Secondary, 0.5), ReasonDeltaTooLow, 2},
	}

	g := NewGate(DefaultGateConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := g.Evaluate(tt.c)
			require.False(t, decision.Accepted)
			assert.Equal(t, "reject", decision.Action)
			assert.Equal(t, tt.reason, decision.Reason)
			assert.Len(t, decision.VetoSignals, tt.vetoes)
		})
	}
}

func TestGateBoundariesInclusive(t *testing.T) {
	g := NewGate(DefaultGateConfig())

	// delta exactly 0.15 and corrected exactly 0.80
	decision := g.Evaluate(candidate(prediction.None, 0.65, prediction.Primary, 0.80))
	assert.True(t, decision.Accepted, decision.Reason)
}

func TestGateToleranceAtBoundary(t *testing.T) {
	g := NewGate(DefaultGateConfig())

	// 0.95-0.80 rounds to just under 0.15 in float64.
	c := candidate(prediction.None, 0.80, prediction.Primary, 0.95)
	require.Less(t, c.Delta(), 0.15)
	assert.True(t, g.Evaluate(c).Accepted, "rounding below the minimum delta must still accept")

	// a corrected confidence computed at runtime lands just under 0.80
	base := 0.1
	corrected := base + 0.7
	require.Less(t, corrected, 0.8)
	assert.True(t, g.Evaluate(candidate(prediction.None, 0.1, prediction.Primary, corrected)).Accepted)

	short := g.Evaluate(candidate(prediction.None, 0.65, prediction.Primary, 0.80-10*Tolerance))
	assert.False(t, short.Accepted)
	assert.Equal(t, ReasonDeltaTooLow, short.Reason)
	require.Len(t, short.VetoSignals, 2)
	assert.Equal(t, VetoLowConfidence, short.VetoSignals[1].Type)
}

func TestGateIsIdempotent(t *testing.T) {
	g := NewGate(DefaultGateConfig())
	c := candidate(prediction.Secondary, 0.55, prediction.None, 0.82)

	first := g.Evaluate(c)
	for i := range 10 {
		again := g.Evaluate(c)
		assert.Equal(t, first.Accepted, again.Accepted, "call %d", i)
		assert.Equal(t, first.Reason, again.Reason, "call %d", i)
	}
}

func TestGateCustomThresholds(t *testing.T) {
	g := NewGate(GateConfig{MinDelta: 0, MinConfidence: 0.5})

	decision := g.Evaluate(candidate(prediction.Primary, 0.6, prediction.None, 0.6))
	assert.True(t, decision.Accepted, decision.Reason)
}

func TestDescribe(t *testing.T) {
	c := candidate(prediction.Secondary, 0.6, prediction.Primary, 0.9)
	d := NewGate(DefaultGateConfig()).Evaluate(c)
	s := Describe(c, d)
	assert.Contains(t, s, "secondary -> primary")
	assert.Contains(t, s, "delta=+0.300")
}
