package oscillation

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dampedPeaks returns n alternating extrema of eq ± a0·exp(-b·t), spaced by
// half a period.
func dampedPeaks(n int, eq, a0, b, period float64) []Peak {
	out := make([]Peak, n)
	for k := range out {
		ts := float64(k) * period / 2
		sign := 1.0
		if k%2 == 1 {
			sign = -1
		}
		out[k] = Peak{Time: ts, Position: eq + sign*a0*math.Exp(-b*ts)}
	}
	return out
}

func TestEstimate_InsufficientPeaks(t *testing.T) {
	t.Parallel()

	g := Geometry{Length: 0.5, Scale: 1000, Equilibrium: 100}
	for n := 0; n < MinPeaks; n++ {
		p, err := Estimate(dampedPeaks(n, 100, 80, 0.1, 2), g)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInsufficientData))
		assert.True(t, errors.Is(err, ErrInsufficientPeaks))
		assert.Equal(t, Parameters{}, p)
	}
}

func TestEstimate_InvalidScale(t *testing.T) {
	t.Parallel()

	peaks := dampedPeaks(5, 100, 80, 0.1, 2)
	for _, scale := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		p, err := Estimate(peaks, Geometry{Scale: scale, Equilibrium: 100})
		assert.ErrorIs(t, err, ErrInvalidScale)
		assert.False(t, errors.Is(err, ErrInsufficientData))
		assert.Equal(t, Parameters{}, p)
	}
}

func TestEstimate_KnownDecayRatio(t *testing.T) {
	t.Parallel()

	const (
		dt = 1.6 // one full period between same-side peaks
		r  = 1.25
	)
	b := math.Log(r) / dt
	peaks := dampedPeaks(5, 320, 120, b, dt)

	p, diag, err := EstimateWithDiagnostics(peaks, Geometry{Scale: 1000, Equilibrium: 320})
	require.NoError(t, err)

	assert.InDelta(t, b, p.Damping, 1e-9)
	assert.InDelta(t, dt, p.ExperimentalPeriod, 1e-9)
	assert.InDelta(t, 2*math.Pi/dt, p.AngularFrequency, 1e-9)
	assert.InDelta(t, p.AngularFrequency/(2*b), p.QualityFactor, 1e-6)
	assert.Equal(t, 3, diag.ValidCycles)
	assert.InDelta(t, 0, diag.PeriodStdDev, 1e-9)
	assert.InDelta(t, 0, diag.DampingStdDev, 1e-9)
	assert.InDelta(t, b, diag.EnvelopeDamping, 1e-9)
	assert.InDelta(t, 1, diag.EnvelopeR2, 1e-9)

	// no length configured
	assert.Zero(t, p.TheoreticalPeriod)
	assert.Zero(t, p.RelativeError)
	assert.False(t, p.HasTheory())
}

func TestEstimate_WorkedExample(t *testing.T) {
	t.Parallel()

	g := Geometry{Scale: 1000, Equilibrium: 100}
	peaks := []Peak{
		{Time: 0, Position: 180},
		{Time: 1, Position: 20},
		{Time: 2, Position: 160},
		{Time: 3, Position: 40},
		{Time: 4, Position: 150},
	}

	t.Run("first four peaks", func(t *testing.T) {
		t.Parallel()
		p, diag, err := EstimateWithDiagnostics(peaks[:4], g)
		require.NoError(t, err)

		bLocal := math.Log(0.08/0.06) / 2
		assert.InDelta(t, 0.8, p.Amplitude, 1e-12)
		assert.InDelta(t, 0.1, p.InitialPosition, 1e-12)
		assert.Equal(t, 2, diag.ValidCycles)
		assert.InDelta(t, 2, p.ExperimentalPeriod, 1e-12)
		assert.InDelta(t, 0.1438, p.Damping, 1e-4)
		assert.InDelta(t, bLocal, p.Damping, 1e-12)
		assert.InDelta(t, math.Pi, p.AngularFrequency, 1e-12)
		assert.InDelta(t, 10.92, p.QualityFactor, 0.01)
	})

	t.Run("all five peaks", func(t *testing.T) {
		t.Parallel()
		p, diag, err := EstimateWithDiagnostics(peaks, g)
		require.NoError(t, err)

		// (2,4) decays from 0.06 to 0.05 and also counts
		want := (2*math.Log(0.08/0.06) + math.Log(0.06/0.05)) / 2 / 3
		assert.Equal(t, 3, diag.ValidCycles)
		assert.InDelta(t, 2, p.ExperimentalPeriod, 1e-12)
		assert.InDelta(t, want, p.Damping, 1e-12)
		assert.InDelta(t, math.Pi/(2*want), p.QualityFactor, 1e-9)
	})
}

func TestEstimate_SkipsNonDecayingPairs(t *testing.T) {
	t.Parallel()

	g := Geometry{Scale: 100, Equilibrium: 0}
	peaks := []Peak{
		{Time: 0, Position: 10},
		{Time: 1, Position: -10},
		{Time: 2, Position: 12},     // grows: pair (0,2) skipped
		{Time: 3, Position: -8},     // decays: pair (1,3) counts
		{Time: 4, Position: 0},      // on equilibrium: pair (2,4) skipped
		{Time: 4.005, Position: -7}, // 1.005 s after (3): counts
	}

	p, diag, err := EstimateWithDiagnostics(peaks, g)
	require.NoError(t, err)
	assert.Equal(t, 4, diag.Pairs)
	assert.Equal(t, 1, diag.SkippedNotDecaying)
	assert.Equal(t, 1, diag.SkippedZeroAmplitude)
	assert.Equal(t, 2, diag.ValidCycles)

	b1 := math.Log(0.10/0.08) / 2
	b2 := math.Log(0.08/0.07) / 1.005
	assert.InDelta(t, (2+1.005)/2, p.ExperimentalPeriod, 1e-12)
	assert.InDelta(t, (b1+b2)/2, p.Damping, 1e-12)
}

func TestEstimate_ShortIntervalSkipped(t *testing.T) {
	t.Parallel()

	g := Geometry{Scale: 1, Equilibrium: 0}
	peaks := []Peak{
		{Time: 0, Position: 5},
		{Time: 0.002, Position: -5},
		{Time: 0.004, Position: 4},
	}
	p, diag, err := EstimateWithDiagnostics(peaks, g)
	assert.ErrorIs(t, err, ErrNoValidCycles)
	assert.ErrorIs(t, err, ErrInsufficientData)
	assert.Equal(t, 1, diag.SkippedShortInterval)
	assert.Equal(t, Parameters{}, p)
}

func TestEstimate_GrowingOnlyIsInsufficient(t *testing.T) {
	t.Parallel()

	peaks := dampedPeaks(6, 0, 1, -0.2, 2)
	p, diag, err := EstimateWithDiagnostics(peaks, Geometry{Scale: 1})
	assert.ErrorIs(t, err, ErrNoValidCycles)
	assert.Equal(t, 4, diag.SkippedNotDecaying)
	assert.Equal(t, Parameters{}, p)
}

func TestEstimate_TheoreticalPeriod(t *testing.T) {
	t.Parallel()

	tTeo := 2 * math.Pi * math.Sqrt(0.5/9.81)
	assert.InDelta(t, tTeo, TheoreticalPeriod(0.5), 1e-12)
	assert.Zero(t, TheoreticalPeriod(0))
	assert.Zero(t, TheoreticalPeriod(-1))

	peaks := dampedPeaks(7, 0, 50, 0.05, 1.5)
	p, err := Estimate(peaks, Geometry{Length: 0.5, Scale: 1000})
	require.NoError(t, err)
	assert.True(t, p.HasTheory())
	assert.InDelta(t, tTeo, p.TheoreticalPeriod, 1e-12)
	assert.InDelta(t, math.Abs(1.5-tTeo)/tTeo*100, p.RelativeError, 1e-9)
}

func TestEstimate_QualityFactorDefinedIffDamped(t *testing.T) {
	t.Parallel()

	for _, b := range []float64{0.01, 0.1, 0.5, 2} {
		p, err := Estimate(dampedPeaks(9, 10, 30, b, 1.2), Geometry{Scale: 10, Equilibrium: 10})
		require.NoError(t, err)
		require.Greater(t, p.Damping, 0.0)
		assert.True(t, p.HasQualityFactor())
		assert.Greater(t, p.QualityFactor, 0.0)
		assert.False(t, math.IsInf(p.QualityFactor, 0) || math.IsNaN(p.QualityFactor))
	}

	// undamped oscillation: no pair decays, so there is no Q either
	p, err := Estimate(dampedPeaks(9, 10, 30, 0, 1.2), Geometry{Scale: 10, Equilibrium: 10})
	assert.ErrorIs(t, err, ErrNoValidCycles)
	assert.False(t, p.HasQualityFactor())
	assert.Zero(t, p.QualityFactor)
}
