package oscillation

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

const (
	// StandardGravity is used for the small-angle theoretical period.
	StandardGravity = 9.81

	// AmplitudeUnitFactor converts the initial displacement into the
	// reported amplitude unit. It only applies to Parameters.Amplitude.
	AmplitudeUnitFactor = 10.0

	// MinPeaks is the fewest filtered peaks that can form a decay cycle.
	MinPeaks = 3

	// minCycleInterval rejects same-side pairs that are too close in time.
	minCycleInterval = 0.01
)

var (
	// ErrInsufficientData is the parent of every recoverable "not enough
	// signal" condition. Callers should test with errors.Is.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrInsufficientPeaks means fewer than MinPeaks filtered peaks.
	ErrInsufficientPeaks = fmt.Errorf("%w: at least %d peaks are required", ErrInsufficientData, MinPeaks)

	// ErrNoValidCycles means no same-side pair showed a usable decay.
	ErrNoValidCycles = fmt.Errorf("%w: no valid decay cycle (check peaks, noise and sample order)", ErrInsufficientData)

	// ErrInvalidScale is returned for a non-positive or non-finite scale.
	ErrInvalidScale = errors.New("scale must be positive and finite")
)

// Diagnostics describes how the estimator used the peak pairs. It never
// influences the values in Parameters.
type Diagnostics struct {
	Peaks       int `json:"peaks"`
	Pairs       int `json:"pairs"`
	ValidCycles int `json:"valid_cycles"`

	SkippedShortInterval  int `json:"skipped_short_interval"`
	SkippedZeroAmplitude  int `json:"skipped_zero_amplitude"`
	SkippedNotDecaying    int `json:"skipped_not_decaying"`
	SkippedInvalidDamping int `json:"skipped_invalid_damping"`

	PeriodStdDev  float64 `json:"period_stddev_s"`
	DampingStdDev float64 `json:"damping_stddev_per_s"`

	// EnvelopeDamping is the decay rate from a least-squares line through
	// ln|displacement| against time over all peaks. Zero when fewer than
	// two usable peaks exist.
	EnvelopeDamping float64 `json:"envelope_damping_per_s"`
	EnvelopeR2      float64 `json:"envelope_r2"`
}

// Estimate computes the pendulum parameters from a filtered peak sequence.
// See EstimateWithDiagnostics.
func Estimate(peaks []Peak, g Geometry) (Parameters, error) {
	p, _, err := EstimateWithDiagnostics(peaks, g)
	return p, err
}

// EstimateWithDiagnostics computes the pendulum parameters and reports how
// each same-side peak pair was used.
//
// Peaks i and i+2 lie on the same side of equilibrium, one full period
// apart. A pair contributes only when the interval is at least 10 ms, both
// displacements are positive and the displacement shrinks from i to i+2.
// Such a pair adds its interval to the period average and
// ln(a_i/a_{i+2})/dt to the damping average.
//
// When there are fewer than MinPeaks peaks, or no pair qualifies, a zero
// Parameters value is returned together with an error wrapping
// ErrInsufficientData.
func EstimateWithDiagnostics(peaks []Peak, g Geometry) (Parameters, Diagnostics, error) {
	diag := Diagnostics{Peaks: len(peaks)}

	if g.Scale <= 0 || math.IsNaN(g.Scale) || math.IsInf(g.Scale, 0) {
		return Parameters{}, diag, ErrInvalidScale
	}
	if len(peaks) < MinPeaks {
		return Parameters{}, diag, ErrInsufficientPeaks
	}

	var pend Parameters
	pend.InitialPosition = g.Equilibrium / g.Scale
	pend.Amplitude = displacement(peaks[0], g) * AmplitudeUnitFactor

	periods := make([]float64, 0, len(peaks)-2)
	dampings := make([]float64, 0, len(peaks)-2)

	for i := 0; i+2 < len(peaks); i++ {
		diag.Pairs++
		p1, p3 := peaks[i], peaks[i+2]

		dt := p3.Time - p1.Time
		if dt < minCycleInterval {
			diag.SkippedShortInterval++
			continue
		}

		amp1 := displacement(p1, g)
		amp3 := displacement(p3, g)
		if amp1 <= 0 || amp3 <= 0 {
			diag.SkippedZeroAmplitude++
			continue
		}
		if amp1 <= amp3 {
			diag.SkippedNotDecaying++
			continue
		}

		// A(t) = A0 * exp(-b t)
		b := math.Log(amp1/amp3) / dt
		if math.IsNaN(b) || math.IsInf(b, 0) || b < 0 {
			diag.SkippedInvalidDamping++
			continue
		}

		periods = append(periods, dt)
		dampings = append(dampings, b)
	}

	diag.ValidCycles = len(periods)
	fitEnvelope(peaks, g, &diag)

	if diag.ValidCycles == 0 {
		return Parameters{}, diag, ErrNoValidCycles
	}

	pend.ExperimentalPeriod = stat.Mean(periods, nil)
	pend.Damping = stat.Mean(dampings, nil)
	if diag.ValidCycles > 1 {
		diag.PeriodStdDev = stat.StdDev(periods, nil)
		diag.DampingStdDev = stat.StdDev(dampings, nil)
	}

	if pend.ExperimentalPeriod > 0 {
		pend.AngularFrequency = 2 * math.Pi / pend.ExperimentalPeriod
	}
	if pend.Damping > 0 {
		pend.QualityFactor = pend.AngularFrequency / (2 * pend.Damping)
	}

	if g.Length > 0 {
		pend.TheoreticalPeriod = TheoreticalPeriod(g.Length)
		if pend.TheoreticalPeriod > 0 {
			pend.RelativeError = math.Abs(pend.ExperimentalPeriod-pend.TheoreticalPeriod) / pend.TheoreticalPeriod * 100
		}
	}

	return pend, diag, nil
}

// TheoreticalPeriod returns the small-angle period 2π√(L/g) of a simple
// pendulum of the given length in metres. Non-positive lengths yield zero.
func TheoreticalPeriod(length float64) float64 {
	if length <= 0 {
		return 0
	}
	return 2 * math.Pi * math.Sqrt(length/StandardGravity)
}

// displacement returns |position - equilibrium| in metres.
func displacement(p Peak, g Geometry) float64 {
	return math.Abs(p.Position-g.Equilibrium) / g.Scale
}

// fitEnvelope regresses ln(displacement) on time. The slope of the line is
// -b for an exponentially decaying envelope.
func fitEnvelope(peaks []Peak, g Geometry, diag *Diagnostics) {
	xs := make([]float64, 0, len(peaks))
	ys := make([]float64, 0, len(peaks))
	for _, p := range peaks {
		a := displacement(p, g)
		if a <= 0 {
			continue
		}
		xs = append(xs, p.Time)
		ys = append(ys, math.Log(a))
	}
	if len(xs) < 2 || stat.Variance(xs, nil) == 0 {
		return
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	diag.EnvelopeDamping = -beta
	if r2 := stat.RSquared(xs, ys, nil, alpha, beta); !math.IsNaN(r2) {
		diag.EnvelopeR2 = r2
	}
}
