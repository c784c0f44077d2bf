package oscillation

// Sample is one position reading of the tracked marker.
// Time is in seconds since the start of acquisition; Position is in tracker
// units (pixels or a scaled length, depending on the feed).
type Sample struct {
	Time     float64 `json:"t"`
	Position float64 `json:"x"`
}

// Peak is a Sample selected as a local extremum of the position signal.
// Candidate peaks and filtered peaks share this shape.
type Peak = Sample

// Geometry is the static configuration the estimator needs to convert peak
// positions into physical amplitudes.
type Geometry struct {
	// Length is the pendulum length in metres. Zero disables the
	// theoretical period and relative error.
	Length float64 `json:"length_m"`
	// Scale is the number of position units per metre.
	Scale float64 `json:"scale"`
	// Equilibrium is the resting position in position units.
	Equilibrium float64 `json:"equilibrium"`
}

// Parameters is the result of a parameter estimation run. Optional values
// are left at zero when they cannot be computed.
type Parameters struct {
	Amplitude          float64 `json:"amplitude_m"`
	AngularFrequency   float64 `json:"angular_frequency_rad_s"`
	Damping            float64 `json:"damping_per_s"`
	QualityFactor      float64 `json:"quality_factor"` // zero unless Damping > 0
	ExperimentalPeriod float64 `json:"experimental_period_s"`
	TheoreticalPeriod  float64 `json:"theoretical_period_s"` // zero unless Length > 0
	RelativeError      float64 `json:"relative_error_pct"`   // zero unless TheoreticalPeriod > 0
	InitialPosition    float64 `json:"initial_position"`
}

// HasQualityFactor reports whether the record carries a quality factor.
func (p Parameters) HasQualityFactor() bool { return p.Damping > 0 && p.QualityFactor > 0 }

// HasTheory reports whether a theoretical period was computed.
func (p Parameters) HasTheory() bool { return p.TheoreticalPeriod > 0 }
