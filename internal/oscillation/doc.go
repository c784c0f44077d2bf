// Package oscillation turns a tracked pendulum position signal into the
// parameters of a damped harmonic oscillator.
//
// The pipeline has three stages:
//
//   - PeakDetector: streaming three-sample local extremum detector, fed one
//     Sample per processed frame.
//   - FilterPeaks: a single greedy pass that drops candidates closer in time
//     than a minimum gap to the previously kept peak.
//   - Estimate: pairs same-side peaks (i, i+2) to recover the period and the
//     exponential decay rate of the amplitude envelope.
//
// FormatParameters renders the final Parameters record for display.
package oscillation
