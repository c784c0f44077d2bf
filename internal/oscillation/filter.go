package oscillation

import (
	"errors"
	"time"
)

// DefaultMinPeakGap is the shortest time between two accepted extrema.
const DefaultMinPeakGap = 200 * time.Millisecond

// ErrNoPeaks is returned by FilterPeaks when there is nothing to filter.
var ErrNoPeaks = errors.New("no peaks to filter")

// FilterPeaks drops candidates that follow the previously kept peak by less
// than minGap seconds. The first candidate is always kept. The pass is
// greedy: a rejected candidate is never reconsidered. A non-positive minGap
// falls back to DefaultMinPeakGap.
func FilterPeaks(peaks []Peak, minGap float64) ([]Peak, error) {
	if len(peaks) == 0 {
		return nil, ErrNoPeaks
	}
	if minGap <= 0 {
		minGap = DefaultMinPeakGap.Seconds()
	}

	filtered := make([]Peak, 0, len(peaks))
	filtered = append(filtered, peaks[0])
	for _, p := range peaks[1:] {
		last := filtered[len(filtered)-1]
		if p.Time-last.Time < minGap {
			continue
		}
		filtered = append(filtered, p)
	}
	return filtered, nil
}
