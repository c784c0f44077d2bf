package oscillation

// PeakDetector confirms local extrema one sample late. It keeps only the
// last three samples, so memory use is constant no matter how long the
// acquisition runs.
type PeakDetector struct {
	window [3]Sample
	n      int // samples seen, saturates at len(window)
}

// NewPeakDetector returns an empty detector.
func NewPeakDetector() *PeakDetector {
	return &PeakDetector{}
}

// Push appends s to the window and reports whether the previous sample is
// now confirmed as a peak. The returned Peak is the middle sample of the
// window, i.e. the one before s.
func (d *PeakDetector) Push(s Sample) (Peak, bool) {
	if d.n < len(d.window) {
		d.window[d.n] = s
		d.n++
	} else {
		d.window[0], d.window[1], d.window[2] = d.window[1], d.window[2], s
	}
	if d.n < len(d.window) {
		return Peak{}, false
	}
	return peakAt(d.window[0], d.window[1], d.window[2])
}

// Len returns the number of samples currently held in the window.
func (d *PeakDetector) Len() int { return d.n }

// Reset clears the window.
func (d *PeakDetector) Reset() {
	d.window = [3]Sample{}
	d.n = 0
}

// DetectPeak examines the last three samples of history and returns the
// middle one if it is a local maximum or minimum.
func DetectPeak(history []Sample) (Peak, bool) {
	n := len(history)
	if n < 3 {
		return Peak{}, false
	}
	return peakAt(history[n-3], history[n-2], history[n-1])
}

// peakAt applies the three-point rule. A flat run satisfies both branches
// and is still reported once.
func peakAt(prev, curr, next Sample) (Peak, bool) {
	isMax := curr.Position >= prev.Position && curr.Position >= next.Position
	isMin := curr.Position <= prev.Position && curr.Position <= next.Position
	if isMax || isMin {
		return curr, true
	}
	return Peak{}, false
}
