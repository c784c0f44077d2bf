// Package session turns a stream of tracker readings into one acquisition
// run: it drops warm-up frames, fixes the reference position, waits for the
// pendulum to move, collects candidate peaks as they are confirmed and, when
// the run ends, filters them and estimates the pendulum parameters.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/pendulum.report/internal/config"
	"github.com/banshee-data/pendulum.report/internal/feed"
	"github.com/banshee-data/pendulum.report/internal/monitoring"
	"github.com/banshee-data/pendulum.report/internal/oscillation"
)

// Config holds the acquisition settings a Session needs.
type Config struct {
	LengthM           float64
	PixelsPerMeter    float64
	PositionScale     float64
	FrameRate         float64
	WarmupFrames      int
	MovementTolerance float64
	MinPeakGap        time.Duration
}

// ConfigFromExperiment resolves the session settings from a loaded
// experiment config, applying defaults for unset fields.
func ConfigFromExperiment(c *config.ExperimentConfig) Config {
	return Config{
		LengthM:           c.GetPendulumLengthM(),
		PixelsPerMeter:    c.GetPixelsPerMeter(),
		PositionScale:     c.GetPositionScale(),
		FrameRate:         c.GetFrameRate(),
		WarmupFrames:      c.GetWarmupFrames(),
		MovementTolerance: c.GetMovementTolerance(),
		MinPeakGap:        c.GetMinPeakGap(),
	}
}

// State is the acquisition phase of a Session.
type State int

const (
	// StateWarmup discards the first frames, which cameras often garble.
	StateWarmup State = iota
	// StateWaiting has a reference position and waits for the displacement
	// to exceed the movement tolerance.
	StateWaiting
	// StateSwinging records candidate peaks.
	StateSwinging
	// StateFinished no longer accepts readings.
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateWarmup:
		return "warmup"
	case StateWaiting:
		return "waiting"
	case StateSwinging:
		return "swinging"
	case StateFinished:
		return "finished"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrFinished is returned by Observe after Finish.
var ErrFinished = errors.New("session finished")

// SampleFromFrame converts a tracked pixel column on a numbered frame into a
// Sample. Frames are numbered from 1; time is frame/fps seconds and position
// is pixelX/pxPerMeter metres multiplied by positionScale.
func SampleFromFrame(frame int, fps, pixelX, pxPerMeter, positionScale float64) oscillation.Sample {
	return oscillation.Sample{
		Time:     float64(frame) / fps,
		Position: pixelX / pxPerMeter * positionScale,
	}
}

// EventKind distinguishes live updates.
type EventKind string

const (
	EventSample EventKind = "sample"
	EventPeak   EventKind = "peak"
	EventState  EventKind = "state"
)

// Event is a live update published while readings are observed.
type Event struct {
	Kind   EventKind          `json:"kind"`
	Sample oscillation.Sample `json:"sample"`
	State  string             `json:"state,omitempty"`
}

// Snapshot is a point-in-time copy of the session progress.
type Snapshot struct {
	State      string              `json:"state"`
	Frames     int                 `json:"frames"`
	LostFrames int                 `json:"lost_frames"`
	Samples    int                 `json:"samples"`
	Candidates []oscillation.Peak  `json:"candidates"`
	Reference  float64             `json:"reference_position"`
	LastSample *oscillation.Sample `json:"last_sample,omitempty"`
}

// Result is what a finished session produced. Params and Diagnostics are
// zero and Warning is set when the run did not carry enough signal.
type Result struct {
	Samples     []oscillation.Sample    `json:"samples"`
	Candidates  []oscillation.Peak      `json:"candidates"`
	Peaks       []oscillation.Peak      `json:"peaks"`
	Geometry    oscillation.Geometry    `json:"geometry"`
	Params      oscillation.Parameters  `json:"params"`
	Diagnostics oscillation.Diagnostics `json:"diagnostics"`
	Frames      int                     `json:"frames"`
	LostFrames  int                     `json:"lost_frames"`
	Warning     string                  `json:"warning,omitempty"`
}

// Session accumulates one acquisition run. It is safe for concurrent use:
// a feed goroutine calls Observe while HTTP handlers call Snapshot.
type Session struct {
	cfg Config

	mu         sync.Mutex
	state      State
	frames     int
	lost       int
	reference  float64
	detector   *oscillation.PeakDetector
	samples    []oscillation.Sample
	candidates []oscillation.Peak
	notify     func(Event)
}

// New returns a Session in the warm-up state.
func New(cfg Config) (*Session, error) {
	if cfg.FrameRate <= 0 {
		return nil, fmt.Errorf("frame rate must be positive, got %f", cfg.FrameRate)
	}
	if cfg.PixelsPerMeter <= 0 {
		return nil, fmt.Errorf("pixels per meter must be positive, got %f", cfg.PixelsPerMeter)
	}
	if cfg.PositionScale <= 0 {
		return nil, fmt.Errorf("position scale must be positive, got %f", cfg.PositionScale)
	}
	if cfg.WarmupFrames < 0 {
		cfg.WarmupFrames = 0
	}
	s := &Session{cfg: cfg, detector: oscillation.NewPeakDetector()}
	if cfg.WarmupFrames == 0 {
		s.state = StateWaiting
	}
	return s, nil
}

// OnEvent registers f to receive live updates. f is called with the session
// lock held and must not call back into the Session.
func (s *Session) OnEvent(f func(Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notify = f
}

func (s *Session) emit(e Event) {
	if s.notify != nil {
		s.notify(e)
	}
}

func (s *Session) setState(st State) {
	s.state = st
	s.emit(Event{Kind: EventState, State: st.String()})
}

// Observe feeds one tracker reading into the session. Every reading counts
// as a frame, including lost ones; lost and warm-up frames yield no sample.
func (s *Session) Observe(r feed.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateFinished {
		return ErrFinished
	}
	s.frames++

	var sample oscillation.Sample
	switch r.Kind {
	case feed.ReadingLost:
		s.lost++
		return nil
	case feed.ReadingPixel:
		sample = SampleFromFrame(s.frames, s.cfg.FrameRate, r.PixelX, s.cfg.PixelsPerMeter, s.cfg.PositionScale)
	case feed.ReadingSample:
		sample = r.Sample
	default:
		return fmt.Errorf("unsupported reading kind %s", r.Kind)
	}

	if s.frames <= s.cfg.WarmupFrames {
		return nil
	}
	s.record(sample)
	return nil
}

// Push records a sample directly, bypassing the frame clock and warm-up.
func (s *Session) Push(sample oscillation.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateFinished {
		return ErrFinished
	}
	s.frames++
	s.record(sample)
	return nil
}

func (s *Session) record(sample oscillation.Sample) {
	s.samples = append(s.samples, sample)
	s.emit(Event{Kind: EventSample, Sample: sample})

	if len(s.samples) == 1 {
		s.reference = sample.Position
		s.setState(StateWaiting)
	}
	if s.state == StateWaiting {
		d := sample.Position - s.reference
		if d > s.cfg.MovementTolerance || d < -s.cfg.MovementTolerance {
			monitoring.Logf("session: movement detected at t=%.3fs (x=%.3f, reference %.3f)", sample.Time, sample.Position, s.reference)
			s.setState(StateSwinging)
		}
	}

	// The window always tracks the latest three samples; peaks only count
	// once the pendulum is moving.
	peak, ok := s.detector.Push(sample)
	if ok && s.state == StateSwinging {
		s.candidates = append(s.candidates, peak)
		s.emit(Event{Kind: EventPeak, Sample: peak})
	}
}

// State returns the current acquisition phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns a copy of the session progress.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		State:      s.state.String(),
		Frames:     s.frames,
		LostFrames: s.lost,
		Samples:    len(s.samples),
		Candidates: append([]oscillation.Peak(nil), s.candidates...),
		Reference:  s.reference,
	}
	if n := len(s.samples); n > 0 {
		last := s.samples[n-1]
		snap.LastSample = &last
	}
	return snap
}

// Finish stops the session and runs the peak filter and the estimator over
// the collected candidates. A run without enough signal is not an error:
// the Result carries a warning and zero parameters. Calling Finish twice
// recomputes the same Result.
func (s *Session) Finish() Result {
	s.mu.Lock()
	if s.state != StateFinished {
		s.setState(StateFinished)
	}
	res := Result{
		Samples:    append([]oscillation.Sample(nil), s.samples...),
		Candidates: append([]oscillation.Peak(nil), s.candidates...),
		Frames:     s.frames,
		LostFrames: s.lost,
		Geometry: oscillation.Geometry{
			Length:      s.cfg.LengthM,
			Scale:       s.cfg.PixelsPerMeter,
			Equilibrium: s.reference,
		},
	}
	s.mu.Unlock()

	peaks, err := oscillation.FilterPeaks(res.Candidates, s.cfg.MinPeakGap.Seconds())
	if err != nil {
		return warn(res, err)
	}
	res.Peaks = peaks

	params, diag, err := oscillation.EstimateWithDiagnostics(peaks, res.Geometry)
	res.Diagnostics = diag
	if err != nil {
		return warn(res, err)
	}
	res.Params = params
	monitoring.Logf("session: %d samples, %d candidate peaks, %d filtered, %d valid cycles",
		len(res.Samples), len(res.Candidates), len(res.Peaks), diag.ValidCycles)
	return res
}

func warn(res Result, err error) Result {
	res.Warning = err.Error()
	monitoring.Warnf("session: no parameters estimated: %v", err)
	return res
}
