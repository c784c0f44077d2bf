package feed

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"time"

	"github.com/banshee-data/pendulum.report/internal/timeutil"
)

// SyntheticParams describes a simulated damped pendulum seen by a camera.
type SyntheticParams struct {
	LengthM float64 // pendulum length
	Damping float64 // amplitude envelope decay rate b, 1/s
	Gravity float64 // <= 0 uses 9.81

	// The bob rests at the centre for RestSeconds, then receives a kick
	// that would carry it to KickAngle radians if undamped.
	RestSeconds float64
	KickAngle   float64

	FrameRate      float64
	PixelsPerMeter float64
	CenterPx       float64
	NoisePx        float64 // standard deviation of centroid jitter
	LostEvery      int     // every Nth frame reports no marker; 0 disables
	Seed           int64
}

// DefaultSyntheticParams returns a lightly damped 0.5 m pendulum filmed at
// 30 fps.
func DefaultSyntheticParams() SyntheticParams {
	return SyntheticParams{
		LengthM:        0.5,
		Damping:        0.08,
		Gravity:        9.81,
		RestSeconds:    1,
		KickAngle:      0.3,
		FrameRate:      30,
		PixelsPerMeter: 1000,
		CenterPx:       640,
		NoisePx:        0.5,
		Seed:           1,
	}
}

const rk4Substeps = 8

// Synthetic integrates θ'' = -(g/L)·sin θ - 2b·θ' with RK4 and renders the
// horizontal marker position once per frame.
type Synthetic struct {
	p      SyntheticParams
	theta  float64
	omega  float64
	frame  int
	kicked bool
	rng    *rand.Rand
}

// NewSynthetic validates p and returns a simulator at rest.
func NewSynthetic(p SyntheticParams) (*Synthetic, error) {
	if p.LengthM <= 0 {
		return nil, fmt.Errorf("synthetic length must be positive, got %f", p.LengthM)
	}
	if p.FrameRate <= 0 {
		return nil, fmt.Errorf("synthetic frame rate must be positive, got %f", p.FrameRate)
	}
	if p.PixelsPerMeter <= 0 {
		return nil, fmt.Errorf("synthetic pixels per meter must be positive, got %f", p.PixelsPerMeter)
	}
	if p.Gravity <= 0 {
		p.Gravity = 9.81
	}
	return &Synthetic{p: p, rng: rand.New(rand.NewSource(p.Seed))}, nil
}

// Frame returns the number of frames generated so far.
func (s *Synthetic) Frame() int { return s.frame }

// Angle returns the current pendulum angle in radians.
func (s *Synthetic) Angle() float64 { return s.theta }

// NextPixel advances one frame and returns the marker column in pixels and
// whether the marker was visible.
func (s *Synthetic) NextPixel() (float64, bool) {
	dt := 1 / s.p.FrameRate
	t := float64(s.frame) * dt
	s.frame++

	if !s.kicked && t >= s.p.RestSeconds {
		// small-angle speed at the bottom for the requested swing
		s.omega = s.p.KickAngle * math.Sqrt(s.p.Gravity/s.p.LengthM)
		s.kicked = true
	}
	if s.kicked {
		h := dt / rk4Substeps
		for i := 0; i < rk4Substeps; i++ {
			s.step(h)
		}
	}

	if s.p.LostEvery > 0 && s.frame%s.p.LostEvery == 0 {
		return 0, false
	}

	cx := s.p.CenterPx + s.p.LengthM*math.Sin(s.theta)*s.p.PixelsPerMeter
	if s.p.NoisePx > 0 {
		cx += s.rng.NormFloat64() * s.p.NoisePx
	}
	return cx, true
}

// NextLine advances one frame and returns it in the tracker line protocol.
func (s *Synthetic) NextLine() string {
	cx, ok := s.NextPixel()
	if !ok {
		return "lost\n"
	}
	return FormatPixelLine(cx)
}

func (s *Synthetic) deriv(theta, omega float64) (float64, float64) {
	return omega, -(s.p.Gravity/s.p.LengthM)*math.Sin(theta) - 2*s.p.Damping*omega
}

func (s *Synthetic) step(h float64) {
	k1t, k1o := s.deriv(s.theta, s.omega)
	k2t, k2o := s.deriv(s.theta+0.5*h*k1t, s.omega+0.5*h*k1o)
	k3t, k3o := s.deriv(s.theta+0.5*h*k2t, s.omega+0.5*h*k2o)
	k4t, k4o := s.deriv(s.theta+h*k3t, s.omega+h*k3o)

	f := h / 6
	s.theta += f * (k1t + 2*k2t + 2*k3t + k4t)
	s.omega += f * (k1o + 2*k2o + 2*k3o + k4o)
}

// Run writes one line per frame to w, paced by clock at the frame rate,
// until ctx is done or frames lines have been written. frames <= 0 runs
// until cancellation.
func (s *Synthetic) Run(ctx context.Context, w io.Writer, clock timeutil.Clock, frames int) error {
	interval := time.Duration(float64(time.Second) / s.p.FrameRate)
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	for n := 0; frames <= 0 || n < frames; n++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
		}
		if _, err := io.WriteString(w, s.NextLine()); err != nil {
			return fmt.Errorf("failed to write synthetic frame: %w", err)
		}
	}
	return nil
}
