// Package feed turns the line protocol spoken by a marker tracker into
// oscillation samples. Lines arrive over a serial port (internal/serialmux),
// an MQTT topic, or the synthetic pendulum used in dev mode.
//
// Accepted line forms:
//
//	412.5                     pixel column of the marker centroid for one frame
//	1.266,41.25               timestamped position (seconds, position units)
//	lost                      frame processed but no marker found
//	{"cx":412.5}              JSON pixel column
//	{"t":1.266,"x":41.25}     JSON timestamped position
//	{"lost":true}             JSON lost frame
//
// Blank lines and lines starting with '#' are ignored.
package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/pendulum.report/internal/oscillation"
)

// ReadingKind classifies a parsed tracker line.
type ReadingKind int

const (
	ReadingUnknown ReadingKind = iota
	// ReadingPixel is a per-frame centroid column that still needs the
	// frame clock and camera scale to become a Sample.
	ReadingPixel
	// ReadingSample already carries time and position.
	ReadingSample
	// ReadingLost is a frame in which the tracker found no marker.
	ReadingLost
)

func (k ReadingKind) String() string {
	switch k {
	case ReadingPixel:
		return "pixel"
	case ReadingSample:
		return "sample"
	case ReadingLost:
		return "lost"
	default:
		return "unknown"
	}
}

// Reading is one parsed tracker line.
type Reading struct {
	Kind   ReadingKind
	PixelX float64
	Sample oscillation.Sample
}

// ErrEmptyLine is returned for blank and comment lines. Callers normally
// skip it silently.
var ErrEmptyLine = errors.New("empty line")

type jsonReading struct {
	CX   *float64 `json:"cx"`
	T    *float64 `json:"t"`
	X    *float64 `json:"x"`
	Lost bool     `json:"lost"`
}

// ParseLine parses one line of tracker output.
func ParseLine(line string) (Reading, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Reading{}, ErrEmptyLine
	}
	if strings.HasPrefix(line, "{") {
		return parseJSON(line)
	}
	if strings.EqualFold(line, "lost") {
		return Reading{Kind: ReadingLost}, nil
	}

	segments := strings.Split(line, ",")
	switch len(segments) {
	case 1:
		cx, err := parseFinite(segments[0])
		if err != nil {
			return Reading{}, fmt.Errorf("failed to parse pixel column: %w", err)
		}
		return Reading{Kind: ReadingPixel, PixelX: cx}, nil
	case 2:
		ts, err := parseFinite(segments[0])
		if err != nil {
			return Reading{}, fmt.Errorf("failed to parse time: %w", err)
		}
		x, err := parseFinite(segments[1])
		if err != nil {
			return Reading{}, fmt.Errorf("failed to parse position: %w", err)
		}
		return Reading{Kind: ReadingSample, Sample: oscillation.Sample{Time: ts, Position: x}}, nil
	default:
		return Reading{}, fmt.Errorf("invalid line %q: expected 1 or 2 comma separated values, got %d", line, len(segments))
	}
}

func parseJSON(line string) (Reading, error) {
	var jr jsonReading
	if err := json.Unmarshal([]byte(line), &jr); err != nil {
		return Reading{}, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	switch {
	case jr.Lost:
		return Reading{Kind: ReadingLost}, nil
	case jr.T != nil && jr.X != nil:
		return Reading{Kind: ReadingSample, Sample: oscillation.Sample{Time: *jr.T, Position: *jr.X}}, nil
	case jr.CX != nil:
		return Reading{Kind: ReadingPixel, PixelX: *jr.CX}, nil
	default:
		return Reading{}, fmt.Errorf("JSON line %q has neither cx nor t/x", line)
	}
}

func parseFinite(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("value %q is not finite", s)
	}
	return v, nil
}

// FormatPixelLine renders a pixel column reading as a JSON line, the form
// the synthetic tracker emits.
func FormatPixelLine(cx float64) string {
	return fmt.Sprintf(`{"cx":%.3f}`, cx) + "\n"
}

// FormatSampleLine renders a timestamped position as a CSV line.
func FormatSampleLine(s oscillation.Sample) string {
	return strconv.FormatFloat(s.Time, 'f', -1, 64) + "," + strconv.FormatFloat(s.Position, 'f', -1, 64) + "\n"
}
