package plotting

import (
	"bytes"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pendulum.report/internal/oscillation"
)

func testRun() Run {
	var samples []oscillation.Sample
	for i := 0; i < 300; i++ {
		t := float64(i) / 30
		samples = append(samples, oscillation.Sample{Time: t, Position: 64 + 15*math.Exp(-0.1*t)*math.Cos(4.43*t)})
	}
	return Run{
		Title:       "test run",
		Samples:     samples,
		Candidates:  []oscillation.Peak{samples[0], samples[1], samples[21]},
		Peaks:       []oscillation.Peak{samples[0], samples[21]},
		Equilibrium: 64,
		Damping:     0.1,
	}
}

func TestWritePNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePNG(&buf, testRun()))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Greater(t, img.Bounds().Dx(), img.Bounds().Dy())
}

func TestSavePNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.png")
	require.NoError(t, SavePNG(path, testRun()))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestNew_NoSamples(t *testing.T) {
	_, err := New(Run{})
	assert.Error(t, err)
	assert.Error(t, WritePNG(&bytes.Buffer{}, Run{}))
}

func TestNew_TraceOnly(t *testing.T) {
	r := testRun()
	r.Candidates, r.Peaks, r.Damping = nil, nil, 0
	r.Title = ""

	p, err := New(r)
	require.NoError(t, err)
	assert.Equal(t, "Pendulum", p.Title.Text)
}
