package oscillation

import (
	"bytes"
	"fmt"
	"io"
	"text/tabwriter"
)

const reportRule = "============================"

// WriteReport writes p as a human readable block, one field per line with
// its unit. Optional values that were not computed print as zero so the
// block always has the same shape.
func WriteReport(w io.Writer, p Parameters) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	rows := []struct {
		label string
		value float64
		unit  string
	}{
		{"Amplitude (A)", p.Amplitude, "m"},
		{"Angular frequency ω", p.AngularFrequency, "rad/s"},
		{"Damping coefficient (b)", p.Damping, "1/s"},
		{"Quality factor (Q)", p.QualityFactor, ""},
		{"Experimental period", p.ExperimentalPeriod, "s"},
		{"Theoretical period", p.TheoreticalPeriod, "s"},
		{"Relative error", p.RelativeError, "%"},
		{"Initial position", p.InitialPosition, "m"},
	}

	if _, err := fmt.Fprintf(tw, "\n=== Pendulum Parameters ===\n"); err != nil {
		return err
	}
	for _, r := range rows {
		line := fmt.Sprintf("%s\t: %.6g", r.label, r.value)
		if r.unit != "" {
			line += " " + r.unit
		}
		if _, err := fmt.Fprintln(tw, line); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(tw, reportRule); err != nil {
		return err
	}
	return tw.Flush()
}

// FormatParameters returns the WriteReport output as a string.
func FormatParameters(p Parameters) string {
	var buf bytes.Buffer
	// writes to a bytes.Buffer cannot fail
	_ = WriteReport(&buf, p)
	return buf.String()
}
