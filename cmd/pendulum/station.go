package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/banshee-data/pendulum.report/internal/config"
	"github.com/banshee-data/pendulum.report/internal/db"
	"github.com/banshee-data/pendulum.report/internal/feed"
	"github.com/banshee-data/pendulum.report/internal/oscillation"
	"github.com/banshee-data/pendulum.report/internal/plotting"
	"github.com/banshee-data/pendulum.report/internal/serialmux"
	"github.com/banshee-data/pendulum.report/internal/session"
)

// station bundles the line source chosen at start-up with the optional
// capabilities it offers.
type station struct {
	name string
	src  feed.LineSource

	// commander and admin are set for serial style sources.
	commander interface{ SendCommand(string) error }
	admin     interface{ AttachAdminRoutes(*http.ServeMux) }

	// publisher is set when results should go back to the broker.
	publisher interface {
		PublishJSON(suffix string, v any) error
	}

	// synthetic feeds synthOut, the write end of the pipe mux.
	synthetic *feed.Synthetic
	synthOut  io.WriteCloser
}

func openStation(cfg *config.ExperimentConfig, source string, disabled bool) (*station, error) {
	if disabled {
		m := serialmux.NewDisabledSerialMux()
		return &station{name: "disabled", src: m, commander: m, admin: m}, nil
	}

	switch source {
	case config.SourceSerial:
		sc := cfg.GetSerial()
		m, err := serialmux.NewRealSerialMux(sc.Port, serialmux.OptionsFromConfig(sc))
		if err != nil {
			return nil, fmt.Errorf("failed to open serial port %s: %w", sc.Port, err)
		}
		return &station{name: source, src: m, commander: m, admin: m}, nil

	case config.SourceMQTT:
		mc := cfg.GetMQTT()
		src := feed.NewMQTTSource(mc.Broker, mc.ClientID, mc.Topic, mc.QoS)
		return &station{name: source, src: src, publisher: src}, nil

	case config.SourceSynthetic:
		p := feed.DefaultSyntheticParams()
		p.LengthM = cfg.GetPendulumLengthM()
		p.FrameRate = cfg.GetFrameRate()
		p.PixelsPerMeter = cfg.GetPixelsPerMeter()
		sim, err := feed.NewSynthetic(p)
		if err != nil {
			return nil, err
		}
		m, w := serialmux.NewPipeSerialMux()
		return &station{name: source, src: m, commander: m, admin: m, synthetic: sim, synthOut: w}, nil

	default:
		return nil, fmt.Errorf("unknown source %q", source)
	}
}

// completeRun finishes sess, prints the parameter report to out and stores
// the run. Storage and plot failures are logged, not returned, so the
// report is never lost to them.
func completeRun(sess *session.Session, st *station, cfg *config.ExperimentConfig, store *db.DB, plotDir string, started time.Time, out io.Writer) (*db.Run, error) {
	res := sess.Finish()

	if res.Warning != "" {
		fmt.Fprintf(out, "Insufficient data for estimation: %s\n", res.Warning)
	} else if err := oscillation.WriteReport(out, res.Params); err != nil {
		return nil, fmt.Errorf("failed to write report: %w", err)
	}

	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	run := &db.Run{
		StartedAt:   started,
		FinishedAt:  time.Now(),
		Source:      st.name,
		Config:      cfgJSON,
		Geometry:    res.Geometry,
		Params:      res.Params,
		Diagnostics: res.Diagnostics,
		Warning:     res.Warning,
		Frames:      res.Frames,
		LostFrames:  res.LostFrames,
		Samples:     res.Samples,
		Candidates:  res.Candidates,
		Peaks:       res.Peaks,
	}

	if store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := store.RecordRun(ctx, run); err != nil {
			log.Printf("failed to record run: %v", err)
		} else {
			log.Printf("recorded run %s (%d samples, %d peaks)", run.ID, len(run.Samples), len(run.Peaks))
		}
	}

	if plotDir != "" && len(res.Samples) > 0 {
		if err := savePlot(plotDir, run); err != nil {
			log.Printf("failed to save plot: %v", err)
		}
	}

	if st.publisher != nil {
		if err := st.publisher.PublishJSON("result", res); err != nil {
			log.Printf("failed to publish result: %v", err)
		}
	}
	return run, nil
}

func savePlot(dir string, run *db.Run) error {
	id := run.ID
	if id == "" {
		id = run.StartedAt.UTC().Format("20060102T150405Z")
	}
	path, err := plotting.RunPath(dir, id)
	if err != nil {
		return err
	}
	err = plotting.SavePNG(path, plotting.Run{
		Title:       "Run " + id,
		Samples:     run.Samples,
		Candidates:  run.Candidates,
		Peaks:       run.Peaks,
		Equilibrium: run.Geometry.Equilibrium,
		Damping:     run.Params.Damping,
	})
	if err != nil {
		return err
	}
	log.Printf("saved plot %s", path)
	return nil
}
