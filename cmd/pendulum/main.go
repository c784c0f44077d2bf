// Command pendulum records a damped pendulum through a marker tracker and
// reports its oscillation parameters when the run is stopped.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/pendulum.report/internal/api"
	"github.com/banshee-data/pendulum.report/internal/config"
	"github.com/banshee-data/pendulum.report/internal/db"
	"github.com/banshee-data/pendulum.report/internal/feed"
	"github.com/banshee-data/pendulum.report/internal/session"
	"github.com/banshee-data/pendulum.report/internal/timeutil"
	"github.com/banshee-data/pendulum.report/internal/version"
)

var (
	configPath  = flag.String("config", "", "Experiment config JSON (defaults apply when empty)")
	sourceFlag  = flag.String("source", "", "Override the sample source: serial, mqtt or synthetic")
	listen      = flag.String("listen", ":8080", "Listen address, empty disables the HTTP server")
	apiOnly     = flag.Bool("api-only", false, "Serve stored runs without opening a tracker")
	dbPathFlag  = flag.String("db-path", "", "Override the sqlite database path")
	plotDirFlag = flag.String("plot-dir", "", "Override the directory run plots are written to")
	frames      = flag.Int("frames", 0, "Stop after this many synthetic frames (0 runs until interrupted)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func loadConfig(path string) (*config.ExperimentConfig, error) {
	if path == "" {
		return config.EmptyExperimentConfig(), nil
	}
	return config.LoadExperimentConfig(path)
}

// resolveSource applies the -source override and validates it.
func resolveSource(cfg *config.ExperimentConfig, override string) (string, error) {
	if override == "" {
		return cfg.GetSource(), nil
	}
	switch override {
	case config.SourceSerial, config.SourceMQTT, config.SourceSynthetic:
		return override, nil
	default:
		return "", fmt.Errorf("unknown source %q", override)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println("pendulum", version.String())
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	source, err := resolveSource(cfg, *sourceFlag)
	if err != nil {
		log.Fatal(err)
	}

	st, err := openStation(cfg, source, *apiOnly)
	if err != nil {
		log.Fatalf("failed to open %s source: %v", source, err)
	}
	defer st.src.Close()

	store, err := db.NewDB(firstNonEmpty(*dbPathFlag, cfg.GetDBPath()))
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	sess, err := session.New(session.ConfigFromExperiment(cfg))
	if err != nil {
		log.Fatalf("invalid session configuration: %v", err)
	}

	server := api.NewServer(api.Options{
		DB:        store,
		Config:    cfg,
		Commander: st.commander,
		Source:    st.name,
		Version:   version.Version,
	})
	if !*apiOnly {
		server.SetSession(sess)
	}

	// Create a wait group for the HTTP server, feed, and synthetic routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	started := time.Now()

	// The monitor outlives ctx so the result can still be published on the
	// source after the feed has stopped.
	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		if err := st.src.Monitor(monitorCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor %s source: %v", st.name, err)
		}
		log.Print("monitor routine terminated")
	}()

	if !*apiOnly {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := feed.Pump(ctx, st.src, sess, func(line string, err error) {
				log.Printf("skipping line %q: %v", line, err)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("feed routine failed: %v", err)
			}
			log.Print("feed routine terminated")
		}()
	}

	if st.synthetic != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer st.synthOut.Close()
			err := st.synthetic.Run(ctx, st.synthOut, timeutil.RealClock{}, *frames)
			if err == nil {
				log.Printf("synthetic run complete after %d frames", st.synthetic.Frame())
				// let the pump drain the last lines before finishing
				time.Sleep(100 * time.Millisecond)
				stop()
			} else if !errors.Is(err, context.Canceled) {
				log.Printf("synthetic routine failed: %v", err)
			}
		}()
	}

	// HTTP server goroutine
	if *listen != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()

			mux := server.ServeMux()
			if st.admin != nil {
				st.admin.AttachAdminRoutes(mux)
			}
			if err := store.AttachAdminRoutes(mux); err != nil {
				log.Printf("failed to attach database admin routes: %v", err)
			}

			srv := &http.Server{
				Addr:    *listen,
				Handler: api.LoggingMiddleware(mux),
			}

			// Start server in a goroutine so it doesn't block
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatalf("failed to start server: %v", err)
				}
			}()

			// Wait for context cancellation to shut down server
			<-ctx.Done()
			log.Println("shutting down HTTP server...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Printf("HTTP server shutdown error: %v", err)
				// Force close the server if graceful shutdown fails
				if err := srv.Close(); err != nil {
					log.Printf("HTTP server force close error: %v", err)
				}
			}

			log.Printf("HTTP server routine stopped")
		}()
	}

	// Wait for all goroutines to finish
	wg.Wait()

	if !*apiOnly {
		plotDir := firstNonEmpty(*plotDirFlag, cfg.GetPlotDir())
		if _, err := completeRun(sess, st, cfg, store, plotDir, started, os.Stdout); err != nil {
			log.Printf("failed to complete run: %v", err)
		}
	}
	stopMonitor()
	<-monitorDone
	log.Printf("Graceful shutdown complete")
}
