// Package api serves the HTTP interface of the pendulum station: stored
// runs, charts, the live acquisition state and a websocket feed of samples
// and peaks as they are detected.
package api

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/pendulum.report/internal/config"
	"github.com/banshee-data/pendulum.report/internal/db"
	"github.com/banshee-data/pendulum.report/internal/monitoring"
	"github.com/banshee-data/pendulum.report/internal/session"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Commander forwards operator commands to the tracker.
type Commander interface {
	SendCommand(string) error
}

// Options configures a Server. Every field except DB may be nil or empty.
type Options struct {
	DB        *db.DB
	Config    *config.ExperimentConfig
	Commander Commander
	Hub       *Hub
	Source    string
	Version   string
}

type Server struct {
	db        *db.DB
	cfg       *config.ExperimentConfig
	commander Commander
	hub       *Hub
	source    string
	version   string
	startedAt time.Time

	mu      sync.Mutex
	session *session.Session
}

func NewServer(o Options) *Server {
	cfg := o.Config
	if cfg == nil {
		cfg = config.EmptyExperimentConfig()
	}
	hub := o.Hub
	if hub == nil {
		hub = NewHub()
	}
	return &Server{
		db:        o.DB,
		cfg:       cfg,
		commander: o.Commander,
		hub:       hub,
		source:    o.Source,
		version:   o.Version,
		startedAt: time.Now(),
	}
}

// SetSession makes s the session reported by /api/status and streamed on
// /api/live.
func (s *Server) SetSession(sess *session.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = sess
	if sess != nil {
		sess.OnEvent(s.hub.Publish)
	}
}

func (s *Server) currentSession() *session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack passes through to the underlying writer for websocket upgrades.
func (lrw *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := lrw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	lrw.statusCode = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.showStatus)
	mux.HandleFunc("GET /api/config", s.showConfig)
	mux.HandleFunc("POST /api/command", s.sendCommandHandler)
	mux.HandleFunc("GET /api/live", s.handleLive)
	mux.HandleFunc("GET /api/runs", s.listRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.getRun)
	mux.HandleFunc("DELETE /api/runs/{id}", s.deleteRun)
	mux.HandleFunc("PUT /api/runs/{id}/notes", s.setRunNotes)
	mux.HandleFunc("GET /api/runs/{id}/chart", s.runChart)
	mux.HandleFunc("GET /api/runs/{id}/plot.png", s.runPlot)
	return mux
}

func (s *Server) sendCommandHandler(w http.ResponseWriter, r *http.Request) {
	if s.commander == nil {
		http.Error(w, "No tracker attached", http.StatusServiceUnavailable)
		return
	}
	command := r.FormValue("command")
	if command == "" {
		http.Error(w, "Missing command", http.StatusBadRequest)
		return
	}
	if err := s.commander.SendCommand(command); err != nil {
		http.Error(w, "Failed to send command", http.StatusInternalServerError)
		return
	}
	io.WriteString(w, "Command sent successfully")
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		monitoring.Logf("api: failed to write response: %v", err)
	}
}

type statusResponse struct {
	Source        string            `json:"source"`
	Version       string            `json:"version"`
	UptimeSeconds float64           `json:"uptime_s"`
	LiveClients   int               `json:"live_clients"`
	Session       *session.Snapshot `json:"session,omitempty"`
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Source:        s.source,
		Version:       s.version,
		UptimeSeconds: time.Since(s.startedAt).Seconds(),
		LiveClients:   s.hub.Clients(),
	}
	if sess := s.currentSession(); sess != nil {
		snap := sess.Snapshot()
		resp.Session = &snap
	}
	s.writeJSON(w, resp)
}

// configResponse reports the effective settings, defaults included.
type configResponse struct {
	PendulumLengthM   float64             `json:"pendulum_length_m"`
	PixelsPerMeter    float64             `json:"pixels_per_meter"`
	PositionScale     float64             `json:"position_scale"`
	FrameRate         float64             `json:"frame_rate"`
	WarmupFrames      int                 `json:"warmup_frames"`
	MovementTolerance float64             `json:"movement_tolerance"`
	MinPeakGap        string              `json:"min_peak_gap"`
	Source            string              `json:"source"`
	Serial            config.SerialConfig `json:"serial"`
	MQTT              config.MQTTConfig   `json:"mqtt"`
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, configResponse{
		PendulumLengthM:   s.cfg.GetPendulumLengthM(),
		PixelsPerMeter:    s.cfg.GetPixelsPerMeter(),
		PositionScale:     s.cfg.GetPositionScale(),
		FrameRate:         s.cfg.GetFrameRate(),
		WarmupFrames:      s.cfg.GetWarmupFrames(),
		MovementTolerance: s.cfg.GetMovementTolerance(),
		MinPeakGap:        s.cfg.GetMinPeakGap().String(),
		Source:            s.cfg.GetSource(),
		Serial:            s.cfg.GetSerial(),
		MQTT:              s.cfg.GetMQTT(),
	})
}
