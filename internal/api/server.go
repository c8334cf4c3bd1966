// Package api serves the live recording state over HTTP: status, spectra,
// console text, calibration, serial commands and Prometheus metrics.
package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/banshee-data/gamma.mca/internal/calibration"
	"github.com/banshee-data/gamma.mca/internal/httputil"
	"github.com/banshee-data/gamma.mca/internal/monitoring"
	"github.com/banshee-data/gamma.mca/internal/session"
	"github.com/banshee-data/gamma.mca/internal/spectrum"
	"github.com/banshee-data/gamma.mca/internal/version"
)

// maxRequestBody bounds command and calibration request bodies.
const maxRequestBody = 64 << 10

// Commander sends a command line to the instrument.
type Commander interface {
	SendCommand(cmd string) error
}

// Server exposes a recorder over HTTP.
type Server struct {
	rec *session.Recorder
	cmd Commander

	calMu sync.Mutex
	cal   calibration.Calibration
}

// NewServer returns a server for rec. cmd may be nil when no instrument is
// attached; command endpoints then answer 503.
func NewServer(rec *session.Recorder, cmd Commander) *Server {
	return &Server{rec: rec, cmd: cmd}
}

// SetCalibration replaces the calibration served by /api/calibration.
func (s *Server) SetCalibration(c calibration.Calibration) {
	s.calMu.Lock()
	defer s.calMu.Unlock()
	s.cal = c
}

// Calibration returns the current calibration.
func (s *Server) Calibration() calibration.Calibration {
	s.calMu.Lock()
	defer s.calMu.Unlock()
	return s.cal
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

var (
	okStatus       = color.New(color.FgGreen, color.Bold).SprintFunc()
	redirectStatus = color.New(color.FgYellow).SprintFunc()
	errorStatus    = color.New(color.FgRed, color.Bold).SprintFunc()
	pathColor      = color.New(color.FgCyan).SprintFunc()
)

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return okStatus(statusCode)
	case statusCode >= 300 && statusCode < 400:
		return redirectStatus(statusCode)
	case statusCode >= 400:
		return errorStatus(statusCode)
	default:
		return fmt.Sprint(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			pathColor(r.RequestURI),
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/spectrum", s.showSpectrum)
	mux.HandleFunc("/api/console", s.console)
	mux.HandleFunc("/api/command", s.sendCommand)
	mux.HandleFunc("/api/calibration", s.calibration)
	mux.Handle("/metrics", promhttp.Handler())
	s.AttachAdminRoutes(mux)
	return mux
}

type statusResponse struct {
	SessionID       string              `json:"session_id,omitempty"`
	Recording       bool                `json:"recording"`
	Kind            string              `json:"kind"`
	ElapsedSeconds  float64             `json:"elapsed_seconds"`
	Rate            session.RateSummary `json:"rate"`
	RelativeStdDev  float64             `json:"relative_std_dev"`
	TotalData       float64             `json:"total_data"`
	TotalBackground float64             `json:"total_background"`
	Consistent      bool                `json:"consistent"`
	UpdatedAt       time.Time           `json:"updated_at"`
	Version         string              `json:"version"`
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	snap := s.rec.Snapshot()
	httputil.WriteJSONOK(w, statusResponse{
		SessionID:       snap.SessionID,
		Recording:       snap.Recording,
		Kind:            snap.Kind.String(),
		ElapsedSeconds:  snap.Elapsed.Seconds(),
		Rate:            snap.Rate,
		RelativeStdDev:  snap.Rate.RelativeStdDev(),
		TotalData:       snap.TotalData,
		TotalBackground: snap.TotalBackground,
		Consistent:      snap.Consistent,
		UpdatedAt:       snap.UpdatedAt,
		Version:         version.Version,
	})
}

type spectrumResponse struct {
	Kind     string             `json:"kind"`
	Channels int                `json:"channels"`
	Total    float64            `json:"total"`
	Counts   spectrum.Histogram `json:"counts"`
	Cps      []float64          `json:"cps"`
}

func (s *Server) showSpectrum(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	kind, err := spectrum.ParseKind(r.URL.Query().Get("kind"))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	snap := s.rec.Snapshot()
	h, cps := snap.Data, snap.DataCps
	if kind == spectrum.Background {
		h, cps = snap.Background, snap.BackgroundCps
	}

	switch format := r.URL.Query().Get("format"); format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", kind.String()+".csv"))
		if err := spectrum.WriteCSV(w, h); err != nil {
			monitoring.Logf("api: failed to write %s spectrum csv: %v", kind, err)
		}
	case "", "json":
		if h == nil {
			h = spectrum.Histogram{}
		}
		if cps == nil {
			cps = []float64{}
		}
		httputil.WriteJSONOK(w, spectrumResponse{
			Kind:     kind.String(),
			Channels: len(h),
			Total:    h.Total(),
			Counts:   h,
			Cps:      cps,
		})
	default:
		httputil.BadRequest(w, fmt.Sprintf("unknown format %q", format))
	}
}

func (s *Server) console(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, s.rec.Console())
	case http.MethodDelete:
		s.rec.ClearConsole()
		w.WriteHeader(http.StatusNoContent)
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) sendCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.cmd == nil {
		httputil.ServiceUnavailable(w, "no instrument attached")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	command := strings.TrimSpace(r.FormValue("command"))
	if command == "" {
		httputil.BadRequest(w, "missing command")
		return
	}
	if err := s.cmd.SendCommand(command); err != nil {
		monitoring.Logf("api: send command %q: %v", command, err)
		httputil.InternalServerError(w, "failed to send command")
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"sent": command})
}

type calibrationResponse struct {
	Calibration calibration.Calibration `json:"calibration"`
	Locked      bool                    `json:"locked"`
	Inputs      calibration.Inputs      `json:"inputs"`
}

func (s *Server) calibration(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		data, err := calibration.Export(s.Calibration())
		if err != nil {
			httputil.InternalServerError(w, "failed to export calibration")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="calibration.json"`)
		w.Write(data)
	case http.MethodPut, http.MethodPost:
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
		if err != nil {
			httputil.BadRequest(w, "failed to read request body")
			return
		}
		cal, inputs, err := calibration.Import(bytes.TrimSpace(body))
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		s.SetCalibration(cal)
		httputil.WriteJSONOK(w, calibrationResponse{
			Calibration: cal,
			Locked:      cal.Imported || cal.Coeff.Locked(),
			Inputs:      inputs,
		})
	default:
		httputil.MethodNotAllowed(w)
	}
}
