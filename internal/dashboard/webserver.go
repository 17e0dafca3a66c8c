// Package dashboard serves the interactive analysis UI: go-echarts chart
// endpoints over the reconstructed laps, a JSON API, and the composite
// dashboard page with the reference track overlay.
package dashboard

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gridline-data/lap.report/internal/db"
	"github.com/gridline-data/lap.report/internal/httputil"
	"github.com/gridline-data/lap.report/internal/laps"
	"github.com/gridline-data/lap.report/internal/telemetry"
)

// Analysis bundles everything the dashboard serves for one imported session.
// Summaries hold the laps that passed the validity window, fastest first;
// Reference is the lap the comparison charts measure against.
type Analysis struct {
	SourcePath string
	Laps       map[telemetry.LapKey][]telemetry.ReconstructedSample
	Summaries  []laps.Summary
	Reference  telemetry.LapKey
	GridStep   float64
}

// WebServer handles the HTTP interface for session analysis.
type WebServer struct {
	address  string
	analysis *Analysis
	db       *db.DB
	server   *http.Server
}

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address  string
	Analysis *Analysis
	DB       *db.DB
}

// NewWebServer creates a new web server with the provided configuration.
func NewWebServer(config WebServerConfig) *WebServer {
	ws := &WebServer{
		address:  config.Address,
		analysis: config.Analysis,
		db:       config.DB,
	}

	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: httputil.LoggingMiddleware(ws.setupRoutes()),
	}

	return ws
}

// Start begins the HTTP server in a goroutine and handles graceful shutdown.
func (ws *WebServer) Start(ctx context.Context) error {
	go func() {
		log.Printf("Starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}

	log.Printf("HTTP server routine stopped")
	return nil
}

// setupRoutes configures the HTTP routes and handlers.
func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/", ws.handleDashboard)
	mux.HandleFunc("/charts/speed", ws.handleSpeedChart)
	mux.HandleFunc("/charts/inputs", ws.handleInputsChart)
	mux.HandleFunc("/charts/map", ws.handleMapChart)
	mux.HandleFunc("/charts/friction", ws.handleFrictionChart)
	mux.HandleFunc("/charts/delta", ws.handleDeltaChart)
	mux.HandleFunc("/overlay/track.svg", ws.handleTrackOverlay)
	mux.HandleFunc("/api/laps", ws.handleAPILaps)
	mux.HandleFunc("/api/sessions", ws.handleAPISessions)
	mux.HandleFunc("/api/health", ws.handleHealth)

	return mux
}

// lapFromQuery resolves a (vehicle, lap) pair from query parameters, falling
// back to the given default when the parameters are absent. Explicitly named
// laps that don't exist are an error.
func (ws *WebServer) lapFromQuery(r *http.Request, vehicleParam, lapParam string, fallback telemetry.LapKey) (telemetry.LapKey, []telemetry.ReconstructedSample, error) {
	key := fallback

	if v := r.URL.Query().Get(vehicleParam); v != "" {
		key.Vehicle = v
	}
	if l := r.URL.Query().Get(lapParam); l != "" {
		lap, err := strconv.Atoi(l)
		if err != nil {
			return key, nil, fmt.Errorf("invalid %s parameter %q", lapParam, l)
		}
		key.Lap = lap
	}

	samples, ok := ws.analysis.Laps[key]
	if !ok {
		return key, nil, fmt.Errorf("no lap %d for vehicle %q", key.Lap, key.Vehicle)
	}
	return key, samples, nil
}

// handleAPILaps returns the lap summaries for the loaded session.
func (ws *WebServer) handleAPILaps(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, ws.analysis.Summaries)
}

// handleAPISessions lists previously imported sessions from the store.
func (ws *WebServer) handleAPISessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if ws.db == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no session store configured")
		return
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}

	sessions, err := ws.db.ListSessions(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("list sessions: %v", err))
		return
	}
	if sessions == nil {
		sessions = []db.Session{}
	}
	httputil.WriteJSONOK(w, sessions)
}

// handleHealth handles the health check endpoint.
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "lap-report", "timestamp": "%s"}`, time.Now().UTC().Format(time.RFC3339))
}
