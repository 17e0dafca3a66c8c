package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gridline-data/lap.report/internal/db"
	"github.com/gridline-data/lap.report/internal/laps"
	"github.com/gridline-data/lap.report/internal/telemetry"
)

// testAnalysis builds a two-lap session with enough geometry for every chart.
func testAnalysis() *Analysis {
	mkLap := func(lap int, speed float64) []telemetry.ReconstructedSample {
		var samples []telemetry.ReconstructedSample
		for i := 0; i < 200; i++ {
			t := float64(i) * 0.1
			samples = append(samples, telemetry.ReconstructedSample{
				Sample: telemetry.Sample{
					Vehicle: "gr86-01", Lap: lap, Elapsed: t,
					Speed: speed, AccLat: 3, AccLong: -1, Throttle: 70, BrakeFront: 5,
				},
				Distance: speed * t,
				X:        speed * t,
				Y:        float64(i % 7),
			})
		}
		return samples
	}

	k1 := telemetry.LapKey{Vehicle: "gr86-01", Lap: 1}
	k2 := telemetry.LapKey{Vehicle: "gr86-01", Lap: 2}
	return &Analysis{
		SourcePath: "/data/session.csv",
		Laps: map[telemetry.LapKey][]telemetry.ReconstructedSample{
			k1: mkLap(1, 50),
			k2: mkLap(2, 45),
		},
		Summaries: []laps.Summary{
			{Vehicle: "gr86-01", Lap: 1, LapTime: 19.9},
			{Vehicle: "gr86-01", Lap: 2, LapTime: 19.9},
		},
		Reference: k1,
		GridStep:  10,
	}
}

func testServer(t *testing.T, database *db.DB) *WebServer {
	t.Helper()
	return NewWebServer(WebServerConfig{
		Address:  "127.0.0.1:0",
		Analysis: testAnalysis(),
		DB:       database,
	})
}

func get(ws *WebServer, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ws.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHandleDashboard(t *testing.T) {
	rec := get(testServer(t, nil), "/?vehicle=gr86-01&lap=2")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, frag := range []string{"/charts/map", "/charts/speed", "/charts/delta", "/overlay/track.svg", "lap=2"} {
		if !strings.Contains(body, frag) {
			t.Errorf("dashboard missing %q", frag)
		}
	}
}

func TestHandleDashboardUnknownPath(t *testing.T) {
	if rec := get(testServer(t, nil), "/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestChartEndpoints(t *testing.T) {
	ws := testServer(t, nil)

	paths := []string{
		"/charts/map",
		"/charts/map?vehicle=gr86-01&lap=2&max_points=150",
		"/charts/friction",
		"/charts/speed?lap=2",
		"/charts/inputs",
		"/charts/delta?lap=2",
	}
	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			rec := get(ws, path)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
				t.Errorf("Content-Type = %q, want text/html", ct)
			}
			if !strings.Contains(rec.Body.String(), "echarts") {
				t.Error("chart page does not reference echarts")
			}
		})
	}
}

func TestChartUnknownLap(t *testing.T) {
	ws := testServer(t, nil)

	for _, path := range []string{"/charts/map?lap=99", "/charts/delta?lap=banana"} {
		if rec := get(ws, path); rec.Code != http.StatusNotFound {
			t.Errorf("%s status = %d, want 404", path, rec.Code)
		}
	}
}

func TestHandleTrackOverlay(t *testing.T) {
	rec := get(testServer(t, nil), "/overlay/track.svg")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/svg+xml" {
		t.Errorf("Content-Type = %q, want image/svg+xml", ct)
	}
	if !strings.Contains(rec.Body.String(), "<svg") {
		t.Error("overlay is not an SVG document")
	}
}

func TestHandleAPILaps(t *testing.T) {
	rec := get(testServer(t, nil), "/api/laps")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var summaries []laps.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &summaries); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(summaries) != 2 {
		t.Errorf("got %d summaries, want 2", len(summaries))
	}
}

func TestHandleAPISessions(t *testing.T) {
	// Without a store the endpoint degrades to 503.
	if rec := get(testServer(t, nil), "/api/sessions"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status without db = %d, want 503", rec.Code)
	}

	database, err := db.NewDB(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer database.Close()

	rec := get(testServer(t, database), "/api/sessions")
	if rec.Code != http.StatusOK {
		t.Fatalf("status with db = %d, want 200", rec.Code)
	}
	var sessions []db.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &sessions); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
}

func TestHandleHealth(t *testing.T) {
	rec := get(testServer(t, nil), "/api/health")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q, want ok", body["status"])
	}
}
