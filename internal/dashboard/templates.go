package dashboard

import (
	_ "embed"
	"fmt"
	"html"
	"net/http"
	"net/url"
)

//go:embed track_overlay.svg
var trackOverlaySVG []byte

// handleTrackOverlay serves the static reference track layout.
func (ws *WebServer) handleTrackOverlay(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "image/svg+xml")
	_, _ = w.Write(trackOverlaySVG)
}

// handleDashboard renders the composite page with iframes to the charts and
// the reference overlay next to the reconstructed map.
func (ws *WebServer) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	qs := ""
	q := url.Values{}
	for _, param := range []string{"vehicle", "lap", "ref_vehicle", "ref_lap"} {
		if v := r.URL.Query().Get(param); v != "" {
			q.Set(param, v)
		}
	}
	if len(q) > 0 {
		qs = "?" + q.Encode()
	}
	safeQs := html.EscapeString(qs)
	safeSource := html.EscapeString(ws.analysis.SourcePath)

	doc := fmt.Sprintf(dashboardHTML, safeSource, safeQs, safeQs, safeQs, safeQs, safeQs)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(doc))
}

const dashboardHTML = `<!DOCTYPE html>
<html>
<head>
<title>Lap Report</title>
<style>
  body { background: #111; color: #ddd; font-family: sans-serif; margin: 16px; }
  h1 { font-size: 1.2em; }
  .row { display: flex; flex-wrap: wrap; gap: 16px; }
  .panel { background: #1a1a1a; border: 1px solid #333; padding: 4px; }
  iframe { border: 0; background: #1a1a1a; }
  img.overlay { width: 900px; height: 900px; object-fit: contain; background: #1a1a1a; }
  .links a { color: #6ece58; margin-right: 12px; }
</style>
</head>
<body>
<h1>Lap Report &mdash; %s</h1>
<div class="links">
  <a href="/api/laps">laps</a>
  <a href="/api/sessions">sessions</a>
  <a href="/api/health">health</a>
</div>
<div class="row">
  <div class="panel"><iframe src="/charts/map%s" width="920" height="920"></iframe></div>
  <div class="panel"><img class="overlay" src="/overlay/track.svg" alt="reference track layout"></div>
</div>
<div class="row">
  <div class="panel"><iframe src="/charts/speed%s" width="1220" height="520"></iframe></div>
</div>
<div class="row">
  <div class="panel"><iframe src="/charts/delta%s" width="1220" height="520"></iframe></div>
</div>
<div class="row">
  <div class="panel"><iframe src="/charts/inputs%s" width="1220" height="520"></iframe></div>
  <div class="panel"><iframe src="/charts/friction%s" width="920" height="920"></iframe></div>
</div>
</body>
</html>
`
