package server

import (
	"fmt"
	"net/http"
)

// statusPage serves GET / (spec §6: "Status page (informational HTML)").
func (s *Server) statusPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!doctype html>
<html><head><title>isocode</title></head>
<body>
<h1>isocode agent runtime</h1>
<p>Local agentic coding assistant server. See <code>GET /health</code> and <code>GET /models</code>.</p>
</body></html>`)
}
