package api

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"

	"tailscale.com/tsweb"

	"github.com/banshee-data/gamma.mca/internal/version"
)

var consoleTemplate = template.Must(template.New("console").Parse(`<!DOCTYPE html>
<html>
<head><title>gammamca console</title></head>
<body>
<h1>Serial console</h1>
<p>{{.Version}} · session {{if .SessionID}}{{.SessionID}}{{else}}none{{end}} · {{if .Recording}}recording{{else}}idle{{end}}</p>
<form method="post" action="send-command-api">
  <input type="text" name="command" size="40" autofocus>
  <input type="submit" value="Send">
</form>
<pre>{{.Console}}</pre>
</body>
</html>
`))

type consolePage struct {
	Version   string
	SessionID string
	Recording bool
	Console   string
}

// AttachAdminRoutes attaches admin debugging endpoints to the given HTTP
// mux served at /debug/. These routes are accessible only over
// localhost/via Tailscale and are not publicly accessible.
func (s *Server) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("console", "serial console tail and command form", func(w http.ResponseWriter, r *http.Request) {
		snap := s.rec.Snapshot()
		buf := bytes.NewBuffer(nil)
		err := consoleTemplate.Execute(buf, consolePage{
			Version:   version.Version,
			SessionID: snap.SessionID,
			Recording: snap.Recording,
			Console:   s.rec.Console(),
		})
		if err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.Copy(w, buf)
	})

	debug.HandleSilentFunc("send-command-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.cmd == nil {
			http.Error(w, "No instrument attached", http.StatusServiceUnavailable)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			http.Error(w, "Missing command", http.StatusBadRequest)
			return
		}
		if err := s.cmd.SendCommand(command); err != nil {
			http.Error(w, "Failed to write command", http.StatusInternalServerError)
			return
		}
		io.WriteString(w, fmt.Sprintf("Wrote command %q to serial port", command))
	})
}
