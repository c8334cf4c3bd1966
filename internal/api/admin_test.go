package api

import (
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/banshee-data/gamma.mca/internal/testutil"
)

func TestAttachAdminRoutes_Console(t *testing.T) {
	s, _ := setupTestServer(t, nil)

	w := serve(s, testutil.LocalHostRequest(http.MethodGet, "/debug/console", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "hello device") {
		t.Errorf("console page missing console text: %s", body)
	}
	if !strings.Contains(body, "send-command-api") {
		t.Error("console page missing command form")
	}
}

func TestAttachAdminRoutes_SendCommandAPI(t *testing.T) {
	cmd := &fakeCommander{}
	s, _ := setupTestServer(t, cmd)

	tests := []struct {
		name           string
		method         string
		form           url.Values
		expectedStatus int
	}{
		{"valid POST with command", http.MethodPost, url.Values{"command": {"-cal"}}, http.StatusOK},
		{"POST with whitespace-only command", http.MethodPost, url.Values{"command": {"   "}}, http.StatusBadRequest},
		{"POST without command parameter", http.MethodPost, url.Values{}, http.StatusBadRequest},
		{"GET method not allowed", http.MethodGet, nil, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(s, formRequest(tt.method, "/debug/send-command-api", tt.form))
			testutil.AssertStatusCode(t, w.Code, tt.expectedStatus)
		})
	}
	if len(cmd.sent) != 1 || cmd.sent[0] != "-cal" {
		t.Errorf("sent = %q", cmd.sent)
	}
}

func TestAttachAdminRoutes_NoInstrument(t *testing.T) {
	s, _ := setupTestServer(t, nil)
	w := serve(s, formRequest(http.MethodPost, "/debug/send-command-api", url.Values{"command": {"-inf"}}))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}
