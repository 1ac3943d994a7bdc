package recorder

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
)

func clientFor(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatal(err)
	}
	return NewClient(u.Hostname(), port)
}

func TestStartStopRoundTrip(t *testing.T) {
	var startedApp string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/start_recording":
			var body struct {
				AppName string `json:"app_name"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("bad start body: %v", err)
			}
			startedApp = body.AppName
			w.WriteHeader(http.StatusOK)
		case "/stop_recording":
			json.NewEncoder(w).Encode(map[string]string{
				"video_path": "/videos/notes.mp4",
				"message":    "stopped",
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := clientFor(t, srv)

	if !c.Start("Notes") {
		t.Fatal("expected start to succeed")
	}
	if startedApp != "Notes" {
		t.Errorf("expected app name sent, got %q", startedApp)
	}
	if !c.Recording() {
		t.Error("expected recording flag set")
	}

	path, ok := c.Stop()
	if !ok {
		t.Fatal("expected stop to succeed")
	}
	if path != "/videos/notes.mp4" {
		t.Errorf("expected video path, got %q", path)
	}
	if c.Recording() {
		t.Error("expected recording flag cleared")
	}
}

func TestStartRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"message": "recorder busy"})
	}))
	defer srv.Close()

	c := clientFor(t, srv)
	if c.Start("Notes") {
		t.Error("expected start to report refusal")
	}
	if c.Recording() {
		t.Error("expected recording flag unset after refusal")
	}
}

func TestUnreachableServiceIsNotFatal(t *testing.T) {
	c := NewClient("127.0.0.1", 1) // nothing listens here

	if c.Start("Notes") {
		t.Error("expected start to fail against unreachable service")
	}
	if _, ok := c.Stop(); ok {
		t.Error("expected stop to fail against unreachable service")
	}
	if recording, _ := c.Status(); recording {
		t.Error("expected status false against unreachable service")
	}
}

func TestStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"recording": true,
			"app_name":  "Notes",
		})
	}))
	defer srv.Close()

	c := clientFor(t, srv)
	recording, app := c.Status()
	if !recording || app != "Notes" {
		t.Errorf("expected (true, Notes), got (%v, %q)", recording, app)
	}
}
