// Package recorder controls the out-of-band video recording service over
// its small HTTP API. Recording is a convenience around the exploration
// run: every failure here is logged and swallowed so the control loop
// never stalls on the recorder.
package recorder

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/probelab-dev/uiscout/pkg/logger"
)

const requestTimeout = 5 * time.Second

// Client talks to the recording service.
type Client struct {
	http    *http.Client
	baseURL string

	recording  bool
	currentApp string
}

// NewClient creates a client for the recorder at host:port.
func NewClient(host string, port int) *Client {
	return &Client{
		http:    &http.Client{Timeout: requestTimeout},
		baseURL: fmt.Sprintf("http://%s:%d", host, port),
	}
}

// Recording reports whether a recording was started through this client.
func (c *Client) Recording() bool {
	return c.recording
}

// Start begins recording for the named app. Returns false when the service
// is unreachable or refuses; the run continues either way.
func (c *Client) Start(appName string) bool {
	body, _ := json.Marshal(map[string]string{"app_name": appName})

	resp, err := c.http.Post(c.baseURL+"/start_recording", "application/json", bytes.NewReader(body))
	if err != nil {
		logger.Warn("recorder: cannot reach service at %s: %v", c.baseURL, err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Warn("recorder: start refused: %s", readMessage(resp.Body))
		return false
	}

	c.recording = true
	c.currentApp = appName
	logger.Info("recorder: recording started for %s", appName)
	return true
}

// Stop ends the current recording and returns the video path reported by
// the service, when any.
func (c *Client) Stop() (videoPath string, ok bool) {
	resp, err := c.http.Post(c.baseURL+"/stop_recording", "application/json", nil)
	if err != nil {
		logger.Warn("recorder: cannot reach service at %s: %v", c.baseURL, err)
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Warn("recorder: stop refused: %s", readMessage(resp.Body))
		return "", false
	}

	var payload struct {
		VideoPath string `json:"video_path"`
		Message   string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		logger.Warn("recorder: malformed stop response: %v", err)
	}

	app := c.currentApp
	c.recording = false
	c.currentApp = ""
	logger.Info("recorder: recording stopped for %s: %s", app, payload.VideoPath)
	return payload.VideoPath, true
}

// Status queries the service. Unreachable means not recording.
func (c *Client) Status() (recording bool, appName string) {
	resp, err := c.http.Get(c.baseURL + "/status")
	if err != nil {
		logger.Debug("recorder: status check failed: %v", err)
		return false, ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, ""
	}

	var payload struct {
		Recording bool   `json:"recording"`
		AppName   string `json:"app_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return false, ""
	}
	return payload.Recording, payload.AppName
}

// readMessage extracts the error message from a refusal response.
func readMessage(r io.Reader) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r).Decode(&payload); err != nil || payload.Message == "" {
		return "unknown error"
	}
	return payload.Message
}
