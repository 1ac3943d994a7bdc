package device

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/probelab-dev/uiscout/pkg/core"
)

const perceptionTimeout = 60 * time.Second

// PerceptionClient talks to the perception service, which owns the camera
// feed and the detector models. It implements core.FrameCapture,
// core.ElementDetector, core.PointerLocator, and core.CredentialClassifier.
type PerceptionClient struct {
	http    *http.Client
	baseURL string
}

// NewPerceptionClient creates a client for the service at baseURL.
func NewPerceptionClient(baseURL string) *PerceptionClient {
	return &PerceptionClient{
		http:    &http.Client{Timeout: perceptionTimeout},
		baseURL: baseURL,
	}
}

type frameResponse struct {
	Path   string `json:"path"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Image  string `json:"image"` // base64, optional
}

// CaptureFrame requests one fresh frame. The service blocks until the
// frame is captured; there is no pipelining.
func (c *PerceptionClient) CaptureFrame() (*core.Frame, error) {
	resp, err := c.http.Get(c.baseURL + "/screenshot")
	if err != nil {
		return nil, fmt.Errorf("capture frame: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("capture frame: service returned %s", resp.Status)
	}

	var fr frameResponse
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		return nil, fmt.Errorf("capture frame: decode response: %w", err)
	}

	frame := &core.Frame{Path: fr.Path, Width: fr.Width, Height: fr.Height}
	if fr.Image != "" {
		img, err := base64.StdEncoding.DecodeString(fr.Image)
		if err != nil {
			return nil, fmt.Errorf("capture frame: decode image: %w", err)
		}
		frame.Image = img
	}
	return frame, nil
}

type detectResponse struct {
	Elements []struct {
		Content       string     `json:"content"`
		BBox          [4]float64 `json:"bbox"`
		Interactivity bool       `json:"interactivity"`
		Source        string     `json:"source"`
	} `json:"elements"`
}

// Detect runs the element detector on a frame. An empty element list is a
// normal result, not an error.
func (c *PerceptionClient) Detect(f *core.Frame) ([]core.Element, error) {
	var out detectResponse
	if err := c.post("/detect", f, &out); err != nil {
		return nil, fmt.Errorf("detect elements: %w", err)
	}

	elements := make([]core.Element, len(out.Elements))
	for i, e := range out.Elements {
		elements[i] = core.Element{
			Content: e.Content,
			BBox: core.BBox{
				XMin: e.BBox[0], YMin: e.BBox[1],
				XMax: e.BBox[2], YMax: e.BBox[3],
			},
			Interactive: e.Interactivity,
			Source:      e.Source,
		}
	}
	return elements, nil
}

type pointerResponse struct {
	Found bool `json:"found"`
	X     int  `json:"x"`
	Y     int  `json:"y"`
}

// Locate finds the pointer in a frame. An invisible pointer is reported as
// found=false without an error.
func (c *PerceptionClient) Locate(f *core.Frame) (core.Point, bool, error) {
	var out pointerResponse
	if err := c.post("/pointer", f, &out); err != nil {
		return core.Point{}, false, fmt.Errorf("locate pointer: %w", err)
	}
	if !out.Found {
		return core.Point{}, false, nil
	}
	return core.Point{X: out.X, Y: out.Y}, true, nil
}

type credentialResponse struct {
	Credential bool `json:"credential"`
}

// IsCredentialPrompt classifies whether the frame shows a credential
// prompt.
func (c *PerceptionClient) IsCredentialPrompt(f *core.Frame) (bool, error) {
	var out credentialResponse
	if err := c.post("/credential", f, &out); err != nil {
		return false, fmt.Errorf("classify credential prompt: %w", err)
	}
	return out.Credential, nil
}

// Ping checks connectivity to the perception service.
func (c *PerceptionClient) Ping() error {
	resp, err := c.http.Get(c.baseURL + "/health")
	if err != nil {
		return fmt.Errorf("perception service unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("perception service unhealthy: %s", resp.Status)
	}
	return nil
}

// post sends a frame reference and decodes the JSON response.
func (c *PerceptionClient) post(path string, f *core.Frame, out interface{}) error {
	payload := map[string]string{"path": f.Path}
	if f.Path == "" && len(f.Image) > 0 {
		payload["image"] = base64.StdEncoding.EncodeToString(f.Image)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := c.http.Post(c.baseURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("service returned %s: %s", resp.Status, msg)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
