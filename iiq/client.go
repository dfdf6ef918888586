// Package iiq is the gateway to the identity-governance backend: every
// operation the bot performs is a named workflow launched over the SCIM
// LaunchedWorkflows endpoint with HTTP Basic Auth.
package iiq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const launchedWorkflowSchema = "urn:ietf:params:scim:schemas:sailpoint:1.0:LaunchedWorkflow"

// Config holds the backend connection settings.
type Config struct {
	BaseURL  string
	Username string
	Password string
}

func (c Config) Valid() bool {
	return strings.TrimSpace(c.BaseURL) != "" &&
		strings.TrimSpace(c.Username) != "" &&
		strings.TrimSpace(c.Password) != ""
}

// Launcher is the contract features depend on: launch a named workflow
// with key/value inputs and receive a normalized result.
type Launcher interface {
	LaunchWorkflow(ctx context.Context, name string, input map[string]string) (*LaunchResult, error)
}

// Attribute is one named value in a workflow result. Values are
// backend-defined: plain strings, or JSON-encoded structures by
// convention.
type Attribute struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// LaunchResult is the normalized outcome of a workflow launch.
type LaunchResult struct {
	Success          bool
	CompletionStatus string
	Attributes       []Attribute
}

// Attr returns the raw value of a named attribute.
func (r *LaunchResult) Attr(key string) (any, bool) {
	for _, a := range r.Attributes {
		if a.Key == key {
			return a.Value, true
		}
	}
	return nil, false
}

// StringAttr returns a named attribute rendered as a string ("" when
// absent).
func (r *LaunchResult) StringAttr(key string) string {
	v, ok := r.Attr(key)
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	default:
		return fmt.Sprintf("%v", s)
	}
}

// BoolAttr interprets a named attribute as a boolean ("true"/true).
func (r *LaunchResult) BoolAttr(key string) bool {
	v, ok := r.Attr(key)
	if !ok {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return strings.EqualFold(strings.TrimSpace(b), "true")
	default:
		return false
	}
}

// JSONAttr decodes a JSON-encoded attribute into out. Attributes carrying
// lists or structures are JSON strings by backend convention.
func (r *LaunchResult) JSONAttr(key string, out any) error {
	v, ok := r.Attr(key)
	if !ok {
		return fmt.Errorf("attribute %q is missing", key)
	}
	switch raw := v.(type) {
	case string:
		return json.Unmarshal([]byte(raw), out)
	default:
		// Already-decoded JSON (the backend sometimes inlines it).
		b, err := json.Marshal(raw)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, out)
	}
}

// Client launches workflows over the SCIM API.
type Client struct {
	http *http.Client
	cfg  Config
}

func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{http: httpClient, cfg: cfg}
}

type launchRequest struct {
	Schemas   []string      `json:"schemas"`
	Extension launchPayload `json:"urn:ietf:params:scim:schemas:sailpoint:1.0:LaunchedWorkflow"`
}

type launchPayload struct {
	WorkflowName string      `json:"workflowName"`
	Input        []Attribute `json:"input,omitempty"`
}

type launchResponse struct {
	Extension struct {
		CompletionStatus string      `json:"completionStatus,omitempty"`
		Output           []Attribute `json:"output,omitempty"`
		Messages         []string    `json:"messages,omitempty"`
	} `json:"urn:ietf:params:scim:schemas:sailpoint:1.0:LaunchedWorkflow"`
	Detail string `json:"detail,omitempty"`
}

// LaunchWorkflow posts a LaunchedWorkflow resource and normalizes the
// reply. A transport failure, a non-2xx status, or completionStatus
// "Error" is returned as an error carrying the backend message.
func (c *Client) LaunchWorkflow(ctx context.Context, name string, input map[string]string) (*LaunchResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("workflow name is required")
	}

	attrs := make([]Attribute, 0, len(input))
	for k, v := range input {
		attrs = append(attrs, Attribute{Key: k, Value: v})
	}
	reqBody := launchRequest{
		Schemas:   []string{launchedWorkflowSchema},
		Extension: launchPayload{WorkflowName: name, Input: attrs},
	}
	b, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/scim/v2/LaunchedWorkflows"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("launch %s: %w", name, err)
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	var out launchResponse
	_ = json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := strings.TrimSpace(out.Detail)
		if detail == "" {
			detail = strings.TrimSpace(string(raw))
		}
		return nil, fmt.Errorf("launch %s: backend http %d: %s", name, resp.StatusCode, detail)
	}

	result := &LaunchResult{
		Success:          !strings.EqualFold(out.Extension.CompletionStatus, "Error"),
		CompletionStatus: out.Extension.CompletionStatus,
		Attributes:       out.Extension.Output,
	}
	if !result.Success {
		msg := strings.Join(out.Extension.Messages, "; ")
		if msg == "" {
			msg = "workflow completed with errors"
		}
		return nil, fmt.Errorf("launch %s: %s", name, msg)
	}
	return result, nil
}
