package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/valetiq/valet/pkg/schema"
)

const (
	defaultMaxResponseBody = 10 * 1024 * 1024 // 10MB
	defaultBridgeTimeout   = 30 * time.Second
)

// HTTPBridgeConfig configures an HTTPBridge adapter.
type HTTPBridgeConfig struct {
	// StepType is the step type this bridge serves, e.g. "email".
	StepType string
	// BaseURL is the operation service endpoint. The step's action is
	// appended as a path segment: POST {BaseURL}/{action}.
	BaseURL string
	// Headers are sent on every request, e.g. a service token.
	Headers map[string]string

	Timeout         time.Duration
	MaxResponseBody int64
	Client          *http.Client
}

// HTTPBridge forwards a step to an external operation service over HTTP and
// normalizes the JSON response into a StepResult. The service contract:
//
//	POST {base}/{action}
//	{"params": {...}, "context": {...}}
//
// Responses may carry "rich" (structured payload), "authRequired"/"authUrl"
// (OAuth round-trip needed), or plain "data"/"message".
type HTTPBridge struct {
	cfg HTTPBridgeConfig
}

// NewHTTPBridge creates an adapter that bridges one step type to a service URL.
func NewHTTPBridge(cfg HTTPBridgeConfig) (*HTTPBridge, error) {
	if cfg.StepType == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "bridge step type is empty")
	}
	u, err := url.ParseRequestURI(cfg.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "bridge %q: invalid base url %q", cfg.StepType, cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultBridgeTimeout
	}
	if cfg.MaxResponseBody <= 0 {
		cfg.MaxResponseBody = defaultMaxResponseBody
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	return &HTTPBridge{cfg: cfg}, nil
}

func (b *HTTPBridge) Type() string { return b.cfg.StepType }

// bridgeResponse is the wire shape the operation service replies with.
type bridgeResponse struct {
	Success      bool                `json:"success"`
	Data         any                 `json:"data,omitempty"`
	Rich         *schema.RichPayload `json:"rich,omitempty"`
	Message      string              `json:"message,omitempty"`
	Error        string              `json:"error,omitempty"`
	AuthRequired bool                `json:"authRequired,omitempty"`
	AuthURL      string              `json:"authUrl,omitempty"`
}

func (b *HTTPBridge) Execute(ctx context.Context, step schema.ActionStep, execContext map[string]any) (*schema.StepResult, error) {
	if step.Action == "" {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "step %q has no action", step.ID).WithStep(step.ID)
	}

	payload := map[string]any{
		"params":  step.Params,
		"context": execContext,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "bridge %s: marshal request", b.cfg.StepType).
			WithStep(step.ID).WithCause(err)
	}

	endpoint := strings.TrimRight(b.cfg.BaseURL, "/") + "/" + url.PathEscape(step.Action)

	reqCtx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "bridge %s: build request", b.cfg.StepType).
			WithStep(step.ID).WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range b.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := b.cfg.Client.Do(req)
	if err != nil {
		code := schema.ErrCodeExecution
		if reqCtx.Err() == context.DeadlineExceeded {
			code = schema.ErrCodeTimeout
		}
		return nil, schema.NewErrorf(code, "bridge %s: request failed: %v", b.cfg.StepType, err).
			WithStep(step.ID).WithCause(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, b.cfg.MaxResponseBody))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "bridge %s: read response", b.cfg.StepType).
			WithStep(step.ID).WithCause(err)
	}

	if resp.StatusCode >= 500 {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "bridge %s: service returned %d", b.cfg.StepType, resp.StatusCode).
			WithStep(step.ID).
			WithDetails(map[string]any{"status_code": resp.StatusCode, "body": truncate(raw, 512)})
	}

	var br bridgeResponse
	if err := json.Unmarshal(raw, &br); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "bridge %s: unparseable response", b.cfg.StepType).
			WithStep(step.ID).WithCause(err).
			WithDetails(map[string]any{"status_code": resp.StatusCode, "body": truncate(raw, 512)})
	}

	return b.normalize(step.ID, resp.StatusCode, &br), nil
}

// normalize maps a bridge response onto the StepResult contract. Auth wins
// over everything else, then rich payloads, then plain data.
func (b *HTTPBridge) normalize(stepID string, status int, br *bridgeResponse) *schema.StepResult {
	if br.AuthRequired || status == http.StatusUnauthorized {
		msg := br.Message
		if msg == "" {
			msg = fmt.Sprintf("authorization required for %s", b.cfg.StepType)
		}
		return schema.AuthRequiredResult(stepID, msg, br.AuthURL)
	}

	if !br.Success || status >= 400 {
		errMsg := br.Error
		if errMsg == "" {
			errMsg = fmt.Sprintf("%s service rejected the operation (status %d)", b.cfg.StepType, status)
		}
		return schema.FailureResult(stepID, errMsg)
	}

	if br.Rich != nil {
		res := schema.RichResult(stepID, br.Rich)
		res.Message = br.Message
		res.Data = br.Data
		return res
	}

	return schema.SuccessResult(stepID, br.Message, br.Data)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
