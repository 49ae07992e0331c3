package contacts

import (
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

const directoryTimeout = 10 * time.Second

// HTTPDirectory is a Directory over a contact service's HTTP API:
//
//	GET {base}/contacts?name=...      exact name lookup
//	GET {base}/contacts?q=...         partial match
//	GET {base}/contacts?contains=...  broadened contains match
//	GET {base}/contacts               full bounded set
//
// Responses are JSON arrays of {name, email, phone}.
type HTTPDirectory struct {
	baseURL string
	headers map[string]string
	client  *http.Client
}

// NewHTTPDirectory creates a directory client for the given service URL.
func NewHTTPDirectory(baseURL string, headers map[string]string) (*HTTPDirectory, error) {
	u, err := url.ParseRequestURI(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid directory url %q", baseURL)
	}
	return &HTTPDirectory{
		baseURL: strings.TrimRight(baseURL, "/"),
		headers: headers,
		client:  &http.Client{Timeout: directoryTimeout},
	}, nil
}

func (d *HTTPDirectory) LookupByName(ctx context.Context, name string) ([]Contact, error) {
	return d.query(ctx, url.Values{"name": {name}})
}

func (d *HTTPDirectory) Search(ctx context.Context, query string) ([]Contact, error) {
	return d.query(ctx, url.Values{"q": {query}})
}

func (d *HTTPDirectory) SearchContains(ctx context.Context, query string) ([]Contact, error) {
	return d.query(ctx, url.Values{"contains": {query}})
}

func (d *HTTPDirectory) All(ctx context.Context) ([]Contact, error) {
	return d.query(ctx, nil)
}

func (d *HTTPDirectory) query(ctx context.Context, params url.Values) ([]Contact, error) {
	endpoint := d.baseURL + "/contacts"
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "build directory request").WithCause(err)
	}
	for k, v := range d.headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "directory request failed").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "directory returned %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "read directory response").WithCause(err)
	}

	var found []Contact
	if err := json.Unmarshal(raw, &found); err != nil {
		return nil, schema.NewError(schema.ErrCodeExecution, fmt.Sprintf("unparseable directory response (%d bytes)", len(raw))).WithCause(err)
	}
	return found, nil
}
