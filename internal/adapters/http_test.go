package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valetiq/valet/pkg/schema"
)

func newBridge(t *testing.T, baseURL string) *HTTPBridge {
	t.Helper()
	b, err := NewHTTPBridge(HTTPBridgeConfig{StepType: "email", BaseURL: baseURL})
	require.NoError(t, err)
	return b
}

func emailStep(action string, params map[string]any) schema.ActionStep {
	return schema.ActionStep{ID: "step-1", Type: "email", Action: action, Params: params}
}

func TestHTTPBridge_InvalidConfig(t *testing.T) {
	_, err := NewHTTPBridge(HTTPBridgeConfig{StepType: "", BaseURL: "http://x"})
	assert.Error(t, err)

	_, err = NewHTTPBridge(HTTPBridgeConfig{StepType: "email", BaseURL: "not a url"})
	assert.Error(t, err)

	_, err = NewHTTPBridge(HTTPBridgeConfig{StepType: "email", BaseURL: "ftp://x"})
	assert.Error(t, err)
}

func TestHTTPBridge_SuccessResponse(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"message": "email sent",
			"data":    map[string]any{"message_id": "abc-123"},
		})
	}))
	defer srv.Close()

	b := newBridge(t, srv.URL)
	res, err := b.Execute(context.Background(),
		emailStep("send", map[string]any{"to": "jane@example.com"}),
		map[string]any{"identity": "user-1"})
	require.NoError(t, err)

	assert.Equal(t, "/send", gotPath)
	assert.Equal(t, "jane@example.com", gotBody["params"].(map[string]any)["to"])
	assert.Equal(t, "user-1", gotBody["context"].(map[string]any)["identity"])

	assert.True(t, res.Success)
	assert.Equal(t, schema.StepStateCompleted, res.State)
	assert.Equal(t, "email sent", res.Message)
	assert.Equal(t, "step-1", res.StepID)
}

func TestHTTPBridge_RichPayloadPassthrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"rich": map[string]any{
				"type":    "email_draft",
				"ui_hint": "card",
				"data":    map[string]any{"subject": "Lunch"},
			},
		})
	}))
	defer srv.Close()

	b := newBridge(t, srv.URL)
	res, err := b.Execute(context.Background(), emailStep("draft", nil), nil)
	require.NoError(t, err)

	require.True(t, res.IsRich())
	assert.Equal(t, "email_draft", res.Rich.Type)
	assert.Equal(t, "card", res.Rich.UIHint)
}

func TestHTTPBridge_AuthRequired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"success":      false,
			"authRequired": true,
			"authUrl":      "https://accounts.example.com/oauth",
		})
	}))
	defer srv.Close()

	b := newBridge(t, srv.URL)
	res, err := b.Execute(context.Background(), emailStep("send", nil), nil)
	require.NoError(t, err)

	assert.True(t, res.AuthRequired)
	assert.Equal(t, "https://accounts.example.com/oauth", res.AuthURL)
	assert.Equal(t, schema.StepStateWaitingIntervention, res.State)
	assert.False(t, res.Success)
}

func TestHTTPBridge_Unauthorized401MapsToAuthRequired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{"success": false})
	}))
	defer srv.Close()

	b := newBridge(t, srv.URL)
	res, err := b.Execute(context.Background(), emailStep("send", nil), nil)
	require.NoError(t, err)
	assert.True(t, res.AuthRequired)
}

func TestHTTPBridge_DomainFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error":   "recipient rejected",
		})
	}))
	defer srv.Close()

	b := newBridge(t, srv.URL)
	res, err := b.Execute(context.Background(), emailStep("send", nil), nil)
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, schema.StepStateFailed, res.State)
	assert.Equal(t, "recipient rejected", res.Error)
}

func TestHTTPBridge_ServerErrorIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	b := newBridge(t, srv.URL)
	_, err := b.Execute(context.Background(), emailStep("send", nil), nil)
	require.Error(t, err)

	var verr *schema.ValetError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, schema.ErrCodeExecution, verr.Code)
	assert.Equal(t, "step-1", verr.StepID)
}

func TestHTTPBridge_UnparseableResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	b := newBridge(t, srv.URL)
	_, err := b.Execute(context.Background(), emailStep("send", nil), nil)
	assert.Error(t, err)
}

func TestHTTPBridge_MissingAction(t *testing.T) {
	b := newBridge(t, "http://localhost:1")
	_, err := b.Execute(context.Background(), emailStep("", nil), nil)
	require.Error(t, err)

	var verr *schema.ValetError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, schema.ErrCodeValidation, verr.Code)
}
