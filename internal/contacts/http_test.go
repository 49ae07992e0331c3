package contacts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func directoryServer(t *testing.T) (*httptest.Server, *HTTPDirectory) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("name") != "":
			json.NewEncoder(w).Encode([]Contact{{Name: q.Get("name"), Email: "exact@example.com"}})
		case q.Get("q") != "" || q.Get("contains") != "":
			json.NewEncoder(w).Encode([]Contact{})
		default:
			json.NewEncoder(w).Encode([]Contact{
				{Name: "Richard Santin", Email: "rsantin@example.com"},
				{Name: "Amelia Wong", Email: "amelia@example.com"},
			})
		}
	}))
	t.Cleanup(srv.Close)

	dir, err := NewHTTPDirectory(srv.URL, map[string]string{"X-Token": "t"})
	require.NoError(t, err)
	return srv, dir
}

func TestHTTPDirectory_Queries(t *testing.T) {
	_, dir := directoryServer(t)
	ctx := context.Background()

	exact, err := dir.LookupByName(ctx, "Richard Santin")
	require.NoError(t, err)
	require.Len(t, exact, 1)
	assert.Equal(t, "exact@example.com", exact[0].Email)

	partial, err := dir.Search(ctx, "Rich")
	require.NoError(t, err)
	assert.Empty(t, partial)

	all, err := dir.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestHTTPDirectory_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	dir, err := NewHTTPDirectory(srv.URL, nil)
	require.NoError(t, err)

	_, err = dir.All(context.Background())
	assert.Error(t, err)
}

func TestHTTPDirectory_InvalidURL(t *testing.T) {
	_, err := NewHTTPDirectory("not a url", nil)
	assert.Error(t, err)
}
