package rag

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_NotConfigured(t *testing.T) {
	c := NewClient("")
	assert.False(t, c.Configured())
	_, err := c.Query(context.Background(), "q", 0)
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = c.Index(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestClient_Query(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/query", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"results":[{"content":"Warszawa","score":0.91}]}`))
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL+"/").Query(context.Background(), "stolica", 0)
	require.NoError(t, err)
	assert.Equal(t, "stolica", res.Query)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "Warszawa", res.Results[0].Content)
	assert.Equal(t, float64(DefaultTopK), got["top_k"])
}

func TestClient_Index(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/index", r.URL.Path)
		var body struct{ Documents []string }
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Len(t, body.Documents, 2)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n, err := NewClient(srv.URL).Index(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestClient_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "index offline", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Query(context.Background(), "q", 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "index offline")
}
