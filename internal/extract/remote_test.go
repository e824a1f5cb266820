package extract

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoteParse(t *testing.T) {
	var gotPath string
	var gotReq parseRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(Result{
			Functions: []FunctionUnit{{Name: "foo", Code: "def foo(): pass", StartLine: 1, EndLine: 1}},
			Imports:   []string{"os"},
		})
	}))
	defer srv.Close()

	e := NewRemoteExtractor(srv.URL, 5*time.Second)
	result, err := e.Parse(context.Background(), "def foo(): pass", "python")
	require.NoError(t, err)

	assert.Equal(t, "/parse", gotPath)
	assert.Equal(t, "python", gotReq.Language)
	require.Len(t, result.Functions, 1)
	assert.Equal(t, "foo", result.Functions[0].Name)
	assert.Equal(t, []string{"os"}, result.Imports)
}

func TestRemoteParseServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "grammar not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := NewRemoteExtractor(srv.URL, 5*time.Second)
	_, err := e.Parse(context.Background(), "def foo(): pass", "python")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestRemoteParseEmptyInputSkipsCall(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	e := NewRemoteExtractor(srv.URL, 5*time.Second)
	result, err := e.Parse(context.Background(), "   ", "python")
	require.NoError(t, err)
	assert.Empty(t, result.Functions)
	assert.False(t, called)
}
