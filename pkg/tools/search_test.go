package tools

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

func TestSearchSuccess(t *testing.T) {
	var gotReq searchRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/search", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(searchResponse{Results: []SearchResult{
			{Title: "Go Documentation", URL: "https://go.dev/doc", Snippet: "The Go programming language"},
			{Title: "Effective Go", URL: "https://go.dev/doc/effective_go", Snippet: "Tips for writing clear Go"},
		}})
	}))
	defer server.Close()

	client := NewSearchClient(server.URL, 0)
	results, err := client.Search(context.Background(), "golang docs", 2)

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Go Documentation", results[0].Title)
	assert.Equal(t, "https://go.dev/doc/effective_go", results[1].URL)
	assert.Equal(t, "golang docs", gotReq.Query)
	assert.Equal(t, 2, gotReq.MaxResults)
}

func TestSearchDefaultMaxResults(t *testing.T) {
	var gotReq searchRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(searchResponse{})
	}))
	defer server.Close()

	client := NewSearchClient(server.URL, 0)
	_, err := client.Search(context.Background(), "anything", 0)

	require.NoError(t, err)
	assert.Equal(t, DefaultMaxResults, gotReq.MaxResults)
}

func TestSearchServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "engine down", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewSearchClient(server.URL, 0)
	_, err := client.Search(context.Background(), "anything", 3)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "engine down")
}

func TestSearchUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewSearchClient(server.URL, 0)
	_, err := client.Search(context.Background(), "anything", 3)

	require.Error(t, err)
}

func TestSearchTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	client := NewSearchClient(server.URL, 50*time.Millisecond)
	_, err := client.Search(context.Background(), "anything", 3)

	require.Error(t, err)
}

func TestFormatResults(t *testing.T) {
	results := []SearchResult{
		{Title: "First", URL: "https://one.example", Snippet: "snippet one"},
		{Title: "Second", URL: "https://two.example", Snippet: "snippet two"},
	}

	out := FormatResults(results)

	assert.Contains(t, out, "1. First")
	assert.Contains(t, out, "https://one.example")
	assert.Contains(t, out, "2. Second")
	assert.Contains(t, out, "snippet two")
}

func TestFormatResultsEmpty(t *testing.T) {
	assert.Equal(t, "No results found.", FormatResults(nil))
}
