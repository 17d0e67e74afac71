package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("test-token", WithBaseURL(srv.URL)), srv
}

func TestListFiles(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/acme/app/git/trees/main" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("auth header = %q", got)
		}
		json.NewEncoder(w).Encode(treeResponse{Tree: []treeEntry{
			{Path: "README.md", Type: "blob"},
			{Path: "src", Type: "tree"},
			{Path: "src/main.go", Type: "blob"},
		}})
	}))

	paths, err := c.ListFiles(context.Background(), "acme", "app", "main")
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(paths) != 2 || paths[0] != "README.md" || paths[1] != "src/main.go" {
		t.Errorf("paths = %v", paths)
	}
}

func TestListFilesEmptyRepo(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	}))

	paths, err := c.ListFiles(context.Background(), "acme", "empty", "main")
	if err != nil {
		t.Fatalf("ListFiles on empty repo: %v", err)
	}
	if len(paths) != 0 {
		t.Errorf("expected empty list, got %v", paths)
	}
}

func TestReadFile(t *testing.T) {
	content := "package main\n\nfunc main() {}\n"
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/acme/app/contents/src/main.go" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("ref"); got != "main" {
			t.Errorf("ref = %q", got)
		}
		json.NewEncoder(w).Encode(contentsResponse{
			Type:     "file",
			Encoding: "base64",
			Content:  base64.StdEncoding.EncodeToString([]byte(content)),
		})
	}))

	got, err := c.ReadFile(context.Background(), "acme", "app", "src/main.go", "main")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got != content {
		t.Errorf("content = %q, want %q", got, content)
	}
}

func TestReadFileDirectory(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Directories come back as an array of entries.
		w.Write([]byte(`[{"name":"main.go"}]`))
	}))

	_, err := c.ReadFile(context.Background(), "acme", "app", "src", "main")
	if err == nil {
		t.Fatal("expected error reading a directory")
	}
}

func TestSearchCode(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search/code" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query().Get("q")
		if q != "repo:acme/app handler filename:server" {
			t.Errorf("q = %q", q)
		}
		if got := r.Header.Get("Accept"); got != "application/vnd.github.text-match+json" {
			t.Errorf("accept = %q", got)
		}
		w.Write([]byte(`{"total_count":1,"items":[{"path":"internal/server.go","text_matches":[{"fragment":"func handler("}]}]}`))
	}))

	matches, err := c.SearchCode(context.Background(), "acme", "app", "handler", "server")
	if err != nil {
		t.Fatalf("SearchCode: %v", err)
	}
	if len(matches) != 1 || matches[0].Path != "internal/server.go" {
		t.Fatalf("matches = %+v", matches)
	}
	if len(matches[0].Fragments) != 1 || matches[0].Fragments[0] != "func handler(" {
		t.Errorf("fragments = %v", matches[0].Fragments)
	}
}

func TestGetRetriesOnServerError(t *testing.T) {
	calls := 0
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			http.Error(w, "upstream hiccup", http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(treeResponse{Tree: []treeEntry{{Path: "a.txt", Type: "blob"}}})
	}))

	paths, err := c.ListFiles(context.Background(), "acme", "app", "main")
	if err != nil {
		t.Fatalf("ListFiles after retries: %v", err)
	}
	if len(paths) != 1 {
		t.Errorf("paths = %v", paths)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestGetDoesNotRetryClientError(t *testing.T) {
	calls := 0
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, `{"message":"Validation Failed"}`, http.StatusUnprocessableEntity)
	}))

	_, err := c.SearchCode(context.Background(), "acme", "app", "x", "")
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("err = %v", err)
	}
}
