package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestListReposPagination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "token t-1" {
			t.Errorf("auth = %q", got)
		}
		switch r.URL.Query().Get("page") {
		case "1":
			json.NewEncoder(w).Encode([]Repo{{Name: "alpha", Language: "Go"}, {Name: "beta"}})
		default:
			json.NewEncoder(w).Encode([]Repo{})
		}
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Token: "t-1", Username: "octo"}, nil)
	repos, err := c.ListRepos(context.Background())
	if err != nil {
		t.Fatalf("ListRepos failed: %v", err)
	}
	if len(repos) != 2 || repos[0].Name != "alpha" {
		t.Errorf("repos = %+v", repos)
	}
}

func TestFileContentBase64(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Entry{
			Type:     "file",
			Path:     "README.md",
			Content:  base64.StdEncoding.EncodeToString([]byte("hello\nworld")),
			Encoding: "base64",
		})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, nil)
	content, err := c.FileContent(context.Background(), "octo/repo", "README.md")
	if err != nil {
		t.Fatalf("FileContent failed: %v", err)
	}
	if content != "hello\nworld" {
		t.Errorf("content = %q", content)
	}
}

func TestAnalyzeWalksTree(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/octo/repo":
			json.NewEncoder(w).Encode(Repo{Name: "repo", Language: "Go", Stars: 7})
		case "/repos/octo/repo/contents/":
			json.NewEncoder(w).Encode([]Entry{
				{Type: "file", Path: "main.go"},
				{Type: "dir", Path: "docs"},
			})
		case "/repos/octo/repo/contents/docs":
			json.NewEncoder(w).Encode([]Entry{
				{Type: "file", Path: "docs/guide.md"},
				{Type: "file", Path: "docs/LICENSE"},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Username: "octo"}, nil)
	analysis, err := c.Analyze(context.Background(), "repo")
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if analysis.RepoName != "repo" || analysis.TotalFiles != 3 || analysis.Stars != 7 {
		t.Errorf("analysis = %+v", analysis)
	}
	if analysis.FileTypes["go"] != 1 || analysis.FileTypes["md"] != 1 || analysis.FileTypes["no_extension"] != 1 {
		t.Errorf("file types = %+v", analysis.FileTypes)
	}
}

func TestQualify(t *testing.T) {
	c := NewClient(Config{Username: "octo"}, nil)
	if got := c.Qualify("repo"); got != "octo/repo" {
		t.Errorf("Qualify = %q", got)
	}
	if got := c.Qualify("other/repo"); got != "other/repo" {
		t.Errorf("Qualify = %q", got)
	}
}

func TestAPIErrorIncludesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, nil)
	_, err := c.Contents(context.Background(), "octo/missing", "")
	if err == nil {
		t.Fatal("expected error")
	}
	if want := fmt.Sprintf("status %d", http.StatusNotFound); !strings.Contains(err.Error(), want) {
		t.Errorf("err = %v", err)
	}
}
