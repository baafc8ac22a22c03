// Package github implements the repository introspection tool the
// assistant can call: list repositories, analyze one, and fetch file
// contents through the GitHub REST API.
package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultBaseURL = "https://api.github.com"

// Config holds GitHub client configuration.
type Config struct {
	BaseURL  string
	Token    string
	Username string
	Timeout  time.Duration
}

// Repo is the subset of repository metadata the assistant reports.
type Repo struct {
	Name        string `json:"name"`
	FullName    string `json:"full_name"`
	Description string `json:"description"`
	Language    string `json:"language"`
	Stars       int    `json:"stargazers_count"`
	Forks       int    `json:"forks_count"`
	Size        int    `json:"size"`
	Private     bool   `json:"private"`
	UpdatedAt   string `json:"updated_at"`
}

// Entry is one item of a repository contents listing.
type Entry struct {
	Type     string `json:"type"` // file or dir
	Path     string `json:"path"`
	Content  string `json:"content,omitempty"`
	Encoding string `json:"encoding,omitempty"`
}

// Analysis summarizes a repository: metadata plus a recursive file
// inventory grouped by extension.
type Analysis struct {
	RepoName    string         `json:"repo_name"`
	Description string         `json:"description"`
	Language    string         `json:"language"`
	TotalFiles  int            `json:"total_files"`
	FileTypes   map[string]int `json:"file_types"`
	Files       []string       `json:"files"`
	Stars       int            `json:"stars"`
	Forks       int            `json:"forks"`
	Size        int            `json:"size"`
	UpdatedAt   string         `json:"updated_at"`
}

// Client calls the GitHub REST API v3.
type Client struct {
	baseURL    string
	token      string
	username   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a GitHub client. Token is optional; without it only
// public data is reachable and rate limits are tight.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		token:      cfg.Token,
		username:   cfg.Username,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// ListRepos returns every repository of the configured user, following
// pagination.
func (c *Client) ListRepos(ctx context.Context) ([]Repo, error) {
	path := "/user/repos"
	if c.username != "" {
		path = "/users/" + url.PathEscape(c.username) + "/repos"
	}

	var repos []Repo
	for page := 1; ; page++ {
		var pageRepos []Repo
		query := fmt.Sprintf("?per_page=100&page=%d", page)
		if err := c.get(ctx, path+query, &pageRepos); err != nil {
			return nil, err
		}
		if len(pageRepos) == 0 {
			break
		}
		repos = append(repos, pageRepos...)
	}
	return repos, nil
}

// Contents lists a repository path. repo is owner/name.
func (c *Client) Contents(ctx context.Context, repo, path string) ([]Entry, error) {
	var entries []Entry
	if err := c.get(ctx, "/repos/"+repo+"/contents/"+path, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// FileContent fetches and decodes one file.
func (c *Client) FileContent(ctx context.Context, repo, path string) (string, error) {
	var entry Entry
	if err := c.get(ctx, "/repos/"+repo+"/contents/"+path, &entry); err != nil {
		return "", err
	}
	if entry.Encoding == "base64" {
		decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(entry.Content, "\n", ""))
		if err != nil {
			return "", fmt.Errorf("github: decoding %s: %w", path, err)
		}
		return string(decoded), nil
	}
	return entry.Content, nil
}

// Analyze fetches repository metadata and walks the full tree.
func (c *Client) Analyze(ctx context.Context, repo string) (*Analysis, error) {
	repo = c.Qualify(repo)

	var info Repo
	if err := c.get(ctx, "/repos/"+repo, &info); err != nil {
		return nil, err
	}

	files, err := c.allFiles(ctx, repo, "")
	if err != nil {
		return nil, err
	}

	fileTypes := make(map[string]int)
	for _, f := range files {
		ext := "no_extension"
		if i := strings.LastIndex(f, "."); i >= 0 && i < len(f)-1 {
			ext = f[i+1:]
		}
		fileTypes[ext]++
	}

	return &Analysis{
		RepoName:    info.Name,
		Description: info.Description,
		Language:    info.Language,
		TotalFiles:  len(files),
		FileTypes:   fileTypes,
		Files:       files,
		Stars:       info.Stars,
		Forks:       info.Forks,
		Size:        info.Size,
		UpdatedAt:   info.UpdatedAt,
	}, nil
}

// Qualify prefixes a bare repository name with the configured username.
func (c *Client) Qualify(repo string) string {
	if !strings.Contains(repo, "/") && c.username != "" {
		return c.username + "/" + repo
	}
	return repo
}

func (c *Client) allFiles(ctx context.Context, repo, path string) ([]string, error) {
	entries, err := c.Contents(ctx, repo, path)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		switch e.Type {
		case "file":
			files = append(files, e.Path)
		case "dir":
			sub, err := c.allFiles(ctx, repo, e.Path)
			if err != nil {
				return nil, err
			}
			files = append(files, sub...)
		}
	}
	return files, nil
}

func (c *Client) get(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("github: creating request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("github: sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20)) // 4MB limit
	if err != nil {
		return fmt.Errorf("github: reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("github: API returned status %d for %s: %s", resp.StatusCode, path, truncate(string(body), 200))
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("github: parsing response for %s: %w", path, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
