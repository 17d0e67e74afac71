package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
)

type treeEntry struct {
	Path string `json:"path"`
	Mode string `json:"mode,omitempty"`
	Type string `json:"type"`
	SHA  string `json:"sha,omitempty"`
	Size int    `json:"size,omitempty"`
}

type treeResponse struct {
	SHA       string      `json:"sha"`
	Tree      []treeEntry `json:"tree"`
	Truncated bool        `json:"truncated"`
}

// ListFiles returns the paths of all blobs reachable from branch,
// recursively. A repository with no commits yet yields an empty list
// rather than an error.
func (c *Client) ListFiles(ctx context.Context, owner, repo, branch string) ([]string, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/git/trees/%s?recursive=1", c.baseURL, owner, repo, url.PathEscape(branch))
	var tree treeResponse
	if err := c.getJSON(ctx, "list files", u, "", &tree); err != nil {
		if IsNotFound(err) {
			return []string{}, nil
		}
		return nil, err
	}

	paths := make([]string, 0, len(tree.Tree))
	for _, entry := range tree.Tree {
		if entry.Type == "blob" {
			paths = append(paths, entry.Path)
		}
	}
	return paths, nil
}

type contentsResponse struct {
	Type     string `json:"type"`
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
	SHA      string `json:"sha"`
}

// ReadFile returns the decoded content of a file at path on branch.
// Directories cannot be read; the contents endpoint returns an array
// for them, which surfaces here as a decode failure mapped to a
// descriptive error.
func (c *Client) ReadFile(ctx context.Context, owner, repo, path, branch string) (string, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s", c.baseURL, owner, repo, escapePath(path), url.QueryEscape(branch))
	var file contentsResponse
	if err := c.getJSON(ctx, "read file", u, "", &file); err != nil {
		if strings.Contains(err.Error(), "cannot unmarshal array") {
			return "", fmt.Errorf("%s is a directory, not a file", path)
		}
		return "", err
	}
	if file.Type != "" && file.Type != "file" {
		return "", fmt.Errorf("%s is a %s, not a file", path, file.Type)
	}

	// The contents API returns base64 with embedded newlines.
	cleaned := strings.ReplaceAll(file.Content, "\n", "")
	decoded, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return "", fmt.Errorf("decode content of %s: %w", path, err)
	}
	return string(decoded), nil
}

// SearchMatch is one code-search hit.
type SearchMatch struct {
	Path      string   `json:"path"`
	Fragments []string `json:"fragments,omitempty"`
}

type searchCodeResponse struct {
	TotalCount int `json:"total_count"`
	Items      []struct {
		Path        string `json:"path"`
		TextMatches []struct {
			Fragment string `json:"fragment"`
		} `json:"text_matches"`
	} `json:"items"`
}

// SearchCode searches file contents within a single repository. A
// non-empty filename narrows matches to files whose name contains it.
func (c *Client) SearchCode(ctx context.Context, owner, repo, query, filename string) ([]SearchMatch, error) {
	q := fmt.Sprintf("repo:%s/%s %s", owner, repo, query)
	if filename != "" {
		q += " filename:" + filename
	}
	u := fmt.Sprintf("%s/search/code?q=%s&per_page=20", c.baseURL, url.QueryEscape(q))

	var result searchCodeResponse
	if err := c.getJSON(ctx, "search code", u, "application/vnd.github.text-match+json", &result); err != nil {
		return nil, err
	}

	matches := make([]SearchMatch, 0, len(result.Items))
	for _, item := range result.Items {
		m := SearchMatch{Path: item.Path}
		for _, tm := range item.TextMatches {
			m.Fragments = append(m.Fragments, tm.Fragment)
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// escapePath escapes each path segment while keeping separators.
func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
