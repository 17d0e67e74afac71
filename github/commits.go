package github

import (
	"context"
	"fmt"
	"net/url"
)

// FileChange is one file to include in a commit.
type FileChange struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Commit identifies a created commit.
type Commit struct {
	SHA string `json:"sha"`
	URL string `json:"url"`
}

type refResponse struct {
	Object struct {
		SHA string `json:"sha"`
	} `json:"object"`
}

type commitResponse struct {
	SHA  string `json:"sha"`
	Tree struct {
		SHA string `json:"sha"`
	} `json:"tree"`
}

type blobResponse struct {
	SHA string `json:"sha"`
}

type createTreeRequest struct {
	BaseTree string      `json:"base_tree,omitempty"`
	Tree     []treeEntry `json:"tree"`
}

type createCommitRequest struct {
	Message string   `json:"message"`
	Tree    string   `json:"tree"`
	Parents []string `json:"parents"`
}

func (c *Client) getRef(ctx context.Context, owner, repo, branch string) (string, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/git/ref/heads/%s", c.baseURL, owner, repo, url.PathEscape(branch))
	var ref refResponse
	if err := c.getJSON(ctx, "get ref", u, "", &ref); err != nil {
		return "", err
	}
	return ref.Object.SHA, nil
}

func (c *Client) getCommit(ctx context.Context, owner, repo, sha string) (*commitResponse, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/git/commits/%s", c.baseURL, owner, repo, sha)
	var commit commitResponse
	if err := c.getJSON(ctx, "get commit", u, "", &commit); err != nil {
		return nil, err
	}
	return &commit, nil
}

func (c *Client) createBlob(ctx context.Context, owner, repo, content string) (string, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/git/blobs", c.baseURL, owner, repo)
	payload := map[string]string{"content": content, "encoding": "utf-8"}
	var blob blobResponse
	if err := c.postJSON(ctx, "create blob", "POST", u, payload, &blob, 201); err != nil {
		return "", err
	}
	return blob.SHA, nil
}

func (c *Client) createTree(ctx context.Context, owner, repo string, in createTreeRequest) (string, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/git/trees", c.baseURL, owner, repo)
	var tree treeResponse
	if err := c.postJSON(ctx, "create tree", "POST", u, in, &tree, 201); err != nil {
		return "", err
	}
	return tree.SHA, nil
}

func (c *Client) createCommit(ctx context.Context, owner, repo string, in createCommitRequest) (string, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/git/commits", c.baseURL, owner, repo)
	var commit commitResponse
	if err := c.postJSON(ctx, "create commit", "POST", u, in, &commit, 201); err != nil {
		return "", err
	}
	return commit.SHA, nil
}

func (c *Client) updateRef(ctx context.Context, owner, repo, branch, sha string) error {
	u := fmt.Sprintf("%s/repos/%s/%s/git/refs/heads/%s", c.baseURL, owner, repo, url.PathEscape(branch))
	payload := map[string]string{"sha": sha}
	return c.postJSON(ctx, "update ref", "PATCH", u, payload, nil, 200)
}

// WriteFiles commits all files to branch as a single commit via the
// git data API: one blob per file, one tree on top of the branch head,
// one commit, one ref update. Either every file lands or none do.
// The sequence is never retried; a failed ref update leaves the branch
// untouched.
func (c *Client) WriteFiles(ctx context.Context, owner, repo, branch, message string, files []FileChange) (*Commit, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no files to commit")
	}

	headSHA, err := c.getRef(ctx, owner, repo, branch)
	if err != nil {
		return nil, fmt.Errorf("resolve branch %s: %w", branch, err)
	}
	head, err := c.getCommit(ctx, owner, repo, headSHA)
	if err != nil {
		return nil, err
	}

	entries := make([]treeEntry, 0, len(files))
	for _, f := range files {
		blobSHA, err := c.createBlob(ctx, owner, repo, f.Content)
		if err != nil {
			return nil, fmt.Errorf("blob for %s: %w", f.Path, err)
		}
		entries = append(entries, treeEntry{
			Path: f.Path,
			Mode: "100644",
			Type: "blob",
			SHA:  blobSHA,
		})
	}

	treeSHA, err := c.createTree(ctx, owner, repo, createTreeRequest{
		BaseTree: head.Tree.SHA,
		Tree:     entries,
	})
	if err != nil {
		return nil, err
	}

	commitSHA, err := c.createCommit(ctx, owner, repo, createCommitRequest{
		Message: message,
		Tree:    treeSHA,
		Parents: []string{headSHA},
	})
	if err != nil {
		return nil, err
	}

	if err := c.updateRef(ctx, owner, repo, branch, commitSHA); err != nil {
		return nil, err
	}

	return &Commit{
		SHA: commitSHA,
		URL: fmt.Sprintf("https://github.com/%s/%s/commit/%s", owner, repo, commitSHA),
	}, nil
}

// DeleteFiles removes paths from branch in a single commit. The git
// data API has no tree-entry deletion under a base tree that keeps the
// request small, so the head tree is listed recursively and re-created
// without the removed paths. Only blob entries carry over; tree
// entries are re-derived by the API from the blob paths.
func (c *Client) DeleteFiles(ctx context.Context, owner, repo, branch, message string, paths []string) (*Commit, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no files to delete")
	}

	headSHA, err := c.getRef(ctx, owner, repo, branch)
	if err != nil {
		return nil, fmt.Errorf("resolve branch %s: %w", branch, err)
	}
	head, err := c.getCommit(ctx, owner, repo, headSHA)
	if err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/repos/%s/%s/git/trees/%s?recursive=1", c.baseURL, owner, repo, head.Tree.SHA)
	var full treeResponse
	if err := c.getJSON(ctx, "get tree", u, "", &full); err != nil {
		return nil, err
	}

	remove := make(map[string]bool, len(paths))
	for _, p := range paths {
		remove[p] = true
	}

	kept := make([]treeEntry, 0, len(full.Tree))
	removed := 0
	for _, entry := range full.Tree {
		if entry.Type != "blob" {
			continue
		}
		if remove[entry.Path] {
			removed++
			continue
		}
		kept = append(kept, treeEntry{
			Path: entry.Path,
			Mode: entry.Mode,
			Type: entry.Type,
			SHA:  entry.SHA,
		})
	}
	if removed == 0 {
		return nil, fmt.Errorf("none of the paths exist on branch %s", branch)
	}

	treeSHA, err := c.createTree(ctx, owner, repo, createTreeRequest{Tree: kept})
	if err != nil {
		return nil, err
	}

	commitSHA, err := c.createCommit(ctx, owner, repo, createCommitRequest{
		Message: message,
		Tree:    treeSHA,
		Parents: []string{headSHA},
	})
	if err != nil {
		return nil, err
	}

	if err := c.updateRef(ctx, owner, repo, branch, commitSHA); err != nil {
		return nil, err
	}

	return &Commit{
		SHA: commitSHA,
		URL: fmt.Sprintf("https://github.com/%s/%s/commit/%s", owner, repo, commitSHA),
	}, nil
}

// CreateBranch creates a branch pointing at the head of from.
func (c *Client) CreateBranch(ctx context.Context, owner, repo, name, from string) error {
	baseSHA, err := c.getRef(ctx, owner, repo, from)
	if err != nil {
		return fmt.Errorf("resolve base branch %s: %w", from, err)
	}
	u := fmt.Sprintf("%s/repos/%s/%s/git/refs", c.baseURL, owner, repo)
	payload := map[string]string{
		"ref": "refs/heads/" + name,
		"sha": baseSHA,
	}
	return c.postJSON(ctx, "create branch", "POST", u, payload, nil, 201)
}

// PullRequest is a created pull request.
type PullRequest struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
}

// CreatePullRequestInput describes a pull request to open.
type CreatePullRequestInput struct {
	Title string `json:"title"`
	Head  string `json:"head"`
	Base  string `json:"base"`
	Body  string `json:"body,omitempty"`
}

// CreatePullRequest opens a pull request.
func (c *Client) CreatePullRequest(ctx context.Context, owner, repo string, in CreatePullRequestInput) (*PullRequest, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/pulls", c.baseURL, owner, repo)
	var pr PullRequest
	if err := c.postJSON(ctx, "create pull request", "POST", u, in, &pr, 201); err != nil {
		return nil, err
	}
	return &pr, nil
}
