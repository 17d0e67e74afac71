package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zalusdev/zalus/github"
	"github.com/zalusdev/zalus/vercel"
)

// RepoClient is the source-control surface the executor needs.
type RepoClient interface {
	ListFiles(ctx context.Context, owner, repo, branch string) ([]string, error)
	ReadFile(ctx context.Context, owner, repo, path, branch string) (string, error)
	SearchCode(ctx context.Context, owner, repo, query, filename string) ([]github.SearchMatch, error)
	WriteFiles(ctx context.Context, owner, repo, branch, message string, files []github.FileChange) (*github.Commit, error)
	DeleteFiles(ctx context.Context, owner, repo, branch, message string, paths []string) (*github.Commit, error)
	CreateBranch(ctx context.Context, owner, repo, name, from string) error
	CreatePullRequest(ctx context.Context, owner, repo string, in github.CreatePullRequestInput) (*github.PullRequest, error)
}

// DeployClient is the deployment-provider surface the executor needs.
// May be nil when the caller supplied no deployment token.
type DeployClient interface {
	ProjectForRepo(ctx context.Context, owner, repo string) (*vercel.Project, error)
	LatestDeployment(ctx context.Context, projectID string) (*vercel.Deployment, error)
	BuildLogs(ctx context.Context, deploymentID string) ([]vercel.LogLine, error)
}

const defaultBranch = "main"
const defaultCommitMessage = "Update files via agent"

// Executor dispatches tool calls against one repository's
// collaborators. Every failure, including an unknown tool name, is
// normalized into a failed ToolResult; the executor never returns an
// error that would abort the batch.
type Executor struct {
	Repo    RepoClient
	Deploy  DeployClient
	Catalog *Catalog
	Owner   string
	RepoNm  string
	Logger  *slog.Logger
}

// Execute runs one tool call and normalizes the outcome.
func (e *Executor) Execute(ctx context.Context, call ToolCall) ToolResult {
	spec, ok := e.Catalog.Resolve(call.Tool)
	if !ok {
		return failure(call.Tool, fmt.Sprintf("unknown tool %q", call.Tool))
	}

	result, err := e.dispatch(ctx, spec.Kind, call.Params)
	if err != nil {
		if e.Logger != nil {
			e.Logger.Warn("tool call failed", "tool", call.Tool, "error", err)
		}
		return failure(call.Tool, err.Error())
	}
	return ToolResult{Tool: call.Tool, Success: true, Result: result}
}

func failure(tool, msg string) ToolResult {
	return ToolResult{Tool: tool, Success: false, Error: msg}
}

func (e *Executor) dispatch(ctx context.Context, kind Kind, raw json.RawMessage) (any, error) {
	switch kind {
	case KindListFiles:
		var p ListFilesParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		return e.listFiles(ctx, p)
	case KindReadFile:
		var p ReadFileParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		return e.readFile(ctx, p)
	case KindWriteFiles:
		p, err := decodeWriteParams(raw)
		if err != nil {
			return nil, err
		}
		return e.writeFiles(ctx, p)
	case KindDeleteFiles:
		var p DeleteFilesParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		return e.deleteFiles(ctx, p)
	case KindSearchCode:
		var p SearchCodeParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		return e.searchCode(ctx, p)
	case KindDeploymentStatus:
		return e.deploymentStatus(ctx)
	case KindDeploymentLogs:
		return e.deploymentLogs(ctx)
	case KindCreateBranch:
		var p CreateBranchParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		return e.createBranch(ctx, p)
	case KindCreatePullRequest:
		var p CreatePullRequestParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		return e.createPullRequest(ctx, p)
	}
	return nil, fmt.Errorf("unhandled tool kind %d", kind)
}

func decodeParams(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}

// decodeWriteParams accepts both the plural shape ({files: [...]}) and
// the singular one the model sometimes emits ({path, content}).
func decodeWriteParams(raw json.RawMessage) (WriteFilesParams, error) {
	var p WriteFilesParams
	if err := decodeParams(raw, &p); err != nil {
		return p, err
	}
	if len(p.Files) > 0 {
		return p, nil
	}

	var single struct {
		Path          string `json:"path"`
		Content       string `json:"content"`
		Message       string `json:"message"`
		CommitMessage string `json:"commit_message"`
		Branch        string `json:"branch"`
	}
	if err := decodeParams(raw, &single); err != nil {
		return p, err
	}
	if single.Path == "" {
		return p, fmt.Errorf("no files to write")
	}
	msg := single.CommitMessage
	if msg == "" {
		msg = single.Message
	}
	return WriteFilesParams{
		Files:         []FileInput{{Path: single.Path, Content: single.Content}},
		CommitMessage: msg,
		Branch:        single.Branch,
	}, nil
}

// fileEntry is one row in a directory listing.
type fileEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"`
}

// listFiles derives the immediate entries under the requested
// directory from the repository's recursive blob listing.
func (e *Executor) listFiles(ctx context.Context, p ListFilesParams) (any, error) {
	paths, err := e.Repo.ListFiles(ctx, e.Owner, e.RepoNm, defaultBranch)
	if err != nil {
		return nil, err
	}

	prefix := strings.Trim(p.Path, "/")
	if prefix != "" {
		prefix += "/"
	}

	seen := make(map[string]bool)
	entries := make([]fileEntry, 0)
	for _, full := range paths {
		if !strings.HasPrefix(full, prefix) {
			continue
		}
		rest := full[len(prefix):]
		if rest == "" {
			continue
		}
		if idx := strings.IndexByte(rest, '/'); idx >= 0 {
			dir := rest[:idx]
			if !seen[dir] {
				seen[dir] = true
				entries = append(entries, fileEntry{Name: dir, Path: prefix + dir, Type: "dir"})
			}
			continue
		}
		entries = append(entries, fileEntry{Name: rest, Path: full, Type: "file"})
	}

	if prefix != "" && len(entries) == 0 {
		return nil, fmt.Errorf("no files under %s", p.Path)
	}
	return map[string]any{"files": entries}, nil
}

func (e *Executor) readFile(ctx context.Context, p ReadFileParams) (any, error) {
	if p.Path == "" {
		return nil, fmt.Errorf("path is required")
	}
	content, err := e.Repo.ReadFile(ctx, e.Owner, e.RepoNm, p.Path, defaultBranch)
	if err != nil {
		return nil, err
	}
	content, truncated := truncateContent(content, maxReadFileChars)
	return map[string]any{
		"path":      p.Path,
		"content":   content,
		"truncated": truncated,
	}, nil
}

func (e *Executor) writeFiles(ctx context.Context, p WriteFilesParams) (any, error) {
	if len(p.Files) == 0 {
		return nil, fmt.Errorf("no files to write")
	}
	branch := p.Branch
	if branch == "" {
		branch = defaultBranch
	}
	message := p.CommitMessage
	if message == "" {
		message = defaultCommitMessage
	}

	changes := make([]github.FileChange, 0, len(p.Files))
	modified := make([]string, 0, len(p.Files))
	for _, f := range p.Files {
		if f.Path == "" {
			return nil, fmt.Errorf("file with empty path")
		}
		changes = append(changes, github.FileChange{Path: f.Path, Content: f.Content})
		modified = append(modified, f.Path)
	}

	commit, err := e.Repo.WriteFiles(ctx, e.Owner, e.RepoNm, branch, message, changes)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"commitSha":     commit.SHA,
		"commitUrl":     commit.URL,
		"filesModified": modified,
	}, nil
}

func (e *Executor) deleteFiles(ctx context.Context, p DeleteFilesParams) (any, error) {
	if len(p.Paths) == 0 {
		return nil, fmt.Errorf("no files to delete")
	}
	branch := p.Branch
	if branch == "" {
		branch = defaultBranch
	}
	message := p.CommitMessage
	if message == "" {
		message = "Delete files via agent"
	}

	commit, err := e.Repo.DeleteFiles(ctx, e.Owner, e.RepoNm, branch, message, p.Paths)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"commitSha":    commit.SHA,
		"commitUrl":    commit.URL,
		"filesDeleted": p.Paths,
	}, nil
}

func (e *Executor) searchCode(ctx context.Context, p SearchCodeParams) (any, error) {
	if p.Query == "" {
		return nil, fmt.Errorf("query is required")
	}
	matches, err := e.Repo.SearchCode(ctx, e.Owner, e.RepoNm, p.Query, p.Filename)
	if err != nil {
		return nil, err
	}
	total := len(matches)
	if len(matches) > maxSearchResults {
		matches = matches[:maxSearchResults]
	}
	return map[string]any{
		"results":    matches,
		"totalFound": total,
	}, nil
}

func (e *Executor) deploymentStatus(ctx context.Context) (any, error) {
	if e.Deploy == nil {
		return nil, fmt.Errorf("no deployment provider configured")
	}
	project, err := e.Deploy.ProjectForRepo(ctx, e.Owner, e.RepoNm)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return map[string]any{"message": "no project linked to this repository"}, nil
	}
	deployment, err := e.Deploy.LatestDeployment(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	if deployment == nil {
		return map[string]any{"project": project.Name, "message": "no deployments yet"}, nil
	}
	return map[string]any{
		"project":   project.Name,
		"state":     deployment.State,
		"url":       deployment.URL,
		"createdAt": deployment.Created,
	}, nil
}

func (e *Executor) deploymentLogs(ctx context.Context) (any, error) {
	if e.Deploy == nil {
		return nil, fmt.Errorf("no deployment provider configured")
	}
	project, err := e.Deploy.ProjectForRepo(ctx, e.Owner, e.RepoNm)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return map[string]any{"message": "no project linked to this repository"}, nil
	}
	deployment, err := e.Deploy.LatestDeployment(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	if deployment == nil {
		return map[string]any{"project": project.Name, "message": "no deployments yet"}, nil
	}
	lines, err := e.Deploy.BuildLogs(ctx, deployment.UID)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	for _, line := range lines {
		fmt.Fprintf(&b, "[%s] %s\n", line.Type, line.Text)
	}
	logs, truncated := truncateContent(b.String(), maxReadFileChars)
	return map[string]any{
		"project":    project.Name,
		"deployment": deployment.UID,
		"state":      deployment.State,
		"logs":       logs,
		"truncated":  truncated,
	}, nil
}

func (e *Executor) createBranch(ctx context.Context, p CreateBranchParams) (any, error) {
	if p.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	from := p.From
	if from == "" {
		from = defaultBranch
	}
	if err := e.Repo.CreateBranch(ctx, e.Owner, e.RepoNm, p.Name, from); err != nil {
		return nil, err
	}
	return map[string]any{"branch": p.Name, "from": from}, nil
}

func (e *Executor) createPullRequest(ctx context.Context, p CreatePullRequestParams) (any, error) {
	if p.Title == "" || p.Head == "" {
		return nil, fmt.Errorf("title and head are required")
	}
	base := p.Base
	if base == "" {
		base = defaultBranch
	}
	pr, err := e.Repo.CreatePullRequest(ctx, e.Owner, e.RepoNm, github.CreatePullRequestInput{
		Title: p.Title,
		Head:  p.Head,
		Base:  base,
		Body:  p.Body,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"number": pr.Number, "url": pr.HTMLURL}, nil
}
