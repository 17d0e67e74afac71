package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Kind enumerates the closed set of operations the executor can
// dispatch. Unknown tool names fail at the boundary with a failed
// result rather than reaching a collaborator.
type Kind int

const (
	KindListFiles Kind = iota
	KindReadFile
	KindWriteFiles
	KindDeleteFiles
	KindSearchCode
	KindDeploymentStatus
	KindDeploymentLogs
	KindCreateBranch
	KindCreatePullRequest
)

// Parameter payloads, one per kind. The catalog reflects JSON schemas
// from these for the prompt, and the executor decodes into them.

type ListFilesParams struct {
	Path string `json:"path,omitempty" jsonschema:"description=Directory path to list; empty for the repository root"`
}

type ReadFileParams struct {
	Path string `json:"path" jsonschema:"description=File path to read"`
}

type FileInput struct {
	Path    string `json:"path" jsonschema:"description=File path"`
	Content string `json:"content" jsonschema:"description=Full file content"`
}

type WriteFilesParams struct {
	Files         []FileInput `json:"files" jsonschema:"description=Files to create or update"`
	CommitMessage string      `json:"commit_message,omitempty" jsonschema:"description=Commit message"`
	Branch        string      `json:"branch,omitempty" jsonschema:"description=Target branch; defaults to main"`
}

type DeleteFilesParams struct {
	Paths         []string `json:"paths" jsonschema:"description=File paths to delete"`
	CommitMessage string   `json:"commit_message,omitempty" jsonschema:"description=Commit message"`
	Branch        string   `json:"branch,omitempty" jsonschema:"description=Target branch; defaults to main"`
}

type SearchCodeParams struct {
	Query    string `json:"query" jsonschema:"description=Text to search for"`
	Filename string `json:"filename,omitempty" jsonschema:"description=Restrict matches to files whose name contains this"`
}

type DeploymentStatusParams struct{}

type DeploymentLogsParams struct{}

type CreateBranchParams struct {
	Name string `json:"name" jsonschema:"description=New branch name"`
	From string `json:"from,omitempty" jsonschema:"description=Base branch; defaults to main"`
}

type CreatePullRequestParams struct {
	Title string `json:"title" jsonschema:"description=Pull request title"`
	Head  string `json:"head" jsonschema:"description=Branch with the changes"`
	Base  string `json:"base,omitempty" jsonschema:"description=Branch to merge into; defaults to main"`
	Body  string `json:"body,omitempty" jsonschema:"description=Pull request description"`
}

// ToolSpec describes one catalog entry.
type ToolSpec struct {
	Name        string
	Kind        Kind
	Description string
	Schema      *jsonschema.Schema
}

// Catalog is the ordered registry of available tools. Registration
// order is the order tools appear in the rendered prompt.
type Catalog struct {
	tools   *orderedmap.OrderedMap[string, ToolSpec]
	aliases map[string]string
}

// NewCatalog builds the default catalog covering every supported
// operation, with the aliases the model is known to emit.
func NewCatalog() *Catalog {
	c := &Catalog{
		tools:   orderedmap.New[string, ToolSpec](),
		aliases: make(map[string]string),
	}

	c.register("list_files", KindListFiles,
		"List files in the repository, optionally under a directory path.",
		ListFilesParams{})
	c.register("read_file", KindReadFile,
		"Read a file's content. Long files are truncated.",
		ReadFileParams{})
	c.register("write_files", KindWriteFiles,
		"Create or update one or more files as a single commit.",
		WriteFilesParams{})
	c.register("delete_files", KindDeleteFiles,
		"Delete one or more files as a single commit.",
		DeleteFilesParams{})
	c.register("search_code", KindSearchCode,
		"Search the repository's code for matching text.",
		SearchCodeParams{})
	c.register("get_deployment_status", KindDeploymentStatus,
		"Get the state and URL of the most recent deployment.",
		DeploymentStatusParams{})
	c.register("get_deployment_logs", KindDeploymentLogs,
		"Get the build log of the most recent deployment.",
		DeploymentLogsParams{})
	c.register("create_branch", KindCreateBranch,
		"Create a new branch from an existing one.",
		CreateBranchParams{})
	c.register("create_pull_request", KindCreatePullRequest,
		"Open a pull request between two branches.",
		CreatePullRequestParams{})

	c.alias("list_repository_files", "list_files")
	c.alias("write_file", "write_files")
	c.alias("search_in_repository", "search_code")

	return c
}

func (c *Catalog) register(name string, kind Kind, description string, params any) {
	reflector := jsonschema.Reflector{DoNotReference: true}
	schema := reflector.Reflect(params)
	schema.Version = ""
	c.tools.Set(name, ToolSpec{
		Name:        name,
		Kind:        kind,
		Description: description,
		Schema:      schema,
	})
}

func (c *Catalog) alias(name, canonical string) {
	c.aliases[name] = canonical
}

// Resolve maps a tool name, canonical or alias, to its spec.
func (c *Catalog) Resolve(name string) (ToolSpec, bool) {
	if canonical, ok := c.aliases[name]; ok {
		name = canonical
	}
	return c.tools.Get(name)
}

// Specs returns every registered tool in registration order.
func (c *Catalog) Specs() []ToolSpec {
	specs := make([]ToolSpec, 0, c.tools.Len())
	for pair := c.tools.Oldest(); pair != nil; pair = pair.Next() {
		specs = append(specs, pair.Value)
	}
	return specs
}

// Instructions renders the tool-usage section of the system prompt:
// the invocation syntax plus every tool's name, description, and
// parameter schema.
func (c *Catalog) Instructions() string {
	var b strings.Builder
	b.WriteString("You can use tools by writing a marker in your response:\n")
	b.WriteString(`<tool_call>{"tool": "<name>", "params": {...}}</tool_call>`)
	b.WriteString("\n\nAvailable tools:\n")

	for pair := c.tools.Oldest(); pair != nil; pair = pair.Next() {
		spec := pair.Value
		schemaJSON, err := json.Marshal(spec.Schema)
		if err != nil {
			schemaJSON = []byte("{}")
		}
		fmt.Fprintf(&b, "\n- %s: %s\n  Parameters: %s\n", spec.Name, spec.Description, schemaJSON)
	}

	b.WriteString("\nUse one marker per tool call. Wait for the results before deciding on further calls.")
	return b.String()
}
