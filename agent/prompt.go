package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

const persona = `You are a coding assistant working inside a web IDE. You help the user understand, modify, and ship the project in the connected repository. Be direct and concrete. When the user asks about the project, inspect it with tools instead of guessing. When you change files, commit them with a clear message.`

const maxPromptListing = 100

// promptBuilder assembles the system prompt for one run. The live
// context sections are best-effort: a failed fetch degrades to an
// omitted section, never an aborted request.
type promptBuilder struct {
	catalog *Catalog
	repo    RepoClient
	deploy  DeployClient
	owner   string
	repoNm  string
	logger  *slog.Logger
}

func (p *promptBuilder) build(ctx context.Context) string {
	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n\n")
	b.WriteString(p.catalog.Instructions())
	fmt.Fprintf(&b, "\n\nRepository: %s/%s\n", p.owner, p.repoNm)

	if listing := p.fileListing(ctx); listing != "" {
		b.WriteString("\nCurrent files:\n")
		b.WriteString(listing)
	}
	if status := p.deploymentStatus(ctx); status != "" {
		b.WriteString("\nDeployment: ")
		b.WriteString(status)
		b.WriteString("\n")
	}
	return b.String()
}

func (p *promptBuilder) fileListing(ctx context.Context) string {
	if p.repo == nil {
		return ""
	}
	paths, err := p.repo.ListFiles(ctx, p.owner, p.repoNm, defaultBranch)
	if err != nil {
		if p.logger != nil {
			p.logger.Debug("prompt file listing unavailable", "error", err)
		}
		return ""
	}
	if len(paths) == 0 {
		return ""
	}
	shown := paths
	omitted := 0
	if len(shown) > maxPromptListing {
		omitted = len(shown) - maxPromptListing
		shown = shown[:maxPromptListing]
	}
	listing := strings.Join(shown, "\n")
	if omitted > 0 {
		listing += fmt.Sprintf("\n(and %d more files)", omitted)
	}
	return listing + "\n"
}

func (p *promptBuilder) deploymentStatus(ctx context.Context) string {
	if p.deploy == nil {
		return ""
	}
	project, err := p.deploy.ProjectForRepo(ctx, p.owner, p.repoNm)
	if err != nil || project == nil {
		if err != nil && p.logger != nil {
			p.logger.Debug("prompt deployment status unavailable", "error", err)
		}
		return ""
	}
	deployment, err := p.deploy.LatestDeployment(ctx, project.ID)
	if err != nil || deployment == nil {
		return ""
	}
	return fmt.Sprintf("%s is %s (%s)", project.Name, deployment.State, deployment.URL)
}
