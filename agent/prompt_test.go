package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/zalusdev/zalus/vercel"
)

func TestPromptIncludesFilesAndDeployment(t *testing.T) {
	repo := newFakeRepo()
	repo.files["main.go"] = "package main"
	deploy := &fakeDeploy{
		project:    &vercel.Project{ID: "prj_1", Name: "app"},
		deployment: &vercel.Deployment{UID: "dpl_1", State: "READY", URL: "app.vercel.app"},
	}
	b := &promptBuilder{
		catalog: NewCatalog(),
		repo:    repo,
		deploy:  deploy,
		owner:   "acme",
		repoNm:  "app",
	}

	prompt := b.build(context.Background())
	if !strings.Contains(prompt, "acme/app") {
		t.Error("prompt missing repository name")
	}
	if !strings.Contains(prompt, "main.go") {
		t.Error("prompt missing file listing")
	}
	if !strings.Contains(prompt, "READY") {
		t.Error("prompt missing deployment status")
	}
	if !strings.Contains(prompt, "list_files") {
		t.Error("prompt missing tool instructions")
	}
}

func TestPromptDegradesWhenContextUnavailable(t *testing.T) {
	repo := newFakeRepo()
	repo.failWith = errors.New("github down")
	b := &promptBuilder{
		catalog: NewCatalog(),
		repo:    repo,
		owner:   "acme",
		repoNm:  "app",
	}

	prompt := b.build(context.Background())
	if prompt == "" {
		t.Fatal("prompt must never be empty")
	}
	if strings.Contains(prompt, "Current files:") {
		t.Error("failed listing should omit the section entirely")
	}
	if !strings.Contains(prompt, "list_files") {
		t.Error("tool instructions must survive context failures")
	}
}

func TestPromptListingCapped(t *testing.T) {
	repo := newFakeRepo()
	for i := 0; i < maxPromptListing+20; i++ {
		repo.files[fmt.Sprintf("src/file_%03d.go", i)] = "x"
	}
	b := &promptBuilder{
		catalog: NewCatalog(),
		repo:    repo,
		owner:   "acme",
		repoNm:  "app",
	}

	prompt := b.build(context.Background())
	if !strings.Contains(prompt, "more files)") {
		t.Error("expected listing overflow note")
	}
}
