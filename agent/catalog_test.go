package agent

import (
	"strings"
	"testing"
)

func TestCatalogResolveCanonicalNames(t *testing.T) {
	c := NewCatalog()
	for _, name := range []string{
		"list_files", "read_file", "write_files", "delete_files",
		"search_code", "get_deployment_status", "get_deployment_logs",
		"create_branch", "create_pull_request",
	} {
		spec, ok := c.Resolve(name)
		if !ok {
			t.Errorf("Resolve(%q) not found", name)
			continue
		}
		if spec.Name != name {
			t.Errorf("Resolve(%q).Name = %q", name, spec.Name)
		}
	}
}

func TestCatalogResolveAliases(t *testing.T) {
	c := NewCatalog()
	tests := map[string]string{
		"list_repository_files": "list_files",
		"write_file":            "write_files",
		"search_in_repository":  "search_code",
	}
	for alias, canonical := range tests {
		spec, ok := c.Resolve(alias)
		if !ok {
			t.Errorf("Resolve(%q) not found", alias)
			continue
		}
		if spec.Name != canonical {
			t.Errorf("Resolve(%q).Name = %q, want %q", alias, spec.Name, canonical)
		}
	}
}

func TestCatalogRejectsUnknownTool(t *testing.T) {
	c := NewCatalog()
	if _, ok := c.Resolve("rm_rf_slash"); ok {
		t.Error("unknown tool resolved")
	}
}

func TestCatalogSpecsOrdered(t *testing.T) {
	c := NewCatalog()
	specs := c.Specs()
	if len(specs) != 9 {
		t.Fatalf("specs = %d, want 9", len(specs))
	}
	if specs[0].Name != "list_files" || specs[len(specs)-1].Name != "create_pull_request" {
		t.Errorf("order = %q ... %q", specs[0].Name, specs[len(specs)-1].Name)
	}
}

func TestCatalogInstructions(t *testing.T) {
	c := NewCatalog()
	instr := c.Instructions()

	if !strings.Contains(instr, "<tool_call>") {
		t.Error("instructions missing invocation syntax")
	}
	for _, spec := range c.Specs() {
		if !strings.Contains(instr, spec.Name) {
			t.Errorf("instructions missing tool %q", spec.Name)
		}
	}
	// Schemas should surface parameter names for the model.
	if !strings.Contains(instr, "commit_message") {
		t.Error("instructions missing write_files parameter schema")
	}
}
