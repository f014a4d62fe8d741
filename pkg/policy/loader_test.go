package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
}

func TestLoadFromFile_Rego(t *testing.T) {
	loader := NewLoader(zerolog.New(nil).Level(zerolog.Disabled))

	policyFile := filepath.Join(t.TempDir(), "gas-limit.rego")
	writeFile(t, policyFile, `# Flags large deployments.
# severity: warning
package ops.gas

deny contains "large" if { input.submission.kind == "deploy" }
`)

	policy, err := loader.loadFromFile(context.Background(), policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}

	if policy.Name != "gas-limit" {
		t.Errorf("Name = %q, want gas-limit", policy.Name)
	}
	if policy.Description != "Flags large deployments." {
		t.Errorf("Description = %q", policy.Description)
	}
	if policy.Severity != SeverityWarning {
		t.Errorf("Severity = %q, want warning", policy.Severity)
	}
	if policy.Source != policyFile || !policy.Enabled || policy.Builtin {
		t.Errorf("unexpected policy fields %+v", policy)
	}

	// Cached on the second load.
	again, _ := loader.loadFromFile(context.Background(), policyFile)
	if again != policy {
		t.Error("second load was not served from cache")
	}
	loader.ClearCache()
	again, _ = loader.loadFromFile(context.Background(), policyFile)
	if again == policy {
		t.Error("ClearCache() kept the entry")
	}
}

func TestLoadFromFile_JSON(t *testing.T) {
	loader := NewLoader(zerolog.New(nil).Level(zerolog.Disabled))
	dir := t.TempDir()

	good := filepath.Join(dir, "good.json")
	writeFile(t, good, `{"name": "json-policy", "description": "from json", "rego": "package j\n\ndeny contains \"x\" if { false }\n", "enabled": true}`)

	policy, err := loader.loadFromFile(context.Background(), good)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if policy.Name != "json-policy" || policy.Severity != SeverityError {
		t.Errorf("policy = %+v", policy)
	}

	for name, content := range map[string]string{
		"noname.json":  `{"rego": "package x"}`,
		"norego.json":  `{"name": "x"}`,
		"invalid.json": `{`,
	} {
		path := filepath.Join(dir, name)
		writeFile(t, path, content)
		if _, err := loader.loadFromFile(context.Background(), path); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoadFromPaths_Directory(t *testing.T) {
	loader := NewLoader(zerolog.New(nil).Level(zerolog.Disabled))
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "a.rego"), "package a\n")
	writeFile(t, filepath.Join(dir, "nested", "b.rego"), "package b\n")
	writeFile(t, filepath.Join(dir, "a_test.rego"), "package a_test\n")
	writeFile(t, filepath.Join(dir, "README.md"), "docs")

	policies, err := loader.LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("LoadFromPaths() error = %v", err)
	}
	if len(policies) != 2 {
		t.Fatalf("loaded %d policies, want 2", len(policies))
	}
	if policies[0].Name != "a" || policies[1].Name != "b" {
		t.Errorf("policies = %s, %s", policies[0].Name, policies[1].Name)
	}
}

func TestLoadFromPaths_Errors(t *testing.T) {
	loader := NewLoader(zerolog.New(nil).Level(zerolog.Disabled))
	dir := t.TempDir()

	if _, err := loader.LoadFromPaths(context.Background(), []string{filepath.Join(dir, "missing")}); err == nil {
		t.Error("missing path accepted")
	}

	writeFile(t, filepath.Join(dir, "one", "dup.rego"), "package one\n")
	writeFile(t, filepath.Join(dir, "two", "dup.rego"), "package two\n")
	_, err := loader.LoadFromPaths(context.Background(), []string{filepath.Join(dir, "one"), filepath.Join(dir, "two")})
	if err == nil {
		t.Error("duplicate policy names accepted")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := loader.LoadFromPaths(ctx, []string{filepath.Join(dir, "one")}); err == nil {
		t.Error("canceled context accepted")
	}
}
