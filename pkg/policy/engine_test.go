package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openfroyo/chainstage/pkg/engine"
)

const (
	signer = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	token  = "0x00000000000000000000000000000000000A0001"
	vault  = "0x000000000000000000000000000000000000c00a"
)

func testEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(context.Background(), logger, opts)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return eng
}

func submission(args ...string) *engine.Submission {
	return &engine.Submission{
		Network: "sepolia",
		ChainID: 11155111,
		From:    signer,
		Step:    "vault-init",
		Order:   10,
		Role:    "vault-proxy",
		Kind:    "initialize",
		Target:  vault,
		Method:  "initialize",
		Args:    args,
	}
}

func TestNewEngine(t *testing.T) {
	eng := testEngine(t, Options{})

	var names []string
	for _, p := range eng.ListPolicies() {
		if !p.Builtin {
			t.Errorf("policy %s is not marked built-in", p.Name)
		}
		names = append(names, p.Name)
	}

	want := []string{"mainnet-guard", "no-zero-address", "signer-as-argument"}
	if len(names) != len(want) {
		t.Fatalf("ListPolicies() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("ListPolicies()[%d] = %s, want %s", i, names[i], want[i])
		}
	}
}

func TestEvaluateSubmission(t *testing.T) {
	eng := testEngine(t, Options{})

	tests := []struct {
		name        string
		sub         *engine.Submission
		wantAllowed bool
		wantPolicy  string
	}{
		{
			name:        "clean initializer",
			sub:         submission(token, vault, "0x00000000000000000000000000000000000a0003"),
			wantAllowed: true,
		},
		{
			name:        "zero address argument",
			sub:         submission(token, ZeroAddress),
			wantAllowed: false,
			wantPolicy:  "no-zero-address",
		},
		{
			name: "zero address target",
			sub: func() *engine.Submission {
				s := submission(token)
				s.Target = ZeroAddress
				return s
			}(),
			wantAllowed: false,
			wantPolicy:  "no-zero-address",
		},
		{
			name: "mainnet without opt-in",
			sub: func() *engine.Submission {
				s := submission(token)
				s.Network, s.ChainID, s.Mainnet = "mainnet", 1, true
				return s
			}(),
			wantAllowed: false,
			wantPolicy:  "mainnet-guard",
		},
		{
			name:        "signer as argument only warns",
			sub:         submission(token, signer),
			wantAllowed: true,
			wantPolicy:  "signer-as-argument",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := eng.Evaluate(context.Background(), tt.sub)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if result.Allowed != tt.wantAllowed {
				t.Errorf("Allowed = %v, want %v (violations %+v)", result.Allowed, tt.wantAllowed, result.Violations)
			}
			if tt.wantPolicy == "" {
				if len(result.Violations) != 0 {
					t.Errorf("unexpected violations: %+v", result.Violations)
				}
				return
			}
			found := false
			for _, v := range result.Violations {
				if v.Policy == tt.wantPolicy && v.Message != "" {
					found = true
				}
			}
			if !found {
				t.Errorf("no violation from %s in %+v", tt.wantPolicy, result.Violations)
			}
		})
	}
}

func TestMainnetAllowed(t *testing.T) {
	eng := testEngine(t, Options{AllowMainnet: true})

	sub := submission(token)
	sub.Network, sub.ChainID, sub.Mainnet = "mainnet", 1, true

	result, err := eng.Evaluate(context.Background(), sub)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !result.Allowed {
		t.Errorf("mainnet denied despite opt-in: %+v", result.Violations)
	}
}

func TestDisablePolicy(t *testing.T) {
	eng := testEngine(t, Options{})

	if err := eng.DisablePolicy("no-zero-address"); err != nil {
		t.Fatalf("DisablePolicy() error = %v", err)
	}
	result, err := eng.Evaluate(context.Background(), submission(ZeroAddress))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !result.Allowed {
		t.Error("disabled policy still denied")
	}

	if err := eng.EnablePolicy("no-zero-address"); err != nil {
		t.Fatalf("EnablePolicy() error = %v", err)
	}
	result, _ = eng.Evaluate(context.Background(), submission(ZeroAddress))
	if result.Allowed {
		t.Error("re-enabled policy did not deny")
	}

	if err := eng.DisablePolicy("missing"); err == nil {
		t.Error("DisablePolicy() accepted an unknown policy")
	}
}

func TestOperatorPolicy(t *testing.T) {
	dir := t.TempDir()
	rego := `# Only the vault may be initialized on this network.
package ops.freeze

deny contains msg if {
	input.submission.kind == "initialize"
	input.submission.role != "vault-proxy"
	msg := sprintf("initialization of %s is frozen", [input.submission.role])
}
`
	if err := os.WriteFile(filepath.Join(dir, "freeze.rego"), []byte(rego), 0o644); err != nil {
		t.Fatal(err)
	}

	eng := testEngine(t, Options{Paths: []string{dir}})

	p, err := eng.GetPolicy("freeze")
	if err != nil {
		t.Fatalf("GetPolicy() error = %v", err)
	}
	if p.Severity != SeverityError || p.Description != "Only the vault may be initialized on this network." {
		t.Errorf("policy = %+v", p)
	}

	allowed, err := eng.Evaluate(context.Background(), submission(token))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !allowed.Allowed {
		t.Errorf("vault init denied: %+v", allowed.Violations)
	}

	sub := submission(token)
	sub.Role = "router-proxy"
	denied, err := eng.Evaluate(context.Background(), sub)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if denied.Allowed || len(denied.Violations) != 1 || denied.Violations[0].Message != "initialization of router-proxy is frozen" {
		t.Errorf("Evaluate() = %+v", denied)
	}
}

func TestOperatorPolicyErrors(t *testing.T) {
	tests := []struct {
		name string
		file string
		rego string
	}{
		{"syntax error", "broken.rego", "package broken\n\ndeny contains msg if {\n"},
		{"shadows builtin", "mainnet-guard.rego", "package other\n\ndeny contains \"x\" if { false }\n"},
		{"v0 syntax", "legacy.rego", "package legacy\n\ndeny[msg] {\n\tmsg := \"x\"\n}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, tt.file), []byte(tt.rego), 0o644); err != nil {
				t.Fatal(err)
			}
			logger := zerolog.New(nil).Level(zerolog.Disabled)
			if _, err := NewEngine(context.Background(), logger, Options{Paths: []string{dir}}); err == nil {
				t.Error("NewEngine() succeeded")
			}
		})
	}
}

func TestEngineImplementsPolicyGate(t *testing.T) {
	var _ engine.PolicyGate = testEngine(t, Options{})
}
