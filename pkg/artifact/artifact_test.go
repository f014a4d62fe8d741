package artifact

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const proxyBundle = `{
  "contractName": "AdminUpgradeabilityProxy",
  "bytecode": "0x6080604052",
  "abi": [
    {"type": "constructor", "stateMutability": "payable", "inputs": [
      {"name": "_logic", "type": "address"},
      {"name": "_admin", "type": "address"},
      {"name": "_data", "type": "bytes"}
    ]},
    {"type": "function", "name": "implementation", "inputs": [], "outputs": [{"name": "", "type": "address"}], "stateMutability": "view"},
    {"type": "function", "name": "upgradeTo", "inputs": [{"name": "newImplementation", "type": "address"}], "outputs": [], "stateMutability": "nonpayable"}
  ]
}`

const adminBundle = `{
  "contractName": "ProxyAdmin",
  "bytecode": "0x60806040",
  "abi": [
    {"type": "function", "name": "owner", "inputs": [], "outputs": [{"name": "", "type": "address"}], "stateMutability": "view"}
  ]
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestLoadConstructorSignature(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "AdminUpgradeabilityProxy.json", proxyBundle)
	writeFile(t, dir, "ProxyAdmin.json", adminBundle)

	loader := NewLoader(dir, nil)
	ctx := context.Background()

	tests := []struct {
		id   string
		name string
		want string
	}{
		{"AdminUpgradeabilityProxy", "AdminUpgradeabilityProxy", "constructor(address _logic, address _admin, bytes _data)"},
		{"ProxyAdmin", "ProxyAdmin", NoConstructorArgs},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			art, err := loader.Load(ctx, tt.id)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if art.Name != tt.name {
				t.Errorf("Name = %q, want %q", art.Name, tt.name)
			}
			if art.ConstructorSignature != tt.want {
				t.Errorf("ConstructorSignature = %q, want %q", art.ConstructorSignature, tt.want)
			}
			if !art.Deployable() {
				t.Error("expected bytecode to be present")
			}
		})
	}
}

func TestLoadMethodsInOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "AdminUpgradeabilityProxy.json", proxyBundle)

	art, err := NewLoader(dir, nil).Load(context.Background(), "AdminUpgradeabilityProxy")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := []string{"implementation()", "upgradeTo(address newImplementation)"}
	if diff := cmp.Diff(want, art.Methods()); diff != "" {
		t.Errorf("Methods() mismatch (-want +got):\n%s", diff)
	}
	if !art.HasMethod("upgradeTo") {
		t.Error("HasMethod(upgradeTo) = false")
	}
	if art.HasMethod("initialize") {
		t.Error("HasMethod(initialize) = true")
	}
}

func TestLoadResolution(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "artifacts/contracts/Admin.sol/ProxyAdmin.json", adminBundle)
	writeFile(t, dir, "artifacts/contracts/Admin.sol/ProxyAdmin.dbg.json", `{"buildInfo": "x"}`)
	writeFile(t, dir, "custom/proxy-v2.json", proxyBundle)

	loader := NewLoader(dir, map[string]string{"Proxy": "custom/proxy-v2.json"})
	ctx := context.Background()

	art, err := loader.Load(ctx, "ProxyAdmin")
	if err != nil {
		t.Fatalf("nested Load() error = %v", err)
	}
	if filepath.Base(art.Path) != "ProxyAdmin.json" {
		t.Errorf("Path = %s", art.Path)
	}

	art, err = loader.Load(ctx, "Proxy")
	if err != nil {
		t.Fatalf("mapped Load() error = %v", err)
	}
	if art.Name != "AdminUpgradeabilityProxy" {
		t.Errorf("Name = %q", art.Name)
	}
	if art.ID != "Proxy" {
		t.Errorf("ID = %q", art.ID)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "Broken.json", `{"contractName": "Broken", "abi": `)
	writeFile(t, dir, "NoABI.json", `{"contractName": "NoABI", "bytecode": "0x00"}`)
	writeFile(t, dir, "BadABI.json", `{"contractName": "BadABI", "bytecode": "0x00", "abi": {"type": "function"}}`)
	writeFile(t, dir, "BadCode.json", `{"contractName": "BadCode", "bytecode": "0xzz", "abi": []}`)
	writeFile(t, dir, "TwoCtors.json", `{"contractName": "TwoCtors", "bytecode": "0x00", "abi": [
		{"type": "constructor", "inputs": []},
		{"type": "constructor", "inputs": []}
	]}`)

	loader := NewLoader(dir, map[string]string{"Ghost": "ghost.json"})
	ctx := context.Background()

	tests := []struct {
		id   string
		want error
	}{
		{"Missing", ErrNotFound},
		{"Ghost", ErrNotFound},
		{"", ErrNotFound},
		{"Broken", ErrMalformed},
		{"NoABI", ErrMalformed},
		{"BadABI", ErrMalformed},
		{"BadCode", ErrMalformed},
		{"TwoCtors", ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			_, err := loader.Load(ctx, tt.id)
			if !errors.Is(err, tt.want) {
				t.Errorf("Load(%q) error = %v, want %v", tt.id, err, tt.want)
			}
		})
	}
}

func TestParseFoundryBytecode(t *testing.T) {
	art, err := Parse([]byte(`{"contractName": "I", "bytecode": {"object": "0x6001"}, "abi": []}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if diff := cmp.Diff([]byte{0x60, 0x01}, art.Bytecode); diff != "" {
		t.Errorf("Bytecode mismatch (-want +got):\n%s", diff)
	}

	iface, err := Parse([]byte(`{"contractName": "IERC20", "bytecode": "0x", "abi": []}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if iface.Deployable() {
		t.Error("interface-only artifact reported as deployable")
	}
}

func TestLoadCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewLoader(t.TempDir(), nil).Load(ctx, "ProxyAdmin"); !errors.Is(err, context.Canceled) {
		t.Errorf("Load() error = %v, want context.Canceled", err)
	}
}
