package config

import (
	"context"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/openfroyo/chainstage/pkg/engine"
	"github.com/openfroyo/chainstage/pkg/ledger"
)

const (
	tokenAddr   = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	nftAddr     = "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"
	devAddr     = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	factoryAddr = "0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f"

	// First well-known development account.
	devKey     = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	devKeyAddr = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func testLoader() *Loader {
	l := NewLoader(zerolog.New(nil).Level(zerolog.Disabled))
	l.lookup = func(string) (string, bool) { return "", false }
	return l
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "chainstage.yaml", `
network: sepolia
rpc_url: https://rpc.sepolia.example.org
artifacts:
  dir: build/contracts
  files:
    Vault: VaultV2.json
addresses:
  token: "`+tokenAddr+`"
  nft: "`+nftAddr+`"
  dev: "`+devAddr+`"
  pair_factory: "`+factoryAddr+`"
signer:
  key_env: DEPLOYER_KEY
record:
  backend: sqlite
  path: state/deployment.db
confirmation:
  timeout: 10m
  poll_interval: 500ms
gas:
  fee_cap: 30
  tip_cap: 1.5
policy:
  files: [policies]
verify_dependencies: true
telemetry:
  logging:
    level: debug
`)

	cfg, err := testLoader().Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Network != "sepolia" || cfg.RPCURL != "https://rpc.sepolia.example.org" {
		t.Errorf("network = %s %s", cfg.Network, cfg.RPCURL)
	}
	if diff := cmp.Diff(ArtifactsConfig{Dir: "build/contracts", Files: map[string]string{"Vault": "VaultV2.json"}}, cfg.Artifacts); diff != "" {
		t.Errorf("Artifacts mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(AddressesConfig{Token: tokenAddr, NFT: nftAddr, Dev: devAddr, PairFactory: factoryAddr}, cfg.Addresses); diff != "" {
		t.Errorf("Addresses mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(RecordConfig{Backend: BackendSQLite, Path: "state/deployment.db"}, cfg.Record); diff != "" {
		t.Errorf("Record mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(ConfirmationConfig{Timeout: 10 * time.Minute, PollInterval: 500 * time.Millisecond}, cfg.Confirmation); diff != "" {
		t.Errorf("Confirmation mismatch (-want +got):\n%s", diff)
	}
	if cfg.Gas.FeeCap != 30 || cfg.Gas.TipCap != 1.5 {
		t.Errorf("Gas = %+v", cfg.Gas)
	}
	if !cfg.VerifyDependencies {
		t.Error("VerifyDependencies = false")
	}
	if cfg.Signer.KeyEnv != "DEPLOYER_KEY" {
		t.Errorf("Signer = %+v", cfg.Signer)
	}

	// Telemetry keeps defaults next to the overridden level.
	if cfg.Telemetry.Logging.Level != "debug" || cfg.Telemetry.Logging.Format != "console" {
		t.Errorf("Logging = %+v", cfg.Telemetry.Logging)
	}
	if cfg.Telemetry.Metrics.Namespace != "chainstage" {
		t.Errorf("Metrics.Namespace = %q", cfg.Telemetry.Metrics.Namespace)
	}

	if cfg.BaseDir != filepath.Dir(path) {
		t.Errorf("BaseDir = %s, want %s", cfg.BaseDir, filepath.Dir(path))
	}
	if got := cfg.RecordPath(); got != filepath.Join(filepath.Dir(path), "state", "deployment.db") {
		t.Errorf("RecordPath() = %s", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "minimal.yml", "network: kovan\n")

	cfg, err := testLoader().Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Artifacts.Dir != "artifacts" {
		t.Errorf("Artifacts.Dir = %q, want artifacts", cfg.Artifacts.Dir)
	}
	if diff := cmp.Diff(RecordConfig{Backend: BackendFile, Path: "deployment.yaml"}, cfg.Record); diff != "" {
		t.Errorf("Record mismatch (-want +got):\n%s", diff)
	}
	if cfg.Confirmation.Timeout != 0 {
		t.Errorf("Timeout = %v, want unbounded", cfg.Confirmation.Timeout)
	}
	if cfg.VerifyDependencies {
		t.Error("VerifyDependencies defaulted to true")
	}
	if cfg.Externals() != (engine.Externals{}) {
		t.Errorf("Externals() = %+v, want zero", cfg.Externals())
	}
}

func TestLoadFormats(t *testing.T) {
	tests := []struct {
		name        string
		file        string
		content     string
		wantNetwork string
		wantBackend string
		wantTimeout time.Duration
	}{
		{
			name: "cue",
			file: "chainstage.cue",
			content: `network: "rinkeby"
record: backend: "sqlite"
record: path:    "state.db"
confirmation: timeout: "90s"
`,
			wantNetwork: "rinkeby",
			wantBackend: BackendSQLite,
			wantTimeout: 90 * time.Second,
		},
		{
			name:        "json",
			file:        "chainstage.json",
			content:     `{"network": "mainnet", "confirmation": {"timeout": "1h"}}`,
			wantNetwork: "mainnet",
			wantBackend: BackendFile,
			wantTimeout: time.Hour,
		},
		{
			name:        "yaml",
			file:        "chainstage.yaml",
			content:     "network: sepolia\nconfirmation:\n  timeout: 0s\n",
			wantNetwork: "sepolia",
			wantBackend: BackendFile,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := testLoader().Load(context.Background(), writeConfig(t, tt.file, tt.content))
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.Network != tt.wantNetwork {
				t.Errorf("Network = %s, want %s", cfg.Network, tt.wantNetwork)
			}
			if cfg.Record.Backend != tt.wantBackend {
				t.Errorf("Record.Backend = %s, want %s", cfg.Record.Backend, tt.wantBackend)
			}
			if cfg.Confirmation.Timeout != tt.wantTimeout {
				t.Errorf("Timeout = %v, want %v", cfg.Confirmation.Timeout, tt.wantTimeout)
			}
		})
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "chainstage.yaml", "network: sepolia\nrecord:\n  path: from-file.yaml\n")

	env := map[string]string{
		EnvNetwork: "kovan",
		EnvRPCURL:  "http://localhost:8545",
		EnvRecord:  "/var/lib/chainstage/kovan.yaml",
	}
	l := testLoader()
	l.lookup = func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg, err := l.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Network != "kovan" || cfg.RPCURL != "http://localhost:8545" || cfg.Record.Path != "/var/lib/chainstage/kovan.yaml" {
		t.Errorf("overrides not applied: %s %s %s", cfg.Network, cfg.RPCURL, cfg.Record.Path)
	}
	if cfg.RecordPath() != "/var/lib/chainstage/kovan.yaml" {
		t.Errorf("absolute record path was rebased: %s", cfg.RecordPath())
	}

	// The environment alone may supply the network.
	bare := writeConfig(t, "bare.yaml", "")
	cfg, err = l.Load(context.Background(), bare)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Network != "kovan" {
		t.Errorf("Network = %s, want kovan", cfg.Network)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		content  string
		wantPath string
	}{
		{"missing network", "a.yaml", "", "network"},
		{"unknown field", "a.yaml", "network: sepolia\nnetwrok: kovan\n", "netwrok"},
		{"bad address", "a.yaml", "network: sepolia\naddresses:\n  token: \"0x1234\"\n", "addresses.token"},
		{"bad backend", "a.yaml", "network: sepolia\nrecord:\n  backend: postgres\n", "record.backend"},
		{"duration without unit", "a.yaml", "network: sepolia\nconfirmation:\n  timeout: 5\n", "confirmation.timeout"},
		{"tip above fee cap", "a.yaml", "network: sepolia\ngas:\n  fee_cap: 2\n  tip_cap: 3\n", "gas.tip_cap"},
		{"keystore without password", "a.yaml", "network: sepolia\nsigner:\n  keystore: key.json\n", "signer.password_env"},
		{"key env and keystore", "a.yaml", "network: sepolia\nsigner:\n  key_env: KEY\n  keystore: key.json\n  password_env: PW\n", "signer.key_env"},
		{"bad rpc url", "a.yaml", "network: sepolia\nrpc_url: not a url\n", "rpc_url"},
		{"bad log level", "a.yaml", "network: sepolia\ntelemetry:\n  logging:\n    level: loud\n", "telemetry.logging.level"},
		{"cue syntax", "a.cue", "network: \"sepolia\n", ""},
		{"yaml syntax", "a.yaml", "network: [sepolia\n", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := testLoader().Load(context.Background(), writeConfig(t, tt.file, tt.content))
			if err == nil {
				t.Fatal("Load() succeeded")
			}
			var le *LoadError
			if !errors.As(err, &le) {
				t.Fatalf("Load() error = %T %v, want *LoadError", err, err)
			}
			if tt.wantPath == "" {
				return
			}
			found := false
			for _, ve := range le.Errors {
				if strings.HasPrefix(ve.Path, "#") {
					t.Errorf("error path %q names the schema definition", ve.Path)
				}
				if strings.HasPrefix(ve.Path, tt.wantPath) {
					found = true
				}
			}
			if !found {
				t.Errorf("no error at %s in %v", tt.wantPath, err)
			}
		})
	}
}

func TestCUEPath(t *testing.T) {
	tests := []struct {
		sel  []string
		want string
	}{
		{nil, ""},
		{[]string{"#Config"}, ""},
		{[]string{"#Config", "netwrok"}, "netwrok"},
		{[]string{"#Config", "addresses", "token"}, "addresses.token"},
		{[]string{"record", "backend"}, "record.backend"},
	}
	for _, tt := range tests {
		if got := cuePath(tt.sel); got != tt.want {
			t.Errorf("cuePath(%v) = %q, want %q", tt.sel, got, tt.want)
		}
	}
}

func TestLoadUnsupported(t *testing.T) {
	_, err := testLoader().Load(context.Background(), writeConfig(t, "a.yaml", "network: ropsten\n"))
	if !errors.Is(err, ledger.ErrUnsupportedNetwork) {
		t.Errorf("Load() error = %v, want ErrUnsupportedNetwork", err)
	}

	if _, err := testLoader().Load(context.Background(), writeConfig(t, "a.toml", "network = 1")); err == nil {
		t.Error("Load() accepted a .toml file")
	}

	if _, err := testLoader().Load(context.Background(), filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() accepted a missing file")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := testLoader().Load(ctx, writeConfig(t, "a.yaml", "network: sepolia\n")); !errors.Is(err, context.Canceled) {
		t.Errorf("Load() error = %v, want context.Canceled", err)
	}
}

func TestSkeletonLoads(t *testing.T) {
	cfg, err := testLoader().Load(context.Background(), writeConfig(t, "chainstage.yaml", string(Skeleton("kovan"))))
	if err != nil {
		t.Fatalf("Load(Skeleton) error = %v", err)
	}
	if cfg.Network != "kovan" {
		t.Errorf("Network = %s", cfg.Network)
	}
	if cfg.Signer.KeyEnv != DefaultKeyEnv {
		t.Errorf("Signer.KeyEnv = %s", cfg.Signer.KeyEnv)
	}
	if cfg.Confirmation.PollInterval != 2*time.Second {
		t.Errorf("PollInterval = %v", cfg.Confirmation.PollInterval)
	}
	if !strings.Contains(string(Skeleton("")), "network: sepolia") {
		t.Error("Skeleton(\"\") does not default to sepolia")
	}
}

func TestProfile(t *testing.T) {
	cfg := Default()
	cfg.Network = "sepolia"
	cfg.RPCURL = "http://localhost:8545"

	p, err := cfg.Profile()
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if p.ChainID != 11155111 || p.Endpoint != "http://localhost:8545" {
		t.Errorf("Profile() = %+v", p)
	}

	cfg.Network = "goerli"
	if _, err := cfg.Profile(); !errors.Is(err, ledger.ErrUnsupportedNetwork) {
		t.Errorf("Profile() error = %v", err)
	}
}

func TestExternals(t *testing.T) {
	cfg := Default()
	cfg.Addresses = AddressesConfig{Token: tokenAddr, Dev: devAddr}

	want := engine.Externals{
		Token: common.HexToAddress(tokenAddr),
		Dev:   common.HexToAddress(devAddr),
	}
	if diff := cmp.Diff(want, cfg.Externals()); diff != "" {
		t.Errorf("Externals() mismatch (-want +got):\n%s", diff)
	}
}

func TestGweiToWei(t *testing.T) {
	tests := []struct {
		gwei float64
		want *big.Int
	}{
		{0, nil},
		{-1, nil},
		{1, big.NewInt(1_000_000_000)},
		{1.5, big.NewInt(1_500_000_000)},
		{30, big.NewInt(30_000_000_000)},
	}
	for _, tt := range tests {
		got := GweiToWei(tt.gwei)
		if (got == nil) != (tt.want == nil) || (got != nil && got.Cmp(tt.want) != 0) {
			t.Errorf("GweiToWei(%v) = %v, want %v", tt.gwei, got, tt.want)
		}
	}
}

func TestLedgerOptions(t *testing.T) {
	cfg := Default()
	cfg.Confirmation = ConfirmationConfig{Timeout: time.Minute, PollInterval: time.Second}
	cfg.Gas = GasConfig{FeeCap: 20}

	opts := cfg.LedgerOptions(zerolog.Nop())
	if opts.ConfirmationTimeout != time.Minute || opts.PollInterval != time.Second {
		t.Errorf("LedgerOptions() = %+v", opts)
	}
	if opts.GasFeeCap.Cmp(big.NewInt(20_000_000_000)) != 0 || opts.GasTipCap != nil {
		t.Errorf("gas = %v / %v", opts.GasFeeCap, opts.GasTipCap)
	}
}

func TestLoadSigner(t *testing.T) {
	cfg := Default()
	cfg.Signer.KeyEnv = "CHAINSTAGE_TEST_DEPLOYER_KEY"
	t.Setenv("CHAINSTAGE_TEST_DEPLOYER_KEY", devKey)

	signer, err := cfg.LoadSigner()
	if err != nil {
		t.Fatalf("LoadSigner() error = %v", err)
	}
	if signer.Address() != common.HexToAddress(devKeyAddr) {
		t.Errorf("Address() = %s, want %s", signer.Address(), devKeyAddr)
	}

	t.Setenv(DefaultKeyEnv, "")
	cfg.Signer.KeyEnv = ""
	if _, err := cfg.LoadSigner(); !errors.Is(err, ledger.ErrNoSigningKey) {
		t.Errorf("LoadSigner() error = %v, want ErrNoSigningKey", err)
	}

	cfg.Signer = SignerConfig{Keystore: "key.json", PasswordEnv: "CHAINSTAGE_TEST_UNSET_PASSWORD"}
	if _, err := cfg.LoadSigner(); !errors.Is(err, ledger.ErrNoSigningKey) {
		t.Errorf("LoadSigner() error = %v, want ErrNoSigningKey", err)
	}
}

func TestResolvePaths(t *testing.T) {
	cfg := Default()
	cfg.BaseDir = "/srv/deploy"
	cfg.Policy.Files = []string{"policies", "/etc/chainstage/extra.rego"}
	cfg.Telemetry.Metrics.TextfilePath = "metrics/chainstage.prom"
	cfg.Network = "sepolia"

	if got := cfg.ArtifactLoader().Dir(); got != "/srv/deploy/artifacts" {
		t.Errorf("ArtifactLoader().Dir() = %s", got)
	}

	opts := cfg.PolicyOptions(true)
	if diff := cmp.Diff([]string{"/srv/deploy/policies", "/etc/chainstage/extra.rego"}, opts.Paths); diff != "" {
		t.Errorf("PolicyOptions().Paths mismatch (-want +got):\n%s", diff)
	}
	if !opts.AllowMainnet {
		t.Error("AllowMainnet not passed through")
	}

	tel := cfg.TelemetryConfig("1.2.3")
	if tel.Environment != "sepolia" || tel.ServiceVersion != "1.2.3" || tel.Metrics.TextfilePath != "/srv/deploy/metrics/chainstage.prom" {
		t.Errorf("TelemetryConfig() = %+v", tel)
	}
	if cfg.Telemetry.Metrics.TextfilePath != "metrics/chainstage.prom" {
		t.Error("TelemetryConfig() mutated the config")
	}
}

func TestSchemaRegistry(t *testing.T) {
	sr := NewSchemaRegistry(nil)

	if diff := cmp.Diff([]string{SchemaConfig}, sr.ListSchemas()); diff != "" {
		t.Errorf("ListSchemas() mismatch (-want +got):\n%s", diff)
	}
	if _, err := sr.Definition(SchemaConfig, "#Config"); err != nil {
		t.Errorf("Definition(#Config) error = %v", err)
	}
	if _, err := sr.Definition(SchemaConfig, "#Missing"); err == nil {
		t.Error("Definition(#Missing) succeeded")
	}
	if _, err := sr.Definition("missing", "#Config"); err == nil {
		t.Error("Definition() of unknown schema succeeded")
	}
	if err := sr.RegisterSchema("broken", "#X: {"); err == nil {
		t.Error("RegisterSchema() accepted invalid CUE")
	}
}
