package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/openfroyo/chainstage/pkg/telemetry"
)

// DefaultKeyEnv is the environment variable read for the signing key when
// the signer section names neither a variable nor a keystore.
const DefaultKeyEnv = "CHAINSTAGE_PRIVATE_KEY"

// Record backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config is the configuration of a chainstage invocation.
type Config struct {
	// Network selects the network profile.
	Network string `yaml:"network" json:"network" validate:"required"`

	// RPCURL overrides the profile endpoint.
	RPCURL string `yaml:"rpc_url,omitempty" json:"rpc_url,omitempty" validate:"omitempty,url"`

	Artifacts    ArtifactsConfig    `yaml:"artifacts" json:"artifacts"`
	Addresses    AddressesConfig    `yaml:"addresses" json:"addresses"`
	Signer       SignerConfig       `yaml:"signer" json:"signer"`
	Record       RecordConfig       `yaml:"record" json:"record"`
	Confirmation ConfirmationConfig `yaml:"confirmation" json:"confirmation"`
	Gas          GasConfig          `yaml:"gas" json:"gas"`
	Policy       PolicyConfig       `yaml:"policy" json:"policy"`

	// VerifyDependencies checks that dependency addresses carry code before
	// each submission.
	VerifyDependencies bool `yaml:"verify_dependencies" json:"verify_dependencies"`

	Telemetry telemetry.Config `yaml:"telemetry" json:"telemetry"`

	// BaseDir is the directory relative paths are resolved against: the
	// directory of the config file.
	BaseDir string `yaml:"-" json:"-"`

	// Source is the file the configuration was loaded from.
	Source string `yaml:"-" json:"-"`
}

// ArtifactsConfig locates the compiled contract bundles.
type ArtifactsConfig struct {
	Dir string `yaml:"dir" json:"dir" validate:"required"`

	// Files maps artifact identifiers to file names that do not follow the
	// <ID>.json convention.
	Files map[string]string `yaml:"files,omitempty" json:"files,omitempty" validate:"dive,keys,required,endkeys,required"`
}

// AddressesConfig holds the collaborators deployed outside the plan.
type AddressesConfig struct {
	Token       string `yaml:"token,omitempty" json:"token,omitempty" validate:"omitempty,eth_addr"`
	NFT         string `yaml:"nft,omitempty" json:"nft,omitempty" validate:"omitempty,eth_addr"`
	Dev         string `yaml:"dev,omitempty" json:"dev,omitempty" validate:"omitempty,eth_addr"`
	PairFactory string `yaml:"pair_factory,omitempty" json:"pair_factory,omitempty" validate:"omitempty,eth_addr"`
}

// SignerConfig locates the signing seed. The seed itself never appears in
// the file.
type SignerConfig struct {
	// KeyEnv names an environment variable holding a hex private key.
	KeyEnv string `yaml:"key_env,omitempty" json:"key_env,omitempty" validate:"excluded_with=Keystore"`

	// Keystore is an encrypted go-ethereum keystore file.
	Keystore string `yaml:"keystore,omitempty" json:"keystore,omitempty"`

	// PasswordEnv names the environment variable holding the keystore
	// password.
	PasswordEnv string `yaml:"password_env,omitempty" json:"password_env,omitempty" validate:"required_with=Keystore"`
}

// RecordConfig selects the deployment record store.
type RecordConfig struct {
	Backend string `yaml:"backend" json:"backend" validate:"oneof=file sqlite"`
	Path    string `yaml:"path" json:"path" validate:"required"`
}

// ConfirmationConfig tunes confirmation waits.
type ConfirmationConfig struct {
	// Timeout bounds each confirmation wait. Zero waits indefinitely.
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty" validate:"gte=0"`

	// PollInterval is how often receipts are polled.
	PollInterval time.Duration `yaml:"poll_interval,omitempty" json:"poll_interval,omitempty" validate:"gte=0"`
}

// GasConfig overrides suggested EIP-1559 fees, in gwei. Zero keeps the
// node's suggestion.
type GasConfig struct {
	FeeCap float64 `yaml:"fee_cap,omitempty" json:"fee_cap,omitempty" validate:"gte=0"`
	TipCap float64 `yaml:"tip_cap,omitempty" json:"tip_cap,omitempty" validate:"gte=0"`
}

// PolicyConfig lists operator policy files and directories.
type PolicyConfig struct {
	Files []string `yaml:"files,omitempty" json:"files,omitempty" validate:"dive,required"`
}

// ValidationError represents a validation error with location information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the path to the offending field (e.g. "record.backend").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`
}

// String renders the error as file:line:col: path: message.
func (e ValidationError) String() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d:%d", e.Line, e.Column)
		}
		b.WriteString(": ")
	}
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

// LoadError collects the validation errors of a configuration.
type LoadError struct {
	Errors []ValidationError
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	if len(e.Errors) == 1 {
		return "invalid configuration: " + e.Errors[0].String()
	}
	lines := make([]string, 0, len(e.Errors))
	for _, ve := range e.Errors {
		lines = append(lines, "  "+ve.String())
	}
	return fmt.Sprintf("invalid configuration (%d errors):\n%s", len(e.Errors), strings.Join(lines, "\n"))
}
