package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/rs/zerolog"

	"github.com/openfroyo/chainstage/pkg/artifact"
	"github.com/openfroyo/chainstage/pkg/engine"
	"github.com/openfroyo/chainstage/pkg/ledger"
	"github.com/openfroyo/chainstage/pkg/policy"
	"github.com/openfroyo/chainstage/pkg/telemetry"
)

// ResolvePath resolves p against BaseDir unless it is absolute.
func (c *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) || c.BaseDir == "" {
		return p
	}
	return filepath.Join(c.BaseDir, p)
}

// Profile returns the selected network profile with the endpoint override
// applied.
func (c *Config) Profile() (ledger.Profile, error) {
	p, err := ledger.Lookup(c.Network)
	if err != nil {
		return ledger.Profile{}, err
	}
	return p.WithEndpoint(c.RPCURL), nil
}

// Externals returns the collaborator addresses. Absent entries stay zero.
func (c *Config) Externals() engine.Externals {
	return engine.Externals{
		Token:       hexAddress(c.Addresses.Token),
		NFT:         hexAddress(c.Addresses.NFT),
		Dev:         hexAddress(c.Addresses.Dev),
		PairFactory: hexAddress(c.Addresses.PairFactory),
	}
}

func hexAddress(s string) common.Address {
	if s == "" {
		return common.Address{}
	}
	return common.HexToAddress(s)
}

// LoadSigner locates the signing seed: a keystore file when configured,
// otherwise a hex key in the named (or default) environment variable.
func (c *Config) LoadSigner() (*ledger.Signer, error) {
	if c.Signer.Keystore != "" {
		password, ok := os.LookupEnv(c.Signer.PasswordEnv)
		if !ok {
			return nil, fmt.Errorf("%w: keystore password variable %s is not set", ledger.ErrNoSigningKey, c.Signer.PasswordEnv)
		}
		return ledger.LoadKeystore(c.ResolvePath(c.Signer.Keystore), password)
	}

	name := c.Signer.KeyEnv
	if name == "" {
		name = DefaultKeyEnv
	}
	return ledger.SignerFromEnv(name)
}

// LedgerOptions returns the connection options.
func (c *Config) LedgerOptions(logger zerolog.Logger) ledger.Options {
	return ledger.Options{
		PollInterval:        c.Confirmation.PollInterval,
		ConfirmationTimeout: c.Confirmation.Timeout,
		GasFeeCap:           GweiToWei(c.Gas.FeeCap),
		GasTipCap:           GweiToWei(c.Gas.TipCap),
		Logger:              logger,
	}
}

// GweiToWei converts a gwei amount to wei. Zero and negative amounts
// return nil, which keeps the node's suggestion.
func GweiToWei(gwei float64) *big.Int {
	if gwei <= 0 {
		return nil
	}
	f := new(big.Float).Mul(big.NewFloat(gwei), big.NewFloat(params.GWei))
	wei, _ := f.Int(nil)
	return wei
}

// ArtifactLoader returns a loader rooted at the artifact directory.
func (c *Config) ArtifactLoader() *artifact.Loader {
	return artifact.NewLoader(c.ResolvePath(c.Artifacts.Dir), c.Artifacts.Files)
}

// PolicyOptions returns the policy engine options.
func (c *Config) PolicyOptions(allowMainnet bool) policy.Options {
	paths := make([]string, 0, len(c.Policy.Files))
	for _, f := range c.Policy.Files {
		paths = append(paths, c.ResolvePath(f))
	}
	return policy.Options{AllowMainnet: allowMainnet, Paths: paths}
}

// RecordPath returns the resolved record location.
func (c *Config) RecordPath() string {
	return c.ResolvePath(c.Record.Path)
}

// TelemetryConfig returns the telemetry configuration labelled with the
// network.
func (c *Config) TelemetryConfig(version string) *telemetry.Config {
	tel := c.Telemetry
	if tel.Environment == "" {
		tel.Environment = c.Network
	}
	if version != "" {
		tel.ServiceVersion = version
	}
	if tel.Metrics.TextfilePath != "" {
		tel.Metrics.TextfilePath = c.ResolvePath(tel.Metrics.TextfilePath)
	}
	return &tel
}
