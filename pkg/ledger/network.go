package ledger

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ErrUnsupportedNetwork is returned for network identifiers outside the
// supported set.
var ErrUnsupportedNetwork = errors.New("unsupported network")

// NetworkID names one of the supported networks.
type NetworkID string

const (
	Mainnet NetworkID = "mainnet"
	Kovan   NetworkID = "kovan"
	Rinkeby NetworkID = "rinkeby"
	Sepolia NetworkID = "sepolia"
)

// Profile is the identity of a supported network: its chain, the address of
// the wrapped base currency and a default connection endpoint.
type Profile struct {
	ID           NetworkID      `json:"id" yaml:"id"`
	ChainID      uint64         `json:"chain_id" yaml:"chain_id"`
	BaseCurrency common.Address `json:"base_currency" yaml:"base_currency"`
	Endpoint     string         `json:"endpoint" yaml:"endpoint"`
}

var profiles = map[NetworkID]Profile{
	Mainnet: {
		ID:           Mainnet,
		ChainID:      1,
		BaseCurrency: common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
		Endpoint:     "https://ethereum-rpc.publicnode.com",
	},
	Kovan: {
		ID:           Kovan,
		ChainID:      42,
		BaseCurrency: common.HexToAddress("0xd0A1E359811322d97991E03f863a0C30C2cF029C"),
	},
	Rinkeby: {
		ID:           Rinkeby,
		ChainID:      4,
		BaseCurrency: common.HexToAddress("0xc778417E063141139Fce010982780140Aa0cD5Ab"),
	},
	Sepolia: {
		ID:           Sepolia,
		ChainID:      11155111,
		BaseCurrency: common.HexToAddress("0xfFf9976782d46CC05630D1f6eBAb18b2324d6B14"),
		Endpoint:     "https://ethereum-sepolia-rpc.publicnode.com",
	},
}

// Lookup returns the profile for a network identifier.
func Lookup(id string) (Profile, error) {
	p, ok := profiles[NetworkID(strings.ToLower(strings.TrimSpace(id)))]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedNetwork, id, strings.Join(Names(), ", "))
	}
	return p, nil
}

// Profiles returns every supported profile ordered by name.
func Profiles() []Profile {
	out := make([]Profile, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Names returns the supported network identifiers ordered by name.
func Names() []string {
	out := make([]string, 0, len(profiles))
	for id := range profiles {
		out = append(out, string(id))
	}
	sort.Strings(out)
	return out
}

// WithEndpoint returns a copy of the profile using endpoint when it is set.
func (p Profile) WithEndpoint(endpoint string) Profile {
	if endpoint != "" {
		p.Endpoint = endpoint
	}
	return p
}

// IsMainnet reports whether the profile targets a production network.
func (p Profile) IsMainnet() bool {
	return p.ID == Mainnet
}
