package ledger

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrNoSigningKey is returned when no signing seed could be located.
var ErrNoSigningKey = errors.New("no signing key configured")

// Signer is the transaction-signing identity. The key never leaves it.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner parses a hex encoded secp256k1 private key, with or without 0x.
func NewSigner(hexKey string) (*Signer, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, ErrNoSigningKey
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &Signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// SignerFromEnv reads a hex private key from the named environment variable.
func SignerFromEnv(name string) (*Signer, error) {
	v, ok := os.LookupEnv(name)
	if !ok || strings.TrimSpace(v) == "" {
		return nil, fmt.Errorf("%w: environment variable %s is empty", ErrNoSigningKey, name)
	}
	return NewSigner(v)
}

// LoadKeystore decrypts a go-ethereum keystore file.
func LoadKeystore(path, password string) (*Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keystore %s: %w", path, err)
	}
	k, err := keystore.DecryptKey(data, password)
	if err != nil {
		return nil, fmt.Errorf("decrypt keystore %s: %w", path, err)
	}
	return &Signer{key: k.PrivateKey, address: k.Address}, nil
}

// Address returns the account that signs transactions.
func (s *Signer) Address() common.Address {
	return s.address
}

// String prints the address only.
func (s *Signer) String() string {
	return s.address.Hex()
}

// TransactOpts binds the signer to a chain.
func (s *Signer) TransactOpts(chainID uint64) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(s.key, new(big.Int).SetUint64(chainID))
	if err != nil {
		return nil, fmt.Errorf("create transactor: %w", err)
	}
	return opts, nil
}
