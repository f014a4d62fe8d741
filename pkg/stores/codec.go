package stores

import (
	"bytes"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/chainstage/pkg/engine"
	"github.com/openfroyo/chainstage/pkg/ledger"
)

// Document is the YAML form of a record. Operators may edit it by hand
// between invocations.
type Document struct {
	Roles   RoleMap                 `yaml:"roles"`
	Pending map[string]PendingEntry `yaml:"pending,omitempty"`
}

// RoleMap holds one entry per role. It encodes in deployment order.
type RoleMap map[string]RoleEntry

// RoleEntry is the YAML form of engine.Entry.
type RoleEntry struct {
	Address     string `yaml:"address,omitempty"`
	Initialized bool   `yaml:"initialized,omitempty"`
}

// PendingEntry is the YAML form of ledger.PendingTransaction.
type PendingEntry struct {
	Hash            string    `yaml:"hash"`
	From            string    `yaml:"from"`
	To              string    `yaml:"to,omitempty"`
	Nonce           uint64    `yaml:"nonce"`
	ContractAddress string    `yaml:"contract_address,omitempty"`
	Role            string    `yaml:"role,omitempty"`
	SubmittedAt     time.Time `yaml:"submitted_at"`
}

// MarshalYAML emits known roles in plan order followed by the rest.
func (m RoleMap) MarshalYAML() (interface{}, error) {
	record := engine.NewRecord()
	for name := range m {
		record.Set(engine.Role(name), engine.Entry{})
	}

	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, role := range record.Roles() {
		var value yaml.Node
		if err := value.Encode(m[string(role)]); err != nil {
			return nil, err
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: string(role)},
			&value,
		)
	}
	return node, nil
}

// NewDocument converts a record into its YAML form.
func NewDocument(record *engine.Record) *Document {
	doc := &Document{Roles: make(RoleMap)}
	if record == nil {
		return doc
	}
	for role, e := range record.Entries() {
		entry := RoleEntry{Initialized: e.Initialized}
		if e.HasAddress() {
			entry.Address = e.Address.Hex()
		}
		doc.Roles[string(role)] = entry
	}
	return doc
}

// Record validates the document and converts it into a record.
func (d *Document) Record() (*engine.Record, error) {
	record := engine.NewRecord()
	for name, entry := range d.Roles {
		role, err := engine.ParseRole(name)
		if err != nil {
			return nil, err
		}
		e := engine.Entry{Initialized: entry.Initialized}
		if entry.Address != "" {
			addr, err := parseAddress(entry.Address)
			if err != nil {
				return nil, fmt.Errorf("role %s: %w", name, err)
			}
			e.Address = &addr
		}
		record.Set(role, e)
	}
	return record, nil
}

// DecodeDocument parses a YAML record document. Empty input yields an empty
// document.
func DecodeDocument(data []byte) (*Document, error) {
	doc := &Document{}
	if len(bytes.TrimSpace(data)) > 0 {
		if err := yaml.Unmarshal(data, doc); err != nil {
			return nil, fmt.Errorf("failed to parse record: %w", err)
		}
	}
	if doc.Roles == nil {
		doc.Roles = make(RoleMap)
	}
	return doc, nil
}

// Encode renders the document as YAML.
func (d *Document) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeRecord parses and validates a YAML record.
func DecodeRecord(data []byte) (*engine.Record, error) {
	doc, err := DecodeDocument(data)
	if err != nil {
		return nil, err
	}
	return doc.Record()
}

// EncodeRecord renders a record as YAML without any pending transactions.
func EncodeRecord(record *engine.Record) ([]byte, error) {
	return NewDocument(record).Encode()
}

func newPendingEntry(tx *ledger.PendingTransaction) PendingEntry {
	entry := PendingEntry{
		Hash:        tx.Hash.Hex(),
		From:        tx.From.Hex(),
		Nonce:       tx.Nonce,
		Role:        tx.Role,
		SubmittedAt: tx.SubmittedAt.UTC(),
	}
	if tx.To != nil {
		entry.To = tx.To.Hex()
	}
	if tx.ContractAddress != (common.Address{}) {
		entry.ContractAddress = tx.ContractAddress.Hex()
	}
	return entry
}

func (p PendingEntry) transaction() (*ledger.PendingTransaction, error) {
	hash, err := parseHash(p.Hash)
	if err != nil {
		return nil, err
	}
	from, err := parseAddress(p.From)
	if err != nil {
		return nil, fmt.Errorf("from: %w", err)
	}
	tx := &ledger.PendingTransaction{
		Hash:        hash,
		From:        from,
		Nonce:       p.Nonce,
		Role:        p.Role,
		SubmittedAt: p.SubmittedAt,
	}
	if p.To != "" {
		to, err := parseAddress(p.To)
		if err != nil {
			return nil, fmt.Errorf("to: %w", err)
		}
		tx.To = &to
	}
	if p.ContractAddress != "" {
		addr, err := parseAddress(p.ContractAddress)
		if err != nil {
			return nil, fmt.Errorf("contract_address: %w", err)
		}
		tx.ContractAddress = addr
	}
	return tx, nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func parseHash(s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid transaction hash %q", s)
	}
	return common.BytesToHash(b), nil
}
