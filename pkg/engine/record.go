package engine

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// Role is the symbolic name of a contract or wiring action tracked in a
// DeploymentRecord.
type Role string

const (
	RoleProxyAdmin           Role = "proxy-admin"
	RoleVaultLogic           Role = "vault-logic"
	RoleVaultProxy           Role = "vault-proxy"
	RoleFeeApproverLogic     Role = "fee-approver-logic"
	RoleFeeApproverProxy     Role = "fee-approver-proxy"
	RoleRouterLogic          Role = "router-logic"
	RoleRouterProxy          Role = "router-proxy"
	RoleNFTPoolLogic         Role = "nft-pool-logic"
	RoleNFTPoolProxy         Role = "nft-pool-proxy"
	RoleTokenTransferChecker Role = "token-transfer-checker"
	RoleTokenFeeDistributor  Role = "token-fee-distributor"
	RoleVaultPool            Role = "vault-pool"
)

var knownRoles = []Role{
	RoleProxyAdmin,
	RoleVaultLogic, RoleVaultProxy,
	RoleFeeApproverLogic, RoleFeeApproverProxy,
	RoleRouterLogic, RoleRouterProxy,
	RoleNFTPoolLogic, RoleNFTPoolProxy,
	RoleTokenTransferChecker, RoleTokenFeeDistributor,
	RoleVaultPool,
}

// KnownRoles returns every role in deployment order.
func KnownRoles() []Role {
	out := make([]Role, len(knownRoles))
	copy(out, knownRoles)
	return out
}

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	for _, r := range knownRoles {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role: %s", s)
}

// Entry is the progress marker of one role.
type Entry struct {
	Address     *common.Address `json:"address,omitempty" yaml:"address,omitempty"`
	Initialized bool            `json:"initialized" yaml:"initialized"`
}

// HasAddress reports whether the entry carries a non-zero address.
func (e Entry) HasAddress() bool {
	return e.Address != nil && *e.Address != (common.Address{})
}

// Update is the single change produced by a successful step.
type Update struct {
	Role        Role            `json:"role"`
	Address     *common.Address `json:"address,omitempty"`
	Initialized bool            `json:"initialized,omitempty"`
}

// Record maps roles to their progress. It is the sole resume point of the
// orchestrator. A Record is not safe for concurrent use.
type Record struct {
	entries map[Role]Entry
}

// NewRecord creates an empty record.
func NewRecord() *Record {
	return &Record{entries: make(map[Role]Entry)}
}

// Get returns the entry for role.
func (r *Record) Get(role Role) (Entry, bool) {
	e, ok := r.entries[role]
	return e, ok
}

// Address returns the deployed address of role, if any.
func (r *Record) Address(role Role) (common.Address, bool) {
	e, ok := r.entries[role]
	if !ok || !e.HasAddress() {
		return common.Address{}, false
	}
	return *e.Address, true
}

// Initialized reports whether role is marked initialized.
func (r *Record) Initialized(role Role) bool {
	return r.entries[role].Initialized
}

// Set replaces the entry for role.
func (r *Record) Set(role Role, e Entry) {
	if e.Address != nil {
		addr := *e.Address
		e.Address = &addr
	}
	r.entries[role] = e
}

// SetAddress records the deployed address of role.
func (r *Record) SetAddress(role Role, addr common.Address) {
	e := r.entries[role]
	e.Address = &addr
	r.entries[role] = e
}

// MarkInitialized flags role as initialized.
func (r *Record) MarkInitialized(role Role) {
	e := r.entries[role]
	e.Initialized = true
	r.entries[role] = e
}

// Unset removes role from the record.
func (r *Record) Unset(role Role) {
	delete(r.entries, role)
}

// Apply merges a step update into the record.
func (r *Record) Apply(u *Update) {
	if u == nil {
		return
	}
	e := r.entries[u.Role]
	if u.Address != nil {
		addr := *u.Address
		e.Address = &addr
	}
	if u.Initialized {
		e.Initialized = true
	}
	r.entries[u.Role] = e
}

// Roles returns the roles present in the record, known roles first in
// deployment order, then any others sorted by name.
func (r *Record) Roles() []Role {
	var out []Role
	seen := make(map[Role]bool, len(r.entries))
	for _, role := range knownRoles {
		if _, ok := r.entries[role]; ok {
			out = append(out, role)
			seen[role] = true
		}
	}
	var extra []Role
	for role := range r.entries {
		if !seen[role] {
			extra = append(extra, role)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(out, extra...)
}

// Len returns the number of entries.
func (r *Record) Len() int {
	return len(r.entries)
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	c := NewRecord()
	for role, e := range r.entries {
		c.Set(role, e)
	}
	return c
}

// Entries returns a copy of the record contents.
func (r *Record) Entries() map[Role]Entry {
	return r.Clone().entries
}
