package engine

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openfroyo/chainstage/pkg/ledger"
)

// Externals are addresses of collaborators deployed outside the plan.
type Externals struct {
	// Token is the already deployed token contract.
	Token common.Address `json:"token"`

	// NFT is the already deployed NFT contract fed to the NFT pool.
	NFT common.Address `json:"nft"`

	// Dev is the developer / fee recipient account.
	Dev common.Address `json:"dev"`

	// PairFactory is the trading-pair factory queried for the pool pair.
	PairFactory common.Address `json:"pair_factory"`
}

// Names of external addresses referenced by steps.
const (
	ExternalToken       = "token"
	ExternalNFT         = "nft"
	ExternalDev         = "dev"
	ExternalPairFactory = "pair_factory"
)

// Lookup returns the external address registered under name.
func (x Externals) Lookup(name string) (common.Address, bool) {
	var addr common.Address
	switch name {
	case ExternalToken:
		addr = x.Token
	case ExternalNFT:
		addr = x.NFT
	case ExternalDev:
		addr = x.Dev
	case ExternalPairFactory:
		addr = x.PairFactory
	default:
		return common.Address{}, false
	}
	return addr, addr != (common.Address{})
}

// Report is the result of one orchestrator invocation.
type Report struct {
	// RunID identifies the invocation.
	RunID string `json:"run_id"`

	// Network is the network the invocation ran against.
	Network string `json:"network"`

	// Outcome distinguishes applied, failed and complete invocations.
	Outcome Outcome `json:"outcome"`

	// Step is the step that executed, nil when the outcome is complete.
	Step *StepSummary `json:"step,omitempty"`

	// Update is the record change produced by an applied step.
	Update *Update `json:"update,omitempty"`

	// Receipt is the confirmation of the applied step.
	Receipt *ledger.Receipt `json:"receipt,omitempty"`

	// Error is the classified failure, if any.
	Error *EngineError `json:"error,omitempty"`

	// Skipped counts the steps fast-forwarded because they were already done.
	Skipped int `json:"skipped"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// StepSummary identifies a step in reports and events.
type StepSummary struct {
	Order    int      `json:"order"`
	Name     string   `json:"name"`
	Role     Role     `json:"role"`
	Kind     StepKind `json:"kind"`
	Artifact string   `json:"artifact"`
	Method   string   `json:"method,omitempty"`
}

// StepStatus is a step evaluated against a record, without side effects.
type StepStatus struct {
	Step    StepSummary `json:"step"`
	State   StepState   `json:"state"`
	Missing []string    `json:"missing,omitempty"`
}

// Event represents a timeline event during a run.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Type is the type of event.
	Type EventType `json:"type"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// RunID is the ID of the run this event belongs to.
	RunID string `json:"run_id"`

	// Step is the step name, if applicable.
	Step string `json:"step,omitempty"`

	// Role is the affected role, if applicable.
	Role Role `json:"role,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Details contains additional event-specific data.
	Details map[string]interface{} `json:"details,omitempty"`

	// Level is the log level (info, warning, error).
	Level string `json:"level"`
}

// Submission describes a transaction about to be signed. It is the input of
// the policy gate.
type Submission struct {
	Network  string   `json:"network"`
	ChainID  uint64   `json:"chain_id"`
	Mainnet  bool     `json:"mainnet"`
	From     string   `json:"from"`
	Step     string   `json:"step"`
	Order    int      `json:"order"`
	Role     string   `json:"role"`
	Kind     string   `json:"kind"`
	Artifact string   `json:"artifact"`
	Target   string   `json:"target,omitempty"`
	Method   string   `json:"method,omitempty"`
	Args     []string `json:"args"`
}

// PolicyResult represents the result of policy evaluation.
type PolicyResult struct {
	// Allowed indicates if the submission may proceed.
	Allowed bool `json:"allowed"`

	// Violations lists policy violations.
	Violations []PolicyViolation `json:"violations,omitempty"`

	// EvaluatedAt is when the policy was evaluated.
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// PolicyViolation represents a single policy violation.
type PolicyViolation struct {
	Policy   string `json:"policy"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}
