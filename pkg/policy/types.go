package policy

import (
	"time"

	"github.com/openfroyo/chainstage/pkg/engine"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that are reported but do not block a
	// submission.
	SeverityWarning Severity = "warning"

	// SeverityError blocks the submission.
	SeverityError Severity = "error"

	// SeverityCritical blocks the submission.
	SeverityCritical Severity = "critical"
)

// Blocks reports whether a violation of this severity denies the submission.
func (s Severity) Blocks() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code. The module must define a
	// "deny" set in its package.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Builtin marks policies shipped with the binary.
	Builtin bool `json:"builtin,omitempty"`

	// Source is the file the policy was loaded from.
	Source string `json:"source,omitempty"`

	Tags []string `json:"tags,omitempty"`
}

// PolicyInput is the document policies see as "input".
type PolicyInput struct {
	Submission *engine.Submission `json:"submission"`
	Context    *PolicyContext     `json:"context"`
}

// PolicyContext provides context information for policy evaluation.
type PolicyContext struct {
	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`

	// AllowMainnet is set when the operator explicitly opted into mainnet
	// submissions.
	AllowMainnet bool `json:"allow_mainnet"`

	// Operation is always "submit" today.
	Operation string `json:"operation"`
}
