package engine

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/openfroyo/chainstage/pkg/artifact"
	"github.com/openfroyo/chainstage/pkg/ledger"
)

// Ledger is the connection the orchestrator submits through. *ledger.Client
// implements it.
type Ledger interface {
	// Network returns the profile the connection is bound to.
	Network() ledger.Profile

	// From returns the signing account.
	From() common.Address

	// SubmitDeployment broadcasts a contract creation.
	SubmitDeployment(ctx context.Context, art *artifact.Artifact, args ...any) (*ledger.PendingTransaction, error)

	// SubmitCall broadcasts a method call.
	SubmitCall(ctx context.Context, to common.Address, iface abi.ABI, method string, args ...any) (*ledger.PendingTransaction, error)

	// AwaitConfirmation blocks until the transaction is mined.
	AwaitConfirmation(ctx context.Context, hash common.Hash) (*ledger.Receipt, error)

	// TransactionKnown reports whether the node still knows a transaction.
	TransactionKnown(ctx context.Context, hash common.Hash) (bool, error)

	// QueryAddress performs a read-only call returning one address.
	QueryAddress(ctx context.Context, to common.Address, signature string, args ...any) (common.Address, error)

	// CodeAt returns the runtime code at an address.
	CodeAt(ctx context.Context, addr common.Address) ([]byte, error)
}

// ArtifactSource loads contract bundles. *artifact.Loader implements it.
type ArtifactSource interface {
	Load(ctx context.Context, id string) (*artifact.Artifact, error)
}

// PendingJournal remembers the in-flight transaction of a step so a later
// invocation awaits it instead of submitting a duplicate.
type PendingJournal interface {
	// RecordPending stores the pending transaction under key.
	RecordPending(ctx context.Context, key string, tx *ledger.PendingTransaction) error

	// Pending returns the transaction stored under key, or nil.
	Pending(ctx context.Context, key string) (*ledger.PendingTransaction, error)

	// ClearPending forgets the transaction stored under key.
	ClearPending(ctx context.Context, key string) error
}

// PolicyGate decides whether a submission may be signed.
type PolicyGate interface {
	Evaluate(ctx context.Context, sub *Submission) (*PolicyResult, error)
}

// EventPublisher publishes run events.
type EventPublisher interface {
	Publish(ctx context.Context, event *Event) error
}

// MetricsRecorder receives run and step measurements. *telemetry.Metrics
// implements it.
type MetricsRecorder interface {
	RecordStep(step, kind, outcome string, duration time.Duration)
	RecordRun(network, outcome string, duration time.Duration)
}
