package engine

import (
	"context"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/openfroyo/chainstage/pkg/ledger"
)

// Invoker calls methods on deployed contracts and returns once confirmed.
type Invoker struct {
	confirmer
}

// NewInvoker creates an invoker. journal may be nil.
func NewInvoker(l Ledger, journal PendingJournal, logger zerolog.Logger) *Invoker {
	return &Invoker{confirmer{
		ledger:  l,
		journal: journal,
		logger:  logger.With().Str("component", "invoker").Logger(),
	}}
}

// Invoke calls method on address through iface and waits for it to be
// mined. A revert is reported as TRANSACTION_REVERTED.
func (i *Invoker) Invoke(ctx context.Context, role Role, address common.Address, iface abi.ABI, method string, args ...any) (*ledger.Receipt, error) {
	i.logger.Info().
		Str("role", string(role)).
		Str("to", address.Hex()).
		Str("method", method).
		Msg("Invoking method")

	key := "invoke:" + string(role) + ":" + method
	receipt, _, err := i.submitAndAwait(ctx, key, role, func(ctx context.Context) (*ledger.PendingTransaction, error) {
		return i.ledger.SubmitCall(ctx, address, iface, method, args...)
	})
	if err != nil {
		return nil, classify(role, err, ErrCodeTransactionReverted)
	}

	i.logger.Info().
		Str("role", string(role)).
		Str("method", method).
		Str("tx", receipt.TxHash.Hex()).
		Uint64("block", receipt.BlockNumber).
		Msg("Method confirmed")

	return receipt, nil
}
