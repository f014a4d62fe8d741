package engine

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/openfroyo/chainstage/pkg/ledger"
)

type submitFunc func(ctx context.Context) (*ledger.PendingTransaction, error)

// confirmer submits one transaction and blocks until it is mined. With a
// journal it resumes a transaction left in flight by an earlier invocation.
type confirmer struct {
	ledger  Ledger
	journal PendingJournal
	logger  zerolog.Logger

	// onSubmitted is called once the hash is known.
	onSubmitted func(ctx context.Context, tx *ledger.PendingTransaction)
}

func (c *confirmer) submitAndAwait(ctx context.Context, key string, role Role, submit submitFunc) (*ledger.Receipt, *ledger.PendingTransaction, error) {
	tx, err := c.resume(ctx, key)
	if err != nil {
		return nil, nil, err
	}

	if tx == nil {
		tx, err = submit(ctx)
		if err != nil {
			return nil, nil, err
		}
		tx.Role = string(role)
		if c.journal != nil {
			if jerr := c.journal.RecordPending(ctx, key, tx); jerr != nil {
				c.logger.Warn().Err(jerr).Str("tx", tx.Hash.Hex()).Msg("Failed to journal pending transaction")
			}
		}
	}

	if c.onSubmitted != nil {
		c.onSubmitted(ctx, tx)
	}

	receipt, err := c.ledger.AwaitConfirmation(ctx, tx.Hash)
	if err != nil {
		var revert *ledger.RevertError
		if errors.As(err, &revert) {
			c.clear(ctx, key)
		}
		return nil, tx, err
	}

	c.clear(ctx, key)
	return receipt, tx, nil
}

// resume returns the journaled transaction for key if the node still knows it.
func (c *confirmer) resume(ctx context.Context, key string) (*ledger.PendingTransaction, error) {
	if c.journal == nil {
		return nil, nil
	}

	tx, err := c.journal.Pending(ctx, key)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, nil
	}

	known, err := c.ledger.TransactionKnown(ctx, tx.Hash)
	if err != nil {
		return nil, err
	}
	if !known {
		c.logger.Warn().
			Str("key", key).
			Str("tx", tx.Hash.Hex()).
			Msg("Journaled transaction unknown to the node, submitting again")
		c.clear(ctx, key)
		return nil, nil
	}

	c.logger.Info().
		Str("key", key).
		Str("tx", tx.Hash.Hex()).
		Msg("Awaiting transaction from a previous invocation")
	return tx, nil
}

func (c *confirmer) clear(ctx context.Context, key string) {
	if c.journal == nil {
		return
	}
	if err := c.journal.ClearPending(ctx, key); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Failed to clear pending transaction")
	}
}
