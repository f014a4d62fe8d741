package engine

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/openfroyo/chainstage/pkg/artifact"
	"github.com/openfroyo/chainstage/pkg/ledger"
)

// Deployer creates contracts and returns their address once confirmed.
type Deployer struct {
	confirmer
}

// NewDeployer creates a deployer. journal may be nil.
func NewDeployer(l Ledger, journal PendingJournal, logger zerolog.Logger) *Deployer {
	return &Deployer{confirmer{
		ledger:  l,
		journal: journal,
		logger:  logger.With().Str("component", "deployer").Logger(),
	}}
}

// Deploy submits a contract creation for role and waits for it to be mined.
// It never returns an address for an unconfirmed transaction. A revert is
// reported as DEPLOYMENT_FAILED; nothing is retried.
func (d *Deployer) Deploy(ctx context.Context, role Role, art *artifact.Artifact, args ...any) (common.Address, *ledger.Receipt, error) {
	d.logger.Info().
		Str("role", string(role)).
		Str("contract", art.Name).
		Str("constructor", art.ConstructorSignature).
		Msg("Deploying contract")

	receipt, _, err := d.submitAndAwait(ctx, "deploy:"+string(role), role, func(ctx context.Context) (*ledger.PendingTransaction, error) {
		return d.ledger.SubmitDeployment(ctx, art, args...)
	})
	if err != nil {
		return common.Address{}, nil, classify(role, err, ErrCodeDeploymentFailed)
	}

	if receipt.ContractAddress == (common.Address{}) {
		return common.Address{}, nil, NewPermanentError("deployment failed",
			errors.New("receipt carries no contract address")).
			WithCode(ErrCodeDeploymentFailed).
			WithRole(role).
			WithDetail("tx_hash", receipt.TxHash.Hex())
	}

	d.logger.Info().
		Str("role", string(role)).
		Str("contract", art.Name).
		Str("address", receipt.ContractAddress.Hex()).
		Msg("Contract deployed")

	return receipt.ContractAddress, receipt, nil
}
