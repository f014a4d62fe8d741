package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/lmittmann/w3"
	"github.com/lmittmann/w3/module/eth"
	"github.com/rs/zerolog"

	"github.com/openfroyo/chainstage/pkg/artifact"
)

// DefaultPollInterval is the receipt polling period.
const DefaultPollInterval = 2 * time.Second

var (
	// ErrConfirmationTimeout is returned when a bounded confirmation wait expires.
	ErrConfirmationTimeout = errors.New("confirmation timeout")

	// ErrChainMismatch is returned when the endpoint serves a different chain
	// than the selected profile.
	ErrChainMismatch = errors.New("chain id mismatch")

	// ErrNotDeployable is returned when an artifact carries no creation code.
	ErrNotDeployable = errors.New("artifact has no bytecode")
)

// RevertError reports a transaction that was mined with a failure status.
type RevertError struct {
	TxHash common.Hash
	Reason string
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("transaction %s reverted", e.TxHash.Hex())
	}
	return fmt.Sprintf("transaction %s reverted: %s", e.TxHash.Hex(), e.Reason)
}

// PendingTransaction is a submitted, not yet confirmed transaction.
type PendingTransaction struct {
	Hash  common.Hash     `json:"hash" yaml:"hash"`
	From  common.Address  `json:"from" yaml:"from"`
	To    *common.Address `json:"to,omitempty" yaml:"to,omitempty"`
	Nonce uint64          `json:"nonce" yaml:"nonce"`

	// ContractAddress is the predicted address of a contract creation.
	ContractAddress common.Address `json:"contract_address,omitempty" yaml:"contract_address,omitempty"`

	// Role is the symbolic role of the step that submitted the transaction.
	Role string `json:"role" yaml:"role"`

	SubmittedAt time.Time `json:"submitted_at" yaml:"submitted_at"`
}

// Receipt is the confirmed outcome of a transaction.
type Receipt struct {
	TxHash          common.Hash    `json:"tx_hash"`
	BlockNumber     uint64         `json:"block_number"`
	ContractAddress common.Address `json:"contract_address,omitempty"`
	GasUsed         uint64         `json:"gas_used"`
	Status          uint64         `json:"status"`
}

// Succeeded reports whether the transaction executed successfully.
func (r *Receipt) Succeeded() bool {
	return r.Status == types.ReceiptStatusSuccessful
}

func newReceipt(r *types.Receipt) *Receipt {
	out := &Receipt{
		TxHash:          r.TxHash,
		ContractAddress: r.ContractAddress,
		GasUsed:         r.GasUsed,
		Status:          r.Status,
	}
	if r.BlockNumber != nil {
		out.BlockNumber = r.BlockNumber.Uint64()
	}
	return out
}

// Options tunes a connection.
type Options struct {
	// PollInterval is how often the receipt is polled. Zero means DefaultPollInterval.
	PollInterval time.Duration

	// ConfirmationTimeout bounds AwaitConfirmation. Zero waits until the
	// context is canceled.
	ConfirmationTimeout time.Duration

	// GasFeeCap and GasTipCap override the suggested EIP-1559 fees when set.
	GasFeeCap *big.Int
	GasTipCap *big.Int

	Logger zerolog.Logger
}

// Client is a connection bound to exactly one network and one signer.
type Client struct {
	profile Profile
	rpc     *rpc.Client
	eth     *ethclient.Client
	w3      *w3.Client
	signer  *Signer
	auth    *bind.TransactOpts
	opts    Options
	logger  zerolog.Logger
}

// Connect dials the profile endpoint and checks it serves the profile's chain.
func Connect(ctx context.Context, profile Profile, signer *Signer, opts Options) (*Client, error) {
	if _, err := Lookup(string(profile.ID)); err != nil {
		return nil, err
	}
	if profile.Endpoint == "" {
		return nil, fmt.Errorf("no rpc endpoint configured for network %s", profile.ID)
	}
	if signer == nil {
		return nil, ErrNoSigningKey
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}

	rpcClient, err := rpc.DialContext(ctx, profile.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	ec := ethclient.NewClient(rpcClient)
	chainID, err := ec.ChainID(ctx)
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("query chain id: %w", err)
	}
	if !chainID.IsUint64() || chainID.Uint64() != profile.ChainID {
		rpcClient.Close()
		return nil, fmt.Errorf("%w: network %s expects %d, endpoint reports %s",
			ErrChainMismatch, profile.ID, profile.ChainID, chainID)
	}

	auth, err := signer.TransactOpts(profile.ChainID)
	if err != nil {
		rpcClient.Close()
		return nil, err
	}

	c := &Client{
		profile: profile,
		rpc:     rpcClient,
		eth:     ec,
		w3:      w3.NewClient(rpcClient),
		signer:  signer,
		auth:    auth,
		opts:    opts,
		logger: opts.Logger.With().
			Str("component", "ledger").
			Str("network", string(profile.ID)).
			Logger(),
	}

	c.logger.Debug().
		Str("from", signer.Address().Hex()).
		Uint64("chain_id", profile.ChainID).
		Msg("Connected to ledger")

	return c, nil
}

// Close releases the underlying connection.
func (c *Client) Close() {
	c.rpc.Close()
}

// Network returns the profile this connection is bound to.
func (c *Client) Network() Profile {
	return c.profile
}

// From returns the signing account.
func (c *Client) From() common.Address {
	return c.signer.Address()
}

func (c *Client) transactOpts(ctx context.Context) *bind.TransactOpts {
	opts := *c.auth
	opts.Context = ctx
	if c.opts.GasFeeCap != nil {
		opts.GasFeeCap = new(big.Int).Set(c.opts.GasFeeCap)
	}
	if c.opts.GasTipCap != nil {
		opts.GasTipCap = new(big.Int).Set(c.opts.GasTipCap)
	}
	return &opts
}

// SubmitDeployment signs and broadcasts a contract creation.
func (c *Client) SubmitDeployment(ctx context.Context, art *artifact.Artifact, args ...any) (*PendingTransaction, error) {
	if !art.Deployable() {
		return nil, fmt.Errorf("%w: %s", ErrNotDeployable, art.Name)
	}

	addr, tx, _, err := bind.DeployContract(c.transactOpts(ctx), art.ABI, art.Bytecode, c.eth, args...)
	if err != nil {
		return nil, fmt.Errorf("submit deployment of %s: %w", art.Name, err)
	}

	c.logger.Debug().
		Str("contract", art.Name).
		Str("tx", tx.Hash().Hex()).
		Uint64("nonce", tx.Nonce()).
		Msg("Deployment submitted")

	return &PendingTransaction{
		Hash:            tx.Hash(),
		From:            c.signer.Address(),
		Nonce:           tx.Nonce(),
		ContractAddress: addr,
		SubmittedAt:     time.Now(),
	}, nil
}

// SubmitCall signs and broadcasts a method call against a deployed contract.
func (c *Client) SubmitCall(ctx context.Context, to common.Address, iface abi.ABI, method string, args ...any) (*PendingTransaction, error) {
	if _, ok := iface.Methods[method]; !ok {
		return nil, fmt.Errorf("method %s not found in interface", method)
	}

	bound := bind.NewBoundContract(to, iface, c.eth, c.eth, c.eth)
	tx, err := bound.Transact(c.transactOpts(ctx), method, args...)
	if err != nil {
		return nil, fmt.Errorf("submit %s on %s: %w", method, to.Hex(), err)
	}

	c.logger.Debug().
		Str("to", to.Hex()).
		Str("method", method).
		Str("tx", tx.Hash().Hex()).
		Uint64("nonce", tx.Nonce()).
		Msg("Call submitted")

	return &PendingTransaction{
		Hash:        tx.Hash(),
		From:        c.signer.Address(),
		To:          &to,
		Nonce:       tx.Nonce(),
		SubmittedAt: time.Now(),
	}, nil
}

// AwaitConfirmation blocks until the transaction is mined. A failed status
// yields a *RevertError carrying the revert reason when one can be recovered.
func (c *Client) AwaitConfirmation(ctx context.Context, hash common.Hash) (*Receipt, error) {
	waitCtx := ctx
	if c.opts.ConfirmationTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, c.opts.ConfirmationTimeout)
		defer cancel()
	}

	receipt, err := c.waitForReceipt(waitCtx, hash)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %s not mined within %s", ErrConfirmationTimeout, hash.Hex(), c.opts.ConfirmationTimeout)
		}
		return nil, err
	}

	if receipt.Status == types.ReceiptStatusFailed {
		return nil, &RevertError{TxHash: hash, Reason: c.revertReason(ctx, hash, receipt.BlockNumber)}
	}

	c.logger.Debug().
		Str("tx", hash.Hex()).
		Uint64("block", receipt.BlockNumber.Uint64()).
		Uint64("gas_used", receipt.GasUsed).
		Msg("Transaction confirmed")

	return newReceipt(receipt), nil
}

func (c *Client) waitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		var receipt *types.Receipt
		err := c.w3.CallCtx(ctx, eth.TxReceipt(hash).Returns(&receipt))
		if err == nil && receipt != nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// revertReason replays the transaction at its block to recover the reason
// string. It returns an empty string when the node does not expose one.
func (c *Client) revertReason(ctx context.Context, hash common.Hash, block *big.Int) string {
	tx, _, err := c.eth.TransactionByHash(ctx, hash)
	if err != nil {
		return ""
	}

	msg := ethereum.CallMsg{
		From:  c.signer.Address(),
		To:    tx.To(),
		Gas:   tx.Gas(),
		Value: tx.Value(),
		Data:  tx.Data(),
	}
	_, err = c.eth.CallContract(ctx, msg, block)
	if err == nil {
		return ""
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if s, ok := dataErr.ErrorData().(string); ok {
			if data, derr := hexutil.Decode(s); derr == nil {
				if reason, uerr := abi.UnpackRevert(data); uerr == nil {
					return reason
				}
			}
		}
	}
	return err.Error()
}

// TransactionKnown reports whether the node still knows the transaction,
// pending or mined.
func (c *Client) TransactionKnown(ctx context.Context, hash common.Hash) (bool, error) {
	_, _, err := c.eth.TransactionByHash(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup transaction %s: %w", hash.Hex(), err)
	}
	return true, nil
}

// QueryAddress performs a read-only call of a function returning one address,
// e.g. "getPair(address,address)".
func (c *Client) QueryAddress(ctx context.Context, to common.Address, signature string, args ...any) (common.Address, error) {
	fn, err := w3.NewFunc(signature, "address")
	if err != nil {
		return common.Address{}, fmt.Errorf("parse function %s: %w", signature, err)
	}

	var out common.Address
	if err := c.w3.CallCtx(ctx, eth.CallFunc(to, fn, args...).Returns(&out)); err != nil {
		return common.Address{}, fmt.Errorf("call %s on %s: %w", signature, to.Hex(), err)
	}
	return out, nil
}

// CodeAt returns the runtime code at addr in the latest block.
func (c *Client) CodeAt(ctx context.Context, addr common.Address) ([]byte, error) {
	code, err := c.eth.CodeAt(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("get code at %s: %w", addr.Hex(), err)
	}
	return code, nil
}
