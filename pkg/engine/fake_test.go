package engine

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/openfroyo/chainstage/pkg/artifact"
	"github.com/openfroyo/chainstage/pkg/ledger"
)

var (
	testToken       = common.HexToAddress("0x00000000000000000000000000000000000a0001")
	testNFT         = common.HexToAddress("0x00000000000000000000000000000000000a0002")
	testDev         = common.HexToAddress("0x00000000000000000000000000000000000a0003")
	testPairFactory = common.HexToAddress("0x00000000000000000000000000000000000a0004")
	testPair        = common.HexToAddress("0x00000000000000000000000000000000000a0005")
	testFrom        = common.HexToAddress("0x00000000000000000000000000000000000f0000")
)

func testExternals() Externals {
	return Externals{Token: testToken, NFT: testNFT, Dev: testDev, PairFactory: testPairFactory}
}

// submission is one transaction seen by the fake ledger.
type submission struct {
	Deploy   bool
	Contract string
	To       common.Address
	Method   string
	Args     []any
	Hash     common.Hash
}

// fakeLedger confirms everything immediately unless told otherwise.
type fakeLedger struct {
	mu sync.Mutex

	profile     ledger.Profile
	submissions []submission
	awaited     []common.Hash
	queries     []string
	next        int64

	// revertOn maps a contract name or method name to a revert reason.
	revertOn map[string]string
	// timeoutOn makes AwaitConfirmation time out for a contract or method.
	timeoutOn map[string]bool
	// noCode lists addresses CodeAt reports as empty.
	noCode map[common.Address]bool
	// forgotten lists hashes TransactionKnown reports as unknown.
	forgotten map[common.Hash]bool

	pair     common.Address
	outcomes map[common.Hash]submission
}

func newFakeLedger() *fakeLedger {
	p, _ := ledger.Lookup("sepolia")
	return &fakeLedger{
		profile:   p,
		revertOn:  make(map[string]string),
		timeoutOn: make(map[string]bool),
		noCode:    make(map[common.Address]bool),
		forgotten: make(map[common.Hash]bool),
		pair:      testPair,
		outcomes:  make(map[common.Hash]submission),
	}
}

func (f *fakeLedger) Network() ledger.Profile { return f.profile }
func (f *fakeLedger) From() common.Address    { return testFrom }

func (f *fakeLedger) nextHash() common.Hash {
	f.next++
	return common.BigToHash(big.NewInt(0x1000 + f.next))
}

func (f *fakeLedger) SubmitDeployment(_ context.Context, art *artifact.Artifact, args ...any) (*ledger.PendingTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	h := f.nextHash()
	s := submission{Deploy: true, Contract: art.Name, Args: args, Hash: h}
	f.submissions = append(f.submissions, s)
	f.outcomes[h] = s
	return &ledger.PendingTransaction{
		Hash:            h,
		From:            testFrom,
		Nonce:           uint64(f.next),
		ContractAddress: contractAddress(h),
		SubmittedAt:     time.Now(),
	}, nil
}

func (f *fakeLedger) SubmitCall(_ context.Context, to common.Address, _ abi.ABI, method string, args ...any) (*ledger.PendingTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	h := f.nextHash()
	s := submission{To: to, Method: method, Args: args, Hash: h}
	f.submissions = append(f.submissions, s)
	f.outcomes[h] = s
	return &ledger.PendingTransaction{Hash: h, From: testFrom, To: &to, Nonce: uint64(f.next), SubmittedAt: time.Now()}, nil
}

func (f *fakeLedger) AwaitConfirmation(_ context.Context, hash common.Hash) (*ledger.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.awaited = append(f.awaited, hash)
	s, ok := f.outcomes[hash]
	if !ok {
		return nil, fmt.Errorf("unknown transaction %s", hash.Hex())
	}

	key := s.Method
	if s.Deploy {
		key = s.Contract
	}
	if reason, ok := f.revertOn[key]; ok {
		return nil, &ledger.RevertError{TxHash: hash, Reason: reason}
	}
	if f.timeoutOn[key] {
		return nil, fmt.Errorf("%w: %s", ledger.ErrConfirmationTimeout, hash.Hex())
	}

	r := &ledger.Receipt{TxHash: hash, BlockNumber: uint64(100 + len(f.awaited)), GasUsed: 21000, Status: 1}
	if s.Deploy {
		r.ContractAddress = contractAddress(hash)
	}
	return r, nil
}

func (f *fakeLedger) TransactionKnown(_ context.Context, hash common.Hash) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.outcomes[hash]
	return ok && !f.forgotten[hash], nil
}

func (f *fakeLedger) QueryAddress(_ context.Context, to common.Address, signature string, args ...any) (common.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, fmt.Sprintf("%s@%s%v", signature, to.Hex(), args))
	return f.pair, nil
}

func (f *fakeLedger) CodeAt(_ context.Context, addr common.Address) ([]byte, error) {
	if f.noCode[addr] {
		return nil, nil
	}
	return []byte{0x60, 0x80}, nil
}

func contractAddress(h common.Hash) common.Address {
	return common.BytesToAddress(h.Bytes())
}

func (f *fakeLedger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submissions)
}

func (f *fakeLedger) last() submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submissions[len(f.submissions)-1]
}

// fakeArtifacts serves in-memory bundles.
type fakeArtifacts struct {
	bundles map[string]*artifact.Artifact
	loads   []string
}

const testABI = `[
	{"type": "constructor", "inputs": []},
	{"type": "function", "name": "initialize", "inputs": [], "outputs": []},
	{"type": "function", "name": "add", "inputs": [], "outputs": []},
	{"type": "function", "name": "setShouldTransferChecker", "inputs": [], "outputs": []},
	{"type": "function", "name": "setFeeDistributor", "inputs": [], "outputs": []}
]`

func newFakeArtifacts() *fakeArtifacts {
	fa := &fakeArtifacts{bundles: make(map[string]*artifact.Artifact)}
	for _, id := range []string{
		ArtifactProxyAdmin, ArtifactVault, ArtifactFeeApprover,
		ArtifactRouter, ArtifactNFTPool, ArtifactToken, ProxyArtifact,
	} {
		art, err := artifact.Parse([]byte(`{"contractName": "` + id + `", "bytecode": "0x6080", "abi": ` + testABI + `}`))
		if err != nil {
			panic(err)
		}
		art.ID = id
		fa.bundles[id] = art
	}
	return fa
}

func (f *fakeArtifacts) Load(_ context.Context, id string) (*artifact.Artifact, error) {
	f.loads = append(f.loads, id)
	art, ok := f.bundles[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", artifact.ErrNotFound, id)
	}
	return art, nil
}

// memJournal is an in-memory PendingJournal.
type memJournal struct {
	pending map[string]*ledger.PendingTransaction
}

func newMemJournal() *memJournal {
	return &memJournal{pending: make(map[string]*ledger.PendingTransaction)}
}

func (j *memJournal) RecordPending(_ context.Context, key string, tx *ledger.PendingTransaction) error {
	j.pending[key] = tx
	return nil
}

func (j *memJournal) Pending(_ context.Context, key string) (*ledger.PendingTransaction, error) {
	return j.pending[key], nil
}

func (j *memJournal) ClearPending(_ context.Context, key string) error {
	delete(j.pending, key)
	return nil
}

// recorder collects events and metrics.
type recorder struct {
	events []*Event
	steps  []string
	runs   []string
}

func (r *recorder) Publish(_ context.Context, ev *Event) error {
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) RecordStep(step, kind, outcome string, _ time.Duration) {
	r.steps = append(r.steps, step+":"+outcome)
}

func (r *recorder) RecordRun(network, outcome string, _ time.Duration) {
	r.runs = append(r.runs, network+":"+outcome)
}

func (r *recorder) types() []EventType {
	out := make([]EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

// denyAll is a PolicyGate that rejects everything.
type denyAll struct{ seen []*Submission }

func (d *denyAll) Evaluate(_ context.Context, sub *Submission) (*PolicyResult, error) {
	d.seen = append(d.seen, sub)
	return &PolicyResult{
		Allowed:     false,
		Violations:  []PolicyViolation{{Policy: "test", Message: "denied", Severity: "error"}},
		EvaluatedAt: time.Now(),
	}, nil
}

// recordThrough returns a record with the first k steps of plan complete.
func recordThrough(k int) *Record {
	r := NewRecord()
	plan := DefaultPlan()
	for i := 0; i < k; i++ {
		s := plan[i]
		switch {
		case s.Kind.IsDeployment():
			r.SetAddress(s.Role, common.BigToAddress(big.NewInt(int64(0xc000+s.Order))))
		case s.Kind == StepKindConfigure:
			r.SetAddress(s.Role, testPair)
			r.MarkInitialized(s.Role)
		default:
			r.MarkInitialized(s.Role)
		}
	}
	return r
}
