package lifecycle

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/AvaProtocol/hybrid-compute/core/chainio/signer"
	"github.com/AvaProtocol/hybrid-compute/pkg/erc4337/bundler"
	"github.com/AvaProtocol/hybrid-compute/pkg/erc4337/userop"
	"github.com/AvaProtocol/hybrid-compute/pkg/feeledger"
)

// well known hardhat account #0
const ownerKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var (
	entryPoint = common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")
	account    = common.HexToAddress("0x77Fe14A710E33De68855b0eA93Ed8128025328a9")
	callData   = hexutil.MustDecode("0xb61d27f600000000000000000000000000000000000000000000000000000000000000c1")
)

func ownerKey(t *testing.T) (*ecdsa.PrivateKey, common.Address) {
	key, err := crypto.HexToECDSA(ownerKeyHex)
	require.NoError(t, err)
	return key, crypto.PubkeyToAddress(key.PublicKey)
}

// fakeChain is the entry point as seen through NonceReader and OpHasher
type fakeChain struct {
	mu           sync.Mutex
	hasher       *userop.LocalHasher
	sequence     uint64
	nonceCalls   int
	hashFailures int
}

func newFakeChain() *fakeChain {
	return &fakeChain{hasher: &userop.LocalHasher{EntryPoint: entryPoint, ChainID: big.NewInt(901)}}
}

func (c *fakeChain) GetNonce(ctx context.Context, sender common.Address, key *big.Int) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nonceCalls++
	return userop.ComposeNonce(key, c.sequence), nil
}

func (c *fakeChain) GetUserOpHash(ctx context.Context, op *userop.UserOperation) (common.Hash, error) {
	c.mu.Lock()
	if c.hashFailures > 0 {
		c.hashFailures--
		c.mu.Unlock()
		return common.Hash{}, errors.New("connection reset")
	}
	c.mu.Unlock()
	return c.hasher.GetUserOpHash(ctx, op)
}

type fakeBundler struct {
	mu          sync.Mutex
	hasher      *userop.LocalHasher
	estimate    *bundler.GasEstimation
	estimateErr error
	sendErrs    []error
	receipts    []*bundler.UserOperationReceipt
	receiptErrs []error

	estimated    []*userop.UserOperation
	sent         []*userop.UserOperation
	receiptCalls int
}

func newFakeBundler(chain *fakeChain) *fakeBundler {
	return &fakeBundler{
		hasher: chain.hasher,
		estimate: &bundler.GasEstimation{
			PreVerificationGas:   big.NewInt(45000),
			VerificationGasLimit: big.NewInt(70000),
			CallGasLimit:         big.NewInt(30000),
		},
	}
}

func (b *fakeBundler) EstimateUserOperationGas(ctx context.Context, op *userop.UserOperation, ep common.Address) (*bundler.GasEstimation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.estimated = append(b.estimated, op.Clone())
	if b.estimateErr != nil {
		return nil, b.estimateErr
	}
	return b.estimate, nil
}

func (b *fakeBundler) SendUserOperation(ctx context.Context, op *userop.UserOperation, ep common.Address) (common.Hash, error) {
	b.mu.Lock()
	b.sent = append(b.sent, op.Clone())
	if len(b.sendErrs) > 0 {
		err := b.sendErrs[0]
		b.sendErrs = b.sendErrs[1:]
		b.mu.Unlock()
		if err != nil {
			return common.Hash{}, err
		}
	} else {
		b.mu.Unlock()
	}
	return b.hasher.GetUserOpHash(ctx, op)
}

func (b *fakeBundler) GetUserOperationReceipt(ctx context.Context, opHash common.Hash) (*bundler.UserOperationReceipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.receiptCalls
	b.receiptCalls++

	if i < len(b.receiptErrs) && b.receiptErrs[i] != nil {
		return nil, b.receiptErrs[i]
	}
	if i < len(b.receipts) {
		return b.receipts[i], nil
	}
	return nil, nil
}

func (b *fakeBundler) lastSent() *userop.UserOperation {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sent[len(b.sent)-1]
}

func successReceipt(success bool) *bundler.UserOperationReceipt {
	return &bundler.UserOperationReceipt{
		Success:       success,
		ActualGasUsed: (*hexutil.Big)(big.NewInt(120000)),
		Receipt: bundler.TransactionReceipt{
			Status:            1,
			GasUsed:           (*hexutil.Big)(big.NewInt(100000)),
			EffectiveGasPrice: (*hexutil.Big)(big.NewInt(1_000_000)),
			L1Fee:             (*hexutil.Big)(big.NewInt(500)),
		},
	}
}

type fixedFees struct{}

func (fixedFees) SuggestFee(ctx context.Context) (*big.Int, *big.Int, error) {
	return big.NewInt(3_000_000_000), big.NewInt(1_000_000_000), nil
}

type recordingMetrics struct {
	mu          sync.Mutex
	transitions []string
	polls       []string
}

func (m *recordingMetrics) IncTransition(state string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, state)
}

func (m *recordingMetrics) IncReceiptPoll(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.polls = append(m.polls, status)
}

type harness struct {
	chain   *fakeChain
	bundler *fakeBundler
	ledger  *feeledger.Ledger
	metrics *recordingMetrics
	owner   common.Address
	driver  *Driver
}

func newHarness(t *testing.T) *harness {
	key, owner := ownerKey(t)
	chain := newFakeChain()
	fb := newFakeBundler(chain)
	metrics := &recordingMetrics{}
	ledger := feeledger.New(nil, nil)

	s := &Signer{Hasher: chain, Key: key}
	return &harness{
		chain:   chain,
		bundler: fb,
		ledger:  ledger,
		metrics: metrics,
		owner:   owner,
		driver: &Driver{
			Builder: &Builder{EntryPoint: chain},
			Refiner: &Refiner{
				EntryPoint:    entryPoint,
				Estimator:     fb,
				Signer:        s,
				Fees:          fixedFees{},
				MarginPercent: DefaultMarginPercent,
			},
			Signer:    s,
			Submitter: &Submitter{EntryPoint: entryPoint, Sender: fb},
			Monitor: &Monitor{
				Receipts:     fb,
				MaxAttempts:  5,
				PollInterval: time.Millisecond,
				Metrics:      metrics,
			},
			Ledger:          ledger,
			MaxNonceRetries: 2,
			Metrics:         metrics,
		},
	}
}

// verifies reports whether op carries a valid owner signature over its own hash
func (h *harness) verifies(t *testing.T, op *userop.UserOperation) bool {
	hash, err := h.chain.hasher.GetUserOpHash(context.Background(), op)
	require.NoError(t, err)
	return signer.VerifySignature(h.owner, hash.Bytes(), op.Signature)
}

func aa25() error {
	return &bundler.RPCError{Code: -32500, Message: "AA25 invalid account nonce"}
}
