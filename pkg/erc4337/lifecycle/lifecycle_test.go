package lifecycle

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AvaProtocol/hybrid-compute/pkg/erc4337/bundler"
	"github.com/AvaProtocol/hybrid-compute/pkg/erc4337/userop"
)

func TestDriverRunIncluded(t *testing.T) {
	h := newHarness(t)
	h.bundler.receipts = []*bundler.UserOperationReceipt{nil, successReceipt(true)}

	out, err := h.driver.Run(context.Background(), Request{Account: account, NonceKey: big.NewInt(1003), CallData: callData})
	require.NoError(t, err)

	assert.Equal(t, StateIncluded, out.State)
	assert.True(t, out.Verified)
	assert.Equal(t, 0, out.NonceRetries)
	assert.Equal(t, int64(145000), out.Estimate.Total().Int64())

	// estimation saw zero limits and a throwaway signature that is still valid for them
	require.Len(t, h.bundler.estimated, 1)
	est := h.bundler.estimated[0]
	assert.Equal(t, int64(0), est.TotalGasLimit().Int64())
	assert.Equal(t, int64(0), est.MaxFeePerGas.Int64())
	assert.True(t, h.verifies(t, est))

	require.Len(t, h.bundler.sent, 1)
	sent := h.bundler.lastSent()
	assert.Equal(t, int64(49500), sent.PreVerificationGas.Int64())
	assert.Equal(t, int64(77000), sent.VerificationGasLimit.Int64())
	assert.Equal(t, int64(33000), sent.CallGasLimit.Int64())
	assert.Equal(t, int64(3_000_000_000), sent.MaxFeePerGas.Int64())
	assert.Equal(t, int64(1_000_000_000), sent.MaxPriorityFeePerGas.Int64())
	assert.Equal(t, callData, sent.CallData)
	assert.Equal(t, int64(1003), userop.NonceKey(sent.Nonce).Int64())
	assert.True(t, h.verifies(t, sent))

	wantHash, err := h.chain.hasher.GetUserOpHash(context.Background(), sent)
	require.NoError(t, err)
	assert.Equal(t, wantHash, out.OpHash)

	require.NotNil(t, out.Entry)
	assert.Equal(t, int64(145000), out.Entry.EstimatedGas.Int64())
	assert.Equal(t, int64(25000), out.Entry.UnusedGas().Int64())
	totals := h.ledger.Totals()
	assert.Equal(t, 1, totals.Receipts)
	assert.Equal(t, "100000000000", totals.L2Fees.String())
	assert.Equal(t, int64(500), totals.L1Fees.Int64())

	assert.Equal(t, []string{"built", "estimated", "signed", "submitted", "included"}, h.metrics.transitions)
	assert.Equal(t, []string{"pending", "found"}, h.metrics.polls)
}

func TestSignedOperationCannotBeMutated(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	built, err := h.driver.Builder.Build(ctx, account, big.NewInt(1001), callData)
	require.NoError(t, err)
	est, err := h.driver.Refiner.Estimate(ctx, built)
	require.NoError(t, err)
	signed, err := h.driver.Signer.Finalize(ctx, est)
	require.NoError(t, err)

	leaked := signed.Operation()
	leaked.CallGasLimit.Add(leaked.CallGasLimit, big.NewInt(1))
	leaked.CallData[0] = 0x00

	_, err = h.driver.Submitter.Submit(ctx, signed)
	require.NoError(t, err)

	sent := h.bundler.lastSent()
	assert.Equal(t, int64(33000), sent.CallGasLimit.Int64())
	assert.Equal(t, callData, sent.CallData)
	assert.True(t, h.verifies(t, sent))

	// a changed limit produces a hash the signature does not cover
	assert.False(t, h.verifies(t, &userop.UserOperation{
		Sender: sent.Sender, Nonce: sent.Nonce, CallData: sent.CallData,
		CallGasLimit: leaked.CallGasLimit, VerificationGasLimit: sent.VerificationGasLimit,
		PreVerificationGas: sent.PreVerificationGas, MaxFeePerGas: sent.MaxFeePerGas,
		MaxPriorityFeePerGas: sent.MaxPriorityFeePerGas, Signature: sent.Signature,
	}))
}

func TestBuilderZeroesGasAndFees(t *testing.T) {
	h := newHarness(t)
	h.chain.sequence = 4

	built, err := h.driver.Builder.Build(context.Background(), account, big.NewInt(1002), callData)
	require.NoError(t, err)

	op := built.Operation()
	assert.Equal(t, uint64(4), userop.NonceSequence(op.Nonce))
	assert.Equal(t, int64(0), op.TotalGasLimit().Int64())
	assert.Equal(t, int64(0), op.MaxFeePerGas.Int64())
	assert.Equal(t, int64(0), op.MaxPriorityFeePerGas.Int64())
	assert.Empty(t, op.InitCode)
	assert.Empty(t, op.PaymasterAndData)
	assert.Equal(t, userop.DummySignature, op.Signature)

	_, err = h.driver.Builder.Build(context.Background(), account, new(big.Int).Lsh(userop.MaxNonceKey, 1), callData)
	assert.ErrorIs(t, err, ErrInvalidNonceKey)
}

func TestEstimationFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	h.bundler.estimateErr = &bundler.RPCError{Code: -32500, Message: "AA23 reverted"}

	out, err := h.driver.Run(context.Background(), Request{Account: account, NonceKey: big.NewInt(1000), CallData: callData})
	require.ErrorIs(t, err, ErrEstimationFailed)
	assert.Equal(t, StateFailed, out.State)
	reached, ok := out.Reached()
	require.True(t, ok)
	assert.Equal(t, StateBuilt, reached)
	assert.Empty(t, h.bundler.sent)
	assert.Equal(t, []string{"built", "failed"}, h.metrics.transitions)
}

func TestEstimationFallbackIsMarkedUnverified(t *testing.T) {
	h := newHarness(t)
	h.bundler.estimateErr = errors.New("estimation unavailable")
	h.driver.Refiner.AllowFallback = true
	h.bundler.receipts = []*bundler.UserOperationReceipt{successReceipt(true)}

	out, err := h.driver.Run(context.Background(), Request{Account: account, NonceKey: big.NewInt(1000), CallData: callData})
	require.NoError(t, err)
	assert.False(t, out.Verified)

	sent := h.bundler.lastSent()
	assert.Equal(t, int64(72088), sent.PreVerificationGas.Int64())
	assert.Equal(t, int64(72088), sent.VerificationGasLimit.Int64())
	assert.Equal(t, int64(288358), sent.CallGasLimit.Int64())

	// unverified estimates are not reported as unused gas
	assert.Nil(t, out.Entry.EstimatedGas)
}

func TestNonceConflictRebuildsFromFreshNonce(t *testing.T) {
	h := newHarness(t)
	h.bundler.sendErrs = []error{aa25()}
	h.bundler.receipts = []*bundler.UserOperationReceipt{successReceipt(true)}

	out, err := h.driver.Run(context.Background(), Request{Account: account, NonceKey: big.NewInt(1005), CallData: callData})
	require.NoError(t, err)
	assert.Equal(t, 1, out.NonceRetries)
	assert.Equal(t, 2, h.chain.nonceCalls)
	assert.Len(t, h.bundler.sent, 2)
	assert.Equal(t, StateIncluded, out.State)
}

func TestNonceConflictRetriesAreBounded(t *testing.T) {
	h := newHarness(t)
	h.driver.MaxNonceRetries = 1
	h.bundler.sendErrs = []error{aa25(), aa25()}

	out, err := h.driver.Run(context.Background(), Request{Account: account, NonceKey: big.NewInt(1005), CallData: callData})
	require.ErrorIs(t, err, ErrNonceConflict)
	assert.Equal(t, 1, out.NonceRetries)
	assert.Len(t, h.bundler.sent, 2)
}

func TestSubmissionRejectedIsNotRetried(t *testing.T) {
	h := newHarness(t)
	h.bundler.sendErrs = []error{&bundler.RPCError{Code: -32500, Message: "AA21 didn't pay prefund"}}

	out, err := h.driver.Run(context.Background(), Request{Account: account, NonceKey: big.NewInt(1005), CallData: callData})
	require.ErrorIs(t, err, ErrSubmissionRejected)
	assert.Contains(t, err.Error(), "AA21")
	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, []State{StateBuilt, StateEstimated, StateSigned, StateFailed}, out.Path)
	reached, _ := out.Reached()
	assert.Equal(t, StateSigned, reached)
	assert.Equal(t, common.Hash{}, out.OpHash)
	assert.Equal(t, 1, h.chain.nonceCalls)
	assert.Equal(t, []string{"built", "estimated", "signed", "failed"}, h.metrics.transitions)
}

func TestMonitorTimesOutWithinBudget(t *testing.T) {
	h := newHarness(t)
	h.driver.Monitor.MaxAttempts = 3
	h.driver.Monitor.PollInterval = 5 * time.Millisecond

	start := time.Now()
	out, err := h.driver.Run(context.Background(), Request{Account: account, NonceKey: big.NewInt(1001), CallData: callData})
	require.ErrorIs(t, err, ErrReceiptTimeout)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 3, h.bundler.receiptCalls)
	assert.Equal(t, StateTimedOut, out.State)
	assert.Nil(t, out.Receipt)
	assert.Equal(t, 0, h.ledger.Totals().Receipts)
}

func TestMonitorReportsFailedOperation(t *testing.T) {
	h := newHarness(t)
	failed := successReceipt(false)
	failed.Reason = "underflow"
	h.bundler.receipts = []*bundler.UserOperationReceipt{failed}

	out, err := h.driver.Run(context.Background(), Request{Account: account, NonceKey: big.NewInt(1001), CallData: callData})
	require.ErrorIs(t, err, ErrOperationFailed)
	assert.Equal(t, StateFailed, out.State)
	require.NotNil(t, out.Receipt)
	// the bundle still paid for it
	assert.Equal(t, 1, h.ledger.Totals().Receipts)
}

func TestMonitorRevertedBundle(t *testing.T) {
	h := newHarness(t)
	reverted := successReceipt(true)
	reverted.Receipt.Status = 0
	h.bundler.receipts = []*bundler.UserOperationReceipt{reverted}

	included, err := h.driver.Monitor.Await(context.Background(), &Submitted{opHash: common.HexToHash("0x01")})
	require.ErrorIs(t, err, ErrOperationFailed)
	assert.Equal(t, StateFailed, included.State())
}

func TestMonitorTransientErrorsCountAgainstBudget(t *testing.T) {
	h := newHarness(t)
	h.driver.Monitor.MaxAttempts = 3
	h.bundler.receiptErrs = []error{errors.New("502"), errors.New("502")}
	h.bundler.receipts = []*bundler.UserOperationReceipt{nil, nil, successReceipt(true)}

	included, err := h.driver.Monitor.Await(context.Background(), &Submitted{opHash: common.HexToHash("0x01")})
	require.NoError(t, err)
	assert.Equal(t, 3, included.Attempts())
	assert.Equal(t, []string{"error", "error", "found"}, h.metrics.polls)

	h2 := newHarness(t)
	h2.driver.Monitor.MaxAttempts = 2
	h2.bundler.receiptErrs = []error{errors.New("502"), errors.New("502")}
	_, err = h2.driver.Monitor.Await(context.Background(), &Submitted{opHash: common.HexToHash("0x01")})
	assert.ErrorIs(t, err, ErrReceiptTimeout)
}

func TestMonitorHonoursCancellation(t *testing.T) {
	h := newHarness(t)
	h.driver.Monitor.PollInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := h.driver.Monitor.Await(ctx, &Submitted{opHash: common.HexToHash("0x01")})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHashUnavailable(t *testing.T) {
	h := newHarness(t)
	h.chain.hashFailures = 1

	_, err := h.driver.Run(context.Background(), Request{Account: account, NonceKey: big.NewInt(1001), CallData: callData})
	require.ErrorIs(t, err, ErrHashUnavailable)
	assert.Empty(t, h.bundler.estimated)

	// a transient failure is absorbed when retries are allowed
	h = newHarness(t)
	h.chain.hashFailures = 2
	h.driver.Signer.HashAttempts = 3
	h.bundler.receipts = []*bundler.UserOperationReceipt{successReceipt(true)}
	_, err = h.driver.Run(context.Background(), Request{Account: account, NonceKey: big.NewInt(1001), CallData: callData})
	require.NoError(t, err)
}

func TestSigningFailed(t *testing.T) {
	h := newHarness(t)
	h.driver.Signer.Key = nil

	out, err := h.driver.Run(context.Background(), Request{Account: account, NonceKey: big.NewInt(1001), CallData: callData})
	assert.ErrorIs(t, err, ErrSigningFailed)
	assert.Equal(t, StateFailed, out.State)
	assert.Contains(t, h.metrics.transitions, "failed")
}

func TestNonceManagerAvoidsPendingNonce(t *testing.T) {
	h := newHarness(t)
	h.driver.Builder.Nonces = bundler.NewNonceManager(nil)
	h.driver.Submitter.Nonces = h.driver.Builder.Nonces
	h.driver.Monitor.MaxAttempts = 1

	key := big.NewInt(1004)
	_, err := h.driver.Run(context.Background(), Request{Account: account, NonceKey: key, CallData: callData})
	require.ErrorIs(t, err, ErrReceiptTimeout)

	// the chain has not moved, but the first operation is still pending
	_, err = h.driver.Run(context.Background(), Request{Account: account, NonceKey: key, CallData: callData})
	require.ErrorIs(t, err, ErrReceiptTimeout)

	require.Len(t, h.bundler.sent, 2)
	assert.Equal(t, uint64(0), userop.NonceSequence(h.bundler.sent[0].Nonce))
	assert.Equal(t, uint64(1), userop.NonceSequence(h.bundler.sent[1].Nonce))
}

func TestNonceConflictDropsStaleCachedNonce(t *testing.T) {
	h := newHarness(t)
	nonces := bundler.NewNonceManager(nil)
	h.driver.Builder.Nonces = nonces
	h.driver.Submitter.Nonces = nonces
	h.driver.Monitor.MaxAttempts = 1
	key := big.NewInt(1004)

	_, err := h.driver.Run(context.Background(), Request{Account: account, NonceKey: key, CallData: callData})
	require.ErrorIs(t, err, ErrReceiptTimeout)
	cached, ok := nonces.GetCachedNonce(account, key)
	require.True(t, ok)
	assert.Equal(t, uint64(1), userop.NonceSequence(cached))

	// the pending operation was dropped, so the cached nonce conflicts
	h.bundler.sendErrs = []error{aa25()}
	h.bundler.receipts = []*bundler.UserOperationReceipt{nil, successReceipt(true)}
	out, err := h.driver.Run(context.Background(), Request{Account: account, NonceKey: key, CallData: callData})
	require.NoError(t, err)
	assert.Equal(t, 1, out.NonceRetries)

	require.Len(t, h.bundler.sent, 3)
	assert.Equal(t, uint64(1), userop.NonceSequence(h.bundler.sent[1].Nonce))
	assert.Equal(t, uint64(0), userop.NonceSequence(h.bundler.sent[2].Nonce))
	cached, ok = nonces.GetCachedNonce(account, key)
	require.True(t, ok)
	assert.Equal(t, uint64(1), userop.NonceSequence(cached))
}

func TestDemoNonceKey(t *testing.T) {
	assert.Equal(t, int64(1000), DemoNonceKey(0).Int64())
	assert.Equal(t, int64(1000), DemoNonceKey(7).Int64())
	assert.Equal(t, int64(1006), DemoNonceKey(13).Int64())
}

type staticLister []common.Address

func (s staticLister) SupportedEntryPoints(ctx context.Context) ([]common.Address, error) {
	return s, nil
}

func TestCheckEntryPoint(t *testing.T) {
	assert.NoError(t, CheckEntryPoint(context.Background(), staticLister{entryPoint}, entryPoint))
	assert.Error(t, CheckEntryPoint(context.Background(), staticLister{common.HexToAddress("0x01")}, entryPoint))
}

func TestReachedBeforeBuild(t *testing.T) {
	h := newHarness(t)

	out, err := h.driver.Run(context.Background(), Request{Account: account, NonceKey: new(big.Int).Lsh(userop.MaxNonceKey, 1), CallData: callData})
	require.ErrorIs(t, err, ErrInvalidNonceKey)
	assert.Equal(t, StateFailed, out.State)
	_, ok := out.Reached()
	assert.False(t, ok)
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "timed_out", StateTimedOut.String())
	assert.Equal(t, "unknown", State(42).String())
}
