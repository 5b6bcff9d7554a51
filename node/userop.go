package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	sdkmetrics "github.com/Layr-Labs/eigensdk-go/metrics"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/AvaProtocol/hybrid-compute/core/chainio/aa"
	"github.com/AvaProtocol/hybrid-compute/core/config"
	"github.com/AvaProtocol/hybrid-compute/metrics"
	"github.com/AvaProtocol/hybrid-compute/pkg/byte4"
	"github.com/AvaProtocol/hybrid-compute/pkg/eip1559"
	"github.com/AvaProtocol/hybrid-compute/pkg/erc4337/bundler"
	"github.com/AvaProtocol/hybrid-compute/pkg/erc4337/lifecycle"
	"github.com/AvaProtocol/hybrid-compute/pkg/feeledger"
	"github.com/AvaProtocol/hybrid-compute/pkg/logger"
	"github.com/AvaProtocol/hybrid-compute/pkg/timekeeper"
	"github.com/AvaProtocol/hybrid-compute/storage"
)

// Case is one addsub2 call made through TestCounter.count
type Case struct {
	A, B uint32
}

func (c Case) String() string {
	return fmt.Sprintf("addsub2(%d,%d)", c.A, c.B)
}

// DemoCases exercise success, an underflow the account rejects during
// estimation, an underflow the counter handles itself, a call that never
// reaches the off-chain server (b == 0) and a final success.
var DemoCases = []Case{{2, 1}, {2, 10}, {2, 3}, {7, 0}, {4, 1}}

type CaseResult struct {
	Case
	CounterBefore *big.Int
	CounterAfter  *big.Int
	Outcome       *lifecycle.Outcome
	Err           error
	// Elapsed covers the driver run only, not the counter reads
	Elapsed time.Duration
}

// Summary is what a run of cases produced
type Summary struct {
	Results []CaseResult
	Report  feeledger.Report
}

// meteredLedger records into the ledger and mirrors the fees into metrics
type meteredLedger struct {
	ledger  lifecycle.FeeRecorder
	metrics feeMetrics
}

type feeMetrics interface {
	AddFees(l2Fee, l1Fee *big.Int)
}

func (m *meteredLedger) Record(receipt *bundler.UserOperationReceipt, estimatedGas *big.Int) (*feeledger.Entry, error) {
	entry, err := m.ledger.Record(receipt, estimatedGas)
	if err != nil {
		return nil, err
	}
	m.metrics.AddFees(entry.L2Fee, entry.L1Fee)
	return entry, nil
}

const metricsAvsName = "hybrid-compute"

// runMetrics is the registry of one userop run. The eigensdk metrics server
// exposes it on userop.metrics_address while the run lasts.
type runMetrics struct {
	reg     *prometheus.Registry
	hc      *metrics.HybridComputeMetrics
	eigen   *sdkmetrics.EigenMetrics
	address string
}

func newRunMetrics(address string, log logger.Logger) *runMetrics {
	reg := prometheus.NewRegistry()
	return &runMetrics{
		reg:     reg,
		hc:      metrics.NewHybridComputeMetrics(reg),
		eigen:   sdkmetrics.NewEigenMetrics(metricsAvsName, address, reg, logger.EnsureLogger(log)),
		address: address,
	}
}

// start serves the registry until ctx is done. Without an address nothing is
// served and the channel is nil.
func (m *runMetrics) start(ctx context.Context) <-chan error {
	if m.address == "" {
		return nil
	}
	return m.eigen.Start(ctx, m.reg)
}

// addProfit reports what the submitter earned over the run
func (m *runMetrics) addProfit(profit *big.Int) {
	if profit == nil || profit.Sign() <= 0 {
		return
	}
	f, _ := new(big.Float).SetInt(profit).Float64()
	m.eigen.AddFeeEarnedTotal(f, "wei")
}

// Runner drives addsub2 operations from the owner's smart account through the
// bundler and keeps the fee ledger for the run.
type Runner struct {
	config *config.Config
	logger logger.Logger

	eth        *ethclient.Client
	bundler    *bundler.BundlerClient
	entryPoint *aa.EntryPoint
	db         storage.Storage
	ledger     *feeledger.Ledger
	driver     *lifecycle.Driver

	submitter     common.Address
	account       common.Address
	hybridAccount common.Address
	counter       common.Address
	accountABI    *abi.ABI
	nonceKey      *big.Int

	metrics *runMetrics
}

// NewRunner connects to the node and the bundler, checks that they agree on
// the chain and the entry point, and prepares the ledger.
func NewRunner(ctx context.Context, c *config.Config) (_ *Runner, err error) {
	if err := c.RequireChain(); err != nil {
		return nil, err
	}
	if c.Deployment == nil {
		return nil, fmt.Errorf("deployment_file is required to drive operations")
	}

	r := &Runner{config: c, logger: logger.EnsureLogger(c.Logger)}
	defer func() {
		if err != nil {
			r.Close()
		}
	}()

	if r.account, err = c.Deployment.Address(config.SimpleAccountContract); err != nil {
		return nil, err
	}
	if r.hybridAccount, err = c.Deployment.Address(config.DemoHybridAccount); err != nil {
		return nil, err
	}
	if r.counter, err = c.Deployment.Address(config.TestCounterContract); err != nil {
		return nil, err
	}
	if parsed, abiErr := c.Deployment.ABI(config.SimpleAccountContract); abiErr == nil {
		r.accountABI = &parsed
	}

	owner, err := c.SigningRole(config.OwnerRole)
	if err != nil {
		return nil, err
	}
	submitter, err := c.Role(config.BundlerRole)
	if err != nil {
		return nil, err
	}
	r.submitter = submitter.Address

	if r.eth, err = ethclient.DialContext(ctx, c.EthRpcUrl); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", c.EthRpcUrl, err)
	}
	if r.bundler, err = bundler.NewBundlerClient(c.BundlerUrl, r.logger); err != nil {
		return nil, err
	}

	if err := r.checkChain(ctx); err != nil {
		return nil, err
	}
	if err := lifecycle.CheckEntryPoint(ctx, r.bundler, c.EntryPointAddress); err != nil {
		return nil, err
	}

	if r.entryPoint, err = aa.NewEntryPoint(c.EntryPointAddress, r.eth); err != nil {
		return nil, err
	}

	if r.db, err = storage.New(&storage.Config{Path: c.DbPath, InMemory: c.DbPath == ""}); err != nil {
		return nil, fmt.Errorf("failed to open ledger storage: %w", err)
	}
	r.ledger = feeledger.New(r.db, r.logger)
	if c.UserOp.LedgerTolerance != nil {
		r.ledger.Tolerance = c.UserOp.LedgerTolerance
	}
	if err := r.ledger.Open(); err != nil {
		return nil, err
	}

	txCount, err := r.eth.NonceAt(ctx, owner.Address, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read owner transaction count: %w", err)
	}
	r.nonceKey = lifecycle.DemoNonceKey(txCount)

	r.metrics = newRunMetrics(c.UserOp.MetricsAddress, r.logger)
	r.driver = newDriver(c, r, owner, r.metrics.hc)

	r.logger.Info("runner ready",
		"account", r.account.Hex(),
		"hybridAccount", r.hybridAccount.Hex(),
		"counter", r.counter.Hex(),
		"entryPoint", c.EntryPointAddress.Hex(),
		"bundler", r.bundler.URL(),
		"nonceKey", r.nonceKey.String(),
		"session", r.ledger.SessionID())

	return r, nil
}

func newDriver(c *config.Config, r *Runner, owner *config.Role, m *metrics.HybridComputeMetrics) *lifecycle.Driver {
	nonces := bundler.NewNonceManager(r.logger)
	signer := &lifecycle.Signer{
		Hasher:       r.entryPoint,
		Key:          owner.PrivateKey,
		HashAttempts: c.UserOp.HashAttempts,
		Logger:       r.logger,
	}

	return &lifecycle.Driver{
		Builder: &lifecycle.Builder{
			EntryPoint: r.entryPoint,
			Nonces:     nonces,
			Logger:     r.logger,
		},
		Refiner: &lifecycle.Refiner{
			EntryPoint:    c.EntryPointAddress,
			Estimator:     r.bundler,
			Signer:        signer,
			Fees:          &eip1559.Suggester{Client: r.eth},
			MarginPercent: c.UserOp.MarginPercent,
			AllowFallback: c.UserOp.AllowGasFallback,
			Logger:        r.logger,
		},
		Signer: signer,
		Submitter: &lifecycle.Submitter{
			EntryPoint: c.EntryPointAddress,
			Sender:     r.bundler,
			Nonces:     nonces,
			Logger:     r.logger,
		},
		Monitor: &lifecycle.Monitor{
			Receipts:     r.bundler,
			MaxAttempts:  c.UserOp.MaxAttempts,
			PollInterval: c.UserOp.PollInterval,
			Logger:       r.logger,
			Metrics:      m,
		},
		Ledger:          &meteredLedger{ledger: r.ledger, metrics: m},
		MaxNonceRetries: c.UserOp.MaxNonceRetries,
		Logger:          r.logger,
		Metrics:         m,
	}
}

// checkChain resolves the chain id and makes sure the bundler serves the same
// chain as the node
func (r *Runner) checkChain(ctx context.Context) error {
	nodeChain, err := r.eth.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to read chain id: %w", err)
	}
	if r.config.ChainID != nil && r.config.ChainID.Cmp(nodeChain) != 0 {
		return fmt.Errorf("configured chain %s but node reports %s", r.config.ChainID, nodeChain)
	}

	bundlerChain, err := r.bundler.ChainID(ctx)
	if err != nil {
		return err
	}
	if bundlerChain.Cmp(nodeChain) != 0 {
		return fmt.Errorf("bundler serves chain %s but node reports %s", bundlerChain, nodeChain)
	}
	return nil
}

func (r *Runner) Close() {
	if r.bundler != nil {
		r.bundler.Close()
	}
	if r.eth != nil {
		r.eth.Close()
	}
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			r.logger.Warn("failed to close ledger storage", "error", err)
		}
	}
}

// Counter reads TestCounter.counters(account)
func (r *Runner) Counter(ctx context.Context) (*big.Int, error) {
	return readCounter(ctx, r.eth, r.counter, r.account)
}

func readCounter(ctx context.Context, caller bind.ContractCaller, counter, account common.Address) (*big.Int, error) {
	data, err := aa.PackCounters(account)
	if err != nil {
		return nil, err
	}
	out, err := caller.CallContract(ctx, ethereum.CallMsg{To: &counter, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read counter: %w", err)
	}
	return aa.UnpackCounters(out)
}

// RunCase drives one operation to a terminal state. The error is kept in the
// result, never returned, so a run can continue past an expected failure.
func (r *Runner) RunCase(ctx context.Context, c Case) CaseResult {
	res := CaseResult{Case: c}
	log := r.logger.With("case", c.String())

	if before, err := r.Counter(ctx); err == nil {
		res.CounterBefore = before
	} else {
		log.Warn("cannot read counter", "error", err)
	}

	callData, err := aa.CounterCallData(r.counter, r.hybridAccount, c.A, c.B)
	if err != nil {
		res.Err = err
		return res
	}
	if r.accountABI != nil {
		if method, err := byte4.GetMethodFromCalldata(*r.accountABI, callData); err == nil {
			log.Debug("account call", "method", method.Sig)
		}
	}

	timer := timekeeper.NewElapsing()
	res.Outcome, res.Err = r.driver.Run(ctx, lifecycle.Request{
		Account:  r.account,
		NonceKey: r.nonceKey,
		CallData: callData,
	})
	res.Elapsed = timer.Report()
	if res.Outcome != nil && res.Outcome.Receipt != nil {
		logReceipt(log, res.Outcome)
	}
	if res.Err != nil {
		log.Warn("operation did not complete", "error", res.Err)
	}

	if after, err := r.Counter(ctx); err == nil {
		res.CounterAfter = after
	}
	return res
}

// RunCases runs cases in order between two balance snapshots and summarizes
// the ledger against them. A receipt timeout stops the run because the
// pending operation holds the nonce the next case would use.
func (r *Runner) RunCases(ctx context.Context, cases []Case) (*Summary, error) {
	session, err := feeledger.StartSession(ctx,
		&feeledger.DepositBalance{EntryPoint: r.entryPoint, Account: r.account},
		&feeledger.NativeBalance{Client: r.eth, Account: r.submitter},
	)
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	for _, c := range cases {
		if ctx.Err() != nil {
			break
		}
		res := r.RunCase(ctx, c)
		summary.Results = append(summary.Results, res)
		if errors.Is(res.Err, lifecycle.ErrReceiptTimeout) {
			r.logger.Error("previous operation timed out, stopping", "case", c.String())
			break
		}
	}

	// balances are read with a fresh context so an interrupted run still
	// gets a report
	summary.Report, err = session.Close(context.Background(), r.ledger)
	if err != nil {
		return summary, err
	}
	r.metrics.addProfit(summary.Report.SubmitterProfit)
	return summary, nil
}

func logReceipt(log logger.Logger, out *lifecycle.Outcome) {
	receipt := out.Receipt
	for i, l := range receipt.Receipt.Logs {
		topic := "-"
		if len(l.Topics) > 0 {
			topic = l.Topics[0].Hex()
		}
		log.Debug("receipt log", "index", i, "address", l.Address.Hex(), "topic", topic, "data", l.Data.String())
	}

	log.Info("bundle gas stats",
		"txHash", receipt.Receipt.TransactionHash.Hex(),
		"gasUsed", receipt.GasUsed(),
		"l1Fee", receipt.L1Fee())

	if out.Entry != nil {
		log.Info("operation gas",
			"used", out.Entry.ActualGasUsed,
			"estimated", out.Entry.EstimatedGas,
			"unused", out.Entry.UnusedGas())
	}
}

func bigString(v *big.Int) string {
	if v == nil {
		return "?"
	}
	return v.String()
}

// WriteSummary prints one line per case followed by the fee report
func WriteSummary(w io.Writer, s *Summary) {
	for _, res := range s.Results {
		state := "not built"
		opHash := "-"
		gas := ""
		if res.Outcome != nil {
			state = res.Outcome.State.String()
			if res.Outcome.OpHash != (common.Hash{}) {
				opHash = res.Outcome.OpHash.Hex()
			}
			if e := res.Outcome.Entry; e != nil {
				gas = fmt.Sprintf(" gas used %s unused %s", bigString(e.ActualGasUsed), e.UnusedGas())
			}
		}

		if res.Elapsed > 0 {
			gas += fmt.Sprintf(" in %s", res.Elapsed.Round(time.Millisecond))
		}

		fmt.Fprintf(w, "%-16s %-10s counter %s -> %s op %s%s\n",
			res.Case, state, bigString(res.CounterBefore), bigString(res.CounterAfter), opHash, gas)
		if res.Err != nil {
			fmt.Fprintf(w, "%16s error: %v\n", "", res.Err)
		}
	}
	fmt.Fprintln(w)
	fmt.Fprint(w, s.Report.String())
}

// RunUserOps loads the config at configPath, runs cases and prints the
// summary to w. A single case returns its own error; a longer run only fails
// when it could not produce a report.
func RunUserOps(configPath string, cases []Case, w io.Writer) error {
	nodeConfig, err := config.NewConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to parse config file %s, make sure it exists and is valid yaml: %w", configPath, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		select {
		case <-sigs:
			cancel()
		case <-ctx.Done():
		}
	}()

	runner, err := NewRunner(ctx, nodeConfig)
	if err != nil {
		return err
	}
	defer runner.Close()

	if errCh := runner.metrics.start(ctx); errCh != nil {
		go func() {
			for err := range errCh {
				runner.logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	summary, err := runner.RunCases(ctx, cases)
	if summary != nil {
		WriteSummary(w, summary)
	}
	if err != nil {
		return err
	}

	if len(cases) == 1 && len(summary.Results) == 1 {
		return summary.Results[0].Err
	}
	return nil
}
