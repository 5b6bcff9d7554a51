// Provide primitive to work with a bundler RPC
// Bundler RPC is stateless
package bundler

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/AvaProtocol/hybrid-compute/pkg/erc4337/userop"
	"github.com/AvaProtocol/hybrid-compute/pkg/logger"
)

// BundlerClient defines a client for interacting with an EIP-4337 bundler RPC endpoint.
type BundlerClient struct {
	client *rpc.Client
	url    string
	logger logger.Logger
}

// NewBundlerClient creates a new BundlerClient that connects to the given URL.
func NewBundlerClient(url string, log logger.Logger) (*BundlerClient, error) {
	// Use DialHTTP instead of Dial as it is more compatible with HTTP-based bundler
	// endpoints, but it also supports other protocols such as WebSocket.
	c, err := rpc.DialHTTP(url)
	if err != nil {
		return nil, fmt.Errorf("error creating bundler client: %w", err)
	}
	return &BundlerClient{client: c, url: url, logger: logger.EnsureLogger(log)}, nil
}

// Close closes the underlying RPC client connection.
func (bc *BundlerClient) Close() {
	bc.client.Close()
}

func (bc *BundlerClient) URL() string {
	return bc.url
}

// ChainID returns the chain the bundler submits to
func (bc *BundlerClient) ChainID(ctx context.Context) (*big.Int, error) {
	var id hexutil.Big
	if err := bc.client.CallContext(ctx, &id, "eth_chainId"); err != nil {
		return nil, wrapRPCError(err)
	}
	return (*big.Int)(&id), nil
}

// SupportedEntryPoints lists the entry points the bundler accepts operations for
func (bc *BundlerClient) SupportedEntryPoints(ctx context.Context) ([]common.Address, error) {
	var entryPoints []common.Address
	if err := bc.client.CallContext(ctx, &entryPoints, "eth_supportedEntryPoints"); err != nil {
		return nil, wrapRPCError(err)
	}
	return entryPoints, nil
}

// EstimateUserOperationGas estimates the gas required for a UserOperation.
// https://eips.ethereum.org/EIPS/eip-4337#rpc-methods-eth-namespace
// The signature field is ignored by the wallet, so that the operation will not require user's approval.
// Still, it might require putting a "semi-valid" signature (e.g. a signature in the right length)
func (bc *BundlerClient) EstimateUserOperationGas(
	ctx context.Context,
	op *userop.UserOperation,
	entrypoint common.Address,
) (*GasEstimation, error) {
	uo := FromUserOp(op)
	bc.logger.Debug("eth_estimateUserOperationGas",
		"sender", uo.Sender.Hex(),
		"nonce", uo.Nonce.String(),
		"callData", safePreview(uo.CallData.String(), 74),
		"entrypoint", entrypoint.Hex())

	var result gasEstimationResult
	// Some bundlers require EIP-55 checksummed addresses for the entry point
	if err := bc.client.CallContext(ctx, &result, "eth_estimateUserOperationGas", uo, entrypoint.Hex()); err != nil {
		return nil, wrapRPCError(err)
	}

	estimation, err := result.toEstimation()
	if err != nil {
		return nil, err
	}

	bc.logger.Debug("gas estimation received",
		"preVerificationGas", estimation.PreVerificationGas.String(),
		"verificationGasLimit", estimation.VerificationGasLimit.String(),
		"callGasLimit", estimation.CallGasLimit.String())

	return estimation, nil
}

// SendUserOperation sends a UserOperation to the bundler and returns its hash.
func (bc *BundlerClient) SendUserOperation(
	ctx context.Context,
	op *userop.UserOperation,
	entrypoint common.Address,
) (common.Hash, error) {
	uo := FromUserOp(op)
	bc.logger.Debug("eth_sendUserOperation",
		"sender", uo.Sender.Hex(),
		"nonce", uo.Nonce.String(),
		"signature", safePreview(uo.Signature.String(), 20),
		"entrypoint", entrypoint.Hex())

	var opHash common.Hash
	if err := bc.client.CallContext(ctx, &opHash, "eth_sendUserOperation", uo, entrypoint.Hex()); err != nil {
		return common.Hash{}, wrapRPCError(err)
	}

	return opHash, nil
}

// GetUserOperationReceipt fetches the receipt of a UserOperation. A nil
// receipt with a nil error means the operation is not included yet.
func (bc *BundlerClient) GetUserOperationReceipt(ctx context.Context, opHash common.Hash) (*UserOperationReceipt, error) {
	var receipt *UserOperationReceipt
	if err := bc.client.CallContext(ctx, &receipt, "eth_getUserOperationReceipt", opHash); err != nil {
		return nil, wrapRPCError(err)
	}
	return receipt, nil
}

// safePreview returns a truncated preview of s with ellipsis when longer than n
func safePreview(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
