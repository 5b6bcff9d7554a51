package bundler

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const ReceiptStatusSuccessful = 1

// Log is an event emitted while the bundle executed
type Log struct {
	Address         common.Address `json:"address"`
	Topics          []common.Hash  `json:"topics"`
	Data            hexutil.Bytes  `json:"data"`
	BlockNumber     *hexutil.Big   `json:"blockNumber"`
	TransactionHash common.Hash    `json:"transactionHash"`
	LogIndex        *hexutil.Big   `json:"logIndex"`
}

// TransactionReceipt is the receipt of the bundle transaction that included
// the operation. L1Fee and L1GasUsed are only reported by rollups.
type TransactionReceipt struct {
	TransactionHash   common.Hash     `json:"transactionHash"`
	BlockHash         common.Hash     `json:"blockHash"`
	BlockNumber       *hexutil.Big    `json:"blockNumber"`
	From              common.Address  `json:"from"`
	To                *common.Address `json:"to"`
	Status            hexutil.Uint64  `json:"status"`
	GasUsed           *hexutil.Big    `json:"gasUsed"`
	CumulativeGasUsed *hexutil.Big    `json:"cumulativeGasUsed"`
	EffectiveGasPrice *hexutil.Big    `json:"effectiveGasPrice"`
	L1Fee             *hexutil.Big    `json:"l1Fee,omitempty"`
	L1GasUsed         *hexutil.Big    `json:"l1GasUsed,omitempty"`
	L1GasPrice        *hexutil.Big    `json:"l1GasPrice,omitempty"`
	Logs              []Log           `json:"logs"`
}

// UserOperationReceipt is the result of eth_getUserOperationReceipt
type UserOperationReceipt struct {
	UserOpHash    common.Hash        `json:"userOpHash"`
	EntryPoint    common.Address     `json:"entryPoint"`
	Sender        common.Address     `json:"sender"`
	Nonce         *hexutil.Big       `json:"nonce"`
	Paymaster     common.Address     `json:"paymaster"`
	ActualGasCost *hexutil.Big       `json:"actualGasCost"`
	ActualGasUsed *hexutil.Big       `json:"actualGasUsed"`
	Success       bool               `json:"success"`
	Reason        string             `json:"reason"`
	Logs          []Log              `json:"logs"`
	Receipt       TransactionReceipt `json:"receipt"`
}

func toBig(v *hexutil.Big) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set((*big.Int)(v))
}

// Succeeded is true when both the bundle transaction and the operation itself succeeded
func (r *UserOperationReceipt) Succeeded() bool {
	return uint64(r.Receipt.Status) == ReceiptStatusSuccessful && r.Success
}

// L2Fee is gasUsed * effectiveGasPrice of the bundle transaction
func (r *UserOperationReceipt) L2Fee() *big.Int {
	return new(big.Int).Mul(toBig(r.Receipt.GasUsed), toBig(r.Receipt.EffectiveGasPrice))
}

// L1Fee is the data availability fee, zero on chains that don't report one
func (r *UserOperationReceipt) L1Fee() *big.Int {
	return toBig(r.Receipt.L1Fee)
}

// GasUsed of the bundle transaction
func (r *UserOperationReceipt) GasUsed() *big.Int {
	return toBig(r.Receipt.GasUsed)
}

func (r *UserOperationReceipt) EffectiveGasPrice() *big.Int {
	return toBig(r.Receipt.EffectiveGasPrice)
}
