package bundler

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/AvaProtocol/hybrid-compute/pkg/erc4337/userop"
)

// UserOperation is the bundler wire form of a user operation: every number
// is a 0x quantity and every byte field 0x-prefixed hex.
type UserOperation struct {
	Sender               common.Address `json:"sender"`
	Nonce                *hexutil.Big   `json:"nonce"`
	InitCode             hexutil.Bytes  `json:"initCode"`
	CallData             hexutil.Bytes  `json:"callData"`
	CallGasLimit         *hexutil.Big   `json:"callGasLimit"`
	VerificationGasLimit *hexutil.Big   `json:"verificationGasLimit"`
	PreVerificationGas   *hexutil.Big   `json:"preVerificationGas"`
	MaxFeePerGas         *hexutil.Big   `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big   `json:"maxPriorityFeePerGas"`
	PaymasterAndData     hexutil.Bytes  `json:"paymasterAndData"`
	Signature            hexutil.Bytes  `json:"signature"`
}

// FromUserOp converts an operation into its wire form. Nil fields become zero.
func FromUserOp(op *userop.UserOperation) UserOperation {
	o := op.Clone()
	return UserOperation{
		Sender:               o.Sender,
		Nonce:                (*hexutil.Big)(o.Nonce),
		InitCode:             o.InitCode,
		CallData:             o.CallData,
		CallGasLimit:         (*hexutil.Big)(o.CallGasLimit),
		VerificationGasLimit: (*hexutil.Big)(o.VerificationGasLimit),
		PreVerificationGas:   (*hexutil.Big)(o.PreVerificationGas),
		MaxFeePerGas:         (*hexutil.Big)(o.MaxFeePerGas),
		MaxPriorityFeePerGas: (*hexutil.Big)(o.MaxPriorityFeePerGas),
		PaymasterAndData:     o.PaymasterAndData,
		Signature:            o.Signature,
	}
}
