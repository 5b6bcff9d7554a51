package aa

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const accountABIJSON = `[
	{"inputs":[{"name":"dest","type":"address"},{"name":"value","type":"uint256"},{"name":"func","type":"bytes"}],"name":"execute","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

// counterABIJSON is the demo counter the hybrid account calls into. count
// triggers an off-chain addsub2 through the helper.
const counterABIJSON = `[
	{"inputs":[{"name":"a","type":"uint32"},{"name":"b","type":"uint32"},{"name":"hybridAccount","type":"address"}],"name":"count","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"","type":"address"}],"name":"counters","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

var (
	accountABI = mustABI(accountABIJSON)
	counterABI = mustABI(counterABIJSON)
)

func mustABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Errorf("invalid abi: %w", err))
	}
	return parsed
}

// Generate calldata for UserOps
func PackExecute(targetAddress common.Address, ethValue *big.Int, calldata []byte) ([]byte, error) {
	if ethValue == nil {
		ethValue = big.NewInt(0)
	}
	return accountABI.Pack("execute", targetAddress, ethValue, calldata)
}

// PackCount encodes count(uint32,uint32,address)
func PackCount(a, b uint32, hybridAccount common.Address) ([]byte, error) {
	return counterABI.Pack("count", a, b, hybridAccount)
}

// PackCounters encodes the counters(address) view
func PackCounters(account common.Address) ([]byte, error) {
	return counterABI.Pack("counters", account)
}

// UnpackCounters decodes the result of counters(address)
func UnpackCounters(data []byte) (*big.Int, error) {
	values, err := counterABI.Unpack("counters", data)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(values[0], new(*big.Int)).(**big.Int), nil
}

// CounterCallData builds the account calldata that makes account call
// counter.count(a, b, hybridAccount).
func CounterCallData(counter, hybridAccount common.Address, a, b uint32) ([]byte, error) {
	countCall, err := PackCount(a, b, hybridAccount)
	if err != nil {
		return nil, err
	}
	return PackExecute(counter, big.NewInt(0), countCall)
}
