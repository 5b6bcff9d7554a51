package aa

import (
	"github.com/ethereum/go-ethereum/common"
)

var (
	// DefaultEntryPointAddress is the canonical v0.6 entry point deployment
	DefaultEntryPointAddress = common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")
)
