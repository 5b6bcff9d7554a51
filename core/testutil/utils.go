package testutil

import (
	"crypto/ecdsa"
	"os"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/AvaProtocol/hybrid-compute/core/config"
	"github.com/AvaProtocol/hybrid-compute/storage"
)

// Deterministic hardhat/anvil development accounts
const (
	OwnerKeyHex   = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	BundlerKeyHex = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
)

var (
	OwnerAddress   = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	BundlerAddress = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
)

func GetTestRPCURL() string {
	v := os.Getenv("RPC_URL")
	if v == "" {
		return "http://localhost:9545"
	}

	return v
}

func GetTestBundlerURL() string {
	v := os.Getenv("BUNDLER_RPC")
	if v == "" {
		return "http://localhost:3300"
	}

	return v
}

// Shortcut to initialize a storage at a temp path, panic if we cannot create db
func TestMustDB() storage.Storage {
	dir, err := os.MkdirTemp("", "hctest")
	if err != nil {
		panic(err)
	}

	db, err := storage.NewWithPath(dir)
	if err != nil {
		panic(err)
	}
	return db
}

func GetLogger() sdklogging.Logger {
	logger, err := sdklogging.NewZapLogger("development")
	if err != nil {
		panic(err)
	}
	return logger
}

func MustKey(hexKey string) *ecdsa.PrivateKey {
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		panic(err)
	}
	return key
}

// GetTestConfig is a config pointing at a local devnet with the owner and
// bundler roles filled from the development accounts
func GetTestConfig() *config.Config {
	return &config.Config{
		Environment:       sdklogging.Development,
		Logger:            GetLogger(),
		EthRpcUrl:         GetTestRPCURL(),
		BundlerUrl:        GetTestBundlerURL(),
		EntryPointAddress: common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"),
		Roles: map[string]*config.Role{
			config.OwnerRole:   {Name: config.OwnerRole, Address: OwnerAddress, PrivateKey: MustKey(OwnerKeyHex)},
			config.BundlerRole: {Name: config.BundlerRole, Address: BundlerAddress, PrivateKey: MustKey(BundlerKeyHex)},
		},
		Offchain: config.OffchainConfig{
			ListenAddress:   config.DefaultListenAddress,
			DuplicatePolicy: config.DefaultDuplicatePolicy,
		},
		UserOp: config.UserOpConfig{
			MarginPercent:   config.DefaultMarginPercent,
			MaxAttempts:     config.DefaultMaxAttempts,
			PollInterval:    config.DefaultPollInterval,
			MaxNonceRetries: config.DefaultMaxNonceRetries,
			HashAttempts:    config.DefaultHashAttempts,
		},
	}
}
