package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Contract names in the deployment manifest
const (
	EntryPointContract    = "EntryPoint"
	HCHelperContract      = "HCHelper"
	SimpleAccountContract = "SimpleAccount"
	HybridAccountContract = "HybridAccount.0"
	DemoHybridAccount     = "HybridAccount.1"
	TestCounterContract   = "TestCounter"
)

type ContractRef struct {
	Address common.Address  `json:"address"`
	ABI     json.RawMessage `json:"abi"`
}

// Manifest maps logical contract names to their deployment
type Manifest map[string]ContractRef

func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read deployment manifest %s: %w", path, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("malformed deployment manifest %s: %w", path, err)
	}
	return &m, nil
}

func (m *Manifest) Address(name string) (common.Address, error) {
	ref, ok := (*m)[name]
	if !ok {
		return common.Address{}, fmt.Errorf("contract %s is not in the deployment manifest", name)
	}
	if ref.Address == (common.Address{}) {
		return common.Address{}, fmt.Errorf("contract %s has no address", name)
	}
	return ref.Address, nil
}

// ABI parses the abi of the named contract
func (m *Manifest) ABI(name string) (abi.ABI, error) {
	ref, ok := (*m)[name]
	if !ok || len(ref.ABI) == 0 {
		return abi.ABI{}, fmt.Errorf("contract %s has no abi in the deployment manifest", name)
	}
	return abi.JSON(bytes.NewReader(ref.ABI))
}
