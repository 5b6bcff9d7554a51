package config

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"

	"github.com/AvaProtocol/hybrid-compute/core/chainio/aa"
)

// Well known role names
const (
	// OwnerRole signs operations for the smart account
	OwnerRole = "owner"
	// BundlerRole is the EOA that submits bundles and collects the fees
	BundlerRole = "bundler"
)

const (
	DefaultListenAddress      = ":1234"
	DefaultMarginPercent      = 10
	DefaultMaxAttempts        = 10
	DefaultPollInterval       = time.Second
	DefaultMaxNonceRetries    = 2
	DefaultHashAttempts       = 3
	DefaultHandlerTimeout     = 30 * time.Second
	DefaultDuplicatePolicy    = "error"
	DefaultLedgerToleranceWei = "0"
)

// Role is a named (address, key) pair. Key is nil for roles that are only
// observed, e.g. the bundler's EOA when this node does not run the bundler.
type Role struct {
	Name       string
	Address    common.Address
	PrivateKey *ecdsa.PrivateKey `json:"-"`
}

type RemoteHandler struct {
	Signature string
	Params    []string
	URL       string
	Timeout   time.Duration
}

type OffchainConfig struct {
	ListenAddress   string
	DuplicatePolicy string
	Handlers        []RemoteHandler

	// SentryDsn enables panic and fault reporting when set
	SentryDsn  string
	ServerName string
}

type UserOpConfig struct {
	MarginPercent    int64
	MaxAttempts      int
	PollInterval     time.Duration
	MaxNonceRetries  int
	HashAttempts     int
	AllowGasFallback bool
	LedgerTolerance  *big.Int
	// MetricsAddress serves /metrics for the duration of a run when set
	MetricsAddress string
}

// Config is the parsed form of ConfigRaw
type Config struct {
	Environment sdklogging.LogLevel
	Logger      sdklogging.Logger `json:"-"`

	EthRpcUrl  string
	BundlerUrl string
	// ChainID is nil when it should be read from the node
	ChainID *big.Int

	EntryPointAddress common.Address
	// Deployment is nil when no manifest is configured
	Deployment *Manifest
	DbPath     string

	Roles map[string]*Role

	Offchain OffchainConfig
	UserOp   UserOpConfig
}

// These are read from the yaml config file
type ConfigRaw struct {
	Environment       sdklogging.LogLevel `yaml:"environment" validate:"omitempty,oneof=production development"`
	EthRpcUrl         string              `yaml:"eth_rpc_url" validate:"omitempty,url"`
	BundlerUrl        string              `yaml:"bundler_url" validate:"omitempty,url"`
	ChainID           int64               `yaml:"chain_id" validate:"min=0"`
	EntryPointAddress string              `yaml:"entrypoint_address" validate:"omitempty,eth_addr"`
	DeploymentFile    string              `yaml:"deployment_file"`
	DbPath            string              `yaml:"db_path"`

	Roles map[string]RoleRaw `yaml:"roles" validate:"dive"`

	Offchain OffchainRaw `yaml:"offchain"`
	UserOp   UserOpRaw   `yaml:"userop"`
}

type RoleRaw struct {
	Address    string `yaml:"address" validate:"omitempty,eth_addr"`
	PrivateKey string `yaml:"private_key"`
}

type OffchainRaw struct {
	ListenAddress   string             `yaml:"listen_address" validate:"omitempty,hostname_port"`
	DuplicatePolicy string             `yaml:"duplicate_policy" validate:"omitempty,oneof=error first_wins"`
	Handlers        []RemoteHandlerRaw `yaml:"handlers" validate:"dive"`
	SentryDsn       string             `yaml:"sentry_dsn" validate:"omitempty,url"`
	ServerName      string             `yaml:"server_name"`
}

type RemoteHandlerRaw struct {
	Signature string   `yaml:"signature" validate:"required"`
	Params    []string `yaml:"params"`
	URL       string   `yaml:"url" validate:"required,url"`
	Timeout   string   `yaml:"timeout"`
}

type UserOpRaw struct {
	MarginPercent    *int64 `yaml:"gas_margin_percent" validate:"omitempty,min=0,max=100"`
	MaxAttempts      int    `yaml:"receipt_max_attempts" validate:"min=0"`
	PollInterval     string `yaml:"receipt_poll_interval"`
	MaxNonceRetries  *int   `yaml:"max_nonce_retries" validate:"omitempty,min=0"`
	HashAttempts     int    `yaml:"hash_attempts" validate:"min=0"`
	AllowGasFallback bool   `yaml:"allow_gas_fallback"`
	LedgerTolerance  string `yaml:"ledger_tolerance_wei" validate:"omitempty,numeric"`
	MetricsAddress   string `yaml:"metrics_address" validate:"omitempty,hostname_port"`
}

var validate = validator.New()

// NewConfig reads the yaml file at configFilePath, parses it and creates the
// logger for the configured environment.
func NewConfig(configFilePath string) (*Config, error) {
	data, err := os.ReadFile(configFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", configFilePath, err)
	}

	config, err := Parse(data)
	if err != nil {
		return nil, err
	}

	config.Logger, err = sdklogging.NewZapLogger(config.Environment)
	if err != nil {
		return nil, err
	}
	return config, nil
}

// Parse turns yaml into a validated Config. It does not touch the network;
// the deployment manifest is loaded when one is configured.
func Parse(data []byte) (*Config, error) {
	var raw ConfigRaw
	if err := yaml.UnmarshalStrict(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	return raw.toConfig()
}

func (raw *ConfigRaw) toConfig() (*Config, error) {
	if err := validate.Struct(raw); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	config := &Config{
		Environment:       orDefault(raw.Environment, sdklogging.Production),
		EthRpcUrl:         raw.EthRpcUrl,
		BundlerUrl:        raw.BundlerUrl,
		EntryPointAddress: aa.DefaultEntryPointAddress,
		DbPath:            raw.DbPath,
	}

	if raw.ChainID > 0 {
		config.ChainID = big.NewInt(raw.ChainID)
	}

	if raw.DeploymentFile != "" {
		manifest, err := LoadManifest(raw.DeploymentFile)
		if err != nil {
			return nil, err
		}
		config.Deployment = manifest

		if ep, err := manifest.Address(EntryPointContract); err == nil {
			config.EntryPointAddress = ep
		}
	}
	if raw.EntryPointAddress != "" {
		config.EntryPointAddress = common.HexToAddress(raw.EntryPointAddress)
	}

	roles, err := parseRoles(raw.Roles)
	if err != nil {
		return nil, err
	}
	config.Roles = roles

	if config.Offchain, err = raw.Offchain.toConfig(); err != nil {
		return nil, err
	}
	if config.UserOp, err = raw.UserOp.toConfig(); err != nil {
		return nil, err
	}

	return config, nil
}

func (raw OffchainRaw) toConfig() (OffchainConfig, error) {
	out := OffchainConfig{
		ListenAddress:   orDefault(raw.ListenAddress, DefaultListenAddress),
		DuplicatePolicy: orDefault(raw.DuplicatePolicy, DefaultDuplicatePolicy),
		SentryDsn:       raw.SentryDsn,
		ServerName:      raw.ServerName,
	}

	for _, h := range raw.Handlers {
		timeout, err := parseDuration(h.Timeout, DefaultHandlerTimeout)
		if err != nil {
			return out, fmt.Errorf("handler %s: %w", h.Signature, err)
		}
		out.Handlers = append(out.Handlers, RemoteHandler{
			Signature: h.Signature,
			Params:    h.Params,
			URL:       h.URL,
			Timeout:   timeout,
		})
	}
	return out, nil
}

func (raw UserOpRaw) toConfig() (UserOpConfig, error) {
	out := UserOpConfig{
		MarginPercent:    DefaultMarginPercent,
		MaxAttempts:      orDefault(raw.MaxAttempts, DefaultMaxAttempts),
		MaxNonceRetries:  DefaultMaxNonceRetries,
		HashAttempts:     orDefault(raw.HashAttempts, DefaultHashAttempts),
		AllowGasFallback: raw.AllowGasFallback,
		MetricsAddress:   raw.MetricsAddress,
	}
	if raw.MarginPercent != nil {
		out.MarginPercent = *raw.MarginPercent
	}
	if raw.MaxNonceRetries != nil {
		out.MaxNonceRetries = *raw.MaxNonceRetries
	}

	var err error
	if out.PollInterval, err = parseDuration(raw.PollInterval, DefaultPollInterval); err != nil {
		return out, fmt.Errorf("receipt_poll_interval: %w", err)
	}

	tolerance, ok := new(big.Int).SetString(orDefault(raw.LedgerTolerance, DefaultLedgerToleranceWei), 10)
	if !ok || tolerance.Sign() < 0 {
		return out, fmt.Errorf("ledger_tolerance_wei must be a non-negative integer")
	}
	out.LedgerTolerance = tolerance

	return out, nil
}

// Role returns the named role or an error naming what is missing
func (c *Config) Role(name string) (*Role, error) {
	role, ok := c.Roles[name]
	if !ok {
		return nil, fmt.Errorf("role %q is not configured", name)
	}
	return role, nil
}

// SigningRole is like Role but also requires a private key
func (c *Config) SigningRole(name string) (*Role, error) {
	role, err := c.Role(name)
	if err != nil {
		return nil, err
	}
	if role.PrivateKey == nil {
		return nil, fmt.Errorf("role %q has no private key", name)
	}
	return role, nil
}

// RequireChain checks the settings needed to drive operations
func (c *Config) RequireChain() error {
	if c.EthRpcUrl == "" {
		return fmt.Errorf("eth_rpc_url is required")
	}
	if c.BundlerUrl == "" {
		return fmt.Errorf("bundler_url is required")
	}
	return nil
}
