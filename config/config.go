// Package config loads the agent and CLI configuration from a YAML file, with
// ENCLAVE_ prefixed environment overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ruteri/tee-enclave-agent/chain"
	"github.com/ruteri/tee-enclave-agent/interfaces"
	"github.com/ruteri/tee-enclave-agent/kms"
	"github.com/ruteri/tee-enclave-agent/seal"
	"github.com/ruteri/tee-enclave-agent/sui"
)

const (
	DefaultConfigFile = "seal_config.yaml"
	DefaultKeyID      = "API_KEY"
	EnvPrefix         = "ENCLAVE"
)

// Config holds all configuration for the agent and its tools.
type Config struct {
	Seal    SealConfig    `mapstructure:"seal" yaml:"seal"`
	Chain   ChainConfig   `mapstructure:"chain" yaml:"chain"`
	Agent   AgentConfig   `mapstructure:"agent" yaml:"agent,omitempty"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage,omitempty"`
}

// SealConfig describes the encrypted secret and the key servers guarding it.
type SealConfig struct {
	PackageID                   string   `mapstructure:"package_id" yaml:"package_id,omitempty"`
	EnclaveID                   string   `mapstructure:"enclave_id" yaml:"enclave_id,omitempty"`
	EnclaveInitialSharedVersion uint64   `mapstructure:"enclave_initial_shared_version" yaml:"enclave_initial_shared_version,omitempty"`
	KeyServers                  []string `mapstructure:"key_servers" yaml:"key_servers"`
	PublicKeys                  []string `mapstructure:"public_keys" yaml:"public_keys"`
	Threshold                   uint8    `mapstructure:"threshold" yaml:"threshold"`
	KeyID                       string   `mapstructure:"key_id" yaml:"key_id,omitempty"`
	RPCURL                      string   `mapstructure:"rpc_url" yaml:"rpc_url,omitempty"`
}

// KeyServerEntry is a statically configured key server, used by the mock chain
// client in place of the on-chain directory.
type KeyServerEntry struct {
	ObjectID string `mapstructure:"object_id" yaml:"object_id"`
	Name     string `mapstructure:"name" yaml:"name"`
	URL      string `mapstructure:"url" yaml:"url"`
}

// ChainConfig selects the chain client and locates the DEX objects.
type ChainConfig struct {
	Mode                     string           `mapstructure:"mode" yaml:"mode"`
	RPCURL                   string           `mapstructure:"rpc_url" yaml:"rpc_url,omitempty"`
	DexPackageID             string           `mapstructure:"dex_package_id" yaml:"dex_package_id,omitempty"`
	PoolID                   string           `mapstructure:"pool_id" yaml:"pool_id,omitempty"`
	PoolInitialSharedVersion uint64           `mapstructure:"pool_initial_shared_version" yaml:"pool_initial_shared_version,omitempty"`
	USDCCoinType             string           `mapstructure:"usdc_coin_type" yaml:"usdc_coin_type,omitempty"`
	SwapGasBudget            uint64           `mapstructure:"swap_gas_budget" yaml:"swap_gas_budget,omitempty"`
	TransferGasBudget        uint64           `mapstructure:"transfer_gas_budget" yaml:"transfer_gas_budget,omitempty"`
	KeyServers               []KeyServerEntry `mapstructure:"key_servers" yaml:"key_servers,omitempty"`
}

// AgentConfig holds settings of the data processing endpoint.
type AgentConfig struct {
	WeatherAPIURL string `mapstructure:"weather_api_url" yaml:"weather_api_url,omitempty"`
	// WeatherSecret names the loaded secret used as the weather API key
	WeatherSecret string `mapstructure:"weather_secret" yaml:"weather_secret,omitempty"`
}

// StorageConfig lists storage backend URIs for encrypted objects.
type StorageConfig struct {
	Locations []string `mapstructure:"locations" yaml:"locations,omitempty"`
}

// Load reads configuration from path and environment variables. An empty path looks
// for seal_config.yaml in the working directory and is allowed to find nothing.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(strings.TrimSuffix(DefaultConfigFile, ".yaml"))
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Keys without defaults are only seen by Unmarshal when bound explicitly.
	for _, key := range []string{
		"seal.package_id", "seal.enclave_id", "seal.enclave_initial_shared_version",
		"seal.key_servers", "seal.public_keys", "seal.threshold",
		"chain.dex_package_id", "chain.pool_id", "chain.usdc_coin_type",
		"storage.locations",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("seal.key_id", DefaultKeyID)
	v.SetDefault("seal.rpc_url", "https://fullnode.testnet.sui.io:443")

	v.SetDefault("chain.mode", chain.ModeMock)
	v.SetDefault("chain.rpc_url", "https://fullnode.devnet.sui.io:443")
	v.SetDefault("chain.pool_initial_shared_version", 175)
	v.SetDefault("chain.swap_gas_budget", chain.DefaultSwapGasBudget)
	v.SetDefault("chain.transfer_gas_budget", chain.DefaultTransferGasBudget)

	v.SetDefault("agent.weather_api_url", "https://api.weatherapi.com/v1/current.json")
	v.SetDefault("agent.weather_secret", DefaultKeyID)
}

// Validate checks the Seal section and, in live mode, the chain section.
func (c *Config) Validate() error {
	if _, err := c.Seal.LoaderConfig(); err != nil {
		return fmt.Errorf("seal: %w", err)
	}
	if _, err := c.Chain.Directory(); err != nil {
		return fmt.Errorf("chain: %w", err)
	}
	if strings.EqualFold(c.Chain.Mode, chain.ModeLive) {
		if _, err := c.Chain.LiveConfig(); err != nil {
			return fmt.Errorf("chain: %w", err)
		}
	}
	return nil
}

// ServerIDs parses the configured key server object ids.
func (c *SealConfig) ServerIDs() ([]sui.ObjectID, error) {
	ids := make([]sui.ObjectID, len(c.KeyServers))
	for i, s := range c.KeyServers {
		id, err := sui.ParseAddress(s)
		if err != nil {
			return nil, fmt.Errorf("key server %d: %w", i, err)
		}
		ids[i] = id
	}
	return ids, nil
}

// ServerPublicKeys parses the configured key server public keys.
func (c *SealConfig) ServerPublicKeys() ([]seal.G2Element, error) {
	keys := make([]seal.G2Element, len(c.PublicKeys))
	for i, s := range c.PublicKeys {
		pk, err := seal.G2FromHex(s)
		if err != nil {
			return nil, fmt.Errorf("public key %d: %w", i, err)
		}
		keys[i] = pk
	}
	return keys, nil
}

// LoaderConfig parses the section into the form the key loader and the CLI use.
func (c *SealConfig) LoaderConfig() (kms.LoaderConfig, error) {
	packageID, err := sui.ParseAddress(c.PackageID)
	if err != nil {
		return kms.LoaderConfig{}, fmt.Errorf("package_id: %w", err)
	}
	enclaveID, err := sui.ParseAddress(c.EnclaveID)
	if err != nil {
		return kms.LoaderConfig{}, fmt.Errorf("enclave_id: %w", err)
	}
	ids, err := c.ServerIDs()
	if err != nil {
		return kms.LoaderConfig{}, err
	}
	keys, err := c.ServerPublicKeys()
	if err != nil {
		return kms.LoaderConfig{}, err
	}

	keyID := c.KeyID
	if keyID == "" {
		keyID = DefaultKeyID
	}
	loaderCfg := kms.LoaderConfig{
		PackageID:                   packageID,
		EnclaveID:                   enclaveID,
		EnclaveInitialSharedVersion: c.EnclaveInitialSharedVersion,
		KeyID:                       []byte(keyID),
		KeyServers:                  ids,
		PublicKeys:                  keys,
		Threshold:                   c.Threshold,
	}
	if err := loaderCfg.Validate(); err != nil {
		return kms.LoaderConfig{}, err
	}
	return loaderCfg, nil
}

// LiveConfig parses the section for the live chain client.
func (c *ChainConfig) LiveConfig() (chain.LiveConfig, error) {
	dex, err := sui.ParseAddress(c.DexPackageID)
	if err != nil {
		return chain.LiveConfig{}, fmt.Errorf("dex_package_id: %w", err)
	}
	pool, err := sui.ParseAddress(c.PoolID)
	if err != nil {
		return chain.LiveConfig{}, fmt.Errorf("pool_id: %w", err)
	}
	if c.RPCURL == "" {
		return chain.LiveConfig{}, errors.New("rpc_url is required in live mode")
	}
	return chain.LiveConfig{
		RPCURL:                   c.RPCURL,
		DexPackageID:             dex,
		PoolID:                   pool,
		PoolInitialSharedVersion: c.PoolInitialSharedVersion,
		USDCCoinType:             c.USDCCoinType,
		SwapGasBudget:            c.SwapGasBudget,
		TransferGasBudget:        c.TransferGasBudget,
	}, nil
}

// Directory parses the static key server entries.
func (c *ChainConfig) Directory() ([]interfaces.KeyServerInfo, error) {
	out := make([]interfaces.KeyServerInfo, len(c.KeyServers))
	for i, entry := range c.KeyServers {
		id, err := sui.ParseAddress(entry.ObjectID)
		if err != nil {
			return nil, fmt.Errorf("key server entry %d: %w", i, err)
		}
		if entry.URL == "" {
			return nil, fmt.Errorf("key server entry %d: missing url", i)
		}
		out[i] = interfaces.KeyServerInfo{ObjectID: id, Name: entry.Name, URL: entry.URL}
	}
	return out, nil
}

// WriteSnippet writes c as YAML that Load reads back. Empty optional fields are left out.
func (c *Config) WriteSnippet(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}
