package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/chainconfig"
)

// ChainSettings is one chain's entry in chains.yaml.
type ChainSettings struct {
	ChainID            int64    `yaml:"chainId" json:"chainId"`
	Name               string   `yaml:"name" json:"name"`
	NativeSymbol       string   `yaml:"nativeSymbol" json:"nativeSymbol"`
	RPCEndpoints       []string `yaml:"rpcEndpoints" json:"rpcEndpoints"`
	StablecoinAddress  string   `yaml:"stablecoinAddress" json:"stablecoinAddress"`
	RouterAddress      string   `yaml:"routerAddress" json:"routerAddress"`
	BondingCurveRouter string   `yaml:"bondingCurveRouter" json:"bondingCurveRouter"`
	ConfirmationDepth  int      `yaml:"confirmationDepth" json:"confirmationDepth"`
}

// ChainsConfig is the full chains.yaml document.
type ChainsConfig struct {
	Chains []ChainSettings `yaml:"chains" json:"chains"`
}

// LoadChainsConfig reads and validates a chains.yaml file.
func LoadChainsConfig(path string) (*ChainsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read chains config: %w", err)
	}

	var cfg ChainsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse chains config: %w", err)
	}

	for i, c := range cfg.Chains {
		if c.ChainID == 0 {
			return nil, fmt.Errorf("chain %d: chainId is required", i)
		}
		if len(c.RPCEndpoints) == 0 {
			return nil, fmt.Errorf("chain %d: at least one RPC endpoint is required", c.ChainID)
		}
		if c.StablecoinAddress == "" {
			return nil, fmt.Errorf("chain %d: stablecoinAddress is required", c.ChainID)
		}
	}
	return &cfg, nil
}

// ToRegistry converts the parsed document into the runtime chain
// registry.
func (c *ChainsConfig) ToRegistry() *chainconfig.Registry {
	chains := make([]*chainconfig.Chain, 0, len(c.Chains))
	for _, settings := range c.Chains {
		endpoints := make([]chainconfig.Endpoint, 0, len(settings.RPCEndpoints))
		for i, url := range settings.RPCEndpoints {
			endpoints = append(endpoints, chainconfig.Endpoint{URL: url, Priority: i, Weight: 1})
		}
		chains = append(chains, &chainconfig.Chain{
			ChainID:            settings.ChainID,
			Name:               settings.Name,
			NativeSymbol:       settings.NativeSymbol,
			Endpoints:          endpoints,
			StablecoinAddress:  settings.StablecoinAddress,
			RouterAddress:      settings.RouterAddress,
			BondingCurveRouter: settings.BondingCurveRouter,
			ConfirmationDepth:  settings.ConfirmationDepth,
		})
	}
	return chainconfig.NewRegistry(chains)
}
