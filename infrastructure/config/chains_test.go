package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeChainsFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "chains.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadChainsConfig(t *testing.T) {
	path := writeChainsFile(t, `
chains:
  - chainId: 143
    name: monad
    nativeSymbol: MON
    rpcEndpoints:
      - https://rpc-1.example
      - https://rpc-2.example
    stablecoinAddress: "0x754700000000000000000000000000000000aa03"
    routerAddress: "0x1111111111111111111111111111111111111111"
    bondingCurveRouter: "0x2222222222222222222222222222222222222222"
    confirmationDepth: 2
  - chainId: 8453
    name: base
    nativeSymbol: ETH
    rpcEndpoints:
      - https://base.example
    stablecoinAddress: "0x3333333333333333333333333333333333333333"
`)

	cfg, err := LoadChainsConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Chains, 2)

	reg := cfg.ToRegistry()
	monad := reg.Get(143)
	require.NotNil(t, monad)
	assert.Equal(t, "monad", monad.Name)
	assert.Len(t, monad.Endpoints, 2)
	assert.Equal(t, 0, monad.Endpoints[0].Priority)
	assert.Equal(t, 2, monad.ConfirmationDepthOrDefault())

	base := reg.Get(8453)
	require.NotNil(t, base)
	// No explicit depth falls back to the per-chain default.
	assert.Equal(t, 5, base.ConfirmationDepthOrDefault())

	assert.Nil(t, reg.Get(1))
}

func TestLoadChainsConfigValidation(t *testing.T) {
	cases := map[string]string{
		"missing chainId": `
chains:
  - rpcEndpoints: ["https://rpc.example"]
    stablecoinAddress: "0x01"
`,
		"missing endpoints": `
chains:
  - chainId: 143
    stablecoinAddress: "0x01"
`,
		"missing stablecoin": `
chains:
  - chainId: 143
    rpcEndpoints: ["https://rpc.example"]
`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadChainsConfig(writeChainsFile(t, content))
			assert.Error(t, err)
		})
	}
}
