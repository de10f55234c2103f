package main_test

import (
	"context"
	"os"
	"testing"

	devnetd "github.com/NethermindEth/starknet-devnet-go/cmd/devnetd"
	"github.com/NethermindEth/starknet-devnet-go/node"
	"github.com/NethermindEth/starknet-devnet-go/utils"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigPrecedence(t *testing.T) {
	// The purpose of these tests is to ensure the precedence of our config
	// values is respected. Since viper offers this feature, it would be
	// redundant to enumerate all combinations; only a select few are
	// tested for sanity. Semantic checks on the config belong to the node
	// package.
	defaults := node.DefaultConfig()

	tests := map[string]struct {
		cfgFile         bool
		cfgFileContents string
		expectErr       bool
		inputArgs       []string
		expectedConfig  func(c *node.Config)
	}{
		"default config with no flags": {
			inputArgs:      []string{""},
			expectedConfig: func(*node.Config) {},
		},
		"config file doesn't exist": {
			inputArgs: []string{"--config", "config-file-test.yaml"},
			expectErr: true,
		},
		"config file with all settings but without any other flags": {
			cfgFile: true,
			cfgFileContents: `log-level: debug
port: 4576
accounts: 3
seed: 42
blocks-on-demand: true
chain-id: TESTNET
`,
			expectedConfig: func(c *node.Config) {
				c.LogLevel = utils.DEBUG
				c.Port = 4576
				c.Accounts = 3
				c.Seed = 42
				c.BlocksOnDemand = true
				c.ChainID = "TESTNET"
			},
		},
		"all flags without config file": {
			inputArgs: []string{
				"--log-level", "debug", "--port", "4576", "--accounts", "3",
				"--seed", "42", "--blocks-on-demand", "--state-archive-capacity", "full",
			},
			expectedConfig: func(c *node.Config) {
				c.LogLevel = utils.DEBUG
				c.Port = 4576
				c.Accounts = 3
				c.Seed = 42
				c.BlocksOnDemand = true
				c.StateArchive = "full"
			},
		},
		"setting set in both config file and flags prefers flags": {
			cfgFile: true,
			cfgFileContents: `port: 4576
accounts: 5
`,
			inputArgs: []string{"--port", "4577"},
			expectedConfig: func(c *node.Config) {
				c.Port = 4577
				c.Accounts = 5
			},
		},
		"restrictive mode with explicit methods": {
			inputArgs: []string{"--restrictive-mode", "--restricted-methods", "devnet_mint,devnet_load"},
			expectedConfig: func(c *node.Config) {
				c.RestrictiveMode = true
				c.RestrictedMethods = []string{"devnet_mint", "devnet_load"}
			},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			if tc.cfgFile {
				fileN := tempCfgFile(t, tc.cfgFileContents)
				tc.inputArgs = append(tc.inputArgs, "--config", fileN)
			}

			config := new(node.Config)
			cmd := devnetd.NewCmd(config, func(_ *cobra.Command, _ []string) error { return nil })
			cmd.SetArgs(tc.inputArgs)

			err := cmd.ExecuteContext(context.Background())
			if tc.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			if len(config.RestrictedMethods) == 0 {
				config.RestrictedMethods = nil
			}
			expected := defaults
			tc.expectedConfig(&expected)
			assert.Equal(t, &expected, config)
		})
	}
}

func tempCfgFile(t *testing.T, cfg string) string {
	t.Helper()

	f, err := os.CreateTemp(t.TempDir(), "devnetdCfg.*.yaml")
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, f.Close())
	})

	_, err = f.WriteString(cfg)
	require.NoError(t, err)

	require.NoError(t, f.Sync())

	return f.Name()
}
