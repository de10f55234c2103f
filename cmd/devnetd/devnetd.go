package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"reflect"
	"syscall"

	"github.com/NethermindEth/starknet-devnet-go/node"
	"github.com/NethermindEth/starknet-devnet-go/utils"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const greeting = `starknet-devnet-go, a local Starknet devnet`

// NewCmd builds the root command. Precedence: flags > config file >
// defaults. run is invoked once config is fully bound, letting tests
// substitute a no-op for the real node start.
func NewCmd(config *node.Config, run func(*cobra.Command, []string) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "devnetd",
		Short:         greeting,
		RunE:          run,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var cfgFile string
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to a YAML config file")

	defaults := node.DefaultConfig()
	flags := cmd.Flags()
	logLevel := defaults.LogLevel
	flags.Var(&logLevel, "log-level", "Log level: debug, info, warn or error")
	flags.String("host", defaults.Host, "Address to bind the listener to")
	flags.Uint16("port", defaults.Port, "Port to listen on")
	flags.Uint64("timeout", defaults.Timeout, "Per-request timeout in seconds")
	flags.Uint32("accounts", defaults.Accounts, "Number of predeployed accounts")
	flags.String("initial-balance", defaults.InitialBalance, "Initial fee-token balance per predeployed account (decimal or 0x hex)")
	flags.Uint32("seed", defaults.Seed, "Seed for the predeployed-account keystream")
	flags.String("account-class", defaults.AccountClass, "Predeployed account class: cairo0 or cairo1")
	flags.String("account-class-custom", "", "Path to a custom account class artifact")
	flags.String("chain-id", defaults.ChainID, "Chain id: MAINNET, TESTNET, or a custom short string")
	flags.Uint64("gas-price", defaults.GasPrice, "L1 gas price in WEI")
	flags.Uint64("data-gas-price", defaults.DataGasPrice, "L1 data gas price in WEI")
	flags.Bool("blocks-on-demand", false, "Accumulate transactions until an explicit create_block instead of sealing per tx")
	flags.String("dump-on", defaults.DumpOn, "When to persist dump events: exit or block")
	flags.String("dump-path", "", "Dump file path")
	flags.String("state-archive-capacity", defaults.StateArchive, "State history retention: none or full")
	flags.String("fork-network", "", "Upstream JSON-RPC URL to fork from")
	flags.Uint64("fork-block", 0, "Block number to pin the fork origin at")
	flags.Bool("restrictive-mode", false, "Forbid the restricted method/path set")
	flags.StringSlice("restricted-methods", nil, "Explicit methods/paths to forbid under restrictive mode")
	flags.String("db-path", "", "World-state directory; empty keeps state in memory")

	cmd.PreRunE = func(cmd *cobra.Command, _ []string) error {
		v := viper.New()
		if cfgFile != "" {
			v.SetConfigType("yaml")
			v.SetConfigFile(cfgFile)
			if err := v.ReadInConfig(); err != nil {
				return err
			}
		} else if dir, err := utils.DefaultDataDir(); err == nil {
			v.SetConfigName("devnetd")
			v.AddConfigPath(dir)
			_ = v.ReadInConfig() // an absent default config file is not an error
		}
		if err := v.BindPFlags(cmd.Flags()); err != nil {
			return err
		}
		return v.Unmarshal(config, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
			hookStringToLogLevel(),
			mapstructure.StringToSliceHookFunc(","),
		)))
	}

	return cmd
}

var logLevelType = reflect.TypeOf(utils.INFO)

// hookStringToLogLevel lets viper decode a "debug"/"info"/... string into
// utils.LogLevel for both config-file and flag sources.
func hookStringToLogLevel() mapstructure.DecodeHookFuncType {
	return func(_, to reflect.Type, data any) (any, error) {
		if to != logLevelType {
			return data, nil
		}
		s, ok := data.(string)
		if !ok {
			return data, nil
		}
		var level utils.LogLevel
		if err := level.Set(s); err != nil {
			return nil, err
		}
		return level, nil
	}
}

func mainRun(_ *cobra.Command, _ []string) error {
	config := boundConfig
	n, err := node.New(config)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return n.Run(ctx)
}

var boundConfig = new(node.Config)

var _ pflag.Value = (*utils.LogLevel)(nil)

func execute() int {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "panic: %v\n", r)
			os.Exit(2)
		}
	}()
	cmd := NewCmd(boundConfig, mainRun)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
