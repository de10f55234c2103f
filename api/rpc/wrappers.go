package rpc

import (
	"encoding/json"

	"github.com/NethermindEth/starknet-devnet-go/jsonrpc"
)

// The jsonrpc server binds each named parameter to one handler argument,
// so the devnet_* methods whose bodies are flat objects get thin
// positional adapters here; the struct-taking methods they delegate to
// remain the single implementation (and the dump-replay entry point).

func (d *Devnet) MintPositional(address string, amount json.Number, unit string) (map[string]any, *jsonrpc.Error) {
	return d.Mint(MintParams{Address: address, Amount: amount, Unit: unit})
}

func (d *Devnet) GetAccountBalancePositional(address, unit string) (map[string]any, *jsonrpc.Error) {
	return d.GetAccountBalance(AccountBalanceParams{Address: address, Unit: unit})
}

func (d *Devnet) SetTimePositional(t uint64, generateBlock bool) (map[string]any, *jsonrpc.Error) {
	return d.SetTime(SetTimeParams{Time: t, GenerateBlock: generateBlock})
}

func (d *Devnet) IncreaseTimePositional(dt int64) (map[string]any, *jsonrpc.Error) {
	return d.IncreaseTime(IncreaseTimeParams{Amount: dt})
}

func (d *Devnet) AbortBlocksPositional(startingBlockHash string, startingBlockNumber *uint64) (map[string]any, *jsonrpc.Error) {
	return d.AbortBlocks(AbortBlocksParams{StartingBlockHash: startingBlockHash, StartingBlockNumber: startingBlockNumber})
}

func (d *Devnet) DumpPositional(path string) (any, *jsonrpc.Error) {
	return d.Dump(DumpParams{Path: path})
}

func (d *Devnet) LoadPositional(path string) (map[string]any, *jsonrpc.Error) {
	return d.Load(LoadParams{Path: path})
}

func (d *Devnet) ImpersonateAccountPositional(accountAddress string) (map[string]any, *jsonrpc.Error) {
	return d.ImpersonateAccount(ImpersonateParams{AccountAddress: accountAddress})
}

func (d *Devnet) StopImpersonatingPositional(accountAddress string) (map[string]any, *jsonrpc.Error) {
	return d.StopImpersonating(ImpersonateParams{AccountAddress: accountAddress})
}

func (d *Devnet) SetGasPricePositional(gasPriceWEI, gasPriceFRI, dataGasPriceWEI, dataGasPriceFRI string, generateBlock bool) (map[string]any, *jsonrpc.Error) {
	return d.SetGasPrice(SetGasPriceParams{
		GasPriceWEI:     gasPriceWEI,
		GasPriceFRI:     gasPriceFRI,
		DataGasPriceWEI: dataGasPriceWEI,
		DataGasPriceFRI: dataGasPriceFRI,
		GenerateBlock:   generateBlock,
	})
}
