package rpc

import (
	"encoding/json"

	"github.com/NethermindEth/starknet-devnet-go/jsonrpc"
)

func jsonUnmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// methods is the full dispatch table: the starknet_* read/write set plus
// the devnet_* extension set. Parameter names follow the
// Starknet RPC spec so both by-name and by-position calls bind.
func (d *Devnet) methods() []jsonrpc.Method {
	return []jsonrpc.Method{
		// Read API.
		{Name: "starknet_specVersion", Handler: d.SpecVersion},
		{Name: "starknet_chainId", Handler: d.ChainID},
		{Name: "starknet_syncing", Handler: d.Syncing},
		{Name: "starknet_blockNumber", Handler: d.BlockNumber},
		{Name: "starknet_blockHashAndNumber", Handler: d.BlockHashAndNumber},
		{
			Name:    "starknet_getBlockWithTxHashes",
			Params:  []jsonrpc.Parameter{{Name: "block_id"}},
			Handler: d.GetBlockWithTxHashes,
		},
		{
			Name:    "starknet_getBlockWithTxs",
			Params:  []jsonrpc.Parameter{{Name: "block_id"}},
			Handler: d.GetBlockWithTxs,
		},
		{
			Name:    "starknet_getBlockTransactionCount",
			Params:  []jsonrpc.Parameter{{Name: "block_id"}},
			Handler: d.GetBlockTransactionCount,
		},
		{
			Name:    "starknet_getTransactionByHash",
			Params:  []jsonrpc.Parameter{{Name: "transaction_hash"}},
			Handler: d.GetTransactionByHash,
		},
		{
			Name:    "starknet_getTransactionByBlockIdAndIndex",
			Params:  []jsonrpc.Parameter{{Name: "block_id"}, {Name: "index"}},
			Handler: d.GetTransactionByBlockIDAndIndex,
		},
		{
			Name:    "starknet_getTransactionReceipt",
			Params:  []jsonrpc.Parameter{{Name: "transaction_hash"}},
			Handler: d.GetTransactionReceipt,
		},
		{
			Name:    "starknet_getTransactionStatus",
			Params:  []jsonrpc.Parameter{{Name: "transaction_hash"}},
			Handler: d.GetTransactionStatus,
		},
		{
			Name:    "starknet_getNonce",
			Params:  []jsonrpc.Parameter{{Name: "block_id"}, {Name: "contract_address"}},
			Handler: d.GetNonce,
		},
		{
			Name:    "starknet_getStorageAt",
			Params:  []jsonrpc.Parameter{{Name: "contract_address"}, {Name: "key"}, {Name: "block_id"}},
			Handler: d.GetStorageAt,
		},
		{
			Name:    "starknet_getClassHashAt",
			Params:  []jsonrpc.Parameter{{Name: "block_id"}, {Name: "contract_address"}},
			Handler: d.GetClassHashAt,
		},
		{
			Name:    "starknet_getClass",
			Params:  []jsonrpc.Parameter{{Name: "block_id"}, {Name: "class_hash"}},
			Handler: d.GetClass,
		},
		{
			Name:    "starknet_getClassAt",
			Params:  []jsonrpc.Parameter{{Name: "block_id"}, {Name: "contract_address"}},
			Handler: d.GetClassAt,
		},
		{
			Name:    "starknet_getStateUpdate",
			Params:  []jsonrpc.Parameter{{Name: "block_id"}},
			Handler: d.GetStateUpdate,
		},
		{
			Name:    "starknet_getEvents",
			Params:  []jsonrpc.Parameter{{Name: "filter"}},
			Handler: d.GetEvents,
		},
		{
			Name:    "starknet_getStorageProof",
			Params:  []jsonrpc.Parameter{{Name: "block_id"}},
			Handler: d.GetStorageProof,
		},
		{
			Name:    "starknet_call",
			Params:  []jsonrpc.Parameter{{Name: "request"}, {Name: "block_id"}},
			Handler: d.Call,
		},
		{
			Name:    "starknet_estimateFee",
			Params:  []jsonrpc.Parameter{{Name: "request"}, {Name: "simulation_flags"}, {Name: "block_id"}},
			Handler: d.EstimateFee,
		},
		{
			Name:    "starknet_simulateTransactions",
			Params:  []jsonrpc.Parameter{{Name: "block_id"}, {Name: "transactions"}, {Name: "simulation_flags"}},
			Handler: d.SimulateTransactions,
		},

		// Write API.
		{
			Name:    "starknet_addInvokeTransaction",
			Params:  []jsonrpc.Parameter{{Name: "invoke_transaction"}},
			Handler: d.AddInvokeTransaction,
		},
		{
			Name:    "starknet_addDeclareTransaction",
			Params:  []jsonrpc.Parameter{{Name: "declare_transaction"}},
			Handler: d.AddDeclareTransaction,
		},
		{
			Name:    "starknet_addDeployAccountTransaction",
			Params:  []jsonrpc.Parameter{{Name: "deploy_account_transaction"}},
			Handler: d.AddDeployAccountTransaction,
		},

		// Devnet extension API.
		{
			Name:    "devnet_mint",
			Params:  []jsonrpc.Parameter{{Name: "address"}, {Name: "amount"}, {Name: "unit", Optional: true}},
			Handler: d.MintPositional,
		},
		{
			Name:    "devnet_getAccountBalance",
			Params:  []jsonrpc.Parameter{{Name: "address"}, {Name: "unit", Optional: true}},
			Handler: d.GetAccountBalancePositional,
		},
		{
			Name:    "devnet_setTime",
			Params:  []jsonrpc.Parameter{{Name: "time"}, {Name: "generate_block", Optional: true}},
			Handler: d.SetTimePositional,
		},
		{
			Name:    "devnet_increaseTime",
			Params:  []jsonrpc.Parameter{{Name: "time"}},
			Handler: d.IncreaseTimePositional,
		},
		{Name: "devnet_createBlock", Handler: d.CreateBlock},
		{
			Name:    "devnet_abortBlocks",
			Params:  []jsonrpc.Parameter{{Name: "starting_block_hash", Optional: true}, {Name: "starting_block_number", Optional: true}},
			Handler: d.AbortBlocksPositional,
		},
		{
			Name:    "devnet_dump",
			Params:  []jsonrpc.Parameter{{Name: "path", Optional: true}},
			Handler: d.DumpPositional,
		},
		{
			Name:    "devnet_load",
			Params:  []jsonrpc.Parameter{{Name: "path"}},
			Handler: d.LoadPositional,
		},
		{Name: "devnet_restart", Handler: d.Restart},
		{Name: "devnet_getConfig", Handler: d.GetConfig},
		{Name: "devnet_getPredeployedAccounts", Handler: d.GetPredeployedAccounts},
		{
			Name:    "devnet_impersonateAccount",
			Params:  []jsonrpc.Parameter{{Name: "account_address"}},
			Handler: d.ImpersonateAccountPositional,
		},
		{
			Name:    "devnet_stopImpersonating",
			Params:  []jsonrpc.Parameter{{Name: "account_address"}},
			Handler: d.StopImpersonatingPositional,
		},
		{
			Name:    "devnet_setGasPrice",
			Params:  []jsonrpc.Parameter{{Name: "gas_price_wei", Optional: true}, {Name: "gas_price_fri", Optional: true}, {Name: "data_gas_price_wei", Optional: true}, {Name: "data_gas_price_fri", Optional: true}, {Name: "generate_block", Optional: true}},
			Handler: d.SetGasPricePositional,
		},
		{
			Name:    "devnet_postmanLoad",
			Params:  []jsonrpc.Parameter{{Name: "network_url", Optional: true}, {Name: "address"}},
			Handler: d.PostmanLoad,
		},
		{Name: "devnet_postmanFlush", Handler: d.PostmanFlush},
		{
			Name:    "devnet_postmanSendMessageToL2",
			Params:  []jsonrpc.Parameter{{Name: "l2_contract_address"}, {Name: "entry_point_selector"}, {Name: "l1_contract_address"}, {Name: "payload"}, {Name: "paid_fee_on_l1"}, {Name: "nonce", Optional: true}},
			Handler: d.PostmanSendMessageToL2,
		},
		{
			Name:    "devnet_postmanConsumeMessageFromL2",
			Params:  []jsonrpc.Parameter{{Name: "from_address"}, {Name: "to_address"}, {Name: "payload"}},
			Handler: d.PostmanConsumeMessageFromL2,
		},
	}
}
