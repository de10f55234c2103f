package rpc

import (
	"encoding/json"
	"strings"

	"github.com/NethermindEth/starknet-devnet-go/core"
	"github.com/NethermindEth/starknet-devnet-go/core/block"
	"github.com/NethermindEth/starknet-devnet-go/core/dumplog"
	"github.com/NethermindEth/starknet-devnet-go/core/felt"
	"github.com/NethermindEth/starknet-devnet-go/core/vm"
	"github.com/NethermindEth/starknet-devnet-go/jsonrpc"
	"github.com/NethermindEth/starknet-devnet-go/subscription"
)

// MintParams is devnet_mint's request shape.
// Amount accepts either a JSON number or a decimal/hex string.
type MintParams struct {
	Address string      `json:"address"`
	Amount  json.Number `json:"amount"`
	Unit    string      `json:"unit"`
}

// Mint implements devnet_mint: credits address on the configured fee token
// and appends a synthetic INVOKE transaction (a transfer from the token's
// mint authority) to the pending block, so minted funds show up both as a
// balance and as an ordinary transaction a block explorer can resolve.
func (d *Devnet) Mint(p MintParams) (map[string]any, *jsonrpc.Error) {
	ok, finish := d.guard("devnet_mint")
	if !ok {
		return nil, errMethodForbidden()
	}
	addr, err := felt.FromHex(p.Address)
	if err != nil {
		finish(true)
		return nil, errWith(CodeContractNotFound, "invalid address", err.Error())
	}
	amount, err := amountFelt(p.Amount)
	if err != nil {
		finish(true)
		return nil, errUnexpected(err.Error())
	}
	token := d.feeTokenForUnit(p.Unit)
	blockNumber := d.cfg.Producer.PendingNumber()
	newBalance, err := d.cfg.Engine.Interp.Credit(token, addr, amount, blockNumber)
	if err != nil {
		finish(true)
		return nil, errUnexpected(err.Error())
	}
	txHash := core.ComputeMintHash(addr, amount, blockNumber)

	inv := &core.InvokeTransaction{
		Version:         1,
		SenderAddress:   token,
		CallData:        []*felt.Felt{token, vm.SelectorHash("transfer"), addr, amount},
		Nonce:           &felt.Zero,
		MaxFee:          &felt.Zero,
		TransactionHash: txHash,
	}
	receipt := &core.Receipt{
		TransactionHash: txHash,
		ActualFee:       &felt.Zero,
		ExecutionStatus: core.ExecutionSucceeded,
		Events: []core.Event{{
			From: token,
			Keys: []*felt.Felt{vm.SelectorHash("Transfer")},
			Data: []*felt.Felt{addr, amount},
		}},
	}
	if rerr := d.appendAndNotify(&core.Transaction{Invoke: inv}, receipt, "devnet_mint", p); rerr != nil {
		finish(true)
		return nil, rerr
	}
	finish(false)
	return map[string]any{
		"tx_hash":     txHash.Text(felt.Base16),
		"unit":        unitOrDefault(p.Unit),
		"new_balance": newBalance.Text(felt.Base10),
	}, nil
}

// amountFelt parses a mint amount given as a JSON number, a decimal
// string, or a 0x-prefixed hex string.
func amountFelt(n json.Number) (*felt.Felt, error) {
	s := n.String()
	if s == "" {
		return &felt.Zero, nil
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return felt.FromHex(s)
	}
	return felt.FromDecimal(s)
}

func unitOrDefault(unit string) string {
	if unit == "" {
		return "WEI"
	}
	return unit
}

func (d *Devnet) feeTokenForUnit(unit string) *felt.Felt {
	if unit == "FRI" {
		return d.cfg.FeeTokens[1].Address
	}
	return d.cfg.FeeTokens[0].Address
}

// AccountBalanceParams is devnet_getAccountBalance's request shape.
type AccountBalanceParams struct {
	Address string `json:"address"`
	Unit    string `json:"unit"`
}

func (d *Devnet) GetAccountBalance(p AccountBalanceParams) (map[string]any, *jsonrpc.Error) {
	ok, finish := d.guard("devnet_getAccountBalance")
	if !ok {
		return nil, errMethodForbidden()
	}
	addr, err := felt.FromHex(p.Address)
	if err != nil {
		finish(true)
		return nil, errWith(CodeContractNotFound, "invalid address", err.Error())
	}
	token := d.feeTokenForUnit(p.Unit)
	balance, err := d.cfg.Engine.Interp.BalanceOf(token, addr)
	if err != nil {
		finish(true)
		return nil, errUnexpected(err.Error())
	}
	finish(false)
	return map[string]any{
		"amount": balance.Text(felt.Base10),
		"unit":   unitOrDefault(p.Unit),
	}, nil
}

// SetTimeParams is devnet_setTime's request shape.
type SetTimeParams struct {
	Time          uint64 `json:"time"`
	GenerateBlock bool   `json:"generate_block"`
}

func (d *Devnet) SetTime(p SetTimeParams) (map[string]any, *jsonrpc.Error) {
	ok, finish := d.guard("devnet_setTime")
	if !ok {
		return nil, errMethodForbidden()
	}
	blk, err := d.cfg.Producer.SetTime(d.cfg.Store, p.Time, p.GenerateBlock)
	if err != nil {
		finish(true)
		return nil, errUnexpected(err.Error())
	}
	d.afterSeal(blk)
	d.recordMutatingCall("devnet_setTime", p)
	finish(false)
	return map[string]any{"block_timestamp": p.Time}, nil
}

// IncreaseTimeParams is devnet_increaseTime's request shape.
type IncreaseTimeParams struct {
	Amount int64 `json:"time"`
}

func (d *Devnet) IncreaseTime(p IncreaseTimeParams) (map[string]any, *jsonrpc.Error) {
	ok, finish := d.guard("devnet_increaseTime")
	if !ok {
		return nil, errMethodForbidden()
	}
	d.cfg.Producer.IncreaseTime(p.Amount)
	d.recordMutatingCall("devnet_increaseTime", p)
	finish(false)
	return map[string]any{"timestamp_increased_by": p.Amount}, nil
}

// CreateBlock implements devnet_createBlock.
func (d *Devnet) CreateBlock() (map[string]any, *jsonrpc.Error) {
	ok, finish := d.guard("devnet_createBlock")
	if !ok {
		return nil, errMethodForbidden()
	}
	blk, err := d.cfg.Producer.CreateBlock(d.cfg.Store)
	if err != nil {
		finish(true)
		return nil, errUnexpected(err.Error())
	}
	d.afterSeal(blk)
	d.recordMutatingCall("devnet_createBlock", nil)
	finish(false)
	if blk == nil {
		return map[string]any{}, nil
	}
	return map[string]any{"block_hash": blk.Hash.Text(felt.Base16)}, nil
}

// AbortBlocksParams is devnet_abortBlocks's request shape.
type AbortBlocksParams struct {
	StartingBlockHash   string  `json:"starting_block_hash"`
	StartingBlockNumber *uint64 `json:"starting_block_number"`
}

func (d *Devnet) AbortBlocks(p AbortBlocksParams) (map[string]any, *jsonrpc.Error) {
	ok, finish := d.guard("devnet_abortBlocks")
	if !ok {
		return nil, errMethodForbidden()
	}
	number, rerr := d.resolveAbortStart(p)
	if rerr != nil {
		finish(true)
		return nil, rerr
	}
	result, err := d.cfg.Producer.Abort(d.cfg.Store, number)
	if err != nil {
		finish(true)
		return nil, errUnexpected(err.Error())
	}
	if d.cfg.Bus != nil {
		d.cfg.Bus.PublishReorg(subscription.ReorgEvent{AbortedBlockHashes: result.AbortedBlockHashes})
	}
	d.recordMutatingCall("devnet_abortBlocks", p)
	finish(false)
	hashes := make([]string, len(result.AbortedBlockHashes))
	for i, h := range result.AbortedBlockHashes {
		hashes[i] = h.Text(felt.Base16)
	}
	return map[string]any{"aborted": hashes}, nil
}

func (d *Devnet) resolveAbortStart(p AbortBlocksParams) (uint64, *jsonrpc.Error) {
	if p.StartingBlockNumber != nil {
		return *p.StartingBlockNumber, nil
	}
	if p.StartingBlockHash != "" {
		b, rerr := d.resolveBlock(BlockID{HasHash: true, Hash: p.StartingBlockHash})
		if rerr != nil {
			return 0, rerr
		}
		return b.Number, nil
	}
	return 0, errUnexpected("starting_block_hash or starting_block_number is required")
}

// DumpParams is devnet_dump's request shape; an empty Path returns the
// event array inline instead of writing to disk.
type DumpParams struct {
	Path string `json:"path"`
}

func (d *Devnet) Dump(p DumpParams) (any, *jsonrpc.Error) {
	ok, finish := d.guard("devnet_dump")
	if !ok {
		return nil, errMethodForbidden()
	}
	if d.cfg.DumpLog == nil {
		finish(true)
		return nil, errUnexpected("dump log not configured")
	}
	if p.Path == "" {
		finish(false)
		return d.cfg.DumpLog.Events(), nil
	}
	if err := d.cfg.DumpLog.Flush(p.Path); err != nil {
		finish(true)
		return nil, errUnexpected(err.Error())
	}
	finish(false)
	return map[string]any{"path": p.Path}, nil
}

// LoadParams is devnet_load's request shape.
type LoadParams struct {
	Path string `json:"path"`
}

// Load implements devnet_load: restarts state to genesis, then replays
// every recorded event through the ordinary method table so a replayed
// call goes through the exact same validation a live call would.
func (d *Devnet) Load(p LoadParams) (map[string]any, *jsonrpc.Error) {
	ok, finish := d.guard("devnet_load")
	if !ok {
		return nil, errMethodForbidden()
	}
	events, err := dumplog.LoadFile(p.Path)
	if err != nil {
		finish(true)
		return nil, errUnexpected(err.Error())
	}
	if _, rerr := d.restart(); rerr != nil {
		finish(true)
		return nil, rerr
	}
	for _, ev := range events {
		if rerr := d.replay(ev); rerr != nil {
			finish(true)
			return nil, rerr
		}
	}
	if deleteAfterLoad(d.cfg.DumpLog) {
		_ = dumplog.DeleteAfterLoad(p.Path)
	}
	finish(false)
	return map[string]any{"events_replayed": len(events)}, nil
}

func deleteAfterLoad(log *dumplog.Log) bool {
	return log != nil && log.When() == dumplog.OnBlock
}

// Restart implements devnet_restart: wipes world state and block/tx
// history back to an empty genesis and re-seeds the predeployed assets.
func (d *Devnet) Restart() (map[string]any, *jsonrpc.Error) {
	ok, finish := d.guard("devnet_restart")
	if !ok {
		return nil, errMethodForbidden()
	}
	if _, rerr := d.restart(); rerr != nil {
		finish(true)
		return nil, rerr
	}
	finish(false)
	return map[string]any{"restarted": true}, nil
}

// restart is the shared implementation behind devnet_restart and the first
// step of devnet_load.
func (d *Devnet) restart() (*block.Block, *jsonrpc.Error) {
	if err := d.cfg.Store.Reset(); err != nil {
		return nil, errUnexpected(err.Error())
	}
	genesis, err := d.cfg.Producer.Reset(d.cfg.Store)
	if err != nil {
		return nil, errUnexpected(err.Error())
	}
	if err := d.cfg.Predeployed.Seed(d.cfg.Store, 0); err != nil {
		return nil, errUnexpected(err.Error())
	}
	d.cfg.Engine.Cheats.Reset()
	if d.cfg.Broker != nil {
		d.cfg.Broker.Reset()
	}
	if d.cfg.DumpLog != nil {
		d.cfg.DumpLog.Reset()
	}
	return genesis, nil
}

// replay re-submits one dump event through the method table by name,
// exactly as a live RPC call would be dispatched, so replayed transactions
// are validated, hashed and charged identically to their original submission.
func (d *Devnet) replay(ev dumplog.Event) *jsonrpc.Error {
	switch ev.Method {
	case "devnet_mint":
		var p MintParams
		if err := unmarshalEvent(ev, &p); err != nil {
			return err
		}
		_, rerr := d.Mint(p)
		return rerr
	case "starknet_addInvokeTransaction":
		var p InvokeParams
		if err := unmarshalEvent(ev, &p); err != nil {
			return err
		}
		_, rerr := d.AddInvokeTransaction(p)
		return rerr
	case "starknet_addDeclareTransaction":
		var p DeclareParams
		if err := unmarshalEvent(ev, &p); err != nil {
			return err
		}
		_, rerr := d.AddDeclareTransaction(p)
		return rerr
	case "starknet_addDeployAccountTransaction":
		var p DeployAccountParams
		if err := unmarshalEvent(ev, &p); err != nil {
			return err
		}
		_, rerr := d.AddDeployAccountTransaction(p)
		return rerr
	case "devnet_setTime":
		var p SetTimeParams
		if err := unmarshalEvent(ev, &p); err != nil {
			return err
		}
		_, rerr := d.SetTime(p)
		return rerr
	case "devnet_increaseTime":
		var p IncreaseTimeParams
		if err := unmarshalEvent(ev, &p); err != nil {
			return err
		}
		_, rerr := d.IncreaseTime(p)
		return rerr
	case "devnet_createBlock":
		_, rerr := d.CreateBlock()
		return rerr
	case "devnet_abortBlocks":
		var p AbortBlocksParams
		if err := unmarshalEvent(ev, &p); err != nil {
			return err
		}
		_, rerr := d.AbortBlocks(p)
		return rerr
	case "devnet_setGasPrice":
		var p SetGasPriceParams
		if err := unmarshalEvent(ev, &p); err != nil {
			return err
		}
		_, rerr := d.SetGasPrice(p)
		return rerr
	default:
		return nil // unknown/read-only method: nothing to replay
	}
}

// GetConfig implements devnet_getConfig, a snapshot of the running
// devnet's effective configuration.
func (d *Devnet) GetConfig() (map[string]any, *jsonrpc.Error) {
	ok, finish := d.guard("devnet_getConfig")
	if !ok {
		return nil, errMethodForbidden()
	}
	gas := d.cfg.Producer.GasPrice()
	finish(false)
	return map[string]any{
		"chain_id":          d.cfg.ChainID.Felt().Text(felt.Base16),
		"accounts":          len(d.cfg.Predeployed.Accounts),
		"blocks_on_demand":  d.cfg.Producer.Mode() == block.ModeOnDemand,
		"restrictive_mode":  d.cfg.Restrictive.Enabled,
		"l1_gas_price":      gas.L1Gas.Text(felt.Base16),
		"l1_data_gas_price": gas.L1DataGas.Text(felt.Base16),
		"l2_gas_price":      gas.L2Gas.Text(felt.Base16),
	}, nil
}

// GetPredeployedAccounts implements devnet_getPredeployedAccounts.
func (d *Devnet) GetPredeployedAccounts() ([]map[string]any, *jsonrpc.Error) {
	ok, finish := d.guard("devnet_getPredeployedAccounts")
	if !ok {
		return nil, errMethodForbidden()
	}
	out := make([]map[string]any, len(d.cfg.Predeployed.Accounts))
	for i, acc := range d.cfg.Predeployed.Accounts {
		out[i] = map[string]any{
			"address":     acc.Address.Text(felt.Base16),
			"public_key":  acc.PublicKey.Text(felt.Base16),
			"private_key": acc.PrivateKey.Text(felt.Base16),
		}
	}
	finish(false)
	return out, nil
}

// ImpersonateParams names an account for devnet_impersonateAccount /
// devnet_stopImpersonating.
type ImpersonateParams struct {
	AccountAddress string `json:"account_address"`
}

func (d *Devnet) ImpersonateAccount(p ImpersonateParams) (map[string]any, *jsonrpc.Error) {
	ok, finish := d.guard("devnet_impersonateAccount")
	if !ok {
		return nil, errMethodForbidden()
	}
	addr, err := felt.FromHex(p.AccountAddress)
	if err != nil {
		finish(true)
		return nil, errWith(CodeContractNotFound, "invalid account_address", err.Error())
	}
	d.cfg.Engine.Cheats.ImpersonateAccount(addr)
	finish(false)
	return map[string]any{}, nil
}

func (d *Devnet) StopImpersonating(p ImpersonateParams) (map[string]any, *jsonrpc.Error) {
	ok, finish := d.guard("devnet_stopImpersonating")
	if !ok {
		return nil, errMethodForbidden()
	}
	addr, err := felt.FromHex(p.AccountAddress)
	if err != nil {
		finish(true)
		return nil, errWith(CodeContractNotFound, "invalid account_address", err.Error())
	}
	d.cfg.Engine.Cheats.StopImpersonatingAccount(addr)
	finish(false)
	return map[string]any{}, nil
}

// SetGasPriceParams is devnet_setGasPrice's request shape.
type SetGasPriceParams struct {
	GasPriceWEI     string `json:"gas_price_wei"`
	GasPriceFRI     string `json:"gas_price_fri"`
	DataGasPriceWEI string `json:"data_gas_price_wei"`
	DataGasPriceFRI string `json:"data_gas_price_fri"`
	GenerateBlock   bool   `json:"generate_block"`
}

func (d *Devnet) SetGasPrice(p SetGasPriceParams) (map[string]any, *jsonrpc.Error) {
	ok, finish := d.guard("devnet_setGasPrice")
	if !ok {
		return nil, errMethodForbidden()
	}
	upd := block.GasPriceUpdate{GenerateBlock: p.GenerateBlock}
	var rerr *jsonrpc.Error
	upd.L1Gas, rerr = optionalFelt(p.GasPriceWEI)
	if rerr != nil {
		finish(true)
		return nil, rerr
	}
	upd.L2Gas, rerr = optionalFelt(p.GasPriceFRI)
	if rerr != nil {
		finish(true)
		return nil, rerr
	}
	upd.L1DataGas, rerr = optionalFelt(p.DataGasPriceWEI)
	if rerr != nil {
		finish(true)
		return nil, rerr
	}
	blk, err := d.cfg.Producer.SetGasPrice(d.cfg.Store, upd)
	if err != nil {
		finish(true)
		return nil, errUnexpected(err.Error())
	}
	d.afterSeal(blk)
	d.recordMutatingCall("devnet_setGasPrice", p)
	finish(false)
	gas := d.cfg.Producer.GasPrice()
	return map[string]any{
		"gas_price_wei":      gas.L1Gas.Text(felt.Base16),
		"gas_price_fri":      gas.L2Gas.Text(felt.Base16),
		"data_gas_price_wei": gas.L1DataGas.Text(felt.Base16),
	}, nil
}

func optionalFelt(s string) (*felt.Felt, *jsonrpc.Error) {
	if s == "" {
		return nil, nil
	}
	f, err := felt.FromHex(s)
	if err != nil {
		return nil, errUnexpected(err.Error())
	}
	return f, nil
}

// afterSeal publishes a NewHeads notification when a devnet_* extension
// method caused an immediate seal (set_time/create_block/set_gas_price with
// generate_block=true), mirroring submit()'s tail end for tx-triggered
// seals.
func (d *Devnet) afterSeal(blk *block.Block) {
	if blk == nil || d.cfg.Bus == nil {
		return
	}
	d.cfg.Bus.PublishNewHead(blk)
}

func (d *Devnet) recordMutatingCall(method string, params any) {
	if d.cfg.DumpLog == nil {
		return
	}
	_ = d.cfg.DumpLog.Record(eventFor(method, params))
}

func unmarshalEvent(ev dumplog.Event, v any) *jsonrpc.Error {
	if len(ev.Params) == 0 {
		return nil
	}
	if err := jsonUnmarshal(ev.Params, v); err != nil {
		return errUnexpected(err.Error())
	}
	return nil
}
