package rpc

import (
	"encoding/json"
	"math"

	"github.com/NethermindEth/starknet-devnet-go/core"
	"github.com/NethermindEth/starknet-devnet-go/core/engine"
	"github.com/NethermindEth/starknet-devnet-go/core/felt"
	"github.com/NethermindEth/starknet-devnet-go/core/vm"
	"github.com/NethermindEth/starknet-devnet-go/jsonrpc"
	"github.com/NethermindEth/starknet-devnet-go/utils"
)

// scratchBlock tags state writes made by starknet_call / estimateFee /
// simulateTransactions so they can be reverted wholesale without ever
// touching a real block's history: simulation applies the txs, reads
// results, and discards the effects without commit.
const scratchBlock = math.MaxUint64

// CallRequest is the function-call body of starknet_call.
type CallRequest struct {
	ContractAddress    string   `json:"contract_address"`
	EntryPointSelector string   `json:"entry_point_selector"`
	Calldata           []string `json:"calldata"`
}

// Call executes a read-only function call against the state at block_id.
// The interpreter has no read-only mode, so any writes a call makes are
// tagged with the scratch block and reverted before returning.
func (d *Devnet) Call(req CallRequest, id BlockID) ([]string, *jsonrpc.Error) {
	ok, finish := d.guard("starknet_call")
	if !ok {
		return nil, errMethodForbidden()
	}
	if _, rerr := d.resolveBlock(id); rerr != nil {
		finish(true)
		return nil, rerr
	}
	addr, err := felt.FromHex(req.ContractAddress)
	if err != nil {
		finish(true)
		return nil, errContractNotFound()
	}
	selector, err := felt.FromHex(req.EntryPointSelector)
	if err != nil {
		finish(true)
		return nil, errUnexpected(err.Error())
	}
	calldata, err := parseFelts(req.Calldata)
	if err != nil {
		finish(true)
		return nil, errUnexpected(err.Error())
	}

	if _, err := d.cfg.Store.GetClassHashAt(addr); err != nil {
		finish(true)
		return nil, errContractNotFound()
	}

	result, err := d.cfg.Engine.Interp.Execute(vm.Call{
		ContractAddress: addr,
		Selector:        selector,
		Calldata:        calldata,
		BlockNumber:     scratchBlock,
	})
	if rerr := d.revertScratch(); rerr != nil {
		finish(true)
		return nil, rerr
	}
	if err != nil {
		finish(true)
		return nil, errWith(CodeContractError, "Contract error", map[string]any{"revert_error": err.Error()})
	}
	finish(false)
	return utils.Map(result.RetData, func(f *felt.Felt) string { return f.Text(felt.Base16) }), nil
}

func (d *Devnet) revertScratch() *jsonrpc.Error {
	if err := d.cfg.Store.Revert(scratchBlock); err != nil {
		return errUnexpected(err.Error())
	}
	return nil
}

// broadcastTx is the type-tagged broadcast transaction shape estimateFee
// and simulateTransactions both accept.
type broadcastTx struct {
	Type string `json:"type"`

	InvokeParams
	ClassHash           string   `json:"class_hash"`
	ContractAddressSalt string   `json:"contract_address_salt"`
	ConstructorCalldata []string `json:"constructor_calldata"`
}

func (d *Devnet) buildBroadcast(raw json.RawMessage) (*core.Transaction, *jsonrpc.Error) {
	var bt broadcastTx
	if err := json.Unmarshal(raw, &bt); err != nil {
		return nil, errUnexpected(err.Error())
	}
	switch bt.Type {
	case "INVOKE":
		inv, rerr := d.buildInvoke(bt.InvokeParams)
		if rerr != nil {
			return nil, rerr
		}
		tx := &core.Transaction{Invoke: inv}
		hash, err := core.ComputeHash(tx, d.cfg.ChainID.Felt())
		if err != nil {
			return nil, errUnexpected(err.Error())
		}
		inv.TransactionHash = hash
		return tx, nil
	case "DEPLOY_ACCOUNT":
		classHash, err := felt.FromHex(bt.ClassHash)
		if err != nil {
			return nil, errClassHashNotFound()
		}
		salt, err := feltOrZeroHex(bt.ContractAddressSalt)
		if err != nil {
			return nil, errUnexpected(err.Error())
		}
		calldata, err := parseFelts(bt.ConstructorCalldata)
		if err != nil {
			return nil, errUnexpected(err.Error())
		}
		nonce, err := feltOrZeroHex(bt.Nonce)
		if err != nil {
			return nil, errUnexpected(err.Error())
		}
		versionFelt, err := feltOrZeroHex(bt.Version)
		if err != nil {
			return nil, errWith(CodeUnsupportedTxVersion, "invalid version", err.Error())
		}
		maxFee, err := feltOrZeroHex(bt.MaxFee)
		if err != nil {
			return nil, errUnexpected(err.Error())
		}
		da := &core.DeployAccountTransaction{
			Version:             versionFelt.BigInt().Uint64(),
			ContractAddress:     core.ContractAddress(classHash, salt, calldata),
			ContractAddressSalt: salt,
			ClassHash:           classHash,
			ConstructorCallData: calldata,
			Nonce:               nonce,
			MaxFee:              maxFee,
		}
		if da.Version == 3 {
			rb, rerr := bt.ResourceBounds.toCore()
			if rerr != nil {
				return nil, errUnexpected(rerr.Error())
			}
			da.ResourceBounds = rb
		}
		tx := &core.Transaction{DeployAccount: da}
		hash, err := core.ComputeHash(tx, d.cfg.ChainID.Felt())
		if err != nil {
			return nil, errUnexpected(err.Error())
		}
		da.TransactionHash = hash
		return tx, nil
	default:
		return nil, errWith(CodeUnsupportedTxVersion, "unsupported transaction type for simulation", bt.Type)
	}
}

// feeEstimate prices a transaction against the current gas-price vector.
// Real fee-market economics are a non-goal; consumption is a stable,
// documented function of calldata size so estimates are deterministic and
// monotone in transaction weight.
func (d *Devnet) feeEstimate(tx *core.Transaction) map[string]any {
	gas := d.cfg.Producer.GasPrice()
	var calldataLen int
	unit := "WEI"
	switch {
	case tx.Invoke != nil:
		calldataLen = len(tx.Invoke.CallData)
		if tx.Invoke.Version == 3 {
			unit = "FRI"
		}
	case tx.DeployAccount != nil:
		calldataLen = len(tx.DeployAccount.ConstructorCallData)
		if tx.DeployAccount.Version == 3 {
			unit = "FRI"
		}
	case tx.Declare != nil:
		calldataLen = 1
		if tx.Declare.Version == 3 {
			unit = "FRI"
		}
	}
	gasConsumed := new(felt.Felt).SetUint64(uint64(1000 + 100*calldataLen))
	price := gas.L1Gas
	if unit == "FRI" {
		price = gas.L2Gas
	}
	overall := new(felt.Felt).Mul(gasConsumed, price)
	return map[string]any{
		"gas_consumed":      gasConsumed.Text(felt.Base16),
		"gas_price":         price.Text(felt.Base16),
		"data_gas_consumed": felt.Zero.Text(felt.Base16),
		"data_gas_price":    gas.L1DataGas.Text(felt.Base16),
		"overall_fee":       overall.Text(felt.Base16),
		"unit":              unit,
	}
}

func parseSimulationFlags(flags []string) engine.SimulationFlags {
	var out engine.SimulationFlags
	for _, f := range flags {
		switch f {
		case "SKIP_VALIDATE":
			out.SkipValidate = true
		case "SKIP_FEE_CHARGE":
			out.SkipFeeCharge = true
		case "SKIP_EXECUTE":
			out.SkipExecute = true
		}
	}
	return out
}

// EstimateFee runs each request transaction through the engine with fee
// charging disabled, discards the state effects, and prices the result.
func (d *Devnet) EstimateFee(request []json.RawMessage, simulationFlags []string, id BlockID) ([]map[string]any, *jsonrpc.Error) {
	ok, finish := d.guard("starknet_estimateFee")
	if !ok {
		return nil, errMethodForbidden()
	}
	if _, rerr := d.resolveBlock(id); rerr != nil {
		finish(true)
		return nil, rerr
	}
	flags := parseSimulationFlags(simulationFlags)
	flags.SkipFeeCharge = true

	out := make([]map[string]any, 0, len(request))
	for _, raw := range request {
		tx, rerr := d.buildBroadcast(raw)
		if rerr != nil {
			d.revertScratch()
			finish(true)
			return nil, rerr
		}
		if _, err := d.cfg.Engine.AddTransaction(tx, scratchBlock, flags); err != nil {
			d.revertScratch()
			finish(true)
			return nil, errValidationFailure(err.Error())
		}
		out = append(out, d.feeEstimate(tx))
	}
	if rerr := d.revertScratch(); rerr != nil {
		finish(true)
		return nil, rerr
	}
	finish(false)
	return out, nil
}

// SimulateTransactions applies the given transactions against a scratch
// view of the current state, honoring the standard simulation flags, and
// reports a trace plus fee estimation for each without committing.
func (d *Devnet) SimulateTransactions(id BlockID, transactions []json.RawMessage, simulationFlags []string) ([]map[string]any, *jsonrpc.Error) {
	ok, finish := d.guard("starknet_simulateTransactions")
	if !ok {
		return nil, errMethodForbidden()
	}
	if _, rerr := d.resolveBlock(id); rerr != nil {
		finish(true)
		return nil, rerr
	}
	flags := parseSimulationFlags(simulationFlags)

	out := make([]map[string]any, 0, len(transactions))
	for _, raw := range transactions {
		tx, rerr := d.buildBroadcast(raw)
		if rerr != nil {
			d.revertScratch()
			finish(true)
			return nil, rerr
		}
		result, err := d.cfg.Engine.AddTransaction(tx, scratchBlock, flags)
		if err != nil {
			d.revertScratch()
			finish(true)
			return nil, errValidationFailure(err.Error())
		}
		trace := map[string]any{
			"type":             tx.Kind(),
			"execution_status": result.Receipt.ExecutionStatus.String(),
		}
		if result.Receipt.RevertReason != "" {
			trace["revert_reason"] = result.Receipt.RevertReason
		}
		out = append(out, map[string]any{
			"transaction_trace": trace,
			"fee_estimation":    d.feeEstimate(tx),
		})
	}
	if rerr := d.revertScratch(); rerr != nil {
		finish(true)
		return nil, rerr
	}
	finish(false)
	return out, nil
}
