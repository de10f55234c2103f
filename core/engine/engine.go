// Package engine drives the Pending -> Validating -> Executing ->
// Committed/Rejected/Reverted lifecycle a submitted transaction goes
// through, charging fees and bumping nonces against a worldstate.Store and
// dispatching calls through a vm.Interpreter.
package engine

import (
	"errors"
	"fmt"

	"github.com/NethermindEth/starknet-devnet-go/core"
	"github.com/NethermindEth/starknet-devnet-go/core/classregistry"
	"github.com/NethermindEth/starknet-devnet-go/core/felt"
	"github.com/NethermindEth/starknet-devnet-go/core/vm"
	"github.com/NethermindEth/starknet-devnet-go/core/worldstate"
)

// Status is where a submitted transaction currently sits.
type Status int

const (
	StatusPending Status = iota
	StatusValidating
	StatusExecuting
	StatusCommitted
	StatusRejected
	StatusReverted
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusValidating:
		return "VALIDATING"
	case StatusExecuting:
		return "EXECUTING"
	case StatusCommitted:
		return "COMMITTED"
	case StatusRejected:
		return "REJECTED"
	case StatusReverted:
		return "REVERTED"
	default:
		return "UNKNOWN"
	}
}

// ErrRejected wraps any failure that happens before execution begins
// (bad hash, wrong nonce, insufficient balance to even attempt the
// charge); the transaction never enters a block.
type ErrRejected struct {
	Reason string
}

func (e *ErrRejected) Error() string { return e.Reason }

// SimulationFlags lets callers (estimate_fee, simulate_transactions, and
// the trace RPCs) skip individual pipeline stages.
type SimulationFlags struct {
	SkipValidate  bool
	SkipFeeCharge bool
	SkipExecute   bool
}

// Engine is the per-devnet transaction pipeline. It holds no block-level
// state (that is core/block's job); it only knows how to take one
// transaction from Pending to a terminal status against the current
// worldstate view.
type Engine struct {
	Store    *worldstate.Store
	Interp   *vm.Interpreter
	Registry *classregistry.Registry
	ChainID  *felt.Felt
	Cheats   *Cheats
	FeeToken *felt.Felt // address charged for MaxFee / resource-bound fees
}

func New(store *worldstate.Store, interp *vm.Interpreter, registry *classregistry.Registry, chainID *felt.Felt, feeToken *felt.Felt) *Engine {
	return &Engine{
		Store:    store,
		Interp:   interp,
		Registry: registry,
		ChainID:  chainID,
		Cheats:   NewCheats(),
		FeeToken: feeToken,
	}
}

// Outcome is the terminal result of AddTransaction: a receipt plus the
// status it reached.
type Outcome struct {
	Status  Status
	Receipt *core.Receipt
}

// AddTransaction runs tx through validate -> execute -> charge fee -> bump
// nonce against e.Store, at blockNumber (the block currently being built).
// A rejection (bad hash, wrong nonce, unknown class) returns ErrRejected
// and never mutates e.Store; a revert (execution itself failed) returns a
// receipt with ExecutionReverted and still bumps the nonce and charges the
// fee, matching real fee-bearing-but-reverted semantics.
func (e *Engine) AddTransaction(tx *core.Transaction, blockNumber uint64, flags SimulationFlags) (*Outcome, error) {
	if !flags.SkipValidate {
		if err := e.validate(tx); err != nil {
			return nil, &ErrRejected{Reason: err.Error()}
		}
	}

	receipt := &core.Receipt{TransactionHash: tx.Hash(), ActualFee: &felt.Zero}

	if tx.Declare != nil {
		if err := e.declare(tx.Declare, blockNumber); err != nil {
			return nil, &ErrRejected{Reason: err.Error()}
		}
	}

	// The fee balance is checked before execution, so an underfunded sender
	// is rejected before any execution write lands.
	if !flags.SkipFeeCharge {
		fee := actualFee(tx)
		balance, err := e.Interp.BalanceOf(e.FeeToken, tx.Sender())
		if err != nil {
			return nil, &ErrRejected{Reason: err.Error()}
		}
		if balance.Cmp(fee) < 0 {
			return nil, &ErrRejected{Reason: fmt.Sprintf("fee charge failed: insufficient balance: have %s, need %s", balance, fee)}
		}
	}

	var execErr error
	if !flags.SkipExecute {
		execErr = e.execute(tx, blockNumber, receipt)
	}

	if !flags.SkipFeeCharge {
		fee := actualFee(tx)
		if _, err := e.Interp.Debit(e.FeeToken, tx.Sender(), fee, blockNumber); err != nil {
			return nil, &ErrRejected{Reason: fmt.Sprintf("fee charge failed: %v", err)}
		}
		receipt.ActualFee = fee
	}

	if tx.Nonce() != nil {
		next := new(felt.Felt).Add(tx.Nonce(), &felt.One)
		if err := e.Store.BumpNonce(tx.Sender(), next, blockNumber); err != nil {
			return nil, &ErrRejected{Reason: err.Error()}
		}
	}

	if execErr != nil {
		receipt.ExecutionStatus = core.ExecutionReverted
		receipt.RevertReason = execErr.Error()
		return &Outcome{Status: StatusReverted, Receipt: receipt}, nil
	}
	receipt.ExecutionStatus = core.ExecutionSucceeded
	return &Outcome{Status: StatusCommitted, Receipt: receipt}, nil
}

func actualFee(tx *core.Transaction) *felt.Felt {
	switch {
	case tx.Invoke != nil && tx.Invoke.MaxFee != nil:
		return tx.Invoke.MaxFee
	case tx.Declare != nil && tx.Declare.MaxFee != nil:
		return tx.Declare.MaxFee
	case tx.DeployAccount != nil && tx.DeployAccount.MaxFee != nil:
		return tx.DeployAccount.MaxFee
	default:
		// v3 transactions: report a flat fee derived from the L2 gas
		// bound, since there is no real fee market to price against
		// (reported fees, like reported state roots, are not expected to
		// be economically meaningful here).
		return flatV3Fee(tx)
	}
}

func flatV3Fee(tx *core.Transaction) *felt.Felt {
	var bounds core.ResourceBounds
	switch {
	case tx.Invoke != nil:
		bounds = tx.Invoke.ResourceBounds
	case tx.Declare != nil:
		bounds = tx.Declare.ResourceBounds
	case tx.DeployAccount != nil:
		bounds = tx.DeployAccount.ResourceBounds
	}
	amount := new(felt.Felt).SetUint64(bounds.L2Gas.MaxAmount)
	if bounds.L2Gas.MaxPricePerUnit == nil {
		return &felt.Zero
	}
	return new(felt.Felt).Mul(amount, bounds.L2Gas.MaxPricePerUnit)
}

func (e *Engine) validate(tx *core.Transaction) error {
	sender := tx.Sender()
	if sender == nil {
		return errors.New("transaction has no sender")
	}
	impersonated := e.Cheats.IsImpersonated(sender)

	if tx.L1Handler == nil && !impersonated {
		if err := core.VerifyHash(tx, e.ChainID); err != nil {
			return err
		}
	}

	if nonce := tx.Nonce(); nonce != nil && tx.DeployAccount == nil {
		expected, err := e.Store.GetNonceAt(sender)
		if err != nil {
			return err
		}
		if !nonce.Equal(expected) {
			return fmt.Errorf("invalid nonce: expected %s, got %s", expected, nonce)
		}
	}
	return nil
}

func (e *Engine) declare(d *core.DeclareTransaction, blockNumber uint64) error {
	if existing, ok, err := e.Store.CompiledClassHashOf(d.ClassHash); err != nil {
		return err
	} else if ok && d.CompiledClassHash != nil {
		if verr := classregistry.VerifyCompiledClassHash(d.ClassHash, d.CompiledClassHash, existing); verr != nil {
			return verr
		}
	}
	// The class body itself is written by DeclareWithClass, which the RPC
	// layer calls after decoding it from the broadcasted transaction; here
	// we only check a redeclared class's compiled class hash and write
	// nothing.
	return nil
}

// DeclareWithClass writes a class body decoded from a DECLARE payload to
// the store, verifying the claimed hash against the computed one first.
func (e *Engine) DeclareWithClass(classHash *felt.Felt, class core.Class, compiledClassHash *felt.Felt, blockNumber uint64) error {
	computed, err := e.Registry.ClassHash(class)
	if err != nil {
		return err
	}
	if !computed.Equal(classHash) {
		return fmt.Errorf("declared class hash %s does not match computed hash %s", classHash, computed)
	}
	return e.Store.DeclareClass(classHash, class, compiledClassHash, blockNumber)
}

func (e *Engine) execute(tx *core.Transaction, blockNumber uint64, receipt *core.Receipt) error {
	switch {
	case tx.DeployAccount != nil:
		d := tx.DeployAccount
		if err := e.Store.DeployContract(d.ContractAddress, d.ClassHash, blockNumber); err != nil {
			return err
		}
		receipt.ContractAddress = d.ContractAddress
		return nil
	case tx.Invoke != nil:
		return e.executeCall(tx.Invoke.CallData, blockNumber, receipt)
	case tx.L1Handler != nil:
		return e.executeCall(append([]*felt.Felt{tx.L1Handler.ContractAddress, tx.L1Handler.EntryPointSelector}, tx.L1Handler.CallData...), blockNumber, receipt)
	case tx.Deploy != nil:
		return e.Store.DeployContract(tx.Deploy.ContractAddress, tx.Deploy.ClassHash, blockNumber)
	default:
		return nil
	}
}

// executeCall interprets calldata using the devnet's simplified single-call
// convention: [contractAddress, selector, ...args]. A full multicall ABI
// (the real __execute__ calldata layout) is not reconstructed here since
// Cairo/VM execution is an abstract capability this engine delegates, not
// reimplements.
func (e *Engine) executeCall(calldata []*felt.Felt, blockNumber uint64, receipt *core.Receipt) error {
	if len(calldata) < 2 {
		return nil
	}
	result, err := e.Interp.Execute(vm.Call{
		ContractAddress: calldata[0],
		Selector:        calldata[1],
		Calldata:        calldata[2:],
		BlockNumber:     blockNumber,
	})
	if err != nil {
		return err
	}
	receipt.Events = append(receipt.Events, result.Events...)
	return nil
}
