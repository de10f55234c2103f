// Package vm is a minimal native interpreter standing in for a real
// Cairo/VM execution engine, which the devnet treats as an abstract,
// external capability rather than something it reimplements. It supports
// exactly the fixed entry-point set the predeployed fee tokens and account
// contracts need: transfer, balanceOf, __validate__, __execute__ and
// deployContract (the UDC's single job).
package vm

import (
	"fmt"

	"github.com/NethermindEth/starknet-devnet-go/core"
	"github.com/NethermindEth/starknet-devnet-go/core/crypto"
	"github.com/NethermindEth/starknet-devnet-go/core/felt"
)

// Selector names the fixed entry points this interpreter recognizes; a call
// with any other selector fails with ErrUnknownSelector, whatever contract
// it targets.
type Selector int

const (
	SelectorTransfer Selector = iota
	SelectorBalanceOf
	SelectorValidate
	SelectorExecute
	SelectorDeployContract
)

var selectorNames = map[Selector]string{
	SelectorTransfer:       "transfer",
	SelectorBalanceOf:      "balanceOf",
	SelectorValidate:       "__validate__",
	SelectorExecute:        "__execute__",
	SelectorDeployContract: "deployContract",
}

var selectorFelts = func() map[felt.Felt]Selector {
	m := map[felt.Felt]Selector{}
	for sel, name := range selectorNames {
		m[*SelectorHash(name)] = sel
	}
	return m
}()

// SelectorHash computes the Pedersen-based entry-point selector for name,
// the same convention the predeployed package's selectorFromName uses.
// Exported so RPC callers and tests can target a built-in
// entry point by name without reaching into this package's internals.
func SelectorHash(name string) *felt.Felt {
	return crypto.PedersenArray(new(felt.Felt).SetBytes([]byte("selector")), new(felt.Felt).SetBytes([]byte(name)))
}

// ErrUnknownSelector is returned when a call's selector is not one this
// interpreter implements.
var ErrUnknownSelector = fmt.Errorf("unknown entry point selector")

// StorageView is the narrow slice of worldstate.Store the interpreter
// needs, kept as an interface so tests can substitute an in-memory fake
// without depending on pebble.
type StorageView interface {
	GetStorageAt(addr, key *felt.Felt) (*felt.Felt, error)
	SetStorage(addr, key, value *felt.Felt, blockNumber uint64) error
	DeployContract(addr, classHash *felt.Felt, blockNumber uint64) error
}

// Call describes one entry-point invocation.
type Call struct {
	ContractAddress *felt.Felt
	Selector        *felt.Felt
	Calldata        []*felt.Felt
	BlockNumber     uint64
}

// Result is what a Call produces: return data and any events/messages
// emitted, mirrored back into the receipt by the engine.
type Result struct {
	RetData []*felt.Felt
	Events  []core.Event
}

// Interpreter executes Calls against predeployed fee tokens and the UDC.
type Interpreter struct {
	store StorageView
}

func New(store StorageView) *Interpreter {
	return &Interpreter{store: store}
}

func storageVarAddress(name string) *felt.Felt {
	return crypto.PedersenArray(new(felt.Felt).SetBytes([]byte(name)))
}

var (
	balancesVar = "ERC20_balances"
)

func balanceKey(addr *felt.Felt) *felt.Felt {
	return crypto.PedersenArray(storageVarAddress(balancesVar), addr)
}

// Execute dispatches call.Selector to the matching built-in handler.
func (i *Interpreter) Execute(call Call) (*Result, error) {
	sel, ok := selectorFelts[*call.Selector]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSelector, call.Selector)
	}
	switch sel {
	case SelectorTransfer:
		return i.transfer(call)
	case SelectorBalanceOf:
		return i.balanceOf(call)
	case SelectorValidate, SelectorExecute:
		// Signature/calldata validation is the abstracted-away part; any
		// __validate__/__execute__ call on an account contract succeeds,
		// matching skip_validate's effect being the default rather than
		// the exception for this interpreter.
		return &Result{}, nil
	case SelectorDeployContract:
		return i.deployContract(call)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownSelector, call.Selector)
	}
}

func (i *Interpreter) transfer(call Call) (*Result, error) {
	if len(call.Calldata) < 2 {
		return nil, fmt.Errorf("transfer: expected (recipient, amount), got %d args", len(call.Calldata))
	}
	recipient, amount := call.Calldata[0], call.Calldata[1]

	fromKey := balanceKey(call.ContractAddress) // caller-as-token convention: token address carries its own balances map
	senderBalance, err := i.store.GetStorageAt(call.ContractAddress, fromKey)
	if err != nil {
		return nil, err
	}
	if senderBalance.Cmp(amount) < 0 {
		return nil, fmt.Errorf("transfer: insufficient balance")
	}
	newSender := new(felt.Felt).Sub(senderBalance, amount)
	if err := i.store.SetStorage(call.ContractAddress, fromKey, newSender, call.BlockNumber); err != nil {
		return nil, err
	}

	toKey := balanceKey(recipient)
	recvBalance, err := i.store.GetStorageAt(call.ContractAddress, toKey)
	if err != nil {
		return nil, err
	}
	newRecv := new(felt.Felt).Add(recvBalance, amount)
	if err := i.store.SetStorage(call.ContractAddress, toKey, newRecv, call.BlockNumber); err != nil {
		return nil, err
	}

	return &Result{
		RetData: []*felt.Felt{&felt.One},
		Events: []core.Event{{
			From: call.ContractAddress,
			Keys: []*felt.Felt{crypto.PedersenArray(new(felt.Felt).SetBytes([]byte("Transfer")))},
			Data: []*felt.Felt{recipient, amount},
		}},
	}, nil
}

func (i *Interpreter) balanceOf(call Call) (*Result, error) {
	if len(call.Calldata) < 1 {
		return nil, fmt.Errorf("balanceOf: expected (account), got %d args", len(call.Calldata))
	}
	balance, err := i.store.GetStorageAt(call.ContractAddress, balanceKey(call.Calldata[0]))
	if err != nil {
		return nil, err
	}
	return &Result{RetData: []*felt.Felt{balance}}, nil
}

// Debit deducts amount from addr's balance on the given fee token,
// rejecting the call if the balance is insufficient: the implementation
// behind the engine's fee charge, kept distinct from Credit/transfer so an
// underfunded sender fails loudly instead of wrapping around the field.
func (i *Interpreter) Debit(token, addr, amount *felt.Felt, blockNumber uint64) (*felt.Felt, error) {
	current, err := i.store.GetStorageAt(token, balanceKey(addr))
	if err != nil {
		return nil, err
	}
	if current.Cmp(amount) < 0 {
		return nil, fmt.Errorf("insufficient balance: have %s, need %s", current, amount)
	}
	next := new(felt.Felt).Sub(current, amount)
	if err := i.store.SetStorage(token, balanceKey(addr), next, blockNumber); err != nil {
		return nil, err
	}
	return next, nil
}

// Credit adds amount to an address's balance on the given fee token,
// bypassing the transfer entry point: the implementation behind the
// devnet_mint / POST /mint operation, which mints rather than transfers.
func (i *Interpreter) Credit(token, addr, amount *felt.Felt, blockNumber uint64) (*felt.Felt, error) {
	current, err := i.store.GetStorageAt(token, balanceKey(addr))
	if err != nil {
		return nil, err
	}
	next := new(felt.Felt).Add(current, amount)
	if err := i.store.SetStorage(token, balanceKey(addr), next, blockNumber); err != nil {
		return nil, err
	}
	return next, nil
}

// BalanceOf reads addr's balance on token directly, bypassing the balanceOf
// entry point, used by devnet_getAccountBalance, which is a devnet
// extension query rather than a real contract call.
func (i *Interpreter) BalanceOf(token, addr *felt.Felt) (*felt.Felt, error) {
	return i.store.GetStorageAt(token, balanceKey(addr))
}

func (i *Interpreter) deployContract(call Call) (*Result, error) {
	if len(call.Calldata) < 2 {
		return nil, fmt.Errorf("deployContract: expected (classHash, address), got %d args", len(call.Calldata))
	}
	classHash, addr := call.Calldata[0], call.Calldata[1]
	if err := i.store.DeployContract(addr, classHash, call.BlockNumber); err != nil {
		return nil, err
	}
	return &Result{RetData: []*felt.Felt{addr}}, nil
}
