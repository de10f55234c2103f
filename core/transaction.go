package core

import (
	"errors"
	"fmt"

	"github.com/NethermindEth/starknet-devnet-go/core/crypto"
	"github.com/NethermindEth/starknet-devnet-go/core/felt"
)

// DAMode is a data-availability mode selector for v3 fee fields.
type DAMode int

const (
	DAModeL1 DAMode = iota
	DAModeL2
)

// ResourceBound is one entry of a v3 transaction's resource_bounds map.
type ResourceBound struct {
	MaxAmount       uint64
	MaxPricePerUnit *felt.Felt
}

// ResourceBounds is the v3 fee specification: caps on L1 gas and L2 gas.
type ResourceBounds struct {
	L1Gas ResourceBound
	L2Gas ResourceBound
}

// IsZero reports whether every bound is zero, the condition a v3
// transaction is rejected for at validation time.
func (r ResourceBounds) IsZero() bool {
	return r.L1Gas.MaxAmount == 0 && r.L1Gas.MaxPricePerUnit.IsZero() &&
		r.L2Gas.MaxAmount == 0 && r.L2Gas.MaxPricePerUnit.IsZero()
}

// Event is a single event emitted during transaction execution.
type Event struct {
	From *felt.Felt
	Keys []*felt.Felt
	Data []*felt.Felt
}

// L1ToL2Message models an inbound message consumed by an L1Handler
// transaction.
type L1ToL2Message struct {
	FromL1Address [20]byte // Ethereum address, big-endian
	To            *felt.Felt
	Selector      *felt.Felt
	Payload       []*felt.Felt
	Nonce         *felt.Felt
}

// L2ToL1Message models an outbound message sent during execution, destined
// for the configured Postman / L1 address.
type L2ToL1Message struct {
	From    *felt.Felt
	ToL1    [20]byte
	Payload []*felt.Felt
}

// ExecutionResources records VM resource usage for a single transaction.
type ExecutionResources struct {
	Steps       uint64
	MemoryHoles uint64
	Builtins    map[string]uint64
}

// Transaction is the tagged union of every kind the engine accepts. Each
// variant carries a narrow struct; common accessors are exposed as methods
// on the union so callers never need to type-switch for the common case.
type Transaction struct {
	Declare       *DeclareTransaction
	DeployAccount *DeployAccountTransaction
	Invoke        *InvokeTransaction
	L1Handler     *L1HandlerTransaction
	Deploy        *DeployTransaction
}

// Kind names the active variant, for logging and RPC type fields.
func (t *Transaction) Kind() string {
	switch {
	case t.Declare != nil:
		return "DECLARE"
	case t.DeployAccount != nil:
		return "DEPLOY_ACCOUNT"
	case t.Invoke != nil:
		return "INVOKE"
	case t.L1Handler != nil:
		return "L1_HANDLER"
	case t.Deploy != nil:
		return "DEPLOY"
	default:
		return "UNKNOWN"
	}
}

// Hash returns the variant's transaction hash.
func (t *Transaction) Hash() *felt.Felt {
	switch {
	case t.Declare != nil:
		return t.Declare.TransactionHash
	case t.DeployAccount != nil:
		return t.DeployAccount.TransactionHash
	case t.Invoke != nil:
		return t.Invoke.TransactionHash
	case t.L1Handler != nil:
		return t.L1Handler.TransactionHash
	case t.Deploy != nil:
		return t.Deploy.TransactionHash
	default:
		return &felt.Zero
	}
}

// Sender returns the variant's sender/contract address, where applicable.
func (t *Transaction) Sender() *felt.Felt {
	switch {
	case t.Declare != nil:
		return t.Declare.SenderAddress
	case t.DeployAccount != nil:
		return t.DeployAccount.ContractAddress
	case t.Invoke != nil:
		return t.Invoke.SenderAddress
	case t.L1Handler != nil:
		return t.L1Handler.ContractAddress
	case t.Deploy != nil:
		return t.Deploy.ContractAddress
	default:
		return &felt.Zero
	}
}

// Nonce returns the variant's nonce, or nil for Deploy (the historical kind
// carries no nonce field).
func (t *Transaction) Nonce() *felt.Felt {
	switch {
	case t.Declare != nil:
		return t.Declare.Nonce
	case t.DeployAccount != nil:
		return t.DeployAccount.Nonce
	case t.Invoke != nil:
		return t.Invoke.Nonce
	case t.L1Handler != nil:
		return t.L1Handler.Nonce
	default:
		return nil
	}
}

// Version returns the variant's version number (0, 1, 2 or 3).
func (t *Transaction) Version() uint64 {
	switch {
	case t.Declare != nil:
		return t.Declare.Version
	case t.DeployAccount != nil:
		return t.DeployAccount.Version
	case t.Invoke != nil:
		return t.Invoke.Version
	case t.L1Handler != nil:
		return t.L1Handler.Version
	case t.Deploy != nil:
		return t.Deploy.Version
	default:
		return 0
	}
}

// DeclareTransaction covers v1 (MaxFee), v2 (MaxFee + CompiledClassHash)
// and v3 (ResourceBounds + CompiledClassHash).
type DeclareTransaction struct {
	TransactionHash   *felt.Felt
	Version           uint64
	SenderAddress     *felt.Felt
	ClassHash         *felt.Felt
	CompiledClassHash *felt.Felt // v2, v3 only
	Nonce             *felt.Felt
	Signature         []*felt.Felt

	MaxFee *felt.Felt // v1, v2

	ResourceBounds    ResourceBounds // v3
	Tip               *felt.Felt
	PaymasterData     []*felt.Felt
	NonceDAMode       DAMode
	FeeDAMode         DAMode
	AccountDeployData []*felt.Felt
}

// DeployAccountTransaction covers v1 (MaxFee) and v3 (ResourceBounds).
type DeployAccountTransaction struct {
	TransactionHash     *felt.Felt
	Version             uint64
	ContractAddress     *felt.Felt // derived from ClassHash/Salt/CallData, not sent on the wire
	ContractAddressSalt *felt.Felt
	ClassHash           *felt.Felt
	ConstructorCallData []*felt.Felt
	Nonce               *felt.Felt
	Signature           []*felt.Felt

	MaxFee *felt.Felt // v1

	ResourceBounds ResourceBounds // v3
	Tip            *felt.Felt
	PaymasterData  []*felt.Felt
	NonceDAMode    DAMode
	FeeDAMode      DAMode
}

// InvokeTransaction covers v1 (MaxFee) and v3 (ResourceBounds).
type InvokeTransaction struct {
	TransactionHash *felt.Felt
	Version         uint64
	SenderAddress   *felt.Felt
	CallData        []*felt.Felt
	Nonce           *felt.Felt
	Signature       []*felt.Felt

	MaxFee *felt.Felt // v1

	ResourceBounds    ResourceBounds // v3
	Tip               *felt.Felt
	PaymasterData     []*felt.Felt
	NonceDAMode       DAMode
	FeeDAMode         DAMode
	AccountDeployData []*felt.Felt
}

// L1HandlerTransaction is the only kind triggered by an L1-originated
// message rather than a signed account transaction; it has no fee and no
// signature.
type L1HandlerTransaction struct {
	TransactionHash    *felt.Felt
	Version            uint64
	ContractAddress    *felt.Felt
	EntryPointSelector *felt.Felt
	CallData           []*felt.Felt
	Nonce              *felt.Felt
	PaidFeeOnL1        *felt.Felt
}

// DeployTransaction is the historical (pre-account-abstraction) kind; its
// hash is treated as opaque and never independently re-verified.
type DeployTransaction struct {
	TransactionHash     *felt.Felt
	Version             uint64
	ContractAddressSalt *felt.Felt
	ContractAddress     *felt.Felt
	ClassHash           *felt.Felt
	ConstructorCallData []*felt.Felt
}

func errInvalidTransactionVersion(kind string, version uint64) error {
	return fmt.Errorf("invalid transaction (type: %s) version: %d", kind, version)
}

// ComputeHash derives the transaction hash from chain id, version, and
// tx-specific fields. It does not mutate t; callers compare the result
// against t.Hash() (re-verifying an already-hashed tx) or assign it
// (hashing a freshly broadcast one).
func ComputeHash(t *Transaction, chainID *felt.Felt) (*felt.Felt, error) {
	switch {
	case t.Declare != nil:
		return declareHash(t.Declare, chainID)
	case t.DeployAccount != nil:
		return deployAccountHash(t.DeployAccount, chainID)
	case t.Invoke != nil:
		return invokeHash(t.Invoke, chainID)
	case t.L1Handler != nil:
		return l1HandlerHash(t.L1Handler, chainID)
	case t.Deploy != nil:
		return t.Deploy.TransactionHash, nil
	default:
		return nil, errors.New("empty transaction union")
	}
}

var (
	prefixInvoke        = new(felt.Felt).SetBytes([]byte("invoke"))
	prefixDeclare       = new(felt.Felt).SetBytes([]byte("declare"))
	prefixL1Handler     = new(felt.Felt).SetBytes([]byte("l1_handler"))
	prefixDeployAccount = new(felt.Felt).SetBytes([]byte("deploy_account"))
)

func versionFelt(v uint64) *felt.Felt {
	return new(felt.Felt).SetUint64(v)
}

// resourceBoundsHash folds (tip, L1_GAS bound, L2_GAS bound) the way
// raw_execution.rs's invoke_v3_hash packs its resource-bounds buffer,
// reduced through Poseidon instead of a fixed byte layout.
func resourceBoundsHash(rb ResourceBounds, tip *felt.Felt) *felt.Felt {
	l1 := packResource("L1_GAS", rb.L1Gas)
	l2 := packResource("L2_GAS", rb.L2Gas)
	if tip == nil {
		tip = &felt.Zero
	}
	return crypto.PoseidonArray(tip, l1, l2)
}

func packResource(name string, b ResourceBound) *felt.Felt {
	amount := new(felt.Felt).SetUint64(b.MaxAmount)
	nameFelt := new(felt.Felt).SetBytes([]byte(name))
	return crypto.PoseidonArray(nameFelt, amount, b.MaxPricePerUnit)
}

// daModeFelt packs nonce/fee data-availability modes into one felt, nonce
// mode in the high bits, mirroring the production bit layout closely enough
// to preserve determinism without claiming bit-for-bit parity.
func daModeFelt(nonceMode, feeMode DAMode) *felt.Felt {
	v := (uint64(nonceMode) << 32) | uint64(feeMode)
	return new(felt.Felt).SetUint64(v)
}

func invokeHash(i *InvokeTransaction, chainID *felt.Felt) (*felt.Felt, error) {
	switch i.Version {
	case 0:
		return i.TransactionHash, nil
	case 1:
		return crypto.PedersenArray(
			prefixInvoke,
			versionFelt(1),
			i.SenderAddress,
			&felt.Zero,
			crypto.PedersenArray(i.CallData...),
			i.MaxFee,
			chainID,
			i.Nonce,
		), nil
	case 3:
		return crypto.PoseidonArray(
			prefixInvoke,
			versionFelt(3),
			i.SenderAddress,
			resourceBoundsHash(i.ResourceBounds, i.Tip),
			crypto.PoseidonArray(i.PaymasterData...),
			chainID,
			i.Nonce,
			daModeFelt(i.NonceDAMode, i.FeeDAMode),
			crypto.PoseidonArray(i.AccountDeployData...),
			crypto.PoseidonArray(i.CallData...),
		), nil
	default:
		return nil, errInvalidTransactionVersion("INVOKE", i.Version)
	}
}

func declareHash(d *DeclareTransaction, chainID *felt.Felt) (*felt.Felt, error) {
	switch d.Version {
	case 0, 1:
		return crypto.PedersenArray(
			prefixDeclare,
			versionFelt(d.Version),
			d.SenderAddress,
			&felt.Zero,
			crypto.PedersenArray(d.ClassHash),
			d.MaxFee,
			chainID,
			d.Nonce,
		), nil
	case 2:
		return crypto.PedersenArray(
			prefixDeclare,
			versionFelt(2),
			d.SenderAddress,
			&felt.Zero,
			crypto.PedersenArray(d.ClassHash),
			d.MaxFee,
			chainID,
			d.Nonce,
			d.CompiledClassHash,
		), nil
	case 3:
		return crypto.PoseidonArray(
			prefixDeclare,
			versionFelt(3),
			d.SenderAddress,
			resourceBoundsHash(d.ResourceBounds, d.Tip),
			crypto.PoseidonArray(d.PaymasterData...),
			chainID,
			d.Nonce,
			daModeFelt(d.NonceDAMode, d.FeeDAMode),
			crypto.PoseidonArray(d.AccountDeployData...),
			d.ClassHash,
			d.CompiledClassHash,
		), nil
	default:
		return nil, errInvalidTransactionVersion("DECLARE", d.Version)
	}
}

func l1HandlerHash(l *L1HandlerTransaction, chainID *felt.Felt) (*felt.Felt, error) {
	if l.Version != 0 {
		return nil, errInvalidTransactionVersion("L1_HANDLER", l.Version)
	}
	if l.Nonce == nil {
		return l.TransactionHash, nil
	}
	return crypto.PedersenArray(
		prefixL1Handler,
		versionFelt(0),
		l.ContractAddress,
		l.EntryPointSelector,
		crypto.PedersenArray(l.CallData...),
		&felt.Zero,
		chainID,
		l.Nonce,
	), nil
}

func deployAccountHash(d *DeployAccountTransaction, chainID *felt.Felt) (*felt.Felt, error) {
	callData := append([]*felt.Felt{d.ClassHash, d.ContractAddressSalt}, d.ConstructorCallData...)
	switch d.Version {
	case 1:
		return crypto.PedersenArray(
			prefixDeployAccount,
			versionFelt(1),
			d.ContractAddress,
			&felt.Zero,
			crypto.PedersenArray(callData...),
			d.MaxFee,
			chainID,
			d.Nonce,
		), nil
	case 3:
		return crypto.PoseidonArray(
			prefixDeployAccount,
			versionFelt(3),
			d.ContractAddress,
			resourceBoundsHash(d.ResourceBounds, d.Tip),
			crypto.PoseidonArray(d.PaymasterData...),
			chainID,
			d.Nonce,
			daModeFelt(d.NonceDAMode, d.FeeDAMode),
			crypto.PoseidonArray(d.ConstructorCallData...),
			d.ClassHash,
			d.ContractAddressSalt,
		), nil
	default:
		return nil, errInvalidTransactionVersion("DEPLOY_ACCOUNT", d.Version)
	}
}

// CantVerifyTransactionHashError reports that ComputeHash either failed or
// disagreed with the hash carried on the transaction.
type CantVerifyTransactionHashError struct {
	Kind        string
	HashFailure error
}

func (e *CantVerifyTransactionHashError) Error() string {
	if e.HashFailure != nil {
		return fmt.Sprintf("cannot verify transaction hash of %s transaction: %v", e.Kind, e.HashFailure)
	}
	return fmt.Sprintf("cannot verify transaction hash of %s transaction: mismatch", e.Kind)
}

func (e *CantVerifyTransactionHashError) Unwrap() error { return e.HashFailure }

// VerifyHash recomputes t's hash and compares it against the carried
// TransactionHash.
func VerifyHash(t *Transaction, chainID *felt.Felt) error {
	computed, err := ComputeHash(t, chainID)
	if err != nil {
		return &CantVerifyTransactionHashError{Kind: t.Kind(), HashFailure: err}
	}
	if !computed.Equal(t.Hash()) {
		return &CantVerifyTransactionHashError{Kind: t.Kind()}
	}
	return nil
}
