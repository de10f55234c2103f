package core

import (
	"fmt"
	"math/big"

	"github.com/NethermindEth/starknet-devnet-go/core/crypto"
	"github.com/NethermindEth/starknet-devnet-go/core/felt"
)

// patriciaKeyBound is 2^251, the upper bound (exclusive) for any Felt used
// as a Patricia trie key: contract addresses, and by extension storage
// keys within a contract.
var patriciaKeyBound = new(big.Int).Lsh(big.NewInt(1), 251)

// Address is a Felt restricted to the Patricia-key range [0, 2^251).
type Address struct {
	felt.Felt
}

// NewAddress range-checks f and returns an Address, or felt.ErrOutOfRange.
func NewAddress(f *felt.Felt) (Address, error) {
	if f.BigInt().Cmp(patriciaKeyBound) >= 0 {
		return Address{}, fmt.Errorf("%w: address %s exceeds patricia key range", felt.ErrOutOfRange, f)
	}
	return Address{*f}, nil
}

// AddressFromHex parses and range-checks a hex address in one step.
func AddressFromHex(s string) (Address, error) {
	f, err := felt.FromHex(s)
	if err != nil {
		return Address{}, err
	}
	return NewAddress(f)
}

// PatriciaKey is a second name for the same range restriction, used for
// storage keys within a contract. It is a distinct type from
// Address purely for self-documenting call sites.
type PatriciaKey struct {
	felt.Felt
}

// NewPatriciaKey range-checks f and returns a PatriciaKey.
func NewPatriciaKey(f *felt.Felt) (PatriciaKey, error) {
	if f.BigInt().Cmp(patriciaKeyBound) >= 0 {
		return PatriciaKey{}, fmt.Errorf("%w: key %s exceeds patricia key range", felt.ErrOutOfRange, f)
	}
	return PatriciaKey{*f}, nil
}

// ClassHash, CompiledClassHash, Nonce and TxHash are all Felts distinguished
// only by role; separate named types prevent accidentally
// passing e.g. a nonce where a class hash is expected.
type (
	ClassHash         struct{ felt.Felt }
	CompiledClassHash struct{ felt.Felt }
	Nonce             struct{ felt.Felt }
	TxHash            struct{ felt.Felt }
	BlockHash         struct{ felt.Felt }
)

func ClassHashFromFelt(f *felt.Felt) ClassHash { return ClassHash{*f} }
func TxHashFromFelt(f *felt.Felt) TxHash       { return TxHash{*f} }
func BlockHashFromFelt(f *felt.Felt) BlockHash { return BlockHash{*f} }

// ContractAddress computes a contract's address the way DEPLOY and
// DEPLOY_ACCOUNT both derive it: Pedersen(prefix, deployer, salt, classHash,
// calldataHash), with deployer fixed to zero (self-deployment is the only
// deployment mode this devnet's engine supports).
func ContractAddress(classHash, salt *felt.Felt, calldata []*felt.Felt) *felt.Felt {
	calldataHash := crypto.PedersenArray(calldata...)
	return crypto.PedersenArray(
		new(felt.Felt).SetBytes([]byte("STARKNET_CONTRACT_ADDRESS")),
		&felt.Zero,
		salt,
		classHash,
		calldataHash,
	)
}
