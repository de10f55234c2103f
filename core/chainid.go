package core

import (
	"fmt"
	"strings"

	"github.com/NethermindEth/starknet-devnet-go/core/felt"
)

// ChainId distinguishes the well-known Starknet chain tags from a custom,
// operator-supplied short string, matching starknet-devnet-types/src/chain_id.rs.
type ChainId struct {
	tag    chainTag
	custom string // only set when tag == chainCustom
}

type chainTag int

const (
	chainMainnet chainTag = iota
	chainTestnet
	chainCustom
)

var (
	ChainMainnet = ChainId{tag: chainMainnet}
	ChainTestnet = ChainId{tag: chainTestnet}
)

// NewCustomChainId builds a ChainId from an arbitrary short string (ASCII,
// at most 31 bytes, matching Cairo's short-string packing limit).
func NewCustomChainId(s string) (ChainId, error) {
	if len(s) == 0 || len(s) > 31 {
		return ChainId{}, fmt.Errorf("%w: chain id %q must be 1-31 bytes", felt.ErrInvalidShortString, s)
	}
	for _, c := range s {
		if c > 0x7f {
			return ChainId{}, fmt.Errorf("%w: chain id %q must be ASCII", felt.ErrInvalidShortString, s)
		}
	}
	return ChainId{tag: chainCustom, custom: s}, nil
}

// ParseChainId accepts "MAINNET", "TESTNET" (case-insensitive) or any other
// short string as a custom chain id.
func ParseChainId(s string) (ChainId, error) {
	switch strings.ToUpper(s) {
	case "MAINNET":
		return ChainMainnet, nil
	case "TESTNET":
		return ChainTestnet, nil
	default:
		return NewCustomChainId(s)
	}
}

// String renders the short-string form: "SN_MAIN", "SN_SEPOLIA", or the
// custom string verbatim.
func (c ChainId) String() string {
	switch c.tag {
	case chainMainnet:
		return "SN_MAIN"
	case chainTestnet:
		return "SN_SEPOLIA"
	default:
		return c.custom
	}
}

// Felt encodes the chain id as a short-string Felt (big-endian ASCII bytes
// packed into the field), matching the encoding
// starknet_rs_core::utils::cairo_short_string_to_felt performs.
func (c ChainId) Felt() *felt.Felt {
	return shortStringToFelt(c.String())
}

func shortStringToFelt(s string) *felt.Felt {
	return new(felt.Felt).SetBytes([]byte(s))
}

// FeltToShortString decodes a Felt produced by shortStringToFelt back into
// its ASCII form, stripping leading zero bytes.
func FeltToShortString(f *felt.Felt) (string, error) {
	b := f.Bytes()
	trimmed := b[:]
	for len(trimmed) > 0 && trimmed[0] == 0 {
		trimmed = trimmed[1:]
	}
	for _, c := range trimmed {
		if c > 0x7f {
			return "", felt.ErrInvalidShortString
		}
	}
	return string(trimmed), nil
}
