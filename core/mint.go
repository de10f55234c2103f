package core

import (
	"github.com/NethermindEth/starknet-devnet-go/core/crypto"
	"github.com/NethermindEth/starknet-devnet-go/core/felt"
)

// mintPrefix tags synthetic mint transactions so their hashes can never
// collide with a real INVOKE hash (which uses the "invoke" prefix).
var mintPrefix = new(felt.Felt).SetBytes([]byte("devnet_mint"))

// ComputeMintHash derives the transaction hash recorded for a devnet_mint
// call. Minting bypasses the account pipeline (no signature, no nonce), so
// its hash is a plain reduction over the recipient, amount and the block
// the mint lands in, enough to make every mint's hash unique and
// re-derivable on dump replay.
func ComputeMintHash(recipient, amount *felt.Felt, blockNumber uint64) *felt.Felt {
	return crypto.PedersenArray(mintPrefix, recipient, amount, new(felt.Felt).SetUint64(blockNumber))
}
