package crypto_test

import (
	"testing"

	"github.com/NethermindEth/starknet-devnet-go/core/crypto"
	"github.com/NethermindEth/starknet-devnet-go/core/felt"
	"github.com/stretchr/testify/assert"
)

func TestPedersenIsDeterministic(t *testing.T) {
	a, _ := felt.FromHex("0x1")
	b, _ := felt.FromHex("0x2")
	h1 := crypto.PedersenHash(a, b)
	h2 := crypto.PedersenHash(a, b)
	assert.True(t, h1.Equal(h2))
}

func TestPedersenAndPoseidonDiffer(t *testing.T) {
	a, _ := felt.FromHex("0x1")
	b, _ := felt.FromHex("0x2")
	assert.False(t, crypto.PedersenHash(a, b).Equal(crypto.PoseidonHash(a, b)))
}

func TestHashArrayOrderSensitive(t *testing.T) {
	a, _ := felt.FromHex("0x1")
	b, _ := felt.FromHex("0x2")
	assert.False(t, crypto.PoseidonArray(a, b).Equal(crypto.PoseidonArray(b, a)))
}

func TestHashArrayLengthSensitive(t *testing.T) {
	a, _ := felt.FromHex("0x1")
	assert.False(t, crypto.PoseidonArray(a).Equal(crypto.PoseidonArray(a, a)))
}
