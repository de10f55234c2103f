package core_test

import (
	"testing"

	"github.com/NethermindEth/starknet-devnet-go/core"
	"github.com/NethermindEth/starknet-devnet-go/core/felt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustFelt(s string) *felt.Felt {
	f, err := felt.FromHex(s)
	if err != nil {
		panic(err)
	}
	return f
}

func TestInvokeV1HashDeterministic(t *testing.T) {
	chainID := core.ChainTestnet.Felt()
	tx := &core.Transaction{Invoke: &core.InvokeTransaction{
		Version:       1,
		SenderAddress: mustFelt("0x1"),
		CallData:      []*felt.Felt{mustFelt("0x2"), mustFelt("0x3")},
		MaxFee:        mustFelt("0x100"),
		Nonce:         mustFelt("0x0"),
	}}
	h1, err := core.ComputeHash(tx, chainID)
	require.NoError(t, err)
	h2, err := core.ComputeHash(tx, chainID)
	require.NoError(t, err)
	assert.True(t, h1.Equal(h2))
}

func TestInvokeV3DiffersFromV1(t *testing.T) {
	chainID := core.ChainTestnet.Felt()
	base := core.InvokeTransaction{
		SenderAddress: mustFelt("0x1"),
		CallData:      []*felt.Felt{mustFelt("0x2")},
		Nonce:         mustFelt("0x0"),
	}
	v1 := base
	v1.Version = 1
	v1.MaxFee = mustFelt("0x100")

	v3 := base
	v3.Version = 3
	v3.ResourceBounds = core.ResourceBounds{
		L1Gas: core.ResourceBound{MaxAmount: 10, MaxPricePerUnit: mustFelt("0x5")},
		L2Gas: core.ResourceBound{MaxAmount: 20, MaxPricePerUnit: mustFelt("0x6")},
	}

	h1, err := core.ComputeHash(&core.Transaction{Invoke: &v1}, chainID)
	require.NoError(t, err)
	h3, err := core.ComputeHash(&core.Transaction{Invoke: &v3}, chainID)
	require.NoError(t, err)
	assert.False(t, h1.Equal(h3))
}

func TestInvokeRejectsUnknownVersion(t *testing.T) {
	chainID := core.ChainTestnet.Felt()
	tx := &core.Transaction{Invoke: &core.InvokeTransaction{Version: 7}}
	_, err := core.ComputeHash(tx, chainID)
	assert.Error(t, err)
}

func TestVerifyHashRejectsTamperedHash(t *testing.T) {
	chainID := core.ChainTestnet.Felt()
	inv := &core.InvokeTransaction{
		Version:       1,
		SenderAddress: mustFelt("0x1"),
		CallData:      []*felt.Felt{mustFelt("0x2")},
		MaxFee:        mustFelt("0x100"),
		Nonce:         mustFelt("0x0"),
	}
	computed, err := core.ComputeHash(&core.Transaction{Invoke: inv}, chainID)
	require.NoError(t, err)
	inv.TransactionHash = computed
	tx := &core.Transaction{Invoke: inv}
	assert.NoError(t, core.VerifyHash(tx, chainID))

	inv.TransactionHash = mustFelt("0xdead")
	assert.Error(t, core.VerifyHash(tx, chainID))
}

func TestResourceBoundsIsZero(t *testing.T) {
	var rb core.ResourceBounds
	rb.L1Gas.MaxPricePerUnit = &felt.Zero
	rb.L2Gas.MaxPricePerUnit = &felt.Zero
	assert.True(t, rb.IsZero())

	rb.L1Gas.MaxAmount = 1
	assert.False(t, rb.IsZero())
}

func TestDeployAccountHashVariesWithSalt(t *testing.T) {
	chainID := core.ChainTestnet.Felt()
	base := core.DeployAccountTransaction{
		Version:             1,
		ContractAddress:     mustFelt("0xabc"),
		ClassHash:           mustFelt("0x1"),
		ConstructorCallData: []*felt.Felt{mustFelt("0x2")},
		MaxFee:              mustFelt("0x10"),
		Nonce:               mustFelt("0x0"),
	}
	a := base
	a.ContractAddressSalt = mustFelt("0x1")
	b := base
	b.ContractAddressSalt = mustFelt("0x2")

	ha, err := core.ComputeHash(&core.Transaction{DeployAccount: &a}, chainID)
	require.NoError(t, err)
	hb, err := core.ComputeHash(&core.Transaction{DeployAccount: &b}, chainID)
	require.NoError(t, err)
	assert.False(t, ha.Equal(hb))
}
