package predeployed_test

import (
	"math/big"
	"testing"

	"github.com/NethermindEth/starknet-devnet-go/core/felt"
	"github.com/NethermindEth/starknet-devnet-go/core/predeployed"
	"github.com/NethermindEth/starknet-devnet-go/core/worldstate"
	"github.com/stretchr/testify/require"
)

func TestDeriveIsDeterministic(t *testing.T) {
	d := predeployed.Deployer{
		Seed:             42,
		Count:            3,
		InitialBalance:   big.NewInt(1000),
		AccountClassHash: new(felt.Felt).SetUint64(0xc1a55),
	}

	first, err := d.Derive()
	require.NoError(t, err)
	second, err := d.Derive()
	require.NoError(t, err)

	require.Len(t, first, 3)
	for i := range first {
		require.True(t, first[i].PrivateKey.Equal(second[i].PrivateKey), "account %d private key must be stable", i)
		require.True(t, first[i].PublicKey.Equal(second[i].PublicKey))
		require.True(t, first[i].Address.Equal(second[i].Address))
	}
}

func TestDifferentSeedsDiverge(t *testing.T) {
	base := predeployed.Deployer{Count: 1, AccountClassHash: &felt.One}

	a := base
	a.Seed = 1
	b := base
	b.Seed = 2

	accA, err := a.Derive()
	require.NoError(t, err)
	accB, err := b.Derive()
	require.NoError(t, err)

	require.False(t, accA[0].PrivateKey.Equal(accB[0].PrivateKey))
	require.False(t, accA[0].Address.Equal(accB[0].Address))
}

func TestAccountsWithinOneSeedAreDistinct(t *testing.T) {
	d := predeployed.Deployer{Seed: 7, Count: 10, AccountClassHash: &felt.One}
	accounts, err := d.Derive()
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, acc := range accounts {
		require.False(t, seen[acc.Address.String()], "duplicate address")
		seen[acc.Address.String()] = true
	}
}

func TestSeedPopulatesStore(t *testing.T) {
	store, err := worldstate.Open(worldstate.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	d := predeployed.Deployer{Seed: 42, Count: 2, InitialBalance: big.NewInt(555), AccountClassHash: new(felt.Felt).SetUint64(0xacc)}
	accounts, err := d.Derive()
	require.NoError(t, err)
	feeTokens := predeployed.NewFeeTokens(predeployed.UDCAddress)

	plan := predeployed.Plan{
		FeeTokens:        feeTokens[:],
		UDCAddr:          predeployed.UDCAddress,
		Accounts:         accounts,
		AccountClassHash: nil, // accounts funded but not contract-deployed in this minimal plan
		InitialBalance:   big.NewInt(555),
	}
	require.NoError(t, plan.Seed(store, 0))

	// Both fee tokens deployed at their canonical addresses.
	for _, token := range feeTokens {
		classHash, err := store.GetClassHashAt(token.Address)
		require.NoError(t, err)
		require.True(t, classHash.Equal(predeployed.FeeTokenClassHash))
	}

	// UDC deployed.
	udcClass, err := store.GetClassHashAt(predeployed.UDCAddress)
	require.NoError(t, err)
	require.True(t, udcClass.Equal(predeployed.UDCClassHash))
}

func TestFeeTokenStorageSeed(t *testing.T) {
	tokens := predeployed.NewFeeTokens(predeployed.UDCAddress)
	seed := tokens[0].StorageSeed()
	require.Len(t, seed, 4, "name, symbol, decimals and owner")
	for _, v := range seed {
		require.NotNil(t, v)
	}
}
