package block_test

import (
	"testing"

	"github.com/NethermindEth/starknet-devnet-go/core"
	"github.com/NethermindEth/starknet-devnet-go/core/block"
	"github.com/NethermindEth/starknet-devnet-go/core/felt"
	"github.com/NethermindEth/starknet-devnet-go/core/worldstate"
	"github.com/stretchr/testify/require"
)

func newProducer(t *testing.T, mode block.Mode, archive worldstate.ArchiveCapacity) (*block.Producer, *worldstate.Store) {
	t.Helper()
	store, err := worldstate.Open(worldstate.Options{Archive: archive})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	now := uint64(1_700_000_000)
	p := block.New(block.Config{
		Mode:             mode,
		Archive:          archive,
		SequencerAddress: new(felt.Felt).SetUint64(0x5e1),
		GasPrices: block.GasPrices{
			L1Gas:     new(felt.Felt).SetUint64(10),
			L1DataGas: new(felt.Felt).SetUint64(10),
			L2Gas:     new(felt.Felt).SetUint64(10),
		},
		ChainID:         core.ChainTestnet.Felt(),
		ProtocolVersion: "0.13.3",
		Now:             func() uint64 { now++; return now },
	})
	_, err = p.SeedGenesis(store)
	require.NoError(t, err)
	return p, store
}

func mintLikeTx(n uint64) (*core.Transaction, *core.Receipt) {
	hash := new(felt.Felt).SetUint64(0x1000 + n)
	inv := &core.InvokeTransaction{Version: 1, SenderAddress: &felt.One, TransactionHash: hash, Nonce: &felt.Zero, MaxFee: &felt.Zero}
	return &core.Transaction{Invoke: inv}, &core.Receipt{TransactionHash: hash, ActualFee: &felt.Zero}
}

func TestBlockNumbersAreDense(t *testing.T) {
	p, store := newProducer(t, block.ModeAutomatic, worldstate.ArchiveNone)

	for i := uint64(0); i < 3; i++ {
		tx, rec := mintLikeTx(i)
		sealed, err := p.Add(store, tx, rec)
		require.NoError(t, err)
		require.NotNil(t, sealed, "automatic mode seals per tx")
		require.Equal(t, i+1, sealed.Number)
		require.Len(t, sealed.Transactions, 1)
	}

	head, ok := p.Store().Head()
	require.True(t, ok)
	require.Equal(t, uint64(3), head.Number)

	// Parent hashes chain and every hash is distinct.
	seen := map[string]bool{}
	for n := uint64(0); n <= head.Number; n++ {
		b, ok := p.Store().Block(n)
		require.True(t, ok)
		require.False(t, seen[b.Hash.String()], "duplicate block hash at %d", n)
		seen[b.Hash.String()] = true
		if n > 0 {
			parent, _ := p.Store().Block(n - 1)
			require.True(t, b.ParentHash.Equal(parent.Hash))
			require.Greater(t, b.Timestamp, parent.Timestamp)
		}
	}
}

func TestOnDemandAccumulatesUntilCreateBlock(t *testing.T) {
	p, store := newProducer(t, block.ModeOnDemand, worldstate.ArchiveNone)

	tx1, rec1 := mintLikeTx(1)
	sealed, err := p.Add(store, tx1, rec1)
	require.NoError(t, err)
	require.Nil(t, sealed, "on-demand mode must not seal per tx")

	tx2, rec2 := mintLikeTx(2)
	_, err = p.Add(store, tx2, rec2)
	require.NoError(t, err)

	require.Len(t, p.PendingTransactionHashes(), 2)

	b, err := p.CreateBlock(store)
	require.NoError(t, err)
	require.Equal(t, uint64(1), b.Number)
	require.Len(t, b.Transactions, 2)
	require.Empty(t, p.PendingTransactionHashes())

	// Receipts picked up the sealed block's coordinates.
	for _, h := range b.Transactions {
		rec, ok := p.Store().Transaction(h)
		require.True(t, ok)
		require.Equal(t, b.Number, rec.Receipt.BlockNumber)
		require.True(t, rec.Receipt.BlockHash.Equal(b.Hash))
	}
}

func TestSetTimePinsNextTimestamp(t *testing.T) {
	p, store := newProducer(t, block.ModeOnDemand, worldstate.ArchiveNone)

	b, err := p.SetTime(store, 2_000_000_000, true)
	require.NoError(t, err)
	require.NotNil(t, b)
	require.Equal(t, uint64(2_000_000_000), b.Timestamp)

	// The override is one-shot; the next block returns to clock time but
	// never goes backwards.
	b2, err := p.CreateBlock(store)
	require.NoError(t, err)
	require.Greater(t, b2.Timestamp, b.Timestamp)
}

func TestSetGasPricePreservesUnsetFields(t *testing.T) {
	p, store := newProducer(t, block.ModeOnDemand, worldstate.ArchiveNone)

	_, err := p.SetGasPrice(store, block.GasPriceUpdate{L1Gas: new(felt.Felt).SetUint64(77)})
	require.NoError(t, err)

	gas := p.GasPrice()
	require.True(t, gas.L1Gas.Equal(new(felt.Felt).SetUint64(77)))
	require.True(t, gas.L1DataGas.Equal(new(felt.Felt).SetUint64(10)), "unset field must keep its previous value")
	require.True(t, gas.L2Gas.Equal(new(felt.Felt).SetUint64(10)))
}

func TestAbortRequiresFullArchive(t *testing.T) {
	p, store := newProducer(t, block.ModeAutomatic, worldstate.ArchiveNone)
	tx, rec := mintLikeTx(1)
	_, err := p.Add(store, tx, rec)
	require.NoError(t, err)

	_, err = p.Abort(store, 1)
	require.ErrorIs(t, err, block.ErrArchiveRequired)
}

func TestAbortRestoresStateAndMarksBlocks(t *testing.T) {
	p, store := newProducer(t, block.ModeAutomatic, worldstate.ArchiveFull)

	addr := new(felt.Felt).SetUint64(0xa)
	key := new(felt.Felt).SetUint64(0xb)

	require.NoError(t, store.SetStorage(addr, key, new(felt.Felt).SetUint64(1), 1))
	tx1, rec1 := mintLikeTx(1)
	_, err := p.Add(store, tx1, rec1)
	require.NoError(t, err)

	require.NoError(t, store.SetStorage(addr, key, new(felt.Felt).SetUint64(2), 2))
	tx2, rec2 := mintLikeTx(2)
	_, err = p.Add(store, tx2, rec2)
	require.NoError(t, err)

	result, err := p.Abort(store, 2)
	require.NoError(t, err)
	require.Len(t, result.AbortedBlockHashes, 1)

	// Block 2's write is rolled back, block 1's survives.
	v, err := store.GetStorageAt(addr, key)
	require.NoError(t, err)
	require.True(t, v.Equal(&felt.One))

	b2, ok := p.Store().Block(2)
	require.True(t, ok, "aborted blocks stay resolvable")
	require.Equal(t, block.StatusAborted, b2.Status)

	b1, _ := p.Store().Block(1)
	require.Equal(t, block.StatusAcceptedOnL2, b1.Status)
}

func TestResetReturnsToEmptyGenesis(t *testing.T) {
	p, store := newProducer(t, block.ModeAutomatic, worldstate.ArchiveNone)
	tx, rec := mintLikeTx(1)
	_, err := p.Add(store, tx, rec)
	require.NoError(t, err)

	genesis, err := p.Reset(store)
	require.NoError(t, err)
	require.Equal(t, uint64(0), genesis.Number)

	head, ok := p.Store().Head()
	require.True(t, ok)
	require.Equal(t, uint64(0), head.Number)
	_, ok = p.Store().Transaction(tx.Hash())
	require.False(t, ok, "old transactions must not survive a reset")
}
