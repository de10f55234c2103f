package worldstate_test

import (
	"testing"

	"github.com/NethermindEth/starknet-devnet-go/core"
	"github.com/NethermindEth/starknet-devnet-go/core/felt"
	"github.com/NethermindEth/starknet-devnet-go/core/worldstate"
	"github.com/NethermindEth/starknet-devnet-go/core/worldstate/mocks"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func openStore(t *testing.T, opts worldstate.Options) *worldstate.Store {
	t.Helper()
	store, err := worldstate.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestAbsentReadsDefaultToZero(t *testing.T) {
	store := openStore(t, worldstate.Options{})
	addr := new(felt.Felt).SetUint64(0x1)

	nonce, err := store.GetNonceAt(addr)
	require.NoError(t, err)
	require.True(t, nonce.IsZero())

	v, err := store.GetStorageAt(addr, &felt.One)
	require.NoError(t, err)
	require.True(t, v.IsZero())

	_, err = store.GetClassHashAt(addr)
	require.ErrorIs(t, err, worldstate.ErrNotDeployed)
}

func TestDeployRequiresVacantAddress(t *testing.T) {
	store := openStore(t, worldstate.Options{})
	addr := new(felt.Felt).SetUint64(0x2)
	classHash := new(felt.Felt).SetUint64(0xc1a55)

	require.NoError(t, store.DeployContract(addr, classHash, 0))
	err := store.DeployContract(addr, classHash, 0)
	require.ErrorIs(t, err, worldstate.ErrAlreadyDeployed)

	got, err := store.GetClassHashAt(addr)
	require.NoError(t, err)
	require.True(t, got.Equal(classHash))
}

func TestDeclareClassIsIdempotent(t *testing.T) {
	store := openStore(t, worldstate.Options{})
	classHash := new(felt.Felt).SetUint64(0xc1a55)
	class := &core.Cairo1Class{Program: []*felt.Felt{&felt.One}, SemanticVersion: "0.1.0"}
	compiled := new(felt.Felt).SetUint64(0xca5)

	require.NoError(t, store.DeclareClass(classHash, class, compiled, 1))
	require.NoError(t, store.DeclareClass(classHash, class, compiled, 2), "redeclare must be a no-op success")

	decl, err := store.GetClass(classHash)
	require.NoError(t, err)
	require.Equal(t, uint64(1), decl.AtBlock, "first declaration wins")

	recorded, ok, err := store.CompiledClassHashOf(classHash)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, recorded.Equal(compiled))
}

func TestRevertRestoresPreviousValues(t *testing.T) {
	store := openStore(t, worldstate.Options{Archive: worldstate.ArchiveFull})
	addr := new(felt.Felt).SetUint64(0x3)
	key := new(felt.Felt).SetUint64(0x4)

	require.NoError(t, store.SetStorage(addr, key, new(felt.Felt).SetUint64(10), 1))
	require.NoError(t, store.BumpNonce(addr, &felt.One, 1))
	require.NoError(t, store.SetStorage(addr, key, new(felt.Felt).SetUint64(20), 2))

	require.NoError(t, store.Revert(2))
	v, err := store.GetStorageAt(addr, key)
	require.NoError(t, err)
	require.True(t, v.Equal(new(felt.Felt).SetUint64(10)))

	require.NoError(t, store.Revert(1))
	v, err = store.GetStorageAt(addr, key)
	require.NoError(t, err)
	require.True(t, v.IsZero())
	nonce, err := store.GetNonceAt(addr)
	require.NoError(t, err)
	require.True(t, nonce.IsZero())
}

func TestRevertUndeploysContractsDeployedInBlock(t *testing.T) {
	store := openStore(t, worldstate.Options{Archive: worldstate.ArchiveFull})
	addr := new(felt.Felt).SetUint64(0x5)
	classHash := new(felt.Felt).SetUint64(0xc1a55)

	require.NoError(t, store.DeployContract(addr, classHash, 3))
	require.NoError(t, store.Revert(3))

	_, err := store.GetClassHashAt(addr)
	require.ErrorIs(t, err, worldstate.ErrNotDeployed)
}

func TestSnapshotPinsHistoricalView(t *testing.T) {
	store := openStore(t, worldstate.Options{Archive: worldstate.ArchiveFull})
	addr := new(felt.Felt).SetUint64(0x6)
	key := new(felt.Felt).SetUint64(0x7)

	require.NoError(t, store.SetStorage(addr, key, &felt.One, 1))
	snap := store.Snapshot()
	t.Cleanup(func() { _ = snap.Close() })

	require.NoError(t, store.SetStorage(addr, key, new(felt.Felt).SetUint64(2), 2))

	live, err := store.GetStorageAt(addr, key)
	require.NoError(t, err)
	require.True(t, live.Equal(new(felt.Felt).SetUint64(2)))

	pinned, err := snap.StorageAt(addr, key)
	require.NoError(t, err)
	require.True(t, pinned.Equal(&felt.One))
}

func TestResetWipesEverything(t *testing.T) {
	store := openStore(t, worldstate.Options{})
	addr := new(felt.Felt).SetUint64(0x8)
	require.NoError(t, store.DeployContract(addr, &felt.One, 0))
	require.NoError(t, store.SetStorage(addr, &felt.One, &felt.One, 0))

	require.NoError(t, store.Reset())

	_, err := store.GetClassHashAt(addr)
	require.ErrorIs(t, err, worldstate.ErrNotDeployed)
	v, err := store.GetStorageAt(addr, &felt.One)
	require.NoError(t, err)
	require.True(t, v.IsZero())
}

func TestForkFallbackOnLocalMiss(t *testing.T) {
	ctrl := gomock.NewController(t)
	fork := mocks.NewMockForkReader(ctrl)
	store := openStore(t, worldstate.Options{Fork: fork})

	addr := new(felt.Felt).SetUint64(0x9)
	upstreamHash := new(felt.Felt).SetUint64(0xf02c)
	upstreamNonce := new(felt.Felt).SetUint64(5)

	fork.EXPECT().ClassHashAt(addr).Return(upstreamHash, true, nil)
	fork.EXPECT().NonceAt(addr).Return(upstreamNonce, true, nil)
	fork.EXPECT().StorageAt(addr, gomock.Any()).Return(nil, false, nil)

	got, err := store.GetClassHashAt(addr)
	require.NoError(t, err)
	require.True(t, got.Equal(upstreamHash))

	nonce, err := store.GetNonceAt(addr)
	require.NoError(t, err)
	require.True(t, nonce.Equal(upstreamNonce))

	// An upstream miss falls through to the zero default rather than an
	// error: the slot simply doesn't exist anywhere.
	v, err := store.GetStorageAt(addr, &felt.One)
	require.NoError(t, err)
	require.True(t, v.IsZero())
}

func TestLocalWriteShadowsFork(t *testing.T) {
	ctrl := gomock.NewController(t)
	fork := mocks.NewMockForkReader(ctrl)
	store := openStore(t, worldstate.Options{Fork: fork})

	addr := new(felt.Felt).SetUint64(0xa)
	key := new(felt.Felt).SetUint64(0xb)
	// SetStorage reads the previous value once to log it for revert; that
	// first read may consult the fork. The read-after-write must not.
	fork.EXPECT().StorageAt(addr, key).Return(nil, false, nil)
	require.NoError(t, store.SetStorage(addr, key, new(felt.Felt).SetUint64(42), 0))
	v, err := store.GetStorageAt(addr, key)
	require.NoError(t, err)
	require.True(t, v.Equal(new(felt.Felt).SetUint64(42)))
}
