package rpc_test

import (
	"encoding/json"
	"math/big"
	"path/filepath"
	"testing"

	devnetrpc "github.com/NethermindEth/starknet-devnet-go/api/rpc"
	"github.com/NethermindEth/starknet-devnet-go/core"
	"github.com/NethermindEth/starknet-devnet-go/core/block"
	"github.com/NethermindEth/starknet-devnet-go/core/classregistry"
	"github.com/NethermindEth/starknet-devnet-go/core/dumplog"
	"github.com/NethermindEth/starknet-devnet-go/core/engine"
	"github.com/NethermindEth/starknet-devnet-go/core/felt"
	"github.com/NethermindEth/starknet-devnet-go/core/messaging"
	"github.com/NethermindEth/starknet-devnet-go/core/predeployed"
	"github.com/NethermindEth/starknet-devnet-go/core/vm"
	"github.com/NethermindEth/starknet-devnet-go/core/worldstate"
	"github.com/NethermindEth/starknet-devnet-go/metrics"
	"github.com/NethermindEth/starknet-devnet-go/subscription"
	"github.com/NethermindEth/starknet-devnet-go/utils"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	devnet *devnetrpc.Devnet
	store  *worldstate.Store
	bus    *subscription.Bus
	log    *dumplog.Log
}

type envOptions struct {
	mode        block.Mode
	archive     worldstate.ArchiveCapacity
	dumpWhen    dumplog.When
	dumpPath    string
	restrictive *devnetrpc.RestrictiveMode
}

func newTestDevnet(t *testing.T, opts envOptions) *testEnv {
	t.Helper()

	store, err := worldstate.Open(worldstate.Options{Archive: opts.archive})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	chainID := core.ChainTestnet
	registry := classregistry.New()
	interp := vm.New(store)

	deployer := predeployed.Deployer{Seed: 42, Count: 3, InitialBalance: big.NewInt(1_000_000), AccountClassHash: new(felt.Felt).SetUint64(0xacc)}
	accounts, err := deployer.Derive()
	require.NoError(t, err)
	feeTokens := predeployed.NewFeeTokens(predeployed.UDCAddress)
	plan := predeployed.Plan{
		FeeTokens:      feeTokens[:],
		UDCAddr:        predeployed.UDCAddress,
		Accounts:       accounts,
		InitialBalance: big.NewInt(1_000_000),
	}
	require.NoError(t, plan.Seed(store, 0))

	eng := engine.New(store, interp, registry, chainID.Felt(), feeTokens[0].Address)

	now := uint64(1_700_000_000)
	producer := block.New(block.Config{
		Mode:             opts.mode,
		Archive:          opts.archive,
		SequencerAddress: predeployed.UDCAddress,
		GasPrices: block.GasPrices{
			L1Gas:     new(felt.Felt).SetUint64(100),
			L1DataGas: new(felt.Felt).SetUint64(100),
			L2Gas:     new(felt.Felt).SetUint64(100),
		},
		ChainID:         chainID.Felt(),
		ProtocolVersion: "0.13.3",
		Now:             func() uint64 { now++; return now },
	})

	bus := subscription.New()
	dumpLog := dumplog.New(opts.dumpWhen, opts.dumpPath)
	restrictive := opts.restrictive
	if restrictive == nil {
		restrictive = devnetrpc.NewRestrictiveMode(false, nil)
	}

	devnet, err := devnetrpc.NewDevnet(devnetrpc.Config{
		ChainID:     chainID,
		Store:       store,
		Engine:      eng,
		Producer:    producer,
		Registry:    registry,
		Predeployed: plan,
		FeeTokens:   feeTokens,
		Broker:      messaging.NewBroker(),
		DumpLog:     dumpLog,
		Bus:         bus,
		Metrics:     metrics.New(),
		Restrictive: restrictive,
		Log:         utils.NewNopLogger(),
	})
	require.NoError(t, err)

	return &testEnv{devnet: devnet, store: store, bus: bus, log: dumpLog}
}

// Scenario 1: mint and read balance.
func TestMintAndReadBalance(t *testing.T) {
	env := newTestDevnet(t, envOptions{mode: block.ModeAutomatic})

	result, rerr := env.devnet.Mint(devnetrpc.MintParams{Address: "0x1", Amount: json.Number("1")})
	require.Nil(t, rerr)
	require.Equal(t, "WEI", result["unit"])
	require.Equal(t, "1", result["new_balance"])
	require.NotEmpty(t, result["tx_hash"])

	balance, rerr := env.devnet.GetAccountBalance(devnetrpc.AccountBalanceParams{Address: "0x1", Unit: "WEI"})
	require.Nil(t, rerr)
	require.Equal(t, "1", balance["amount"])
	require.Equal(t, "WEI", balance["unit"])
}

// Scenario 3: block numbering under blocks-on-demand.
func TestOnDemandBlockNumbering(t *testing.T) {
	env := newTestDevnet(t, envOptions{mode: block.ModeOnDemand})

	before, rerr := env.devnet.BlockNumber()
	require.Nil(t, rerr)

	_, rerr = env.devnet.Mint(devnetrpc.MintParams{Address: "0x1", Amount: json.Number("5")})
	require.Nil(t, rerr)
	_, rerr = env.devnet.Mint(devnetrpc.MintParams{Address: "0x2", Amount: json.Number("7")})
	require.Nil(t, rerr)

	mid, rerr := env.devnet.BlockNumber()
	require.Nil(t, rerr)
	require.Equal(t, before, mid, "no block sealed before create_block")

	_, rerr = env.devnet.CreateBlock()
	require.Nil(t, rerr)

	after, rerr := env.devnet.BlockNumber()
	require.Nil(t, rerr)
	require.Equal(t, before+1, after)

	blk, rerr := env.devnet.GetBlockWithTxHashes(devnetrpc.BlockID{})
	require.Nil(t, rerr)
	require.Len(t, blk.Transactions, 2, "both mints land in the one on-demand block as invoke txs")

	for _, h := range blk.Transactions {
		var p devnetrpc.FeltParam
		require.NoError(t, json.Unmarshal([]byte(`"`+h+`"`), &p))
		tx, rerr := env.devnet.GetTransactionByHash(p)
		require.Nil(t, rerr)
		require.Equal(t, "INVOKE", tx.Type)
	}
}

// Scenario 4: storage-proof rejection, with block-not-found precedence.
func TestStorageProofRejection(t *testing.T) {
	env := newTestDevnet(t, envOptions{mode: block.ModeAutomatic})

	_, rerr := env.devnet.GetStorageProof(devnetrpc.BlockID{})
	require.NotNil(t, rerr)
	require.Equal(t, devnetrpc.CodeStorageProofNotSupported, rerr.Code)
	require.Equal(t, "Devnet doesn't support storage proofs", rerr.Message)

	_, rerr = env.devnet.GetStorageProof(devnetrpc.BlockID{HasNumber: true, Number: 9999})
	require.NotNil(t, rerr)
	require.Equal(t, devnetrpc.CodeBlockNotFound, rerr.Code)
	require.Equal(t, "Block not found", rerr.Message)
}

// Scenario 5: compiled-class-hash mismatch.
func TestDeclareRejectsWrongCompiledClassHash(t *testing.T) {
	env := newTestDevnet(t, envOptions{mode: block.ModeAutomatic})

	_, rerr := env.devnet.AddDeclareTransaction(devnetrpc.DeclareParams{
		Version:       "0x2",
		SenderAddress: "0x1",
		ContractClass: devnetrpc.Cairo1ClassParam{
			SierraProgram:   []string{"0x1", "0x2", "0x3"},
			Abi:             "[]",
			ContractVersion: "0.1.0",
		},
		CompiledClassHash: "0x1",
		Nonce:             "0x0",
	})
	require.NotNil(t, rerr)
	require.Equal(t, devnetrpc.CodeCompiledClassHashMismatch, rerr.Code)
}

// Scenario 6: abort emits a reorg notification and aborted state reads fail.
func TestAbortEmitsReorgAndInvalidatesState(t *testing.T) {
	env := newTestDevnet(t, envOptions{mode: block.ModeAutomatic, archive: worldstate.ArchiveFull})

	var notifications []subscription.Notification
	sock := env.bus.Connect(func(n subscription.Notification) bool {
		notifications = append(notifications, n)
		return true
	})
	_, ok := env.bus.Register(sock, subscription.Subscription{Kind: subscription.KindNewHeads})
	require.True(t, ok)

	_, rerr := env.devnet.Mint(devnetrpc.MintParams{Address: "0x1", Amount: json.Number("1")})
	require.Nil(t, rerr)
	_, rerr = env.devnet.Mint(devnetrpc.MintParams{Address: "0x1", Amount: json.Number("1")})
	require.Nil(t, rerr)

	headsBefore := 0
	for _, n := range notifications {
		if n.Method == "starknet_subscriptionNewHeads" {
			headsBefore++
		}
	}
	require.Equal(t, 2, headsBefore, "exactly one NewHeads per sealed block")

	head, rerr := env.devnet.BlockNumber()
	require.Nil(t, rerr)

	start := head
	result, rerr := env.devnet.AbortBlocks(devnetrpc.AbortBlocksParams{StartingBlockNumber: &start})
	require.Nil(t, rerr)
	require.Len(t, result["aborted"].([]string), 1)

	var reorgs int
	for _, n := range notifications {
		if n.Method == "starknet_subscriptionReorg" {
			reorgs++
			ev := n.Result.(subscription.ReorgEvent)
			require.Len(t, ev.AbortedBlockHashes, 1)
		}
	}
	require.Equal(t, 1, reorgs)

	// The aborted block is no longer readable by number.
	_, rerr = env.devnet.GetBlockWithTxHashes(devnetrpc.BlockID{HasNumber: true, Number: head})
	require.NotNil(t, rerr)
	require.Equal(t, devnetrpc.CodeBlockNotFound, rerr.Code)
}

func TestRestrictiveModeForbidsDefaultSet(t *testing.T) {
	env := newTestDevnet(t, envOptions{
		mode:        block.ModeAutomatic,
		restrictive: devnetrpc.NewRestrictiveMode(true, nil),
	})

	_, rerr := env.devnet.Mint(devnetrpc.MintParams{Address: "0x1", Amount: json.Number("1")})
	require.NotNil(t, rerr)
	require.Equal(t, devnetrpc.CodeMethodForbidden, rerr.Code)

	_, rerr = env.devnet.Restart()
	require.NotNil(t, rerr)
	require.Equal(t, devnetrpc.CodeMethodForbidden, rerr.Code)

	// Reads stay open.
	_, rerr = env.devnet.BlockNumber()
	require.Nil(t, rerr)
}

func TestRestrictiveModeExplicitList(t *testing.T) {
	env := newTestDevnet(t, envOptions{
		mode:        block.ModeAutomatic,
		restrictive: devnetrpc.NewRestrictiveMode(true, []string{"devnet_createBlock"}),
	})

	_, rerr := env.devnet.CreateBlock()
	require.NotNil(t, rerr)
	require.Equal(t, devnetrpc.CodeMethodForbidden, rerr.Code)

	// Methods outside the explicit list are allowed, including defaults.
	_, rerr = env.devnet.Mint(devnetrpc.MintParams{Address: "0x1", Amount: json.Number("1")})
	require.Nil(t, rerr)
}

func TestDumpThenLoadReproducesState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dump.json")
	env := newTestDevnet(t, envOptions{mode: block.ModeAutomatic, dumpWhen: dumplog.OnExit, dumpPath: path})

	_, rerr := env.devnet.Mint(devnetrpc.MintParams{Address: "0x1", Amount: json.Number("123")})
	require.Nil(t, rerr)
	_, rerr = env.devnet.Mint(devnetrpc.MintParams{Address: "0x1", Amount: json.Number("1")})
	require.Nil(t, rerr)

	before, rerr := env.devnet.GetAccountBalance(devnetrpc.AccountBalanceParams{Address: "0x1"})
	require.Nil(t, rerr)

	_, rerr = env.devnet.Dump(devnetrpc.DumpParams{Path: path})
	require.Nil(t, rerr)

	loadResult, rerr := env.devnet.Load(devnetrpc.LoadParams{Path: path})
	require.Nil(t, rerr)
	require.Equal(t, 2, loadResult["events_replayed"])

	after, rerr := env.devnet.GetAccountBalance(devnetrpc.AccountBalanceParams{Address: "0x1"})
	require.Nil(t, rerr)
	require.Equal(t, before["amount"], after["amount"], "public reads indistinguishable after load")
}

func TestNonceTracksAcceptedTransactions(t *testing.T) {
	env := newTestDevnet(t, envOptions{mode: block.ModeAutomatic})

	sender := new(felt.Felt).SetUint64(0x100)

	// Fund the sender so fee charges succeed, and impersonate it so the
	// engine skips signature-hash verification for these bare invokes.
	_, rerr := env.devnet.Mint(devnetrpc.MintParams{Address: sender.Text(felt.Base16), Amount: json.Number("1000000")})
	require.Nil(t, rerr)
	_, rerr = env.devnet.ImpersonateAccount(devnetrpc.ImpersonateParams{AccountAddress: sender.Text(felt.Base16)})
	require.Nil(t, rerr)

	for i := uint64(0); i < 3; i++ {
		inv := devnetrpc.InvokeParams{
			Version:       "0x1",
			SenderAddress: sender.Text(felt.Base16),
			Nonce:         new(felt.Felt).SetUint64(i).Text(felt.Base16),
			MaxFee:        "0xa",
		}
		_, rerr := env.devnet.AddInvokeTransaction(inv)
		require.Nil(t, rerr)
	}

	nonce, err := env.store.GetNonceAt(sender)
	require.NoError(t, err)
	require.True(t, nonce.Equal(new(felt.Felt).SetUint64(3)), "nonce equals count of accepted txs, got %s", nonce)
}

func TestGetConfigReflectsMode(t *testing.T) {
	env := newTestDevnet(t, envOptions{mode: block.ModeOnDemand})
	cfg, rerr := env.devnet.GetConfig()
	require.Nil(t, rerr)
	require.Equal(t, true, cfg["blocks_on_demand"])
	require.Equal(t, 3, cfg["accounts"])
}

func TestPredeployedAccountsExposed(t *testing.T) {
	env := newTestDevnet(t, envOptions{mode: block.ModeAutomatic})
	accounts, rerr := env.devnet.GetPredeployedAccounts()
	require.Nil(t, rerr)
	require.Len(t, accounts, 3)
	for _, acc := range accounts {
		require.NotEmpty(t, acc["address"])
		require.NotEmpty(t, acc["private_key"])
		require.NotEmpty(t, acc["public_key"])
	}
}
