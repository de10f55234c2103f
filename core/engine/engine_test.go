package engine_test

import (
	"testing"

	"github.com/NethermindEth/starknet-devnet-go/core"
	"github.com/NethermindEth/starknet-devnet-go/core/classregistry"
	"github.com/NethermindEth/starknet-devnet-go/core/engine"
	"github.com/NethermindEth/starknet-devnet-go/core/felt"
	"github.com/NethermindEth/starknet-devnet-go/core/vm"
	"github.com/NethermindEth/starknet-devnet-go/core/worldstate"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) (*engine.Engine, *felt.Felt) {
	t.Helper()
	store, err := worldstate.Open(worldstate.Options{Archive: worldstate.ArchiveFull})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	interp := vm.New(store)
	reg := classregistry.New()
	chainID := core.ChainTestnet.Felt()
	feeToken, _ := felt.FromHex("0xfee")
	return engine.New(store, interp, reg, chainID, feeToken), feeToken
}

func TestInvokeChargesFeeAndBumpsNonce(t *testing.T) {
	e, feeToken := newTestEngine(t)
	sender, _ := felt.FromHex("0x1")

	_, err := e.Interp.Credit(feeToken, sender, new(felt.Felt).SetUint64(1000), 0)
	require.NoError(t, err)

	inv := &core.InvokeTransaction{
		Version:       1,
		SenderAddress: sender,
		CallData:      []*felt.Felt{},
		MaxFee:        new(felt.Felt).SetUint64(10),
		Nonce:         &felt.Zero,
	}
	inv.TransactionHash, err = core.ComputeHash(&core.Transaction{Invoke: inv}, e.ChainID)
	require.NoError(t, err)

	out, err := e.AddTransaction(&core.Transaction{Invoke: inv}, 0, engine.SimulationFlags{})
	require.NoError(t, err)
	require.Equal(t, engine.StatusCommitted, out.Status)

	nonce, err := e.Store.GetNonceAt(sender)
	require.NoError(t, err)
	require.True(t, nonce.Equal(&felt.One))

	balance, err := e.Interp.Execute(vm.Call{
		ContractAddress: feeToken,
		Selector:        vm.SelectorHash("balanceOf"),
		Calldata:        []*felt.Felt{sender},
	})
	require.NoError(t, err)
	require.True(t, balance.RetData[0].Equal(new(felt.Felt).SetUint64(990)))
}

func TestRejectsInsufficientFeeBalance(t *testing.T) {
	e, _ := newTestEngine(t)
	sender, _ := felt.FromHex("0x2")

	inv := &core.InvokeTransaction{
		Version:       1,
		SenderAddress: sender,
		MaxFee:        new(felt.Felt).SetUint64(10),
		Nonce:         &felt.Zero,
	}
	var err error
	inv.TransactionHash, err = core.ComputeHash(&core.Transaction{Invoke: inv}, e.ChainID)
	require.NoError(t, err)

	_, err = e.AddTransaction(&core.Transaction{Invoke: inv}, 0, engine.SimulationFlags{})
	require.Error(t, err)
}

func TestImpersonationSkipsHashVerification(t *testing.T) {
	e, _ := newTestEngine(t)
	sender, _ := felt.FromHex("0x3")
	e.Cheats.ImpersonateAccount(sender)

	inv := &core.InvokeTransaction{
		Version:         1,
		SenderAddress:   sender,
		MaxFee:          &felt.Zero,
		Nonce:           &felt.Zero,
		TransactionHash: new(felt.Felt).SetUint64(0xdead),
	}
	_, err := e.AddTransaction(&core.Transaction{Invoke: inv}, 0, engine.SimulationFlags{SkipFeeCharge: true})
	require.NoError(t, err)
}
