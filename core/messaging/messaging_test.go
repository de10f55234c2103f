package messaging_test

import (
	"testing"

	"github.com/NethermindEth/starknet-devnet-go/core"
	"github.com/NethermindEth/starknet-devnet-go/core/felt"
	"github.com/NethermindEth/starknet-devnet-go/core/messaging"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var l1Addr = common.HexToAddress("0x8464135c8F25Da09e49BC8782676a84730C318bC")

func TestMessageToL2HashIsStable(t *testing.T) {
	msg := &messaging.MessageToL2{
		L2ContractAddress:  new(felt.Felt).SetUint64(0x1),
		EntryPointSelector: new(felt.Felt).SetUint64(0x2),
		L1ContractAddress:  l1Addr,
		Payload:            []*felt.Felt{&felt.One, new(felt.Felt).SetUint64(2)},
		PaidFeeOnL1:        &felt.One,
		Nonce:              &felt.Zero,
	}
	require.Equal(t, msg.Hash(), msg.Hash())

	changed := *msg
	changed.Nonce = &felt.One
	require.NotEqual(t, msg.Hash(), changed.Hash())
}

func TestToL1HandlerPrependsSender(t *testing.T) {
	msg := &messaging.MessageToL2{
		L2ContractAddress:  new(felt.Felt).SetUint64(0x1),
		EntryPointSelector: new(felt.Felt).SetUint64(0x2),
		L1ContractAddress:  l1Addr,
		Payload:            []*felt.Felt{new(felt.Felt).SetUint64(0xaa)},
		PaidFeeOnL1:        &felt.One,
		Nonce:              &felt.Zero,
	}
	handler := msg.ToL1Handler()
	require.Len(t, handler.CallData, 2)
	require.True(t, handler.CallData[0].Equal(new(felt.Felt).SetBytes(l1Addr.Bytes())))
	require.True(t, handler.CallData[1].Equal(new(felt.Felt).SetUint64(0xaa)))
	require.Equal(t, uint64(0), handler.Version)
}

func TestConsumeRequiresLoadedContract(t *testing.T) {
	b := messaging.NewBroker()
	_, err := b.Consume(&messaging.MessageToL1{FromAddress: &felt.One, ToAddress: l1Addr})
	require.ErrorIs(t, err, messaging.ErrNoL1Contract)
}

func TestCollectThenConsume(t *testing.T) {
	b := messaging.NewBroker()
	b.LoadL1Contract(l1Addr)

	var to [20]byte
	copy(to[:], l1Addr.Bytes())
	sent := b.CollectSent([]core.L2ToL1Message{
		{From: new(felt.Felt).SetUint64(0x10), ToL1: to, Payload: []*felt.Felt{&felt.One}},
	})
	require.Len(t, sent, 1)

	msg := &messaging.MessageToL1{
		FromAddress: new(felt.Felt).SetUint64(0x10),
		ToAddress:   l1Addr,
		Payload:     []*felt.Felt{&felt.One},
	}
	hash, err := b.Consume(msg)
	require.NoError(t, err)
	require.Equal(t, msg.Hash(), hash)

	_, err = b.Consume(msg)
	require.ErrorIs(t, err, messaging.ErrMessageNotFound, "a message consumes exactly once")
}

func TestDuplicateSendsConsumeTwice(t *testing.T) {
	b := messaging.NewBroker()
	b.LoadL1Contract(l1Addr)

	var to [20]byte
	copy(to[:], l1Addr.Bytes())
	outMsg := core.L2ToL1Message{From: &felt.One, ToL1: to, Payload: nil}
	b.CollectSent([]core.L2ToL1Message{outMsg, outMsg})

	msg := &messaging.MessageToL1{FromAddress: &felt.One, ToAddress: l1Addr}
	_, err := b.Consume(msg)
	require.NoError(t, err)
	_, err = b.Consume(msg)
	require.NoError(t, err)
	_, err = b.Consume(msg)
	require.ErrorIs(t, err, messaging.ErrMessageNotFound)
}

func TestNextNonceMonotonic(t *testing.T) {
	b := messaging.NewBroker()
	require.True(t, b.NextNonce().IsZero())
	require.True(t, b.NextNonce().Equal(&felt.One))
}

func TestResetClearsState(t *testing.T) {
	b := messaging.NewBroker()
	b.LoadL1Contract(l1Addr)
	b.NextNonce()
	b.Reset()

	_, loaded := b.L1Contract()
	require.False(t, loaded)
	require.True(t, b.NextNonce().IsZero())
}
