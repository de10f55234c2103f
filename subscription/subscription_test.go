package subscription_test

import (
	"testing"

	"github.com/NethermindEth/starknet-devnet-go/core/block"
	"github.com/NethermindEth/starknet-devnet-go/core/felt"
	"github.com/NethermindEth/starknet-devnet-go/subscription"
	"github.com/stretchr/testify/require"
)

// collector records every notification a fake socket receives.
type collector struct {
	got  []subscription.Notification
	fail bool
}

func (c *collector) send(n subscription.Notification) bool {
	if c.fail {
		return false
	}
	c.got = append(c.got, n)
	return true
}

func blk(n uint64) *block.Block {
	return &block.Block{Number: n, Hash: new(felt.Felt).SetUint64(0xb10c + n)}
}

func TestNewHeadsDeliveredOncePerBlockInOrder(t *testing.T) {
	bus := subscription.New()
	c := &collector{}
	sock := bus.Connect(c.send)
	_, ok := bus.Register(sock, subscription.Subscription{Kind: subscription.KindNewHeads})
	require.True(t, ok)

	bus.PublishNewHead(blk(1))
	bus.PublishNewHead(blk(2))
	bus.PublishNewHead(blk(3))

	require.Len(t, c.got, 3)
	for i, n := range c.got {
		require.Equal(t, "starknet_subscriptionNewHeads", n.Method)
		require.Equal(t, uint64(i+1), n.Result.(*block.Block).Number)
	}
}

func TestTxStatusOnlyMatchesItsHash(t *testing.T) {
	bus := subscription.New()
	c := &collector{}
	sock := bus.Connect(c.send)
	watched := new(felt.Felt).SetUint64(0xabc)
	_, ok := bus.Register(sock, subscription.Subscription{Kind: subscription.KindTransactionStatus, TxHash: watched})
	require.True(t, ok)

	bus.PublishTxStatus(subscription.TxStatusUpdate{TransactionHash: new(felt.Felt).SetUint64(0xdef), Status: "ACCEPTED_ON_L2"})
	require.Empty(t, c.got)

	bus.PublishTxStatus(subscription.TxStatusUpdate{TransactionHash: watched, Status: "ACCEPTED_ON_L2"})
	require.Len(t, c.got, 1)
}

func TestEventFilterByAddressAndKeys(t *testing.T) {
	bus := subscription.New()
	c := &collector{}
	sock := bus.Connect(c.send)
	from := new(felt.Felt).SetUint64(0x77)
	key0 := new(felt.Felt).SetUint64(0x111)
	_, ok := bus.Register(sock, subscription.Subscription{
		Kind:   subscription.KindEvents,
		Filter: subscription.EventFilter{Address: from, Keys: [][]*felt.Felt{{key0}}},
	})
	require.True(t, ok)

	bus.PublishEvents([]subscription.EventMatch{
		{From: new(felt.Felt).SetUint64(0x88), Keys: []*felt.Felt{key0}},        // wrong address
		{From: from, Keys: []*felt.Felt{new(felt.Felt).SetUint64(0x222)}},       // wrong key
		{From: from, Keys: []*felt.Felt{key0, new(felt.Felt).SetUint64(0x333)}}, // match; extra keys allowed
	})

	require.Len(t, c.got, 1)
}

func TestFailedSendDropsOnlyThatSubscription(t *testing.T) {
	bus := subscription.New()
	bad := &collector{fail: true}
	good := &collector{}
	badSock := bus.Connect(bad.send)
	goodSock := bus.Connect(good.send)
	_, ok := bus.Register(badSock, subscription.Subscription{Kind: subscription.KindNewHeads})
	require.True(t, ok)
	_, ok = bus.Register(goodSock, subscription.Subscription{Kind: subscription.KindNewHeads})
	require.True(t, ok)

	bus.PublishNewHead(blk(1))
	require.Empty(t, bad.got)
	require.Len(t, good.got, 1)

	// The failed subscription is gone: even a now-healthy socket gets
	// nothing without re-registering.
	bad.fail = false
	bus.PublishNewHead(blk(2))
	require.Empty(t, bad.got)
	require.Len(t, good.got, 2)
}

func TestReorgReachesNewHeadsSubscribers(t *testing.T) {
	bus := subscription.New()
	c := &collector{}
	sock := bus.Connect(c.send)
	_, ok := bus.Register(sock, subscription.Subscription{Kind: subscription.KindNewHeads})
	require.True(t, ok)

	aborted := []*felt.Felt{new(felt.Felt).SetUint64(2), new(felt.Felt).SetUint64(1)}
	bus.PublishReorg(subscription.ReorgEvent{AbortedBlockHashes: aborted})

	require.Len(t, c.got, 1)
	require.Equal(t, "starknet_subscriptionReorg", c.got[0].Method)
	require.Equal(t, aborted, c.got[0].Result.(subscription.ReorgEvent).AbortedBlockHashes)
}

func TestDisconnectCancelsSubscriptions(t *testing.T) {
	bus := subscription.New()
	c := &collector{}
	sock := bus.Connect(c.send)
	_, ok := bus.Register(sock, subscription.Subscription{Kind: subscription.KindNewHeads})
	require.True(t, ok)

	bus.Disconnect(sock)
	bus.PublishNewHead(blk(1))
	require.Empty(t, c.got)

	_, ok = bus.Register(sock, subscription.Subscription{Kind: subscription.KindNewHeads})
	require.False(t, ok, "a disconnected socket cannot register")
}

func TestUnregister(t *testing.T) {
	bus := subscription.New()
	c := &collector{}
	sock := bus.Connect(c.send)
	id, ok := bus.Register(sock, subscription.Subscription{Kind: subscription.KindNewHeads})
	require.True(t, ok)

	require.True(t, bus.Unregister(sock, id))
	require.False(t, bus.Unregister(sock, id), "double unsubscribe reports failure")

	bus.PublishNewHead(blk(1))
	require.Empty(t, c.got)
}
