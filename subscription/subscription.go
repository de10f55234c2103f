// Package subscription is the devnet's Subscription Bus: it fans out
// NewHeads/TxStatus/Events/Reorg notifications to WebSocket sockets after
// each block commit. The Bus holds only a non-owning handle per socket,
// invalidated on a failed send rather than polled, so a closed socket's
// subscriptions are dropped lazily.
package subscription

import (
	"sync"
	"sync/atomic"

	"github.com/NethermindEth/starknet-devnet-go/core/block"
	"github.com/NethermindEth/starknet-devnet-go/core/felt"
	"github.com/google/uuid"
)

// Kind is the subscription category a socket can register for.
type Kind int

const (
	KindNewHeads Kind = iota
	KindTransactionStatus
	KindEvents
	KindPendingTransactions
	KindReorg
)

// EventFilter narrows a KindEvents subscription by emitting address
// and/or positional key sets.
type EventFilter struct {
	Address *felt.Felt
	Keys    [][]*felt.Felt
}

// Subscription is one socket's registered interest.
type Subscription struct {
	ID      uint64
	Kind    Kind
	TxHash  *felt.Felt  // KindTransactionStatus only
	Filter  EventFilter // KindEvents only
	BlockID *uint64     // optional starting block bound
}

// Notification is a JSON-RPC notification payload the transport layer
// serializes as {"jsonrpc":"2.0","method":"starknet_subscription<Suffix>",
// "params":{"subscription_id":id,"result":Result}}.
type Notification struct {
	SubscriptionID uint64
	Method         string
	Result         any
}

// Sender is how the Bus delivers a Notification to one socket's transport
// goroutine; it returns false on a closed/backed-up socket, at which point
// the Bus drops that subscription without ever blocking the producer.
type Sender func(Notification) bool

// socketHandle is the Bus's non-owning reference to one connected socket:
// its send function plus its currently registered subscriptions.
type socketHandle struct {
	mu   sync.Mutex
	send Sender
	subs map[uint64]*Subscription
}

// Bus fans out notifications to every registered socket. It is safe for
// concurrent use: Register/Unregister/Close are called from socket
// goroutines, Publish* from the block producer's single mutator goroutine.
type Bus struct {
	mu        sync.RWMutex
	sockets   map[string]*socketHandle
	nextSubID uint64
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{sockets: map[string]*socketHandle{}}
}

// Connect registers a new socket (identified by a fresh SocketID) with the
// given Sender, returning the socket id to pass to Register/Disconnect.
func (b *Bus) Connect(send Sender) string {
	id := uuid.NewString()
	b.mu.Lock()
	b.sockets[id] = &socketHandle{send: send, subs: map[uint64]*Subscription{}}
	b.mu.Unlock()
	return id
}

// Disconnect drops every subscription owned by socketID; called when the
// transport detects the connection closed, since closing a WebSocket
// cancels all of its subscriptions.
func (b *Bus) Disconnect(socketID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sockets, socketID)
}

// Register adds sub to socketID's interests and assigns it a subscription
// id scoped to that socket.
func (b *Bus) Register(socketID string, sub Subscription) (uint64, bool) {
	b.mu.RLock()
	sock, ok := b.sockets[socketID]
	b.mu.RUnlock()
	if !ok {
		return 0, false
	}
	id := atomic.AddUint64(&b.nextSubID, 1)
	sub.ID = id
	sock.mu.Lock()
	sock.subs[id] = &sub
	sock.mu.Unlock()
	return id, true
}

// Unregister removes one subscription from socketID (starknet_unsubscribe).
func (b *Bus) Unregister(socketID string, subID uint64) bool {
	b.mu.RLock()
	sock, ok := b.sockets[socketID]
	b.mu.RUnlock()
	if !ok {
		return false
	}
	sock.mu.Lock()
	defer sock.mu.Unlock()
	if _, ok := sock.subs[subID]; !ok {
		return false
	}
	delete(sock.subs, subID)
	return true
}

// snapshotSockets returns a stable slice of socket handles to iterate
// without holding b.mu during delivery (Sender may block briefly).
func (b *Bus) snapshotSockets() []*socketHandle {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*socketHandle, 0, len(b.sockets))
	for _, s := range b.sockets {
		out = append(out, s)
	}
	return out
}

// deliver walks every socket's current subscriptions, calling match to
// decide whether each one cares about this event, and sends a
// Notification for every match. A false return from Sender drops that one
// subscription (not the whole socket).
func (b *Bus) deliver(kind Kind, method string, match func(*Subscription) (any, bool)) {
	for _, sock := range b.snapshotSockets() {
		sock.mu.Lock()
		for id, sub := range sock.subs {
			if sub.Kind != kind {
				continue
			}
			result, ok := match(sub)
			if !ok {
				continue
			}
			if !sock.send(Notification{SubscriptionID: id, Method: method, Result: result}) {
				delete(sock.subs, id)
			}
		}
		sock.mu.Unlock()
	}
}

// PublishNewHead notifies every NewHeads subscriber exactly once per
// committed block, in number order.
func (b *Bus) PublishNewHead(blk *block.Block) {
	b.deliver(KindNewHeads, "starknet_subscriptionNewHeads", func(*Subscription) (any, bool) {
		return blk, true
	})
}

// TxStatusUpdate is the payload delivered to a KindTransactionStatus
// subscriber.
type TxStatusUpdate struct {
	TransactionHash *felt.Felt
	Status          string
}

// PublishTxStatus notifies every subscriber watching upd.TransactionHash.
func (b *Bus) PublishTxStatus(upd TxStatusUpdate) {
	b.deliver(KindTransactionStatus, "starknet_subscriptionTransactionStatus", func(sub *Subscription) (any, bool) {
		if sub.TxHash == nil || !sub.TxHash.Equal(upd.TransactionHash) {
			return nil, false
		}
		return upd, true
	})
}

// EventMatch is one emitted event, tagged with its origin for filter
// matching.
type EventMatch struct {
	From *felt.Felt
	Keys []*felt.Felt
	Data []*felt.Felt
}

// PublishEvents notifies every KindEvents subscriber whose filter matches
// at least one of events.
func (b *Bus) PublishEvents(events []EventMatch) {
	for _, ev := range events {
		ev := ev
		b.deliver(KindEvents, "starknet_subscriptionEvents", func(sub *Subscription) (any, bool) {
			if sub.Filter.Address != nil && !sub.Filter.Address.Equal(ev.From) {
				return nil, false
			}
			if !keysMatch(sub.Filter.Keys, ev.Keys) {
				return nil, false
			}
			return ev, true
		})
	}
}

// keysMatch implements the Starknet event-key filter convention: filter[i]
// is a set of acceptable values for event key i; an empty inner set means
// "any value accepted at this position". A filter shorter than the event's
// key list only constrains its own length.
func keysMatch(filter [][]*felt.Felt, keys []*felt.Felt) bool {
	if len(filter) > len(keys) {
		return false
	}
	for i, accepted := range filter {
		if len(accepted) == 0 {
			continue
		}
		found := false
		for _, a := range accepted {
			if a.Equal(keys[i]) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// ReorgEvent is the payload published on abort_blocks: all aborted block
// hashes, descending/newest-first.
type ReorgEvent struct {
	AbortedBlockHashes []*felt.Felt
}

// PublishReorg notifies every KindReorg subscriber, plus every NewHeads
// subscriber: a head watcher must learn its view of the chain was cut
// back even if it never registered a dedicated reorg interest.
func (b *Bus) PublishReorg(ev ReorgEvent) {
	b.deliver(KindReorg, "starknet_subscriptionReorg", func(*Subscription) (any, bool) {
		return ev, true
	})
	b.deliver(KindNewHeads, "starknet_subscriptionReorg", func(*Subscription) (any, bool) {
		return ev, true
	})
}

// PublishPendingTransaction notifies KindPendingTransactions subscribers as
// soon as a transaction is accepted into the pending block, ahead of the
// block-sealed NewHeads/TxStatus notifications.
func (b *Bus) PublishPendingTransaction(hash *felt.Felt) {
	b.deliver(KindPendingTransactions, "starknet_subscriptionPendingTransactions", func(*Subscription) (any, bool) {
		return hash, true
	})
}
