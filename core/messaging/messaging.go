// Package messaging implements the devnet's simulated L1<->L2 message
// plumbing behind the postman endpoints: an L1 messaging-contract handle,
// an inbox of L1->L2 messages awaiting execution as L1_HANDLER
// transactions, and an outbox of L2->L1 messages collected from receipts
// and consumable by hash. L1 addresses use go-ethereum's common.Address,
// and message hashes follow the keccak-based convention of the upstream
// messaging types (MsgToL2/MsgToL1 hashing in
// starknet-devnet-types/src/rpc/messaging.rs).
package messaging

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/NethermindEth/starknet-devnet-go/core"
	"github.com/NethermindEth/starknet-devnet-go/core/felt"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// ErrNoL1Contract is returned by operations that need a loaded messaging
// contract before any postman/load call supplied one.
var ErrNoL1Contract = errors.New("no L1 messaging contract loaded")

// ErrMessageNotFound is returned by Consume when the given L2->L1 message
// was never sent (or was already consumed).
var ErrMessageNotFound = errors.New("message not found in the L2-to-L1 outbox")

// MessageToL2 mirrors the postman send_message_to_l2 body: an L1-origin
// message destined for an L2 contract's l1_handler entry point.
type MessageToL2 struct {
	L2ContractAddress  *felt.Felt     `json:"l2_contract_address"`
	EntryPointSelector *felt.Felt     `json:"entry_point_selector"`
	L1ContractAddress  common.Address `json:"l1_contract_address"`
	Payload            []*felt.Felt   `json:"payload"`
	PaidFeeOnL1        *felt.Felt     `json:"paid_fee_on_l1"`
	Nonce              *felt.Felt     `json:"nonce"`
}

// Hash computes the message's keccak-based identity, matching MsgToL2's
// field order: from, to, nonce, selector, payload-length, payload.
func (m *MessageToL2) Hash() common.Hash {
	buf := make([]byte, 0, 32*(6+len(m.Payload)))
	buf = append(buf, common.LeftPadBytes(m.L1ContractAddress.Bytes(), 32)...)
	buf = append(buf, m.L2ContractAddress.Marshal()...)
	buf = append(buf, m.Nonce.Marshal()...)
	buf = append(buf, m.EntryPointSelector.Marshal()...)
	var lenBytes [32]byte
	binary.BigEndian.PutUint64(lenBytes[24:], uint64(len(m.Payload)))
	buf = append(buf, lenBytes[:]...)
	for _, p := range m.Payload {
		buf = append(buf, p.Marshal()...)
	}
	return common.BytesToHash(ethcrypto.Keccak256(buf))
}

// ToL1Handler translates the message into the L1_HANDLER transaction the
// engine executes for it: calldata is the L1 sender address followed by
// the payload, per the Starknet l1_handler calling convention.
func (m *MessageToL2) ToL1Handler() *core.L1HandlerTransaction {
	calldata := make([]*felt.Felt, 0, 1+len(m.Payload))
	calldata = append(calldata, new(felt.Felt).SetBytes(m.L1ContractAddress.Bytes()))
	calldata = append(calldata, m.Payload...)
	return &core.L1HandlerTransaction{
		Version:            0,
		ContractAddress:    m.L2ContractAddress,
		EntryPointSelector: m.EntryPointSelector,
		CallData:           calldata,
		Nonce:              m.Nonce,
		PaidFeeOnL1:        m.PaidFeeOnL1,
	}
}

// MessageToL1 mirrors the postman consume_message_from_l2 body: an
// L2-origin message addressed to an L1 contract.
type MessageToL1 struct {
	FromAddress *felt.Felt     `json:"from_address"`
	ToAddress   common.Address `json:"to_address"`
	Payload     []*felt.Felt   `json:"payload"`
}

// Hash matches MsgToL1's convention: from, to, payload-length, payload.
func (m *MessageToL1) Hash() common.Hash {
	buf := make([]byte, 0, 32*(3+len(m.Payload)))
	buf = append(buf, m.FromAddress.Marshal()...)
	buf = append(buf, common.LeftPadBytes(m.ToAddress.Bytes(), 32)...)
	var lenBytes [32]byte
	binary.BigEndian.PutUint64(lenBytes[24:], uint64(len(m.Payload)))
	buf = append(buf, lenBytes[:]...)
	for _, p := range m.Payload {
		buf = append(buf, p.Marshal()...)
	}
	return common.BytesToHash(ethcrypto.Keccak256(buf))
}

// Broker owns the postman state: the loaded L1 contract address, a nonce
// counter for locally originated L1->L2 messages, and the L2->L1 outbox.
// It is safe for concurrent use by the RPC and HTTP surfaces.
type Broker struct {
	mu sync.Mutex

	l1Contract *common.Address
	nextNonce  uint64

	// outbox maps an L2->L1 message hash to its remaining unconsumed send
	// count: the same message sent twice must be consumable twice.
	outbox map[common.Hash]int
}

func NewBroker() *Broker {
	return &Broker{outbox: map[common.Hash]int{}}
}

// LoadL1Contract records the messaging contract address flush and
// consume operate against. The devnet does not talk to a real L1 node;
// loading is bookkeeping that gates the rest of the surface.
func (b *Broker) LoadL1Contract(address common.Address) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.l1Contract = &address
}

// L1Contract returns the loaded contract address, if any.
func (b *Broker) L1Contract() (common.Address, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.l1Contract == nil {
		return common.Address{}, false
	}
	return *b.l1Contract, true
}

// NextNonce allocates a nonce for a send_message_to_l2 call that did not
// supply one, keeping locally minted L1->L2 messages distinct.
func (b *Broker) NextNonce() *felt.Felt {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.nextNonce
	b.nextNonce++
	return new(felt.Felt).SetUint64(n)
}

// CollectSent records every L2->L1 message a committed transaction's
// receipt carries into the outbox, called by the postman flush as it walks
// the receipts of every committed block (the flush step's gathering half).
func (b *Broker) CollectSent(messages []core.L2ToL1Message) []MessageToL1 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]MessageToL1, 0, len(messages))
	for _, msg := range messages {
		m := MessageToL1{
			FromAddress: msg.From,
			ToAddress:   common.BytesToAddress(msg.ToL1[:]),
			Payload:     msg.Payload,
		}
		b.outbox[m.Hash()]++
		out = append(out, m)
	}
	return out
}

// Consume removes one instance of msg from the outbox and returns its
// hash, or ErrMessageNotFound if it was never sent / already consumed.
func (b *Broker) Consume(msg *MessageToL1) (common.Hash, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.l1Contract == nil {
		return common.Hash{}, ErrNoL1Contract
	}
	h := msg.Hash()
	if b.outbox[h] == 0 {
		return common.Hash{}, fmt.Errorf("%w: %s", ErrMessageNotFound, h)
	}
	b.outbox[h]--
	if b.outbox[h] == 0 {
		delete(b.outbox, h)
	}
	return h, nil
}

// Reset clears every queue and the loaded contract, the messaging half of
// devnet_restart.
func (b *Broker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.l1Contract = nil
	b.nextNonce = 0
	b.outbox = map[common.Hash]int{}
}
