// Package block is the devnet's Block Producer: it accumulates committed
// transactions into a current pre-confirmed block, seals it on demand or
// per-tx, assigns hashes/timestamps/gas prices, and supports aborting a
// range of blocks back to a prior snapshot. BlockStore/TxStore are arena
// storage keyed by BlockNumber/TxHash.
package block

import (
	"fmt"
	"sync"
	"time"

	"github.com/NethermindEth/starknet-devnet-go/core"
	"github.com/NethermindEth/starknet-devnet-go/core/crypto"
	"github.com/NethermindEth/starknet-devnet-go/core/felt"
	"github.com/NethermindEth/starknet-devnet-go/core/worldstate"
)

// Status is a block's position in the pre-confirmed/accepted/aborted
// lifecycle.
type Status int

const (
	StatusPreConfirmed Status = iota
	StatusAcceptedOnL2
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusAcceptedOnL2:
		return "ACCEPTED_ON_L2"
	case StatusAborted:
		return "ABORTED"
	default:
		return "PRE_CONFIRMED"
	}
}

// GasPrices is the per-block gas-price vector.
type GasPrices struct {
	L1Gas     *felt.Felt
	L1DataGas *felt.Felt
	L2Gas     *felt.Felt
}

func (g GasPrices) clone() GasPrices {
	return GasPrices{L1Gas: g.L1Gas.Clone(), L1DataGas: g.L1DataGas.Clone(), L2Gas: g.L2Gas.Clone()}
}

// StateDiff summarizes what a sealed block actually changed, enough for
// starknet_getStateUpdate without a real Merkle trie underneath it.
type StateDiff struct {
	DeployedContracts []*felt.Felt
	StorageTouched    int
	NoncesUpdated     int
	DeclaredClasses   []*felt.Felt
}

// Block is one sealed (or pending) block. StateRoot is always zero: real
// Merkle/Patricia roots are not computed here.
type Block struct {
	Number           uint64
	Hash             *felt.Felt
	ParentHash       *felt.Felt
	Timestamp        uint64
	SequencerAddress *felt.Felt
	GasPrices        GasPrices
	Status           Status
	Transactions     []*felt.Felt // tx hashes, in commit order
	StateDiff        StateDiff
	StateRoot        *felt.Felt
}

// TxRecord pairs a committed transaction with its receipt and the block it
// landed in, the TxStore's arena element.
type TxRecord struct {
	Transaction *core.Transaction
	Receipt     *core.Receipt
	BlockNumber uint64
}

// Store is the append-only arena for blocks and transactions: BlockStore
// keyed by BlockNumber, TxStore keyed by TxHash, with a reverse TxHash ->
// BlockNumber index breaking the tx <-> block <-> receipt cyclic
// reference.
type Store struct {
	mu        sync.RWMutex
	blocks    map[uint64]*Block
	txs       map[felt.Felt]*TxRecord
	txToBlock map[felt.Felt]uint64
	byNumber  []uint64 // dense, ascending
}

func newStore() *Store {
	return &Store{
		blocks:    map[uint64]*Block{},
		txs:       map[felt.Felt]*TxRecord{},
		txToBlock: map[felt.Felt]uint64{},
	}
}

func (s *Store) put(b *Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[b.Number] = b
	s.byNumber = append(s.byNumber, b.Number)
	for _, h := range b.Transactions {
		s.txToBlock[*h] = b.Number
	}
}

// Block returns the block at number, or false if none exists.
func (s *Store) Block(number uint64) (*Block, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blocks[number]
	return b, ok
}

// Head returns the highest block number currently stored.
func (s *Store) Head() (*Block, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.byNumber) == 0 {
		return nil, false
	}
	return s.blocks[s.byNumber[len(s.byNumber)-1]], true
}

// Transaction looks a tx up by hash, resolving its containing block number
// via the reverse index.
func (s *Store) Transaction(hash *felt.Felt) (*TxRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.txs[*hash]
	return rec, ok
}

func (s *Store) putTx(hash *felt.Felt, rec *TxRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs[*hash] = rec
}

// markAborted flips each listed block to Aborted and collects their
// hashes. Aborted blocks stay resolvable by hash/number while their state
// queries fail, so the Block record is kept and marked rather than
// deleted.
func (s *Store) markAborted(numbers []uint64) []*felt.Felt {
	s.mu.Lock()
	defer s.mu.Unlock()
	var hashes []*felt.Felt
	for _, n := range numbers {
		if b, ok := s.blocks[n]; ok {
			b.Status = StatusAborted
			hashes = append(hashes, b.Hash)
		}
	}
	return hashes
}

// PendingTx is one transaction accumulated into the block currently being
// built, awaiting Seal.
type PendingTx struct {
	Transaction *core.Transaction
	Receipt     *core.Receipt
}

// Mode selects when a block seals.
type Mode int

const (
	ModeAutomatic Mode = iota // seal after every committed tx
	ModeOnDemand              // accumulate until CreateBlock
)

// TimeSource lets tests substitute a fixed clock; defaults to wall time.
type TimeSource func() uint64

// Config configures a Producer.
type Config struct {
	Mode             Mode
	Archive          worldstate.ArchiveCapacity
	SequencerAddress *felt.Felt
	GasPrices        GasPrices
	ChainID          *felt.Felt
	ProtocolVersion  string
	Now              TimeSource
}

// Producer owns block production: the pending block's accumulated
// transactions, the BlockStore/TxStore arena, time/gas-price overrides, and
// per-block world-state snapshots under ArchiveFull.
type Producer struct {
	mu sync.Mutex

	cfg   Config
	store *Store

	pending []PendingTx

	snapshots map[uint64]*worldstate.Snapshot

	timeOverride  *uint64
	timeOffset    int64
	gasOverride   GasPrices
	protocolVer   string
	genesisSealed bool
}

// New creates a Producer with an empty block arena; SeedGenesis then seals
// the empty genesis block at number 0, matching every Starknet devnet's
// convention of starting from a real (if empty) block rather than block -1.
func New(cfg Config) *Producer {
	if cfg.Now == nil {
		cfg.Now = defaultNow
	}
	p := &Producer{
		cfg:         cfg,
		store:       newStore(),
		snapshots:   map[uint64]*worldstate.Snapshot{},
		gasOverride: cfg.GasPrices,
		protocolVer: cfg.ProtocolVersion,
	}
	return p
}

// Store exposes the read-only block/tx arena to RPC handlers.
func (p *Producer) Store() *Store { return p.store }

// PendingNumber returns the block number a transaction submitted right now
// will land in once sealed: head+1, or 0 before genesis is seeded. Engine
// callers use this as the blockNumber argument to AddTransaction so that
// state writes are tagged with their eventual block regardless of whether
// the producer is running in ModeAutomatic or ModeOnDemand.
func (p *Producer) PendingNumber() uint64 {
	if head, ok := p.store.Head(); ok {
		return head.Number + 1
	}
	return 0
}

// Mode reports the producer's current sealing mode.
func (p *Producer) Mode() Mode { return p.cfg.Mode }

// GasPrice returns the current gas-price vector (after any set_gas_price
// overrides), used by devnet_getConfig and block RPCs that need the
// pending block's prices before it is sealed.
func (p *Producer) GasPrice() GasPrices {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gasOverride.clone()
}

// PendingTransactionHashes returns the hashes of transactions accumulated
// into the block currently being built but not yet sealed, for read
// methods that resolve the "pre_confirmed" block tag.
func (p *Producer) PendingTransactionHashes() []*felt.Felt {
	p.mu.Lock()
	defer p.mu.Unlock()
	hashes := make([]*felt.Felt, len(p.pending))
	for i, pt := range p.pending {
		hashes[i] = pt.Transaction.Hash()
	}
	return hashes
}

// SeedGenesis seals an empty block 0 against store, the one mutating call
// made before any transaction is ever accepted.
func (p *Producer) SeedGenesis(store *worldstate.Store) (*Block, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.genesisSealed {
		if b, ok := p.store.Block(0); ok {
			return b, nil
		}
	}
	b, err := p.sealLocked(store, nil)
	if err != nil {
		return nil, err
	}
	p.genesisSealed = true
	return b, nil
}

// Add appends a committed transaction's receipt to the pending block; under
// ModeAutomatic it seals immediately afterward.
func (p *Producer) Add(store *worldstate.Store, tx *core.Transaction, receipt *core.Receipt) (*Block, error) {
	p.mu.Lock()
	p.pending = append(p.pending, PendingTx{Transaction: tx, Receipt: receipt})
	mode := p.cfg.Mode
	p.mu.Unlock()

	if mode == ModeAutomatic {
		return p.CreateBlock(store)
	}
	return nil, nil
}

// CreateBlock seals whatever is currently pending (possibly nothing, for an
// empty on-demand block) into a new block.
func (p *Producer) CreateBlock(store *worldstate.Store) (*Block, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pending := p.pending
	p.pending = nil
	return p.sealLocked(store, pending)
}

func defaultNow() uint64 {
	// Wall-clock seconds, kept behind the swappable Config.Now field so
	// tests can pin it.
	return uint64(time.Now().Unix())
}

func (p *Producer) nextTimestamp(parent *Block) uint64 {
	now := p.cfg.Now()
	if p.timeOverride != nil {
		ts := *p.timeOverride
		p.timeOverride = nil
		return ts
	}
	base := now
	if p.timeOffset != 0 {
		base = addOffset(base, p.timeOffset)
	}
	if parent != nil && base <= parent.Timestamp {
		base = parent.Timestamp + 1
	}
	return base
}

func addOffset(base uint64, offset int64) uint64 {
	if offset < 0 && uint64(-offset) > base {
		return 0
	}
	return uint64(int64(base) + offset)
}

func (p *Producer) sealLocked(store *worldstate.Store, pending []PendingTx) (*Block, error) {
	parent, hasParent := p.store.Head()
	var number uint64
	var parentHash *felt.Felt
	if hasParent {
		number = parent.Number + 1
		parentHash = parent.Hash
	} else {
		parentHash = &felt.Zero
	}

	txHashes := make([]*felt.Felt, len(pending))
	for i, pt := range pending {
		txHashes[i] = pt.Transaction.Hash()
	}

	gas := p.gasOverride
	b := &Block{
		Number:           number,
		ParentHash:       parentHash,
		Timestamp:        p.nextTimestamp(parent),
		SequencerAddress: p.cfg.SequencerAddress,
		GasPrices:        gas.clone(),
		Status:           StatusPreConfirmed,
		Transactions:     txHashes,
		StateRoot:        &felt.Zero,
	}
	b.Hash = commitmentHash(b, p.protocolVer)
	b.Status = StatusAcceptedOnL2

	for _, pt := range pending {
		pt.Receipt.BlockHash = b.Hash
		pt.Receipt.BlockNumber = b.Number
		pt.Receipt.FinalityStatus = core.FinalityAcceptedOnL2
		p.store.putTx(pt.Transaction.Hash(), &TxRecord{Transaction: pt.Transaction, Receipt: pt.Receipt, BlockNumber: b.Number})
		if pt.Receipt.ContractAddress != nil {
			b.StateDiff.DeployedContracts = append(b.StateDiff.DeployedContracts, pt.Receipt.ContractAddress)
		}
	}
	b.StateDiff.StorageTouched = int(store.TouchedBuckets().Count())
	store.ResetTouched()

	p.store.put(b)

	if p.cfg.Archive == worldstate.ArchiveFull {
		p.snapshots[b.Number] = store.Snapshot()
	}

	return b, nil
}

// commitmentHash computes the block's hash as a Poseidon reduction over its
// header fields. The transaction commitment is a Poseidon reduction over the
// block's transaction hashes; the event commitment is always zero, so events
// do not contribute to the hash. state_root is reported zero, not a real
// trie root.
func commitmentHash(b *Block, protocolVersion string) *felt.Felt {
	txCommitment := crypto.PoseidonArray(b.Transactions...)
	eventCommitment := &felt.Zero // events are not tracked at this layer
	return crypto.PoseidonArray(
		new(felt.Felt).SetUint64(b.Number),
		b.StateRoot,
		b.SequencerAddress,
		new(felt.Felt).SetUint64(b.Timestamp),
		txCommitment,
		eventCommitment,
		b.ParentHash,
		b.GasPrices.L1Gas,
		b.GasPrices.L1DataGas,
		b.GasPrices.L2Gas,
		new(felt.Felt).SetBytes([]byte(protocolVersion)),
	)
}

// SetTime pins the next sealed block's timestamp to t; if generateBlock, it
// immediately seals an empty block at t.
func (p *Producer) SetTime(store *worldstate.Store, t uint64, generateBlock bool) (*Block, error) {
	p.mu.Lock()
	p.timeOverride = &t
	p.mu.Unlock()
	if generateBlock {
		return p.CreateBlock(store)
	}
	return nil, nil
}

// IncreaseTime adds dt to every future block's timestamp offset.
func (p *Producer) IncreaseTime(dt int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timeOffset += dt
}

// GasPriceUpdate carries the optional fields set_gas_price accepts; a nil
// field preserves the previous value.
type GasPriceUpdate struct {
	L1Gas         *felt.Felt
	L1DataGas     *felt.Felt
	L2Gas         *felt.Felt
	GenerateBlock bool
}

// SetGasPrice updates the current gas-price vector, optionally sealing an
// empty block immediately afterward.
func (p *Producer) SetGasPrice(store *worldstate.Store, upd GasPriceUpdate) (*Block, error) {
	p.mu.Lock()
	if upd.L1Gas != nil {
		p.gasOverride.L1Gas = upd.L1Gas
	}
	if upd.L1DataGas != nil {
		p.gasOverride.L1DataGas = upd.L1DataGas
	}
	if upd.L2Gas != nil {
		p.gasOverride.L2Gas = upd.L2Gas
	}
	p.mu.Unlock()
	if upd.GenerateBlock {
		return p.CreateBlock(store)
	}
	return nil, nil
}

// ErrArchiveRequired is returned by Abort when the devnet was not started
// with --state-archive-capacity full.
var ErrArchiveRequired = fmt.Errorf("abort_blocks requires state_archive_capacity=full")

// AbortResult reports what Abort did, in descending order (newest aborted
// hash first), the order the Reorg notification payload carries.
type AbortResult struct {
	AbortedBlockHashes []*felt.Felt
}

// Abort marks every block from startingBlock up to the current head as
// Aborted (descending order) and reverts the world state block by block,
// newest first, back to its state before startingBlock. It requires
// ArchiveFull; see ErrArchiveRequired.
func (p *Producer) Abort(store *worldstate.Store, startingBlock uint64) (*AbortResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cfg.Archive != worldstate.ArchiveFull {
		return nil, ErrArchiveRequired
	}
	head, ok := p.store.Head()
	if !ok || startingBlock > head.Number {
		return nil, fmt.Errorf("block %d not found", startingBlock)
	}

	numbers := make([]uint64, 0, head.Number-startingBlock+1)
	for n := head.Number; n >= startingBlock; n-- {
		numbers = append(numbers, n)
		if n == 0 {
			break
		}
	}

	for _, n := range numbers {
		if err := store.Revert(n); err != nil {
			return nil, err
		}
		delete(p.snapshots, n)
	}

	hashes := p.store.markAborted(numbers)
	return &AbortResult{AbortedBlockHashes: hashes}, nil
}

// Reset discards every sealed block, pending transaction and snapshot and
// reseals an empty genesis block, the block-producer half of
// devnet_restart/devnet_load. Callers are responsible for resetting the
// worldstate.Store itself first (Producer owns no state of its own beyond
// this arena).
func (p *Producer) Reset(store *worldstate.Store) (*Block, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.store = newStore()
	p.pending = nil
	p.snapshots = map[uint64]*worldstate.Snapshot{}
	p.timeOverride = nil
	p.timeOffset = 0
	p.gasOverride = p.cfg.GasPrices
	p.genesisSealed = false

	b, err := p.sealLocked(store, nil)
	if err != nil {
		return nil, err
	}
	p.genesisSealed = true
	return b, nil
}

// BlockState returns the snapshot pinned at block number, for historical
// reads under ArchiveFull. The Producer keeps ownership: the same handle is
// returned to every caller and is released by the Producer, not the caller.
func (p *Producer) BlockState(number uint64) (*worldstate.Snapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	snap, ok := p.snapshots[number]
	return snap, ok
}
