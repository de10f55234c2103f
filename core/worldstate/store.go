// Package worldstate holds the devnet's contract state: class hashes,
// nonces, storage, and declared class bodies, backed by a pebble key-value
// store. It keeps flat key-value pairs with a per-block change log for
// revert instead of a Merkle-Patricia trie: state commitments are reported
// as zero, so no component ever needs a root to be real.
package worldstate

import (
	"errors"
	"fmt"

	"github.com/NethermindEth/starknet-devnet-go/core"
	"github.com/NethermindEth/starknet-devnet-go/core/felt"
	"github.com/bits-and-blooms/bitset"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/fxamacker/cbor/v2"
)

var (
	ErrNotDeployed       = errors.New("contract not deployed")
	ErrNotDeclared       = errors.New("class not declared")
	ErrAlreadyDeployed   = errors.New("contract already deployed at address")
	ErrClassHashMismatch = errors.New("compiled class hash does not match declared class")
)

// ArchiveCapacity selects how much history the store retains for revert.
type ArchiveCapacity int

const (
	// ArchiveNone: the block producer refuses to revert a sealed block.
	// The store still logs previous values per block under either policy.
	ArchiveNone ArchiveCapacity = iota
	// ArchiveFull: the block producer may revert any sealed block from the
	// per-block change log and keeps a snapshot per sealed block.
	ArchiveFull
)

//go:generate mockgen -destination=mocks/mock_forkreader.go -package=mocks github.com/NethermindEth/starknet-devnet-go/core/worldstate ForkReader

// ForkReader is consulted when a key is absent locally; it lets the store
// lazily pull from an upstream node without depending on the fork bridge's
// concrete type.
type ForkReader interface {
	ClassHashAt(addr *felt.Felt) (*felt.Felt, bool, error)
	NonceAt(addr *felt.Felt) (*felt.Felt, bool, error)
	StorageAt(addr, key *felt.Felt) (*felt.Felt, bool, error)
	ClassAt(classHash *felt.Felt) (core.Class, bool, error)
}

// Store is the devnet's contract state. It is safe for concurrent readers
// but callers are expected to serialize writers (the block producer holds
// exactly one in-flight block at a time).
type Store struct {
	db       *pebble.DB
	archive  ArchiveCapacity
	fork     ForkReader
	touched  *bitset.BitSet // bit i set => key bucket i was written since the last ResetTouched
	bucketOf func(key []byte) uint
}

// Options configures Open.
type Options struct {
	// Path is a filesystem directory; empty means an in-memory store.
	Path    string
	Archive ArchiveCapacity
	Fork    ForkReader
}

// Open creates or reopens a Store. An empty Path uses pebble's in-memory
// vfs, matching the devnet's default ephemeral-by-default behavior.
func Open(opts Options) (*Store, error) {
	pebbleOpts := &pebble.Options{}
	path := opts.Path
	if path == "" {
		pebbleOpts.FS = vfs.NewMem()
		path = ""
	}
	db, err := pebble.Open(path, pebbleOpts)
	if err != nil {
		return nil, fmt.Errorf("open worldstate db: %w", err)
	}
	return &Store{
		db:      db,
		archive: opts.Archive,
		fork:    opts.Fork,
		touched: bitset.New(1024),
		bucketOf: func(key []byte) uint {
			var h uint
			for _, b := range key {
				h = h*31 + uint(b)
			}
			return h % 1024
		},
	}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// key namespaces: a fixed prefix byte ahead of the natural key.
const (
	prefixClassHash     byte = 1
	prefixNonce         byte = 2
	prefixStorage       byte = 3
	prefixClass         byte = 4
	prefixCompiledClass byte = 5
	prefixDeployedAt    byte = 6
	prefixHistClassHash byte = 7
	prefixHistNonce     byte = 8
	prefixHistStorage   byte = 9
)

func keyAddr(prefix byte, addr *felt.Felt) []byte {
	b := addr.Marshal()
	return append([]byte{prefix}, b...)
}

func keyAddrKey(prefix byte, addr, k *felt.Felt) []byte {
	b := append(addr.Marshal(), k.Marshal()...)
	return append([]byte{prefix}, b...)
}

func keyClassHash(ch *felt.Felt) []byte {
	return append([]byte{prefixClass}, ch.Marshal()...)
}

func histKey(prefix byte, block uint64, rest []byte) []byte {
	k := make([]byte, 0, 9+len(rest))
	k = append(k, prefix)
	k = append(k, uint64Bytes(block)...)
	k = append(k, rest...)
	return k
}

func uint64Bytes(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

func (s *Store) get(key []byte) (val []byte, closeFn func() error, err error) {
	v, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	out := append([]byte(nil), v...)
	return out, closer.Close, nil
}

func (s *Store) getFeltLocal(key []byte) (*felt.Felt, bool, error) {
	v, closer, err := s.get(key)
	if err != nil {
		return nil, false, err
	}
	if v == nil {
		return nil, false, nil
	}
	defer closer()
	return felt.New(v), true, nil
}

// GetClassHashAt returns the class hash a contract at addr was deployed
// with, consulting the fork bridge when unknown locally.
func (s *Store) GetClassHashAt(addr *felt.Felt) (*felt.Felt, error) {
	v, ok, err := s.getFeltLocal(keyAddr(prefixClassHash, addr))
	if err != nil {
		return nil, err
	}
	if ok {
		return v, nil
	}
	if s.fork != nil {
		if fv, fok, ferr := s.fork.ClassHashAt(addr); ferr == nil && fok {
			return fv, nil
		} else if ferr != nil {
			return nil, ferr
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotDeployed, addr)
}

// GetNonceAt returns a contract's current nonce, defaulting to zero for an
// undeployed (but fork-known) address, matching RPC semantics that never
// error for a merely-empty nonce.
func (s *Store) GetNonceAt(addr *felt.Felt) (*felt.Felt, error) {
	v, ok, err := s.getFeltLocal(keyAddr(prefixNonce, addr))
	if err != nil {
		return nil, err
	}
	if ok {
		return v, nil
	}
	if s.fork != nil {
		if fv, fok, ferr := s.fork.NonceAt(addr); ferr == nil && fok {
			return fv, nil
		} else if ferr != nil {
			return nil, ferr
		}
	}
	return &felt.Zero, nil
}

// GetStorageAt returns the value at key within addr's storage, defaulting
// to zero for any never-written slot (the Starknet storage convention).
func (s *Store) GetStorageAt(addr, key *felt.Felt) (*felt.Felt, error) {
	v, ok, err := s.getFeltLocal(keyAddrKey(prefixStorage, addr, key))
	if err != nil {
		return nil, err
	}
	if ok {
		return v, nil
	}
	if s.fork != nil {
		if fv, fok, ferr := s.fork.StorageAt(addr, key); ferr == nil && fok {
			return fv, nil
		} else if ferr != nil {
			return nil, ferr
		}
	}
	return &felt.Zero, nil
}

// classRecord is the cbor-encoded pebble value for a declared class; cbor
// is used only for this internal encoding, never for the dump file, which
// stays plain JSON so it remains human-diffable.
type classRecord struct {
	Kind              string // "cairo0" or "cairo1"
	Cairo0            *core.Cairo0Class
	Cairo1            *core.Cairo1Class
	CompiledClassHash []byte
	AtBlock           uint64
}

// GetClass returns the full class body for classHash, consulting the fork
// bridge when the class was never declared locally (the usual case for a
// class that was already on the forked network).
func (s *Store) GetClass(classHash *felt.Felt) (*core.DeclaredClass, error) {
	v, closer, err := s.get(keyClassHash(classHash))
	if err != nil {
		return nil, err
	}
	if v != nil {
		defer closer()
		var rec classRecord
		if err := cbor.Unmarshal(v, &rec); err != nil {
			return nil, fmt.Errorf("decode class %s: %w", classHash, err)
		}
		var class core.Class
		switch rec.Kind {
		case "cairo0":
			class = rec.Cairo0
		default:
			class = rec.Cairo1
		}
		return &core.DeclaredClass{Class: class, AtBlock: rec.AtBlock}, nil
	}
	if s.fork != nil {
		if fc, fok, ferr := s.fork.ClassAt(classHash); ferr == nil && fok {
			return &core.DeclaredClass{Class: fc}, nil
		} else if ferr != nil {
			return nil, ferr
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotDeclared, classHash)
}

// DeclareClass records a class body under classHash at blockNumber. It is
// idempotent: redeclaring the same class hash is a no-op success, matching
// RPC semantics for repeated DECLARE submissions.
func (s *Store) DeclareClass(classHash *felt.Felt, class core.Class, compiledClassHash *felt.Felt, blockNumber uint64) error {
	key := keyClassHash(classHash)
	if existing, closer, err := s.get(key); err != nil {
		return err
	} else if existing != nil {
		closer()
		return nil
	}

	rec := classRecord{AtBlock: blockNumber}
	switch c := class.(type) {
	case *core.Cairo0Class:
		rec.Kind = "cairo0"
		rec.Cairo0 = c
	case *core.Cairo1Class:
		rec.Kind = "cairo1"
		rec.Cairo1 = c
	default:
		return fmt.Errorf("unsupported class type %T", class)
	}
	if compiledClassHash != nil {
		rec.CompiledClassHash = compiledClassHash.Marshal()
	}
	enc, err := cbor.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.db.Set(key, enc, pebble.Sync); err != nil {
		return err
	}
	if compiledClassHash != nil {
		if err := s.db.Set(append([]byte{prefixCompiledClass}, classHash.Marshal()...), compiledClassHash.Marshal(), pebble.Sync); err != nil {
			return err
		}
	}
	return nil
}

// CompiledClassHashOf returns the compiled class hash recorded at declare
// time for classHash, used to detect CompiledClassHashMismatch on redeclare
// with a different Sierra compiler output.
func (s *Store) CompiledClassHashOf(classHash *felt.Felt) (*felt.Felt, bool, error) {
	return s.getFeltLocal(append([]byte{prefixCompiledClass}, classHash.Marshal()...))
}

// DeployContract associates addr with classHash at blockNumber, logging the
// deployment height so historical queries can answer when a contract
// appeared.
func (s *Store) DeployContract(addr, classHash *felt.Felt, blockNumber uint64) error {
	if _, ok, err := s.getFeltLocal(keyAddr(prefixClassHash, addr)); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("%w: %s", ErrAlreadyDeployed, addr)
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(keyAddr(prefixClassHash, addr), classHash.Marshal(), nil); err != nil {
		return err
	}
	if err := batch.Set(keyAddr(prefixDeployedAt, addr), uint64Bytes(blockNumber), nil); err != nil {
		return err
	}
	s.logOldClassHash(batch, addr, &felt.Zero, blockNumber)
	return batch.Commit(pebble.Sync)
}

// SetStorage writes value at (addr, key), logging the previous value for
// revert under blockNumber whatever the archive policy.
func (s *Store) SetStorage(addr, key, value *felt.Felt, blockNumber uint64) error {
	old, err := s.GetStorageAt(addr, key)
	if err != nil {
		return err
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(keyAddrKey(prefixStorage, addr, key), value.Marshal(), nil); err != nil {
		return err
	}
	s.markTouched(keyAddrKey(prefixStorage, addr, key))
	rest := append(addr.Marshal(), key.Marshal()...)
	if err := batch.Set(histKey(prefixHistStorage, blockNumber, rest), old.Marshal(), nil); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

// BumpNonce sets addr's nonce to newNonce, logging the previous value.
func (s *Store) BumpNonce(addr, newNonce *felt.Felt, blockNumber uint64) error {
	old, err := s.GetNonceAt(addr)
	if err != nil {
		return err
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(keyAddr(prefixNonce, addr), newNonce.Marshal(), nil); err != nil {
		return err
	}
	if err := batch.Set(histKey(prefixHistNonce, blockNumber, addr.Marshal()), old.Marshal(), nil); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

func (s *Store) logOldClassHash(batch *pebble.Batch, addr, old *felt.Felt, blockNumber uint64) {
	_ = batch.Set(histKey(prefixHistClassHash, blockNumber, addr.Marshal()), old.Marshal(), nil)
}

func (s *Store) markTouched(key []byte) {
	s.touched.Set(s.bucketOf(key))
}

// TouchedBuckets reports which of the store's hash buckets were written
// since the last ResetTouched call; the block producer uses this as a
// cheap approximation of "did this block touch storage at all" without
// walking every key.
func (s *Store) TouchedBuckets() *bitset.BitSet {
	return s.touched.Clone()
}

// ResetTouched clears the touched-bucket tracker, called once per sealed
// block.
func (s *Store) ResetTouched() {
	s.touched.ClearAll()
}

// Revert undoes every write SetStorage, BumpNonce and DeployContract
// recorded against blockNumber, restoring the logged previous values.
// Whether a *sealed* block may be reverted is the block producer's policy
// call (abort requires ArchiveFull); the store itself also reverts
// scratch writes tagged with a sentinel block number, which is how
// simulate/estimate discard their effects without a commit.
func (s *Store) Revert(blockNumber uint64) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	prefix := histKey(prefixHistStorage, blockNumber, nil)
	if err := s.restoreHistory(batch, prefix, prefixHistStorage, func(rest, val []byte) error {
		if len(rest) < 64 {
			return fmt.Errorf("corrupt storage history entry")
		}
		return batch.Set(append([]byte{prefixStorage}, rest...), val, nil)
	}); err != nil {
		return err
	}

	noncePrefix := histKey(prefixHistNonce, blockNumber, nil)
	if err := s.restoreHistory(batch, noncePrefix, prefixHistNonce, func(rest, val []byte) error {
		return batch.Set(append([]byte{prefixNonce}, rest...), val, nil)
	}); err != nil {
		return err
	}

	classPrefix := histKey(prefixHistClassHash, blockNumber, nil)
	if err := s.restoreHistory(batch, classPrefix, prefixHistClassHash, func(rest, val []byte) error {
		// A logged zero means the address was undeployed before this
		// block; deleting the live key restores NotDeployed rather than
		// leaving a bogus zero class hash behind.
		if felt.New(val).IsZero() {
			if err := batch.Delete(append([]byte{prefixClassHash}, rest...), nil); err != nil {
				return err
			}
			return batch.Delete(append([]byte{prefixDeployedAt}, rest...), nil)
		}
		return batch.Set(append([]byte{prefixClassHash}, rest...), val, nil)
	}); err != nil {
		return err
	}

	return batch.Commit(pebble.Sync)
}

// prefixUpperBound returns the smallest key greater than every key with the
// given prefix, for use as a pebble iterator's exclusive upper bound.
func prefixUpperBound(prefix []byte) []byte {
	upper := append([]byte(nil), prefix...)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] != 0xff {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil // prefix is all 0xff: unbounded above
}

func (s *Store) restoreHistory(batch *pebble.Batch, prefix []byte, marker byte, apply func(rest, val []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixUpperBound(prefix)})
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		rest := append([]byte(nil), key[len(prefix):]...)
		val := append([]byte(nil), iter.Value()...)
		if err := apply(rest, val); err != nil {
			return err
		}
		if err := batch.Delete(append([]byte(nil), key...), nil); err != nil {
			return err
		}
	}
	return nil
}

// Reset wipes every key the store holds, returning it to the same empty
// state Open produces: the implementation behind devnet_restart and
// devnet_load's "restart state to genesis" step. The fork
// reader, if any, is left attached: a restarted devnet still reads through
// to the same pinned upstream block.
func (s *Store) Reset() error {
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return err
	}
	defer iter.Close()
	batch := s.db.NewBatch()
	defer batch.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		if err := batch.Delete(append([]byte(nil), iter.Key()...), nil); err != nil {
			return err
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return err
	}
	s.touched.ClearAll()
	return nil
}

// Snapshot pins a read-only view of the store as it is now; the block
// producer takes one per sealed block under ArchiveFull for historical
// reads. It cannot be restored into the live store (simulate/estimate
// discard their writes with Revert instead).
type Snapshot struct {
	handle *pebble.Snapshot
}

func (s *Store) Snapshot() *Snapshot {
	return &Snapshot{handle: s.db.NewSnapshot()}
}

func (snap *Snapshot) Close() error { return snap.handle.Close() }

// Archive reports the capacity the store was opened with.
func (s *Store) Archive() ArchiveCapacity { return s.archive }

func (snap *Snapshot) getFelt(key []byte) (*felt.Felt, bool, error) {
	v, closer, err := snap.handle.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()
	return felt.New(append([]byte(nil), v...)), true, nil
}

// StorageAt reads a storage slot as of the snapshot, for historical
// block-id queries under ArchiveFull.
func (snap *Snapshot) StorageAt(addr, key *felt.Felt) (*felt.Felt, error) {
	v, ok, err := snap.getFelt(keyAddrKey(prefixStorage, addr, key))
	if err != nil {
		return nil, err
	}
	if !ok {
		return &felt.Zero, nil
	}
	return v, nil
}

// NonceAt reads a contract nonce as of the snapshot.
func (snap *Snapshot) NonceAt(addr *felt.Felt) (*felt.Felt, error) {
	v, ok, err := snap.getFelt(keyAddr(prefixNonce, addr))
	if err != nil {
		return nil, err
	}
	if !ok {
		return &felt.Zero, nil
	}
	return v, nil
}

// ClassHashAt reads the deployed class hash as of the snapshot.
func (snap *Snapshot) ClassHashAt(addr *felt.Felt) (*felt.Felt, error) {
	v, ok, err := snap.getFelt(keyAddr(prefixClassHash, addr))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotDeployed, addr)
	}
	return v, nil
}
