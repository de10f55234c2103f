// Package classregistry hashes and validates contract classes before they
// are handed to worldstate.Store.DeclareClass: legacy (Cairo0) classes are
// Pedersen-hashed, Sierra (Cairo1) classes are Poseidon-hashed, and a
// Cairo1 class's declared SemanticVersion is validated with Masterminds'
// semver parser.
package classregistry

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/NethermindEth/starknet-devnet-go/core"
	"github.com/NethermindEth/starknet-devnet-go/core/crypto"
	"github.com/NethermindEth/starknet-devnet-go/core/felt"
)

// CompiledClassHashMismatchError is returned when a class is redeclared
// with a CompiledClassHash that disagrees with the one recorded at its
// first declaration.
type CompiledClassHashMismatchError struct {
	ClassHash, Declared, Recorded *felt.Felt
}

func (e *CompiledClassHashMismatchError) Error() string {
	return fmt.Sprintf("compiled class hash mismatch for class %s: declared %s, expected %s",
		e.ClassHash, e.Declared, e.Recorded)
}

// Registry computes class hashes and enforces the invariants a DECLARE
// transaction must satisfy before worldstate ever sees the class.
type Registry struct{}

func New() *Registry { return &Registry{} }

// ClassHash derives the class's hash: Pedersen-folded entry points and
// program for Cairo0, Poseidon-folded program and entry points for Cairo1.
func (r *Registry) ClassHash(class core.Class) (*felt.Felt, error) {
	switch c := class.(type) {
	case *core.Cairo0Class:
		return r.cairo0Hash(c), nil
	case *core.Cairo1Class:
		return r.cairo1Hash(c)
	default:
		return nil, fmt.Errorf("unsupported class type %T", class)
	}
}

func (r *Registry) cairo0Hash(c *core.Cairo0Class) *felt.Felt {
	entryPointsHash := hashEntryPoints(c.EntryPoints.Constructor, hashLegacyEntryPoint)
	externalHash := hashEntryPoints(c.EntryPoints.External, hashLegacyEntryPoint)
	l1Hash := hashEntryPoints(c.EntryPoints.L1Handler, hashLegacyEntryPoint)
	programHash := crypto.PedersenArray(digestToFelt(c.Program))
	abiHash := crypto.PedersenArray(digestToFelt(c.Abi))
	return crypto.PedersenArray(
		new(felt.Felt).SetBytes([]byte("CONTRACT_CLASS_V0.1.0")),
		externalHash, l1Hash, entryPointsHash,
		abiHash, programHash,
	)
}

func hashLegacyEntryPoint(ep core.EntryPoint) *felt.Felt {
	return crypto.PedersenArray(ep.Selector, new(felt.Felt).SetUint64(ep.Offset))
}

func hashEntryPoints[T any](eps []T, hashOne func(T) *felt.Felt) *felt.Felt {
	elems := make([]*felt.Felt, len(eps))
	for i, ep := range eps {
		elems[i] = hashOne(ep)
	}
	return crypto.PedersenArray(elems...)
}

func (r *Registry) cairo1Hash(c *core.Cairo1Class) (*felt.Felt, error) {
	if c.SemanticVersion != "" {
		if _, err := semver.NewVersion(c.SemanticVersion); err != nil {
			return nil, fmt.Errorf("invalid class semantic version %q: %w", c.SemanticVersion, err)
		}
	}
	entryPointsHash := hashSierraEntryPoints(c.EntryPoints.Constructor)
	externalHash := hashSierraEntryPoints(c.EntryPoints.External)
	l1Hash := hashSierraEntryPoints(c.EntryPoints.L1Handler)
	programHash := crypto.PoseidonArray(c.Program...)
	abiHash := crypto.PoseidonArray(digestToFelt(c.Abi))
	return crypto.PoseidonArray(
		new(felt.Felt).SetBytes([]byte("CONTRACT_CLASS_V"+orDefault(c.SemanticVersion, "0.1.0"))),
		externalHash, l1Hash, entryPointsHash,
		abiHash, programHash,
	), nil
}

func hashSierraEntryPoints(eps []core.SierraEntryPoint) *felt.Felt {
	elems := make([]*felt.Felt, len(eps))
	for i, ep := range eps {
		elems[i] = crypto.PoseidonArray(ep.Selector, new(felt.Felt).SetUint64(ep.Index))
	}
	return crypto.PoseidonArray(elems...)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// digestToFelt folds an arbitrary-length blob into a field element via a
// build-time, non-cryptographic digest. sha256 is used purely as a
// deterministic length-reducing hash; it is never compared against another
// implementation's class hash and is not a security boundary.
func digestToFelt(s string) *felt.Felt {
	sum := sha256.Sum256([]byte(s))
	return new(felt.Felt).SetBytes(sum[:])
}

// CanonicalDigest returns a short, stable hex key usable as an in-memory
// cache key for a class body, independent of its Starknet class hash.
func CanonicalDigest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}

// VerifyCompiledClassHash checks that a redeclare agrees with whatever
// compiled class hash was recorded the first time.
func VerifyCompiledClassHash(classHash, declared, recorded *felt.Felt) error {
	if recorded == nil || declared == nil {
		return nil
	}
	if !declared.Equal(recorded) {
		return &CompiledClassHashMismatchError{ClassHash: classHash, Declared: declared, Recorded: recorded}
	}
	return nil
}

// CompiledClassHash independently derives the compiled (CASM) class hash
// for a Sierra class. Real Sierra-to-CASM compilation is Cairo/VM
// execution, an abstract capability this core delegates rather than
// reimplements; this stands in with a distinct, stable
// Poseidon reduction over the same entry points and program a declarer's
// compiler would also need to see, so it agrees with itself run-to-run but
// disagrees with any value the declarer did not derive from this exact
// class body: declaring a valid Sierra class with an arbitrary
// compiled_class_hash is rejected.
func (r *Registry) CompiledClassHash(c *core.Cairo1Class) *felt.Felt {
	entryPointsHash := hashSierraEntryPoints(c.EntryPoints.Constructor)
	externalHash := hashSierraEntryPoints(c.EntryPoints.External)
	l1Hash := hashSierraEntryPoints(c.EntryPoints.L1Handler)
	programHash := crypto.PoseidonArray(c.Program...)
	return crypto.PoseidonArray(
		new(felt.Felt).SetBytes([]byte("COMPILED_CLASS_V1")),
		externalHash, l1Hash, entryPointsHash, programHash,
	)
}
