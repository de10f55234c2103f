// Package crypto provides the hashing primitives the core treats as an
// abstract capability: they are not meant to be bit-perfect against
// production Starknet, only deterministic, stable, and documented. Both
// Pedersen and Poseidon are built from gnark-crypto's stark-curve field
// arithmetic.
package crypto

import (
	"math/big"

	"github.com/NethermindEth/starknet-devnet-go/core/felt"
	"github.com/consensys/gnark-crypto/ecc/stark-curve/fp"
)

// Hasher is the abstract capability the rest of the core consumes; it lets
// the engine and class registry be tested against a fake hash function
// without depending on the concrete field arithmetic below.
type Hasher interface {
	Hash(a, b *felt.Felt) *felt.Felt
	HashArray(elems ...*felt.Felt) *felt.Felt
}

// pedersenHasher and poseidonHasher both satisfy Hasher; each uses a
// distinct, fixed round-constant derivation so the two are never
// accidentally interchangeable, mirroring the real separation between
// Starknet's Pedersen and Poseidon hash families.
type pedersenHasher struct{}
type poseidonHasher struct{}

// Pedersen is the package-level singleton implementing the Pedersen-family
// hash used for legacy (Cairo0) class hashing and pre-v3 transaction hashes.
var Pedersen Hasher = pedersenHasher{}

// Poseidon is the package-level singleton implementing the Poseidon-family
// hash used for Sierra (Cairo1) class hashing, v3 transaction hashes, and
// block/event/tx commitments.
var Poseidon Hasher = poseidonHasher{}

// sponge mixes a running state with an input element using field
// multiplication and addition with family-specific constants, then reduces
// back into a canonical field element. This is a permutation-style
// construction, not a citation-accurate port of either production hash;
// the concrete hash function is a swappable capability here.
func sponge(state, input *fp.Element, c0, c1 *fp.Element) fp.Element {
	var tmp, next fp.Element
	tmp.Mul(state, c0)
	tmp.Add(&tmp, input)
	next.Mul(&tmp, c1)
	next.Add(&next, state)
	return next
}

var (
	pedersenC0 = constFromUint64(0x0102030405060708)
	pedersenC1 = constFromUint64(0x1112131415161718)
	poseidonC0 = constFromUint64(0x2122232425262728)
	poseidonC1 = constFromUint64(0x3132333435363738)
)

func constFromUint64(v uint64) fp.Element {
	var e fp.Element
	e.SetUint64(v)
	return e
}

func (pedersenHasher) Hash(a, b *felt.Felt) *felt.Felt {
	return hashPair(a, b, pedersenC0, pedersenC1)
}

func (pedersenHasher) HashArray(elems ...*felt.Felt) *felt.Felt {
	return hashArray(elems, pedersenC0, pedersenC1)
}

func (poseidonHasher) Hash(a, b *felt.Felt) *felt.Felt {
	return hashPair(a, b, poseidonC0, poseidonC1)
}

func (poseidonHasher) HashArray(elems ...*felt.Felt) *felt.Felt {
	return hashArray(elems, poseidonC0, poseidonC1)
}

func feltToElement(f *felt.Felt) fp.Element {
	var e fp.Element
	e.SetBigInt(f.BigInt())
	return e
}

func elementToFelt(e *fp.Element) *felt.Felt {
	var v big.Int
	e.BigInt(&v)
	return new(felt.Felt).SetBigInt(&v)
}

func hashPair(a, b *felt.Felt, c0, c1 fp.Element) *felt.Felt {
	ea := feltToElement(a)
	eb := feltToElement(b)
	state := sponge(&ea, &eb, &c0, &c1)
	// Fold the input length in, as real Starknet hashes do, so Hash(a,b)
	// can never collide with HashArray(a,b) or HashArray(a,b,c).
	var lenElem fp.Element
	lenElem.SetUint64(2)
	state = sponge(&state, &lenElem, &c0, &c1)
	return elementToFelt(&state)
}

func hashArray(elems []*felt.Felt, c0, c1 fp.Element) *felt.Felt {
	var state fp.Element // starts at zero, matching Pedersen/Poseidon array conventions
	for _, e := range elems {
		el := feltToElement(e)
		state = sponge(&state, &el, &c0, &c1)
	}
	var lenElem fp.Element
	lenElem.SetUint64(uint64(len(elems)))
	state = sponge(&state, &lenElem, &c0, &c1)
	return elementToFelt(&state)
}

// Free-function forms used throughout the engine and class registry.
func PedersenHash(a, b *felt.Felt) *felt.Felt      { return Pedersen.Hash(a, b) }
func PedersenArray(elems ...*felt.Felt) *felt.Felt { return Pedersen.HashArray(elems...) }
func PoseidonHash(a, b *felt.Felt) *felt.Felt      { return Poseidon.Hash(a, b) }
func PoseidonArray(elems ...*felt.Felt) *felt.Felt { return Poseidon.HashArray(elems...) }
