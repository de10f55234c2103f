// Package felt implements the 252-bit Starknet field element used as the
// canonical scalar type throughout the devnet: addresses, class hashes,
// nonces, storage keys/values, and transaction/block hashes are all Felts
// distinguished only by role.
package felt

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/stark-curve/fp"
)

// Base used by (*Felt).Text, matching Go's (*big.Int).Text convention.
const (
	Base10 = 10
	Base16 = 16
)

var (
	// ErrInvalidHex is returned when a string claims to be hex (0x-prefixed)
	// but contains non-hex-digit characters or is malformed.
	ErrInvalidHex = errors.New("invalid hex string")
	// ErrOutOfRange is returned when a value does not fit the field, or
	// (for range-restricted types built on Felt) falls outside that range.
	ErrOutOfRange = errors.New("value out of range")
	// ErrInvalidShortString is returned by short-string (Cairo string)
	// encode/decode helpers when the input can't round-trip.
	ErrInvalidShortString = errors.New("invalid short string")
)

// Felt is an element of the 252-bit Starknet prime field, backed by
// gnark-crypto's stark-curve field implementation for constant-time modular
// arithmetic.
type Felt struct {
	impl fp.Element
}

// Zero and One are convenience constants. They are not pointers so callers
// must take &felt.Zero / copy as needed; never mutate through these names.
var (
	Zero = Felt{}
	One  = func() Felt {
		var f Felt
		f.impl.SetOne()
		return f
	}()
)

// New constructs a Felt from big-endian bytes, reducing modulo the field
// prime if the input is out of range (matching gnark-crypto's SetBytes
// semantics, which always produces a canonical in-field value).
func New(b []byte) *Felt {
	f := new(Felt)
	f.impl.SetBytes(b)
	return f
}

// SetUint64 sets f to v and returns f.
func (f *Felt) SetUint64(v uint64) *Felt {
	f.impl.SetUint64(v)
	return f
}

// SetBytes sets f from big-endian bytes, reducing modulo the prime.
func (f *Felt) SetBytes(b []byte) *Felt {
	f.impl.SetBytes(b)
	return f
}

// SetBigInt sets f from a big.Int, reducing modulo the prime.
func (f *Felt) SetBigInt(v *big.Int) *Felt {
	f.impl.SetBigInt(v)
	return f
}

// BigInt returns f as a big.Int in [0, P).
func (f *Felt) BigInt() *big.Int {
	var v big.Int
	f.impl.BigInt(&v)
	return &v
}

// FromHex parses a 0x-prefixed (or bare) hex string into a new Felt.
// Accepts both lower- and upper-case digits; does not require canonical
// (no-redundant-leading-zero) form on input, but Text(Base16) always
// produces canonical output.
func FromHex(s string) (*Felt, error) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if trimmed == "" {
		trimmed = "0"
	}
	for _, c := range trimmed {
		if !isHexDigit(c) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidHex, s)
		}
	}
	v, ok := new(big.Int).SetString(trimmed, 16)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidHex, s)
	}
	if v.BitLen() > 252 {
		return nil, fmt.Errorf("%w: %q exceeds field size", ErrOutOfRange, s)
	}
	return new(Felt).SetBigInt(v), nil
}

// FromDecimal parses a base-10 string into a new Felt.
func FromDecimal(s string) (*Felt, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidHex, s)
	}
	if v.Sign() < 0 || v.BitLen() > 252 {
		return nil, fmt.Errorf("%w: %q", ErrOutOfRange, s)
	}
	return new(Felt).SetBigInt(v), nil
}

func isHexDigit(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// Text renders f in the given base: Base16 produces a 0x-prefixed,
// lower-case, non-zero-padded hex string (canonical form); Base10 produces
// a plain decimal string.
func (f *Felt) Text(base int) string {
	v := f.BigInt()
	switch base {
	case Base16:
		return "0x" + v.Text(16)
	default:
		return v.Text(10)
	}
}

// String implements fmt.Stringer as the canonical hex form.
func (f *Felt) String() string {
	return f.Text(Base16)
}

// MarshalText implements encoding.TextMarshaler so Felt can be used
// directly as a JSON string field.
func (f Felt) MarshalText() ([]byte, error) {
	return []byte(f.Text(Base16)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Felt) UnmarshalText(b []byte) error {
	parsed, err := FromHex(string(b))
	if err != nil {
		return err
	}
	*f = *parsed
	return nil
}

var _ json.Marshaler = Felt{}
var _ json.Unmarshaler = (*Felt)(nil)

// MarshalJSON renders the canonical 0x-prefixed hex form.
func (f Felt) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Text(Base16))
}

// UnmarshalJSON accepts either a JSON hex string or a JSON number.
func (f *Felt) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := FromHex(s)
		if err != nil {
			return err
		}
		*f = *parsed
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidHex, data)
	}
	parsed, err := FromDecimal(n.String())
	if err != nil {
		return err
	}
	*f = *parsed
	return nil
}

// Equal reports whether f and g represent the same field element.
func (f *Felt) Equal(g *Felt) bool {
	return f.impl.Equal(&g.impl)
}

// Cmp provides a total order over Felts (by their canonical integer value),
// so Felt can be used as a sort key wherever ordering is required.
func (f *Felt) Cmp(g *Felt) int {
	return f.impl.Cmp(&g.impl)
}

// IsZero reports whether f is the additive identity.
func (f *Felt) IsZero() bool {
	return f.impl.IsZero()
}

// IsOne reports whether f is the multiplicative identity.
func (f *Felt) IsOne() bool {
	var one fp.Element
	one.SetOne()
	return f.impl.Equal(&one)
}

// Bytes returns the 32-byte big-endian canonical encoding of f, suitable as
// a fixed-width map key or DB key component.
func (f *Felt) Bytes() [32]byte {
	return f.impl.Bytes()
}

// Marshal returns Bytes as a slice, for use as pebble/DB key material.
func (f *Felt) Marshal() []byte {
	b := f.Bytes()
	return b[:]
}

// Add, Sub and Mul provide the limited arithmetic the engine needs (fee
// accounting, nonce bumping) without exposing the full field API.
func (f *Felt) Add(a, b *Felt) *Felt {
	f.impl.Add(&a.impl, &b.impl)
	return f
}

func (f *Felt) Sub(a, b *Felt) *Felt {
	f.impl.Sub(&a.impl, &b.impl)
	return f
}

func (f *Felt) Mul(a, b *Felt) *Felt {
	f.impl.Mul(&a.impl, &b.impl)
	return f
}

// Clone returns a copy of f.
func (f *Felt) Clone() *Felt {
	c := *f
	return &c
}
