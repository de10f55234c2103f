package felt_test

import (
	"testing"

	"github.com/NethermindEth/starknet-devnet-go/core/felt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHexRoundTrip(t *testing.T) {
	cases := []string{"0x0", "0x1", "0xdeadbeef", "0x800000000000011000000000000000000000000000000000000000000000"}
	for _, c := range cases {
		f, err := felt.FromHex(c)
		require.NoError(t, err)
		assert.Equal(t, c, f.Text(felt.Base16))
	}
}

func TestHexNonCanonicalInputNormalizes(t *testing.T) {
	f, err := felt.FromHex("0x00ff")
	require.NoError(t, err)
	assert.Equal(t, "0xff", f.Text(felt.Base16))
}

func TestDecimalRoundTrip(t *testing.T) {
	f, err := felt.FromDecimal("12345")
	require.NoError(t, err)
	assert.Equal(t, "12345", f.Text(felt.Base10))
}

func TestInvalidHexRejected(t *testing.T) {
	_, err := felt.FromHex("0xzz")
	require.ErrorIs(t, err, felt.ErrInvalidHex)
}

func TestOutOfRangeRejected(t *testing.T) {
	// 65 hex digits (260 bits) exceeds the 252-bit field.
	_, err := felt.FromHex("0x" + repeat("f", 65))
	require.ErrorIs(t, err, felt.ErrOutOfRange)
}

func repeat(s string, n int) string {
	out := make([]byte, 0, n*len(s))
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}

func TestEqualAndCmp(t *testing.T) {
	a, _ := felt.FromHex("0x1")
	b, _ := felt.FromHex("0x1")
	c, _ := felt.FromHex("0x2")
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.Equal(t, -1, a.Cmp(c))
}

func TestJSONRoundTrip(t *testing.T) {
	f, err := felt.FromHex("0x2a")
	require.NoError(t, err)

	data, err := f.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"0x2a"`, string(data))

	var g felt.Felt
	require.NoError(t, g.UnmarshalJSON(data))
	assert.True(t, f.Equal(&g))
}
