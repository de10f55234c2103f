package classregistry_test

import (
	"testing"

	"github.com/NethermindEth/starknet-devnet-go/core"
	"github.com/NethermindEth/starknet-devnet-go/core/classregistry"
	"github.com/NethermindEth/starknet-devnet-go/core/felt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCairo0HashDeterministic(t *testing.T) {
	reg := classregistry.New()
	class := &core.Cairo0Class{Program: "prog", Abi: "abi"}
	h1, err := reg.ClassHash(class)
	require.NoError(t, err)
	h2, err := reg.ClassHash(class)
	require.NoError(t, err)
	assert.True(t, h1.Equal(h2))
}

func TestCairo1RejectsInvalidSemver(t *testing.T) {
	reg := classregistry.New()
	class := &core.Cairo1Class{SemanticVersion: "not-a-version"}
	_, err := reg.ClassHash(class)
	assert.Error(t, err)
}

func TestCairo1AcceptsValidSemver(t *testing.T) {
	reg := classregistry.New()
	class := &core.Cairo1Class{SemanticVersion: "0.1.0"}
	_, err := reg.ClassHash(class)
	assert.NoError(t, err)
}

func TestVerifyCompiledClassHashMismatch(t *testing.T) {
	a, _ := felt.FromHex("0x1")
	b, _ := felt.FromHex("0x2")
	err := classregistry.VerifyCompiledClassHash(a, a, b)
	assert.Error(t, err)
	assert.NoError(t, classregistry.VerifyCompiledClassHash(a, a, a))
}
