package core

import "github.com/NethermindEth/starknet-devnet-go/core/felt"

// EntryPoint is a legacy (Cairo0) class entry point: a selector paired with
// a bytecode offset into Program.
type EntryPoint struct {
	Selector *felt.Felt
	Offset   uint64
}

// SierraEntryPoint is a Cairo1 class entry point: a selector paired with an
// index into the Sierra program's function table.
type SierraEntryPoint struct {
	Selector *felt.Felt
	Index    uint64
}

// EntryPointsByType groups entry points the way both class encodings do:
// one list per kind of callable.
type EntryPointsByType[T any] struct {
	Constructor []T
	External    []T
	L1Handler   []T
}

// Class is the common interface both contract class variants satisfy. The
// registry dispatches on the concrete type to pick a hashing strategy.
type Class interface {
	isClass()
}

// Cairo0Class is a legacy contract class: a JSON program blob and an
// entry-point table, hashed with Pedersen.
type Cairo0Class struct {
	Program     string // base64 or raw JSON program blob, opaque to the core
	Abi         string
	EntryPoints EntryPointsByType[EntryPoint]
}

func (*Cairo0Class) isClass() {}

// Cairo1Class is a Sierra contract class: a typed program plus ABI, hashed
// with Poseidon. CompiledClassHash is supplied by the declarer and
// independently re-derived by the registry at declare time.
type Cairo1Class struct {
	Program         []*felt.Felt // Sierra program, as a flat felt sequence
	Abi             string
	SemanticVersion string // e.g. "0.1.0", validated with Masterminds/semver
	EntryPoints     EntryPointsByType[SierraEntryPoint]
}

func (*Cairo1Class) isClass() {}

// DeclaredClass pairs a class body with the block it was first declared
// in.
type DeclaredClass struct {
	Class   Class
	AtBlock uint64
}
