// Package predeployed builds the fee-token system contracts, the Universal
// Deployer Contract, and the devnet's N predeployed funded accounts:
// declare-if-new, then deploy by direct state insertion.
package predeployed

import (
	"crypto/cipher"
	"fmt"
	"math/big"

	"github.com/NethermindEth/starknet-devnet-go/core"
	"github.com/NethermindEth/starknet-devnet-go/core/crypto"
	"github.com/NethermindEth/starknet-devnet-go/core/felt"
	"golang.org/x/crypto/chacha20"
)

// Account is one predeployed, pre-funded account: a keypair plus the
// address its account contract was deployed at.
type Account struct {
	Index      int
	Address    *felt.Felt
	PublicKey  *felt.Felt
	PrivateKey *felt.Felt
}

// Deployer derives the set of predeployed accounts and the two system
// contracts (fee token, UDC) from a seed, class hash and initial balance.
type Deployer struct {
	Seed             uint64
	Count            int
	InitialBalance   *big.Int
	AccountClassHash *felt.Felt
}

// FeeToken is a minimal ERC20 stand-in: the balances the engine's VM reads
// when charging fees or serving balanceOf calls (see core/vm), plus the
// name/symbol/decimals/owner storage variables seeded exactly as
// initialize_erc20_at_address does. The VM has no name, symbol or
// decimals entry point; those values are only readable as storage.
type FeeToken struct {
	Address  *felt.Felt
	Name     string
	Symbol   string
	Decimals uint8
	Owner    *felt.Felt
}

// UDCAddress and UDCClassHash are fixed devnet-local constants, not
// expected to match any real deployment since Cairo bytecode itself is
// out of scope here.
var (
	UDCAddress   = mustFeltFromUint64(0xdead_0000_1)
	UDCClassHash = mustFeltFromUint64(0xc1a55_0000_1)

	StrkFeeTokenAddress = mustFeltFromUint64(0x7374726b) // "strk"
	EthFeeTokenAddress  = mustFeltFromUint64(0x657468)  // "eth"
)

func mustFeltFromUint64(v uint64) *felt.Felt {
	return new(felt.Felt).SetUint64(v)
}

// NewFeeTokens returns the two predeployed fee tokens (ETH, legacy;
// STRK, v3), each owned by the chargeable account so minting and
// set_balance RPC calls can always succeed.
func NewFeeTokens(chargeableAccount *felt.Felt) [2]FeeToken {
	return [2]FeeToken{
		{Address: EthFeeTokenAddress, Name: "Ether", Symbol: "ETH", Decimals: 18, Owner: chargeableAccount},
		{Address: StrkFeeTokenAddress, Name: "StarkToken", Symbol: "STRK", Decimals: 18, Owner: chargeableAccount},
	}
}

// StorageSeed returns the ERC20_name/ERC20_symbol/ERC20_decimals/
// Ownable_owner key-value pairs initialize_erc20_at_address writes, keyed
// by the selector of each storage variable name (the real storage-var
// addressing scheme, computed via Pedersen over the variable's ASCII
// name per Starknet's get_storage_var_address).
func (t FeeToken) StorageSeed() map[felt.Felt]*felt.Felt {
	seed := map[felt.Felt]*felt.Felt{}
	seed[*storageVarAddress("ERC20_name")] = selectorFromName(t.Name)
	seed[*storageVarAddress("ERC20_symbol")] = selectorFromName(t.Symbol)
	seed[*storageVarAddress("ERC20_decimals")] = new(felt.Felt).SetUint64(uint64(t.Decimals))
	seed[*storageVarAddress("Ownable_owner")] = t.Owner
	return seed
}

func storageVarAddress(name string) *felt.Felt {
	return crypto.PedersenArray(new(felt.Felt).SetBytes([]byte(name)))
}

func selectorFromName(name string) *felt.Felt {
	return crypto.PedersenArray(new(felt.Felt).SetBytes([]byte("selector")), new(felt.Felt).SetBytes([]byte(name)))
}

// Derive produces Count accounts deterministically from Seed, using
// chacha20 as a keystream generator: documented, stable, and reproducible
// across runs given the same --seed flag, satisfying the "any
// cryptographic stream cipher... documented and stable" requirement for
// account key material that is never meant to secure real funds.
func (d Deployer) Derive() ([]Account, error) {
	var nonce [chacha20.NonceSize]byte
	var key [chacha20.KeySize]byte
	key[0] = byte(d.Seed)
	key[1] = byte(d.Seed >> 8)
	key[2] = byte(d.Seed >> 16)
	key[3] = byte(d.Seed >> 24)
	key[4] = byte(d.Seed >> 32)
	key[5] = byte(d.Seed >> 40)
	key[6] = byte(d.Seed >> 48)
	key[7] = byte(d.Seed >> 56)

	stream, err := chacha20.NewUnauthenticatedCipher(key[:], nonce[:])
	if err != nil {
		return nil, fmt.Errorf("init account keystream: %w", err)
	}

	accounts := make([]Account, d.Count)
	for i := 0; i < d.Count; i++ {
		priv, err := nextFelt(stream)
		if err != nil {
			return nil, err
		}
		pub := derivePublicKey(priv)
		addr := deriveAddress(d.AccountClassHash, pub, i)
		accounts[i] = Account{Index: i, Address: addr, PublicKey: pub, PrivateKey: priv}
	}
	return accounts, nil
}

// nextFelt draws 32 bytes from the keystream and reduces them into the
// field (SetBytes always succeeds, folding any out-of-range draw back into
// [0, P) the same way felt.New does).
func nextFelt(stream cipher.Stream) (*felt.Felt, error) {
	buf := make([]byte, 32)
	stream.XORKeyStream(buf, buf)
	return felt.New(buf), nil
}

// derivePublicKey stands in for stark-curve scalar multiplication
// (priv * G): the VM's signature verification is itself abstract (spec
// non-goal), so the public key only needs to be a stable, distinct
// function of the private key, not a real curve point.
func derivePublicKey(priv *felt.Felt) *felt.Felt {
	return crypto.PoseidonArray(new(felt.Felt).SetBytes([]byte("pubkey")), priv)
}

// deriveAddress computes the account contract's address in the shape of
// DEPLOY_ACCOUNT's derivation, Pedersen(prefix, deployer, salt, classHash,
// calldataHash) with salt equal to the public key and no deployer
// (self-deployment), plus the account index as a sixth element. The index
// makes the result differ from the address a DEPLOY_ACCOUNT with the same
// inputs would get.
func deriveAddress(classHash, pubKey *felt.Felt, index int) *felt.Felt {
	calldataHash := crypto.PedersenArray(pubKey)
	return crypto.PedersenArray(
		new(felt.Felt).SetBytes([]byte("STARKNET_CONTRACT_ADDRESS")),
		&felt.Zero,
		pubKey,
		classHash,
		calldataHash,
		new(felt.Felt).SetUint64(uint64(index)),
	)
}

// Plan is the full set of predeployed assets a fresh devnet state needs
// seeded before it accepts its first transaction.
type Plan struct {
	FeeTokens         []FeeToken
	UDCClass          core.Class
	UDCAddr           *felt.Felt
	Accounts          []Account
	AccountClass      core.Class // nil declares no account class; accounts are still deployed under AccountClassHash
	AccountClassHash  *felt.Felt
	FeeTokenClassHash *felt.Felt
	InitialBalance    *big.Int
}

// FeeTokenClassHash identifies the placeholder class every fee token is
// "deployed" under; the interpreter dispatches purely on selector, never on
// class hash, so this only needs to be a stable, distinct value for
// GetClassHashAt/DeployContract bookkeeping.
var FeeTokenClassHash = mustFeltFromUint64(0xfee_70ce1)

// store is the narrow slice of worldstate.Store a Plan needs to seed
// itself, kept as an interface so tests can substitute an in-memory fake.
type store interface {
	DeclareClass(classHash *felt.Felt, class core.Class, compiledClassHash *felt.Felt, blockNumber uint64) error
	DeployContract(addr, classHash *felt.Felt, blockNumber uint64) error
	SetStorage(addr, key, value *felt.Felt, blockNumber uint64) error
}

// Seed deploys every predeployed asset against s at blockNumber: the UDC,
// both fee tokens (with their ERC20 metadata storage vars), and every
// derived account, each funded with InitialBalance on both fee tokens.
// Grounded on predeployed.rs's Starknet::new two-step
// (create_erc20_at_address/initialize_erc20_at_address, then
// system_account.rs's Accounted.deploy declare-if-new-then-deploy), folded
// into one idempotent call since this devnet always starts from an empty
// store or a just-Reset one.
func (p Plan) Seed(s store, blockNumber uint64) error {
	if p.UDCClass != nil {
		if err := s.DeclareClass(UDCClassHash, p.UDCClass, nil, blockNumber); err != nil {
			return fmt.Errorf("declare UDC class: %w", err)
		}
	}
	if p.UDCAddr != nil {
		if err := s.DeployContract(p.UDCAddr, UDCClassHash, blockNumber); err != nil {
			return fmt.Errorf("deploy UDC: %w", err)
		}
	}

	feeClassHash := p.FeeTokenClassHash
	if feeClassHash == nil {
		feeClassHash = FeeTokenClassHash
	}
	for _, token := range p.FeeTokens {
		if err := s.DeployContract(token.Address, feeClassHash, blockNumber); err != nil {
			return fmt.Errorf("deploy fee token %s: %w", token.Symbol, err)
		}
		for key, val := range token.StorageSeed() {
			k := key
			if err := s.SetStorage(token.Address, &k, val, blockNumber); err != nil {
				return fmt.Errorf("seed fee token %s storage: %w", token.Symbol, err)
			}
		}
	}

	if p.AccountClassHash != nil && p.AccountClass != nil {
		if err := s.DeclareClass(p.AccountClassHash, p.AccountClass, nil, blockNumber); err != nil {
			return fmt.Errorf("declare account class: %w", err)
		}
	}
	balance := new(felt.Felt)
	if p.InitialBalance != nil {
		balance.SetBigInt(p.InitialBalance)
	}
	for _, acc := range p.Accounts {
		if p.AccountClassHash != nil {
			if err := s.DeployContract(acc.Address, p.AccountClassHash, blockNumber); err != nil {
				return fmt.Errorf("deploy account %d: %w", acc.Index, err)
			}
		}
		for _, token := range p.FeeTokens {
			if err := s.SetStorage(token.Address, balanceKey(acc.Address), balance, blockNumber); err != nil {
				return fmt.Errorf("fund account %d: %w", acc.Index, err)
			}
		}
	}
	return nil
}

// balanceKey matches vm.balanceKey's convention for the ERC20_balances
// storage variable, duplicated rather than imported to avoid a dependency
// cycle between predeployed (which seeds balances) and vm (which debits/
// credits them).
func balanceKey(addr *felt.Felt) *felt.Felt {
	return crypto.PedersenArray(storageVarAddress("ERC20_balances"), addr)
}
