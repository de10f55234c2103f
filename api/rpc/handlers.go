package rpc

import (
	"time"

	"github.com/NethermindEth/starknet-devnet-go/core"
	"github.com/NethermindEth/starknet-devnet-go/core/block"
	"github.com/NethermindEth/starknet-devnet-go/core/felt"
	"github.com/NethermindEth/starknet-devnet-go/jsonrpc"
)

// guard checks restrictive-mode gating and starts the call-duration timer
// shared by every handler; callers defer the returned func with the
// handler's own success/failure outcome.
func (d *Devnet) guard(name string) (ok bool, finish func(failed bool)) {
	start := time.Now()
	if d.restricted(name) {
		d.recordCall(name, start, true)
		return false, func(bool) {}
	}
	return true, func(failed bool) { d.recordCall(name, start, failed) }
}

func (d *Devnet) resolveBlock(id BlockID) (*block.Block, *jsonrpc.Error) {
	switch {
	case id.HasNumber:
		b, ok := d.cfg.Producer.Store().Block(id.Number)
		if !ok || b.Status == block.StatusAborted {
			return nil, errBlockNotFound()
		}
		return b, nil
	case id.HasHash:
		hashFelt, err := felt.FromHex(id.Hash)
		if err != nil {
			return nil, errBlockNotFound()
		}
		head, ok := d.cfg.Producer.Store().Head()
		if !ok {
			return nil, errBlockNotFound()
		}
		for n := head.Number; ; n-- {
			if b, ok := d.cfg.Producer.Store().Block(n); ok && b.Hash.Equal(hashFelt) {
				if b.Status == block.StatusAborted {
					return nil, errBlockNotFound()
				}
				return b, nil
			}
			if n == 0 {
				break
			}
		}
		return nil, errBlockNotFound()
	case id.Tag == TagPreConfirmed:
		head, _ := d.cfg.Producer.Store().Head()
		return &block.Block{
			Number:       d.cfg.Producer.PendingNumber(),
			Status:       block.StatusPreConfirmed,
			Transactions: d.cfg.Producer.PendingTransactionHashes(),
			ParentHash:   headHash(head),
			StateRoot:    &felt.Zero,
			GasPrices:    d.cfg.Producer.GasPrice(),
			Hash:         &felt.Zero,
		}, nil
	default: // "latest" or unset
		b, ok := d.cfg.Producer.Store().Head()
		if !ok {
			return nil, errBlockNotFound()
		}
		return b, nil
	}
}

func headHash(head *block.Block) *felt.Felt {
	if head == nil {
		return &felt.Zero
	}
	return head.Hash
}

func (d *Devnet) ChainID() (string, *jsonrpc.Error) {
	ok, finish := d.guard("starknet_chainId")
	if !ok {
		return "", errMethodForbidden()
	}
	defer finish(false)
	return d.cfg.ChainID.Felt().Text(felt.Base16), nil
}

func (d *Devnet) BlockNumber() (uint64, *jsonrpc.Error) {
	ok, finish := d.guard("starknet_blockNumber")
	if !ok {
		return 0, errMethodForbidden()
	}
	head, found := d.cfg.Producer.Store().Head()
	if !found {
		finish(true)
		return 0, errBlockNotFound()
	}
	finish(false)
	return head.Number, nil
}

func (d *Devnet) BlockHashAndNumber() (map[string]any, *jsonrpc.Error) {
	ok, finish := d.guard("starknet_blockHashAndNumber")
	if !ok {
		return nil, errMethodForbidden()
	}
	head, found := d.cfg.Producer.Store().Head()
	if !found {
		finish(true)
		return nil, errBlockNotFound()
	}
	finish(false)
	return map[string]any{
		"block_hash":   head.Hash.Text(felt.Base16),
		"block_number": head.Number,
	}, nil
}

func (d *Devnet) GetBlockWithTxHashes(id BlockID) (blockDTO, *jsonrpc.Error) {
	ok, finish := d.guard("starknet_getBlockWithTxHashes")
	if !ok {
		return blockDTO{}, errMethodForbidden()
	}
	b, rerr := d.resolveBlock(id)
	if rerr != nil {
		finish(true)
		return blockDTO{}, rerr
	}
	finish(false)
	return toBlockDTO(b), nil
}

func (d *Devnet) GetNonce(id BlockID, address FeltParam) (string, *jsonrpc.Error) {
	ok, finish := d.guard("starknet_getNonce")
	if !ok {
		return "", errMethodForbidden()
	}
	readers, rerr := d.stateAt(id)
	if rerr != nil {
		finish(true)
		return "", rerr
	}
	n, err := readers.nonce(&address.Felt)
	if err != nil {
		finish(true)
		return "", errContractNotFound()
	}
	finish(false)
	return n.Text(felt.Base16), nil
}

func (d *Devnet) GetStorageAt(address, key FeltParam, id BlockID) (string, *jsonrpc.Error) {
	ok, finish := d.guard("starknet_getStorageAt")
	if !ok {
		return "", errMethodForbidden()
	}
	readers, rerr := d.stateAt(id)
	if rerr != nil {
		finish(true)
		return "", rerr
	}
	v, err := readers.storage(&address.Felt, &key.Felt)
	if err != nil {
		finish(true)
		return "", errContractNotFound()
	}
	finish(false)
	return v.Text(felt.Base16), nil
}

func (d *Devnet) GetClassHashAt(id BlockID, address FeltParam) (string, *jsonrpc.Error) {
	ok, finish := d.guard("starknet_getClassHashAt")
	if !ok {
		return "", errMethodForbidden()
	}
	readers, rerr := d.stateAt(id)
	if rerr != nil {
		finish(true)
		return "", rerr
	}
	ch, err := readers.classHash(&address.Felt)
	if err != nil {
		finish(true)
		return "", errContractNotFound()
	}
	finish(false)
	return ch.Text(felt.Base16), nil
}

func (d *Devnet) GetTransactionByHash(hash FeltParam) (transactionDTO, *jsonrpc.Error) {
	ok, finish := d.guard("starknet_getTransactionByHash")
	if !ok {
		return transactionDTO{}, errMethodForbidden()
	}
	rec, found := d.cfg.Producer.Store().Transaction(&hash.Felt)
	if !found {
		finish(true)
		return transactionDTO{}, errTxHashNotFound()
	}
	finish(false)
	return toTransactionDTO(rec.Transaction), nil
}

func (d *Devnet) GetTransactionReceipt(hash FeltParam) (receiptDTO, *jsonrpc.Error) {
	ok, finish := d.guard("starknet_getTransactionReceipt")
	if !ok {
		return receiptDTO{}, errMethodForbidden()
	}
	rec, found := d.cfg.Producer.Store().Transaction(&hash.Felt)
	if !found {
		finish(true)
		return receiptDTO{}, errTxHashNotFound()
	}
	finish(false)
	return toReceiptDTO(rec.Transaction.Kind(), rec.Receipt), nil
}

// GetStorageProof always rejects: a block-not-found
// takes precedence over the blanket not-supported error.
func (d *Devnet) GetStorageProof(id BlockID) (any, *jsonrpc.Error) {
	ok, finish := d.guard("starknet_getStorageProof")
	if !ok {
		return nil, errMethodForbidden()
	}
	if _, rerr := d.resolveBlock(id); rerr != nil {
		finish(true)
		return nil, rerr
	}
	finish(true)
	return nil, errStorageProofNotSupported()
}

func (d *Devnet) GetClass(id BlockID, classHash FeltParam) (map[string]any, *jsonrpc.Error) {
	ok, finish := d.guard("starknet_getClass")
	if !ok {
		return nil, errMethodForbidden()
	}
	if _, rerr := d.resolveBlock(id); rerr != nil {
		finish(true)
		return nil, rerr
	}
	decl, err := d.cfg.Store.GetClass(&classHash.Felt)
	if err != nil {
		finish(true)
		return nil, errClassHashNotFound()
	}
	finish(false)
	switch c := decl.Class.(type) {
	case *core.Cairo0Class:
		return map[string]any{"program": c.Program, "abi": c.Abi}, nil
	case *core.Cairo1Class:
		return map[string]any{"sierra_program": c.Program, "abi": c.Abi, "contract_class_version": c.SemanticVersion}, nil
	default:
		return nil, errUnexpected("unknown class variant")
	}
}
