package rpc

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/NethermindEth/starknet-devnet-go/core"
	"github.com/NethermindEth/starknet-devnet-go/core/block"
	"github.com/NethermindEth/starknet-devnet-go/core/felt"
	"github.com/NethermindEth/starknet-devnet-go/core/worldstate"
	"github.com/NethermindEth/starknet-devnet-go/jsonrpc"
	"github.com/NethermindEth/starknet-devnet-go/utils"
)

// specVersion is the Starknet JSON-RPC spec revision this facade tracks.
const specVersion = "0.8.1"

func (d *Devnet) SpecVersion() (string, *jsonrpc.Error) {
	ok, finish := d.guard("starknet_specVersion")
	if !ok {
		return "", errMethodForbidden()
	}
	defer finish(false)
	return specVersion, nil
}

// Syncing always reports false: the devnet is its own sequencer and has
// nothing to catch up to.
func (d *Devnet) Syncing() (bool, *jsonrpc.Error) {
	ok, finish := d.guard("starknet_syncing")
	if !ok {
		return false, errMethodForbidden()
	}
	defer finish(false)
	return false, nil
}

// stateReaders is the per-block-id view of world state handed to the
// get_nonce/get_storage/get_class_hash read handlers: the live store for
// latest/pre_confirmed reads, a pinned snapshot for historical block ids
// under ArchiveFull.
type stateReaders struct {
	storage   func(addr, key *felt.Felt) (*felt.Felt, error)
	nonce     func(addr *felt.Felt) (*felt.Felt, error)
	classHash func(addr *felt.Felt) (*felt.Felt, error)
}

func (d *Devnet) stateAt(id BlockID) (*stateReaders, *jsonrpc.Error) {
	b, rerr := d.resolveBlock(id)
	if rerr != nil {
		return nil, rerr
	}
	head, _ := d.cfg.Producer.Store().Head()
	isLive := id.IsLatest() || id.Tag == TagPreConfirmed || (head != nil && b.Number >= head.Number)
	if isLive {
		return &stateReaders{
			storage:   d.cfg.Store.GetStorageAt,
			nonce:     d.cfg.Store.GetNonceAt,
			classHash: d.cfg.Store.GetClassHashAt,
		}, nil
	}
	if d.cfg.Store.Archive() != worldstate.ArchiveFull {
		return nil, errBlockNotFound()
	}
	snap, ok := d.cfg.Producer.BlockState(b.Number)
	if !ok {
		return nil, errBlockNotFound()
	}
	return &stateReaders{
		storage:   snap.StorageAt,
		nonce:     snap.NonceAt,
		classHash: snap.ClassHashAt,
	}, nil
}

// ResolveBlockID validates a block_id against the current chain (used by
// the WebSocket transport to vet subscription bounds before registering),
// returning the resolved block number.
func (d *Devnet) ResolveBlockID(id BlockID) (uint64, *jsonrpc.Error) {
	b, rerr := d.resolveBlock(id)
	if rerr != nil {
		return 0, rerr
	}
	return b.Number, nil
}

func (d *Devnet) GetBlockWithTxs(id BlockID) (map[string]any, *jsonrpc.Error) {
	ok, finish := d.guard("starknet_getBlockWithTxs")
	if !ok {
		return nil, errMethodForbidden()
	}
	b, rerr := d.resolveBlock(id)
	if rerr != nil {
		finish(true)
		return nil, rerr
	}
	txs := make([]transactionDTO, 0, len(b.Transactions))
	for _, h := range b.Transactions {
		if rec, found := d.cfg.Producer.Store().Transaction(h); found {
			txs = append(txs, toTransactionDTO(rec.Transaction))
		}
	}
	dto := toBlockDTO(b)
	finish(false)
	return map[string]any{
		"block_number":      dto.BlockNumber,
		"block_hash":        dto.BlockHash,
		"parent_hash":       dto.ParentHash,
		"new_root":          dto.NewRoot,
		"timestamp":         dto.Timestamp,
		"sequencer_address": dto.SequencerAddress,
		"status":            dto.Status,
		"l1_gas_price":      dto.L1GasPrice,
		"l1_data_gas_price": dto.L1DataGasPrice,
		"l2_gas_price":      dto.L2GasPrice,
		"transactions":      txs,
	}, nil
}

func (d *Devnet) GetBlockTransactionCount(id BlockID) (int, *jsonrpc.Error) {
	ok, finish := d.guard("starknet_getBlockTransactionCount")
	if !ok {
		return 0, errMethodForbidden()
	}
	b, rerr := d.resolveBlock(id)
	if rerr != nil {
		finish(true)
		return 0, rerr
	}
	finish(false)
	return len(b.Transactions), nil
}

func (d *Devnet) GetTransactionByBlockIDAndIndex(id BlockID, index uint64) (transactionDTO, *jsonrpc.Error) {
	ok, finish := d.guard("starknet_getTransactionByBlockIdAndIndex")
	if !ok {
		return transactionDTO{}, errMethodForbidden()
	}
	b, rerr := d.resolveBlock(id)
	if rerr != nil {
		finish(true)
		return transactionDTO{}, rerr
	}
	if index >= uint64(len(b.Transactions)) {
		finish(true)
		return transactionDTO{}, errWith(CodeInvalidTransactionIndex, "Invalid transaction index in a block", nil)
	}
	rec, found := d.cfg.Producer.Store().Transaction(b.Transactions[index])
	if !found {
		finish(true)
		return transactionDTO{}, errTxHashNotFound()
	}
	finish(false)
	return toTransactionDTO(rec.Transaction), nil
}

func (d *Devnet) GetTransactionStatus(hash FeltParam) (map[string]any, *jsonrpc.Error) {
	ok, finish := d.guard("starknet_getTransactionStatus")
	if !ok {
		return nil, errMethodForbidden()
	}
	rec, found := d.cfg.Producer.Store().Transaction(&hash.Felt)
	if !found {
		finish(true)
		return nil, errTxHashNotFound()
	}
	finish(false)
	out := map[string]any{
		"finality_status":  rec.Receipt.FinalityStatus.String(),
		"execution_status": rec.Receipt.ExecutionStatus.String(),
	}
	if rec.Receipt.RevertReason != "" {
		out["failure_reason"] = rec.Receipt.RevertReason
	}
	return out, nil
}

func (d *Devnet) GetClassAt(id BlockID, address FeltParam) (map[string]any, *jsonrpc.Error) {
	ok, finish := d.guard("starknet_getClassAt")
	if !ok {
		return nil, errMethodForbidden()
	}
	readers, rerr := d.stateAt(id)
	if rerr != nil {
		finish(true)
		return nil, rerr
	}
	classHash, err := readers.classHash(&address.Felt)
	if err != nil {
		finish(true)
		return nil, errContractNotFound()
	}
	decl, err := d.cfg.Store.GetClass(classHash)
	if err != nil {
		finish(true)
		return nil, errClassHashNotFound()
	}
	finish(false)
	switch c := decl.Class.(type) {
	case *core.Cairo0Class:
		return map[string]any{"program": c.Program, "abi": c.Abi}, nil
	case *core.Cairo1Class:
		return map[string]any{
			"sierra_program":         utils.Map(c.Program, func(f *felt.Felt) string { return f.Text(felt.Base16) }),
			"abi":                    c.Abi,
			"contract_class_version": c.SemanticVersion,
		}, nil
	default:
		return nil, errUnexpected("unknown class variant")
	}
}

func (d *Devnet) GetStateUpdate(id BlockID) (map[string]any, *jsonrpc.Error) {
	ok, finish := d.guard("starknet_getStateUpdate")
	if !ok {
		return nil, errMethodForbidden()
	}
	b, rerr := d.resolveBlock(id)
	if rerr != nil {
		finish(true)
		return nil, rerr
	}
	finish(false)
	deployed := utils.Map(b.StateDiff.DeployedContracts, func(a *felt.Felt) map[string]any {
		return map[string]any{"address": a.Text(felt.Base16)}
	})
	declared := utils.Map(b.StateDiff.DeclaredClasses, func(h *felt.Felt) map[string]any {
		return map[string]any{"class_hash": h.Text(felt.Base16)}
	})
	return map[string]any{
		"block_hash": b.Hash.Text(felt.Base16),
		"old_root":   felt.Zero.Text(felt.Base16),
		"new_root":   b.StateRoot.Text(felt.Base16),
		"state_diff": map[string]any{
			"deployed_contracts": deployed,
			"declared_classes":   declared,
			"storage_diffs":      []any{},
			"nonces":             []any{},
		},
	}, nil
}

// EventsFilter is starknet_getEvents' filter parameter.
type EventsFilter struct {
	FromBlock         *BlockID   `json:"from_block"`
	ToBlock           *BlockID   `json:"to_block"`
	Address           string     `json:"address"`
	Keys              [][]string `json:"keys"`
	ContinuationToken string     `json:"continuation_token"`
	ChunkSize         int        `json:"chunk_size"`
}

// eventCursor is the decoded continuation token: the next (block, tx,
// event) triple to emit.
type eventCursor struct {
	block uint64
	tx    int
	event int
}

func parseContinuationToken(s string) (eventCursor, error) {
	if s == "" {
		return eventCursor{}, nil
	}
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return eventCursor{}, fmt.Errorf("malformed continuation token %q", s)
	}
	b, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return eventCursor{}, err
	}
	tx, err := strconv.Atoi(parts[1])
	if err != nil {
		return eventCursor{}, err
	}
	ev, err := strconv.Atoi(parts[2])
	if err != nil {
		return eventCursor{}, err
	}
	return eventCursor{block: b, tx: tx, event: ev}, nil
}

func (c eventCursor) String() string {
	return fmt.Sprintf("%d-%d-%d", c.block, c.tx, c.event)
}

// GetEvents pages through every event emitted in the requested block
// range, filtered by address and the positional key-set convention
// (subscription.keysMatch's rules, reused here via the same matching
// helper shape).
func (d *Devnet) GetEvents(filter EventsFilter) (map[string]any, *jsonrpc.Error) {
	ok, finish := d.guard("starknet_getEvents")
	if !ok {
		return nil, errMethodForbidden()
	}
	cursor, err := parseContinuationToken(filter.ContinuationToken)
	if err != nil {
		finish(true)
		return nil, errWith(CodeInvalidContinuationToken, "The supplied continuation token is invalid or unknown", err.Error())
	}

	from := uint64(0)
	head, hasHead := d.cfg.Producer.Store().Head()
	if !hasHead {
		finish(true)
		return nil, errBlockNotFound()
	}
	to := head.Number
	if filter.FromBlock != nil {
		b, rerr := d.resolveBlock(*filter.FromBlock)
		if rerr != nil {
			finish(true)
			return nil, rerr
		}
		from = b.Number
	}
	if filter.ToBlock != nil {
		b, rerr := d.resolveBlock(*filter.ToBlock)
		if rerr != nil {
			finish(true)
			return nil, rerr
		}
		to = b.Number
	}

	var addrFilter *felt.Felt
	if filter.Address != "" {
		addrFilter, err = felt.FromHex(filter.Address)
		if err != nil {
			finish(true)
			return nil, errContractNotFound()
		}
	}
	keyFilter, ferr := parseKeyFilter(filter.Keys)
	if ferr != nil {
		finish(true)
		return nil, errUnexpected(ferr.Error())
	}

	chunk := filter.ChunkSize
	if chunk <= 0 {
		chunk = 50
	}

	events := make([]map[string]any, 0, chunk)
	var next *eventCursor
	if cursor.block < from {
		cursor = eventCursor{block: from}
	}

scan:
	for n := cursor.block; n <= to; n++ {
		b, found := d.cfg.Producer.Store().Block(n)
		if !found || b.Status == block.StatusAborted {
			continue
		}
		startTx := 0
		if n == cursor.block {
			startTx = cursor.tx
		}
		for ti := startTx; ti < len(b.Transactions); ti++ {
			rec, found := d.cfg.Producer.Store().Transaction(b.Transactions[ti])
			if !found {
				continue
			}
			startEv := 0
			if n == cursor.block && ti == cursor.tx {
				startEv = cursor.event
			}
			for ei := startEv; ei < len(rec.Receipt.Events); ei++ {
				ev := rec.Receipt.Events[ei]
				if addrFilter != nil && !addrFilter.Equal(ev.From) {
					continue
				}
				if !eventKeysMatch(keyFilter, ev.Keys) {
					continue
				}
				if len(events) == chunk {
					next = &eventCursor{block: n, tx: ti, event: ei}
					break scan
				}
				events = append(events, map[string]any{
					"from_address":     ev.From.Text(felt.Base16),
					"keys":             utils.Map(ev.Keys, func(f *felt.Felt) string { return f.Text(felt.Base16) }),
					"data":             utils.Map(ev.Data, func(f *felt.Felt) string { return f.Text(felt.Base16) }),
					"block_hash":       b.Hash.Text(felt.Base16),
					"block_number":     b.Number,
					"transaction_hash": rec.Transaction.Hash().Text(felt.Base16),
				})
			}
		}
	}

	finish(false)
	out := map[string]any{"events": events}
	if next != nil {
		out["continuation_token"] = next.String()
	}
	return out, nil
}

func parseKeyFilter(keys [][]string) ([][]*felt.Felt, error) {
	if keys == nil {
		return nil, nil
	}
	out := make([][]*felt.Felt, len(keys))
	for i, accepted := range keys {
		out[i] = make([]*felt.Felt, len(accepted))
		for j, s := range accepted {
			f, err := felt.FromHex(s)
			if err != nil {
				return nil, err
			}
			out[i][j] = f
		}
	}
	return out, nil
}

// eventKeysMatch applies the positional key-set filter: filter[i] lists
// acceptable values for key i, an empty inner list accepts anything.
func eventKeysMatch(filter [][]*felt.Felt, keys []*felt.Felt) bool {
	if len(filter) > len(keys) {
		return false
	}
	for i, accepted := range filter {
		if len(accepted) == 0 {
			continue
		}
		found := false
		for _, a := range accepted {
			if a.Equal(keys[i]) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
