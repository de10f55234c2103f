package rpc

import (
	"encoding/json"
	"fmt"
)

// BlockTag is the symbolic block selector alongside a concrete
// number/hash.
type BlockTag string

const (
	TagLatest       BlockTag = "latest"
	TagPreConfirmed BlockTag = "pre_confirmed"
)

// BlockID is the devnet's JSON-RPC block_id parameter: either the string
// "latest"/"pre_confirmed" or an object naming a block_hash or
// block_number.
type BlockID struct {
	Tag       BlockTag
	Number    uint64
	Hash      string
	HasNumber bool
	HasHash   bool
}

func (b *BlockID) UnmarshalJSON(data []byte) error {
	var tag string
	if err := json.Unmarshal(data, &tag); err == nil {
		switch BlockTag(tag) {
		case TagLatest, TagPreConfirmed:
			b.Tag = BlockTag(tag)
			return nil
		default:
			return fmt.Errorf("unknown block tag %q", tag)
		}
	}
	var obj struct {
		BlockNumber *uint64 `json:"block_number"`
		BlockHash   *string `json:"block_hash"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("invalid block_id: %w", err)
	}
	if obj.BlockNumber != nil {
		b.Number = *obj.BlockNumber
		b.HasNumber = true
		return nil
	}
	if obj.BlockHash != nil {
		b.Hash = *obj.BlockHash
		b.HasHash = true
		return nil
	}
	return fmt.Errorf("block_id must set block_number, block_hash, or a tag")
}

// IsLatest reports whether b resolves to the chain head (the default
// "latest", or "pre_confirmed" once a pending block is also treated as
// head for read purposes; see devnet.resolveBlock).
func (b BlockID) IsLatest() bool {
	return !b.HasNumber && !b.HasHash
}
