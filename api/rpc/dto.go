package rpc

import (
	"github.com/NethermindEth/starknet-devnet-go/core"
	"github.com/NethermindEth/starknet-devnet-go/core/block"
	"github.com/NethermindEth/starknet-devnet-go/core/felt"
)

// FeltParam decodes a single hex/decimal-string felt parameter.
type FeltParam struct{ felt.Felt }

func (p *FeltParam) UnmarshalJSON(data []byte) error { return p.Felt.UnmarshalJSON(data) }

// blockDTO is the wire shape for a sealed Block.
type blockDTO struct {
	BlockNumber      uint64   `json:"block_number"`
	BlockHash        string   `json:"block_hash"`
	ParentHash       string   `json:"parent_hash"`
	NewRoot          string   `json:"new_root"`
	Timestamp        uint64   `json:"timestamp"`
	SequencerAddress string   `json:"sequencer_address"`
	Status           string   `json:"status"`
	Transactions     []string `json:"transactions"`
	L1GasPrice       string   `json:"l1_gas_price"`
	L1DataGasPrice   string   `json:"l1_data_gas_price"`
	L2GasPrice       string   `json:"l2_gas_price"`
}

func toBlockDTO(b *block.Block) blockDTO {
	txs := make([]string, len(b.Transactions))
	for i, h := range b.Transactions {
		txs[i] = h.Text(felt.Base16)
	}
	return blockDTO{
		BlockNumber:      b.Number,
		BlockHash:        b.Hash.Text(felt.Base16),
		ParentHash:       b.ParentHash.Text(felt.Base16),
		NewRoot:          b.StateRoot.Text(felt.Base16),
		Timestamp:        b.Timestamp,
		SequencerAddress: b.SequencerAddress.Text(felt.Base16),
		Status:           b.Status.String(),
		Transactions:     txs,
		L1GasPrice:       b.GasPrices.L1Gas.Text(felt.Base16),
		L1DataGasPrice:   b.GasPrices.L1DataGas.Text(felt.Base16),
		L2GasPrice:       b.GasPrices.L2Gas.Text(felt.Base16),
	}
}

// receiptDTO is the wire shape for a Receipt.
type receiptDTO struct {
	TransactionHash string `json:"transaction_hash"`
	Type            string `json:"type"`
	ActualFee       string `json:"actual_fee"`
	ExecutionStatus string `json:"execution_status"`
	FinalityStatus  string `json:"finality_status"`
	RevertReason    string `json:"revert_reason,omitempty"`
	BlockHash       string `json:"block_hash,omitempty"`
	BlockNumber     uint64 `json:"block_number"`
	ContractAddress string `json:"contract_address,omitempty"`
}

func toReceiptDTO(kind string, r *core.Receipt) receiptDTO {
	dto := receiptDTO{
		TransactionHash: r.TransactionHash.Text(felt.Base16),
		Type:            kind,
		ActualFee:       feltOrZero(r.ActualFee).Text(felt.Base16),
		ExecutionStatus: r.ExecutionStatus.String(),
		FinalityStatus:  r.FinalityStatus.String(),
		RevertReason:    r.RevertReason,
		BlockNumber:     r.BlockNumber,
	}
	if r.BlockHash != nil {
		dto.BlockHash = r.BlockHash.Text(felt.Base16)
	}
	if r.ContractAddress != nil {
		dto.ContractAddress = r.ContractAddress.Text(felt.Base16)
	}
	return dto
}

// transactionDTO is a minimal wire shape for starknet_getTransactionByHash.
type transactionDTO struct {
	TransactionHash string `json:"transaction_hash"`
	Type            string `json:"type"`
	Version         string `json:"version"`
	SenderAddress   string `json:"sender_address,omitempty"`
	Nonce           string `json:"nonce,omitempty"`
}

func toTransactionDTO(t *core.Transaction) transactionDTO {
	dto := transactionDTO{
		TransactionHash: t.Hash().Text(felt.Base16),
		Type:            t.Kind(),
		Version:         new(felt.Felt).SetUint64(t.Version()).Text(felt.Base16),
	}
	if s := t.Sender(); s != nil {
		dto.SenderAddress = s.Text(felt.Base16)
	}
	if n := t.Nonce(); n != nil {
		dto.Nonce = n.Text(felt.Base16)
	}
	return dto
}
