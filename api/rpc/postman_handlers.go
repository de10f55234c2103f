package rpc

import (
	"encoding/json"

	"github.com/NethermindEth/starknet-devnet-go/core"
	"github.com/NethermindEth/starknet-devnet-go/core/felt"
	"github.com/NethermindEth/starknet-devnet-go/core/messaging"
	"github.com/NethermindEth/starknet-devnet-go/jsonrpc"
	"github.com/ethereum/go-ethereum/common"
)

// PostmanLoadParams is devnet_postmanLoad / POST /postman/
// load_l1_messaging_contract's body. NetworkURL is accepted for parity
// with the upstream surface but the devnet never dials a real L1 node.
type PostmanLoadParams struct {
	NetworkURL string `json:"network_url"`
	Address    string `json:"address"`
}

func (d *Devnet) postmanBroker() (*messaging.Broker, *jsonrpc.Error) {
	if d.cfg.Broker == nil {
		return nil, errUnexpected("messaging broker not configured")
	}
	return d.cfg.Broker, nil
}

// PostmanLoad records the L1 messaging contract address the rest of the
// postman surface operates against.
func (d *Devnet) PostmanLoad(networkURL, address string) (map[string]any, *jsonrpc.Error) {
	ok, finish := d.guard("devnet_postmanLoad")
	if !ok {
		return nil, errMethodForbidden()
	}
	broker, rerr := d.postmanBroker()
	if rerr != nil {
		finish(true)
		return nil, rerr
	}
	if !common.IsHexAddress(address) {
		finish(true)
		return nil, errUnexpected("invalid L1 contract address: " + address)
	}
	broker.LoadL1Contract(common.HexToAddress(address))
	d.recordMutatingCall("devnet_postmanLoad", PostmanLoadParams{NetworkURL: networkURL, Address: address})
	finish(false)
	return map[string]any{"messaging_contract_address": common.HexToAddress(address).Hex()}, nil
}

// PostmanFlush reports every L2->L1 message collected from receipts since
// the previous flush. With no real L1 to settle against, flushing is the
// read half of the exchange: L1->L2 messages arrive individually via
// send_message_to_l2 instead of being pulled from an L1 log.
func (d *Devnet) PostmanFlush() (map[string]any, *jsonrpc.Error) {
	ok, finish := d.guard("devnet_postmanFlush")
	if !ok {
		return nil, errMethodForbidden()
	}
	broker, rerr := d.postmanBroker()
	if rerr != nil {
		finish(true)
		return nil, rerr
	}
	if _, loaded := broker.L1Contract(); !loaded {
		finish(true)
		return nil, errUnexpected(messaging.ErrNoL1Contract.Error())
	}
	sent := d.drainSentMessages()
	finish(false)
	return map[string]any{
		"messages_to_l1": sent,
		"messages_to_l2": []any{},
		"l1_provider":    "mock",
	}, nil
}

// drainSentMessages walks receipts for L2->L1 messages not yet handed to
// the broker and registers them in the outbox.
func (d *Devnet) drainSentMessages() []messaging.MessageToL1 {
	head, ok := d.cfg.Producer.Store().Head()
	if !ok {
		return nil
	}
	var collected []messaging.MessageToL1
	for n := uint64(0); n <= head.Number; n++ {
		b, found := d.cfg.Producer.Store().Block(n)
		if !found {
			continue
		}
		for _, h := range b.Transactions {
			rec, found := d.cfg.Producer.Store().Transaction(h)
			if !found || len(rec.Receipt.L2ToL1Messages) == 0 {
				continue
			}
			collected = append(collected, d.cfg.Broker.CollectSent(rec.Receipt.L2ToL1Messages)...)
			rec.Receipt.L2ToL1Messages = nil // drained; a second flush must not double-register
		}
	}
	return collected
}

// PostmanSendMessageToL2 turns an L1-origin message into an L1_HANDLER
// transaction and drives it through the ordinary submit path, exactly as
// a message relayed from a real L1 log would be.
func (d *Devnet) PostmanSendMessageToL2(l2ContractAddress, entryPointSelector, l1ContractAddress string, payload []string, paidFeeOnL1 string, nonce string) (map[string]any, *jsonrpc.Error) {
	ok, finish := d.guard("devnet_postmanSendMessageToL2")
	if !ok {
		return nil, errMethodForbidden()
	}
	broker, rerr := d.postmanBroker()
	if rerr != nil {
		finish(true)
		return nil, rerr
	}

	to, err := felt.FromHex(l2ContractAddress)
	if err != nil {
		finish(true)
		return nil, errContractNotFound()
	}
	selector, err := felt.FromHex(entryPointSelector)
	if err != nil {
		finish(true)
		return nil, errUnexpected(err.Error())
	}
	if !common.IsHexAddress(l1ContractAddress) {
		finish(true)
		return nil, errUnexpected("invalid L1 contract address: " + l1ContractAddress)
	}
	payloadFelts, err := parseFelts(payload)
	if err != nil {
		finish(true)
		return nil, errUnexpected(err.Error())
	}
	fee, err := feltOrZeroHex(paidFeeOnL1)
	if err != nil {
		finish(true)
		return nil, errUnexpected(err.Error())
	}
	var nonceFelt *felt.Felt
	if nonce == "" {
		nonceFelt = broker.NextNonce()
	} else if nonceFelt, err = felt.FromHex(nonce); err != nil {
		finish(true)
		return nil, errUnexpected(err.Error())
	}

	msg := &messaging.MessageToL2{
		L2ContractAddress:  to,
		EntryPointSelector: selector,
		L1ContractAddress:  common.HexToAddress(l1ContractAddress),
		Payload:            payloadFelts,
		PaidFeeOnL1:        fee,
		Nonce:              nonceFelt,
	}

	handler := msg.ToL1Handler()
	tx := &core.Transaction{L1Handler: handler}
	hash, herr := core.ComputeHash(tx, d.cfg.ChainID.Felt())
	if herr != nil {
		finish(true)
		return nil, errUnexpected(herr.Error())
	}
	handler.TransactionHash = hash

	params, _ := json.Marshal(msg)
	if _, rerr := d.submit(tx, "devnet_postmanSendMessageToL2", json.RawMessage(params)); rerr != nil {
		finish(true)
		return nil, rerr
	}
	finish(false)
	return map[string]any{
		"transaction_hash": hash.Text(felt.Base16),
		"message_hash":     msg.Hash().Hex(),
	}, nil
}

// PostmanConsumeMessageFromL2 consumes one L2->L1 message from the outbox
// by value, returning its hash; consuming a message that was never sent
// (or was already consumed) fails.
func (d *Devnet) PostmanConsumeMessageFromL2(fromAddress, toAddress string, payload []string) (map[string]any, *jsonrpc.Error) {
	ok, finish := d.guard("devnet_postmanConsumeMessageFromL2")
	if !ok {
		return nil, errMethodForbidden()
	}
	broker, rerr := d.postmanBroker()
	if rerr != nil {
		finish(true)
		return nil, rerr
	}
	from, err := felt.FromHex(fromAddress)
	if err != nil {
		finish(true)
		return nil, errContractNotFound()
	}
	if !common.IsHexAddress(toAddress) {
		finish(true)
		return nil, errUnexpected("invalid L1 contract address: " + toAddress)
	}
	payloadFelts, err := parseFelts(payload)
	if err != nil {
		finish(true)
		return nil, errUnexpected(err.Error())
	}

	// Register any not-yet-flushed messages first so consume does not
	// depend on the caller having flushed explicitly.
	d.drainSentMessages()

	hash, err := broker.Consume(&messaging.MessageToL1{
		FromAddress: from,
		ToAddress:   common.HexToAddress(toAddress),
		Payload:     payloadFelts,
	})
	if err != nil {
		finish(true)
		return nil, errUnexpected(err.Error())
	}
	finish(false)
	return map[string]any{"message_hash": hash.Hex()}, nil
}
