package rpc

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/NethermindEth/starknet-devnet-go/core"
	"github.com/NethermindEth/starknet-devnet-go/core/dumplog"
	"github.com/NethermindEth/starknet-devnet-go/core/engine"
	"github.com/NethermindEth/starknet-devnet-go/core/felt"
	"github.com/NethermindEth/starknet-devnet-go/jsonrpc"
	"github.com/NethermindEth/starknet-devnet-go/subscription"
)

// resourceBoundsParam is the wire shape of a v3 transaction's
// resource_bounds map.
type resourceBoundsParam struct {
	L1Gas struct {
		MaxAmount       string `json:"max_amount"`
		MaxPricePerUnit string `json:"max_price_per_unit"`
	} `json:"l1_gas"`
	L2Gas struct {
		MaxAmount       string `json:"max_amount"`
		MaxPricePerUnit string `json:"max_price_per_unit"`
	} `json:"l2_gas"`
}

func (r resourceBoundsParam) toCore() (core.ResourceBounds, error) {
	var rb core.ResourceBounds
	l1Amount, err := parseUintFelt(r.L1Gas.MaxAmount)
	if err != nil {
		return rb, err
	}
	l1Price, err := feltOrZeroHex(r.L1Gas.MaxPricePerUnit)
	if err != nil {
		return rb, err
	}
	l2Amount, err := parseUintFelt(r.L2Gas.MaxAmount)
	if err != nil {
		return rb, err
	}
	l2Price, err := feltOrZeroHex(r.L2Gas.MaxPricePerUnit)
	if err != nil {
		return rb, err
	}
	rb.L1Gas = core.ResourceBound{MaxAmount: l1Amount, MaxPricePerUnit: l1Price}
	rb.L2Gas = core.ResourceBound{MaxAmount: l2Amount, MaxPricePerUnit: l2Price}
	return rb, nil
}

func parseUintFelt(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	f, err := felt.FromHex(s)
	if err != nil {
		return 0, err
	}
	return f.BigInt().Uint64(), nil
}

func feltOrZeroHex(s string) (*felt.Felt, error) {
	if s == "" {
		return &felt.Zero, nil
	}
	return felt.FromHex(s)
}

func parseFelts(ss []string) ([]*felt.Felt, error) {
	out := make([]*felt.Felt, len(ss))
	for i, s := range ss {
		f, err := felt.FromHex(s)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

// InvokeParams is the broadcast shape of an INVOKE transaction (v1 or v3).
type InvokeParams struct {
	Version           string              `json:"version"`
	SenderAddress     string              `json:"sender_address"`
	Calldata          []string            `json:"calldata"`
	Signature         []string            `json:"signature"`
	Nonce             string              `json:"nonce"`
	MaxFee            string              `json:"max_fee"`
	ResourceBounds    resourceBoundsParam `json:"resource_bounds"`
	Tip               string              `json:"tip"`
	PaymasterData     []string            `json:"paymaster_data"`
	AccountDeployData []string            `json:"account_deployment_data"`
}

func (d *Devnet) buildInvoke(p InvokeParams) (*core.InvokeTransaction, *jsonrpc.Error) {
	sender, err := felt.FromHex(p.SenderAddress)
	if err != nil {
		return nil, errWith(CodeContractNotFound, "invalid sender_address", err.Error())
	}
	calldata, err := parseFelts(p.Calldata)
	if err != nil {
		return nil, errUnexpected(err.Error())
	}
	sig, err := parseFelts(p.Signature)
	if err != nil {
		return nil, errUnexpected(err.Error())
	}
	nonce, err := feltOrZeroHex(p.Nonce)
	if err != nil {
		return nil, errUnexpected(err.Error())
	}
	versionFelt, err := feltOrZeroHex(p.Version)
	if err != nil {
		return nil, errWith(CodeUnsupportedTxVersion, "invalid version", err.Error())
	}
	inv := &core.InvokeTransaction{
		Version:       versionFelt.BigInt().Uint64(),
		SenderAddress: sender,
		CallData:      calldata,
		Signature:     sig,
		Nonce:         nonce,
	}
	if inv.Version == 3 {
		rb, rerr := p.ResourceBounds.toCore()
		if rerr != nil {
			return nil, errUnexpected(rerr.Error())
		}
		if rb.IsZero() {
			return nil, errWith(CodeUnsupportedTxVersion, "resource bounds must not be all-zero", nil)
		}
		inv.ResourceBounds = rb
		tip, terr := feltOrZeroHex(p.Tip)
		if terr != nil {
			return nil, errUnexpected(terr.Error())
		}
		inv.Tip = tip
		inv.PaymasterData, err = parseFelts(p.PaymasterData)
		if err != nil {
			return nil, errUnexpected(err.Error())
		}
		inv.AccountDeployData, err = parseFelts(p.AccountDeployData)
		if err != nil {
			return nil, errUnexpected(err.Error())
		}
	} else {
		maxFee, ferr := feltOrZeroHex(p.MaxFee)
		if ferr != nil {
			return nil, errUnexpected(ferr.Error())
		}
		inv.MaxFee = maxFee
	}
	return inv, nil
}

// AddInvokeTransaction implements starknet_addInvokeTransaction.
func (d *Devnet) AddInvokeTransaction(p InvokeParams) (map[string]any, *jsonrpc.Error) {
	ok, finish := d.guard("starknet_addInvokeTransaction")
	if !ok {
		return nil, errMethodForbidden()
	}
	inv, rerr := d.buildInvoke(p)
	if rerr != nil {
		finish(true)
		return nil, rerr
	}
	hash, err := core.ComputeHash(&core.Transaction{Invoke: inv}, d.cfg.ChainID.Felt())
	if err != nil {
		finish(true)
		return nil, errUnexpected(err.Error())
	}
	inv.TransactionHash = hash
	_, rerr = d.submit(&core.Transaction{Invoke: inv}, "starknet_addInvokeTransaction", p)
	finish(rerr != nil)
	if rerr != nil {
		return nil, rerr
	}
	return map[string]any{"transaction_hash": hash.Text(felt.Base16)}, nil
}

// DeployAccountParams is the broadcast shape of a DEPLOY_ACCOUNT transaction.
type DeployAccountParams struct {
	Version             string              `json:"version"`
	ContractAddressSalt string              `json:"contract_address_salt"`
	ClassHash           string              `json:"class_hash"`
	ConstructorCalldata []string            `json:"constructor_calldata"`
	Signature           []string            `json:"signature"`
	Nonce               string              `json:"nonce"`
	MaxFee              string              `json:"max_fee"`
	ResourceBounds      resourceBoundsParam `json:"resource_bounds"`
	Tip                 string              `json:"tip"`
	PaymasterData       []string            `json:"paymaster_data"`
}

// AddDeployAccountTransaction implements starknet_addDeployAccountTransaction.
func (d *Devnet) AddDeployAccountTransaction(p DeployAccountParams) (map[string]any, *jsonrpc.Error) {
	ok, finish := d.guard("starknet_addDeployAccountTransaction")
	if !ok {
		return nil, errMethodForbidden()
	}
	classHash, err := felt.FromHex(p.ClassHash)
	if err != nil {
		finish(true)
		return nil, errClassHashNotFound()
	}
	salt, err := feltOrZeroHex(p.ContractAddressSalt)
	if err != nil {
		finish(true)
		return nil, errUnexpected(err.Error())
	}
	calldata, err := parseFelts(p.ConstructorCalldata)
	if err != nil {
		finish(true)
		return nil, errUnexpected(err.Error())
	}
	sig, err := parseFelts(p.Signature)
	if err != nil {
		finish(true)
		return nil, errUnexpected(err.Error())
	}
	nonce, err := feltOrZeroHex(p.Nonce)
	if err != nil {
		finish(true)
		return nil, errUnexpected(err.Error())
	}
	versionFelt, err := feltOrZeroHex(p.Version)
	if err != nil {
		finish(true)
		return nil, errWith(CodeUnsupportedTxVersion, "invalid version", err.Error())
	}

	addr := deriveAccountAddress(classHash, salt, calldata)
	da := &core.DeployAccountTransaction{
		Version:             versionFelt.BigInt().Uint64(),
		ContractAddress:     addr,
		ContractAddressSalt: salt,
		ClassHash:           classHash,
		ConstructorCallData: calldata,
		Signature:           sig,
		Nonce:               nonce,
	}
	if da.Version == 3 {
		rb, rerr := p.ResourceBounds.toCore()
		if rerr != nil {
			finish(true)
			return nil, errUnexpected(rerr.Error())
		}
		if rb.IsZero() {
			finish(true)
			return nil, errWith(CodeUnsupportedTxVersion, "resource bounds must not be all-zero", nil)
		}
		da.ResourceBounds = rb
	} else {
		maxFee, ferr := feltOrZeroHex(p.MaxFee)
		if ferr != nil {
			finish(true)
			return nil, errUnexpected(ferr.Error())
		}
		if maxFee.IsZero() {
			finish(true)
			return nil, errInsufficientMaxFee()
		}
		da.MaxFee = maxFee
	}

	hash, err := core.ComputeHash(&core.Transaction{DeployAccount: da}, d.cfg.ChainID.Felt())
	if err != nil {
		finish(true)
		return nil, errUnexpected(err.Error())
	}
	da.TransactionHash = hash

	_, rerr := d.submit(&core.Transaction{DeployAccount: da}, "starknet_addDeployAccountTransaction", p)
	finish(rerr != nil)
	if rerr != nil {
		return nil, rerr
	}
	return map[string]any{
		"transaction_hash": hash.Text(felt.Base16),
		"contract_address": addr.Text(felt.Base16),
	}, nil
}

// deriveAccountAddress matches core.ContractAddress's convention
// (self-deployment), since DEPLOY_ACCOUNT derives its own address from wire
// fields rather than the predeployed package's seeded keystream.
func deriveAccountAddress(classHash, salt *felt.Felt, calldata []*felt.Felt) *felt.Felt {
	return core.ContractAddress(classHash, salt, calldata)
}

// Cairo1ClassParam is the broadcast shape of a Sierra contract class.
type Cairo1ClassParam struct {
	SierraProgram   []string `json:"sierra_program"`
	Abi             string   `json:"abi"`
	ContractVersion string   `json:"contract_class_version"`
}

// DeclareParams is the broadcast shape of a DECLARE transaction (v2 or v3).
// ContractClass is always decoded as a Sierra (Cairo1) class;
// AddDeclareTransaction has no legacy Cairo0 declare path.
type DeclareParams struct {
	Version           string              `json:"version"`
	SenderAddress     string              `json:"sender_address"`
	ContractClass     Cairo1ClassParam    `json:"contract_class"`
	CompiledClassHash string              `json:"compiled_class_hash"`
	Signature         []string            `json:"signature"`
	Nonce             string              `json:"nonce"`
	MaxFee            string              `json:"max_fee"`
	ResourceBounds    resourceBoundsParam `json:"resource_bounds"`
	Tip               string              `json:"tip"`
	PaymasterData     []string            `json:"paymaster_data"`
	AccountDeployData []string            `json:"account_deployment_data"`
}

// AddDeclareTransaction implements starknet_addDeclareTransaction. It
// independently recomputes the class hash and compiled class hash and
// rejects before ever touching world state if the declarer's claimed
// compiled_class_hash disagrees.
func (d *Devnet) AddDeclareTransaction(p DeclareParams) (map[string]any, *jsonrpc.Error) {
	ok, finish := d.guard("starknet_addDeclareTransaction")
	if !ok {
		return nil, errMethodForbidden()
	}
	program, err := parseFelts(p.ContractClass.SierraProgram)
	if err != nil {
		finish(true)
		return nil, errUnexpected(err.Error())
	}
	class := &core.Cairo1Class{Program: program, Abi: p.ContractClass.Abi, SemanticVersion: p.ContractClass.ContractVersion}

	classHash, err := d.cfg.Registry.ClassHash(class)
	if err != nil {
		finish(true)
		return nil, errUnexpected(err.Error())
	}
	claimed, err := felt.FromHex(p.CompiledClassHash)
	if err != nil {
		finish(true)
		return nil, errUnexpected(err.Error())
	}
	expected := d.cfg.Registry.CompiledClassHash(class)
	if !claimed.Equal(expected) {
		finish(true)
		return nil, errCompiledClassHashMismatch()
	}

	if _, derr := d.cfg.Store.GetClass(classHash); derr == nil {
		finish(true)
		return nil, errClassAlreadyDeclared()
	}

	sender, err := felt.FromHex(p.SenderAddress)
	if err != nil {
		finish(true)
		return nil, errWith(CodeContractNotFound, "invalid sender_address", err.Error())
	}
	sig, err := parseFelts(p.Signature)
	if err != nil {
		finish(true)
		return nil, errUnexpected(err.Error())
	}
	nonce, err := feltOrZeroHex(p.Nonce)
	if err != nil {
		finish(true)
		return nil, errUnexpected(err.Error())
	}
	versionFelt, err := feltOrZeroHex(p.Version)
	if err != nil {
		finish(true)
		return nil, errWith(CodeUnsupportedTxVersion, "invalid version", err.Error())
	}

	decl := &core.DeclareTransaction{
		Version:           versionFelt.BigInt().Uint64(),
		SenderAddress:     sender,
		ClassHash:         classHash,
		CompiledClassHash: claimed,
		Nonce:             nonce,
		Signature:         sig,
	}
	if decl.Version == 3 {
		rb, rerr := p.ResourceBounds.toCore()
		if rerr != nil {
			finish(true)
			return nil, errUnexpected(rerr.Error())
		}
		decl.ResourceBounds = rb
		tip, terr := feltOrZeroHex(p.Tip)
		if terr != nil {
			finish(true)
			return nil, errUnexpected(terr.Error())
		}
		decl.Tip = tip
	} else {
		maxFee, ferr := feltOrZeroHex(p.MaxFee)
		if ferr != nil {
			finish(true)
			return nil, errUnexpected(ferr.Error())
		}
		decl.MaxFee = maxFee
	}

	hash, err := core.ComputeHash(&core.Transaction{Declare: decl}, d.cfg.ChainID.Felt())
	if err != nil {
		finish(true)
		return nil, errUnexpected(err.Error())
	}
	decl.TransactionHash = hash

	if derr := d.cfg.Engine.DeclareWithClass(classHash, class, claimed, d.cfg.Producer.PendingNumber()); derr != nil {
		finish(true)
		return nil, errUnexpected(derr.Error())
	}

	_, rerr := d.submit(&core.Transaction{Declare: decl}, "starknet_addDeclareTransaction", p)
	finish(rerr != nil)
	if rerr != nil {
		return nil, rerr
	}
	return map[string]any{
		"transaction_hash": hash.Text(felt.Base16),
		"class_hash":       classHash.Text(felt.Base16),
	}, nil
}

// submit drives a decoded transaction through the engine, appends it to
// the block producer, records a dump event and publishes subscription
// notifications, the shared tail end of every add_*Transaction handler.
func (d *Devnet) submit(tx *core.Transaction, method string, rawParams any) (*engine.Outcome, *jsonrpc.Error) {
	blockNumber := d.cfg.Producer.PendingNumber()
	out, err := d.cfg.Engine.AddTransaction(tx, blockNumber, engine.SimulationFlags{})
	if err != nil {
		if rej, ok := err.(*engine.ErrRejected); ok {
			return nil, classifyRejection(rej)
		}
		return nil, errUnexpected(err.Error())
	}
	if rerr := d.appendAndNotify(tx, out.Receipt, method, rawParams); rerr != nil {
		return nil, rerr
	}
	return out, nil
}

// appendAndNotify is the committed-transaction tail shared by submit and
// Mint: append to the pending block (sealing under ModeAutomatic), record
// the dump event, and publish subscription notifications strictly after
// the state change is visible.
func (d *Devnet) appendAndNotify(tx *core.Transaction, receipt *core.Receipt, method string, rawParams any) *jsonrpc.Error {
	sealStart := time.Now()
	sealed, serr := d.cfg.Producer.Add(d.cfg.Store, tx, receipt)
	if serr != nil {
		return errUnexpected(serr.Error())
	}

	if d.cfg.Metrics != nil && sealed != nil {
		d.cfg.Metrics.ObserveBlockSealed(len(sealed.Transactions), time.Since(sealStart))
	}
	if d.cfg.DumpLog != nil {
		_ = d.cfg.DumpLog.Record(eventFor(method, rawParams))
	}
	if d.cfg.Bus != nil {
		d.cfg.Bus.PublishPendingTransaction(tx.Hash())
		status := "RECEIVED"
		if sealed != nil {
			status = core.FinalityAcceptedOnL2.String()
		}
		d.cfg.Bus.PublishTxStatus(subscription.TxStatusUpdate{TransactionHash: tx.Hash(), Status: status})
		if sealed != nil {
			d.cfg.Bus.PublishNewHead(sealed)
			if len(receipt.Events) > 0 {
				matches := make([]subscription.EventMatch, len(receipt.Events))
				for i, ev := range receipt.Events {
					matches[i] = subscription.EventMatch{From: ev.From, Keys: ev.Keys, Data: ev.Data}
				}
				d.cfg.Bus.PublishEvents(matches)
			}
		}
	}
	return nil
}

// classifyRejection maps an engine rejection onto the stable Starknet
// error codes: wrong nonce and underfunded senders have
// dedicated codes, everything else is a generic validation failure.
func classifyRejection(rej *engine.ErrRejected) *jsonrpc.Error {
	switch {
	case strings.Contains(rej.Reason, "invalid nonce"):
		return errInvalidTransactionNonce()
	case strings.Contains(rej.Reason, "insufficient balance"):
		return errInsufficientAccountBalance()
	default:
		return errValidationFailure(rej.Reason)
	}
}

// eventFor marshals a handler's raw request params into a dumplog.Event,
// recording exactly what would need to be replayed to reproduce this call.
func eventFor(method string, rawParams any) dumplog.Event {
	raw, err := json.Marshal(rawParams)
	if err != nil {
		raw = nil
	}
	return dumplog.Event{Method: method, Params: raw}
}
