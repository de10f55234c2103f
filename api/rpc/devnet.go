package rpc

import (
	"fmt"
	"time"

	"github.com/NethermindEth/starknet-devnet-go/core"
	"github.com/NethermindEth/starknet-devnet-go/core/block"
	"github.com/NethermindEth/starknet-devnet-go/core/classregistry"
	"github.com/NethermindEth/starknet-devnet-go/core/dumplog"
	"github.com/NethermindEth/starknet-devnet-go/core/engine"
	"github.com/NethermindEth/starknet-devnet-go/core/felt"
	"github.com/NethermindEth/starknet-devnet-go/core/forkbridge"
	"github.com/NethermindEth/starknet-devnet-go/core/messaging"
	"github.com/NethermindEth/starknet-devnet-go/core/predeployed"
	"github.com/NethermindEth/starknet-devnet-go/core/worldstate"
	"github.com/NethermindEth/starknet-devnet-go/jsonrpc"
	"github.com/NethermindEth/starknet-devnet-go/metrics"
	"github.com/NethermindEth/starknet-devnet-go/subscription"
	"github.com/NethermindEth/starknet-devnet-go/utils"
)

// defaultRestrictedMethods is the set forbidden when restrictive mode is
// enabled with no explicit method/path list.
var defaultRestrictedMethods = []string{
	"devnet_mint",
	"devnet_load",
	"devnet_restart",
	"devnet_dump",
	"devnet_abortBlocks",
	"devnet_setTime",
	"devnet_increaseTime",
	"devnet_impersonateAccount",
	"devnet_stopImpersonating",
	"devnet_setGasPrice",
}

// RestrictiveMode gates a configured set of methods/HTTP paths when
// enabled.
type RestrictiveMode struct {
	Enabled bool
	Methods map[string]struct{}
	Paths   map[string]struct{}
}

// NewRestrictiveMode builds a policy from an explicit method/path list; an
// empty list falls back to defaultRestrictedMethods.
func NewRestrictiveMode(enabled bool, entries []string) *RestrictiveMode {
	rm := &RestrictiveMode{Enabled: enabled, Methods: map[string]struct{}{}, Paths: map[string]struct{}{}}
	if !enabled {
		return rm
	}
	if len(entries) == 0 {
		entries = defaultRestrictedMethods
	}
	for _, e := range entries {
		if len(e) > 0 && e[0] == '/' {
			rm.Paths[e] = struct{}{}
		} else {
			rm.Methods[e] = struct{}{}
		}
	}
	return rm
}

// Forbidden reports whether method is gated.
func (rm *RestrictiveMode) Forbidden(method string) bool {
	if rm == nil || !rm.Enabled {
		return false
	}
	_, ok := rm.Methods[method]
	return ok
}

// ForbiddenPath reports whether an HTTP control-plane path is gated.
func (rm *RestrictiveMode) ForbiddenPath(path string) bool {
	if rm == nil || !rm.Enabled {
		return false
	}
	_, ok := rm.Paths[path]
	return ok
}

// Config assembles everything Devnet needs at construction.
type Config struct {
	ChainID     core.ChainId
	Store       *worldstate.Store
	Engine      *engine.Engine
	Producer    *block.Producer
	Registry    *classregistry.Registry
	Predeployed predeployed.Plan
	FeeTokens   [2]predeployed.FeeToken
	Fork        *forkbridge.Bridge
	Broker      *messaging.Broker
	DumpLog     *dumplog.Log
	Bus         *subscription.Bus
	Metrics     *metrics.Registry
	Restrictive *RestrictiveMode
	Log         utils.SimpleLogger
	Now         func() time.Time
}

// Devnet is the facade holding every core collaborator the RPC handlers
// need: it is the single world-state mutator, expressed here as
// a plain struct whose Store/Producer callers are expected to serialize
// (node.go's HTTP/WS/RPC transports all funnel write calls through one
// exclusive-capability mutex; see the node package).
type Devnet struct {
	cfg Config
}

// NewDevnet constructs the facade and seeds genesis.
func NewDevnet(cfg Config) (*Devnet, error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	d := &Devnet{cfg: cfg}
	if _, err := cfg.Producer.SeedGenesis(cfg.Store); err != nil {
		return nil, fmt.Errorf("seed genesis block: %w", err)
	}
	return d, nil
}

// Server builds the jsonrpc.Server with every method registered. Each
// handler returned by methods() already closes over d and checks
// restrictive-mode gating plus records call metrics as its first step
// (see handlers.go's guard helper), so registration here is a direct pass
// through to jsonrpc.Server.RegisterMethod.
func (d *Devnet) Server() (*jsonrpc.Server, error) {
	s := jsonrpc.NewServer()
	for _, m := range d.methods() {
		if err := s.RegisterMethod(m); err != nil {
			return nil, fmt.Errorf("register %s: %w", m.Name, err)
		}
	}
	return s, nil
}

func (d *Devnet) restricted(name string) bool { return d.cfg.Restrictive.Forbidden(name) }

func (d *Devnet) recordCall(name string, start time.Time, failed bool) {
	status := "ok"
	if failed {
		status = "error"
	}
	if d.cfg.Metrics != nil {
		d.cfg.Metrics.ObserveRPCCall(name, status, time.Since(start))
	}
}

func feltOrZero(f *felt.Felt) *felt.Felt {
	if f == nil {
		return &felt.Zero
	}
	return f
}
