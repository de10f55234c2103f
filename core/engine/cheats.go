package engine

import "github.com/NethermindEth/starknet-devnet-go/core/felt"

// Cheats tracks devnet-only signature bypasses, grounded directly on
// cheats.rs's Cheats struct: a set of impersonated accounts plus a global
// auto-impersonate switch.
type Cheats struct {
	impersonated    map[felt.Felt]struct{}
	autoImpersonate bool
}

func NewCheats() *Cheats {
	return &Cheats{impersonated: map[felt.Felt]struct{}{}}
}

func (c *Cheats) ImpersonateAccount(addr *felt.Felt) {
	c.impersonated[*addr] = struct{}{}
}

func (c *Cheats) StopImpersonatingAccount(addr *felt.Felt) {
	delete(c.impersonated, *addr)
}

func (c *Cheats) IsImpersonated(addr *felt.Felt) bool {
	if c.autoImpersonate {
		return true
	}
	_, ok := c.impersonated[*addr]
	return ok
}

func (c *Cheats) SetAutoImpersonate(on bool) {
	c.autoImpersonate = on
}

// Reset clears every impersonated account and the auto-impersonate switch,
// called by devnet_restart/devnet_load to return cheats state to a fresh
// devnet's defaults.
func (c *Cheats) Reset() {
	c.impersonated = map[felt.Felt]struct{}{}
	c.autoImpersonate = false
}
