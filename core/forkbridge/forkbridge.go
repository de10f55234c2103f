// Package forkbridge is a lazy read-through proxy to an upstream Starknet
// RPC node at a pinned block height, consulted by worldstate.Store whenever
// a read misses locally. Bounded fan-out parallelism uses
// sourcegraph/conc/pool; duplicate in-flight requests for the same key are
// coalesced with golang.org/x/sync/singleflight; a bloom filter remembers
// keys that were recently confirmed absent upstream so a hot miss path
// doesn't re-dial the origin on every read.
package forkbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/NethermindEth/starknet-devnet-go/core"
	"github.com/NethermindEth/starknet-devnet-go/core/felt"
	"github.com/bits-and-blooms/bloom/v3"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/singleflight"
)

// Config points the bridge at an upstream JSON-RPC endpoint pinned to a
// fixed block number.
type Config struct {
	URL         string
	BlockNumber uint64
	Timeout     time.Duration // default 10s
	Parallelism int           // default 8
}

// ErrUpstream reports a failed upstream call, carrying enough detail for
// the RPC layer's ForkUpstreamError{method, status}.
type ErrUpstream struct {
	Method string
	Status string
}

func (e *ErrUpstream) Error() string {
	return fmt.Sprintf("fork upstream error calling %s: %s", e.Method, e.Status)
}

// Metrics is the narrow counter/histogram surface the bridge reports
// through, satisfied by metrics.Registry without an import cycle.
type Metrics interface {
	ObserveUpstreamCall(method, status string, d time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) ObserveUpstreamCall(string, string, time.Duration) {}

// Bridge is the single worker owning the upstream HTTP client.
type Bridge struct {
	cfg     Config
	client  *http.Client
	pool    *pool.Pool
	group   singleflight.Group
	absent  *bloom.BloomFilter
	metrics Metrics
}

// New constructs a Bridge; pass nil metrics to use a no-op recorder.
func New(cfg Config, metrics Metrics) *Bridge {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Parallelism == 0 {
		cfg.Parallelism = 8
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Bridge{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		pool:    pool.New().WithMaxGoroutines(cfg.Parallelism),
		absent:  bloom.NewWithEstimates(100_000, 0.01),
		metrics: metrics,
	}
}

// rpcCall is the minimal JSON-RPC envelope the bridge sends upstream.
type rpcCall struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcReply struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (b *Bridge) call(ctx context.Context, method string, params []any, out any) error {
	start := time.Now()
	status := "ok"
	defer func() { b.metrics.ObserveUpstreamCall(method, status, time.Since(start)) }()

	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(rpcCall{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		status = "error"
		return &ErrUpstream{Method: method, Status: err.Error()}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.URL, bytes.NewReader(body))
	if err != nil {
		status = "error"
		return &ErrUpstream{Method: method, Status: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		status = "timeout"
		return &ErrUpstream{Method: method, Status: err.Error()}
	}
	defer resp.Body.Close()

	var reply rpcReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		status = "error"
		return &ErrUpstream{Method: method, Status: err.Error()}
	}
	if reply.Error != nil {
		status = "error"
		return &ErrUpstream{Method: method, Status: reply.Error.Message}
	}
	if out != nil && reply.Result != nil {
		if err := json.Unmarshal(reply.Result, out); err != nil {
			status = "error"
			return &ErrUpstream{Method: method, Status: err.Error()}
		}
	}
	return nil
}

func blockIDParam(number uint64) map[string]uint64 {
	return map[string]uint64{"block_number": number}
}

func (b *Bridge) singleflightKey(parts ...string) string {
	key := ""
	for _, p := range parts {
		key += p + "|"
	}
	return key
}

// ClassHashAt implements worldstate.ForkReader.
func (b *Bridge) ClassHashAt(addr *felt.Felt) (*felt.Felt, bool, error) {
	v, err, _ := b.group.Do(b.singleflightKey("classHashAt", addr.String()), func() (any, error) {
		var hex string
		err := b.call(context.Background(), "starknet_getClassHashAt", []any{blockIDParam(b.cfg.BlockNumber), addr.Text(felt.Base16)}, &hex)
		if err != nil {
			return nil, err
		}
		return hex, nil
	})
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	f, err := felt.FromHex(v.(string))
	if err != nil {
		return nil, false, err
	}
	return f, true, nil
}

// NonceAt implements worldstate.ForkReader.
func (b *Bridge) NonceAt(addr *felt.Felt) (*felt.Felt, bool, error) {
	v, err, _ := b.group.Do(b.singleflightKey("nonceAt", addr.String()), func() (any, error) {
		var hex string
		err := b.call(context.Background(), "starknet_getNonce", []any{blockIDParam(b.cfg.BlockNumber), addr.Text(felt.Base16)}, &hex)
		if err != nil {
			return nil, err
		}
		return hex, nil
	})
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	f, err := felt.FromHex(v.(string))
	if err != nil {
		return nil, false, err
	}
	return f, true, nil
}

// StorageAt implements worldstate.ForkReader.
func (b *Bridge) StorageAt(addr, key *felt.Felt) (*felt.Felt, bool, error) {
	cacheKey := b.singleflightKey("storageAt", addr.String(), key.String())
	if b.absent.TestString(cacheKey) {
		return nil, false, nil
	}
	v, err, _ := b.group.Do(cacheKey, func() (any, error) {
		var hex string
		err := b.call(context.Background(), "starknet_getStorageAt", []any{
			addr.Text(felt.Base16), key.Text(felt.Base16), blockIDParam(b.cfg.BlockNumber),
		}, &hex)
		if err != nil {
			return nil, err
		}
		return hex, nil
	})
	if err != nil {
		if isNotFound(err) {
			b.absent.AddString(cacheKey)
			return nil, false, nil
		}
		return nil, false, err
	}
	f, err := felt.FromHex(v.(string))
	if err != nil {
		return nil, false, err
	}
	return f, true, nil
}

// rawClass is the wire shape returned by starknet_getClass, translated
// into core.Cairo0Class/Cairo1Class once the variant is known.
type rawClass struct {
	Program         json.RawMessage `json:"program"`
	Abi             json.RawMessage `json:"abi"`
	SierraProgram   []string        `json:"sierra_program"`
	ContractVersion string          `json:"contract_class_version"`
}

// ClassAt implements worldstate.ForkReader.
func (b *Bridge) ClassAt(classHash *felt.Felt) (core.Class, bool, error) {
	v, err, _ := b.group.Do(b.singleflightKey("classAt", classHash.String()), func() (any, error) {
		var raw rawClass
		err := b.call(context.Background(), "starknet_getClass", []any{blockIDParam(b.cfg.BlockNumber), classHash.Text(felt.Base16)}, &raw)
		if err != nil {
			return nil, err
		}
		return raw, nil
	})
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	raw := v.(rawClass)
	if len(raw.SierraProgram) > 0 {
		program := make([]*felt.Felt, len(raw.SierraProgram))
		for i, s := range raw.SierraProgram {
			f, ferr := felt.FromHex(s)
			if ferr != nil {
				return nil, false, ferr
			}
			program[i] = f
		}
		return &core.Cairo1Class{Program: program, Abi: string(raw.Abi), SemanticVersion: raw.ContractVersion}, true, nil
	}
	return &core.Cairo0Class{Program: string(raw.Program), Abi: string(raw.Abi)}, true, nil
}

// Prefetch issues every request concurrently (bounded by Config.Parallelism)
// and returns once all complete. The engine does not call it: world-state
// misses reach the bridge one read at a time through worldstate.ForkReader.
func (b *Bridge) Prefetch(fns ...func() error) error {
	var mu sync.Mutex
	var firstErr error
	for _, fn := range fns {
		fn := fn
		b.pool.Go(func() {
			if err := fn(); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		})
	}
	b.pool.Wait()
	return firstErr
}

func isNotFound(err error) bool {
	up, ok := err.(*ErrUpstream)
	return ok && (up.Status == "20" || up.Status == "Contract not found" || up.Status == "28" || up.Status == "Class hash not found")
}
