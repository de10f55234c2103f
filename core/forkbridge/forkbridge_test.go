package forkbridge_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/NethermindEth/starknet-devnet-go/core/felt"
	"github.com/NethermindEth/starknet-devnet-go/core/forkbridge"
	"github.com/stretchr/testify/require"
)

// fakeUpstream serves a canned starknet JSON-RPC subset and counts calls.
func fakeUpstream(t *testing.T, calls *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req struct {
			ID     int    `json:"id"`
			Method string `json:"method"`
			Params []any  `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		switch req.Method {
		case "starknet_getClassHashAt":
			resp["result"] = "0xc1a55"
		case "starknet_getNonce":
			resp["result"] = "0x7"
		case "starknet_getStorageAt":
			resp["result"] = "0x2a"
		default:
			resp["error"] = map[string]any{"code": 20, "message": "Contract not found"}
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestReadThroughAtPinnedBlock(t *testing.T) {
	var calls atomic.Int64
	srv := fakeUpstream(t, &calls)
	bridge := forkbridge.New(forkbridge.Config{URL: srv.URL, BlockNumber: 1234}, nil)

	addr := new(felt.Felt).SetUint64(0x1)

	classHash, ok, err := bridge.ClassHashAt(addr)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, classHash.Equal(new(felt.Felt).SetUint64(0xc1a55)))

	nonce, ok, err := bridge.NonceAt(addr)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, nonce.Equal(new(felt.Felt).SetUint64(7)))

	v, ok, err := bridge.StorageAt(addr, &felt.One)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, v.Equal(new(felt.Felt).SetUint64(0x2a)))
}

func TestUpstreamErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"boom"}}`))
	}))
	t.Cleanup(srv.Close)

	bridge := forkbridge.New(forkbridge.Config{URL: srv.URL}, nil)
	_, _, err := bridge.ClassHashAt(&felt.One)
	require.Error(t, err)
	var up *forkbridge.ErrUpstream
	require.ErrorAs(t, err, &up)
	require.Equal(t, "starknet_getClassHashAt", up.Method)
}

func TestNotFoundIsAMissNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":20,"message":"Contract not found"}}`))
	}))
	t.Cleanup(srv.Close)

	bridge := forkbridge.New(forkbridge.Config{URL: srv.URL}, nil)
	_, ok, err := bridge.ClassHashAt(&felt.One)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPrefetchFansOut(t *testing.T) {
	var calls atomic.Int64
	srv := fakeUpstream(t, &calls)
	bridge := forkbridge.New(forkbridge.Config{URL: srv.URL, Parallelism: 4}, nil)

	err := bridge.Prefetch(
		func() error { _, _, err := bridge.ClassHashAt(new(felt.Felt).SetUint64(1)); return err },
		func() error { _, _, err := bridge.NonceAt(new(felt.Felt).SetUint64(2)); return err },
		func() error { _, _, err := bridge.StorageAt(new(felt.Felt).SetUint64(3), &felt.One); return err },
	)
	require.NoError(t, err)
	require.Equal(t, int64(3), calls.Load())
}
