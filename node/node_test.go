package node_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/NethermindEth/starknet-devnet-go/node"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNode(t *testing.T, mutate func(*node.Config)) *node.Node {
	t.Helper()
	cfg := node.DefaultConfig()
	cfg.Accounts = 3
	cfg.Seed = 42
	if mutate != nil {
		mutate(&cfg)
	}
	n, err := node.New(&cfg)
	require.NoError(t, err)
	return n
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func rpcCall(t *testing.T, h http.Handler, method string, params any) map[string]any {
	t.Helper()
	w := postJSON(t, h, "/", map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestIsAlive(t *testing.T) {
	n := newTestNode(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/is_alive", nil)
	w := httptest.NewRecorder()
	n.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "Alive")
}

func TestJSONRPCBlockNumber(t *testing.T) {
	n := newTestNode(t, nil)
	resp := rpcCall(t, n.Handler(), "starknet_blockNumber", nil)
	require.Nil(t, resp["error"])
	assert.Equal(t, float64(0), resp["result"], "fresh devnet sits at genesis")
}

func TestMintOverBothSurfaces(t *testing.T) {
	n := newTestNode(t, nil)

	// REST mint.
	w := postJSON(t, n.Handler(), "/mint", map[string]any{"address": "0x1", "amount": 5})
	require.Equal(t, http.StatusOK, w.Code)
	var restResult map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &restResult))
	require.Equal(t, "5", restResult["new_balance"])

	// JSON-RPC mint converges on the same handler and state.
	resp := rpcCall(t, n.Handler(), "devnet_mint", map[string]any{"address": "0x1", "amount": 5})
	require.Nil(t, resp["error"])
	result := resp["result"].(map[string]any)
	assert.Equal(t, "10", result["new_balance"])

	// And the balance query agrees.
	req := httptest.NewRequest(http.MethodGet, "/account_balance?address=0x1&unit=WEI", nil)
	rec := httptest.NewRecorder()
	n.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var balance map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &balance))
	assert.Equal(t, "10", balance["amount"])
}

func TestPredeployedAccountsDeterministicWithSeed(t *testing.T) {
	n1 := newTestNode(t, nil)
	n2 := newTestNode(t, nil)

	get := func(n *node.Node) []any {
		req := httptest.NewRequest(http.MethodGet, "/predeployed_accounts", nil)
		w := httptest.NewRecorder()
		n.Handler().ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		var accounts []any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accounts))
		return accounts
	}

	first, second := get(n1), get(n2)
	require.Len(t, first, 3)
	assert.Equal(t, first, second, "same seed must derive identical accounts")
}

func TestRestrictiveModeOverHTTPAndRPC(t *testing.T) {
	n := newTestNode(t, func(cfg *node.Config) {
		cfg.RestrictiveMode = true
		cfg.RestrictedMethods = []string{"devnet_mint", "/mint"}
	})

	w := postJSON(t, n.Handler(), "/mint", map[string]any{"address": "0x1", "amount": 1})
	require.Equal(t, http.StatusForbidden, w.Code)

	resp := rpcCall(t, n.Handler(), "devnet_mint", map[string]any{"address": "0x1", "amount": 1})
	require.NotNil(t, resp["error"])
	errObj := resp["error"].(map[string]any)
	assert.Equal(t, float64(-32604), errObj["code"])
}

func TestMetricsEndpointExposesCounters(t *testing.T) {
	n := newTestNode(t, nil)

	// One RPC call so the counter vector has at least one sample.
	rpcCall(t, n.Handler(), "starknet_blockNumber", nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	n.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, "rpc_call_count"), "metrics exposition must include rpc_call_count")
}

func TestUnknownRPCMethod(t *testing.T) {
	n := newTestNode(t, nil)
	resp := rpcCall(t, n.Handler(), "starknet_noSuchMethod", nil)
	require.NotNil(t, resp["error"])
	errObj := resp["error"].(map[string]any)
	assert.Equal(t, float64(-32601), errObj["code"])
}

func TestInvalidConfigRejectedAtStartup(t *testing.T) {
	cfg := node.DefaultConfig()
	cfg.StateArchive = "bogus"
	_, err := node.New(&cfg)
	require.Error(t, err)

	cfg = node.DefaultConfig()
	cfg.DumpOn = "sometimes"
	_, err = node.New(&cfg)
	require.Error(t, err)

	cfg = node.DefaultConfig()
	cfg.InitialBalance = "-3"
	_, err = node.New(&cfg)
	require.Error(t, err)
}
