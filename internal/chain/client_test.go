package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// rpcStub answers single JSON-RPC requests from a fixed method table.
func rpcStub(t *testing.T, results map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if result, ok := results[req.Method]; ok {
			resp["result"] = result
		} else {
			resp["error"] = map[string]interface{}{"code": -32601, "message": "method not found"}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestClientChainHead(t *testing.T) {
	srv := rpcStub(t, map[string]string{
		"eth_chainId":     "0x1",
		"eth_blockNumber": "0x1312d00",
	})
	defer srv.Close()

	client, err := NewClient(context.Background(), srv.URL, Options{RPS: 100, Burst: 2})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	defer client.Close()

	chainID, err := client.GetChainID(context.Background())
	if err != nil || chainID.Uint64() != 1 {
		t.Fatalf("chain id: %v %v", chainID, err)
	}
	block, err := client.LatestBlockNumber(context.Background())
	if err != nil {
		t.Fatalf("block number: %v", err)
	}
	if block != 20_000_000 {
		t.Fatalf("unexpected block: %d", block)
	}
}

func TestNewClientRequiresURL(t *testing.T) {
	if _, err := NewClient(context.Background(), "", Options{}); err == nil {
		t.Fatalf("expected error for empty rpc url")
	}
}
