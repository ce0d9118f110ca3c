package chain

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"WalletSentinel/internal/model"
	"WalletSentinel/internal/risk"
)

const checksummed = "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"

func TestCanonicalAddress(t *testing.T) {
	got, err := CanonicalAddress(strings.ToLower(checksummed))
	require.NoError(t, err)
	assert.Equal(t, checksummed, got)

	for _, bad := range []string{"", "0x123", "not-an-address", checksummed + "00"} {
		_, err := CanonicalAddress(bad)
		assert.ErrorIs(t, err, ErrNotFound, bad)
	}
}

func TestWeiToEther(t *testing.T) {
	wei, _ := new(big.Int).SetString("1500000000000000000", 10)
	assert.Equal(t, "1.5", WeiToEther(wei).String())
	assert.True(t, WeiToEther(nil).IsZero())
}

func TestClassify(t *testing.T) {
	assert.ErrorIs(t, classify(errors.New("429 Too Many Requests")), ErrRateLimited)
	assert.ErrorIs(t, classify(errors.New("connection refused")), ErrUnavailable)
	assert.True(t, IsDataUnavailable(classify(errors.New("eof"))))
}

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

func fakeNode(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var result any
		switch req.Method {
		case "eth_getBalance":
			result = "0x1bc16d674ec80000" // 2 ether
		case "eth_getTransactionCount":
			result = "0x2a"
		case "eth_blockNumber":
			result = "0x100"
		case "alchemy_getAssetTransfers":
			var params map[string]any
			_ = json.Unmarshal(req.Params[0], &params)
			if _, outgoing := params["fromAddress"]; outgoing {
				result = map[string]any{"transfers": []map[string]any{
					{"uniqueId": "a:external", "hash": "0xa", "from": checksummed, "to": "0xdead", "value": 10.0, "asset": "ETH", "category": "external",
						"metadata": map[string]any{"blockTimestamp": "2025-01-02T00:00:00.000Z"}},
					{"uniqueId": "b:internal", "hash": "0xb", "from": checksummed, "to": "0xbeef", "value": 0.0, "asset": "ETH", "category": "internal",
						"metadata": map[string]any{"blockTimestamp": "2025-01-01T00:00:00.000Z"}},
				}}
			} else {
				result = map[string]any{"transfers": []map[string]any{
					{"uniqueId": "c:erc20", "hash": "0xc", "from": "0xcafe", "to": checksummed, "value": 2500.0, "asset": "USDC", "category": "erc20",
						"metadata": map[string]any{"blockTimestamp": "2025-01-03T00:00:00.000Z"}},
					{"uniqueId": "a:external", "hash": "0xa", "from": checksummed, "to": "0xdead", "value": 10.0, "asset": "ETH", "category": "external",
						"metadata": map[string]any{"blockTimestamp": "2025-01-02T00:00:00.000Z"}},
				}}
			}
		default:
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID,
				"error": map[string]any{"code": -32601, "message": "method not found"}})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
	}))
}

func TestEthClient(t *testing.T) {
	srv := fakeNode(t)
	defer srv.Close()

	ctx := context.Background()
	c, err := DialEth(ctx, EthConfig{
		RPCURL:   srv.URL,
		ETHPrice: 3000,
		Labels:   map[string][]string{strings.ToLower(checksummed): {"whale"}},
	})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Ping(ctx))

	snap, err := c.WalletSnapshot(ctx, strings.ToLower(checksummed))
	require.NoError(t, err)
	assert.Equal(t, checksummed, snap.Address)
	assert.Equal(t, "2", snap.Balance.String())
	assert.InDelta(t, 6000.0, snap.USDValue, 1e-6)
	assert.Equal(t, 42, snap.TransactionCount)
	assert.True(t, snap.HasTag("whale"))

	txs, err := c.RecentTransactions(ctx, checksummed, 10)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, "0xc", txs[0].Hash)
	assert.InDelta(t, 2500.0, txs[0].USDValue, 1e-9)
	assert.Equal(t, model.TxTransfer, txs[0].Kind)
	assert.InDelta(t, 30000.0, txs[1].USDValue, 1e-9)
	assert.Equal(t, model.TxContractInteraction, txs[2].Kind)

	_, err = c.WalletSnapshot(ctx, "0xnope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCollector_SortsAndScores(t *testing.T) {
	mock := NewMockClient()
	now := time.Now()
	mock.SetWallet(&model.WalletSnapshot{Address: checksummed}, []model.TransactionRecord{
		{Hash: "old", USDValue: 5_000_000, Kind: model.TxContractInteraction, Timestamp: now.Add(-2 * time.Hour)},
		{Hash: "new", USDValue: 10, Kind: model.TxTransfer, Timestamp: now.Add(-time.Minute)},
		{Hash: "preset", RiskScore: 0.9, Timestamp: now.Add(-time.Hour)},
	})
	col := NewCollector(mock, risk.NewTxAssessor(1_000_000, nil), time.Second, 10)

	act, err := col.Collect(context.Background(), checksummed)
	require.NoError(t, err)
	require.Len(t, act.Transactions, 3)
	assert.Equal(t, "new", act.Latest().Hash)
	assert.Equal(t, 0.0, act.Transactions[0].RiskScore)
	assert.Equal(t, 0.9, act.Transactions[1].RiskScore)
	assert.InDelta(t, 0.5, act.Transactions[2].RiskScore, 1e-9)
}

func TestCollector_Timeout(t *testing.T) {
	mock := NewMockClient()
	mock.Delay = time.Second
	mock.Generate = true
	col := NewCollector(mock, nil, 20*time.Millisecond, 10)

	_, err := col.Collect(context.Background(), checksummed)
	assert.ErrorIs(t, err, ErrUnavailable)
}

// stuckClient blocks for hold regardless of the caller's context.
type stuckClient struct {
	hold time.Duration
}

func (s stuckClient) WalletSnapshot(_ context.Context, address string) (*model.WalletSnapshot, error) {
	time.Sleep(s.hold)
	return &model.WalletSnapshot{Address: address}, nil
}

func (s stuckClient) RecentTransactions(_ context.Context, _ string, _ int) ([]model.TransactionRecord, error) {
	time.Sleep(s.hold)
	return nil, nil
}

func (s stuckClient) Ping(context.Context) error { return nil }

func TestCollector_TimeoutIgnoredByClient(t *testing.T) {
	col := NewCollector(stuckClient{hold: 2 * time.Second}, nil, 50*time.Millisecond, 10)

	start := time.Now()
	act, err := col.Collect(context.Background(), checksummed)
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Nil(t, act)
	assert.Less(t, elapsed, time.Second)
}

func TestCollector_PropagatesTaxonomy(t *testing.T) {
	mock := NewMockClient()
	mock.SetError(checksummed, ErrRateLimited)
	col := NewCollector(mock, nil, time.Second, 10)

	_, err := col.Collect(context.Background(), checksummed)
	assert.ErrorIs(t, err, ErrRateLimited)

	_, err = col.Collect(context.Background(), "0x0000000000000000000000000000000000000001")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMockClient_GenerateIsDeterministic(t *testing.T) {
	mock := NewMockClient()
	mock.Generate = true
	a, err := mock.WalletSnapshot(context.Background(), checksummed)
	require.NoError(t, err)
	b, _ := mock.WalletSnapshot(context.Background(), checksummed)
	assert.Equal(t, a.USDValue, b.USDValue)

	txs, err := mock.RecentTransactions(context.Background(), checksummed, 3)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(txs), 3)
	assert.Equal(t, 2, mock.Calls(checksummed))
}
