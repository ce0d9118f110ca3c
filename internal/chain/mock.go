package chain

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"WalletSentinel/internal/model"
)

// MockClient serves fixed or generated data for development and testing.
// Addresses without fixtures get deterministic generated activity when
// Generate is set, ErrNotFound otherwise.
type MockClient struct {
	mu       sync.Mutex
	Wallets  map[string]*model.WalletSnapshot
	Txs      map[string][]model.TransactionRecord
	Errs     map[string]error
	PingErr  error
	Delay    time.Duration
	Generate bool
	calls    map[string]int
}

// NewMockClient creates an empty MockClient.
func NewMockClient() *MockClient {
	return &MockClient{
		Wallets: make(map[string]*model.WalletSnapshot),
		Txs:     make(map[string][]model.TransactionRecord),
		Errs:    make(map[string]error),
		calls:   make(map[string]int),
	}
}

// SetWallet installs a fixture for the snapshot's address.
func (m *MockClient) SetWallet(w *model.WalletSnapshot, txs []model.TransactionRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Wallets[w.Address] = w
	m.Txs[w.Address] = txs
}

// SetError makes every call for address fail with err.
func (m *MockClient) SetError(address string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errs[address] = err
}

// SetPingError sets the error returned by Ping.
func (m *MockClient) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PingErr = err
}

// Calls returns how many snapshot requests were made for address.
func (m *MockClient) Calls(address string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[address]
}

func (m *MockClient) WalletSnapshot(ctx context.Context, address string) (*model.WalletSnapshot, error) {
	if err := m.sleep(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[address]++
	if err := m.Errs[address]; err != nil {
		return nil, err
	}
	if w, ok := m.Wallets[address]; ok {
		c := *w
		return &c, nil
	}
	if m.Generate {
		w, _ := generateMockActivity(address)
		return w, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, address)
}

func (m *MockClient) RecentTransactions(ctx context.Context, address string, limit int) ([]model.TransactionRecord, error) {
	if err := m.sleep(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.Errs[address]; err != nil {
		return nil, err
	}
	txs, ok := m.Txs[address]
	if !ok && m.Generate {
		_, txs = generateMockActivity(address)
	}
	out := append([]model.TransactionRecord(nil), txs...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockClient) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.PingErr
}

func (m *MockClient) sleep(ctx context.Context) error {
	if m.Delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
	case <-time.After(m.Delay):
		return nil
	}
}

func generateMockActivity(address string) (*model.WalletSnapshot, []model.TransactionRecord) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(address))
	seed := h.Sum64()

	now := time.Now().UTC()
	balance := decimal.NewFromInt(int64(seed%5000) + 1)
	w := &model.WalletSnapshot{
		Address:          address,
		Balance:          balance,
		USDValue:         balance.Mul(decimal.NewFromInt(3000)).InexactFloat64(),
		TransactionCount: int(seed % 900),
		LastUpdated:      now,
	}

	n := int(seed%8) + 2
	txs := make([]model.TransactionRecord, n)
	for i := 0; i < n; i++ {
		kind := model.TxTransfer
		if (seed>>uint(i))&1 == 1 {
			kind = model.TxContractInteraction
		}
		txs[i] = model.TransactionRecord{
			Hash:      fmt.Sprintf("0x%016x%02d", seed, i),
			From:      address,
			To:        fmt.Sprintf("0x%040x", seed+uint64(i)),
			USDValue:  float64((seed>>uint(i*3))%2_000_000) + 100,
			GasPrice:  float64(20 + (seed>>uint(i))%120),
			Kind:      kind,
			Timestamp: now.Add(-time.Duration(i+1) * 3 * time.Hour),
		}
	}
	return w, txs
}
