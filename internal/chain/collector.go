package chain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"WalletSentinel/internal/model"
	"WalletSentinel/internal/risk"
)

// Defaults for the collector.
const (
	DefaultFetchTimeout = 10 * time.Second
	DefaultTxLimit      = 50
)

// Collector fetches a wallet's snapshot and recent transactions under a
// single deadline and scores each transaction.
type Collector struct {
	Client   Client
	Assessor *risk.TxAssessor
	Timeout  time.Duration
	Limit    int
}

// NewCollector creates a new Collector.
func NewCollector(client Client, assessor *risk.TxAssessor, timeout time.Duration, limit int) *Collector {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	if limit <= 0 {
		limit = DefaultTxLimit
	}
	return &Collector{Client: client, Assessor: assessor, Timeout: timeout, Limit: limit}
}

// Collect returns the wallet's current activity, newest transaction first.
// It returns ErrUnavailable once the timeout expires, even if the client
// ignores its context.
func (c *Collector) Collect(ctx context.Context, address string) (*model.WalletActivity, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	done := make(chan fetchResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fetchResult{err: fmt.Errorf("%w: chain client panic: %v", ErrUnavailable, r)}
			}
		}()
		act, err := c.fetch(ctx, address)
		done <- fetchResult{act: act, err: err}
	}()

	select {
	case res := <-done:
		return res.act, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("fetch wallet %s: %w: %v", address, ErrUnavailable, ctx.Err())
	}
}

type fetchResult struct {
	act *model.WalletActivity
	err error
}

func (c *Collector) fetch(ctx context.Context, address string) (*model.WalletActivity, error) {
	snap, err := c.Client.WalletSnapshot(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("fetch wallet snapshot: %w", unavailable(err))
	}
	txs, err := c.Client.RecentTransactions(ctx, snap.Address, c.Limit)
	if err != nil {
		return nil, fmt.Errorf("fetch recent transactions: %w", unavailable(err))
	}

	sort.SliceStable(txs, func(i, j int) bool { return txs[i].Timestamp.After(txs[j].Timestamp) })
	if c.Assessor != nil {
		for i := range txs {
			if txs[i].RiskScore == 0 {
				txs[i].RiskScore, _ = c.Assessor.Assess(&txs[i])
			}
		}
	}
	return &model.WalletActivity{Wallet: snap, Transactions: txs}, nil
}

// unavailable maps untyped failures, including deadline expiry, to ErrUnavailable.
func unavailable(err error) error {
	if errors.Is(err, ErrUnavailable) || errors.Is(err, ErrRateLimited) || errors.Is(err, ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
