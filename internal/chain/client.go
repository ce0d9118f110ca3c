// Package chain fetches wallet state and transaction history.
package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"WalletSentinel/internal/model"
)

var (
	ErrNotFound    = errors.New("wallet not found")
	ErrRateLimited = errors.New("chain provider rate limited")
	ErrUnavailable = errors.New("chain data unavailable")
)

// Client is the chain data provider.
type Client interface {
	WalletSnapshot(ctx context.Context, address string) (*model.WalletSnapshot, error)
	RecentTransactions(ctx context.Context, address string, limit int) ([]model.TransactionRecord, error)
	Ping(ctx context.Context) error
}

// CanonicalAddress validates a hex address and returns its EIP-55 form.
func CanonicalAddress(s string) (string, error) {
	if !common.IsHexAddress(s) {
		return "", fmt.Errorf("%w: invalid address %q", ErrNotFound, s)
	}
	return common.HexToAddress(s).Hex(), nil
}

// IsDataUnavailable reports whether err means the wallet should be skipped
// for this cycle.
func IsDataUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrRateLimited) || errors.Is(err, ErrNotFound)
}
