package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"WalletSentinel/internal/model"
)

// stablecoins are valued at one dollar per unit.
var stablecoins = map[string]bool{"USDC": true, "USDT": true, "DAI": true}

// EthConfig configures an EthClient.
type EthConfig struct {
	RPCURL    string
	ETHPrice  float64             // USD per ether
	RateLimit float64             // requests per second, 0 disables limiting
	Labels    map[string][]string // address -> tags
}

// EthClient reads Ethereum state over JSON-RPC. Transaction history uses the
// alchemy_getAssetTransfers extension.
type EthClient struct {
	rpc     *rpc.Client
	eth     *ethclient.Client
	limiter *rate.Limiter
	price   decimal.Decimal
	labels  map[string][]string
}

// DialEth connects to the RPC endpoint.
func DialEth(ctx context.Context, cfg EthConfig) (*EthClient, error) {
	rc, err := rpc.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	labels := make(map[string][]string, len(cfg.Labels))
	for addr, tags := range cfg.Labels {
		if c, err := CanonicalAddress(addr); err == nil {
			labels[c] = tags
		}
	}
	return &EthClient{
		rpc:     rc,
		eth:     ethclient.NewClient(rc),
		limiter: limiter,
		price:   decimal.NewFromFloat(cfg.ETHPrice),
		labels:  labels,
	}, nil
}

// Close releases the connection.
func (c *EthClient) Close() {
	c.rpc.Close()
}

func (c *EthClient) WalletSnapshot(ctx context.Context, address string) (*model.WalletSnapshot, error) {
	addr, err := CanonicalAddress(address)
	if err != nil {
		return nil, err
	}
	account := common.HexToAddress(addr)

	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	wei, err := c.eth.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, fmt.Errorf("balance %s: %w", addr, classify(err))
	}

	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	nonce, err := c.eth.NonceAt(ctx, account, nil)
	if err != nil {
		return nil, fmt.Errorf("nonce %s: %w", addr, classify(err))
	}

	ether := WeiToEther(wei)
	return &model.WalletSnapshot{
		Address:          addr,
		Balance:          ether,
		USDValue:         ether.Mul(c.price).InexactFloat64(),
		TransactionCount: int(nonce),
		Tags:             append([]string(nil), c.labels[addr]...),
		LastUpdated:      time.Now().UTC(),
	}, nil
}

// assetTransfer is one entry of an alchemy_getAssetTransfers response.
type assetTransfer struct {
	UniqueID string   `json:"uniqueId"`
	Hash     string   `json:"hash"`
	From     string   `json:"from"`
	To       string   `json:"to"`
	Value    *float64 `json:"value"`
	Asset    string   `json:"asset"`
	Category string   `json:"category"`
	Metadata struct {
		BlockTimestamp string `json:"blockTimestamp"`
	} `json:"metadata"`
}

type assetTransfers struct {
	Transfers []assetTransfer `json:"transfers"`
}

func (c *EthClient) RecentTransactions(ctx context.Context, address string, limit int) ([]model.TransactionRecord, error) {
	addr, err := CanonicalAddress(address)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	seen := make(map[string]bool)
	var out []model.TransactionRecord
	for _, dir := range []string{"fromAddress", "toAddress"} {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		params := map[string]any{
			dir:            addr,
			"category":     []string{"external", "internal", "erc20"},
			"order":        "desc",
			"withMetadata": true,
			"maxCount":     "0x" + strconv.FormatInt(int64(limit), 16),
		}
		var res assetTransfers
		if err := c.rpc.CallContext(ctx, &res, "alchemy_getAssetTransfers", params); err != nil {
			return nil, fmt.Errorf("asset transfers %s: %w", addr, classify(err))
		}
		for _, t := range res.Transfers {
			if seen[t.UniqueID] {
				continue
			}
			seen[t.UniqueID] = true
			out = append(out, c.toRecord(t))
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c *EthClient) toRecord(t assetTransfer) model.TransactionRecord {
	rec := model.TransactionRecord{
		Hash: t.Hash,
		From: t.From,
		To:   t.To,
		Kind: kindFor(t.Category),
	}
	if ts, err := time.Parse(time.RFC3339, t.Metadata.BlockTimestamp); err == nil {
		rec.Timestamp = ts
	}
	if t.Value != nil {
		v := decimal.NewFromFloat(*t.Value)
		switch {
		case strings.EqualFold(t.Asset, "ETH"):
			rec.USDValue = v.Mul(c.price).InexactFloat64()
		case stablecoins[strings.ToUpper(t.Asset)]:
			rec.USDValue = v.InexactFloat64()
		}
	}
	return rec
}

func kindFor(category string) model.TxKind {
	switch category {
	case "external", "erc20", "erc721", "erc1155":
		return model.TxTransfer
	case "internal":
		return model.TxContractInteraction
	default:
		return model.TxUnknown
	}
}

func (c *EthClient) Ping(ctx context.Context) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	if _, err := c.eth.BlockNumber(ctx); err != nil {
		return fmt.Errorf("block number: %w", classify(err))
	}
	return nil
}

func (c *EthClient) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// WeiToEther converts a wei amount to ether.
func WeiToEther(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -18)
}

func classify(err error) error {
	var he rpc.HTTPError
	if errors.As(err, &he) && he.StatusCode == 429 {
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests") {
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
