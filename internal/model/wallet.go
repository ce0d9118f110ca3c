package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TxKind classifies what a transaction did.
type TxKind string

const (
	TxTransfer            TxKind = "transfer"
	TxSwap                TxKind = "swap"
	TxContractInteraction TxKind = "contract_interaction"
	TxTokenApproval       TxKind = "token_approval"
	TxUnknown             TxKind = "unknown"
)

// WalletSnapshot is the state of one wallet as seen by a single poll.
type WalletSnapshot struct {
	Address          string          `json:"address"` // EIP-55 checksummed
	Balance          decimal.Decimal `json:"balance"` // native units (ether)
	USDValue         float64         `json:"usd_value"`
	TransactionCount int             `json:"transaction_count"`
	Tags             []string        `json:"tags,omitempty"`
	LastUpdated      time.Time       `json:"last_updated"`
}

// HasTag reports whether the snapshot carries tag.
func (w *WalletSnapshot) HasTag(tag string) bool {
	for _, t := range w.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// TransactionRecord is a single transaction touching a watched wallet.
type TransactionRecord struct {
	Hash      string    `json:"hash"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	USDValue  float64   `json:"usd_value"`
	GasPrice  float64   `json:"gas_price"` // gwei
	Kind      TxKind    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	RiskScore float64   `json:"risk_score"`
}

// WalletActivity bundles a snapshot with its recent transactions, newest first.
type WalletActivity struct {
	Wallet       *WalletSnapshot
	Transactions []TransactionRecord
}

// Latest returns the most recent transaction, or nil.
func (a *WalletActivity) Latest() *TransactionRecord {
	if a == nil || len(a.Transactions) == 0 {
		return nil
	}
	return &a.Transactions[0]
}
