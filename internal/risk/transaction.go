package risk

import (
	"strings"

	"WalletSentinel/internal/model"
)

// HighGasPriceGwei marks a transaction as paying an unusual gas premium.
const HighGasPriceGwei = 100.0

// TxAssessor scores single transactions.
type TxAssessor struct {
	WhaleUSD       float64
	RiskyContracts map[string]bool // lower-case addresses
}

// NewTxAssessor creates an assessor flagging transfers above whaleUSD and
// any interaction with the listed contracts.
func NewTxAssessor(whaleUSD float64, riskyContracts []string) *TxAssessor {
	a := &TxAssessor{WhaleUSD: whaleUSD, RiskyContracts: make(map[string]bool, len(riskyContracts))}
	for _, c := range riskyContracts {
		a.RiskyContracts[strings.ToLower(c)] = true
	}
	return a
}

// Assess returns the transaction's risk score and the rules that fired.
func (a *TxAssessor) Assess(tx *model.TransactionRecord) (float64, []string) {
	var score float64
	var reasons []string
	if tx.USDValue > a.WhaleUSD {
		score += 0.3
		reasons = append(reasons, "large transaction value")
	}
	if tx.Kind == model.TxContractInteraction {
		score += 0.2
		reasons = append(reasons, "contract interaction")
	}
	if tx.GasPrice > HighGasPriceGwei {
		score += 0.1
		reasons = append(reasons, "high gas price")
	}
	if a.RiskyContracts[strings.ToLower(tx.To)] || a.RiskyContracts[strings.ToLower(tx.From)] {
		score += 0.5
		reasons = append(reasons, "known risky contract")
	}
	return clamp(score), reasons
}
