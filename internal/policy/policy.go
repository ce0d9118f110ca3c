package policy

import (
	"fmt"

	"WalletSentinel/internal/model"
)

// Defaults for the policy thresholds.
const (
	DefaultWhaleThresholdUSD = 1_000_000.0
	DefaultRiskThreshold     = 0.7
	ContractRiskThreshold    = 0.7
)

// severityTiers maps a risk score to the risk_detected severity.
var severityTiers = []struct {
	MinScore float64
	Severity model.Severity
}{
	{0.8, model.SeverityCritical},
	{0.6, model.SeverityHigh},
	{0.4, model.SeverityMedium},
}

// SeverityFor maps a risk score to an alert severity.
func SeverityFor(score float64) model.Severity {
	for _, t := range severityTiers {
		if score >= t.MinScore {
			return t.Severity
		}
	}
	return model.SeverityLow
}

// Thresholds configures the alert rules.
type Thresholds struct {
	WhaleUSD float64
	Risk     float64
}

// DefaultThresholds returns the stock thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{WhaleUSD: DefaultWhaleThresholdUSD, Risk: DefaultRiskThreshold}
}

// Evaluate applies every alert rule to one wallet's evaluation. Rules are
// independent; the result may hold zero or more candidates.
func Evaluate(c *model.Classification, latest *model.TransactionRecord, wallet *model.WalletSnapshot, recent []model.TransactionRecord, th Thresholds) []model.AlertCandidate {
	if c == nil || wallet == nil {
		return nil
	}
	var out []model.AlertCandidate
	if a, ok := riskDetected(c, wallet, th.Risk); ok {
		out = append(out, a)
	}
	if a, ok := whaleMovement(c, latest, wallet, th.WhaleUSD); ok {
		out = append(out, a)
	}
	if a, ok := contractInteraction(recent, wallet); ok {
		out = append(out, a)
	}
	return out
}

func riskDetected(c *model.Classification, wallet *model.WalletSnapshot, threshold float64) (model.AlertCandidate, bool) {
	if c.Degraded() || c.RiskScore < threshold {
		return model.AlertCandidate{}, false
	}
	return model.AlertCandidate{
		Key:         model.NewAlertKey(model.AlertRiskDetected, wallet.Address),
		Severity:    SeverityFor(c.RiskScore),
		Description: fmt.Sprintf("High risk detected for wallet %s (score %.2f)", wallet.Address, c.RiskScore),
		Conditions: map[string]any{
			"risk_score":  c.RiskScore,
			"risk_level":  string(c.RiskLevel),
			"wallet_type": string(c.WalletType),
			"behavior":    string(c.Behavior),
			"confidence":  c.Confidence,
			"threshold":   threshold,
		},
	}, true
}

func whaleMovement(c *model.Classification, latest *model.TransactionRecord, wallet *model.WalletSnapshot, threshold float64) (model.AlertCandidate, bool) {
	if c.WalletType != model.WalletWhale || latest == nil || latest.USDValue < threshold {
		return model.AlertCandidate{}, false
	}
	tx := *latest
	return model.AlertCandidate{
		Key:         model.NewAlertKey(model.AlertWhaleMovement, wallet.Address),
		Severity:    model.SeverityMedium,
		Description: fmt.Sprintf("Whale wallet moved $%.0f", latest.USDValue),
		Conditions: map[string]any{
			"tx_hash":   latest.Hash,
			"usd_value": latest.USDValue,
			"threshold": threshold,
		},
		Transaction: &tx,
	}, true
}

func contractInteraction(recent []model.TransactionRecord, wallet *model.WalletSnapshot) (model.AlertCandidate, bool) {
	for i := range recent {
		tx := recent[i]
		if tx.Kind != model.TxContractInteraction || tx.RiskScore < ContractRiskThreshold {
			continue
		}
		return model.AlertCandidate{
			Key:         model.NewAlertKey(model.AlertContractInteraction, wallet.Address),
			Severity:    model.SeverityHigh,
			Description: fmt.Sprintf("Risky contract interaction (score %.2f)", tx.RiskScore),
			Conditions: map[string]any{
				"tx_hash":    tx.Hash,
				"contract":   tx.To,
				"risk_score": tx.RiskScore,
			},
			Transaction: &tx,
		}, true
	}
	return model.AlertCandidate{}, false
}
