package risk

import (
	"math"

	"WalletSentinel/internal/features"
	"WalletSentinel/internal/model"
)

// typeRisk is the base risk contributed by each wallet type.
var typeRisk = map[model.WalletType]float64{
	model.WalletWhale:        0.3,
	model.WalletMarketMaker:  0.2,
	model.WalletRetailTrader: 0.1,
	model.WalletRisky:        0.8,
	model.WalletUnknown:      0.5,
}

// behaviorRisk is the risk contributed by each behavior.
var behaviorRisk = map[model.Behavior]float64{
	model.BehaviorAccumulating: 0.1,
	model.BehaviorDumping:      0.3,
	model.BehaviorWashTrading:  0.7,
	model.BehaviorStable:       0.1,
	model.BehaviorUnknown:      0.5,
}

// featureWeights are the feature terms added to the label risk.
var featureWeights = []struct {
	Feature features.Feature
	Weight  float64
}{
	{features.WhaleInteractionRatio, 0.2},
	{features.RiskyContractRatio, 0.3},
	{features.ContractRatio, 0.2},
}

// Risk level cut-offs.
const (
	HighRiskScore   = 0.7
	MediumRiskScore = 0.4
)

// Aggregate computes the risk score for the given labels. It is a pure
// function of its inputs; the result is clamped to [0,1] and rounded to
// three decimals.
func Aggregate(v features.Vector, t model.WalletType, b model.Behavior) (float64, []model.Factor) {
	factors := make([]model.Factor, 0, 2+len(featureWeights))

	tr, ok := typeRisk[t]
	if !ok {
		tr = typeRisk[model.WalletUnknown]
	}
	factors = append(factors, model.Factor{Name: "wallet_type:" + string(t), Raw: tr, Weight: 1, Weighted: tr})

	br, ok := behaviorRisk[b]
	if !ok {
		br = behaviorRisk[model.BehaviorUnknown]
	}
	factors = append(factors, model.Factor{Name: "behavior:" + string(b), Raw: br, Weight: 1, Weighted: br})

	for _, fw := range featureWeights {
		raw := v.Get(fw.Feature)
		factors = append(factors, model.Factor{
			Name:     fw.Feature.String(),
			Raw:      raw,
			Weight:   fw.Weight,
			Weighted: raw * fw.Weight,
		})
	}

	var sum float64
	for _, f := range factors {
		sum += f.Weighted
	}
	return clamp(math.Round(sum*1000) / 1000), factors
}

// LevelFor maps a score to its risk level.
func LevelFor(score float64) model.RiskLevel {
	switch {
	case score >= HighRiskScore:
		return model.RiskHigh
	case score >= MediumRiskScore:
		return model.RiskMedium
	default:
		return model.RiskLow
	}
}

func clamp(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
