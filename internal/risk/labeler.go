package risk

import (
	"context"
	"errors"
	"fmt"
	"math"

	"WalletSentinel/internal/features"
	"WalletSentinel/internal/model"
)

// ErrModelUnavailable is returned when the label function fails or times out.
var ErrModelUnavailable = errors.New("label model unavailable")

// Prediction is the output of a label function. Type and behavior are
// predicted independently, each with its own confidence in [0,1].
type Prediction struct {
	Type               model.WalletType
	TypeConfidence     float64
	Behavior           model.Behavior
	BehaviorConfidence float64
}

// Labeler maps a feature vector to wallet type and behavior labels.
type Labeler interface {
	Predict(ctx context.Context, v features.Vector) (Prediction, error)
}

// LabelerFunc adapts a function to the Labeler interface.
type LabelerFunc func(ctx context.Context, v features.Vector) (Prediction, error)

func (f LabelerFunc) Predict(ctx context.Context, v features.Vector) (Prediction, error) {
	return f(ctx, v)
}

func (p Prediction) validate() error {
	if _, ok := typeRisk[p.Type]; !ok {
		return fmt.Errorf("unknown wallet type %q", p.Type)
	}
	if _, ok := behaviorRisk[p.Behavior]; !ok {
		return fmt.Errorf("unknown behavior %q", p.Behavior)
	}
	if !unit(p.TypeConfidence) || !unit(p.BehaviorConfidence) {
		return fmt.Errorf("confidence out of range (%v, %v)", p.TypeConfidence, p.BehaviorConfidence)
	}
	return nil
}

func unit(x float64) bool {
	return !math.IsNaN(x) && x >= 0 && x <= 1
}

// HeuristicLabeler is a deterministic rule-based label function. It
// stands in for a trained model and reads only the feature vector.
type HeuristicLabeler struct{}

func (HeuristicLabeler) Predict(_ context.Context, v features.Vector) (Prediction, error) {
	p := Prediction{}
	p.Type, p.TypeConfidence = labelType(v)
	p.Behavior, p.BehaviorConfidence = labelBehavior(v)
	return p, nil
}

func labelType(v features.Vector) (model.WalletType, float64) {
	volume := v.Get(features.TransactionVolume)
	avg := v.Get(features.AvgTransactionValue)
	contracts := v.Get(features.ContractRatio)
	freq := v.Get(features.TransactionFrequency)
	risky := v.Get(features.RiskyContractRatio)

	switch {
	case risky >= 0.7:
		return model.WalletRisky, risky
	case volume >= 0.5 || avg >= 0.9:
		return model.WalletWhale, 0.5 + math.Max(volume, avg)/2
	case contracts >= 0.6 && freq >= 0.8:
		return model.WalletMarketMaker, 0.7
	case volume > 0:
		return model.WalletRetailTrader, 0.6
	default:
		return model.WalletUnknown, 0.3
	}
}

func labelBehavior(v features.Vector) (model.Behavior, float64) {
	volume := v.Get(features.TransactionVolume)
	avg := v.Get(features.AvgTransactionValue)
	contracts := v.Get(features.ContractRatio)
	freq := v.Get(features.TransactionFrequency)
	idle := v.Get(features.TimeSinceLastTx)

	switch {
	case volume == 0:
		return model.BehaviorUnknown, 0.3
	case contracts >= 0.8 && freq >= 0.9:
		return model.BehaviorWashTrading, 0.6
	case idle >= 1:
		return model.BehaviorStable, 0.7
	case freq >= 0.9 && avg >= 0.5:
		return model.BehaviorDumping, 0.5
	default:
		return model.BehaviorAccumulating, 0.5
	}
}
