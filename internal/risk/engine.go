package risk

import (
	"context"
	"fmt"
	"time"

	"WalletSentinel/internal/features"
	"WalletSentinel/internal/logger"
	"WalletSentinel/internal/model"
)

// DefaultLabelTimeout bounds a single label function call.
const DefaultLabelTimeout = 2 * time.Second

// Prior carries labels known ahead of prediction, e.g. from wallet tags.
// Empty fields are ignored.
type Prior struct {
	Type     model.WalletType
	Behavior model.Behavior
}

// Scorer combines a label function with the fixed risk aggregation.
type Scorer struct {
	labeler Labeler
	timeout time.Duration
}

// NewScorer creates a Scorer. A nil labeler selects HeuristicLabeler.
func NewScorer(l Labeler, timeout time.Duration) *Scorer {
	if l == nil {
		l = HeuristicLabeler{}
	}
	if timeout <= 0 {
		timeout = DefaultLabelTimeout
	}
	return &Scorer{labeler: l, timeout: timeout}
}

// Fallback is the classification used when labels cannot be produced.
func Fallback() model.Classification {
	return model.Classification{
		WalletType: model.WalletUnknown,
		Behavior:   model.BehaviorUnknown,
		RiskLevel:  model.RiskUnknown,
		RiskScore:  0.5,
		Confidence: 0,
	}
}

// Score classifies a wallet from its feature vector. It never fails: a
// label function error or timeout yields Fallback().
func (s *Scorer) Score(ctx context.Context, v features.Vector, prior Prior) model.Classification {
	pred, err := s.predict(ctx, v, prior)
	if err != nil {
		l := logger.GetLogger()
		l.Warn().Err(err).Msg("label prediction failed, using fallback classification")
		return Fallback()
	}

	score, factors := Aggregate(v, pred.Type, pred.Behavior)
	return model.Classification{
		WalletType: pred.Type,
		Behavior:   pred.Behavior,
		RiskLevel:  LevelFor(score),
		RiskScore:  score,
		Confidence: (pred.TypeConfidence + pred.BehaviorConfidence) / 2,
		Factors:    factors,
	}
}

func (s *Scorer) predict(ctx context.Context, v features.Vector, prior Prior) (Prediction, error) {
	if prior.Type != "" && prior.Behavior != "" {
		p := Prediction{Type: prior.Type, TypeConfidence: 1, Behavior: prior.Behavior, BehaviorConfidence: 1}
		return p, p.validate()
	}

	pred, err := s.callLabeler(ctx, v)
	if err != nil {
		return Prediction{}, err
	}
	if prior.Type != "" {
		pred.Type, pred.TypeConfidence = prior.Type, 1
	}
	if prior.Behavior != "" {
		pred.Behavior, pred.BehaviorConfidence = prior.Behavior, 1
	}
	if err := pred.validate(); err != nil {
		return Prediction{}, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	return pred, nil
}

type labelResult struct {
	pred Prediction
	err  error
}

func (s *Scorer) callLabeler(ctx context.Context, v features.Vector) (Prediction, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan labelResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- labelResult{err: fmt.Errorf("label function panic: %v", r)}
			}
		}()
		p, err := s.labeler.Predict(ctx, v)
		done <- labelResult{pred: p, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return Prediction{}, fmt.Errorf("%w: %v", ErrModelUnavailable, res.err)
		}
		return res.pred, nil
	case <-ctx.Done():
		return Prediction{}, fmt.Errorf("%w: %v", ErrModelUnavailable, ctx.Err())
	}
}
