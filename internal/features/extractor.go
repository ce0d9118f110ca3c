package features

import (
	"errors"
	"math"
	"time"

	"WalletSentinel/internal/model"
)

// Extractor turns a wallet and its recent transactions into a Vector.
type Extractor struct {
	Now func() time.Time
}

// NewExtractor creates an Extractor using the wall clock.
func NewExtractor() *Extractor {
	return &Extractor{Now: time.Now}
}

// Extract computes the feature vector. Malformed input yields Neutral().
func (e *Extractor) Extract(wallet *model.WalletSnapshot, txs []model.TransactionRecord) Vector {
	now := time.Now
	if e != nil && e.Now != nil {
		now = e.Now
	}
	return ExtractAt(wallet, txs, now())
}

// ExtractAt is Extract with an explicit reference time for recency.
func ExtractAt(wallet *model.WalletSnapshot, txs []model.TransactionRecord, now time.Time) Vector {
	if err := validate(wallet, txs); err != nil {
		return Neutral()
	}

	v := Neutral()
	if len(txs) == 0 {
		v[ContractRatio] = 0
		return v
	}

	var volume float64
	var contracts int
	earliest, latest := txs[0].Timestamp, txs[0].Timestamp
	for _, tx := range txs {
		volume += tx.USDValue
		if tx.Kind == model.TxContractInteraction {
			contracts++
		}
		if tx.Timestamp.Before(earliest) {
			earliest = tx.Timestamp
		}
		if tx.Timestamp.After(latest) {
			latest = tx.Timestamp
		}
	}
	n := float64(len(txs))

	v[TransactionVolume] = capped(volume / VolumeScaleUSD)
	v[ContractRatio] = float64(contracts) / n
	v[AvgTransactionValue] = capped(volume / n / AvgValueScaleUSD)

	if span := latest.Sub(earliest).Seconds(); span > 0 {
		v[TransactionFrequency] = capped(n / (span / FrequencyWindow))
	}
	if since := now.Sub(latest).Seconds(); since > 0 {
		v[TimeSinceLastTx] = capped(since / RecencyScale)
	}
	return v
}

func validate(wallet *model.WalletSnapshot, txs []model.TransactionRecord) error {
	if wallet == nil {
		return errors.New("nil wallet")
	}
	if wallet.Address == "" {
		return errors.New("wallet has no address")
	}
	for _, tx := range txs {
		if math.IsNaN(tx.USDValue) || math.IsInf(tx.USDValue, 0) || tx.USDValue < 0 {
			return errors.New("transaction usd value out of range")
		}
		if tx.Timestamp.IsZero() {
			return errors.New("transaction without timestamp")
		}
	}
	return nil
}

func capped(x float64) float64 {
	if x > 1 {
		return 1
	}
	if x < 0 {
		return 0
	}
	return x
}
