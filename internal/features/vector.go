package features

// Feature indexes into a Vector. The order is fixed; scorers and models
// consume vectors positionally.
type Feature int

const (
	TransactionVolume Feature = iota
	ContractRatio
	TokenDiversity
	NetworkCentrality
	AvgTransactionValue
	TransactionFrequency
	TimeSinceLastTx
	WhaleInteractionRatio
	RiskyContractRatio

	NumFeatures
)

// Normalization scales for magnitude features.
const (
	VolumeScaleUSD   = 10_000_000.0
	AvgValueScaleUSD = 100_000.0
	RecencyScale     = 86400.0 // seconds
	FrequencyWindow  = 86400.0 // seconds per rate unit
)

// NeutralPrior is used for relational features whose source data is not wired.
const NeutralPrior = 0.5

// Vector is a normalized feature vector. Every element is in [0,1].
type Vector [NumFeatures]float64

var names = [NumFeatures]string{
	"transaction_volume",
	"contract_interaction_frequency",
	"token_diversity",
	"network_centrality",
	"avg_transaction_value",
	"transaction_frequency",
	"time_since_last_tx",
	"whale_interaction_ratio",
	"risky_contract_interaction_ratio",
}

// relational marks features that default to NeutralPrior rather than zero.
var relational = [NumFeatures]bool{
	ContractRatio:         true,
	TokenDiversity:        true,
	NetworkCentrality:     true,
	WhaleInteractionRatio: true,
	RiskyContractRatio:    true,
}

func (f Feature) String() string {
	if f < 0 || f >= NumFeatures {
		return "unknown"
	}
	return names[f]
}

// Relational reports whether f is a ratio-style feature.
func (f Feature) Relational() bool {
	return f >= 0 && f < NumFeatures && relational[f]
}

// Neutral returns the all-defaults vector: NeutralPrior for relational
// features and 0 for magnitude features.
func Neutral() Vector {
	var v Vector
	for i := range v {
		if relational[i] {
			v[i] = NeutralPrior
		}
	}
	return v
}

// Get returns the value of feature f.
func (v Vector) Get(f Feature) float64 { return v[f] }

// Map returns the vector keyed by feature name.
func (v Vector) Map() map[string]float64 {
	m := make(map[string]float64, NumFeatures)
	for i, x := range v {
		m[names[i]] = x
	}
	return m
}
