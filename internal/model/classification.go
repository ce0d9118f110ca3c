package model

// WalletType is the predicted role of a wallet.
type WalletType string

const (
	WalletWhale        WalletType = "whale"
	WalletMarketMaker  WalletType = "market_maker"
	WalletRetailTrader WalletType = "retail_trader"
	WalletRisky        WalletType = "risky_wallet"
	WalletUnknown      WalletType = "unknown"
)

// WalletTypes lists every wallet type in label-index order.
var WalletTypes = []WalletType{WalletWhale, WalletMarketMaker, WalletRetailTrader, WalletRisky, WalletUnknown}

// Behavior is the predicted trading behavior of a wallet.
type Behavior string

const (
	BehaviorAccumulating Behavior = "accumulating"
	BehaviorDumping      Behavior = "dumping"
	BehaviorWashTrading  Behavior = "wash_trading"
	BehaviorStable       Behavior = "stable"
	BehaviorUnknown      Behavior = "unknown"
)

// Behaviors lists every behavior in label-index order.
var Behaviors = []Behavior{BehaviorAccumulating, BehaviorDumping, BehaviorWashTrading, BehaviorStable, BehaviorUnknown}

// RiskLevel buckets a risk score.
type RiskLevel string

const (
	RiskHigh    RiskLevel = "high"
	RiskMedium  RiskLevel = "medium"
	RiskLow     RiskLevel = "low"
	RiskUnknown RiskLevel = "unknown"
)

// Classification is the result of scoring one wallet.
type Classification struct {
	WalletType WalletType `json:"wallet_type"`
	Behavior   Behavior   `json:"behavior"`
	RiskLevel  RiskLevel  `json:"risk_level"`
	RiskScore  float64    `json:"risk_score"`
	Confidence float64    `json:"confidence"`
	Factors    []Factor   `json:"factors,omitempty"`
}

// Factor is one additive term of the risk score.
type Factor struct {
	Name     string  `json:"name"`
	Raw      float64 `json:"raw"`
	Weight   float64 `json:"weight"`
	Weighted float64 `json:"weighted"`
}

// Degraded reports whether the classification is the fallback result.
func (c *Classification) Degraded() bool {
	return c.RiskLevel == RiskUnknown
}

// Analysis is a one-off evaluation of a wallet.
type Analysis struct {
	Wallet         *WalletSnapshot     `json:"wallet"`
	Transactions   []TransactionRecord `json:"transactions"`
	Features       map[string]float64  `json:"features"`
	Classification Classification      `json:"classification"`
}
