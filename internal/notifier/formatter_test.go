package notifier

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"WalletSentinel/internal/model"
)

func TestSeverityEmoji(t *testing.T) {
	tests := []struct {
		sev  model.Severity
		want string
	}{
		{model.SeverityLow, "📝"},
		{model.SeverityMedium, "⚠️"},
		{model.SeverityHigh, "🚨"},
		{model.SeverityCritical, "💥"},
		{model.Severity("weird"), "📢"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SeverityEmoji(tt.sev), tt.sev)
	}
}

func TestShortAndTitleCase(t *testing.T) {
	assert.Equal(t, "0x1234...abcd", Short("0x1234567890abcdef1234567890abcd"))
	assert.Equal(t, "0xabc", Short("0xabc"))
	assert.Equal(t, "Whale Movement", TitleCase("whale_movement"))
	assert.Equal(t, "Risk Detected", TitleCase("risk_detected"))
}

func TestFormatAlert(t *testing.T) {
	rec := &model.AlertRecord{
		Key:         model.NewAlertKey(model.AlertWhaleMovement, wallet),
		Severity:    model.SeverityMedium,
		Description: "Large move <script>",
	}
	tx := &model.TransactionRecord{
		Hash:      "0xdeadbeefdeadbeefdeadbeef",
		From:      wallet,
		To:        "0x000000000000000000000000000000000000dEaD",
		USDValue:  2_500_000,
		Kind:      model.TxTransfer,
		RiskScore: 0.3,
	}
	w := &model.WalletSnapshot{
		Address:  wallet,
		Balance:  decimal.RequireFromString("1000.5"),
		USDValue: 3_001_500,
		Tags:     []string{"whale", "exchange"},
	}

	msg := FormatAlert(rec, w, tx, 0.45)
	assert.Contains(t, msg, "⚠️ <b>Whale Movement Alert</b>")
	assert.Contains(t, msg, "<b>Severity:</b> MEDIUM")
	assert.Contains(t, msg, "Large move &lt;script&gt;")
	assert.Contains(t, msg, "Hash: <code>0xdead...beef</code>")
	assert.Contains(t, msg, "Value: $2,500,000.00")
	assert.Contains(t, msg, "Balance: 1000.5000 ETH ($3,001,500.00)")
	assert.Contains(t, msg, "Risk Score: 0.45")
	assert.Contains(t, msg, "Tags: whale, exchange")

	bare := FormatAlert(rec, nil, nil, 0)
	assert.NotContains(t, bare, "Transaction Details")
	assert.NotContains(t, bare, "Wallet Details")
}

func TestFormatSystemError(t *testing.T) {
	assert.Equal(t, "❌ <b>System Error</b>\n\nrpc down &amp; out", FormatSystemError("rpc down & out"))
}

func TestFormatDigest(t *testing.T) {
	day := time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)
	assert.Contains(t, FormatDigest(day, nil), "No alerts in the last 24 hours")

	msg := FormatDigest(day, map[model.AlertType]int{
		model.AlertWhaleMovement: 2,
		model.AlertRiskDetected:  1,
	})
	assert.Contains(t, msg, "2025-03-02")
	assert.Contains(t, msg, "Risk Detected: 1\nWhale Movement: 2\n")
	assert.Contains(t, msg, "Total: 3")
}

func TestFormatStatus(t *testing.T) {
	sub := &model.Subscriber{
		ChatID:      1,
		Wallets:     []string{wallet},
		Preferences: map[model.AlertType]bool{model.AlertPriceImpact: false},
	}
	msg := FormatStatus(sub, 3, 10)
	assert.Contains(t, msg, "<code>"+wallet+"</code>")
	assert.Contains(t, msg, "• Whale Movement")
	assert.NotContains(t, msg, "Price Impact")
	assert.Contains(t, msg, "Alerts this hour: 3/10")
}
