package notifier

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"WalletSentinel/internal/model"
)

var severityEmoji = map[model.Severity]string{
	model.SeverityLow:      "📝",
	model.SeverityMedium:   "⚠️",
	model.SeverityHigh:     "🚨",
	model.SeverityCritical: "💥",
}

// SeverityEmoji returns the glyph for s, or 📢 for unknown severities.
func SeverityEmoji(s model.Severity) string {
	if e, ok := severityEmoji[s]; ok {
		return e
	}
	return "📢"
}

// TitleCase turns "whale_movement" into "Whale Movement".
func TitleCase(s string) string {
	words := strings.Fields(strings.ReplaceAll(s, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// Short truncates an address or hash to 0x1234...abcd.
func Short(s string) string {
	if len(s) <= 12 {
		return s
	}
	return s[:6] + "..." + s[len(s)-4:]
}

// FormatAlert renders an admitted alert with optional transaction and wallet blocks.
func FormatAlert(rec *model.AlertRecord, wallet *model.WalletSnapshot, tx *model.TransactionRecord, walletRisk float64) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("%s <b>%s Alert</b>\n\n", SeverityEmoji(rec.Severity), TitleCase(string(rec.Key.Type))))
	b.WriteString(fmt.Sprintf("<b>Severity:</b> %s\n", strings.ToUpper(string(rec.Severity))))
	b.WriteString(fmt.Sprintf("<b>Description:</b> %s\n", html.EscapeString(rec.Description)))

	if tx != nil {
		b.WriteString("\n<b>Transaction Details:</b>\n")
		b.WriteString(fmt.Sprintf("Hash: <code>%s</code>\n", Short(tx.Hash)))
		b.WriteString(fmt.Sprintf("From: <code>%s</code>\n", Short(tx.From)))
		b.WriteString(fmt.Sprintf("To: <code>%s</code>\n", Short(tx.To)))
		b.WriteString(fmt.Sprintf("Value: $%s\n", usd(tx.USDValue)))
		b.WriteString(fmt.Sprintf("Type: %s\n", tx.Kind))
		b.WriteString(fmt.Sprintf("Risk Score: %.2f\n", tx.RiskScore))
	}

	if wallet != nil {
		b.WriteString("\n<b>Wallet Details:</b>\n")
		b.WriteString(fmt.Sprintf("Address: <code>%s</code>\n", Short(wallet.Address)))
		b.WriteString(fmt.Sprintf("Balance: %s ETH ($%s)\n", wallet.Balance.StringFixed(4), usd(wallet.USDValue)))
		b.WriteString(fmt.Sprintf("Risk Score: %.2f\n", walletRisk))
		if len(wallet.Tags) > 0 {
			b.WriteString(fmt.Sprintf("Tags: %s\n", html.EscapeString(strings.Join(wallet.Tags, ", "))))
		}
	}

	return b.String()
}

// FormatSystemError renders the broadcast sent on persistent loop failure.
func FormatSystemError(msg string) string {
	return fmt.Sprintf("❌ <b>System Error</b>\n\n%s", html.EscapeString(msg))
}

// FormatAnalysis renders the initial analysis sent after /watch.
func FormatAnalysis(address string, a *model.Analysis) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("✅ Now tracking wallet: <code>%s</code>\n\n", address))
	b.WriteString("<b>Initial Analysis:</b>\n")
	c := a.Classification
	b.WriteString(fmt.Sprintf("Type: %s\n", c.WalletType))
	b.WriteString(fmt.Sprintf("Risk Level: %s\n", c.RiskLevel))
	b.WriteString(fmt.Sprintf("Behavior: %s\n", c.Behavior))
	b.WriteString(fmt.Sprintf("Confidence: %.2f%%\n", c.Confidence*100))
	if a.Wallet != nil {
		b.WriteString(fmt.Sprintf("Balance: %s ETH ($%s)\n", a.Wallet.Balance.StringFixed(4), usd(a.Wallet.USDValue)))
	}
	return b.String()
}

// FormatStatus renders a subscriber's tracking status.
func FormatStatus(s *model.Subscriber, sentLastHour, maxPerHour int) string {
	var b strings.Builder
	b.WriteString("📊 <b>Your Tracking Status</b>\n\n")
	if len(s.Wallets) == 0 {
		b.WriteString("No wallets being tracked. Use /watch &lt;address&gt; to start tracking.\n")
	} else {
		b.WriteString("👀 Watched Wallets:\n")
		for _, w := range s.Wallets {
			b.WriteString(fmt.Sprintf("• <code>%s</code>\n", w))
		}
	}

	b.WriteString("\n🔔 Alert Preferences:\n")
	enabled := 0
	for _, t := range model.AlertTypes {
		if s.Enabled(t) {
			b.WriteString(fmt.Sprintf("• %s\n", TitleCase(string(t))))
			enabled++
		}
	}
	if enabled == 0 {
		b.WriteString("No alerts enabled. Use /alerts to configure preferences.\n")
	}
	b.WriteString(fmt.Sprintf("\nAlerts this hour: %d/%d\n", sentLastHour, maxPerHour))
	return b.String()
}

// FormatWhales renders the latest whale movement alerts.
func FormatWhales(recs []*model.AlertRecord) string {
	var b strings.Builder
	b.WriteString("🐋 <b>Latest Whale Movements</b>\n\n")
	if len(recs) == 0 {
		b.WriteString("No whale movements detected yet.")
		return b.String()
	}
	for _, r := range recs {
		when := r.CreatedAt
		if r.LastTriggered != nil {
			when = *r.LastTriggered
		}
		b.WriteString(fmt.Sprintf("• <code>%s</code> %s (%s)\n",
			Short(r.Key.Subject), html.EscapeString(r.Description), when.UTC().Format("2006-01-02 15:04")))
	}
	return b.String()
}

// FormatDigest renders the daily per-subscriber summary.
func FormatDigest(day time.Time, counts map[model.AlertType]int) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📅 <b>Daily Digest</b> | %s\n\n", day.Format("2006-01-02")))
	if len(counts) == 0 {
		b.WriteString("No alerts in the last 24 hours ✅")
		return b.String()
	}
	types := make([]string, 0, len(counts))
	total := 0
	for t, n := range counts {
		types = append(types, string(t))
		total += n
	}
	sort.Strings(types)
	for _, t := range types {
		b.WriteString(fmt.Sprintf("%s: %d\n", TitleCase(t), counts[model.AlertType(t)]))
	}
	b.WriteString(fmt.Sprintf("  ─────────────────\n  Total: %d", total))
	return b.String()
}

// usd formats v with thousands separators and two decimals.
func usd(v float64) string {
	return humanize.FormatFloat("#,###.##", v)
}
