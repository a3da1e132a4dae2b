package tracker

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/fare"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/gateway/notifier"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/logger"
)

// Notifier 对外推送面（Telegram 等）。
type Notifier interface {
	SendStructured(msg notifier.StructuredMessage) error
}

type fareDrop struct {
	Destination string
	Currency    string
	OldMinor    int64
	NewMinor    int64
	Pct         decimal.Decimal
}

// notifyDrops 本轮与上轮对比，有目的地跌幅达到阈值就推送一条降价提醒。
func (r *Runner) notifyDrops(snap fare.Snapshot) {
	if r.Notifier == nil {
		return
	}
	drops := collectDrops(snap, r.Config.Notify.MinDropPct)
	if len(drops) == 0 {
		return
	}
	msg := buildDropMessage(snap, drops)
	if err := r.Notifier.SendStructured(msg); err != nil {
		logger.Warnf("降价提醒推送失败: %v", err)
	}
}

// collectDrops 找出跌幅不低于 minDropPct（百分数）的目的地。
// 首跑没有对比基准，结果必为空。
func collectDrops(snap fare.Snapshot, minDropPct float64) []fareDrop {
	if len(snap.Previous) == 0 {
		return nil
	}
	threshold := decimal.NewFromFloat(minDropPct)
	if threshold.IsNegative() {
		threshold = decimal.Zero
	}
	hundred := decimal.NewFromInt(100)

	var drops []fareDrop
	for _, cur := range snap.Current {
		old, ok := fare.FindByDestination(snap.Previous, cur.Destination)
		if !ok || old.AmountMinor <= 0 || cur.AmountMinor >= old.AmountMinor {
			continue
		}
		oldDec := decimal.NewFromInt(old.AmountMinor)
		diff := oldDec.Sub(decimal.NewFromInt(cur.AmountMinor))
		pct := diff.Div(oldDec).Mul(hundred)
		if pct.LessThan(threshold) {
			continue
		}
		drops = append(drops, fareDrop{
			Destination: cur.Destination,
			Currency:    cur.CurrencyCode,
			OldMinor:    old.AmountMinor,
			NewMinor:    cur.AmountMinor,
			Pct:         pct,
		})
	}
	return drops
}

func buildDropMessage(snap fare.Snapshot, drops []fareDrop) notifier.StructuredMessage {
	lines := make([]string, 0, len(drops))
	for _, d := range drops {
		lines = append(lines, fmt.Sprintf("%s: %s %s → %s %s（-%s%%）",
			d.Destination,
			d.Currency, fare.FormatAmount(d.OldMinor),
			d.Currency, fare.FormatAmount(d.NewMinor),
			d.Pct.Round(1)))
	}
	sections := []notifier.MessageSection{{Title: "降价目的地", Lines: lines}}

	footer := ""
	if cheapest, ok := fare.Cheapest(snap.Current); ok {
		footer = fmt.Sprintf("当前最低：%s %s %s", cheapest.Destination, cheapest.CurrencyCode, fare.FormatAmount(cheapest.AmountMinor))
	}
	return notifier.StructuredMessage{
		Icon:      "📉",
		Title:     "机票降价提醒",
		Sections:  sections,
		Footer:    footer,
		Timestamp: snap.CheckedAt,
	}
}
