package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/config"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/fare"
)

// ErrNoCurrentPrices 本次快照没有任何记录，报表不渲染（空表没有意义）。
var ErrNoCurrentPrices = errors.New("snapshot has no current prices, refusing to render")

const timestampLayout = "02 Jan 2006, 15:04 MST"

// Renderer 把快照渲染成 Markdown 报表并整体覆盖输出文件。
type Renderer struct {
	outputPath string
	location   *time.Location
	chartLink  string // 为空则不渲染图表小节
}

func NewRenderer(outputPath, timezone, chartLink string) (*Renderer, error) {
	loc, err := time.LoadLocation(strings.TrimSpace(timezone))
	if err != nil {
		return nil, fmt.Errorf("load report timezone failed: %w", err)
	}
	return &Renderer{
		outputPath: outputPath,
		location:   loc,
		chartLink:  chartLink,
	}, nil
}

func (r *Renderer) OutputPath() string { return r.outputPath }

// Render 生成完整 Markdown 文档。同一快照两次渲染字节级一致。
func (r *Renderer) Render(snap fare.Snapshot, route config.RouteConfig) (string, error) {
	if len(snap.Current) == 0 {
		return "", ErrNoCurrentPrices
	}
	rows := Compare(snap.Current, snap.Previous)

	var b strings.Builder
	b.WriteString("# ✈️ Flight Price Tracker\n\n")
	b.WriteString(fmt.Sprintf("Automated flight price checks from **%s**.\n\n", route.Origin))
	b.WriteString(fmt.Sprintf("**Route:** %s → %s\n\n", route.Origin, strings.Join(route.DestinationList(), ", ")))
	if strings.TrimSpace(route.TravelDates) != "" {
		b.WriteString(fmt.Sprintf("**Travel dates:** %s\n\n", route.TravelDates))
	}
	b.WriteString(fmt.Sprintf("**Last checked:** %s\n\n", snap.CheckedAt.In(r.location).Format(timestampLayout)))

	b.WriteString("| Destination | Price | Change |\n")
	b.WriteString("| --- | --- | --- |\n")
	for _, row := range rows {
		b.WriteString(fmt.Sprintf("| %s | %s | %s |\n",
			row.Record.Destination, row.Record.FormatPrice(), changeCell(row)))
	}
	b.WriteString("\n")

	if r.chartLink != "" {
		b.WriteString(fmt.Sprintf("📊 [Price history chart](%s)\n\n", r.chartLink))
	}

	b.WriteString("---\n\n")
	b.WriteString("*Prices are collected by an automated browser agent and are estimates; ")
	b.WriteString("always confirm on the booking site before buying.*\n")
	return b.String(), nil
}

// changeCell 变化列：方向符号 + 非零差值，最便宜行追加奖杯。
func changeCell(row Row) string {
	var parts []string
	switch row.Class {
	case ChangeDecreased:
		parts = append(parts, "📉 "+fare.FormatSignedAmount(row.Delta))
	case ChangeIncreased:
		parts = append(parts, "📈 "+fare.FormatSignedAmount(row.Delta))
	case ChangeUnchanged:
		parts = append(parts, "➖")
	case ChangeUnknown:
		// 无历史，不渲染方向
	}
	if row.Cheapest {
		parts = append(parts, "🏆")
	}
	return strings.Join(parts, " ")
}

// Write 原子覆盖输出文件（临时文件 + rename）。
func (r *Renderer) Write(content string) error {
	return writeFileAtomic(r.outputPath, []byte(content))
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir failed: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file failed: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace output file failed: %w", err)
	}
	return nil
}
