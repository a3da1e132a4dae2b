package report

import (
	"sort"

	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/fare"
)

// ChangeClass 单个目的地相对上次观察的变化分类。
type ChangeClass string

const (
	ChangeIncreased ChangeClass = "increased"
	ChangeDecreased ChangeClass = "decreased"
	ChangeUnchanged ChangeClass = "unchanged"
	ChangeUnknown   ChangeClass = "unknown" // 无历史可比（首跑或新目的地）
)

// Row 报表中的一行：记录 + 变化分类 + 差值 + 是否最便宜。
type Row struct {
	Record   fare.Record
	Class    ChangeClass
	Delta    int64
	Cheapest bool
}

// Compare 对比本次与上次的票价，产出展示行：
// 按目的地精确匹配算差值；最便宜取输入序第一个最小值；
// 展示序按金额升序稳定排序（并列保持输入序）。
func Compare(current, previous []fare.Record) []Row {
	if len(current) == 0 {
		return nil
	}
	rows := make([]Row, 0, len(current))
	cheapestIdx := 0
	for i, rec := range current {
		if rec.AmountMinor < current[cheapestIdx].AmountMinor {
			cheapestIdx = i
		}
		row := Row{Record: rec, Class: ChangeUnknown}
		if prev, ok := fare.FindByDestination(previous, rec.Destination); ok {
			row.Delta = rec.AmountMinor - prev.AmountMinor
			switch {
			case row.Delta > 0:
				row.Class = ChangeIncreased
			case row.Delta < 0:
				row.Class = ChangeDecreased
			default:
				row.Class = ChangeUnchanged
			}
		}
		rows = append(rows, row)
	}
	rows[cheapestIdx].Cheapest = true
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Record.AmountMinor < rows[j].Record.AmountMinor
	})
	return rows
}
