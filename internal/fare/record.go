package fare

import "time"

// Record 一条观察到的票价：目的地、整数金额、币种、观察时间。
// 同一批解析出的记录共享同一个 ObservedAt。
type Record struct {
	Destination  string
	AmountMinor  int64
	CurrencyCode string
	ObservedAt   time.Time
}

// Snapshot 一次运行的完整观察：本次记录 + 上次记录（首跑为空）。
// 历史深度固定为 1，上上次的记录在构建新快照时被丢弃。
type Snapshot struct {
	CheckedAt time.Time
	Current   []Record
	Previous  []Record
}

// NewSnapshot 由本次解析结果与上一个快照构建新快照。
func NewSnapshot(checkedAt time.Time, current []Record, prev *Snapshot) Snapshot {
	snap := Snapshot{
		CheckedAt: checkedAt,
		Current:   append([]Record(nil), current...),
	}
	if prev != nil && len(prev.Current) > 0 {
		snap.Previous = append([]Record(nil), prev.Current...)
	}
	return snap
}

// FindByDestination 在列表中按目的地精确匹配，返回第一条。
func FindByDestination(records []Record, destination string) (Record, bool) {
	for _, r := range records {
		if r.Destination == destination {
			return r, true
		}
	}
	return Record{}, false
}

// Cheapest 返回金额最小的记录；并列时取先出现的那条。
func Cheapest(records []Record) (Record, bool) {
	if len(records) == 0 {
		return Record{}, false
	}
	best := records[0]
	for _, r := range records[1:] {
		if r.AmountMinor < best.AmountMinor {
			best = r
		}
	}
	return best, true
}
