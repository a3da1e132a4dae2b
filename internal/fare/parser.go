package fare

import (
	"regexp"
	"strings"
	"time"

	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/logger"
)

// Parser 把 agent 的自由文本报告解析成结构化票价记录。
// 上游输出只受提示词约束、没有格式保证，所以解析分两档兜底：
// 先抓 "目的地: 币种 金额" 的标注格式；一条都没有再退回
// "词 + 数字" 的宽松格式，用可信价格区间过滤掉年份、航班号之类的噪声。
type Parser struct {
	defaultCurrency string
	minPlausible    int64
	maxPlausible    int64

	now func() time.Time
}

var (
	// Athens: ZAR 10,560
	labeledPattern = regexp.MustCompile(`(\w+):\s*([A-Z]{3})\s*(\d[\d,]*)`)
	// Athens around 10,560（同一行内，词后面跟数字）
	loosePattern = regexp.MustCompile(`([A-Za-z]\w*)[^\d\r\n]*?(\d[\d,]*)`)
)

func NewParser(defaultCurrency string, minPlausible, maxPlausible int64) *Parser {
	return &Parser{
		defaultCurrency: strings.ToUpper(strings.TrimSpace(defaultCurrency)),
		minPlausible:    minPlausible,
		maxPlausible:    maxPlausible,
		now:             time.Now,
	}
}

type parseStrategy struct {
	name string
	run  func(message string, observedAt time.Time) []Record
}

func (p *Parser) strategies() []parseStrategy {
	return []parseStrategy{
		{name: "labeled", run: p.parseLabeled},
		{name: "loose", run: p.parseLoose},
	}
}

// Parse 按策略顺序解析，取第一个有命中的结果；全部落空返回空切片。
// 空结果不是错误，是否致命由调用方决定。同一批记录共享一个观察时间。
func (p *Parser) Parse(message string) []Record {
	// 秒级精度：历史文件用 RFC3339 存，解析时就截断避免读写不对等。
	observedAt := p.now().UTC().Truncate(time.Second)
	strategies := p.strategies()
	for i, strat := range strategies {
		records := strat.run(message, observedAt)
		if len(records) > 0 {
			if i > 0 {
				logger.Warnf("标注格式零命中，%s 策略解析出 %d 条记录", strat.name, len(records))
			}
			return records
		}
		if i < len(strategies)-1 {
			logger.Debugf("解析策略 %s 零命中，尝试下一档", strat.name)
		}
	}
	return nil
}

func (p *Parser) parseLabeled(message string, observedAt time.Time) []Record {
	matches := labeledPattern.FindAllStringSubmatch(message, -1)
	if len(matches) == 0 {
		return nil
	}
	records := make([]Record, 0, len(matches))
	for _, m := range matches {
		amount, ok := parseAmount(m[3])
		if !ok {
			continue
		}
		records = append(records, Record{
			Destination:  m[1],
			AmountMinor:  amount,
			CurrencyCode: m[2],
			ObservedAt:   observedAt,
		})
	}
	return records
}

func (p *Parser) parseLoose(message string, observedAt time.Time) []Record {
	var records []Record
	for _, line := range strings.Split(message, "\n") {
		for _, m := range loosePattern.FindAllStringSubmatch(line, -1) {
			amount, ok := parseAmount(m[2])
			if !ok {
				continue
			}
			if amount < p.minPlausible || amount > p.maxPlausible {
				continue
			}
			records = append(records, Record{
				Destination:  m[1],
				AmountMinor:  amount,
				CurrencyCode: p.defaultCurrency,
				ObservedAt:   observedAt,
			})
		}
	}
	return records
}
