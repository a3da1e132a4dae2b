package agent

import (
	"strings"

	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/config"
)

// 默认任务指令。报告格式在这里钉死：解析器的主正则就认这一种形状。
const defaultInstructionTemplate = `You are checking round-trip flight prices on a flight search site.

Origin: {{origin}}
Destinations: {{destinations}}
Travel dates: {{travel_dates}}

For each destination, find the cheapest round-trip fare from the origin for the given dates, in the currency the site displays.

When you have a price for every destination (or cannot make further progress), finish with a report in EXACTLY this format — one line per destination, nothing else after the RESULTS block:

RESULTS:
<Destination>: <CUR> <amount>

Example:
RESULTS:
Athens: ZAR 10560
Mykonos: ZAR 9299

Use the three-letter currency code shown on the site and digits for the amount (thousands commas are fine). If a destination truly has no price, leave its line out.`

// BuildInstruction 渲染任务指令；template 为空时用默认模板。
func BuildInstruction(route config.RouteConfig, template string) string {
	tpl := strings.TrimSpace(template)
	if tpl == "" {
		tpl = defaultInstructionTemplate
	}
	repl := strings.NewReplacer(
		"{{origin}}", route.Origin,
		"{{destinations}}", strings.Join(route.DestinationList(), ", "),
		"{{travel_dates}}", route.TravelDates,
	)
	return repl.Replace(tpl)
}
