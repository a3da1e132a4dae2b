package report

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/config"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/fare"
)

func greekRoute() config.RouteConfig {
	return config.RouteConfig{
		Origin:       "Cape Town",
		Destinations: []string{"Athens", "Santorini", "Mykonos", "Heraklion"},
		TravelDates:  "1-14 December 2025",
		SiteURL:      "https://www.google.com/travel/flights",
	}
}

func greekSnapshot() fare.Snapshot {
	observed := time.Date(2025, 12, 1, 6, 0, 0, 0, time.UTC)
	mk := func(dest string, amount int64) fare.Record {
		return fare.Record{Destination: dest, AmountMinor: amount, CurrencyCode: "ZAR", ObservedAt: observed}
	}
	return fare.Snapshot{
		CheckedAt: observed,
		Current: []fare.Record{
			mk("Athens", 10560),
			mk("Santorini", 12890),
			mk("Mykonos", 9299),
			mk("Heraklion", 11240),
		},
		Previous: []fare.Record{
			mk("Athens", 10200),
			mk("Santorini", 12890),
			mk("Mykonos", 9450),
		},
	}
}

func newTestRenderer(t *testing.T, chartLink string) *Renderer {
	t.Helper()
	r, err := NewRenderer(filepath.Join(t.TempDir(), "README.md"), "Africa/Johannesburg", chartLink)
	require.NoError(t, err)
	return r
}

func TestRenderer_FullReport(t *testing.T) {
	r := newTestRenderer(t, "")
	content, err := r.Render(greekSnapshot(), greekRoute())
	require.NoError(t, err)

	assert.True(t, len(content) > 0)
	assert.Contains(t, content, "# ✈️ Flight Price Tracker\n")
	assert.Contains(t, content, "**Route:** Cape Town → Athens, Santorini, Mykonos, Heraklion\n")
	assert.Contains(t, content, "**Travel dates:** 1-14 December 2025\n")
	// UTC 06:00 在约翰内斯堡是 08:00 SAST
	assert.Contains(t, content, "**Last checked:** 01 Dec 2025, 08:00 SAST\n")

	// 表格按金额升序；最便宜带奖杯；新目的地变化列留空
	expectedTable := "| Destination | Price | Change |\n" +
		"| --- | --- | --- |\n" +
		"| Mykonos | ZAR 9,299 | 📉 -151 🏆 |\n" +
		"| Athens | ZAR 10,560 | 📈 +360 |\n" +
		"| Heraklion | ZAR 11,240 |  |\n" +
		"| Santorini | ZAR 12,890 | ➖ |\n"
	assert.Contains(t, content, expectedTable)

	assert.Contains(t, content, "always confirm on the booking site before buying")
	assert.NotContains(t, content, "Price history chart")
}

func TestRenderer_FirstRunHasNoGlyphs(t *testing.T) {
	snap := greekSnapshot()
	snap.Previous = nil

	r := newTestRenderer(t, "")
	content, err := r.Render(snap, greekRoute())
	require.NoError(t, err)

	assert.Contains(t, content, "| Mykonos | ZAR 9,299 | 🏆 |\n")
	assert.NotContains(t, content, "📉")
	assert.NotContains(t, content, "📈")
	assert.NotContains(t, content, "➖")
}

func TestRenderer_ChartLink(t *testing.T) {
	r := newTestRenderer(t, "data/fare-chart.html")
	content, err := r.Render(greekSnapshot(), greekRoute())
	require.NoError(t, err)
	assert.Contains(t, content, "📊 [Price history chart](data/fare-chart.html)\n")
}

func TestRenderer_Idempotent(t *testing.T) {
	r := newTestRenderer(t, "")
	first, err := r.Render(greekSnapshot(), greekRoute())
	require.NoError(t, err)
	second, err := r.Render(greekSnapshot(), greekRoute())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRenderer_EmptySnapshot(t *testing.T) {
	r := newTestRenderer(t, "")
	_, err := r.Render(fare.Snapshot{CheckedAt: time.Now()}, greekRoute())
	assert.ErrorIs(t, err, ErrNoCurrentPrices)
}

func TestNewRenderer_BadTimezone(t *testing.T) {
	_, err := NewRenderer("README.md", "Mars/Olympus", "")
	assert.Error(t, err)
}

func TestRenderer_WriteReplacesWholeFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "README.md")
	r, err := NewRenderer(path, "UTC", "")
	require.NoError(t, err)

	require.NoError(t, r.Write("first version\n"))
	require.NoError(t, r.Write("second version\n"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second version\n", string(data))

	// 没有残留的临时文件
	entries, err := os.ReadDir(filepath.Join(dir, "out"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "README.md", entries[0].Name())
}
