package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chartPoints(amounts ...int64) []SeriesPoint {
	base := time.Date(2025, 12, 1, 6, 0, 0, 0, time.UTC)
	points := make([]SeriesPoint, len(amounts))
	for i, a := range amounts {
		points[i] = SeriesPoint{ObservedAt: base.Add(time.Duration(i) * 24 * time.Hour), AmountMinor: a}
	}
	return points
}

func TestCollectAxis_MergesAndSorts(t *testing.T) {
	a := chartPoints(100, 110, 120)
	b := []SeriesPoint{a[1], {ObservedAt: a[0].ObservedAt.Add(-24 * time.Hour), AmountMinor: 90}}

	axis := collectAxis([]DestinationSeries{
		{Destination: "Athens", Points: a},
		{Destination: "Mykonos", Points: b},
	})
	require.Len(t, axis, 4)
	for i := 1; i < len(axis); i++ {
		assert.True(t, axis[i-1].Before(axis[i]))
	}
}

func TestAlignSeries_FillsGapsWithNil(t *testing.T) {
	full := chartPoints(100, 110, 120)
	sparse := []SeriesPoint{full[0], full[2]}

	axis := collectAxis([]DestinationSeries{{Destination: "Athens", Points: full}})
	data := alignSeries(sparse, axis)
	require.Len(t, data, 3)
	assert.Equal(t, int64(100), data[0].Value)
	assert.Nil(t, data[1].Value)
	assert.Equal(t, int64(120), data[2].Value)
}

func TestSmaSeries_SkipsWarmup(t *testing.T) {
	points := chartPoints(100, 200, 300, 400)
	axis := collectAxis([]DestinationSeries{{Destination: "Athens", Points: points}})

	data := smaSeries(points, axis, 3)
	require.Len(t, data, 4)
	assert.Nil(t, data[0].Value)
	assert.Nil(t, data[1].Value)
	assert.Equal(t, float64(200), data[2].Value)
	assert.Equal(t, float64(300), data[3].Value)
}

func TestChartRenderer_BuildHTML(t *testing.T) {
	c := NewChartRenderer("chart.html", "", 3)
	input := ChartInput{
		Title:        "Cape Town fares",
		CurrencyCode: "ZAR",
		GeneratedAt:  time.Date(2025, 12, 5, 8, 0, 0, 0, time.UTC),
		Series: []DestinationSeries{
			{Destination: "Athens", Points: chartPoints(10560, 10410, 10200, 10380)},
			{Destination: "Mykonos", Points: chartPoints(9450, 9299)},
		},
	}
	html, err := c.BuildHTML(input)
	require.NoError(t, err)

	body := string(html)
	assert.Contains(t, body, "Cape Town fares")
	assert.Contains(t, body, "Athens")
	assert.Contains(t, body, "Mykonos")
	// Athens 有 4 个点，窗口 3 的均线应该出现；Mykonos 点数不足则没有
	assert.Contains(t, body, "Athens SMA3")
	assert.NotContains(t, body, "Mykonos SMA3")
}

func TestChartRenderer_BuildHTMLRejectsEmpty(t *testing.T) {
	c := NewChartRenderer("chart.html", "", 3)
	_, err := c.BuildHTML(ChartInput{Title: "empty"})
	assert.Error(t, err)

	_, err = c.BuildHTML(ChartInput{Series: []DestinationSeries{{Destination: "Athens"}}})
	assert.Error(t, err)
}
