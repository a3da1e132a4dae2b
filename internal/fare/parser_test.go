package fare

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestParser() *Parser {
	p := NewParser("ZAR", 5000, 50000)
	p.now = func() time.Time {
		return time.Date(2025, 12, 1, 6, 0, 0, 0, time.UTC)
	}
	return p
}

func TestParser_LabeledPass(t *testing.T) {
	p := newTestParser()

	t.Run("well-formed segments parse one record each", func(t *testing.T) {
		msg := "Athens: ZAR 10,560 and Santorini: EUR 14,302 plus Mykonos: ZAR 9299"
		records := p.Parse(msg)
		require.Len(t, records, 3)
		assert.Equal(t, "Athens", records[0].Destination)
		assert.Equal(t, int64(10560), records[0].AmountMinor)
		assert.Equal(t, "ZAR", records[0].CurrencyCode)
		assert.Equal(t, "Santorini", records[1].Destination)
		assert.Equal(t, int64(14302), records[1].AmountMinor)
		assert.Equal(t, "EUR", records[1].CurrencyCode)
		assert.Equal(t, "Mykonos", records[2].Destination)
		assert.Equal(t, int64(9299), records[2].AmountMinor)
	})

	t.Run("batch shares one observation time", func(t *testing.T) {
		records := p.Parse("Athens: ZAR 10,560\nMykonos: ZAR 9,299")
		require.Len(t, records, 2)
		assert.Equal(t, records[0].ObservedAt, records[1].ObservedAt)
		assert.Equal(t, time.Date(2025, 12, 1, 6, 0, 0, 0, time.UTC), records[0].ObservedAt)
	})

	t.Run("duplicate destinations are kept in order", func(t *testing.T) {
		records := p.Parse("Athens: ZAR 10,560\nAthens: ZAR 10,899")
		require.Len(t, records, 2)
		assert.Equal(t, "Athens", records[0].Destination)
		assert.Equal(t, "Athens", records[1].Destination)
		assert.Equal(t, int64(10560), records[0].AmountMinor)
		assert.Equal(t, int64(10899), records[1].AmountMinor)
	})
}

func TestParser_LoosePass(t *testing.T) {
	p := newTestParser()

	t.Run("fires only when labeled pass misses", func(t *testing.T) {
		records := p.Parse("Athens is around 10,560 right now")
		require.Len(t, records, 1)
		assert.Equal(t, "Athens", records[0].Destination)
		assert.Equal(t, int64(10560), records[0].AmountMinor)
		assert.Equal(t, "ZAR", records[0].CurrencyCode, "loose pass assumes the default currency")
	})

	t.Run("amounts outside the plausibility bound are dropped", func(t *testing.T) {
		msg := "Athens around 10,560\nDeparting December 2025\nMykonos from 150 points\nSantorini about 99,000"
		records := p.Parse(msg)
		require.Len(t, records, 1)
		assert.Equal(t, "Athens", records[0].Destination)
	})

	t.Run("bounds are inclusive", func(t *testing.T) {
		records := p.Parse("Athens around 5,000\nMykonos around 50,000")
		require.Len(t, records, 2)
		assert.Equal(t, int64(5000), records[0].AmountMinor)
		assert.Equal(t, int64(50000), records[1].AmountMinor)
	})
}

func TestParser_Degenerate(t *testing.T) {
	p := newTestParser()

	t.Run("empty message yields empty result without error", func(t *testing.T) {
		assert.Empty(t, p.Parse(""))
	})

	t.Run("prose without numbers yields empty result", func(t *testing.T) {
		assert.Empty(t, p.Parse("I could not find any flight prices on the page."))
	})

	t.Run("malformed fragments contribute nothing", func(t *testing.T) {
		records := p.Parse("Athens: ZAR 10,560\nSantorini: ZAR soon")
		require.Len(t, records, 1)
		assert.Equal(t, "Athens", records[0].Destination)
	})
}

func TestParser_AgentReportScenario(t *testing.T) {
	p := newTestParser()
	msg := "RESULTS:\nAthens: ZAR 10,560\nSantorini: ZAR 14,302\nMykonos: ZAR 9,299\nHeraklion: ZAR 12,012"
	records := p.Parse(msg)
	require.Len(t, records, 4)

	wantDest := []string{"Athens", "Santorini", "Mykonos", "Heraklion"}
	wantAmount := []int64{10560, 14302, 9299, 12012}
	for i, r := range records {
		assert.Equal(t, wantDest[i], r.Destination)
		assert.Equal(t, wantAmount[i], r.AmountMinor)
		assert.Equal(t, "ZAR", r.CurrencyCode)
	}
}
