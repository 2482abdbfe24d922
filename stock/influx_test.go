package stock

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	points []*write.Point
	err    error
}

func (f *fakeWriter) WritePoint(_ context.Context, points ...*write.Point) error {
	f.points = append(f.points, points...)
	return f.err
}

func TestInfluxHistory_WriteBars(t *testing.T) {
	w := &fakeWriter{}
	h := &InfluxHistory{writer: w, bucket: "prices"}

	require.NoError(t, h.WriteBars(context.Background(), "ACME", risingBars(3)))
	require.Len(t, w.points, 3)

	p := w.points[0]
	assert.Equal(t, Measurement, p.Name())
	require.Len(t, p.TagList(), 1)
	assert.Equal(t, "ticker", p.TagList()[0].Key)
	assert.Equal(t, "ACME", p.TagList()[0].Value)
	assert.Len(t, p.FieldList(), 5)
	assert.Equal(t, risingBars(3)[0].Time, p.Time())

	require.NoError(t, h.WriteBars(context.Background(), "ACME", nil))
	assert.Len(t, w.points, 3, "empty writes are skipped")

	w.err = errors.New("unauthorized")
	err := h.WriteBars(context.Background(), "ACME", risingBars(1))
	assert.ErrorContains(t, err, "unauthorized")
}

func TestInfluxHistory_RejectsBadTicker(t *testing.T) {
	h := &InfluxHistory{bucket: "prices"}
	_, err := h.Bars(context.Background(), `X") |> drop()`, 30)
	assert.ErrorContains(t, err, "invalid ticker")
}

func TestNewInfluxHistory_RequiresConfig(t *testing.T) {
	_, err := NewInfluxHistory(InfluxConfig{URL: "http://localhost:8086"})
	assert.Error(t, err)
}

func TestPeriodDays(t *testing.T) {
	tests := map[string]int{"5d": 5, "2wk": 14, "6mo": 186, "1y": 366, "max": 365, "": 365, "3x": 365}
	for in, want := range tests {
		assert.Equal(t, want, periodDays(in), in)
	}
}

type fakeBars struct {
	bars []Bar
	days int
}

func (f *fakeBars) Bars(_ context.Context, _ string, days int) ([]Bar, error) {
	f.days = days
	return f.bars, nil
}

func TestFallbackMarketData(t *testing.T) {
	stored := &fakeBars{bars: risingBars(5)}

	offline := FallbackMarketData{MarketData: &fakeMarket{historyErr: fmt.Errorf("%w: no route", ErrDownload)}, Store: stored}
	bars, err := offline.History(context.Background(), "ACME", "1mo")
	require.NoError(t, err)
	assert.Len(t, bars, 5)
	assert.Equal(t, 31, stored.days)

	unknown := FallbackMarketData{MarketData: &fakeMarket{historyErr: ErrSymbolNotFound}, Store: stored}
	_, err = unknown.History(context.Background(), "NOPE", "1y")
	assert.ErrorIs(t, err, ErrSymbolNotFound, "only download failures fall back")

	empty := FallbackMarketData{MarketData: &fakeMarket{historyErr: ErrDownload}, Store: &fakeBars{}}
	_, err = empty.History(context.Background(), "ACME", "1y")
	assert.ErrorIs(t, err, ErrDownload)

	online := FallbackMarketData{MarketData: &fakeMarket{bars: risingBars(2)}, Store: stored}
	bars, err = online.History(context.Background(), "ACME", "1y")
	require.NoError(t, err)
	assert.Len(t, bars, 2)
}
