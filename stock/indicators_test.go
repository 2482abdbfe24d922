package stock

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func series(from, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(from + i)
	}
	return out
}

func TestSMA(t *testing.T) {
	got := SMA([]float64{1, 2, 3, 4, 5}, 3)
	require.NotNil(t, got)
	assert.InDelta(t, 4.0, *got, 1e-9)
	assert.Nil(t, SMA([]float64{1, 2}, 3))
	assert.Nil(t, SMA(nil, 0))
}

func TestRSI(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   *float64
	}{
		{"only gains", series(1, 15), ptr(100)},
		{"flat", []float64{5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5}, ptr(50)},
		{"balanced", []float64{1, 2, 1, 2, 1, 2, 1, 2, 1, 2, 1, 2, 1, 2, 1}, ptr(50)},
		{"too short", series(1, 14), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RSI(tt.values, 14)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tt.want, *got, 1e-9)
		})
	}

	// 3 up-moves of 2 and 1 down-move of 2: rs = 3.
	got := RSI([]float64{10, 12, 14, 12, 14}, 4)
	require.NotNil(t, got)
	assert.InDelta(t, 75.0, *got, 1e-9)
}

func TestRSI_UndefinedWindows(t *testing.T) {
	flat := make([]float64, 15)
	for i := range flat {
		flat[i] = 42
	}
	rsi := RSI(flat, 14)
	require.NotNil(t, rsi, "a flat window has a defined RSI")
	assert.Equal(t, 50.0, *rsi)
	assert.Equal(t, "neutral", Signals(42, rsi, nil, nil, nil, BollingerBands{})["rsi"])

	short := RSI(series(1, 14), 14)
	assert.Nil(t, short, "period+1 values are required")
	assert.NotContains(t, Signals(14, short, nil, nil, nil, BollingerBands{}), "rsi")
}

func TestEMA(t *testing.T) {
	assert.InDeltaSlice(t, []float64{1, 1.5, 2.25}, EMA([]float64{1, 2, 3}, 3), 1e-9)
	assert.Nil(t, EMA(nil, 3))
}

func TestMACDHistogram(t *testing.T) {
	flat := MACDHistogram([]float64{7, 7, 7, 7, 7})
	require.NotNil(t, flat)
	assert.InDelta(t, 0, *flat, 1e-9)

	rising := MACDHistogram(series(100, 60))
	require.NotNil(t, rising)
	assert.Greater(t, *rising, 0.0)

	assert.Nil(t, MACDHistogram(nil))
}

func TestBollinger(t *testing.T) {
	bb := Bollinger(series(1, 20), 20, 2)
	require.NotNil(t, bb.Middle)
	sd := math.Sqrt(35)
	assert.InDelta(t, 10.5, *bb.Middle, 1e-9)
	assert.InDelta(t, 10.5+2*sd, *bb.Upper, 1e-9)
	assert.InDelta(t, 10.5-2*sd, *bb.Lower, 1e-9)

	short := Bollinger(series(1, 5), 20, 2)
	assert.Nil(t, short.Upper)
	assert.Nil(t, short.Middle)
	assert.Nil(t, short.Lower)
}

func TestSignals(t *testing.T) {
	bands := BollingerBands{Upper: ptr(110), Middle: ptr(100), Lower: ptr(90)}
	tests := []struct {
		name  string
		price float64
		rsi   *float64
		macd  *float64
		sma20 *float64
		sma50 *float64
		bb    BollingerBands
		want  map[string]string
	}{
		{
			name: "bullish trend", price: 105, rsi: ptr(75), macd: ptr(0.4), sma20: ptr(100), sma50: ptr(95), bb: bands,
			want: map[string]string{"rsi": "overbought", "macd": "bullish", "bollinger": "neutral", "moving_averages": "strong_bullish"},
		},
		{
			name: "bearish trend", price: 85, rsi: ptr(25), macd: ptr(-0.1), sma20: ptr(95), sma50: ptr(100), bb: bands,
			want: map[string]string{"rsi": "oversold", "macd": "bearish", "bollinger": "oversold", "moving_averages": "strong_bearish"},
		},
		{
			name: "above rising average", price: 115, rsi: ptr(50), macd: ptr(0), sma20: ptr(100), sma50: ptr(105), bb: bands,
			want: map[string]string{"rsi": "neutral", "macd": "bearish", "bollinger": "overbought", "moving_averages": "bullish"},
		},
		{
			name: "below average", price: 98, sma20: ptr(100), sma50: ptr(99),
			want: map[string]string{"moving_averages": "bearish"},
		},
		{
			name: "at average", price: 100, sma20: ptr(100), sma50: ptr(99),
			want: map[string]string{"moving_averages": "neutral"},
		},
		{
			name: "nothing available", price: 100,
			want: map[string]string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Signals(tt.price, tt.rsi, tt.macd, tt.sma20, tt.sma50, tt.bb))
		})
	}
}
