package stock

import "math"

// Indicator windows.
const (
	rsiPeriod      = 14
	macdFast       = 12
	macdSlow       = 26
	macdSignal     = 9
	bollingerSpan  = 20
	bollingerWidth = 2.0
)

// SMA returns the mean of the last window values, or nil when there are
// fewer than window values.
func SMA(values []float64, window int) *float64 {
	if window <= 0 || len(values) < window {
		return nil
	}
	var sum float64
	for _, v := range values[len(values)-window:] {
		sum += v
	}
	return ptr(sum / float64(window))
}

// RSI returns the relative strength index of the last period price changes
// using simple averages of gains and losses. A window with no losses is
// 100 and a flat window is 50 (neutral). Fewer than period+1 values yield
// nil, so no RSI signal is reported rather than a spurious "oversold".
func RSI(values []float64, period int) *float64 {
	if period <= 0 || len(values) < period+1 {
		return nil
	}
	var gain, loss float64
	tail := values[len(values)-period-1:]
	for i := 1; i < len(tail); i++ {
		d := tail[i] - tail[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	switch {
	case gain == 0 && loss == 0:
		return ptr(50)
	case loss == 0:
		return ptr(100)
	}
	rs := gain / loss
	return ptr(100 - 100/(1+rs))
}

// EMA returns the exponential moving average series with alpha
// 2/(span+1), seeded with the first value (no bias adjustment).
func EMA(values []float64, span int) []float64 {
	if len(values) == 0 {
		return nil
	}
	alpha := 2 / (float64(span) + 1)
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// MACDHistogram returns the latest MACD line minus its signal line
// (12/26/9), or nil for an empty series.
func MACDHistogram(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	fast, slow := EMA(values, macdFast), EMA(values, macdSlow)
	line := make([]float64, len(values))
	for i := range values {
		line[i] = fast[i] - slow[i]
	}
	signal := EMA(line, macdSignal)
	last := len(values) - 1
	return ptr(line[last] - signal[last])
}

// Bollinger returns bands at width sample standard deviations around the
// window mean. Fields are nil when there are fewer than window values.
func Bollinger(values []float64, window int, width float64) BollingerBands {
	mid := SMA(values, window)
	if mid == nil || window < 2 {
		return BollingerBands{}
	}
	var ss float64
	for _, v := range values[len(values)-window:] {
		d := v - *mid
		ss += d * d
	}
	sd := math.Sqrt(ss / float64(window-1))
	return BollingerBands{
		Upper:  ptr(*mid + width*sd),
		Middle: mid,
		Lower:  ptr(*mid - width*sd),
	}
}

// Signals classifies the latest close against each available indicator.
// Indicators that are nil produce no entry.
func Signals(price float64, rsi, macd, sma20, sma50 *float64, bb BollingerBands) map[string]string {
	signals := map[string]string{}

	if rsi != nil {
		switch {
		case *rsi > 70:
			signals["rsi"] = "overbought"
		case *rsi < 30:
			signals["rsi"] = "oversold"
		default:
			signals["rsi"] = "neutral"
		}
	}

	if macd != nil {
		if *macd > 0 {
			signals["macd"] = "bullish"
		} else {
			signals["macd"] = "bearish"
		}
	}

	if bb.Upper != nil && bb.Lower != nil {
		switch {
		case price > *bb.Upper:
			signals["bollinger"] = "overbought"
		case price < *bb.Lower:
			signals["bollinger"] = "oversold"
		default:
			signals["bollinger"] = "neutral"
		}
	}

	if sma20 != nil && sma50 != nil {
		switch {
		case price > *sma20 && *sma20 > *sma50:
			signals["moving_averages"] = "strong_bullish"
		case price > *sma20:
			signals["moving_averages"] = "bullish"
		case price < *sma20 && *sma20 < *sma50:
			signals["moving_averages"] = "strong_bearish"
		case price < *sma20:
			signals["moving_averages"] = "bearish"
		default:
			signals["moving_averages"] = "neutral"
		}
	}
	return signals
}

func ptr(v float64) *float64 { return &v }
