// Package stock fetches market data, computes technical indicators and
// categorises news for the financial analysis graphs.
//
// Retriever methods never return Go errors for upstream failures; the
// result carries a human-readable Error instead so the graph can hand it
// to a model unchanged.
package stock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/analyst-agent/retrieval"
)

// CompanyInfo is the company profile attached to stock data.
type CompanyInfo struct {
	Name          string  `json:"name"`
	Sector        string  `json:"sector"`
	Industry      string  `json:"industry"`
	MarketCap     int64   `json:"market_cap"`
	PERatio       float64 `json:"pe_ratio"`
	DividendYield float64 `json:"dividend_yield"`
}

// BollingerBands are nil when history is too short.
type BollingerBands struct {
	Upper  *float64 `json:"upper"`
	Middle *float64 `json:"middle"`
	Lower  *float64 `json:"lower"`
}

// StockData is a snapshot of a symbol with its latest indicators.
type StockData struct {
	Symbol           string            `json:"symbol"`
	CurrentPrice     float64           `json:"current_price"`
	DailyChange      float64           `json:"daily_change"`
	Volume           int64             `json:"volume"`
	SMA20            *float64          `json:"sma20"`
	SMA50            *float64          `json:"sma50"`
	RSI              *float64          `json:"rsi"`
	MACD             *float64          `json:"macd"`
	BollingerBands   BollingerBands    `json:"bollinger_bands"`
	High52W          float64           `json:"high_52w"`
	Low52W           float64           `json:"low_52w"`
	CompanyInfo      CompanyInfo       `json:"company_info"`
	TechnicalSignals map[string]string `json:"technical_signals"`
	Risks            []string          `json:"risks,omitempty"`
	Confidence       float64           `json:"confidence"`
	Analysis         string            `json:"analysis,omitempty"`
	Error            string            `json:"error,omitempty"`

	bars []Bar
}

// Failed reports whether the snapshot carries an error instead of data.
func (d StockData) Failed() bool { return d.Error != "" }

// HistorySink receives every freshly downloaded history.
type HistorySink interface {
	WriteBars(ctx context.Context, symbol string, bars []Bar) error
}

// Retriever serves stock data, news and derived analyses.
type Retriever struct {
	data     MarketData
	cache    *dataCache
	logger   *zap.Logger
	sink     HistorySink
	news     *retrieval.Retriever
	now      func() time.Time
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithLogger sets the logger used for non-fatal failures.
func WithLogger(l *zap.Logger) Option {
	return func(r *Retriever) { r.logger = l }
}

// WithHistorySink mirrors downloaded bars to sink (for example InfluxDB).
func WithHistorySink(s HistorySink) Option {
	return func(r *Retriever) { r.sink = s }
}

// WithNewsIndex enables semantic news search through index. Its search
// kwargs apply to every news query; k and filters are set per query.
func WithNewsIndex(index *retrieval.Retriever) Option {
	return func(r *Retriever) { r.news = index }
}

// NewRetriever returns a retriever over data with a 15-minute cache.
func NewRetriever(data MarketData, opts ...Option) (*Retriever, error) {
	cache, err := newDataCache(0, DefaultCacheTTL)
	if err != nil {
		return nil, fmt.Errorf("stock cache: %w", err)
	}
	r := &Retriever{data: data, cache: cache, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("stock")
	return r, nil
}

// Close releases the cache.
func (r *Retriever) Close() { r.cache.close() }

// GetStockData returns price, indicators and signals for symbol over period
// (default "1y"). Successful results are cached per symbol and period.
func (r *Retriever) GetStockData(ctx context.Context, symbol, period string) StockData {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return StockData{Error: "No stock symbol provided"}
	}
	if period == "" {
		period = "1y"
	}
	key := cacheKey(symbol, period)
	if d, ok := r.cache.get(key); ok {
		return d
	}

	bars, err := r.data.History(ctx, symbol, period)
	if err != nil {
		r.logger.Warn("history download failed", zap.String("symbol", symbol), zap.Error(err))
		return StockData{Symbol: symbol, Error: errorMessage(symbol, err)}
	}
	if len(bars) == 0 {
		return StockData{Symbol: symbol, Error: "No data found for " + symbol}
	}

	if r.sink != nil {
		if err := r.sink.WriteBars(ctx, symbol, bars); err != nil {
			r.logger.Warn("history sink write failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}

	info, err := r.data.CompanyInfo(ctx, symbol)
	if err != nil {
		r.logger.Debug("company info unavailable", zap.String("symbol", symbol), zap.Error(err))
		info = CompanyInfo{}
	}

	d := Analyze(symbol, bars)
	d.CompanyInfo = info
	r.cache.set(key, d)
	return d
}

// Analyze computes the snapshot for bars ordered oldest first.
func Analyze(symbol string, bars []Bar) StockData {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	latest := bars[len(bars)-1]
	prev := latest.Close
	if len(bars) > 1 {
		prev = bars[len(bars)-2].Close
	}
	var change float64
	if prev != 0 {
		change = (latest.Close - prev) / prev * 100
	}

	high, low := bars[0].High, bars[0].Low
	for _, b := range bars[1:] {
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
	}

	d := StockData{
		Symbol:         symbol,
		CurrentPrice:   latest.Close,
		DailyChange:    change,
		Volume:         latest.Volume,
		SMA20:          SMA(closes, 20),
		SMA50:          SMA(closes, 50),
		RSI:            RSI(closes, rsiPeriod),
		MACD:           MACDHistogram(closes),
		BollingerBands: Bollinger(closes, bollingerSpan, bollingerWidth),
		High52W:        high,
		Low52W:         low,
		bars:           bars,
	}
	d.TechnicalSignals = Signals(latest.Close, d.RSI, d.MACD, d.SMA20, d.SMA50, d.BollingerBands)
	d.Risks = signalRisks(d.TechnicalSignals)
	d.Confidence = indicatorConfidence(d)
	return d
}

// errorMessage renders a download failure the way the analysis prompts
// expect to see it.
func errorMessage(symbol string, err error) string {
	switch {
	case errors.Is(err, ErrSymbolNotFound):
		return "Invalid stock symbol: " + symbol
	case errors.Is(err, ErrDownload):
		return fmt.Sprintf("Failed to download data for %s. Please check your internet connection.", symbol)
	default:
		return fmt.Sprintf("Unexpected error for %s: %v", symbol, err)
	}
}

func signalRisks(signals map[string]string) []string {
	var risks []string
	if signals["rsi"] == "overbought" {
		risks = append(risks, "RSI above 70 suggests overbought conditions and pullback risk")
	}
	if signals["rsi"] == "oversold" {
		risks = append(risks, "RSI below 30 reflects heavy selling pressure")
	}
	if signals["bollinger"] == "overbought" {
		risks = append(risks, "Price is trading above the upper Bollinger band")
	}
	if signals["bollinger"] == "oversold" {
		risks = append(risks, "Price is trading below the lower Bollinger band")
	}
	if signals["moving_averages"] == "strong_bearish" {
		risks = append(risks, "Price is below a falling 20-day average (downtrend)")
	}
	if signals["macd"] == "bearish" {
		risks = append(risks, "MACD histogram is negative (weakening momentum)")
	}
	return risks
}

// indicatorConfidence starts at 0.8 and loses 0.1 per missing indicator.
func indicatorConfidence(d StockData) float64 {
	c := 0.8
	for _, v := range []*float64{d.SMA20, d.SMA50, d.RSI, d.BollingerBands.Middle} {
		if v == nil {
			c -= 0.1
		}
	}
	return c
}
