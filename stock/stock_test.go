package stock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/analyst-agent/retrieval"
)

type fakeMarket struct {
	mu          sync.Mutex
	bars        []Bar
	historyErr  error
	info        CompanyInfo
	infoErr     error
	news        []RawNews
	newsErr     error
	historyCall int
}

func (f *fakeMarket) History(_ context.Context, _, _ string) ([]Bar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyCall++
	return f.bars, f.historyErr
}

func (f *fakeMarket) CompanyInfo(_ context.Context, _ string) (CompanyInfo, error) {
	return f.info, f.infoErr
}

func (f *fakeMarket) News(_ context.Context, _ string, _ int) ([]RawNews, error) {
	return f.news, f.newsErr
}

func (f *fakeMarket) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.historyCall
}

// risingBars returns n daily bars closing at 100, 101, ...
func risingBars(n int) []Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]Bar, n)
	for i := range bars {
		c := float64(100 + i)
		bars[i] = Bar{Time: start.AddDate(0, 0, i), Open: c, High: c + 1, Low: c - 1, Close: c, Volume: int64(1000 + i)}
	}
	return bars
}

func newTestRetriever(t *testing.T, data MarketData, opts ...Option) *Retriever {
	t.Helper()
	r, err := NewRetriever(data, opts...)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	r.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	return r
}

func TestGetStockData(t *testing.T) {
	market := &fakeMarket{bars: risingBars(60), info: CompanyInfo{Name: "Acme Corp", Sector: "Industrials"}}
	r := newTestRetriever(t, market)

	d := r.GetStockData(context.Background(), " acme ", "")
	require.False(t, d.Failed(), d.Error)

	assert.Equal(t, "ACME", d.Symbol)
	assert.Equal(t, 159.0, d.CurrentPrice)
	assert.InDelta(t, 1.0/158*100, d.DailyChange, 1e-9)
	assert.Equal(t, int64(1059), d.Volume)
	assert.Equal(t, 160.0, d.High52W)
	assert.Equal(t, 99.0, d.Low52W)
	require.NotNil(t, d.SMA20)
	assert.InDelta(t, 149.5, *d.SMA20, 1e-9)
	require.NotNil(t, d.SMA50)
	assert.InDelta(t, 134.5, *d.SMA50, 1e-9)
	assert.Equal(t, "Acme Corp", d.CompanyInfo.Name)
	assert.Equal(t, map[string]string{
		"rsi":             "overbought",
		"macd":            "bullish",
		"bollinger":       "neutral",
		"moving_averages": "strong_bullish",
	}, d.TechnicalSignals)
	assert.Len(t, d.Risks, 1)
	assert.InDelta(t, 0.8, d.Confidence, 1e-9)

	t.Run("cached by symbol and period", func(t *testing.T) {
		r.GetStockData(context.Background(), "ACME", "1y")
		assert.Equal(t, 1, market.calls())
		r.GetStockData(context.Background(), "ACME", "6mo")
		assert.Equal(t, 2, market.calls())
	})
}

func TestGetStockData_ShortHistory(t *testing.T) {
	r := newTestRetriever(t, &fakeMarket{bars: risingBars(10), infoErr: errors.New("no profile")})

	d := r.GetStockData(context.Background(), "NEW", "1mo")
	require.False(t, d.Failed())
	assert.Nil(t, d.SMA20)
	assert.Nil(t, d.SMA50)
	assert.Nil(t, d.RSI)
	assert.Nil(t, d.BollingerBands.Middle)
	assert.NotNil(t, d.MACD)
	assert.Equal(t, CompanyInfo{}, d.CompanyInfo)
	assert.Equal(t, map[string]string{"macd": "bullish"}, d.TechnicalSignals)
	assert.InDelta(t, 0.4, d.Confidence, 1e-9)
}

func TestGetStockData_Errors(t *testing.T) {
	tests := []struct {
		name   string
		symbol string
		market *fakeMarket
		want   string
	}{
		{"empty symbol", "  ", &fakeMarket{}, "No stock symbol provided"},
		{"unknown symbol", "XYZ", &fakeMarket{historyErr: fmt.Errorf("chart: %w", ErrSymbolNotFound)}, "Invalid stock symbol: XYZ"},
		{"network", "XYZ", &fakeMarket{historyErr: fmt.Errorf("%w: dial tcp", ErrDownload)}, "Failed to download data for XYZ. Please check your internet connection."},
		{"other", "XYZ", &fakeMarket{historyErr: errors.New("boom")}, "Unexpected error for XYZ: boom"},
		{"no bars", "XYZ", &fakeMarket{}, "No data found for XYZ"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRetriever(t, tt.market)
			d := r.GetStockData(context.Background(), tt.symbol, "1y")
			assert.True(t, d.Failed())
			assert.Equal(t, tt.want, d.Error)
		})
	}

	t.Run("errors are not cached", func(t *testing.T) {
		market := &fakeMarket{historyErr: errors.New("boom")}
		r := newTestRetriever(t, market)
		r.GetStockData(context.Background(), "XYZ", "1y")
		r.GetStockData(context.Background(), "XYZ", "1y")
		assert.Equal(t, 2, market.calls())
	})
}

type recordingSink struct {
	symbol string
	bars   int
}

func (s *recordingSink) WriteBars(_ context.Context, symbol string, bars []Bar) error {
	s.symbol, s.bars = symbol, len(bars)
	return errors.New("sink down")
}

func TestGetStockData_HistorySink(t *testing.T) {
	sink := &recordingSink{}
	r := newTestRetriever(t, &fakeMarket{bars: risingBars(30)}, WithHistorySink(sink))

	d := r.GetStockData(context.Background(), "ACME", "1mo")
	assert.False(t, d.Failed(), "sink failures do not fail the lookup")
	assert.Equal(t, "ACME", sink.symbol)
	assert.Equal(t, 30, sink.bars)
}

func TestGetTechnicalIndicators(t *testing.T) {
	r := newTestRetriever(t, &fakeMarket{bars: risingBars(60)})

	ta := r.GetTechnicalIndicators(context.Background(), "ACME")
	require.Empty(t, ta.Error)
	assert.Equal(t, "bullish", ta.Indicators["macd"])
	assert.Contains(t, ta.Analysis, "ACME closed at 159.00")
	assert.Contains(t, ta.Analysis, "Overall technical bias: bullish")
	assert.Equal(t, 2.0, ta.Scores["moving_averages"])

	failed := r.GetTechnicalIndicators(context.Background(), "")
	assert.Equal(t, "No stock symbol provided", failed.Error)
}

func TestGetMarketSentiment(t *testing.T) {
	market := &fakeMarket{
		bars: risingBars(60),
		news: []RawNews{
			{Title: "Acme beats quarterly earnings", Publisher: "Wire"},
			{Title: "Regulators open investigation into Acme", Publisher: "Wire"},
		},
	}
	store := retrieval.NewMemoryVectorStore()
	r := newTestRetriever(t, market, WithNewsIndex(retrieval.NewRetriever(store, wordEmbedder(), retrieval.SearchKwargs{})))

	ms := r.GetMarketSentiment(context.Background(), "ACME")
	require.Empty(t, ms.Error)
	assert.Equal(t, "Bullish", ms.SentimentSummary)
	assert.Equal(t, map[string]int{"earnings": 1, "regulatory": 1}, ms.NewsCategories)
	assert.Contains(t, ms.Risks, "Regulators open investigation into Acme")
	assert.InDelta(t, 0.74, ms.Confidence, 1e-9)
	assert.True(t, strings.HasPrefix(ms.MarketAnalysis, "ACME sentiment is bullish"))
	assert.Equal(t, 2, store.Len(), "headlines are indexed")

	failed := r.GetMarketSentiment(context.Background(), "")
	assert.Equal(t, "No stock symbol provided", failed.Error)
}
