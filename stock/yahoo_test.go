package stock

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/analyst-agent/graph/tool"
)

func newYahooServer(t *testing.T, handler http.HandlerFunc) *YahooClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	c := NewYahooClient(tool.NewHTTPClient())
	c.BaseURL = server.URL
	return c
}

func TestYahooClient_History(t *testing.T) {
	c := newYahooServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/AAPL", r.URL.Path)
		assert.Equal(t, "6mo", r.URL.Query().Get("range"))
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		_, _ = w.Write([]byte(`{"chart":{"result":[{
			"timestamp":[1704067200,1704153600,1704240000],
			"indicators":{"quote":[{
				"open":[1.0,null,3.0],
				"high":[1.5,2.5,3.5],
				"low":[0.5,1.5,2.5],
				"close":[1.2,null,3.2],
				"volume":[100,200,null]}]}}],"error":null}}`))
	})

	bars, err := c.History(context.Background(), "AAPL", "6mo")
	require.NoError(t, err)
	require.Len(t, bars, 2, "periods without a close are skipped")
	assert.Equal(t, Bar{Time: time.Unix(1704067200, 0).UTC(), Open: 1.0, High: 1.5, Low: 0.5, Close: 1.2, Volume: 100}, bars[0])
	assert.Equal(t, 3.2, bars[1].Close)
	assert.Zero(t, bars[1].Volume)
}

func TestYahooClient_HistoryErrors(t *testing.T) {
	t.Run("chart error", func(t *testing.T) {
		c := newYahooServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`))
		})
		_, err := c.History(context.Background(), "NOPE", "1y")
		assert.ErrorIs(t, err, ErrSymbolNotFound)
	})

	t.Run("404", func(t *testing.T) {
		c := newYahooServer(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"chart":{}}`, http.StatusNotFound)
		})
		_, err := c.History(context.Background(), "NOPE", "1y")
		assert.ErrorIs(t, err, ErrSymbolNotFound)
	})

	t.Run("unreachable", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		server.Close()
		c := NewYahooClient(tool.NewHTTPClient())
		c.BaseURL = server.URL
		_, err := c.History(context.Background(), "AAPL", "1y")
		assert.ErrorIs(t, err, ErrDownload)
	})

	t.Run("empty result", func(t *testing.T) {
		c := newYahooServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"chart":{"result":[],"error":null}}`))
		})
		bars, err := c.History(context.Background(), "AAPL", "1y")
		require.NoError(t, err)
		assert.Empty(t, bars)
	})
}

func TestYahooClient_CompanyInfo(t *testing.T) {
	c := newYahooServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v10/finance/quoteSummary/MSFT", r.URL.Path)
		_, _ = w.Write([]byte(`{"quoteSummary":{"result":[{
			"price":{"shortName":"Microsoft","marketCap":{"raw":3.1e12}},
			"assetProfile":{"sector":"Technology","industry":"Software"},
			"summaryDetail":{"trailingPE":{"raw":35.2},"dividendYield":{"raw":0.0072}}}]}}`))
	})

	info, err := c.CompanyInfo(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.Equal(t, CompanyInfo{
		Name: "Microsoft", Sector: "Technology", Industry: "Software",
		MarketCap: 3100000000000, PERatio: 35.2, DividendYield: 0.0072,
	}, info)
}

func TestYahooClient_News(t *testing.T) {
	c := newYahooServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/finance/search", r.URL.Path)
		assert.Equal(t, "TSLA", r.URL.Query().Get("q"))
		assert.Equal(t, "20", r.URL.Query().Get("newsCount"))
		_, _ = w.Write([]byte(`{"news":[{"title":"Tesla deliveries rise","publisher":"Reuters","link":"https://r.example/1","providerPublishTime":1717200000}]}`))
	})

	news, err := c.News(context.Background(), "TSLA", 20)
	require.NoError(t, err)
	require.Len(t, news, 1)
	assert.Equal(t, "Reuters", news[0].Publisher)
	assert.Equal(t, time.Unix(1717200000, 0).UTC(), news[0].Published)
}
