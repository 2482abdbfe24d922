package stock

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dshills/analyst-agent/graph/tool"
)

// YahooBaseURL is the Yahoo Finance query host.
const YahooBaseURL = "https://query1.finance.yahoo.com"

var (
	// ErrSymbolNotFound is returned when Yahoo does not know a symbol.
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrDownload wraps transport failures reaching the data provider.
	ErrDownload = errors.New("failed to download")
)

// Bar is one OHLCV period.
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// RawNews is a news headline as returned by the provider.
type RawNews struct {
	Title     string
	Summary   string
	Publisher string
	Link      string
	Published time.Time
}

// MarketData is the upstream source of prices, profiles and headlines.
type MarketData interface {
	History(ctx context.Context, symbol, period string) ([]Bar, error)
	CompanyInfo(ctx context.Context, symbol string) (CompanyInfo, error)
	News(ctx context.Context, symbol string, count int) ([]RawNews, error)
}

// YahooClient reads the public Yahoo Finance JSON endpoints.
type YahooClient struct {
	BaseURL string
	HTTP    *tool.HTTPClient
}

// NewYahooClient returns a client limited to two requests per second.
func NewYahooClient(client *tool.HTTPClient) *YahooClient {
	if client == nil {
		client = tool.NewHTTPClient(
			tool.WithRateLimit(2, 4),
			tool.WithHeader("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"),
		)
	}
	return &YahooClient{BaseURL: YahooBaseURL, HTTP: client}
}

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// History returns daily bars for period ("1mo", "1y", "5y", ...). Periods
// with a missing close are skipped.
func (c *YahooClient) History(ctx context.Context, symbol, period string) ([]Bar, error) {
	if period == "" {
		period = "1y"
	}
	var resp yahooChartResponse
	err := c.HTTP.GetJSON(ctx, c.BaseURL+"/v8/finance/chart/"+url.PathEscape(symbol), url.Values{
		"range":    {period},
		"interval": {"1d"},
		"events":   {"history"},
	}, &resp)
	if err != nil {
		return nil, classify(err)
	}
	if e := resp.Chart.Error; e != nil {
		if strings.EqualFold(e.Code, "Not Found") {
			return nil, fmt.Errorf("%s: %w", e.Description, ErrSymbolNotFound)
		}
		return nil, fmt.Errorf("yahoo chart error %s: %s", e.Code, e.Description)
	}
	if len(resp.Chart.Result) == 0 || len(resp.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, nil
	}

	res := resp.Chart.Result[0]
	q := res.Indicators.Quote[0]
	bars := make([]Bar, 0, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		if i >= len(q.Close) || q.Close[i] == nil {
			continue
		}
		b := Bar{Time: time.Unix(ts, 0).UTC(), Close: *q.Close[i]}
		b.Open = valueAt(q.Open, i, b.Close)
		b.High = valueAt(q.High, i, b.Close)
		b.Low = valueAt(q.Low, i, b.Close)
		if i < len(q.Volume) && q.Volume[i] != nil {
			b.Volume = *q.Volume[i]
		}
		bars = append(bars, b)
	}
	return bars, nil
}

func valueAt(xs []*float64, i int, fallback float64) float64 {
	if i < len(xs) && xs[i] != nil {
		return *xs[i]
	}
	return fallback
}

type yahooQuoteSummary struct {
	QuoteSummary struct {
		Result []struct {
			Price struct {
				LongName  string `json:"longName"`
				ShortName string `json:"shortName"`
				MarketCap struct {
					Raw float64 `json:"raw"`
				} `json:"marketCap"`
			} `json:"price"`
			AssetProfile struct {
				Sector   string `json:"sector"`
				Industry string `json:"industry"`
			} `json:"assetProfile"`
			SummaryDetail struct {
				TrailingPE struct {
					Raw float64 `json:"raw"`
				} `json:"trailingPE"`
				DividendYield struct {
					Raw float64 `json:"raw"`
				} `json:"dividendYield"`
			} `json:"summaryDetail"`
		} `json:"result"`
	} `json:"quoteSummary"`
}

// CompanyInfo returns the company profile for symbol.
func (c *YahooClient) CompanyInfo(ctx context.Context, symbol string) (CompanyInfo, error) {
	var resp yahooQuoteSummary
	err := c.HTTP.GetJSON(ctx, c.BaseURL+"/v10/finance/quoteSummary/"+url.PathEscape(symbol), url.Values{
		"modules": {"price,assetProfile,summaryDetail"},
	}, &resp)
	if err != nil {
		return CompanyInfo{}, classify(err)
	}
	if len(resp.QuoteSummary.Result) == 0 {
		return CompanyInfo{}, fmt.Errorf("no profile for %s: %w", symbol, ErrSymbolNotFound)
	}
	r := resp.QuoteSummary.Result[0]
	name := r.Price.LongName
	if name == "" {
		name = r.Price.ShortName
	}
	return CompanyInfo{
		Name:          name,
		Sector:        r.AssetProfile.Sector,
		Industry:      r.AssetProfile.Industry,
		MarketCap:     int64(r.Price.MarketCap.Raw),
		PERatio:       r.SummaryDetail.TrailingPE.Raw,
		DividendYield: r.SummaryDetail.DividendYield.Raw,
	}, nil
}

type yahooSearchResponse struct {
	News []struct {
		Title               string `json:"title"`
		Summary             string `json:"summary"`
		Publisher           string `json:"publisher"`
		Link                string `json:"link"`
		ProviderPublishTime int64  `json:"providerPublishTime"`
	} `json:"news"`
}

// News returns up to count recent headlines mentioning symbol.
func (c *YahooClient) News(ctx context.Context, symbol string, count int) ([]RawNews, error) {
	var resp yahooSearchResponse
	err := c.HTTP.GetJSON(ctx, c.BaseURL+"/v1/finance/search", url.Values{
		"q":           {symbol},
		"quotesCount": {"0"},
		"newsCount":   {fmt.Sprint(count)},
	}, &resp)
	if err != nil {
		return nil, classify(err)
	}
	out := make([]RawNews, 0, len(resp.News))
	for _, n := range resp.News {
		item := RawNews{Title: n.Title, Summary: n.Summary, Publisher: n.Publisher, Link: n.Link}
		if n.ProviderPublishTime > 0 {
			item.Published = time.Unix(n.ProviderPublishTime, 0).UTC()
		}
		out = append(out, item)
	}
	return out, nil
}

// classify maps HTTP and transport failures onto the package sentinels.
func classify(err error) error {
	var se *tool.StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %w", ErrSymbolNotFound, err)
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return fmt.Errorf("%w: %w", ErrDownload, err)
	}
	return err
}
