package stock

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement is the InfluxDB measurement holding price bars.
const Measurement = "stock_prices"

var validTicker = regexp.MustCompile(`^[A-Z0-9.\-^=]{1,15}$`)

// InfluxConfig locates an InfluxDB v2 bucket.
type InfluxConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// InfluxHistory stores price bars in InfluxDB and reads them back. It
// implements HistorySink.
type InfluxHistory struct {
	client influxdb2.Client
	writer pointWriter
	query  api.QueryAPI
	bucket string
}

// NewInfluxHistory connects to the bucket described by cfg.
func NewInfluxHistory(cfg InfluxConfig) (*InfluxHistory, error) {
	if cfg.URL == "" || cfg.Bucket == "" || cfg.Org == "" {
		return nil, fmt.Errorf("influxdb url, org and bucket are required")
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxHistory{
		client: client,
		writer: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		query:  client.QueryAPI(cfg.Org),
		bucket: cfg.Bucket,
	}, nil
}

// Ping checks that the server is healthy.
func (h *InfluxHistory) Ping(ctx context.Context) error {
	ok, err := h.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("influxdb ping: %w", err)
	}
	if !ok {
		return fmt.Errorf("influxdb is not ready")
	}
	return nil
}

// Close releases the client.
func (h *InfluxHistory) Close() {
	if h.client != nil {
		h.client.Close()
	}
}

// WriteBars implements HistorySink.
func (h *InfluxHistory) WriteBars(ctx context.Context, symbol string, bars []Bar) error {
	if len(bars) == 0 {
		return nil
	}
	if err := h.writer.WritePoint(ctx, barPoints(symbol, bars)...); err != nil {
		return fmt.Errorf("failed to write %d bars for %s: %w", len(bars), symbol, err)
	}
	return nil
}

func barPoints(symbol string, bars []Bar) []*write.Point {
	points := make([]*write.Point, len(bars))
	for i, b := range bars {
		points[i] = influxdb2.NewPoint(
			Measurement,
			map[string]string{"ticker": symbol},
			map[string]interface{}{
				"open":   b.Open,
				"high":   b.High,
				"low":    b.Low,
				"close":  b.Close,
				"volume": b.Volume,
			},
			b.Time,
		)
	}
	return points
}

// Bars returns the stored bars of symbol from the last days days, oldest
// first.
func (h *InfluxHistory) Bars(ctx context.Context, symbol string, days int) ([]Bar, error) {
	if !validTicker.MatchString(symbol) {
		return nil, fmt.Errorf("invalid ticker %q", symbol)
	}
	if days <= 0 {
		days = 365
	}
	flux := fmt.Sprintf(`
		from(bucket: "%s")
		  |> range(start: -%dd)
		  |> filter(fn: (r) => r._measurement == "%s")
		  |> filter(fn: (r) => r.ticker == "%s")
		  |> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
		  |> sort(columns: ["_time"], desc: false)
	`, h.bucket, days, Measurement, symbol)

	result, err := h.query.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("influxdb query: %w", err)
	}
	if result == nil {
		return nil, nil
	}
	defer result.Close()

	var bars []Bar
	for result.Next() {
		rec := result.Record()
		b := Bar{Time: rec.Time().UTC()}
		b.Open, _ = rec.ValueByKey("open").(float64)
		b.High, _ = rec.ValueByKey("high").(float64)
		b.Low, _ = rec.ValueByKey("low").(float64)
		b.Close, _ = rec.ValueByKey("close").(float64)
		b.Volume, _ = rec.ValueByKey("volume").(int64)
		bars = append(bars, b)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("influxdb result: %w", err)
	}
	return bars, nil
}

// periodDays converts a Yahoo range ("5d", "1mo", "1y", ...) to days.
func periodDays(period string) int {
	var n int
	var unit string
	if _, err := fmt.Sscanf(period, "%d%s", &n, &unit); err != nil || n <= 0 {
		return 365
	}
	switch unit {
	case "d":
		return n
	case "wk":
		return 7 * n
	case "mo":
		return 31 * n
	case "y":
		return 366 * n
	default:
		return 365
	}
}

// BarReader loads stored history.
type BarReader interface {
	Bars(ctx context.Context, symbol string, days int) ([]Bar, error)
}

// FallbackMarketData serves history from Store when the embedded source
// cannot be reached. Profiles and news always come from the source.
type FallbackMarketData struct {
	MarketData
	Store BarReader
}

// History implements MarketData.
func (f FallbackMarketData) History(ctx context.Context, symbol, period string) ([]Bar, error) {
	bars, err := f.MarketData.History(ctx, symbol, period)
	if err == nil || !errors.Is(err, ErrDownload) || f.Store == nil {
		return bars, err
	}
	stored, serr := f.Store.Bars(ctx, symbol, periodDays(period))
	if serr != nil || len(stored) == 0 {
		return nil, err
	}
	return stored, nil
}
