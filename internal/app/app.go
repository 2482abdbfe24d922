// Package app wires configuration, models, stores, retrievers and graphs
// into the object graph shared by the CLI and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/dshills/analyst-agent/agent"
	"github.com/dshills/analyst-agent/agent/analyst"
	"github.com/dshills/analyst-agent/agent/interview"
	"github.com/dshills/analyst-agent/agent/interview/financial"
	"github.com/dshills/analyst-agent/agent/interview/general"
	"github.com/dshills/analyst-agent/agent/interview/market"
	"github.com/dshills/analyst-agent/agent/interview/research"
	"github.com/dshills/analyst-agent/graph"
	"github.com/dshills/analyst-agent/graph/emit"
	"github.com/dshills/analyst-agent/graph/model"
	"github.com/dshills/analyst-agent/graph/model/provider"
	"github.com/dshills/analyst-agent/graph/store"
	"github.com/dshills/analyst-agent/internal/config"
	"github.com/dshills/analyst-agent/retrieval"
	"github.com/dshills/analyst-agent/stock"
)

// TracerName names the tracer used for engine spans.
const TracerName = "github.com/dshills/analyst-agent"

// NewsCollection holds indexed market headlines.
const NewsCollection = "market-news"

// Backoff bounds for node retries.
const (
	DefaultRetryBase = 500 * time.Millisecond
	DefaultRetryMax  = 10 * time.Second
)

// App holds every long-lived component. Build it with New and release it
// with Close.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Models  model.Loader
	Metrics *graph.PrometheusMetrics
	Costs   *graph.CostTracker
	Events  *emit.BufferedEmitter

	// Registry collects engine and token metrics for /metrics.
	Registry *prometheus.Registry

	Analysts   *graph.Engine[analyst.State]
	Interviews *graph.Engine[interview.State]
	Agent      *graph.Engine[agent.State]
	Router     *graph.Engine[agent.RouterState]
	Financial  *graph.Engine[financial.State]
	General    *graph.Engine[general.State]
	Market     *graph.Engine[market.State]
	Research   *graph.Engine[research.State]
	Pipeline   *agent.Pipeline
	Stocks     *stock.Retriever

	// News and Papers search the market headline and arXiv indexes.
	News   *retrieval.Retriever
	Papers *retrieval.Retriever

	closers []func() error
}

// Overrides replaces external collaborators, mostly for tests. Nil fields
// are built from the configuration.
type Overrides struct {
	Logger     *zap.Logger
	Models     model.Loader
	Embedder   retrieval.Embedder
	Web        interview.Searcher
	Wikipedia  interview.Searcher
	MarketData stock.MarketData
	Papers     research.PaperSearcher
}

// New builds the application described by cfg. On error every resource
// opened so far is released.
func New(ctx context.Context, cfg *config.Config, ov Overrides) (*App, error) {
	a := &App{Config: cfg, Logger: ov.Logger}
	if a.Logger == nil {
		a.Logger = zap.NewNop()
	}
	if err := a.build(ctx, ov); err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Logger.Info("application ready",
		zap.String("store", cfg.Store.Driver),
		zap.String("retriever", cfg.Retrieval.RetrieverProvider),
		zap.Bool("tracing", cfg.Telemetry.Tracing))
	return a, nil
}

func (a *App) build(ctx context.Context, ov Overrides) error {
	cfg := a.Config
	a.Registry = prometheus.NewRegistry()
	a.Metrics = graph.NewPrometheusMetrics(a.Registry)
	if !cfg.Telemetry.Metrics {
		a.Metrics.Disable()
	}
	a.Costs = graph.NewCostTracker("USD").WithMetrics(a.Metrics)

	a.Models = ov.Models
	if a.Models == nil {
		registry := provider.NewRegistry(provider.Keys{
			OpenAI:    cfg.Keys.OpenAI,
			Anthropic: cfg.Keys.Anthropic,
			Google:    cfg.Keys.Google,
		}, a.Costs)
		a.closers = append(a.closers, registry.Close)
		a.Models = registry
	}

	emitter, err := a.emitter(ctx)
	if err != nil {
		return err
	}
	opts, err := engineOptions(cfg.Engine, a.Metrics, a.Costs)
	if err != nil {
		return err
	}

	embedder := ov.Embedder
	if embedder == nil {
		embedder, err = retrieval.MakeTextEncoder(cfg.Retrieval.EmbeddingModel, cfg.Keys.OpenAI)
		switch {
		case errors.Is(err, model.ErrMissingAPIKey):
			// Graphs that never embed still work; the others fail on use.
			a.Logger.Warn("embeddings disabled", zap.Error(err))
			missing := err
			embedder = retrieval.EmbedderFunc(func(context.Context, []string) ([][]float32, error) {
				return nil, missing
			})
		case err != nil:
			return fmt.Errorf("embedder: %w", err)
		}
	}

	if err := a.buildAnalysts(cfg, ov, emitter, opts); err != nil {
		return err
	}
	if err := a.buildStocks(cfg, ov, embedder); err != nil {
		return err
	}
	if err := a.buildSubgraphs(cfg, ov, embedder, emitter, opts); err != nil {
		return err
	}
	return a.buildRouter(cfg, emitter, opts)
}

// emitter fans engine events out to zap, the in-memory history used by the
// events endpoint and, when tracing is on, OpenTelemetry.
func (a *App) emitter(ctx context.Context) (emit.Emitter, error) {
	a.Events = emit.NewBufferedEmitter(0, 0)
	emitters := []emit.Emitter{emit.NewLogEmitter(a.Logger), a.Events}
	if a.Config.Telemetry.Tracing {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
		)
		otel.SetTracerProvider(tp)
		a.closers = append(a.closers, func() error { return tp.Shutdown(context.WithoutCancel(ctx)) })
		emitters = append(emitters, emit.NewOTelEmitter(tp.Tracer(TracerName)))
	}
	return emit.Multi(emitters...), nil
}

func engineOptions(cfg config.EngineConfig, metrics *graph.PrometheusMetrics, costs *graph.CostTracker) ([]graph.Option, error) {
	opts := []graph.Option{
		graph.WithMaxSteps(cfg.MaxSteps),
		graph.WithMaxConcurrent(cfg.MaxConcurrent),
		graph.WithDefaultNodeTimeout(cfg.NodeTimeout),
		graph.WithRunWallClockBudget(cfg.RunTimeout),
		graph.WithMetrics(metrics),
		graph.WithCostTracker(costs),
	}
	if cfg.NodeRetries > 0 {
		rp := graph.RetryPolicy{
			MaxAttempts: cfg.NodeRetries,
			BaseDelay:   DefaultRetryBase,
			MaxDelay:    DefaultRetryMax,
			Retryable:   model.IsTransient,
		}
		if err := rp.Validate(); err != nil {
			return nil, fmt.Errorf("engine.node_retries: %w", err)
		}
		opts = append(opts, graph.WithDefaultRetryPolicy(rp))
	}
	return opts, nil
}

// openStore returns the checkpointer selected by cfg.Driver for one graph.
// SQL stores are namespaced by graph so runs of different graphs sharing a
// run ID do not overwrite each other.
func openStore[S any](a *App, cfg config.StoreConfig, graphName string) (store.Store[S], error) {
	switch strings.ToLower(cfg.Driver) {
	case "memory":
		return store.NewMemStore[S](store.WithMaxFinishedRuns(cfg.MaxFinishedRuns)), nil
	case "sqlite":
		st, err := store.NewSQLiteStore[S](cfg.Path, store.WithNamespace(graphName))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, st.Close)
		return st, nil
	case "mysql":
		st, err := store.NewMySQLStore[S](cfg.DSN, store.WithNamespace(graphName))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, st.Close)
		return st, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

func (a *App) buildAnalysts(cfg *config.Config, ov Overrides, emitter emit.Emitter, opts []graph.Option) error {
	analystCfg, err := analyst.FromConfigurable(cfg.Section("analyst"))
	if err != nil {
		return fmt.Errorf("analyst config: %w", err)
	}
	analystStore, err := openStore[analyst.State](a, cfg.Store, "analyst")
	if err != nil {
		return err
	}
	if a.Analysts, err = analyst.New(analystCfg, analyst.Deps{
		Models: a.Models, Store: analystStore, Emitter: emitter, Logger: a.Logger,
	}, opts...); err != nil {
		return err
	}

	interviewCfg, err := a.interviewConfig(cfg)
	if err != nil {
		return err
	}
	interviewStore, err := openStore[interview.State](a, cfg.Store, "interview")
	if err != nil {
		return err
	}
	if a.Interviews, err = interview.New(interviewCfg, interview.Deps{
		Models: a.Models, Web: ov.Web, Wikipedia: ov.Wikipedia,
		Store: interviewStore, Emitter: emitter, Logger: a.Logger,
	}, opts...); err != nil {
		return err
	}

	agentStore, err := openStore[agent.State](a, cfg.Store, "agent")
	if err != nil {
		return err
	}
	if a.Agent, err = agent.New(agent.Deps{
		Interviews: a.Interviews, MaxNumTurns: interviewCfg.MaxNumTurns,
		Store: agentStore, Emitter: emitter, Logger: a.Logger,
	}, opts...); err != nil {
		return err
	}

	a.Pipeline = &agent.Pipeline{
		Analysts:    a.Analysts,
		Interviews:  a.Interviews,
		MaxNumTurns: interviewCfg.MaxNumTurns,
		Concurrency: cfg.Engine.MaxConcurrent,
		Logger:      a.Logger,
	}
	return nil
}

func (a *App) interviewConfig(cfg *config.Config) (interview.Config, error) {
	c, err := interview.FromConfigurable(cfg.Section("interview"))
	if err != nil {
		return interview.Config{}, fmt.Errorf("interview config: %w", err)
	}
	if c.TavilyAPIKey == "" {
		c.TavilyAPIKey = cfg.Keys.Tavily
	}
	return c, nil
}

func (a *App) buildStocks(cfg *config.Config, ov Overrides, embedder retrieval.Embedder) error {
	data := ov.MarketData
	opts := []stock.Option{stock.WithLogger(a.Logger)}

	if cfg.Influx.URL != "" {
		history, err := stock.NewInfluxHistory(stock.InfluxConfig{
			URL: cfg.Influx.URL, Token: cfg.Influx.Token, Org: cfg.Influx.Org, Bucket: cfg.Influx.Bucket,
		})
		if err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
		a.closers = append(a.closers, func() error { history.Close(); return nil })
		opts = append(opts, stock.WithHistorySink(history))
		if data == nil {
			data = stock.FallbackMarketData{MarketData: stock.NewYahooClient(nil), Store: history}
		}
	}
	if data == nil {
		data = stock.NewYahooClient(nil)
	}

	news, err := a.retriever(cfg, NewsCollection, embedder, cfg.Retrieval.SearchKwargs)
	if err != nil {
		return fmt.Errorf("news index: %w", err)
	}
	a.News = news
	opts = append(opts, stock.WithNewsIndex(news))

	r, err := stock.NewRetriever(data, opts...)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() error { r.Close(); return nil })
	a.Stocks = r
	return nil
}

// retriever opens the configured retriever backend for one collection with
// kwargs. SQLite collections share the checkpoint database file.
func (a *App) retriever(cfg *config.Config, collection string, embedder retrieval.Embedder, kwargs retrieval.SearchKwargs) (*retrieval.Retriever, error) {
	deps := retrieval.Deps{
		Collection: collection,
		Weaviate: retrieval.WeaviateConfig{
			Host:   cfg.Weaviate.Host,
			Scheme: cfg.Weaviate.Scheme,
			APIKey: cfg.Weaviate.APIKey,
			Class:  cfg.Weaviate.Class,
		},
	}
	if strings.EqualFold(cfg.Store.Driver, "sqlite") {
		deps.SQLitePath = cfg.Store.Path
	}
	rc := cfg.Retrieval
	rc.SearchKwargs = kwargs
	r, err := retrieval.MakeRetriever(rc, embedder, deps)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, r.Close)
	return r, nil
}

func (a *App) buildSubgraphs(cfg *config.Config, ov Overrides, embedder retrieval.Embedder, emitter emit.Emitter, opts []graph.Option) error {
	financialCfg, err := financial.FromConfigurable(cfg.Section("financial"))
	if err != nil {
		return fmt.Errorf("financial config: %w", err)
	}
	financialStore, err := openStore[financial.State](a, cfg.Store, "financial")
	if err != nil {
		return err
	}
	if a.Financial, err = financial.New(financialCfg, financial.Deps{
		Models: a.Models, Market: a.Stocks, Store: financialStore, Emitter: emitter, Logger: a.Logger,
	}, opts...); err != nil {
		return err
	}

	generalCfg, err := general.FromConfigurable(cfg.Section("general"))
	if err != nil {
		return fmt.Errorf("general config: %w", err)
	}
	if generalCfg.TavilyAPIKey == "" {
		generalCfg.TavilyAPIKey = cfg.Keys.Tavily
	}
	generalStore, err := openStore[general.State](a, cfg.Store, "general")
	if err != nil {
		return err
	}
	if a.General, err = general.New(generalCfg, general.Deps{
		Models: a.Models, Web: ov.Web, Wikipedia: ov.Wikipedia,
		Store: generalStore, Emitter: emitter, Logger: a.Logger,
	}, opts...); err != nil {
		return err
	}

	marketCfg, err := market.FromConfigurable(cfg.Section("market"))
	if err != nil {
		return fmt.Errorf("market config: %w", err)
	}
	marketStore, err := openStore[market.State](a, cfg.Store, "market")
	if err != nil {
		return err
	}
	if a.Market, err = market.New(marketCfg, market.Deps{
		Models: a.Models, Store: marketStore, Emitter: emitter, Logger: a.Logger,
	}, opts...); err != nil {
		return err
	}

	researchCfg, err := research.FromConfigurable(cfg.Section("research"))
	if err != nil {
		return fmt.Errorf("research config: %w", err)
	}
	kwargs := research.DefaultSearchKwargs().Merge(cfg.Retrieval.SearchKwargs).Merge(researchCfg.SearchKwargs)
	papers, err := a.retriever(cfg, researchCfg.Collection, embedder, kwargs)
	if err != nil {
		return fmt.Errorf("research index: %w", err)
	}
	a.Papers = papers
	researchStore, err := openStore[research.State](a, cfg.Store, "research")
	if err != nil {
		return err
	}
	if a.Research, err = research.New(researchCfg, research.Deps{
		Models: a.Models, Papers: ov.Papers, Retriever: papers,
		Store: researchStore, Emitter: emitter, Logger: a.Logger,
	}, opts...); err != nil {
		return err
	}
	return nil
}

func (a *App) buildRouter(cfg *config.Config, emitter emit.Emitter, opts []graph.Option) error {
	routerCfg, err := interview.FromConfigurable(cfg.Section("router"))
	if err != nil {
		return fmt.Errorf("router config: %w", err)
	}
	routerStore, err := openStore[agent.RouterState](a, cfg.Store, "router")
	if err != nil {
		return err
	}
	a.Router, err = agent.NewRouter(routerCfg, agent.RouterDeps{
		Models: a.Models,
		Financial: func(ctx context.Context, runID string, msgs []model.Message) ([]model.Message, error) {
			return financial.Answer(ctx, a.Financial, runID, msgs)
		},
		General: func(ctx context.Context, runID string, msgs []model.Message) ([]model.Message, error) {
			return general.Answer(ctx, a.General, runID, msgs)
		},
		Store:   routerStore,
		Emitter: emitter,
		Logger:  a.Logger,
	}, opts...)
	return err
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
