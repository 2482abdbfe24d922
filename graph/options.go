package graph

import "time"

// Options holds engine configuration. Use the With* functional options to
// set it.
type Options struct {
	// Name identifies the graph in events and metrics.
	Name string

	// MaxSteps bounds the number of supersteps of a run (0 = unlimited).
	MaxSteps int

	// MaxConcurrentNodes bounds how many nodes of one superstep execute at
	// the same time (0 = unlimited).
	MaxConcurrentNodes int

	// DefaultNodeTimeout applies to nodes without NodePolicy.Timeout.
	DefaultNodeTimeout time.Duration

	// RunWallClockBudget bounds the total duration of Run/Resume (0 = none).
	RunWallClockBudget time.Duration

	// DefaultRetryPolicy applies to nodes registered without a policy.
	DefaultRetryPolicy *RetryPolicy

	Metrics     *PrometheusMetrics
	CostTracker *CostTracker
}

// Option is a functional option for configuring an Engine.
//
//	engine := graph.New(reducer, st, emitter,
//	    graph.WithMaxSteps(50),
//	    graph.WithMaxConcurrent(4),
//	    graph.WithDefaultNodeTimeout(2*time.Minute),
//	)
type Option func(*Options) error

// WithName sets the graph name reported in events and metric labels.
func WithName(name string) Option {
	return func(o *Options) error {
		o.Name = name
		return nil
	}
}

// WithMaxSteps limits the number of supersteps to stop runaway loops.
//
// When MaxSteps is exceeded, Run returns an EngineError with code
// MAX_STEPS_EXCEEDED that wraps ErrMaxStepsExceeded.
func WithMaxSteps(n int) Option {
	return func(o *Options) error {
		if n < 0 {
			return &EngineError{Message: "max steps must be >= 0", Code: CodeInvalidOption}
		}
		o.MaxSteps = n
		return nil
	}
}

// WithMaxConcurrent sets the maximum number of nodes executing concurrently
// inside one superstep.
func WithMaxConcurrent(n int) Option {
	return func(o *Options) error {
		if n < 0 {
			return &EngineError{Message: "max concurrent must be >= 0", Code: CodeInvalidOption}
		}
		o.MaxConcurrentNodes = n
		return nil
	}
}

// WithDefaultNodeTimeout sets the per-attempt timeout for nodes without an
// explicit NodePolicy.Timeout.
func WithDefaultNodeTimeout(d time.Duration) Option {
	return func(o *Options) error {
		o.DefaultNodeTimeout = d
		return nil
	}
}

// WithRunWallClockBudget sets the maximum total execution time of Run.
func WithRunWallClockBudget(d time.Duration) Option {
	return func(o *Options) error {
		o.RunWallClockBudget = d
		return nil
	}
}

// WithDefaultRetryPolicy applies a retry policy to nodes added without one.
func WithDefaultRetryPolicy(rp RetryPolicy) Option {
	return func(o *Options) error {
		if err := rp.Validate(); err != nil {
			return err
		}
		o.DefaultRetryPolicy = &rp
		return nil
	}
}

// WithMetrics enables Prometheus metrics collection.
//
//	registry := prometheus.NewRegistry()
//	engine := graph.New(reducer, st, emitter, graph.WithMetrics(graph.NewPrometheusMetrics(registry)))
func WithMetrics(metrics *PrometheusMetrics) Option {
	return func(o *Options) error {
		o.Metrics = metrics
		return nil
	}
}

// WithCostTracker attaches an LLM cost tracker. Model adapters record calls
// into it; the engine reports the accumulated cost when a run completes.
func WithCostTracker(tracker *CostTracker) Option {
	return func(o *Options) error {
		o.CostTracker = tracker
		return nil
	}
}
