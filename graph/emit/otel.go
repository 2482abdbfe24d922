package emit

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter converts events into OpenTelemetry spans.
//
// node_end and node_error events become spans named "<graph>.<node>" whose
// start time is back-dated by the reported duration_ms, so traces show
// parallel branches overlapping. Other events become short spans named
// after the event.
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter creates an emitter that records spans with tracer.
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

// Emit implements Emitter.
func (o *OTelEmitter) Emit(event Event) {
	end := event.Time
	if end.IsZero() {
		end = time.Now()
	}
	start := end
	name := event.Msg

	switch event.Msg {
	case MsgNodeEnd, MsgNodeError:
		name = event.NodeID
		if event.Graph != "" {
			name = event.Graph + "." + event.NodeID
		}
		if ms, ok := event.Meta["duration_ms"].(int64); ok {
			start = end.Add(-time.Duration(ms) * time.Millisecond)
		}
	case MsgNodeStart:
		// Covered by the node_end span.
		return
	}

	_, span := o.tracer.Start(context.Background(), name,
		trace.WithTimestamp(start),
		trace.WithAttributes(
			attribute.String("agentgraph.run_id", event.RunID),
			attribute.String("agentgraph.graph", event.Graph),
			attribute.Int("agentgraph.step", event.Step),
			attribute.String("agentgraph.node_id", event.NodeID),
			attribute.String("agentgraph.event", event.Msg),
		),
	)
	for k, v := range event.Meta {
		span.SetAttributes(metaAttribute("agentgraph."+k, v))
	}
	if msg, ok := event.Meta["error"].(string); ok {
		span.SetStatus(codes.Error, msg)
		span.RecordError(fmt.Errorf("%s", msg))
	}
	span.End(trace.WithTimestamp(end))
}

func metaAttribute(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	case []string:
		return attribute.StringSlice(key, v)
	case time.Duration:
		return attribute.Int64(key, v.Milliseconds())
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}
