package metrics

import (
	"time"

	obserrors "github.com/kmn/visitor-kiosk/internal/observability/errors"
	"github.com/kmn/visitor-kiosk/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
	ResultDenied  = "denied"
)

// SweepMetric captures one auto-exit sweep or trigger run.
type SweepMetric struct {
	Trigger  string // schedule, cron, cli, mount
	Result   string
	Closed   int64
	Duration time.Duration
	Err      error
}

// EmitAutoExit emits auto-exit counters and timings.
func EmitAutoExit(sink statsd.Sink, in SweepMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"trigger": in.Trigger,
		"result":  in.Result,
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("auto_exit.run", 1, tags)
	if in.Closed > 0 {
		sink.Count("auto_exit.closed", in.Closed, CloneTags(tags))
	}
	if in.Duration > 0 {
		sink.Timing("auto_exit.duration", in.Duration, CloneTags(tags))
	}
}

// EmitPinAttempt counts a PIN verification by result.
func EmitPinAttempt(sink statsd.Sink, result string, duration time.Duration) {
	if sink == nil {
		return
	}
	tags := map[string]string{"result": result}
	sink.Count("auth.pin", 1, tags)
	if duration > 0 {
		sink.Timing("auth.pin.duration", duration, CloneTags(tags))
	}
}

// EmitAuditDrop counts audit events dropped because the queue was full.
func EmitAuditDrop(sink statsd.Sink, kind string) {
	if sink == nil {
		return
	}
	sink.Count("audit.dropped", 1, map[string]string{"kind": kind})
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}
