package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedMetric struct {
	kind  string
	name  string
	value int64
	tags  map[string]string
}

type recordingSink struct {
	mu      sync.Mutex
	metrics []recordedMetric
}

func (r *recordingSink) Count(name string, value int64, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = append(r.metrics, recordedMetric{kind: "count", name: name, value: value, tags: tags})
}

func (r *recordingSink) Gauge(name string, value float64, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = append(r.metrics, recordedMetric{kind: "gauge", name: name, value: int64(value), tags: tags})
}

func (r *recordingSink) Timing(name string, value time.Duration, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = append(r.metrics, recordedMetric{kind: "timing", name: name, value: value.Milliseconds(), tags: tags})
}

type sweepErr struct{}

func (sweepErr) Error() string { return "boom" }

func TestEmitAutoExit(t *testing.T) {
	sink := &recordingSink{}
	EmitAutoExit(sink, SweepMetric{Trigger: "cron", Result: ResultSuccess, Closed: 3, Duration: 20 * time.Millisecond})

	require.Len(t, sink.metrics, 3)
	assert.Equal(t, "auto_exit.run", sink.metrics[0].name)
	assert.Equal(t, "auto_exit.closed", sink.metrics[1].name)
	assert.Equal(t, int64(3), sink.metrics[1].value)
	assert.Equal(t, "timing", sink.metrics[2].kind)
	assert.Equal(t, "cron", sink.metrics[2].tags["trigger"])
}

func TestEmitAutoExitErrorClass(t *testing.T) {
	sink := &recordingSink{}
	err := errors.Join(sweepErr{})
	EmitAutoExit(sink, SweepMetric{Trigger: "schedule", Result: ResultError, Err: err})

	require.Len(t, sink.metrics, 1)
	assert.NotEmpty(t, sink.metrics[0].tags["error_class"])
}

func TestEmitNilSink(t *testing.T) {
	assert.NotPanics(t, func() {
		EmitAutoExit(nil, SweepMetric{})
		EmitPinAttempt(nil, ResultDenied, time.Second)
		EmitAuditDrop(nil, "event")
	})
}

func TestEmitPinAttempt(t *testing.T) {
	sink := &recordingSink{}
	EmitPinAttempt(sink, ResultDenied, 0)
	require.Len(t, sink.metrics, 1)
	assert.Equal(t, "auth.pin", sink.metrics[0].name)
	assert.Equal(t, ResultDenied, sink.metrics[0].tags["result"])
}

func TestCloneTags(t *testing.T) {
	assert.Nil(t, CloneTags(nil))
	src := map[string]string{"a": "1", "": "x"}
	out := CloneTags(src)
	out["a"] = "2"
	assert.Equal(t, "1", src["a"])
	assert.NotContains(t, out, "")
}
