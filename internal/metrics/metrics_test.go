package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPipelineNilReceiverIsNoop(t *testing.T) {
	var p *Pipeline
	p.SetQueueDepth(1, 2)
	p.QueueEvent(QueueEnqueued)
	p.ObserveStage("scoring", time.Second, nil)
	p.LLMCall("scoring", errors.New("boom"))
	p.Recovery("requeued")
}

func TestPipelineRecordsValues(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPipeline(reg, "test")

	p.SetQueueDepth(3, 2)
	p.QueueEvent(QueueEnqueued)
	p.QueueEvent(QueueEnqueued)
	p.LLMCall("justification", errors.New("timeout"))
	p.Recovery("forced_complete")

	if got := testutil.ToFloat64(p.queueProcessing); got != 3 {
		t.Fatalf("expected processing gauge 3, got %v", got)
	}
	if got := testutil.ToFloat64(p.queueWaiting); got != 2 {
		t.Fatalf("expected waiting gauge 2, got %v", got)
	}
	if got := testutil.ToFloat64(p.queueEvents.WithLabelValues(QueueEnqueued)); got != 2 {
		t.Fatalf("expected 2 enqueued events, got %v", got)
	}
	if got := testutil.ToFloat64(p.llmCalls.WithLabelValues("justification", "error")); got != 1 {
		t.Fatalf("expected 1 failed llm call, got %v", got)
	}
	if got := testutil.ToFloat64(p.recoveries.WithLabelValues("forced_complete")); got != 1 {
		t.Fatalf("expected 1 recovery, got %v", got)
	}
}

func TestNewPipelineReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewPipeline(reg, "test")
	second := NewPipeline(reg, "test")

	second.QueueEvent(QueueRetried)
	if got := testutil.ToFloat64(first.queueEvents.WithLabelValues(QueueRetried)); got != 1 {
		t.Fatalf("expected shared collector, got %v", got)
	}
}
