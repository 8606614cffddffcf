package logger

import (
	"context"
	"sync"
	"testing"
	"time"
)

type capturePublisher struct {
	mu      sync.Mutex
	topic   string
	batches [][]AggregatedLogEntry
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	return nil
}

func TestCollectorFoldsDuplicatesAndFlushesOnClose(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 100,
		Topic:          "logs",
		Publisher:      pub,
		Service:        "finguard",
	})

	for i := 0; i < 3; i++ {
		c.AddLog("error", "mirror write failed", map[string]interface{}{"ticker": "AAPL"}, "ledger.go:10")
	}
	c.AddLog("error", "mirror write failed", map[string]interface{}{"ticker": "MSFT"}, "ledger.go:10")
	c.Close()
	c.AddLog("error", "after close", nil, "x.go:1")

	if pub.topic != "logs" || len(pub.batches) != 1 {
		t.Fatalf("topic=%q batches=%d", pub.topic, len(pub.batches))
	}
	counts := map[interface{}]int{}
	for _, e := range pub.batches[0] {
		counts[e.Fields["ticker"]] = e.Count
		if e.Service != "finguard" {
			t.Fatalf("service = %q", e.Service)
		}
	}
	if counts["AAPL"] != 3 || counts["MSFT"] != 1 {
		t.Fatalf("counts = %v", counts)
	}
}
