package bus

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openlead/kestrel/internal/domain"
)

func waitCounter(t *testing.T, c *atomic.Int32, want int32) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.Load() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d deliveries, got %d", want, c.Load())
}

func TestChannelBusBatchRequestDelivery(t *testing.T) {
	bus := NewChannelBus(16)
	defer bus.Close()

	ctx := context.Background()
	msgs := make(chan *domain.Message, 1)

	_, err := bus.Subscribe(ctx, "tenant-a", domain.TopicBatchRequested, func(_ context.Context, msg *domain.Message) error {
		msgs <- msg
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	payload, _ := json.Marshal(map[string]any{
		"configName": "de-pumps",
		"recordIds":  []string{"leads-a.csv"},
	})
	if err := bus.Publish(ctx, "tenant-a", domain.TopicBatchRequested, payload); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case msg := <-msgs:
		if msg.TenantID != "tenant-a" {
			t.Errorf("expected tenant-a, got %s", msg.TenantID)
		}
		if msg.Topic != domain.TopicBatchRequested {
			t.Errorf("expected topic %s, got %s", domain.TopicBatchRequested, msg.Topic)
		}
		if msg.ID == "" {
			t.Error("expected a generated message ID")
		}
		var req struct {
			ConfigName string `json:"configName"`
		}
		if err := json.Unmarshal(msg.Payload, &req); err != nil || req.ConfigName != "de-pumps" {
			t.Errorf("payload did not round-trip: %s (err %v)", msg.Payload, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for batch request")
	}
}

func TestChannelBusTenantIsolation(t *testing.T) {
	bus := NewChannelBus(16)
	defer bus.Close()

	ctx := context.Background()
	var alpha, beta atomic.Int32

	bus.Subscribe(ctx, "tenant-alpha", domain.TopicAnomalyAlert, func(_ context.Context, _ *domain.Message) error {
		alpha.Add(1)
		return nil
	})
	bus.Subscribe(ctx, "tenant-beta", domain.TopicAnomalyAlert, func(_ context.Context, _ *domain.Message) error {
		beta.Add(1)
		return nil
	})

	bus.Publish(ctx, "tenant-alpha", domain.TopicAnomalyAlert, []byte(`{"recordId":"trap.csv"}`))

	waitCounter(t, &alpha, 1)
	time.Sleep(50 * time.Millisecond)
	if beta.Load() != 0 {
		t.Errorf("alert leaked across tenants: beta received %d", beta.Load())
	}
}

func TestChannelBusRequiresTenantID(t *testing.T) {
	bus := NewChannelBus(16)
	defer bus.Close()

	ctx := context.Background()
	if err := bus.Publish(ctx, "", domain.TopicBatchRequested, []byte("{}")); err == nil {
		t.Error("expected error publishing without a tenant")
	}
	if _, err := bus.Subscribe(ctx, "", domain.TopicBatchRequested, func(context.Context, *domain.Message) error {
		return nil
	}); err == nil {
		t.Error("expected error subscribing without a tenant")
	}
}

func TestChannelBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewChannelBus(16)
	defer bus.Close()

	ctx := context.Background()
	var count atomic.Int32

	sub, err := bus.Subscribe(ctx, "tenant-a", domain.TopicConfigUpdated, func(_ context.Context, _ *domain.Message) error {
		count.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if sub.Topic() != domain.TopicConfigUpdated {
		t.Errorf("expected subscription topic %s, got %s", domain.TopicConfigUpdated, sub.Topic())
	}

	bus.Publish(ctx, "tenant-a", domain.TopicConfigUpdated, []byte(`{"name":"de-pumps"}`))
	waitCounter(t, &count, 1)

	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("unsubscribe failed: %v", err)
	}

	bus.Publish(ctx, "tenant-a", domain.TopicConfigUpdated, []byte(`{"name":"de-pumps"}`))
	time.Sleep(50 * time.Millisecond)
	if count.Load() != 1 {
		t.Errorf("delivery after unsubscribe: got %d", count.Load())
	}
}

func TestChannelBusFanOut(t *testing.T) {
	// Both the worker and a reporting listener may subscribe to the same
	// completion topic; every subscriber gets its own copy.
	bus := NewChannelBus(16)
	defer bus.Close()

	ctx := context.Background()
	var worker, reporter atomic.Int32

	bus.Subscribe(ctx, "tenant-a", domain.TopicBatchCompleted, func(_ context.Context, _ *domain.Message) error {
		worker.Add(1)
		return nil
	})
	bus.Subscribe(ctx, "tenant-a", domain.TopicBatchCompleted, func(_ context.Context, _ *domain.Message) error {
		reporter.Add(1)
		return nil
	})

	bus.Publish(ctx, "tenant-a", domain.TopicBatchCompleted, []byte(`{"reportId":"r-1"}`))

	waitCounter(t, &worker, 1)
	waitCounter(t, &reporter, 1)
}

func TestChannelBusClose(t *testing.T) {
	bus := NewChannelBus(16)

	ctx := context.Background()
	bus.Subscribe(ctx, "tenant-a", domain.TopicBatchRequested, func(context.Context, *domain.Message) error {
		return nil
	})

	if err := bus.Ping(ctx); err != nil {
		t.Errorf("ping on open bus failed: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}
	if err := bus.Publish(ctx, "tenant-a", domain.TopicBatchRequested, []byte("{}")); err == nil {
		t.Error("expected publish to fail after close")
	}
	if err := bus.Ping(ctx); err == nil {
		t.Error("expected ping to fail after close")
	}
}

func TestNewBus(t *testing.T) {
	t.Run("Channel", func(t *testing.T) {
		b, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 8})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer b.Close()
		if _, ok := b.(*ChannelBus); !ok {
			t.Errorf("expected *ChannelBus, got %T", b)
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := New(domain.EventBusConfig{Type: "kafka"}); err == nil {
			t.Error("expected error for unsupported bus type")
		}
	})
}

func TestChannelBusBurst(t *testing.T) {
	bus := NewChannelBus(256)
	defer bus.Close()

	ctx := context.Background()
	const requests = 100

	var wg sync.WaitGroup
	wg.Add(requests)
	var received atomic.Int32

	bus.Subscribe(ctx, "tenant-a", domain.TopicBatchRequested, func(_ context.Context, _ *domain.Message) error {
		received.Add(1)
		wg.Done()
		return nil
	})

	for i := 0; i < requests; i++ {
		if err := bus.Publish(ctx, "tenant-a", domain.TopicBatchRequested, []byte(`{"configName":"de-pumps"}`)); err != nil {
			t.Fatalf("publish %d failed: %v", i, err)
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout: delivered %d/%d requests", received.Load(), requests)
	}
}
