package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"tevra-automation-go/internal/models"
)

type captureSink struct {
	mu     sync.Mutex
	events []models.Event
}

func (c *captureSink) Deliver(_ context.Context, event models.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captureSink) collected() []models.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Event, len(c.events))
	copy(out, c.events)
	return out
}

func TestBusDeliversToSinks(t *testing.T) {
	sink := &captureSink{}
	bus := NewBus(16, sink)
	bus.Start(context.Background())

	bus.Emit(models.Event{Type: models.EventRuleCreated, RuleId: "rule-1", Owner: "alice"})
	bus.Emit(models.Event{Type: models.EventExecuted, RuleId: "rule-1", Owner: "alice", TxRef: "tx-9"})

	bus.Stop()

	collected := sink.collected()
	if len(collected) != 2 {
		t.Fatalf("expected 2 delivered events, got %d", len(collected))
	}
	if collected[0].Type != models.EventRuleCreated || collected[1].Type != models.EventExecuted {
		t.Errorf("events delivered out of order: %v, %v", collected[0].Type, collected[1].Type)
	}
	if collected[0].Timestamp.IsZero() {
		t.Error("expected bus to stamp events missing a timestamp")
	}
}

func TestBusDropsWhenBufferFull(t *testing.T) {
	// A bus that is never started accumulates events in its buffer; once the
	// buffer fills, Emit must return immediately instead of blocking.
	bus := NewBus(2, &captureSink{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			bus.Emit(models.Event{Type: models.EventExecuted, RuleId: "rule-1"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a full buffer")
	}
}

func TestWebhookSinkPostsJSON(t *testing.T) {
	received := make(chan models.Event, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected application/json, got %s", ct)
		}
		var event models.Event
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			t.Errorf("failed to decode webhook body: %v", err)
		}
		received <- event
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL, 5*time.Second)
	err := sink.Deliver(context.Background(), models.Event{
		Type:   models.EventFailed,
		RuleId: "rule-7",
		Owner:  "bob",
		Detail: "recipient rejected",
	})
	if err != nil {
		t.Fatalf("expected delivery to succeed, got %v", err)
	}

	event := <-received
	if event.Type != models.EventFailed || event.RuleId != "rule-7" {
		t.Errorf("unexpected event payload: %+v", event)
	}
}

func TestWebhookSinkReportsUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL, 5*time.Second)
	err := sink.Deliver(context.Background(), models.Event{Type: models.EventExecuted, RuleId: "rule-1"})
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
}
