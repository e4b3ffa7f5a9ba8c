/**
 * Copyright 2025-present Tevra Labs
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package events

import (
	"context"
	"time"

	"tevra-automation-go/internal/models"

	"go.uber.org/zap"
)

// Emitter publishes engine lifecycle notifications. Emit never blocks the
// caller: event delivery is strictly best-effort and must not slow down or
// fail rule execution.
type Emitter interface {
	Emit(event models.Event)
}

// Sink receives events from the bus. Delivery errors are logged, never
// propagated back to the emitter.
type Sink interface {
	Deliver(ctx context.Context, event models.Event) error
}

// Bus fans events out to its sinks from a single background goroutine.
// When the buffer is full the event is dropped and counted, keeping the
// engine's hot path free of delivery latency.
type Bus struct {
	events   chan models.Event
	sinks    []Sink
	stopChan chan struct{}
	doneChan chan struct{}
}

func NewBus(bufferSize int, sinks ...Sink) *Bus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Bus{
		events:   make(chan models.Event, bufferSize),
		sinks:    sinks,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

var _ Emitter = (*Bus)(nil)

// Start launches the delivery loop.
func (b *Bus) Start(ctx context.Context) {
	go b.deliverLoop(ctx)
}

// Stop drains buffered events and waits for the delivery loop to exit.
func (b *Bus) Stop() {
	close(b.stopChan)
	<-b.doneChan
}

func (b *Bus) Emit(event models.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	select {
	case b.events <- event:
	default:
		zap.L().Warn("Event buffer full, dropping event",
			zap.String("type", string(event.Type)),
			zap.String("rule_id", event.RuleId))
	}
}

func (b *Bus) deliverLoop(ctx context.Context) {
	defer close(b.doneChan)

	for {
		select {
		case event := <-b.events:
			b.deliver(ctx, event)
		case <-b.stopChan:
			// Drain whatever is already buffered before shutting down.
			for {
				select {
				case event := <-b.events:
					b.deliver(ctx, event)
				default:
					return
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func (b *Bus) deliver(ctx context.Context, event models.Event) {
	for _, sink := range b.sinks {
		if err := sink.Deliver(ctx, event); err != nil {
			zap.L().Error("Event delivery failed",
				zap.String("type", string(event.Type)),
				zap.String("rule_id", event.RuleId),
				zap.Error(err))
		}
	}
}

// LogSink writes events to the structured log. Always configured, so every
// lifecycle notification leaves at least one durable trace.
type LogSink struct{}

func (LogSink) Deliver(_ context.Context, event models.Event) error {
	fields := []zap.Field{
		zap.String("type", string(event.Type)),
		zap.String("rule_id", event.RuleId),
		zap.String("owner", event.Owner),
	}
	if event.TxRef != "" {
		fields = append(fields, zap.String("tx_ref", event.TxRef))
	}
	if event.Attempt > 0 {
		fields = append(fields, zap.Int("attempt", event.Attempt))
	}
	if event.Detail != "" {
		fields = append(fields, zap.String("detail", event.Detail))
	}
	zap.L().Info("Engine event", fields...)
	return nil
}

// NopEmitter discards every event. Used by the CLI tools and tests that do
// not care about notifications.
type NopEmitter struct{}

func (NopEmitter) Emit(models.Event) {}
