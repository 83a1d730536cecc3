// README: Asynchronous fan-out of events to sinks; Emit never blocks.
package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"medbid/internal/types"
)

type Sink interface {
	Name() string
	Write(ctx context.Context, evs []Event) error
}

type Dispatcher struct {
	ch      chan Event
	sinks   []Sink
	logger  *zap.Logger
	timeout time.Duration

	mu      sync.Mutex
	dropped int
	closed  bool
	done    chan struct{}
}

func NewDispatcher(buffer int, logger *zap.Logger, sinks ...Sink) *Dispatcher {
	if buffer <= 0 {
		buffer = 1024
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		ch:      make(chan Event, buffer),
		sinks:   sinks,
		logger:  logger,
		timeout: 5 * time.Second,
		done:    make(chan struct{}),
	}
}

// Emit enqueues events; when the buffer is full the event is dropped and counted.
func (d *Dispatcher) Emit(evs ...Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	for _, ev := range evs {
		if ev.ID == "" {
			ev.ID = types.NewID()
		}
		if ev.At.IsZero() {
			ev.At = time.Now().UTC()
		}
		select {
		case d.ch <- ev:
		default:
			d.dropped++
			d.logger.Warn("event dropped: buffer full",
				zap.String("type", string(ev.Type)),
				zap.String("order_id", string(ev.OrderID)),
			)
		}
	}
}

func (d *Dispatcher) Dropped() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// Run delivers queued events until Close is called and the queue drains.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)
	for ev := range d.ch {
		batch := []Event{ev}
	drain:
		for len(batch) < 64 {
			select {
			case next, ok := <-d.ch:
				if !ok {
					break drain
				}
				batch = append(batch, next)
			default:
				break drain
			}
		}
		d.deliver(ctx, batch)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, batch []Event) {
	for _, s := range d.sinks {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		if err := s.Write(wctx, batch); err != nil {
			d.logger.Error("event sink write failed",
				zap.String("sink", s.Name()),
				zap.Int("events", len(batch)),
				zap.Error(err),
			)
		}
		cancel()
	}
}

// Close stops accepting events and waits for Run to flush what is queued.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.ch)
	d.mu.Unlock()
	<-d.done
}
