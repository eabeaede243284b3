package credVault

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/MrEthical07/credVault/store"
)

// auditDispatcher fans audit events out to the configured sink without
// blocking the flows that produce them. It owns event construction: durable
// entries are converted to events here, enriched with the caller context
// captured by [WithClientIP] and [WithUserAgent], and stamped with a
// monotonic sequence number so a sink can detect gaps left by backpressure
// drops.
type auditDispatcher struct {
	cfg  AuditConfig
	sink AuditSink

	ch   chan AuditEvent
	done chan struct{}
	wg   sync.WaitGroup

	seq       atomic.Uint64
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &auditDispatcher{
		cfg:  cfg,
		sink: sink,
		ch:   make(chan AuditEvent, cfg.BufferSize),
		done: make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *auditDispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.ch:
			d.sink.Emit(context.Background(), event)
		case <-d.done:
			d.drain()
			return
		}
	}
}

// drain flushes whatever is already buffered. Nothing new can arrive: Emit
// refuses once closed is set.
func (d *auditDispatcher) drain() {
	for {
		select {
		case event := <-d.ch:
			d.sink.Emit(context.Background(), event)
		default:
			return
		}
	}
}

// EmitEntry converts a durable audit entry into a sink event. The entry
// carries what was persisted; the context carries what was not (client IP,
// user agent), so the sink sees both without the snapshot storing
// per-request noise.
func (d *auditDispatcher) EmitEntry(ctx context.Context, entry store.AuditLogEntry) {
	if d == nil {
		return
	}
	d.Emit(ctx, AuditEvent{
		Timestamp:  entry.Timestamp,
		Action:     entry.Action,
		Level:      entry.Level,
		ActorID:    entry.ActorID,
		ActorEmail: entry.ActorEmail,
		IP:         clientIPFromContext(ctx),
		UserAgent:  userAgentFromContext(ctx),
		Success:    entry.Success,
		Metadata:   entry.Details,
	})
}

// Emit sequences and enqueues one event. With DropIfFull set a full buffer
// increments the drop counter instead of blocking; otherwise Emit blocks
// until the buffer accepts, the context is cancelled, or the dispatcher
// shuts down. The sequence number is allocated before the enqueue attempt,
// so a dropped event leaves a visible gap at the sink.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	event.Sequence = d.seq.Add(1)

	if d.cfg.DropIfFull {
		select {
		case d.ch <- event:
		case <-d.done:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.ch <- event:
	case <-ctx.Done():
	case <-d.done:
	}
}

// Close stops the dispatcher after flushing buffered events. Safe to call
// more than once.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped reports how many events were discarded under backpressure.
func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
