package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/tenantauth/internal/ids"
)

// Config controls buffering between the engine and the sink.
type Config struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	// DropIfFull drops events instead of blocking the caller when the buffer is full.
	DropIfFull bool `yaml:"drop_if_full"`
	// SinkTimeout bounds a single Sink.Emit call. Zero means no deadline.
	SinkTimeout time.Duration `yaml:"sink_timeout"`
}

// dropLogEvery rate-limits the "events dropped" warning.
const dropLogEvery = 100

// Dispatcher hands audit events to a sink on one background goroutine, so slow sinks
// such as a database never sit on the login path.
type Dispatcher struct {
	cfg       Config
	sink      Sink
	log       *zap.Logger
	ch        chan Event
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	panics    atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger reports drops and sink panics to l.
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

// NewDispatcher starts the delivery goroutine. It returns nil when cfg is disabled; a
// nil Dispatcher accepts and discards events.
func NewDispatcher(cfg Config, sink Sink, opts ...Option) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		cfg:  cfg,
		sink: sink,
		log:  zap.NewNop(),
		ch:   make(chan Event, cfg.BufferSize),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.wg.Add(1)
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()
	for {
		select {
		case ev := <-d.ch:
			d.deliver(ev)
		case <-d.done:
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case ev := <-d.ch:
			d.deliver(ev)
		default:
			return
		}
	}
}

// deliver calls the sink under SinkTimeout. A panicking sink loses that one event.
func (d *Dispatcher) deliver(ev Event) {
	ctx := context.Background()
	if d.cfg.SinkTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.SinkTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			d.panics.Add(1)
			d.log.Error("audit sink panicked",
				zap.String("event_id", ev.ID),
				zap.String("event_type", ev.EventType),
				zap.Any("panic", r))
		}
	}()
	d.sink.Emit(ctx, ev)
}

// Emit queues ev, assigning an id and timestamp when missing. With DropIfFull a full
// buffer drops the event; otherwise Emit waits for space, ctx or Close.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if ev.ID == "" {
		ev.ID = ids.New()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- ev:
		case <-d.done:
		default:
			if n := d.dropped.Add(1); n == 1 || n%dropLogEvery == 0 {
				d.log.Warn("audit buffer full, dropping events",
					zap.Uint64("dropped_total", n),
					zap.String("event_type", ev.EventType))
			}
		}
		return
	}

	select {
	case d.ch <- ev:
	case <-ctx.Done():
	case <-d.done:
	}
}

// Close stops accepting events and delivers what is buffered before returning.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// SinkPanics counts events lost to a panicking sink.
func (d *Dispatcher) SinkPanics() uint64 {
	if d == nil {
		return 0
	}
	return d.panics.Load()
}
