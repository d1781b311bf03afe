package bridge

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	apperrors "github.com/davidvanstory/MultiplayerGame/internal/platform/errors"
)

// Emitter defaults.
const (
	DefaultQueueLimit    = 256
	DefaultBatchSize     = 32
	DefaultFlushInterval = 100 * time.Millisecond
	DefaultBackoffBase   = 250 * time.Millisecond
	DefaultBackoffMax    = 5 * time.Second
)

// Sender posts one envelope to the host. A nil error acknowledges the batch.
type Sender func(ctx context.Context, env Envelope) error

// Handler receives a routed host message or a locally produced ERROR event.
type Handler func(msg HostMessage)

// Config controls emitter identity and batching behavior. Zero values fall
// back to the package defaults.
type Config struct {
	RoomID        string
	PlayerID      string
	SessionID     string
	QueueLimit    int
	BatchSize     int
	FlushInterval time.Duration
	BackoffBase   time.Duration
	BackoffMax    time.Duration
	Send          Sender
}

func (c Config) normalized() Config {
	if c.QueueLimit <= 0 {
		c.QueueLimit = DefaultQueueLimit
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = DefaultBackoffMax
	}
	return c
}

// EmitOptions qualifies a single emit call.
type EmitOptions struct {
	// Scope qualifies UPDATE events as local or remote.
	Scope Scope
	// HighPriority bypasses batching and flushes immediately.
	HighPriority bool
}

// Emitter stamps, queues, and batches game-side events toward the host and
// routes host-side messages to subscribers. All methods are safe for
// concurrent use.
type Emitter struct {
	cfg Config

	// sendMu serializes flushes so envelopes leave in sequence order.
	sendMu sync.Mutex

	mu           sync.Mutex
	seq          int64
	queue        []Event
	handlers     map[string]map[int]Handler
	nextHandle   int
	failures     int
	retryAt      time.Time
	destroyed    bool
	droppedTotal int64

	kick   chan struct{}
	done   chan struct{}
	closed chan struct{}
}

// NewEmitter builds an emitter and starts its background flush loop.
func NewEmitter(cfg Config) *Emitter {
	e := &Emitter{
		cfg:      cfg.normalized(),
		handlers: make(map[string]map[int]Handler),
		kick:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		closed:   make(chan struct{}),
	}
	go e.run()
	return e
}

func (e *Emitter) run() {
	defer close(e.closed)
	ticker := time.NewTicker(e.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.done:
			e.Flush(context.Background())
			return
		case <-ticker.C:
			e.Flush(context.Background())
		case <-e.kick:
			e.Flush(context.Background())
		}
	}
}

// Emit records one event and returns it stamped with the next sequence
// number. Kinds outside the event set fail with INVALID_KIND. ERROR and
// high-priority events trigger an immediate flush.
func (e *Emitter) Emit(kind Kind, data json.RawMessage, opts EmitOptions) (Event, error) {
	if !ValidKind(kind) {
		return Event{}, apperrors.New(apperrors.CodeInvalidKind, "unknown event kind "+string(kind))
	}

	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return Event{}, apperrors.New(apperrors.CodeInvalidActionShape, "emitter destroyed")
	}
	e.seq++
	evt := Event{
		Kind:  kind,
		Data:  data,
		Scope: opts.Scope,
		Metadata: Metadata{
			RoomID:         e.cfg.RoomID,
			PlayerID:       e.cfg.PlayerID,
			SessionID:      e.cfg.SessionID,
			Timestamp:      time.Now().UTC().UnixMilli(),
			SequenceNumber: e.seq,
		},
	}
	if opts.HighPriority {
		evt.Metadata.Priority = PriorityHigh
	}
	e.enqueueLocked(evt)
	urgent := kind == KindError || opts.HighPriority
	batchFull := len(e.queue) >= e.cfg.BatchSize
	e.mu.Unlock()

	if urgent || batchFull {
		e.kickFlush()
	}
	return evt, nil
}

// enqueueLocked appends evt, evicting by priority class when the queue is
// full. Oldest UPDATE events go first, then INTERACTION, then TRANSITION.
// ERROR events are never evicted and may exceed the bound.
func (e *Emitter) enqueueLocked(evt Event) {
	if len(e.queue) < e.cfg.QueueLimit {
		e.queue = append(e.queue, evt)
		return
	}
	for _, victim := range []Kind{KindUpdate, KindInteraction, KindTransition} {
		for i, queued := range e.queue {
			if queued.Kind == victim {
				e.queue = append(e.queue[:i], e.queue[i+1:]...)
				e.queue = append(e.queue, evt)
				e.droppedTotal++
				return
			}
		}
	}
	if evt.Kind == KindError {
		e.queue = append(e.queue, evt)
		return
	}
	e.droppedTotal++
}

// On subscribes handler to a host-side kind (STATE_UPDATE, PLAYER_ACTION,
// GAME_EVENT, CONFIG_UPDATE), the wildcard, or local ERROR events produced
// on send failure. It returns an unsubscribe handle.
func (e *Emitter) On(kind string, handler Handler) (func(), error) {
	if handler == nil {
		return nil, apperrors.New(apperrors.CodeInvalidActionShape, "handler is required")
	}
	if !KnownHostKind(kind) && kind != HostWildcard && kind != string(KindError) {
		return nil, apperrors.New(apperrors.CodeInvalidKind, "unknown subscription kind "+kind)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handlers[kind] == nil {
		e.handlers[kind] = make(map[int]Handler)
	}
	e.nextHandle++
	handle := e.nextHandle
	e.handlers[kind][handle] = handler
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.handlers[kind], handle)
	}, nil
}

// Deliver routes one host message to subscribers. Messages for other
// targets or rooms are ignored; unknown kinds are logged and dropped.
func (e *Emitter) Deliver(msg HostMessage) {
	if msg.Target != Source {
		return
	}
	if msg.RoomID != "" && msg.RoomID != e.cfg.RoomID {
		return
	}
	if !KnownHostKind(msg.Type) {
		log.Printf("bridge: dropping unknown host kind %q", msg.Type)
		return
	}

	e.mu.Lock()
	targets := make([]Handler, 0, 4)
	for _, h := range e.handlers[msg.Type] {
		targets = append(targets, h)
	}
	for _, h := range e.handlers[HostWildcard] {
		targets = append(targets, h)
	}
	e.mu.Unlock()

	for _, h := range targets {
		h(msg)
	}
}

// Flush sends queued events now, in emit order, in batches of at most
// BatchSize. Send failure requeues the batch, backs off linearly, and
// produces a local ERROR event for subscribers.
func (e *Emitter) Flush(ctx context.Context) {
	if e.cfg.Send == nil {
		return
	}
	e.sendMu.Lock()
	defer e.sendMu.Unlock()
	for {
		e.mu.Lock()
		if len(e.queue) == 0 || time.Now().Before(e.retryAt) {
			e.mu.Unlock()
			return
		}
		n := len(e.queue)
		if n > e.cfg.BatchSize {
			n = e.cfg.BatchSize
		}
		batch := make([]Event, n)
		copy(batch, e.queue[:n])
		e.queue = e.queue[n:]
		env := Envelope{
			Source:   Source,
			RoomID:   e.cfg.RoomID,
			PlayerID: e.cfg.PlayerID,
			Events:   batch,
		}
		e.mu.Unlock()

		if err := e.cfg.Send(ctx, env); err != nil {
			e.mu.Lock()
			e.queue = append(batch, e.queue...)
			e.failures++
			backoff := time.Duration(e.failures) * e.cfg.BackoffBase
			if backoff > e.cfg.BackoffMax {
				backoff = e.cfg.BackoffMax
			}
			e.retryAt = time.Now().Add(backoff)
			e.mu.Unlock()

			log.Printf("bridge: send failed (attempt %d): %v", e.failures, err)
			e.deliverLocalError(err)
			return
		}

		e.mu.Lock()
		e.failures = 0
		e.retryAt = time.Time{}
		e.mu.Unlock()
	}
}

// deliverLocalError notifies ERROR subscribers about a send failure the
// host may never observe.
func (e *Emitter) deliverLocalError(cause error) {
	payload, err := json.Marshal(map[string]string{"message": cause.Error()})
	if err != nil {
		payload = nil
	}

	e.mu.Lock()
	targets := make([]Handler, 0, len(e.handlers[string(KindError)]))
	for _, h := range e.handlers[string(KindError)] {
		targets = append(targets, h)
	}
	e.mu.Unlock()

	msg := HostMessage{
		Target: Source,
		RoomID: e.cfg.RoomID,
		Type:   string(KindError),
		Data:   payload,
	}
	for _, h := range targets {
		h(msg)
	}
}

// Dropped reports how many events were evicted or rejected by the bounded
// queue since the emitter started.
func (e *Emitter) Dropped() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.droppedTotal
}

// Destroy flushes queued events and stops the background loop. Further
// emits fail. Destroy is idempotent.
func (e *Emitter) Destroy() {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		<-e.closed
		return
	}
	e.destroyed = true
	e.retryAt = time.Time{}
	e.mu.Unlock()

	close(e.done)
	<-e.closed

	e.mu.Lock()
	e.handlers = make(map[string]map[int]Handler)
	e.mu.Unlock()
}

func (e *Emitter) kickFlush() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}
