package stream

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/roach88/deduce/internal/ir"
	"github.com/roach88/deduce/internal/kb"
)

// Engine is the single-owner streaming loop around a knowledge base.
//
// Producers submit fact batches with Enqueue from any goroutine. The Run
// goroutine owns everything else: it applies batches, stamping each with an
// expiry of now + window, and on every tick it sweeps expired facts,
// re-evaluates the program and pushes changed query results to listeners.
//
// CRITICAL: Run (or Step) must be called from exactly ONE goroutine. The
// sweep and the evaluation run there, so they never overlap.
//
// Thread-safety model:
//   - Enqueue, Subscribe, Unsubscribe, Stop, Stats: safe from any goroutine
//   - Run, Step: owner goroutine only
//
// INVARIANTS:
//   - facts that were base facts before streaming started never expire
//   - a fact re-sent in a later batch takes the later expiry
//   - listeners are notified in subscription order
type Engine struct {
	kb       *kb.KnowledgeBase
	clock    Clock
	ids      IDGenerator
	queue    *batchQueue
	seq      sequence
	window   time.Duration
	interval time.Duration
	logger   *slog.Logger

	// Owned by the Run goroutine.
	expiry map[string]time.Time
	dirty  bool

	mu        sync.Mutex
	listeners []*listener
	stats     Stats
}

// Stats counts what the engine has done.
type Stats struct {
	Rounds   int64
	Batches  int64
	Rejected int64
	Expired  int64
}

// Update is delivered to a listener when its query's answers change, and
// on the first round after it subscribed.
type Update struct {
	ListenerID string
	Query      ir.Query
	Round      int64
	At         time.Time
	Variables  []ir.Variable
	Tuples     []ir.Tuple

	// Err is set when the round failed. Tuples is nil then.
	Err error
}

// Listener receives updates. It is called on the Run goroutine and must
// not call Run or Step.
type Listener func(Update)

type listener struct {
	id        string
	query     ir.Query
	fn        Listener
	last      []ir.Tuple
	delivered bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for expiry. Default: SystemClock.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithIDGenerator sets the batch and listener ID generator.
// Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an engine over base. Window and interval come from the
// knowledge base's configuration; a zero window keeps facts forever.
func New(base *kb.KnowledgeBase, opts ...Option) *Engine {
	cfg := base.Config()
	e := &Engine{
		kb:       base,
		clock:    SystemClock{},
		ids:      UUIDv7Generator{},
		queue:    newBatchQueue(),
		window:   cfg.Stream.Window,
		interval: cfg.Stream.Interval,
		logger:   slog.Default(),
		expiry:   make(map[string]time.Time),
		dirty:    true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enqueue submits a batch of facts and returns its ID. Returns false if
// the engine has been stopped.
func (e *Engine) Enqueue(facts map[ir.Predicate][]ir.Tuple) (string, bool) {
	b := Batch{ID: e.ids.Generate(), Facts: make(map[ir.Predicate][]ir.Tuple, len(facts))}
	for p, ts := range facts {
		b.Facts[p] = append([]ir.Tuple(nil), ts...)
	}
	return b.ID, e.queue.Enqueue(b)
}

// Subscribe registers fn to receive the answers of q after each round in
// which they change. It returns the listener ID.
func (e *Engine) Subscribe(q ir.Query, fn Listener) string {
	l := &listener{id: e.ids.Generate(), query: q, fn: fn}
	e.mu.Lock()
	e.listeners = append(e.listeners, l)
	e.mu.Unlock()
	return l.id
}

// Unsubscribe removes a listener and reports whether it was registered.
func (e *Engine) Unsubscribe(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, l := range e.listeners {
		if l.id == id {
			e.listeners = append(e.listeners[:i], e.listeners[i+1:]...)
			return true
		}
	}
	return false
}

// Stats returns a copy of the engine's counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// QueueLen returns the number of batches not yet applied.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// Run starts the loop. It blocks until ctx is cancelled or Stop is called.
//
// Batches are applied as they arrive; evaluation happens on the ticker.
// A failed round is logged and the loop continues. An in-flight evaluation
// is not interrupted by cancellation; cancelling only prevents the next.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("stream engine starting", "window", e.window, "interval", e.interval)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("stream engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			e.drain()
			if e.queue.Closed() {
				// Final round so listeners see the last batches.
				if err := e.Step(ctx); err != nil {
					e.logger.Error("final round failed", "error", err)
				}
				e.logger.Info("stream engine stopping: queue closed")
				return nil
			}

		case <-ticker.C:
			if err := e.Step(ctx); err != nil {
				e.logger.Error("round failed", "error", err)
			}
		}
	}
}

// Stop closes the queue, which makes Run return after a final round.
func (e *Engine) Stop() {
	e.queue.Close()
}

// Step runs one round synchronously: apply queued batches, sweep expired
// facts, re-evaluate if anything changed, and notify listeners.
//
// CRITICAL: owner goroutine only.
func (e *Engine) Step(ctx context.Context) error {
	e.drain()
	e.sweep()

	e.mu.Lock()
	listeners := append([]*listener(nil), e.listeners...)
	e.mu.Unlock()

	pending := e.dirty
	for _, l := range listeners {
		if !l.delivered {
			pending = true
		}
	}
	if !pending {
		return nil
	}

	e.mu.Lock()
	e.stats.Rounds++
	round := e.stats.Rounds
	e.mu.Unlock()
	now := e.clock.Now()

	if e.dirty {
		if err := e.kb.Execute(ctx); err != nil {
			for _, l := range listeners {
				l.fn(Update{ListenerID: l.id, Query: l.query, Round: round, At: now, Err: err})
			}
			return err
		}
		e.dirty = false
		e.logger.Debug("stream round evaluated", "round", round, "derived", e.kb.Stats().Derived)
	}

	for _, l := range listeners {
		e.notify(ctx, l, round, now)
	}
	return nil
}

func (e *Engine) notify(ctx context.Context, l *listener, round int64, now time.Time) {
	res, err := e.kb.EvaluateQuery(ctx, l.query)
	if err != nil {
		e.logger.Warn("listener query failed", "listener", l.id, "error", err)
		l.fn(Update{ListenerID: l.id, Query: l.query, Round: round, At: now, Err: err})
		return
	}
	tuples := res.Tuples()
	if l.delivered && sameTuples(l.last, tuples) {
		return
	}
	l.last = tuples
	l.delivered = true
	l.fn(Update{
		ListenerID: l.id,
		Query:      l.query,
		Round:      round,
		At:         now,
		Variables:  res.Variables,
		Tuples:     tuples,
	})
}

// drain applies every queued batch.
func (e *Engine) drain() {
	for {
		b, ok := e.queue.TryDequeue()
		if !ok {
			return
		}
		e.apply(b)
	}
}

func (e *Engine) apply(b Batch) {
	b.Seq = e.seq.Next()
	if e.window > 0 {
		b.Expires = e.clock.Now().Add(e.window)
	}

	// Facts already in the base and not tracked were there before
	// streaming, so they stay permanent.
	var track []string
	if !b.Expires.IsZero() {
		for p, ts := range b.Facts {
			for _, t := range ts {
				key := factKey(p, t)
				if _, tracked := e.expiry[key]; !tracked && e.kb.HasFact(p, t) {
					continue
				}
				track = append(track, key)
			}
		}
	}

	added, err := e.kb.AddFacts(b.Facts)
	if err != nil {
		e.logger.Warn("batch rejected", "batch", b.ID, "seq", b.Seq, "error", err)
		e.mu.Lock()
		e.stats.Rejected++
		e.mu.Unlock()
		return
	}
	for _, key := range track {
		if cur, ok := e.expiry[key]; !ok || cur.Before(b.Expires) {
			e.expiry[key] = b.Expires
		}
	}
	if added > 0 {
		e.dirty = true
	}

	e.mu.Lock()
	e.stats.Batches++
	e.mu.Unlock()
	e.logger.Debug("batch applied",
		"batch", b.ID,
		"seq", b.Seq,
		"tuples", b.Size(),
		"added", added,
		"expires", b.Expires)
}

// sweep removes facts whose expiry has passed.
func (e *Engine) sweep() {
	if len(e.expiry) == 0 {
		return
	}
	now := e.clock.Now()
	expired := make(map[string]bool)
	for key, at := range e.expiry {
		if !at.After(now) {
			expired[key] = true
			delete(e.expiry, key)
		}
	}
	if len(expired) == 0 {
		return
	}

	removed := e.kb.RetainFacts(func(p ir.Predicate, t ir.Tuple) bool {
		return !expired[factKey(p, t)]
	})
	if removed > 0 {
		e.dirty = true
	}

	e.mu.Lock()
	e.stats.Expired += int64(removed)
	e.mu.Unlock()
	e.logger.Debug("expired facts swept", "removed", removed)
}

func factKey(p ir.Predicate, t ir.Tuple) string {
	return p.Symbol + "/" + strconv.Itoa(p.Arity) + "\x00" + string(ir.EncodeTuple(t))
}

func sameTuples(a, b []ir.Tuple) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
