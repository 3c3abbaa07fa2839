package order

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/flyer-quote/internal/obs"
	"github.com/noah-isme/flyer-quote/internal/pricetable"
	"github.com/noah-isme/flyer-quote/internal/schedule"
)

// Recompute triggers reported in logs and metrics.
const (
	TriggerInit     = "init"
	TriggerDispatch = "dispatch"
	TriggerTable    = "price_table"
)

// Options configures a Coordinator. The zero Inputs is a fresh session, the
// zero Calendar uses UTC with the default lead time, and Clock defaults to
// time.Now.
type Options struct {
	Inputs   Inputs
	Table    *pricetable.Table
	Calendar schedule.Calendar
	Clock    func() time.Time
	Logger   zerolog.Logger
	Tracer   trace.Tracer
}

// Coordinator owns the authoritative snapshot of one quote. Dispatches are
// serialized; each batch is one state transition and one publication.
type Coordinator struct {
	mu       sync.Mutex
	inputs   Inputs
	table    *pricetable.Table
	cal      schedule.Calendar
	clock    func() time.Time
	logger   zerolog.Logger
	tracer   trace.Tracer
	snapshot Snapshot
	version  uint64
	subs     map[int]chan Snapshot
	nextSub  int
}

// New builds a coordinator and derives its first snapshot.
func New(opts Options) *Coordinator {
	c := &Coordinator{
		inputs: opts.Inputs,
		table:  opts.Table,
		cal:    opts.Calendar,
		clock:  opts.Clock,
		logger: opts.Logger,
		tracer: opts.Tracer,
		subs:   map[int]chan Snapshot{},
	}
	if c.clock == nil {
		c.clock = time.Now
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer("order.coordinator")
	}
	c.recompute(context.Background(), TriggerInit)
	return c
}

// Snapshot returns the current snapshot.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// Inputs returns the current inputs.
func (c *Coordinator) Inputs() Inputs {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inputs
}

// Dispatch applies the commands as one transition, recomputes once and
// publishes at most once. Failed commands are no-ops; their errors are joined and
// returned next to the new snapshot.
func (c *Coordinator) Dispatch(ctx context.Context, cmds ...Command) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.inputs
	var errs []error
	for _, cmd := range cmds {
		var err error
		next, err = Reduce(next, cmd)
		observeCommand(cmd, err)
		if err != nil {
			errs = append(errs, err)
		}
	}
	joined := errors.Join(errs...)
	if joined != nil {
		c.logger.Debug().Err(joined).Int("commands", len(cmds)).Msg("quote_commands_rejected")
	}
	c.inputs = next
	return c.recompute(ctx, TriggerDispatch), joined
}

// SetPriceTable swaps the price table and republishes if the snapshot changed.
func (c *Coordinator) SetPriceTable(ctx context.Context, t *pricetable.Table) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.table = t
	return c.recompute(ctx, TriggerTable)
}

// Subscribe returns a channel that always holds the latest published
// snapshot. Slow subscribers only miss intermediate versions. The returned
// func unsubscribes and closes the channel.
func (c *Coordinator) Subscribe() (<-chan Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	ch := make(chan Snapshot, 1)
	ch <- c.snapshot
	c.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.subs, id)
			close(ch)
		})
	}
}

// recompute must be called with mu held. A derivation equal to the current
// snapshot keeps its version and is not republished.
func (c *Coordinator) recompute(ctx context.Context, trigger string) Snapshot {
	_, span := c.tracer.Start(ctx, "order.recompute", trace.WithAttributes(attribute.String("quote.trigger", trigger)))
	defer span.End()

	snap := Derive(c.inputs, c.table, c.cal, c.clock())
	if c.version > 0 && sameDerivation(c.snapshot, snap) {
		span.SetAttributes(attribute.Bool("quote.unchanged", true))
		return c.snapshot
	}
	c.version++
	snap.Version = c.version
	c.snapshot = snap

	mode := "priced"
	if snap.Cost.Degraded {
		mode = "degraded"
	}
	span.SetAttributes(
		attribute.Int64("quote.version", int64(snap.Version)),
		attribute.Int("quote.units", len(snap.Distribution.Units)),
		attribute.Bool("quote.valid", snap.Validation.Valid),
		attribute.String("quote.grand_total", snap.Cost.GrandTotal.StringFixed(2)),
	)
	if len(snap.Cost.MissingRates) > 0 {
		span.SetStatus(codes.Error, "missing rates")
	}
	observeSnapshot(trigger, mode, snap)

	evt := c.logger.Debug().
		Str("trigger", trigger).
		Uint64("version", snap.Version).
		Int("units", len(snap.Distribution.Units)).
		Int("flyers", snap.Distribution.TotalFlyers).
		Str("grand_total", snap.Cost.GrandTotal.StringFixed(2)).
		Bool("valid", snap.Validation.Valid)
	if len(snap.Cost.MissingRates) > 0 {
		evt = evt.Strs("missing_rates", snap.Cost.MissingRates)
	}
	evt.Msg("quote_recomputed")

	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
	return snap
}

func sameDerivation(a, b Snapshot) bool {
	a.Version, b.Version = 0, 0
	left, err := json.Marshal(a)
	if err != nil {
		return false
	}
	right, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(left, right)
}

func observeCommand(cmd Command, err error) {
	if obs.QuoteCommandTotal == nil || cmd == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "rejected"
	}
	obs.QuoteCommandTotal.WithLabelValues(cmd.Name(), result).Inc()
}

func observeSnapshot(trigger, mode string, snap Snapshot) {
	if obs.QuoteRecomputeTotal != nil {
		obs.QuoteRecomputeTotal.WithLabelValues(trigger, mode).Inc()
	}
	if obs.QuoteValidTotal != nil {
		obs.QuoteValidTotal.WithLabelValues(strconv.FormatBool(snap.Validation.Valid)).Inc()
	}
	if obs.QuoteGrandTotal != nil && !snap.Cost.Degraded && snap.Cost.GrandTotal.IsPositive() {
		obs.QuoteGrandTotal.Observe(snap.Cost.GrandTotal.InexactFloat64())
	}
}
