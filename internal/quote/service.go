// Package quote exposes quote sessions over HTTP. A session stores only the
// user's inputs; every response carries a snapshot derived from them against
// the current price table.
package quote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/flyer-quote/internal/cache"
	"github.com/noah-isme/flyer-quote/internal/events"
	"github.com/noah-isme/flyer-quote/internal/lock"
	"github.com/noah-isme/flyer-quote/internal/order"
	"github.com/noah-isme/flyer-quote/internal/pricetable"
	"github.com/noah-isme/flyer-quote/internal/schedule"
)

// ErrRejected wraps command failures. The batch was still applied and the
// accompanying Result is current.
var ErrRejected = errors.New("quote: commands rejected")

// Result pairs a stored session with the snapshot derived from it.
type Result struct {
	Session  Session
	Snapshot order.Snapshot
}

// Service applies command batches to stored sessions.
type Service struct {
	Store    Store
	Locker   lock.Interface
	Prices   *pricetable.Provider
	Calendar schedule.Calendar
	Events   *events.Bus
	Logger   zerolog.Logger
	Clock    func() time.Time
	LockTTL  time.Duration

	local lock.Local
}

func (s *Service) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

func (s *Service) table() *pricetable.Table {
	if s.Prices == nil {
		return nil
	}
	return s.Prices.Current()
}

func (s *Service) locker() lock.Interface {
	if s.Locker != nil {
		return s.Locker
	}
	return &s.local
}

func (s *Service) coordinator(in order.Inputs) *order.Coordinator {
	return order.New(order.Options{
		Inputs:   in,
		Table:    s.table(),
		Calendar: s.Calendar,
		Clock:    s.now,
		Logger:   s.Logger,
	})
}

// Create starts a fresh session.
func (s *Service) Create(ctx context.Context) (Result, error) {
	if s.Store == nil {
		return Result{}, errors.New("quote: store not configured")
	}
	now := s.now().UTC()
	snap := s.coordinator(order.NewInputs()).Snapshot()
	sess := Session{
		ID:        uuid.NewString(),
		Version:   1,
		Inputs:    order.NewInputs(),
		Valid:     snap.Validation.Valid,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Store.Put(ctx, sess); err != nil {
		return Result{}, fmt.Errorf("quote: save session: %w", err)
	}
	snap.Version = sess.Version
	s.emit(ctx, events.TopicQuoteCreated, sess, snap)
	return Result{Session: sess, Snapshot: snap}, nil
}

// Get loads a session and derives its snapshot.
func (s *Service) Get(ctx context.Context, id string) (Result, error) {
	if s.Store == nil {
		return Result{}, errors.New("quote: store not configured")
	}
	sess, err := s.Store.Get(ctx, id)
	if err != nil {
		return Result{}, err
	}
	snap := order.Derive(sess.Inputs, s.table(), s.Calendar, s.now())
	snap.Version = sess.Version
	return Result{Session: sess, Snapshot: snap}, nil
}

// Apply runs the commands against the session as one transition while
// holding the session lock. Rejected commands leave the rest of the batch in
// effect; their errors are returned wrapped in ErrRejected together with the
// saved result.
func (s *Service) Apply(ctx context.Context, id string, cmds ...order.Command) (Result, error) {
	if s.Store == nil {
		return Result{}, errors.New("quote: store not configured")
	}
	var (
		res      Result
		rejected error
	)
	err := s.locker().WithLock(ctx, cache.KeyQuoteLock(id), s.LockTTL, func(ctx context.Context) error {
		sess, err := s.Store.Get(ctx, id)
		if err != nil {
			return err
		}
		coord := s.coordinator(sess.Inputs)
		snap, cmdErr := coord.Dispatch(ctx, cmds...)

		wasValid := sess.Valid
		sess.Inputs = coord.Inputs()
		sess.Version++
		sess.Valid = snap.Validation.Valid
		sess.UpdatedAt = s.now().UTC()
		if err := s.Store.Put(ctx, sess); err != nil {
			return fmt.Errorf("quote: save session: %w", err)
		}
		snap.Version = sess.Version

		s.emit(ctx, events.TopicQuoteRecomputed, sess, snap)
		if wasValid != sess.Valid {
			s.emit(ctx, events.TopicQuoteValidityChanged, sess, snap)
		}
		res = Result{Session: sess, Snapshot: snap}
		if cmdErr != nil {
			rejected = fmt.Errorf("%w: %w", ErrRejected, cmdErr)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return res, rejected
}

// Delete removes a session.
func (s *Service) Delete(ctx context.Context, id string) error {
	if s.Store == nil {
		return errors.New("quote: store not configured")
	}
	if err := s.Store.Delete(ctx, id); err != nil {
		return err
	}
	s.emit(ctx, events.TopicQuoteDeleted, Session{ID: id}, order.Snapshot{})
	return nil
}

type eventPayload struct {
	Version     uint64 `json:"version"`
	Valid       bool   `json:"valid"`
	Degraded    bool   `json:"degraded"`
	TotalFlyers int    `json:"totalFlyers"`
	GrandTotal  string `json:"grandTotal"`
	Currency    string `json:"currency,omitempty"`
}

func (s *Service) emit(ctx context.Context, topic string, sess Session, snap order.Snapshot) {
	if s.Events == nil {
		return
	}
	payload := eventPayload{
		Version:     snap.Version,
		Valid:       snap.Validation.Valid,
		Degraded:    snap.Cost.Degraded,
		TotalFlyers: snap.Distribution.TotalFlyers,
		GrandTotal:  snap.Cost.GrandTotal.StringFixed(2),
		Currency:    snap.Cost.Currency,
	}
	if _, err := s.Events.Emit(ctx, topic, sess.ID, payload); err != nil {
		s.Logger.Warn().Err(err).Str("topic", topic).Str("quote_id", sess.ID).Msg("emit quote event")
	}
}
