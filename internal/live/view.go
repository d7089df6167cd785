// Package live maintains subscriptions over the record store. Every change
// notification delivers a complete, freshly queried snapshot; subscribers
// never see incremental patches or a merge of two result sets.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"masraf/internal/core"
	"masraf/internal/query"
)

// ErrClosed is returned by Subscribe after the hub has shut down.
var ErrClosed = errors.New("live hub closed")

type (
	// Snapshot is the full result set of one subscription at one point in
	// time, sorted newest first, with the derived total.
	Snapshot struct {
		Records []core.Record
		Total   decimal.Decimal
	}

	// Lister is the slice of the store the hub reads from.
	Lister interface {
		ListRecords(ctx context.Context, p query.PredicateSet) ([]core.Record, error)
	}

	// Subscription is one live view over a predicate set. The snapshot
	// channel has capacity one and is written only by the hub: a pending
	// undelivered snapshot is replaced by a newer one, so a slow consumer
	// always observes the latest consistent state.
	Subscription struct {
		id    uint64
		owner string
		preds query.PredicateSet

		deliverMu sync.Mutex
		ch        chan Snapshot
		errs      chan error

		hub  *Hub
		once sync.Once
	}

	// Hub owns all subscriptions and produces their snapshots.
	Hub struct {
		lister Lister

		mu     sync.Mutex
		subs   map[uint64]*Subscription
		nextID uint64
		closed bool
	}
)

func NewHub(lister Lister) *Hub {
	return &Hub{
		lister: lister,
		subs:   make(map[uint64]*Subscription),
	}
}

// Subscribe establishes a live view for owner under the given filter and
// delivers the initial snapshot before returning. The caller must not
// subscribe without a resolved identity.
func (h *Hub) Subscribe(ctx context.Context, owner string, f query.Filter) (*Subscription, error) {
	if owner == "" {
		return nil, errors.New("subscribe without identity")
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	h.nextID++
	s := &Subscription{
		id:    h.nextID,
		owner: owner,
		preds: query.Build(owner, f),
		ch:    make(chan Snapshot, 1),
		errs:  make(chan error, 1),
		hub:   h,
	}
	h.subs[s.id] = s
	h.mu.Unlock()

	if err := h.refresh(ctx, s); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Notify re-queries every subscription belonging to owner and pushes the
// fresh snapshot. Mutation paths call this after each successful write.
// Query failures surface on the affected subscription's error channel only.
func (h *Hub) Notify(ctx context.Context, owner string) {
	h.mu.Lock()
	var targets []*Subscription
	for _, s := range h.subs {
		if s.owner == owner {
			targets = append(targets, s)
		}
	}
	h.mu.Unlock()

	for _, s := range targets {
		if err := h.refresh(ctx, s); err != nil {
			slog.WarnContext(ctx, "Snapshot refresh failed", "owner", owner, "error", err)
			s.fail(err)
		}
	}
}

// Close tears down every subscription. Further Subscribe calls fail.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := make([]*Subscription, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
}

func (h *Hub) refresh(ctx context.Context, s *Subscription) error {
	records, err := h.lister.ListRecords(ctx, s.preds)
	if err != nil {
		return fmt.Errorf("query records: %w", err)
	}
	s.deliver(BuildSnapshot(ctx, records))
	return nil
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

// Snapshots is the stream of full result sets. The channel is closed when
// the subscription is.
func (s *Subscription) Snapshots() <-chan Snapshot {
	return s.ch
}

// Errs carries refresh failures so the consumer can clear its loading state
// instead of hanging.
func (s *Subscription) Errs() <-chan error {
	return s.errs
}

// Close unsubscribes. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s.id)
		s.deliverMu.Lock()
		close(s.ch)
		s.deliverMu.Unlock()
	})
}

// deliver replaces any pending snapshot with the newer one.
func (s *Subscription) deliver(snap Snapshot) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if !s.hub.active(s.id) {
		return
	}
	select {
	case s.ch <- snap:
	default:
		// Drop the stale pending snapshot, then queue the fresh one.
		select {
		case <-s.ch:
		default:
		}
		s.ch <- snap
	}
}

func (s *Subscription) fail(err error) {
	select {
	case s.errs <- err:
	default:
	}
}

func (h *Hub) active(id uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.subs[id]
	return ok
}

// BuildSnapshot sorts records newest first and computes the running total.
// Records with an unresolved timestamp sort strictly oldest. A price that no
// longer parses is skipped from the total with a warning; validation keeps
// that from happening on any write path of this application.
func BuildSnapshot(ctx context.Context, records []core.Record) Snapshot {
	sorted := make([]core.Record, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	total := decimal.Zero
	for _, r := range sorted {
		d, err := core.ParsePrice(r.Price)
		if err != nil {
			slog.WarnContext(ctx, "Unparseable price excluded from total", "id", r.ID, "price", r.Price)
			continue
		}
		total = total.Add(d)
	}

	return Snapshot{Records: sorted, Total: total}
}

// FormattedTotal renders the total with two decimals, e.g. "30.50".
func (s Snapshot) FormattedTotal() string {
	return core.FormatAmount(s.Total)
}

// Empty reports whether the snapshot has no records, which suppresses the
// total display.
func (s Snapshot) Empty() bool {
	return len(s.Records) == 0
}
