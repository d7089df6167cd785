// Package worker drains record mutation events into the audit trail.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"masraf/internal/amqp"
	"masraf/internal/export/sheets"
	"masraf/internal/query"
	"masraf/internal/store"
)

// EventWorker consumes record events and appends them to the audit trail.
type EventWorker struct {
	records  store.RecordStore
	appender sheets.AuditAppender
}

func NewEventWorker(records store.RecordStore, appender sheets.AuditAppender) *EventWorker {
	return &EventWorker{
		records:  records,
		appender: appender,
	}
}

// HandleEvent processes one mutation event. A created or updated record is
// re-read from the store so the audit row reflects the committed state; a
// record that disappeared between event and processing is logged and
// skipped rather than requeued forever.
func (w *EventWorker) HandleEvent(ctx context.Context, event *amqp.RecordEvent) error {
	if event.Action == amqp.ActionCreated || event.Action == amqp.ActionUpdated {
		record, err := w.records.GetRecord(ctx, event.ID)
		switch {
		case err == nil:
			event.Name = record.Name
			event.Price = record.Price
			event.Category = record.Category.String()
		case errors.Is(err, store.ErrNotFound):
			slog.WarnContext(ctx, "Record gone before audit, using event payload",
				"id", event.ID,
				"action", event.Action)
		default:
			return fmt.Errorf("load record for audit: %w", err)
		}
	}

	if err := w.appender.AppendEvent(ctx, event); err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// Backfill writes an audit row for every record currently owned by owner.
// Used on startup to seed an empty trail.
func (w *EventWorker) Backfill(ctx context.Context, owner string) (int, error) {
	records, err := w.records.ListRecords(ctx, query.Build(owner, query.Filter{}))
	if err != nil {
		return 0, fmt.Errorf("list records for backfill: %w", err)
	}

	appended := 0
	for _, r := range records {
		event := &amqp.RecordEvent{
			ID:        r.ID,
			Action:    amqp.ActionCreated,
			Owner:     r.Owner,
			Name:      r.Name,
			Price:     r.Price,
			Category:  r.Category.String(),
			Timestamp: r.CreatedAt,
		}
		if err := w.appender.AppendEvent(ctx, event); err != nil {
			return appended, fmt.Errorf("backfill record %s: %w", r.ID, err)
		}
		appended++
	}

	slog.InfoContext(ctx, "Backfill complete", "owner", owner, "records", appended)
	return appended, nil
}
