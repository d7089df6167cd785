// Package services orchestrates record mutations across the store, the live
// hub, and the event trail.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"masraf/internal/amqp"
	"masraf/internal/core"
	"masraf/internal/live"
	"masraf/internal/log"
	"masraf/internal/store"
)

// EventPublisher is the slice of the AMQP client mutations publish to.
type EventPublisher interface {
	PublishRecordEvent(ctx context.Context, event *amqp.RecordEvent) error
	Close() error
}

// Notifier receives a ping after every successful write so live views can
// re-query.
type Notifier interface {
	Notify(ctx context.Context, owner string)
}

// RecordService performs the write path: validate, persist, notify, publish.
// The store write is authoritative; event publishing is best effort and never
// fails the request.
type RecordService struct {
	records   store.RecordStore
	hub       Notifier
	publisher EventPublisher
	now       func() time.Time
}

func NewRecordService(records store.RecordStore, hub Notifier, publisher EventPublisher) *RecordService {
	return &RecordService{
		records:   records,
		hub:       hub,
		publisher: publisher,
		now:       time.Now,
	}
}

// CreateRecord validates and persists a new record for owner. An empty
// category falls back to the default. The stored record carries both the
// machine timestamp and the display date derived from it.
func (s *RecordService) CreateRecord(ctx context.Context, owner, name, price string, category core.Category) (string, error) {
	if owner == "" {
		return "", core.ErrEmptyOwner
	}
	if category == "" {
		category = core.CategoryOther
	}

	now := s.now()
	record := core.Record{
		Owner:        owner,
		Name:         strings.TrimSpace(name),
		Price:        strings.TrimSpace(price),
		Category:     category,
		CreatedAt:    now,
		CreationDate: core.DisplayDate(now),
	}
	if err := record.Validate(); err != nil {
		return "", err
	}

	id, err := s.records.AddRecord(ctx, record)
	if err != nil {
		return "", fmt.Errorf("save record: %w", err)
	}

	s.notify(ctx, owner)
	s.publish(ctx, amqp.NewRecordEvent(amqp.ActionCreated, id, owner, record.Name, record.Price, record.Category.String()))

	return id, nil
}

// UpdateRecord rewrites the editable fields of an existing record. Owner and
// creation time never change.
func (s *RecordService) UpdateRecord(ctx context.Context, owner, id string, update core.RecordUpdate) error {
	update.Name = strings.TrimSpace(update.Name)
	update.Price = strings.TrimSpace(update.Price)
	if err := update.Validate(); err != nil {
		return err
	}
	if _, err := s.GetRecord(ctx, owner, id); err != nil {
		return err
	}

	if err := s.records.UpdateRecord(ctx, id, update); err != nil {
		return fmt.Errorf("update record: %w", err)
	}

	s.notify(ctx, owner)
	s.publish(ctx, amqp.NewRecordEvent(amqp.ActionUpdated, id, owner, update.Name, update.Price, update.Category.String()))

	return nil
}

// DeleteRecord removes the record and propagates the change.
func (s *RecordService) DeleteRecord(ctx context.Context, owner, id string) error {
	record, err := s.GetRecord(ctx, owner, id)
	if err != nil {
		return err
	}

	if err := s.records.DeleteRecord(ctx, id); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}

	s.notify(ctx, owner)
	s.publish(ctx, amqp.NewRecordEvent(amqp.ActionDeleted, id, owner, record.Name, record.Price, record.Category.String()))

	return nil
}

// GetRecord reads one record, refusing to serve another owner's data.
func (s *RecordService) GetRecord(ctx context.Context, owner, id string) (core.Record, error) {
	record, err := s.records.GetRecord(ctx, id)
	if err != nil {
		return core.Record{}, err
	}
	if record.Owner != owner {
		return core.Record{}, store.ErrNotFound
	}
	return record, nil
}

func (s *RecordService) notify(ctx context.Context, owner string) {
	if s.hub == nil {
		return
	}
	s.hub.Notify(ctx, owner)
}

func (s *RecordService) publish(ctx context.Context, event *amqp.RecordEvent) {
	if s.publisher == nil {
		slog.WarnContext(ctx, "Event publisher not available, skipping record event")
		return
	}
	if err := s.publisher.PublishRecordEvent(ctx, event); err != nil {
		slog.ErrorContext(ctx, "Failed to publish record event",
			log.NewFields().
				WithComponent(log.ComponentRecord).
				WithOperation(event.Action).
				WithRecord(event.ID, event.Owner, event.Category).
				WithError(err).
				ToSlice()...)
	}
}

// Close releases the publisher connection.
func (s *RecordService) Close() error {
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			return fmt.Errorf("close publisher: %w", err)
		}
	}
	return nil
}

var _ Notifier = (*live.Hub)(nil)
