package watermilldb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/arkade-os/custodyd/internal/core/domain"
	"github.com/arkade-os/custodyd/internal/infrastructure/db/dbutil"
	log "github.com/sirupsen/logrus"
)

type eventRepository struct {
	publisher message.Publisher
	db        *sql.DB
	handlers  *dbutil.Handlers
}

// NewWatermillEventRepository publishes every saved event to the topic and hands
// the saved batch to the registered handlers. db, if any, is closed with the repo.
func NewWatermillEventRepository(publisher message.Publisher, db *sql.DB) domain.EventRepository {
	return &eventRepository{
		publisher: publisher,
		db:        db,
		handlers:  dbutil.NewHandlers(),
	}
}

func (e *eventRepository) ClearRegisteredHandlers(topics ...string) {
	e.handlers.Clear(topics...)
}

func (e *eventRepository) RegisterEventsHandler(
	topic string, handler func(events []domain.Event),
) {
	e.handlers.Register(topic, handler)
}

func (e *eventRepository) Save(
	ctx context.Context, topic string, id string, events []domain.Event,
) error {
	messages, err := toWatermillMessages(events)
	if err != nil {
		return err
	}
	for _, msg := range messages {
		msg.SetContext(ctx)
		msg.Metadata.Set("id", id)
	}
	if err := e.publisher.Publish(topic, messages...); err != nil {
		return fmt.Errorf("failed to publish %s events of %s: %w", topic, id, err)
	}

	e.handlers.Dispatch(topic, events)
	return nil
}

func (e *eventRepository) Close() {
	if err := e.publisher.Close(); err != nil {
		log.WithError(err).Warn("failed to close event publisher")
	}
	if e.db != nil {
		//nolint:errcheck
		e.db.Close()
	}
}

func toWatermillMessages(events []domain.Event) ([]*message.Message, error) {
	messages := make([]*message.Message, 0, len(events))
	for _, event := range events {
		payload, err := dbutil.SerializeEvent(event)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize %s event: %w", event.GetType(), err)
		}
		msg := message.NewMessage(watermill.NewUUID(), payload)
		msg.Metadata.Set("type", event.GetType().String())
		messages = append(messages, msg)
	}
	return messages, nil
}
