package badgerdb

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/arkade-os/custodyd/internal/core/domain"
	"github.com/arkade-os/custodyd/internal/infrastructure/db/dbutil"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/timshannon/badgerhold/v4"
)

const eventStoreDir = "events"

type eventRecord struct {
	Topic     string
	Id        string
	Type      domain.EventType
	Timestamp int64
	Payload   []byte
}

type eventRepository struct {
	store    *badgerhold.Store
	handlers *dbutil.Handlers
}

func NewEventRepository(config ...interface{}) (domain.EventRepository, error) {
	baseDir, logger, err := parseConfig(config...)
	if err != nil {
		return nil, err
	}

	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, eventStoreDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open event store: %s", err)
	}

	return &eventRepository{store, dbutil.NewHandlers()}, nil
}

func (r *eventRepository) Save(
	ctx context.Context, topic, id string, events []domain.Event,
) error {
	records := make([]eventRecord, 0, len(events))
	for _, event := range events {
		payload, err := dbutil.SerializeEvent(event)
		if err != nil {
			return fmt.Errorf("failed to serialize %s event: %w", event.GetType(), err)
		}
		records = append(records, eventRecord{
			Topic:     topic,
			Id:        id,
			Type:      event.GetType(),
			Timestamp: event.GetTimestamp(),
			Payload:   payload,
		})
	}

	if err := withRetries(func() error {
		return r.store.Badger().Update(func(txn *badger.Txn) error {
			for _, record := range records {
				if err := r.store.TxInsert(txn, uuid.NewString(), &record); err != nil {
					return err
				}
			}
			return nil
		})
	}); err != nil {
		return fmt.Errorf("failed to save %s events of %s: %w", topic, id, err)
	}

	r.handlers.Dispatch(topic, events)
	return nil
}

func (r *eventRepository) RegisterEventsHandler(
	topic string, handler func(events []domain.Event),
) {
	r.handlers.Register(topic, handler)
}

func (r *eventRepository) ClearRegisteredHandlers(topics ...string) {
	r.handlers.Clear(topics...)
}

func (r *eventRepository) Close() {
	//nolint:errcheck
	r.store.Close()
}
