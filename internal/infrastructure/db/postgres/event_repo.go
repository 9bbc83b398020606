package pgdb

import (
	"database/sql"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	watermillsql "github.com/ThreeDotsLabs/watermill-sql/v3/pkg/sql"
	"github.com/arkade-os/custodyd/internal/core/domain"
	watermilldb "github.com/arkade-os/custodyd/internal/infrastructure/db/watermill"
)

// NewEventRepository returns an event store that appends events to the
// watermill_<topic> tables of the given postgres db.
func NewEventRepository(config ...interface{}) (domain.EventRepository, error) {
	if len(config) != 1 {
		return nil, fmt.Errorf("invalid config: expected 1 argument, got %d", len(config))
	}
	db, ok := config[0].(*sql.DB)
	if !ok {
		return nil, fmt.Errorf(
			"cannot open event repository: expected *sql.DB but got %T", config[0],
		)
	}

	publisher, err := watermillsql.NewPublisher(
		watermillsql.BeginnerFromStdSQL(db),
		watermillsql.PublisherConfig{
			SchemaAdapter:        watermillsql.DefaultPostgreSQLSchema{},
			AutoInitializeSchema: true,
		},
		watermill.NopLogger{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create watermill publisher: %w", err)
	}

	return watermilldb.NewWatermillEventRepository(publisher, db), nil
}
