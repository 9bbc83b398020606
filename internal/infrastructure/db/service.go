package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/arkade-os/custodyd/internal/core/domain"
	"github.com/arkade-os/custodyd/internal/core/ports"
	badgerdb "github.com/arkade-os/custodyd/internal/infrastructure/db/badger"
	pgdb "github.com/arkade-os/custodyd/internal/infrastructure/db/postgres"
	sqlitedb "github.com/arkade-os/custodyd/internal/infrastructure/db/sqlite"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	log "github.com/sirupsen/logrus"
)

//go:embed sqlite/migration/*
var migrations embed.FS

//go:embed postgres/migration/*
var pgMigration embed.FS

const sqliteDbFile = "sqlite.db"

// ledgerRepository is what every data store type provides: all the custody
// repositories backed by one db, so that a change set is committed atomically.
type ledgerRepository interface {
	domain.OfferRepository
	domain.VaultRepository
	domain.CheckoutRepository
	domain.CustodianUpdateRepository
	domain.AuctionRepository
	Commit(ctx context.Context, changes domain.Changeset) error
}

var (
	eventStoreTypes = map[string]func(...interface{}) (domain.EventRepository, error){
		"badger":   badgerdb.NewEventRepository,
		"postgres": pgdb.NewEventRepository,
	}
	ledgerStoreTypes = map[string]func(...interface{}) (ledgerRepository, error){
		"badger": func(config ...interface{}) (ledgerRepository, error) {
			return badgerdb.NewLedgerRepository(config...)
		},
		"sqlite": func(config ...interface{}) (ledgerRepository, error) {
			return sqlitedb.NewLedgerRepository(config...)
		},
		"postgres": func(config ...interface{}) (ledgerRepository, error) {
			return pgdb.NewLedgerRepository(config...)
		},
	}
)

type ServiceConfig struct {
	EventStoreType string
	DataStoreType  string

	EventStoreConfig []interface{}
	DataStoreConfig  []interface{}
}

type service struct {
	eventStore  domain.EventRepository
	ledgerStore ledgerRepository
}

func NewService(config ServiceConfig) (ports.RepoManager, error) {
	eventStoreFactory, ok := eventStoreTypes[config.EventStoreType]
	if !ok {
		return nil, fmt.Errorf("event store type not supported")
	}
	ledgerStoreFactory, ok := ledgerStoreTypes[config.DataStoreType]
	if !ok {
		return nil, fmt.Errorf("invalid data store type: %s", config.DataStoreType)
	}

	var eventStore domain.EventRepository
	var ledgerStore ledgerRepository
	var err error

	switch config.EventStoreType {
	case "badger":
		eventStore, err = eventStoreFactory(config.EventStoreConfig...)
		if err != nil {
			return nil, fmt.Errorf("failed to open event store: %s", err)
		}
	case "postgres":
		db, err := openPostgres(config.EventStoreConfig)
		if err != nil {
			return nil, err
		}
		eventStore, err = eventStoreFactory(db)
		if err != nil {
			return nil, fmt.Errorf("failed to open event store: %s", err)
		}
	default:
		return nil, fmt.Errorf("unknown event store db type")
	}

	switch config.DataStoreType {
	case "badger":
		ledgerStore, err = ledgerStoreFactory(config.DataStoreConfig...)
		if err != nil {
			eventStore.Close()
			return nil, fmt.Errorf("failed to open ledger store: %s", err)
		}
	case "sqlite":
		if len(config.DataStoreConfig) != 1 {
			eventStore.Close()
			return nil, fmt.Errorf("invalid data store config")
		}
		baseDir, ok := config.DataStoreConfig[0].(string)
		if !ok {
			eventStore.Close()
			return nil, fmt.Errorf("invalid base directory")
		}

		dbFile := ":memory:"
		if baseDir != "" {
			dbFile = filepath.Join(baseDir, sqliteDbFile)
		}
		db, err := sqlitedb.OpenDb(dbFile)
		if err != nil {
			eventStore.Close()
			return nil, fmt.Errorf("failed to open db: %s", err)
		}

		driver, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
		if err != nil {
			eventStore.Close()
			return nil, fmt.Errorf("failed to init driver: %s", err)
		}
		if err := runMigrations(migrations, "sqlite/migration", "sqlite", driver); err != nil {
			eventStore.Close()
			return nil, err
		}

		ledgerStore, err = ledgerStoreFactory(db)
		if err != nil {
			eventStore.Close()
			return nil, fmt.Errorf("failed to open ledger store: %s", err)
		}
	case "postgres":
		db, err := openPostgres(config.DataStoreConfig)
		if err != nil {
			eventStore.Close()
			return nil, err
		}

		driver, err := migratepg.WithInstance(db, &migratepg.Config{})
		if err != nil {
			eventStore.Close()
			return nil, fmt.Errorf("failed to init postgres migration driver: %s", err)
		}
		if err := runMigrations(pgMigration, "postgres/migration", "postgres", driver); err != nil {
			eventStore.Close()
			return nil, err
		}

		ledgerStore, err = ledgerStoreFactory(db)
		if err != nil {
			eventStore.Close()
			return nil, fmt.Errorf("failed to open ledger store: %s", err)
		}
	}

	return &service{
		eventStore:  eventStore,
		ledgerStore: ledgerStore,
	}, nil
}

func (s *service) Events() domain.EventRepository {
	return s.eventStore
}

func (s *service) Offers() domain.OfferRepository {
	return s.ledgerStore
}

func (s *service) Vaults() domain.VaultRepository {
	return s.ledgerStore
}

func (s *service) CheckoutRequests() domain.CheckoutRepository {
	return s.ledgerStore
}

func (s *service) CustodianUpdates() domain.CustodianUpdateRepository {
	return s.ledgerStore
}

func (s *service) Auctions() domain.AuctionRepository {
	return s.ledgerStore
}

func (s *service) Commit(ctx context.Context, changes domain.Changeset) error {
	return s.ledgerStore.Commit(ctx, changes)
}

func (s *service) Close() {
	s.eventStore.Close()
	s.ledgerStore.Close()
}

// openPostgres expects a (dsn, autoCreate) config pair.
func openPostgres(config []interface{}) (*sql.DB, error) {
	if len(config) != 2 {
		return nil, fmt.Errorf("invalid data store config for postgres")
	}
	dsn, ok := config[0].(string)
	if !ok {
		return nil, fmt.Errorf("invalid DSN for postgres")
	}
	autoCreate, ok := config[1].(bool)
	if !ok {
		return nil, fmt.Errorf("invalid autocreate flag for postgres")
	}

	db, err := pgdb.OpenDb(dsn, autoCreate)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres db: %s", err)
	}
	return db, nil
}

func runMigrations(fs embed.FS, dir, dbName string, driver database.Driver) error {
	source, err := iofs.New(fs, dir)
	if err != nil {
		return fmt.Errorf("failed to embed migrations: %s", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, dbName, driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %s", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %s", err)
	}
	log.Debugf("%s migrations applied", dbName)
	return nil
}
