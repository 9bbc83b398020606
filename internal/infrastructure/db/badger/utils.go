package badgerdb

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/timshannon/badgerhold/v4"
	log "github.com/sirupsen/logrus"
)

const (
	maxRetries = 5
	retryDelay = 100 * time.Millisecond
	gcInterval = 30 * time.Minute
)

func createDB(dbDir string, logger badger.Logger) (*badgerhold.Store, error) {
	isInMemory := len(dbDir) <= 0

	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger

	if isInMemory {
		opts.InMemory = true
	} else {
		opts.Compression = options.ZSTD
	}

	db, err := badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
	if err != nil {
		return nil, err
	}

	if !isInMemory {
		go runValueLogGC(db)
	}

	return db, nil
}

func runValueLogGC(store *badgerhold.Store) {
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for range ticker.C {
		if store.Badger().IsClosed() {
			return
		}
		if err := store.Badger().RunValueLogGC(0.5); err != nil &&
			!errors.Is(err, badger.ErrNoRewrite) {
			log.WithError(err).Debug("badger value log gc")
		}
	}
}

// parseConfig reads the (baseDir, logger) pair every badger repository expects.
func parseConfig(config ...interface{}) (string, badger.Logger, error) {
	if len(config) != 2 {
		return "", nil, fmt.Errorf("invalid config: expected 2 arguments, got %d", len(config))
	}
	baseDir, ok := config[0].(string)
	if !ok {
		return "", nil, fmt.Errorf("invalid base directory")
	}
	var logger badger.Logger
	if config[1] != nil {
		logger, ok = config[1].(badger.Logger)
		if !ok {
			return "", nil, fmt.Errorf("invalid logger")
		}
	}
	return baseDir, logger, nil
}

// withRetries runs fn again while badger reports a transaction conflict.
func withRetries(fn func() error) error {
	err := fn()
	for attempts := 1; errors.Is(err, badger.ErrConflict) && attempts <= maxRetries; attempts++ {
		time.Sleep(retryDelay)
		err = fn()
	}
	return err
}
