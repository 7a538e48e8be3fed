// Package views remembers which posts the viewer has dwelt on. The set
// survives restarts in a local BadgerDB.
package views

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/Vanequal/ideafeed/pkg/config"
	"github.com/Vanequal/ideafeed/pkg/logging"
)

// keyPrefix namespaces viewed ids inside the database. Each viewer gets its
// own subspace below it.
const keyPrefix = "idea_views/"

// LocalViewer is the viewer of a single-user process such as the CLI
const LocalViewer = "local"

var viewedValue = []byte{1}

// Store is the persistent set of viewed post ids of one viewer
type Store struct {
	db     *badger.DB
	prefix string
	owner  bool
	logger *zap.Logger
}

// badgerLogger adapts zap to BadgerDB's Logger interface
type badgerLogger struct {
	s *zap.SugaredLogger
}

func (l badgerLogger) Errorf(format string, args ...interface{})   { l.s.Errorf(format, args...) }
func (l badgerLogger) Warningf(format string, args ...interface{}) { l.s.Warnf(format, args...) }
func (l badgerLogger) Infof(format string, args ...interface{})    { l.s.Debugf(format, args...) }
func (l badgerLogger) Debugf(format string, args ...interface{})   { l.s.Debugf(format, args...) }

// Open opens the viewed-ids database described by cfg
func Open(cfg *config.ViewsConfig) (*Store, error) {
	logger := logging.WithComponent("views")

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("views path is required for persistent storage")
		}
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create views directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path).WithSyncWrites(true)
	}
	opts = opts.
		WithNumVersionsToKeep(1).
		WithLogger(badgerLogger{s: logger.Sugar()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open views database: %w", err)
	}

	logger.Info("Views store opened", zap.Bool("in_memory", cfg.InMemory), zap.String("path", cfg.Path))
	return &Store{db: db, prefix: viewerPrefix(LocalViewer), owner: true, logger: logger}, nil
}

// OpenInMemory opens a non-persistent store
func OpenInMemory() (*Store, error) {
	return Open(&config.ViewsConfig{InMemory: true})
}

func viewerPrefix(viewer string) string {
	return keyPrefix + url.PathEscape(viewer) + "/"
}

// For returns the set of viewer, sharing the database of s. Closing the
// returned store is a no-op.
func (s *Store) For(viewer string) *Store {
	if viewer == "" {
		viewer = LocalViewer
	}
	return &Store{db: s.db, prefix: viewerPrefix(viewer), logger: s.logger}
}

func (s *Store) key(id int64) []byte {
	return []byte(s.prefix + strconv.FormatInt(id, 10))
}

// MarkViewed records id as viewed. Marking twice is a no-op.
func (s *Store) MarkViewed(id int64) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.key(id), viewedValue)
	})
	if err != nil {
		return fmt.Errorf("mark %d viewed: %w", id, err)
	}
	return nil
}

// IsViewed reports whether id was marked
func (s *Store) IsViewed(id int64) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(s.key(id))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read view of %d: %w", id, err)
	}
	return true, nil
}

// Viewed returns every viewed id
func (s *Store) Viewed() (map[int64]bool, error) {
	out := make(map[int64]bool)
	prefix := []byte(s.prefix)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			raw := string(it.Item().Key()[len(prefix):])
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				s.logger.Warn("Skipping malformed view key", zap.String("key", raw))
				continue
			}
			out[id] = true
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list viewed ids: %w", err)
	}
	return out, nil
}

// Close closes the database unless s was obtained through For
func (s *Store) Close() error {
	if !s.owner {
		return nil
	}
	return s.db.Close()
}
