package store

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"relaybot/internal/core/domain"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// tableSeparator terminates the table name inside a stored key.
const tableSeparator = 0x00

// DB is the single badger database every persistent table lives in.
type DB struct {
	db *badger.DB
}

// Open opens or creates the database directory at path.
func Open(path string) (*DB, error) {
	opts := badger.DefaultOptions(path).
		WithLogger(badgerLogger{l: log.With().Str("component", "badger").Logger()}).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}

	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *DB) handle() *badger.DB {
	if d == nil {
		return nil
	}
	return d.db
}

// Map is a namespaced view over DB. A Map created on a nil DB never becomes
// live, which lets handlers degrade instead of failing to start.
type Map struct {
	db     *DB
	table  string
	prefix []byte
	live   bool
	l      zerolog.Logger
}

func NewMap(db *DB) *Map {
	return &Map{db: db, l: log.Logger}
}

func (m *Map) Init(table string) error {
	m.l = log.With().Str("table", table).Logger()
	m.live = false

	if table == "" {
		return errors.New("empty table name")
	}

	db := m.db.handle()
	if db == nil || db.IsClosed() {
		m.l.Warn().Msg("database not available, table disabled")
		return domain.ErrStoreUnavailable
	}

	m.table = table
	m.prefix = append([]byte(table), tableSeparator)
	m.live = true

	return nil
}

func (m *Map) IsOK() bool {
	db := m.db.handle()
	return m.live && db != nil && !db.IsClosed()
}

func (m *Map) key(k string) []byte {
	key := make([]byte, 0, len(m.prefix)+len(k))
	key = append(key, m.prefix...)
	return append(key, k...)
}

func (m *Map) Get(key string) (string, bool) {
	if !m.IsOK() {
		return "", false
	}

	var value string
	err := m.db.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(m.key(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			value = string(val)
			return nil
		})
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			m.l.Error().Err(err).Str("key", key).Msg("get failed")
		}
		return "", false
	}

	return value, true
}

func (m *Map) Set(key, value string) error {
	if !m.IsOK() {
		return domain.ErrStoreUnavailable
	}

	err := m.db.db.Update(func(txn *badger.Txn) error {
		return txn.Set(m.key(key), []byte(value))
	})
	if err != nil {
		m.l.Error().Err(err).Str("key", key).Msg("set failed")
		return fmt.Errorf("set %s/%s: %w", m.table, key, err)
	}

	return nil
}

func (m *Map) Delete(key string) bool {
	if !m.IsOK() {
		return false
	}

	err := m.db.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(m.key(key)); err != nil {
			return err
		}
		return txn.Delete(m.key(key))
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			m.l.Error().Err(err).Str("key", key).Msg("delete failed")
		}
		return false
	}

	return true
}

func (m *Map) Find(pattern string, mode domain.FindMode) ([]domain.Record, error) {
	if !m.IsOK() {
		return nil, domain.ErrStoreUnavailable
	}

	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidPattern, err.Error())
	}

	var found []domain.Record
	err = m.scan(func(r domain.Record) bool {
		var match bool
		switch mode {
		case domain.FindKeys:
			match = re.MatchString(r.Key)
		case domain.FindValues:
			match = re.MatchString(r.Value)
		default:
			match = re.MatchString(r.Key) || re.MatchString(r.Value)
		}
		if match {
			found = append(found, r)
		}
		return true
	})

	return found, err
}

func (m *Map) ForEach(visit func(domain.Record) bool) {
	if !m.IsOK() {
		return
	}

	var records []domain.Record
	err := m.scan(func(r domain.Record) bool {
		records = append(records, r)
		return true
	})
	if err != nil {
		m.l.Error().Err(err).Msg("scan failed")
		return
	}

	// visit runs outside the read transaction so it may write to the table.
	for _, r := range records {
		if !visit(r) {
			return
		}
	}
}

func (m *Map) scan(fn func(domain.Record) bool) error {
	return m.db.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(m.prefix); it.ValidForPrefix(m.prefix); it.Next() {
			item := it.Item()
			key := bytes.TrimPrefix(item.KeyCopy(nil), m.prefix)
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if !fn(domain.Record{Key: string(key), Value: string(val)}) {
				return nil
			}
		}
		return nil
	})
}

type badgerLogger struct {
	l zerolog.Logger
}

func (b badgerLogger) Errorf(format string, args ...interface{}) {
	b.l.Error().Msgf(strings.TrimSpace(format), args...)
}

func (b badgerLogger) Warningf(format string, args ...interface{}) {
	b.l.Warn().Msgf(strings.TrimSpace(format), args...)
}

func (b badgerLogger) Infof(format string, args ...interface{}) {
	b.l.Info().Msgf(strings.TrimSpace(format), args...)
}

func (b badgerLogger) Debugf(format string, args ...interface{}) {
	b.l.Debug().Msgf(strings.TrimSpace(format), args...)
}
