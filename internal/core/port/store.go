package port

import "relaybot/internal/core/domain"

type PersistentMap interface {
	// Init opens the named table. On failure the map stays non-live.
	Init(table string) error
	// IsOK reports whether the table is usable.
	IsOK() bool
	Get(key string) (string, bool)
	Set(key, value string) error
	// Delete removes key and reports whether it existed.
	Delete(key string) bool
	// Find returns records matching a case-insensitive regular expression, in key order.
	Find(pattern string, mode domain.FindMode) ([]domain.Record, error)
	// ForEach visits every record in key order until visit returns false.
	ForEach(visit func(domain.Record) bool)
}
