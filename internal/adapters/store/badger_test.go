package store

import (
	"relaybot/internal/core/domain"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return &DB{db: db}
}

func openTestMap(t *testing.T, db *DB, table string) *Map {
	t.Helper()

	m := NewMap(db)
	require.NoError(t, m.Init(table))
	require.True(t, m.IsOK())

	return m
}

func TestMap_SetGetDelete(t *testing.T) {
	req := require.New(t)
	m := openTestMap(t, openTestDB(t), "lastseen")

	_, found := m.Get("alice")
	req.False(found)

	req.NoError(m.Set("alice", "1700000000"))
	value, found := m.Get("alice")
	req.True(found)
	req.Equal("1700000000", value)

	req.NoError(m.Set("alice", "1700000001"))
	value, _ = m.Get("alice")
	req.Equal("1700000001", value)

	req.True(m.Delete("alice"))
	req.False(m.Delete("alice"))
	_, found = m.Get("alice")
	req.False(found)
}

func TestMap_TablesAreIsolated(t *testing.T) {
	db := openTestDB(t)
	a := openTestMap(t, db, "rs")
	b := openTestMap(t, db, "rss")

	require.NoError(t, a.Set("sx", "from a"))
	require.NoError(t, b.Set("x", "from b"))

	var keys []string
	b.ForEach(func(r domain.Record) bool {
		keys = append(keys, r.Key)
		return true
	})
	assert.Equal(t, []string{"x"}, keys)

	_, found := a.Get("x")
	assert.False(t, found)
}

func TestMap_Find(t *testing.T) {
	m := openTestMap(t, openTestDB(t), "nick2jid")
	for k, v := range map[string]string{
		"alice":   "alice@example.org",
		"Alina":   "alina@example.org",
		"bob":     "robert@example.org",
		"charlie": "charlie@other.net",
	} {
		require.NoError(t, m.Set(k, v))
	}

	tests := []struct {
		name    string
		pattern string
		mode    domain.FindMode
		want    []string
	}{
		{name: "keys case insensitive, ordered", pattern: "^ali", mode: domain.FindKeys, want: []string{"Alina", "alice"}},
		{name: "values", pattern: "robert", mode: domain.FindValues, want: []string{"bob"}},
		{name: "keys do not match values", pattern: "robert", mode: domain.FindKeys, want: nil},
		{name: "all", pattern: "other|^bob", mode: domain.FindAll, want: []string{"bob", "charlie"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			found, err := m.Find(tc.pattern, tc.mode)
			require.NoError(t, err)

			var keys []string
			for _, r := range found {
				keys = append(keys, r.Key)
			}
			assert.Equal(t, tc.want, keys)
		})
	}
}

func TestMap_FindInvalidPattern(t *testing.T) {
	m := openTestMap(t, openTestDB(t), "quotes")

	_, err := m.Find("([", domain.FindAll)

	require.ErrorIs(t, err, domain.ErrInvalidPattern)
}

func TestMap_ForEachStopsEarlyAndAllowsWrites(t *testing.T) {
	m := openTestMap(t, openTestDB(t), "rss")
	require.NoError(t, m.Set("a", "1"))
	require.NoError(t, m.Set("b", "2"))
	require.NoError(t, m.Set("c", "3"))

	var visited []string
	m.ForEach(func(r domain.Record) bool {
		visited = append(visited, r.Key)
		require.NoError(t, m.Set(r.Key, r.Value+"0"))
		return r.Key != "b"
	})

	assert.Equal(t, []string{"a", "b"}, visited)
	value, _ := m.Get("a")
	assert.Equal(t, "10", value)
	value, _ = m.Get("c")
	assert.Equal(t, "3", value)
}

func TestMap_NotLive(t *testing.T) {
	m := NewMap(nil)

	err := m.Init("lastseen")
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.False(t, m.IsOK())

	_, found := m.Get("a")
	assert.False(t, found)
	require.ErrorIs(t, m.Set("a", "b"), domain.ErrStoreUnavailable)
	assert.False(t, m.Delete("a"))
	_, err = m.Find("a", domain.FindAll)
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)

	called := false
	m.ForEach(func(domain.Record) bool {
		called = true
		return true
	})
	assert.False(t, called)
}

func TestMap_ClosedDatabase(t *testing.T) {
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	wrapped := &DB{db: db}

	m := openTestMap(t, wrapped, "quotes")
	require.NoError(t, wrapped.Close())

	assert.False(t, m.IsOK())
	require.ErrorIs(t, m.Set("1", "quote"), domain.ErrStoreUnavailable)
}

func TestMap_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(dir)
	require.NoError(t, err)
	m := openTestMap(t, db, "quotes")
	require.NoError(t, m.Set("lastid", "3"))
	require.NoError(t, db.Close())

	db, err = Open(dir)
	require.NoError(t, err)
	defer db.Close()

	m = openTestMap(t, db, "quotes")
	value, found := m.Get("lastid")
	assert.True(t, found)
	assert.Equal(t, "3", value)
}
