package cache

import (
	"database/sql"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// CacheProvider is an interface for a cache provider.
// It stores and retrieves []byte values, which represent HTTP responses.
// Entries are scoped to a named store: one store corresponds to one
// cache version, and dropping a store removes all of its entries.
// Stores spring into existence on first write.
//
// Implementations must be thread-safe!
type CacheProvider interface {
	// Get returns the cached response for the given key, if it exists.
	// It also returns a boolean indicating whether retrieval was successful.
	Get(store, key string) ([]byte, bool, error)
	// Put stores the given response under the given key.
	Put(store, key string, bytes []byte) error
	// Has checks if the specified key exists in the store.
	Has(store, key string) bool
	// Purge removes the cache entry for the given key.
	// It is a utility method that is not used by the worker.
	Purge(store, key string)
	// Stores returns the names of all stores that contain entries.
	Stores() ([]string, error)
	// Drop removes a store and all of its entries.
	Drop(store string) error
}

type memCacheEntry struct {
	receivedAt time.Time
	bytes      []byte
}

type MemCache struct {
	mutex *sync.RWMutex
	db    map[string]map[string]memCacheEntry
}

func NewMemCache() MemCache {
	return MemCache{
		mutex: &sync.RWMutex{},
		db:    make(map[string]map[string]memCacheEntry),
	}
}

func (m MemCache) Get(store, key string) ([]byte, bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	entry, ok := m.db[store][key]
	if !ok {
		return nil, false, nil
	}
	return entry.bytes, true, nil
}

func (m MemCache) Put(store, key string, bytes []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.db[store] == nil {
		m.db[store] = make(map[string]memCacheEntry)
	}
	m.db[store][key] = memCacheEntry{time.Now(), bytes}
	return nil
}

func (m MemCache) Has(store, key string) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	_, ok := m.db[store][key]
	return ok
}

func (m MemCache) Purge(store, key string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.db[store], key)
}

func (m MemCache) Stores() ([]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	stores := make([]string, 0, len(m.db))
	for store := range m.db {
		stores = append(stores, store)
	}
	return stores, nil
}

func (m MemCache) Drop(store string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.db, store)
	return nil
}

type SQLiteCache struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

// NewSQLiteCache creates a new cache with the given filename as the db.
// If file name is empty, a new in-memory db is opened.
func NewSQLiteCache(filename string) SQLiteCache {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		panic(err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS cache (
		store TEXT,
		key TEXT,
		received_at INTEGER,
		bytes BLOB,
		PRIMARY KEY (store, key)
	)`)
	if err != nil {
		panic(err)
	}
	_, err = db.Exec("CREATE INDEX IF NOT EXISTS store_idx ON cache (store)")
	if err != nil {
		panic(err)
	}
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		panic(err)
	}
	return SQLiteCache{
		db:         db,
		writeMutex: &sync.Mutex{},
	}
}

func (s SQLiteCache) Get(store, key string) ([]byte, bool, error) {
	var bytes []byte
	err := s.db.QueryRow(
		"SELECT bytes FROM cache WHERE store = ? AND key = ?",
		store, key,
	).Scan(&bytes)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return bytes, true, nil
}

func (s SQLiteCache) Put(store, key string, bytes []byte) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO cache (store, key, received_at, bytes) VALUES (?, ?, ?, ?)",
		store, key, time.Now().Unix(), bytes)
	return err
}

func (s SQLiteCache) Has(store, key string) bool {
	var one int
	err := s.db.QueryRow(
		"SELECT 1 FROM cache WHERE store = ? AND key = ?",
		store, key,
	).Scan(&one)
	return err == nil
}

func (s SQLiteCache) Purge(store, key string) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	s.db.Exec("DELETE FROM cache WHERE store = ? AND key = ?", store, key)
}

func (s SQLiteCache) Stores() ([]string, error) {
	stores := make([]string, 0)
	rows, err := s.db.Query("SELECT DISTINCT store FROM cache")
	if err != nil {
		return stores, err
	}
	defer rows.Close()
	for rows.Next() {
		var store string
		if err := rows.Scan(&store); err != nil {
			return stores, err
		}
		stores = append(stores, store)
	}
	return stores, nil
}

func (s SQLiteCache) Drop(store string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec("DELETE FROM cache WHERE store = ?", store)
	return err
}
