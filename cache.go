package main

import (
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	_ "github.com/mattn/go-sqlite3"

	"rydewaste/schedule"
)

// Cache interface defines the methods for a cache
type Cache interface {
	Get(key string) (*schedule.Result, error)
	Set(key string, result *schedule.Result, expiration time.Duration) error
	Close() error
}

// cacheKey normalizes an address so that spacing and case differences share
// an entry. The digest keeps keys within memcached's length and charset rules.
func cacheKey(address string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(address), " "))
	return fmt.Sprintf("ryde:%x", sha256.Sum256([]byte(normalized)))
}

// SqliteCache is a cache implementation using SQLite
type SqliteCache struct {
	db *sql.DB
}

// NewSqliteCache creates a new SqliteCache
func NewSqliteCache(path string) (*SqliteCache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	// Create table if it doesn't exist
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS cache (
			key TEXT PRIMARY KEY,
			value TEXT,
			expiration INTEGER
		)
	`)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &SqliteCache{db: db}, nil
}

// Get retrieves a value from the SQLite cache. A miss returns nil, nil.
func (c *SqliteCache) Get(key string) (*schedule.Result, error) {
	row := c.db.QueryRow("SELECT value, expiration FROM cache WHERE key = ?", key)

	var value string
	var expiration int64
	err := row.Scan(&value, &expiration)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if time.Now().Unix() > expiration {
		// Cache expired
		if _, err := c.db.Exec("DELETE FROM cache WHERE key = ?", key); err != nil {
			log.Printf("Failed to delete expired cache entry for key %s: %v", key, err)
		}
		return nil, nil
	}

	var result schedule.Result
	if err := json.Unmarshal([]byte(value), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Set adds a value to the SQLite cache
func (c *SqliteCache) Set(key string, result *schedule.Result, expiration time.Duration) error {
	value, err := json.Marshal(result)
	if err != nil {
		return err
	}

	expirationTime := time.Now().Add(expiration).Unix()

	_, err = c.db.Exec(
		"INSERT OR REPLACE INTO cache (key, value, expiration) VALUES (?, ?, ?)",
		key, string(value), expirationTime,
	)
	return err
}

// Close closes the SQLite database connection
func (c *SqliteCache) Close() error {
	return c.db.Close()
}

// MemcachedCache is a cache implementation using Memcached
type MemcachedCache struct {
	client *memcache.Client
}

// NewMemcachedCache creates a new MemcachedCache
func NewMemcachedCache(endpoint string) (*MemcachedCache, error) {
	client := memcache.New(endpoint)
	if err := client.Ping(); err != nil {
		return nil, err
	}

	return &MemcachedCache{client: client}, nil
}

// Get retrieves a value from the Memcached cache
func (c *MemcachedCache) Get(key string) (*schedule.Result, error) {
	item, err := c.client.Get(key)
	if err == memcache.ErrCacheMiss {
		return nil, nil // Cache miss
	} else if err != nil {
		return nil, err
	}

	var result schedule.Result
	if err := json.Unmarshal(item.Value, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Set adds a value to the Memcached cache
func (c *MemcachedCache) Set(key string, result *schedule.Result, expiration time.Duration) error {
	val, err := json.Marshal(result)
	if err != nil {
		return err
	}

	return c.client.Set(&memcache.Item{
		Key:        key,
		Value:      val,
		Expiration: int32(expiration.Seconds()),
	})
}

// Close is a no-op for the memcache client but is here to satisfy the interface
func (c *MemcachedCache) Close() error {
	return nil
}

// NewCache is a factory function that returns the appropriate cache implementation
// based on the environment
func NewCache(cfg *Config) (Cache, error) {
	if cfg.AppEnv == "development" {
		log.Println("Using SQLite cache for local development")
		return NewSqliteCache(cfg.SqlitePath)
	}

	log.Println("Using Memcached cache for cloud environment")
	return NewMemcachedCache(cfg.MemcachedAddr)
}
