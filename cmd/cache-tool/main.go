package main

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/joho/godotenv"
	_ "github.com/mattn/go-sqlite3"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: cache-tool <stats|clear|purge-expired>")
		os.Exit(1)
	}
	command := os.Args[1]

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("Failed to load .env file: %v", err)
	}

	if os.Getenv("APP_ENV") == "development" || os.Getenv("APP_ENV") == "" {
		sqliteCommand(command)
		return
	}
	memcachedCommand(command)
}

func sqliteCommand(command string) {
	path := os.Getenv("SQLITE_PATH")
	if path == "" {
		path = "./rydewaste.db"
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		log.Fatalf("Failed to open SQLite cache %s: %v", path, err)
	}
	defer db.Close()

	switch command {
	case "stats":
		var total, expired int
		now := time.Now().Unix()
		err := db.QueryRow("SELECT COUNT(*), COALESCE(SUM(CASE WHEN expiration < ? THEN 1 ELSE 0 END), 0) FROM cache", now).Scan(&total, &expired)
		if err != nil {
			log.Fatalf("Failed to count cache records: %v", err)
		}
		fmt.Printf("Cache '%s' contains %d records (%d expired).\n", path, total, expired)
	case "clear":
		fmt.Printf("Clearing all records from cache '%s'...\n", path)
		res, err := db.Exec("DELETE FROM cache")
		if err != nil {
			log.Fatalf("Failed to clear cache: %v", err)
		}
		n, _ := res.RowsAffected()
		fmt.Printf("Successfully cleared %d records from the cache.\n", n)
	case "purge-expired":
		res, err := db.Exec("DELETE FROM cache WHERE expiration < ?", time.Now().Unix())
		if err != nil {
			log.Fatalf("Failed to purge expired records: %v", err)
		}
		n, _ := res.RowsAffected()
		fmt.Printf("Purged %d expired records.\n", n)
	default:
		fmt.Printf("Unknown command: %s. Please use 'stats', 'clear' or 'purge-expired'.\n", command)
		os.Exit(1)
	}
}

// memcachedCommand supports only "clear"; memcached has no key listing and
// expires entries on its own.
func memcachedCommand(command string) {
	endpoint := os.Getenv("MEMCACHED_DISCOVERY_ENDPOINT")
	if endpoint == "" {
		endpoint = "localhost:11211"
	}

	client := memcache.New(endpoint)
	if err := client.Ping(); err != nil {
		log.Fatalf("Failed to reach memcached at %s: %v", endpoint, err)
	}

	switch command {
	case "clear":
		if err := client.FlushAll(); err != nil {
			log.Fatalf("Failed to flush memcached: %v", err)
		}
		fmt.Printf("Flushed memcached at %s.\n", endpoint)
	case "stats", "purge-expired":
		fmt.Printf("'%s' is not supported for memcached; only 'clear' is.\n", command)
		os.Exit(1)
	default:
		fmt.Printf("Unknown command: %s. Please use 'stats', 'clear' or 'purge-expired'.\n", command)
		os.Exit(1)
	}
}
