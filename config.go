package main

import (
	"errors"
	"io/fs"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultSiteURL       = "https://www.ryde.nsw.gov.uk/Information-Pages/My-area"
	defaultChromePath    = "/usr/bin/chromium"
	defaultUserAgent     = `Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36`
	defaultDebugHTMLPath = "/tmp/ryde_result.html"
	defaultSqlitePath    = "./rydewaste.db"
	defaultPort          = "8080"
)

// Config is read from the environment once at startup.
type Config struct {
	SiteURL       string
	Address       string
	ChromePath    string
	UserAgent     string
	Timeout       time.Duration
	ResultsWait   time.Duration
	DebugHTMLPath string
	CacheExpiry   time.Duration
	AppEnv        string
	SqlitePath    string
	MemcachedAddr string
	Port          string
}

var appConfig = defaultConfig()

func defaultConfig() *Config {
	return &Config{
		SiteURL:       defaultSiteURL,
		ChromePath:    defaultChromePath,
		UserAgent:     defaultUserAgent,
		Timeout:       60 * time.Second,
		ResultsWait:   8 * time.Second,
		DebugHTMLPath: defaultDebugHTMLPath,
		CacheExpiry:   259200 * time.Second, // 3 days
		AppEnv:        "development",
		SqlitePath:    defaultSqlitePath,
		MemcachedAddr: "localhost:11211",
		Port:          defaultPort,
	}
}

// loadConfig applies a .env file, if present, and then the process environment
// on top of the defaults.
func loadConfig() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("Failed to load .env file: %v", err)
	}

	cfg := defaultConfig()
	envString(&cfg.SiteURL, "RYDE_URL")
	envString(&cfg.Address, "RYDE_ADDRESS")
	envString(&cfg.ChromePath, "CHROME_PATH")
	envString(&cfg.UserAgent, "USER_AGENT")
	envSeconds(&cfg.Timeout, "SCRAPE_TIMEOUT_SECONDS")
	envSeconds(&cfg.ResultsWait, "RESULTS_WAIT_SECONDS")
	envString(&cfg.DebugHTMLPath, "DEBUG_HTML_PATH")
	envSeconds(&cfg.CacheExpiry, "CACHE_EXPIRY_SECONDS")
	envString(&cfg.AppEnv, "APP_ENV")
	envString(&cfg.SqlitePath, "SQLITE_PATH")
	envString(&cfg.MemcachedAddr, "MEMCACHED_DISCOVERY_ENDPOINT")
	envString(&cfg.Port, "PORT")
	return cfg
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// envSeconds keeps the default when the variable is unset, non-numeric or not positive.
func envSeconds(dst *time.Duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	seconds, err := strconv.Atoi(v)
	if err != nil || seconds <= 0 {
		log.Printf("Ignoring %s=%q: expected a positive number of seconds", key, v)
		return
	}
	*dst = time.Duration(seconds) * time.Second
}
