package main

import (
	"compress/gzip"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

func newRouter() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", router)
	return gzipMiddleware(rateLimit(mux))
}

func router(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/":
		showHelp(w)
	case r.URL.Path == "/health":
		healthCheckHandler(w, r)
	case r.URL.Path == "/search-address":
		SearchAddressHandler(w, r)
	case r.URL.Path == "/schedule" || strings.HasPrefix(r.URL.Path, "/schedule/"):
		WasteCollection(w, r)
	default:
		http.NotFound(w, r)
	}
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status": "ok"}`))
}

func gzipMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			gz := gzip.NewWriter(w)
			defer gz.Close()
			w.Header().Set("Content-Encoding", "gzip")
			next.ServeHTTP(gzipResponseWriter{Writer: gz, ResponseWriter: w}, r)
		} else {
			next.ServeHTTP(w, r)
		}
	})
}

type gzipResponseWriter struct {
	http.ResponseWriter
	*gzip.Writer
}

// Write sends the body through the gzip writer.
func (w gzipResponseWriter) Write(data []byte) (int, error) {
	return w.Writer.Write(data)
}

// Header calls the Header method on the embedded http.ResponseWriter.
func (w gzipResponseWriter) Header() http.Header {
	return w.ResponseWriter.Header()
}

// WriteHeader drops any Content-Length set by the handler, since it no longer
// matches the compressed body.
func (w gzipResponseWriter) WriteHeader(statusCode int) {
	w.ResponseWriter.Header().Del("Content-Length")
	w.ResponseWriter.WriteHeader(statusCode)
}

// visitor stores a rate limiter for each visitor and the last time they were seen.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

var visitors = make(map[string]*visitor)
var mu sync.Mutex

func init() {
	go cleanupVisitors()
}

// getVisitor returns the rate limiter for the current visitor.
func getVisitor(ip string) *rate.Limiter {
	mu.Lock()
	defer mu.Unlock()

	v, exists := visitors[ip]
	if !exists {
		// Every lookup drives a browser, so allow 10 requests per minute with a burst of 5.
		limiter := rate.NewLimiter(rate.Every(time.Minute/10), 5)
		visitors[ip] = &visitor{limiter, time.Now()}
		return limiter
	}

	v.lastSeen = time.Now()
	return v.limiter
}

// cleanupVisitors periodically removes old entries from the visitors map.
func cleanupVisitors() {
	for {
		time.Sleep(time.Minute)

		mu.Lock()
		for ip, v := range visitors {
			if time.Since(v.lastSeen) > 3*time.Minute {
				delete(visitors, ip)
			}
		}
		mu.Unlock()
	}
}

// rateLimit is a middleware that limits requests per IP address.
func rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		// X-Forwarded-For is set by the load balancer; fall back to RemoteAddr locally.
		ip := r.Header.Get("X-Forwarded-For")
		if ip == "" {
			var err error
			ip, _, err = net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				log.Printf("could not parse RemoteAddr: %v", err)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
		} else {
			// X-Forwarded-For can be a comma-separated list of IPs. The first one is the client's.
			ips := strings.Split(ip, ",")
			ip = strings.TrimSpace(ips[0])
		}

		limiter := getVisitor(ip)
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}
