package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"rydewaste/schedule"
)

const banner = "============================================================"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

// run is the whole CLI. It returns the process exit code: 0 when at least one
// collection date was found, 1 otherwise.
func run(args []string, stdout io.Writer) int {
	appConfig = loadConfig()

	fs := flag.NewFlagSet("rydewaste", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: rydewaste [-json] [-debug] <address>")
		fmt.Fprintln(fs.Output(), "       rydewaste -serve [-port N]")
		fmt.Fprintln(fs.Output(), "Fetch waste collection dates from the City of Ryde website.")
		fs.PrintDefaults()
	}
	jsonOutput := fs.Bool("json", false, "Output results as JSON")
	debugging := fs.Bool("debug", false, "Save page source to "+appConfig.DebugHTMLPath+" for debugging")
	serve := fs.Bool("serve", false, "Run the HTTP API instead of a single lookup")
	port := fs.String("port", appConfig.Port, "Port for -serve")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	var cancel context.CancelFunc
	allocatorContext, cancel = newAllocator(appConfig)
	defer cancel()

	if *serve {
		appConfig.Port = *port
		if err := startServer(); err != nil {
			log.Printf("http.ListenAndServe: %v", err)
			return 1
		}
		return 0
	}

	address := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if address == "" {
		address = appConfig.Address
	}
	if address == "" {
		fs.Usage()
		return 1
	}

	return lookup(context.Background(), address, *jsonOutput, *debugging, stdout)
}

func lookup(ctx context.Context, address string, jsonOutput, debugging bool, stdout io.Writer) int {
	html, err := fetchScheduleHTML(ctx, address, debugging)
	if err != nil {
		log.Printf("ERROR: %v", err)
		return 1
	}

	if debugging {
		if err := os.WriteFile(appConfig.DebugHTMLPath, []byte(html), 0644); err != nil {
			log.Printf("Failed to save page source: %v", err)
		} else {
			log.Printf("Page source saved to %s", appConfig.DebugHTMLPath)
		}
	}

	log.Println("Extracting waste collection dates...")
	result, err := schedule.Extract(html, schedule.DefaultCategories)
	if err != nil {
		log.Printf("ERROR: %v", err)
		return 1
	}

	var summary *pageSummary
	if debugging || result.Empty() {
		summary, err = inspectPage(html)
		if err != nil {
			log.Printf("Failed to inspect page: %v", err)
		} else if debugging {
			log.Printf("Page title: %q, headings: %q", summary.Title, summary.Headings)
		}
	}

	if result.Empty() {
		log.Println("No waste collection dates found. This could mean:")
		for _, hint := range notFoundHints(summary) {
			log.Printf("  - %s", hint)
		}
		if !debugging {
			log.Println("Run with -debug to save page source for inspection")
		}
	} else {
		log.Printf("Found %d/%d waste collection schedules", result.Found(), len(result.Entries))
	}

	if err := writeReport(stdout, result, jsonOutput); err != nil {
		log.Printf("Failed to write report: %v", err)
		return 1
	}

	if result.Empty() {
		return 1
	}
	return 0
}

// writeReport prints indented JSON, or the text report between banners.
func writeReport(w io.Writer, result *schedule.Result, jsonOutput bool) error {
	if jsonOutput {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s\n", data)
		return err
	}

	fmt.Fprintln(w, banner)
	fmt.Fprintln(w, "WASTE COLLECTION SCHEDULE")
	fmt.Fprintln(w, banner)
	if err := result.WriteText(w); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, banner)
	return err
}

// startServer blocks until SIGINT or SIGTERM has drained in-flight requests.
func startServer() error {
	// Set up a channel to listen for OS signals
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	cache, err := NewCache(appConfig)
	if err != nil {
		log.Printf("Failed to initialize cache, serving without one: %v", err)
	} else {
		responseCache = cache
		defer cache.Close()
	}

	server := &http.Server{Addr: ":" + appConfig.Port, Handler: newRouter()}

	drained := make(chan struct{})
	go func() {
		<-stop
		log.Println("Shutting down gracefully...")
		if err := server.Shutdown(context.Background()); err != nil {
			log.Printf("Server shutdown: %v", err)
		}
		close(drained)
	}()

	log.Printf("Starting rydewaste in %s mode on http://localhost:%s", appConfig.AppEnv, appConfig.Port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-drained
	return nil
}
