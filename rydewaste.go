package main

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"rydewaste/schedule"
)

const maxAddressLength = 200

type requestParams struct {
	address   string
	output    string
	debugging bool
}

// responseCache is shared by all requests in serve mode. Nil disables caching.
var responseCache Cache

var extractor = mustExtractor(schedule.DefaultCategories)

func mustExtractor(categories []string) *schedule.Extractor {
	x, err := schedule.NewExtractor(categories)
	if err != nil {
		panic(err)
	}
	return x
}

var errAddressMissing = errors.New("address not provided")

func parseRequestParams(r *http.Request) (*requestParams, error) {
	params := &requestParams{output: "json"}

	// /schedule/<format>
	pathSegments := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathSegments) >= 2 && pathSegments[1] != "" {
		params.output = pathSegments[1]
	}

	params.address = strings.TrimSpace(r.URL.Query().Get("address"))
	if params.address == "" {
		return nil, errAddressMissing
	}
	if len(params.address) > maxAddressLength {
		return nil, errors.New("address too long")
	}

	switch params.output {
	case "json", "text", "xml", "yaml", "ics":
	default:
		return nil, errors.New("invalid output format")
	}

	params.debugging = r.URL.Query().Get("debug") == "yes"
	return params, nil
}

// scheduleForAddress returns the cached result for an address, or scrapes
// and extracts a fresh one.
func scheduleForAddress(ctx context.Context, params *requestParams) (*schedule.Result, error) {
	key := cacheKey(params.address)

	if responseCache != nil {
		result, err := responseCache.Get(key)
		if err != nil {
			log.Printf("Error getting from cache: %v", err)
		}
		if result != nil {
			if params.debugging {
				log.Printf("Cache hit for address: %s", params.address)
			}
			return result, nil
		}
	}
	if params.debugging {
		log.Printf("Cache miss for address: %s", params.address)
	}

	html, err := fetchScheduleHTML(ctx, params.address, params.debugging)
	if err != nil {
		return nil, err
	}

	result, err := extractor.Extract(html)
	if err != nil {
		return nil, err
	}

	if params.debugging {
		if summary, err := inspectPage(html); err == nil {
			log.Printf("Page title: %q, headings: %q", summary.Title, summary.Headings)
		}
	}

	// Empty results usually mean the address was not recognized; don't pin them.
	if responseCache != nil && !result.Empty() {
		if err := responseCache.Set(key, result, appConfig.CacheExpiry); err != nil {
			log.Printf("Failed to cache schedule for address %s: %v", params.address, err)
		}
	}
	return result, nil
}

func WasteCollection(w http.ResponseWriter, r *http.Request) {
	params, err := parseRequestParams(r)
	if errors.Is(err, errAddressMissing) {
		showHelp(w)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := scheduleForAddress(r.Context(), params)
	if errors.Is(err, context.DeadlineExceeded) {
		log.Printf("Operation timed out for address: %s", params.address)
		http.Error(w, "Operation timed out", http.StatusRequestTimeout)
		return
	}
	if err != nil {
		log.Printf("Failed to fetch schedule: %v", err)
		http.Error(w, "Unable to contact Ryde council website", http.StatusBadGateway)
		return
	}

	w.Header().Set("Cache-Control", "max-age=3600")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("X-XSS-Protection", "1; mode=block")

	status := http.StatusOK
	if result.Empty() {
		status = http.StatusNotFound
	}

	switch params.output {
	case "json":
		formatAsJSON(w, status, result)
	case "text":
		formatAsText(w, status, result)
	case "xml":
		formatAsXML(w, status, result)
	case "yaml":
		formatAsYAML(w, status, result)
	case "ics":
		formatAsICS(w, status, result, params)
	}
}

func formatAsJSON(w http.ResponseWriter, status int, result *schedule.Result) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		http.Error(w, "Failed to marshal JSON", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(data, '\n')); err != nil {
		log.Printf("Failed to write JSON response: %v", err)
	}
}

func formatAsText(w http.ResponseWriter, status int, result *schedule.Result) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if err := result.WriteText(w); err != nil {
		log.Printf("Failed to write text response: %v", err)
	}
}

func formatAsXML(w http.ResponseWriter, status int, result *schedule.Result) {
	data, err := xml.Marshal(result)
	if err != nil {
		http.Error(w, "Failed to marshal XML", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	if _, err := w.Write(append([]byte(xml.Header), data...)); err != nil {
		log.Printf("Failed to write XML response: %v", err)
	}
}

func formatAsYAML(w http.ResponseWriter, status int, result *schedule.Result) {
	yamlData, err := yaml.Marshal(result)
	if err != nil {
		http.Error(w, "Failed to marshal YAML", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/x-yaml")
	w.WriteHeader(status)
	if _, err := w.Write(yamlData); err != nil {
		log.Printf("Failed to write YAML response: %v", err)
	}
}

func formatAsICS(w http.ResponseWriter, status int, result *schedule.Result, params *requestParams) {
	prodID := fmt.Sprintf("-//City of Ryde Waste Collections//rydewaste-%s//EN", appConfig.AppEnv)
	var icsBuilder strings.Builder
	icsBuilder.WriteString("BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:" + prodID + "\r\n")

	dtStamp := time.Now().UTC().Format("20060102T150405Z")
	for _, entry := range result.Entries {
		if entry.Date == nil {
			continue
		}
		eventDate, err := parseCollectionDay(*entry.Date)
		if err != nil {
			if params.debugging {
				log.Printf("Skipping %s in calendar: %v", entry.Category, err)
			}
			continue
		}
		uid := foldLine("UID:" + generateUID(entry.Category, entry.Date.Date, params.address))
		start := eventDate.Format("20060102")
		end := eventDate.AddDate(0, 0, 1).Format("20060102")
		summary := foldLine(fmt.Sprintf("SUMMARY:%s", entry.Category))
		description := foldLine(fmt.Sprintf("DESCRIPTION:%s collection %s", entry.Category, entry.Date))
		location := foldLine(fmt.Sprintf("LOCATION:%s", params.address))
		urlLine := foldLine(fmt.Sprintf("URL:%s", appConfig.SiteURL))
		fmt.Fprintf(&icsBuilder, "BEGIN:VEVENT\r\n%s\r\nDTSTAMP:%s\r\nDTSTART;VALUE=DATE:%s\r\nDTEND;VALUE=DATE:%s\r\n%s\r\n%s\r\n%s\r\nTRANSP:TRANSPARENT\r\n%s\r\nEND:VEVENT\r\n",
			uid, dtStamp, start, end, summary, description, location, urlLine)
	}
	icsBuilder.WriteString("END:VCALENDAR\r\n")

	w.Header().Set("Content-Type", "text/calendar")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(icsBuilder.String())); err != nil {
		log.Printf("Failed to write ICS response: %v", err)
	}
}

func showHelp(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintln(w, "<h1>rydewaste - City of Ryde Waste Collection API</h1>")
	fmt.Fprintln(w, "<p>This service provides the next waste collection dates for properties in the City of Ryde.</p>")
	fmt.Fprintln(w, "<h2>Usage:</h2>")
	fmt.Fprintln(w, "<p><code>/schedule/[format]?address=[address]</code></p>")
	fmt.Fprintln(w, "<ul>")
	fmt.Fprintln(w, "<li><b>address</b>: The street address, as you would type it on the council website.</li>")
	fmt.Fprintln(w, "<li><b>format</b>: The output format. Can be <code>json</code> (default), <code>text</code>, <code>ics</code>, <code>xml</code>, or <code>yaml</code>.</li>")
	fmt.Fprintln(w, "</ul>")
	fmt.Fprintln(w, "<h2>Optional Parameters:</h2>")
	fmt.Fprintln(w, "<ul>")
	fmt.Fprintln(w, "<li><b>?debug=yes</b>: Enable debug logging.</li>")
	fmt.Fprintln(w, "</ul>")
	fmt.Fprintln(w, "<p><code>/search-address?q=[partial address]</code> lists the addresses the council site suggests.</p>")
}
