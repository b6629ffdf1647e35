package main

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v2"
)

const mockHTML = `
<!DOCTYPE html>
<html>
<head><title>My area - City of Ryde</title></head>
<body>
    <input id="txtAddressPublic-My-Area" value="1 Devlin Street, Ryde">
    <div class="waste-card">
        <h4>General Waste</h4>
        <span class="next-service-date">Wed 21/1/2026</span>
    </div>
    <div class="waste-card">
        <h4>Garden Organics</h4>
        <span class="next-service-date">Thu 22/1/2026</span>
    </div>
</body>
</html>
`

// stubFetch replaces the browser with a function returning html, and counts calls.
func stubFetch(t *testing.T, html string, err error) *int {
	t.Helper()
	calls := 0
	original := fetchScheduleHTML
	fetchScheduleHTML = func(ctx context.Context, address string, debugging bool) (string, error) {
		calls++
		return html, err
	}
	t.Cleanup(func() { fetchScheduleHTML = original })
	return &calls
}

func scheduleRequest(format, address string) *http.Request {
	target := "/schedule"
	if format != "" {
		target += "/" + format
	}
	if address != "" {
		target += "?address=" + url.QueryEscape(address)
	}
	return httptest.NewRequest(http.MethodGet, target, nil)
}

func TestParseRequestParams(t *testing.T) {
	testCases := []struct {
		name           string
		url            string
		expectedOutput string
		expectedError  string
	}{
		{
			name:           "Default format",
			url:            "/schedule?address=1+Devlin+Street",
			expectedOutput: "json",
		},
		{
			name:           "Format in path",
			url:            "/schedule/yaml?address=1+Devlin+Street",
			expectedOutput: "yaml",
		},
		{
			name:           "Trailing slash",
			url:            "/schedule/?address=1+Devlin+Street",
			expectedOutput: "json",
		},
		{
			name:          "Missing address",
			url:           "/schedule/json",
			expectedError: "address not provided",
		},
		{
			name:          "Blank address",
			url:           "/schedule/json?address=+++",
			expectedError: "address not provided",
		},
		{
			name:          "Address too long",
			url:           "/schedule/json?address=" + strings.Repeat("a", maxAddressLength+1),
			expectedError: "address too long",
		},
		{
			name:          "Invalid format",
			url:           "/schedule/pdf?address=1+Devlin+Street",
			expectedError: "invalid output format",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.url, nil)
			params, err := parseRequestParams(req)

			if tc.expectedError != "" {
				if err == nil {
					t.Fatalf("expected error %q, got nil", tc.expectedError)
				}
				if err.Error() != tc.expectedError {
					t.Fatalf("expected error %q, got %q", tc.expectedError, err.Error())
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if params.output != tc.expectedOutput {
				t.Errorf("expected output %q, got %q", tc.expectedOutput, params.output)
			}
			if params.address != "1 Devlin Street" {
				t.Errorf("expected address %q, got %q", "1 Devlin Street", params.address)
			}
		})
	}
}

func TestWasteCollectionShowsHelp(t *testing.T) {
	rr := httptest.NewRecorder()
	WasteCollection(rr, scheduleRequest("json", ""))

	if rr.Code != http.StatusOK {
		t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}
	expected := "<h1>rydewaste - City of Ryde Waste Collection API</h1>"
	if !strings.Contains(rr.Body.String(), expected) {
		t.Errorf("handler returned unexpected body: got %v want to contain %v", rr.Body.String(), expected)
	}
}

func TestWasteCollectionJSON(t *testing.T) {
	stubFetch(t, mockHTML, nil)

	rr := httptest.NewRecorder()
	WasteCollection(rr, scheduleRequest("json", "1 Devlin Street"))

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status OK, got %v: %s", rr.Code, rr.Body.String())
	}
	if contentType := rr.Header().Get("Content-Type"); contentType != "application/json" {
		t.Errorf("Expected Content-Type application/json, got %v", contentType)
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, rr.Body.Bytes()); err != nil {
		t.Fatalf("handler returned invalid JSON: %v", err)
	}
	expected := `{"General Waste":"Wed 21/1/2026","Garden Organics":"Thu 22/1/2026","Recycling":null}`
	if compact.String() != expected {
		t.Errorf("Expected body %s, got %s", expected, compact.String())
	}
}

func TestWasteCollectionNotFound(t *testing.T) {
	stubFetch(t, "<html><body>Address not found</body></html>", nil)

	rr := httptest.NewRecorder()
	WasteCollection(rr, scheduleRequest("json", "1 Nowhere Road"))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("Expected status 404, got %v", rr.Code)
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, rr.Body.Bytes()); err != nil {
		t.Fatalf("handler returned invalid JSON: %v", err)
	}
	expected := `{"General Waste":null,"Garden Organics":null,"Recycling":null}`
	if compact.String() != expected {
		t.Errorf("Expected body %s, got %s", expected, compact.String())
	}
}

func TestWasteCollectionAcquisitionErrors(t *testing.T) {
	testCases := []struct {
		name   string
		err    error
		status int
	}{
		{
			name:   "Timeout",
			err:    acquisitionError("load page", context.DeadlineExceeded),
			status: http.StatusRequestTimeout,
		},
		{
			name:   "Browser failure",
			err:    acquisitionError("could not find address input field", fmt.Errorf("node not found")),
			status: http.StatusBadGateway,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			stubFetch(t, "", tc.err)

			rr := httptest.NewRecorder()
			WasteCollection(rr, scheduleRequest("json", "1 Devlin Street"))

			if rr.Code != tc.status {
				t.Errorf("Expected status %d, got %d", tc.status, rr.Code)
			}
		})
	}
}

func TestWasteCollectionFormats(t *testing.T) {
	stubFetch(t, mockHTML, nil)

	t.Run("text", func(t *testing.T) {
		rr := httptest.NewRecorder()
		WasteCollection(rr, scheduleRequest("text", "1 Devlin Street"))

		expected := "General Waste: Wed 21/1/2026\nGarden Organics: Thu 22/1/2026\nRecycling: Not found\n"
		if rr.Body.String() != expected {
			t.Errorf("Expected body %q, got %q", expected, rr.Body.String())
		}
	})

	t.Run("xml", func(t *testing.T) {
		rr := httptest.NewRecorder()
		WasteCollection(rr, scheduleRequest("xml", "1 Devlin Street"))

		if contentType := rr.Header().Get("Content-Type"); contentType != "application/xml" {
			t.Errorf("Expected Content-Type application/xml, got %v", contentType)
		}
		var doc struct {
			Collections []struct {
				Category string `xml:"category,attr"`
				Value    string `xml:",chardata"`
			} `xml:"collection"`
		}
		if err := xml.Unmarshal(rr.Body.Bytes(), &doc); err != nil {
			t.Fatalf("Failed to unmarshal XML: %v", err)
		}
		if len(doc.Collections) != 3 {
			t.Errorf("Expected 3 collections, got %d", len(doc.Collections))
		}
	})

	t.Run("yaml", func(t *testing.T) {
		rr := httptest.NewRecorder()
		WasteCollection(rr, scheduleRequest("yaml", "1 Devlin Street"))

		if contentType := rr.Header().Get("Content-Type"); contentType != "application/x-yaml" {
			t.Errorf("Expected Content-Type application/x-yaml, got %v", contentType)
		}
		var decoded yaml.MapSlice
		if err := yaml.Unmarshal(rr.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("Failed to unmarshal YAML: %v", err)
		}
		if len(decoded) != 3 || decoded[0].Key != "General Waste" || decoded[2].Value != nil {
			t.Errorf("Unexpected YAML: %s", rr.Body.String())
		}
	})

	t.Run("ics", func(t *testing.T) {
		rr := httptest.NewRecorder()
		WasteCollection(rr, scheduleRequest("ics", "1 Devlin Street"))

		resp := rr.Result()
		body, _ := io.ReadAll(resp.Body)
		bodyStr := string(body)

		if contentType := resp.Header.Get("Content-Type"); contentType != "text/calendar" {
			t.Errorf("Expected Content-Type text/calendar, got %v", contentType)
		}
		for _, want := range []string{
			"BEGIN:VCALENDAR",
			"SUMMARY:General Waste",
			"DTSTART;VALUE=DATE:20260121",
			"DTEND;VALUE=DATE:20260122",
			"SUMMARY:Garden Organics",
			"DTSTART;VALUE=DATE:20260122",
			"LOCATION:1 Devlin Street",
			"END:VCALENDAR",
		} {
			if !strings.Contains(bodyStr, want) {
				t.Errorf("ICS output does not contain %q", want)
			}
		}
		if strings.Contains(bodyStr, "SUMMARY:Recycling") {
			t.Error("ICS output should not contain an event for a category without a date")
		}
		if n := strings.Count(bodyStr, "BEGIN:VEVENT"); n != 2 {
			t.Errorf("Expected 2 events, got %d", n)
		}
	})
}

func TestWasteCollectionUsesCache(t *testing.T) {
	cache, err := NewSqliteCache(filepath.Join(t.TempDir(), "rydewaste.db"))
	if err != nil {
		t.Fatalf("Failed to create sqlite cache: %v", err)
	}
	defer cache.Close()
	responseCache = cache
	defer func() { responseCache = nil }()

	calls := stubFetch(t, mockHTML, nil)

	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/schedule/json?debug=yes&address="+url.QueryEscape("1 Devlin Street"), nil)
		WasteCollection(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected status OK, got %v", i, rr.Code)
		}
	}

	if *calls != 1 {
		t.Errorf("Expected the page to be fetched once, got %d", *calls)
	}
	logOutput := buf.String()
	if !strings.Contains(logOutput, "Cache miss for address: 1 Devlin Street") {
		t.Errorf("Expected log to contain a cache miss. Log: %s", logOutput)
	}
	if !strings.Contains(logOutput, "Cache hit for address: 1 Devlin Street") {
		t.Errorf("Expected log to contain a cache hit. Log: %s", logOutput)
	}
}

func TestWasteCollectionDoesNotCacheEmptyResult(t *testing.T) {
	cache, err := NewSqliteCache(filepath.Join(t.TempDir(), "rydewaste.db"))
	if err != nil {
		t.Fatalf("Failed to create sqlite cache: %v", err)
	}
	defer cache.Close()
	responseCache = cache
	defer func() { responseCache = nil }()

	stubFetch(t, "<html></html>", nil)

	rr := httptest.NewRecorder()
	WasteCollection(rr, scheduleRequest("json", "1 Nowhere Road"))

	cached, err := cache.Get(cacheKey("1 Nowhere Road"))
	if err != nil {
		t.Fatalf("Failed to read cache: %v", err)
	}
	if cached != nil {
		t.Errorf("Expected empty result not to be cached, got %+v", cached)
	}
}
