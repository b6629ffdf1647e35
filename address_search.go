package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/chromedp/chromedp"
)

type AddressSearchResult struct {
	Address string `json:"address"`
}

func SearchAddressHandler(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		http.Error(w, "Query parameter 'q' is required", http.StatusBadRequest)
		return
	}
	if len(query) > maxAddressLength {
		http.Error(w, "Query parameter 'q' is too long", http.StatusBadRequest)
		return
	}

	results, err := searchAddress(r.Context(), query)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to search for address: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(results); err != nil {
		http.Error(w, "Failed to encode address search results", http.StatusInternalServerError)
	}
}

// searchAddress types the query into the address field and returns the
// suggestions the autocomplete dropdown offers.
var searchAddress = func(ctx context.Context, query string) ([]AddressSearchResult, error) {
	if allocatorContext == nil {
		return nil, fmt.Errorf("%w: browser is not available", ErrAcquisition)
	}

	tabCtx, cancel := chromedp.NewContext(allocatorContext)
	defer cancel()
	tabCtx, cancel = context.WithTimeout(tabCtx, appConfig.Timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(tabCtx, chromedp.Navigate(appConfig.SiteURL)); err != nil {
		return nil, acquisitionError("load page", err)
	}
	if err := waitForAddressField(tabCtx); err != nil {
		return nil, acquisitionError("could not find address input field", err)
	}

	var shown bool
	var suggestions []string
	err := chromedp.Run(tabCtx,
		chromedp.SendKeys(addressInputSelector, query, chromedp.ByQuery),
		chromedp.Poll(
			`document.querySelectorAll('`+suggestionSelector+`').length > 0`,
			&shown,
			chromedp.WithPollingTimeout(suggestionTimeout),
		),
		chromedp.Evaluate(
			`Array.from(document.querySelectorAll('`+suggestionSelector+`')).map(e => e.innerText.replace(/\s+/g, ' ').trim())`,
			&suggestions,
		),
	)
	if errors.Is(err, chromedp.ErrPollingTimeout) {
		return []AddressSearchResult{}, nil
	}
	if err != nil {
		return nil, acquisitionError("read suggestions", err)
	}

	results := make([]AddressSearchResult, 0, len(suggestions))
	for _, s := range suggestions {
		if s != "" {
			results = append(results, AddressSearchResult{Address: s})
		}
	}
	return results, nil
}
