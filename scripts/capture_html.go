// capture_html saves the rendered "My area" landing page so the address form
// selectors can be checked when the council changes its site.
//
// Usage: go run ./scripts [output path]
package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/chromedp/chromedp"
)

func main() {
	out := "testdata/ryde_landing.html"
	if len(os.Args) > 1 {
		out = os.Args[1]
	}
	url := os.Getenv("RYDE_URL")
	if url == "" {
		url = "https://www.ryde.nsw.gov.uk/Information-Pages/My-area"
	}

	allocatorOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
	)
	if path := os.Getenv("CHROME_PATH"); path != "" {
		allocatorOpts = append(allocatorOpts, chromedp.ExecPath(path))
	}

	allocatorCtx, cancel := chromedp.NewExecAllocator(context.Background(), allocatorOpts...)
	defer cancel()
	ctx, cancel := chromedp.NewContext(allocatorCtx)
	defer cancel()
	ctx, cancel = context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	log.Println("Navigating to page...")
	var html string
	err := chromedp.Run(ctx,
		chromedp.Navigate(url),
		// the address field is injected by script, so its presence means the form is usable
		chromedp.WaitVisible(`#txtAddressPublic-My-Area`, chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		log.Fatal(err)
	}

	if err := os.WriteFile(out, []byte(html), 0644); err != nil {
		log.Fatal(err)
	}

	log.Printf("Successfully captured HTML to %s", out)
}
