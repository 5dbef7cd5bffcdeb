// Package source fetches listing pages and extracts candidate listings per
// platform. Adapters share one lazily-created HTTP client owned by the scan
// loop.
package source

import (
	"context"
	"net/url"

	"flatwatch-go/pkg/listing"
)

// Adapter produces the current candidate listings for one platform. A new
// platform is added by implementing this interface, not by another scan
// function.
type Adapter interface {
	Platform() string
	FetchCandidates(ctx context.Context) ([]listing.Candidate, error)
}

// absoluteURL resolves a scraped href against the page it came from.
func absoluteURL(base, href string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	hrefURL, err := url.Parse(href)
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(hrefURL).String()
}
