package source

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"

	"github.com/PuerkitoBio/goquery"

	"flatwatch-go/pkg/listing"
	"flatwatch-go/pkg/logger"
)

// Object links look like /sale/flats/object/3056031/
var realtObjectPattern = regexp.MustCompile(`/object/(\d+)`)

// RealtAdapter walks the paginated results of one realt.by filter URL, up to
// maxPages deep. Page one failing fails the cycle; a deeper page failing
// keeps whatever earlier pages produced.
type RealtAdapter struct {
	client    *Client
	filterURL string
	maxPages  int
	log       *logger.Logger
}

func NewRealtAdapter(client *Client, filterURL string, maxPages int) *RealtAdapter {
	if maxPages <= 0 {
		maxPages = 1
	}
	return &RealtAdapter{
		client:    client,
		filterURL: filterURL,
		maxPages:  maxPages,
		log:       logger.GetLogger().WithComponent("realt_adapter"),
	}
}

func (ra *RealtAdapter) Platform() string {
	return "realt"
}

func (ra *RealtAdapter) FetchCandidates(ctx context.Context) ([]listing.Candidate, error) {
	seen := make(map[string]bool)
	var candidates []listing.Candidate

	for page := 1; page <= ra.maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		body, err := ra.client.Fetch(ctx, ra.pageURL(page))
		if err != nil {
			if page == 1 {
				return nil, fmt.Errorf("failed to fetch page 1: %w", err)
			}
			ra.log.WithError(err).WithField("page", page).
				Warn("Page fetch failed, keeping earlier pages")
			break
		}

		found, err := ra.extractPage(body, page, seen)
		if err != nil {
			if page == 1 {
				return nil, err
			}
			ra.log.WithError(err).WithField("page", page).
				Warn("Page parse failed, keeping earlier pages")
			break
		}

		// Past the last page, or pagination started repeating itself
		if len(found) == 0 {
			break
		}
		candidates = append(candidates, found...)
	}

	ra.log.WithField("candidates", len(candidates)).Debug("Extracted listings")
	return candidates, nil
}

// pageURL returns the filter URL with the page query parameter applied.
// Page one keeps the URL untouched, matching what a browser would request.
func (ra *RealtAdapter) pageURL(page int) string {
	if page <= 1 {
		return ra.filterURL
	}
	u, err := url.Parse(ra.filterURL)
	if err != nil {
		return ra.filterURL
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}

// extractPage pulls new candidates from one results page. Ids already in
// seen are skipped so overlapping pagination never produces duplicates.
func (ra *RealtAdapter) extractPage(body []byte, page int, seen map[string]bool) ([]listing.Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page %d: %w", page, err)
	}

	var found []listing.Candidate
	doc.Find(`a[href*="/object/"]`).Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		match := realtObjectPattern.FindStringSubmatch(href)
		if match == nil {
			ra.log.WithField("href", href).Debug("Skipping link without object id")
			return
		}
		id := match[1]
		if seen[id] {
			return
		}
		seen[id] = true
		found = append(found, listing.Candidate{
			ID:   id,
			URL:  absoluteURL(ra.filterURL, href),
			Page: page,
		})
	})

	return found, nil
}
