package source

import (
	"bytes"
	"context"
	"fmt"
	"regexp"

	"github.com/PuerkitoBio/goquery"

	"flatwatch-go/pkg/listing"
	"flatwatch-go/pkg/logger"
)

// Listing links look like /item/1012345678 or /l/kvartiru/item/1012345678
var kufarItemPattern = regexp.MustCompile(`/item/(\d+)`)

// KufarAdapter extracts listings from one kufar.by filter page. The filter
// URL already encodes region, rooms and price, so a single page fetch covers
// the watched segment.
type KufarAdapter struct {
	client    *Client
	filterURL string
	log       *logger.Logger
}

func NewKufarAdapter(client *Client, filterURL string) *KufarAdapter {
	return &KufarAdapter{
		client:    client,
		filterURL: filterURL,
		log:       logger.GetLogger().WithComponent("kufar_adapter"),
	}
}

func (ka *KufarAdapter) Platform() string {
	return "kufar"
}

func (ka *KufarAdapter) FetchCandidates(ctx context.Context) ([]listing.Candidate, error) {
	body, err := ka.client.Fetch(ctx, ka.filterURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch listing page: %w", err)
	}

	candidates, err := ka.extract(body)
	if err != nil {
		return nil, err
	}

	ka.log.WithField("candidates", len(candidates)).Debug("Extracted listings")
	return candidates, nil
}

func (ka *KufarAdapter) extract(body []byte) ([]listing.Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing page: %w", err)
	}

	seen := make(map[string]bool)
	var candidates []listing.Candidate

	doc.Find(`a[href*="/item/"]`).Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		match := kufarItemPattern.FindStringSubmatch(href)
		if match == nil {
			ka.log.WithField("href", href).Debug("Skipping link without listing id")
			return
		}
		id := match[1]
		if seen[id] {
			return
		}
		seen[id] = true
		candidates = append(candidates, listing.Candidate{
			ID:  id,
			URL: absoluteURL(ka.filterURL, href),
		})
	})

	return candidates, nil
}
