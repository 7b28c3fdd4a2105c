// Package extract parses rendered dealer pages into raw record candidates
// and validates them into dealer records.
package extract

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/dealerwatch/dealercrawl/internal/crawl"
)

// The dealer listing marks each card with a class containing this token.
const defaultContainerMarker = "deal-crd"

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

// Extractor pulls dealer candidates out of rendered HTML. Extraction is
// pure: no network access and no shared state, so fixture content tests
// it in isolation.
type Extractor struct {
	marker string
	logger *zap.Logger
}

// New creates an extractor. An empty marker uses the site's dealer-card
// convention.
func New(marker string, logger *zap.Logger) *Extractor {
	if marker == "" {
		marker = defaultContainerMarker
	}
	return &Extractor{marker: marker, logger: logger}
}

// Extract returns one candidate per dealer container in document order.
// Containers yielding neither a name nor an address are noise (ads,
// unrelated cards) and are dropped. A document goquery cannot parse is a
// structural error, which the scheduler treats as retryable; a parseable
// page with zero containers is a legitimate empty result.
func (e *Extractor) Extract(page crawl.RenderedPage, target crawl.FetchTarget) ([]crawl.RawCandidate, error) {
	if len(bytes.TrimSpace(page.Body)) == 0 {
		return nil, fmt.Errorf("%w: empty rendered document for %s", crawl.ErrStructuralParse, page.URL)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", crawl.ErrStructuralParse, err)
	}
	capturedAt := time.Now().UTC()
	var candidates []crawl.RawCandidate
	doc.Find(fmt.Sprintf(`[class*=%q]`, e.marker)).Each(func(_ int, card *goquery.Selection) {
		candidate := crawl.RawCandidate{
			Name:       headingText(card),
			Address:    paragraphText(card),
			Phone:      telLinkText(card),
			Email:      firstEmail(card.Text()),
			Target:     target,
			CapturedAt: capturedAt,
		}
		if candidate.Name == "" && candidate.Address == "" {
			return
		}
		candidates = append(candidates, candidate)
	})

	e.logger.Debug("extracted dealer containers",
		zap.String("url", page.URL),
		zap.Int("candidates", len(candidates)),
	)
	return candidates, nil
}

// headingText returns the first heading-level element's text, first line
// only; card headings sometimes fold badges onto extra lines.
func headingText(card *goquery.Selection) string {
	text := strings.TrimSpace(card.Find("h1, h2, h3, h4").First().Text())
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = strings.TrimSpace(text[:idx])
	}
	return text
}

func paragraphText(card *goquery.Selection) string {
	return strings.Join(strings.Fields(card.Find("p").First().Text()), " ")
}

// telLinkText keeps digits only from the first telephone link.
func telLinkText(card *goquery.Selection) string {
	raw := card.Find(`a[href^="tel:"]`).First().Text()
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	return digits.String()
}

func firstEmail(text string) string {
	return emailPattern.FindString(text)
}
