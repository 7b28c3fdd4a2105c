package extract

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dealerwatch/dealercrawl/internal/crawl"
)

const listingFixture = `<!DOCTYPE html>
<html><body>
<div class="promo-banner"><h3>Monsoon Offer</h3></div>
<div class="deal-crd border">
  <h3>KUN Exclusive</h3>
  <p>Plot 12, Begumpet Main Road, Hyderabad, Telangana 500016</p>
  <a href="tel:+91 40 2776 0000">+91 40 2776 0000</a>
  <span>sales@kunexclusive.example.com</span>
</div>
<div class="deal-crd">
  <h3>Varun Motors
Featured</h3>
  <p>   Road No 36,
      Jubilee Hills   </p>
</div>
<div class="deal-crd empty-card">
  <span>Advertisement</span>
</div>
</body></html>`

func fixturePage(body string) crawl.RenderedPage {
	return crawl.RenderedPage{
		URL:        "https://example.com/d/bmw/hyderabad",
		StatusCode: 200,
		Body:       []byte(body),
	}
}

func TestExtractDealerCards(t *testing.T) {
	t.Parallel()

	e := New("", zap.NewNop())
	target := crawl.FetchTarget{Brand: "bmw", Location: "Hyderabad"}
	candidates, err := e.Extract(fixturePage(listingFixture), target)
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	first := candidates[0]
	require.Equal(t, "KUN Exclusive", first.Name)
	require.Equal(t, "Plot 12, Begumpet Main Road, Hyderabad, Telangana 500016", first.Address)
	require.Equal(t, "914027760000", first.Phone)
	require.Equal(t, "sales@kunexclusive.example.com", first.Email)
	require.Equal(t, target, first.Target)
	require.False(t, first.CapturedAt.IsZero())

	second := candidates[1]
	require.Equal(t, "Varun Motors", second.Name, "heading text keeps the first line only")
	require.Equal(t, "Road No 36, Jubilee Hills", second.Address, "whitespace collapses to single spaces")
	require.Empty(t, second.Phone)
	require.Empty(t, second.Email)
}

func TestExtractZeroContainersIsNotAnError(t *testing.T) {
	t.Parallel()

	e := New("", zap.NewNop())
	candidates, err := e.Extract(fixturePage(`<html><body><p>No dealers here</p></body></html>`), crawl.FetchTarget{})
	require.NoError(t, err)
	require.Empty(t, candidates)
}

func TestExtractEmptyBodyIsStructuralError(t *testing.T) {
	t.Parallel()

	e := New("", zap.NewNop())
	_, err := e.Extract(fixturePage("   \n "), crawl.FetchTarget{})
	require.ErrorIs(t, err, crawl.ErrStructuralParse)
}

func TestExtractCustomMarker(t *testing.T) {
	t.Parallel()

	e := New("dealer-tile", zap.NewNop())
	body := `<div class="dealer-tile"><h2>Metro Wheels</h2><p>MG Road</p></div>`
	candidates, err := e.Extract(fixturePage(body), crawl.FetchTarget{})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.Equal(t, "Metro Wheels", candidates[0].Name)
}
