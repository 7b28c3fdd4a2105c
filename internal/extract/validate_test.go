package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dealerwatch/dealercrawl/internal/crawl"
)

func candidate() crawl.RawCandidate {
	return crawl.RawCandidate{
		Name:    "KUN Exclusive",
		Address: "Plot 12, Begumpet Main Road, Hyderabad, Telangana 500016",
		Phone:   "+91 40-2776 0000",
		Email:   "sales@kunexclusive.example.com",
		Target: crawl.FetchTarget{
			VehicleType: "cars",
			Brand:       "bmw",
			Location:    "Hyderabad",
			URL:         "https://example.com/d/bmw/hyderabad",
		},
		CapturedAt: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}
}

func TestValidateAcceptsCompleteCandidate(t *testing.T) {
	t.Parallel()

	record, err := NewValidator(true).Validate(candidate())
	require.NoError(t, err)
	require.Equal(t, "KUN Exclusive", record.Name)
	require.Equal(t, "914027760000", record.Phone)
	require.Equal(t, "sales@kunexclusive.example.com", record.Email)
	require.Equal(t, "Hyderabad", record.City)
	require.Equal(t, "Telangana", record.State)
	require.Equal(t, "500016", record.Pincode)
	require.Equal(t, "bmw", record.Brand)
	require.Equal(t, "cars", record.VehicleType)
	require.Equal(t, candidate().CapturedAt, record.CapturedAt)
}

func TestValidateRequiresNameAndAddress(t *testing.T) {
	t.Parallel()

	v := NewValidator(false)

	c := candidate()
	c.Name = "  "
	_, err := v.Validate(c)
	require.ErrorIs(t, err, crawl.ErrValidation)

	c = candidate()
	c.Address = ""
	_, err = v.Validate(c)
	require.ErrorIs(t, err, crawl.ErrValidation)
}

func TestValidatePhoneStrictVersusLenient(t *testing.T) {
	t.Parallel()

	c := candidate()
	c.Phone = "12345" // too short once separators are gone

	_, err := NewValidator(true).Validate(c)
	require.ErrorIs(t, err, crawl.ErrValidation)

	record, err := NewValidator(false).Validate(c)
	require.NoError(t, err)
	require.Empty(t, record.Phone, "lenient mode clears the bad phone instead of rejecting")
}

func TestValidateMissingPhoneIsFine(t *testing.T) {
	t.Parallel()

	c := candidate()
	c.Phone = ""
	record, err := NewValidator(true).Validate(c)
	require.NoError(t, err)
	require.Empty(t, record.Phone)
}

func TestValidateBadEmailIsCleared(t *testing.T) {
	t.Parallel()

	c := candidate()
	c.Email = "not-an-email"
	record, err := NewValidator(true).Validate(c)
	require.NoError(t, err)
	require.Empty(t, record.Email)
}

func TestParseAddress(t *testing.T) {
	t.Parallel()

	city, state, pincode := parseAddress("Plot 12, Begumpet Main Road, Hyderabad, Telangana 500016")
	require.Equal(t, "Hyderabad", city)
	require.Equal(t, "Telangana", state)
	require.Equal(t, "500016", pincode)

	city, state, pincode = parseAddress("MG Road, Pune")
	require.Equal(t, "Pune", city)
	require.Empty(t, state)
	require.Empty(t, pincode)

	city, state, pincode = parseAddress("Standalone Street")
	require.Empty(t, city)
	require.Empty(t, state)
	require.Empty(t, pincode)
}
