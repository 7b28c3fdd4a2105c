package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dealerwatch/dealercrawl/internal/crawl"
)

var (
	pincodePattern = regexp.MustCompile(`\b(\d{6})\b`)
	nonDigit       = regexp.MustCompile(`\D`)
)

// Validator turns raw candidates into dealer records. Under strict mode
// a malformed phone rejects the record; otherwise the field is cleared,
// since partial data beats a dropped dealer.
type Validator struct {
	strict bool
}

// NewValidator creates a validator. strict mirrors the validate_data
// configuration knob.
func NewValidator(strict bool) *Validator {
	return &Validator{strict: strict}
}

// Validate enforces the required fields and normalizes the optional ones.
func (v *Validator) Validate(c crawl.RawCandidate) (crawl.DealerRecord, error) {
	name := strings.TrimSpace(c.Name)
	address := strings.TrimSpace(c.Address)
	if name == "" {
		return crawl.DealerRecord{}, fmt.Errorf("%w: missing dealer name", crawl.ErrValidation)
	}
	if address == "" {
		return crawl.DealerRecord{}, fmt.Errorf("%w: missing address for %q", crawl.ErrValidation, name)
	}

	phone, phoneErr := normalizePhone(c.Phone)
	if phoneErr != nil && v.strict {
		return crawl.DealerRecord{}, fmt.Errorf("%w: %v for %q", crawl.ErrValidation, phoneErr, name)
	}

	city, state, pincode := parseAddress(address)

	return crawl.DealerRecord{
		Name:        name,
		Address:     address,
		Phone:       phone,
		Email:       normalizeEmail(c.Email),
		City:        city,
		State:       state,
		Pincode:     pincode,
		VehicleType: c.Target.VehicleType,
		Brand:       c.Target.Brand,
		Location:    c.Target.Location,
		SourceURL:   c.Target.URL,
		CapturedAt:  c.CapturedAt,
	}, nil
}

// normalizePhone strips separators and requires 7-15 digits. On failure
// it returns an empty phone plus the reason, and the caller decides
// whether that clears the field or rejects the record.
func normalizePhone(raw string) (string, error) {
	digits := nonDigit.ReplaceAllString(raw, "")
	if digits == "" {
		return "", nil
	}
	if len(digits) < 7 || len(digits) > 15 {
		return "", fmt.Errorf("phone %q reduces to %d digits", raw, len(digits))
	}
	return digits, nil
}

func normalizeEmail(raw string) string {
	email := strings.TrimSpace(raw)
	if emailPattern.MatchString(email) {
		return email
	}
	return ""
}

// parseAddress maps trailing comma-separated tokens onto city/state and
// pulls a six-digit pincode from anywhere in the text. Best effort: any
// failure just leaves the derived fields empty.
func parseAddress(address string) (city, state, pincode string) {
	if m := pincodePattern.FindString(address); m != "" {
		pincode = m
	}

	stripped := pincodePattern.ReplaceAllString(address, "")
	parts := strings.Split(stripped, ",")
	var tokens []string
	for _, p := range parts {
		if t := strings.Join(strings.Fields(p), " "); t != "" {
			tokens = append(tokens, t)
		}
	}
	switch {
	case len(tokens) >= 3:
		city = tokens[len(tokens)-2]
		state = tokens[len(tokens)-1]
	case len(tokens) == 2:
		city = tokens[len(tokens)-1]
	}
	return city, state, pincode
}
