// Package crawl defines the core types and orchestration for a dealer crawl run.
package crawl

import (
	"context"
	"regexp"
	"strings"
	"time"
)

// RunStatus represents the lifecycle state of a crawl run.
type RunStatus string

// Run status values reported in the run summary.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusCanceled  RunStatus = "canceled"
	RunStatusAborted   RunStatus = "aborted"
)

// FetchTarget is one (brand, location) pair to fetch. The URL is a pure
// function of the brand and location slugs; targets are unique within a run.
type FetchTarget struct {
	VehicleType string
	Brand       string
	Location    string
	URL         string
}

// Key identifies the target within a run. The vehicle type is part of
// the identity: one brand may carry separate car and bike listings with
// different base URLs, and those are distinct targets.
func (t FetchTarget) Key() string {
	return t.VehicleType + "/" + t.Brand + "/" + NormalizeName(t.Location)
}

// RawCandidate holds unvalidated fields extracted from one dealer container.
type RawCandidate struct {
	Name       string
	Address    string
	Phone      string
	Email      string
	Target     FetchTarget
	CapturedAt time.Time
}

// DealerRecord is a validated dealer entity accepted by the aggregator.
type DealerRecord struct {
	Name        string    `json:"name"`
	Address     string    `json:"address"`
	Phone       string    `json:"phone,omitempty"`
	Email       string    `json:"email,omitempty"`
	City        string    `json:"city,omitempty"`
	State       string    `json:"state,omitempty"`
	Pincode     string    `json:"pincode,omitempty"`
	VehicleType string    `json:"vehicle_type"`
	Brand       string    `json:"brand"`
	Location    string    `json:"location"`
	SourceURL   string    `json:"source_url"`
	CapturedAt  time.Time `json:"captured_at"`
}

// IdentityKey derives the deduplication key from the normalized name and
// address. Case and whitespace differences never split an identity.
func (r DealerRecord) IdentityKey() string {
	return NormalizeName(r.Name) + "|" + NormalizeName(r.Address)
}

// FailureRecord is one finalized ledger entry for a target that exhausted
// its retry budget.
type FailureRecord struct {
	Target    FetchTarget `json:"target"`
	Attempts  int         `json:"attempts"`
	ErrorKind string      `json:"error_kind"`
	Detail    string      `json:"detail"`
	Timestamp time.Time   `json:"timestamp"`
}

// RunSummary aggregates run-level statistics. It is computed once the
// scheduler finishes and is read-only afterwards.
type RunSummary struct {
	RunID                string        `json:"run_id"`
	Status               RunStatus     `json:"status"`
	TargetsAttempted     int           `json:"targets_attempted"`
	TargetsSucceeded     int           `json:"targets_succeeded"`
	TargetsFailed        int           `json:"targets_failed"`
	RecordsExtracted     int           `json:"records_extracted"`
	RecordsAccepted      int           `json:"records_accepted"`
	DuplicatesSuppressed int           `json:"duplicates_suppressed"`
	RecordsRejected      int           `json:"records_rejected"`
	Retries              int           `json:"retries"`
	Duration             time.Duration `json:"duration"`
}

// RenderedPage is the fully loaded document returned by a renderer.
type RenderedPage struct {
	URL        string
	FinalURL   string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// Renderer produces a fully loaded document for a URL, including content
// created client-side. Implementations live outside this package.
type Renderer interface {
	Render(ctx context.Context, url string) (RenderedPage, error)
}

// Extractor parses rendered content into raw dealer candidates.
type Extractor interface {
	Extract(page RenderedPage, target FetchTarget) ([]RawCandidate, error)
}

// Validator turns a raw candidate into a DealerRecord or rejects it.
type Validator interface {
	Validate(c RawCandidate) (DealerRecord, error)
}

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	punctToSpace  = strings.NewReplacer("-", " ", "_", " ", ",", " ", ".", " ")
)

// NormalizeName lowercases, maps internal punctuation to spaces, and
// collapses whitespace runs. Shared by catalog resolution, target keys,
// and record identity keys so all three agree on what "the same" means.
func NormalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = punctToSpace.Replace(s)
	return whitespaceRun.ReplaceAllString(strings.TrimSpace(s), " ")
}

// Slugify converts a brand or location name into its URL path segment.
func Slugify(s string) string {
	return strings.ReplaceAll(NormalizeName(s), " ", "-")
}
