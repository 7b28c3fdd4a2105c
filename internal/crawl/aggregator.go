package crawl

import (
	"time"

	"github.com/google/uuid"

	"github.com/dealerwatch/dealercrawl/internal/metrics"
)

// Deduplicator collapses repeated dealer records across the whole run.
// First occurrence wins; later duplicates are counted and discarded.
type Deduplicator struct {
	seen       map[string]struct{}
	duplicates int
}

// NewDeduplicator creates an empty run-scoped deduplicator.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{seen: make(map[string]struct{})}
}

// Add reports whether the record is the first with its identity key.
func (d *Deduplicator) Add(r DealerRecord) bool {
	key := r.IdentityKey()
	if _, dup := d.seen[key]; dup {
		d.duplicates++
		return false
	}
	d.seen[key] = struct{}{}
	return true
}

// Duplicates returns how many records were suppressed.
func (d *Deduplicator) Duplicates() int {
	return d.duplicates
}

// TargetOutcome is the finalized result of one target, applied to the
// aggregator in scheduler-issued order.
type TargetOutcome struct {
	Target    FetchTarget
	Records   []DealerRecord
	Extracted int
	Rejected  int
	Attempts  int
	Err       error
}

// Aggregator is the single writer for accepted records, per-target
// counters, and the failure ledger. The scheduler applies outcomes in
// target order; read access is valid only after Finish.
type Aggregator struct {
	runID    string
	start    time.Time
	dedup    *Deduplicator
	records  []DealerRecord
	failures []FailureRecord
	failed   map[string]struct{}
	summary  RunSummary
	finished bool
}

// NewAggregator starts accumulation for a new run.
func NewAggregator() *Aggregator {
	return &Aggregator{
		runID:  uuid.NewString(),
		start:  time.Now(),
		dedup:  NewDeduplicator(),
		failed: make(map[string]struct{}),
	}
}

// RunID identifies this run in logs and outputs.
func (a *Aggregator) RunID() string {
	return a.runID
}

// Apply folds one finalized target outcome into the run state. A target
// with a terminal error lands in the failure ledger exactly once; a
// target that succeeded with zero records still counts as succeeded.
func (a *Aggregator) Apply(out TargetOutcome) {
	a.summary.TargetsAttempted++
	if out.Attempts > 1 {
		a.summary.Retries += out.Attempts - 1
	}

	if out.Err != nil {
		a.summary.TargetsFailed++
		key := out.Target.Key()
		if _, done := a.failed[key]; !done {
			a.failed[key] = struct{}{}
			a.failures = append(a.failures, FailureRecord{
				Target:    out.Target,
				Attempts:  out.Attempts,
				ErrorKind: ErrorKind(out.Err),
				Detail:    out.Err.Error(),
				Timestamp: time.Now().UTC(),
			})
		}
		return
	}

	a.summary.TargetsSucceeded++
	a.summary.RecordsExtracted += out.Extracted
	a.summary.RecordsRejected += out.Rejected
	for _, record := range out.Records {
		if a.dedup.Add(record) {
			a.records = append(a.records, record)
		} else {
			metrics.ObserveDuplicate()
		}
	}
}

// FailureCount returns the number of failed targets so far; the scheduler
// polls it for the error budget.
func (a *Aggregator) FailureCount() int {
	return a.summary.TargetsFailed
}

// AttemptedCount returns the number of finalized targets so far.
func (a *Aggregator) AttemptedCount() int {
	return a.summary.TargetsAttempted
}

// Finish freezes the run state and computes the summary.
func (a *Aggregator) Finish(status RunStatus) {
	if a.finished {
		return
	}
	a.finished = true
	a.summary.RunID = a.runID
	a.summary.Status = status
	a.summary.RecordsAccepted = len(a.records)
	a.summary.DuplicatesSuppressed = a.dedup.Duplicates()
	a.summary.Duration = time.Since(a.start)
}

// Records returns accepted records in first-acceptance order.
func (a *Aggregator) Records() []DealerRecord {
	return a.records
}

// Failures returns the append-only failure ledger.
func (a *Aggregator) Failures() []FailureRecord {
	return a.failures
}

// Summary returns the run summary computed at Finish.
func (a *Aggregator) Summary() RunSummary {
	return a.summary
}
