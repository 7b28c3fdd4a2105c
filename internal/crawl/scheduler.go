package crawl

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dealerwatch/dealercrawl/internal/metrics"
)

// DelayWindow is a [Min, Max] interval from which pacing delays are drawn
// uniformly. The fuzz is deliberate: a mechanically regular cadence is
// easy for the remote side to spot.
type DelayWindow struct {
	Min time.Duration
	Max time.Duration
}

func (w DelayWindow) draw() time.Duration {
	if w.Max <= w.Min {
		return w.Min
	}
	return w.Min + rand.N(w.Max-w.Min)
}

// SchedulerConfig controls pacing, retries, and the global error budget.
type SchedulerConfig struct {
	// Width is the concurrency across locations within one brand. Brands
	// never run concurrently.
	Width int
	// MaxAttempts bounds attempts per target, including the first.
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	// LocationDelay paces successive dispatches within a brand;
	// BrandDelay paces the transition between brands.
	LocationDelay DelayWindow
	BrandDelay    DelayWindow
	// FailureRateThreshold aborts the run once the failed fraction of
	// finalized targets crosses it. Zero disables the budget.
	FailureRateThreshold float64
	// FailureRateMinSample is the number of finalized targets required
	// before the budget is evaluated.
	FailureRateMinSample int
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.Width <= 0 {
		c.Width = 1
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 30 * time.Second
	}
	if c.FailureRateMinSample <= 0 {
		c.FailureRateMinSample = 10
	}
	return c
}

// Scheduler iterates fetch targets under the configured pacing and retry
// policy, routing every finalized outcome through the single-writer
// aggregator in target order.
type Scheduler struct {
	cfg       SchedulerConfig
	leases    chan Renderer
	extractor Extractor
	validator Validator
	logger    *zap.Logger
}

// NewScheduler builds a scheduler over an exclusive renderer lease pool.
// Each worker holds one renderer for the duration of a single target and
// returns it before taking the next, so leases are never shared.
func NewScheduler(cfg SchedulerConfig, renderers []Renderer, extractor Extractor, validator Validator, logger *zap.Logger) *Scheduler {
	cfg = cfg.withDefaults()
	leases := make(chan Renderer, len(renderers))
	for _, r := range renderers {
		leases <- r
	}
	return &Scheduler{
		cfg:       cfg,
		leases:    leases,
		extractor: extractor,
		validator: validator,
		logger:    logger,
	}
}

type job struct {
	idx     int
	target  FetchTarget
	brandWG *sync.WaitGroup
}

type indexedOutcome struct {
	idx     int
	out     TargetOutcome
	applied bool
}

// Run processes the target list and returns the aggregated state. A
// single target's failure never aborts the run; cancellation stops
// dispatch, lets in-flight targets finish their current attempt, and
// returns the partial state with a nil error. Only an exhausted error
// budget returns ErrExcessiveFailureRate, and even then the partial
// aggregator is returned alongside it.
func (s *Scheduler) Run(ctx context.Context, targets []FetchTarget) (*Aggregator, error) {
	agg := NewAggregator()
	if len(targets) == 0 {
		agg.Finish(RunStatusCompleted)
		return agg, nil
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	jobs := make(chan job)
	results := make(chan indexedOutcome, s.cfg.Width)

	var workerWG sync.WaitGroup
	for range s.cfg.Width {
		workerWG.Add(1)
		go func() {
			defer workerWG.Done()
			for j := range jobs {
				out, applied := s.processTarget(runCtx, j.target)
				results <- indexedOutcome{idx: j.idx, out: out, applied: applied}
				j.brandWG.Done()
			}
		}()
	}

	go s.dispatch(runCtx, targets, jobs)
	go func() {
		workerWG.Wait()
		close(results)
	}()

	var (
		pending = make(map[int]indexedOutcome)
		next    = 0
		runErr  error
	)
	for res := range results {
		pending[res.idx] = res
		for {
			buffered, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			if !buffered.applied {
				continue
			}
			agg.Apply(buffered.out)
			s.observeOutcome(buffered.out)
			if runErr == nil && s.budgetExceeded(agg) {
				runErr = fmt.Errorf("%w: %d of %d targets failed",
					ErrExcessiveFailureRate, agg.FailureCount(), agg.AttemptedCount())
				s.logger.Error("aborting run", zap.Error(runErr))
				cancelRun()
			}
		}
	}

	switch {
	case runErr != nil:
		agg.Finish(RunStatusAborted)
	case ctx.Err() != nil:
		s.logger.Warn("run canceled, returning partial state",
			zap.Int("targets_finalized", agg.AttemptedCount()),
			zap.Int("targets_total", len(targets)),
		)
		agg.Finish(RunStatusCanceled)
	default:
		agg.Finish(RunStatusCompleted)
	}
	return agg, runErr
}

// dispatch feeds targets to the workers, one brand at a time. The brand
// barrier keeps two brands from ever being in flight together, which is
// what makes the observable request rate predictable.
func (s *Scheduler) dispatch(ctx context.Context, targets []FetchTarget, jobs chan<- job) {
	defer close(jobs)

	idx := 0
	for _, batch := range groupByBrand(targets) {
		if idx > 0 {
			if !s.pause(ctx, s.cfg.BrandDelay) {
				return
			}
		}
		var brandWG sync.WaitGroup
		for i, target := range batch {
			if i > 0 {
				if !s.pause(ctx, s.cfg.LocationDelay) {
					brandWG.Wait()
					return
				}
			}
			brandWG.Add(1)
			select {
			case jobs <- job{idx: idx, target: target, brandWG: &brandWG}:
				idx++
			case <-ctx.Done():
				brandWG.Done()
				brandWG.Wait()
				return
			}
		}
		brandWG.Wait()
		if ctx.Err() != nil {
			return
		}
	}
}

// groupByBrand splits the ordered target list into consecutive same-brand
// batches without reordering anything.
func groupByBrand(targets []FetchTarget) [][]FetchTarget {
	var batches [][]FetchTarget
	for _, t := range targets {
		n := len(batches)
		if n == 0 || batches[n-1][0].Brand != t.Brand {
			batches = append(batches, []FetchTarget{t})
			continue
		}
		batches[n-1] = append(batches[n-1], t)
	}
	return batches
}

// processTarget drives one target through the retry state machine:
// Pending -> Attempting -> (Succeeded | RetryScheduled -> Attempting |
// Failed). The second return value is false when cancellation ended the
// target before a terminal state; such targets are neither successes nor
// ledger failures.
func (s *Scheduler) processTarget(ctx context.Context, target FetchTarget) (TargetOutcome, bool) {
	renderer, ok := s.acquireLease(ctx)
	if !ok {
		return TargetOutcome{Target: target}, false
	}
	metrics.IncActiveWorkers()
	defer func() {
		s.releaseLease(renderer)
		metrics.DecActiveWorkers()
	}()

	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			metrics.ObserveRetry(target.Brand)
			if !s.pause(ctx, s.backoffWindow(attempt)) {
				return TargetOutcome{Target: target}, false
			}
		}

		out, err := s.attempt(ctx, renderer, target)
		if err == nil {
			out.Attempts = attempt
			return out, true
		}
		lastErr = err
		s.logger.Warn("target attempt failed",
			zap.String("brand", target.Brand),
			zap.String("location", target.Location),
			zap.Int("attempt", attempt),
			zap.String("kind", ErrorKind(err)),
			zap.Error(err),
		)
		if !Retryable(err) {
			return TargetOutcome{Target: target, Attempts: attempt, Err: err}, true
		}
		if ctx.Err() != nil {
			return TargetOutcome{Target: target}, false
		}
	}
	return TargetOutcome{Target: target, Attempts: s.cfg.MaxAttempts, Err: lastErr}, true
}

// attempt performs one render+extract+validate cycle. Zero containers on
// a loaded page is a legitimate empty result, not an error.
func (s *Scheduler) attempt(ctx context.Context, renderer Renderer, target FetchTarget) (TargetOutcome, error) {
	page, err := renderer.Render(ctx, target.URL)
	if err != nil {
		return TargetOutcome{}, err
	}
	metrics.ObserveRender(target.Brand, page.Duration)

	candidates, err := s.extractor.Extract(page, target)
	if err != nil {
		return TargetOutcome{}, err
	}

	out := TargetOutcome{Target: target, Extracted: len(candidates)}
	for _, candidate := range candidates {
		record, verr := s.validator.Validate(candidate)
		if verr != nil {
			out.Rejected++
			s.logger.Debug("candidate rejected",
				zap.String("brand", target.Brand),
				zap.String("location", target.Location),
				zap.Error(verr),
			)
			continue
		}
		out.Records = append(out.Records, record)
	}
	return out, nil
}

func (s *Scheduler) acquireLease(ctx context.Context) (Renderer, bool) {
	select {
	case r := <-s.leases:
		return r, true
	case <-ctx.Done():
		return nil, false
	}
}

func (s *Scheduler) releaseLease(r Renderer) {
	s.leases <- r
}

// backoffWindow doubles the base per prior attempt, caps it, and fuzzes
// the upper half so retry storms from concurrent workers stay spread out.
func (s *Scheduler) backoffWindow(attempt int) DelayWindow {
	backoff := s.cfg.BackoffBase << (attempt - 2)
	if backoff > s.cfg.BackoffMax || backoff <= 0 {
		backoff = s.cfg.BackoffMax
	}
	return DelayWindow{Min: backoff, Max: backoff + backoff/2}
}

// pause sleeps for a duration drawn from the window. Returns false if the
// context ended first.
func (s *Scheduler) pause(ctx context.Context, window DelayWindow) bool {
	delay := window.draw()
	if delay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Scheduler) budgetExceeded(agg *Aggregator) bool {
	if s.cfg.FailureRateThreshold <= 0 {
		return false
	}
	attempted := agg.AttemptedCount()
	if attempted < s.cfg.FailureRateMinSample {
		return false
	}
	return float64(agg.FailureCount())/float64(attempted) > s.cfg.FailureRateThreshold
}

func (s *Scheduler) observeOutcome(out TargetOutcome) {
	if out.Err != nil {
		metrics.ObserveTarget(out.Target.Brand, ErrorKind(out.Err))
		return
	}
	metrics.ObserveTarget(out.Target.Brand, "succeeded")
	metrics.ObserveRecords(out.Target.Brand, len(out.Records))
}
