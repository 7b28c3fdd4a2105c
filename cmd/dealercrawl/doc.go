// Package main hosts the dealercrawl CLI entrypoint.
//
// Architecture overview:
//   - Target matrix: internal/config expands vehicle_types -> brands -> locations
//     into an ordered list of fetch targets, resolving location names against the
//     city catalog (internal/catalog, fetched once per run and cached on disk).
//     Unknown locations are logged and skipped, never fatal.
//   - Scheduling: internal/crawl.Scheduler walks the matrix one brand at a time
//     with fuzzed delays between locations and brands. A small worker pool
//     (crawler.concurrency_width) leases headless browsers exclusively, and a
//     single collector applies outcomes strictly in target order so two runs
//     over the same matrix produce identically ordered output.
//   - Fetch pipeline: internal/render drives a pool of chromedp browsers. Each
//     target gets a fresh tab, a navigation timeout, a per-host QPS ceiling,
//     scroll passes for lazily rendered cards, and a settle delay for
//     client-side content. Failures map onto a small error
//     taxonomy; retryable kinds get exponential backoff with jitter up to
//     crawler.max_retries, then land in the failure ledger.
//   - Extraction: internal/extract parses the rendered HTML with goquery,
//     pulling name/address/phone/email out of each dealer card. Validation
//     enforces required fields, normalizes phones, and derives city/state/
//     pincode from the address. Records deduplicate run-wide on a normalized
//     name+address identity key, first occurrence wins.
//   - Outputs: internal/output writes dealers as CSV and NDJSON, the failure
//     ledger as CSV, and the run summary as JSON. With db.dsn configured,
//     internal/storage/postgres also inserts accepted records keyed by run ID.
//   - Plumbing: Viper populates config from file/env (DEALERCRAWL_ prefix); zap
//     provides structured logging; optional Prometheus metrics are served on
//     metrics.addr for long runs.
//
// Operational notes:
//   - A failed target never aborts the run; only an excessive overall failure
//     rate does, and even then partial results are written first. SIGINT/SIGTERM
//     stop dispatch, let in-flight targets finish, and flush partial results.
//   - Run locally: go run ./cmd/dealercrawl crawl --config config.yaml, or
//     dealercrawl cities to inspect the location catalog.
package main
