// Package pipeline orchestrates video migration runs with real-time progress reporting.
//
// # Core Operations
//
// The [Engine] interface defines three operations:
//
//  1. [Engine.Enumerate] : Drive a provider's pagination to exhaustion
//     - Repeatedly invokes FetchPage from a nil cursor
//     - Filters every candidate through the idempotency [Guard] before any
//       access URL is resolved
//     - Checkpoints the last good cursor on the job record after each page
//
//  2. [Engine.Migrate] : Per-video orchestration
//     - Resolves each survivor's transient access URL
//     - Submits the URL plus correlation payload to the destination
//     - Returns at submission; terminal states arrive later via webhooks
//
//  3. [Engine.Resume] : Re-queue unfinished videos from the durable store
//     - Scans the store for unmigrated records instead of re-listing the
//       source platform, then dispatches them like Migrate
//
// # Progress Reporting
//
// All operations use non-blocking channels for progress updates
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and
// optional data for advanced consumers. Updates use select with default to
// prevent blocking. Durable progress — the ledger the status endpoint reads —
// goes through the [Tracker] interface instead: every terminal disposition is
// reported exactly once with progress 100, and every non-terminal report
// carries a monotonically non-decreasing progress value.
//
// # Concurrency
//
// Enumeration is single-threaded per job; pagination cursors are not safe for
// concurrent advancement. Per-video migration runs on a worker pool bounded
// by the provider's concurrent resolution limit. The coordinator never waits
// for a webhook.
package pipeline
