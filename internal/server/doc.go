// Package server provides HTTP routing, middleware, and the webhook-facing
// endpoints of the video migration service.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # Webhook Correlator
//
// [WebhookHandler] receives the destination platform's asynchronous callback
// events and correlates them back to migration records through the passthrough
// payload echoed in each event. Delivery is at-least-once and unordered, so
// every branch is safe under replay: ready events finalize idempotently,
// created events only append ledger reports, and events without a decodable
// passthrough are acknowledged and dropped.
//
// # Job Status
//
// [JobStatusHandler] serves read-only job snapshots: the job record, the full
// per-video report ledger, and aggregate counts keyed by each video's latest
// reported status.
//
// # Credential Validation
//
// [CredentialHandler] checks submitted source-platform credentials with a live
// read-only probe against the platform before they are trusted for a run.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
