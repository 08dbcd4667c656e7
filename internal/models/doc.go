// Package models defines domain entities for the vmx video migration service.
//
// The package contains two categories of types:
//
// 1. Transfer types passed between pipeline stages:
//   - [Credential] : Opaque capability bundle for one source platform
//   - [Passthrough] : Correlation payload round-tripped through the destination
//
// 2. Persistent entities backed by the durable store:
//   - [Video] : One source asset under migration, keyed by (environment, source id)
//   - [Job] : One migration run, pinned to a single environment
//   - [Report] : One entry in a job's append-only progress ledger
//
// Video status transitions are monotonic: unmigrated → in-progress →
// {completed, failed}, with skipped reachable only from unmigrated. Terminal
// states accept no further transition; [VideoStatus.CanTransition] encodes the
// full relation.
package models
