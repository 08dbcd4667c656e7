// Package repositories implements SQLite persistence for the migration domain.
//
// Every mutation is a single-document keyed update: videos are addressed by
// (environment, source_id), jobs by id, and reports are append-only. Nothing
// here requires a multi-row transaction, which keeps the concurrency model
// lock-free at the data layer — concurrent jobs touching overlapping catalogs
// race benignly on keyed upserts.
//
// Key Implementations:
//   - [VideoRepository] : Durable video records with keyed upsert, partial
//     update, idempotent finalize, and the filtered status scan backing resume
//   - [JobRepository] : Migration runs with cursor checkpointing
//   - [ReportRepository] : Append-only per-job progress ledger
//
// Each repository takes its *sql.DB at construction; the handle is scoped to
// one environment and owned by the caller.
package repositories
