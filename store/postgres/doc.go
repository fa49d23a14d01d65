// Package postgres implements the store using pgx/v5 with raw SQL.
// Features: partial unique indexes enforcing one active and one published
// job per slot, per-slot advisory locks around creation, compare-and-swap
// updates on updated_at, lease upserts that only replace expired rows, and
// embedded SQL migrations.
package postgres
