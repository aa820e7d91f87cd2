// Package ledger records the receipts of validateAnswer transactions. The
// memory driver keeps them in process (optionally mirrored to a JSON lines
// file); the mysql and sqlite drivers share one SQL implementation and an
// embedded migration set.
package ledger
