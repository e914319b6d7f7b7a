package storage

import (
	"context"
	"fmt"
	"log/slog"

	"karmacash/internal/core"
)

// InstanceWriter accumulates generated instances and commits them in
// transactions of at most capacity operations. Each batch is atomic on its
// own; a failing batch aborts the remainder but leaves earlier batches
// committed. The capacity is configurable because it derives from a platform
// write ceiling this code does not control.
type InstanceWriter struct {
	repo     *SQLiteRepository
	capacity int
	pending  []core.Transaction
	written  int
	batches  int
}

// NewInstanceWriter returns a writer flushing every capacity instances.
func (r *SQLiteRepository) NewInstanceWriter(capacity int) *InstanceWriter {
	if capacity < 1 {
		capacity = 1
	}
	return &InstanceWriter{
		repo:     r,
		capacity: capacity,
	}
}

// Add buffers one instance, flushing the current batch when full.
func (w *InstanceWriter) Add(ctx context.Context, t core.Transaction) error {
	w.pending = append(w.pending, t)
	if len(w.pending) >= w.capacity {
		return w.Flush(ctx)
	}
	return nil
}

// Flush commits the buffered instances in a single transaction.
func (w *InstanceWriter) Flush(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}

	tx, err := w.repo.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin instance batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertTransactionSQL)
	if err != nil {
		return fmt.Errorf("prepare instance insert: %w", err)
	}
	defer stmt.Close()

	for _, inst := range w.pending {
		if _, err := stmt.ExecContext(ctx, transactionArgs(inst)...); err != nil {
			return fmt.Errorf("insert instance %s: %w", inst.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit instance batch: %w", err)
	}

	w.written += len(w.pending)
	w.batches++
	slog.DebugContext(ctx, "Instance batch committed",
		"batch_size", len(w.pending),
		"total_written", w.written)
	w.pending = w.pending[:0]

	return nil
}

// Written reports how many instances have been committed so far. Instances
// still buffered do not count until Flush succeeds.
func (w *InstanceWriter) Written() int {
	return w.written
}

// Batches reports how many batches have been committed.
func (w *InstanceWriter) Batches() int {
	return w.batches
}
