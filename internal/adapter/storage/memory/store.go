// Package memory provides process-local repositories for single-node
// deployments and tests. Values handed out are copies.
package memory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrTxDone is returned when a finished transaction is used again.
var ErrTxDone = errors.New("memory: transaction already finished")

// Transactor implements ports.DBTransactor. Only one transaction is open at a
// time, which gives FOR UPDATE reads their serializing behaviour.
type Transactor struct {
	sem chan struct{}
}

func NewTransactor() *Transactor {
	return &Transactor{sem: make(chan struct{}, 1)}
}

// Begin blocks until no other transaction is open or ctx is done.
func (t *Transactor) Begin(ctx context.Context) (pgx.Tx, error) {
	select {
	case t.sem <- struct{}{}:
		return &Tx{owner: t}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Tx is a pgx.Tx whose writes are applied immediately and undone on Rollback.
type Tx struct {
	owner *Transactor
	undo  []func()
	done  bool
}

func (tx *Tx) onRollback(fn func()) {
	tx.undo = append(tx.undo, fn)
}

func (tx *Tx) finish() error {
	if tx.done {
		return ErrTxDone
	}
	tx.done = true
	<-tx.owner.sem
	return nil
}

func (tx *Tx) Commit(ctx context.Context) error {
	tx.undo = nil
	return tx.finish()
}

// Rollback reverts writes in reverse order. Calling it after Commit returns
// ErrTxDone, so it is safe to defer.
func (tx *Tx) Rollback(ctx context.Context) error {
	if tx.done {
		return ErrTxDone
	}
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
	return tx.finish()
}

func (tx *Tx) Begin(ctx context.Context) (pgx.Tx, error) { return tx, nil }

func (tx *Tx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, errors.ErrUnsupported
}
func (tx *Tx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (tx *Tx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (tx *Tx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, errors.ErrUnsupported
}
func (tx *Tx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), errors.ErrUnsupported
}
func (tx *Tx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.ErrUnsupported
}
func (tx *Tx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (tx *Tx) Conn() *pgx.Conn                                               { return nil }

// asTx returns the memory transaction behind a pgx.Tx, or nil.
func asTx(tx pgx.Tx) *Tx {
	if mtx, ok := tx.(*Tx); ok && !mtx.done {
		return mtx
	}
	return nil
}
