package server

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type beginnerFunc func(ctx context.Context) (pgx.Tx, error)

func (f beginnerFunc) Begin(ctx context.Context) (pgx.Tx, error) { return f(ctx) }

// recordingTx captures every Exec and answers with pre-programmed command
// tags, popped in call order.
type recordingTx struct {
	execSQLs  []string
	execArgs  [][]any
	execTags  []pgconn.CommandTag
	execErr   error
	committed bool
	rolled    bool
}

func (t *recordingTx) Begin(context.Context) (pgx.Tx, error) { return t, nil }
func (t *recordingTx) Commit(context.Context) error          { t.committed = true; return nil }
func (t *recordingTx) Rollback(context.Context) error        { t.rolled = true; return nil }
func (t *recordingTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *recordingTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (t *recordingTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (t *recordingTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *recordingTx) Conn() *pgx.Conn { return nil }

func (t *recordingTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	t.execSQLs = append(t.execSQLs, sql)
	t.execArgs = append(t.execArgs, args)
	if t.execErr != nil {
		return pgconn.CommandTag{}, t.execErr
	}
	if len(t.execTags) > 0 {
		tag := t.execTags[0]
		t.execTags = t.execTags[1:]
		return tag, nil
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (t *recordingTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, pgx.ErrNoRows
}

func (t *recordingTx) QueryRow(context.Context, string, ...any) pgx.Row {
	return stubRow{err: pgx.ErrNoRows}
}

type stubRow struct {
	err error
}

func (r stubRow) Scan(...any) error { return r.err }
