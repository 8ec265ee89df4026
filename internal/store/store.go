package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/Simplici0/batchcost/internal/domain"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries runs statements against either the database or an open transaction.
type Queries struct {
	q querier
}

// Store is the relational persistence layer.
type Store struct {
	*Queries
	db *sql.DB
}

// New wraps an open database.
func New(db *sql.DB) *Store {
	return &Store{Queries: &Queries{q: db}, db: db}
}

// WithTx runs fn inside a single transaction. Any error returned by fn, or a
// panic, rolls back every write fn made.
func (s *Store) WithTx(ctx context.Context, fn func(q *Queries) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&Queries{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Result is the outcome of a compare-and-swap write.
type Result int

const (
	// Applied means the row matched the expected version and was written.
	Applied Result = iota
	// Conflict means the stored version differs from the expected one.
	Conflict
	// Missing means the row does not exist or is soft-deleted.
	Missing
	// Frozen means the row matched but is frozen and refuses the write.
	Frozen
)

func (r Result) String() string {
	switch r {
	case Applied:
		return "applied"
	case Conflict:
		return "conflict"
	case Missing:
		return "missing"
	case Frozen:
		return "frozen"
	default:
		return "unknown"
	}
}

// Outcome reports a compare-and-swap write. Version is the stored version
// after the write, or the version that caused the conflict.
type Outcome struct {
	Result  Result
	Version int64
}

// casOutcome inspects the result of an `UPDATE ... WHERE id = ? AND version = ?`.
// frozenExpr, when set, is a boolean SQL expression telling whether the row
// is frozen.
func (q *Queries) casOutcome(ctx context.Context, res sql.Result, table string, id, expected int64, frozenExpr string) (Outcome, error) {
	affected, err := res.RowsAffected()
	if err != nil {
		return Outcome{}, fmt.Errorf("%s %d rows affected: %w", table, id, err)
	}
	if affected == 1 {
		return Outcome{Result: Applied, Version: expected + 1}, nil
	}

	if frozenExpr == "" {
		frozenExpr = "FALSE"
	}
	var (
		version   int64
		deletedAt sql.NullString
		frozen    bool
	)
	err = q.q.QueryRowContext(ctx,
		`SELECT version, deleted_at, `+frozenExpr+` FROM `+table+` WHERE id = ?`, id,
	).Scan(&version, &deletedAt, &frozen)
	if errors.Is(err, sql.ErrNoRows) {
		return Outcome{Result: Missing}, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("inspect %s %d: %w", table, id, err)
	}

	switch {
	case deletedAt.Valid:
		return Outcome{Result: Missing, Version: version}, nil
	case version != expected:
		return Outcome{Result: Conflict, Version: version}, nil
	case frozen:
		return Outcome{Result: Frozen, Version: version}, nil
	default:
		return Outcome{Result: Conflict, Version: version}, nil
	}
}

// Err translates a non-applied outcome into the domain error taxonomy.
func (o Outcome) Err(entity string, id, expected int64) error {
	switch o.Result {
	case Applied:
		return nil
	case Conflict:
		return &domain.ConflictError{Entity: entity, ID: id, Expected: expected, Actual: o.Version}
	case Missing:
		return fmt.Errorf("%s %d: %w", entity, id, domain.ErrNotFound)
	case Frozen:
		return fmt.Errorf("%s %d: %w", entity, id, domain.ErrFrozen)
	default:
		return fmt.Errorf("%s %d: unexpected write outcome %s", entity, id, o.Result)
	}
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTS(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseNullableTS(raw sql.NullString) *time.Time {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	t := parseTS(raw.String)
	return &t
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

func idPtr(raw sql.NullInt64) *int64 {
	if !raw.Valid {
		return nil
	}
	v := raw.Int64
	return &v
}

// auditColumns is appended to every SELECT that scans into auditScan.
const auditColumns = `created_at, updated_at, created_by, updated_by, deleted_at, COALESCE(deleted_by, ''), version`

type auditScan struct {
	createdAt string
	updatedAt string
	deletedAt sql.NullString
	a         *domain.Audit
}

func newAuditScan(a *domain.Audit) *auditScan {
	return &auditScan{a: a}
}

func (s *auditScan) dest() []any {
	return []any{&s.createdAt, &s.updatedAt, &s.a.CreatedBy, &s.a.UpdatedBy, &s.deletedAt, &s.a.DeletedBy, &s.a.Version}
}

func (s *auditScan) finish() {
	s.a.CreatedAt = parseTS(s.createdAt)
	s.a.UpdatedAt = parseTS(s.updatedAt)
	s.a.DeletedAt = parseNullableTS(s.deletedAt)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func notFound(entity string, id int64, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %d: %w", entity, id, domain.ErrNotFound)
	}
	return fmt.Errorf("query %s %d: %w", entity, id, err)
}
