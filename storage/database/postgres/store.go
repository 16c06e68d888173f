package pgrepos

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/yarcoin/marketplace/core"
)

type txKey struct{}

// Store hands out the executor for a context: the running transaction if any, the pool otherwise.
type Store struct {
	db          core.DB
	lockTimeout time.Duration
}

var _ core.Transactor = (*Store)(nil) // interface compliance check

// NewStore returns a Store. Row lock waits inside transactions are bounded by lockTimeout (0 waits forever).
func NewStore(db core.DB, lockTimeout time.Duration) *Store {
	return &Store{db: db, lockTimeout: lockTimeout}
}

func (s *Store) exec(ctx context.Context) core.DBExecutor {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return s.db
}

// WithTx runs fn in a transaction. Nested calls join the outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return mapError(err, "beginning transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if err = tx.Commit(); err != nil {
			err = mapError(err, "committing transaction")
		}
	}()

	if s.lockTimeout > 0 {
		// SET does not take bind parameters
		q := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if _, err = tx.ExecContext(ctx, q); err != nil {
			return mapError(err, "setting lock timeout")
		}
	}
	return fn(context.WithValue(ctx, txKey{}, tx))
}

// mapError turns driver errors into domain errors: lock waits and serialization failures
// become core.ErrBusy, connection failures become persistence errors.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	if _, ok := core.AsDomainError(err); ok {
		return err
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "55P03", // lock_not_available
			"40001", // serialization_failure
			"40P01", // deadlock_detected
			"57014": // query_canceled
			return core.ErrBusy
		}
		if pqErr.Code.Class() == "08" { // connection exception
			return core.NewPersistenceError(errors.Wrap(err, msg))
		}
		return errors.Wrap(err, msg)
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return core.NewPersistenceError(errors.Wrap(err, msg))
	}
	return errors.Wrap(err, msg)
}

// uniqueViolation returns the violated constraint name, if err is a unique violation.
func uniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return pqErr.Constraint, true
	}
	return "", false
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// orderBy builds an ORDER BY clause from the whitelisted columns; unknown fields are skipped.
// tiebreak always comes last so that results are stable.
func orderBy(ordering []core.DBOrdering, columns map[string]string, tiebreak string) string {
	list := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		col, ok := columns[ord.Field]
		if !ok {
			continue
		}
		list = append(list, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
	}
	list = append(list, tiebreak)
	return " ORDER BY " + strings.Join(list, ", ")
}

// where accumulates conditions with positional parameters.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, args ...interface{}) {
	for _, arg := range args {
		w.args = append(w.args, arg)
		cond = strings.Replace(cond, "?", fmt.Sprintf("$%d", len(w.args)), 1)
	}
	w.conds = append(w.conds, cond)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}
