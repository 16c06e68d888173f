package inmemdb

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/yarcoin/marketplace/core"
	"github.com/yarcoin/marketplace/core/bidding"
	"github.com/yarcoin/marketplace/core/student"
	"github.com/yarcoin/marketplace/core/teacher"
	"github.com/yarcoin/marketplace/core/user"
)

type (
	// DB keeps every table in memory behind a single lock.
	// A transaction holds the write lock for its whole duration and restores a snapshot of the
	// tables when it fails.
	DB struct {
		mu sync.RWMutex
		tables
	}

	tables struct {
		users        map[string]user.User
		students     map[string]studentRow
		achievements map[string]achievementRow
		teachers     map[string]teacherRow
		bids         map[string]bidRow
		seq          int64 // insertion order, breaks ordering ties
	}

	studentRow struct {
		student.Student
		seq int64
	}

	teacherRow struct {
		teacher.Teacher
		seq int64
	}

	achievementRow struct {
		student.Achievement
		seq int64
	}

	bidRow struct {
		bidding.Bid
		seq int64
	}

	txKey struct{}
)

var _ core.Transactor = (*DB)(nil) // interface compliance check

func Open() *DB {
	return &DB{tables: tables{
		users:        make(map[string]user.User),
		students:     make(map[string]studentRow),
		achievements: make(map[string]achievementRow),
		teachers:     make(map[string]teacherRow),
		bids:         make(map[string]bidRow),
	}}
}

// WithTx runs fn with exclusive access to the tables. Nested calls join the outer transaction.
func (db *DB) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if db.inTx(ctx) {
		return fn(ctx)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	snap := db.tables.clone()
	if err := fn(context.WithValue(ctx, txKey{}, db)); err != nil {
		db.tables = snap
		return err
	}
	return nil
}

func (db *DB) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*DB)
	return owner == db
}

// rlock & lock are no-ops inside a transaction, which already holds the write lock.
func (db *DB) rlock(ctx context.Context) func() {
	if db.inTx(ctx) {
		return func() {}
	}
	db.mu.RLock()
	return db.mu.RUnlock
}

func (db *DB) lock(ctx context.Context) func() {
	if db.inTx(ctx) {
		return func() {}
	}
	db.mu.Lock()
	return db.mu.Unlock
}

func (db *DB) nextSeq() int64 {
	db.seq++
	return db.seq
}

func (t tables) clone() tables {
	c := tables{
		users:        make(map[string]user.User, len(t.users)),
		students:     make(map[string]studentRow, len(t.students)),
		achievements: make(map[string]achievementRow, len(t.achievements)),
		teachers:     make(map[string]teacherRow, len(t.teachers)),
		bids:         make(map[string]bidRow, len(t.bids)),
		seq:          t.seq,
	}
	for k, v := range t.users {
		c.users[k] = v
	}
	for k, v := range t.students {
		v.Student = cloneStudent(v.Student)
		c.students[k] = v
	}
	for k, v := range t.achievements {
		c.achievements[k] = v
	}
	for k, v := range t.teachers {
		c.teachers[k] = v
	}
	for k, v := range t.bids {
		c.bids[k] = v
	}
	return c
}

func cloneStrings(ss []string) []string {
	if ss == nil {
		return nil
	}
	return append(make([]string, 0, len(ss)), ss...)
}

func contains(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// comparators by ordering field; each returns <0, 0 or >0 like strings.Compare
type comparators[T any] map[string]func(a, b T) int

// sortRows orders rows by ordering, ignoring unknown fields. Ties keep insertion order.
func sortRows[T any](rows []T, ordering []core.DBOrdering, cmps comparators[T], seq func(T) int64) {
	sort.SliceStable(rows, func(i, j int) bool {
		for _, ord := range ordering {
			cmp, ok := cmps[ord.Field]
			if !ok {
				continue
			}
			c := cmp(rows[i], rows[j])
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return seq(rows[i]) < seq(rows[j])
	})
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
