package pgrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/yarcoin/marketplace/core"
	"github.com/yarcoin/marketplace/core/teacher"
)

const teacherColumns = "id, name, email, specialization, purse, wallet_address, created_at, updated_at"

var teacherOrderColumns = map[string]string{
	"name":      "name",
	"purse":     "purse",
	"createdAt": "created_at",
}

type teacherRow struct {
	ID             string    `db:"id"`
	Name           string    `db:"name"`
	Email          string    `db:"email"`
	Specialization string    `db:"specialization"`
	Purse          int64     `db:"purse"`
	WalletAddress  string    `db:"wallet_address"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

func (r teacherRow) teacher() teacher.Teacher {
	return teacher.Teacher{
		ID:             r.ID,
		Name:           r.Name,
		Email:          r.Email,
		Specialization: r.Specialization,
		Purse:          r.Purse,
		WalletAddress:  r.WalletAddress,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

type teacherRepository struct {
	store *Store
}

var _ teacher.Repository = (*teacherRepository)(nil) // interface compliance check

func NewTeacherRepository(store *Store) *teacherRepository {
	return &teacherRepository{store: store}
}

// trapNoRowsErr maps "no rows" to teacher.ErrNotFound
func (repo *teacherRepository) trapNoRowsErr(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return teacher.ErrNotFound
	}
	return mapError(err, msg)
}

func (repo *teacherRepository) CreateTeacher(ctx context.Context, t teacher.Teacher) (teacher.Teacher, error) {
	t.ID = uuid.New().String()
	row := teacherRow{
		ID:             t.ID,
		Name:           t.Name,
		Email:          t.Email,
		Specialization: t.Specialization,
		Purse:          t.Purse,
		WalletAddress:  t.WalletAddress,
		CreatedAt:      t.CreatedAt.UTC(),
		UpdatedAt:      t.UpdatedAt.UTC(),
	}

	_, err := sqlx.NamedExecContext(ctx, repo.store.exec(ctx), `
		INSERT INTO teachers (`+teacherColumns+`)
		VALUES (:id, :name, :email, :specialization, :purse, :wallet_address, :created_at, :updated_at)`,
		row)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return teacher.Teacher{}, teacher.ErrEmailExists
		}
		return teacher.Teacher{}, mapError(err, "inserting teacher")
	}
	return row.teacher(), nil
}

func (repo *teacherRepository) get(ctx context.Context, id string, forUpdate bool) (teacher.Teacher, error) {
	if !validID(id) {
		return teacher.Teacher{}, teacher.ErrNotFound
	}
	q := "SELECT " + teacherColumns + " FROM teachers WHERE id = $1"
	if forUpdate {
		q += " FOR UPDATE"
	}

	var row teacherRow
	if err := repo.store.exec(ctx).GetContext(ctx, &row, q, id); err != nil {
		return teacher.Teacher{}, repo.trapNoRowsErr(err, "getting teacher")
	}
	return row.teacher(), nil
}

func (repo *teacherRepository) GetTeacher(ctx context.Context, id string) (teacher.Teacher, error) {
	return repo.get(ctx, id, false)
}

// LockTeacher takes the row lock; it is held until the surrounding transaction ends.
func (repo *teacherRepository) LockTeacher(ctx context.Context, id string) (teacher.Teacher, error) {
	return repo.get(ctx, id, true)
}

func (repo *teacherRepository) QueryTeachers(ctx context.Context, filter teacher.QueryFilter, ordering []core.DBOrdering) ([]teacher.Teacher, error) {
	w := new(where)
	if filter.Search != "" {
		pattern := likePattern(filter.Search)
		w.add("(name ILIKE ? OR email ILIKE ?)", pattern, pattern)
	}
	if filter.Specialization != "" {
		w.add("lower(specialization) = lower(?)", filter.Specialization)
	}
	q := "SELECT " + teacherColumns + " FROM teachers" + w.String() + orderBy(ordering, teacherOrderColumns, "created_at, id")

	var rows []teacherRow
	if err := repo.store.exec(ctx).SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, mapError(err, "querying teachers")
	}
	teachers := make([]teacher.Teacher, 0, len(rows))
	for _, row := range rows {
		teachers = append(teachers, row.teacher())
	}
	return teachers, nil
}

func (repo *teacherRepository) UpdatePurse(ctx context.Context, id string, purse int64) (teacher.Teacher, error) {
	if purse < 0 {
		return teacher.Teacher{}, errors.Errorf("purse of teacher %s would become negative (%d)", id, purse)
	}
	if !validID(id) {
		return teacher.Teacher{}, teacher.ErrNotFound
	}

	var row teacherRow
	err := repo.store.exec(ctx).GetContext(ctx, &row,
		"UPDATE teachers SET purse = $2, updated_at = $3 WHERE id = $1 RETURNING "+teacherColumns,
		id, purse, time.Now().UTC())
	if err != nil {
		return teacher.Teacher{}, repo.trapNoRowsErr(err, "updating teacher purse")
	}
	return row.teacher(), nil
}
