package inmemdb

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/yarcoin/marketplace/core"
	"github.com/yarcoin/marketplace/core/teacher"
)

var teacherComparators = comparators[teacherRow]{
	"name":      func(a, b teacherRow) int { return strings.Compare(a.Name, b.Name) },
	"purse":     func(a, b teacherRow) int { return cmpInt64(a.Purse, b.Purse) },
	"createdAt": func(a, b teacherRow) int { return a.CreatedAt.Compare(b.CreatedAt) },
}

type teacherRepository struct {
	db *DB
}

var _ teacher.Repository = (*teacherRepository)(nil) // interface compliance check

func NewTeacherRepository(db *DB) *teacherRepository {
	return &teacherRepository{db: db}
}

func (repo *teacherRepository) CreateTeacher(ctx context.Context, t teacher.Teacher) (teacher.Teacher, error) {
	defer repo.db.lock(ctx)()

	for _, row := range repo.db.teachers {
		if row.Email == t.Email {
			return teacher.Teacher{}, teacher.ErrEmailExists
		}
	}
	t.ID = uuid.New().String()
	repo.db.teachers[t.ID] = teacherRow{Teacher: t, seq: repo.db.nextSeq()}
	return t, nil
}

func (repo *teacherRepository) GetTeacher(ctx context.Context, id string) (teacher.Teacher, error) {
	defer repo.db.rlock(ctx)()

	if row, ok := repo.db.teachers[id]; ok {
		return row.Teacher, nil
	}
	return teacher.Teacher{}, teacher.ErrNotFound
}

// LockTeacher reads the teacher. Transactions already hold the whole store exclusively.
func (repo *teacherRepository) LockTeacher(ctx context.Context, id string) (teacher.Teacher, error) {
	return repo.GetTeacher(ctx, id)
}

func (repo *teacherRepository) QueryTeachers(ctx context.Context, filter teacher.QueryFilter, ordering []core.DBOrdering) ([]teacher.Teacher, error) {
	defer repo.db.rlock(ctx)()

	rows := make([]teacherRow, 0, len(repo.db.teachers))
	for _, row := range repo.db.teachers {
		if filter.Search != "" && !contains(row.Name, filter.Search) && !contains(row.Email, filter.Search) {
			continue
		}
		if filter.Specialization != "" && !strings.EqualFold(row.Specialization, filter.Specialization) {
			continue
		}
		rows = append(rows, row)
	}
	sortRows(rows, ordering, teacherComparators, func(r teacherRow) int64 { return r.seq })

	teachers := make([]teacher.Teacher, 0, len(rows))
	for _, row := range rows {
		teachers = append(teachers, row.Teacher)
	}
	return teachers, nil
}

func (repo *teacherRepository) UpdatePurse(ctx context.Context, id string, purse int64) (teacher.Teacher, error) {
	defer repo.db.lock(ctx)()

	if purse < 0 {
		return teacher.Teacher{}, errors.Errorf("purse of teacher %s would become negative (%d)", id, purse)
	}
	row, ok := repo.db.teachers[id]
	if !ok {
		return teacher.Teacher{}, teacher.ErrNotFound
	}
	row.Purse = purse
	row.UpdatedAt = time.Now().UTC()
	repo.db.teachers[id] = row
	return row.Teacher, nil
}
