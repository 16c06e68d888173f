package inmemdb

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/yarcoin/marketplace/core"
	"github.com/yarcoin/marketplace/core/student"
)

var studentComparators = comparators[studentRow]{
	"name":       func(a, b studentRow) int { return strings.Compare(a.Name, b.Name) },
	"basePrice":  func(a, b studentRow) int { return cmpInt64(a.BasePrice, b.BasePrice) },
	"yarBalance": func(a, b studentRow) int { return cmpInt64(a.YarBalance, b.YarBalance) },
	"createdAt":  func(a, b studentRow) int { return a.CreatedAt.Compare(b.CreatedAt) },
}

type studentRepository struct {
	db *DB
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(db *DB) *studentRepository {
	return &studentRepository{db: db}
}

// cloneStudent copies the slices so that callers never share them with the table.
func cloneStudent(st student.Student) student.Student {
	st.Skills = cloneStrings(st.Skills)
	st.Achievements = cloneStrings(st.Achievements)
	return st
}

func (repo *studentRepository) CreateStudent(ctx context.Context, st student.Student) (student.Student, error) {
	defer repo.db.lock(ctx)()

	for _, row := range repo.db.students {
		if row.Email == st.Email {
			return student.Student{}, student.ErrEmailExists
		}
	}
	st.ID = uuid.New().String()
	repo.db.students[st.ID] = studentRow{Student: cloneStudent(st), seq: repo.db.nextSeq()}
	return st, nil
}

func (repo *studentRepository) GetStudent(ctx context.Context, id string) (student.Student, error) {
	defer repo.db.rlock(ctx)()

	if row, ok := repo.db.students[id]; ok {
		return cloneStudent(row.Student), nil
	}
	return student.Student{}, student.ErrNotFound
}

// LockStudent reads the student. Transactions already hold the whole store exclusively.
func (repo *studentRepository) LockStudent(ctx context.Context, id string) (student.Student, error) {
	return repo.GetStudent(ctx, id)
}

func (repo *studentRepository) QueryStudents(ctx context.Context, filter student.QueryFilter, ordering []core.DBOrdering) ([]student.Student, error) {
	defer repo.db.rlock(ctx)()

	rows := make([]studentRow, 0, len(repo.db.students))
	for _, row := range repo.db.students {
		if filter.Search != "" && !contains(row.Name, filter.Search) && !contains(row.Email, filter.Search) {
			continue
		}
		if filter.OwnedBy != "" && row.OwnedBy != filter.OwnedBy {
			continue
		}
		if filter.Skill != "" && !hasSkill(row.Skills, filter.Skill) {
			continue
		}
		rows = append(rows, row)
	}
	sortRows(rows, ordering, studentComparators, func(r studentRow) int64 { return r.seq })

	students := make([]student.Student, 0, len(rows))
	for _, row := range rows {
		students = append(students, cloneStudent(row.Student))
	}
	return students, nil
}

func hasSkill(skills []string, skill string) bool {
	for _, s := range skills {
		if strings.EqualFold(s, skill) {
			return true
		}
	}
	return false
}

func (repo *studentRepository) UpdateStudent(ctx context.Context, st student.Student) (student.Student, error) {
	defer repo.db.lock(ctx)()

	// only save mutable fields
	row, ok := repo.db.students[st.ID]
	if !ok {
		return student.Student{}, student.ErrNotFound
	}
	row.Skills = cloneStrings(st.Skills)
	row.Achievements = cloneStrings(st.Achievements)
	row.YarBalance = st.YarBalance
	row.OwnedBy = st.OwnedBy
	row.UpdatedAt = st.UpdatedAt
	repo.db.students[st.ID] = row
	return cloneStudent(row.Student), nil
}

func (repo *studentRepository) CreateAchievement(ctx context.Context, a student.Achievement) (student.Achievement, error) {
	defer repo.db.lock(ctx)()

	if _, ok := repo.db.students[a.StudentID]; !ok {
		return student.Achievement{}, student.ErrNotFound
	}
	a.ID = uuid.New().String()
	repo.db.achievements[a.ID] = achievementRow{Achievement: a, seq: repo.db.nextSeq()}
	return a, nil
}

func (repo *studentRepository) QueryAchievements(ctx context.Context, studentID string) ([]student.Achievement, error) {
	defer repo.db.rlock(ctx)()

	rows := make([]achievementRow, 0)
	for _, row := range repo.db.achievements {
		if row.StudentID == studentID {
			rows = append(rows, row)
		}
	}
	sortRows(rows, nil, nil, func(r achievementRow) int64 { return r.seq })

	achievements := make([]student.Achievement, 0, len(rows))
	for _, row := range rows {
		achievements = append(achievements, row.Achievement)
	}
	return achievements, nil
}
