package pgrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/yarcoin/marketplace/core"
	"github.com/yarcoin/marketplace/core/student"
)

const (
	studentColumns     = "id, name, email, skills, achievements, base_price, yar_balance, owned_by, wallet_address, created_at, updated_at"
	achievementColumns = "id, student_id, name, position, description, date, category, teacher_username, certificate_ref, created_at"
)

var studentOrderColumns = map[string]string{
	"name":       "name",
	"basePrice":  "base_price",
	"yarBalance": "yar_balance",
	"createdAt":  "created_at",
}

type studentRow struct {
	ID            string         `db:"id"`
	Name          string         `db:"name"`
	Email         string         `db:"email"`
	Skills        pq.StringArray `db:"skills"`
	Achievements  pq.StringArray `db:"achievements"`
	BasePrice     int64          `db:"base_price"`
	YarBalance    int64          `db:"yar_balance"`
	OwnedBy       null.String    `db:"owned_by"`
	WalletAddress string         `db:"wallet_address"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func toStudentRow(st student.Student) studentRow {
	return studentRow{
		ID:            st.ID,
		Name:          st.Name,
		Email:         st.Email,
		Skills:        nonNil(st.Skills),
		Achievements:  nonNil(st.Achievements),
		BasePrice:     st.BasePrice,
		YarBalance:    st.YarBalance,
		OwnedBy:       null.NewString(st.OwnedBy, st.OwnedBy != ""),
		WalletAddress: st.WalletAddress,
		CreatedAt:     st.CreatedAt.UTC(),
		UpdatedAt:     st.UpdatedAt.UTC(),
	}
}

func (r studentRow) student() student.Student {
	return student.Student{
		ID:            r.ID,
		Name:          r.Name,
		Email:         r.Email,
		Skills:        nonNil(r.Skills),
		Achievements:  nonNil(r.Achievements),
		BasePrice:     r.BasePrice,
		YarBalance:    r.YarBalance,
		OwnedBy:       r.OwnedBy.String,
		WalletAddress: r.WalletAddress,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

type achievementRow struct {
	ID              string    `db:"id"`
	StudentID       string    `db:"student_id"`
	Name            string    `db:"name"`
	Position        string    `db:"position"`
	Description     string    `db:"description"`
	Date            null.Time `db:"date"`
	Category        string    `db:"category"`
	TeacherUsername string    `db:"teacher_username"`
	CertificateRef  string    `db:"certificate_ref"`
	CreatedAt       time.Time `db:"created_at"`
}

func (r achievementRow) achievement() student.Achievement {
	a := student.Achievement{
		ID:              r.ID,
		StudentID:       r.StudentID,
		Name:            r.Name,
		Position:        r.Position,
		Description:     r.Description,
		Category:        r.Category,
		TeacherUsername: r.TeacherUsername,
		CertificateRef:  r.CertificateRef,
		CreatedAt:       r.CreatedAt.UTC(),
	}
	if r.Date.Valid {
		d := r.Date.Time
		a.Date = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	}
	return a
}

type studentRepository struct {
	store *Store
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(store *Store) *studentRepository {
	return &studentRepository{store: store}
}

// trapNoRowsErr maps "no rows" to student.ErrNotFound
func (repo *studentRepository) trapNoRowsErr(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return student.ErrNotFound
	}
	return mapError(err, msg)
}

func (repo *studentRepository) CreateStudent(ctx context.Context, st student.Student) (student.Student, error) {
	st.ID = uuid.New().String()
	row := toStudentRow(st)

	_, err := sqlx.NamedExecContext(ctx, repo.store.exec(ctx), `
		INSERT INTO students (`+studentColumns+`)
		VALUES (:id, :name, :email, :skills, :achievements, :base_price, :yar_balance, :owned_by, :wallet_address, :created_at, :updated_at)`,
		row)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return student.Student{}, student.ErrEmailExists
		}
		return student.Student{}, mapError(err, "inserting student")
	}
	return row.student(), nil
}

func (repo *studentRepository) get(ctx context.Context, id string, forUpdate bool) (student.Student, error) {
	if !validID(id) {
		return student.Student{}, student.ErrNotFound
	}
	q := "SELECT " + studentColumns + " FROM students WHERE id = $1"
	if forUpdate {
		q += " FOR UPDATE"
	}

	var row studentRow
	if err := repo.store.exec(ctx).GetContext(ctx, &row, q, id); err != nil {
		return student.Student{}, repo.trapNoRowsErr(err, "getting student")
	}
	return row.student(), nil
}

func (repo *studentRepository) GetStudent(ctx context.Context, id string) (student.Student, error) {
	return repo.get(ctx, id, false)
}

// LockStudent takes the row lock; it is held until the surrounding transaction ends.
func (repo *studentRepository) LockStudent(ctx context.Context, id string) (student.Student, error) {
	return repo.get(ctx, id, true)
}

func (repo *studentRepository) QueryStudents(ctx context.Context, filter student.QueryFilter, ordering []core.DBOrdering) ([]student.Student, error) {
	w := new(where)
	if filter.Search != "" {
		pattern := likePattern(filter.Search)
		w.add("(name ILIKE ? OR email ILIKE ?)", pattern, pattern)
	}
	if filter.OwnedBy != "" {
		if !validID(filter.OwnedBy) {
			return []student.Student{}, nil
		}
		w.add("owned_by = ?", filter.OwnedBy)
	}
	if filter.Skill != "" {
		w.add("EXISTS (SELECT 1 FROM unnest(skills) skill WHERE lower(skill) = lower(?))", filter.Skill)
	}
	q := "SELECT " + studentColumns + " FROM students" + w.String() + orderBy(ordering, studentOrderColumns, "created_at, id")

	var rows []studentRow
	if err := repo.store.exec(ctx).SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, mapError(err, "querying students")
	}
	students := make([]student.Student, 0, len(rows))
	for _, row := range rows {
		students = append(students, row.student())
	}
	return students, nil
}

func (repo *studentRepository) UpdateStudent(ctx context.Context, st student.Student) (student.Student, error) {
	if !validID(st.ID) {
		return student.Student{}, student.ErrNotFound
	}
	row := toStudentRow(st)

	// only save mutable fields
	var updated studentRow
	err := repo.store.exec(ctx).GetContext(ctx, &updated, `
		UPDATE students SET skills = $2, achievements = $3, yar_balance = $4, owned_by = $5, updated_at = $6
		WHERE id = $1
		RETURNING `+studentColumns,
		row.ID, row.Skills, row.Achievements, row.YarBalance, row.OwnedBy, row.UpdatedAt)
	if err != nil {
		return student.Student{}, repo.trapNoRowsErr(err, "updating student")
	}
	return updated.student(), nil
}

func (repo *studentRepository) CreateAchievement(ctx context.Context, a student.Achievement) (student.Achievement, error) {
	if !validID(a.StudentID) {
		return student.Achievement{}, student.ErrNotFound
	}
	a.ID = uuid.New().String()
	row := achievementRow{
		ID:              a.ID,
		StudentID:       a.StudentID,
		Name:            a.Name,
		Position:        a.Position,
		Description:     a.Description,
		Date:            null.NewTime(a.Date, !a.Date.IsZero()),
		Category:        a.Category,
		TeacherUsername: a.TeacherUsername,
		CertificateRef:  a.CertificateRef,
		CreatedAt:       a.CreatedAt.UTC(),
	}

	_, err := sqlx.NamedExecContext(ctx, repo.store.exec(ctx), `
		INSERT INTO achievements (`+achievementColumns+`)
		VALUES (:id, :student_id, :name, :position, :description, :date, :category, :teacher_username, :certificate_ref, :created_at)`,
		row)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" { // foreign_key_violation
			return student.Achievement{}, student.ErrNotFound
		}
		return student.Achievement{}, mapError(err, "inserting achievement")
	}
	return row.achievement(), nil
}

func (repo *studentRepository) QueryAchievements(ctx context.Context, studentID string) ([]student.Achievement, error) {
	if !validID(studentID) {
		return []student.Achievement{}, nil
	}

	var rows []achievementRow
	err := repo.store.exec(ctx).SelectContext(ctx, &rows,
		"SELECT "+achievementColumns+" FROM achievements WHERE student_id = $1 ORDER BY created_at, id", studentID)
	if err != nil {
		return nil, mapError(err, "querying achievements")
	}
	achievements := make([]student.Achievement, 0, len(rows))
	for _, row := range rows {
		achievements = append(achievements, row.achievement())
	}
	return achievements, nil
}
