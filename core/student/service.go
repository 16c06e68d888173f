package student

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/yarcoin/marketplace/core"
)

var (
	// errors
	ErrNotFound    = core.NewDomainError(core.KindNotFound, "student_not_found", "student not found")
	ErrEmailExists = core.NewDomainError(core.KindConflict, "email_taken", "a student with this email already exists")
)

// CertificateField is the name of the multipart field carrying an achievement certificate.
const CertificateField = "certificate"

// certificateExts lists the accepted certificate file types.
var certificateExts = map[string]bool{".pdf": true, ".png": true, ".jpg": true, ".jpeg": true}

func checkCertificateName(filename string) error {
	if !certificateExts[strings.ToLower(filepath.Ext(filename))] {
		return core.NewValidationError(nil, core.FieldError{
			Field: CertificateField,
			Error: "certificate must be a .pdf, .png, .jpg or .jpeg file",
		})
	}
	return nil
}

type (
	Repository interface {
		CreateStudent(ctx context.Context, st Student) (Student, error)
		GetStudent(ctx context.Context, id string) (Student, error)
		// LockStudent reads the student and holds it exclusively until the surrounding transaction ends.
		LockStudent(ctx context.Context, id string) (Student, error)
		// QueryStudents filters on Search (name, email), OwnedBy & Skill; Status is derived by the Service.
		QueryStudents(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Student, error)
		// UpdateStudent saves Skills, Achievements, YarBalance, OwnedBy & UpdatedAt.
		UpdateStudent(ctx context.Context, st Student) (Student, error)
		CreateAchievement(ctx context.Context, a Achievement) (Achievement, error)
		QueryAchievements(ctx context.Context, studentID string) ([]Achievement, error)
	}

	// BidStats reports active bid summaries keyed by student ID. Students without active bids may be missing.
	BidStats interface {
		ActiveBidStats(ctx context.Context, studentIDs ...string) (map[string]BidStat, error)
	}

	Service struct {
		repo  Repository
		stats BidStats
		tx    core.Transactor
		files core.FileStore
		conf  *core.Config
	}
)

func NewService(tx core.Transactor, repo Repository, stats BidStats, files core.FileStore, conf *core.Config) *Service {
	return &Service{
		repo:  repo,
		stats: stats,
		tx:    tx,
		files: files,
		conf:  conf,
	}
}

// Create stores a new Student. ns must have been validated.
func (svc *Service) Create(ctx context.Context, ns NewStudent) (Student, error) {
	wallet, err := core.NewWalletAddress()
	if err != nil {
		return Student{}, errors.Wrap(err, "generating wallet address")
	}
	basePrice := svc.conf.Bidding.DefaultBasePrice
	if ns.BasePrice != nil {
		basePrice = *ns.BasePrice
	}
	skills, achievements := ns.Skills, ns.Achievements
	if skills == nil {
		skills = []string{}
	}
	if achievements == nil {
		achievements = []string{}
	}

	now := time.Now().UTC()
	st, err := svc.repo.CreateStudent(ctx, Student{
		Name:          ns.Name,
		Email:         ns.Email,
		Skills:        skills,
		Achievements:  achievements,
		BasePrice:     basePrice,
		WalletAddress: wallet,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return Student{}, err
	}
	st.setStats(BidStat{})
	return st, nil
}

func (svc *Service) Get(ctx context.Context, id string) (Student, error) {
	st, err := svc.repo.GetStudent(ctx, id)
	if err != nil {
		return Student{}, err
	}
	stats, err := svc.stats.ActiveBidStats(ctx, st.ID)
	if err != nil {
		return Student{}, errors.Wrap(err, "getting bid stats")
	}
	st.setStats(stats[st.ID])
	return st, nil
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Student, error) {
	students, err := svc.repo.QueryStudents(ctx, filter, ordering)
	if err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	if len(students) == 0 {
		return []Student{}, nil
	}

	ids := make([]string, 0, len(students))
	for _, st := range students {
		ids = append(ids, st.ID)
	}
	stats, err := svc.stats.ActiveBidStats(ctx, ids...)
	if err != nil {
		return nil, errors.Wrap(err, "getting bid stats")
	}

	filtered := students[:0]
	for _, st := range students {
		st.setStats(stats[st.ID])
		if filter.Status == "" || filter.Status == st.Status {
			filtered = append(filtered, st)
		}
	}
	return filtered, nil
}

// AddAchievement stores the certificate then records the achievement and appends its name to
// the student's achievements.
func (svc *Service) AddAchievement(
	ctx context.Context,
	validate *validator.Validate,
	studentID string,
	na NewAchievement,
	filename string,
	certificate io.Reader,
) (Achievement, error) {
	if err := na.Validate(validate); err != nil {
		return Achievement{}, err
	}
	if err := checkCertificateName(filename); err != nil {
		return Achievement{}, err
	}
	var date time.Time
	if na.Date != "" {
		date, _ = time.Parse("2006-01-02", na.Date) // format checked by the validator
	}

	// fail fast before writing the file
	if _, err := svc.repo.GetStudent(ctx, studentID); err != nil {
		return Achievement{}, err
	}

	ref, err := svc.files.Save(ctx, "certificates", filename, certificate)
	if err != nil {
		return Achievement{}, errors.Wrap(err, "saving certificate")
	}

	var ach Achievement
	err = svc.tx.WithTx(ctx, func(ctx context.Context) error {
		st, err := svc.repo.LockStudent(ctx, studentID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		ach, err = svc.repo.CreateAchievement(ctx, Achievement{
			StudentID:       st.ID,
			Name:            na.Name,
			Position:        na.Position,
			Description:     na.Description,
			Date:            date,
			Category:        na.Category,
			TeacherUsername: na.TeacherUsername,
			CertificateRef:  ref,
			CreatedAt:       now,
		})
		if err != nil {
			return errors.Wrap(err, "creating achievement")
		}

		st.Achievements = append(st.Achievements, na.Name)
		st.UpdatedAt = now
		_, err = svc.repo.UpdateStudent(ctx, st)
		return errors.Wrap(err, "updating student")
	})
	return ach, err
}

func (svc *Service) QueryAchievements(ctx context.Context, studentID string) ([]Achievement, error) {
	if _, err := svc.repo.GetStudent(ctx, studentID); err != nil {
		return nil, err
	}
	achievements, err := svc.repo.QueryAchievements(ctx, studentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying achievements")
	}
	if achievements == nil {
		achievements = []Achievement{}
	}
	return achievements, nil
}
