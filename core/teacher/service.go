package teacher

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/yarcoin/marketplace/core"
)

var (
	// errors
	ErrNotFound    = core.NewDomainError(core.KindNotFound, "teacher_not_found", "teacher not found")
	ErrEmailExists = core.NewDomainError(core.KindConflict, "email_taken", "a teacher with this email already exists")
)

type (
	Repository interface {
		CreateTeacher(ctx context.Context, t Teacher) (Teacher, error)
		GetTeacher(ctx context.Context, id string) (Teacher, error)
		// LockTeacher reads the teacher and holds it exclusively until the surrounding transaction ends.
		LockTeacher(ctx context.Context, id string) (Teacher, error)
		QueryTeachers(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Teacher, error)
		// UpdatePurse sets the teacher's purse. purse must not be negative.
		UpdatePurse(ctx context.Context, id string, purse int64) (Teacher, error)
	}

	Service struct {
		repo Repository
		conf *core.Config
	}
)

func NewService(repo Repository, conf *core.Config) *Service {
	return &Service{repo: repo, conf: conf}
}

// Create stores a new Teacher. nt must have been validated.
func (svc *Service) Create(ctx context.Context, nt NewTeacher) (Teacher, error) {
	wallet, err := core.NewWalletAddress()
	if err != nil {
		return Teacher{}, errors.Wrap(err, "generating wallet address")
	}
	purse := svc.conf.Bidding.DefaultPurse
	if nt.Purse != nil {
		purse = *nt.Purse
	}

	now := time.Now().UTC()
	return svc.repo.CreateTeacher(ctx, Teacher{
		Name:           nt.Name,
		Email:          nt.Email,
		Specialization: nt.Specialization,
		Purse:          purse,
		WalletAddress:  wallet,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
}

func (svc *Service) Get(ctx context.Context, id string) (Teacher, error) {
	return svc.repo.GetTeacher(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Teacher, error) {
	teachers, err := svc.repo.QueryTeachers(ctx, filter, ordering)
	if err != nil {
		return nil, errors.Wrap(err, "querying teachers")
	}
	if teachers == nil {
		teachers = []Teacher{}
	}
	return teachers, nil
}
