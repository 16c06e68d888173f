package account

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/yarcoin/marketplace/core"
	"github.com/yarcoin/marketplace/core/student"
	"github.com/yarcoin/marketplace/core/teacher"
	"github.com/yarcoin/marketplace/core/user"
)

type Service struct {
	tx       core.Transactor
	users    *user.Service
	students *student.Service
	teachers *teacher.Service
}

func NewService(tx core.Transactor, users *user.Service, students *student.Service, teachers *teacher.Service) *Service {
	return &Service{
		tx:       tx,
		users:    users,
		students: students,
		teachers: teachers,
	}
}

// Register creates the user and its role profile in a single transaction.
func (svc *Service) Register(ctx context.Context, validate *validator.Validate, na NewAccount) (Account, error) {
	nu, profile, err := na.split(validate)
	if err != nil {
		return Account{}, err
	}
	if err = svc.users.CheckUniqueness(ctx, nu.Username, nu.Email); err != nil {
		return Account{}, err
	}

	var acct Account
	err = svc.tx.WithTx(ctx, func(ctx context.Context) error {
		var profileID string
		switch p := profile.(type) {
		case student.NewStudent:
			st, err := svc.students.Create(ctx, p)
			if err != nil {
				return errors.Wrap(err, "creating student")
			}
			acct.Student, profileID = &st, st.ID
		case teacher.NewTeacher:
			t, err := svc.teachers.Create(ctx, p)
			if err != nil {
				return errors.Wrap(err, "creating teacher")
			}
			acct.Teacher, profileID = &t, t.ID
		default:
			return errors.Errorf("unexpected profile %T", profile)
		}

		usr, err := svc.users.Create(ctx, nu, profileID)
		if err != nil {
			return errors.Wrap(err, "creating user")
		}
		acct.User = usr
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	return acct, nil
}
