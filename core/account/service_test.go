package account_test

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yarcoin/marketplace/core"
	"github.com/yarcoin/marketplace/core/account"
	"github.com/yarcoin/marketplace/core/student"
	"github.com/yarcoin/marketplace/core/teacher"
	"github.com/yarcoin/marketplace/core/user"
	"github.com/yarcoin/marketplace/services/email"
	"github.com/yarcoin/marketplace/services/filestore"
	"github.com/yarcoin/marketplace/storage/database/inmem"
	"github.com/yarcoin/marketplace/tests"
)

func setup(t *testing.T) (*account.Service, *validator.Validate, *inmemdb.DB) {
	conf := testutil.NewConfig()
	logger := testutil.NewLogger(conf)

	translator := core.NewTranslator()
	validate := core.NewValidator(translator)
	user.InitValidators(validate, translator)
	user.LoadCommonPasswords(logger)

	db := inmemdb.Open()
	usrSvc := user.NewService(inmemdb.NewUserRepository(db), emailsvc.NewConsoleServiceMock(logger, conf), conf)
	stSvc := student.NewService(db, inmemdb.NewStudentRepository(db), inmemdb.NewBidRepository(db), filestore.NewLocal(t.TempDir()), conf)
	tchrSvc := teacher.NewService(inmemdb.NewTeacherRepository(db), conf)
	return account.NewService(db, usrSvc, stSvc, tchrSvc), validate, db
}

func fieldNames(t *testing.T, err error) []string {
	verrs, ok := errors.Cause(err).(validator.ValidationErrors)
	if !ok {
		t.Fatalf("want validator.ValidationErrors; got %T (%v)", err, err)
	}
	names := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		names = append(names, fe.Field())
	}
	return names
}

func TestService_Register(t *testing.T) {
	svc, validate, db := setup(t)
	ctx := context.Background()

	base := func(role string) account.NewAccount {
		return account.NewAccount{
			FirstName:       "Awe",
			LastName:        "Some",
			Username:        "Awe",
			Email:           "AWE@test.cd",
			Password:        "Sup3r$ecret",
			PasswordConfirm: "Sup3r$ecret",
			Role:            role,
		}
	}

	t.Run("student", func(t *testing.T) {
		na := base(user.RoleStudent)
		na.Skills = []string{"go", " sql "}
		acct, err := svc.Register(ctx, validate, na)
		require.NoError(t, err)

		require.NotNil(t, acct.Student)
		assert.Nil(t, acct.Teacher)
		assert.Equal(t, "awe", acct.User.Username)
		assert.Equal(t, "awe@test.cd", acct.User.Email)
		assert.Equal(t, user.RoleStudent, acct.User.Role)
		assert.Equal(t, acct.Student.ID, acct.User.ProfileID)
		assert.Equal(t, "Awe Some", acct.Student.Name)
		assert.Equal(t, []string{"go", "sql"}, acct.Student.Skills)
		assert.EqualValues(t, 30, acct.Student.BasePrice)
		assert.NoError(t, acct.User.CheckPassword("Sup3r$ecret"))
	})

	t.Run("teacher", func(t *testing.T) {
		na := base(user.RoleTeacher)
		na.Username, na.Email = "prof", "prof@test.cd"
		na.Specialization = "Math"
		acct, err := svc.Register(ctx, validate, na)
		require.NoError(t, err)

		require.NotNil(t, acct.Teacher)
		assert.Nil(t, acct.Student)
		assert.Equal(t, acct.Teacher.ID, acct.User.ProfileID)
		assert.EqualValues(t, 10000, acct.Teacher.Purse)
		assert.Equal(t, "Math", acct.Teacher.Specialization)
	})

	tests := []struct {
		name       string
		data       func() account.NewAccount
		wantErr    error
		wantFields []string
	}{
		{
			name: "duplicate username",
			data: func() account.NewAccount {
				na := base(user.RoleStudent)
				na.Email = "other@test.cd"
				return na
			},
			wantErr: user.ErrUsernameExists,
		},
		{
			name: "duplicate email",
			data: func() account.NewAccount {
				na := base(user.RoleStudent)
				na.Username = "other"
				return na
			},
			wantErr: user.ErrEmailExists,
		},
		{
			name:       "missing fields",
			data:       func() account.NewAccount { return account.NewAccount{} },
			wantFields: []string{"firstName", "lastName", "username", "email", "password", "role"},
		},
		{
			name: "teacher without specialization",
			data: func() account.NewAccount {
				na := base(user.RoleTeacher)
				na.Username, na.Email = "prof2", "prof2@test.cd"
				return na
			},
			wantFields: []string{"specialization"},
		},
		{
			name: "weak password & negative base price",
			data: func() account.NewAccount {
				na := base(user.RoleStudent)
				na.Username, na.Email = "new", "new@test.cd"
				na.Password, na.PasswordConfirm = "password", "password"
				price := int64(-1)
				na.BasePrice = &price
				return na
			},
			wantFields: []string{"password", "basePrice"},
		},
		{
			name: "unknown role",
			data: func() account.NewAccount {
				na := base("admin")
				na.Username, na.Email = "new", "new@test.cd"
				return na
			},
			wantFields: []string{"role"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, validate, tt.data())
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			assert.ElementsMatch(t, tt.wantFields, fieldNames(t, err))
		})
	}

	// nothing half-created by the failed registrations
	students, err := inmemdb.NewStudentRepository(db).QueryStudents(ctx, student.QueryFilter{}, nil)
	require.NoError(t, err)
	assert.Len(t, students, 1)
	teachers, err := inmemdb.NewTeacherRepository(db).QueryTeachers(ctx, teacher.QueryFilter{}, nil)
	require.NoError(t, err)
	assert.Len(t, teachers, 1)
}

func TestService_RegisterRollsBack(t *testing.T) {
	svc, validate, db := setup(t)
	ctx := context.Background()

	// a profile already holding the email makes the user creation unreachable
	_, err := inmemdb.NewTeacherRepository(db).CreateTeacher(ctx, teacher.Teacher{Email: "late@test.cd"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, validate, account.NewAccount{
		FirstName: "Late", LastName: "Comer", Username: "late", Email: "late@test.cd",
		Password: "Sup3r$ecret", Role: user.RoleTeacher, Specialization: "Art",
	})
	assert.Equal(t, teacher.ErrEmailExists, errors.Cause(err))

	_, err = inmemdb.NewUserRepository(db).GetUser(ctx, user.GetFilter{Username: "late"})
	assert.Equal(t, user.ErrNotFound, err)
}
