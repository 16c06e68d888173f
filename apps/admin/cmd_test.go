package main

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yarcoin/marketplace/core"
	"github.com/yarcoin/marketplace/core/account"
	"github.com/yarcoin/marketplace/core/bidding"
	"github.com/yarcoin/marketplace/core/student"
	"github.com/yarcoin/marketplace/core/teacher"
	"github.com/yarcoin/marketplace/core/user"
	"github.com/yarcoin/marketplace/services/email"
	"github.com/yarcoin/marketplace/services/filestore"
	"github.com/yarcoin/marketplace/services/lock"
	"github.com/yarcoin/marketplace/storage/database/inmem"
	"github.com/yarcoin/marketplace/tests"
)

type fixture struct {
	cli      *commandLine
	out      *bytes.Buffer
	usrRepo  user.Repository
	stRepo   student.Repository
	tchrRepo teacher.Repository
	bidSvc   *bidding.Service
}

func setup(t *testing.T) fixture {
	conf := testutil.NewConfig()
	logger := testutil.NewLogger(conf)

	translator := core.NewTranslator()
	validate := core.NewValidator(translator)
	user.InitValidators(validate, translator)
	user.LoadCommonPasswords(logger)

	// set up DB & repos
	db := inmemdb.Open()
	f := fixture{
		out:      new(bytes.Buffer),
		usrRepo:  inmemdb.NewUserRepository(db),
		stRepo:   inmemdb.NewStudentRepository(db),
		tchrRepo: inmemdb.NewTeacherRepository(db),
	}
	bidRepo := inmemdb.NewBidRepository(db)
	usrSvc := user.NewService(f.usrRepo, emailsvc.NewConsoleServiceMock(logger, conf), conf)
	stSvc := student.NewService(db, f.stRepo, bidRepo, filestore.NewLocal(t.TempDir()), conf)
	tchrSvc := teacher.NewService(f.tchrRepo, conf)
	f.bidSvc = bidding.NewService(db, lock.NewLocal(time.Second), bidRepo, f.stRepo, f.tchrRepo)

	// start CLI
	f.cli = &commandLine{
		validate: validate,
		usrSvc:   usrSvc,
		acctSvc:  account.NewService(db, usrSvc, stSvc, tchrSvc),
		bidSvc:   f.bidSvc,
		out:      f.out,
	}
	return f
}

func mockPassword(t *testing.T, pwd string) {
	orig := readPasswordFunc
	readPasswordFunc = func(fd int) ([]byte, error) { return []byte(pwd), nil }
	t.Cleanup(func() { readPasswordFunc = orig })
}

type cliTest struct {
	name       string
	args       []string // without program name
	pwd        string
	wantErr    error
	wantErrStr string
}

func (tt cliTest) check(t *testing.T, err error) {
	t.Helper()
	switch {
	case tt.wantErr != nil:
		assert.Equal(t, tt.wantErr, errors.Cause(err))
	case tt.wantErrStr != "":
		if assert.Error(t, err) {
			assert.Equal(t, tt.wantErrStr, err.Error())
		}
	default:
		assert.NoError(t, err)
	}
}

func Test_commandLine_usage(t *testing.T) {
	f := setup(t)

	for _, args := range [][]string{{"admin"}, {"admin", "lol"}, {"admin", "migrate"}} {
		f.out.Reset()
		assert.Equal(t, errHelp, f.cli.run(args))
		assert.Contains(t, f.out.String(), "Usage:")
	}
}

func Test_commandLine_migrate(t *testing.T) {
	f := setup(t)

	// the memory engine has nothing to migrate
	assert.Equal(t, errNoDatabase, f.cli.run([]string{"admin", "migrate", "up"}))

	mockDB, _, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()
	f.cli.db = sqlx.NewDb(mockDB, "postgres")

	orig := gooseRunFunc
	defer func() { gooseRunFunc = orig }()
	gooseRunFunc = func(ctx context.Context, db *sqlx.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "courses", "sql"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, f.cli.run(append([]string{"admin"}, tt.args...)))
		})
	}
}

func Test_commandLine_resetPassword(t *testing.T) {
	f := setup(t)
	usr := testutil.CreateUser(t, f.usrRepo, "Awe", "Some", "awe", "awe@test.cd", "mdr", user.RoleStudent, "")

	tests := []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "awe"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, pwd: "lol", wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, pwd: "lol"},
		{name: "reset with email", args: []string{"resetpassword", "-username", "AWE@test.cd"}, pwd: "lmao"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockPassword(t, tt.pwd)
			tt.check(t, f.cli.run(append([]string{"admin"}, tt.args...)))
			if tt.wantErr != nil {
				return
			}
			refreshed, err := f.usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
			require.NoError(t, err)
			assert.NoError(t, refreshed.CheckPassword(tt.pwd))
		})
	}
}

func Test_commandLine_createTeacher(t *testing.T) {
	f := setup(t)
	args := func(uname string, extra ...string) []string {
		return append([]string{
			"admin", "createteacher", "-username", uname, "-email", uname + "@test.cd",
			"-first", "Ada", "-last", "Lovelace", "-specialization", "Math",
		}, extra...)
	}

	t.Run("missing flags", func(t *testing.T) {
		assert.Equal(t, errHelp, f.cli.run([]string{"admin", "createteacher", "-username", "ada"}))
	})

	t.Run("weak password", func(t *testing.T) {
		mockPassword(t, "password")
		err := f.cli.run(args("weak"))
		assert.Error(t, err)
		_, err = f.usrRepo.GetUser(context.Background(), user.GetFilter{Username: "weak"})
		assert.Equal(t, user.ErrNotFound, errors.Cause(err))
	})

	t.Run("default purse", func(t *testing.T) {
		mockPassword(t, "Sup3r$ecret")
		require.NoError(t, f.cli.run(args("ada")))

		usr, err := f.usrRepo.GetUser(context.Background(), user.GetFilter{Username: "ada"})
		require.NoError(t, err)
		assert.Equal(t, user.RoleTeacher, usr.Role)
		tchr, err := f.tchrRepo.GetTeacher(context.Background(), usr.ProfileID)
		require.NoError(t, err)
		assert.EqualValues(t, 10000, tchr.Purse)
	})

	t.Run("custom purse", func(t *testing.T) {
		mockPassword(t, "Sup3r$ecret")
		require.NoError(t, f.cli.run(args("grace", "-purse", "250")))

		usr, err := f.usrRepo.GetUser(context.Background(), user.GetFilter{Username: "grace"})
		require.NoError(t, err)
		tchr, err := f.tchrRepo.GetTeacher(context.Background(), usr.ProfileID)
		require.NoError(t, err)
		assert.EqualValues(t, 250, tchr.Purse)
		assert.Contains(t, f.out.String(), "purse=250")
	})

	t.Run("duplicate", func(t *testing.T) {
		mockPassword(t, "Sup3r$ecret")
		err := f.cli.run(args("ada"))
		assert.Equal(t, user.ErrUsernameExists, errors.Cause(err))
	})
}

func Test_commandLine_settle(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	t1 := testutil.CreateTeacher(t, f.tchrRepo, "T1", "t1@test.cd", "Math", 100)
	t2 := testutil.CreateTeacher(t, f.tchrRepo, "T2", "t2@test.cd", "Math", 100)
	st := testutil.CreateStudent(t, f.stRepo, "Stu", "stu@test.cd", 10)

	tests := []cliTest{
		{name: "no args", args: []string{"settle"}, wantErr: errHelp},
		{name: "unknown student", args: []string{"settle", "-student", "nope"}, wantErr: student.ErrNotFound},
		{name: "no active bids", args: []string{"settle", "-student", st.ID}, wantErr: bidding.ErrNoActiveBids},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, f.cli.run(append([]string{"admin"}, tt.args...)))
		})
	}

	_, err := f.bidSvc.PlaceBid(ctx, t1.ID, st.ID, 20)
	require.NoError(t, err)
	_, err = f.bidSvc.PlaceBid(ctx, t2.ID, st.ID, 30)
	require.NoError(t, err)

	f.out.Reset()
	require.NoError(t, f.cli.run([]string{"admin", "settle", "-student", st.ID}))
	assert.Contains(t, f.out.String(), "acquired by teacher "+t2.ID+" for 30 YAR (1 refunds)")

	settled, err := f.stRepo.GetStudent(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, t2.ID, settled.OwnedBy)
	tchr, err := f.tchrRepo.GetTeacher(ctx, t1.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 100, tchr.Purse)
}
