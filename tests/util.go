package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/yarcoin/marketplace/core"
	"github.com/yarcoin/marketplace/core/student"
	"github.com/yarcoin/marketplace/core/teacher"
	"github.com/yarcoin/marketplace/core/user"
	logsvc "github.com/yarcoin/marketplace/services/logger"
)

// NewConfig loads the TEST configuration.
func NewConfig() *core.Config {
	_ = os.Setenv("ENV", "TEST")
	conf := core.NewConfig()
	conf.Bidding.LockWait = time.Second
	return conf
}

// NewLogger returns a logger that discards everything.
func NewLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(zap.NewNop(), conf)
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	firstName, lastName, uname, email, pwd, role, profileID string,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		FirstName: firstName,
		LastName:  lastName,
		Username:  uname,
		Email:     email,
		Role:      role,
		ProfileID: profileID,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateStudent(t *testing.T, repo student.Repository, name, email string, basePrice int64, skills ...string) student.Student {
	now := time.Now().UTC()
	if skills == nil {
		skills = []string{}
	}
	st, err := repo.CreateStudent(context.Background(), student.Student{
		Name:          name,
		Email:         email,
		Skills:        skills,
		Achievements:  []string{},
		BasePrice:     basePrice,
		WalletAddress: "0x" + "00000000000000000000000000000000000000aa",
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return st
}

func CreateTeacher(t *testing.T, repo teacher.Repository, name, email, specialization string, purse int64) teacher.Teacher {
	now := time.Now().UTC()
	tchr, err := repo.CreateTeacher(context.Background(), teacher.Teacher{
		Name:           name,
		Email:          email,
		Specialization: specialization,
		Purse:          purse,
		WalletAddress:  "0x" + "00000000000000000000000000000000000000bb",
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		t.Fatalf("CreateTeacher() failed: %v", err)
	}
	return tchr
}
