package inmemdb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yarcoin/marketplace/core"
	"github.com/yarcoin/marketplace/core/bidding"
	"github.com/yarcoin/marketplace/core/student"
	"github.com/yarcoin/marketplace/core/teacher"
	"github.com/yarcoin/marketplace/core/user"
)

func TestDB_WithTx(t *testing.T) {
	db := Open()
	ctx := context.Background()
	students := NewStudentRepository(db)
	teachers := NewTeacherRepository(db)

	st, err := students.CreateStudent(ctx, student.Student{Name: "S", Email: "s@test.cd", Skills: []string{"go"}})
	require.NoError(t, err)
	tchr, err := teachers.CreateTeacher(ctx, teacher.Teacher{Name: "T", Email: "t@test.cd", Purse: 100})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = db.WithTx(ctx, func(ctx context.Context) error {
		if _, err := teachers.UpdatePurse(ctx, tchr.ID, 10); err != nil {
			return err
		}
		locked, err := students.LockStudent(ctx, st.ID)
		if err != nil {
			return err
		}
		locked.Skills = append(locked.Skills, "sql")
		locked.OwnedBy = tchr.ID
		if _, err = students.UpdateStudent(ctx, locked); err != nil {
			return err
		}
		// nested transactions join the outer one
		return db.WithTx(ctx, func(ctx context.Context) error { return boom })
	})
	assert.Equal(t, boom, err)

	got, err := teachers.GetTeacher(ctx, tchr.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 100, got.Purse, "purse must be rolled back")
	gotSt, err := students.GetStudent(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"go"}, gotSt.Skills)
	assert.Empty(t, gotSt.OwnedBy)

	err = db.WithTx(ctx, func(ctx context.Context) error {
		_, err := teachers.UpdatePurse(ctx, tchr.ID, 10)
		return err
	})
	require.NoError(t, err)
	got, _ = teachers.GetTeacher(ctx, tchr.ID)
	assert.EqualValues(t, 10, got.Purse)

	_, err = teachers.UpdatePurse(ctx, tchr.ID, -1)
	assert.Error(t, err)
}

func TestUserRepository(t *testing.T) {
	db := Open()
	ctx := context.Background()
	repo := NewUserRepository(db)

	usr, err := repo.CreateUser(ctx, user.User{Username: "awe", Email: "awe@test.cd", Role: user.RoleStudent})
	require.NoError(t, err)
	assert.NotEmpty(t, usr.ID)

	_, err = repo.CreateUser(ctx, user.User{Username: "awe", Email: "other@test.cd"})
	assert.Equal(t, user.ErrUsernameExists, err)
	assert.Equal(t, user.ErrEmailExists, repo.CheckUniqueness(ctx, "other", "awe@test.cd"))
	assert.NoError(t, repo.CheckUniqueness(ctx, "other", "other@test.cd"))

	tests := []struct {
		name    string
		filter  user.GetFilter
		wantErr error
	}{
		{name: "by id", filter: user.GetFilter{ID: usr.ID}},
		{name: "by username", filter: user.GetFilter{Username: "awe"}},
		{name: "by email", filter: user.GetFilter{Email: "awe@test.cd"}},
		{name: "username or email (email)", filter: user.GetFilter{UsernameOrEmail: "awe@test.cd"}},
		{name: "unknown id", filter: user.GetFilter{ID: "nope"}, wantErr: user.ErrNotFound},
		{name: "unknown username", filter: user.GetFilter{Username: "nope"}, wantErr: user.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.GetUser(ctx, tt.filter)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, usr.ID, got.ID)
		})
	}

	now := time.Now().UTC()
	usr.Username = "ignored"
	usr.LastLogin = now
	usr.PasswordHash = []byte("hash")
	updated, err := repo.UpdateUser(ctx, usr)
	require.NoError(t, err)
	assert.Equal(t, "awe", updated.Username)
	assert.Equal(t, now, updated.LastLogin)
	assert.Equal(t, []byte("hash"), updated.PasswordHash)
}

func TestStudentRepository_QueryStudents(t *testing.T) {
	db := Open()
	ctx := context.Background()
	repo := NewStudentRepository(db)

	mk := func(name, email string, basePrice int64, ownedBy string, skills ...string) student.Student {
		st, err := repo.CreateStudent(ctx, student.Student{Name: name, Email: email, BasePrice: basePrice, Skills: skills, OwnedBy: ownedBy})
		require.NoError(t, err)
		return st
	}
	ada := mk("Ada", "ada@test.cd", 50, "", "Go", "SQL")
	bob := mk("Bob", "bob@test.cd", 10, "t1", "go")
	cid := mk("Cid", "cid@mail.cd", 30, "")

	_, err := repo.CreateStudent(ctx, student.Student{Name: "Dup", Email: "ada@test.cd"})
	assert.Equal(t, student.ErrEmailExists, err)

	ids := func(students []student.Student) []string {
		res := make([]string, 0, len(students))
		for _, st := range students {
			res = append(res, st.ID)
		}
		return res
	}

	tests := []struct {
		name     string
		filter   student.QueryFilter
		ordering []core.DBOrdering
		want     []string
	}{
		{name: "all, insertion order", want: []string{ada.ID, bob.ID, cid.ID}},
		{name: "search email", filter: student.QueryFilter{Search: "TEST.cd"}, want: []string{ada.ID, bob.ID}},
		{name: "skill", filter: student.QueryFilter{Skill: "GO"}, want: []string{ada.ID, bob.ID}},
		{name: "owned by", filter: student.QueryFilter{OwnedBy: "t1"}, want: []string{bob.ID}},
		{name: "basePrice asc", ordering: []core.DBOrdering{{Field: "basePrice", Ascending: true}}, want: []string{bob.ID, cid.ID, ada.ID}},
		{name: "name desc", ordering: []core.DBOrdering{{Field: "name"}}, want: []string{cid.ID, bob.ID, ada.ID}},
		{name: "unknown field ignored", ordering: []core.DBOrdering{{Field: "lol"}}, want: []string{ada.ID, bob.ID, cid.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.QueryStudents(ctx, tt.filter, tt.ordering)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestBidRepository(t *testing.T) {
	db := Open()
	ctx := context.Background()
	students := NewStudentRepository(db)
	repo := NewBidRepository(db)

	s1, _ := students.CreateStudent(ctx, student.Student{Email: "s1@test.cd"})
	s2, _ := students.CreateStudent(ctx, student.Student{Email: "s2@test.cd"})

	now := time.Now().UTC()
	mk := func(studentID string, amount int64) bidding.Bid {
		b, err := repo.CreateBid(ctx, bidding.Bid{TeacherID: "t", StudentID: studentID, BidAmount: amount, Status: bidding.StatusActive, CreatedAt: now})
		require.NoError(t, err)
		return b
	}
	b1 := mk(s1.ID, 40)
	b2 := mk(s1.ID, 50)
	mk(s2.ID, 35)

	_, err := repo.CreateBid(ctx, bidding.Bid{StudentID: "nope", BidAmount: 1})
	assert.Equal(t, student.ErrNotFound, err)
	_, err = repo.CreateBid(ctx, bidding.Bid{StudentID: s1.ID, BidAmount: 0})
	assert.Error(t, err)

	require.NoError(t, repo.UpdateBidsStatus(ctx, bidding.StatusSuperseded, now, b1.ID))
	assert.Error(t, repo.UpdateBidsStatus(ctx, bidding.StatusWon, now, b2.ID, "nope"))

	stats, err := repo.ActiveBidStats(ctx, s1.ID, s2.ID, "nope")
	require.NoError(t, err)
	assert.Equal(t, map[string]student.BidStat{
		s1.ID: {Count: 1, Highest: 50},
		s2.ID: {Count: 1, Highest: 35},
	}, stats)

	bids, err := repo.QueryBids(ctx, bidding.QueryFilter{StudentID: s1.ID}, []core.DBOrdering{{Field: "bidAmount"}})
	require.NoError(t, err)
	require.Len(t, bids, 2)
	assert.Equal(t, b2.ID, bids[0].ID)
	assert.Equal(t, bidding.StatusActive, bids[0].Status, "failed updates change nothing")

	// same createdAt: insertion order breaks the tie
	bids, err = repo.QueryBids(ctx, bidding.QueryFilter{StudentID: s1.ID}, []core.DBOrdering{{Field: "createdAt"}})
	require.NoError(t, err)
	assert.Equal(t, b2.ID, bids[0].ID)
}
