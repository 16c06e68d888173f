package bidding_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yarcoin/marketplace/core"
	"github.com/yarcoin/marketplace/core/bidding"
	"github.com/yarcoin/marketplace/core/student"
	"github.com/yarcoin/marketplace/core/teacher"
	"github.com/yarcoin/marketplace/services/lock"
	"github.com/yarcoin/marketplace/storage/database/inmem"
	"github.com/yarcoin/marketplace/tests"
)

type fixture struct {
	svc      *bidding.Service
	bids     bidding.Repository
	students student.Repository
	teachers teacher.Repository
}

func setup(t *testing.T) fixture {
	db := inmemdb.Open()
	f := fixture{
		bids:     inmemdb.NewBidRepository(db),
		students: inmemdb.NewStudentRepository(db),
		teachers: inmemdb.NewTeacherRepository(db),
	}
	f.svc = bidding.NewService(db, lock.NewLocal(time.Second), f.bids, f.students, f.teachers)
	return f
}

func (f fixture) purse(t *testing.T, id string) int64 {
	tchr, err := f.teachers.GetTeacher(context.Background(), id)
	require.NoError(t, err)
	return tchr.Purse
}

func (f fixture) student(t *testing.T, id string) student.Student {
	st, err := f.students.GetStudent(context.Background(), id)
	require.NoError(t, err)
	return st
}

func (f fixture) activeBids(t *testing.T, studentID string) []bidding.Bid {
	bids, err := f.bids.QueryBids(context.Background(), bidding.QueryFilter{StudentID: studentID, Status: bidding.StatusActive}, nil)
	require.NoError(t, err)
	return bids
}

func TestService_WorkedExample(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	t1 := testutil.CreateTeacher(t, f.teachers, "T One", "t1@test.cd", "Math", 200)
	t2 := testutil.CreateTeacher(t, f.teachers, "T Two", "t2@test.cd", "Art", 100)
	s := testutil.CreateStudent(t, f.students, "Student S", "s@test.cd", 30)

	bid, err := f.svc.PlaceBid(ctx, t1.ID, s.ID, 50)
	require.NoError(t, err)
	assert.Equal(t, bidding.StatusActive, bid.Status)
	assert.EqualValues(t, 150, f.purse(t, t1.ID))
	assert.Len(t, f.activeBids(t, s.ID), 1)

	_, err = f.svc.PlaceBid(ctx, t2.ID, s.ID, 40)
	assert.Equal(t, bidding.ErrBidTooLow, errors.Cause(err))
	assert.EqualValues(t, 100, f.purse(t, t2.ID))

	_, err = f.svc.PlaceBid(ctx, t2.ID, s.ID, 60)
	require.NoError(t, err)
	assert.EqualValues(t, 40, f.purse(t, t2.ID))
	active := f.activeBids(t, s.ID)
	require.Len(t, active, 2)
	assert.ElementsMatch(t, []int64{50, 60}, []int64{active[0].BidAmount, active[1].BidAmount})
	assert.Empty(t, f.student(t, s.ID).OwnedBy, "bids never transfer ownership")

	stlmt, err := f.svc.SettleHighestBid(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, t2.ID, stlmt.TeacherID)
	assert.EqualValues(t, 60, stlmt.Amount)
	require.Len(t, stlmt.Refunds, 1)
	assert.Equal(t, bidding.Refund{BidID: bid.ID, TeacherID: t1.ID, Amount: 50}, stlmt.Refunds[0])

	st := f.student(t, s.ID)
	assert.Equal(t, t2.ID, st.OwnedBy)
	assert.EqualValues(t, 60, st.YarBalance)
	assert.EqualValues(t, 200, f.purse(t, t1.ID))
	assert.EqualValues(t, 40, f.purse(t, t2.ID))
	assert.Empty(t, f.activeBids(t, s.ID))

	// conservation: purse deltas + balance deltas = 0
	delta := (f.purse(t, t1.ID) - 200) + (f.purse(t, t2.ID) - 100) + st.YarBalance
	assert.Zero(t, delta)

	// terminal state
	_, err = f.svc.SettleHighestBid(ctx, s.ID)
	assert.Equal(t, bidding.ErrAlreadyOwned, errors.Cause(err))
	_, err = f.svc.PlaceBid(ctx, t1.ID, s.ID, 100)
	assert.Equal(t, bidding.ErrAlreadyAcquired, errors.Cause(err))

	bids, err := f.svc.QueryForStudent(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, bids, 2)
	assert.Equal(t, bidding.StatusWon, bids[0].Status) // newest first
	assert.Equal(t, bidding.StatusSuperseded, bids[1].Status)
}

func TestService_PlaceBid(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	rich := testutil.CreateTeacher(t, f.teachers, "Rich", "rich@test.cd", "Math", 1000)
	poor := testutil.CreateTeacher(t, f.teachers, "Poor", "poor@test.cd", "Math", 35)
	st := testutil.CreateStudent(t, f.students, "Stu", "stu@test.cd", 30)
	owned := testutil.CreateStudent(t, f.students, "Owned", "owned@test.cd", 30)
	owned.OwnedBy = rich.ID
	_, err := f.students.UpdateStudent(ctx, owned)
	require.NoError(t, err)

	tests := []struct {
		name      string
		teacherID string
		studentID string
		amount    int64
		wantErr   error
	}{
		// precondition order
		{name: "unknown teacher first", teacherID: "nope", studentID: "nope", amount: -1, wantErr: teacher.ErrNotFound},
		{name: "unknown student", teacherID: rich.ID, studentID: "nope", amount: -1, wantErr: student.ErrNotFound},
		{name: "acquired before amount", teacherID: rich.ID, studentID: owned.ID, amount: -1, wantErr: bidding.ErrAlreadyAcquired},
		{name: "zero amount", teacherID: rich.ID, studentID: st.ID, amount: 0, wantErr: bidding.ErrInvalidAmount},
		{name: "negative amount", teacherID: poor.ID, studentID: st.ID, amount: -5, wantErr: bidding.ErrInvalidAmount},
		{name: "equal to base price", teacherID: rich.ID, studentID: st.ID, amount: 30, wantErr: bidding.ErrBidTooLow},
		{name: "too low regardless of purse", teacherID: poor.ID, studentID: st.ID, amount: 1, wantErr: bidding.ErrBidTooLow},
		{name: "insufficient funds", teacherID: poor.ID, studentID: st.ID, amount: 36, wantErr: bidding.ErrInsufficientFunds},
		{name: "whole purse", teacherID: poor.ID, studentID: st.ID, amount: 35},
		{name: "equal to highest", teacherID: rich.ID, studentID: st.ID, amount: 35, wantErr: bidding.ErrBidTooLow},
		{name: "higher", teacherID: rich.ID, studentID: st.ID, amount: 36},
		{name: "outbid self", teacherID: rich.ID, studentID: st.ID, amount: 37},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := map[string]int64{rich.ID: f.purse(t, rich.ID), poor.ID: f.purse(t, poor.ID)}
			bid, err := f.svc.PlaceBid(ctx, tt.teacherID, tt.studentID, tt.amount)

			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				for id, purse := range before {
					assert.Equal(t, purse, f.purse(t, id), "rejected bids must not touch purses")
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.amount, bid.BidAmount)
			assert.Equal(t, before[tt.teacherID]-tt.amount, f.purse(t, tt.teacherID))
		})
	}
}

func TestService_SettleHighestBid(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.SettleHighestBid(ctx, "nope")
	assert.Equal(t, student.ErrNotFound, errors.Cause(err))

	st := testutil.CreateStudent(t, f.students, "Stu", "stu@test.cd", 0)
	_, err = f.svc.SettleHighestBid(ctx, st.ID)
	assert.Equal(t, bidding.ErrNoActiveBids, errors.Cause(err))

	// one teacher outbidding itself gets every lower bid back
	t1 := testutil.CreateTeacher(t, f.teachers, "T1", "t1@test.cd", "Math", 100)
	t2 := testutil.CreateTeacher(t, f.teachers, "T2", "t2@test.cd", "Math", 100)
	for _, b := range []struct {
		tchr   teacher.Teacher
		amount int64
	}{{t1, 10}, {t2, 20}, {t1, 30}, {t2, 40}} {
		_, err = f.svc.PlaceBid(ctx, b.tchr.ID, st.ID, b.amount)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 60, f.purse(t, t1.ID))
	assert.EqualValues(t, 40, f.purse(t, t2.ID))

	stlmt, err := f.svc.SettleHighestBid(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, t2.ID, stlmt.TeacherID)
	assert.Len(t, stlmt.Refunds, 3)
	assert.EqualValues(t, 100, f.purse(t, t1.ID))
	assert.EqualValues(t, 60, f.purse(t, t2.ID))
	assert.EqualValues(t, 40, f.student(t, st.ID).YarBalance)

	// AlreadyOwned wins over NoActiveBids
	_, err = f.svc.SettleHighestBid(ctx, st.ID)
	assert.Equal(t, bidding.ErrAlreadyOwned, errors.Cause(err))

	bids, err := f.svc.QueryForTeacher(ctx, t1.ID)
	require.NoError(t, err)
	require.Len(t, bids, 2)
	for _, b := range bids {
		assert.Equal(t, bidding.StatusSuperseded, b.Status)
	}
	_, err = f.svc.QueryForTeacher(ctx, "nope")
	assert.Equal(t, teacher.ErrNotFound, errors.Cause(err))
	_, err = f.svc.QueryForStudent(ctx, "nope")
	assert.Equal(t, student.ErrNotFound, errors.Cause(err))
}

func TestService_ConcurrentBids(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	st := testutil.CreateStudent(t, f.students, "Stu", "stu@test.cd", 30)
	const n = 20
	teachers := make([]teacher.Teacher, n)
	for i := range teachers {
		teachers[i] = testutil.CreateTeacher(t, f.teachers, "T", "t"+string(rune('a'+i))+"@test.cd", "Math", 1000)
	}

	var wg sync.WaitGroup
	for i, tchr := range teachers {
		wg.Add(1)
		go func(amount int64, teacherID string) {
			defer wg.Done()
			_, err := f.svc.PlaceBid(ctx, teacherID, st.ID, amount)
			if err != nil && errors.Cause(err) != bidding.ErrBidTooLow {
				t.Errorf("PlaceBid() unexpected error: %v", err)
			}
		}(int64(31+i), tchr.ID)
	}
	wg.Wait()

	// accepted bids are strictly increasing in acceptance order
	bids, err := f.bids.QueryBids(ctx, bidding.QueryFilter{StudentID: st.ID}, []core.DBOrdering{{Field: "createdAt", Ascending: true}})
	require.NoError(t, err)
	require.NotEmpty(t, bids)
	for i := 1; i < len(bids); i++ {
		assert.Greater(t, bids[i].BidAmount, bids[i-1].BidAmount)
	}

	var debited int64
	for _, tchr := range teachers {
		debited += 1000 - f.purse(t, tchr.ID)
	}
	var placed int64
	for _, b := range bids {
		placed += b.BidAmount
	}
	assert.Equal(t, placed, debited)

	// concurrent settlements: exactly one wins
	var (
		mu      sync.Mutex
		settled int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.SettleHighestBid(ctx, st.ID)
			if err == nil {
				mu.Lock()
				settled++
				mu.Unlock()
			} else if errors.Cause(err) != bidding.ErrAlreadyOwned {
				t.Errorf("SettleHighestBid() unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, settled)

	var total int64
	for _, tchr := range teachers {
		total += f.purse(t, tchr.ID)
	}
	assert.Equal(t, int64(n*1000), total+f.student(t, st.ID).YarBalance)
}

func TestService_Busy(t *testing.T) {
	db := inmemdb.Open()
	locker := lock.NewLocal(50 * time.Millisecond)
	students := inmemdb.NewStudentRepository(db)
	teachers := inmemdb.NewTeacherRepository(db)
	svc := bidding.NewService(db, locker, inmemdb.NewBidRepository(db), students, teachers)

	st := testutil.CreateStudent(t, students, "Stu", "stu@test.cd", 30)
	tchr := testutil.CreateTeacher(t, teachers, "T", "t@test.cd", "Math", 100)

	release, err := locker.Acquire(context.Background(), "student:"+st.ID)
	require.NoError(t, err)
	defer release()

	_, err = svc.PlaceBid(context.Background(), tchr.ID, st.ID, 40)
	assert.True(t, errors.Is(err, core.ErrBusy), "err = %v", err)
	_, err = svc.SettleHighestBid(context.Background(), st.ID)
	assert.True(t, errors.Is(err, core.ErrBusy), "err = %v", err)

	purse, _ := teachers.GetTeacher(context.Background(), tchr.ID)
	assert.EqualValues(t, 100, purse.Purse)
}

func TestNewBid_Amount(t *testing.T) {
	tests := []struct {
		amount string
		want   int64
	}{
		{amount: "50", want: 50},
		{amount: "-5", want: -5},
		{amount: "50.5", want: 0},
		{amount: "1e3", want: 0},
		{amount: "99999999999999999999", want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			nb := bidding.NewBid{StudentID: "s", BidAmount: json.Number(tt.amount)}
			assert.Equal(t, tt.want, nb.Amount())
		})
	}
}
