package bidding

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/yarcoin/marketplace/core"
	"github.com/yarcoin/marketplace/core/student"
	"github.com/yarcoin/marketplace/core/teacher"
)

var (
	// errors, in PlaceBid's check order
	ErrAlreadyAcquired   = core.NewDomainError(core.KindConflict, "already_acquired", "student has already been acquired")
	ErrInvalidAmount     = core.NewDomainError(core.KindValidation, "invalid_amount", "bid amount must be a positive integer")
	ErrBidTooLow         = core.NewDomainError(core.KindConflict, "bid_too_low", "bid amount must be greater than the current highest bid")
	ErrInsufficientFunds = core.NewDomainError(core.KindInsufficientFunds, "insufficient_funds", "bid amount exceeds the teacher's purse")

	// SettleHighestBid errors
	ErrAlreadyOwned = core.NewDomainError(core.KindConflict, "already_owned", "student is already owned")
	ErrNoActiveBids = core.NewDomainError(core.KindConflict, "no_active_bids", "student has no active bids")

	byAmountDesc = []core.DBOrdering{{Field: "bidAmount"}, {Field: "createdAt", Ascending: true}}
	byNewest     = []core.DBOrdering{{Field: "createdAt"}}
)

type (
	Repository interface {
		CreateBid(ctx context.Context, bid Bid) (Bid, error)
		QueryBids(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Bid, error)
		UpdateBidsStatus(ctx context.Context, status string, updatedAt time.Time, ids ...string) error
		ActiveBidStats(ctx context.Context, studentIDs ...string) (map[string]student.BidStat, error)
	}

	// Service guards every purse, ownership and bid change: a per-student lock serializes
	// operations on the same student and a transaction makes each of them atomic.
	Service struct {
		tx       core.Transactor
		locker   core.Locker
		repo     Repository
		students student.Repository
		teachers teacher.Repository
	}
)

func NewService(
	tx core.Transactor,
	locker core.Locker,
	repo Repository,
	students student.Repository,
	teachers teacher.Repository,
) *Service {
	return &Service{
		tx:       tx,
		locker:   locker,
		repo:     repo,
		students: students,
		teachers: teachers,
	}
}

func lockKey(studentID string) string { return "student:" + studentID }

// PlaceBid debits the teacher's purse and records an active bid on the student.
// Checks, in order: teacher & student exist, student not owned, amount > 0,
// amount > highest active bid (or base price), amount <= purse.
// Ownership does not change until SettleHighestBid.
func (svc *Service) PlaceBid(ctx context.Context, teacherID, studentID string, amount int64) (Bid, error) {
	release, err := svc.locker.Acquire(ctx, lockKey(studentID))
	if err != nil {
		return Bid{}, err
	}
	defer release()

	var bid Bid
	err = svc.tx.WithTx(ctx, func(ctx context.Context) error {
		// rows are always locked student first, then teacher(s)
		st, stErr := svc.students.LockStudent(ctx, studentID)
		if stErr != nil && errors.Cause(stErr) != student.ErrNotFound {
			return errors.Wrap(stErr, "locking student")
		}
		tchr, err := svc.teachers.LockTeacher(ctx, teacherID)
		if err != nil {
			if errors.Cause(err) == teacher.ErrNotFound {
				return err
			}
			return errors.Wrap(err, "locking teacher")
		}
		if stErr != nil {
			return stErr
		}

		if st.IsOwned() {
			return ErrAlreadyAcquired
		}
		if amount <= 0 {
			return ErrInvalidAmount
		}

		active, err := svc.repo.QueryBids(ctx, QueryFilter{StudentID: st.ID, Status: StatusActive}, byAmountDesc)
		if err != nil {
			return errors.Wrap(err, "querying active bids")
		}
		floor := st.BasePrice
		if len(active) > 0 {
			floor = active[0].BidAmount
		}
		if amount <= floor {
			return ErrBidTooLow
		}
		if amount > tchr.Purse {
			return ErrInsufficientFunds
		}

		if _, err = svc.teachers.UpdatePurse(ctx, tchr.ID, tchr.Purse-amount); err != nil {
			return errors.Wrap(err, "debiting purse")
		}
		now := time.Now().UTC()
		bid, err = svc.repo.CreateBid(ctx, Bid{
			TeacherID: tchr.ID,
			StudentID: st.ID,
			BidAmount: amount,
			Status:    StatusActive,
			CreatedAt: now,
			UpdatedAt: now,
		})
		return errors.Wrap(err, "creating bid")
	})
	if err != nil {
		return Bid{}, err
	}
	return bid, nil
}

// SettleHighestBid hands the student over to the teacher with the highest active bid, credits the
// student's balance with that bid and refunds every other active bid.
func (svc *Service) SettleHighestBid(ctx context.Context, studentID string) (Settlement, error) {
	release, err := svc.locker.Acquire(ctx, lockKey(studentID))
	if err != nil {
		return Settlement{}, err
	}
	defer release()

	var stlmt Settlement
	err = svc.tx.WithTx(ctx, func(ctx context.Context) error {
		st, err := svc.students.LockStudent(ctx, studentID)
		if err != nil {
			if errors.Cause(err) == student.ErrNotFound {
				return err
			}
			return errors.Wrap(err, "locking student")
		}
		if st.IsOwned() {
			return ErrAlreadyOwned
		}

		active, err := svc.repo.QueryBids(ctx, QueryFilter{StudentID: st.ID, Status: StatusActive}, byAmountDesc)
		if err != nil {
			return errors.Wrap(err, "querying active bids")
		}
		if len(active) == 0 {
			return ErrNoActiveBids
		}
		winner, losers := active[0], active[1:]

		// refund losers, locking their teachers in a stable order
		refundsByTeacher := make(map[string]int64, len(losers))
		refunds := make([]Refund, 0, len(losers))
		loserIDs := make([]string, 0, len(losers))
		for _, b := range losers {
			refundsByTeacher[b.TeacherID] += b.BidAmount
			refunds = append(refunds, Refund{BidID: b.ID, TeacherID: b.TeacherID, Amount: b.BidAmount})
			loserIDs = append(loserIDs, b.ID)
		}
		teacherIDs := make([]string, 0, len(refundsByTeacher))
		for id := range refundsByTeacher {
			teacherIDs = append(teacherIDs, id)
		}
		sort.Strings(teacherIDs)
		for _, id := range teacherIDs {
			tchr, err := svc.teachers.LockTeacher(ctx, id)
			if err != nil {
				return errors.Wrap(err, "locking refunded teacher")
			}
			if _, err = svc.teachers.UpdatePurse(ctx, tchr.ID, tchr.Purse+refundsByTeacher[id]); err != nil {
				return errors.Wrap(err, "refunding purse")
			}
		}

		now := time.Now().UTC()
		if err = svc.repo.UpdateBidsStatus(ctx, StatusWon, now, winner.ID); err != nil {
			return errors.Wrap(err, "marking winning bid")
		}
		if len(loserIDs) > 0 {
			if err = svc.repo.UpdateBidsStatus(ctx, StatusSuperseded, now, loserIDs...); err != nil {
				return errors.Wrap(err, "marking superseded bids")
			}
		}

		st.OwnedBy = winner.TeacherID
		st.YarBalance += winner.BidAmount
		st.UpdatedAt = now
		if _, err = svc.students.UpdateStudent(ctx, st); err != nil {
			return errors.Wrap(err, "transferring ownership")
		}

		stlmt = Settlement{
			StudentID: st.ID,
			TeacherID: winner.TeacherID,
			BidID:     winner.ID,
			Amount:    winner.BidAmount,
			Refunds:   refunds,
		}
		return nil
	})
	if err != nil {
		return Settlement{}, err
	}
	return stlmt, nil
}

// QueryForStudent lists every bid placed on the student, newest first.
func (svc *Service) QueryForStudent(ctx context.Context, studentID string) ([]Bid, error) {
	if _, err := svc.students.GetStudent(ctx, studentID); err != nil {
		return nil, err
	}
	return svc.query(ctx, QueryFilter{StudentID: studentID})
}

// QueryForTeacher lists every bid placed by the teacher, newest first.
func (svc *Service) QueryForTeacher(ctx context.Context, teacherID string) ([]Bid, error) {
	if _, err := svc.teachers.GetTeacher(ctx, teacherID); err != nil {
		return nil, err
	}
	return svc.query(ctx, QueryFilter{TeacherID: teacherID})
}

func (svc *Service) query(ctx context.Context, filter QueryFilter) ([]Bid, error) {
	bids, err := svc.repo.QueryBids(ctx, filter, byNewest)
	if err != nil {
		return nil, errors.Wrap(err, "querying bids")
	}
	if bids == nil {
		bids = []Bid{}
	}
	return bids, nil
}
