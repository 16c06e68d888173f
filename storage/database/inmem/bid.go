package inmemdb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/yarcoin/marketplace/core"
	"github.com/yarcoin/marketplace/core/bidding"
	"github.com/yarcoin/marketplace/core/student"
)

var bidComparators = comparators[bidRow]{
	"bidAmount": func(a, b bidRow) int { return cmpInt64(a.BidAmount, b.BidAmount) },
	"createdAt": func(a, b bidRow) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmpInt64(a.seq, b.seq)
	},
}

type bidRepository struct {
	db *DB
}

var _ bidding.Repository = (*bidRepository)(nil) // interface compliance check

func NewBidRepository(db *DB) *bidRepository {
	return &bidRepository{db: db}
}

func (repo *bidRepository) CreateBid(ctx context.Context, bid bidding.Bid) (bidding.Bid, error) {
	defer repo.db.lock(ctx)()

	if _, ok := repo.db.students[bid.StudentID]; !ok {
		return bidding.Bid{}, student.ErrNotFound
	}
	if bid.BidAmount <= 0 {
		return bidding.Bid{}, errors.Errorf("non-positive bid amount %d", bid.BidAmount)
	}
	bid.ID = uuid.New().String()
	repo.db.bids[bid.ID] = bidRow{Bid: bid, seq: repo.db.nextSeq()}
	return bid, nil
}

func (repo *bidRepository) QueryBids(ctx context.Context, filter bidding.QueryFilter, ordering []core.DBOrdering) ([]bidding.Bid, error) {
	defer repo.db.rlock(ctx)()

	rows := make([]bidRow, 0)
	for _, row := range repo.db.bids {
		if filter.StudentID != "" && row.StudentID != filter.StudentID {
			continue
		}
		if filter.TeacherID != "" && row.TeacherID != filter.TeacherID {
			continue
		}
		if filter.Status != "" && row.Status != filter.Status {
			continue
		}
		rows = append(rows, row)
	}
	sortRows(rows, ordering, bidComparators, func(r bidRow) int64 { return r.seq })

	bids := make([]bidding.Bid, 0, len(rows))
	for _, row := range rows {
		bids = append(bids, row.Bid)
	}
	return bids, nil
}

func (repo *bidRepository) UpdateBidsStatus(ctx context.Context, status string, updatedAt time.Time, ids ...string) error {
	defer repo.db.lock(ctx)()

	for _, id := range ids {
		if _, ok := repo.db.bids[id]; !ok {
			return errors.Errorf("bid %s not found", id)
		}
	}
	for _, id := range ids {
		row := repo.db.bids[id]
		row.Status = status
		row.UpdatedAt = updatedAt
		repo.db.bids[id] = row
	}
	return nil
}

func (repo *bidRepository) ActiveBidStats(ctx context.Context, studentIDs ...string) (map[string]student.BidStat, error) {
	defer repo.db.rlock(ctx)()

	wanted := make(map[string]bool, len(studentIDs))
	for _, id := range studentIDs {
		wanted[id] = true
	}
	stats := make(map[string]student.BidStat, len(studentIDs))
	for _, row := range repo.db.bids {
		if row.Status != bidding.StatusActive || !wanted[row.StudentID] {
			continue
		}
		stat := stats[row.StudentID]
		stat.Count++
		if row.BidAmount > stat.Highest {
			stat.Highest = row.BidAmount
		}
		stats[row.StudentID] = stat
	}
	return stats, nil
}
