package pgrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/yarcoin/marketplace/core"
	"github.com/yarcoin/marketplace/core/bidding"
	"github.com/yarcoin/marketplace/core/student"
)

const bidColumns = "id, teacher_id, student_id, bid_amount, status, created_at, updated_at"

var bidOrderColumns = map[string]string{
	"bidAmount": "bid_amount",
	"createdAt": "created_at",
}

type bidRow struct {
	ID        string    `db:"id"`
	TeacherID string    `db:"teacher_id"`
	StudentID string    `db:"student_id"`
	BidAmount int64     `db:"bid_amount"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r bidRow) bid() bidding.Bid {
	return bidding.Bid{
		ID:        r.ID,
		TeacherID: r.TeacherID,
		StudentID: r.StudentID,
		BidAmount: r.BidAmount,
		Status:    r.Status,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type bidRepository struct {
	store *Store
}

var _ bidding.Repository = (*bidRepository)(nil) // interface compliance check

func NewBidRepository(store *Store) *bidRepository {
	return &bidRepository{store: store}
}

func (repo *bidRepository) CreateBid(ctx context.Context, bid bidding.Bid) (bidding.Bid, error) {
	if !validID(bid.StudentID) {
		return bidding.Bid{}, student.ErrNotFound
	}
	if bid.BidAmount <= 0 {
		return bidding.Bid{}, errors.Errorf("non-positive bid amount %d", bid.BidAmount)
	}
	bid.ID = uuid.New().String()
	row := bidRow{
		ID:        bid.ID,
		TeacherID: bid.TeacherID,
		StudentID: bid.StudentID,
		BidAmount: bid.BidAmount,
		Status:    bid.Status,
		CreatedAt: bid.CreatedAt.UTC(),
		UpdatedAt: bid.UpdatedAt.UTC(),
	}

	_, err := sqlx.NamedExecContext(ctx, repo.store.exec(ctx), `
		INSERT INTO bids (`+bidColumns+`)
		VALUES (:id, :teacher_id, :student_id, :bid_amount, :status, :created_at, :updated_at)`,
		row)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" && pqErr.Constraint == "bids_student_id_fkey" {
			return bidding.Bid{}, student.ErrNotFound
		}
		return bidding.Bid{}, mapError(err, "inserting bid")
	}
	return row.bid(), nil
}

func (repo *bidRepository) QueryBids(ctx context.Context, filter bidding.QueryFilter, ordering []core.DBOrdering) ([]bidding.Bid, error) {
	w := new(where)
	if filter.StudentID != "" {
		if !validID(filter.StudentID) {
			return []bidding.Bid{}, nil
		}
		w.add("student_id = ?", filter.StudentID)
	}
	if filter.TeacherID != "" {
		if !validID(filter.TeacherID) {
			return []bidding.Bid{}, nil
		}
		w.add("teacher_id = ?", filter.TeacherID)
	}
	if filter.Status != "" {
		w.add("status = ?", filter.Status)
	}
	q := "SELECT " + bidColumns + " FROM bids" + w.String() + orderBy(ordering, bidOrderColumns, "created_at, id")

	var rows []bidRow
	if err := repo.store.exec(ctx).SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, mapError(err, "querying bids")
	}
	bids := make([]bidding.Bid, 0, len(rows))
	for _, row := range rows {
		bids = append(bids, row.bid())
	}
	return bids, nil
}

// UpdateBidsStatus updates every bid in ids, or fails if any of them does not exist.
// Callers run it in a transaction so that a failure changes nothing.
func (repo *bidRepository) UpdateBidsStatus(ctx context.Context, status string, updatedAt time.Time, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	for _, id := range ids {
		if !validID(id) {
			return errors.Errorf("bid %s not found", id)
		}
	}

	res, err := repo.store.exec(ctx).ExecContext(ctx,
		"UPDATE bids SET status = $1, updated_at = $2 WHERE id = ANY($3::uuid[])",
		status, updatedAt.UTC(), pq.Array(ids))
	if err != nil {
		return mapError(err, "updating bids status")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapError(err, "updating bids status")
	}
	if n != int64(len(ids)) {
		return errors.Errorf("updated %d bids out of %d", n, len(ids))
	}
	return nil
}

func (repo *bidRepository) ActiveBidStats(ctx context.Context, studentIDs ...string) (map[string]student.BidStat, error) {
	stats := make(map[string]student.BidStat, len(studentIDs))
	ids := make([]string, 0, len(studentIDs))
	for _, id := range studentIDs {
		if validID(id) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return stats, nil
	}

	var rows []struct {
		StudentID string `db:"student_id"`
		Count     int    `db:"count"`
		Highest   int64  `db:"highest"`
	}
	err := repo.store.exec(ctx).SelectContext(ctx, &rows, `
		SELECT student_id, count(*) AS count, max(bid_amount) AS highest
		FROM bids
		WHERE status = $1 AND student_id = ANY($2::uuid[])
		GROUP BY student_id`,
		bidding.StatusActive, pq.Array(ids))
	if err != nil {
		return nil, mapError(err, "computing bid stats")
	}
	for _, row := range rows {
		stats[row.StudentID] = student.BidStat{Count: row.Count, Highest: row.Highest}
	}
	return stats, nil
}
