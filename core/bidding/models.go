package bidding

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/yarcoin/marketplace/core"
)

// Bid statuses. A bid is active until its student is settled, then either won or superseded.
const (
	StatusActive     = "active"
	StatusWon        = "won"
	StatusSuperseded = "superseded"
)

type Bid struct {
	ID        string    `json:"id"`
	TeacherID string    `json:"teacherId"`
	StudentID string    `json:"studentId"`
	BidAmount int64     `json:"bidAmount"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"` // UTC
	UpdatedAt time.Time `json:"updatedAt"` // UTC
}

func (b Bid) IsActive() bool { return b.Status == StatusActive }

// NewBid is a bid request. TeacherID defaults to the authenticated teacher.
// BidAmount is only checked for presence here; its value is checked by PlaceBid.
type NewBid struct {
	TeacherID string      `json:"teacherId,omitempty"`
	StudentID string      `json:"studentId" validate:"required"`
	BidAmount json.Number `json:"bidAmount" validate:"required"`
}

// Amount returns BidAmount, or 0 when it is not an int64 (fractions, overflows)
// so that PlaceBid rejects it as invalid_amount in its usual order.
func (nb *NewBid) Amount() int64 {
	amount, err := nb.BidAmount.Int64()
	if err != nil {
		return 0
	}
	return amount
}

func (nb *NewBid) Validate(validate *validator.Validate) error {
	nb.TeacherID = core.CleanString(nb.TeacherID)
	nb.StudentID = core.CleanString(nb.StudentID)
	return validate.Struct(nb)
}

type Refund struct {
	BidID     string `json:"bidId"`
	TeacherID string `json:"teacherId"`
	Amount    int64  `json:"amount"`
}

// Settlement is the outcome of SettleHighestBid.
type Settlement struct {
	StudentID string   `json:"studentId"`
	TeacherID string   `json:"teacherId"`
	BidID     string   `json:"bidId"`
	Amount    int64    `json:"amount"`
	Refunds   []Refund `json:"refunds"`
}

type QueryFilter struct {
	StudentID string
	TeacherID string
	Status    string
}
