package student

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/yarcoin/marketplace/core"
)

// Statuses, derived from ownership and active bids.
const (
	StatusAvailable = "available"
	StatusBidding   = "bidding"
	StatusAcquired  = "acquired"
)

var AllStatuses = []string{StatusAvailable, StatusBidding, StatusAcquired}

type Student struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Skills        []string  `json:"skills"`
	Achievements  []string  `json:"achievements"`
	BasePrice     int64     `json:"basePrice"`
	YarBalance    int64     `json:"yarBalance"`
	OwnedBy       string    `json:"ownedBy,omitempty"` // Teacher ID
	WalletAddress string    `json:"walletAddress"`
	CreatedAt     time.Time `json:"createdAt"` // UTC
	UpdatedAt     time.Time `json:"updatedAt"` // UTC

	// derived, never stored
	Status     string `json:"status"`
	CurrentBid int64  `json:"currentBid"`
}

func (s *Student) IsOwned() bool { return s.OwnedBy != "" }

// setStats fills the derived fields.
func (s *Student) setStats(stat BidStat) {
	s.CurrentBid = stat.Highest
	switch {
	case s.IsOwned():
		s.Status = StatusAcquired
	case stat.Count > 0:
		s.Status = StatusBidding
	default:
		s.Status = StatusAvailable
	}
}

// BidStat summarizes the active bids placed on a student.
type BidStat struct {
	Count   int
	Highest int64
}

// NewStudent contains the profile information needed to create a new Student.
type NewStudent struct {
	Name         string   `json:"name" validate:"required,max=200"`
	Email        string   `json:"email" validate:"required,email"`
	Skills       []string `json:"skills" validate:"omitempty,max=50,noblankitems"`
	Achievements []string `json:"achievements" validate:"omitempty,max=100,noblankitems"`
	BasePrice    *int64   `json:"basePrice" validate:"omitempty,min=0"`
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	ns.Email = core.CleanString(ns.Email, true /* lower */)
	if err := validate.Struct(ns); err != nil {
		return err
	}
	ns.Skills = core.CleanStrings(ns.Skills)
	ns.Achievements = core.CleanStrings(ns.Achievements)
	return nil
}

type Achievement struct {
	ID              string    `json:"id"`
	StudentID       string    `json:"studentId"`
	Name            string    `json:"achievementName"`
	Position        string    `json:"position"`
	Description     string    `json:"description"`
	Date            time.Time `json:"date"`
	Category        string    `json:"category"`
	TeacherUsername string    `json:"teacherUsername"`
	CertificateRef  string    `json:"certificateRef"`
	CreatedAt       time.Time `json:"createdAt"` // UTC
}

// NewAchievement is the form sent along with an achievement certificate.
type NewAchievement struct {
	Name            string `form:"achievementName" validate:"required,max=200"`
	Position        string `form:"position" validate:"max=100"`
	Description     string `form:"description" validate:"max=2000"`
	Date            string `form:"date" validate:"omitempty,datetime=2006-01-02"`
	Category        string `form:"category" validate:"max=100"`
	TeacherUsername string `form:"teacherUsername" validate:"max=50"`
}

func (na *NewAchievement) Clean() {
	na.Name = core.CleanString(na.Name)
	na.Position = core.CleanString(na.Position)
	na.Description = core.CleanString(na.Description)
	na.Date = core.CleanString(na.Date)
	na.Category = core.CleanString(na.Category)
	na.TeacherUsername = core.CleanString(na.TeacherUsername, true /* lower */)
}

func (na *NewAchievement) Validate(validate *validator.Validate) error {
	na.Clean()
	return validate.Struct(na)
}

type QueryFilter struct {
	Search  string `json:"search" query:"search"`
	Status  string `json:"status" query:"status" validate:"omitempty,oneof=available bidding acquired"`
	OwnedBy string `json:"ownedBy" query:"ownedBy"`
	Skill   string `json:"skill" query:"skill"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Status = core.CleanString(qf.Status, true /* lower */)
	qf.OwnedBy = core.CleanString(qf.OwnedBy)
	qf.Skill = core.CleanString(qf.Skill)
}

func (qf *QueryFilter) Validate(validate *validator.Validate) error {
	qf.Clean()
	return validate.Struct(qf)
}
