package teacher

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/yarcoin/marketplace/core"
)

type Teacher struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Specialization string    `json:"specialization"`
	Purse          int64     `json:"purse"`
	WalletAddress  string    `json:"walletAddress"`
	CreatedAt      time.Time `json:"createdAt"` // UTC
	UpdatedAt      time.Time `json:"updatedAt"` // UTC
}

// NewTeacher contains the profile information needed to create a new Teacher.
// Purse is only settable by admin tooling; registration always uses the default.
type NewTeacher struct {
	Name           string `json:"name" validate:"required,max=200"`
	Email          string `json:"email" validate:"required,email"`
	Specialization string `json:"specialization" validate:"required,max=200"`
	Purse          *int64 `json:"-" validate:"omitempty,min=0"`
}

func (nt *NewTeacher) Validate(validate *validator.Validate) error {
	nt.Name = core.CleanString(nt.Name)
	nt.Email = core.CleanString(nt.Email, true /* lower */)
	nt.Specialization = core.CleanString(nt.Specialization)
	return validate.Struct(nt)
}

type QueryFilter struct {
	Search         string `query:"search"`
	Specialization string `query:"specialization"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Specialization = core.CleanString(qf.Specialization)
}
