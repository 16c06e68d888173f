package account

import (
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/yarcoin/marketplace/core/student"
	"github.com/yarcoin/marketplace/core/teacher"
	"github.com/yarcoin/marketplace/core/user"
)

// Account is a User together with its role profile. Exactly one of Student & Teacher is set.
type Account struct {
	User    user.User        `json:"user"`
	Student *student.Student `json:"student,omitempty"`
	Teacher *teacher.Teacher `json:"teacher,omitempty"`
}

// NewAccount is a registration request. Skills, Achievements & BasePrice only apply to students,
// Specialization only to (and is required for) teachers.
type NewAccount struct {
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm,omitempty"`
	Role            string `json:"role"`

	Skills       []string `json:"skills,omitempty"`
	Achievements []string `json:"achievements,omitempty"`
	BasePrice    *int64   `json:"basePrice,omitempty"`

	Specialization string `json:"specialization,omitempty"`
	// Purse overrides the default purse of a teacher. Never bound from requests.
	Purse *int64 `json:"-"`
}

// split validates na and returns its user & profile parts.
// Field errors of both parts are reported together.
func (na NewAccount) split(validate *validator.Validate) (user.NewUser, interface{}, error) {
	nu := user.NewUser{
		FirstName:       na.FirstName,
		LastName:        na.LastName,
		Username:        na.Username,
		Email:           na.Email,
		Password:        na.Password,
		PasswordConfirm: na.PasswordConfirm,
		Role:            na.Role,
	}
	var fieldErrs validator.ValidationErrors
	if err := nu.Validate(validate); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return nu, nil, errors.Wrap(err, "validating user")
		}
		fieldErrs = append(fieldErrs, verrs...)
	}

	var (
		profile interface{}
		err     error
	)
	fullName := (&user.User{FirstName: nu.FirstName, LastName: nu.LastName}).FullName()
	switch nu.Role {
	case user.RoleStudent:
		ns := student.NewStudent{
			Name:         fullName,
			Email:        nu.Email,
			Skills:       na.Skills,
			Achievements: na.Achievements,
			BasePrice:    na.BasePrice,
		}
		err = ns.Validate(validate)
		profile = ns
	case user.RoleTeacher:
		nt := teacher.NewTeacher{
			Name:           fullName,
			Email:          nu.Email,
			Specialization: na.Specialization,
			Purse:          na.Purse,
		}
		err = nt.Validate(validate)
		profile = nt
	}
	if err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return nu, nil, errors.Wrap(err, "validating profile")
		}
		fieldErrs = append(fieldErrs, profileFieldErrors(verrs)...)
	}

	if len(fieldErrs) > 0 {
		return nu, nil, fieldErrs
	}
	return nu, profile, nil
}

// profileFieldErrors drops the errors on name & email, which derive from already reported user fields.
func profileFieldErrors(verrs validator.ValidationErrors) validator.ValidationErrors {
	kept := verrs[:0]
	for _, fe := range verrs {
		if fe.Field() == "name" || fe.Field() == "email" {
			continue
		}
		kept = append(kept, fe)
	}
	return kept
}
