package authcore

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

const (
	minPasswordRunes = 8
	maxPasswordRunes = 64
	maxNameRunes     = 100
)

// LoginRequest is the input to Engine.Login. CaptchaToken is only consulted
// once the email reached the CAPTCHA threshold; TOTPCode only when the
// account has two-factor enabled.
type LoginRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	CaptchaToken string `json:"captchaToken"`
	TOTPCode     string `json:"totpCode"`
}

func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

// RegisterRequest is the input to Engine.Register. An empty Role means
// RoleUser.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     Role   `json:"role"`
}

func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.RuneLength(1, maxNameRunes)),
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.Password, validation.Required, validation.RuneLength(minPasswordRunes, maxPasswordRunes)),
		validation.Field(&r.Role, validation.In(RoleUser, RoleCompany)),
	)
}

type passwordChange struct {
	Current string `json:"currentPassword"`
	Next    string `json:"newPassword"`
}

func (r passwordChange) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Current, validation.Required),
		validation.Field(&r.Next, validation.Required, validation.RuneLength(minPasswordRunes, maxPasswordRunes)),
	)
}

// validationError converts an ozzo result into ErrValidation with one
// message per field.
func validationError(err error) error {
	if err == nil {
		return nil
	}

	out := wrap(ErrValidation, err)

	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) {
		out.Fields = make(map[string]string, len(fieldErrs))
		for field, fe := range fieldErrs {
			out.Fields[field] = fe.Error()
		}
	}
	return out
}
