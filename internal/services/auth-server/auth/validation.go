package auth

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/NordCoder/Gatekeeper/internal/domain/autherr"
)

const (
	minNameLen = 2
	maxNameLen = 50
	// bcrypt ignores input past 72 bytes.
	maxPasswordLen = 72
)

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func passwordRules(minLen int) []validation.Rule {
	return []validation.Rule{validation.Required, validation.Length(minLen, maxPasswordLen)}
}

// Validate checks the payload with Email already normalized.
func (in RegisterInput) Validate(minPasswordLen int) error {
	return invalidInput(validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required, validation.RuneLength(minNameLen, maxNameLen)),
		validation.Field(&in.Email, validation.Required, is.Email),
		validation.Field(&in.Password, passwordRules(minPasswordLen)...),
	))
}

// Validate will run validation rules
func (r loginRequest) Validate() error {
	return invalidInput(validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	))
}

func (r changePasswordRequest) Validate() error {
	return invalidInput(validation.ValidateStruct(&r,
		validation.Field(&r.CurrentPassword, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(0, maxPasswordLen)),
	))
}

func (u *Usecase) validateNewPassword(p string) error {
	return invalidInput(validation.Errors{
		"new_password": validation.Validate(p, passwordRules(u.cfg.MinPasswordLen)...),
	}.Filter())
}

// invalidInput turns rule violations into InvalidInput carrying the field
// messages. A misconfigured rule is an internal failure.
func invalidInput(err error) error {
	if err == nil {
		return nil
	}
	var ie validation.InternalError
	if errors.As(err, &ie) {
		return autherr.Infra(err, "validate input")
	}
	return autherr.Wrap(autherr.KindInvalidInput, err, err.Error())
}
