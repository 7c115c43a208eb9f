package settings

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/iliyamo/ems-console/internal/apperr"
	"github.com/iliyamo/ems-console/internal/model"
)

// MinPasswordLength applies to both the old and the new password.
const MinPasswordLength = 8

// ErrPasswordNotChanged is returned when the remote service answered the
// change request without error but did not apply it.
var ErrPasswordNotChanged = errors.New("password was not changed")

// PasswordForm is the change password form.  The email is not part of it;
// it comes from the signed-in identity.
type PasswordForm struct {
	OldPassword        string `json:"oldPassword"`
	NewPassword        string `json:"newPassword"`
	ConfirmNewPassword string `json:"confirmNewPassword"`
}

// PasswordChanger is the gateway call the form submits to.
type PasswordChanger interface {
	ChangePassword(ctx context.Context, req model.ChangePasswordRequest) (bool, error)
}

// ValidatePassword checks the form and reports every invalid field.
func ValidatePassword(f PasswordForm) error {
	v := apperr.NewValidationError()
	checkStrength(v, "oldPassword", f.OldPassword)
	checkStrength(v, "newPassword", f.NewPassword)
	switch {
	case f.ConfirmNewPassword == "":
		v.Add("confirmNewPassword", "Please confirm your password")
	case f.ConfirmNewPassword != f.NewPassword:
		v.Add("confirmNewPassword", "Passwords don't match")
	}
	return v.OrNil()
}

func checkStrength(v *apperr.ValidationError, field, pw string) {
	if utf8.RuneCountInString(pw) < MinPasswordLength {
		v.Add(field, fmt.Sprintf("Password must be at least %d characters", MinPasswordLength))
		return
	}
	var lower, upper, digit, special bool
	for _, r := range pw {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		case r != '_':
			special = true
		}
	}
	if !lower || !upper || !digit || !special {
		v.Add(field, "Must contain uppercase, lowercase, number, and special character")
	}
}

// ChangePassword validates f and submits it for email.
func ChangePassword(ctx context.Context, api PasswordChanger, email string, f PasswordForm) error {
	if err := ValidatePassword(f); err != nil {
		return err
	}
	ok, err := api.ChangePassword(ctx, model.ChangePasswordRequest{
		Email:              email,
		OldPassword:        f.OldPassword,
		NewPassword:        f.NewPassword,
		ConfirmNewPassword: f.ConfirmNewPassword,
	})
	if err != nil {
		if apperr.IsUnauthorized(err) {
			return err
		}
		return fmt.Errorf("change password: %w", err)
	}
	if !ok {
		return ErrPasswordNotChanged
	}
	return nil
}
