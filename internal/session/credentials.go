package session

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/iliyamo/ems-console/internal/apperr"
	"github.com/iliyamo/ems-console/internal/model"
)

// MinPasswordLength is the shortest password the login form submits.
const MinPasswordLength = 8

// ValidateCredentials checks the login form before it is sent.
func ValidateCredentials(email, password string) error {
	v := apperr.NewValidationError()
	switch email = strings.TrimSpace(email); {
	case email == "":
		v.Add("email", "Email is required")
	case !model.ValidEmail(email):
		v.Add("email", "Invalid email address")
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		v.Add("password", fmt.Sprintf("Password must be at least %d characters", MinPasswordLength))
	}
	return v.OrNil()
}
