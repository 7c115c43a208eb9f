package tenant

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/iliyamo/ems-console/internal/apperr"
	"github.com/iliyamo/ems-console/internal/model"
)

// Form limits.
const (
	MaxNameLength    = 100
	MaxRemarksLength = 500
	MaxPictureBytes  = 1 << 20
)

// CreateInput is the tenant form as submitted for a new tenant.  A nil
// IsActivated means the default, active.
type CreateInput struct {
	Name           string
	Email          string
	Remarks        string
	Modules        []model.Module
	IsActivated    *bool
	DisplayPicture *model.Attachment
}

// UpdateInput is the tenant form as submitted for an existing tenant.  Nil
// fields were not touched and keep their server value.
type UpdateInput struct {
	ID             int64
	Name           *string
	Email          *string
	Remarks        *string
	Modules        []model.Module
	IsActivated    *bool
	DisplayPicture *model.Attachment
}

// ValidateCreate checks a create form.  Every invalid field is reported in
// the returned *apperr.ValidationError; nil means the form may be sent.
func ValidateCreate(in CreateInput) error {
	v := apperr.NewValidationError()
	checkName(v, in.Name)
	switch email := strings.TrimSpace(in.Email); {
	case email == "":
		v.Add("email", "Email is required")
	case !model.ValidEmail(email):
		v.Add("email", "Invalid email address")
	}
	checkRemarks(v, in.Remarks)
	checkModules(v, in.Modules)
	checkPicture(v, in.DisplayPicture)
	return v.OrNil()
}

// ValidateUpdate checks an update form against current, the console's copy
// of the tenant being edited (nil when it has none).  The email is
// immutable: any email other than the current one is rejected, and so is
// any email at all when there is no current copy to compare with.
func ValidateUpdate(in UpdateInput, current *model.Tenant) error {
	v := apperr.NewValidationError()
	if in.ID < 1 {
		v.Add("id", "Tenant id is required")
	}
	if in.Name != nil {
		checkName(v, *in.Name)
	}
	if in.Email != nil {
		if current == nil || !strings.EqualFold(strings.TrimSpace(*in.Email), current.Email) {
			v.Add("email", "Email cannot be changed")
		}
	}
	if in.Remarks != nil {
		checkRemarks(v, *in.Remarks)
	}
	if in.Modules != nil {
		checkModules(v, in.Modules)
	}
	checkPicture(v, in.DisplayPicture)
	return v.OrNil()
}

func checkName(v *apperr.ValidationError, name string) {
	switch n := utf8.RuneCountInString(strings.TrimSpace(name)); {
	case n == 0:
		v.Add("name", "Name is required")
	case n > MaxNameLength:
		v.Add("name", fmt.Sprintf("Name must be at most %d characters", MaxNameLength))
	}
}

func checkRemarks(v *apperr.ValidationError, remarks string) {
	if utf8.RuneCountInString(remarks) > MaxRemarksLength {
		v.Add("remarks", fmt.Sprintf("Remarks must be at most %d characters", MaxRemarksLength))
	}
}

func checkModules(v *apperr.ValidationError, mods []model.Module) {
	if len(mods) == 0 {
		v.Add("modules", "Select at least one module")
		return
	}
	for _, m := range mods {
		if !m.Valid() {
			v.Add("modules", fmt.Sprintf("Unknown module %q", m))
			return
		}
	}
}

func checkPicture(v *apperr.ValidationError, a *model.Attachment) {
	if a.Size() > MaxPictureBytes {
		v.Add("displayPicture", "File size must be less than 1MB")
	}
}

// dedupe keeps the first occurrence of each module.
func dedupe(mods []model.Module) []model.Module {
	seen := make(map[model.Module]bool, len(mods))
	out := make([]model.Module, 0, len(mods))
	for _, m := range mods {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}
