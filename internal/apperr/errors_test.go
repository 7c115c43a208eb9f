package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationErrorCollectsFields(t *testing.T) {
	v := NewValidationError()
	require.NoError(t, v.OrNil())

	v.Add("name", "Name is required")
	v.Add("name", "second message is ignored")
	v.Add("email", "Invalid email address")

	err := v.OrNil()
	require.Error(t, err)
	assert.True(t, v.Has("name"))
	assert.Equal(t, "Name is required", v.Fields["name"])
	assert.Equal(t, "validation failed: email: Invalid email address; name: Name is required", err.Error())
}

func TestWrappedErrorsUnwrap(t *testing.T) {
	cause := errors.New("boom")

	var fe *FetchError
	require.ErrorAs(t, fmt.Errorf("list: %w", &FetchError{Op: "tenants", Err: cause}), &fe)
	assert.ErrorIs(t, fe, cause)

	me := &MutationError{Op: "delete", Err: ErrUnauthorized}
	assert.True(t, IsUnauthorized(me))
	assert.Equal(t, "delete tenant: unauthorized", me.Error())

	ae := &AuthenticationError{Message: "invalid credentials"}
	assert.Equal(t, "authentication failed: invalid credentials", ae.Error())
	assert.NoError(t, errors.Unwrap(ae))
}
