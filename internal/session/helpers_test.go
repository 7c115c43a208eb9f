package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ems-console/internal/apperr"
	"github.com/iliyamo/ems-console/internal/model"
)

func signToken(t *testing.T, c jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte("not-verified"))
	require.NoError(t, err)
	return s
}

func tokenFor(t *testing.T, sub, email, privilege, tenant string, exp time.Time) string {
	c := jwt.MapClaims{
		"sub":   sub,
		"email": email,
		"exp":   exp.Unix(),
		"iat":   exp.Add(-time.Hour).Unix(),
	}
	if privilege != "" {
		c["PrivilegeType"] = privilege
	}
	if tenant != "" {
		c["tenant"] = tenant
	}
	return signToken(t, c)
}

type fakeAuth struct {
	signIn     func(ctx context.Context, req model.SignInRequest) (model.Envelope[model.SignInResult], error)
	signOutErr error
	signOuts   atomic.Int32
}

func (f *fakeAuth) SignIn(ctx context.Context, req model.SignInRequest) (model.Envelope[model.SignInResult], error) {
	if f.signIn == nil {
		return model.Envelope[model.SignInResult]{}, errors.New("not configured")
	}
	return f.signIn(ctx, req)
}

func (f *fakeAuth) SignOut(context.Context) error {
	f.signOuts.Add(1)
	return f.signOutErr
}

func issuing(token string) *fakeAuth {
	return &fakeAuth{signIn: func(context.Context, model.SignInRequest) (model.Envelope[model.SignInResult], error) {
		return model.Envelope[model.SignInResult]{Result: model.SignInResult{Token: token}}, nil
	}}
}

func rejecting() *fakeAuth {
	return &fakeAuth{signIn: func(context.Context, model.SignInRequest) (model.Envelope[model.SignInResult], error) {
		return model.Envelope[model.SignInResult]{}, apperr.ErrUnauthorized
	}}
}
