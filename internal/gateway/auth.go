package gateway

import (
	"context"
	"net/http"

	"github.com/iliyamo/ems-console/internal/model"
)

// SignIn exchanges credentials for a session token.
func (c *Client) SignIn(ctx context.Context, req model.SignInRequest) (model.Envelope[model.SignInResult], error) {
	r, err := jsonRequest(http.MethodPost, "/api/v1/Auth/signin", req)
	if err != nil {
		return model.Envelope[model.SignInResult]{}, err
	}
	return call[model.SignInResult](ctx, c, r)
}

// SignOut ends the remote session.
func (c *Client) SignOut(ctx context.Context) error {
	_, err := callBool(ctx, c, request{method: http.MethodPost, path: "/api/v1/Auth/signout"})
	return err
}

// ChangePassword changes the signed-in user's password.
func (c *Client) ChangePassword(ctx context.Context, req model.ChangePasswordRequest) (bool, error) {
	r, err := jsonRequest(http.MethodPost, "/api/v1/Auth/change-password", req)
	if err != nil {
		return false, err
	}
	return callBool(ctx, c, r)
}
