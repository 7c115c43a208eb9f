package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/iliyamo/ems-console/internal/apperr"
	"github.com/iliyamo/ems-console/internal/model"
)

// maxPictureBytes bounds a downloaded display picture.
const maxPictureBytes = 8 << 20

// ListTenants fetches one page of tenants.  Page and page size default to 1
// and model.DefaultPageSize.
func (c *Client) ListTenants(ctx context.Context, p model.ListParams) (model.TenantPage, error) {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = model.DefaultPageSize
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(p.Page))
	q.Set("pageSize", strconv.Itoa(p.PageSize))
	if p.SortBy != "" {
		q.Set("sortBy", p.SortBy)
	}
	if p.SortingOrder != "" {
		q.Set("sortingOrder", string(p.SortingOrder))
	}
	if p.Search != "" {
		q.Set("search", p.Search)
	}
	if p.IsActive != nil {
		q.Set("isActive", strconv.FormatBool(*p.IsActive))
	}
	env, err := call[model.TenantPage](ctx, c, request{method: http.MethodGet, path: "/api/v1/Tenants", query: q})
	return env.Result, err
}

// GetTenant fetches a single tenant.
func (c *Client) GetTenant(ctx context.Context, id int64) (model.Tenant, error) {
	env, err := call[model.Tenant](ctx, c, request{method: http.MethodGet, path: tenantPath(id)})
	return env.Result, err
}

// CreateTenant submits a new tenant as a multipart form.  The server owns
// email uniqueness: a 409 answer comes back as a validation error on the
// email field.
func (c *Client) CreateTenant(ctx context.Context, req model.CreateTenantRequest) (model.Tenant, error) {
	body, ct, err := createForm(req)
	if err != nil {
		return model.Tenant{}, fmt.Errorf("encode tenant form: %w", err)
	}
	env, err := call[model.Tenant](ctx, c, request{method: http.MethodPost, path: "/api/v1/Tenants", body: body, contentType: ct})
	var se *StatusError
	if errors.As(err, &se) && se.Status == http.StatusConflict {
		msg := se.Message
		if msg == "" {
			msg = "Email already exists"
		}
		v := apperr.NewValidationError()
		v.Add("email", msg)
		return model.Tenant{}, v
	}
	return env.Result, err
}

// UpdateTenant submits changed tenant fields as a multipart form.
func (c *Client) UpdateTenant(ctx context.Context, req model.UpdateTenantRequest) (model.Tenant, error) {
	body, ct, err := updateForm(req)
	if err != nil {
		return model.Tenant{}, fmt.Errorf("encode tenant form: %w", err)
	}
	env, err := call[model.Tenant](ctx, c, request{method: http.MethodPut, path: "/api/v1/Tenants", body: body, contentType: ct})
	return env.Result, err
}

// DeleteTenant removes a tenant for good.
func (c *Client) DeleteTenant(ctx context.Context, id int64) (bool, error) {
	return callBool(ctx, c, request{method: http.MethodDelete, path: tenantPath(id)})
}

// DeactivateTenant switches a tenant off without deleting it.
func (c *Client) DeactivateTenant(ctx context.Context, id int64) (bool, error) {
	return callBool(ctx, c, request{method: http.MethodPut, path: "/api/v1/Tenants/deactivate/" + strconv.FormatInt(id, 10)})
}

// TenantDisplayPicture downloads a tenant's display picture.
func (c *Client) TenantDisplayPicture(ctx context.Context, id int64) (model.Attachment, error) {
	resp, err := c.send(ctx, request{method: http.MethodGet, path: "/api/v1/Tenants/display-picture/" + strconv.FormatInt(id, 10), accept: "image/*"})
	if err != nil {
		return model.Attachment{}, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPictureBytes+1))
	if err != nil {
		return model.Attachment{}, fmt.Errorf("read display picture: %w", err)
	}
	if len(data) > maxPictureBytes {
		return model.Attachment{}, fmt.Errorf("display picture of tenant %d exceeds %d bytes", id, maxPictureBytes)
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return model.Attachment{Filename: fmt.Sprintf("tenant-%d", id), ContentType: ct, Data: data}, nil
}

// ListModules fetches the modules the service offers.
func (c *Client) ListModules(ctx context.Context) ([]model.Module, error) {
	env, err := call[[]model.Module](ctx, c, request{method: http.MethodGet, path: "/api/v1/Module"})
	return env.Result, err
}

func tenantPath(id int64) string { return "/api/v1/Tenants/" + strconv.FormatInt(id, 10) }
