package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ems-console/internal/apperr"
	"github.com/iliyamo/ems-console/internal/model"
	"github.com/iliyamo/ems-console/internal/tenant"
)

// ----- view models -----

type listView struct {
	Status            string         `json:"status"`
	Page              int            `json:"page"`
	PageSize          int            `json:"pageSize"`
	Search            string         `json:"search"`
	Items             []model.Tenant `json:"items"`
	TotalCount        int            `json:"totalCount"`
	TotalPages        int            `json:"totalPages"`
	Loaded            bool           `json:"loaded"`
	Error             string         `json:"error,omitempty"`
	PendingDelete     *model.Tenant  `json:"pendingDelete,omitempty"`
	PendingDeactivate *model.Tenant  `json:"pendingDeactivate,omitempty"`
}

func viewOf(v tenant.View) listView {
	lv := listView{
		Status:            v.Status.String(),
		Page:              v.Page,
		PageSize:          v.PageSize,
		Search:            v.Search,
		Items:             v.Data.Items,
		TotalCount:        v.Data.TotalCount,
		TotalPages:        v.Data.LastPage(),
		Loaded:            v.Loaded,
		PendingDelete:     v.PendingDelete,
		PendingDeactivate: v.PendingDeactivate,
	}
	if lv.Items == nil {
		lv.Items = []model.Tenant{}
	}
	if v.Err != nil {
		lv.Error = v.Err.Error()
	}
	return lv
}

type moduleView struct {
	Name        model.Module `json:"name"`
	Description string       `json:"description"`
}

type confirmView struct {
	Tenant  model.Tenant `json:"tenant"`
	Message string       `json:"message"`
}

type mutationView struct {
	Tenant *model.Tenant `json:"tenant,omitempty"`
	OK     bool          `json:"ok"`
	List   listView      `json:"list"`
}

// ----- list -----

// ListTenants shows one page of tenants.  Without a page or search
// parameter the current page is reloaded; a page alone is clamped to the
// last page the list had.
func (h *Handler) ListTenants(c echo.Context) error {
	s, _, err := current(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	q := c.QueryParams()
	page := 0
	if q.Has("page") {
		if page, err = strconv.Atoi(q.Get("page")); err != nil || page < 1 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid page"})
		}
	}
	switch {
	case q.Has("search"):
		if page == 0 {
			page = 1
		}
		_, err = s.Tenants.List(ctx, page, 0, strings.TrimSpace(q.Get("search")))
	case page > 0:
		_, err = s.Tenants.GoToPage(ctx, page)
	default:
		_, err = s.Tenants.Refresh(ctx)
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, viewOf(s.Tenants.View()))
}

type searchReq struct {
	Search string `json:"search" form:"search"`
}

// SearchTenants submits the search box.  The list goes back to page 1.
func (h *Handler) SearchTenants(c echo.Context) error {
	s, _, err := current(c)
	if err != nil {
		return err
	}
	var req searchReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if _, err := s.Tenants.Search(c.Request().Context(), req.Search); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, viewOf(s.Tenants.View()))
}

// GetTenant shows one tenant.
func (h *Handler) GetTenant(c echo.Context) error {
	s, _, err := current(c)
	if err != nil {
		return err
	}
	id, err := tenantID(c)
	if err != nil {
		return err
	}
	t, err := s.API.GetTenant(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

// TenantPicture proxies the tenant's display picture.
func (h *Handler) TenantPicture(c echo.Context) error {
	s, _, err := current(c)
	if err != nil {
		return err
	}
	id, err := tenantID(c)
	if err != nil {
		return err
	}
	pic, err := s.API.TenantDisplayPicture(c.Request().Context(), id)
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=300")
	return c.Blob(http.StatusOK, pic.ContentType, pic.Data)
}

// Modules lists the modules a tenant may be given.
func (h *Handler) Modules(c echo.Context) error {
	s, _, err := current(c)
	if err != nil {
		return err
	}
	mods, err := s.API.ListModules(c.Request().Context())
	if err != nil {
		return err
	}
	out := make([]moduleView, 0, len(mods))
	for _, m := range mods {
		out = append(out, moduleView{Name: m, Description: m.Description()})
	}
	return c.JSON(http.StatusOK, out)
}

// ----- create / update -----

// CreateTenant submits the tenant form for a new tenant.
func (h *Handler) CreateTenant(c echo.Context) error {
	s, _, err := current(c)
	if err != nil {
		return err
	}
	values, pic, err := readTenantForm(c)
	if err != nil {
		return err
	}
	in := tenant.CreateInput{
		Name:           values.Get("name"),
		Email:          values.Get("email"),
		Remarks:        values.Get("remarks"),
		Modules:        formModules(values),
		DisplayPicture: pic,
	}
	if in.IsActivated, err = formBool(values, "isActivated"); err != nil {
		return err
	}
	t, err := s.Tenants.Create(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, mutationView{Tenant: &t, OK: true, List: viewOf(s.Tenants.View())})
}

// UpdateTenant submits the tenant form for an existing tenant.  Fields the
// form leaves out keep their current value.
func (h *Handler) UpdateTenant(c echo.Context) error {
	s, _, err := current(c)
	if err != nil {
		return err
	}
	id, err := tenantID(c)
	if err != nil {
		return err
	}
	values, pic, err := readTenantForm(c)
	if err != nil {
		return err
	}
	in := tenant.UpdateInput{ID: id, DisplayPicture: pic}
	if values.Has("name") {
		in.Name = ptr(values.Get("name"))
	}
	if e := values.Get("email"); e != "" {
		in.Email = ptr(e)
	}
	if values.Has("remarks") {
		in.Remarks = ptr(values.Get("remarks"))
	}
	if values.Has("modules") {
		in.Modules = formModules(values)
	}
	if in.IsActivated, err = formBool(values, "isActivated"); err != nil {
		return err
	}
	t, err := s.Tenants.Update(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, mutationView{Tenant: &t, OK: true, List: viewOf(s.Tenants.View())})
}

// ----- delete / deactivate -----

// RequestDelete asks for confirmation before deleting a listed tenant.
func (h *Handler) RequestDelete(c echo.Context) error {
	s, _, err := current(c)
	if err != nil {
		return err
	}
	id, err := tenantID(c)
	if err != nil {
		return err
	}
	t, err := s.Tenants.RequestDelete(id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, confirmView{
		Tenant:  t,
		Message: fmt.Sprintf("Are you sure you want to delete %q? This action cannot be undone.", t.Name),
	})
}

// ConfirmDelete deletes the tenant pending confirmation.
func (h *Handler) ConfirmDelete(c echo.Context) error {
	s, _, err := current(c)
	if err != nil {
		return err
	}
	if err := s.Tenants.ConfirmDelete(c.Request().Context()); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, mutationView{OK: true, List: viewOf(s.Tenants.View())})
}

// CancelDelete drops a pending delete.
func (h *Handler) CancelDelete(c echo.Context) error {
	s, _, err := current(c)
	if err != nil {
		return err
	}
	s.Tenants.CancelDelete()
	return c.NoContent(http.StatusNoContent)
}

// RequestDeactivate asks for confirmation before deactivating a listed,
// active tenant.  With force=true the tenant is deactivated right away,
// whatever the list shows.
func (h *Handler) RequestDeactivate(c echo.Context) error {
	s, _, err := current(c)
	if err != nil {
		return err
	}
	id, err := tenantID(c)
	if err != nil {
		return err
	}
	if force, _ := strconv.ParseBool(c.QueryParam("force")); force {
		ok, err := s.Tenants.ForceDeactivate(c.Request().Context(), id)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, mutationView{OK: ok, List: viewOf(s.Tenants.View())})
	}
	t, err := s.Tenants.RequestDeactivate(id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, confirmView{
		Tenant:  t,
		Message: fmt.Sprintf("Are you sure you want to deactivate %q?", t.Name),
	})
}

// ConfirmDeactivate deactivates the tenant pending confirmation.  OK is
// false when the service declined.
func (h *Handler) ConfirmDeactivate(c echo.Context) error {
	s, _, err := current(c)
	if err != nil {
		return err
	}
	ok, err := s.Tenants.ConfirmDeactivate(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, mutationView{OK: ok, List: viewOf(s.Tenants.View())})
}

// CancelDeactivate drops a pending deactivation.
func (h *Handler) CancelDeactivate(c echo.Context) error {
	s, _, err := current(c)
	if err != nil {
		return err
	}
	s.Tenants.CancelDeactivate()
	return c.NoContent(http.StatusNoContent)
}

// ----- form helpers -----

func tenantID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid tenant id")
	}
	return id, nil
}

// readTenantForm parses a multipart or urlencoded tenant form.  The
// picture is read up to one byte past the size limit so that the
// validator can reject it without the whole file being held.
func readTenantForm(c echo.Context) (url.Values, *model.Attachment, error) {
	values, err := c.FormParams()
	if err != nil {
		return nil, nil, echo.NewHTTPError(http.StatusBadRequest, "invalid form")
	}
	fh, err := c.FormFile("displayPicture")
	switch {
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		return values, nil, nil
	case err != nil:
		return nil, nil, echo.NewHTTPError(http.StatusBadRequest, "invalid form")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("open display picture: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, tenant.MaxPictureBytes+1))
	if err != nil {
		return nil, nil, fmt.Errorf("read display picture: %w", err)
	}
	ct := fh.Header.Get(echo.HeaderContentType)
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return values, &model.Attachment{Filename: fh.Filename, ContentType: ct, Data: data}, nil
}

// formModules accepts repeated and comma separated module fields.  Unknown
// names are kept as given for the validator to report.
func formModules(values url.Values) []model.Module {
	mods := []model.Module{}
	for _, v := range values["modules"] {
		for _, raw := range strings.Split(v, ",") {
			if raw = strings.TrimSpace(raw); raw == "" {
				continue
			}
			m, err := model.ParseModule(raw)
			if err != nil {
				m = model.Module(raw)
			}
			mods = append(mods, m)
		}
	}
	return mods
}

func formBool(values url.Values, key string) (*bool, error) {
	if !values.Has(key) {
		return nil, nil
	}
	v := values.Get(key)
	if v == "on" {
		v = "true"
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		verr := apperr.NewValidationError()
		verr.Add(key, "Must be true or false")
		return nil, verr
	}
	return &b, nil
}

func ptr[T any](v T) *T { return &v }
