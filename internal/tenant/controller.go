// Package tenant drives the tenant management screen: the paginated,
// searchable list, the create/update form, and the delete and deactivate
// actions with their confirmation steps.
package tenant

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/ems-console/internal/apperr"
	"github.com/iliyamo/ems-console/internal/model"
)

// API is the slice of the gateway the controller uses.
type API interface {
	ListTenants(ctx context.Context, p model.ListParams) (model.TenantPage, error)
	GetTenant(ctx context.Context, id int64) (model.Tenant, error)
	CreateTenant(ctx context.Context, req model.CreateTenantRequest) (model.Tenant, error)
	UpdateTenant(ctx context.Context, req model.UpdateTenantRequest) (model.Tenant, error)
	DeleteTenant(ctx context.Context, id int64) (bool, error)
	DeactivateTenant(ctx context.Context, id int64) (bool, error)
}

// Status is the list view state.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusLoaded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusLoaded:
		return "loaded"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// MarshalText renders the status by name in view models.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// View is a snapshot of the list screen.  Data is the last page that loaded
// successfully; it stays visible while a later fetch is failing.
type View struct {
	Status            Status
	Page              int
	PageSize          int
	Search            string
	Data              model.TenantPage
	Loaded            bool
	Err               error
	PendingDelete     *model.Tenant
	PendingDeactivate *model.Tenant
}

// Mutation describes a successful change, for audit and event hooks.
type Mutation struct {
	Op       string
	TenantID int64
	Name     string
	At       time.Time
}

// Mutation operations.
const (
	OpCreate     = "create"
	OpUpdate     = "update"
	OpDelete     = "delete"
	OpDeactivate = "deactivate"
)

// Controller owns the state of one tenant list view.  List calls may
// overlap; only the most recently started one updates the view.
// Mutations run one at a time and each one returns only after the list
// refetch that follows it.
type Controller struct {
	api      API
	log      *zap.Logger
	pageSize int
	onChange func(ctx context.Context, m Mutation)
	now      func() time.Time

	opMu sync.Mutex

	mu   sync.Mutex
	seq  uint64
	view View
}

// Option configures a Controller.
type Option func(*Controller)

// WithPageSize overrides model.DefaultPageSize.
func WithPageSize(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithLogger sets the logger; the default discards.
func WithLogger(l *zap.Logger) Option { return func(c *Controller) { c.log = l } }

// WithMutationHook registers a callback run after every successful mutation.
func WithMutationHook(f func(ctx context.Context, m Mutation)) Option {
	return func(c *Controller) { c.onChange = f }
}

// NewController returns an idle controller.
func NewController(api API, opts ...Option) *Controller {
	c := &Controller{
		api:      api,
		log:      zap.NewNop(),
		pageSize: model.DefaultPageSize,
		onChange: func(context.Context, Mutation) {},
		now:      time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	c.view = View{Status: StatusIdle, Page: 1, PageSize: c.pageSize}
	return c
}

// View returns a snapshot of the list state.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.view
	v.Data.Items = append([]model.Tenant(nil), c.view.Data.Items...)
	return v
}

// List fetches one page and, when no newer List has started meanwhile,
// shows it.  A failed fetch leaves the last good page visible and the view
// in StatusFailed.  pageSize < 1 means the controller's page size.
func (c *Controller) List(ctx context.Context, page, pageSize int, search string) (model.TenantPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = c.pageSize
	}

	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.view.Status = StatusLoading
	c.view.Page, c.view.PageSize, c.view.Search = page, pageSize, search
	c.mu.Unlock()

	res, err := c.fetch(ctx, page, pageSize, search)

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.seq {
		return res, err
	}
	if err != nil {
		c.view.Status = StatusFailed
		c.view.Err = err
		return res, err
	}
	c.view.Status = StatusLoaded
	c.view.Err = nil
	c.view.Data = res
	c.view.Loaded = true
	c.view.Page = res.Page
	return res, nil
}

func (c *Controller) fetch(ctx context.Context, page, pageSize int, search string) (model.TenantPage, error) {
	p := model.ListParams{Page: page, PageSize: pageSize, Search: search}
	res, err := c.api.ListTenants(ctx, p)
	if err != nil {
		return model.TenantPage{}, fetchError(err)
	}
	res.Normalize(pageSize)
	if last := res.LastPage(); res.Page > last {
		// Asked past the end, typically after the last item of a trailing
		// page went away; show the last page that exists instead.
		p.Page = last
		if res, err = c.api.ListTenants(ctx, p); err != nil {
			return model.TenantPage{}, fetchError(err)
		}
		res.Normalize(pageSize)
		if res.Page > res.LastPage() {
			res.Page = res.LastPage()
		}
	}
	return res, nil
}

func fetchError(err error) error {
	if apperr.IsUnauthorized(err) {
		return err
	}
	return &apperr.FetchError{Op: "tenants", Err: err}
}

func mutationError(op string, err error) error {
	var ve *apperr.ValidationError
	if apperr.IsUnauthorized(err) || errors.As(err, &ve) {
		return err
	}
	return &apperr.MutationError{Op: op, Err: err}
}

// Refresh refetches the page currently shown.
func (c *Controller) Refresh(ctx context.Context) (model.TenantPage, error) {
	c.mu.Lock()
	page, size, search := c.view.Page, c.view.PageSize, c.view.Search
	c.mu.Unlock()
	return c.List(ctx, page, size, search)
}

// Search submits a search, starting again from the first page.  An empty
// query returns to the unfiltered list.
func (c *Controller) Search(ctx context.Context, query string) (model.TenantPage, error) {
	c.mu.Lock()
	size := c.view.PageSize
	c.mu.Unlock()
	return c.List(ctx, 1, size, strings.TrimSpace(query))
}

// GoToPage moves to page, clamped to the pages known to exist.
func (c *Controller) GoToPage(ctx context.Context, page int) (model.TenantPage, error) {
	c.mu.Lock()
	size, search := c.view.PageSize, c.view.Search
	if c.view.Loaded && page > c.view.Data.LastPage() {
		page = c.view.Data.LastPage()
	}
	c.mu.Unlock()
	return c.List(ctx, page, size, search)
}

// afterMutation tells the hook and refetches the current page.  A failed
// refetch does not fail the mutation; the view shows it instead.
func (c *Controller) afterMutation(ctx context.Context, m Mutation, page int) {
	m.At = c.now()
	c.onChange(ctx, m)

	c.mu.Lock()
	size, search := c.view.PageSize, c.view.Search
	c.mu.Unlock()
	if _, err := c.List(ctx, page, size, search); err != nil {
		c.log.Warn("refresh after tenant "+m.Op, zap.Int64("tenant", m.TenantID), zap.Error(err))
	}
}

func (c *Controller) currentPage() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view.Page
}

// Create validates and submits a new tenant, then refreshes the list.
func (c *Controller) Create(ctx context.Context, in CreateInput) (model.Tenant, error) {
	if err := ValidateCreate(in); err != nil {
		return model.Tenant{}, err
	}
	active := true
	if in.IsActivated != nil {
		active = *in.IsActivated
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	t, err := c.api.CreateTenant(ctx, model.CreateTenantRequest{
		Name:               strings.TrimSpace(in.Name),
		Email:              strings.TrimSpace(in.Email),
		DisplayPictureFile: in.DisplayPicture,
		Remarks:            in.Remarks,
		Modules:            dedupe(in.Modules),
		IsActivated:        active,
	})
	if err != nil {
		return model.Tenant{}, mutationError(OpCreate, err)
	}
	c.afterMutation(ctx, Mutation{Op: OpCreate, TenantID: t.ID, Name: t.Name}, c.currentPage())
	return t, nil
}

// Update validates and submits changed fields of an existing tenant, then
// refreshes the list.  Fields left nil keep their server value.
func (c *Controller) Update(ctx context.Context, in UpdateInput) (model.Tenant, error) {
	cached, hasCached := c.find(in.ID)
	var current *model.Tenant
	if hasCached {
		current = &cached
	}
	if err := ValidateUpdate(in, current); err != nil {
		return model.Tenant{}, err
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	if current == nil && (in.Modules == nil || in.IsActivated == nil) {
		t, err := c.api.GetTenant(ctx, in.ID)
		if err != nil {
			return model.Tenant{}, mutationError(OpUpdate, err)
		}
		current = &t
	}

	req := model.UpdateTenantRequest{ID: in.ID, DisplayPictureFile: in.DisplayPicture}
	if in.Name != nil {
		req.Name = strings.TrimSpace(*in.Name)
	}
	if in.Remarks != nil {
		req.Remarks = *in.Remarks
	}
	if in.Modules != nil {
		req.Modules = dedupe(in.Modules)
	} else {
		req.Modules = current.Modules
	}
	if in.IsActivated != nil {
		req.IsActivated = *in.IsActivated
	} else {
		req.IsActivated = current.IsActivated
	}

	t, err := c.api.UpdateTenant(ctx, req)
	if err != nil {
		return model.Tenant{}, mutationError(OpUpdate, err)
	}
	c.afterMutation(ctx, Mutation{Op: OpUpdate, TenantID: t.ID, Name: t.Name}, c.currentPage())
	return t, nil
}

// find looks id up in the page currently shown.
func (c *Controller) find(id int64) (model.Tenant, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.view.Data.Items {
		if t.ID == id {
			return t, true
		}
	}
	return model.Tenant{}, false
}

// CanDeactivate reports whether deactivation is offered for t.
func CanDeactivate(t model.Tenant) bool { return t.IsActivated }

// RequestDelete opens the delete confirmation for a tenant on the current
// page and returns it for the prompt.
func (c *Controller) RequestDelete(id int64) (model.Tenant, error) {
	t, ok := c.find(id)
	if !ok {
		return model.Tenant{}, apperr.ErrNotOffered
	}
	c.mu.Lock()
	c.view.PendingDelete = &t
	c.mu.Unlock()
	return t, nil
}

// CancelDelete closes the delete confirmation.
func (c *Controller) CancelDelete() {
	c.mu.Lock()
	c.view.PendingDelete = nil
	c.mu.Unlock()
}

// ConfirmDelete deletes the tenant awaiting confirmation.  Deleting the
// only row of a page after the first moves the view one page back.
func (c *Controller) ConfirmDelete(ctx context.Context) error {
	c.mu.Lock()
	pending := c.view.PendingDelete
	c.view.PendingDelete = nil
	page := c.view.Page
	onlyRow := len(c.view.Data.Items) == 1
	c.mu.Unlock()
	if pending == nil {
		return apperr.ErrNoPendingConfirmation
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	ok, err := c.api.DeleteTenant(ctx, pending.ID)
	if err != nil {
		return mutationError(OpDelete, err)
	}
	if !ok {
		if _, err := c.Refresh(ctx); err != nil {
			c.log.Warn("refresh after refused delete", zap.Error(err))
		}
		return &apperr.MutationError{Op: OpDelete, Err: errors.New("server did not delete the tenant")}
	}
	if onlyRow && page > 1 {
		page--
	}
	c.afterMutation(ctx, Mutation{Op: OpDelete, TenantID: pending.ID, Name: pending.Name}, page)
	return nil
}

// RequestDeactivate opens the deactivate confirmation.  It is only offered
// for an active tenant on the current page.
func (c *Controller) RequestDeactivate(id int64) (model.Tenant, error) {
	t, ok := c.find(id)
	if !ok || !CanDeactivate(t) {
		return model.Tenant{}, apperr.ErrNotOffered
	}
	c.mu.Lock()
	c.view.PendingDeactivate = &t
	c.mu.Unlock()
	return t, nil
}

// CancelDeactivate closes the deactivate confirmation.
func (c *Controller) CancelDeactivate() {
	c.mu.Lock()
	c.view.PendingDeactivate = nil
	c.mu.Unlock()
}

// ConfirmDeactivate deactivates the tenant awaiting confirmation.
func (c *Controller) ConfirmDeactivate(ctx context.Context) (bool, error) {
	c.mu.Lock()
	pending := c.view.PendingDeactivate
	c.view.PendingDeactivate = nil
	c.mu.Unlock()
	if pending == nil {
		return false, apperr.ErrNoPendingConfirmation
	}
	return c.deactivate(ctx, *pending)
}

// ForceDeactivate deactivates id without the offer check.  The server's
// answer decides; the list is refetched either way.
func (c *Controller) ForceDeactivate(ctx context.Context, id int64) (bool, error) {
	t, ok := c.find(id)
	if !ok {
		t = model.Tenant{ID: id}
	}
	return c.deactivate(ctx, t)
}

func (c *Controller) deactivate(ctx context.Context, t model.Tenant) (bool, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	changed, err := c.api.DeactivateTenant(ctx, t.ID)
	if err != nil {
		return false, mutationError(OpDeactivate, err)
	}
	if !changed {
		if _, err := c.Refresh(ctx); err != nil {
			c.log.Warn("refresh after no-op deactivate", zap.Error(err))
		}
		return false, nil
	}
	c.afterMutation(ctx, Mutation{Op: OpDeactivate, TenantID: t.ID, Name: t.Name}, c.currentPage())
	return true, nil
}
