package tenant_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ems-console/internal/apperr"
	"github.com/iliyamo/ems-console/internal/gateway"
	"github.com/iliyamo/ems-console/internal/gateway/gatewaytest"
	"github.com/iliyamo/ems-console/internal/model"
	"github.com/iliyamo/ems-console/internal/tenant"
)

const listPath = "/api/v1/Tenants"

func setup(t *testing.T, opts ...tenant.Option) (*gatewaytest.Server, *tenant.Controller) {
	t.Helper()
	srv := gatewaytest.New()
	t.Cleanup(srv.Close)
	api, err := gateway.New(srv.URL, gateway.NewHTTPClient(5*time.Second),
		gateway.WithToken(func() string { return "tok" }))
	require.NoError(t, err)
	return srv, tenant.NewController(api, opts...)
}

func seedN(srv *gatewaytest.Server, n int) []model.Tenant {
	ts := make([]model.Tenant, n)
	for i := range ts {
		ts[i] = model.Tenant{
			Name:        fmt.Sprintf("Tenant %02d", i+1),
			Email:       fmt.Sprintf("t%02d@example.com", i+1),
			Modules:     []model.Module{model.ModuleEmployee},
			IsActivated: true,
		}
	}
	return srv.Seed(ts...)
}

func boolp(b bool) *bool { return &b }

func TestCreateRefreshesList(t *testing.T) {
	var hooked []tenant.Mutation
	srv, c := setup(t, tenant.WithMutationHook(func(_ context.Context, m tenant.Mutation) {
		hooked = append(hooked, m)
	}))
	ctx := context.Background()

	_, err := c.List(ctx, 1, 0, "")
	require.NoError(t, err)
	assert.Empty(t, c.View().Data.Items)

	created, err := c.Create(ctx, tenant.CreateInput{
		Name:    "Acme",
		Email:   "ops@acme.io",
		Modules: []model.Module{model.ModuleEmployee, model.ModuleLeave, model.ModuleEmployee},
	})
	require.NoError(t, err)
	assert.Equal(t, "Acme", created.Name)
	assert.True(t, created.IsActivated)

	v := c.View()
	require.Len(t, v.Data.Items, 1)
	assert.Equal(t, "ops@acme.io", v.Data.Items[0].Email)
	assert.Equal(t, tenant.StatusLoaded, v.Status)

	form := srv.CallsTo(http.MethodPost, listPath)[0].Form
	assert.Equal(t, []string{"employee", "leave"}, form["Modules"])
	assert.Equal(t, []string{"true"}, form["IsActivated"])
	assert.Len(t, srv.CallsTo(http.MethodGet, listPath), 2)

	require.Len(t, hooked, 1)
	assert.Equal(t, tenant.OpCreate, hooked[0].Op)
	assert.Equal(t, created.ID, hooked[0].TenantID)
	assert.False(t, hooked[0].At.IsZero())
}

func TestCreateInvalidNeverCallsServer(t *testing.T) {
	srv, c := setup(t)

	_, err := c.Create(context.Background(), tenant.CreateInput{Email: "bad"})
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.True(t, ve.Has("name"))
	assert.True(t, ve.Has("email"))
	assert.True(t, ve.Has("modules"))
	assert.Empty(t, srv.CallsTo(http.MethodPost, listPath))
}

func TestCreateDuplicateEmail(t *testing.T) {
	srv, c := setup(t)
	seedN(srv, 1)
	ctx := context.Background()
	_, err := c.List(ctx, 1, 0, "")
	require.NoError(t, err)

	_, err = c.Create(ctx, tenant.CreateInput{
		Name: "Copy", Email: "t01@example.com", Modules: []model.Module{model.ModuleProject},
	})
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.True(t, ve.Has("email"))
	assert.Len(t, c.View().Data.Items, 1)
}

func TestCreateServerFailureIsMutationError(t *testing.T) {
	srv, c := setup(t)
	srv.Fail(http.MethodPost, listPath, http.StatusInternalServerError)

	_, err := c.Create(context.Background(), tenant.CreateInput{
		Name: "Acme", Email: "ops@acme.io", Modules: []model.Module{model.ModuleProject},
	})
	var me *apperr.MutationError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, tenant.OpCreate, me.Op)
}

func TestFailedFetchKeepsLastGoodPage(t *testing.T) {
	srv, c := setup(t)
	seedN(srv, 3)
	ctx := context.Background()

	_, err := c.List(ctx, 1, 0, "")
	require.NoError(t, err)

	srv.Fail(http.MethodGet, listPath, http.StatusBadGateway)
	_, err = c.Refresh(ctx)
	var fe *apperr.FetchError
	require.ErrorAs(t, err, &fe)

	v := c.View()
	assert.Equal(t, tenant.StatusFailed, v.Status)
	assert.Len(t, v.Data.Items, 3)
	assert.True(t, v.Loaded)
	assert.Equal(t, err, v.Err)

	_, err = c.Refresh(ctx)
	require.NoError(t, err)
	assert.Nil(t, c.View().Err)
}

func TestLaterListWins(t *testing.T) {
	srv, c := setup(t)
	seedN(srv, 3)
	ctx := context.Background()

	blocked := make(chan struct{})
	release := make(chan struct{})
	srv.Before = func(r *http.Request) {
		if r.URL.Query().Get("search") == "slow" {
			close(blocked)
			<-release
		}
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = c.List(ctx, 1, 0, "slow")
	}()
	<-blocked

	_, err := c.Search(ctx, "t02")
	require.NoError(t, err)
	close(release)
	wg.Wait()

	v := c.View()
	assert.Equal(t, "t02", v.Search)
	require.Len(t, v.Data.Items, 1)
	assert.Equal(t, "Tenant 02", v.Data.Items[0].Name)
}

func TestSearchResetsToFirstPage(t *testing.T) {
	srv, c := setup(t)
	seedN(srv, 25)
	ctx := context.Background()

	_, err := c.List(ctx, 3, 0, "")
	require.NoError(t, err)
	assert.Equal(t, 3, c.View().Page)

	page, err := c.Search(ctx, "  tenant  ")
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, "tenant", c.View().Search)
	assert.Equal(t, 3, page.TotalPages)
}

func TestGoToPageClampsToLastPage(t *testing.T) {
	srv, c := setup(t)
	seedN(srv, 12)
	ctx := context.Background()

	_, err := c.List(ctx, 1, 0, "")
	require.NoError(t, err)
	page, err := c.GoToPage(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Page)
	assert.Len(t, page.Items, 2)
}

func TestPastEndPageFallsBack(t *testing.T) {
	srv, c := setup(t)
	seedN(srv, 11)
	ctx := context.Background()

	_, err := c.List(ctx, 2, 0, "")
	require.NoError(t, err)

	srv.Lock()
	srv.Tenants = srv.Tenants[:10]
	srv.Unlock()

	page, err := c.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Len(t, page.Items, 10)
	assert.Equal(t, 1, c.View().Page)
}

func TestUpdateKeepsUntouchedFields(t *testing.T) {
	srv, c := setup(t)
	ts := seedN(srv, 1)
	ctx := context.Background()
	_, err := c.List(ctx, 1, 0, "")
	require.NoError(t, err)

	name := "Renamed"
	updated, err := c.Update(ctx, tenant.UpdateInput{ID: ts[0].ID, Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, []model.Module{model.ModuleEmployee}, updated.Modules)
	assert.True(t, updated.IsActivated)
	assert.Equal(t, "Renamed", c.View().Data.Items[0].Name)
	assert.Empty(t, srv.CallsTo(http.MethodGet, fmt.Sprintf("%s/%d", listPath, ts[0].ID)))
}

func TestUpdateFetchesTenantNotOnPage(t *testing.T) {
	srv, c := setup(t)
	ts := seedN(srv, 1)

	_, err := c.Update(context.Background(), tenant.UpdateInput{ID: ts[0].ID, IsActivated: boolp(false)})
	require.NoError(t, err)
	assert.Len(t, srv.CallsTo(http.MethodGet, fmt.Sprintf("%s/%d", listPath, ts[0].ID)), 1)

	got, _ := srv.Tenant(ts[0].ID)
	assert.False(t, got.IsActivated)
	assert.Equal(t, []model.Module{model.ModuleEmployee}, got.Modules)
}

func TestUpdateRejectsEmailChange(t *testing.T) {
	srv, c := setup(t)
	ts := seedN(srv, 1)
	_, err := c.List(context.Background(), 1, 0, "")
	require.NoError(t, err)

	email := "other@example.com"
	_, err = c.Update(context.Background(), tenant.UpdateInput{ID: ts[0].ID, Email: &email})
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "Email cannot be changed", ve.Fields["email"])
	assert.Empty(t, srv.CallsTo(http.MethodPut, listPath))
}

func TestDeleteNeedsConfirmation(t *testing.T) {
	srv, c := setup(t)
	ts := seedN(srv, 2)
	ctx := context.Background()
	_, err := c.List(ctx, 1, 0, "")
	require.NoError(t, err)

	assert.ErrorIs(t, c.ConfirmDelete(ctx), apperr.ErrNoPendingConfirmation)

	_, err = c.RequestDelete(ts[0].ID)
	require.NoError(t, err)
	assert.Equal(t, ts[0].ID, c.View().PendingDelete.ID)
	c.CancelDelete()
	assert.Nil(t, c.View().PendingDelete)
	assert.ErrorIs(t, c.ConfirmDelete(ctx), apperr.ErrNoPendingConfirmation)

	_, err = c.RequestDelete(ts[0].ID)
	require.NoError(t, err)
	require.NoError(t, c.ConfirmDelete(ctx))
	_, still := srv.Tenant(ts[0].ID)
	assert.False(t, still)
	assert.Len(t, c.View().Data.Items, 1)
}

func TestDeleteOnlyRowMovesBackAPage(t *testing.T) {
	srv, c := setup(t)
	ts := seedN(srv, 11)
	ctx := context.Background()
	_, err := c.List(ctx, 2, 0, "")
	require.NoError(t, err)
	require.Len(t, c.View().Data.Items, 1)

	_, err = c.RequestDelete(ts[10].ID)
	require.NoError(t, err)
	require.NoError(t, c.ConfirmDelete(ctx))

	v := c.View()
	assert.Equal(t, 1, v.Page)
	assert.Len(t, v.Data.Items, 10)
	assert.Equal(t, 1, v.Data.TotalPages)
}

func TestDeleteUnknownTenantNotOffered(t *testing.T) {
	_, c := setup(t)
	_, err := c.RequestDelete(42)
	assert.ErrorIs(t, err, apperr.ErrNotOffered)
}

func TestDeactivateOnlyOfferedForActive(t *testing.T) {
	srv, c := setup(t)
	ts := srv.Seed(
		model.Tenant{Name: "On", Email: "on@example.com", Modules: []model.Module{model.ModuleLeave}, IsActivated: true},
		model.Tenant{Name: "Off", Email: "off@example.com", Modules: []model.Module{model.ModuleLeave}},
	)
	ctx := context.Background()
	_, err := c.List(ctx, 1, 0, "")
	require.NoError(t, err)

	_, err = c.RequestDeactivate(ts[1].ID)
	assert.ErrorIs(t, err, apperr.ErrNotOffered)
	assert.False(t, tenant.CanDeactivate(ts[1]))

	_, err = c.RequestDeactivate(ts[0].ID)
	require.NoError(t, err)
	changed, err := c.ConfirmDeactivate(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	for _, tt := range c.View().Data.Items {
		assert.False(t, tt.IsActivated, tt.Name)
	}
}

func TestForceDeactivateTrustsServer(t *testing.T) {
	srv, c := setup(t)
	ts := srv.Seed(model.Tenant{Name: "Off", Email: "off@example.com", Modules: []model.Module{model.ModuleLeave}})

	changed, err := c.ForceDeactivate(context.Background(), ts[0].ID)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Len(t, srv.CallsTo(http.MethodPut, fmt.Sprintf("%s/deactivate/%d", listPath, ts[0].ID)), 1)
	assert.Equal(t, tenant.StatusLoaded, c.View().Status)
}

func TestUnauthorizedPassesThrough(t *testing.T) {
	srv, c := setup(t)
	srv.Token = "someone-else"

	_, err := c.List(context.Background(), 1, 0, "")
	require.ErrorIs(t, err, apperr.ErrUnauthorized)
	var fe *apperr.FetchError
	assert.False(t, errors.As(err, &fe))

	_, err = c.Create(context.Background(), tenant.CreateInput{
		Name: "Acme", Email: "ops@acme.io", Modules: []model.Module{model.ModuleProject},
	})
	require.ErrorIs(t, err, apperr.ErrUnauthorized)
	var me *apperr.MutationError
	assert.False(t, errors.As(err, &me))
}

func TestMutationsSerialize(t *testing.T) {
	_, c := setup(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Create(ctx, tenant.CreateInput{
				Name:    fmt.Sprintf("Tenant %d", i),
				Email:   fmt.Sprintf("t%d@example.com", i),
				Modules: []model.Module{model.ModuleTimesheet},
			})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	v := c.View()
	assert.Equal(t, 8, v.Data.TotalCount)
	assert.Len(t, v.Data.Items, 8)
	for _, tt := range v.Data.Items {
		assert.True(t, strings.HasPrefix(tt.Email, "t"))
	}
}
