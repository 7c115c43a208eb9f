package model

import (
	"fmt"
	"strings"
	"time"
)

// Module is a feature a tenant may have enabled.  The set is closed.
type Module string

const (
	ModuleEmployee  Module = "employee"
	ModuleProject   Module = "project"
	ModuleLeave     Module = "leave"
	ModuleTimesheet Module = "timesheet"
)

// AllModules lists every module in display order.
func AllModules() []Module {
	return []Module{ModuleEmployee, ModuleProject, ModuleLeave, ModuleTimesheet}
}

// Valid reports whether m is one of the known modules.
func (m Module) Valid() bool {
	switch m {
	case ModuleEmployee, ModuleProject, ModuleLeave, ModuleTimesheet:
		return true
	}
	return false
}

// Description is the one-line blurb shown next to a module in the form.
func (m Module) Description() string {
	switch m {
	case ModuleEmployee:
		return "Manage employee records"
	case ModuleProject:
		return "Track projects and tasks"
	case ModuleLeave:
		return "Leave management system"
	case ModuleTimesheet:
		return "Time tracking & reporting"
	}
	return ""
}

// ParseModule accepts a module name case-insensitively.
func ParseModule(s string) (Module, error) {
	m := Module(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("unknown module %q", s)
	}
	return m, nil
}

// Tenant is the console's copy of a tenant owned by the remote service.  It
// may be stale; any mutation invalidates it.
type Tenant struct {
	ID             int64      `json:"id"`
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	DisplayPicture string     `json:"displayPicture,omitempty"`
	Remarks        string     `json:"remarks,omitempty"`
	Modules        []Module   `json:"modules"`
	IsActivated    bool       `json:"isActivated"`
	CreatedAt      *time.Time `json:"createdAt,omitempty"`
	UpdatedAt      *time.Time `json:"updatedAt,omitempty"`
}

// TenantPage is one page of the remote tenant list.  Page is 1-based.
type TenantPage struct {
	Items      []Tenant `json:"items"`
	TotalCount int      `json:"totalCount"`
	Page       int      `json:"page"`
	PageSize   int      `json:"pageSize"`
	TotalPages int      `json:"totalPages"`
}

// Normalize repairs a page returned by the server so that it satisfies the
// list invariants: never more items than the requested page size, a page
// size and page number of at least 1, and a page count derived from the
// total when the server left it out.
func (p *TenantPage) Normalize(requestedSize int) {
	if requestedSize < 1 {
		requestedSize = DefaultPageSize
	}
	if p.PageSize < 1 || p.PageSize > requestedSize {
		p.PageSize = requestedSize
	}
	if len(p.Items) > p.PageSize {
		p.Items = p.Items[:p.PageSize]
	}
	if p.Items == nil {
		p.Items = []Tenant{}
	}
	if p.Page < 1 {
		p.Page = 1
	}
	if p.TotalPages < 1 && p.TotalCount > 0 {
		p.TotalPages = (p.TotalCount + p.PageSize - 1) / p.PageSize
	}
}

// LastPage is max(1, TotalPages).
func (p TenantPage) LastPage() int {
	if p.TotalPages < 1 {
		return 1
	}
	return p.TotalPages
}

// DefaultPageSize is the number of tenants requested per list call unless
// the caller overrides it.
const DefaultPageSize = 10

// SortOrder is the sortingOrder query parameter.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ListParams are the query parameters of GET /api/v1/Tenants.
type ListParams struct {
	Page         int
	PageSize     int
	SortBy       string
	SortingOrder SortOrder
	Search       string
	IsActive     *bool
}

// Attachment is a file uploaded through a form, held fully in memory until
// the request that carries it completes.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Size returns the attachment length in bytes.
func (a *Attachment) Size() int64 {
	if a == nil {
		return 0
	}
	return int64(len(a.Data))
}

// CreateTenantRequest is the multipart body of POST /api/v1/Tenants.
type CreateTenantRequest struct {
	Name               string
	Email              string
	DisplayPictureFile *Attachment
	Remarks            string
	Modules            []Module
	IsActivated        bool
}

// UpdateTenantRequest is the multipart body of PUT /api/v1/Tenants.  Empty
// Name and Remarks are left out of the form so the server keeps its values.
type UpdateTenantRequest struct {
	ID                 int64
	Name               string
	DisplayPictureFile *Attachment
	Remarks            string
	Modules            []Module
	IsActivated        bool
}
