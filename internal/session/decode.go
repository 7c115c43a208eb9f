package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iliyamo/ems-console/internal/model"
)

// claims mirrors the payload the EMS API puts into its bearer tokens.  Only
// the fields the console needs are decoded.
type claims struct {
	Email         string `json:"email"`
	Name          string `json:"name"`
	PrivilegeType string `json:"PrivilegeType"`
	Tenant        string `json:"tenant"`
	TenantKey     string `json:"TenantKey"`
	jwt.RegisteredClaims
}

// The signature is never checked: the token was issued by the remote service
// and is only inspected here to build the local identity.
var parser = jwt.NewParser()

// Decode turns a raw session token into an identity.  It reports false for
// anything it cannot use: an unparseable token, a missing subject, email or
// expiry claim, or an expiry at or before now.
func Decode(token string, now time.Time) (*model.Identity, bool) {
	id, _, ok := decode(token, now)
	return id, ok
}

func decode(token string, now time.Time) (*model.Identity, time.Time, bool) {
	if token == "" {
		return nil, time.Time{}, false
	}
	var c claims
	if _, _, err := parser.ParseUnverified(token, &c); err != nil {
		return nil, time.Time{}, false
	}
	if c.Subject == "" || c.Email == "" || c.ExpiresAt == nil {
		return nil, time.Time{}, false
	}
	exp := c.ExpiresAt.Time
	if !exp.After(now) {
		return nil, time.Time{}, false
	}
	return &model.Identity{
		ID:        c.Subject,
		Email:     c.Email,
		Name:      c.Name,
		Role:      model.DeriveRole(c.PrivilegeType, c.Tenant),
		TenantID:  c.Tenant,
		TenantKey: c.TenantKey,
	}, exp, true
}
