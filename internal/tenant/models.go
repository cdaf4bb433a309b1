// Package tenant manages the franchise directory: every lab site (hub or
// spoke) is a tenant with its own site code, module permissions, and active
// flag. Tenant status is the single security boundary: deactivating a tenant
// immediately removes it from every access scope without touching its users.
package tenant

import (
	"regexp"
	"time"

	dErrors "avinilabs/pkg/domain-errors"
)

// Tenant is a physically distinct lab site.
//
// Invariants:
//   - SiteCode is 2-4 uppercase characters and unique among active tenants
//   - Tenants are never deleted, only deactivated
type Tenant struct {
	ID                int       `json:"id"`
	Name              string    `json:"name"`
	SiteCode          string    `json:"site_code"`
	IsHub             bool      `json:"is_hub"`
	IsActive          bool      `json:"is_active"`
	UseSiteCodePrefix bool      `json:"use_site_code_prefix"`
	ModulePermissions []int     `json:"module_permissions,omitempty"`
	Address           string    `json:"address,omitempty"`
	Phone             string    `json:"phone,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Module is a feature area a franchise can be granted access to.
type Module struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasModule reports whether the franchise holds the module permission.
func (t *Tenant) HasModule(moduleID int) bool {
	for _, id := range t.ModulePermissions {
		if id == moduleID {
			return true
		}
	}
	return false
}

var siteCodePattern = regexp.MustCompile(`^[A-Z]{2,4}$`)

// Validate checks the construction invariants.
func (t *Tenant) Validate() error {
	if t.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "tenant name is required")
	}
	if !siteCodePattern.MatchString(t.SiteCode) {
		return dErrors.New(dErrors.CodeValidation, "site_code must be 2-4 uppercase characters")
	}
	return nil
}
