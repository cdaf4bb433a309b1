// Package access derives, from a caller's role and tenant, the set of tenant
// ids the request may read or write. The evaluator is a pure function over
// the tenant directory so it unit-tests without a store.
package access

import (
	"context"

	"avinilabs/internal/tenant"
	dErrors "avinilabs/pkg/domain-errors"
	"avinilabs/pkg/requestcontext"
)

// Roles understood by the evaluator. Any role not listed here falls through
// to the own-tenant-only rule.
const (
	RoleAdmin          = "admin"
	RoleHubAdmin       = "hub_admin"
	RoleFranchiseAdmin = "franchise_admin"
	RoleLabTech        = "lab_tech"
	RoleReceptionist   = "receptionist"
	RoleDoctor         = "doctor"
)

// HubTenantID is the Mayiladuthurai hub. Billing reports carry a quirk from
// the original deployment: any admin, and any admin/hub_admin belonging to
// this tenant, sees every report regardless of franchise. Kept as-is.
const HubTenantID = 1

// Scope is the set of tenant ids a request may touch.
type Scope struct {
	// Unrestricted short-circuits the id set (billing-report hub quirk).
	Unrestricted bool
	ids          map[int]struct{}
}

// Allows reports whether the scope permits the tenant id.
func (s Scope) Allows(tenantID int) bool {
	if s.Unrestricted {
		return true
	}
	_, ok := s.ids[tenantID]
	return ok
}

// TenantIDs returns the explicit id set (empty when unrestricted).
func (s Scope) TenantIDs() []int {
	out := make([]int, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	return out
}

func scopeOf(ids ...int) Scope {
	set := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return Scope{ids: set}
}

// Evaluate derives the permitted tenant set for a user. Rules, in order:
//  1. admin: all active tenants.
//  2. hub_admin whose tenant is a hub: own tenant plus all non-hub tenants.
//  3. hub_admin whose tenant is not a hub: own tenant only.
//  4. franchise_admin: own tenant only.
//  5. everyone else: own tenant only.
func Evaluate(user requestcontext.AuthUser, tenants []tenant.Tenant) Scope {
	switch user.Role {
	case RoleAdmin:
		ids := make([]int, 0, len(tenants))
		for _, t := range tenants {
			if t.IsActive {
				ids = append(ids, t.ID)
			}
		}
		return scopeOf(ids...)
	case RoleHubAdmin:
		if isHub(user.TenantID, tenants) {
			ids := []int{user.TenantID}
			for _, t := range tenants {
				if !t.IsHub && t.ID != user.TenantID {
					ids = append(ids, t.ID)
				}
			}
			return scopeOf(ids...)
		}
		return scopeOf(user.TenantID)
	default:
		return scopeOf(user.TenantID)
	}
}

// EvaluateForReports is Evaluate plus the billing-report hub quirk: admins,
// and admin/hub_admin users of tenant 1, get an unrestricted scope.
func EvaluateForReports(user requestcontext.AuthUser, tenants []tenant.Tenant) Scope {
	if user.Role == RoleAdmin {
		return Scope{Unrestricted: true}
	}
	if user.TenantID == HubTenantID && user.Role == RoleHubAdmin {
		return Scope{Unrestricted: true}
	}
	return Evaluate(user, tenants)
}

func isHub(tenantID int, tenants []tenant.Tenant) bool {
	for _, t := range tenants {
		if t.ID == tenantID {
			return t.IsHub
		}
	}
	return false
}

// CheckTarget fails with access_denied when the scope does not cover the
// target tenant. Admin targets must additionally be active.
func CheckTarget(scope Scope, targetTenantID int) error {
	if !scope.Allows(targetTenantID) {
		return dErrors.New(dErrors.CodeAccessDenied, "franchise access denied")
	}
	return nil
}

// Evaluator resolves scopes against the live tenant directory.
type Evaluator struct {
	tenants *tenant.Store
}

func NewEvaluator(tenants *tenant.Store) *Evaluator {
	return &Evaluator{tenants: tenants}
}

// ScopeFor returns the permitted tenant set for the context's user.
func (e *Evaluator) ScopeFor(ctx context.Context) (Scope, error) {
	user := requestcontext.User(ctx)
	tenants, err := e.tenants.List(ctx)
	if err != nil {
		return Scope{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load tenant directory")
	}
	return Evaluate(user, tenants), nil
}

// ReportScopeFor returns the billing-report scope for the context's user.
func (e *Evaluator) ReportScopeFor(ctx context.Context) (Scope, error) {
	user := requestcontext.User(ctx)
	tenants, err := e.tenants.List(ctx)
	if err != nil {
		return Scope{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load tenant directory")
	}
	return EvaluateForReports(user, tenants), nil
}

// RequireModule enforces the franchise module-permission gate. Admin and
// hub_admin bypass; everyone else needs the module id on their tenant.
func (e *Evaluator) RequireModule(ctx context.Context, moduleID int) error {
	user := requestcontext.User(ctx)
	if user.Role == RoleAdmin || user.Role == RoleHubAdmin {
		return nil
	}
	t, err := e.tenants.FindByID(ctx, user.TenantID)
	if err != nil {
		return dErrors.New(dErrors.CodeModuleAccessDenied, "franchise not found for module check")
	}
	if !t.HasModule(moduleID) {
		return dErrors.New(dErrors.CodeModuleAccessDenied, "franchise lacks access to this module")
	}
	return nil
}
