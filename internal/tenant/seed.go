package tenant

import (
	"context"
	"time"
)

// SeedBootstrapTenant creates the Mayiladuthurai hub (tenant 1) when the
// tenants collection is empty, so a fresh data directory boots into a usable
// state. Existing data is never touched.
func SeedBootstrapTenant(ctx context.Context, store *Store) (*Tenant, error) {
	existing, err := store.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return &existing[0], nil
	}

	now := time.Now()
	hub := &Tenant{
		Name:              "AVINI Labs Mayiladuthurai",
		SiteCode:          "MYD",
		IsHub:             true,
		IsActive:          true,
		UseSiteCodePrefix: false,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := store.CreateIfSiteCodeAvailable(ctx, hub); err != nil {
		return nil, err
	}
	return hub, nil
}

// SeedDefaultModules populates the module catalog when it is empty. Module
// ids are stable: franchise module_permissions reference them by number.
func SeedDefaultModules(ctx context.Context, store *Store) error {
	existing, err := store.ListModules(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	now := time.Now()
	defaults := []Module{
		{ID: 1, Name: "Billing", Description: "Patient invoicing and payment collection"},
		{ID: 2, Name: "Billing Reports", Description: "Report generation, search and authorization"},
		{ID: 3, Name: "Sample Routing", Description: "Inter-franchise sample transfers"},
		{ID: 4, Name: "Patients", Description: "Patient registry"},
		{ID: 5, Name: "Samples", Description: "Sample tracking"},
	}
	for i := range defaults {
		defaults[i].CreatedAt = now
		defaults[i].UpdatedAt = now
	}
	return store.ReplaceModules(ctx, defaults)
}
