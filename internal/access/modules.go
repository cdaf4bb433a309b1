package access

// Module ids gating franchise access to feature areas. They match the seeded
// module catalog; franchise module_permissions reference them by number.
const (
	ModuleBilling  = 1
	ModuleReports  = 2
	ModuleRouting  = 3
	ModulePatients = 4
	ModuleSamples  = 5
)
