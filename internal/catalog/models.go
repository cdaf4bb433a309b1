// Package catalog holds the test master, its enhanced fallback superset, lab
// profiles, and the resolver that matches billing line items against them.
package catalog

import "time"

// Collection names.
const (
	TestMasterCollection = "test_master"
	EnhancedCollection   = "test_master_enhanced"
	ProfilesCollection   = "profiles"
)

// Test is one catalog entry. Field names mirror the persisted documents; the
// catalog predates this service and mixes camelCase with snake_case.
type Test struct {
	ID                int     `json:"id"`
	TestName          string  `json:"testName"`
	ShortName         string  `json:"shortName,omitempty"`
	DisplayName       string  `json:"displayName,omitempty"`
	HMSCode           string  `json:"hmsCode,omitempty"`
	InternationalCode string  `json:"internationalCode,omitempty"`
	Department        string  `json:"department,omitempty"`
	TestPrice         float64 `json:"test_price,omitempty"`
	Specimen          string  `json:"specimen,omitempty"`
	PrimarySpecimen   string  `json:"primarySpecimen,omitempty"`
	Container         string  `json:"container,omitempty"`
	Method            string  `json:"method,omitempty"`
	ReferenceRange    string  `json:"referenceRange,omitempty"`
	ResultUnit        string  `json:"resultUnit,omitempty"`
	ServiceTime       string  `json:"serviceTime,omitempty"`
	ReportingDays     string  `json:"reportingDays,omitempty"`
	CutoffTime        string  `json:"cutoffTime,omitempty"`
	Decimals          int     `json:"decimals,omitempty"`
	CriticalLow       string  `json:"criticalLow,omitempty"`
	CriticalHigh      string  `json:"criticalHigh,omitempty"`
	MinSampleQty      string  `json:"minSampleQty,omitempty"`
	ApplicableTo      string  `json:"applicableTo,omitempty"`
	TestDoneOn        string  `json:"testDoneOn,omitempty"`
	IsActive          bool    `json:"isActive,omitempty"`

	// Large free-text fields. Never embedded into billing reports; clients
	// fetch them from the live catalog when needed.
	Instructions   string `json:"instructions,omitempty"`
	Interpretation string `json:"interpretation,omitempty"`
	Notes          string `json:"notes,omitempty"`
}

// ProfileItem references one sub-test of a profile.
type ProfileItem struct {
	TestID   int    `json:"test_id"`
	TestName string `json:"testName"`
}

// Profile is a named bundle of tests billed as a unit and expanded into
// sub-tests at report generation.
type Profile struct {
	ID          string        `json:"id"`
	TestProfile string        `json:"test_profile"`
	TestPrice   float64       `json:"test_price"`
	TestItems   []ProfileItem `json:"testItems"`
	CreatedAt   time.Time     `json:"created_at,omitempty"`
	UpdatedAt   time.Time     `json:"updated_at,omitempty"`
}

// BillingItem is the resolver's input: one line of a billing record.
type BillingItem struct {
	ID       any     `json:"id,omitempty"`
	TestID   string  `json:"test_id,omitempty"`
	TestName string  `json:"test_name,omitempty"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
	Amount   float64 `json:"amount"`
}

// ResolvedItem is a billing line item enriched with catalog data. Individual
// tests and profile sub-tests share this shape, discriminated by
// IsProfileSubtest (a two-variant sum kept flat for the JSON store).
type ResolvedItem struct {
	ID       any     `json:"id,omitempty"`
	TestID   string  `json:"test_id,omitempty"`
	TestName string  `json:"test_name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
	Amount   float64 `json:"amount"`

	ProfileType bool   `json:"profile_type,omitempty"`
	ProfileID   string `json:"profile_id,omitempty"`

	TestMasterID   int            `json:"test_master_id,omitempty"`
	TestMasterData map[string]any `json:"test_master_data,omitempty"`

	// Flattened clinical fields for report rendering.
	Specimen       string `json:"specimen,omitempty"`
	Container      string `json:"container,omitempty"`
	Method         string `json:"method,omitempty"`
	ReferenceRange string `json:"reference_range,omitempty"`
	ResultUnit     string `json:"result_unit,omitempty"`
	Decimals       int    `json:"decimals,omitempty"`
	CriticalLow    string `json:"critical_low,omitempty"`
	CriticalHigh   string `json:"critical_high,omitempty"`
	HMSCode        string `json:"hms_code,omitempty"`
	Department     string `json:"department,omitempty"`
	ServiceTime    string `json:"service_time,omitempty"`
	ReportingDays  string `json:"reporting_days,omitempty"`

	// Result entry, patched in after analysis.
	Result       string `json:"result,omitempty"`
	ResultStatus string `json:"result_status,omitempty"`
	Remarks      string `json:"remarks,omitempty"`

	// Profile expansion fields.
	IsProfileSubtest  bool   `json:"is_profile_subtest,omitempty"`
	ParentProfileName string `json:"parent_profile_name,omitempty"`
	ParentProfileID   string `json:"parent_profile_id,omitempty"`
	SubtestIndex      int    `json:"subtest_index,omitempty"`
	TotalSubtests     int    `json:"total_subtests,omitempty"`

	// Sample tracking, merged in by the report sample-status endpoint.
	SampleStatus            string `json:"sample_status,omitempty"`
	SampleReceived          bool   `json:"sample_received,omitempty"`
	SampleReceivedTimestamp string `json:"sample_received_timestamp,omitempty"`
	SampleStatusUpdatedAt   string `json:"sample_status_updated_at,omitempty"`
}
