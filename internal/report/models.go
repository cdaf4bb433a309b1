// Package report builds and serves billing reports: denormalized snapshots
// of a billing enriched with catalog data, carrying their own patient,
// clinic and financial blocks so a report renders without further lookups.
package report

import (
	"time"

	"avinilabs/internal/catalog"
)

// Collection is the logical collection name for billing reports.
const Collection = "billing_reports"

// Authorization status values.
const (
	AuthorizationPending  = "pending"
	AuthorizationApproved = "approved"
	AuthorizationRejected = "rejected"
)

// Metadata status values.
const (
	MetadataComplete     = "completed"
	MetadataPartialMatch = "partial_match"
)

// PatientInfo is the demographics snapshot embedded in a report.
type PatientInfo struct {
	PatientID int    `json:"patient_id"`
	FullName  string `json:"full_name"`
	Gender    string `json:"gender,omitempty"`
	Age       int    `json:"age,omitempty"`
	Mobile    string `json:"mobile,omitempty"`
	Email     string `json:"email,omitempty"`
	Address   string `json:"address,omitempty"`
}

// ClinicInfo is the franchise snapshot embedded in a report.
type ClinicInfo struct {
	TenantID int    `json:"tenant_id"`
	Name     string `json:"name"`
	SiteCode string `json:"site_code"`
	Address  string `json:"address,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

// BillingHeader carries the originating invoice identifiers.
type BillingHeader struct {
	BillingID     int       `json:"billing_id"`
	InvoiceNumber string    `json:"invoice_number"`
	BillingDate   time.Time `json:"billing_date"`
	Status        string    `json:"status"`
}

// FinancialSummary snapshots the billing's money fields at generation time.
type FinancialSummary struct {
	Subtotal    float64 `json:"subtotal"`
	Discount    float64 `json:"discount,omitempty"`
	Tax         float64 `json:"tax,omitempty"`
	TotalAmount float64 `json:"total_amount"`
	PaidAmount  float64 `json:"paid_amount"`
	Balance     float64 `json:"balance"`
	Status      string  `json:"status"`
}

// Metadata carries the matching statistics.
//
// Invariant: MatchedTestsCount + UnmatchedTestsCount == TotalTests, counted
// before profile expansion.
type Metadata struct {
	TestMatchSuccessRate float64 `json:"test_match_success_rate"`
	TotalTests           int     `json:"total_tests"`
	MatchedTestsCount    int     `json:"matched_tests_count"`
	UnmatchedTestsCount  int     `json:"unmatched_tests_count"`
	Status               string  `json:"status"`
}

// Authorization records an approve/reject decision on a report.
type Authorization struct {
	AuthorizerName string    `json:"authorizer_name"`
	Comments       string    `json:"comments,omitempty"`
	Action         string    `json:"action"`
	Timestamp      time.Time `json:"timestamp"`
	UserID         int       `json:"user_id"`
	UserRole       string    `json:"user_role"`
}

// BillingReport is the denormalized report document.
type BillingReport struct {
	ID                  int                    `json:"id"`
	SIDNumber           string                 `json:"sid_number"`
	BillingID           int                    `json:"billing_id"`
	PatientID           int                    `json:"patient_id"`
	TenantID            int                    `json:"tenant_id"`
	BillingDate         time.Time              `json:"billing_date"`
	GenerationTimestamp time.Time              `json:"generation_timestamp"`
	PatientInfo         PatientInfo            `json:"patient_info"`
	ClinicInfo          ClinicInfo             `json:"clinic_info"`
	BillingHeader       BillingHeader          `json:"billing_header"`
	TestItems           []catalog.ResolvedItem `json:"test_items"`
	UnmatchedTests      []string               `json:"unmatched_tests,omitempty"`
	FinancialSummary    FinancialSummary       `json:"financial_summary"`
	Metadata            Metadata               `json:"metadata"`
	Authorized          bool                   `json:"authorized,omitempty"`
	AuthorizationStatus string                 `json:"authorization_status"`
	Authorization       *Authorization         `json:"authorization,omitempty"`
	CreatedAt           time.Time              `json:"created_at"`
	UpdatedAt           time.Time              `json:"updated_at"`
}
