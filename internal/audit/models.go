// Package audit captures the append-only audit and error trails. Entries are
// emitted from domain services through a Publisher, consumed by a Worker, and
// persisted into ring-buffered collections (oldest truncated at the cap).
package audit

import "time"

// Retention caps. The worker truncates the head of each log once the cap is
// reached, keeping the newest entries.
const (
	AuditRetention = 10000
	ErrorRetention = 5000
)

// Entry is one audit log record. Every mutating operation emits at least one
// entry with EventType, UserID, TenantID and Success populated.
type Entry struct {
	ID        int            `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	EventType string         `json:"event_type"`
	Severity  string         `json:"severity"`
	UserID    int            `json:"user_id,omitempty"`
	TenantID  int            `json:"tenant_id,omitempty"`
	Success   bool           `json:"success"`
	Details   map[string]any `json:"details,omitempty"`
}

// ErrorEntry is one error log record for infrastructure and sub-step faults.
type ErrorEntry struct {
	ID        int            `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	ErrorType string         `json:"error_type"`
	Severity  string         `json:"severity"`
	UserID    int            `json:"user_id,omitempty"`
	TenantID  int            `json:"tenant_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Audit event types.
const (
	EventBillingCreated      = "BILLING_CREATED"
	EventPaymentCollected    = "PAYMENT_COLLECTED"
	EventReportGeneration    = "REPORT_GENERATION"
	EventReportMatchFailure  = "REPORT_MATCH_FAILURE"
	EventReportAuthorization = "REPORT_AUTHORIZATION"
	EventReportUpdated       = "REPORT_UPDATED"
	EventRoutingCreated      = "ROUTING_CREATED"
	EventRoutingTransition   = "ROUTING_TRANSITION"
	EventInvoiceCreated      = "INVOICE_CREATED"
	EventInvoiceOwnership    = "INVOICE_OWNERSHIP_TRANSFER"
	EventInvoiceUpdated      = "INVOICE_UPDATED"
	EventInvoiceDeleted      = "INVOICE_DELETED"
	EventMessageSent         = "MESSAGE_SENT"
	EventFileUploaded        = "FILE_UPLOADED"
	EventFileDeleted         = "FILE_DELETED"
	EventTenantCreated       = "TENANT_CREATED"
	EventTenantUpdated       = "TENANT_UPDATED"
	EventUserLogin           = "USER_LOGIN"
)

// Severities.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)
