// Package billing manages patient invoices: creation with sid allocation,
// tenant-scoped listing, and payment collection with derived balance and
// status.
package billing

import (
	"time"

	"avinilabs/internal/catalog"
	dErrors "avinilabs/pkg/domain-errors"
)

// Collection is the logical collection name for billings.
const Collection = "billings"

// Billing status, derived from paid_amount vs total_amount.
const (
	StatusPending = "Pending"
	StatusPartial = "Partial"
	StatusPaid    = "Paid"
)

// Payment is one collection event against a billing.
type Payment struct {
	Amount     float64   `json:"amount"`
	Method     string    `json:"method,omitempty"`
	ReceivedBy int       `json:"received_by,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// Billing is one patient invoice.
//
// Invariants:
//   - Balance == TotalAmount - PaidAmount
//   - Status is Paid exactly when Balance <= 0
//   - SIDNumber is unique across billings and billing reports
type Billing struct {
	ID            int                   `json:"id"`
	InvoiceNumber string                `json:"invoice_number"`
	SIDNumber     string                `json:"sid_number"`
	PatientID     int                   `json:"patient_id"`
	TenantID      int                   `json:"tenant_id"`
	Items         []catalog.BillingItem `json:"items"`
	Subtotal      float64               `json:"subtotal"`
	Discount      float64               `json:"discount,omitempty"`
	Tax           float64               `json:"tax,omitempty"`
	TotalAmount   float64               `json:"total_amount"`
	PaidAmount    float64               `json:"paid_amount"`
	Balance       float64               `json:"balance"`
	Status        string                `json:"status"`
	Payments      []Payment             `json:"payments,omitempty"`
	BillingDate   time.Time             `json:"billing_date"`
	DueDate       time.Time             `json:"due_date,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

// Recompute derives subtotal, total, balance and status from the line items
// and payments received so far.
func (b *Billing) Recompute() {
	b.Subtotal = 0
	for _, item := range b.Items {
		b.Subtotal += item.Amount
	}
	b.TotalAmount = b.Subtotal - b.Discount + b.Tax
	b.Balance = b.TotalAmount - b.PaidAmount
	switch {
	case b.PaidAmount <= 0:
		b.Status = StatusPending
	case b.Balance <= 0:
		b.Status = StatusPaid
	default:
		b.Status = StatusPartial
	}
}

// Validate checks the construction invariants of a new billing.
func (b *Billing) Validate() error {
	if b.PatientID <= 0 {
		return dErrors.New(dErrors.CodeValidation, "patient_id is required")
	}
	if b.TenantID <= 0 {
		return dErrors.New(dErrors.CodeValidation, "tenant_id is required")
	}
	if len(b.Items) == 0 {
		return dErrors.New(dErrors.CodeValidation, "at least one billing item is required")
	}
	for i, item := range b.Items {
		if item.TestID == "" && item.TestName == "" {
			return dErrors.Newf(dErrors.CodeValidation, "item %d needs a test_id or test_name", i)
		}
		if item.Amount < 0 || item.Price < 0 {
			return dErrors.Newf(dErrors.CodeValidation, "item %d has a negative amount", i)
		}
	}
	if b.Discount < 0 || b.Tax < 0 {
		return dErrors.New(dErrors.CodeValidation, "discount and tax must not be negative")
	}
	return nil
}
