// Package routing moves samples between franchises: a state machine over
// sample routings, a workflow mirror with stage history, auto-drafted
// inter-franchise invoices, and an encrypted chat and attachment channel per
// routing.
package routing

import (
	"time"

	dErrors "avinilabs/pkg/domain-errors"
)

// Collection names.
const (
	Collection         = "sample_routings"
	WorkflowCollection = "workflows"
	InvoiceCollection  = "routing_invoices"
	MessageCollection  = "routing_messages"
	FileCollection     = "routing_files"
)

// Routing states.
const (
	StateCreated         = "created"
	StatePendingApproval = "pending_approval"
	StateApproved        = "approved"
	StateInTransit       = "in_transit"
	StateDelivered       = "delivered"
	StateCompleted       = "completed"
	StateRejected        = "rejected"
	StateCancelled       = "cancelled"
)

// Transition actions.
const (
	ActionSubmit   = "submit"
	ActionApprove  = "approve"
	ActionReject   = "reject"
	ActionDispatch = "dispatch"
	ActionReceive  = "receive"
	ActionComplete = "complete"
	ActionCancel   = "cancel"
)

// Priorities.
const (
	PriorityRoutine = "routine"
	PriorityUrgent  = "urgent"
	PriorityStat    = "stat"
)

// SampleRouting is one inter-franchise sample transfer.
//
// Invariants:
//   - FromTenantID != ToTenantID
//   - every *_By / *_At pair is populated on transition into that state
//   - no transition leaves a terminal state
type SampleRouting struct {
	ID             int    `json:"id"`
	SampleID       int    `json:"sample_id"`
	FromTenantID   int    `json:"from_tenant_id"`
	ToTenantID     int    `json:"to_tenant_id"`
	Reason         string `json:"reason"`
	Priority       string `json:"priority,omitempty"`
	TrackingNumber string `json:"tracking_number"`
	Status         string `json:"status"`

	CreatedBy    int `json:"created_by"`
	ApprovedBy   int `json:"approved_by,omitempty"`
	RejectedBy   int `json:"rejected_by,omitempty"`
	DispatchedBy int `json:"dispatched_by,omitempty"`
	ReceivedBy   int `json:"received_by,omitempty"`
	CompletedBy  int `json:"completed_by,omitempty"`
	CancelledBy  int `json:"cancelled_by,omitempty"`

	ApprovedAt   *time.Time `json:"approved_at,omitempty"`
	RejectedAt   *time.Time `json:"rejected_at,omitempty"`
	DispatchedAt *time.Time `json:"dispatched_at,omitempty"`
	ReceivedAt   *time.Time `json:"received_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`

	RejectionReason    string `json:"rejection_reason,omitempty"`
	CourierName        string `json:"courier_name,omitempty"`
	ConditionOnArrival string `json:"condition_on_arrival,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsTerminal reports whether no further transitions are permitted.
func (r *SampleRouting) IsTerminal() bool {
	switch r.Status {
	case StateRejected, StateCompleted, StateCancelled:
		return true
	}
	return false
}

func (r *SampleRouting) Validate() error {
	if r.SampleID <= 0 {
		return dErrors.New(dErrors.CodeValidation, "sample_id is required")
	}
	if r.FromTenantID <= 0 || r.ToTenantID <= 0 {
		return dErrors.New(dErrors.CodeValidation, "from_tenant_id and to_tenant_id are required")
	}
	if r.FromTenantID == r.ToTenantID {
		return dErrors.New(dErrors.CodeValidation, "source and destination franchise must differ")
	}
	if r.Reason == "" {
		return dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	return nil
}

// WorkflowStage is one entry of a workflow's stage history.
type WorkflowStage struct {
	FromStage string         `json:"from_stage"`
	ToStage   string         `json:"to_stage"`
	UserID    int            `json:"user_id"`
	At        time.Time      `json:"at"`
	Notes     string         `json:"notes,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Workflow mirrors a routing's status with its full stage history. The
// routing document is authoritative; a stale workflow is re-synthesized from
// the routing's timestamps on read.
type Workflow struct {
	ID           int             `json:"id"`
	RoutingID    int             `json:"routing_id"`
	CurrentStage string          `json:"current_stage"`
	StageHistory []WorkflowStage `json:"stage_history"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Invoice status values.
const (
	InvoiceDraft     = "draft"
	InvoiceSent      = "sent"
	InvoicePaid      = "paid"
	InvoiceOverdue   = "overdue"
	InvoiceCancelled = "cancelled"
)

// InvoiceLineItem is one line of a routing invoice.
type InvoiceLineItem struct {
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Amount      float64 `json:"amount"`
}

// RoutingInvoice bills the destination franchise for processing a routed
// sample.
//
// Invariant: OwnershipTransferred implies OwnershipTransferredAt is set and
// OriginalOwner == FromTenantID. The flag is one-way.
type RoutingInvoice struct {
	ID            int               `json:"id"`
	InvoiceNumber string            `json:"invoice_number"`
	RoutingID     int               `json:"routing_id"`
	FromTenantID  int               `json:"from_tenant_id"`
	ToTenantID    int               `json:"to_tenant_id"`
	Status        string            `json:"status"`
	LineItems     []InvoiceLineItem `json:"line_items"`
	Subtotal      float64           `json:"subtotal"`
	TaxRate       float64           `json:"tax_rate"`
	TaxAmount     float64           `json:"tax_amount"`
	TotalAmount   float64           `json:"total_amount"`
	InvoiceDate   time.Time         `json:"invoice_date"`
	DueDate       time.Time         `json:"due_date"`
	Notes         string            `json:"notes,omitempty"`

	OwnershipTransferred   bool       `json:"ownership_transferred"`
	OriginalOwner          int        `json:"original_owner"`
	OwnershipTransferredAt *time.Time `json:"ownership_transferred_at,omitempty"`
	OwnershipTransferredBy int        `json:"ownership_transferred_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Recompute derives subtotal, tax and total from the line items, rounded to
// two decimals.
func (inv *RoutingInvoice) Recompute() {
	inv.Subtotal = 0
	for _, item := range inv.LineItems {
		inv.Subtotal += item.Amount
	}
	inv.Subtotal = roundMoney(inv.Subtotal)
	inv.TaxAmount = roundMoney(inv.Subtotal * inv.TaxRate)
	inv.TotalAmount = roundMoney(inv.Subtotal + inv.TaxAmount)
}

// RoutingMessage is one encrypted chat message on a routing.
type RoutingMessage struct {
	ID               string     `json:"id"`
	RoutingID        int        `json:"routing_id"`
	SenderID         int        `json:"sender_id"`
	RecipientID      int        `json:"recipient_id"`
	EncryptedContent string     `json:"encrypted_content"`
	IsEncrypted      bool       `json:"is_encrypted"`
	IsRead           bool       `json:"is_read"`
	ReadAt           *time.Time `json:"read_at,omitempty"`
	MessageType      string     `json:"message_type,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// RoutingFile is one encrypted attachment on a routing. EncryptedContent is
// the sealed payload, base64 inside the codec's string.
type RoutingFile struct {
	ID               string    `json:"id"`
	RoutingID        int       `json:"routing_id"`
	Filename         string    `json:"filename"`
	ContentType      string    `json:"content_type"`
	FileSize         int       `json:"file_size"`
	UploadedBy       int       `json:"uploaded_by"`
	RecipientID      int       `json:"recipient_id"`
	EncryptedContent string    `json:"encrypted_content"`
	CreatedAt        time.Time `json:"created_at"`
}
