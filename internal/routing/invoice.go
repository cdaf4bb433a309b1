package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"avinilabs/internal/access"
	"avinilabs/internal/audit"
	dErrors "avinilabs/pkg/domain-errors"
	"avinilabs/pkg/platform/sentinel"
	"avinilabs/pkg/requestcontext"
)

const (
	invoiceTaxRate = 0.18
	invoiceDueDays = 30
)

func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}

func defaultLineItems() []InvoiceLineItem {
	return []InvoiceLineItem{
		{Description: "Sample Processing Fee", Quantity: 1, UnitPrice: 500.0, Amount: 500.0},
		{Description: "Laboratory Analysis", Quantity: 1, UnitPrice: 300.0, Amount: 300.0},
	}
}

// InvoiceCoordinator owns the invoice side of a routing: the auto-drafted
// invoice at creation, the one-way ownership transfer on approval and the
// ownership-derived permission checks on every mutation.
type InvoiceCoordinator struct {
	store          *Store
	logger         *slog.Logger
	auditPublisher audit.Publisher
}

func NewInvoiceCoordinator(store *Store, opts ...Option) *InvoiceCoordinator {
	c := &InvoiceCoordinator{
		store:          store,
		logger:         slog.Default(),
		auditPublisher: audit.NopPublisher{},
	}
	cfg := options{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger != nil {
		c.logger = cfg.logger
	}
	if cfg.auditPublisher != nil {
		c.auditPublisher = cfg.auditPublisher
	}
	return c
}

// DraftFor creates the default draft invoice that accompanies every new
// routing.
func (c *InvoiceCoordinator) DraftFor(ctx context.Context, r *SampleRouting) (*RoutingInvoice, error) {
	now := requestcontext.Now(ctx)
	inv := &RoutingInvoice{
		RoutingID:     r.ID,
		FromTenantID:  r.FromTenantID,
		ToTenantID:    r.ToTenantID,
		Status:        InvoiceDraft,
		LineItems:     defaultLineItems(),
		TaxRate:       invoiceTaxRate,
		InvoiceDate:   now,
		DueDate:       now.AddDate(0, 0, invoiceDueDays),
		OriginalOwner: r.FromTenantID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	inv.Recompute()
	if err := c.store.CreateInvoice(ctx, inv); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to draft routing invoice")
	}
	c.emit(ctx, audit.EventInvoiceCreated, r.FromTenantID, true)
	return inv, nil
}

// TransferOwnership flips every untransferred invoice of the routing to the
// destination franchise. The flag is one-way; already transferred invoices
// are left alone.
func (c *InvoiceCoordinator) TransferOwnership(ctx context.Context, r *SampleRouting) error {
	invoices, err := c.store.Invoices(ctx, r.ID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load routing invoices")
	}
	user := requestcontext.User(ctx)
	now := requestcontext.Now(ctx)
	for i := range invoices {
		inv := &invoices[i]
		if inv.OwnershipTransferred {
			continue
		}
		inv.OwnershipTransferred = true
		inv.OwnershipTransferredAt = &now
		inv.OwnershipTransferredBy = user.ID
		note := fmt.Sprintf("Ownership transferred to franchise %d on routing approval.", r.ToTenantID)
		if inv.Notes == "" {
			inv.Notes = note
		} else {
			inv.Notes += "\n" + note
		}
		inv.UpdatedAt = now
		if err := c.store.SaveInvoice(ctx, inv); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to transfer invoice ownership")
		}
		c.emit(ctx, audit.EventInvoiceOwnership, r.ToTenantID, true)
	}
	return nil
}

// ListForRouting returns the routing's invoices for a participant.
func (c *InvoiceCoordinator) ListForRouting(ctx context.Context, r *SampleRouting) ([]RoutingInvoice, error) {
	if err := requireParticipant(ctx, r.FromTenantID, r.ToTenantID); err != nil {
		return nil, err
	}
	invoices, err := c.store.Invoices(ctx, r.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load routing invoices")
	}
	return invoices, nil
}

// Get returns one invoice for a participant.
func (c *InvoiceCoordinator) Get(ctx context.Context, id int) (*RoutingInvoice, error) {
	inv, err := c.store.FindInvoice(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "invoice not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load invoice")
	}
	if err := requireParticipant(ctx, inv.FromTenantID, inv.ToTenantID); err != nil {
		return nil, err
	}
	return inv, nil
}

// CreateFor adds a further invoice to a routing. Before approval the source
// franchise owns the routing's invoicing; afterwards the destination does.
func (c *InvoiceCoordinator) CreateFor(ctx context.Context, r *SampleRouting, in RoutingInvoice) (*RoutingInvoice, error) {
	owner := r.FromTenantID
	transferred := r.ApprovedAt != nil
	if transferred {
		owner = r.ToTenantID
	}
	if err := requireOwner(ctx, owner); err != nil {
		return nil, err
	}
	if r.Status == StateCompleted {
		return nil, dErrors.New(dErrors.CodeInvalidState, "routing is completed; invoicing is frozen")
	}

	now := requestcontext.Now(ctx)
	inv := &RoutingInvoice{
		RoutingID:            r.ID,
		FromTenantID:         r.FromTenantID,
		ToTenantID:           r.ToTenantID,
		Status:               InvoiceDraft,
		LineItems:            in.LineItems,
		TaxRate:              in.TaxRate,
		InvoiceDate:          now,
		DueDate:              in.DueDate,
		Notes:                in.Notes,
		OriginalOwner:        r.FromTenantID,
		OwnershipTransferred: transferred,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if len(inv.LineItems) == 0 {
		inv.LineItems = defaultLineItems()
	}
	if inv.TaxRate == 0 {
		inv.TaxRate = invoiceTaxRate
	}
	if inv.DueDate.IsZero() {
		inv.DueDate = now.AddDate(0, 0, invoiceDueDays)
	}
	if transferred {
		inv.OwnershipTransferredAt = &now
		user := requestcontext.User(ctx)
		inv.OwnershipTransferredBy = user.ID
	}
	inv.Recompute()
	if err := c.store.CreateInvoice(ctx, inv); err != nil {
		c.emit(ctx, audit.EventInvoiceCreated, owner, false)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create invoice")
	}
	c.emit(ctx, audit.EventInvoiceCreated, owner, true)
	return inv, nil
}

// Update edits a draft invoice's line items, tax rate, due date and notes.
func (c *InvoiceCoordinator) Update(ctx context.Context, r *SampleRouting, id int, in RoutingInvoice) (*RoutingInvoice, error) {
	inv, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(ctx, ownerTenant(inv)); err != nil {
		return nil, err
	}
	if err := checkFrozen(r, inv); err != nil {
		return nil, err
	}
	if inv.Status != InvoiceDraft {
		return nil, dErrors.Newf(dErrors.CodeInvalidState, "only draft invoices can be edited, not %s", inv.Status)
	}

	if len(in.LineItems) > 0 {
		inv.LineItems = in.LineItems
	}
	if in.TaxRate > 0 {
		inv.TaxRate = in.TaxRate
	}
	if !in.DueDate.IsZero() {
		inv.DueDate = in.DueDate
	}
	if in.Notes != "" {
		inv.Notes = in.Notes
	}
	inv.UpdatedAt = requestcontext.Now(ctx)
	inv.Recompute()
	if err := c.store.SaveInvoice(ctx, inv); err != nil {
		c.emit(ctx, audit.EventInvoiceUpdated, ownerTenant(inv), false)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update invoice")
	}
	c.emit(ctx, audit.EventInvoiceUpdated, ownerTenant(inv), true)
	return inv, nil
}

// UpdateStatus moves an invoice between draft, sent, paid, overdue and
// cancelled. Marking paid is open to either side; the rest belong to the
// owner.
func (c *InvoiceCoordinator) UpdateStatus(ctx context.Context, r *SampleRouting, id int, status string) (*RoutingInvoice, error) {
	switch status {
	case InvoiceSent, InvoicePaid, InvoiceOverdue, InvoiceCancelled:
	default:
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown invoice status %q", status)
	}
	inv, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if status == InvoicePaid {
		if err := requireParticipant(ctx, inv.FromTenantID, inv.ToTenantID); err != nil {
			return nil, err
		}
	} else if err := requireOwner(ctx, ownerTenant(inv)); err != nil {
		return nil, err
	}
	if err := checkFrozen(r, inv); err != nil {
		return nil, err
	}

	inv.Status = status
	inv.UpdatedAt = requestcontext.Now(ctx)
	if err := c.store.SaveInvoice(ctx, inv); err != nil {
		c.emit(ctx, audit.EventInvoiceUpdated, ownerTenant(inv), false)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update invoice status")
	}
	c.emit(ctx, audit.EventInvoiceUpdated, ownerTenant(inv), true)
	return inv, nil
}

// Delete removes a draft invoice. Sent and paid invoices are never deletable.
func (c *InvoiceCoordinator) Delete(ctx context.Context, r *SampleRouting, id int) error {
	inv, err := c.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := requireOwner(ctx, ownerTenant(inv)); err != nil {
		return err
	}
	if inv.Status == InvoiceSent || inv.Status == InvoicePaid {
		return dErrors.Newf(dErrors.CodeInvalidState, "%s invoices cannot be deleted", inv.Status)
	}
	if err := checkFrozen(r, inv); err != nil {
		return err
	}
	if err := c.store.DeleteInvoice(ctx, id); err != nil {
		c.emit(ctx, audit.EventInvoiceDeleted, ownerTenant(inv), false)
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete invoice")
	}
	c.emit(ctx, audit.EventInvoiceDeleted, ownerTenant(inv), true)
	return nil
}

func (c *InvoiceCoordinator) emit(ctx context.Context, eventType string, tenantID int, success bool) {
	user := requestcontext.User(ctx)
	severity := audit.SeverityInfo
	if !success {
		severity = audit.SeverityWarning
	}
	_ = c.auditPublisher.Emit(ctx, audit.Entry{
		EventType: eventType,
		Severity:  severity,
		UserID:    user.ID,
		TenantID:  tenantID,
		Success:   success,
	})
}

func ownerTenant(inv *RoutingInvoice) int {
	if inv.OwnershipTransferred {
		return inv.ToTenantID
	}
	return inv.FromTenantID
}

// checkFrozen rejects mutations once the invoice is paid or the routing is
// completed.
func checkFrozen(r *SampleRouting, inv *RoutingInvoice) error {
	if inv.Status == InvoicePaid {
		return dErrors.New(dErrors.CodeInvalidState, "paid invoices are frozen")
	}
	if r != nil && r.Status == StateCompleted {
		return dErrors.New(dErrors.CodeInvalidState, "routing is completed; invoicing is frozen")
	}
	return nil
}

func requireParticipant(ctx context.Context, fromTenantID, toTenantID int) error {
	user := requestcontext.User(ctx)
	if user.Role == access.RoleAdmin {
		return nil
	}
	if user.TenantID == fromTenantID || user.TenantID == toTenantID {
		return nil
	}
	return dErrors.New(dErrors.CodeAccessDenied, "not a participant of this routing")
}

func requireOwner(ctx context.Context, ownerTenantID int) error {
	user := requestcontext.User(ctx)
	if user.Role == access.RoleAdmin {
		return nil
	}
	if user.TenantID == ownerTenantID {
		return nil
	}
	return dErrors.New(dErrors.CodeAccessDenied, "invoice is owned by another franchise")
}
