package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"avinilabs/internal/access"
	"avinilabs/internal/audit"
	"avinilabs/internal/notification"
	"avinilabs/internal/platform/metrics"
	"avinilabs/internal/user"
	dErrors "avinilabs/pkg/domain-errors"
	"avinilabs/pkg/platform/sentinel"
	"avinilabs/pkg/requestcontext"
)

// Notifier fans routing events out to users.
type Notifier interface {
	Send(ctx context.Context, n notification.Notification) error
}

type options struct {
	logger         *slog.Logger
	auditPublisher audit.Publisher
	metrics        *metrics.Metrics
	notifier       Notifier
}

type Option func(*options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithAuditPublisher(publisher audit.Publisher) Option {
	return func(o *options) { o.auditPublisher = publisher }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func WithNotifier(n Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// Service runs the routing lifecycle: creation with its auto-submitted first
// transition, the state machine, the workflow mirror and the event fan-out.
type Service struct {
	store          *Store
	users          *user.Store
	evaluator      *access.Evaluator
	invoices       *InvoiceCoordinator
	logger         *slog.Logger
	auditPublisher audit.Publisher
	metrics        *metrics.Metrics
	notifier       Notifier
}

func NewService(store *Store, users *user.Store, evaluator *access.Evaluator, invoices *InvoiceCoordinator, opts ...Option) *Service {
	s := &Service{
		store:          store,
		users:          users,
		evaluator:      evaluator,
		invoices:       invoices,
		logger:         slog.Default(),
		auditPublisher: audit.NopPublisher{},
	}
	cfg := options{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger != nil {
		s.logger = cfg.logger
	}
	if cfg.auditPublisher != nil {
		s.auditPublisher = cfg.auditPublisher
	}
	s.metrics = cfg.metrics
	s.notifier = cfg.notifier
	return s
}

// Create registers a routing and immediately submits it for approval, so a
// fresh routing is always pending_approval with its first stage recorded. A
// draft invoice is attached and the destination franchise is notified.
func (s *Service) Create(ctx context.Context, r SampleRouting) (*SampleRouting, error) {
	userInfo := requestcontext.User(ctx)
	now := requestcontext.Now(ctx)
	r.Status = StateCreated
	r.CreatedBy = userInfo.ID
	r.CreatedAt = now
	r.UpdatedAt = now
	if r.Priority == "" {
		r.Priority = PriorityRoutine
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}

	if err := s.evaluator.RequireModule(ctx, access.ModuleRouting); err != nil {
		return nil, err
	}
	scope, err := s.evaluator.ScopeFor(ctx)
	if err != nil {
		return nil, err
	}
	if err := access.CheckTarget(scope, r.FromTenantID); err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, &r); err != nil {
		s.emit(ctx, audit.EventRoutingCreated, r.FromTenantID, false, nil)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create routing")
	}

	// Auto-submit so the first stage-history entry is created →
	// pending_approval.
	updated, err := s.store.UpdateRouting(ctx, r.ID, func(current *SampleRouting) error {
		current.Status = StatePendingApproval
		current.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to submit routing")
	}
	r = *updated
	s.appendStage(ctx, &r, StateCreated, "")

	if _, err := s.invoices.DraftFor(ctx, &r); err != nil {
		s.subStepFailed(ctx, &r, "invoice_draft", err)
	}

	if s.metrics != nil {
		s.metrics.RoutingTransitions.WithLabelValues(ActionSubmit).Inc()
	}
	s.emit(ctx, audit.EventRoutingCreated, r.FromTenantID, true, map[string]any{
		"routing_id":      r.ID,
		"tracking_number": r.TrackingNumber,
	})
	s.notifyDestination(ctx, &r)
	return &r, nil
}

// Transition applies one state-machine action to a routing. State, actor
// side and payload are all validated inside the routing's write lock; the
// workflow mirror, ownership transfer and notifications follow best-effort.
func (s *Service) Transition(ctx context.Context, id int, action string, payload TransitionPayload) (*SampleRouting, error) {
	userInfo := requestcontext.User(ctx)
	now := requestcontext.Now(ctx)
	spec, err := specFor(action)
	if err != nil {
		return nil, err
	}

	var fromState string
	updated, err := s.store.UpdateRouting(ctx, id, func(r *SampleRouting) error {
		if err := checkState(r, action, spec); err != nil {
			return err
		}
		if err := checkActor(r, spec, userInfo.Role, userInfo.TenantID, action); err != nil {
			return err
		}
		if spec.validate != nil {
			if err := spec.validate(payload); err != nil {
				return err
			}
		}
		fromState = r.Status
		if spec.apply != nil {
			spec.apply(r, userInfo.ID, now, payload)
		}
		r.Status = spec.to
		r.UpdatedAt = now
		return nil
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "routing not found")
		}
		return nil, err
	}

	s.appendStage(ctx, updated, fromState, payload.Notes)
	if action == ActionApprove {
		if err := s.invoices.TransferOwnership(ctx, updated); err != nil {
			s.subStepFailed(ctx, updated, "ownership_transfer", err)
		}
	}

	if s.metrics != nil {
		s.metrics.RoutingTransitions.WithLabelValues(action).Inc()
	}
	s.emit(ctx, audit.EventRoutingTransition, userInfo.TenantID, true, map[string]any{
		"routing_id": updated.ID,
		"action":     action,
		"from":       fromState,
		"to":         updated.Status,
	})
	s.fanOut(ctx, updated, action)
	return updated, nil
}

// Get returns one routing visible to the caller's scope on either side.
func (s *Service) Get(ctx context.Context, id int) (*SampleRouting, error) {
	r, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "routing not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load routing")
	}
	scope, err := s.evaluator.ScopeFor(ctx)
	if err != nil {
		return nil, err
	}
	if !scope.Allows(r.FromTenantID) && !scope.Allows(r.ToTenantID) {
		return nil, dErrors.New(dErrors.CodeAccessDenied, "routing belongs to other franchises")
	}
	return r, nil
}

// List returns routings where the caller's scope covers either side, newest
// first.
func (s *Service) List(ctx context.Context) ([]SampleRouting, error) {
	scope, err := s.evaluator.ScopeFor(ctx)
	if err != nil {
		return nil, err
	}
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list routings")
	}
	out := make([]SampleRouting, 0, len(all))
	for _, r := range all {
		if scope.Allows(r.FromTenantID) || scope.Allows(r.ToTenantID) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// WorkflowFor returns the routing's workflow mirror. A missing or stale
// mirror is re-synthesized from the routing's own timestamps; the routing
// document stays authoritative.
func (s *Service) WorkflowFor(ctx context.Context, id int) (*Workflow, error) {
	r, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	w, err := s.store.Workflow(ctx, r.ID)
	if err == nil && w.CurrentStage == r.Status {
		return w, nil
	}
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load workflow")
	}
	synthesized := synthesizeWorkflow(r)
	if err := s.store.SaveWorkflow(ctx, synthesized); err != nil {
		s.logger.Warn("failed to persist re-synthesized workflow", "routing_id", r.ID, "error", err)
	}
	return synthesized, nil
}

// HistoryEvent is one entry of a routing's aggregated timeline.
type HistoryEvent struct {
	At          string `json:"at"`
	Type        string `json:"type"`
	Description string `json:"description"`
	UserID      int    `json:"user_id,omitempty"`
}

// History aggregates the routing's stage history with its invoice events,
// time-ordered.
func (s *Service) History(ctx context.Context, id int) ([]HistoryEvent, error) {
	r, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	w, err := s.WorkflowFor(ctx, id)
	if err != nil {
		return nil, err
	}
	invoices, err := s.store.Invoices(ctx, r.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load routing invoices")
	}

	events := []HistoryEvent{{
		At:          r.CreatedAt.Format(time.RFC3339),
		Type:        "routing",
		Description: fmt.Sprintf("Routing %s created", r.TrackingNumber),
		UserID:      r.CreatedBy,
	}}
	for _, stage := range w.StageHistory {
		events = append(events, HistoryEvent{
			At:          stage.At.Format(time.RFC3339),
			Type:        "stage",
			Description: fmt.Sprintf("%s → %s", stage.FromStage, stage.ToStage),
			UserID:      stage.UserID,
		})
	}
	for _, inv := range invoices {
		events = append(events, HistoryEvent{
			At:          inv.CreatedAt.Format(time.RFC3339),
			Type:        "invoice",
			Description: fmt.Sprintf("Invoice %s created (%s)", inv.InvoiceNumber, inv.Status),
		})
		if inv.OwnershipTransferredAt != nil {
			events = append(events, HistoryEvent{
				At:          inv.OwnershipTransferredAt.Format(time.RFC3339),
				Type:        "invoice",
				Description: fmt.Sprintf("Invoice %s ownership transferred to franchise %d", inv.InvoiceNumber, inv.ToTenantID),
				UserID:      inv.OwnershipTransferredBy,
			})
		}
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].At < events[j].At })
	return events, nil
}

// appendStage records a transition in the workflow mirror. The routing write
// already succeeded, so failures here are logged and reported but never
// fail the request; the mirror is re-derivable.
func (s *Service) appendStage(ctx context.Context, r *SampleRouting, fromState, notes string) {
	userInfo := requestcontext.User(ctx)
	now := requestcontext.Now(ctx)
	w, err := s.store.Workflow(ctx, r.ID)
	if errors.Is(err, sentinel.ErrNotFound) {
		w = &Workflow{RoutingID: r.ID, CreatedAt: now}
	} else if err != nil {
		s.subStepFailed(ctx, r, "workflow_update", err)
		return
	}
	w.CurrentStage = r.Status
	w.StageHistory = append(w.StageHistory, WorkflowStage{
		FromStage: fromState,
		ToStage:   r.Status,
		UserID:    userInfo.ID,
		At:        now,
		Notes:     notes,
	})
	w.UpdatedAt = now
	if err := s.store.SaveWorkflow(ctx, w); err != nil {
		s.subStepFailed(ctx, r, "workflow_update", err)
	}
}

// fanOut notifies every routing participant except the acting user. Failures
// are logged; the transition already happened.
func (s *Service) fanOut(ctx context.Context, r *SampleRouting, action string) {
	if s.notifier == nil {
		return
	}
	userInfo := requestcontext.User(ctx)
	recipients := participantIDs(r, userInfo.ID)
	if len(recipients) == 0 {
		return
	}
	title := fmt.Sprintf("Routing %s: %s", r.TrackingNumber, action)
	g, gctx := errgroup.WithContext(ctx)
	for _, recipientID := range recipients {
		g.Go(func() error {
			return s.notifier.Send(gctx, notification.Notification{
				Type:        "routing_" + action,
				Title:       title,
				Message:     fmt.Sprintf("Routing %s is now %s.", r.TrackingNumber, r.Status),
				RecipientID: recipientID,
				SenderID:    userInfo.ID,
				RoutingID:   r.ID,
				Priority:    notificationPriority(r.Priority),
			})
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Warn("routing notification fan-out incomplete", "routing_id", r.ID, "action", action, "error", err)
	}
	if s.metrics != nil {
		s.metrics.NotificationsSent.Add(float64(len(recipients)))
	}
}

// notifyDestination tells the destination franchise about a fresh routing.
// Addressing by "first active user in the counterpart tenant" is a
// placeholder scheme.
func (s *Service) notifyDestination(ctx context.Context, r *SampleRouting) {
	if s.notifier == nil {
		return
	}
	recipient, err := s.users.FirstActiveInTenant(ctx, r.ToTenantID)
	if err != nil {
		s.logger.Warn("no active recipient for routing notification", "routing_id", r.ID, "to_tenant_id", r.ToTenantID, "error", err)
		return
	}
	userInfo := requestcontext.User(ctx)
	err = s.notifier.Send(ctx, notification.Notification{
		Type:        "routing_created",
		Title:       fmt.Sprintf("Incoming routing %s", r.TrackingNumber),
		Message:     fmt.Sprintf("A sample routing from franchise %d awaits your approval.", r.FromTenantID),
		RecipientID: recipient.ID,
		SenderID:    userInfo.ID,
		RoutingID:   r.ID,
		Priority:    notificationPriority(r.Priority),
	})
	if err != nil {
		s.logger.Warn("routing creation notification failed", "routing_id", r.ID, "error", err)
	}
}

func (s *Service) subStepFailed(ctx context.Context, r *SampleRouting, step string, err error) {
	userInfo := requestcontext.User(ctx)
	s.logger.Error("routing sub-step failed", "routing_id", r.ID, "step", step, "error", err)
	_ = s.auditPublisher.EmitError(ctx, audit.ErrorEntry{
		ErrorType: "routing_" + step + "_failure",
		Severity:  audit.SeverityError,
		UserID:    userInfo.ID,
		TenantID:  r.FromTenantID,
		Details:   map[string]any{"routing_id": r.ID, "error": err.Error()},
	})
}

func (s *Service) emit(ctx context.Context, eventType string, tenantID int, success bool, details map[string]any) {
	userInfo := requestcontext.User(ctx)
	severity := audit.SeverityInfo
	if !success {
		severity = audit.SeverityWarning
	}
	_ = s.auditPublisher.Emit(ctx, audit.Entry{
		EventType: eventType,
		Severity:  severity,
		UserID:    userInfo.ID,
		TenantID:  tenantID,
		Success:   success,
		Details:   details,
	})
}

// participantIDs returns the distinct user ids recorded on the routing,
// excluding the given actor.
func participantIDs(r *SampleRouting, actorID int) []int {
	seen := map[int]struct{}{}
	out := []int{}
	for _, id := range []int{r.CreatedBy, r.ApprovedBy, r.RejectedBy, r.DispatchedBy, r.ReceivedBy, r.CompletedBy, r.CancelledBy} {
		if id <= 0 || id == actorID {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func notificationPriority(routingPriority string) string {
	switch routingPriority {
	case PriorityStat:
		return notification.PriorityHigh
	case PriorityUrgent:
		return notification.PriorityHigh
	}
	return notification.PriorityMedium
}

// synthesizeWorkflow rebuilds a workflow from the routing's transition
// timestamps. Stage order follows the state machine; cancellation leaves
// whatever stage came last.
func synthesizeWorkflow(r *SampleRouting) *Workflow {
	w := &Workflow{
		RoutingID:    r.ID,
		CurrentStage: r.Status,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	last := StateCreated
	push := func(to string, userID int, at *time.Time, notes string) {
		if at == nil {
			return
		}
		w.StageHistory = append(w.StageHistory, WorkflowStage{
			FromStage: last,
			ToStage:   to,
			UserID:    userID,
			At:        *at,
			Notes:     notes,
		})
		last = to
	}
	if r.Status != StateCreated {
		submittedAt := r.CreatedAt
		push(StatePendingApproval, r.CreatedBy, &submittedAt, "")
	}
	push(StateApproved, r.ApprovedBy, r.ApprovedAt, "")
	push(StateRejected, r.RejectedBy, r.RejectedAt, r.RejectionReason)
	push(StateInTransit, r.DispatchedBy, r.DispatchedAt, "")
	push(StateDelivered, r.ReceivedBy, r.ReceivedAt, r.ConditionOnArrival)
	push(StateCompleted, r.CompletedBy, r.CompletedAt, "")
	push(StateCancelled, r.CancelledBy, r.CancelledAt, "")
	return w
}
