// Package sid allocates the franchise-visible sample identifiers stamped on
// billings and billing reports. Identifiers are strictly increasing per
// franchise and unique across both collections; uniqueness is enforced by an
// on-disk scan under the collection locks plus an in-process pending set for
// ids handed out but not yet persisted.
package sid

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"avinilabs/internal/jsonstore"
	"avinilabs/internal/platform/metrics"
	"avinilabs/internal/tenant"
	dErrors "avinilabs/pkg/domain-errors"
	"avinilabs/pkg/requestcontext"
)

const (
	billingsCollection = "billings"
	reportsCollection  = "billing_reports"
)

const (
	// maxBumpAttempts bounds the candidate increment loop inside one scan.
	maxBumpAttempts = 100
	// maxRetries bounds whole-allocation retries before the TMP fallback.
	maxRetries = 3
)

// sidRecord is the slice of a billing or report document the allocator needs.
type sidRecord struct {
	TenantID  int    `json:"tenant_id"`
	SIDNumber string `json:"sid_number"`
}

// Allocator hands out sid numbers. Safe for concurrent use.
type Allocator struct {
	store   jsonstore.Store
	tenants *tenant.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	sleep   func(time.Duration)

	mu      sync.Mutex
	pending map[string]struct{}
}

type Option func(*Allocator)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Allocator) { a.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Allocator) { a.metrics = m }
}

func NewAllocator(store jsonstore.Store, tenants *tenant.Store, opts ...Option) *Allocator {
	a := &Allocator{
		store:   store,
		tenants: tenants,
		logger:  slog.Default(),
		sleep:   time.Sleep,
		pending: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Next allocates the next sid for a franchise. The returned id is reserved in
// the pending set; the caller must confirm it with MarkUsed once the owning
// document is persisted, or hand it back with Release on failure.
func (a *Allocator) Next(ctx context.Context, tenantID int) (string, error) {
	t, err := a.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return "", dErrors.Newf(dErrors.CodeValidation, "franchise %d is not configured for sid allocation", tenantID)
	}
	if t.UseSiteCodePrefix && t.SiteCode == "" {
		return "", dErrors.Newf(dErrors.CodeValidation, "franchise %d has no site code", tenantID)
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			a.sleep(time.Duration(1<<attempt) * 50 * time.Millisecond)
		}
		sid, err := a.allocate(ctx, t)
		if err == nil {
			if a.metrics != nil {
				a.metrics.SIDAllocations.Inc()
			}
			return sid, nil
		}
		lastErr = err
	}

	sid := a.temporary(ctx)
	a.reserve(sid)
	a.logger.Warn("sid allocation fell back to temporary id",
		"sid", sid, "tenant_id", tenantID, "error", lastErr)
	if a.metrics != nil {
		a.metrics.SIDFallbacks.Inc()
	}
	return sid, nil
}

// MarkUsed confirms a sid as persisted and drops its reservation.
func (a *Allocator) MarkUsed(sid string) {
	a.unreserve(sid)
}

// Release hands back a sid whose owning document was never persisted.
func (a *Allocator) Release(sid string) {
	a.unreserve(sid)
}

func (a *Allocator) allocate(ctx context.Context, t *tenant.Tenant) (string, error) {
	var sid string
	err := a.store.Exclusive(ctx, func(ctx context.Context) error {
		used, maxN, err := a.scan(ctx, t)
		if err != nil {
			return err
		}

		a.mu.Lock()
		defer a.mu.Unlock()
		next := maxN + 1
		for i := 0; i < maxBumpAttempts; i++ {
			candidate := format(t, next)
			_, taken := used[candidate]
			if !taken {
				_, taken = a.pending[candidate]
			}
			if !taken {
				a.pending[candidate] = struct{}{}
				sid = candidate
				return nil
			}
			next++
		}
		return dErrors.Newf(dErrors.CodeConflict, "sid space exhausted after %d attempts", maxBumpAttempts)
	}, billingsCollection, reportsCollection)
	if err != nil {
		return "", err
	}
	return sid, nil
}

// scan reads both collections and returns every persisted sid (any franchise,
// so prefixless franchises cannot collide) plus the numeric high-water mark
// for this franchise.
func (a *Allocator) scan(ctx context.Context, t *tenant.Tenant) (map[string]struct{}, int, error) {
	used := make(map[string]struct{})
	maxN := 0
	for _, name := range []string{billingsCollection, reportsCollection} {
		docs, err := a.store.Collection(name).Read(ctx)
		if err != nil {
			return nil, 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to scan "+name)
		}
		records, err := jsonstore.Decode[sidRecord](docs)
		if err != nil {
			return nil, 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to decode "+name)
		}
		for _, rec := range records {
			if rec.SIDNumber == "" {
				continue
			}
			used[rec.SIDNumber] = struct{}{}
			if rec.TenantID != t.ID {
				continue
			}
			if n, ok := extract(t, rec.SIDNumber); ok && n > maxN {
				maxN = n
			}
		}
	}
	return used, maxN, nil
}

// extract parses the numeric part of a sid in either the prefixed form
// (site_code then digits) or the bare-digits legacy form.
func extract(t *tenant.Tenant, sid string) (int, bool) {
	if t.SiteCode != "" && strings.HasPrefix(sid, t.SiteCode) {
		if n, err := strconv.Atoi(sid[len(t.SiteCode):]); err == nil && n > 0 {
			return n, true
		}
		return 0, false
	}
	if n, err := strconv.Atoi(sid); err == nil && n > 0 {
		return n, true
	}
	return 0, false
}

// format renders a sid. Numbers are zero-padded to three digits and widen
// naturally past 999.
func format(t *tenant.Tenant, n int) string {
	if t.UseSiteCodePrefix {
		return fmt.Sprintf("%s%03d", t.SiteCode, n)
	}
	return fmt.Sprintf("%03d", n)
}

// temporary builds the last-resort fallback id from the request clock.
func (a *Allocator) temporary(ctx context.Context) string {
	return fmt.Sprintf("TMP%04d", requestcontext.Now(ctx).UnixMilli()%10000)
}

func (a *Allocator) reserve(sid string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending[sid] = struct{}{}
}

func (a *Allocator) unreserve(sid string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.pending, sid)
}
