package report

import (
	"context"
	"sort"
	"strings"

	"avinilabs/internal/access"
	dErrors "avinilabs/pkg/domain-errors"
)

// SearchParams are intersected: a report must satisfy every non-zero
// predicate to be returned.
type SearchParams struct {
	SID         string
	PatientName string
	Mobile      string
	DateFrom    string // inclusive, YYYY-MM-DD
	DateTo      string // inclusive, YYYY-MM-DD
}

const defaultAutocompleteLimit = 10

// List returns reports under the caller's report scope, optionally narrowed
// to one franchise, newest billing date first.
func (s *Service) List(ctx context.Context, franchiseID int) ([]BillingReport, error) {
	scoped, err := s.scopedReports(ctx)
	if err != nil {
		return nil, err
	}
	if franchiseID != 0 {
		narrowed := scoped[:0]
		for _, r := range scoped {
			if r.TenantID == franchiseID {
				narrowed = append(narrowed, r)
			}
		}
		scoped = narrowed
	}
	sortByBillingDateDesc(scoped)
	return scoped, nil
}

// Search filters reports by the intersection of the given predicates.
func (s *Service) Search(ctx context.Context, params SearchParams) ([]BillingReport, error) {
	scoped, err := s.scopedReports(ctx)
	if err != nil {
		return nil, err
	}

	sidNeedle := strings.ToLower(params.SID)
	nameNeedle := strings.ToLower(params.PatientName)

	out := make([]BillingReport, 0, len(scoped))
	for _, r := range scoped {
		if sidNeedle != "" && !strings.Contains(strings.ToLower(r.SIDNumber), sidNeedle) {
			continue
		}
		if nameNeedle != "" && !strings.Contains(strings.ToLower(r.PatientInfo.FullName), nameNeedle) {
			continue
		}
		if params.Mobile != "" && !strings.Contains(r.PatientInfo.Mobile, params.Mobile) {
			continue
		}
		date := r.BillingDate.Format("2006-01-02")
		if params.DateFrom != "" && date < params.DateFrom {
			continue
		}
		if params.DateTo != "" && date > params.DateTo {
			continue
		}
		out = append(out, r)
	}
	sortByBillingDateDesc(out)
	return out, nil
}

// Autocomplete returns sids with the given prefix, case-insensitive.
func (s *Service) Autocomplete(ctx context.Context, prefix string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = defaultAutocompleteLimit
	}
	scoped, err := s.scopedReports(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(prefix)
	out := make([]string, 0, limit)
	for _, r := range scoped {
		if strings.HasPrefix(strings.ToLower(r.SIDNumber), needle) {
			out = append(out, r.SIDNumber)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// GetBySID fetches one report by sid under the caller's report scope.
func (s *Service) GetBySID(ctx context.Context, sidNumber string) (*BillingReport, error) {
	r, err := s.store.FindBySID(ctx, sidNumber)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "report not found")
	}
	scope, err := s.evaluator.ReportScopeFor(ctx)
	if err != nil {
		return nil, err
	}
	if err := access.CheckTarget(scope, r.TenantID); err != nil {
		return nil, err
	}
	return r, nil
}

// PublicBySID fetches a report without a caller scope. Serves the QR-code
// PDF route, which carries no bearer token.
func (s *Service) PublicBySID(ctx context.Context, sidNumber string) (*BillingReport, error) {
	r, err := s.store.FindBySID(ctx, sidNumber)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "report not found")
	}
	return r, nil
}

func (s *Service) scopedReports(ctx context.Context) ([]BillingReport, error) {
	scope, err := s.evaluator.ReportScopeFor(ctx)
	if err != nil {
		return nil, err
	}
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list reports")
	}
	out := make([]BillingReport, 0, len(all))
	for _, r := range all {
		if scope.Allows(r.TenantID) {
			out = append(out, r)
		}
	}
	return out, nil
}

func sortByBillingDateDesc(reports []BillingReport) {
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].BillingDate.After(reports[j].BillingDate)
	})
}
