package report

import (
	"context"

	"avinilabs/internal/audit"
	"avinilabs/internal/catalog"
	"avinilabs/internal/jsonstore"
	dErrors "avinilabs/pkg/domain-errors"
	"avinilabs/pkg/requestcontext"
)

// protectedKeys never change through a test-item patch: they tie the row to
// its catalog entry.
var protectedKeys = map[string]bool{
	"id":             true,
	"test_master_id": true,
}

// UpdateTestItem shallow-merges a patch into one test item, addressed by sid
// and zero-based index.
func (s *Service) UpdateTestItem(ctx context.Context, sidNumber string, index int, patch map[string]any) (*BillingReport, error) {
	r, err := s.GetBySID(ctx, sidNumber)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(r.TestItems) {
		return nil, dErrors.Newf(dErrors.CodeValidation, "test item index %d out of range", index)
	}

	merged, err := mergeItem(r.TestItems[index], patch)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to merge test item")
	}
	r.TestItems[index] = merged
	r.UpdatedAt = requestcontext.Now(ctx)

	if err := s.store.Save(ctx, r); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save report")
	}
	s.emitUpdate(ctx, r.TenantID)
	return r, nil
}

// SampleStatusPatch updates the sample tracking of one test item, matched by
// the item's id. Unknown ids are appended as new entries.
type SampleStatusPatch struct {
	ID                      any    `json:"id"`
	SampleStatus            string `json:"sample_status,omitempty"`
	SampleReceived          bool   `json:"sample_received,omitempty"`
	SampleReceivedTimestamp string `json:"sample_received_timestamp,omitempty"`
}

// UpdateSampleStatus merges per-test sample statuses into the report.
func (s *Service) UpdateSampleStatus(ctx context.Context, sidNumber string, patches []SampleStatusPatch) (*BillingReport, error) {
	if len(patches) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "at least one test item patch is required")
	}
	r, err := s.GetBySID(ctx, sidNumber)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	stamp := now.Format("2006-01-02T15:04:05Z07:00")
	for _, patch := range patches {
		found := false
		for i := range r.TestItems {
			if !sameItemID(r.TestItems[i].ID, patch.ID) {
				continue
			}
			applySampleStatus(&r.TestItems[i], patch, stamp)
			found = true
			break
		}
		if !found {
			item := catalog.ResolvedItem{ID: patch.ID}
			applySampleStatus(&item, patch, stamp)
			r.TestItems = append(r.TestItems, item)
		}
	}
	r.UpdatedAt = now

	if err := s.store.Save(ctx, r); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save report")
	}
	s.emitUpdate(ctx, r.TenantID)
	return r, nil
}

func applySampleStatus(item *catalog.ResolvedItem, patch SampleStatusPatch, stamp string) {
	if patch.SampleStatus != "" {
		item.SampleStatus = patch.SampleStatus
	}
	item.SampleReceived = patch.SampleReceived
	if patch.SampleReceivedTimestamp != "" {
		item.SampleReceivedTimestamp = patch.SampleReceivedTimestamp
	} else if patch.SampleReceived {
		item.SampleReceivedTimestamp = stamp
	}
	item.SampleStatusUpdatedAt = stamp
}

// sameItemID compares item ids across the numeric types a JSON round-trip
// can produce.
func sameItemID(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	if a == b {
		return true
	}
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	return aok && bok && af == bf
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// mergeItem round-trips the typed item through a document so an arbitrary
// patch can shallow-merge over it, minus the protected keys.
func mergeItem(item catalog.ResolvedItem, patch map[string]any) (catalog.ResolvedItem, error) {
	doc, err := jsonstore.EncodeOne(item)
	if err != nil {
		return item, err
	}
	for key, value := range patch {
		if protectedKeys[key] {
			continue
		}
		doc[key] = value
	}
	return jsonstore.DecodeOne[catalog.ResolvedItem](doc)
}

func (s *Service) emitUpdate(ctx context.Context, tenantID int) {
	user := requestcontext.User(ctx)
	_ = s.auditPublisher.Emit(ctx, audit.Entry{
		EventType: audit.EventReportUpdated,
		Severity:  audit.SeverityInfo,
		UserID:    user.ID,
		TenantID:  tenantID,
		Success:   true,
	})
}
