package catalog

import (
	"context"
	"math"
)

// ExpandProfiles replaces each matched profile item with one enriched row per
// sub-test. Each sub-test gets an even share of the profile's price and
// amount; the last share absorbs the rounding remainder so the sum is exact.
// Sub-tests missing from both catalogs (by id, then by name) are logged and
// skipped. Non-profile items pass through unchanged.
func (r *Resolver) ExpandProfiles(ctx context.Context, items []ResolvedItem) []ResolvedItem {
	out := make([]ResolvedItem, 0, len(items))
	for _, item := range items {
		if !item.ProfileType {
			out = append(out, item)
			continue
		}
		expanded := r.expandOne(ctx, item)
		if len(expanded) == 0 {
			// A profile with no resolvable sub-tests stays as the single
			// aggregated row rather than vanishing from the report.
			out = append(out, item)
			continue
		}
		out = append(out, expanded...)
	}
	return out
}

func (r *Resolver) expandOne(ctx context.Context, item ResolvedItem) []ResolvedItem {
	profile, err := r.store.FindProfile(ctx, item.ProfileID)
	if err != nil {
		r.logger.Warn("profile disappeared between resolution and expansion", "profile_id", item.ProfileID)
		return nil
	}

	var subs []*Test
	for _, sub := range profile.TestItems {
		t, err := r.store.FindTestByID(ctx, sub.TestID)
		if err != nil {
			if t2, err2 := r.store.FindTestByName(ctx, sub.TestName); err2 == nil {
				t = t2
			} else {
				r.logger.Warn("profile sub-test missing from both catalogs, skipping",
					"profile", profile.TestProfile, "test_id", sub.TestID, "test_name", sub.TestName)
				continue
			}
		}
		subs = append(subs, t)
	}
	if len(subs) == 0 {
		return nil
	}

	total := len(subs)
	priceShare := roundMoney(item.Price / float64(total))
	amountShare := roundMoney(item.Amount / float64(total))

	out := make([]ResolvedItem, 0, total)
	for i, t := range subs {
		row := *newResolved(BillingItem{
			ID:       item.ID,
			TestID:   item.TestID,
			Quantity: item.Quantity,
		}, t)
		row.IsProfileSubtest = true
		row.ParentProfileName = profile.TestProfile
		row.ParentProfileID = profile.ID
		row.SubtestIndex = i + 1
		row.TotalSubtests = total
		if i == total-1 {
			row.Price = roundMoney(item.Price - priceShare*float64(total-1))
			row.Amount = roundMoney(item.Amount - amountShare*float64(total-1))
		} else {
			row.Price = priceShare
			row.Amount = amountShare
		}
		out = append(out, row)
	}
	return out
}

func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}
