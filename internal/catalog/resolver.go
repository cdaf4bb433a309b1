package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Resolver matches billing line items against the catalog.
type Resolver struct {
	store  *Store
	logger *slog.Logger
}

func NewResolver(store *Store, logger *slog.Logger) *Resolver {
	return &Resolver{store: store, logger: logger}
}

// looksLikeProfileID reports whether a test_id refers to a profile. Profiles
// carry UUIDs while master tests carry small integers; the length/dash check
// mirrors how the billing UI distinguishes them.
func looksLikeProfileID(testID string) bool {
	return len(testID) > 10 && strings.Contains(testID, "-")
}

// Resolve matches each item, returning the enriched hits and the identifiers
// that matched nothing. A miss is never an error: the report carries
// unmatched names for correction.
func (r *Resolver) Resolve(ctx context.Context, items []BillingItem) ([]ResolvedItem, []string, error) {
	tests, err := r.store.Tests(ctx)
	if err != nil {
		return nil, nil, err
	}
	enhanced, err := r.store.EnhancedTests(ctx)
	if err != nil {
		return nil, nil, err
	}

	var matched []ResolvedItem
	var unmatched []string

	for _, item := range items {
		resolved, ok := r.resolveItem(ctx, item, tests, enhanced)
		if !ok {
			if item.TestID != "" {
				unmatched = append(unmatched, fmt.Sprintf("id:%s", item.TestID))
			} else {
				unmatched = append(unmatched, item.TestName)
			}
			r.logger.Warn("billing item did not match any catalog entry",
				"test_id", item.TestID, "test_name", item.TestName)
			continue
		}
		matched = append(matched, *resolved)
	}
	return matched, unmatched, nil
}

func (r *Resolver) resolveItem(ctx context.Context, item BillingItem, tests, enhanced []Test) (*ResolvedItem, bool) {
	// 1. Profile lookup for UUID-shaped ids.
	if item.TestID != "" && looksLikeProfileID(item.TestID) {
		profile, err := r.store.FindProfile(ctx, item.TestID)
		if err == nil {
			return r.resolveProfile(ctx, item, profile), true
		}
	}

	// 2. Direct id lookup: test master first, enhanced superset as fallback.
	if item.TestID != "" {
		var id int
		if _, err := fmt.Sscanf(item.TestID, "%d", &id); err == nil {
			if t := findByID(tests, id); t != nil {
				return newResolved(item, t), true
			}
			if t := findByID(enhanced, id); t != nil {
				return newResolved(item, t), true
			}
		}
		return nil, false
	}

	// 3. Name-matching pipeline against the test master; first hit wins.
	if t := matchByName(tests, item.TestName); t != nil {
		return newResolved(item, t), true
	}
	return nil, false
}

// matchByName runs the name strategies in priority order.
func matchByName(tests []Test, name string) *Test {
	if name == "" {
		return nil
	}

	// a. exact
	for i := range tests {
		if tests[i].TestName == name {
			return &tests[i]
		}
	}
	// b. case-insensitive
	for i := range tests {
		if strings.EqualFold(tests[i].TestName, name) {
			return &tests[i]
		}
	}
	// c. trimmed
	trimmed := strings.TrimSpace(name)
	for i := range tests {
		if strings.EqualFold(strings.TrimSpace(tests[i].TestName), trimmed) {
			return &tests[i]
		}
	}
	// d. common-name mapping
	if canonical := canonicalFor(name); canonical != "" {
		for i := range tests {
			if strings.EqualFold(tests[i].TestName, canonical) {
				return &tests[i]
			}
		}
	}
	// e. partial / word-overlap
	if t := matchByTokens(tests, name); t != nil {
		return t
	}
	// f. HMS code equality
	for i := range tests {
		if tests[i].HMSCode != "" && strings.EqualFold(tests[i].HMSCode, trimmed) {
			return &tests[i]
		}
	}
	// g. fuzzy: strip parentheses and dashes, compare lowercase
	fuzzy := fuzzyKey(name)
	for i := range tests {
		if fuzzyKey(tests[i].TestName) == fuzzy {
			return &tests[i]
		}
	}
	return nil
}

// matchByTokens accepts a candidate when at least two significant words
// intersect, when a short input (<=2 words) shares at least one, or when one
// name contains the other.
func matchByTokens(tests []Test, name string) *Test {
	inputTokens := significantTokens(name)
	lowerName := strings.ToLower(strings.TrimSpace(name))
	for i := range tests {
		candidate := strings.ToLower(tests[i].TestName)
		if lowerName != "" && (strings.Contains(candidate, lowerName) || strings.Contains(lowerName, candidate)) {
			return &tests[i]
		}
		if len(inputTokens) == 0 {
			continue
		}
		overlap := 0
		for _, token := range significantTokens(tests[i].TestName) {
			for _, in := range inputTokens {
				if token == in {
					overlap++
				}
			}
		}
		if overlap >= 2 || (len(inputTokens) <= 2 && overlap >= 1) {
			return &tests[i]
		}
	}
	return nil
}

func significantTokens(name string) []string {
	var out []string
	for _, token := range strings.Fields(strings.ToLower(name)) {
		if len(token) >= 3 {
			out = append(out, token)
		}
	}
	return out
}

func fuzzyKey(name string) string {
	replacer := strings.NewReplacer("(", "", ")", "", "-", "")
	return strings.ToLower(strings.TrimSpace(replacer.Replace(name)))
}

func findByID(tests []Test, id int) *Test {
	for i := range tests {
		if tests[i].ID == id {
			return &tests[i]
		}
	}
	return nil
}

// newResolved enriches a line item with the projected catalog block and the
// flattened clinical fields.
func newResolved(item BillingItem, t *Test) *ResolvedItem {
	return &ResolvedItem{
		ID:             item.ID,
		TestID:         item.TestID,
		TestName:       t.TestName,
		Quantity:       item.Quantity,
		Price:          item.Price,
		Amount:         item.Amount,
		TestMasterID:   t.ID,
		TestMasterData: ProjectEssential(t),
		Specimen:       t.Specimen,
		Container:      t.Container,
		Method:         t.Method,
		ReferenceRange: t.ReferenceRange,
		ResultUnit:     t.ResultUnit,
		Decimals:       t.Decimals,
		CriticalLow:    t.CriticalLow,
		CriticalHigh:   t.CriticalHigh,
		HMSCode:        t.HMSCode,
		Department:     t.Department,
		ServiceTime:    t.ServiceTime,
		ReportingDays:  t.ReportingDays,
	}
}

// resolveProfile enriches a profile line item with clinical data aggregated
// across its sub-tests: specimens, containers and methods are unioned;
// reference ranges are concatenated per sub-test ("name: range").
func (r *Resolver) resolveProfile(ctx context.Context, item BillingItem, profile *Profile) *ResolvedItem {
	resolved := &ResolvedItem{
		ID:          item.ID,
		TestID:      item.TestID,
		TestName:    profile.TestProfile,
		Quantity:    item.Quantity,
		Price:       item.Price,
		Amount:      item.Amount,
		ProfileType: true,
		ProfileID:   profile.ID,
	}

	var specimens, containers, methods, ranges []string
	for _, sub := range profile.TestItems {
		t, err := r.store.FindTestByID(ctx, sub.TestID)
		if err != nil {
			continue
		}
		specimens = appendUnique(specimens, t.Specimen)
		containers = appendUnique(containers, t.Container)
		methods = appendUnique(methods, t.Method)
		if t.ReferenceRange != "" {
			ranges = append(ranges, fmt.Sprintf("%s: %s", t.TestName, t.ReferenceRange))
		}
	}
	resolved.Specimen = strings.Join(specimens, ", ")
	resolved.Container = strings.Join(containers, ", ")
	resolved.Method = strings.Join(methods, ", ")
	resolved.ReferenceRange = strings.Join(ranges, "; ")
	return resolved
}

func appendUnique(list []string, v string) []string {
	if v == "" {
		return list
	}
	for _, existing := range list {
		if strings.EqualFold(existing, v) {
			return list
		}
	}
	return append(list, v)
}
