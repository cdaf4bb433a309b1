package catalog

// ProjectEssential reduces a catalog entry to the whitelisted fields embedded
// in billing reports, bounding report size. Empty values are dropped; the
// large free-text fields (instructions, interpretation, notes) are never
// embedded.
func ProjectEssential(t *Test) map[string]any {
	out := make(map[string]any)

	put := func(key, value string) {
		if value != "" {
			out[key] = value
		}
	}

	out["id"] = t.ID
	put("testName", t.TestName)
	put("hmsCode", t.HMSCode)
	put("department", t.Department)
	if t.TestPrice != 0 {
		out["test_price"] = t.TestPrice
	}
	put("specimen", t.Specimen)
	put("container", t.Container)
	put("method", t.Method)
	put("referenceRange", t.ReferenceRange)
	put("resultUnit", t.ResultUnit)
	put("serviceTime", t.ServiceTime)
	put("reportingDays", t.ReportingDays)
	put("cutoffTime", t.CutoffTime)
	if t.Decimals != 0 {
		out["decimals"] = t.Decimals
	}
	put("criticalLow", t.CriticalLow)
	put("criticalHigh", t.CriticalHigh)
	if t.IsActive {
		out["isActive"] = true
	}
	put("shortName", t.ShortName)
	put("displayName", t.DisplayName)
	put("internationalCode", t.InternationalCode)
	put("primarySpecimen", t.PrimarySpecimen)
	put("minSampleQty", t.MinSampleQty)
	put("applicableTo", t.ApplicableTo)
	put("testDoneOn", t.TestDoneOn)

	return out
}
