package catalog

import "strings"

// commonNames maps the spellings receptionists actually type to the catalog's
// canonical test names. Checked after the exact strategies, before the
// token-overlap heuristics.
var commonNames = map[string]string{
	"complete blood count":           "CBC",
	"complete blood count (cbc)":     "CBC",
	"full blood count":               "CBC",
	"hemogram":                       "CBC",
	"hba1c":                          "HBA1C",
	"glycated hemoglobin":            "HBA1C",
	"glycosylated hemoglobin":        "HBA1C",
	"lipid panel":                    "LIPID PROFILE",
	"lipid profile test":             "LIPID PROFILE",
	"cholesterol panel":              "LIPID PROFILE",
	"liver function test":            "LFT",
	"liver panel":                    "LFT",
	"lft":                            "LFT",
	"kidney function test":           "RFT",
	"renal function test":            "RFT",
	"renal panel":                    "RFT",
	"thyroid profile":                "THYROID PROFILE",
	"thyroid function test":          "THYROID PROFILE",
	"tft":                            "THYROID PROFILE",
	"blood sugar":                    "GLUCOSE",
	"blood glucose":                  "GLUCOSE",
	"fasting blood sugar":            "GLUCOSE FASTING",
	"fbs":                            "GLUCOSE FASTING",
	"postprandial blood sugar":       "GLUCOSE PP",
	"ppbs":                           "GLUCOSE PP",
	"urine routine":                  "URINE COMPLETE ANALYSIS",
	"urine analysis":                 "URINE COMPLETE ANALYSIS",
	"esr":                            "ESR",
	"erythrocyte sedimentation rate": "ESR",
	"vitamin d":                      "VITAMIN D (25-OH)",
	"vitamin b12":                    "VITAMIN B12",
	"prothrombin time":               "PT INR",
	"pt":                             "PT INR",
	"widal":                          "WIDAL TEST",
	"serum creatinine":               "CREATININE",
	"blood urea":                     "UREA",
	"uric acid test":                 "URIC ACID",
}

// canonicalFor returns the canonical catalog name for a common spelling, or
// "" when the table has no entry.
func canonicalFor(name string) string {
	return commonNames[strings.ToLower(strings.TrimSpace(name))]
}
