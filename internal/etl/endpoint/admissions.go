package endpoint

import "github.com/sells-group/ipeds-etl/internal/etl/sentinel"

var admissionsColumns = []string{
	"unitid",
	"year",
	"number_applied",
	"number_admitted",
	"number_enrolled_ft",
	"number_enrolled_pt",
	"sat_crit_read_25",
	"sat_crit_read_75",
	"sat_math_25",
	"sat_math_75",
	"act_composite_25",
	"act_composite_75",
}

// Admissions describes the admissions-enrollment endpoint.
func Admissions() Descriptor {
	return Descriptor{
		Name:       "admissions",
		Path:       "ipeds/admissions-enrollment/{year}/",
		RawTable:   "ipeds_raw.admissions_raw",
		CoreTable:  "ipeds_core.admissions",
		Columns:    admissionsColumns,
		PrimaryKey: []string{"unitid", "year"},
		Map:        mapAdmissions,
	}
}

func mapAdmissions(raw map[string]any) (Record, error) {
	unitid := sentinel.Int(raw["unitid"])
	if unitid == nil {
		return nil, &MappingError{Field: "unitid", Reason: "missing or non-numeric"}
	}
	year := sentinel.Int(raw["year"])
	if year == nil {
		return nil, &MappingError{Field: "year", Reason: "missing or non-numeric"}
	}

	return Record{
		*unitid,
		*year,
		sentinel.Int(sentinel.Pick(raw, "number_applied", "applcn")),
		sentinel.Int(sentinel.Pick(raw, "number_admitted", "admssn")),
		sentinel.Int(sentinel.Pick(raw, "number_enrolled_ft", "enrlft")),
		sentinel.Int(sentinel.Pick(raw, "number_enrolled_pt", "enrlpt")),
		sentinel.Int(raw["sat_crit_read_25"]),
		sentinel.Int(raw["sat_crit_read_75"]),
		sentinel.Int(raw["sat_math_25"]),
		sentinel.Int(raw["sat_math_75"]),
		sentinel.Int(raw["act_composite_25"]),
		sentinel.Int(raw["act_composite_75"]),
	}, nil
}
