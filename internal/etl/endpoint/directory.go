package endpoint

import "github.com/sells-group/ipeds-etl/internal/etl/sentinel"

// directoryColumns is the contract between mapDirectory and
// ipeds_core.directory. Column order here is row order in the mapped Record.
var directoryColumns = []string{
	// primary key: one row per institution-year
	"unitid",
	"year",
	// identity / contact
	"opeid",
	"inst_name",
	"inst_alias",
	"address",
	"city",
	"state_abbr",
	"zip",
	"phone_number",
	"url_school",
	"url_fin_aid",
	"url_application",
	"url_netprice",
	"url_veterans",
	"url_athletes",
	"url_disability_services",
	"ein",
	"duns",
	"ueis",
	"chief_admin_name",
	"chief_admin_title",
	"inst_system_name",
	// geography
	"fips",
	"county_name",
	"county_fips",
	"region",
	"urban_centric_locale",
	"cbsa",
	"cbsa_type",
	"csa",
	"necta",
	"congress_district_id",
	"latitude",
	"longitude",
	// status / attributes
	"inst_status",
	"sector",
	"inst_control",
	"institution_level",
	"inst_category",
	"inst_size",
	"degree_granting",
	"title_iv_indicator",
	"hbcu",
	"tribal_college",
	"land_grant",
	"hospital",
	"medical_degree",
	"open_public",
	"currently_active_ipeds",
	"postsec_public_active",
	"postsec_public_active_title_iv",
	"primarily_postsecondary",
	"offering_highest_degree",
	"offering_highest_level",
	"offering_undergrad",
	"offering_grad",
	"reporting_method",
	"inst_system_flag",
	"comparison_group",
	"comparison_group_custom",
	// mergers / closures
	"newid",
	"date_closed",
	"year_deleted",
	// Carnegie classifications, one column per vintage
	"cc_basic_2000",
	"cc_basic_2010",
	"cc_basic_2015",
	"cc_basic_2018",
	"cc_basic_2021",
	"cc_instruc_undergrad_2010",
	"cc_instruc_undergrad_2015",
	"cc_instruc_undergrad_2018",
	"cc_instruc_undergrad_2021",
	"cc_instruc_grad_2010",
	"cc_instruc_grad_2015",
	"cc_instruc_grad_2018",
	"cc_instruc_grad_2021",
	"cc_undergrad_2010",
	"cc_undergrad_2015",
	"cc_undergrad_2018",
	"cc_undergrad_2021",
	"cc_enroll_2010",
	"cc_enroll_2015",
	"cc_enroll_2018",
	"cc_enroll_2021",
	"cc_size_setting_2010",
	"cc_size_setting_2015",
	"cc_size_setting_2018",
	"cc_size_setting_2021",
}

// Directory describes the institutional directory endpoint.
func Directory() Descriptor {
	return Descriptor{
		Name:       "directory",
		Path:       "ipeds/directory/{year}/",
		RawTable:   "ipeds_raw.directory_raw",
		CoreTable:  "ipeds_core.directory",
		Columns:    directoryColumns,
		PrimaryKey: []string{"unitid", "year"},
		Map:        mapDirectory,
	}
}

// carnegieVintages lists the survey vintages each Carnegie family carries.
// cc_basic additionally has a 2000 vintage.
var carnegieVintages = []string{"2010", "2015", "2018", "2021"}

// mapDirectory shapes one raw directory record. unitid and year are required;
// everything else is nullable after sentinel normalization. Pick fallbacks
// cover field-name drift across survey years.
func mapDirectory(raw map[string]any) (Record, error) {
	unitid := sentinel.Int(raw["unitid"])
	if unitid == nil {
		return nil, &MappingError{Field: "unitid", Reason: "missing or non-numeric"}
	}
	year := sentinel.Int(raw["year"])
	if year == nil {
		return nil, &MappingError{Field: "year", Reason: "missing or non-numeric"}
	}

	rec := Record{
		*unitid,
		*year,
		sentinel.Str(raw["opeid"]),
		sentinel.Str(sentinel.Pick(raw, "inst_name", "institution_name", "instnm", "name")),
		sentinel.Str(raw["inst_alias"]),
		sentinel.Str(raw["address"]),
		sentinel.Str(raw["city"]),
		sentinel.Str(sentinel.Pick(raw, "state_abbr", "stabbr", "state")),
		sentinel.Str(sentinel.Pick(raw, "zip", "zip5", "zip_code")),
		sentinel.Str(sentinel.Pick(raw, "phone_number", "phone")),
		sentinel.Str(sentinel.Pick(raw, "url_school", "website", "web_address")),
		sentinel.Str(raw["url_fin_aid"]),
		sentinel.Str(raw["url_application"]),
		sentinel.Str(raw["url_netprice"]),
		sentinel.Str(raw["url_veterans"]),
		sentinel.Str(raw["url_athletes"]),
		sentinel.Str(raw["url_disability_services"]),
		sentinel.Str(raw["ein"]),
		sentinel.Str(raw["duns"]),
		sentinel.Str(raw["ueis"]),
		sentinel.Str(raw["chief_admin_name"]),
		sentinel.Str(raw["chief_admin_title"]),
		sentinel.Str(raw["inst_system_name"]),
		sentinel.Int(raw["fips"]),
		sentinel.Str(raw["county_name"]),
		sentinel.Int(raw["county_fips"]),
		sentinel.Int(raw["region"]),
		sentinel.Int(sentinel.Pick(raw, "urban_centric_locale", "locale")),
		sentinel.Int(raw["cbsa"]),
		sentinel.Int(raw["cbsa_type"]),
		sentinel.Int(raw["csa"]),
		sentinel.Int(raw["necta"]),
		sentinel.Int(raw["congress_district_id"]),
		sentinel.Float(sentinel.Pick(raw, "latitude", "lat")),
		sentinel.Float(sentinel.Pick(raw, "longitude", "lon", "lng")),
		sentinel.Int(raw["inst_status"]),
		sentinel.Int(sentinel.Pick(raw, "sector", "sector_cd")),
		sentinel.Int(sentinel.Pick(raw, "inst_control", "control")),
		sentinel.Int(sentinel.Pick(raw, "institution_level", "level", "iclevel")),
		sentinel.Int(raw["inst_category"]),
		sentinel.Int(raw["inst_size"]),
		sentinel.Int(raw["degree_granting"]),
		sentinel.Int(raw["title_iv_indicator"]),
		sentinel.Int(raw["hbcu"]),
		sentinel.Int(raw["tribal_college"]),
		sentinel.Int(raw["land_grant"]),
		sentinel.Int(raw["hospital"]),
		sentinel.Int(raw["medical_degree"]),
		sentinel.Int(raw["open_public"]),
		sentinel.Int(raw["currently_active_ipeds"]),
		sentinel.Int(raw["postsec_public_active"]),
		sentinel.Int(raw["postsec_public_active_title_iv"]),
		sentinel.Int(raw["primarily_postsecondary"]),
		sentinel.Int(raw["offering_highest_degree"]),
		sentinel.Int(raw["offering_highest_level"]),
		sentinel.Int(raw["offering_undergrad"]),
		sentinel.Int(raw["offering_grad"]),
		sentinel.Int(raw["reporting_method"]),
		sentinel.Int(raw["inst_system_flag"]),
		sentinel.Int(raw["comparison_group"]),
		sentinel.Int(raw["comparison_group_custom"]),
		sentinel.Int(raw["newid"]),
		sentinel.Str(raw["date_closed"]),
		sentinel.Int(raw["year_deleted"]),
		sentinel.Int(raw["cc_basic_2000"]),
	}
	for _, family := range []string{"cc_basic", "cc_instruc_undergrad", "cc_instruc_grad", "cc_undergrad", "cc_enroll", "cc_size_setting"} {
		for _, vintage := range carnegieVintages {
			rec = append(rec, sentinel.Int(raw[family+"_"+vintage]))
		}
	}
	return rec, nil
}
