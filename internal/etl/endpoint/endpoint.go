// Package endpoint is the catalog of API endpoints the pipeline knows about:
// one descriptor per endpoint binding its API path, store targets, key shape,
// and record mapper. Every other component resolves per-endpoint behavior
// through this catalog rather than hardcoding it.
package endpoint

import (
	"fmt"
	"strconv"
	"strings"
)

// Record is one mapped core row, values aligned with Descriptor.Columns.
type Record []any

// Mapper turns one raw JSON record into a core Record. It applies sentinel
// normalization to every field and returns a *MappingError when a required
// field is absent or ill-shaped, a per-record recoverable failure.
type Mapper func(raw map[string]any) (Record, error)

// Descriptor is the identity of a data source. Immutable, defined once at
// process start.
type Descriptor struct {
	Name       string   // unique short name, e.g. "directory"
	Path       string   // API path template with a {year} segment
	RawTable   string   // append-only landing table, e.g. "ipeds_raw.directory_raw"
	CoreTable  string   // typed table, e.g. "ipeds_core.directory"
	Columns    []string // contract for the mapper's Record layout
	PrimaryKey []string // upsert conflict target; subset of Columns
	Map        Mapper
}

// URL builds the first-page URL for a year. The year is a path segment, not a
// query parameter.
func (d Descriptor) URL(baseURL string, year int) string {
	path := strings.ReplaceAll(d.Path, "{year}", strconv.Itoa(year))
	return strings.TrimRight(baseURL, "/") + "/" + strings.Trim(path, "/") + "/"
}

// PK extracts the primary-key values from a record, in declared key order.
func (d Descriptor) PK(rec Record) []any {
	idx := make(map[string]int, len(d.Columns))
	for i, c := range d.Columns {
		idx[c] = i
	}
	pk := make([]any, len(d.PrimaryKey))
	for i, k := range d.PrimaryKey {
		pk[i] = rec[idx[k]]
	}
	return pk
}

// MappingError reports one unmappable raw record. The record is skipped and
// reported; the run continues.
type MappingError struct {
	Field  string
	Reason string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("endpoint: map field %q: %s", e.Field, e.Reason)
}
