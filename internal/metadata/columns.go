package metadata

import (
	"errors"
	"fmt"

	"github.com/roach88/dvsdk/internal/query"
)

// LookupValueName returns the Web API property that carries the ID of lookup
// attribute name.
func LookupValueName(name string) string {
	return "_" + name + "_value"
}

// SelectColumns maps a column set onto $select property names for entity e.
//
// An all-columns set returns nil, meaning no $select. Lookup attributes are
// renamed with LookupValueName. Every unknown attribute is reported.
func SelectColumns(e *EntityMetadata, cols query.ColumnSet) ([]string, error) {
	if cols.IsAll() {
		return nil, nil
	}
	names := cols.Columns()
	out := make([]string, 0, len(names))
	var errs []error
	for _, name := range names {
		attr, err := e.Attribute(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if attr.IsLookup() {
			out = append(out, LookupValueName(name))
			continue
		}
		out = append(out, name)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("select columns: %w", errors.Join(errs...))
	}
	return out, nil
}
