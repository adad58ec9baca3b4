package search

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/typesense/typesense-go/typesense/api"
	"github.com/typesense/typesense-go/typesense/api/pointer"
)

// defaultSortField is the fallback when a request names no sort field.
const defaultSortField = "updated_at"

// BuildParams translates a structured Request into native Typesense search
// parameters. Pure; never talks to the engine.
func BuildParams(req Request) *api.SearchCollectionParams {
	params := &api.SearchCollectionParams{
		Q:       "*",
		QueryBy: strings.Join(req.FreeTextFields, ","),
	}

	if q := strings.TrimSpace(req.FreeText); q != "" {
		params.Q = q
		// Every token is required: "red shoes" matches documents containing
		// both, not either.
		params.DropTokensThreshold = pointer.Int(0)
	}

	if filter := buildFilter(req.Terms); filter != "" {
		params.FilterBy = pointer.String(filter)
	}

	sortField := strings.TrimSpace(req.SortBy)
	if sortField == "" {
		sortField = defaultSortField
	}
	direction := "asc"
	if req.SortDesc {
		direction = "desc"
	}
	params.SortBy = pointer.String(sortField + ":" + direction)

	if req.Skip > 0 {
		params.Offset = pointer.Int(req.Skip)
	}
	if req.Take > 0 {
		params.Limit = pointer.Int(req.Take)
	}
	return params
}

// buildFilter renders the equality terms as a filter_by expression, all
// clauses ANDed. Multi-valued terms become set membership.
func buildFilter(terms []Term) string {
	clauses := make([]string, 0, len(terms))
	for _, t := range terms {
		if t.Field == "" {
			continue
		}
		if values, ok := termValues(t.Value); ok {
			clauses = append(clauses, fmt.Sprintf("%s:=[%s]", t.Field, strings.Join(values, ",")))
		} else {
			clauses = append(clauses, fmt.Sprintf("%s:=%s", t.Field, filterValue(t.Value)))
		}
	}
	return strings.Join(clauses, " && ")
}

// termValues reports whether the term value is a multi-valued collection
// and, if so, renders its members.
func termValues(v any) ([]string, bool) {
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	values := make([]string, rv.Len())
	for i := range values {
		values[i] = filterValue(rv.Index(i).Interface())
	}
	return values, true
}

func filterValue(v any) string {
	if s, ok := v.(string); ok {
		// Backticks keep values with spaces or special characters intact.
		return "`" + s + "`"
	}
	return fmt.Sprintf("%v", v)
}
