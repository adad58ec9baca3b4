package query

import (
	"slices"
	"strings"
)

// QueryResult pairs a page of items with the total match count. Count always
// reflects the full filtered set, ignoring the pagination window.
type QueryResult[T any] struct {
	Count int64 `json:"count"`
	Items []T   `json:"items"`
}

// Order is one clause of a composite ordering.
type Order[T any] struct {
	Compare func(a, b T) int
	Desc    bool
}

// SortFields maps a lowercase sort token to its comparator.
type SortFields[T any] map[string]func(a, b T) int

// Paginate filters, counts, sorts and windows a sequence. The predicate is
// applied first; Count covers the whole filtered set; orders are applied
// left to right with the first clause as the primary key and later clauses
// as tie-breakers, each with its own direction. The source slice is never
// mutated.
func Paginate[T any](src []T, skip, take int, orders []Order[T], pred func(T) bool) QueryResult[T] {
	var filtered []T
	if pred == nil {
		filtered = slices.Clone(src)
	} else {
		filtered = make([]T, 0, len(src))
		for _, item := range src {
			if pred(item) {
				filtered = append(filtered, item)
			}
		}
	}

	if len(orders) > 0 {
		slices.SortStableFunc(filtered, func(a, b T) int {
			for _, o := range orders {
				c := o.Compare(a, b)
				if o.Desc {
					c = -c
				}
				if c != 0 {
					return c
				}
			}
			return 0
		})
	}

	count := int64(len(filtered))
	if skip < 0 {
		skip = 0
	}
	if take < 0 {
		take = 0
	}
	if skip > len(filtered) {
		skip = len(filtered)
	}
	end := skip + take
	if end > len(filtered) {
		end = len(filtered)
	}
	return QueryResult[T]{Count: count, Items: filtered[skip:end]}
}

// ParseSorts resolves sort tokens ("field" ascending, "-field" descending)
// against the field registry. Unresolvable tokens use the fallback
// comparator; no tokens at all means "most recently changed first", i.e.
// the fallback descending.
func ParseSorts[T any](tokens []string, fields SortFields[T], fallback func(a, b T) int) []Order[T] {
	orders := make([]Order[T], 0, len(tokens))
	for _, token := range tokens {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		desc := strings.HasPrefix(token, "-")
		name := strings.ToLower(strings.TrimPrefix(token, "-"))
		compare, ok := fields[name]
		if !ok {
			compare = fallback
		}
		orders = append(orders, Order[T]{Compare: compare, Desc: desc})
	}
	if len(orders) == 0 {
		orders = append(orders, Order[T]{Compare: fallback, Desc: true})
	}
	return orders
}
