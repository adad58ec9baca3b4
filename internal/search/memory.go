package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"searchsync/internal/query"
)

// InMemoryGateway is a thread-safe fake for testing. It stores documents as
// generic maps keyed by collection and document id, and implements Search
// with the same term/free-text/sort semantics the builder compiles for the
// real engine.
type InMemoryGateway struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any
	ensured     map[string]int
}

func NewInMemoryGateway() *InMemoryGateway {
	return &InMemoryGateway{
		collections: make(map[string]map[string]map[string]any),
		ensured:     make(map[string]int),
	}
}

func (g *InMemoryGateway) EnsureCollection(ctx context.Context, typeName string, schema Schema) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := strings.ToLower(typeName)
	g.ensured[key]++
	if g.collections[key] == nil {
		g.collections[key] = make(map[string]map[string]any)
	}
	return nil
}

// EnsureCalls reports how often EnsureCollection ran for a type. Test helper.
func (g *InMemoryGateway) EnsureCalls(typeName string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.ensured[strings.ToLower(typeName)]
}

func (g *InMemoryGateway) DropAllWithPrefix(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.collections = make(map[string]map[string]map[string]any)
	return nil
}

func (g *InMemoryGateway) Upsert(ctx context.Context, typeName string, document any) error {
	doc, err := toMap(document)
	if err != nil {
		return fmt.Errorf("in-memory upsert failed: %w", err)
	}
	id, ok := doc["id"].(string)
	if !ok || id == "" {
		return fmt.Errorf("in-memory upsert failed: document missing 'id' field")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	key := strings.ToLower(typeName)
	if g.collections[key] == nil {
		g.collections[key] = make(map[string]map[string]any)
	}
	g.collections[key][id] = doc
	return nil
}

func (g *InMemoryGateway) BulkUpsert(ctx context.Context, typeName string, documents []any) error {
	for _, doc := range documents {
		if err := g.Upsert(ctx, typeName, doc); err != nil {
			return err
		}
	}
	return nil
}

func (g *InMemoryGateway) Delete(ctx context.Context, typeName string, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if bucket, exists := g.collections[strings.ToLower(typeName)]; exists {
		delete(bucket, id)
	}
	// Real engines return success for deletes of absent ids.
	return nil
}

func (g *InMemoryGateway) Get(ctx context.Context, typeName string, id string) (map[string]any, bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if bucket, exists := g.collections[strings.ToLower(typeName)]; exists {
		doc, found := bucket[id]
		return doc, found, nil
	}
	return nil, false, nil
}

func (g *InMemoryGateway) UpsertOrReplace(ctx context.Context, typeName string, id string, document any) error {
	return g.Upsert(ctx, typeName, document)
}

func (g *InMemoryGateway) Search(ctx context.Context, typeName string, req Request) (query.QueryResult[map[string]any], error) {
	g.mu.RLock()
	docs := make([]map[string]any, 0)
	for _, doc := range g.collections[strings.ToLower(typeName)] {
		docs = append(docs, doc)
	}
	g.mu.RUnlock()

	sortField := strings.TrimSpace(req.SortBy)
	if sortField == "" {
		sortField = defaultSortField
	}
	// Map iteration order is random; tie-break on id so paging is stable.
	orders := []query.Order[map[string]any]{
		{Compare: compareField(sortField), Desc: req.SortDesc},
		{Compare: compareField("id")},
	}

	pred := func(doc map[string]any) bool {
		return matchesTerms(doc, req.Terms) && matchesFreeText(doc, req.FreeText, req.FreeTextFields)
	}
	return query.Paginate(docs, req.Skip, req.Take, orders, pred), nil
}

func (g *InMemoryGateway) Count(ctx context.Context, typeName string) (int64, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if bucket, exists := g.collections[strings.ToLower(typeName)]; exists {
		return int64(len(bucket)), nil
	}
	return 0, nil
}

func (g *InMemoryGateway) HealthCheck(ctx context.Context) error { return nil }

func (g *InMemoryGateway) Close() error { return nil }

// Clear resets the storage (useful for `defer cleanup()`)
func (g *InMemoryGateway) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.collections = make(map[string]map[string]map[string]any)
}

// toMap normalizes any document shape into a generic map via a JSON round
// trip. Inefficient but perfect for tests.
func toMap(document any) (map[string]any, error) {
	if m, ok := document.(map[string]any); ok {
		return m, nil
	}
	b, err := json.Marshal(document)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func matchesTerms(doc map[string]any, terms []Term) bool {
	for _, t := range terms {
		if t.Field == "" {
			continue
		}
		if !valueMatches(doc[t.Field], t.Value) {
			return false
		}
	}
	return true
}

// valueMatches compares a document field against a term value. Slice values
// on either side are treated as membership checks.
func valueMatches(docVal, want any) bool {
	if values, ok := termValues(want); ok {
		for _, v := range values {
			if valueMatches(docVal, strings.Trim(v, "`")) {
				return true
			}
		}
		return false
	}
	if docSlice, ok := docVal.([]any); ok {
		for _, dv := range docSlice {
			if valueMatches(dv, want) {
				return true
			}
		}
		return false
	}
	return fmt.Sprintf("%v", docVal) == fmt.Sprintf("%v", want)
}

func matchesFreeText(doc map[string]any, freeText string, fields []string) bool {
	tokens := strings.Fields(strings.ToLower(freeText))
	if len(tokens) == 0 {
		return true
	}
	for _, token := range tokens {
		found := false
		for _, field := range fields {
			if strings.Contains(strings.ToLower(fmt.Sprintf("%v", doc[field])), token) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// compareField orders documents by one field, numbers numerically and
// everything else by string form.
func compareField(field string) func(a, b map[string]any) int {
	return func(a, b map[string]any) int {
		av, bv := a[field], b[field]
		af, aok := av.(float64)
		bf, bok := bv.(float64)
		if aok && bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
		return strings.Compare(fmt.Sprintf("%v", av), fmt.Sprintf("%v", bv))
	}
}
