// Package syncer keeps a relational system of record and a search index in
// step: every write goes to the database first and is mirrored into the
// index, and reads can be served from either side through one service.
package syncer

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"searchsync/internal/cache"
	"searchsync/internal/database/postgresql"
	"searchsync/internal/errors"
	"searchsync/internal/model"
	"searchsync/internal/query"
	"searchsync/internal/search"
)

const cacheTTL = 5 * time.Minute

// Mapper translates a stored entity into its transfer/index document. The
// same document form serves API responses and the search engine.
type Mapper[E any, D any] interface {
	ToDoc(e *E) D
}

// MapperFunc adapts a plain function to the Mapper interface.
type MapperFunc[E any, D any] func(e *E) D

func (f MapperFunc[E, D]) ToDoc(e *E) D { return f(e) }

// Hooks are the per-type validation extension points. A nil hook means the
// operation is always allowed; a non-empty return aborts the operation
// before anything is written.
type Hooks[E any] struct {
	ValidateCreate func(ctx context.Context, e *E) []errors.ValidationError
	ValidateUpdate func(ctx context.Context, e *E) []errors.ValidationError
	ValidateDelete func(ctx context.Context, id uuid.UUID) []errors.ValidationError
}

// Config wires one entity type into the sync service.
type Config[E any, PE interface {
	*E
	model.Entity
}, D model.Doc] struct {
	// TypeName names the entity; it keys the index collection and the
	// event routing.
	TypeName string

	Repo   *postgresql.Repository[E, PE]
	Search search.Gateway
	Mapper Mapper[E, D]
	Hooks  Hooks[E]

	// Schema is the fixed collection mapping for this type's documents.
	Schema search.Schema

	// FreeTextFields are the document fields free-text queries run over on
	// the index path.
	FreeTextFields []string

	// SortFields resolves sort tokens for the relational query path.
	SortFields query.SortFields[D]
	// DefaultSort orders results when no token resolves; applied
	// descending when the caller supplied no sort at all.
	DefaultSort func(a, b D) int
	// IndexSortFields maps sort tokens onto engine field names for the
	// index query path.
	IndexSortFields map[string]string

	// SearchFilter translates a free-text phrase into a relational
	// predicate so the relational query path can approximate the index's
	// free-text matching.
	SearchFilter func(freeText string) postgresql.Filter

	// Cache is optional; when present, Get is read-through and writes
	// invalidate.
	Cache *cache.RedisClient

	Logger *slog.Logger
}

// Query is the structured read request both query paths accept. Terms only
// apply on the index path, Filters only on the relational path; the rest is
// shared.
type Query struct {
	Skip int
	Take int

	// Sorts are tokens like "title" or "-updated_at"; unknown tokens fall
	// back to the default ordering.
	Sorts []string

	FreeText string

	Filters []postgresql.Filter
	Terms   []search.Term
}

// Service synchronizes one entity type across the database and the index.
type Service[E any, PE interface {
	*E
	model.Entity
}, D model.Doc] struct {
	cfg Config[E, PE, D]
	log *slog.Logger
}

func NewService[E any, PE interface {
	*E
	model.Entity
}, D model.Doc](cfg Config[E, PE, D]) *Service[E, PE, D] {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service[E, PE, D]{cfg: cfg, log: log.With("type", cfg.TypeName)}
}

func (s *Service[E, PE, D]) TypeName() string { return s.cfg.TypeName }

// EnsureCollection creates this type's index collection if absent.
func (s *Service[E, PE, D]) EnsureCollection(ctx context.Context) error {
	return s.cfg.Search.EnsureCollection(ctx, s.cfg.TypeName, s.cfg.Schema)
}

// Create validates and persists a new entity, then mirrors it into the
// index. The relational write is the source of truth: if indexing fails the
// document is still committed, and the error reports that so the caller (or
// a reindex event) can repair the index.
func (s *Service[E, PE, D]) Create(ctx context.Context, e *E) (D, error) {
	var zero D
	if s.cfg.Hooks.ValidateCreate != nil {
		if verrs := s.cfg.Hooks.ValidateCreate(ctx, e); len(verrs) > 0 {
			return zero, errors.Validation(verrs)
		}
	}

	if err := s.cfg.Repo.Add(ctx, e); err != nil {
		return zero, errors.New(errors.ErrInternal, "Could not save record", err)
	}

	doc := s.cfg.Mapper.ToDoc(e)
	if err := s.cfg.Search.Upsert(ctx, s.cfg.TypeName, doc); err != nil {
		s.log.Error("Record committed but indexing failed", "id", PE(e).EntityID(), "error", err)
		return doc, errors.New(errors.ErrSearch, "Record saved but not yet searchable", err)
	}
	return doc, nil
}

// Update validates and rewrites an existing entity, refreshes its cache
// entry and re-indexes it. The stored creation timestamp always wins over
// whatever the caller supplied.
func (s *Service[E, PE, D]) Update(ctx context.Context, e *E) (D, error) {
	var zero D
	if s.cfg.Hooks.ValidateUpdate != nil {
		if verrs := s.cfg.Hooks.ValidateUpdate(ctx, e); len(verrs) > 0 {
			return zero, errors.Validation(verrs)
		}
	}

	id := PE(e).EntityID()
	if id == uuid.Nil {
		return zero, errors.New(errors.ErrInvalidInput, "Missing record id", nil)
	}

	if err := s.cfg.Repo.Update(ctx, e); err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return zero, errors.New(errors.ErrNotFound, "Record not found", err)
		}
		return zero, errors.New(errors.ErrInternal, "Could not update record", err)
	}

	// Re-read so the document reflects stored state, in particular the
	// original creation timestamp.
	stored, err := s.cfg.Repo.Get(ctx, id)
	if err != nil {
		return zero, errors.New(errors.ErrInternal, "Could not reload record", err)
	}
	s.invalidate(ctx, id)

	doc := s.cfg.Mapper.ToDoc(stored)
	if err := s.cfg.Search.Upsert(ctx, s.cfg.TypeName, doc); err != nil {
		s.log.Error("Record updated but indexing failed", "id", id, "error", err)
		return doc, errors.New(errors.ErrSearch, "Record saved but not yet searchable", err)
	}
	return doc, nil
}

// Get reads one document by id from the system of record, read-through
// cached when a cache is configured.
func (s *Service[E, PE, D]) Get(ctx context.Context, id uuid.UUID) (D, error) {
	var zero D
	if id == uuid.Nil {
		return zero, errors.New(errors.ErrNotFound, "Record not found", nil)
	}

	if s.cfg.Cache != nil {
		if cached, ok, err := cache.Get[D](s.cfg.Cache, ctx, s.cacheKey(id)); err != nil {
			s.log.Warn("Cache read failed", "id", id, "error", err)
		} else if ok {
			return *cached, nil
		}
	}

	e, err := s.cfg.Repo.Get(ctx, id)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return zero, errors.New(errors.ErrNotFound, "Record not found", err)
		}
		return zero, errors.New(errors.ErrInternal, "Could not load record", err)
	}

	doc := s.cfg.Mapper.ToDoc(e)
	if s.cfg.Cache != nil {
		if err := cache.Set(s.cfg.Cache, ctx, s.cacheKey(id), doc, cacheTTL); err != nil {
			s.log.Warn("Cache write failed", "id", id, "error", err)
		}
	}
	return doc, nil
}

// Delete removes the entity from both stores. The index delete tolerates an
// already-absent document, so retries are safe.
func (s *Service[E, PE, D]) Delete(ctx context.Context, id uuid.UUID) error {
	if s.cfg.Hooks.ValidateDelete != nil {
		if verrs := s.cfg.Hooks.ValidateDelete(ctx, id); len(verrs) > 0 {
			return errors.Validation(verrs)
		}
	}

	if err := s.cfg.Repo.Delete(ctx, id); err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return errors.New(errors.ErrNotFound, "Record not found", err)
		}
		return errors.New(errors.ErrInternal, "Could not delete record", err)
	}
	s.invalidate(ctx, id)

	if err := s.cfg.Search.Delete(ctx, s.cfg.TypeName, id.String()); err != nil {
		s.log.Error("Record deleted but index removal failed", "id", id, "error", err)
		return errors.New(errors.ErrSearch, "Record deleted but may still appear in search", err)
	}
	return nil
}

// Query runs a read against the system of record: structured filters and
// the free-text approximation are pushed into SQL, then the result set is
// counted, sorted and windowed in one place so Count always reflects the
// whole match set.
func (s *Service[E, PE, D]) Query(ctx context.Context, q Query) (query.QueryResult[D], error) {
	// Clone so appending the free-text clause never writes into the
	// caller's backing array.
	filters := slices.Clone(q.Filters)
	if q.FreeText != "" && s.cfg.SearchFilter != nil {
		filters = append(filters, s.cfg.SearchFilter(q.FreeText))
	}

	entities, err := s.cfg.Repo.FindMany(ctx, postgresql.And(filters...))
	if err != nil {
		return query.QueryResult[D]{}, errors.New(errors.ErrInternal, "Could not query records", err)
	}

	docs := make([]D, len(entities))
	for i, e := range entities {
		docs[i] = s.cfg.Mapper.ToDoc(e)
	}

	orders := query.ParseSorts(q.Sorts, s.cfg.SortFields, s.cfg.DefaultSort)
	return query.Paginate(docs, q.Skip, q.Take, orders, nil), nil
}

// QueryByIndex runs the same read shape against the search engine instead:
// exact terms, free text over the configured fields, and the engine's own
// sort and paging. The engine reports the total match count.
func (s *Service[E, PE, D]) QueryByIndex(ctx context.Context, q Query) (query.QueryResult[D], error) {
	req := search.Request{
		Skip:           q.Skip,
		Take:           q.Take,
		Terms:          q.Terms,
		FreeText:       q.FreeText,
		FreeTextFields: s.cfg.FreeTextFields,
	}
	req.SortBy, req.SortDesc = s.indexSort(q.Sorts)

	raw, err := s.cfg.Search.Search(ctx, s.cfg.TypeName, req)
	if err != nil {
		return query.QueryResult[D]{}, err
	}

	docs := make([]D, 0, len(raw.Items))
	for _, item := range raw.Items {
		doc, err := decodeDocument[D](item)
		if err != nil {
			return query.QueryResult[D]{}, errors.New(errors.ErrSearch, "Malformed search document", err)
		}
		docs = append(docs, doc)
	}
	return query.QueryResult[D]{Count: raw.Count, Items: docs}, nil
}

// IndexAll streams every stored entity into the index in one batched write.
func (s *Service[E, PE, D]) IndexAll(ctx context.Context) error {
	entities, err := s.cfg.Repo.List(ctx)
	if err != nil {
		return errors.New(errors.ErrInternal, "Could not list records for indexing", err)
	}
	docs := make([]any, len(entities))
	for i, e := range entities {
		docs[i] = s.cfg.Mapper.ToDoc(e)
	}
	s.log.Info("Bulk indexing records", "count", len(docs))
	return s.cfg.Search.BulkUpsert(ctx, s.cfg.TypeName, docs)
}

// ReindexOne rebuilds a single index document from the system of record. A
// record that no longer exists is logged and skipped, not an error: the
// event that asked for it may simply have outlived the record.
func (s *Service[E, PE, D]) ReindexOne(ctx context.Context, id uuid.UUID) error {
	e, err := s.cfg.Repo.Get(ctx, id)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			s.log.Info("Skipping reindex of missing record", "id", id)
			return nil
		}
		return errors.New(errors.ErrInternal, "Could not load record for reindex", err)
	}
	return s.cfg.Search.UpsertOrReplace(ctx, s.cfg.TypeName, id.String(), s.cfg.Mapper.ToDoc(e))
}

// DeindexOne removes a single document from the index without touching the
// system of record.
func (s *Service[E, PE, D]) DeindexOne(ctx context.Context, id uuid.UUID) error {
	s.invalidate(ctx, id)
	return s.cfg.Search.Delete(ctx, s.cfg.TypeName, id.String())
}

func (s *Service[E, PE, D]) invalidate(ctx context.Context, id uuid.UUID) {
	if s.cfg.Cache == nil {
		return
	}
	if err := cache.Del(s.cfg.Cache, ctx, s.cacheKey(id)); err != nil {
		s.log.Warn("Cache invalidation failed", "id", id, "error", err)
	}
}

func (s *Service[E, PE, D]) cacheKey(id uuid.UUID) string {
	return fmt.Sprintf("searchsync:%s:%s", strings.ToLower(s.cfg.TypeName), id)
}

// indexSort resolves the first sort token against the index field registry.
// An unresolved token falls back to the update timestamp but keeps its
// requested direction, matching ParseSorts on the relational path; an empty
// sort means most-recently-changed-first.
func (s *Service[E, PE, D]) indexSort(tokens []string) (string, bool) {
	for _, token := range tokens {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		desc := strings.HasPrefix(token, "-")
		name := strings.ToLower(strings.TrimPrefix(token, "-"))
		if field, ok := s.cfg.IndexSortFields[name]; ok {
			return field, desc
		}
		return "updated_at", desc
	}
	return "updated_at", true
}

func decodeDocument[D any](raw map[string]any) (D, error) {
	var doc D
	data, err := json.Marshal(raw)
	if err != nil {
		return doc, err
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, err
	}
	return doc, nil
}
