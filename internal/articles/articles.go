// Package articles is the first entity type wired through the sync
// service: a small publishable document with tags and a workflow status.
package articles

import (
	"context"
	"log/slog"
	"unicode/utf8"

	"searchsync/internal/cache"
	"searchsync/internal/database/postgresql"
	"searchsync/internal/errors"
	"searchsync/internal/model"
	"searchsync/internal/query"
	"searchsync/internal/search"
	"searchsync/internal/syncer"
)

const TypeName = "Article"

const maxTitleLength = 200

// Article is the stored form.
type Article struct {
	model.Model

	Title  string   `db:"title"`
	Body   string   `db:"body"`
	Tags   []string `db:"tags"`
	Status string   `db:"status"`
}

// ArticleDoc is the transfer and index form.
type ArticleDoc struct {
	model.Document

	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Tags   []string `json:"tags"`
	Status string   `json:"status"`
}

var table = postgresql.Table[Article]{
	Name:    "articles",
	Columns: []string{"title", "body", "tags", "status"},
	Values: func(a *Article) []any {
		return []any{a.Title, a.Body, a.Tags, a.Status}
	},
}

// schema keeps the timestamps as sortable integers and the discrete fields
// facetable; title and body carry the free-text load.
var schema = search.Schema{
	Fields: []search.Field{
		{Name: "id", Type: "string"},
		{Name: "title", Type: "string"},
		{Name: "body", Type: "string"},
		{Name: "tags", Type: "string[]", Facet: true},
		{Name: "status", Type: "string", Facet: true},
		{Name: "created_at", Type: "int64", Sort: true},
		{Name: "updated_at", Type: "int64", Sort: true},
	},
	DefaultSortingField: "updated_at",
}

func toDoc(a *Article) ArticleDoc {
	return ArticleDoc{
		Document: model.Document{
			ID:        a.ID,
			CreatedAt: model.NewUnixTime(a.CreatedAt),
			UpdatedAt: model.NewUnixTime(a.UpdatedAt),
		},
		Title:  a.Title,
		Body:   a.Body,
		Tags:   a.Tags,
		Status: a.Status,
	}
}

func validateArticle(_ context.Context, a *Article) []errors.ValidationError {
	var verrs []errors.ValidationError
	if a.Title == "" {
		verrs = append(verrs, errors.ValidationError{Field: "title", Message: "Title is required"})
	}
	if utf8.RuneCountInString(a.Title) > maxTitleLength {
		verrs = append(verrs, errors.ValidationError{Field: "title", Message: "Title must be at most 200 characters"})
	}
	return verrs
}

var sortFields = query.SortFields[ArticleDoc]{
	"title": func(a, b ArticleDoc) int {
		switch {
		case a.Title < b.Title:
			return -1
		case a.Title > b.Title:
			return 1
		}
		return 0
	},
	"created_at": func(a, b ArticleDoc) int {
		return a.CreatedAt.Compare(b.CreatedAt.Time)
	},
	"updated_at": func(a, b ArticleDoc) int {
		return a.UpdatedAt.Compare(b.UpdatedAt.Time)
	},
}

var indexSortFields = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
}

// Service synchronizes articles across the database and the index.
type Service = syncer.Service[Article, *Article, ArticleDoc]

func NewService(db postgresql.DB, gw search.Gateway, rdb *cache.RedisClient, logger *slog.Logger) *Service {
	return syncer.NewService(syncer.Config[Article, *Article, ArticleDoc]{
		TypeName: TypeName,
		Repo:     postgresql.NewRepository[Article, *Article](db, table),
		Search:   gw,
		Mapper:   syncer.MapperFunc[Article, ArticleDoc](toDoc),
		Hooks: syncer.Hooks[Article]{
			ValidateCreate: validateArticle,
			ValidateUpdate: validateArticle,
		},
		Schema:         schema,
		FreeTextFields: []string{"title", "body"},
		SortFields:     sortFields,
		DefaultSort: func(a, b ArticleDoc) int {
			return a.UpdatedAt.Compare(b.UpdatedAt.Time)
		},
		IndexSortFields: indexSortFields,
		SearchFilter: func(freeText string) postgresql.Filter {
			return postgresql.Filter{
				Where: "(title ILIKE '%' || $1 || '%' OR body ILIKE '%' || $1 || '%')",
				Args:  []any{freeText},
			}
		},
		Cache:  rdb,
		Logger: logger,
	})
}
