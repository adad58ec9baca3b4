package search

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/typesense/typesense-go/typesense"
	"github.com/typesense/typesense-go/typesense/api"
	"github.com/typesense/typesense-go/typesense/api/pointer"

	"searchsync/internal/errors"
	"searchsync/internal/query"
)

// Config is read once at startup; the client and its prefix are immutable
// afterwards.
type Config struct {
	URL    string
	APIKey string
	Prefix string
}

// Client is the Typesense-backed Gateway.
type Client struct {
	ts     *typesense.Client
	prefix string
}

func NewClient(cfg Config) *Client {
	ts := typesense.NewClient(
		typesense.WithServer(cfg.URL),
		typesense.WithAPIKey(cfg.APIKey),
		typesense.WithConnectionTimeout(5*time.Second),
	)
	return &Client{ts: ts, prefix: cfg.Prefix}
}

// CollectionFor derives the collection name for an entity type:
// prefix + "-" + lowercase(typeName).
func (c *Client) CollectionFor(typeName string) string {
	return c.prefix + "-" + strings.ToLower(typeName)
}

func (c *Client) EnsureCollection(ctx context.Context, typeName string, schema Schema) error {
	name := c.CollectionFor(typeName)
	if _, err := c.ts.Collection(name).Retrieve(ctx); err == nil {
		return nil
	}
	if _, err := c.ts.Collections().Create(ctx, toCollectionSchema(name, schema)); err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	return nil
}

func (c *Client) DropAllWithPrefix(ctx context.Context) error {
	collections, err := c.ts.Collections().Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	for _, col := range collections {
		if !strings.HasPrefix(col.Name, c.prefix+"-") {
			continue
		}
		if _, err := c.ts.Collection(col.Name).Delete(ctx); err != nil && !isNotFound(err) {
			return fmt.Errorf("drop collection %s: %w", col.Name, err)
		}
	}
	return nil
}

func (c *Client) Upsert(ctx context.Context, typeName string, document any) error {
	if _, err := c.ts.Collection(c.CollectionFor(typeName)).Documents().Upsert(ctx, document); err != nil {
		return fmt.Errorf("typesense upsert failed: %w", err)
	}
	return nil
}

func (c *Client) BulkUpsert(ctx context.Context, typeName string, documents []any) error {
	if len(documents) == 0 {
		return nil
	}
	name := c.CollectionFor(typeName)
	params := &api.ImportDocumentsParams{Action: pointer.String("upsert")}
	responses, err := c.ts.Collection(name).Documents().Import(ctx, documents, params)
	if err != nil {
		return fmt.Errorf("typesense bulk upsert failed: %w", err)
	}
	for _, r := range responses {
		if !r.Success {
			return fmt.Errorf("typesense bulk upsert rejected a document: %s", r.Error)
		}
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, typeName string, id string) error {
	_, err := c.ts.Collection(c.CollectionFor(typeName)).Document(id).Delete(ctx)
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("typesense delete failed: %w", err)
	}
	return nil
}

func (c *Client) Get(ctx context.Context, typeName string, id string) (map[string]any, bool, error) {
	document, err := c.ts.Collection(c.CollectionFor(typeName)).Document(id).Retrieve(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("typesense get failed: %w", err)
	}
	return document, true, nil
}

func (c *Client) UpsertOrReplace(ctx context.Context, typeName string, id string, document any) error {
	_, found, err := c.Get(ctx, typeName, id)
	if err != nil {
		return err
	}
	if !found {
		return c.Upsert(ctx, typeName, document)
	}
	if _, err := c.ts.Collection(c.CollectionFor(typeName)).Document(id).Update(ctx, document); err != nil {
		return fmt.Errorf("typesense update failed: %w", err)
	}
	return nil
}

func (c *Client) Search(ctx context.Context, typeName string, req Request) (query.QueryResult[map[string]any], error) {
	var out query.QueryResult[map[string]any]

	res, err := c.ts.Collection(c.CollectionFor(typeName)).Documents().Search(ctx, BuildParams(req))
	if err != nil {
		// The engine's diagnostic payload rides along in Internal; never
		// degrade to a partial or empty result.
		return out, errors.New(errors.ErrSearch, "Search query failed", err)
	}

	if res.Found != nil {
		out.Count = int64(*res.Found)
	}
	if res.Hits != nil {
		out.Items = make([]map[string]any, 0, len(*res.Hits))
		for _, hit := range *res.Hits {
			if hit.Document != nil {
				out.Items = append(out.Items, *hit.Document)
			}
		}
	}
	return out, nil
}

func (c *Client) Count(ctx context.Context, typeName string) (int64, error) {
	resp, err := c.ts.Collection(c.CollectionFor(typeName)).Retrieve(ctx)
	if err != nil {
		return 0, fmt.Errorf("typesense count failed: %w", err)
	}
	return *resp.NumDocuments, nil
}

func (c *Client) HealthCheck(ctx context.Context) error {
	healthy, err := c.ts.Health(ctx, 5*time.Second)
	if err != nil {
		return fmt.Errorf("typesense health check failed: %w", err)
	}
	if !healthy {
		return fmt.Errorf("typesense is unhealthy")
	}
	return nil
}

func (c *Client) Close() error {
	// The HTTP-based client does not require explicit closure.
	return nil
}

func toCollectionSchema(name string, schema Schema) *api.CollectionSchema {
	fields := make([]api.Field, 0, len(schema.Fields))
	for _, f := range schema.Fields {
		field := api.Field{Name: f.Name, Type: f.Type}
		if f.Facet {
			field.Facet = pointer.True()
		}
		if f.Sort {
			field.Sort = pointer.True()
		}
		if f.Optional {
			field.Optional = pointer.True()
		}
		fields = append(fields, field)
	}
	cs := &api.CollectionSchema{Name: name, Fields: fields}
	if schema.DefaultSortingField != "" {
		cs.DefaultSortingField = pointer.String(schema.DefaultSortingField)
	}
	return cs
}

func isNotFound(err error) bool {
	var httpErr *typesense.HTTPError
	return stderrors.As(err, &httpErr) && httpErr.Status == http.StatusNotFound
}
