package postgresql

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"searchsync/internal/model"
)

// Table describes how an entity maps onto its relation. Columns lists the
// payload columns only; id and the audit timestamps are owned by the
// repository itself.
type Table[E any] struct {
	Name    string
	Columns []string
	Values  func(e *E) []any
}

// Filter is a structured predicate: a WHERE fragment with $1-based
// placeholders and its arguments.
type Filter struct {
	Where string
	Args  []any
}

var placeholderPattern = regexp.MustCompile(`\$(\d+)`)

// And combines filters into a single conjunction, renumbering the
// placeholders of later fragments. Empty fragments are skipped.
func And(filters ...Filter) Filter {
	var (
		clauses []string
		args    []any
	)
	for _, f := range filters {
		where := strings.TrimSpace(f.Where)
		if where == "" {
			continue
		}
		offset := len(args)
		where = placeholderPattern.ReplaceAllStringFunc(where, func(m string) string {
			n, _ := strconv.Atoi(m[1:])
			return "$" + strconv.Itoa(n+offset)
		})
		clauses = append(clauses, "("+where+")")
		args = append(args, f.Args...)
	}
	if len(clauses) == 0 {
		return Filter{}
	}
	return Filter{Where: strings.Join(clauses, " AND "), Args: args}
}

// Repository is a generic gateway over the system of record for any entity
// with built-in identity and audit timestamps. It owns the timestamp
// stamping policy: everything written through it is UTC.
type Repository[E any, PE interface {
	*E
	model.Entity
}] struct {
	db    DB
	table Table[E]
	now   func() time.Time
}

func NewRepository[E any, PE interface {
	*E
	model.Entity
}](db DB, table Table[E]) *Repository[E, PE] {
	return &Repository[E, PE]{db: db, table: table, now: time.Now}
}

func (r *Repository[E, PE]) columns() string {
	all := append([]string{"id", "created_at", "updated_at"}, r.table.Columns...)
	return strings.Join(all, ", ")
}

// Get returns the entity by id; pgx.ErrNoRows when absent.
func (r *Repository[E, PE]) Get(ctx context.Context, id uuid.UUID) (*E, error) {
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", r.columns(), r.table.Name)
	return r.one(ctx, sql, id)
}

// GetForUpdate locks the row for the duration of the surrounding
// transaction. Use Get for read paths and for producing index documents.
func (r *Repository[E, PE]) GetForUpdate(ctx context.Context, id uuid.UUID) (*E, error) {
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1 FOR UPDATE", r.columns(), r.table.Name)
	return r.one(ctx, sql, id)
}

// FindOne returns the first entity matching the filter; pgx.ErrNoRows when
// none match. An empty filter matches everything.
func (r *Repository[E, PE]) FindOne(ctx context.Context, filter Filter) (*E, error) {
	sql := fmt.Sprintf("SELECT %s FROM %s", r.columns(), r.table.Name)
	if strings.TrimSpace(filter.Where) != "" {
		sql += " WHERE " + filter.Where
	}
	sql += " LIMIT 1"
	return r.one(ctx, sql, filter.Args...)
}

// FindMany returns every entity matching the filter; an empty filter
// matches everything.
func (r *Repository[E, PE]) FindMany(ctx context.Context, filter Filter) ([]*E, error) {
	sql := fmt.Sprintf("SELECT %s FROM %s", r.columns(), r.table.Name)
	if strings.TrimSpace(filter.Where) != "" {
		sql += " WHERE " + filter.Where
	}
	rows, err := r.db.Query(ctx, sql, filter.Args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", r.table.Name, err)
	}
	entities, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[E])
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", r.table.Name, err)
	}
	for _, e := range entities {
		PE(e).Normalize()
	}
	return entities, nil
}

// List streams every row of the relation; used by full reindex.
func (r *Repository[E, PE]) List(ctx context.Context) ([]*E, error) {
	return r.FindMany(ctx, Filter{})
}

// Add inserts the entity, assigning an id when the caller supplied none and
// stamping both audit timestamps to the current UTC instant.
func (r *Repository[E, PE]) Add(ctx context.Context, e *E) error {
	ent := PE(e)
	if ent.EntityID() == uuid.Nil {
		ent.SetEntityID(uuid.New())
	}
	ent.Stamp(r.now())

	cols := append([]string{"id", "created_at", "updated_at"}, r.table.Columns...)
	args := append([]any{ent.EntityID(), ent.Created(), ent.Updated()}, r.table.Values(e)...)
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		r.table.Name, strings.Join(cols, ", "), placeholders(len(cols)))

	if _, err := r.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert %s: %w", r.table.Name, err)
	}
	return nil
}

// Update rewrites the payload columns and the update timestamp. created_at
// is deliberately absent from the SET list so a caller-supplied value can
// never overwrite it. pgx.ErrNoRows when the id does not exist.
func (r *Repository[E, PE]) Update(ctx context.Context, e *E) error {
	ent := PE(e)
	ent.Touch(r.now())

	set := []string{"updated_at = $2"}
	for i, col := range r.table.Columns {
		set = append(set, fmt.Sprintf("%s = $%d", col, i+3))
	}
	args := append([]any{ent.EntityID(), ent.Updated()}, r.table.Values(e)...)
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE id = $1", r.table.Name, strings.Join(set, ", "))

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", r.table.Name, err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Delete removes the row by id; pgx.ErrNoRows when it did not exist.
func (r *Repository[E, PE]) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", r.table.Name), id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", r.table.Name, err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// DeleteWhere removes every row matching the filter. An empty filter
// empties the relation.
func (r *Repository[E, PE]) DeleteWhere(ctx context.Context, filter Filter) error {
	sql := fmt.Sprintf("DELETE FROM %s", r.table.Name)
	if strings.TrimSpace(filter.Where) != "" {
		sql += " WHERE " + filter.Where
	}
	if _, err := r.db.Exec(ctx, sql, filter.Args...); err != nil {
		return fmt.Errorf("delete %s: %w", r.table.Name, err)
	}
	return nil
}

func (r *Repository[E, PE]) one(ctx context.Context, sql string, args ...any) (*E, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", r.table.Name, err)
	}
	e, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[E])
	if err != nil {
		return nil, err
	}
	PE(e).Normalize()
	return e, nil
}

func placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "$" + strconv.Itoa(i+1)
	}
	return strings.Join(parts, ", ")
}
