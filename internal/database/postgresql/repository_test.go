package postgresql_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"searchsync/internal/database/postgresql"
	"searchsync/internal/model"
	"searchsync/internal/testutil"
)

type widget struct {
	model.Model
	Name string `db:"name"`
}

var widgetTable = postgresql.Table[widget]{
	Name:    "widgets",
	Columns: []string{"name"},
	Values:  func(w *widget) []any { return []any{w.Name} },
}

var widgetCols = []string{"id", "created_at", "updated_at", "name"}

func TestAdd_AssignsIdentityAndStampsUTC(t *testing.T) {
	mockPool := testutil.NewMockDB(t)
	repo := postgresql.NewRepository[widget, *widget](mockPool, widgetTable)

	mockPool.ExpectExec(regexp.QuoteMeta(
		`INSERT INTO widgets (id, created_at, updated_at, name) VALUES ($1, $2, $3, $4)`,
	)).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "gizmo").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	w := &widget{Name: "gizmo"}
	require.NoError(t, repo.Add(context.Background(), w))

	assert.NotEqual(t, uuid.Nil, w.ID, "an id must be assigned")
	assert.Equal(t, time.UTC, w.CreatedAt.Location(), "timestamps must be stored as UTC")
	assert.True(t, w.CreatedAt.Equal(w.UpdatedAt), "a new record's timestamps must match")
}

func TestAdd_KeepsCallerSuppliedID(t *testing.T) {
	mockPool := testutil.NewMockDB(t)
	repo := postgresql.NewRepository[widget, *widget](mockPool, widgetTable)

	id := uuid.New()
	mockPool.ExpectExec(regexp.QuoteMeta(`INSERT INTO widgets`)).
		WithArgs(id, pgxmock.AnyArg(), pgxmock.AnyArg(), "gizmo").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	w := &widget{Model: model.Model{ID: id}, Name: "gizmo"}
	require.NoError(t, repo.Add(context.Background(), w))
	assert.Equal(t, id, w.ID)
}

func TestUpdate_NeverTouchesCreatedAt(t *testing.T) {
	mockPool := testutil.NewMockDB(t)
	repo := postgresql.NewRepository[widget, *widget](mockPool, widgetTable)

	id := uuid.New()
	// Matching the full statement proves created_at is absent from the SET
	// list, so a caller-supplied value can never overwrite the stored one.
	mockPool.ExpectExec(regexp.QuoteMeta(
		`UPDATE widgets SET updated_at = $2, name = $3 WHERE id = $1`,
	)).
		WithArgs(id, pgxmock.AnyArg(), "renamed").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	w := &widget{Model: model.Model{ID: id}, Name: "renamed"}
	require.NoError(t, repo.Update(context.Background(), w))
	assert.Equal(t, time.UTC, w.UpdatedAt.Location())
}

func TestUpdate_MissingRowReportsNoRows(t *testing.T) {
	mockPool := testutil.NewMockDB(t)
	repo := postgresql.NewRepository[widget, *widget](mockPool, widgetTable)

	id := uuid.New()
	mockPool.ExpectExec(regexp.QuoteMeta(`UPDATE widgets`)).
		WithArgs(id, pgxmock.AnyArg(), "ghost").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	w := &widget{Model: model.Model{ID: id}, Name: "ghost"}
	err := repo.Update(context.Background(), w)
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestGet_NormalizesTimestampsToUTC(t *testing.T) {
	mockPool := testutil.NewMockDB(t)
	repo := postgresql.NewRepository[widget, *widget](mockPool, widgetTable)

	loc := time.FixedZone("UTC+7", 7*3600)
	id := uuid.New()
	stamp := time.Date(2026, 3, 1, 12, 0, 0, 0, loc)

	mockPool.ExpectQuery(regexp.QuoteMeta(
		`SELECT id, created_at, updated_at, name FROM widgets WHERE id = $1`,
	)).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(widgetCols).AddRow(id, stamp, stamp, "gizmo"))

	w, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, w.CreatedAt.Location())
	assert.True(t, w.CreatedAt.Equal(stamp), "normalization must not change the instant")
}

func TestGetForUpdate_LocksTheRow(t *testing.T) {
	mockPool := testutil.NewMockDB(t)
	repo := postgresql.NewRepository[widget, *widget](mockPool, widgetTable)

	id := uuid.New()
	now := time.Now().UTC()
	mockPool.ExpectQuery(regexp.QuoteMeta(
		`SELECT id, created_at, updated_at, name FROM widgets WHERE id = $1 FOR UPDATE`,
	)).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(widgetCols).AddRow(id, now, now, "gizmo"))

	w, err := repo.GetForUpdate(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "gizmo", w.Name)
}

func TestFindOne_RendersFilterAndLimit(t *testing.T) {
	mockPool := testutil.NewMockDB(t)
	repo := postgresql.NewRepository[widget, *widget](mockPool, widgetTable)

	now := time.Now().UTC()
	mockPool.ExpectQuery(regexp.QuoteMeta(
		`SELECT id, created_at, updated_at, name FROM widgets WHERE name = $1 LIMIT 1`,
	)).
		WithArgs("gizmo").
		WillReturnRows(pgxmock.NewRows(widgetCols).AddRow(uuid.New(), now, now, "gizmo"))

	w, err := repo.FindOne(context.Background(), postgresql.Filter{Where: "name = $1", Args: []any{"gizmo"}})
	require.NoError(t, err)
	assert.Equal(t, "gizmo", w.Name)
}

func TestFindOne_EmptyFilterMatchesEverything(t *testing.T) {
	mockPool := testutil.NewMockDB(t)
	repo := postgresql.NewRepository[widget, *widget](mockPool, widgetTable)

	now := time.Now().UTC()
	mockPool.ExpectQuery(regexp.QuoteMeta(
		`SELECT id, created_at, updated_at, name FROM widgets LIMIT 1`,
	)).
		WillReturnRows(pgxmock.NewRows(widgetCols).AddRow(uuid.New(), now, now, "first"))

	w, err := repo.FindOne(context.Background(), postgresql.Filter{})
	require.NoError(t, err)
	assert.Equal(t, "first", w.Name)
}

func TestDeleteWhere_RendersFilter(t *testing.T) {
	mockPool := testutil.NewMockDB(t)
	repo := postgresql.NewRepository[widget, *widget](mockPool, widgetTable)

	mockPool.ExpectExec(regexp.QuoteMeta(`DELETE FROM widgets WHERE name = $1`)).
		WithArgs("gizmo").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	err := repo.DeleteWhere(context.Background(), postgresql.Filter{Where: "name = $1", Args: []any{"gizmo"}})
	assert.NoError(t, err)
}

func TestDelete_MissingRowReportsNoRows(t *testing.T) {
	mockPool := testutil.NewMockDB(t)
	repo := postgresql.NewRepository[widget, *widget](mockPool, widgetTable)

	id := uuid.New()
	mockPool.ExpectExec(regexp.QuoteMeta(`DELETE FROM widgets WHERE id = $1`)).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	assert.ErrorIs(t, repo.Delete(context.Background(), id), pgx.ErrNoRows)
}

func TestAnd_RenumbersPlaceholders(t *testing.T) {
	combined := postgresql.And(
		postgresql.Filter{Where: "status = $1", Args: []any{"open"}},
		postgresql.Filter{Where: "title ILIKE $1 OR body ILIKE $1", Args: []any{"%x%"}},
	)

	assert.Equal(t, "(status = $1) AND (title ILIKE $2 OR body ILIKE $2)", combined.Where)
	assert.Equal(t, []any{"open", "%x%"}, combined.Args)
}

func TestAnd_SkipsEmptyFragments(t *testing.T) {
	combined := postgresql.And(
		postgresql.Filter{},
		postgresql.Filter{Where: "status = $1", Args: []any{"open"}},
	)

	assert.Equal(t, "(status = $1)", combined.Where)
	assert.Equal(t, []any{"open"}, combined.Args)
}
