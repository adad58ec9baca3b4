// Package testutil holds shared test scaffolding.
package testutil

import (
	"io"
	"log/slog"
	"testing"

	"github.com/pashagolub/pgxmock/v4"

	"searchsync/internal/telemetry"
)

// NewMockDB returns a pgx-compatible mock pool that is closed and verified
// when the test finishes.
func NewMockDB(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet database expectations: %v", err)
		}
		mock.Close()
	})
	return mock
}

// NewTestLogger builds the same JSON+trace logger the daemon runs with,
// discarding output.
func NewTestLogger() *slog.Logger {
	base := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(telemetry.NewTraceHandler(base))
}
