//go:build integration_pg
// +build integration_pg

package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"smartavg/internal/platform/store"
	"smartavg/internal/smartavg/domain"
)

func startPostgres(t *testing.T) (dsn string, stop func()) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)

	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "postgres",
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_DB":       "postgres",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5432/tcp"),
			wait.ForLog("database system is ready to accept connections"),
		).WithDeadline(2 * time.Minute),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		cancel()
		t.Fatalf("failed to start postgres container: %v", err)
	}

	host, err := c.Host(ctx)
	if err != nil {
		_ = c.Terminate(context.Background())
		cancel()
		t.Fatalf("failed to get container host: %v", err)
	}
	mapped, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		_ = c.Terminate(context.Background())
		cancel()
		t.Fatalf("failed to get mapped port: %v", err)
	}

	dsn = fmt.Sprintf("postgres://postgres:postgres@%s:%s/postgres?sslmode=disable", host, mapped.Port())
	stop = func() {
		_ = c.Terminate(context.Background())
		cancel()
	}
	return dsn, stop
}

const schemaDDL = `
CREATE TABLE evaluation_smart_averages (
	section_id bigint NOT NULL,
	question_id bigint NOT NULL,
	smart_average double precision NOT NULL,
	is_course_informed boolean NOT NULL,
	is_instructor_informed boolean NOT NULL,
	PRIMARY KEY (section_id, question_id)
);
`

func TestMergeChunk_Integration(t *testing.T) {
	dsn, stop := startPostgres(t)
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	cfg := store.Config{PG: store.PGConfig{Enabled: true, URL: dsn, MaxConns: 4}}
	s, err := store.Open(ctx, cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer func() { _ = s.Close(ctx) }()

	if _, err := s.PG.Exec(ctx, schemaDDL); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	// seed a row for section 1 that the first merge should overwrite, and a
	// stale row for section 1/question 2 that the merge should delete since
	// it is absent from the new output
	if _, err := s.PG.Exec(ctx, `
		INSERT INTO evaluation_smart_averages (section_id, question_id, smart_average, is_course_informed, is_instructor_informed)
		VALUES (1, 1, 2.0, false, false), (1, 2, 3.0, true, true)
	`); err != nil {
		t.Fatalf("seed rows: %v", err)
	}

	persist := NewPersistRepo(s.PG)
	rows := []domain.SmartAverage{
		{SectionID: 1, QuestionID: 1, SmartAverage: 4.5, IsCourseInformed: true, IsInstructorInformed: false},
	}
	if err := persist.MergeChunk(ctx, []int64{1}, rows); err != nil {
		t.Fatalf("merge chunk: %v", err)
	}

	got := readAll(t, ctx, s)
	if len(got) != 1 {
		t.Fatalf("expected exactly 1 row after merge, got %d: %+v", len(got), got)
	}
	if got[0].SmartAverage != 4.5 || !got[0].IsCourseInformed || got[0].IsInstructorInformed {
		t.Fatalf("unexpected merged row: %+v", got[0])
	}

	// a second merge with the same rows must be idempotent
	if err := persist.MergeChunk(ctx, []int64{1}, rows); err != nil {
		t.Fatalf("second merge chunk: %v", err)
	}
	got2 := readAll(t, ctx, s)
	if len(got2) != 1 {
		t.Fatalf("expected 1 row after idempotent rerun, got %d", len(got2))
	}
}

func readAll(t *testing.T, ctx context.Context, s *store.Store) []domain.SmartAverage {
	t.Helper()
	rows, err := s.PG.Query(ctx, `SELECT section_id, question_id, smart_average, is_course_informed, is_instructor_informed FROM evaluation_smart_averages ORDER BY section_id, question_id`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()

	var out []domain.SmartAverage
	for rows.Next() {
		var sa domain.SmartAverage
		if err := rows.Scan(&sa.SectionID, &sa.QuestionID, &sa.SmartAverage, &sa.IsCourseInformed, &sa.IsInstructorInformed); err != nil {
			t.Fatalf("scan: %v", err)
		}
		out = append(out, sa)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	return out
}
