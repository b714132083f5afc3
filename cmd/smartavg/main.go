package main

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"smartavg/internal/core/version"
	"smartavg/internal/platform/config"
	"smartavg/internal/platform/logger"
	"smartavg/internal/platform/store"
	"smartavg/internal/repokit"
	"smartavg/internal/smartavg/domain"
	"smartavg/internal/smartavg/guardrails"
	"smartavg/internal/smartavg/registry"
	"smartavg/internal/smartavg/repo"
	"smartavg/internal/smartavg/service"
)

func main() {
	var (
		fYear     = flag.String("year", "", "target academic year, YYYY-YYYY (required)")
		fQuarters = flag.String("quarters", "", "comma-separated quarters to score (default: all four)")
		fMaxYears = flag.Int("max-years", 4, "lookback window in years for eligible reports")
		fChunks   = flag.Int("chunks", 16, "number of section-aligned chunks per time group persist")
		fDryRun   = flag.Bool("dry-run", false, "score but do not persist; logs would-be row counts")
		fDSN      = flag.String("dsn", "", "Postgres DSN (defaults to SERVICE_PGSQL_DBURL)")
	)
	flag.Parse()

	l := logger.Get()
	bi := version.Info()
	l.Info().Str("version", bi.Version).Str("commit", bi.Commit).Msg("smartavg starting")

	if *fYear == "" {
		l.Fatal().Msg("-year is required")
	}

	quarters, err := parseQuarters(*fQuarters)
	if err != nil {
		l.Fatal().Err(err).Msg("bad -quarters")
	}

	pgCfg := config.New().Prefix("SERVICE_PGSQL_")
	dsn := *fDSN
	if dsn == "" {
		dsn = pgCfg.MustString("DBURL")
	}

	ctx := context.Background()
	st, err := store.Open(ctx, store.Config{
		AppName: "smartavg",
		PG: store.PGConfig{
			Enabled:     true,
			URL:         dsn,
			MaxConns:    int32(pgCfg.MayInt("MAX_CONNS", 4)),
			SlowQueryMs: pgCfg.MayInt("SLOW_MS", 500),
			LogSQL:      pgCfg.MayBool("LOG_SQL", true),
		},
	}, store.WithLogger(*l))
	if err != nil {
		l.Fatal().Err(err).Msg("store.Open failed")
	}
	repokit.MustGuard(ctx, st)
	defer func() {
		if err := st.Close(ctx); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()

	ingestRepo := repo.NewIngestRepo(repokit.RequireQueryer(st.PG))
	persistRepo := repo.NewPersistRepo(st.PG)
	lock := guardrails.NewPGAdvisoryLock(st.PG)

	svc := service.New(ingestRepo, persistRepo, lock, registry.Default(), guardrails.Timeouts{
		TimeGroup: 30 * time.Minute,
		Ingest:    5 * time.Minute,
		Persist:   2 * time.Minute,
	})

	summary, err := svc.Run(ctx, domain.RunRequest{
		Year:     *fYear,
		Quarters: quarters,
		MaxYears: *fMaxYears,
		Chunks:   *fChunks,
		DryRun:   *fDryRun,
	})
	if err != nil {
		l.Fatal().Err(err).Msg("smart average run failed")
	}

	l.Info().
		Int("time_groups", summary.TimeGroups).
		Int("sections_scored", summary.SectionsScored).
		Int("rows_written", summary.RowsWritten).
		Bool("dry_run", *fDryRun).
		Msg("smart average run complete")
}

// parseQuarters splits a comma-separated quarter list into ordinals. An
// empty string means "every quarter", signaled by a nil slice
func parseQuarters(csv string) ([]domain.Quarter, error) {
	csv = strings.TrimSpace(csv)
	if csv == "" {
		return nil, nil
	}

	var out []domain.Quarter
	for _, name := range strings.Split(csv, ",") {
		name = strings.TrimSpace(name)
		q, ok := domain.ParseQuarter(name)
		if !ok {
			return nil, fmt.Errorf("unrecognized quarter %q", name)
		}
		out = append(out, q)
	}
	return out, nil
}
