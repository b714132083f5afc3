// Package service wires the registry, ingest, normalize, engine, guardrails,
// and persistence layers into the public domain.RunnerPort
package service

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"smartavg/internal/platform/logger"
	"smartavg/internal/smartavg/domain"
	"smartavg/internal/smartavg/engine"
	"smartavg/internal/smartavg/guardrails"
	"smartavg/internal/smartavg/ingest"
	"smartavg/internal/smartavg/normalize"
	"smartavg/internal/smartavg/registry"

	perr "smartavg/internal/platform/errors"
)

// Service implements domain.RunnerPort, running the full C1-C9 pipeline
// sequentially across every requested time group
type Service struct {
	Ingest   domain.IngestRepo
	Persist  domain.PersistRepo
	Lock     domain.AdvisoryLock
	Registry registry.Registry
	Timeouts guardrails.Timeouts
}

// New builds a Service from its wired dependencies
func New(in domain.IngestRepo, out domain.PersistRepo, lock domain.AdvisoryLock, reg registry.Registry, t guardrails.Timeouts) *Service {
	return &Service{Ingest: in, Persist: out, Lock: lock, Registry: reg, Timeouts: t}
}

var allQuarters = []domain.Quarter{domain.Autumn, domain.Winter, domain.Spring, domain.Summer}

// Run scores and persists every (year, quarter) time group named by req,
// processed strictly in sequence (spec §5: time groups never run concurrently)
func (s *Service) Run(ctx context.Context, req domain.RunRequest) (domain.RunSummary, error) {
	startYear, err := parseStartYear(req.Year)
	if err != nil {
		return domain.RunSummary{}, perr.Wrapf(err, perr.ErrorCodeConfig, "parse year %q", req.Year)
	}

	maxYears := req.MaxYears
	if maxYears <= 0 {
		maxYears = s.Registry.MaxYears
	}

	quarters := req.Quarters
	if len(quarters) == 0 {
		quarters = allQuarters
	}

	chunks := req.Chunks
	if chunks <= 0 {
		chunks = 1
	}

	var summary domain.RunSummary
	for _, q := range quarters {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		tg := domain.TimeGroup{StartYear: startYear, Quarter: q}
		rows, sections, err := s.runTimeGroup(ctx, tg, maxYears, chunks, req.DryRun)
		if err != nil {
			return summary, perr.Wrapf(err, perr.ErrorCodeComputation, "time group %d/%s", tg.StartYear, tg.Quarter)
		}

		summary.TimeGroups++
		summary.SectionsScored += sections
		summary.RowsWritten += rows
	}

	return summary, nil
}

// runTimeGroup scores one (year, quarter) time group under the advisory
// lock and, unless req.DryRun, persists the result in section-aligned chunks
func (s *Service) runTimeGroup(ctx context.Context, tg domain.TimeGroup, maxYears, chunks int, dryRun bool) (rowsWritten, sectionsScored int, err error) {
	groupCtx, cancel := guardrails.WithTimeGroup(ctx, s.Timeouts)
	defer cancel()
	start := time.Now()

	lockErr := s.Lock.WithLock(groupCtx, tg, func(ctx context.Context) error {
		log := logger.C(ctx).With().Int("start_year", tg.StartYear).Str("quarter", tg.Quarter.String()).Logger()

		ingestCtx, ingestCancel := guardrails.ForIngest(ctx, s.Timeouts)
		defer ingestCancel()

		frames, err := ingest.Load(ingestCtx, s.Ingest, tg, maxYears)
		if err != nil {
			return err
		}

		frames.Reports, err = normalize.Reports(frames.Reports)
		if err != nil {
			return err
		}
		frames.Sections, err = normalize.Sections(frames.Sections)
		if err != nil {
			return err
		}
		frames.ReportQuestions, err = normalize.ReportQuestions(frames.ReportQuestions, frames.Questions)
		if err != nil {
			return err
		}

		sectionsScored = len(frames.Sections)

		result, err := engine.Run(ctx, engine.Input{
			TimeGroup:       tg,
			MaxYears:        maxYears,
			Questions:       frames.Questions,
			Reports:         frames.Reports,
			ReportQuestions: frames.ReportQuestions,
			Sections:        frames.Sections,
			Registry:        s.Registry,
		})
		if err != nil {
			return err
		}

		log.Info().Str("state", result.State.String()).Int("rows", len(result.Rows)).Msg("time group scored")

		if dryRun || len(result.Rows) == 0 {
			return nil
		}

		rowsWritten = len(result.Rows)
		return s.persist(ctx, frames.Sections, result.Rows, chunks)
	})
	if lockErr == nil {
		logger.C(ctx).Info().
			Int("year", tg.StartYear).
			Str("quarter", tg.Quarter.String()).
			Int("sections", sectionsScored).
			Int("rows_written", rowsWritten).
			Int64("elapsed_ms", time.Since(start).Milliseconds()).
			Msg("time group done")
	}

	return rowsWritten, sectionsScored, lockErr
}

// persist partitions the scored sections' IDs into at most chunks groups
// and merges each chunk in its own transaction, checking for cancellation
// between chunks (spec §5)
func (s *Service) persist(ctx context.Context, sections []domain.Section, rows []domain.SmartAverage, chunks int) error {
	sectionChunks := partitionSectionIDs(sections, chunks)

	rowsBySection := make(map[int64][]domain.SmartAverage)
	for _, r := range rows {
		rowsBySection[r.SectionID] = append(rowsBySection[r.SectionID], r)
	}

	for _, ids := range sectionChunks {
		if err := ctx.Err(); err != nil {
			return err
		}

		persistCtx, cancel := guardrails.ForPersist(ctx, s.Timeouts)
		var chunkRows []domain.SmartAverage
		for _, id := range ids {
			chunkRows = append(chunkRows, rowsBySection[id]...)
		}

		err := s.Persist.MergeChunk(persistCtx, ids, chunkRows)
		cancel()
		if err != nil {
			logger.C(ctx).Error().Err(err).Bool("retryable", perr.IsRetryable(err)).Msg("persist chunk failed")
			return err
		}
	}
	return nil
}

// partitionSectionIDs splits every target section's id into n
// roughly-equal, sorted groups. Splitting by section keeps each section's
// rows inside a single chunk, which MergeChunk's three-way merge requires
func partitionSectionIDs(sections []domain.Section, n int) [][]int64 {
	ids := make([]int64, len(sections))
	for i, s := range sections {
		ids[i] = s.SectionID
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	if n < 1 {
		n = 1
	}
	if n > len(ids) {
		n = len(ids)
	}
	if n == 0 {
		return nil
	}

	size := (len(ids) + n - 1) / n
	out := make([][]int64, 0, n)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		out = append(out, ids[start:end])
	}
	return out
}

// parseStartYear extracts the leading year from a "YYYY-YYYY" academic year string
func parseStartYear(year string) (int, error) {
	parts := strings.SplitN(year, "-", 2)
	return strconv.Atoi(parts[0])
}
