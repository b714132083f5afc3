// Package ingest pulls normalized inputs from the store into typed in-memory
// frames (C2: Data Ingestor)
package ingest

import (
	"context"
	"sort"

	perr "smartavg/internal/platform/errors"
	"smartavg/internal/smartavg/domain"
)

// Frames is the tabular input to a run: one question registry, every
// eligible report (with its response distributions), and every target
// section for the current time group
type Frames struct {
	Questions       map[int64]domain.Question
	Reports         []domain.Report
	ReportQuestions []domain.ReportQuestion
	Sections        []domain.Section
}

// Load pulls Reports, Sections, and QuestionScales for one time group from
// the store, per spec §4.2. Reports are restricted to
// [targetStartYear-maxYears, targetStartYear] by the repo itself; the
// same-year future-quarter exclusion is applied later by the candidate
// generator (C4), since it depends on each target quarter, not just the year
func Load(ctx context.Context, repo domain.IngestRepo, tg domain.TimeGroup, maxYears int) (Frames, error) {
	questions, err := repo.LoadQuestions(ctx)
	if err != nil {
		return Frames{}, perr.Wrap(err, perr.ErrorCodeIngestion, "load questions")
	}
	qByID := make(map[int64]domain.Question, len(questions))
	for _, q := range questions {
		if q.WMax < q.WMin {
			return Frames{}, perr.Newf(perr.ErrorCodeComputation, "question %d: w_max < w_min", q.QuestionID)
		}
		qByID[q.QuestionID] = q
	}

	reports, err := repo.LoadReports(ctx, tg.StartYear, maxYears)
	if err != nil {
		return Frames{}, perr.Wrap(err, perr.ErrorCodeIngestion, "load reports")
	}

	reportIDs := make([]int64, len(reports))
	for i, r := range reports {
		reportIDs[i] = r.ReportID
	}
	sort.Slice(reportIDs, func(i, j int) bool { return reportIDs[i] < reportIDs[j] })

	rqs, err := repo.LoadReportQuestions(ctx, reportIDs)
	if err != nil {
		return Frames{}, perr.Wrap(err, perr.ErrorCodeIngestion, "load report questions")
	}

	sections, err := repo.LoadSections(ctx, tg)
	if err != nil {
		return Frames{}, perr.Wrap(err, perr.ErrorCodeIngestion, "load sections")
	}

	return Frames{
		Questions:       qByID,
		Reports:         reports,
		ReportQuestions: rqs,
		Sections:        sections,
	}, nil
}
