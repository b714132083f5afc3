// Package normalize converts raw response distributions and report/section
// metadata into the normalized, derived form the rest of the engine consumes
// (C3: Report Normalizer)
package normalize

import (
	"math"
	"strconv"
	"strings"

	perr "smartavg/internal/platform/errors"
	"smartavg/internal/smartavg/domain"
)

// ReportQuestions computes n, raw_mean, and normalized_mean for every
// (report, question) row, dropping rows where n = 0 (spec §4.2). Rows
// referencing a question not present in questions are dropped, since there
// is no scale to normalize against
func ReportQuestions(rqs []domain.ReportQuestion, questions map[int64]domain.Question) ([]domain.ReportQuestion, error) {
	out := make([]domain.ReportQuestion, 0, len(rqs))
	for _, rq := range rqs {
		q, ok := questions[rq.QuestionID]
		if !ok {
			continue
		}
		if len(rq.Weights) != len(rq.Frequencies) {
			return nil, perr.Newf(perr.ErrorCodeIngestion,
				"report %d question %d: weights/frequencies length mismatch", rq.ReportID, rq.QuestionID)
		}

		var n, weighted float64
		for i, w := range rq.Weights {
			f := rq.Frequencies[i]
			if math.IsNaN(w) || math.IsInf(w, 0) || math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, perr.Newf(perr.ErrorCodeIngestion,
					"report %d question %d: non-finite weight/frequency", rq.ReportID, rq.QuestionID)
			}
			n += f
			weighted += w * f
		}
		if n == 0 {
			continue // row-level skip, not an error
		}

		rawMean := weighted / n
		normalizedMean := 0.0
		if rng := q.Range(); rng != 0 {
			normalizedMean = (rawMean - q.WMin) / rng
		}

		rq.N = n
		rq.RawMean = rawMean
		rq.NormalizedMean = normalizedMean
		out = append(out, rq)
	}
	return out, nil
}

// Reports derives StartYear and QuarterOrd for every report (spec §4.2)
func Reports(reports []domain.Report) ([]domain.Report, error) {
	out := make([]domain.Report, len(reports))
	for i, r := range reports {
		startYear, err := splitStartYear(r.Year)
		if err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeIngestion, "report %d: parse year %q", r.ReportID, r.Year)
		}
		q, ok := domain.ParseQuarter(r.TermQuarter)
		if !ok {
			return nil, perr.Newf(perr.ErrorCodeIngestion, "report %d: unrecognized quarter %q", r.ReportID, r.TermQuarter)
		}
		r.StartYear = startYear
		r.QuarterOrd = q
		out[i] = r
	}
	return out, nil
}

// Sections derives StartYear and QuarterOrd for every target section
func Sections(sections []domain.Section) ([]domain.Section, error) {
	out := make([]domain.Section, len(sections))
	for i, s := range sections {
		startYear, err := splitStartYear(s.Year)
		if err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeIngestion, "section %d: parse year %q", s.SectionID, s.Year)
		}
		q, ok := domain.ParseQuarter(s.TermQuarter)
		if !ok {
			return nil, perr.Newf(perr.ErrorCodeIngestion, "section %d: unrecognized quarter %q", s.SectionID, s.TermQuarter)
		}
		s.StartYear = startYear
		s.QuarterOrd = q
		out[i] = s
	}
	return out, nil
}

// splitStartYear parses "YYYY-YYYY" and returns the first year as an int
func splitStartYear(year string) (int, error) {
	parts := strings.SplitN(year, "-", 2)
	return strconv.Atoi(parts[0])
}
