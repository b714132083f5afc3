// Package priors computes the three-level hierarchical shrinkage prior for
// each distinct cohort of scored sections (C7: Hierarchical Prior Engine)
package priors

import (
	"math"
	"sort"

	"smartavg/internal/smartavg/domain"
)

// Result is the three prior levels and the subject-informed flag for one
// (prior key, question) pair
type Result struct {
	Prior3, Prior2, Prior float64
	NSubj, NSC            float64
	SubjectInformed       bool
}

type weighted struct {
	reportID int64
	w, x     float64
}

// weightedMean returns sum(w·x)/sum(w), and sum(w); 0,0 when the total
// weight is 0. Rows are summed in ascending report_id order for a
// reproducible reduction order
func weightedMean(rows []weighted) (mean, totalW float64) {
	sorted := make([]weighted, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].reportID < sorted[j].reportID })

	var sumW, sumWX float64
	for _, r := range sorted {
		sumW += r.w
		sumWX += r.w * r.x
	}
	if sumW == 0 {
		return 0, 0
	}
	return sumWX / sumW, sumW
}

// Compute derives the three prior levels for one (prior key, question) pair.
// rqs must already be restricted to the eligible reports for the question's
// time group and to a single question_id; reportByID resolves each row's
// report for its identity sets and years_ago
func Compute(subjects, careers domain.IDSet, rqs []domain.ReportQuestion, reportByID map[int64]domain.Report, decay, m float64, targetStartYear int) Result {
	var level3, level2, levelBoth []weighted

	for _, rq := range rqs {
		report, ok := reportByID[rq.ReportID]
		if !ok {
			continue
		}
		yearsAgo := float64(report.YearsAgo(targetStartYear))
		decayedN := rq.N * math.Pow(decay, yearsAgo)
		w := weighted{reportID: rq.ReportID, w: decayedN, x: rq.NormalizedMean}

		careerHit := report.AcademicCareerIDs.Intersects(careers)
		subjectHit := report.SubjectIDs.Intersects(subjects)

		if careerHit {
			level3 = append(level3, w)
		}
		if subjectHit {
			level2 = append(level2, w)
		}
		if careerHit && subjectHit {
			levelBoth = append(levelBoth, w)
		}
	}

	avg3, _ := weightedMean(level3)
	prior3 := avg3

	avgSubj, nSubj := weightedMean(level2)
	prior2 := prior3
	if nSubj > 0 {
		prior2 = (nSubj*avgSubj + m*prior3) / (nSubj + m)
	}

	avgSC, nSC := weightedMean(levelBoth)
	prior1 := prior2
	if nSC > 0 {
		prior1 = (nSC*avgSC + m*prior2) / (nSC + m)
	}

	return Result{
		Prior3:          prior3,
		Prior2:          prior2,
		Prior:           prior1,
		NSubj:           nSubj,
		NSC:             nSC,
		SubjectInformed: nSubj > 0 || nSC > 0,
	}
}
