// Package blend combines course, instructor, and interaction evidence into
// one blended average per (section, question) (C6: Component Blender)
package blend

import (
	"math"
	"sort"

	"smartavg/internal/smartavg/domain"
	"smartavg/internal/smartavg/registry"
	"smartavg/internal/smartavg/similarity"
)

// Row is the blended result for one (section, question) pair
type Row struct {
	SectionID            int64
	QuestionID           int64
	TotalEffectiveN      float64
	BlendedAvg           float64
	IsCourseInformed     bool
	IsInstructorInformed bool
}

type key struct {
	sectionID, questionID int64
}

type accum struct {
	nCourse, nmuCourse           float64
	nInstructor, nmuInstructor   float64
	nInteraction, nmuInteraction float64
}

func boolF(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// dampen applies the logarithmic dampener, or passes n through untouched when k=0
func dampen(n, k float64) float64 {
	if k > 0 {
		return math.Log(k*n+1) / math.Log(k+1)
	}
	return n
}

// Compute blends every scored (section, report) pair's question-level
// evidence into one row per (section, question). Reduction order is fixed
// by sorting candidate pairs by (section_id, report_id) so results are
// reproducible regardless of input ordering (spec §5's ordering guarantee)
func Compute(
	sims []similarity.Score,
	rqs []domain.ReportQuestion,
	reportByID map[int64]domain.Report,
	questionByID map[int64]domain.Question,
	reg registry.Registry,
	tg domain.TimeGroup,
) []Row {
	rqsByReport := make(map[int64][]domain.ReportQuestion)
	for _, rq := range rqs {
		rqsByReport[rq.ReportID] = append(rqsByReport[rq.ReportID], rq)
	}
	for reportID, list := range rqsByReport {
		sort.Slice(list, func(i, j int) bool { return list[i].QuestionID < list[j].QuestionID })
		rqsByReport[reportID] = list
	}

	ordered := make([]similarity.Score, len(sims))
	copy(ordered, sims)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].SectionID != ordered[j].SectionID {
			return ordered[i].SectionID < ordered[j].SectionID
		}
		return ordered[i].ReportID < ordered[j].ReportID
	})

	accums := make(map[key]*accum)
	var order []key

	for _, sim := range ordered {
		report, ok := reportByID[sim.ReportID]
		if !ok {
			continue
		}
		yearsAgo := float64(report.YearsAgo(tg.StartYear))
		courseMatchF := boolF(sim.CourseMatch)
		subjectMatchF := boolF(sim.SubjectMatch)

		for _, rq := range rqsByReport[sim.ReportID] {
			q, ok := questionByID[rq.QuestionID]
			if !ok {
				continue
			}
			params := reg.Resolve(q.QuestionText)

			boost := (1 + params.WCareer*sim.CareerSim) * (1 + params.WSubject*subjectMatchF)
			rCourse := params.BaseCourse * courseMatchF * boost
			rInstructor := params.BaseInstructor * sim.InstructorSim * boost
			rInteraction := params.BaseInteraction * courseMatchF * sim.InstructorSim * boost
			if rCourse == 0 && rInstructor == 0 && rInteraction == 0 {
				continue
			}

			decayedN := rq.N * math.Pow(params.Decay, yearsAgo)
			nCourse := rCourse * decayedN
			nInstructor := rInstructor * decayedN
			nInteraction := rInteraction * decayedN

			k := key{sim.SectionID, rq.QuestionID}
			a, ok := accums[k]
			if !ok {
				a = &accum{}
				accums[k] = a
				order = append(order, k)
			}
			a.nCourse += nCourse
			a.nmuCourse += nCourse * rq.NormalizedMean
			a.nInstructor += nInstructor
			a.nmuInstructor += nInstructor * rq.NormalizedMean
			a.nInteraction += nInteraction
			a.nmuInteraction += nInteraction * rq.NormalizedMean
		}
	}

	out := make([]Row, 0, len(order))
	for _, k := range order {
		a := accums[k]
		q := questionByID[k.questionID]
		params := reg.Resolve(q.QuestionText)

		meanCourse := 0.0
		if a.nCourse != 0 {
			meanCourse = a.nmuCourse / a.nCourse
		}
		meanInstructor := 0.0
		if a.nInstructor != 0 {
			meanInstructor = a.nmuInstructor / a.nInstructor
		}
		meanInteraction := 0.0
		if a.nInteraction != 0 {
			meanInteraction = a.nmuInteraction / a.nInteraction
		}

		dnCourse := dampen(a.nCourse, params.DampeningK)
		dnInstructor := dampen(a.nInstructor, params.DampeningK)
		dnInteraction := a.nInteraction

		total := dnCourse + dnInstructor + dnInteraction
		blended := 0.0
		if total != 0 {
			blended = (dnCourse*meanCourse + dnInstructor*meanInstructor + dnInteraction*meanInteraction) / total
		}

		out = append(out, Row{
			SectionID:            k.sectionID,
			QuestionID:           k.questionID,
			TotalEffectiveN:      total,
			BlendedAvg:           blended,
			IsCourseInformed:     dnCourse > 0,
			IsInstructorInformed: dnInstructor > 0,
		})
	}
	return out
}
