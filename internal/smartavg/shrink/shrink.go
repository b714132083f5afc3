// Package shrink applies hierarchical shrinkage and rescaling to blended
// evidence, producing the final persisted rows (C8: Shrinkage & Assembly)
package shrink

import (
	"sort"

	"smartavg/internal/smartavg/blend"
	"smartavg/internal/smartavg/domain"
	"smartavg/internal/smartavg/priors"
	"smartavg/internal/smartavg/registry"
)

type sectionQuestion struct {
	sectionID, questionID int64
}

func rescale(normalized float64, q domain.Question) float64 {
	return normalized*(q.WMax-q.WMin) + q.WMin
}

// PriorLookup resolves the prior result for one (section, question) pair.
// Sections outside any scored cohort, or questions with no prior coverage,
// return the zero Result
type PriorLookup func(sectionID, questionID int64) priors.Result

// Assemble produces the final output rows for a time group. Questions with
// priors disabled (m=null) emit only the rows with observed evidence.
// Questions with priors enabled are joined against every target section
// (filling missing observed evidence with zeros) and shrunk toward their
// prior. Rows uninformative in every sense are discarded; surviving rows are
// rescaled to the question's native range and sorted by (section_id, question_id)
func Assemble(
	sections []domain.Section,
	questionByID map[int64]domain.Question,
	reg registry.Registry,
	blendRows []blend.Row,
	priorLookup PriorLookup,
) []domain.SmartAverage {
	blendByKey := make(map[sectionQuestion]blend.Row, len(blendRows))
	for _, r := range blendRows {
		blendByKey[sectionQuestion{r.SectionID, r.QuestionID}] = r
	}

	var priorQuestionIDs []int64
	for qid, q := range questionByID {
		if reg.Resolve(q.QuestionText).PriorsEnabled() {
			priorQuestionIDs = append(priorQuestionIDs, qid)
		}
	}
	sort.Slice(priorQuestionIDs, func(i, j int) bool { return priorQuestionIDs[i] < priorQuestionIDs[j] })

	out := make([]domain.SmartAverage, 0, len(blendRows))

	for _, r := range blendRows {
		q, ok := questionByID[r.QuestionID]
		if !ok {
			continue
		}
		params := reg.Resolve(q.QuestionText)
		if params.PriorsEnabled() {
			continue // handled by the section x question join below
		}
		if r.TotalEffectiveN <= 0 {
			continue
		}
		out = append(out, domain.SmartAverage{
			SectionID:            r.SectionID,
			QuestionID:           r.QuestionID,
			SmartAverage:         rescale(r.BlendedAvg, q),
			IsCourseInformed:     r.IsCourseInformed,
			IsInstructorInformed: r.IsInstructorInformed,
		})
	}

	for _, s := range sections {
		for _, qid := range priorQuestionIDs {
			q := questionByID[qid]
			params := reg.Resolve(q.QuestionText)
			m := *params.M

			var totalN, blendedAvg float64
			var courseInformed, instructorInformed bool
			if br, ok := blendByKey[sectionQuestion{s.SectionID, qid}]; ok {
				totalN = br.TotalEffectiveN
				blendedAvg = br.BlendedAvg
				courseInformed = br.IsCourseInformed
				instructorInformed = br.IsInstructorInformed
			}

			pr := priorLookup(s.SectionID, qid)
			shrunk := (totalN*blendedAvg + m*pr.Prior) / (totalN + m)

			if !courseInformed && !instructorInformed && !pr.SubjectInformed {
				continue
			}
			out = append(out, domain.SmartAverage{
				SectionID:            s.SectionID,
				QuestionID:           qid,
				SmartAverage:         rescale(shrunk, q),
				IsCourseInformed:     courseInformed,
				IsInstructorInformed: instructorInformed,
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].SectionID != out[j].SectionID {
			return out[i].SectionID < out[j].SectionID
		}
		return out[i].QuestionID < out[j].QuestionID
	})
	return out
}
