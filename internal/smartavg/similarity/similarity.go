// Package similarity scores each candidate (section, report) pair on
// instructor overlap, career overlap, and subject/course match (C5)
package similarity

import (
	"math"

	"smartavg/internal/smartavg/candidates"
	"smartavg/internal/smartavg/domain"
)

// Score is the similarity profile for one candidate pair
type Score struct {
	SectionID     int64
	ReportID      int64
	InstructorSim float64
	CareerSim     float64
	SubjectMatch  bool
	CourseMatch   bool
}

// jaccardRoot computes sqrt(|a ∩ b| / |a ∪ b|), 0 when the union is empty
func jaccardRoot(a, b domain.IDSet) float64 {
	union := a.UnionSize(b)
	if union == 0 {
		return 0
	}
	inter := a.IntersectionSize(b)
	return math.Sqrt(float64(inter) / float64(union))
}

// Compute scores every candidate using the section and report identity sets
func Compute(cands []candidates.Candidate, sectionByID map[int64]domain.Section, reportByID map[int64]domain.Report) []Score {
	out := make([]Score, 0, len(cands))
	for _, c := range cands {
		s, ok := sectionByID[c.SectionID]
		if !ok {
			continue
		}
		r, ok := reportByID[c.ReportID]
		if !ok {
			continue
		}
		out = append(out, Score{
			SectionID:     c.SectionID,
			ReportID:      c.ReportID,
			InstructorSim: jaccardRoot(s.InstructorIDs, r.InstructorIDs),
			CareerSim:     jaccardRoot(s.AcademicCareerIDs, r.AcademicCareerIDs),
			SubjectMatch:  s.SubjectIDs.Intersects(r.SubjectIDs),
			CourseMatch:   c.CourseMatch,
		})
	}
	return out
}
