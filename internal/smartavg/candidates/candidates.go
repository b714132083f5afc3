// Package candidates builds the (section, report) candidate pairs a time
// group will be scored against (C4: Candidate Generator)
package candidates

import "smartavg/internal/smartavg/domain"

// Candidate is one (section, report) pair eligible for blending, carrying
// the signal that admitted it
type Candidate struct {
	SectionID         int64
	ReportID          int64
	CourseMatch       bool
	InstructorOverlap int // count of intersecting instructor ids
}

// Eligible reports a report eligible for the given target time group:
// years_ago in [0, maxYears], excluding same-year reports from a later
// quarter than the target (spec §4.3)
func Eligible(r domain.Report, tg domain.TimeGroup, maxYears int) bool {
	yearsAgo := r.YearsAgo(tg.StartYear)
	if yearsAgo < 0 || yearsAgo > maxYears {
		return false
	}
	if yearsAgo == 0 && r.QuarterOrd > tg.Quarter {
		return false
	}
	return true
}

// Generate produces the candidate pairs for one time group: the union of
// course-id overlap and instructor-id overlap between each section and
// each eligible report. Pairs covered by neither rule are never considered
func Generate(sections []domain.Section, reports []domain.Report, tg domain.TimeGroup, maxYears int) []Candidate {
	eligible := make([]domain.Report, 0, len(reports))
	for _, r := range reports {
		if Eligible(r, tg, maxYears) {
			eligible = append(eligible, r)
		}
	}

	out := make([]Candidate, 0)
	for _, s := range sections {
		for _, r := range eligible {
			courseMatch := s.CourseIDs.Intersects(r.CourseIDs)
			instructorOverlap := s.InstructorIDs.IntersectionSize(r.InstructorIDs)
			if !courseMatch && instructorOverlap == 0 {
				continue
			}
			out = append(out, Candidate{
				SectionID:         s.SectionID,
				ReportID:          r.ReportID,
				CourseMatch:       courseMatch,
				InstructorOverlap: instructorOverlap,
			})
		}
	}
	return out
}
