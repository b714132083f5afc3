package repo

import (
	"context"

	perr "smartavg/internal/platform/errors"
	"smartavg/internal/smartavg/domain"
)

// LoadSections returns every principal, non-cancelled section in the given
// time group, with identity sets aggregated across every joint-listed
// course offering sharing the section's course in the target year
func (r *PG) LoadSections(ctx context.Context, tg domain.TimeGroup) ([]domain.Section, error) {
	rows, err := r.q.Query(ctx, `
		SELECT
			sec.section_id, co.course_id, co.year, sec.term_quarter,
			array_agg(DISTINCT co2.course_id),
			array_agg(DISTINCT si.instructor_id) FILTER (WHERE si.instructor_id IS NOT NULL),
			array_agg(DISTINCT co2.academic_career_id),
			array_agg(DISTINCT co2.subject_id)
		FROM sections sec
		JOIN course_offerings co ON co.id = sec.course_offering_id
		JOIN course_offerings co2 ON co2.year = co.year AND co2.course_id = co.course_id
		LEFT JOIN schedules sch ON sch.section_id = sec.section_id
		LEFT JOIN schedule_instructors si ON si.schedule_id = sch.schedule_id
		WHERE sec.cancelled = false
			AND sec.is_principal = true
			AND sec.term_quarter = $1
			AND split_part(co.year, '-', 1)::int = $2
		GROUP BY sec.section_id, co.course_id, co.year, sec.term_quarter
	`, tg.Quarter.String(), tg.StartYear)
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeIngestion, "query sections")
	}
	defer rows.Close()

	var out []domain.Section
	for rows.Next() {
		var s domain.Section
		var courseIDs, instructorIDs, careerIDs, subjectIDs []int64
		if err := rows.Scan(&s.SectionID, &s.CourseID, &s.Year, &s.TermQuarter,
			&courseIDs, &instructorIDs, &careerIDs, &subjectIDs); err != nil {
			return nil, perr.Wrap(err, perr.ErrorCodeIngestion, "scan section")
		}
		s.CourseIDs = domain.NewIDSet(courseIDs)
		s.InstructorIDs = domain.NewIDSet(instructorIDs)
		s.AcademicCareerIDs = domain.NewIDSet(careerIDs)
		s.SubjectIDs = domain.NewIDSet(subjectIDs)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeIngestion, "iterate sections")
	}
	return out, nil
}
