package repo

import (
	"context"

	perr "smartavg/internal/platform/errors"
	"smartavg/internal/smartavg/domain"
)

// LoadReports returns every report whose start year falls within
// [targetStartYear-maxYears, targetStartYear], with identity sets
// aggregated across each report's joint-listed course offerings
func (r *PG) LoadReports(ctx context.Context, targetStartYear, maxYears int) ([]domain.Report, error) {
	rows, err := r.q.Query(ctx, `
		SELECT
			rpt.report_id, rpt.year, rpt.term_quarter, rpt.responded, rpt.total,
			array_agg(DISTINCT co.course_id),
			array_agg(DISTINCT si.instructor_id) FILTER (WHERE si.instructor_id IS NOT NULL),
			array_agg(DISTINCT co.academic_career_id),
			array_agg(DISTINCT co.subject_id)
		FROM reports rpt
		JOIN sections sec ON sec.report_id = rpt.report_id
		JOIN course_offerings co ON co.id = sec.course_offering_id
		LEFT JOIN schedules sch ON sch.section_id = sec.section_id
		LEFT JOIN schedule_instructors si ON si.schedule_id = sch.schedule_id
		WHERE sec.cancelled = false
			AND split_part(rpt.year, '-', 1)::int BETWEEN $1 - $2 AND $1
		GROUP BY rpt.report_id, rpt.year, rpt.term_quarter, rpt.responded, rpt.total
	`, targetStartYear, maxYears)
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeIngestion, "query reports")
	}
	defer rows.Close()

	var out []domain.Report
	for rows.Next() {
		var rep domain.Report
		var courseIDs, instructorIDs, careerIDs, subjectIDs []int64
		if err := rows.Scan(&rep.ReportID, &rep.Year, &rep.TermQuarter, &rep.Responded, &rep.Total,
			&courseIDs, &instructorIDs, &careerIDs, &subjectIDs); err != nil {
			return nil, perr.Wrap(err, perr.ErrorCodeIngestion, "scan report")
		}
		rep.CourseIDs = domain.NewIDSet(courseIDs)
		rep.InstructorIDs = domain.NewIDSet(instructorIDs)
		rep.AcademicCareerIDs = domain.NewIDSet(careerIDs)
		rep.SubjectIDs = domain.NewIDSet(subjectIDs)
		out = append(out, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeIngestion, "iterate reports")
	}
	return out, nil
}

// LoadReportQuestions returns the raw weight/frequency response distribution
// for every (report, question) pair among reportIDs
func (r *PG) LoadReportQuestions(ctx context.Context, reportIDs []int64) ([]domain.ReportQuestion, error) {
	if len(reportIDs) == 0 {
		return nil, nil
	}
	rows, err := r.q.Query(ctx, `
		SELECT report_id, question_id,
			array_agg(weight ORDER BY weight),
			array_agg(frequency::float8 ORDER BY weight)
		FROM responses
		WHERE report_id = ANY($1)
		GROUP BY report_id, question_id
	`, reportIDs)
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeIngestion, "query report questions")
	}
	defer rows.Close()

	var out []domain.ReportQuestion
	for rows.Next() {
		var rq domain.ReportQuestion
		if err := rows.Scan(&rq.ReportID, &rq.QuestionID, &rq.Weights, &rq.Frequencies); err != nil {
			return nil, perr.Wrap(err, perr.ErrorCodeIngestion, "scan report question")
		}
		out = append(out, rq)
	}
	if err := rows.Err(); err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeIngestion, "iterate report questions")
	}
	return out, nil
}
