package repo

import (
	"context"

	perr "smartavg/internal/platform/errors"
	"smartavg/internal/repokit"
	"smartavg/internal/smartavg/domain"
)

// MergeChunk performs the three-way merge for one section-aligned chunk of
// output rows: update matched (section_id, question_id) rows, insert
// source-only rows, and delete rows for any section_id in sectionIDs that
// no longer appear in rows. Runs inside its own transaction so a chunk
// either lands whole or not at all (C9)
func (r *PG) MergeChunk(ctx context.Context, sectionIDs []int64, rows []domain.SmartAverage) error {
	if len(sectionIDs) == 0 {
		return nil
	}

	sectionID := make([]int64, len(rows))
	questionID := make([]int64, len(rows))
	smartAverage := make([]float64, len(rows))
	courseInformed := make([]bool, len(rows))
	instructorInformed := make([]bool, len(rows))
	for i, row := range rows {
		sectionID[i] = row.SectionID
		questionID[i] = row.QuestionID
		smartAverage[i] = row.SmartAverage
		courseInformed[i] = row.IsCourseInformed
		instructorInformed[i] = row.IsInstructorInformed
	}

	err := repokit.WithTx(ctx, r.tx, func(q repokit.Queryer) error {
		if _, err := q.Exec(ctx, `
			CREATE TEMP TABLE IF NOT EXISTS _smart_average_chunk (
				section_id bigint,
				question_id bigint,
				smart_average double precision,
				is_course_informed boolean,
				is_instructor_informed boolean
			) ON COMMIT DROP;
			TRUNCATE _smart_average_chunk;
		`); err != nil {
			return perr.Wrap(err, perr.ErrorCodePersistence, "stage chunk: create temp table")
		}

		if _, err := q.Exec(ctx, `
			INSERT INTO _smart_average_chunk
			SELECT * FROM UNNEST($1::bigint[], $2::bigint[], $3::double precision[], $4::boolean[], $5::boolean[])
		`, sectionID, questionID, smartAverage, courseInformed, instructorInformed); err != nil {
			return perr.Wrap(err, perr.ErrorCodePersistence, "stage chunk: load rows")
		}

		if _, err := q.Exec(ctx, `
			UPDATE evaluation_smart_averages t SET
				smart_average = s.smart_average,
				is_course_informed = s.is_course_informed,
				is_instructor_informed = s.is_instructor_informed
			FROM _smart_average_chunk s
			WHERE t.section_id = s.section_id AND t.question_id = s.question_id
		`); err != nil {
			return perr.Wrap(err, perr.ErrorCodePersistence, "update matched rows")
		}

		if _, err := q.Exec(ctx, `
			INSERT INTO evaluation_smart_averages
				(section_id, question_id, smart_average, is_course_informed, is_instructor_informed)
			SELECT s.section_id, s.question_id, s.smart_average, s.is_course_informed, s.is_instructor_informed
			FROM _smart_average_chunk s
			LEFT JOIN evaluation_smart_averages t
				ON t.section_id = s.section_id AND t.question_id = s.question_id
			WHERE t.section_id IS NULL
		`); err != nil {
			return perr.Wrap(err, perr.ErrorCodePersistence, "insert new rows")
		}

		if _, err := q.Exec(ctx, `
			DELETE FROM evaluation_smart_averages t
			USING UNNEST($1::bigint[]) AS chunk_section(section_id)
			WHERE t.section_id = chunk_section.section_id
				AND NOT EXISTS (
					SELECT 1 FROM _smart_average_chunk s
					WHERE s.section_id = t.section_id AND s.question_id = t.question_id
				)
		`, sectionIDs); err != nil {
			return perr.Wrap(err, perr.ErrorCodePersistence, "delete stale rows")
		}

		return nil
	})
	if err != nil {
		return perr.WithOp(err, "smartavg.MergeChunk")
	}
	return nil
}
