package priors

import (
	"math"
	"testing"

	"smartavg/internal/smartavg/domain"
)

func TestComputeShrinksThroughAllThreeLevels(t *testing.T) {
	careers := domain.NewIDSet([]int64{1})
	subjects := domain.NewIDSet([]int64{10})

	reportByID := map[int64]domain.Report{
		// career-only: intersects careers, not subjects
		1: {ReportID: 1, StartYear: 2024, AcademicCareerIDs: domain.NewIDSet([]int64{1}), SubjectIDs: domain.NewIDSet([]int64{99})},
		// subject-only: intersects subjects, not careers
		2: {ReportID: 2, StartYear: 2024, AcademicCareerIDs: domain.NewIDSet([]int64{99}), SubjectIDs: domain.NewIDSet([]int64{10})},
		// both
		3: {ReportID: 3, StartYear: 2024, AcademicCareerIDs: domain.NewIDSet([]int64{1}), SubjectIDs: domain.NewIDSet([]int64{10})},
	}
	rqs := []domain.ReportQuestion{
		{ReportID: 1, N: 10, NormalizedMean: 0.2},
		{ReportID: 2, N: 10, NormalizedMean: 0.5},
		{ReportID: 3, N: 10, NormalizedMean: 0.8},
	}

	res := Compute(subjects, careers, rqs, reportByID, 1.0, 10, 2024)

	// prior3: level3 rows are reports 1 and 3 (career hit), mean=(10*0.2+10*0.8)/20=0.5
	if math.Abs(res.Prior3-0.5) > 1e-9 {
		t.Fatalf("Prior3 = %v, want 0.5", res.Prior3)
	}
	// level2 rows: reports 2 and 3 (subject hit), avg_subj=(10*0.5+10*0.8)/20=0.65, n_subj=20
	wantPrior2 := (20*0.65 + 10*0.5) / 30
	if math.Abs(res.Prior2-wantPrior2) > 1e-9 {
		t.Fatalf("Prior2 = %v, want %v", res.Prior2, wantPrior2)
	}
	// levelBoth: report 3 only, avg_sc=0.8, n_sc=10
	wantPrior := (10*0.8 + 10*wantPrior2) / 20
	if math.Abs(res.Prior-wantPrior) > 1e-9 {
		t.Fatalf("Prior = %v, want %v", res.Prior, wantPrior)
	}
	if !res.SubjectInformed {
		t.Fatal("expected SubjectInformed=true")
	}
}

func TestComputeFallsBackWhenLevelEmpty(t *testing.T) {
	careers := domain.NewIDSet([]int64{1})
	subjects := domain.NewIDSet([]int64{10})
	reportByID := map[int64]domain.Report{
		1: {ReportID: 1, StartYear: 2024, AcademicCareerIDs: domain.NewIDSet([]int64{1}), SubjectIDs: domain.NewIDSet([]int64{99})},
	}
	rqs := []domain.ReportQuestion{{ReportID: 1, N: 10, NormalizedMean: 0.3}}

	res := Compute(subjects, careers, rqs, reportByID, 1.0, 10, 2024)
	if res.Prior3 != 0.3 {
		t.Fatalf("Prior3 = %v, want 0.3", res.Prior3)
	}
	if res.Prior2 != res.Prior3 {
		t.Fatalf("Prior2 should fall back to Prior3 when n_subj=0, got %v vs %v", res.Prior2, res.Prior3)
	}
	if res.Prior != res.Prior2 {
		t.Fatalf("Prior should fall back to Prior2 when n_sc=0, got %v vs %v", res.Prior, res.Prior2)
	}
	if res.SubjectInformed {
		t.Fatal("expected SubjectInformed=false")
	}
}

func TestComputeNoEvidenceIsZero(t *testing.T) {
	res := Compute(domain.NewIDSet(nil), domain.NewIDSet(nil), nil, map[int64]domain.Report{}, 0.85, 10, 2024)
	if res.Prior3 != 0 || res.Prior2 != 0 || res.Prior != 0 {
		t.Fatalf("expected all-zero result with no evidence, got %+v", res)
	}
}
