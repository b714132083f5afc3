// Package engine runs the per-time-group scoring pipeline (C4 through C8)
// and its state machine
package engine

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"smartavg/internal/smartavg/blend"
	"smartavg/internal/smartavg/candidates"
	"smartavg/internal/smartavg/domain"
	"smartavg/internal/smartavg/priors"
	"smartavg/internal/smartavg/registry"
	"smartavg/internal/smartavg/shrink"
	"smartavg/internal/smartavg/similarity"
)

// State is a position in the per-time-group scoring pipeline
type State int

// Pipeline states, in the order a successful run passes through them
const (
	Prepared State = iota
	CandidatesBuilt
	SimilaritiesScored
	Blended
	PriorsComputed
	Shrunk
	Persisted
)

func (s State) String() string {
	switch s {
	case Prepared:
		return "Prepared"
	case CandidatesBuilt:
		return "CandidatesBuilt"
	case SimilaritiesScored:
		return "SimilaritiesScored"
	case Blended:
		return "Blended"
	case PriorsComputed:
		return "PriorsComputed"
	case Shrunk:
		return "Shrunk"
	case Persisted:
		return "Persisted"
	default:
		return "Unknown"
	}
}

// Input is everything one time group needs to run the pipeline
type Input struct {
	TimeGroup       domain.TimeGroup
	MaxYears        int
	Questions       map[int64]domain.Question
	Reports         []domain.Report
	ReportQuestions []domain.ReportQuestion
	Sections        []domain.Section
	Registry        registry.Registry
}

// Result is the final state reached and the output rows produced
type Result struct {
	State State
	Rows  []domain.SmartAverage
}

type priorLookupKey struct {
	key        domain.PriorKey
	questionID int64
}

// Run executes candidate generation through shrinkage for one time group.
// Any stage may short-circuit to Persisted (as a no-op) when its input is
// empty, per the state machine in spec §4.8
func Run(ctx context.Context, in Input) (Result, error) {
	if len(in.Sections) == 0 || len(in.Reports) == 0 {
		return Result{State: Persisted}, nil
	}

	cands := generateCandidatesParallel(in.Sections, in.Reports, in.TimeGroup, in.MaxYears)
	if len(cands) == 0 {
		return Result{State: Persisted}, nil
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	sectionByID := make(map[int64]domain.Section, len(in.Sections))
	for _, s := range in.Sections {
		sectionByID[s.SectionID] = s
	}
	reportByID := make(map[int64]domain.Report, len(in.Reports))
	for _, r := range in.Reports {
		reportByID[r.ReportID] = r
	}

	sims := similarity.Compute(cands, sectionByID, reportByID)
	if len(sims) == 0 {
		return Result{State: Persisted}, nil
	}

	blendRows := blend.Compute(sims, in.ReportQuestions, reportByID, in.Questions, in.Registry, in.TimeGroup)
	hasPriors := anyPriorsEnabled(in.Questions, in.Registry)
	if len(blendRows) == 0 && !hasPriors {
		return Result{State: Persisted}, nil
	}

	priorResults, err := computePriorsParallel(ctx, in, reportByID)
	if err != nil {
		return Result{}, err
	}

	rows := shrink.Assemble(in.Sections, in.Questions, in.Registry, blendRows, func(sectionID, questionID int64) priors.Result {
		s := sectionByID[sectionID]
		key := domain.NewPriorKey(s.SubjectIDs, s.AcademicCareerIDs)
		return priorResults[priorLookupKey{key, questionID}]
	})

	return Result{State: Shrunk, Rows: rows}, nil
}

// generateCandidatesParallel shards target sections across workers and runs
// C4 concurrently; an implementation freedom per spec §5, since candidate
// generation for one section is independent of every other section
func generateCandidatesParallel(sections []domain.Section, reports []domain.Report, tg domain.TimeGroup, maxYears int) []candidates.Candidate {
	workers := runtime.GOMAXPROCS(0)
	if workers > len(sections) {
		workers = len(sections)
	}
	if workers < 1 {
		workers = 1
	}
	shardSize := (len(sections) + workers - 1) / workers

	results := make([][]candidates.Candidate, workers)
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		start := w * shardSize
		if start >= len(sections) {
			continue
		}
		end := min(start+shardSize, len(sections))
		w, start, end := w, start, end
		g.Go(func() error {
			results[w] = candidates.Generate(sections[start:end], reports, tg, maxYears)
			return nil
		})
	}
	_ = g.Wait()

	var out []candidates.Candidate
	for _, r := range results {
		out = append(out, r...)
	}
	return out
}

// computePriorsParallel computes the hierarchical prior for every distinct
// (prior key, question) pair among the target sections and priors-enabled
// questions (C7). Each pair's computation is independent
func computePriorsParallel(ctx context.Context, in Input, reportByID map[int64]domain.Report) (map[priorLookupKey]priors.Result, error) {
	out := make(map[priorLookupKey]priors.Result)

	var priorQuestionIDs []int64
	for qid, q := range in.Questions {
		if in.Registry.Resolve(q.QuestionText).PriorsEnabled() {
			priorQuestionIDs = append(priorQuestionIDs, qid)
		}
	}
	if len(priorQuestionIDs) == 0 {
		return out, nil
	}

	type idSets struct{ subjects, careers domain.IDSet }
	keySets := make(map[domain.PriorKey]idSets)
	for _, s := range in.Sections {
		k := domain.NewPriorKey(s.SubjectIDs, s.AcademicCareerIDs)
		if _, ok := keySets[k]; !ok {
			keySets[k] = idSets{s.SubjectIDs, s.AcademicCareerIDs}
		}
	}

	eligibleReportIDs := make(map[int64]bool, len(in.Reports))
	for _, r := range in.Reports {
		if candidates.Eligible(r, in.TimeGroup, in.MaxYears) {
			eligibleReportIDs[r.ReportID] = true
		}
	}
	rqsByQuestion := make(map[int64][]domain.ReportQuestion)
	for _, rq := range in.ReportQuestions {
		if eligibleReportIDs[rq.ReportID] {
			rqsByQuestion[rq.QuestionID] = append(rqsByQuestion[rq.QuestionID], rq)
		}
	}

	type job struct {
		key      priorLookupKey
		ids      idSets
		decay, m float64
	}
	var jobs []job
	for k, ids := range keySets {
		for _, qid := range priorQuestionIDs {
			params := in.Registry.Resolve(in.Questions[qid].QuestionText)
			jobs = append(jobs, job{
				key:   priorLookupKey{k, qid},
				ids:   ids,
				decay: params.Decay,
				m:     *params.M,
			})
		}
	}

	results := make([]priors.Result, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = priors.Compute(j.ids.subjects, j.ids.careers, rqsByQuestion[j.key.questionID], reportByID, j.decay, j.m, in.TimeGroup.StartYear)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, j := range jobs {
		out[j.key] = results[i]
	}
	return out, nil
}

func anyPriorsEnabled(questions map[int64]domain.Question, reg registry.Registry) bool {
	for _, q := range questions {
		if reg.Resolve(q.QuestionText).PriorsEnabled() {
			return true
		}
	}
	return false
}
