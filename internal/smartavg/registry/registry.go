// Package registry holds the global and per-question tunables for the engine (C1)
package registry

import (
	"sync"

	perr "smartavg/internal/platform/errors"

	"github.com/go-playground/validator/v10"
)

// QuestionParams are the tunables that govern how one question's evidence
// is blended, dampened, and shrunk toward its hierarchical prior
type QuestionParams struct {
	BaseCourse      float64  `validate:"gte=0"`
	BaseInstructor  float64  `validate:"gte=0"`
	BaseInteraction float64  `validate:"gte=0"`
	WCareer         float64  `validate:"gte=0"`
	WSubject        float64  `validate:"gte=0"`
	Decay           float64  `validate:"gt=0,lte=1"`
	DampeningK      float64  `validate:"gte=0"`
	M               *float64 `validate:"omitempty,gte=0"` // nil disables priors for this question
}

// PriorsEnabled reports whether this question's output is shrunk toward a prior
func (p QuestionParams) PriorsEnabled() bool { return p.M != nil }

// Registry holds the global lookback window, the default QuestionParams, and
// per-question-text overrides
type Registry struct {
	MaxYears    int
	Defaults    QuestionParams
	PerQuestion map[string]QuestionParams // keyed by canonicalized question text
}

// Resolve returns the QuestionParams for the given question text, applying
// any per-question override on top of the defaults. The key is canonicalized
// (see Canonicalize) so scraped text in different Unicode forms still matches
func (r Registry) Resolve(questionText string) QuestionParams {
	if r.PerQuestion == nil {
		return r.Defaults
	}
	if p, ok := r.PerQuestion[Canonicalize(questionText)]; ok {
		return p
	}
	return r.Defaults
}

func mptr(v float64) *float64 { return &v }

// Default returns the registry populated with the shipped defaults: balanced
// base weights with priors enabled (m=10) for quality/learning/organization
// style questions, and priors disabled (m=null) with mass shifted to the
// course component for attendance/workload style questions
func Default() Registry {
	balanced := QuestionParams{
		BaseCourse:      1.0,
		BaseInstructor:  1.0,
		BaseInteraction: 0.5,
		WCareer:         0.25,
		WSubject:        0.25,
		Decay:           0.85,
		DampeningK:      4,
		M:               mptr(10),
	}
	courseHeavyNoPrior := QuestionParams{
		BaseCourse:      1.5,
		BaseInstructor:  0.25,
		BaseInteraction: 0.25,
		WCareer:         0.1,
		WSubject:        0.1,
		Decay:           0.85,
		DampeningK:      4,
		M:               nil,
	}

	return Registry{
		MaxYears: 4,
		Defaults: balanced,
		PerQuestion: map[string]QuestionParams{
			Canonicalize("Overall quality of the course"):        balanced,
			Canonicalize("How much you learned from the course"): balanced,
			Canonicalize("Organization of the course"):           balanced,
			Canonicalize("Hours per week spent on the course"):   courseHeavyNoPrior,
			Canonicalize("Expected attendance"):                  courseHeavyNoPrior,
		},
	}
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks a QuestionParams against its field invariants (spec §4.1:
// non-negative weights, decay in (0,1], non-negative dampening/m)
func Validate(p QuestionParams) error {
	if err := getValidator().Struct(p); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return perr.WithField(
				perr.Newf(perr.ErrorCodeConfig, "question params: %s failed %s", fe.Field(), fe.Tag()),
				fe.Field(),
			)
		}
		return perr.Wrap(err, perr.ErrorCodeConfig, "question params validation")
	}
	return nil
}
