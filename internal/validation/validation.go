// Package validation decides per-step and overall validity of a quote.
package validation

import (
	"time"

	"github.com/noah-isme/flyer-quote/internal/contact"
	"github.com/noah-isme/flyer-quote/internal/production"
	"github.com/noah-isme/flyer-quote/internal/schedule"
)

// StepState is the validity of one wizard step.
type StepState string

const (
	StateValid   StepState = "valid"
	StateInvalid StepState = "invalid"
	StatePending StepState = "pending"
	StateNeutral StepState = "neutral"
)

func stateOf(ok bool) StepState {
	if ok {
		return StateValid
	}
	return StateInvalid
}

// Step names used for touched tracking and reporting.
const (
	StepDistribution = "distribution"
	StepProduction   = "production"
	StepContact      = "contact"
)

// Status is the validity of every step plus the aggregate flag.
type Status struct {
	Distribution StepState `json:"distribution"`
	Production   StepState `json:"production"`
	Contact      StepState `json:"contact"`
	Valid        bool      `json:"valid"`
}

// Distribution is the non-monetary distribution state validation reads.
type Distribution struct {
	Units            int
	TotalFlyers      int
	StartDate        schedule.Date
	ExpressConfirmed bool
}

// Input is everything validation reads. Calendar and Now re-derive express
// applicability from the start date; the confirmation flag alone never decides it.
type Input struct {
	Distribution Distribution
	Production   production.Config
	Contact      contact.Details
	Calendar     schedule.Calendar
	Now          time.Time
}

// Compute validates each step. It only ever reports valid or invalid.
func Compute(in Input) Status {
	s := Status{
		Distribution: stateOf(DistributionValid(in.Distribution, in.Calendar, in.Now)),
		Production:   stateOf(ProductionValid(in.Production)),
		Contact:      stateOf(in.Contact.Valid()),
	}
	s.Valid = s.Distribution == StateValid && s.Production == StateValid && s.Contact == StateValid
	return s
}

// DistributionValid requires units with a positive flyer total, an allowed
// start date and, for an express date, the customer's confirmation.
func DistributionValid(d Distribution, cal schedule.Calendar, now time.Time) bool {
	if d.Units == 0 || d.TotalFlyers <= 0 || d.StartDate.IsZero() {
		return false
	}
	if !cal.Allowed(d.StartDate, now) {
		return false
	}
	return !cal.ExpressApplicable(d.StartDate, now) || d.ExpressConfirmed
}

// ProductionValid accepts a skipped step, otherwise a known design package
// (or none) and a complete print method.
func ProductionValid(cfg production.Config) bool {
	if cfg.Skipped() {
		return true
	}
	if cfg.Design != production.DesignNone && !cfg.Design.Known() {
		return false
	}
	return cfg.Method().Complete()
}

// Refine maps the core result to what the wizard shows: untouched steps are
// neutral. touched is keyed by step name.
func Refine(s Status, touched map[string]bool) Status {
	refined := s
	if !touched[StepDistribution] {
		refined.Distribution = StateNeutral
	}
	if !touched[StepProduction] {
		refined.Production = StateNeutral
	}
	if !touched[StepContact] {
		refined.Contact = StateNeutral
	}
	return refined
}
