// Package order owns the state of one quote: the user's inputs, the pure
// reducer that applies commands to them and the coordinator that derives and
// publishes consistent snapshots.
package order

import (
	"github.com/noah-isme/flyer-quote/internal/contact"
	"github.com/noah-isme/flyer-quote/internal/distribution"
	"github.com/noah-isme/flyer-quote/internal/production"
	"github.com/noah-isme/flyer-quote/internal/schedule"
	"github.com/noah-isme/flyer-quote/internal/validation"
)

// Touched records which wizard steps the user has edited.
type Touched struct {
	Distribution bool `json:"distribution" yaml:"distribution"`
	Production   bool `json:"production" yaml:"production"`
	Contact      bool `json:"contact" yaml:"contact"`
}

// Steps returns the touched steps keyed by validation step name.
func (t Touched) Steps() map[string]bool {
	return map[string]bool{
		validation.StepDistribution: t.Distribution,
		validation.StepProduction:   t.Production,
		validation.StepContact:      t.Contact,
	}
}

// Inputs is everything the user has entered. Everything else in a snapshot is
// derived from it.
type Inputs struct {
	Selection        distribution.Selection `json:"selection"`
	Audience         distribution.Audience  `json:"audience"`
	StartDate        schedule.Date          `json:"startDate"`
	ExpressConfirmed bool                   `json:"expressConfirmed"`
	Production       production.Config      `json:"production"`
	Contact          contact.Details        `json:"contact"`
	Touched          Touched                `json:"touched"`
}

// NewInputs returns the inputs of a fresh session.
func NewInputs() Inputs {
	return Inputs{Audience: distribution.AudienceAll}
}

func (in Inputs) audience() distribution.Audience {
	if in.Audience == "" {
		return distribution.AudienceAll
	}
	return in.Audience
}
