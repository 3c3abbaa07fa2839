package order

import (
	"time"

	"github.com/noah-isme/flyer-quote/internal/contact"
	"github.com/noah-isme/flyer-quote/internal/distribution"
	"github.com/noah-isme/flyer-quote/internal/pricetable"
	"github.com/noah-isme/flyer-quote/internal/pricing"
	"github.com/noah-isme/flyer-quote/internal/production"
	"github.com/noah-isme/flyer-quote/internal/schedule"
	"github.com/noah-isme/flyer-quote/internal/validation"
)

// DistributionState is the normalized distribution step of a snapshot.
type DistributionState struct {
	Audience          distribution.Audience `json:"audience"`
	Units             []distribution.Unit   `json:"units"`
	Entries           []distribution.Entry  `json:"entries"`
	TotalFlyers       int                   `json:"totalFlyers"`
	StartDate         schedule.Date         `json:"startDate"`
	MinDate           schedule.Date         `json:"minDate"`
	StandardDate      schedule.Date         `json:"standardDate"`
	ExpressApplicable bool                  `json:"expressApplicable"`
	ExpressConfirmed  bool                  `json:"expressConfirmed"`
}

// Snapshot is one consistent view of a quote: every derived part was computed
// from the same inputs.
type Snapshot struct {
	Version      uint64            `json:"version"`
	Distribution DistributionState `json:"distribution"`
	Production   production.Config `json:"production"`
	Contact      contact.Details   `json:"contact"`
	Cost         pricing.Breakdown `json:"cost"`
	Validation   validation.Status `json:"validation"`
	Touched      Touched           `json:"touched"`
}

// Derive recomputes a snapshot from scratch. A nil table yields a degraded
// cost breakdown; validation does not depend on it. Version is left zero.
func Derive(in Inputs, table *pricetable.Table, cal schedule.Calendar, now time.Time) Snapshot {
	audience := in.audience()
	units := in.Selection.Units()
	entries := distribution.ResolveAll(units, audience)
	total := distribution.TotalFlyers(entries)
	applicable := cal.ExpressApplicable(in.StartDate, now)

	dist := DistributionState{
		Audience:          audience,
		Units:             units,
		Entries:           entries,
		TotalFlyers:       total,
		StartDate:         in.StartDate,
		MinDate:           cal.MinDate(now),
		StandardDate:      cal.StandardDate(now),
		ExpressApplicable: applicable,
		ExpressConfirmed:  in.ExpressConfirmed,
	}

	cost := pricing.Compute(pricing.Input{
		Audience:   audience,
		Entries:    entries,
		Production: in.Production,
		Express:    applicable && in.ExpressConfirmed,
		Table:      table,
	})

	status := validation.Compute(validation.Input{
		Distribution: validation.Distribution{
			Units:            len(units),
			TotalFlyers:      total,
			StartDate:        in.StartDate,
			ExpressConfirmed: in.ExpressConfirmed,
		},
		Production: in.Production,
		Contact:    in.Contact,
		Calendar:   cal,
		Now:        now,
	})

	return Snapshot{
		Distribution: dist,
		Production:   in.Production,
		Contact:      in.Contact,
		Cost:         cost,
		Validation:   status,
		Touched:      in.Touched,
	}
}

// Steps returns the validation status as the wizard shows it, with untouched
// steps neutral.
func (s Snapshot) Steps() validation.Status {
	return validation.Refine(s.Validation, s.Touched.Steps())
}
