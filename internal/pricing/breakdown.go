// Package pricing turns resolved distribution entries, a production
// configuration and a price table into an itemized quote.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/flyer-quote/internal/money"
)

// Category classifies a line item.
type Category string

const (
	CategoryDistribution Category = "distribution"
	CategorySurcharge    Category = "surcharge"
	CategoryProduction   Category = "production"
)

// LineItem is one row of the cost breakdown. For distribution rows UnitPrice
// is the rate per 1000 flyers.
type LineItem struct {
	Label     string          `json:"label"`
	Units     int             `json:"units"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Category  Category        `json:"category"`
	Amount    decimal.Decimal `json:"amount"`
}

// Surcharge reports whether a conditional surcharge applied and its amount.
type Surcharge struct {
	Applied bool            `json:"applied"`
	Amount  decimal.Decimal `json:"amount"`
}

func applied(amount decimal.Decimal) Surcharge {
	return Surcharge{Applied: true, Amount: amount}
}

// Surcharges groups the conditional distribution surcharges. FormatOnRequest
// is set for custom formats that are priced manually; it never carries an
// amount.
type Surcharges struct {
	MinimumOrder    Surcharge `json:"minimumOrder"`
	Express         Surcharge `json:"express"`
	Vehicle         Surcharge `json:"vehicle"`
	Pickup          Surcharge `json:"pickup"`
	Format          Surcharge `json:"format"`
	FormatOnRequest bool      `json:"formatOnRequest"`
}

// Total sums the numeric surcharges.
func (s Surcharges) Total() decimal.Decimal {
	return money.Sum(s.MinimumOrder.Amount, s.Express.Amount, s.Vehicle.Amount, s.Pickup.Amount, s.Format.Amount)
}

// Breakdown is the fully itemized quote. It is always recomputed from scratch.
type Breakdown struct {
	Currency             string          `json:"currency"`
	Lines                []LineItem      `json:"lines"`
	TotalFlyers          int             `json:"totalFlyers"`
	DistributionSubtotal decimal.Decimal `json:"distributionSubtotal"`
	Surcharges           Surcharges      `json:"surcharges"`
	SurchargeTotal       decimal.Decimal `json:"surchargeTotal"`
	ProductionSubtotal   decimal.Decimal `json:"productionSubtotal"`
	NetSubtotal          decimal.Decimal `json:"netSubtotal"`
	TaxRate              decimal.Decimal `json:"taxRate"`
	Tax                  decimal.Decimal `json:"tax"`
	GrandTotal           decimal.Decimal `json:"grandTotal"`
	Notes                []string        `json:"notes,omitempty"`
	MissingRates         []string        `json:"missingRates,omitempty"`
	Degraded             bool            `json:"degraded"`
}

// Degraded is the breakdown reported while no price table is available.
func Degraded(totalFlyers int) Breakdown {
	return Breakdown{
		Lines:                []LineItem{},
		TotalFlyers:          totalFlyers,
		DistributionSubtotal: money.Zero,
		SurchargeTotal:       money.Zero,
		ProductionSubtotal:   money.Zero,
		NetSubtotal:          money.Zero,
		TaxRate:              money.Zero,
		Tax:                  money.Zero,
		GrandTotal:           money.Zero,
		Surcharges: Surcharges{
			MinimumOrder: Surcharge{Amount: money.Zero},
			Express:      Surcharge{Amount: money.Zero},
			Vehicle:      Surcharge{Amount: money.Zero},
			Pickup:       Surcharge{Amount: money.Zero},
			Format:       Surcharge{Amount: money.Zero},
		},
		Degraded: true,
	}
}
