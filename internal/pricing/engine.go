package pricing

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/flyer-quote/internal/distribution"
	"github.com/noah-isme/flyer-quote/internal/money"
	"github.com/noah-isme/flyer-quote/internal/pricetable"
	"github.com/noah-isme/flyer-quote/internal/production"
)

// Input is everything the cost engine reads. Express must already combine
// applicability of the start date with the customer's confirmation.
type Input struct {
	Audience   distribution.Audience
	Entries    []distribution.Entry
	Production production.Config
	Express    bool
	Table      *pricetable.Table
}

// Compute prices the input. It never fails: a missing table yields the
// degraded zero breakdown and missing rates contribute zero.
func Compute(in Input) Breakdown {
	totalFlyers := distribution.TotalFlyers(in.Entries)
	if in.Table == nil {
		return Degraded(totalFlyers)
	}
	t := in.Table
	b := Breakdown{
		Currency:    t.Currency,
		Lines:       []LineItem{},
		TotalFlyers: totalFlyers,
		TaxRate:     t.TaxRate,
	}
	missing := map[string]struct{}{}

	var distLines []LineItem
	if in.Audience == distribution.AudienceAll {
		distLines = blendedLines(in.Entries, t, missing)
	} else {
		distLines = categoryLines(in.Entries, in.Audience, t, missing)
	}
	b.Lines = append(b.Lines, distLines...)
	amounts := make([]decimal.Decimal, 0, len(distLines))
	for _, l := range distLines {
		amounts = append(amounts, l.Amount)
	}
	b.DistributionSubtotal = money.Sum(amounts...)

	b.Surcharges = surcharges(in, t, b.DistributionSubtotal, totalFlyers)
	b.Lines = append(b.Lines, surchargeLines(b.Surcharges, in.Production, totalFlyers)...)
	b.SurchargeTotal = b.Surcharges.Total()
	if b.Surcharges.FormatOnRequest {
		b.Notes = append(b.Notes, fmt.Sprintf("Format %q: surcharge on request", in.Production.Method().Format()))
	}

	prodLines := productionLines(in.Production, t)
	b.Lines = append(b.Lines, prodLines...)
	prodAmounts := make([]decimal.Decimal, 0, len(prodLines))
	for _, l := range prodLines {
		prodAmounts = append(prodAmounts, l.Amount)
	}
	b.ProductionSubtotal = money.Sum(prodAmounts...)

	b.NetSubtotal = money.Sum(b.DistributionSubtotal, b.SurchargeTotal, b.ProductionSubtotal)
	b.Tax = money.Round(b.NetSubtotal.Mul(t.TaxRate))
	b.GrandTotal = money.Sum(b.NetSubtotal, b.Tax)

	if len(missing) > 0 {
		b.MissingRates = make([]string, 0, len(missing))
		for c := range missing {
			b.MissingRates = append(b.MissingRates, c)
		}
		sort.Strings(b.MissingRates)
	}
	return b
}

// blendedLines prices every unit separately, splitting its flyers between the
// two housing categories in proportion to the unit's household counts.
func blendedLines(entries []distribution.Entry, t *pricetable.Table, missing map[string]struct{}) []LineItem {
	lines := make([]LineItem, 0, len(entries))
	for _, e := range entries {
		u := e.Unit
		category := categoryKey(u.PriceCategory)
		flyers := decimal.NewFromInt(int64(e.Flyers))
		var mfhShare, efhShare decimal.Decimal
		if total := u.HousingTotal(); total > 0 {
			mfhShare = flyers.Mul(decimal.NewFromInt(int64(u.Households.MultiFamily))).Div(decimal.NewFromInt(int64(total)))
			efhShare = flyers.Mul(decimal.NewFromInt(int64(u.Households.SingleFamily))).Div(decimal.NewFromInt(int64(total)))
		} else {
			// No housing split in the reference data: the whole count is
			// priced at the single/two-family rate.
			mfhShare = money.Zero
			efhShare = flyers
		}

		amount := money.Zero
		if mfhShare.Sign() > 0 {
			rate, ok := t.Rate(category, distribution.AudienceMultiFamily)
			if !ok {
				missing[category] = struct{}{}
			}
			amount = amount.Add(money.PerThousandOf(mfhShare, rate))
		}
		if efhShare.Sign() > 0 {
			rate, ok := t.Rate(category, distribution.AudienceSingleFamily)
			if !ok {
				missing[category] = struct{}{}
			}
			amount = amount.Add(money.PerThousandOf(efhShare, rate))
		}
		amount = money.Round(amount)
		lines = append(lines, LineItem{
			Label:     u.Label(),
			Units:     e.Flyers,
			UnitPrice: money.RatePerThousand(amount, e.Flyers),
			Category:  CategoryDistribution,
			Amount:    amount,
		})
	}
	return lines
}

// categoryLines groups entries by price category and prices each group.
func categoryLines(entries []distribution.Entry, audience distribution.Audience, t *pricetable.Table, missing map[string]struct{}) []LineItem {
	flyers := map[string]int{}
	for _, e := range entries {
		flyers[categoryKey(e.Unit.PriceCategory)] += e.Flyers
	}
	categories := make([]string, 0, len(flyers))
	for c := range flyers {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	lines := make([]LineItem, 0, len(categories))
	for _, c := range categories {
		rate, ok := t.Rate(c, audience)
		if !ok {
			missing[c] = struct{}{}
			rate = money.Zero
		}
		lines = append(lines, LineItem{
			Label:     fmt.Sprintf("Price category %s, %s", categoryLabel(c), AudienceLabel(audience)),
			Units:     flyers[c],
			UnitPrice: rate,
			Category:  CategoryDistribution,
			Amount:    money.PerThousand(flyers[c], rate),
		})
	}
	return lines
}

// surcharges applies the conditional surcharges in their fixed order.
func surcharges(in Input, t *pricetable.Table, subtotal decimal.Decimal, totalFlyers int) Surcharges {
	s := Surcharges{
		MinimumOrder: Surcharge{Amount: money.Zero},
		Express:      Surcharge{Amount: money.Zero},
		Vehicle:      Surcharge{Amount: money.Zero},
		Pickup:       Surcharge{Amount: money.Zero},
		Format:       Surcharge{Amount: money.Zero},
	}
	method := in.Production.Method()
	format := strings.TrimSpace(method.Format())
	if format != "" {
		if _, whitelisted := t.FormatSurcharge(format); !whitelisted && !t.IsStandardFormat(format) {
			s.FormatOnRequest = true
		}
	}
	if len(in.Entries) == 0 {
		return s
	}

	if subtotal.Sign() > 0 && subtotal.LessThan(t.MinimumOrder) {
		s.MinimumOrder = applied(money.Round(t.MinimumOrder.Sub(subtotal)))
	}
	running := money.Sum(subtotal, s.MinimumOrder.Amount)
	if in.Express && running.Sign() > 0 {
		s.Express = applied(money.Round(running.Mul(t.ExpressFactor)))
	}
	s.Vehicle = applied(money.Round(t.VehicleFee))
	if ss, ok := method.(production.SelfSupply); ok && ss.Delivery == production.DeliveryPickup {
		s.Pickup = applied(money.Round(t.PickupFee))
	}
	if rate, ok := t.FormatSurcharge(format); ok && format != "" {
		s.Format = applied(money.PerThousand(totalFlyers, rate))
	}
	return s
}

func surchargeLines(s Surcharges, cfg production.Config, totalFlyers int) []LineItem {
	var lines []LineItem
	add := func(label string, units int, unitPrice decimal.Decimal, sc Surcharge) {
		if !sc.Applied {
			return
		}
		lines = append(lines, LineItem{Label: label, Units: units, UnitPrice: unitPrice, Category: CategorySurcharge, Amount: sc.Amount})
	}
	add("Minimum order compensation", 1, s.MinimumOrder.Amount, s.MinimumOrder)
	add("Express surcharge", 1, s.Express.Amount, s.Express)
	add("Vehicle and GPS tracking", 1, s.Vehicle.Amount, s.Vehicle)
	add("Flyer pickup", 1, s.Pickup.Amount, s.Pickup)
	add(fmt.Sprintf("Format surcharge %s", cfg.Method().Format()), totalFlyers, money.RatePerThousand(s.Format.Amount, totalFlyers), s.Format)
	return lines
}

// productionLines prices the design package and describes the print service.
// Print service is currently not priced; its line carries the configuration
// with an amount of zero.
func productionLines(cfg production.Config, t *pricetable.Table) []LineItem {
	var lines []LineItem
	if cfg.Design.Known() {
		price := money.Round(t.DesignPrice(cfg.Design))
		lines = append(lines, LineItem{
			Label:     fmt.Sprintf("Design package %s", cfg.Design),
			Units:     1,
			UnitPrice: price,
			Category:  CategoryProduction,
			Amount:    price,
		})
	}
	if ps, ok := cfg.Method().(production.PrintService); ok {
		lines = append(lines, LineItem{
			Label:     "Print service: " + ps.Describe(),
			Units:     ps.RunQuantity,
			UnitPrice: money.Zero,
			Category:  CategoryProduction,
			Amount:    money.Zero,
		})
	}
	return lines
}

// AudienceLabel names an audience for display.
func AudienceLabel(a distribution.Audience) string {
	switch a {
	case distribution.AudienceMultiFamily:
		return "multi-family households"
	case distribution.AudienceSingleFamily:
		return "single/two-family households"
	default:
		return "all households"
	}
}

func categoryKey(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}

func categoryLabel(c string) string {
	if c == "" {
		return "unassigned"
	}
	return c
}
